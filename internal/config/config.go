package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/woxQAQ/jniproxy/pkg/jni"
)

// EnvPrefix prefixes environment overrides, e.g. JNIPROXY_WASM_DEBUG=true.
const EnvPrefix = "JNIPROXY"

type Config struct {
	LogLevel   string      `mapstructure:"log_level"`
	ClassPaths []string    `mapstructure:"class_paths"`
	JNIVersion int32       `mapstructure:"jni_version"`
	Cache      CacheConfig `mapstructure:"cache"`
	Wasm       WasmConfig  `mapstructure:"wasm"`
}

// CacheConfig sizes the member record cache.
type CacheConfig struct {
	// Initial number of record slots.
	InitialCapacity int `mapstructure:"initial_capacity"`
}

// WasmConfig holds guest runtime configuration.
type WasmConfig struct {
	// Import module name of the JNI table.
	ModuleName string `mapstructure:"module_name"`
	// Memory limit per guest (in pages, 64KB each).
	MemoryPages uint32 `mapstructure:"memory_pages"`
	// Log every native call.
	Debug bool `mapstructure:"debug"`
	// Compilation cache directory; empty disables it.
	CacheDir string `mapstructure:"cache_dir"`
	// Maximum concurrent instances.
	MaxInstances int `mapstructure:"max_instances"`
	// Bound on a single guest entry call.
	ExecutionTimeout time.Duration `mapstructure:"execution_timeout"`
	// Default guest export to run.
	Entry string `mapstructure:"entry"`
	// Provide wasi_snapshot_preview1 to guests.
	WASI bool `mapstructure:"wasi"`
}

// ValidationError reports an unusable configuration value.
type ValidationError struct {
	Key     string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid configuration %s: %s", e.Key, e.Message)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("class_paths", []string{"./classes"})
	v.SetDefault("jni_version", jni.Version1_2)

	v.SetDefault("cache.initial_capacity", 256)

	v.SetDefault("wasm.module_name", "jni")
	v.SetDefault("wasm.memory_pages", 256) // 16MB
	v.SetDefault("wasm.debug", false)
	v.SetDefault("wasm.cache_dir", "")
	v.SetDefault("wasm.max_instances", 100)
	v.SetDefault("wasm.execution_timeout", "30s")
	v.SetDefault("wasm.entry", "run")
	v.SetDefault("wasm.wasi", true)
}

// LoadConfig reads configPath, if given, over the defaults and applies
// JNIPROXY_ environment overrides.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values the loader cannot type-check.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return &ValidationError{Key: "log_level", Message: fmt.Sprintf("unknown level %q", c.LogLevel)}
	}
	switch c.JNIVersion {
	case jni.Version1_1, jni.Version1_2, jni.Version1_4, jni.Version1_6:
	default:
		return &ValidationError{Key: "jni_version", Message: fmt.Sprintf("%#x is not a known JNI version", c.JNIVersion)}
	}
	if c.Cache.InitialCapacity < 0 {
		return &ValidationError{Key: "cache.initial_capacity", Message: "must not be negative"}
	}
	if c.Wasm.ModuleName == "" {
		return &ValidationError{Key: "wasm.module_name", Message: "must not be empty"}
	}
	if c.Wasm.MemoryPages > 65536 {
		return &ValidationError{Key: "wasm.memory_pages", Message: "exceeds the 4GiB wasm32 limit"}
	}
	if c.Wasm.MaxInstances < 0 {
		return &ValidationError{Key: "wasm.max_instances", Message: "must not be negative"}
	}
	if c.Wasm.ExecutionTimeout < 0 {
		return &ValidationError{Key: "wasm.execution_timeout", Message: "must not be negative"}
	}
	return nil
}
