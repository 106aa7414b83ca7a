package wasm

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

func TestNewRuntime(t *testing.T) {
	logger := zaptest.NewLogger(t)
	ctx := context.Background()

	runtime, err := NewRuntime(ctx, logger, nil)
	if err != nil {
		t.Fatalf("Failed to create runtime: %v", err)
	}
	if runtime == nil {
		t.Fatal("Runtime is nil")
	}

	if err := runtime.Close(context.Background()); err != nil {
		t.Errorf("Failed to close runtime: %v", err)
	}
}

func TestRuntimeCloseIdempotent(t *testing.T) {
	logger := zaptest.NewLogger(t)
	ctx := context.Background()

	runtime, err := NewRuntime(ctx, logger, nil)
	if err != nil {
		t.Fatal(err)
	}

	if err := runtime.Close(ctx); err != nil {
		t.Errorf("First close failed: %v", err)
	}
	if err := runtime.Close(ctx); err != nil {
		t.Errorf("Second close failed: %v", err)
	}
}

func TestDefaultRuntimeConfig(t *testing.T) {
	config := DefaultRuntimeConfig()

	if config.MemoryPages != 256 {
		t.Errorf("Default memory pages = %d, want 256", config.MemoryPages)
	}
	if config.DebugEnabled {
		t.Error("Debug should be disabled by default")
	}
	if config.MaxInstances != 100 {
		t.Errorf("Default max instances = %d, want 100", config.MaxInstances)
	}
	if config.ExecutionTimeout != 30*time.Second {
		t.Errorf("Default execution timeout = %v, want 30s", config.ExecutionTimeout)
	}
	if config.HostModule != "jni" {
		t.Errorf("Default host module = %q, want jni", config.HostModule)
	}
	if !config.WASI {
		t.Error("WASI should be enabled by default")
	}
}

func TestRuntimeCompilationCacheDir(t *testing.T) {
	logger := zaptest.NewLogger(t)
	ctx := context.Background()

	config := &RuntimeConfig{
		MemoryPages: 16,
		CacheDir:    t.TempDir(),
	}
	runtime, err := NewRuntime(ctx, logger, config)
	if err != nil {
		t.Fatalf("Failed to create runtime: %v", err)
	}
	if runtime.cache == nil {
		t.Error("Compilation cache not configured")
	}
	if runtime.Config().MemoryPages != 16 {
		t.Errorf("Memory pages = %d, want 16", runtime.Config().MemoryPages)
	}
	if err := runtime.Close(ctx); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

func TestRuntimeModuleCache(t *testing.T) {
	logger := zaptest.NewLogger(t)
	ctx := context.Background()

	runtime, err := NewRuntime(ctx, logger, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer runtime.Close(ctx)

	guest := &CompiledModule{
		Name:       "counter",
		Source:     "memory",
		SizeBytes:  1024,
		CompiledAt: time.Now().Unix(),
	}
	runtime.StoreCompiledModule(guest)

	got, ok := runtime.GetCompiledModule("counter")
	if !ok {
		t.Fatal("compiled guest not cached")
	}
	if got != guest {
		t.Errorf("GetCompiledModule returned %s, want counter", got.Name)
	}
	if _, ok := runtime.GetCompiledModule("missing"); ok {
		t.Error("lookup of an unknown guest succeeded")
	}
}

func TestRuntimeIsClosed(t *testing.T) {
	logger := zaptest.NewLogger(t)
	ctx := context.Background()

	runtime, err := NewRuntime(ctx, logger, nil)
	if err != nil {
		t.Fatal(err)
	}
	if runtime.IsClosed() {
		t.Error("Runtime should not be closed initially")
	}

	runtime.Close(ctx)

	if !runtime.IsClosed() {
		t.Error("Runtime should be closed after Close()")
	}
}

func TestErrorMessages(t *testing.T) {
	cause := errors.New("test error")
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"compilation", &CompilationError{ModuleName: "test", Err: cause}, "guest 'test' does not compile: test error"},
		{"not found", &FunctionNotFoundError{ModuleName: "g", FunctionName: "run"}, "guest 'g' does not export 'run'"},
		{"memory", &MemoryAccessError{Operation: "free", Address: 16, Err: cause}, "guest memory free at 0x10 (0 bytes): test error"},
		{"unresolved", &UnresolvedImportError{ModuleName: "g", Imports: []string{"GetJavaVM", "MonitorEnter"}}, "module 'g' imports unimplemented JNI entries: GetJavaVM, MonitorEnter"},
		{"limit", &InstanceLimitError{Limit: 2}, "instance limit of 2 reached"},
		{"timeout", &TimeoutError{Duration: time.Second}, "guest execution timed out after 1s"},
		{"execution", &ExecutionError{InstanceID: "i", FunctionName: "run", Err: cause}, "call to 'run' in instance 'i' failed: test error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}

	if !errors.Is(&ExecutionError{Err: cause}, cause) {
		t.Error("ExecutionError should unwrap to its cause")
	}
}
