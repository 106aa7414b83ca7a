package wasm

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"go.uber.org/zap"
)

// ModuleLoader compiles guest binaries once and caches them on the runtime.
type ModuleLoader struct {
	runtime *Runtime
	logger  *zap.Logger
}

// NewModuleLoader returns a loader compiling into runtime.
func NewModuleLoader(runtime *Runtime, logger *zap.Logger) *ModuleLoader {
	return &ModuleLoader{
		runtime: runtime,
		logger:  logger.With(zap.String("component", "wasm-loader")),
	}
}

// Source names a guest binary. Data, when set, is used as-is; otherwise the
// binary is read from Path. Name keys the compile cache and defaults to Path.
type Source struct {
	Name string
	Path string
	Data []byte
}

func (s Source) key() string {
	if s.Name != "" {
		return s.Name
	}
	return s.Path
}

func (s Source) origin() string {
	if s.Data != nil || s.Path == "" {
		return "memory"
	}
	return s.Path
}

func (s Source) read() ([]byte, error) {
	if s.Data != nil || s.Path == "" {
		return s.Data, nil
	}
	return os.ReadFile(s.Path)
}

// LoadModule compiles src unless a guest under the same name is cached.
func (l *ModuleLoader) LoadModule(ctx context.Context, src Source) (*CompiledModule, error) {
	name := src.key()
	if cached, ok := l.runtime.GetCompiledModule(name); ok {
		l.logger.Debug("Guest cache hit", zap.String("module", name))
		return cached, nil
	}

	bin, err := src.read()
	if err != nil {
		return nil, fmt.Errorf("failed to read guest %s: %w", name, err)
	}

	start := time.Now()
	compiled, err := l.runtime.runtime.CompileModule(ctx, bin)
	if err != nil {
		return nil, &CompilationError{ModuleName: name, Err: err}
	}

	module := &CompiledModule{
		Module:     compiled,
		Name:       name,
		Source:     src.origin(),
		SizeBytes:  int64(len(bin)),
		CompiledAt: time.Now().Unix(),
	}
	l.runtime.StoreCompiledModule(module)

	l.logger.Info("Guest compiled",
		zap.String("module", name),
		zap.String("source", module.Source),
		zap.Int64("size_bytes", module.SizeBytes),
		zap.Duration("duration", time.Since(start)),
		zap.Strings("jni_imports", module.Imports(l.runtime.hostModuleName())),
	)

	return module, nil
}

// LoadModuleFromFile compiles the guest at path, cached under path.
func (l *ModuleLoader) LoadModuleFromFile(ctx context.Context, path string) (*CompiledModule, error) {
	return l.LoadModule(ctx, Source{Path: path})
}

// LoadModuleFromMemory compiles data, cached under name.
func (l *ModuleLoader) LoadModuleFromMemory(ctx context.Context, name string, data []byte) (*CompiledModule, error) {
	return l.LoadModule(ctx, Source{Name: name, Data: data})
}

// Imports returns the sorted function names the guest imports from the given
// host module.
func (m *CompiledModule) Imports(module string) []string {
	var names []string
	for _, def := range m.Module.ImportedFunctions() {
		mod, name, ok := def.Import()
		if ok && mod == module {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Exports reports whether the guest exports a function with the given name.
func (m *CompiledModule) Exports(name string) bool {
	_, ok := m.Module.ExportedFunctions()[name]
	return ok
}
