package classpath

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/woxQAQ/jniproxy/internal/dispatch"
	"github.com/woxQAQ/jniproxy/internal/sandbox"
	"github.com/woxQAQ/jniproxy/internal/wasm"
)

// Manager discovers bundles on the class paths, installs their classes and
// runs their guests.
type Manager struct {
	paths       []string
	runtime     *wasm.Runtime
	loader      *Loader
	registry    *Registry
	instanceMgr *wasm.InstanceManager
	logger      *zap.Logger

	mu     sync.RWMutex
	loaded bool
}

// NewManager creates a bundle manager. runtime and hostFuncs may be nil when
// no bundle ships a guest.
func NewManager(
	paths []string,
	runtime *wasm.Runtime,
	hostFuncs *wasm.HostFunctions,
	logger *zap.Logger,
) *Manager {
	m := &Manager{
		paths:    paths,
		runtime:  runtime,
		loader:   NewLoader(runtime, logger),
		registry: NewRegistry(logger),
		logger:   logger.With(zap.String("component", "classpath-manager")),
	}
	if runtime != nil && hostFuncs != nil {
		m.instanceMgr = wasm.NewInstanceManager(runtime, hostFuncs, logger)
	}
	return m
}

// LoadAll discovers and registers every bundle on the class paths. Finding
// none is not an error.
func (m *Manager) LoadAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.loaded {
		return fmt.Errorf("bundles already loaded")
	}

	m.logger.Info("Loading class bundles", zap.Strings("paths", m.paths))

	bundles, err := m.loader.DiscoverBundles(ctx, m.paths)
	if err != nil {
		var none *NoBundlesFoundError
		if errors.As(err, &none) {
			m.logger.Warn("No bundles found in class paths", zap.Strings("paths", m.paths))
			m.loaded = true
			return nil
		}
		return err
	}

	for _, bundle := range bundles {
		if err := m.registry.Register(bundle); err != nil {
			m.logger.Error("Failed to register bundle",
				zap.String("name", bundle.Name()),
				zap.Error(err),
			)
		}
	}

	m.loaded = true
	m.logger.Info("Class bundles loaded", zap.Int("count", m.registry.Count()))
	return nil
}

// Install defines the classes of every registered bundle in vm. Classes are
// defined superclass first, so a bundle may extend classes of another.
// It returns the number of classes defined.
func (m *Manager) Install(vm *sandbox.VM) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	defs := make(map[string]sandbox.ClassDef)
	var names []string
	for _, bundle := range m.registry.List() {
		for _, def := range bundle.Manifest.Classes {
			defs[def.Name] = def
			names = append(names, def.Name)
		}
	}
	sort.Strings(names)

	const (
		visiting = 1
		done     = 2
	)
	state := make(map[string]int, len(defs))
	defined := 0

	var visit func(name string, path []string) error
	visit = func(name string, path []string) error {
		switch state[name] {
		case done:
			return nil
		case visiting:
			return &InheritanceCycleError{Classes: append(path, name)}
		}
		def := defs[name]
		state[name] = visiting
		if _, pending := defs[def.Super]; pending {
			if err := visit(def.Super, append(path, name)); err != nil {
				return err
			}
		}
		if _, err := vm.Define(def); err != nil {
			return err
		}
		state[name] = done
		defined++
		return nil
	}

	for _, name := range names {
		if err := visit(name, nil); err != nil {
			return defined, err
		}
	}

	m.logger.Info("Classes installed", zap.Int("count", defined))
	return defined, nil
}

// GetBundle retrieves a bundle by name.
func (m *Manager) GetBundle(name string) (*Bundle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	bundle, ok := m.registry.Get(name)
	if !ok {
		return nil, &BundleNotFoundError{BundleName: name}
	}
	return bundle, nil
}

// Guests returns the bundles that ship a guest module, sorted by name.
func (m *Manager) Guests() []*Bundle {
	var guests []*Bundle
	for _, bundle := range m.registry.List() {
		if bundle.HasGuest() {
			guests = append(guests, bundle)
		}
	}
	return guests
}

// Instantiate creates an instance of a bundle's guest served by env.
func (m *Manager) Instantiate(ctx context.Context, bundleName string, env *dispatch.Env) (*wasm.Instance, error) {
	bundle, err := m.GetBundle(bundleName)
	if err != nil {
		return nil, err
	}
	if !bundle.HasGuest() {
		return nil, &NoGuestError{BundleName: bundleName}
	}
	if m.instanceMgr == nil {
		return nil, &BundleLoadError{BundleName: bundleName, Err: errors.New("no wasm runtime")}
	}

	return m.instanceMgr.Instantiate(ctx, &wasm.InstanceConfig{
		ModuleName: bundle.Guest.Name,
		Env:        env,
	})
}

// Shutdown closes the runtime and with it every guest instance.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("Shutting down class bundle manager")
	if m.runtime == nil {
		return nil
	}
	if err := m.runtime.Close(ctx); err != nil {
		m.logger.Error("Failed to shutdown runtime", zap.Error(err))
		return err
	}
	m.logger.Info("Class bundle manager shutdown complete")
	return nil
}

// Registry returns the bundle registry.
func (m *Manager) Registry() *Registry {
	return m.registry
}

// IsLoaded returns whether bundles have been loaded.
func (m *Manager) IsLoaded() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loaded
}
