package classpath

import (
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Registry indexes loaded bundles by name and by the classes they declare.
type Registry struct {
	sync.RWMutex
	bundles map[string]*Bundle
	byClass map[string]*Bundle
	logger  *zap.Logger
}

// NewRegistry creates a new bundle registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		bundles: make(map[string]*Bundle),
		byClass: make(map[string]*Bundle),
		logger:  logger.With(zap.String("component", "classpath-registry")),
	}
}

// Register adds a bundle. A class may be provided by one bundle only.
func (r *Registry) Register(bundle *Bundle) error {
	r.Lock()
	defer r.Unlock()

	name := bundle.Name()
	if _, exists := r.bundles[name]; exists {
		return &BundleAlreadyRegisteredError{BundleName: name}
	}
	for _, class := range bundle.Classes() {
		if other, exists := r.byClass[class]; exists {
			return &ClassConflictError{Class: class, Bundle: name, Existing: other.Name()}
		}
	}

	r.bundles[name] = bundle
	for _, class := range bundle.Classes() {
		r.byClass[class] = bundle
	}

	r.logger.Info("Bundle registered",
		zap.String("name", name),
		zap.Strings("classes", bundle.Classes()),
		zap.Bool("guest", bundle.HasGuest()),
	)
	return nil
}

// Get retrieves a bundle by name.
func (r *Registry) Get(name string) (*Bundle, bool) {
	r.RLock()
	defer r.RUnlock()

	bundle, ok := r.bundles[name]
	return bundle, ok
}

// LookupClass finds the bundle declaring a class.
func (r *Registry) LookupClass(class string) (*Bundle, bool) {
	r.RLock()
	defer r.RUnlock()

	bundle, ok := r.byClass[class]
	return bundle, ok
}

// List returns all bundles sorted by name.
func (r *Registry) List() []*Bundle {
	r.RLock()
	defer r.RUnlock()

	result := make([]*Bundle, 0, len(r.bundles))
	for _, bundle := range r.bundles {
		result = append(result, bundle)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name() < result[j].Name() })
	return result
}

// Unregister removes a bundle and its class index entries.
func (r *Registry) Unregister(name string) {
	r.Lock()
	defer r.Unlock()

	bundle, ok := r.bundles[name]
	if !ok {
		return
	}
	for _, class := range bundle.Classes() {
		delete(r.byClass, class)
	}
	delete(r.bundles, name)

	r.logger.Info("Bundle unregistered", zap.String("name", name))
}

// Count returns the number of registered bundles.
func (r *Registry) Count() int {
	r.RLock()
	defer r.RUnlock()

	return len(r.bundles)
}
