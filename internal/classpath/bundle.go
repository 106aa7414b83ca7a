package classpath

import (
	"time"

	"github.com/woxQAQ/jniproxy/internal/wasm"
)

// Bundle is a loaded class bundle: its manifest and, when the manifest
// names one, the compiled guest module that calls into the classes.
type Bundle struct {
	Manifest *Manifest

	// Guest is nil for bundles that only contribute classes.
	Guest *wasm.CompiledModule

	LoadedAt time.Time
}

// Name returns the bundle name.
func (b *Bundle) Name() string {
	return b.Manifest.Name
}

// Version returns the bundle version.
func (b *Bundle) Version() string {
	return b.Manifest.Version
}

// HasGuest reports whether the bundle ships a guest module.
func (b *Bundle) HasGuest() bool {
	return b.Guest != nil
}

// Entry returns the guest export to run.
func (b *Bundle) Entry() string {
	return b.Manifest.Guest.Entry
}

// Classes returns the names of the classes the bundle declares.
func (b *Bundle) Classes() []string {
	names := make([]string, len(b.Manifest.Classes))
	for i, c := range b.Manifest.Classes {
		names[i] = c.Name
	}
	return names
}
