package classpath

import (
	"fmt"
	"strings"
)

// ManifestNotFoundError occurs when manifest.yaml is not found in a directory.
type ManifestNotFoundError struct {
	Path string
	Err  error
}

func (e *ManifestNotFoundError) Error() string {
	return fmt.Sprintf("manifest not found at '%s': %v", e.Path, e.Err)
}

func (e *ManifestNotFoundError) Unwrap() error {
	return e.Err
}

// ManifestParseError occurs when manifest.yaml is not valid YAML.
type ManifestParseError struct {
	Path string
	Err  error
}

func (e *ManifestParseError) Error() string {
	return fmt.Sprintf("failed to parse manifest at '%s': %v", e.Path, e.Err)
}

func (e *ManifestParseError) Unwrap() error {
	return e.Err
}

// ManifestValidationError occurs when manifest.yaml fails validation.
type ManifestValidationError struct {
	Path    string
	Field   string
	Message string
}

func (e *ManifestValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("manifest validation failed at '%s': %s (field: %s)",
			e.Path, e.Message, e.Field)
	}
	return fmt.Sprintf("manifest validation failed at '%s': %s", e.Path, e.Message)
}

// GuestNotFoundError occurs when the guest module named in a manifest is
// missing.
type GuestNotFoundError struct {
	ManifestPath string
	GuestFile    string
}

func (e *GuestNotFoundError) Error() string {
	return fmt.Sprintf("guest module '%s' not found (referenced in manifest '%s')",
		e.GuestFile, e.ManifestPath)
}

// BundleLoadError occurs when a bundle's guest cannot be compiled.
type BundleLoadError struct {
	BundleName string
	Err        error
}

func (e *BundleLoadError) Error() string {
	return fmt.Sprintf("failed to load bundle '%s': %v", e.BundleName, e.Err)
}

func (e *BundleLoadError) Unwrap() error {
	return e.Err
}

// BundleNotFoundError occurs when a bundle is not in the registry.
type BundleNotFoundError struct {
	BundleName string
}

func (e *BundleNotFoundError) Error() string {
	return fmt.Sprintf("bundle '%s' not found", e.BundleName)
}

// BundleAlreadyRegisteredError occurs when registering a duplicate bundle.
type BundleAlreadyRegisteredError struct {
	BundleName string
}

func (e *BundleAlreadyRegisteredError) Error() string {
	return fmt.Sprintf("bundle '%s' is already registered", e.BundleName)
}

// ClassConflictError occurs when two bundles declare the same class.
type ClassConflictError struct {
	Class    string
	Bundle   string
	Existing string
}

func (e *ClassConflictError) Error() string {
	return fmt.Sprintf("class %s in bundle '%s' is already provided by bundle '%s'",
		e.Class, e.Bundle, e.Existing)
}

// NoGuestError occurs when running a bundle that ships no guest module.
type NoGuestError struct {
	BundleName string
}

func (e *NoGuestError) Error() string {
	return fmt.Sprintf("bundle '%s' has no guest module", e.BundleName)
}

// NoBundlesFoundError occurs when no bundles are found in the class paths.
type NoBundlesFoundError struct {
	Paths []string
}

func (e *NoBundlesFoundError) Error() string {
	return fmt.Sprintf("no bundles found in paths: %v", e.Paths)
}

// InheritanceCycleError occurs when bundle classes extend each other in a
// cycle.
type InheritanceCycleError struct {
	Classes []string
}

func (e *InheritanceCycleError) Error() string {
	return fmt.Sprintf("inheritance cycle: %s", strings.Join(e.Classes, " -> "))
}
