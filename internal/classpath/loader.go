package classpath

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/woxQAQ/jniproxy/internal/wasm"
)

// Loader loads class bundles from disk.
type Loader struct {
	moduleLoader *wasm.ModuleLoader
	logger       *zap.Logger
}

// NewLoader creates a bundle loader. With a nil runtime, bundles that ship
// a guest module fail to load.
func NewLoader(runtime *wasm.Runtime, logger *zap.Logger) *Loader {
	l := &Loader{logger: logger.With(zap.String("component", "classpath-loader"))}
	if runtime != nil {
		l.moduleLoader = wasm.NewModuleLoader(runtime, logger)
	}
	return l
}

// LoadBundle loads a single bundle from a directory.
func (l *Loader) LoadBundle(ctx context.Context, dir string) (*Bundle, error) {
	l.logger.Debug("Loading bundle", zap.String("dir", dir))

	manifest, err := ParseManifest(dir)
	if err != nil {
		return nil, err
	}

	l.logger.Info("Loading bundle",
		zap.String("name", manifest.Name),
		zap.String("version", manifest.Version),
		zap.Int("classes", len(manifest.Classes)),
	)

	bundle := &Bundle{Manifest: manifest, LoadedAt: time.Now()}

	if manifest.Guest.File != "" {
		if l.moduleLoader == nil {
			return nil, &BundleLoadError{BundleName: manifest.Name, Err: errors.New("no wasm runtime to compile the guest")}
		}
		compiled, err := l.moduleLoader.LoadModuleFromFile(ctx, manifest.GuestPath())
		if err != nil {
			return nil, &BundleLoadError{BundleName: manifest.Name, Err: err}
		}
		if !compiled.Exports(manifest.Guest.Entry) {
			return nil, &BundleLoadError{
				BundleName: manifest.Name,
				Err:        fmt.Errorf("guest does not export entry %q", manifest.Guest.Entry),
			}
		}
		bundle.Guest = compiled
		l.logger.Info("Guest module loaded",
			zap.String("bundle", manifest.Name),
			zap.Int64("size_bytes", compiled.SizeBytes),
		)
	}

	return bundle, nil
}

// DiscoverBundles loads every subdirectory of the given paths as a bundle.
// Bundles that fail to load are logged and skipped.
func (l *Loader) DiscoverBundles(ctx context.Context, paths []string) ([]*Bundle, error) {
	var bundles []*Bundle
	var errs []error

	for _, basePath := range paths {
		l.logger.Debug("Scanning class path", zap.String("path", basePath))

		entries, err := os.ReadDir(basePath)
		if err != nil {
			if os.IsNotExist(err) {
				l.logger.Warn("Class path does not exist", zap.String("path", basePath))
				continue
			}
			return nil, fmt.Errorf("failed to read directory '%s': %w", basePath, err)
		}

		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}

			bundleDir := filepath.Join(basePath, entry.Name())
			bundle, err := l.LoadBundle(ctx, bundleDir)
			if err != nil {
				l.logger.Error("Failed to load bundle",
					zap.String("dir", bundleDir),
					zap.Error(err),
				)
				errs = append(errs, err)
				continue
			}
			bundles = append(bundles, bundle)
		}
	}

	if len(bundles) > 0 && len(errs) > 0 {
		l.logger.Warn("Some bundles failed to load",
			zap.Int("loaded", len(bundles)),
			zap.Int("failed", len(errs)),
		)
	}

	if len(bundles) == 0 {
		return nil, &NoBundlesFoundError{Paths: paths}
	}
	return bundles, nil
}
