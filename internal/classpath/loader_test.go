package classpath

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/woxQAQ/jniproxy/internal/wasm"
)

func newRuntime(t *testing.T) *wasm.Runtime {
	t.Helper()
	config := wasm.DefaultRuntimeConfig()
	config.WASI = false
	runtime, err := wasm.NewRuntime(context.Background(), zap.NewNop(), config)
	if err != nil {
		t.Fatalf("Failed to create runtime: %v", err)
	}
	t.Cleanup(func() { runtime.Close(context.Background()) })
	return runtime
}

func TestLoader_LoadBundle_ClassesOnly(t *testing.T) {
	dir := writeBundle(t, t.TempDir(), "gauges", gaugeManifest, nil)
	loader := NewLoader(nil, zap.NewNop())

	bundle, err := loader.LoadBundle(context.Background(), dir)
	if err != nil {
		t.Fatalf("LoadBundle() failed: %v", err)
	}
	if bundle.Name() != "gauges" || bundle.Version() != "1.0.0" {
		t.Errorf("unexpected bundle %s %s", bundle.Name(), bundle.Version())
	}
	if bundle.HasGuest() {
		t.Error("class-only bundle should have no guest")
	}
	if got := bundle.Classes(); len(got) != 1 || got[0] != "demo/Gauge" {
		t.Errorf("unexpected classes %v", got)
	}
}

func TestLoader_LoadBundle_Guest(t *testing.T) {
	dir := writeBundle(t, t.TempDir(), "app", "name: app\nversion: 0.1.0\nguest:\n  file: app.wasm\n",
		map[string][]byte{"app.wasm": runGuest})
	loader := NewLoader(newRuntime(t), zap.NewNop())

	bundle, err := loader.LoadBundle(context.Background(), dir)
	if err != nil {
		t.Fatalf("LoadBundle() failed: %v", err)
	}
	if !bundle.HasGuest() {
		t.Fatal("expected a compiled guest")
	}
	if bundle.Entry() != "run" {
		t.Errorf("expected entry run, got %s", bundle.Entry())
	}
}

func TestLoader_LoadBundle_GuestErrors(t *testing.T) {
	tests := []struct {
		name     string
		manifest string
		runtime  bool
	}{
		{"no runtime", "name: app\nversion: v1\nguest:\n  file: app.wasm\n", false},
		{"missing entry", "name: app\nversion: v1\nguest:\n  file: app.wasm\n  entry: main\n", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := writeBundle(t, t.TempDir(), "app", tt.manifest, map[string][]byte{"app.wasm": runGuest})
			var runtime *wasm.Runtime
			if tt.runtime {
				runtime = newRuntime(t)
			}

			_, err := NewLoader(runtime, zap.NewNop()).LoadBundle(context.Background(), dir)
			var le *BundleLoadError
			if !errors.As(err, &le) {
				t.Fatalf("expected BundleLoadError, got %v", err)
			}
			if le.BundleName != "app" {
				t.Errorf("unexpected bundle name %s", le.BundleName)
			}
		})
	}
}

func TestLoader_LoadBundle_BadGuest(t *testing.T) {
	dir := writeBundle(t, t.TempDir(), "app", "name: app\nversion: v1\nguest:\n  file: app.wasm\n",
		map[string][]byte{"app.wasm": []byte("junk")})

	_, err := NewLoader(newRuntime(t), zap.NewNop()).LoadBundle(context.Background(), dir)
	var ce *wasm.CompilationError
	if !errors.As(err, &ce) {
		t.Errorf("expected wrapped CompilationError, got %v", err)
	}
}

func TestLoader_DiscoverBundles(t *testing.T) {
	root := t.TempDir()
	writeBundle(t, root, "gauges", gaugeManifest, nil)
	writeBundle(t, root, "broken", "name: broken\n", nil)
	if err := os.WriteFile(filepath.Join(root, "README"), []byte("not a bundle"), 0o644); err != nil {
		t.Fatal(err)
	}

	bundles, err := NewLoader(nil, zap.NewNop()).DiscoverBundles(context.Background(), []string{root, filepath.Join(root, "absent")})
	if err != nil {
		t.Fatalf("DiscoverBundles() failed: %v", err)
	}
	if len(bundles) != 1 || bundles[0].Name() != "gauges" {
		t.Errorf("expected only the gauges bundle, got %d bundles", len(bundles))
	}
}

func TestLoader_DiscoverBundles_Empty(t *testing.T) {
	_, err := NewLoader(nil, zap.NewNop()).DiscoverBundles(context.Background(), []string{t.TempDir()})
	var nb *NoBundlesFoundError
	if !errors.As(err, &nb) {
		t.Errorf("expected NoBundlesFoundError, got %T", err)
	}
}
