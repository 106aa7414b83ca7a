package classpath

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/woxQAQ/jniproxy/internal/dispatch"
	"github.com/woxQAQ/jniproxy/internal/member"
	"github.com/woxQAQ/jniproxy/internal/sandbox"
	"github.com/woxQAQ/jniproxy/internal/wasm"
	"github.com/woxQAQ/jniproxy/pkg/jni"
)

const pointManifest = `name: points
version: 2.0.0
classes:
  - name: geo/Point3
    super: geo/Point
    fields:
      - name: z
        descriptor: I
  - name: geo/Point
    fields:
      - name: x
        descriptor: I
    methods:
      - name: x
        descriptor: ()I
        impl: getter:x
`

const extManifest = `name: ext
version: 1.0.0
classes:
  - name: ext/Gauge2
    super: demo/Gauge
`

func TestManager_NewManager(t *testing.T) {
	manager := NewManager([]string{"/tmp/classes"}, nil, nil, zap.NewNop())

	if manager == nil {
		t.Fatal("NewManager() returned nil")
	}
	if manager.IsLoaded() {
		t.Error("Manager should not be loaded initially")
	}
}

func TestManager_LoadAllAndInstall(t *testing.T) {
	root := t.TempDir()
	writeBundle(t, root, "gauges", gaugeManifest, nil)
	writeBundle(t, root, "points", pointManifest, nil)
	writeBundle(t, root, "ext", extManifest, nil)

	manager := NewManager([]string{root}, nil, nil, zap.NewNop())
	ctx := context.Background()
	if err := manager.LoadAll(ctx); err != nil {
		t.Fatalf("LoadAll() failed: %v", err)
	}
	if !manager.IsLoaded() {
		t.Error("Manager should be loaded")
	}
	if err := manager.LoadAll(ctx); err == nil {
		t.Error("second LoadAll() should fail")
	}
	if manager.Registry().Count() != 3 {
		t.Fatalf("expected 3 bundles, got %d", manager.Registry().Count())
	}

	vm := sandbox.NewVM(jni.Version1_2, zap.NewNop())
	n, err := manager.Install(vm)
	if err != nil {
		t.Fatalf("Install() failed: %v", err)
	}
	if n != 4 {
		t.Errorf("expected 4 classes installed, got %d", n)
	}

	p3, ok := vm.Class("geo/Point3")
	if !ok {
		t.Fatal("geo/Point3 not defined")
	}
	p, _ := vm.Class("geo/Point")
	if p3.Super() != p {
		t.Error("geo/Point3 should extend geo/Point")
	}
	g2, ok := vm.Class("ext/Gauge2")
	if !ok {
		t.Fatal("ext/Gauge2 not defined")
	}
	if g, _ := vm.Class("demo/Gauge"); g2.Super() != g {
		t.Error("ext/Gauge2 should extend demo/Gauge across bundles")
	}
}

func TestManager_InstallCycle(t *testing.T) {
	root := t.TempDir()
	writeBundle(t, root, "loop", `name: loop
version: v1
classes:
  - name: a/A
    super: a/B
  - name: a/B
    super: a/A
`, nil)

	manager := NewManager([]string{root}, nil, nil, zap.NewNop())
	if err := manager.LoadAll(context.Background()); err != nil {
		t.Fatal(err)
	}

	_, err := manager.Install(sandbox.NewVM(jni.Version1_2, zap.NewNop()))
	var ce *InheritanceCycleError
	if !errors.As(err, &ce) {
		t.Fatalf("expected InheritanceCycleError, got %v", err)
	}
}

func TestManager_InstallUnknownSuper(t *testing.T) {
	root := t.TempDir()
	writeBundle(t, root, "orphan", "name: orphan\nversion: v1\nclasses:\n  - name: a/A\n    super: a/Missing\n", nil)

	manager := NewManager([]string{root}, nil, nil, zap.NewNop())
	if err := manager.LoadAll(context.Background()); err != nil {
		t.Fatal(err)
	}

	_, err := manager.Install(sandbox.NewVM(jni.Version1_2, zap.NewNop()))
	var de *sandbox.ClassDefinitionError
	if !errors.As(err, &de) {
		t.Fatalf("expected ClassDefinitionError, got %v", err)
	}
}

func TestManager_LoadAll_NoBundles(t *testing.T) {
	manager := NewManager([]string{t.TempDir()}, nil, nil, zap.NewNop())
	if err := manager.LoadAll(context.Background()); err != nil {
		t.Fatalf("LoadAll() with no bundles should succeed: %v", err)
	}
	if !manager.IsLoaded() {
		t.Error("Manager should be loaded")
	}
}

func TestManager_GetBundle_NotFound(t *testing.T) {
	manager := NewManager(nil, nil, nil, zap.NewNop())

	_, err := manager.GetBundle("nonexistent")
	var nf *BundleNotFoundError
	if !errors.As(err, &nf) {
		t.Errorf("expected BundleNotFoundError, got %T", err)
	}
}

func TestManager_InstantiateGuest(t *testing.T) {
	root := t.TempDir()
	writeBundle(t, root, "gauges", gaugeManifest, nil)
	writeBundle(t, root, "app", "name: app\nversion: v1\nguest:\n  file: app.wasm\n",
		map[string][]byte{"app.wasm": runGuest})

	logger := zap.NewNop()
	runtime := newRuntime(t)
	host := wasm.NewHostFunctions(dispatch.Default(), logger, false)
	manager := NewManager([]string{root}, runtime, host, logger)
	ctx := context.Background()
	if err := manager.LoadAll(ctx); err != nil {
		t.Fatal(err)
	}

	guests := manager.Guests()
	if len(guests) != 1 || guests[0].Name() != "app" {
		t.Fatalf("expected the app guest, got %d guests", len(guests))
	}

	vm := sandbox.NewVM(jni.Version1_2, logger)
	env := dispatch.NewEnv(vm, member.NewCache(0, logger), logger)

	inst, err := manager.Instantiate(ctx, "app", env)
	if err != nil {
		t.Fatalf("Instantiate() failed: %v", err)
	}
	if _, err := inst.Call(ctx, guests[0].Entry()); err != nil {
		t.Errorf("entry call failed: %v", err)
	}

	_, err = manager.Instantiate(ctx, "gauges", env)
	var ng *NoGuestError
	if !errors.As(err, &ng) {
		t.Errorf("expected NoGuestError, got %v", err)
	}

	if err := manager.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown() failed: %v", err)
	}
	if !runtime.IsClosed() {
		t.Error("runtime should be closed after Shutdown")
	}
}
