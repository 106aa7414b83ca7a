package classpath

import (
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/woxQAQ/jniproxy/internal/sandbox"
)

func testBundle(name string, classes ...string) *Bundle {
	m := &Manifest{Name: name, Version: "1.0.0", dir: "/tmp/" + name}
	for _, c := range classes {
		m.Classes = append(m.Classes, sandbox.ClassDef{Name: c})
	}
	return &Bundle{Manifest: m}
}

func TestRegistry_Register(t *testing.T) {
	registry := NewRegistry(zap.NewNop())

	if err := registry.Register(testBundle("a", "x/One", "x/Two")); err != nil {
		t.Fatalf("Register() failed: %v", err)
	}
	if registry.Count() != 1 {
		t.Errorf("expected count 1, got %d", registry.Count())
	}
	b, ok := registry.LookupClass("x/Two")
	if !ok || b.Name() != "a" {
		t.Errorf("LookupClass(x/Two) = %v, %v", b, ok)
	}
	if _, ok := registry.LookupClass("x/Three"); ok {
		t.Error("LookupClass should miss undeclared classes")
	}
}

func TestRegistry_Duplicate(t *testing.T) {
	registry := NewRegistry(zap.NewNop())
	if err := registry.Register(testBundle("a", "x/One")); err != nil {
		t.Fatal(err)
	}

	err := registry.Register(testBundle("a", "x/Other"))
	var dup *BundleAlreadyRegisteredError
	if !errors.As(err, &dup) {
		t.Fatalf("expected BundleAlreadyRegisteredError, got %v", err)
	}
}

func TestRegistry_ClassConflict(t *testing.T) {
	registry := NewRegistry(zap.NewNop())
	if err := registry.Register(testBundle("a", "x/One")); err != nil {
		t.Fatal(err)
	}

	err := registry.Register(testBundle("b", "x/Two", "x/One"))
	var ce *ClassConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ClassConflictError, got %v", err)
	}
	if ce.Class != "x/One" || ce.Bundle != "b" || ce.Existing != "a" {
		t.Errorf("unexpected conflict %+v", ce)
	}
	// A rejected bundle leaves no index entries behind.
	if _, ok := registry.LookupClass("x/Two"); ok {
		t.Error("x/Two indexed for a rejected bundle")
	}
	if registry.Count() != 1 {
		t.Errorf("expected count 1, got %d", registry.Count())
	}
}

func TestRegistry_List(t *testing.T) {
	registry := NewRegistry(zap.NewNop())
	for _, name := range []string{"c", "a", "b"} {
		if err := registry.Register(testBundle(name)); err != nil {
			t.Fatal(err)
		}
	}

	list := registry.List()
	if len(list) != 3 {
		t.Fatalf("expected 3 bundles, got %d", len(list))
	}
	for i, want := range []string{"a", "b", "c"} {
		if list[i].Name() != want {
			t.Errorf("List()[%d] = %s, want %s", i, list[i].Name(), want)
		}
	}
}

func TestRegistry_Unregister(t *testing.T) {
	registry := NewRegistry(zap.NewNop())
	if err := registry.Register(testBundle("a", "x/One")); err != nil {
		t.Fatal(err)
	}

	registry.Unregister("a")
	registry.Unregister("missing")

	if registry.Count() != 0 {
		t.Errorf("expected count 0, got %d", registry.Count())
	}
	if _, ok := registry.LookupClass("x/One"); ok {
		t.Error("class index not cleared")
	}
	if err := registry.Register(testBundle("b", "x/One")); err != nil {
		t.Errorf("class should be free after unregister: %v", err)
	}
}
