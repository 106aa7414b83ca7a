package member

import (
	"errors"
	"sync"
	"testing"

	"github.com/woxQAQ/jniproxy/api/secure"
	"github.com/woxQAQ/jniproxy/pkg/jni"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func TestCache_ResolveMethod(t *testing.T) {
	cache := NewCache(0, zaptest.NewLogger(t))

	rec, err := cache.ResolveMethod(secure.MethodID(100), "add", "(III)I", false)
	if err != nil {
		t.Fatalf("ResolveMethod() failed: %v", err)
	}

	if rec.Name() != "add" {
		t.Errorf("expected name 'add', got '%s'", rec.Name())
	}
	if rec.Descriptor() != "(III)I" {
		t.Errorf("expected descriptor '(III)I', got '%s'", rec.Descriptor())
	}
	if rec.Signature.Arity() != 3 || rec.Return() != jni.Int {
		t.Errorf("unexpected signature %v", rec.Signature)
	}
	if rec.Native != 100 {
		t.Errorf("expected native handle 100, got %d", rec.Native)
	}
	if rec.Handle().IsNull() {
		t.Error("record handle should not be null")
	}
	if rec.Static() {
		t.Error("record should not be static")
	}
}

func TestCache_IdentityStable(t *testing.T) {
	cache := NewCache(0, zap.NewNop())

	first, err := cache.ResolveMethod(secure.MethodID(7), "run", "()V", false)
	if err != nil {
		t.Fatal(err)
	}
	second, err := cache.ResolveMethod(secure.MethodID(7), "run", "()V", false)
	if err != nil {
		t.Fatal(err)
	}

	if first != second {
		t.Error("resolving the same member twice should return the same record instance")
	}
	if cache.Len() != 1 {
		t.Errorf("expected 1 record, got %d", cache.Len())
	}
}

func TestCache_IdentityWinsOverMismatch(t *testing.T) {
	cache := NewCache(0, zap.NewNop())

	first, _ := cache.ResolveMethod(secure.MethodID(7), "run", "()V", false)
	second, _ := cache.ResolveMethod(secure.MethodID(7), "other", "(I)I", false)

	if first != second {
		t.Fatal("cached record should be returned regardless of name/descriptor")
	}
	if second.Name() != "run" {
		t.Errorf("expected cached name 'run', got '%s'", second.Name())
	}
}

func TestCache_MethodAndFieldNamespaces(t *testing.T) {
	cache := NewCache(0, zap.NewNop())

	m, _ := cache.ResolveMethod(secure.MethodID(1), "m", "()V", false)
	f, _ := cache.ResolveField(secure.FieldID(1), "f", "D", false)

	if m.Handle() == f.Handle() {
		t.Error("method and field with the same native ID must get distinct records")
	}
	if f.Type != jni.Double {
		t.Errorf("expected field type double, got %s", f.Type)
	}

	if _, err := cache.Field(m.Handle()); err == nil {
		t.Error("Field() should reject a method handle")
	}
	if _, err := cache.Method(f.Handle()); err == nil {
		t.Error("Method() should reject a field handle")
	}
}

func TestCache_Lookup(t *testing.T) {
	cache := NewCache(0, zap.NewNop())
	rec, _ := cache.ResolveField(secure.FieldID(3), "count", "I", true)

	got, err := cache.Field(rec.Handle())
	if err != nil {
		t.Fatalf("Field() failed: %v", err)
	}
	if got != rec {
		t.Error("Field() should return the resolved record")
	}
	if !got.Static() {
		t.Error("expected static field record")
	}
}

func TestCache_InvalidHandles(t *testing.T) {
	cache := NewCache(0, zap.NewNop())
	other := NewCache(0, zap.NewNop())

	rec, _ := cache.ResolveMethod(secure.MethodID(1), "m", "()V", false)
	foreign, _ := other.ResolveMethod(secure.MethodID(1), "m", "()V", false)

	tests := []struct {
		name   string
		handle Handle
	}{
		{"null", NullHandle},
		{"foreign generation", foreign.Handle()},
		{"slot out of range", makeHandle(cache.gen, 10)},
		{"zero slot", makeHandle(cache.gen, -1)},
		{"generation only", Handle(uint32(cache.gen) << slotBits)},
		{"raw integer", Handle(1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := cache.Method(tt.handle)
			if err == nil {
				t.Fatal("Method() should fail")
			}
			var invalid *InvalidHandleError
			if !errors.As(err, &invalid) {
				t.Errorf("expected InvalidHandleError, got %T", err)
			}
		})
	}

	if _, err := cache.Method(rec.Handle()); err != nil {
		t.Errorf("valid handle rejected: %v", err)
	}
}

func TestCache_NameIsCopied(t *testing.T) {
	cache := NewCache(0, zap.NewNop())

	buf := []byte("value")
	name := string(buf)
	rec, _ := cache.ResolveField(secure.FieldID(9), name, "J", false)
	buf[0] = 'X'

	if rec.Name() != "value" {
		t.Errorf("record name changed with its source: %s", rec.Name())
	}
}

func TestCache_ConcurrentResolution(t *testing.T) {
	cache := NewCache(0, zap.NewNop())

	const workers = 64
	const members = 32

	start := make(chan struct{})
	results := make([][]*MethodRecord, workers)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			<-start
			recs := make([]*MethodRecord, members)
			for i := 0; i < members; i++ {
				rec, err := cache.ResolveMethod(secure.MethodID(i), "m", "()V", false)
				if err != nil {
					t.Errorf("ResolveMethod() failed: %v", err)
					return
				}
				recs[i] = rec
			}
			results[w] = recs
		}(w)
	}

	close(start)
	wg.Wait()

	if cache.Len() != members {
		t.Fatalf("expected %d records, got %d", members, cache.Len())
	}
	for w := 1; w < workers; w++ {
		for i := 0; i < members; i++ {
			if results[w][i] != results[0][i] {
				t.Fatalf("worker %d got a distinct record for member %d", w, i)
			}
		}
	}
}

func TestCache_Each(t *testing.T) {
	cache := NewCache(0, zap.NewNop())
	cache.ResolveMethod(secure.MethodID(1), "a", "()V", false)
	cache.ResolveField(secure.FieldID(2), "b", "I", false)
	cache.ResolveMethod(secure.MethodID(3), "c", "()V", true)

	var names []string
	cache.Each(func(r Record) bool {
		names = append(names, r.Name())
		return len(names) < 2
	})

	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Errorf("unexpected iteration order: %v", names)
	}
}
