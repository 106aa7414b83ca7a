package sandbox

import (
	"github.com/woxQAQ/jniproxy/pkg/jni"
)

type refKind uint8

const (
	localRef refKind = iota + 1
	globalRef
	// classRef entries are created with their class and never dropped.
	classRef
)

type refEntry struct {
	value any
	kind  refKind
	valid bool
}

// refTable maps references to heap values. Dropped slots are reused.
// Callers hold the VM lock.
type refTable struct {
	entries  []refEntry
	freeList []jni.Ref
}

func newRefTable() *refTable {
	return &refTable{
		entries:  make([]refEntry, 0, 64),
		freeList: make([]jni.Ref, 0, 16),
	}
}

func (t *refTable) add(kind refKind, value any) jni.Ref {
	e := refEntry{value: value, kind: kind, valid: true}
	if n := len(t.freeList); n > 0 {
		r := t.freeList[n-1]
		t.freeList = t.freeList[:n-1]
		t.entries[r-1] = e
		return r
	}
	t.entries = append(t.entries, e)
	return jni.Ref(len(t.entries))
}

func (t *refTable) entry(r jni.Ref) (*refEntry, bool) {
	if r.IsNull() || int(r) > len(t.entries) {
		return nil, false
	}
	e := &t.entries[r-1]
	if !e.valid {
		return nil, false
	}
	return e, true
}

func (t *refTable) get(r jni.Ref) (any, bool) {
	e, ok := t.entry(r)
	if !ok {
		return nil, false
	}
	return e.value, true
}

// drop invalidates r if it is of kind want. Class references are never
// dropped and report success.
func (t *refTable) drop(r jni.Ref, want refKind) bool {
	e, ok := t.entry(r)
	if !ok {
		return false
	}
	if e.kind == classRef {
		return true
	}
	if e.kind != want {
		return false
	}
	*e = refEntry{}
	t.freeList = append(t.freeList, r)
	return true
}

func (t *refTable) live() int {
	return len(t.entries) - len(t.freeList)
}
