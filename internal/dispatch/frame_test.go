package dispatch

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
)

// testMemory is a little-endian byte arena standing in for guest memory.
type testMemory struct {
	buf []byte
}

func newTestMemory(size int) *testMemory {
	return &testMemory{buf: make([]byte, size)}
}

func (m *testMemory) in(off, n uint32) bool {
	return uint64(off)+uint64(n) <= uint64(len(m.buf))
}

func (m *testMemory) Size() uint32 {
	return uint32(len(m.buf))
}

func (m *testMemory) ReadByte(off uint32) (byte, bool) {
	if !m.in(off, 1) {
		return 0, false
	}
	return m.buf[off], true
}

func (m *testMemory) ReadUint32Le(off uint32) (uint32, bool) {
	if !m.in(off, 4) {
		return 0, false
	}
	return binary.LittleEndian.Uint32(m.buf[off:]), true
}

func (m *testMemory) ReadUint64Le(off uint32) (uint64, bool) {
	if !m.in(off, 8) {
		return 0, false
	}
	return binary.LittleEndian.Uint64(m.buf[off:]), true
}

func (m *testMemory) ReadFloat64Le(off uint32) (float64, bool) {
	v, ok := m.ReadUint64Le(off)
	return math.Float64frombits(v), ok
}

func (m *testMemory) Read(off, n uint32) ([]byte, bool) {
	if !m.in(off, n) {
		return nil, false
	}
	return m.buf[off : off+n], true
}

func (m *testMemory) Write(off uint32, v []byte) bool {
	if !m.in(off, uint32(len(v))) {
		return false
	}
	copy(m.buf[off:], v)
	return true
}

func (m *testMemory) WriteByte(off uint32, v byte) bool {
	if !m.in(off, 1) {
		return false
	}
	m.buf[off] = v
	return true
}

func (m *testMemory) putCString(off uint32, s string) uint32 {
	copy(m.buf[off:], s)
	m.buf[off+uint32(len(s))] = 0
	return off
}

func (m *testMemory) putUint32(off, v uint32) {
	binary.LittleEndian.PutUint32(m.buf[off:], v)
}

func (m *testMemory) putUint64(off uint32, v uint64) {
	binary.LittleEndian.PutUint64(m.buf[off:], v)
}

// testFrame hands out memory from a bump allocator starting at heap.
type testFrame struct {
	words []uint64
	mem   *testMemory
	heap  uint32
	freed []uint32
}

func (f *testFrame) Word(i int) uint64 {
	if i >= len(f.words) {
		return 0
	}
	return f.words[i]
}

func (f *testFrame) Memory() Memory {
	return f.mem
}

func (f *testFrame) Alloc(_ context.Context, size uint32) (uint32, error) {
	addr := (f.heap + 7) &^ 7
	if !f.mem.in(addr, size) {
		return 0, fmt.Errorf("out of memory allocating %d bytes", size)
	}
	f.heap = addr + size
	return addr, nil
}

func (f *testFrame) Free(_ context.Context, ptr uint32) error {
	f.freed = append(f.freed, ptr)
	return nil
}

// call runs the named entry with the given parameter words.
func (f *testFrame) call(ctx context.Context, t *Table, env *Env, name string, words ...uint64) uint64 {
	e, ok := t.Lookup(name)
	if !ok || !e.Implemented() {
		panic("no implemented entry " + name)
	}
	f.words = words
	return e.Handler(ctx, env, f)
}
