package wasm

import (
	"context"
	"errors"

	"github.com/tetratelabs/wazero/api"

	"github.com/woxQAQ/jniproxy/internal/dispatch"
)

// Allocator export names a guest must provide for entries that hand memory
// back to it (GetStringChars).
const (
	mallocExport = "malloc"
	freeExport   = "free"
)

// Memory provides bounds-checked access to one guest's linear memory and
// allocates in it through the guest's own malloc/free.
type Memory struct {
	module api.Module
	mem    api.Memory
}

// NewMemory creates a memory helper.
func NewMemory(module api.Module) *Memory {
	return &Memory{module: module, mem: module.Memory()}
}

// View returns the raw guest memory.
func (m *Memory) View() api.Memory {
	return m.mem
}

// ReadString reads a NUL-terminated string of at most maxLen bytes.
func (m *Memory) ReadString(ptr uint32, maxLen uint32) (string, bool) {
	if m.mem == nil {
		return "", false
	}
	size := m.mem.Size()
	if ptr >= size {
		return "", false
	}
	maxLen = min(maxLen, size-ptr)
	buf, ok := m.mem.Read(ptr, maxLen)
	if !ok {
		return "", false
	}

	end := len(buf)
	for i, b := range buf {
		if b == 0 {
			end = i
			break
		}
	}
	return string(buf[:end]), true
}

// ReadBytes reads raw bytes from guest memory.
func (m *Memory) ReadBytes(ptr uint32, length uint32) ([]byte, bool) {
	if m.mem == nil {
		return nil, false
	}
	return m.mem.Read(ptr, length)
}

// Alloc reserves size bytes by calling the guest's exported malloc.
func (m *Memory) Alloc(ctx context.Context, size uint32) (uint32, error) {
	fn := m.module.ExportedFunction(mallocExport)
	if fn == nil {
		return 0, &FunctionNotFoundError{ModuleName: m.module.Name(), FunctionName: mallocExport}
	}
	res, err := fn.Call(ctx, api.EncodeU32(size))
	if err != nil {
		return 0, &MemoryAccessError{Operation: "alloc", Length: size, Err: err}
	}
	addr := api.DecodeU32(res[0])
	if addr == 0 {
		return 0, &MemoryAccessError{Operation: "alloc", Length: size, Err: errors.New("guest malloc returned null")}
	}
	return addr, nil
}

// Free releases memory obtained from Alloc.
func (m *Memory) Free(ctx context.Context, ptr uint32) error {
	fn := m.module.ExportedFunction(freeExport)
	if fn == nil {
		return &FunctionNotFoundError{ModuleName: m.module.Name(), FunctionName: freeExport}
	}
	if _, err := fn.Call(ctx, api.EncodeU32(ptr)); err != nil {
		return &MemoryAccessError{Operation: "free", Address: ptr, Err: err}
	}
	return nil
}

// frame adapts one host call to dispatch.Frame: the parameters are the
// leading words of the wazero stack.
type frame struct {
	stack []uint64
	mem   *Memory
}

var _ dispatch.Frame = (*frame)(nil)

func (f *frame) Word(i int) uint64 {
	if i >= len(f.stack) {
		return 0
	}
	return f.stack[i]
}

func (f *frame) Memory() dispatch.Memory {
	return f.mem.mem
}

func (f *frame) Alloc(ctx context.Context, size uint32) (uint32, error) {
	return f.mem.Alloc(ctx, size)
}

func (f *frame) Free(ctx context.Context, ptr uint32) error {
	return f.mem.Free(ctx, ptr)
}
