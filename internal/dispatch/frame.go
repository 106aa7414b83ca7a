package dispatch

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/woxQAQ/jniproxy/internal/marshal"
	"github.com/woxQAQ/jniproxy/pkg/jni"
)

// maxCString bounds the scan for a NUL terminator.
const maxCString = 64 << 10

// Memory is the view of foreign memory an entry reads arguments from and
// writes results to. wazero's api.Memory satisfies it.
type Memory interface {
	marshal.Memory
	ReadByte(offset uint32) (byte, bool)
	Read(offset, byteCount uint32) ([]byte, bool)
	Write(offset uint32, v []byte) bool
	WriteByte(offset uint32, v byte) bool
	// Size is the current size of the memory in bytes.
	Size() uint32
}

// Frame is one native call as seen by an entry: its parameter words and the
// caller's memory.
type Frame interface {
	// Word returns the i-th parameter as a raw stack word.
	Word(i int) uint64
	Memory() Memory
	// Alloc reserves size bytes in the caller's memory.
	Alloc(ctx context.Context, size uint32) (uint32, error)
	// Free releases memory obtained from Alloc.
	Free(ctx context.Context, ptr uint32) error
}

// Handler implements one table entry. The returned word is ignored for
// entries without results.
type Handler func(ctx context.Context, env *Env, f Frame) uint64

func ref(f Frame, i int) jni.Ref {
	return jni.Ref(uint32(f.Word(i)))
}

func ptr(f Frame, i int) uint32 {
	return uint32(f.Word(i))
}

// CString reads the NUL-terminated string addressed by parameter i.
func CString(f Frame, i int) (string, error) {
	p := ptr(f, i)
	if p == 0 {
		return "", fmt.Errorf("parameter %d: null string pointer", i)
	}
	mem := f.Memory()
	for n := uint32(0); n < maxCString; n++ {
		b, ok := mem.ReadByte(p + n)
		if !ok {
			return "", &marshal.MemoryAccessError{Address: p, Length: n + 1}
		}
		if b == 0 {
			buf, _ := mem.Read(p, n)
			return string(buf), nil
		}
	}
	return "", fmt.Errorf("parameter %d: string exceeds %d bytes", i, maxCString)
}

// span checks a buffer of n elements of width bytes at addr against the
// memory size. n is a jsize, so the raw word is read as signed.
func span(mem Memory, addr uint32, word uint64, width uint64) (uint32, error) {
	n := int32(uint32(word))
	if n < 0 {
		return 0, fmt.Errorf("negative length %d", n)
	}
	size := uint64(n) * width
	if uint64(addr)+size > uint64(mem.Size()) {
		return 0, &marshal.MemoryAccessError{Address: addr, Length: uint32(min(size, math.MaxUint32))}
	}
	return uint32(size), nil
}

// Bytes copies the buffer addressed by parameter p with the length in
// parameter n.
func Bytes(f Frame, p, n int) ([]byte, error) {
	addr := ptr(f, p)
	size, err := span(f.Memory(), addr, f.Word(n), 1)
	if err != nil || size == 0 {
		return nil, err
	}
	buf, ok := f.Memory().Read(addr, size)
	if !ok {
		return nil, &marshal.MemoryAccessError{Address: addr, Length: size}
	}
	return append([]byte(nil), buf...), nil
}

// Chars reads a jchar buffer: parameter p points at n UTF-16 code units.
// Code units are copied as-is; unpaired surrogates survive.
func Chars(f Frame, p, n int) ([]uint16, error) {
	addr := ptr(f, p)
	size, err := span(f.Memory(), addr, f.Word(n), 2)
	if err != nil {
		return nil, err
	}
	if size == 0 {
		return []uint16{}, nil
	}
	buf, ok := f.Memory().Read(addr, size)
	if !ok {
		return nil, &marshal.MemoryAccessError{Address: addr, Length: size}
	}
	chars := make([]uint16, size/2)
	for i := range chars {
		chars[i] = binary.LittleEndian.Uint16(buf[i*2:])
	}
	return chars, nil
}

// PutChars copies chars into freshly allocated caller memory and returns the
// address. An empty string still gets a valid, non-null buffer.
func PutChars(ctx context.Context, f Frame, chars []uint16) (uint32, error) {
	if uint64(len(chars))*2 > math.MaxInt32 {
		return 0, fmt.Errorf("%d chars exceed a jsize buffer", len(chars))
	}
	size := uint32(len(chars)) * 2
	addr, err := f.Alloc(ctx, max(size, 2))
	if err != nil {
		return 0, err
	}
	buf := make([]byte, size)
	for i, c := range chars {
		binary.LittleEndian.PutUint16(buf[i*2:], c)
	}
	if !f.Memory().Write(addr, buf) {
		_ = f.Free(ctx, addr)
		return 0, &marshal.MemoryAccessError{Address: addr, Length: size}
	}
	return addr, nil
}

// source builds the argument source for convention c from parameter i.
func source(c Convention, f Frame, i int) marshal.Source {
	if c == Array {
		return marshal.MemoryArray(f.Memory(), ptr(f, i))
	}
	// wasm32 passes both ... and va_list as a pointer to the save area.
	return marshal.MemoryCursor(f.Memory(), ptr(f, i))
}
