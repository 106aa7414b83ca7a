package marshal

import (
	"sync"

	"github.com/woxQAQ/jniproxy/pkg/jni"
)

// Source supplies the arguments of one call.
type Source interface {
	fill(sig jni.MethodSignature) (*Args, error)
}

// Args is a typed argument array owned by one call. Release must be called
// on every exit path once the call has returned.
type Args struct {
	values []jni.Value
	pooled *[]jni.Value
}

// Values returns the marshalled arguments in signature order.
func (a *Args) Values() []jni.Value {
	if a == nil {
		return nil
	}
	return a.values
}

// Len returns the number of arguments.
func (a *Args) Len() int {
	return len(a.Values())
}

// Release hands the buffer back to the pool. It is safe to call more than
// once and on a nil Args.
func (a *Args) Release() {
	if a == nil || a.pooled == nil {
		return
	}
	buf := a.pooled
	clear(*buf)
	*buf = (*buf)[:0]
	a.pooled = nil
	a.values = nil
	valuePool.Put(buf)
}

var valuePool = sync.Pool{
	New: func() any {
		buf := make([]jni.Value, 0, 16)
		return &buf
	},
}

func acquire(n int) *Args {
	buf := valuePool.Get().(*[]jni.Value)
	if cap(*buf) < n {
		*buf = make([]jni.Value, n)
	} else {
		*buf = (*buf)[:n]
	}
	return &Args{values: *buf, pooled: buf}
}

// Marshal converts src into a typed argument array for a method with the
// given signature. The caller owns the result and must Release it.
func Marshal(sig jni.MethodSignature, src Source) (*Args, error) {
	if src == nil {
		src = Array(nil)
	}
	return src.fill(sig)
}

type cursorSource struct {
	c Cursor
}

// Variadic marshals a Go variadic argument list.
func Variadic(args ...any) Source {
	return cursorSource{c: NewGoCursor(args...)}
}

// MemoryCursor marshals a wasm32 va_list save area in guest memory.
func MemoryCursor(mem Memory, ptr uint32) Source {
	return cursorSource{c: NewMemoryCursor(mem, ptr)}
}

func (s cursorSource) fill(sig jni.MethodSignature) (*Args, error) {
	args := acquire(len(sig.Args))
	for i, t := range sig.Args {
		v, err := next(s.c, t)
		if err != nil {
			args.Release()
			return nil, &ArgumentError{Index: i, Want: t, Got: "unreadable", Err: err}
		}
		args.values[i] = v
	}
	return args, nil
}

type arraySource []jni.Value

// Array passes a pre-built argument array through without copying.
func Array(values []jni.Value) Source {
	return arraySource(values)
}

func (s arraySource) fill(sig jni.MethodSignature) (*Args, error) {
	if len(s) < len(sig.Args) {
		return nil, &ArgumentError{
			Index: len(s),
			Want:  sig.Args[len(s)],
			Got:   "missing from argument array",
		}
	}
	return &Args{values: s[:len(sig.Args)]}, nil
}

type memArraySource struct {
	mem Memory
	ptr uint32
}

// MemoryArray reads a jvalue array from guest memory. Each element is 8
// bytes and is narrowed to the width of its declared type.
func MemoryArray(mem Memory, ptr uint32) Source {
	return memArraySource{mem: mem, ptr: ptr}
}

func (s memArraySource) fill(sig jni.MethodSignature) (*Args, error) {
	args := acquire(len(sig.Args))
	for i, t := range sig.Args {
		off := uint64(s.ptr) + uint64(i)*8
		addr := uint32(min(off, addressSpace-1))
		raw, ok := uint64(0), off+8 <= addressSpace
		if ok {
			raw, ok = s.mem.ReadUint64Le(addr)
		}
		if !ok {
			args.Release()
			return nil, &ArgumentError{
				Index: i,
				Want:  t,
				Got:   "unreadable",
				Err:   &MemoryAccessError{Address: addr, Length: 8},
			}
		}
		args.values[i] = jni.Value(raw).Narrow(t)
	}
	return args, nil
}
