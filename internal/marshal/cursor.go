package marshal

import (
	"fmt"

	"github.com/woxQAQ/jniproxy/pkg/jni"
)

// Cursor walks a variadic argument list. Each method pulls one argument
// using the width the C default argument promotions give it: boolean, byte,
// char, short and int travel as int; long as a 64-bit integer; float and
// double as double; objects as a reference.
type Cursor interface {
	NextInt() (int32, error)
	NextLong() (int64, error)
	NextDouble() (float64, error)
	NextRef() (jni.Ref, error)
}

// next pulls the argument for tag t from c and stores it at the width of t.
func next(c Cursor, t jni.TypeTag) (jni.Value, error) {
	switch t {
	case jni.Object:
		r, err := c.NextRef()
		return jni.RefValue(r), err
	case jni.Boolean:
		i, err := c.NextInt()
		return jni.Value(uint8(i)), err
	case jni.Byte:
		i, err := c.NextInt()
		return jni.ByteValue(int8(i)), err
	case jni.Char:
		i, err := c.NextInt()
		return jni.CharValue(uint16(i)), err
	case jni.Short:
		i, err := c.NextInt()
		return jni.ShortValue(int16(i)), err
	case jni.Int:
		i, err := c.NextInt()
		return jni.IntValue(i), err
	case jni.Long:
		l, err := c.NextLong()
		return jni.LongValue(l), err
	case jni.Float:
		d, err := c.NextDouble()
		return jni.FloatValue(float32(d)), err
	case jni.Double:
		d, err := c.NextDouble()
		return jni.DoubleValue(d), err
	}
	// Void arguments come from malformed descriptors and consume nothing.
	return jni.Zero, nil
}

// goCursor reads a Go variadic argument list.
type goCursor struct {
	args []any
	pos  int
}

// NewGoCursor returns a Cursor over Go values. Integer slots accept any Go
// integer type, bool, or jni.Value; floating slots accept float32 or float64;
// object slots accept jni.Ref or nil.
func NewGoCursor(args ...any) Cursor {
	return &goCursor{args: args}
}

func (c *goCursor) pull() (any, error) {
	if c.pos >= len(c.args) {
		return nil, fmt.Errorf("missing argument (have %d)", len(c.args))
	}
	v := c.args[c.pos]
	c.pos++
	return v, nil
}

func (c *goCursor) NextInt() (int32, error) {
	v, err := c.pull()
	if err != nil {
		return 0, err
	}
	i, ok := toInt64(v)
	if !ok {
		return 0, fmt.Errorf("cannot promote %T to int", v)
	}
	return int32(i), nil
}

func (c *goCursor) NextLong() (int64, error) {
	v, err := c.pull()
	if err != nil {
		return 0, err
	}
	i, ok := toInt64(v)
	if !ok {
		return 0, fmt.Errorf("cannot read %T as long", v)
	}
	return i, nil
}

func (c *goCursor) NextDouble() (float64, error) {
	v, err := c.pull()
	if err != nil {
		return 0, err
	}
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case jni.Value:
		return x.Double(), nil
	}
	return 0, fmt.Errorf("cannot promote %T to double", v)
}

func (c *goCursor) NextRef() (jni.Ref, error) {
	v, err := c.pull()
	if err != nil {
		return jni.NullRef, err
	}
	switch x := v.(type) {
	case nil:
		return jni.NullRef, nil
	case jni.Ref:
		return x, nil
	case jni.Value:
		return x.Ref(), nil
	}
	return jni.NullRef, fmt.Errorf("cannot read %T as object reference", v)
}

func toInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	case int:
		return int64(x), true
	case int8:
		return int64(x), true
	case int16:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case uint:
		return int64(x), true
	case uint8:
		return int64(x), true
	case uint16:
		return int64(x), true
	case uint32:
		return int64(x), true
	case uint64:
		return int64(x), true
	case jni.Value:
		return int64(x), true
	}
	return 0, false
}

// addressSpace is the size of a wasm32 address space.
const addressSpace = 1 << 32

// Memory is the part of wazero's api.Memory the marshaller reads from.
type Memory interface {
	ReadUint32Le(offset uint32) (uint32, bool)
	ReadUint64Le(offset uint32) (uint64, bool)
	ReadFloat64Le(offset uint32) (float64, bool)
}

// memCursor reads a wasm32 va_list: a pointer to a save area where every
// argument sits at its natural alignment. Int-class and reference arguments
// take 4 bytes; long and double take 8 bytes aligned to 8. The position is
// kept in 64 bits so a save area running off the 32-bit address space fails
// instead of wrapping to address 0.
type memCursor struct {
	mem Memory
	pos uint64
}

// NewMemoryCursor returns a Cursor over the va_list save area at ptr.
func NewMemoryCursor(mem Memory, ptr uint32) Cursor {
	return &memCursor{mem: mem, pos: uint64(ptr)}
}

// take aligns the cursor to n, returns the address of the next n-byte slot
// and advances past it.
func (c *memCursor) take(n uint64) (uint32, error) {
	start := (c.pos + n - 1) &^ (n - 1)
	if start+n > addressSpace {
		return 0, &MemoryAccessError{Address: uint32(min(c.pos, addressSpace-1)), Length: uint32(n)}
	}
	c.pos = start + n
	return uint32(start), nil
}

func (c *memCursor) NextInt() (int32, error) {
	addr, err := c.take(4)
	if err != nil {
		return 0, err
	}
	v, ok := c.mem.ReadUint32Le(addr)
	if !ok {
		return 0, &MemoryAccessError{Address: addr, Length: 4}
	}
	return int32(v), nil
}

func (c *memCursor) NextLong() (int64, error) {
	addr, err := c.take(8)
	if err != nil {
		return 0, err
	}
	v, ok := c.mem.ReadUint64Le(addr)
	if !ok {
		return 0, &MemoryAccessError{Address: addr, Length: 8}
	}
	return int64(v), nil
}

func (c *memCursor) NextDouble() (float64, error) {
	addr, err := c.take(8)
	if err != nil {
		return 0, err
	}
	v, ok := c.mem.ReadFloat64Le(addr)
	if !ok {
		return 0, &MemoryAccessError{Address: addr, Length: 8}
	}
	return v, nil
}

func (c *memCursor) NextRef() (jni.Ref, error) {
	addr, err := c.take(4)
	if err != nil {
		return jni.NullRef, err
	}
	v, ok := c.mem.ReadUint32Le(addr)
	if !ok {
		return jni.NullRef, &MemoryAccessError{Address: addr, Length: 4}
	}
	return jni.Ref(v), nil
}
