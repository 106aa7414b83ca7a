package jni

import "math"

// Value is the 8-byte jvalue union. It carries no tag of its own: the type is
// fixed by context (a method's return type, a field's type or an argument's
// position in a signature). Narrow members occupy the low bytes, so a Value
// read little-endian from guest memory can be used directly.
type Value uint64

// Zero is the zero value of every type: false, 0, 0.0 and the null reference.
const Zero Value = 0

func BooleanValue(v bool) Value {
	if v {
		return 1
	}
	return 0
}

func ByteValue(v int8) Value      { return Value(uint8(v)) }
func CharValue(v uint16) Value    { return Value(v) }
func ShortValue(v int16) Value    { return Value(uint16(v)) }
func IntValue(v int32) Value      { return Value(uint32(v)) }
func LongValue(v int64) Value     { return Value(uint64(v)) }
func FloatValue(v float32) Value  { return Value(math.Float32bits(v)) }
func DoubleValue(v float64) Value { return Value(math.Float64bits(v)) }
func RefValue(r Ref) Value        { return Value(r) }

func (v Value) Boolean() bool   { return uint8(v) != 0 }
func (v Value) Byte() int8      { return int8(v) }
func (v Value) Char() uint16    { return uint16(v) }
func (v Value) Short() int16    { return int16(v) }
func (v Value) Int() int32      { return int32(v) }
func (v Value) Long() int64     { return int64(v) }
func (v Value) Float() float32  { return math.Float32frombits(uint32(v)) }
func (v Value) Double() float64 { return math.Float64frombits(uint64(v)) }
func (v Value) Ref() Ref        { return Ref(uint32(v)) }

// Narrow keeps only the bytes that belong to a value of type t and clears
// the rest. Values read from a jvalue array in foreign memory may carry
// garbage in the unused high bytes.
func (v Value) Narrow(t TypeTag) Value {
	switch t {
	case Boolean:
		return BooleanValue(v.Boolean())
	case Byte:
		return Value(uint8(v))
	case Char, Short:
		return Value(uint16(v))
	case Int, Float, Object:
		return Value(uint32(v))
	case Long, Double:
		return v
	}
	return Zero
}

// Interface returns the Go value held by v when interpreted as type t.
// Void yields nil.
func (v Value) Interface(t TypeTag) any {
	switch t {
	case Object:
		return v.Ref()
	case Boolean:
		return v.Boolean()
	case Byte:
		return v.Byte()
	case Char:
		return v.Char()
	case Short:
		return v.Short()
	case Int:
		return v.Int()
	case Long:
		return v.Long()
	case Float:
		return v.Float()
	case Double:
		return v.Double()
	}
	return nil
}

// Scalar enumerates the Go types a Value can be projected to.
type Scalar interface {
	~bool | ~int8 | ~uint16 | ~int16 | ~int32 | ~int64 | ~float32 | ~float64 | ~uint32
}

// As projects v onto the Go type T. Ref projects through its uint32 underlying type.
func As[T Scalar](v Value) T {
	var out T
	switch p := any(&out).(type) {
	case *bool:
		*p = v.Boolean()
	case *int8:
		*p = v.Byte()
	case *uint16:
		*p = v.Char()
	case *int16:
		*p = v.Short()
	case *int32:
		*p = v.Int()
	case *int64:
		*p = v.Long()
	case *float32:
		*p = v.Float()
	case *float64:
		*p = v.Double()
	case *Ref:
		*p = v.Ref()
	case *uint32:
		*p = uint32(v)
	}
	return out
}
