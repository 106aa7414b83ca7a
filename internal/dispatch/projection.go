package dispatch

import (
	"github.com/tetratelabs/wazero/api"

	"github.com/woxQAQ/jniproxy/pkg/jni"
)

// ValueType returns the wasm value type a value of type t travels as.
// Void has no value type and reports ok == false.
func ValueType(t jni.TypeTag) (vt api.ValueType, ok bool) {
	switch t {
	case jni.Long:
		return api.ValueTypeI64, true
	case jni.Float:
		return api.ValueTypeF32, true
	case jni.Double:
		return api.ValueTypeF64, true
	case jni.Void:
		return 0, false
	}
	return api.ValueTypeI32, true
}

func resultTypes(t jni.TypeTag) []api.ValueType {
	if vt, ok := ValueType(t); ok {
		return []api.ValueType{vt}
	}
	return nil
}

// Encode projects v, read as type t, onto a wasm stack word. Signed narrow
// types are sign-extended to i32 the way a C compiler widens a return value.
func Encode(t jni.TypeTag, v jni.Value) uint64 {
	switch t {
	case jni.Boolean:
		if v.Boolean() {
			return 1
		}
		return 0
	case jni.Byte:
		return api.EncodeI32(int32(v.Byte()))
	case jni.Char:
		return api.EncodeU32(uint32(v.Char()))
	case jni.Short:
		return api.EncodeI32(int32(v.Short()))
	case jni.Int:
		return api.EncodeI32(v.Int())
	case jni.Object:
		return api.EncodeU32(uint32(v.Ref()))
	case jni.Long:
		return api.EncodeI64(v.Long())
	case jni.Float:
		return api.EncodeF32(v.Float())
	case jni.Double:
		return api.EncodeF64(v.Double())
	}
	return 0
}

// Decode reads a wasm stack word carrying a value of type t.
func Decode(t jni.TypeTag, word uint64) jni.Value {
	return jni.Value(word).Narrow(t)
}
