//go:build wasip1

package wasm

// Guest-side bindings for Go programs built with GOOS=wasip1. Pointers and
// lengths are uint32 because wasm32 linear memory is 32-bit. References and
// member IDs are opaque uint32 handles; 0 is null and also signals failure.

import "unsafe"

//go:wasmimport jni GetVersion
func GetVersion() int32

//go:wasmimport jni FindClass
func findClass(name unsafe.Pointer) uint32

//go:wasmimport jni GetMethodID
func getMethodID(class uint32, name, sig unsafe.Pointer) uint32

//go:wasmimport jni GetStaticMethodID
func getStaticMethodID(class uint32, name, sig unsafe.Pointer) uint32

//go:wasmimport jni GetFieldID
func getFieldID(class uint32, name, sig unsafe.Pointer) uint32

//go:wasmimport jni GetStaticFieldID
func getStaticFieldID(class uint32, name, sig unsafe.Pointer) uint32

//go:wasmimport jni NewObjectA
func newObjectA(class, method uint32, args unsafe.Pointer) uint32

//go:wasmimport jni CallIntMethodA
func callIntMethodA(obj, method uint32, args unsafe.Pointer) int32

//go:wasmimport jni CallDoubleMethodA
func callDoubleMethodA(obj, method uint32, args unsafe.Pointer) float64

//go:wasmimport jni CallVoidMethodA
func callVoidMethodA(obj, method uint32, args unsafe.Pointer)

//go:wasmimport jni CallStaticIntMethodA
func callStaticIntMethodA(class, method uint32, args unsafe.Pointer) int32

//go:wasmimport jni GetIntField
func GetIntField(obj, field uint32) int32

//go:wasmimport jni SetIntField
func SetIntField(obj, field uint32, v int32)

//go:wasmimport jni GetDoubleField
func GetDoubleField(obj, field uint32) float64

//go:wasmimport jni SetDoubleField
func SetDoubleField(obj, field uint32, v float64)

//go:wasmimport jni ExceptionOccurred
func ExceptionOccurred() uint32

//go:wasmimport jni ExceptionClear
func ExceptionClear()

//go:wasmimport jni DeleteLocalRef
func DeleteLocalRef(obj uint32)

//go:wasmimport host log_message
func logMessage(level, ptr, length uint32)

// cstring returns a NUL-terminated copy of s.
func cstring(s string) *byte {
	b := make([]byte, len(s)+1)
	copy(b, s)
	return &b[0]
}

func argv(args []uint64) unsafe.Pointer {
	if len(args) == 0 {
		return nil
	}
	return unsafe.Pointer(&args[0])
}

// FindClass looks up a class by its slash-separated name.
func FindClass(name string) uint32 {
	return findClass(unsafe.Pointer(cstring(name)))
}

func GetMethodID(class uint32, name, sig string) uint32 {
	return getMethodID(class, unsafe.Pointer(cstring(name)), unsafe.Pointer(cstring(sig)))
}

func GetStaticMethodID(class uint32, name, sig string) uint32 {
	return getStaticMethodID(class, unsafe.Pointer(cstring(name)), unsafe.Pointer(cstring(sig)))
}

func GetFieldID(class uint32, name, sig string) uint32 {
	return getFieldID(class, unsafe.Pointer(cstring(name)), unsafe.Pointer(cstring(sig)))
}

func GetStaticFieldID(class uint32, name, sig string) uint32 {
	return getStaticFieldID(class, unsafe.Pointer(cstring(name)), unsafe.Pointer(cstring(sig)))
}

// NewObject constructs an instance. Arguments are jvalue words: integers
// sign-extended, a float as math.Float32bits in the low half, a double as
// math.Float64bits, references as their handle.
func NewObject(class, ctor uint32, args ...uint64) uint32 {
	return newObjectA(class, ctor, argv(args))
}

func CallIntMethod(obj, method uint32, args ...uint64) int32 {
	return callIntMethodA(obj, method, argv(args))
}

func CallDoubleMethod(obj, method uint32, args ...uint64) float64 {
	return callDoubleMethodA(obj, method, argv(args))
}

func CallVoidMethod(obj, method uint32, args ...uint64) {
	callVoidMethodA(obj, method, argv(args))
}

func CallStaticIntMethod(class, method uint32, args ...uint64) int32 {
	return callStaticIntMethodA(class, method, argv(args))
}

// Log writes msg through the host logger.
func Log(level LogLevel, msg string) {
	if len(msg) == 0 {
		return
	}
	b := []byte(msg)
	logMessage(uint32(level), uint32(uintptr(unsafe.Pointer(&b[0]))), uint32(len(b)))
}
