package secure

import (
	"context"

	"github.com/woxQAQ/jniproxy/pkg/jni"
)

// MethodID is the backing environment's own handle for a resolved method.
// The proxy never interprets it.
type MethodID uint64

// FieldID is the backing environment's own handle for a resolved field.
type FieldID uint64

// Env is the capability interface of the secure backing environment.
// The proxy forwards every JNI operation to it. Each operation reports a
// status through its error result and the proxy only branches on success or
// failure.
type Env interface {
	// Version and class loading
	GetVersion(ctx context.Context) (int32, error)
	DefineClass(ctx context.Context, name string, loader jni.Ref, buf []byte) (jni.Ref, error)
	FindClass(ctx context.Context, name string) (jni.Ref, error)
	GetSuperclass(ctx context.Context, sub jni.Ref) (jni.Ref, error)
	IsAssignableFrom(ctx context.Context, sub, sup jni.Ref) (bool, error)

	// Exceptions
	Throw(ctx context.Context, obj jni.Ref) (int32, error)
	ThrowNew(ctx context.Context, class jni.Ref, msg string) (int32, error)
	ExceptionOccurred(ctx context.Context) (jni.Ref, error)
	ExceptionDescribe(ctx context.Context) error
	ExceptionClear(ctx context.Context) error
	FatalError(ctx context.Context, msg string) error

	// References
	NewGlobalRef(ctx context.Context, obj jni.Ref) (jni.Ref, error)
	DeleteGlobalRef(ctx context.Context, ref jni.Ref) error
	DeleteLocalRef(ctx context.Context, obj jni.Ref) error
	IsSameObject(ctx context.Context, a, b jni.Ref) (bool, error)

	// Objects
	AllocObject(ctx context.Context, class jni.Ref) (jni.Ref, error)
	NewObject(ctx context.Context, class jni.Ref, method MethodID, args []jni.Value) (jni.Ref, error)
	GetObjectClass(ctx context.Context, obj jni.Ref) (jni.Ref, error)
	IsInstanceOf(ctx context.Context, obj, class jni.Ref) (bool, error)

	// Instance members
	GetMethodID(ctx context.Context, class jni.Ref, name, sig string) (MethodID, error)
	CallMethod(ctx context.Context, ret jni.TypeTag, obj jni.Ref, method MethodID, args []jni.Value) (jni.Value, error)
	CallNonvirtualMethod(ctx context.Context, ret jni.TypeTag, obj, class jni.Ref, method MethodID, args []jni.Value) (jni.Value, error)
	GetFieldID(ctx context.Context, class jni.Ref, name, sig string) (FieldID, error)
	GetField(ctx context.Context, typ jni.TypeTag, obj jni.Ref, field FieldID) (jni.Value, error)
	SetField(ctx context.Context, typ jni.TypeTag, obj jni.Ref, field FieldID, value jni.Value) error

	// Static members
	GetStaticMethodID(ctx context.Context, class jni.Ref, name, sig string) (MethodID, error)
	CallStaticMethod(ctx context.Context, ret jni.TypeTag, class jni.Ref, method MethodID, args []jni.Value) (jni.Value, error)
	GetStaticFieldID(ctx context.Context, class jni.Ref, name, sig string) (FieldID, error)
	GetStaticField(ctx context.Context, typ jni.TypeTag, class jni.Ref, field FieldID) (jni.Value, error)
	SetStaticField(ctx context.Context, typ jni.TypeTag, class jni.Ref, field FieldID, value jni.Value) error

	// Strings (UTF-16 code units)
	NewString(ctx context.Context, chars []uint16) (jni.Ref, error)
	GetStringLength(ctx context.Context, str jni.Ref) (int32, error)
	GetStringChars(ctx context.Context, str jni.Ref) (chars []uint16, isCopy bool, err error)
	ReleaseStringChars(ctx context.Context, str jni.Ref, chars []uint16) error
}
