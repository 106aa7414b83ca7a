package dispatch

import (
	"sync"

	"github.com/tetratelabs/wazero/api"

	"github.com/woxQAQ/jniproxy/internal/invoke"
	"github.com/woxQAQ/jniproxy/pkg/jni"
)

var (
	none = []api.ValueType{}
	one  = []api.ValueType{i32}
	two  = []api.ValueType{i32, i32}
	tri  = []api.ValueType{i32, i32, i32}
	four = []api.ValueType{i32, i32, i32, i32}

	// fieldTags are the return specializations of field accessors.
	fieldTags = jni.Tags[:len(jni.Tags)-1]
)

// unimplementedTail lists the named slots after ReleaseStringChars that
// exist for layout only.
func unimplementedTail() []string {
	names := []string{
		"NewStringUTF", "GetStringUTFLength", "GetStringUTFChars", "ReleaseStringUTFChars",
		"GetArrayLength",
		"NewObjectArray", "GetObjectArrayElement", "SetObjectArrayElement",
	}
	prims := fieldTags[1:]
	for _, pattern := range [][2]string{
		{"New", "Array"},
		{"Get", "ArrayElements"},
		{"Release", "ArrayElements"},
		{"Get", "ArrayRegion"},
		{"Set", "ArrayRegion"},
	} {
		for _, t := range prims {
			names = append(names, pattern[0]+t.Title()+pattern[1])
		}
	}
	return append(names,
		"RegisterNatives", "UnregisterNatives",
		"MonitorEnter", "MonitorExit",
		"GetJavaVM",
	)
}

// Build lays out the full JNI 1.2 function table.
func Build() (*Table, error) {
	b := NewBuilder().
		Reserved(4).
		Func("GetVersion", none, one, getVersion).
		Func("DefineClass", four, one, defineClass).
		Func("FindClass", one, one, findClass).
		Reserved(3).
		Func("GetSuperclass", one, one, getSuperclass).
		Func("IsAssignableFrom", two, one, isAssignableFrom).
		Reserved(1).
		Func("Throw", one, one, throw).
		Func("ThrowNew", two, one, throwNew).
		Func("ExceptionOccurred", none, one, exceptionOccurred).
		Func("ExceptionDescribe", none, none, exceptionDescribe).
		Func("ExceptionClear", none, none, exceptionClear).
		Func("FatalError", one, none, fatalError).
		Reserved(2).
		Func("NewGlobalRef", one, one, newGlobalRef).
		Func("DeleteGlobalRef", one, none, deleteGlobalRef).
		Func("DeleteLocalRef", one, none, deleteLocalRef).
		Func("IsSameObject", two, one, isSameObject).
		Reserved(2).
		Func("AllocObject", one, one, allocObject).
		Family(Family{Op: OpNewObject, Return: jni.Object}).
		Func("GetObjectClass", one, one, getObjectClass).
		Func("IsInstanceOf", two, one, isInstanceOf).
		Func("GetMethodID", tri, one, memberID((*Env).GetMethodID)).
		Families(OpCall, invoke.Virtual, jni.Tags...).
		Families(OpCall, invoke.Nonvirtual, jni.Tags...).
		Func("GetFieldID", tri, one, memberID((*Env).GetFieldID)).
		Families(OpGetField, invoke.Virtual, fieldTags...).
		Families(OpSetField, invoke.Virtual, fieldTags...).
		Func("GetStaticMethodID", tri, one, memberID((*Env).GetStaticMethodID)).
		Families(OpCall, invoke.Static, jni.Tags...).
		Func("GetStaticFieldID", tri, one, memberID((*Env).GetStaticFieldID)).
		Families(OpGetField, invoke.Static, fieldTags...).
		Families(OpSetField, invoke.Static, fieldTags...).
		Func("NewString", two, one, newString).
		Func("GetStringLength", one, one, getStringLength).
		Func("GetStringChars", two, one, getStringChars).
		Func("ReleaseStringChars", two, none, releaseStringChars).
		Unimplemented(unimplementedTail()...)
	return b.Build()
}

var (
	defaultOnce  sync.Once
	defaultTable *Table
)

// Default returns the shared JNI table. The layout is fixed, so it is built
// once per process.
func Default() *Table {
	defaultOnce.Do(func() {
		t, err := Build()
		if err != nil {
			panic("dispatch: " + err.Error())
		}
		defaultTable = t
	})
	return defaultTable
}
