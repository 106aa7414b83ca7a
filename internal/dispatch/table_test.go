package dispatch

import (
	"testing"

	"github.com/tetratelabs/wazero/api"

	"github.com/woxQAQ/jniproxy/internal/invoke"
	"github.com/woxQAQ/jniproxy/pkg/jni"
)

func TestTableLayout(t *testing.T) {
	table := Default()
	if table.Len() != 220 {
		t.Fatalf("expected 220 slots, got %d", table.Len())
	}

	// Slot numbers of the JNI 1.2 function table.
	slots := map[string]int{
		"GetVersion":                 4,
		"DefineClass":                5,
		"FindClass":                  6,
		"GetSuperclass":              10,
		"Throw":                      13,
		"FatalError":                 18,
		"NewGlobalRef":               21,
		"AllocObject":                27,
		"NewObject":                  28,
		"NewObjectA":                 30,
		"GetMethodID":                33,
		"CallObjectMethod":           34,
		"CallIntMethodV":             50,
		"CallVoidMethodA":            63,
		"CallNonvirtualObjectMethod": 64,
		"CallNonvirtualVoidMethodA":  93,
		"GetFieldID":                 94,
		"GetObjectField":             95,
		"GetDoubleField":             103,
		"SetObjectField":             104,
		"SetDoubleField":             112,
		"GetStaticMethodID":          113,
		"CallStaticObjectMethod":     114,
		"CallStaticVoidMethodA":      143,
		"GetStaticFieldID":           144,
		"GetStaticObjectField":       145,
		"SetStaticDoubleField":       162,
		"NewString":                  163,
		"ReleaseStringChars":         166,
		"NewStringUTF":               167,
		"GetArrayLength":             171,
		"NewBooleanArray":            175,
		"SetDoubleArrayRegion":       214,
		"RegisterNatives":            215,
		"MonitorEnter":               217,
		"GetJavaVM":                  219,
	}
	for name, want := range slots {
		e, ok := table.Lookup(name)
		if !ok {
			t.Errorf("%s: not in table", name)
			continue
		}
		if e.Index != want {
			t.Errorf("%s: got slot %d, want %d", name, e.Index, want)
		}
		if byIndex, _ := table.Slot(want); byIndex != e {
			t.Errorf("%s: Slot(%d) returned a different entry", name, want)
		}
	}

	for _, i := range []int{0, 1, 2, 3, 7, 8, 9, 12, 19, 20, 25, 26} {
		e, _ := table.Slot(i)
		if !e.Reserved() || e.Implemented() {
			t.Errorf("slot %d: expected reserved, got %q", i, e.Name)
		}
	}

	implemented := 0
	table.Each(func(e *Entry) bool {
		if e.Implemented() {
			implemented++
		}
		return true
	})
	if implemented != 155 {
		t.Errorf("expected 155 implemented entries, got %d", implemented)
	}

	if e, _ := table.Lookup("MonitorEnter"); e.Implemented() {
		t.Error("MonitorEnter must not be implemented")
	}
	if _, ok := table.Slot(220); ok {
		t.Error("expected Slot(220) to be out of range")
	}
}

func TestEntrySignatures(t *testing.T) {
	i32, i64, f32, f64 := api.ValueTypeI32, api.ValueTypeI64, api.ValueTypeF32, api.ValueTypeF64
	tests := []struct {
		name    string
		op      Op
		binding invoke.BindingKind
		conv    Convention
		ret     jni.TypeTag
		params  []api.ValueType
		results []api.ValueType
	}{
		{"CallIntMethod", OpCall, invoke.Virtual, Variadic, jni.Int, []api.ValueType{i32, i32, i32}, []api.ValueType{i32}},
		{"CallNonvirtualLongMethodV", OpCall, invoke.Nonvirtual, VaList, jni.Long, []api.ValueType{i32, i32, i32, i32}, []api.ValueType{i64}},
		{"CallStaticVoidMethodA", OpCall, invoke.Static, Array, jni.Void, []api.ValueType{i32, i32, i32}, nil},
		{"NewObjectV", OpNewObject, invoke.Virtual, VaList, jni.Object, []api.ValueType{i32, i32, i32}, []api.ValueType{i32}},
		{"GetStaticFloatField", OpGetField, invoke.Static, Variadic, jni.Float, []api.ValueType{i32, i32}, []api.ValueType{f32}},
		{"SetDoubleField", OpSetField, invoke.Virtual, Variadic, jni.Double, []api.ValueType{i32, i32, f64}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, ok := Default().Lookup(tt.name)
			if !ok {
				t.Fatalf("%s not found", tt.name)
			}
			if e.Op != tt.op || e.Binding != tt.binding || e.Convention != tt.conv || e.Return != tt.ret {
				t.Errorf("got %s/%s/%s/%s, want %s/%s/%s/%s",
					e.Op, e.Binding, e.Convention, e.Return, tt.op, tt.binding, tt.conv, tt.ret)
			}
			if !sameTypes(e.Params, tt.params) {
				t.Errorf("params: got %v, want %v", e.Params, tt.params)
			}
			if !sameTypes(e.Results, tt.results) {
				t.Errorf("results: got %v, want %v", e.Results, tt.results)
			}
		})
	}
}

func sameTypes(a, b []api.ValueType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestBuilderRejectsDuplicates(t *testing.T) {
	_, err := NewBuilder().
		Families(OpGetField, invoke.Virtual, jni.Int).
		Families(OpGetField, invoke.Virtual, jni.Int).
		Build()
	if err == nil {
		t.Fatal("expected duplicate entry error, got nil")
	}
}

func TestEncode(t *testing.T) {
	tests := []struct {
		tag  jni.TypeTag
		v    jni.Value
		want uint64
	}{
		{jni.Boolean, jni.Value(0x100), 0},
		{jni.Boolean, jni.BooleanValue(true), 1},
		{jni.Byte, jni.ByteValue(-1), 0xffffffff},
		{jni.Char, jni.CharValue(0xffff), 0xffff},
		{jni.Short, jni.ShortValue(-2), 0xfffffffe},
		{jni.Int, jni.IntValue(-3), 0xfffffffd},
		{jni.Long, jni.LongValue(-4), 0xfffffffffffffffc},
		{jni.Object, jni.RefValue(9), 9},
		{jni.Float, jni.FloatValue(1), 0x3f800000},
		{jni.Double, jni.DoubleValue(1), 0x3ff0000000000000},
		{jni.Void, jni.IntValue(5), 0},
	}
	for _, tt := range tests {
		if got := Encode(tt.tag, tt.v); got != tt.want {
			t.Errorf("Encode(%s, %#x): got %#x, want %#x", tt.tag, uint64(tt.v), got, tt.want)
		}
	}
}
