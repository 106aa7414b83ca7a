package jni

// Core JNI types shared by the proxy, the backing environments and the wasm host.

// TypeTag identifies the Java type of a value, argument, field or return.
type TypeTag uint8

const (
	Object TypeTag = iota
	Boolean
	Byte
	Char
	Short
	Int
	Long
	Float
	Double
	Void
)

// Tags lists every tag in declaration order.
var Tags = []TypeTag{Object, Boolean, Byte, Char, Short, Int, Long, Float, Double, Void}

var tagNames = [...]string{
	Object:  "object",
	Boolean: "boolean",
	Byte:    "byte",
	Char:    "char",
	Short:   "short",
	Int:     "int",
	Long:    "long",
	Float:   "float",
	Double:  "double",
	Void:    "void",
}

var tagDescriptors = [...]byte{
	Object:  'L',
	Boolean: 'Z',
	Byte:    'B',
	Char:    'C',
	Short:   'S',
	Int:     'I',
	Long:    'J',
	Float:   'F',
	Double:  'D',
	Void:    'V',
}

// String returns the Java name of the type.
func (t TypeTag) String() string {
	if int(t) < len(tagNames) {
		return tagNames[t]
	}
	return "unknown"
}

// Descriptor returns the descriptor character for the type.
// Object maps to 'L'; array descriptors are not distinguished.
func (t TypeTag) Descriptor() byte {
	if int(t) < len(tagDescriptors) {
		return tagDescriptors[t]
	}
	return 'V'
}

// Title returns the capitalized type name used in JNI function names
// (CallIntMethod, GetObjectField, ...).
func (t TypeTag) Title() string {
	name := t.String()
	if name == "unknown" {
		return "Void"
	}
	return string(name[0]-'a'+'A') + name[1:]
}

// Ref is an opaque object reference issued by a backing environment.
// The zero Ref is the null reference.
type Ref uint32

// NullRef is the null object reference.
const NullRef Ref = 0

// IsNull reports whether r is the null reference.
func (r Ref) IsNull() bool {
	return r == NullRef
}

// Version constants as returned by GetVersion.
const (
	Version1_1 int32 = 0x00010001
	Version1_2 int32 = 0x00010002
	Version1_4 int32 = 0x00010004
	Version1_6 int32 = 0x00010006
)

// Status codes returned by Throw and ThrowNew.
const (
	OK  int32 = 0
	Err int32 = -1
)
