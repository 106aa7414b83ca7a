package sandbox

import (
	"context"

	"github.com/woxQAQ/jniproxy/api/secure"
	"github.com/woxQAQ/jniproxy/pkg/jni"
)

// ClassDef declares a class. It is the unit of class bundle manifests and of
// the DefineClass buffer.
type ClassDef struct {
	Name    string      `yaml:"name"`
	Super   string      `yaml:"super,omitempty"`
	Fields  []FieldDef  `yaml:"fields,omitempty"`
	Methods []MethodDef `yaml:"methods,omitempty"`
}

// FieldDef declares a field. Value optionally gives a static field its
// initial value in the same syntax as a const implementation.
type FieldDef struct {
	Name       string `yaml:"name"`
	Descriptor string `yaml:"descriptor"`
	Static     bool   `yaml:"static,omitempty"`
	Value      string `yaml:"value,omitempty"`
}

// MethodDef declares a method and names its implementation. Impl is one of
//
//	getter:<field>        return the field
//	setter:<field>        store the first argument into the field
//	const:<value>         return a constant of the declared return type
//	init[:<f1>,<f2>...]   constructor assigning arguments to fields in order
//	func:<name>           a MethodFunc registered with VM.RegisterFunc
type MethodDef struct {
	Name       string `yaml:"name"`
	Descriptor string `yaml:"descriptor"`
	Static     bool   `yaml:"static,omitempty"`
	Impl       string `yaml:"impl"`
}

// MethodFunc implements a method. For instance methods this is the receiver;
// for static methods it is the class reference.
type MethodFunc func(ctx context.Context, vm *VM, this jni.Ref, args []jni.Value) (jni.Value, error)

// Class is a defined class.
type Class struct {
	Name  string
	super *Class
	ref   jni.Ref

	// instance fields, including inherited ones, in slot order
	layout  []*Field
	fields  map[memberKey]*Field
	methods map[memberKey]*Method
	statics []jni.Value
}

type memberKey struct {
	name, descriptor string
	static           bool
}

// Super returns the superclass, or nil for the root class.
func (c *Class) Super() *Class { return c.super }

// Ref returns the permanent reference naming the class.
func (c *Class) Ref() jni.Ref { return c.ref }

// IsSubclassOf reports whether c is sup or extends it.
func (c *Class) IsSubclassOf(sup *Class) bool {
	for k := c; k != nil; k = k.super {
		if k == sup {
			return true
		}
	}
	return false
}

func (c *Class) findField(name, descriptor string, static bool) *Field {
	key := memberKey{name, descriptor, static}
	for k := c; k != nil; k = k.super {
		if f, ok := k.fields[key]; ok {
			return f
		}
	}
	return nil
}

func (c *Class) findMethod(name, descriptor string, static bool) *Method {
	key := memberKey{name, descriptor, static}
	for k := c; k != nil; k = k.super {
		if m, ok := k.methods[key]; ok {
			return m
		}
	}
	return nil
}

// Field is a resolved field.
type Field struct {
	ID         secure.FieldID
	Class      *Class
	Name       string
	Descriptor string
	Type       jni.TypeTag
	Static     bool
	slot       int
}

// Method is a resolved method.
type Method struct {
	ID         secure.MethodID
	Class      *Class
	Name       string
	Descriptor string
	Signature  jni.MethodSignature
	Static     bool
	impl       MethodFunc
}

// Object is an instance on the sandbox heap.
type Object struct {
	class  *Class
	fields []jni.Value
	// chars holds the contents of java/lang/String instances.
	chars []uint16
}

// Class returns the runtime class of o.
func (o *Object) Class() *Class { return o.class }
