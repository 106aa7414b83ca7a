package sandbox

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/woxQAQ/jniproxy/pkg/jni"
)

// compile turns a MethodDef impl string into a MethodFunc. Callers hold the
// VM lock.
func (vm *VM) compile(c *Class, m *Method, spec string) (MethodFunc, error) {
	kind, arg, _ := strings.Cut(spec, ":")
	sig := m.Signature
	switch kind {
	case "getter":
		f, err := accessorField(c, arg, m.Static)
		if err != nil {
			return nil, err
		}
		if sig.Arity() != 0 || sig.Return != f.Type {
			return nil, fmt.Errorf("getter for %s must have descriptor ()%c", f.Name, f.Type.Descriptor())
		}
		return func(_ context.Context, vm *VM, this jni.Ref, _ []jni.Value) (jni.Value, error) {
			vm.mu.RLock()
			defer vm.mu.RUnlock()
			return vm.load(f, this)
		}, nil

	case "setter":
		f, err := accessorField(c, arg, m.Static)
		if err != nil {
			return nil, err
		}
		if sig.Arity() != 1 || sig.Args[0] != f.Type || sig.Return != jni.Void {
			return nil, fmt.Errorf("setter for %s must have descriptor (%c)V", f.Name, f.Type.Descriptor())
		}
		return func(_ context.Context, vm *VM, this jni.Ref, args []jni.Value) (jni.Value, error) {
			vm.mu.Lock()
			defer vm.mu.Unlock()
			return jni.Zero, vm.store(f, this, args[0])
		}, nil

	case "const":
		if sig.Return == jni.Object {
			if arg == "null" {
				return constFunc(jni.Zero), nil
			}
			chars, err := EncodeUTF16(arg)
			if err != nil {
				return nil, err
			}
			return func(_ context.Context, vm *VM, _ jni.Ref, _ []jni.Value) (jni.Value, error) {
				vm.mu.Lock()
				defer vm.mu.Unlock()
				return jni.RefValue(vm.newString(append([]uint16(nil), chars...))), nil
			}, nil
		}
		v, err := vm.constant(sig.Return, arg)
		if err != nil {
			return nil, err
		}
		return constFunc(v), nil

	case "init":
		if m.Name != "<init>" || m.Static || sig.Return != jni.Void {
			return nil, fmt.Errorf("init implementation on non-constructor %s", m.Name)
		}
		var targets []*Field
		if arg != "" {
			for _, name := range strings.Split(arg, ",") {
				f, err := accessorField(c, strings.TrimSpace(name), false)
				if err != nil {
					return nil, err
				}
				targets = append(targets, f)
			}
		}
		if len(targets) != sig.Arity() {
			return nil, fmt.Errorf("constructor takes %d arguments but assigns %d fields", sig.Arity(), len(targets))
		}
		for i, f := range targets {
			if sig.Args[i] != f.Type {
				return nil, fmt.Errorf("argument %d is %s but field %s is %s", i, sig.Args[i], f.Name, f.Type)
			}
		}
		return func(_ context.Context, vm *VM, this jni.Ref, args []jni.Value) (jni.Value, error) {
			vm.mu.Lock()
			defer vm.mu.Unlock()
			for i, f := range targets {
				if err := vm.store(f, this, args[i]); err != nil {
					return jni.Zero, err
				}
			}
			return jni.Zero, nil
		}, nil

	case "func":
		fn, ok := vm.funcs[arg]
		if !ok {
			return nil, fmt.Errorf("no function registered as %q", arg)
		}
		return fn, nil

	case "":
		return nil, fmt.Errorf("missing implementation")
	}
	return nil, fmt.Errorf("unknown implementation kind %q", kind)
}

func constFunc(v jni.Value) MethodFunc {
	return func(context.Context, *VM, jni.Ref, []jni.Value) (jni.Value, error) {
		return v, nil
	}
}

// accessorField finds a field by name only, in c or its superclasses.
func accessorField(c *Class, name string, static bool) (*Field, error) {
	for k := c; k != nil; k = k.super {
		for key, f := range k.fields {
			if key.name == name && key.static == static {
				return f, nil
			}
		}
	}
	return nil, &NoSuchMemberError{Class: c.Name, Name: name, Kind: "field", Static: static}
}

// constant parses text as a value of type t. Object constants are strings
// held by a global reference, or null. Callers hold the VM lock.
func (vm *VM) constant(t jni.TypeTag, text string) (jni.Value, error) {
	switch t {
	case jni.Boolean:
		b, err := strconv.ParseBool(text)
		return jni.BooleanValue(b), err
	case jni.Byte:
		i, err := strconv.ParseInt(text, 0, 8)
		return jni.ByteValue(int8(i)), err
	case jni.Char:
		if r, size := utf8.DecodeRuneInString(text); size == len(text) && r <= 0xffff && r != utf8.RuneError {
			return jni.CharValue(uint16(r)), nil
		}
		u, err := strconv.ParseUint(text, 0, 16)
		return jni.CharValue(uint16(u)), err
	case jni.Short:
		i, err := strconv.ParseInt(text, 0, 16)
		return jni.ShortValue(int16(i)), err
	case jni.Int:
		i, err := strconv.ParseInt(text, 0, 32)
		return jni.IntValue(int32(i)), err
	case jni.Long:
		i, err := strconv.ParseInt(text, 0, 64)
		return jni.LongValue(i), err
	case jni.Float:
		f, err := strconv.ParseFloat(text, 32)
		return jni.FloatValue(float32(f)), err
	case jni.Double:
		f, err := strconv.ParseFloat(text, 64)
		return jni.DoubleValue(f), err
	case jni.Object:
		if text == "null" {
			return jni.Zero, nil
		}
		chars, err := EncodeUTF16(text)
		if err != nil {
			return jni.Zero, err
		}
		obj := &Object{class: vm.classes[StringClass], chars: chars}
		return jni.RefValue(vm.refs.add(globalRef, obj)), nil
	}
	return jni.Zero, fmt.Errorf("no constant of type %s", t)
}

// load reads f. this is ignored for static fields. Callers hold the VM lock.
func (vm *VM) load(f *Field, this jni.Ref) (jni.Value, error) {
	if f.Static {
		return f.Class.statics[f.slot], nil
	}
	obj, err := vm.instance(f, this)
	if err != nil {
		return jni.Zero, err
	}
	return obj.fields[f.slot], nil
}

// store writes v, narrowed to the field type, into f. Callers hold the VM
// write lock.
func (vm *VM) store(f *Field, this jni.Ref, v jni.Value) error {
	v = v.Narrow(f.Type)
	if f.Static {
		f.Class.statics[f.slot] = v
		return nil
	}
	obj, err := vm.instance(f, this)
	if err != nil {
		return err
	}
	obj.fields[f.slot] = v
	return nil
}

func (vm *VM) instance(f *Field, this jni.Ref) (*Object, error) {
	if this.IsNull() {
		return nil, ErrNullReference
	}
	obj, err := vm.object(this)
	if err != nil {
		return nil, err
	}
	if !obj.class.IsSubclassOf(f.Class) {
		return nil, &NoSuchMemberError{Class: obj.class.Name, Name: f.Name, Descriptor: f.Descriptor, Kind: "field"}
	}
	return obj, nil
}
