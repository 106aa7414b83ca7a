package sandbox

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/woxQAQ/jniproxy/api/secure"
	"github.com/woxQAQ/jniproxy/pkg/jni"
)

func (vm *VM) GetVersion(context.Context) (int32, error) {
	return vm.version, nil
}

// DefineClass defines a class from a YAML class definition. A non-empty
// name must match the definition. The loader is ignored.
func (vm *VM) DefineClass(_ context.Context, name string, _ jni.Ref, buf []byte) (jni.Ref, error) {
	var def ClassDef
	if err := yaml.Unmarshal(buf, &def); err != nil {
		return jni.NullRef, &ClassDefinitionError{Class: name, Reason: "malformed definition", Err: err}
	}
	if def.Name == "" {
		def.Name = name
	}
	if name != "" && def.Name != name {
		return jni.NullRef, &ClassDefinitionError{Class: name, Reason: "definition is for " + def.Name}
	}
	c, err := vm.Define(def)
	if err != nil {
		return jni.NullRef, err
	}
	return c.ref, nil
}

func (vm *VM) FindClass(_ context.Context, name string) (jni.Ref, error) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	c, ok := vm.classes[name]
	if !ok {
		return jni.NullRef, &NoSuchClassError{Name: name}
	}
	return c.ref, nil
}

func (vm *VM) GetSuperclass(_ context.Context, sub jni.Ref) (jni.Ref, error) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	c, err := vm.class(sub)
	if err != nil {
		return jni.NullRef, err
	}
	if c.super == nil {
		return jni.NullRef, nil
	}
	return c.super.ref, nil
}

func (vm *VM) IsAssignableFrom(_ context.Context, sub, sup jni.Ref) (bool, error) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	a, err := vm.class(sub)
	if err != nil {
		return false, err
	}
	b, err := vm.class(sup)
	if err != nil {
		return false, err
	}
	return a.IsSubclassOf(b), nil
}

func (vm *VM) Throw(ctx context.Context, obj jni.Ref) (int32, error) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	o, err := vm.object(obj)
	if err != nil {
		return jni.Err, err
	}
	if !o.class.IsSubclassOf(vm.classes[ThrowableClass]) {
		return jni.Err, ErrNotThrowable
	}
	vm.thread(ctx).pending = obj
	return jni.OK, nil
}

func (vm *VM) ThrowNew(ctx context.Context, class jni.Ref, msg string) (int32, error) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	c, err := vm.class(class)
	if err != nil {
		return jni.Err, err
	}
	if !c.IsSubclassOf(vm.classes[ThrowableClass]) {
		return jni.Err, ErrNotThrowable
	}
	_ = vm.throw(ctx, c.Name, msg)
	return jni.OK, nil
}

func (vm *VM) ExceptionOccurred(ctx context.Context) (jni.Ref, error) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.thread(ctx).pending, nil
}

// ExceptionDescribe logs the pending exception and clears it.
func (vm *VM) ExceptionDescribe(ctx context.Context) error {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	t := vm.thread(ctx)
	if t.pending.IsNull() {
		return nil
	}
	fields := []zap.Field{zap.Uint32("ref", uint32(t.pending))}
	if obj, err := vm.object(t.pending); err == nil {
		fields = append(fields, zap.String("class", obj.class.Name))
		if f := obj.class.findField("message", "Ljava/lang/String;", false); f != nil {
			if s, err := vm.stringObject(obj.fields[f.slot].Ref()); err == nil {
				msg, _ := DecodeUTF16(s.chars)
				fields = append(fields, zap.String("message", msg))
			}
		}
	}
	vm.logger.Warn("pending exception", fields...)
	t.pending = jni.NullRef
	return nil
}

func (vm *VM) ExceptionClear(ctx context.Context) error {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.thread(ctx).pending = jni.NullRef
	return nil
}

// FatalError records msg. The VM keeps serving calls; the host decides
// whether to stop.
func (vm *VM) FatalError(_ context.Context, msg string) error {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.fatal = msg
	vm.logger.Error("fatal error", zap.String("message", msg))
	return &FatalError{Message: msg}
}

func (vm *VM) NewGlobalRef(_ context.Context, obj jni.Ref) (jni.Ref, error) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	if obj.IsNull() {
		return jni.NullRef, nil
	}
	v, ok := vm.target(obj)
	if !ok {
		return jni.NullRef, &InvalidRefError{Ref: obj, Want: "object"}
	}
	return vm.refs.add(globalRef, v), nil
}

func (vm *VM) DeleteGlobalRef(_ context.Context, ref jni.Ref) error {
	return vm.deleteRef(ref, globalRef, "global")
}

func (vm *VM) DeleteLocalRef(_ context.Context, obj jni.Ref) error {
	return vm.deleteRef(obj, localRef, "local")
}

func (vm *VM) deleteRef(r jni.Ref, kind refKind, want string) error {
	if r.IsNull() {
		return nil
	}
	vm.mu.Lock()
	defer vm.mu.Unlock()
	if !vm.refs.drop(r, kind) {
		return &InvalidRefError{Ref: r, Want: want}
	}
	return nil
}

func (vm *VM) IsSameObject(_ context.Context, a, b jni.Ref) (bool, error) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	if a.IsNull() || b.IsNull() {
		return a.IsNull() && b.IsNull(), nil
	}
	x, ok := vm.target(a)
	if !ok {
		return false, &InvalidRefError{Ref: a, Want: "object"}
	}
	y, ok := vm.target(b)
	if !ok {
		return false, &InvalidRefError{Ref: b, Want: "object"}
	}
	return x == y, nil
}

func (vm *VM) AllocObject(_ context.Context, class jni.Ref) (jni.Ref, error) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	c, err := vm.class(class)
	if err != nil {
		return jni.NullRef, err
	}
	ref, _ := vm.newObject(c)
	return ref, nil
}

func (vm *VM) NewObject(ctx context.Context, class jni.Ref, method secure.MethodID, args []jni.Value) (jni.Ref, error) {
	vm.mu.Lock()
	c, err := vm.class(class)
	if err != nil {
		vm.mu.Unlock()
		return jni.NullRef, err
	}
	m, err := vm.method(method)
	if err != nil {
		vm.mu.Unlock()
		return jni.NullRef, err
	}
	if m.Name != "<init>" || !c.IsSubclassOf(m.Class) {
		vm.mu.Unlock()
		return jni.NullRef, &NoSuchMemberError{Class: c.Name, Name: m.Name, Descriptor: m.Descriptor, Kind: "constructor"}
	}
	ref, _ := vm.newObject(c)
	vm.mu.Unlock()

	if _, err := vm.run(ctx, m, ref, args); err != nil {
		_ = vm.DeleteLocalRef(ctx, ref)
		return jni.NullRef, err
	}
	return ref, nil
}

func (vm *VM) GetObjectClass(_ context.Context, obj jni.Ref) (jni.Ref, error) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	c, err := vm.classOf(obj)
	if err != nil {
		return jni.NullRef, err
	}
	return c.ref, nil
}

// IsInstanceOf reports whether obj is an instance of class. The null
// reference is an instance of every class.
func (vm *VM) IsInstanceOf(_ context.Context, obj, class jni.Ref) (bool, error) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	c, err := vm.class(class)
	if err != nil {
		return false, err
	}
	if obj.IsNull() {
		return true, nil
	}
	oc, err := vm.classOf(obj)
	if err != nil {
		return false, err
	}
	return oc.IsSubclassOf(c), nil
}

func (vm *VM) GetMethodID(_ context.Context, class jni.Ref, name, sig string) (secure.MethodID, error) {
	return vm.methodID(class, name, sig, false)
}

func (vm *VM) GetStaticMethodID(_ context.Context, class jni.Ref, name, sig string) (secure.MethodID, error) {
	return vm.methodID(class, name, sig, true)
}

func (vm *VM) methodID(class jni.Ref, name, sig string, static bool) (secure.MethodID, error) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	c, err := vm.class(class)
	if err != nil {
		return 0, err
	}
	m := c.findMethod(name, sig, static)
	if m == nil {
		return 0, &NoSuchMemberError{Class: c.Name, Name: name, Descriptor: sig, Kind: "method", Static: static}
	}
	return m.ID, nil
}

func (vm *VM) GetFieldID(_ context.Context, class jni.Ref, name, sig string) (secure.FieldID, error) {
	return vm.fieldID(class, name, sig, false)
}

func (vm *VM) GetStaticFieldID(_ context.Context, class jni.Ref, name, sig string) (secure.FieldID, error) {
	return vm.fieldID(class, name, sig, true)
}

func (vm *VM) fieldID(class jni.Ref, name, sig string, static bool) (secure.FieldID, error) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	c, err := vm.class(class)
	if err != nil {
		return 0, err
	}
	f := c.findField(name, sig, static)
	if f == nil {
		return 0, &NoSuchMemberError{Class: c.Name, Name: name, Descriptor: sig, Kind: "field", Static: static}
	}
	return f.ID, nil
}

func (vm *VM) method(id secure.MethodID) (*Method, error) {
	if id == 0 || int(id) > len(vm.methods) {
		return nil, fmt.Errorf("unknown method id %d", id)
	}
	return vm.methods[id-1], nil
}

func (vm *VM) field(id secure.FieldID) (*Field, error) {
	if id == 0 || int(id) > len(vm.fields) {
		return nil, fmt.Errorf("unknown field id %d", id)
	}
	return vm.fields[id-1], nil
}

// CallMethod dispatches on the runtime class of obj.
func (vm *VM) CallMethod(ctx context.Context, ret jni.TypeTag, obj jni.Ref, method secure.MethodID, args []jni.Value) (jni.Value, error) {
	vm.mu.RLock()
	m, err := vm.method(method)
	if err == nil {
		if obj.IsNull() {
			err = ErrNullReference
		} else {
			var c *Class
			if c, err = vm.classOf(obj); err == nil {
				m, err = vm.override(c, m)
			}
		}
	}
	vm.mu.RUnlock()
	if err != nil {
		return jni.Zero, err
	}
	return vm.invoke(ctx, ret, m, obj, args)
}

// CallNonvirtualMethod runs the implementation found from class upwards.
func (vm *VM) CallNonvirtualMethod(ctx context.Context, ret jni.TypeTag, obj, class jni.Ref, method secure.MethodID, args []jni.Value) (jni.Value, error) {
	vm.mu.RLock()
	m, err := vm.method(method)
	if err == nil {
		var c *Class
		if c, err = vm.class(class); err == nil {
			m, err = vm.override(c, m)
		}
	}
	vm.mu.RUnlock()
	if err != nil {
		return jni.Zero, err
	}
	if obj.IsNull() {
		return jni.Zero, ErrNullReference
	}
	return vm.invoke(ctx, ret, m, obj, args)
}

func (vm *VM) CallStaticMethod(ctx context.Context, ret jni.TypeTag, class jni.Ref, method secure.MethodID, args []jni.Value) (jni.Value, error) {
	vm.mu.RLock()
	m, err := vm.method(method)
	if err == nil && !m.Static {
		err = &NoSuchMemberError{Class: m.Class.Name, Name: m.Name, Descriptor: m.Descriptor, Kind: "method", Static: true}
	}
	vm.mu.RUnlock()
	if err != nil {
		return jni.Zero, err
	}
	return vm.invoke(ctx, ret, m, class, args)
}

// override finds the implementation of m visible from c.
func (vm *VM) override(c *Class, m *Method) (*Method, error) {
	if m.Static {
		return nil, &NoSuchMemberError{Class: c.Name, Name: m.Name, Descriptor: m.Descriptor, Kind: "method"}
	}
	impl := c.findMethod(m.Name, m.Descriptor, false)
	if impl == nil {
		return nil, &NoSuchMemberError{Class: c.Name, Name: m.Name, Descriptor: m.Descriptor, Kind: "method"}
	}
	return impl, nil
}

func (vm *VM) invoke(ctx context.Context, ret jni.TypeTag, m *Method, this jni.Ref, args []jni.Value) (jni.Value, error) {
	v, err := vm.run(ctx, m, this, args)
	if err != nil {
		return jni.Zero, err
	}
	if ret == jni.Void {
		return jni.Zero, nil
	}
	return v.Narrow(ret), nil
}

// run executes m without holding the VM lock. A plain error from the
// implementation becomes a pending RuntimeException.
func (vm *VM) run(ctx context.Context, m *Method, this jni.Ref, args []jni.Value) (jni.Value, error) {
	if len(args) < m.Signature.Arity() {
		return jni.Zero, fmt.Errorf("%s.%s%s: %d arguments, want %d",
			m.Class.Name, m.Name, m.Descriptor, len(args), m.Signature.Arity())
	}
	vm.logger.Debug("invoke",
		zap.String("class", m.Class.Name),
		zap.String("method", m.Name),
		zap.String("descriptor", m.Descriptor))

	v, err := m.impl(ctx, vm, this, args)
	if err == nil {
		return v, nil
	}
	if _, thrown := err.(*ThrownError); thrown {
		return jni.Zero, err
	}
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return jni.Zero, vm.throw(ctx, RuntimeExceptionClass, err.Error())
}

func (vm *VM) GetField(_ context.Context, typ jni.TypeTag, obj jni.Ref, field secure.FieldID) (jni.Value, error) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	f, err := vm.typedField(field, typ, false)
	if err != nil {
		return jni.Zero, err
	}
	return vm.load(f, obj)
}

func (vm *VM) SetField(_ context.Context, typ jni.TypeTag, obj jni.Ref, field secure.FieldID, value jni.Value) error {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	f, err := vm.typedField(field, typ, false)
	if err != nil {
		return err
	}
	return vm.store(f, obj, value)
}

func (vm *VM) GetStaticField(_ context.Context, typ jni.TypeTag, class jni.Ref, field secure.FieldID) (jni.Value, error) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	f, err := vm.typedField(field, typ, true)
	if err != nil {
		return jni.Zero, err
	}
	return vm.load(f, class)
}

func (vm *VM) SetStaticField(_ context.Context, typ jni.TypeTag, class jni.Ref, field secure.FieldID, value jni.Value) error {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	f, err := vm.typedField(field, typ, true)
	if err != nil {
		return err
	}
	return vm.store(f, class, value)
}

func (vm *VM) typedField(id secure.FieldID, typ jni.TypeTag, static bool) (*Field, error) {
	f, err := vm.field(id)
	if err != nil {
		return nil, err
	}
	if f.Static != static {
		return nil, &NoSuchMemberError{Class: f.Class.Name, Name: f.Name, Descriptor: f.Descriptor, Kind: "field", Static: static}
	}
	if f.Type != typ {
		return nil, &TypeMismatchError{Member: f.Class.Name + "." + f.Name, Want: f.Type, Got: typ}
	}
	return f, nil
}

func (vm *VM) NewString(_ context.Context, chars []uint16) (jni.Ref, error) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.newString(append([]uint16(nil), chars...)), nil
}

func (vm *VM) GetStringLength(_ context.Context, str jni.Ref) (int32, error) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	s, err := vm.stringObject(str)
	if err != nil {
		return 0, err
	}
	return int32(len(s.chars)), nil
}

// GetStringChars always returns a copy.
func (vm *VM) GetStringChars(_ context.Context, str jni.Ref) ([]uint16, bool, error) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	s, err := vm.stringObject(str)
	if err != nil {
		return nil, false, err
	}
	return append(make([]uint16, 0, len(s.chars)), s.chars...), true, nil
}

func (vm *VM) ReleaseStringChars(_ context.Context, str jni.Ref, _ []uint16) error {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	_, err := vm.stringObject(str)
	return err
}
