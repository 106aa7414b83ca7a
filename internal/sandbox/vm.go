// Package sandbox is an in-process backing environment. Classes come from
// class definitions, methods are Go functions or declarative builtins, and
// every heap value is reached through a reference table.
package sandbox

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/woxQAQ/jniproxy/api/secure"
	"github.com/woxQAQ/jniproxy/pkg/jni"
)

// Names of the classes every VM starts with.
const (
	ObjectClass           = "java/lang/Object"
	StringClass           = "java/lang/String"
	ThrowableClass        = "java/lang/Throwable"
	ExceptionClass        = "java/lang/Exception"
	RuntimeExceptionClass = "java/lang/RuntimeException"
)

// VM is the sandbox state. It implements secure.Env.
type VM struct {
	mu      sync.RWMutex
	version int32
	logger  *zap.Logger

	classes map[string]*Class
	methods []*Method
	fields  []*Field
	refs    *refTable
	funcs   map[string]MethodFunc

	// main holds the pending exception of calls made without WithThread.
	main  thread
	fatal string
}

// thread is the per-caller exception state.
type thread struct {
	pending jni.Ref
}

type threadKey struct{}

// WithThread returns a context with its own pending-exception slot. Calls
// made with it, and methods they invoke, raise and observe exceptions only
// there, so concurrent callers sharing a VM do not see each other's
// exceptions. Calls without one share the VM's main slot.
func WithThread(ctx context.Context) context.Context {
	return context.WithValue(ctx, threadKey{}, &thread{})
}

// thread returns the exception state of the caller. Callers hold the VM lock.
func (vm *VM) thread(ctx context.Context) *thread {
	if t, ok := ctx.Value(threadKey{}).(*thread); ok {
		return t
	}
	return &vm.main
}

var _ secure.Env = (*VM)(nil)

// NewVM creates a VM reporting the given interface version, with the
// bootstrap classes defined.
func NewVM(version int32, logger *zap.Logger) *VM {
	vm := &VM{
		version: version,
		logger:  logger.With(zap.String("component", "sandbox")),
		classes: make(map[string]*Class),
		refs:    newRefTable(),
		funcs:   make(map[string]MethodFunc),
	}
	vm.funcs["throwable.getMessage"] = throwableMessage
	for _, def := range bootstrapClasses() {
		if _, err := vm.Define(def); err != nil {
			panic(fmt.Sprintf("sandbox: bootstrap class %s: %v", def.Name, err))
		}
	}
	return vm
}

func bootstrapClasses() []ClassDef {
	return []ClassDef{
		{
			Name:    ObjectClass,
			Methods: []MethodDef{{Name: "<init>", Descriptor: "()V", Impl: "init"}},
		},
		{Name: StringClass, Super: ObjectClass},
		{
			Name:  ThrowableClass,
			Super: ObjectClass,
			Fields: []FieldDef{
				{Name: "message", Descriptor: "Ljava/lang/String;"},
			},
			Methods: []MethodDef{
				{Name: "<init>", Descriptor: "()V", Impl: "init"},
				{Name: "<init>", Descriptor: "(Ljava/lang/String;)V", Impl: "init:message"},
				{Name: "getMessage", Descriptor: "()Ljava/lang/String;", Impl: "func:throwable.getMessage"},
			},
		},
		{
			Name:  ExceptionClass,
			Super: ThrowableClass,
			Methods: []MethodDef{
				{Name: "<init>", Descriptor: "(Ljava/lang/String;)V", Impl: "init:message"},
			},
		},
		{
			Name:  RuntimeExceptionClass,
			Super: ExceptionClass,
			Methods: []MethodDef{
				{Name: "<init>", Descriptor: "(Ljava/lang/String;)V", Impl: "init:message"},
			},
		},
	}
}

func throwableMessage(_ context.Context, vm *VM, this jni.Ref, _ []jni.Value) (jni.Value, error) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	obj, err := vm.object(this)
	if err != nil {
		return jni.Zero, err
	}
	f := obj.class.findField("message", "Ljava/lang/String;", false)
	return obj.fields[f.slot], nil
}

// RegisterFunc makes fn available to methods declared with impl func:<name>.
// Functions must be registered before the classes that use them are defined.
func (vm *VM) RegisterFunc(name string, fn MethodFunc) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.funcs[name] = fn
}

// Define adds a class. The superclass must already be defined; an empty
// Super means java/lang/Object.
func (vm *VM) Define(def ClassDef) (*Class, error) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.define(def)
}

func (vm *VM) define(def ClassDef) (*Class, error) {
	if def.Name == "" {
		return nil, &ClassDefinitionError{Reason: "missing class name"}
	}
	if _, exists := vm.classes[def.Name]; exists {
		return nil, &ClassDefinitionError{Class: def.Name, Reason: "already defined"}
	}

	c := &Class{
		Name:    def.Name,
		fields:  make(map[memberKey]*Field),
		methods: make(map[memberKey]*Method),
	}
	if def.Name != ObjectClass {
		superName := def.Super
		if superName == "" {
			superName = ObjectClass
		}
		super, ok := vm.classes[superName]
		if !ok {
			return nil, &ClassDefinitionError{Class: def.Name, Reason: "unknown superclass " + superName}
		}
		c.super = super
		c.layout = append(c.layout, super.layout...)
	}

	// Members are collected first so a rejected definition leaves no trace.
	var fields []*Field
	for _, fd := range def.Fields {
		key := memberKey{fd.Name, fd.Descriptor, fd.Static}
		if fd.Name == "" || fd.Descriptor == "" {
			return nil, &ClassDefinitionError{Class: def.Name, Reason: "field without name or descriptor"}
		}
		if _, dup := c.fields[key]; dup {
			return nil, &ClassDefinitionError{Class: def.Name, Reason: "duplicate field " + fd.Name}
		}
		f := &Field{
			Class:      c,
			Name:       fd.Name,
			Descriptor: fd.Descriptor,
			Type:       jni.ParseFieldDescriptor(fd.Descriptor),
			Static:     fd.Static,
		}
		if f.Type == jni.Void {
			return nil, &ClassDefinitionError{Class: def.Name, Reason: "field " + fd.Name + " has no value type"}
		}
		if fd.Static {
			f.slot = len(c.statics)
			c.statics = append(c.statics, jni.Zero)
		} else {
			f.slot = len(c.layout)
			c.layout = append(c.layout, f)
		}
		c.fields[key] = f
		fields = append(fields, f)
	}
	for i, fd := range def.Fields {
		if !fd.Static || fd.Value == "" {
			continue
		}
		v, err := vm.constant(fields[i].Type, fd.Value)
		if err != nil {
			return nil, &ClassDefinitionError{Class: def.Name, Reason: "initial value of " + fd.Name, Err: err}
		}
		c.statics[fields[i].slot] = v
	}

	var methods []*Method
	for _, md := range def.Methods {
		key := memberKey{md.Name, md.Descriptor, md.Static}
		if _, dup := c.methods[key]; dup {
			return nil, &ClassDefinitionError{Class: def.Name, Reason: "duplicate method " + md.Name + md.Descriptor}
		}
		m := &Method{
			Class:      c,
			Name:       md.Name,
			Descriptor: md.Descriptor,
			Signature:  jni.ParseMethodDescriptor(md.Descriptor),
			Static:     md.Static,
		}
		impl, err := vm.compile(c, m, md.Impl)
		if err != nil {
			return nil, &ClassDefinitionError{Class: def.Name, Reason: "method " + md.Name + md.Descriptor, Err: err}
		}
		m.impl = impl
		c.methods[key] = m
		methods = append(methods, m)
	}

	for _, f := range fields {
		vm.fields = append(vm.fields, f)
		f.ID = secure.FieldID(len(vm.fields))
	}
	for _, m := range methods {
		vm.methods = append(vm.methods, m)
		m.ID = secure.MethodID(len(vm.methods))
	}
	c.ref = vm.refs.add(classRef, c)
	vm.classes[c.Name] = c

	vm.logger.Debug("class defined",
		zap.String("class", c.Name),
		zap.Int("fields", len(fields)),
		zap.Int("methods", len(methods)))
	return c, nil
}

// Class returns the class with the given name.
func (vm *VM) Class(name string) (*Class, bool) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	c, ok := vm.classes[name]
	return c, ok
}

// NewStringUTF8 creates a string from Go text.
func (vm *VM) NewStringUTF8(s string) (jni.Ref, error) {
	chars, err := EncodeUTF16(s)
	if err != nil {
		return jni.NullRef, err
	}
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.newString(chars), nil
}

// StringUTF8 returns the contents of a string as Go text.
func (vm *VM) StringUTF8(str jni.Ref) (string, error) {
	vm.mu.RLock()
	obj, err := vm.stringObject(str)
	var chars []uint16
	if err == nil {
		chars = obj.chars
	}
	vm.mu.RUnlock()
	if err != nil {
		return "", err
	}
	return DecodeUTF16(chars)
}

// Live reports the number of live references, class references included.
func (vm *VM) Live() int {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.refs.live()
}

// Fatal returns the message of the last FatalError, if any.
func (vm *VM) Fatal() string {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.fatal
}

func (vm *VM) newString(chars []uint16) jni.Ref {
	obj := &Object{class: vm.classes[StringClass], chars: chars}
	return vm.refs.add(localRef, obj)
}

func (vm *VM) newObject(c *Class) (jni.Ref, *Object) {
	obj := &Object{class: c, fields: make([]jni.Value, len(c.layout))}
	return vm.refs.add(localRef, obj), obj
}

func (vm *VM) class(r jni.Ref) (*Class, error) {
	v, ok := vm.refs.get(r)
	if !ok {
		return nil, &InvalidRefError{Ref: r, Want: "class"}
	}
	c, ok := v.(*Class)
	if !ok {
		return nil, &InvalidRefError{Ref: r, Want: "class"}
	}
	return c, nil
}

func (vm *VM) object(r jni.Ref) (*Object, error) {
	v, ok := vm.refs.get(r)
	if !ok {
		return nil, &InvalidRefError{Ref: r, Want: "object"}
	}
	obj, ok := v.(*Object)
	if !ok {
		return nil, &InvalidRefError{Ref: r, Want: "object"}
	}
	return obj, nil
}

func (vm *VM) stringObject(r jni.Ref) (*Object, error) {
	obj, err := vm.object(r)
	if err != nil {
		return nil, err
	}
	if obj.class.Name != StringClass {
		return nil, &InvalidRefError{Ref: r, Want: "string"}
	}
	return obj, nil
}

// classOf returns the class of any referenced value. Class references are
// instances of java/lang/Object here; there is no java/lang/Class.
func (vm *VM) classOf(r jni.Ref) (*Class, error) {
	v, ok := vm.refs.get(r)
	if !ok {
		return nil, &InvalidRefError{Ref: r, Want: "object"}
	}
	switch x := v.(type) {
	case *Object:
		return x.class, nil
	case *Class:
		return vm.classes[ObjectClass], nil
	}
	return nil, &InvalidRefError{Ref: r, Want: "object"}
}

// target returns the referent of r, unwrapping global references.
func (vm *VM) target(r jni.Ref) (any, bool) {
	return vm.refs.get(r)
}

// throw makes a new throwable of class name pending and returns the error
// describing it.
func (vm *VM) throw(ctx context.Context, name, msg string) error {
	c, ok := vm.classes[name]
	if !ok {
		c = vm.classes[RuntimeExceptionClass]
	}
	ref, obj := vm.newObject(c)
	if msg != "" {
		chars, err := EncodeUTF16(msg)
		if err == nil {
			f := c.findField("message", "Ljava/lang/String;", false)
			obj.fields[f.slot] = jni.RefValue(vm.newString(chars))
		}
	}
	vm.thread(ctx).pending = ref
	return &ThrownError{Class: c.Name, Message: msg}
}
