// Package invoke forwards resolved member operations to the backing
// environment. It is the single place that knows how a binding kind maps to
// a backing call.
package invoke

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/woxQAQ/jniproxy/api/secure"
	"github.com/woxQAQ/jniproxy/internal/member"
	"github.com/woxQAQ/jniproxy/pkg/jni"
)

// BindingKind selects how a method is dispatched.
type BindingKind uint8

const (
	// Virtual dispatches on the runtime type of the target object.
	Virtual BindingKind = iota
	// Nonvirtual calls the implementation declared by Binding.Class.
	Nonvirtual
	// Static calls a class method; the target is the class.
	Static
)

func (k BindingKind) String() string {
	switch k {
	case Virtual:
		return "virtual"
	case Nonvirtual:
		return "nonvirtual"
	case Static:
		return "static"
	}
	return fmt.Sprintf("BindingKind(%d)", uint8(k))
}

// Binding is a binding kind plus, for Nonvirtual, the declaring class.
type Binding struct {
	Kind  BindingKind
	Class jni.Ref
}

// Invoker performs calls and field accesses against a backing environment.
type Invoker struct {
	env    secure.Env
	logger *zap.Logger
}

// NewInvoker creates an invoker backed by env.
func NewInvoker(env secure.Env, logger *zap.Logger) *Invoker {
	return &Invoker{
		env:    env,
		logger: logger.With(zap.String("component", "invoker")),
	}
}

// Invoke calls m on target with the record's declared return type and
// returns the raw result.
func (i *Invoker) Invoke(ctx context.Context, b Binding, target jni.Ref, m *member.MethodRecord, args []jni.Value) (jni.Value, error) {
	return i.call(ctx, b, target, m, m.Return(), args)
}

// InvokeVoid calls m on target and discards any result.
func (i *Invoker) InvokeVoid(ctx context.Context, b Binding, target jni.Ref, m *member.MethodRecord, args []jni.Value) error {
	_, err := i.call(ctx, b, target, m, jni.Void, args)
	return err
}

func (i *Invoker) call(ctx context.Context, b Binding, target jni.Ref, m *member.MethodRecord, ret jni.TypeTag, args []jni.Value) (jni.Value, error) {
	var (
		v   jni.Value
		err error
	)
	switch b.Kind {
	case Virtual:
		v, err = i.env.CallMethod(ctx, ret, target, m.Native, args)
	case Nonvirtual:
		v, err = i.env.CallNonvirtualMethod(ctx, ret, target, b.Class, m.Native, args)
	case Static:
		v, err = i.env.CallStaticMethod(ctx, ret, target, m.Native, args)
	default:
		err = fmt.Errorf("unknown binding kind %s", b.Kind)
	}
	if err != nil {
		return jni.Zero, i.fail("call "+b.Kind.String(), m, err)
	}
	v = v.Narrow(ret)
	if ce := i.logger.Check(zap.DebugLevel, "backing call returned"); ce != nil {
		ce.Write(
			zap.String("binding", b.Kind.String()),
			zap.String("member", m.Name()),
			zap.Any("result", v.Interface(ret)),
		)
	}
	return v, nil
}

// NewObject constructs an instance of class with the constructor m.
func (i *Invoker) NewObject(ctx context.Context, class jni.Ref, m *member.MethodRecord, args []jni.Value) (jni.Ref, error) {
	obj, err := i.env.NewObject(ctx, class, m.Native, args)
	if err != nil {
		return jni.NullRef, i.fail("new object", m, err)
	}
	return obj, nil
}

// GetField reads f from target. For static fields target is the class.
func (i *Invoker) GetField(ctx context.Context, static bool, target jni.Ref, f *member.FieldRecord) (jni.Value, error) {
	var (
		v   jni.Value
		err error
	)
	if static {
		v, err = i.env.GetStaticField(ctx, f.Type, target, f.Native)
	} else {
		v, err = i.env.GetField(ctx, f.Type, target, f.Native)
	}
	if err != nil {
		return jni.Zero, i.fail("get field", f, err)
	}
	return v.Narrow(f.Type), nil
}

// SetField stores v into f on target. v is narrowed to the field type first.
func (i *Invoker) SetField(ctx context.Context, static bool, target jni.Ref, f *member.FieldRecord, v jni.Value) error {
	var err error
	if static {
		err = i.env.SetStaticField(ctx, f.Type, target, f.Native, v.Narrow(f.Type))
	} else {
		err = i.env.SetField(ctx, f.Type, target, f.Native, v.Narrow(f.Type))
	}
	if err != nil {
		return i.fail("set field", f, err)
	}
	return nil
}

func (i *Invoker) fail(op string, r member.Record, err error) error {
	i.logger.Debug("backing call failed",
		zap.String("op", op),
		zap.String("member", r.Name()),
		zap.String("descriptor", r.Descriptor()),
		zap.Error(err))
	return &CallError{Op: op, Member: r.Name() + r.Descriptor(), Err: err}
}
