// Package dispatch exposes a secure.Env through the fixed-order JNI function
// table. Env is the Go facade; Table is the entry-by-entry native view built
// from it.
package dispatch

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/woxQAQ/jniproxy/api/secure"
	"github.com/woxQAQ/jniproxy/internal/invoke"
	"github.com/woxQAQ/jniproxy/internal/marshal"
	"github.com/woxQAQ/jniproxy/internal/member"
	"github.com/woxQAQ/jniproxy/pkg/jni"
)

// Env forwards JNI operations to a backing environment. Plain operations
// return the JNI zero value on failure; the member operations (Call,
// NewObjectFrom, GetFieldValue, SetFieldValue) return the error as well.
//
// An Env serves one native caller. Several Envs may share a backing
// environment and a member cache.
type Env struct {
	backing secure.Env
	cache   *member.Cache
	invoker *invoke.Invoker
	logger  *zap.Logger

	mu     sync.Mutex
	pinned map[uint32]pin
}

// pin remembers the chars handed out for a string so they can be given back
// to the backing environment on release.
type pin struct {
	str   jni.Ref
	chars []uint16
}

// NewEnv creates an Env over backing. Member handles are issued from cache.
func NewEnv(backing secure.Env, cache *member.Cache, logger *zap.Logger) *Env {
	return &Env{
		backing: backing,
		cache:   cache,
		invoker: invoke.NewInvoker(backing, logger),
		logger:  logger.With(zap.String("component", "dispatch-env")),
		pinned:  make(map[uint32]pin),
	}
}

// Cache returns the member cache handles are resolved against.
func (e *Env) Cache() *member.Cache {
	return e.cache
}

// must collapses a failed backing call to the zero value of T.
func must[T any](e *Env, op string, v T, err error) T {
	if err != nil {
		e.logger.Debug("operation failed", zap.String("op", op), zap.Error(err))
		var zero T
		return zero
	}
	return v
}

func (e *Env) check(op string, err error) {
	if err != nil {
		e.logger.Debug("operation failed", zap.String("op", op), zap.Error(err))
	}
}

func (e *Env) GetVersion(ctx context.Context) int32 {
	v, err := e.backing.GetVersion(ctx)
	return must(e, "GetVersion", v, err)
}

func (e *Env) DefineClass(ctx context.Context, name string, loader jni.Ref, buf []byte) jni.Ref {
	c, err := e.backing.DefineClass(ctx, name, loader, buf)
	return must(e, "DefineClass", c, err)
}

func (e *Env) FindClass(ctx context.Context, name string) jni.Ref {
	c, err := e.backing.FindClass(ctx, name)
	return must(e, "FindClass", c, err)
}

func (e *Env) GetSuperclass(ctx context.Context, sub jni.Ref) jni.Ref {
	c, err := e.backing.GetSuperclass(ctx, sub)
	return must(e, "GetSuperclass", c, err)
}

func (e *Env) IsAssignableFrom(ctx context.Context, sub, sup jni.Ref) bool {
	ok, err := e.backing.IsAssignableFrom(ctx, sub, sup)
	return must(e, "IsAssignableFrom", ok, err)
}

func (e *Env) Throw(ctx context.Context, obj jni.Ref) int32 {
	s, err := e.backing.Throw(ctx, obj)
	return must(e, "Throw", s, err)
}

func (e *Env) ThrowNew(ctx context.Context, class jni.Ref, msg string) int32 {
	s, err := e.backing.ThrowNew(ctx, class, msg)
	return must(e, "ThrowNew", s, err)
}

func (e *Env) ExceptionOccurred(ctx context.Context) jni.Ref {
	t, err := e.backing.ExceptionOccurred(ctx)
	return must(e, "ExceptionOccurred", t, err)
}

func (e *Env) ExceptionDescribe(ctx context.Context) {
	e.check("ExceptionDescribe", e.backing.ExceptionDescribe(ctx))
}

func (e *Env) ExceptionClear(ctx context.Context) {
	e.check("ExceptionClear", e.backing.ExceptionClear(ctx))
}

func (e *Env) FatalError(ctx context.Context, msg string) {
	e.logger.Error("fatal error raised by native code", zap.String("message", msg))
	e.check("FatalError", e.backing.FatalError(ctx, msg))
}

func (e *Env) NewGlobalRef(ctx context.Context, obj jni.Ref) jni.Ref {
	r, err := e.backing.NewGlobalRef(ctx, obj)
	return must(e, "NewGlobalRef", r, err)
}

func (e *Env) DeleteGlobalRef(ctx context.Context, ref jni.Ref) {
	e.check("DeleteGlobalRef", e.backing.DeleteGlobalRef(ctx, ref))
}

func (e *Env) DeleteLocalRef(ctx context.Context, obj jni.Ref) {
	e.check("DeleteLocalRef", e.backing.DeleteLocalRef(ctx, obj))
}

func (e *Env) IsSameObject(ctx context.Context, a, b jni.Ref) bool {
	ok, err := e.backing.IsSameObject(ctx, a, b)
	return must(e, "IsSameObject", ok, err)
}

func (e *Env) AllocObject(ctx context.Context, class jni.Ref) jni.Ref {
	obj, err := e.backing.AllocObject(ctx, class)
	return must(e, "AllocObject", obj, err)
}

func (e *Env) GetObjectClass(ctx context.Context, obj jni.Ref) jni.Ref {
	c, err := e.backing.GetObjectClass(ctx, obj)
	return must(e, "GetObjectClass", c, err)
}

func (e *Env) IsInstanceOf(ctx context.Context, obj, class jni.Ref) bool {
	ok, err := e.backing.IsInstanceOf(ctx, obj, class)
	return must(e, "IsInstanceOf", ok, err)
}

// GetMethodID resolves an instance method and returns its member handle, or
// the null handle if the backing environment does not know it.
func (e *Env) GetMethodID(ctx context.Context, class jni.Ref, name, sig string) member.Handle {
	return e.resolveMethod(ctx, class, name, sig, false)
}

// GetStaticMethodID is GetMethodID for class methods.
func (e *Env) GetStaticMethodID(ctx context.Context, class jni.Ref, name, sig string) member.Handle {
	return e.resolveMethod(ctx, class, name, sig, true)
}

func (e *Env) resolveMethod(ctx context.Context, class jni.Ref, name, sig string, static bool) member.Handle {
	var (
		id  secure.MethodID
		err error
	)
	if static {
		id, err = e.backing.GetStaticMethodID(ctx, class, name, sig)
	} else {
		id, err = e.backing.GetMethodID(ctx, class, name, sig)
	}
	if err != nil {
		e.logger.Debug("method not resolved",
			zap.String("name", name),
			zap.String("descriptor", sig),
			zap.Bool("static", static),
			zap.Error(err))
		return member.NullHandle
	}
	m, err := e.cache.ResolveMethod(id, name, sig, static)
	if err != nil {
		e.logger.Warn("failed to cache method", zap.String("name", name), zap.Error(err))
		return member.NullHandle
	}
	return m.Handle()
}

// GetFieldID resolves an instance field and returns its member handle, or
// the null handle if the backing environment does not know it.
func (e *Env) GetFieldID(ctx context.Context, class jni.Ref, name, sig string) member.Handle {
	return e.resolveField(ctx, class, name, sig, false)
}

// GetStaticFieldID is GetFieldID for class fields.
func (e *Env) GetStaticFieldID(ctx context.Context, class jni.Ref, name, sig string) member.Handle {
	return e.resolveField(ctx, class, name, sig, true)
}

func (e *Env) resolveField(ctx context.Context, class jni.Ref, name, sig string, static bool) member.Handle {
	var (
		id  secure.FieldID
		err error
	)
	if static {
		id, err = e.backing.GetStaticFieldID(ctx, class, name, sig)
	} else {
		id, err = e.backing.GetFieldID(ctx, class, name, sig)
	}
	if err != nil {
		e.logger.Debug("field not resolved",
			zap.String("name", name),
			zap.String("descriptor", sig),
			zap.Bool("static", static),
			zap.Error(err))
		return member.NullHandle
	}
	f, err := e.cache.ResolveField(id, name, sig, static)
	if err != nil {
		e.logger.Warn("failed to cache field", zap.String("name", name), zap.Error(err))
		return member.NullHandle
	}
	return f.Handle()
}

// Call marshals src according to the method's signature and invokes it with
// binding b. The result is the raw value of the method's declared return
// type.
func (e *Env) Call(ctx context.Context, b invoke.Binding, target jni.Ref, h member.Handle, src marshal.Source) (jni.Value, error) {
	m, args, err := e.prepare(h, src)
	if err != nil {
		return jni.Zero, err
	}
	defer args.Release()
	return e.invoker.Invoke(ctx, b, target, m, args.Values())
}

// CallVoid is Call for entries that discard the result.
func (e *Env) CallVoid(ctx context.Context, b invoke.Binding, target jni.Ref, h member.Handle, src marshal.Source) error {
	m, args, err := e.prepare(h, src)
	if err != nil {
		return err
	}
	defer args.Release()
	return e.invoker.InvokeVoid(ctx, b, target, m, args.Values())
}

// NewObjectFrom constructs an instance of class with the constructor h.
func (e *Env) NewObjectFrom(ctx context.Context, class jni.Ref, h member.Handle, src marshal.Source) (jni.Ref, error) {
	m, args, err := e.prepare(h, src)
	if err != nil {
		return jni.NullRef, err
	}
	defer args.Release()
	return e.invoker.NewObject(ctx, class, m, args.Values())
}

func (e *Env) prepare(h member.Handle, src marshal.Source) (*member.MethodRecord, *marshal.Args, error) {
	m, err := e.cache.Method(h)
	if err != nil {
		e.logger.Debug("rejected method handle", zap.Uint32("handle", uint32(h)), zap.Error(err))
		return nil, nil, err
	}
	args, err := marshal.Marshal(m.Signature, src)
	if err != nil {
		e.logger.Debug("argument marshalling failed",
			zap.String("method", m.Name()),
			zap.String("descriptor", m.Descriptor()),
			zap.Error(err))
		return nil, nil, err
	}
	return m, args, nil
}

// GetFieldValue reads the field h. For static fields target is the class.
func (e *Env) GetFieldValue(ctx context.Context, static bool, target jni.Ref, h member.Handle) (jni.Value, error) {
	f, err := e.cache.Field(h)
	if err != nil {
		e.logger.Debug("rejected field handle", zap.Uint32("handle", uint32(h)), zap.Error(err))
		return jni.Zero, err
	}
	return e.invoker.GetField(ctx, static, target, f)
}

// SetFieldValue stores v into the field h.
func (e *Env) SetFieldValue(ctx context.Context, static bool, target jni.Ref, h member.Handle, v jni.Value) error {
	f, err := e.cache.Field(h)
	if err != nil {
		e.logger.Debug("rejected field handle", zap.Uint32("handle", uint32(h)), zap.Error(err))
		return err
	}
	return e.invoker.SetField(ctx, static, target, f, v)
}

func (e *Env) NewString(ctx context.Context, chars []uint16) jni.Ref {
	s, err := e.backing.NewString(ctx, chars)
	return must(e, "NewString", s, err)
}

func (e *Env) GetStringLength(ctx context.Context, str jni.Ref) int32 {
	n, err := e.backing.GetStringLength(ctx, str)
	return must(e, "GetStringLength", n, err)
}

// GetStringChars returns the UTF-16 contents of str, or nil on failure.
func (e *Env) GetStringChars(ctx context.Context, str jni.Ref) (chars []uint16, isCopy bool) {
	chars, isCopy, err := e.backing.GetStringChars(ctx, str)
	if err != nil {
		e.check("GetStringChars", err)
		return nil, false
	}
	return chars, isCopy
}

func (e *Env) ReleaseStringChars(ctx context.Context, str jni.Ref, chars []uint16) {
	e.check("ReleaseStringChars", e.backing.ReleaseStringChars(ctx, str, chars))
}

// pin records that addr in the caller's memory holds a copy of chars.
func (e *Env) pin(addr uint32, str jni.Ref, chars []uint16) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pinned[addr] = pin{str: str, chars: chars}
}

func (e *Env) unpin(addr uint32) (pin, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.pinned[addr]
	if ok {
		delete(e.pinned, addr)
	}
	return p, ok
}

// Pinned reports how many string buffers are handed out and not yet released.
func (e *Env) Pinned() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pinned)
}
