package dispatch

import (
	"context"

	"go.uber.org/zap"

	"github.com/woxQAQ/jniproxy/internal/invoke"
	"github.com/woxQAQ/jniproxy/internal/member"
	"github.com/woxQAQ/jniproxy/pkg/jni"
)

// methodHandler synthesizes the entry for one method family and convention.
// Every failure ends here as the zero word.
func methodHandler(f Family, c Convention) Handler {
	return func(ctx context.Context, env *Env, fr Frame) uint64 {
		target := ref(fr, 0)
		b := invoke.Binding{Kind: f.Binding}
		next := 1
		if f.Op == OpCall && f.Binding == invoke.Nonvirtual {
			b.Class = ref(fr, 1)
			next = 2
		}
		h := member.Handle(uint32(fr.Word(next)))
		src := source(c, fr, next+1)

		switch {
		case f.Op == OpNewObject:
			obj, err := env.NewObjectFrom(ctx, target, h, src)
			if err != nil {
				return 0
			}
			return Encode(jni.Object, jni.RefValue(obj))
		case f.Return == jni.Void:
			_ = env.CallVoid(ctx, b, target, h, src)
			return 0
		}
		v, err := env.Call(ctx, b, target, h, src)
		if err != nil {
			return 0
		}
		return Encode(f.Return, v)
	}
}

// fieldHandler synthesizes a typed field accessor.
func fieldHandler(f Family) Handler {
	static := f.Binding == invoke.Static
	if f.Op == OpSetField {
		return func(ctx context.Context, env *Env, fr Frame) uint64 {
			_ = env.SetFieldValue(ctx, static, ref(fr, 0), member.Handle(uint32(fr.Word(1))), Decode(f.Return, fr.Word(2)))
			return 0
		}
	}
	return func(ctx context.Context, env *Env, fr Frame) uint64 {
		v, err := env.GetFieldValue(ctx, static, ref(fr, 0), member.Handle(uint32(fr.Word(1))))
		if err != nil {
			return 0
		}
		return Encode(f.Return, v)
	}
}

func boolWord(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

func refWord(r jni.Ref) uint64 {
	return Encode(jni.Object, jni.RefValue(r))
}

func getVersion(ctx context.Context, env *Env, _ Frame) uint64 {
	return Encode(jni.Int, jni.IntValue(env.GetVersion(ctx)))
}

func defineClass(ctx context.Context, env *Env, f Frame) uint64 {
	name, err := CString(f, 0)
	if err != nil {
		env.logger.Debug("DefineClass: bad name", zap.Error(err))
		return 0
	}
	buf, err := Bytes(f, 2, 3)
	if err != nil {
		env.logger.Debug("DefineClass: bad class bytes", zap.Error(err))
		return 0
	}
	return refWord(env.DefineClass(ctx, name, ref(f, 1), buf))
}

func findClass(ctx context.Context, env *Env, f Frame) uint64 {
	name, err := CString(f, 0)
	if err != nil {
		env.logger.Debug("FindClass: bad name", zap.Error(err))
		return 0
	}
	return refWord(env.FindClass(ctx, name))
}

func getSuperclass(ctx context.Context, env *Env, f Frame) uint64 {
	return refWord(env.GetSuperclass(ctx, ref(f, 0)))
}

func isAssignableFrom(ctx context.Context, env *Env, f Frame) uint64 {
	return boolWord(env.IsAssignableFrom(ctx, ref(f, 0), ref(f, 1)))
}

func throw(ctx context.Context, env *Env, f Frame) uint64 {
	return Encode(jni.Int, jni.IntValue(env.Throw(ctx, ref(f, 0))))
}

func throwNew(ctx context.Context, env *Env, f Frame) uint64 {
	msg, err := CString(f, 1)
	if err != nil {
		env.logger.Debug("ThrowNew: bad message", zap.Error(err))
		return 0
	}
	return Encode(jni.Int, jni.IntValue(env.ThrowNew(ctx, ref(f, 0), msg)))
}

func exceptionOccurred(ctx context.Context, env *Env, _ Frame) uint64 {
	return refWord(env.ExceptionOccurred(ctx))
}

func exceptionDescribe(ctx context.Context, env *Env, _ Frame) uint64 {
	env.ExceptionDescribe(ctx)
	return 0
}

func exceptionClear(ctx context.Context, env *Env, _ Frame) uint64 {
	env.ExceptionClear(ctx)
	return 0
}

func fatalError(ctx context.Context, env *Env, f Frame) uint64 {
	msg, err := CString(f, 0)
	if err != nil {
		msg = "(unreadable message)"
	}
	env.FatalError(ctx, msg)
	return 0
}

func newGlobalRef(ctx context.Context, env *Env, f Frame) uint64 {
	return refWord(env.NewGlobalRef(ctx, ref(f, 0)))
}

func deleteGlobalRef(ctx context.Context, env *Env, f Frame) uint64 {
	env.DeleteGlobalRef(ctx, ref(f, 0))
	return 0
}

func deleteLocalRef(ctx context.Context, env *Env, f Frame) uint64 {
	env.DeleteLocalRef(ctx, ref(f, 0))
	return 0
}

func isSameObject(ctx context.Context, env *Env, f Frame) uint64 {
	return boolWord(env.IsSameObject(ctx, ref(f, 0), ref(f, 1)))
}

func allocObject(ctx context.Context, env *Env, f Frame) uint64 {
	return refWord(env.AllocObject(ctx, ref(f, 0)))
}

func getObjectClass(ctx context.Context, env *Env, f Frame) uint64 {
	return refWord(env.GetObjectClass(ctx, ref(f, 0)))
}

func isInstanceOf(ctx context.Context, env *Env, f Frame) uint64 {
	return boolWord(env.IsInstanceOf(ctx, ref(f, 0), ref(f, 1)))
}

// memberID builds the handler of a Get*ID entry: (class, name, sig).
func memberID(resolve func(*Env, context.Context, jni.Ref, string, string) member.Handle) Handler {
	return func(ctx context.Context, env *Env, f Frame) uint64 {
		name, err := CString(f, 1)
		if err != nil {
			env.logger.Debug("bad member name", zap.Error(err))
			return 0
		}
		sig, err := CString(f, 2)
		if err != nil {
			env.logger.Debug("bad member descriptor", zap.Error(err))
			return 0
		}
		return uint64(resolve(env, ctx, ref(f, 0), name, sig))
	}
}

func newString(ctx context.Context, env *Env, f Frame) uint64 {
	chars, err := Chars(f, 0, 1)
	if err != nil {
		env.logger.Debug("NewString: bad buffer", zap.Error(err))
		return 0
	}
	return refWord(env.NewString(ctx, chars))
}

func getStringLength(ctx context.Context, env *Env, f Frame) uint64 {
	return Encode(jni.Int, jni.IntValue(env.GetStringLength(ctx, ref(f, 0))))
}

// getStringChars copies the string into caller memory. The copy stays
// pinned until ReleaseStringChars hands it back.
func getStringChars(ctx context.Context, env *Env, f Frame) uint64 {
	str := ref(f, 0)
	chars, _ := env.GetStringChars(ctx, str)
	if chars == nil {
		return 0
	}
	addr, err := PutChars(ctx, f, chars)
	if err != nil {
		env.logger.Warn("GetStringChars: cannot copy into caller memory", zap.Error(err))
		env.ReleaseStringChars(ctx, str, chars)
		return 0
	}
	// The caller always receives a copy.
	if isCopy := ptr(f, 1); isCopy != 0 {
		f.Memory().WriteByte(isCopy, 1)
	}
	env.pin(addr, str, chars)
	return uint64(addr)
}

func releaseStringChars(ctx context.Context, env *Env, f Frame) uint64 {
	addr := ptr(f, 1)
	p, ok := env.unpin(addr)
	if !ok {
		env.logger.Warn("ReleaseStringChars: buffer was not handed out by GetStringChars",
			zap.Uint32("addr", addr))
		return 0
	}
	env.ReleaseStringChars(ctx, p.str, p.chars)
	if err := f.Free(ctx, addr); err != nil {
		env.logger.Warn("ReleaseStringChars: free failed", zap.Uint32("addr", addr), zap.Error(err))
	}
	return 0
}
