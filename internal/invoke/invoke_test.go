package invoke

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/woxQAQ/jniproxy/api/secure"
	"github.com/woxQAQ/jniproxy/internal/member"
	"github.com/woxQAQ/jniproxy/pkg/jni"
)

var errBacking = errors.New("backing failure")

// recordingEnv implements the call and field subset of secure.Env. Calls
// outside that subset panic through the nil embedded interface.
type recordingEnv struct {
	secure.Env

	op     string
	ret    jni.TypeTag
	target jni.Ref
	class  jni.Ref
	args   []jni.Value
	stored jni.Value
	result jni.Value
	err    error
}

func (e *recordingEnv) CallMethod(_ context.Context, ret jni.TypeTag, obj jni.Ref, _ secure.MethodID, args []jni.Value) (jni.Value, error) {
	e.op, e.ret, e.target, e.args = "virtual", ret, obj, args
	return e.result, e.err
}

func (e *recordingEnv) CallNonvirtualMethod(_ context.Context, ret jni.TypeTag, obj, class jni.Ref, _ secure.MethodID, args []jni.Value) (jni.Value, error) {
	e.op, e.ret, e.target, e.class, e.args = "nonvirtual", ret, obj, class, args
	return e.result, e.err
}

func (e *recordingEnv) CallStaticMethod(_ context.Context, ret jni.TypeTag, class jni.Ref, _ secure.MethodID, args []jni.Value) (jni.Value, error) {
	e.op, e.ret, e.target, e.args = "static", ret, class, args
	return e.result, e.err
}

func (e *recordingEnv) NewObject(_ context.Context, class jni.Ref, _ secure.MethodID, args []jni.Value) (jni.Ref, error) {
	e.op, e.target, e.args = "new", class, args
	return e.result.Ref(), e.err
}

func (e *recordingEnv) GetField(_ context.Context, typ jni.TypeTag, obj jni.Ref, _ secure.FieldID) (jni.Value, error) {
	e.op, e.ret, e.target = "get", typ, obj
	return e.stored, e.err
}

func (e *recordingEnv) SetField(_ context.Context, typ jni.TypeTag, obj jni.Ref, _ secure.FieldID, v jni.Value) error {
	e.op, e.ret, e.target = "set", typ, obj
	if e.err == nil {
		e.stored = v
	}
	return e.err
}

func (e *recordingEnv) GetStaticField(_ context.Context, typ jni.TypeTag, class jni.Ref, _ secure.FieldID) (jni.Value, error) {
	e.op, e.ret, e.target = "get static", typ, class
	return e.stored, e.err
}

func (e *recordingEnv) SetStaticField(_ context.Context, typ jni.TypeTag, class jni.Ref, _ secure.FieldID, v jni.Value) error {
	e.op, e.ret, e.target = "set static", typ, class
	if e.err == nil {
		e.stored = v
	}
	return e.err
}

func newFixture(t *testing.T, env *recordingEnv) (*Invoker, *member.Cache) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	return NewInvoker(env, logger), member.NewCache(0, logger)
}

func TestInvokeBindingKinds(t *testing.T) {
	tests := []struct {
		binding Binding
		op      string
		class   jni.Ref
	}{
		{Binding{Kind: Virtual}, "virtual", 0},
		{Binding{Kind: Nonvirtual, Class: 9}, "nonvirtual", 9},
		{Binding{Kind: Static}, "static", 0},
	}

	for _, tt := range tests {
		t.Run(tt.binding.Kind.String(), func(t *testing.T) {
			env := &recordingEnv{result: jni.IntValue(6)}
			inv, cache := newFixture(t, env)
			m, err := cache.ResolveMethod(1, "sum", "(III)I", tt.binding.Kind == Static)
			if err != nil {
				t.Fatalf("ResolveMethod failed: %v", err)
			}

			args := []jni.Value{jni.IntValue(1), jni.IntValue(2), jni.IntValue(3)}
			got, err := inv.Invoke(context.Background(), tt.binding, 5, m, args)
			if err != nil {
				t.Fatalf("Invoke failed: %v", err)
			}
			if got.Int() != 6 {
				t.Errorf("result: got %d, want 6", got.Int())
			}
			if env.op != tt.op {
				t.Errorf("backing op: got %s, want %s", env.op, tt.op)
			}
			if env.ret != jni.Int {
				t.Errorf("return tag: got %s, want int", env.ret)
			}
			if env.target != 5 {
				t.Errorf("target: got %d, want 5", env.target)
			}
			if env.class != tt.class {
				t.Errorf("class: got %d, want %d", env.class, tt.class)
			}
			if len(env.args) != 3 {
				t.Errorf("expected 3 forwarded arguments, got %d", len(env.args))
			}
		})
	}
}

func TestInvokeVoidForwardsVoidTag(t *testing.T) {
	env := &recordingEnv{}
	inv, cache := newFixture(t, env)
	m, _ := cache.ResolveMethod(1, "run", "()I", false)

	if err := inv.InvokeVoid(context.Background(), Binding{}, 1, m, nil); err != nil {
		t.Fatalf("InvokeVoid failed: %v", err)
	}
	if env.ret != jni.Void {
		t.Errorf("return tag: got %s, want void", env.ret)
	}
}

func TestInvokeFailure(t *testing.T) {
	env := &recordingEnv{result: jni.IntValue(77), err: errBacking}
	inv, cache := newFixture(t, env)
	m, _ := cache.ResolveMethod(1, "sum", "(II)I", false)

	got, err := inv.Invoke(context.Background(), Binding{}, 1, m, nil)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if got != jni.Zero {
		t.Errorf("expected zero value on failure, got %#x", uint64(got))
	}

	callErr, ok := err.(*CallError)
	if !ok {
		t.Fatalf("expected *CallError, got %T", err)
	}
	if callErr.Member != "sum(II)I" {
		t.Errorf("member: got %s, want sum(II)I", callErr.Member)
	}
	if !errors.Is(err, errBacking) {
		t.Error("expected CallError to wrap the backing error")
	}
}

func TestInvokeNarrowsResult(t *testing.T) {
	env := &recordingEnv{result: jni.Value(0xffff_ffff_0000_0101)}
	inv, cache := newFixture(t, env)
	m, _ := cache.ResolveMethod(1, "flag", "()Z", false)

	got, err := inv.Invoke(context.Background(), Binding{}, 1, m, nil)
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if got != jni.BooleanValue(true) {
		t.Errorf("got %#x, want 1", uint64(got))
	}
}

func TestNewObject(t *testing.T) {
	env := &recordingEnv{result: jni.RefValue(12)}
	inv, cache := newFixture(t, env)
	m, _ := cache.ResolveMethod(1, "<init>", "(I)V", false)

	obj, err := inv.NewObject(context.Background(), 3, m, []jni.Value{jni.IntValue(4)})
	if err != nil {
		t.Fatalf("NewObject failed: %v", err)
	}
	if obj != 12 {
		t.Errorf("object: got %d, want 12", obj)
	}
	if env.target != 3 {
		t.Errorf("class: got %d, want 3", env.target)
	}

	env.err = errBacking
	obj, err = inv.NewObject(context.Background(), 3, m, nil)
	if err == nil || !obj.IsNull() {
		t.Errorf("expected null reference and error, got %d, %v", obj, err)
	}
}

func TestFieldRoundTrip(t *testing.T) {
	for _, static := range []bool{false, true} {
		env := &recordingEnv{}
		inv, cache := newFixture(t, env)
		f, _ := cache.ResolveField(1, "ratio", "D", static)
		ctx := context.Background()

		if err := inv.SetField(ctx, static, 2, f, jni.DoubleValue(0.75)); err != nil {
			t.Fatalf("SetField failed: %v", err)
		}
		got, err := inv.GetField(ctx, static, 2, f)
		if err != nil {
			t.Fatalf("GetField failed: %v", err)
		}
		if got.Double() != 0.75 {
			t.Errorf("static=%v: got %v, want 0.75", static, got.Double())
		}
		if err := inv.SetField(ctx, static, 2, f, got); err != nil {
			t.Fatalf("SetField failed: %v", err)
		}
		if again, _ := inv.GetField(ctx, static, 2, f); again != got {
			t.Errorf("static=%v: get after set changed the value: %#x != %#x", static, uint64(again), uint64(got))
		}
	}
}

func TestFieldFailure(t *testing.T) {
	env := &recordingEnv{stored: jni.RefValue(3), err: errBacking}
	inv, cache := newFixture(t, env)
	f, _ := cache.ResolveField(1, "next", "Ljava/lang/Object;", false)

	got, err := inv.GetField(context.Background(), false, 1, f)
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !got.Ref().IsNull() {
		t.Errorf("expected null reference, got %d", got.Ref())
	}
	if err := inv.SetField(context.Background(), false, 1, f, jni.RefValue(4)); err == nil {
		t.Error("expected SetField error, got nil")
	}
}
