package dispatch

import (
	"fmt"

	"github.com/tetratelabs/wazero/api"

	"github.com/woxQAQ/jniproxy/internal/invoke"
	"github.com/woxQAQ/jniproxy/pkg/jni"
)

// Op is the kind of work an entry performs.
type Op uint8

const (
	// OpPlain entries have a hand-written handler.
	OpPlain Op = iota
	OpCall
	OpNewObject
	OpGetField
	OpSetField
)

func (o Op) String() string {
	switch o {
	case OpPlain:
		return "plain"
	case OpCall:
		return "call"
	case OpNewObject:
		return "new-object"
	case OpGetField:
		return "get-field"
	case OpSetField:
		return "set-field"
	}
	return fmt.Sprintf("Op(%d)", uint8(o))
}

// Convention is how a method entry receives its arguments.
type Convention uint8

const (
	// Variadic entries take C variadic arguments (...).
	Variadic Convention = iota
	// VaList entries take a va_list.
	VaList
	// Array entries take a jvalue array.
	Array
)

// Suffix is the JNI name suffix of the convention.
func (c Convention) Suffix() string {
	switch c {
	case VaList:
		return "V"
	case Array:
		return "A"
	}
	return ""
}

func (c Convention) String() string {
	switch c {
	case Variadic:
		return "variadic"
	case VaList:
		return "va_list"
	case Array:
		return "array"
	}
	return fmt.Sprintf("Convention(%d)", uint8(c))
}

// Entry is one slot of the function table.
type Entry struct {
	Index      int
	Name       string
	Op         Op
	Binding    invoke.BindingKind
	Convention Convention
	Return     jni.TypeTag
	Params     []api.ValueType
	Results    []api.ValueType
	Handler    Handler
}

// Reserved reports whether the slot is one of the anonymous reserved slots.
func (e *Entry) Reserved() bool {
	return e.Name == ""
}

// Implemented reports whether the entry can be called. Named slots outside
// the supported surface (arrays, monitors, native registration) are present
// for layout only.
func (e *Entry) Implemented() bool {
	return e.Handler != nil
}

// Table is the function table in slot order.
type Table struct {
	entries []Entry
	byName  map[string]int
}

// Len returns the number of slots.
func (t *Table) Len() int {
	return len(t.entries)
}

// Slot returns the entry at index i.
func (t *Table) Slot(i int) (*Entry, bool) {
	if i < 0 || i >= len(t.entries) {
		return nil, false
	}
	return &t.entries[i], true
}

// Lookup returns the entry with the given JNI name.
func (t *Table) Lookup(name string) (*Entry, bool) {
	i, ok := t.byName[name]
	if !ok {
		return nil, false
	}
	return &t.entries[i], true
}

// Each calls fn for every slot in order until fn returns false.
func (t *Table) Each(fn func(*Entry) bool) {
	for i := range t.entries {
		if !fn(&t.entries[i]) {
			return
		}
	}
}

// Family is one row of the declarative table: an operation, a binding kind
// and a return type. The Builder expands it into one entry per calling
// convention (method families) or a single entry (field families).
type Family struct {
	Op      Op
	Binding invoke.BindingKind
	Return  jni.TypeTag
}

// Name returns the JNI name of the family's entry for convention c.
func (f Family) Name(c Convention) string {
	switch f.Op {
	case OpNewObject:
		return "NewObject" + c.Suffix()
	case OpCall:
		return "Call" + bindingInfix(f.Binding) + f.Return.Title() + "Method" + c.Suffix()
	case OpGetField:
		return "Get" + staticInfix(f.Binding) + f.Return.Title() + "Field"
	case OpSetField:
		return "Set" + staticInfix(f.Binding) + f.Return.Title() + "Field"
	}
	return ""
}

func bindingInfix(k invoke.BindingKind) string {
	switch k {
	case invoke.Nonvirtual:
		return "Nonvirtual"
	case invoke.Static:
		return "Static"
	}
	return ""
}

func staticInfix(k invoke.BindingKind) string {
	if k == invoke.Static {
		return "Static"
	}
	return ""
}

// Builder assembles a Table slot by slot.
type Builder struct {
	entries []Entry
	byName  map[string]int
	err     error
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{byName: make(map[string]int)}
}

func (b *Builder) add(e Entry) *Builder {
	if b.err != nil {
		return b
	}
	e.Index = len(b.entries)
	if e.Name != "" {
		if prev, dup := b.byName[e.Name]; dup {
			b.err = fmt.Errorf("duplicate entry %q at slots %d and %d", e.Name, prev, e.Index)
			return b
		}
		b.byName[e.Name] = e.Index
	}
	b.entries = append(b.entries, e)
	return b
}

// Reserved appends n anonymous reserved slots.
func (b *Builder) Reserved(n int) *Builder {
	for range n {
		b.add(Entry{})
	}
	return b
}

// Unimplemented appends named slots that have no handler.
func (b *Builder) Unimplemented(names ...string) *Builder {
	for _, name := range names {
		b.add(Entry{Name: name})
	}
	return b
}

// Func appends a plain entry.
func (b *Builder) Func(name string, params, results []api.ValueType, h Handler) *Builder {
	return b.add(Entry{
		Name:    name,
		Op:      OpPlain,
		Return:  jni.Void,
		Params:  params,
		Results: results,
		Handler: h,
	})
}

// Family appends the entries of f.
func (b *Builder) Family(f Family) *Builder {
	switch f.Op {
	case OpCall, OpNewObject:
		for _, c := range []Convention{Variadic, VaList, Array} {
			b.add(Entry{
				Name:       f.Name(c),
				Op:         f.Op,
				Binding:    f.Binding,
				Convention: c,
				Return:     f.Return,
				Params:     methodParams(f),
				Results:    resultTypes(f.Return),
				Handler:    methodHandler(f, c),
			})
		}
	case OpGetField, OpSetField:
		e := Entry{
			Name:    f.Name(Variadic),
			Op:      f.Op,
			Binding: f.Binding,
			Return:  f.Return,
			Params:  []api.ValueType{i32, i32},
			Handler: fieldHandler(f),
		}
		if f.Op == OpGetField {
			e.Results = resultTypes(f.Return)
		} else {
			vt, _ := ValueType(f.Return)
			e.Params = append(e.Params, vt)
		}
		b.add(e)
	default:
		if b.err == nil {
			b.err = fmt.Errorf("family %s cannot be expanded", f.Op)
		}
	}
	return b
}

// Families appends one family per return type.
func (b *Builder) Families(op Op, binding invoke.BindingKind, returns ...jni.TypeTag) *Builder {
	for _, t := range returns {
		b.Family(Family{Op: op, Binding: binding, Return: t})
	}
	return b
}

// Build returns the assembled table.
func (b *Builder) Build() (*Table, error) {
	if b.err != nil {
		return nil, b.err
	}
	return &Table{entries: b.entries, byName: b.byName}, nil
}

const i32 = api.ValueTypeI32

// methodParams lays out (target, [class,] method, args) as i32 words.
func methodParams(f Family) []api.ValueType {
	if f.Op == OpCall && f.Binding == invoke.Nonvirtual {
		return []api.ValueType{i32, i32, i32, i32}
	}
	return []api.ValueType{i32, i32, i32}
}
