package member

import (
	"strings"

	"github.com/woxQAQ/jniproxy/api/secure"
	"github.com/woxQAQ/jniproxy/pkg/jni"
)

// Kind distinguishes method records from field records.
type Kind uint8

const (
	KindMethod Kind = iota + 1
	KindField
)

func (k Kind) String() string {
	switch k {
	case KindMethod:
		return "method"
	case KindField:
		return "field"
	}
	return "unknown"
}

// Record is the metadata shared by methods and fields. A record never
// changes handle after creation.
type Record interface {
	Name() string
	Descriptor() string
	Handle() Handle
	Kind() Kind
}

type base struct {
	name       string
	descriptor string
	handle     Handle
	static     bool
}

func newBase(name, descriptor string, static bool) base {
	return base{
		name:       strings.Clone(name),
		descriptor: strings.Clone(descriptor),
		static:     static,
	}
}

// Name returns the member name.
func (b *base) Name() string { return b.name }

// Descriptor returns the raw descriptor string the member was resolved with.
func (b *base) Descriptor() string { return b.descriptor }

// Handle returns the cache-assigned handle.
func (b *base) Handle() Handle { return b.handle }

// Static reports whether the member was resolved as a static member.
func (b *base) Static() bool { return b.static }

// MethodRecord describes a resolved method.
type MethodRecord struct {
	base
	Signature jni.MethodSignature
	Native    secure.MethodID
}

// Kind implements Record.
func (*MethodRecord) Kind() Kind { return KindMethod }

// Return returns the declared return type.
func (m *MethodRecord) Return() jni.TypeTag { return m.Signature.Return }

// FieldRecord describes a resolved field.
type FieldRecord struct {
	base
	Type   jni.TypeTag
	Native secure.FieldID
}

// Kind implements Record.
func (*FieldRecord) Kind() Kind { return KindField }
