package sandbox

import (
	"errors"
	"fmt"

	"github.com/woxQAQ/jniproxy/pkg/jni"
)

var (
	// ErrNullReference is returned when a required reference is null.
	ErrNullReference = errors.New("null reference")
	// ErrNotThrowable is returned by Throw for objects that are not throwables.
	ErrNotThrowable = errors.New("object is not a throwable")
)

// NoSuchClassError occurs when a class name is not defined.
type NoSuchClassError struct {
	Name string
}

func (e *NoSuchClassError) Error() string {
	return fmt.Sprintf("no such class: %s", e.Name)
}

// NoSuchMemberError occurs when a method or field cannot be resolved.
type NoSuchMemberError struct {
	Class      string
	Name       string
	Descriptor string
	Kind       string
	Static     bool
}

func (e *NoSuchMemberError) Error() string {
	kind := e.Kind
	if e.Static {
		kind = "static " + kind
	}
	return fmt.Sprintf("no such %s: %s.%s%s", kind, e.Class, e.Name, e.Descriptor)
}

// InvalidRefError occurs when a reference does not name a live value of the
// expected kind.
type InvalidRefError struct {
	Ref  jni.Ref
	Want string
}

func (e *InvalidRefError) Error() string {
	return fmt.Sprintf("invalid %s reference %d", e.Want, e.Ref)
}

// TypeMismatchError occurs when a field is accessed with the wrong type.
type TypeMismatchError struct {
	Member string
	Want   jni.TypeTag
	Got    jni.TypeTag
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("%s: accessed as %s, declared %s", e.Member, e.Got, e.Want)
}

// ClassDefinitionError occurs when a class definition is rejected.
type ClassDefinitionError struct {
	Class  string
	Reason string
	Err    error
}

func (e *ClassDefinitionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cannot define class %s: %s: %v", e.Class, e.Reason, e.Err)
	}
	return fmt.Sprintf("cannot define class %s: %s", e.Class, e.Reason)
}

func (e *ClassDefinitionError) Unwrap() error {
	return e.Err
}

// ThrownError reports that a call completed abruptly. The throwable is left
// pending on the VM.
type ThrownError struct {
	Class   string
	Message string
}

func (e *ThrownError) Error() string {
	if e.Message == "" {
		return "exception thrown: " + e.Class
	}
	return fmt.Sprintf("exception thrown: %s: %s", e.Class, e.Message)
}

// FatalError is returned by VM.FatalError.
type FatalError struct {
	Message string
}

func (e *FatalError) Error() string {
	return "fatal error: " + e.Message
}
