package marshal

import (
	"fmt"

	"github.com/woxQAQ/jniproxy/pkg/jni"
)

// ArgumentError occurs when an argument cannot be read as its declared type.
type ArgumentError struct {
	Index int
	Want  jni.TypeTag
	Got   string
	Err   error
}

func (e *ArgumentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("argument %d (%s): %s: %v", e.Index, e.Want, e.Got, e.Err)
	}
	return fmt.Sprintf("argument %d (%s): %s", e.Index, e.Want, e.Got)
}

func (e *ArgumentError) Unwrap() error {
	return e.Err
}

// MemoryAccessError occurs when an argument lies outside guest memory.
type MemoryAccessError struct {
	Address uint32
	Length  uint32
}

func (e *MemoryAccessError) Error() string {
	return fmt.Sprintf("memory access out of range (addr=%d, len=%d)", e.Address, e.Length)
}
