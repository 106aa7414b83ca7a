package wasm

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrRuntimeClosed is returned for operations on a closed runtime.
var ErrRuntimeClosed = errors.New("wasm runtime closed")

// CompilationError reports a guest binary wazero rejected.
type CompilationError struct {
	ModuleName string
	Err        error
}

func (e *CompilationError) Error() string {
	return fmt.Sprintf("guest '%s' does not compile: %v", e.ModuleName, e.Err)
}

func (e *CompilationError) Unwrap() error {
	return e.Err
}

// InstantiationError reports a guest that could not be linked or started.
type InstantiationError struct {
	ModuleName string
	InstanceID string
	Err        error
}

func (e *InstantiationError) Error() string {
	return fmt.Sprintf("instantiate guest '%s' as %s: %v", e.ModuleName, e.InstanceID, e.Err)
}

func (e *InstantiationError) Unwrap() error {
	return e.Err
}

// ModuleNotFoundError reports a guest name the loader never compiled.
type ModuleNotFoundError struct {
	ModuleName string
}

func (e *ModuleNotFoundError) Error() string {
	return fmt.Sprintf("guest '%s' is not compiled", e.ModuleName)
}

// FunctionNotFoundError reports a missing guest export.
type FunctionNotFoundError struct {
	ModuleName   string
	FunctionName string
}

func (e *FunctionNotFoundError) Error() string {
	return fmt.Sprintf("guest '%s' does not export '%s'", e.ModuleName, e.FunctionName)
}

// MemoryAccessError reports a failed guest allocation or memory access.
type MemoryAccessError struct {
	Operation string
	Address   uint32
	Length    uint32
	Err       error
}

func (e *MemoryAccessError) Error() string {
	return fmt.Sprintf("guest memory %s at %#x (%d bytes): %v", e.Operation, e.Address, e.Length, e.Err)
}

func (e *MemoryAccessError) Unwrap() error {
	return e.Err
}

// HostFunctionError reports a host module that failed to instantiate.
type HostFunctionError struct {
	FunctionName string
	Err          error
}

func (e *HostFunctionError) Error() string {
	return fmt.Sprintf("host module '%s': %v", e.FunctionName, e.Err)
}

func (e *HostFunctionError) Unwrap() error {
	return e.Err
}

// ExecutionError occurs when a guest export traps or fails
type ExecutionError struct {
	InstanceID   string
	FunctionName string
	Err          error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("call to '%s' in instance '%s' failed: %v", e.FunctionName, e.InstanceID, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// TimeoutError occurs when a guest call exceeds the execution timeout
type TimeoutError struct {
	Duration time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("guest execution timed out after %v", e.Duration)
}

// UnresolvedImportError lists JNI entries a guest imports that the host
// table does not implement.
type UnresolvedImportError struct {
	ModuleName string
	Imports    []string
}

func (e *UnresolvedImportError) Error() string {
	return fmt.Sprintf("module '%s' imports unimplemented JNI entries: %s",
		e.ModuleName, strings.Join(e.Imports, ", "))
}

// InstanceLimitError occurs when MaxInstances guests are already live.
type InstanceLimitError struct {
	Limit int
}

func (e *InstanceLimitError) Error() string {
	return fmt.Sprintf("instance limit of %d reached", e.Limit)
}

// InstanceClosedError occurs when calling into a closed instance.
type InstanceClosedError struct {
	InstanceID string
}

func (e *InstanceClosedError) Error() string {
	return fmt.Sprintf("instance '%s' is closed", e.InstanceID)
}
