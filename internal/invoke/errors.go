package invoke

import "fmt"

// CallError wraps a failure reported by the backing environment.
type CallError struct {
	Op     string
	Member string
	Err    error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Member, e.Err)
}

func (e *CallError) Unwrap() error {
	return e.Err
}
