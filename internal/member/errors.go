package member

import (
	"fmt"
)

// InvalidHandleError occurs when a handle does not name a record of the
// expected kind in this cache.
type InvalidHandleError struct {
	Handle Handle
	Want   Kind
	Reason string
}

func (e *InvalidHandleError) Error() string {
	return fmt.Sprintf("invalid %s handle %#x: %s", e.Want, uint32(e.Handle), e.Reason)
}

// CacheFullError occurs when the arena has no free slot left for a new record.
type CacheFullError struct {
	Capacity int
}

func (e *CacheFullError) Error() string {
	return fmt.Sprintf("member cache full (%d records)", e.Capacity)
}
