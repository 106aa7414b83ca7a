package member

import (
	"sync"
	"sync/atomic"

	"github.com/woxQAQ/jniproxy/api/secure"
	"github.com/woxQAQ/jniproxy/pkg/jni"
	"go.uber.org/zap"
)

// Handle is the opaque member ID handed to native callers (jmethodID,
// jfieldID). The low 24 bits hold the arena slot plus one, the high 8 bits
// the generation of the cache that issued it. Handle 0 is the null handle.
type Handle uint32

const (
	slotBits = 24
	slotMask = 1<<slotBits - 1

	// MaxRecords is the number of records a single cache can hold.
	MaxRecords = slotMask
)

// NullHandle is returned to native callers when resolution fails.
const NullHandle Handle = 0

// IsNull reports whether h is the null handle.
func (h Handle) IsNull() bool { return h == NullHandle }

func (h Handle) slot() int         { return int(h&slotMask) - 1 }
func (h Handle) generation() uint8 { return uint8(h >> slotBits) }

func makeHandle(gen uint8, slot int) Handle {
	return Handle(uint32(gen)<<slotBits | uint32(slot+1))
}

// generations hands out a generation to each cache so a handle issued by one
// cache is rejected by another (the counter wraps after 255 caches).
// Generation 0 is skipped so a valid handle is never a small integer.
var generations atomic.Uint32

func nextGeneration() uint8 {
	for {
		g := uint8(generations.Add(1))
		if g != 0 {
			return g
		}
	}
}

type nativeKey struct {
	kind   Kind
	native uint64
}

// Cache maps backing-environment member handles to identity-stable records.
// Records live in an append-only arena and are never removed, so a Handle
// stays valid for the lifetime of the cache.
type Cache struct {
	mu      sync.RWMutex
	records []Record
	index   map[nativeKey]Handle
	gen     uint8
	logger  *zap.Logger
}

// NewCache creates an empty cache with room for capacity records before the
// arena grows.
func NewCache(capacity int, logger *zap.Logger) *Cache {
	if capacity <= 0 {
		capacity = 64
	}
	return &Cache{
		records: make([]Record, 0, capacity),
		index:   make(map[nativeKey]Handle, capacity),
		gen:     nextGeneration(),
		logger:  logger.With(zap.String("component", "member-cache")),
	}
}

// ResolveMethod returns the record for the backing method handle, creating
// it on first resolution. An existing record wins even if name or
// descriptor differ from the ones it was created with.
func (c *Cache) ResolveMethod(native secure.MethodID, name, descriptor string, static bool) (*MethodRecord, error) {
	rec, err := c.resolve(nativeKey{KindMethod, uint64(native)}, func() Record {
		return &MethodRecord{
			base:      newBase(name, descriptor, static),
			Signature: jni.ParseMethodDescriptor(descriptor),
			Native:    native,
		}
	})
	if err != nil {
		return nil, err
	}
	return rec.(*MethodRecord), nil
}

// ResolveField returns the record for the backing field handle, creating it
// on first resolution.
func (c *Cache) ResolveField(native secure.FieldID, name, descriptor string, static bool) (*FieldRecord, error) {
	rec, err := c.resolve(nativeKey{KindField, uint64(native)}, func() Record {
		return &FieldRecord{
			base:   newBase(name, descriptor, static),
			Type:   jni.ParseFieldDescriptor(descriptor),
			Native: native,
		}
	})
	if err != nil {
		return nil, err
	}
	return rec.(*FieldRecord), nil
}

func (c *Cache) resolve(key nativeKey, build func() Record) (Record, error) {
	c.mu.RLock()
	if h, ok := c.index[key]; ok {
		rec := c.records[h.slot()]
		c.mu.RUnlock()
		return rec, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	// Another caller may have inserted the record between the two locks.
	if h, ok := c.index[key]; ok {
		return c.records[h.slot()], nil
	}

	if len(c.records) >= MaxRecords {
		return nil, &CacheFullError{Capacity: MaxRecords}
	}

	rec := build()
	slot := len(c.records)
	h := makeHandle(c.gen, slot)
	switch r := rec.(type) {
	case *MethodRecord:
		r.handle = h
	case *FieldRecord:
		r.handle = h
	}
	c.records = append(c.records, rec)
	c.index[key] = h

	c.logger.Debug("Member record created",
		zap.String("kind", key.kind.String()),
		zap.String("name", rec.Name()),
		zap.String("descriptor", rec.Descriptor()),
		zap.Uint32("handle", uint32(h)),
	)

	return rec, nil
}

// Lookup returns the record named by h.
func (c *Cache) Lookup(h Handle, want Kind) (Record, error) {
	if h.IsNull() {
		return nil, &InvalidHandleError{Handle: h, Want: want, Reason: "null handle"}
	}
	if h.generation() != c.gen {
		return nil, &InvalidHandleError{Handle: h, Want: want, Reason: "handle issued by another cache"}
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	slot := h.slot()
	if slot < 0 || slot >= len(c.records) {
		return nil, &InvalidHandleError{Handle: h, Want: want, Reason: "slot out of range"}
	}
	rec := c.records[slot]
	if rec.Kind() != want {
		return nil, &InvalidHandleError{Handle: h, Want: want, Reason: "handle names a " + rec.Kind().String()}
	}
	return rec, nil
}

// Method returns the method record named by h.
func (c *Cache) Method(h Handle) (*MethodRecord, error) {
	rec, err := c.Lookup(h, KindMethod)
	if err != nil {
		return nil, err
	}
	return rec.(*MethodRecord), nil
}

// Field returns the field record named by h.
func (c *Cache) Field(h Handle) (*FieldRecord, error) {
	rec, err := c.Lookup(h, KindField)
	if err != nil {
		return nil, err
	}
	return rec.(*FieldRecord), nil
}

// Len returns the number of records in the cache.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}

// Each calls fn for every record in creation order until fn returns false.
func (c *Cache) Each(fn func(Record) bool) {
	c.mu.RLock()
	records := make([]Record, len(c.records))
	copy(records, c.records)
	c.mu.RUnlock()

	for _, rec := range records {
		if !fn(rec) {
			return
		}
	}
}
