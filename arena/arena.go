// Package arena implements a bump allocator over a single contiguous
// buffer. Individual allocations have no destructor; liveness is a property
// of the era between calls to Reset, which is the only way to reclaim
// space.
package arena

import (
	"sync/atomic"
	"unsafe"

	"github.com/minio/memengine/align"
	"github.com/minio/memengine/internal/buffer"
	"github.com/minio/memengine/internal/memerr"
)

// Observer, if non-nil, is invoked around New and Destroy with an
// operation name ("create", "destroy") and any resulting error. Never
// invoked from Alloc: that stays on the fetch-and-add hot path. Nil by
// default; a host wires internal/telemetry.Hook("arena") into this
// variable when it wants lifecycle spans.
var Observer func(operation string, err error)

// Arena is a bump allocator. The zero value is not usable; call New.
type Arena struct {
	data     []byte
	capacity uintptr
	offset   atomic.Uint64
}

// New creates an Arena with the given capacity, rounded up to align.Line.
func New(capacity uintptr) (out *Arena, err error) {
	if Observer != nil {
		defer func() { Observer("create", err) }()
	}

	if capacity == 0 {
		return nil, memerr.ErrInvalidArgs
	}

	capAligned := align.RoundUpSize(capacity)
	data, err := buffer.Make(capAligned)
	if err != nil {
		return nil, err
	}

	return &Arena{data: data, capacity: capAligned}, nil
}

// Alloc returns a Line-aligned pointer to size bytes (size rounded up to
// align.Line), or nil if the remaining capacity is insufficient. A
// zero-size request also returns nil. Fetch-and-add with a capacity guard:
// only the winning CAS publishes the new offset, so concurrent callers
// never double-hand-out the same range.
func (a *Arena) Alloc(size uintptr) unsafe.Pointer {
	if a == nil || size == 0 {
		return nil
	}

	aligned := align.RoundUpSize(size)
	for {
		old := a.offset.Load()
		next := old + uint64(aligned)
		if next > uint64(a.capacity) {
			return nil
		}
		if a.offset.CompareAndSwap(old, next) {
			return unsafe.Pointer(&a.data[old])
		}
	}
}

// Reset invalidates all outstanding pointers and restores full capacity.
// Bytes are not zeroed. Idempotent.
func (a *Arena) Reset() {
	if a == nil {
		return
	}
	a.offset.Store(0)
}

// Destroy releases the arena's buffer. Safe on a nil *Arena. The host must
// ensure no other goroutine is mid-call.
func (a *Arena) Destroy() {
	if a == nil {
		return
	}
	a.data = nil
	a.capacity = 0
	a.offset.Store(0)
	if Observer != nil {
		Observer("destroy", nil)
	}
}

// Stats reports live bytes and total capacity.
func (a *Arena) Stats() (used, capacity uintptr) {
	if a == nil {
		return 0, 0
	}
	return uintptr(a.offset.Load()), a.capacity
}
