// Package slab implements a fixed-size block allocator over a single
// contiguous, pre-sized buffer. Blocks are handed out and reclaimed through
// a lock-free free-index stack: no mutex, no channel, every operation is
// either O(1) or an O(1) CAS retry.
//
// A Slab serves exactly one block size (its own, rounded up to align.Line).
// There are no multiple size classes: a Pool likewise serves the single
// block size of the Slab it owns.
package slab

import (
	"sync/atomic"
	"unsafe"

	"github.com/minio/memengine/align"
	"github.com/minio/memengine/internal/buffer"
	"github.com/minio/memengine/internal/memerr"
)

// Sentinel tags distinguishing a block's state. These are structural
// debug aids, not security tokens: a block's metadata lives in memory the
// caller can corrupt, so Free validates structurally but never trusts the
// tag as a capability.
const (
	freeTag  uint64 = 0xF2EE11570CADCAFE
	allocTag uint64 = 0xA110C8ED0B10CCED
)

// blockMeta tracks one block's liveness. magic and free are atomic: a
// concurrent Free on a neighboring block can touch this cache line under
// false sharing, and atomics avoid a torn read of either field. index is
// immutable after New and exists purely as a redundant cross-check against
// the index recovered from a freed pointer's offset.
type blockMeta struct {
	magic atomic.Uint64
	free  atomic.Uint32
	index uint32
}

// Observer, if non-nil, is invoked around New and Destroy with an
// operation name ("create", "destroy") and any resulting error. It is
// never invoked from Alloc or Free: those stay on the lock-free hot path,
// where a tracing call has no business running. Nil by default —
// observability is strictly opt-in; a host wires internal/telemetry.Hook
// ("slab") into this variable when it wants lifecycle spans.
var Observer func(operation string, err error)

// Slab is a fixed-size block allocator. The zero value is not usable; call
// New.
type Slab struct {
	data      []byte
	blockSize uintptr // block stride, rounded up to align.Line
	numBlocks uintptr

	metadata []blockMeta
	freeList []uint32

	freeTop   atomic.Uint64 // stack depth: valid entries occupy freeList[0:freeTop]
	freeCount atomic.Int64  // mirrors freeTop, for Stats
}

// New creates a Slab of numBlocks blocks, each at least blockSize bytes
// (rounded up to align.Line). All blocks begin free.
func New(blockSize, numBlocks uintptr) (out *Slab, err error) {
	if Observer != nil {
		defer func() { Observer("create", err) }()
	}

	if blockSize == 0 || numBlocks == 0 {
		return nil, memerr.ErrInvalidArgs
	}

	aligned := align.RoundUpSize(blockSize)
	total := aligned * numBlocks

	data, err := buffer.Make(total)
	if err != nil {
		return nil, err
	}

	s := &Slab{
		data:      data,
		blockSize: aligned,
		numBlocks: numBlocks,
		metadata:  make([]blockMeta, numBlocks),
		freeList:  make([]uint32, numBlocks),
	}

	for i := uintptr(0); i < numBlocks; i++ {
		s.freeList[i] = uint32(i)
		s.metadata[i].index = uint32(i)
		s.metadata[i].magic.Store(freeTag)
		s.metadata[i].free.Store(1)
	}
	s.freeTop.Store(uint64(numBlocks))
	s.freeCount.Store(int64(numBlocks))

	return s, nil
}

// Alloc returns a Line-aligned pointer to a free block, or nil if the slab
// is exhausted. O(1) expected; retries its CAS under contention but never
// blocks.
func (s *Slab) Alloc() unsafe.Pointer {
	if s == nil {
		return nil
	}
	for {
		top := s.freeTop.Load()
		if top == 0 {
			return nil
		}
		if s.freeTop.CompareAndSwap(top, top-1) {
			idx := s.freeList[top-1]
			meta := &s.metadata[idx]
			meta.magic.Store(allocTag)
			meta.free.Store(0)
			s.freeCount.Add(-1)
			return unsafe.Pointer(&s.data[uintptr(idx)*s.blockSize])
		}
	}
}

// Free returns a previously-allocated block to the slab. It returns a
// non-nil error (never panics, never corrupts state) for any pointer this
// slab did not hand out or already considers free.
//
// The block is marked free first, then the free-index slot is claimed via
// CAS on freeTop *before* the index is written into freeList, so a
// concurrent Alloc can never observe a published slot with stale contents.
func (s *Slab) Free(ptr unsafe.Pointer) error {
	if s == nil || ptr == nil {
		return memerr.ErrInvalidArgs
	}
	if len(s.data) == 0 {
		return memerr.ErrInvalidFree
	}

	base := uintptr(unsafe.Pointer(&s.data[0]))
	addr := uintptr(ptr)
	if addr < base || addr >= base+uintptr(len(s.data)) {
		return memerr.ErrInvalidFree
	}

	off := addr - base
	if off%s.blockSize != 0 {
		return memerr.ErrInvalidFree
	}
	idx := off / s.blockSize
	if idx >= s.numBlocks {
		return memerr.ErrInvalidFree
	}

	meta := &s.metadata[idx]
	if meta.index != uint32(idx) {
		return memerr.ErrInvalidFree
	}
	if meta.magic.Load() != allocTag || meta.free.Load() != 0 {
		return memerr.ErrInvalidFree
	}

	meta.magic.Store(freeTag)
	meta.free.Store(1)

	for {
		old := s.freeTop.Load()
		if s.freeTop.CompareAndSwap(old, old+1) {
			s.freeList[old] = uint32(idx)
			break
		}
	}
	s.freeCount.Add(1)
	return nil
}

// Destroy releases the slab's buffer, metadata, and free-list. Safe on a
// nil *Slab. The host must ensure no other goroutine is mid-call. After
// Destroy, Alloc returns nil and Free returns an error.
func (s *Slab) Destroy() {
	if s == nil {
		return
	}
	s.data = nil
	s.metadata = nil
	s.freeList = nil
	s.numBlocks = 0
	s.freeTop.Store(0)
	s.freeCount.Store(0)
	if Observer != nil {
		Observer("destroy", nil)
	}
}

// Stats reports a point-in-time count of allocated and free blocks. Under
// concurrent mutation the split between used and free may be slightly
// stale relative to the exact operation in flight, but used+free always
// equals the slab's block count: used is derived from the same freeCount
// mirror Free publishes, rather than tracked by an independent counter, so
// this implementation does not reproduce the brief used+free<numBlocks
// window the design notes call out as acceptable in the original source.
func (s *Slab) Stats() (used, free uintptr) {
	if s == nil {
		return 0, 0
	}
	f := s.freeCount.Load()
	if f < 0 {
		f = 0
	}
	total := int64(s.numBlocks)
	u := total - f
	if u < 0 {
		u = 0
	}
	return uintptr(u), uintptr(f)
}
