// Package pool implements the thread-tiered allocator engine: a per-worker
// cache of free blocks layered atop a shared slab.Slab, eliminating
// contention on the hot path whenever a worker's own cache can satisfy the
// request.
//
// A "thread" becomes, in Go, an explicit *Worker handle rather than
// OS/goroutine-local storage: this makes the cache's lifetime visible in
// the type system instead of hidden behind a TLS key and an exit hook.
package pool

import (
	"unsafe"

	"github.com/minio/memengine/internal/memerr"
	"github.com/minio/memengine/slab"
)

// Observer, if non-nil, is invoked around New, Borrow, and Destroy with an
// operation name ("create", "borrow", "destroy") and any resulting error.
// Never invoked from Worker.Alloc/Worker.Free: those stay on the hot path.
// Nil by default; a host wires internal/telemetry.Hook("pool") into this
// variable when it wants lifecycle spans.
var Observer func(operation string, err error)

// Pool composes a shared slab.Slab with a per-worker cache tier.
type Pool struct {
	global          *slab.Slab
	blockSize       uintptr
	blocksPerWorker uintptr
}

// Worker is a single goroutine's (or other confined unit of concurrency's)
// cache of checked-out blocks. A Worker must never be shared between
// goroutines: its cache is goroutine-confined by construction, so its
// count field is a plain int rather than an atomic — there is no other
// goroutine that could race it.
type Worker struct {
	pool  *Pool
	cache []unsafe.Pointer
	count int
}

// New constructs a Pool backed by a Slab of (blockSize, totalBlocks), with
// each Worker caching up to blocksPerWorker blocks locally.
func New(blockSize, blocksPerWorker, totalBlocks uintptr) (out *Pool, err error) {
	if Observer != nil {
		defer func() { Observer("create", err) }()
	}

	if blockSize == 0 || blocksPerWorker == 0 || totalBlocks == 0 {
		return nil, memerr.ErrInvalidArgs
	}
	g, err := slab.New(blockSize, totalBlocks)
	if err != nil {
		return nil, err
	}
	return &Pool{global: g, blockSize: blockSize, blocksPerWorker: blocksPerWorker}, nil
}

// Borrow lazily allocates a Worker's cache storage. The host calls
// Worker.Release when the owning goroutine is done (the Go analogue of a
// thread-exit hook). Borrow on a nil Pool returns a Worker with no cache
// and no Slab behind it: its Alloc returns nil, its Free returns an error,
// and its Release does nothing. On a destroyed Pool, a Worker's cache
// misses fall through to the destroyed, empty Slab, so Alloc returns nil.
func (p *Pool) Borrow() *Worker {
	w := &Worker{pool: p}
	if p != nil {
		w.cache = make([]unsafe.Pointer, 0, p.blocksPerWorker)
	}
	if Observer != nil {
		Observer("borrow", nil)
	}
	return w
}

// Alloc returns a Line-aligned block, or nil if none is available. It never
// touches the shared Slab when w's own cache has a block.
func (w *Worker) Alloc() unsafe.Pointer {
	if w == nil {
		return nil
	}
	if w.count > 0 {
		w.count--
		p := w.cache[w.count]
		w.cache = w.cache[:w.count]
		return p
	}
	if w.pool == nil {
		return nil
	}
	return w.pool.global.Alloc()
}

// Free returns ptr to the pool. It never touches the shared Slab when w's
// cache has a free slot.
func (w *Worker) Free(ptr unsafe.Pointer) error {
	if w == nil || ptr == nil {
		return memerr.ErrInvalidArgs
	}
	if w.pool != nil && uintptr(w.count) < w.pool.blocksPerWorker {
		w.cache = append(w.cache, ptr)
		w.count++
		return nil
	}
	if w.pool == nil {
		return memerr.ErrInvalidFree
	}
	return w.pool.global.Free(ptr)
}

// Release returns every block still parked in w's cache to the shared Slab
// and drops the cache array. Call this once, when the owning goroutine is
// done with the pool — the Go analogue of a thread-exit hook. After
// Release, w must not be used again.
func (w *Worker) Release() {
	if w == nil || w.pool == nil {
		return
	}
	for _, p := range w.cache[:w.count] {
		_ = w.pool.global.Free(p)
	}
	w.cache = nil
	w.count = 0
}

// Destroy destroys the shared Slab. The behavior of any still-outstanding
// Worker after Destroy is undefined: the host must quiesce (release every
// Worker) before calling Destroy.
func (p *Pool) Destroy() {
	if p == nil {
		return
	}
	p.global.Destroy()
	if Observer != nil {
		Observer("destroy", nil)
	}
}

// Stats forwards to the underlying Slab. Blocks currently parked in any
// Worker's cache are counted as "allocated" from the Slab's point of view —
// this is the only semantics computable without a global walk of every
// live Worker, and is the documented, intentional behavior.
func (p *Pool) Stats() (allocated, free uintptr) {
	if p == nil {
		return 0, 0
	}
	return p.global.Stats()
}
