package pool

import (
	"testing"
	"unsafe"

	"github.com/minio/memengine/internal/memerr"
)

func TestNewRejectsZeroArgs(t *testing.T) {
	cases := []struct {
		name                                    string
		blockSize, blocksPerWorker, totalBlocks uintptr
	}{
		{"zero block size", 0, 4, 100},
		{"zero blocks per worker", 64, 0, 100},
		{"zero total blocks", 64, 4, 0},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New(tt.blockSize, tt.blocksPerWorker, tt.totalBlocks)
			if p != nil || err != memerr.ErrInvalidArgs {
				t.Fatalf("New(...) = (%v, %v), want (nil, ErrInvalidArgs)", p, err)
			}
		})
	}
}

func TestAllocFreeRoundTrip(t *testing.T) {
	p, err := New(64, 10, 100)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Destroy()

	w := p.Borrow()
	defer w.Release()

	ptr := w.Alloc()
	if ptr == nil {
		t.Fatalf("Alloc returned nil")
	}
	if err := w.Free(ptr); err != nil {
		t.Fatalf("Free: %v", err)
	}
}

func TestCacheHitsAvoidSlabAfterFirstMiss(t *testing.T) {
	p, err := New(64, 4, 100)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Destroy()

	w := p.Borrow()
	defer w.Release()

	ptr := w.Alloc() // miss: delegates to Slab
	if ptr == nil {
		t.Fatalf("Alloc returned nil")
	}
	if err := w.Free(ptr); err != nil {
		t.Fatalf("Free: %v", err)
	}

	_, freeBefore := p.Stats()
	for i := 0; i < 100; i++ {
		q := w.Alloc()
		if q == nil {
			t.Fatalf("Alloc returned nil on iteration %d", i)
		}
		if err := w.Free(q); err != nil {
			t.Fatalf("Free: %v", err)
		}
	}
	_, freeAfter := p.Stats()
	if freeBefore != freeAfter {
		t.Fatalf("Slab free count changed (%d -> %d) across cache-hit-only traffic", freeBefore, freeAfter)
	}
}

func TestWorkerReleaseReturnsCachedBlocksToSlab(t *testing.T) {
	p, err := New(64, 4, 100)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Destroy()

	w := p.Borrow()
	ptr := w.Alloc()
	if err := w.Free(ptr); err != nil {
		t.Fatalf("Free: %v", err)
	}

	// The block now sits in w's cache; the Slab still considers it
	// checked out (Pool.Stats forwards to Slab, per the documented
	// "cached blocks count as allocated" semantics).
	usedBefore, freeBefore := p.Stats()
	if usedBefore != 1 || freeBefore != 99 {
		t.Fatalf("Stats before Release = (%d, %d), want (1, 99)", usedBefore, freeBefore)
	}

	w.Release()

	usedAfter, freeAfter := p.Stats()
	if usedAfter != 0 || freeAfter != 100 {
		t.Fatalf("Stats after Release = (%d, %d), want (0, 100)", usedAfter, freeAfter)
	}
}

func TestBorrowOnNilPoolDegradesGracefully(t *testing.T) {
	var p *Pool
	w := p.Borrow()
	if ptr := w.Alloc(); ptr != nil {
		t.Fatalf("Alloc on degraded worker = %v, want nil", ptr)
	}
	if err := w.Free(unsafe.Pointer(uintptr(1))); err == nil {
		t.Fatalf("Free on degraded worker = nil, want error")
	}
	w.Release() // must not panic
}

func TestDestroyOnNilIsNoop(t *testing.T) {
	var p *Pool
	p.Destroy()
	used, free := p.Stats()
	if used != 0 || free != 0 {
		t.Fatalf("Stats on nil pool = (%d, %d), want (0, 0)", used, free)
	}
}

func TestDistinctWorkersNeverShareABlock(t *testing.T) {
	p, err := New(64, 8, 64)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Destroy()

	w1 := p.Borrow()
	w2 := p.Borrow()
	defer w1.Release()
	defer w2.Release()

	// Hold one block per worker concurrently live and confirm they never
	// coincide; each worker frees its held block before taking the next so
	// this exercises sequential reuse, not simultaneous aliasing.
	for i := 0; i < 8; i++ {
		p1 := w1.Alloc()
		p2 := w2.Alloc()
		if p1 == nil || p2 == nil {
			t.Fatalf("unexpected exhaustion at iteration %d", i)
		}
		if p1 == p2 {
			t.Fatalf("workers concurrently hold the same block at iteration %d", i)
		}
		if err := w1.Free(p1); err != nil {
			t.Fatalf("w1.Free: %v", err)
		}
		if err := w2.Free(p2); err != nil {
			t.Fatalf("w2.Free: %v", err)
		}
	}
}
