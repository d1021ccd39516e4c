// Package memerr defines the sentinel error taxonomy shared by the slab,
// arena, and pool engines. Callers distinguish cases with errors.Is, never
// by string comparison.
package memerr

import "errors"

var (
	// ErrInvalidArgs is returned for zero sizes at construction or a nil
	// handle/pointer passed to Free. A zero-size arena allocation is
	// reported by a nil Alloc result, not by this error.
	ErrInvalidArgs = errors.New("memengine: invalid arguments")

	// ErrOutOfMemory is returned when a backing buffer could not be
	// obtained at construction time.
	ErrOutOfMemory = errors.New("memengine: backing buffer allocation failed")

	// ErrExhausted names the case where no capacity remains: a slab with
	// no free blocks, or an arena with no remaining bytes. Non-fatal;
	// recoverable by Free (slab) or Reset (arena). Alloc reports this case
	// by returning nil; no function in this module returns this error.
	ErrExhausted = errors.New("memengine: no capacity remains")

	// ErrInvalidFree is returned when a pointer passed to Free is outside
	// the owning buffer, misaligned to the block grid, out of the index
	// range, or targets a block that is already free or was never issued
	// by this engine.
	ErrInvalidFree = errors.New("memengine: invalid free")
)
