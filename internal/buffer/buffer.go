// Package buffer provides the single "obtain a backing buffer or report
// OutOfMemory" primitive shared by the slab and arena engines. make panics
// rather than returning an error when the requested length cannot be
// satisfied (e.g. it is too large for the address space); this package is
// the one place that translates that panic into an ErrOutOfMemory sentinel.
// A genuine out-of-memory condition in the Go runtime is a fatal error, not
// a panic, and is not converted.
package buffer

import "github.com/minio/memengine/internal/memerr"

// Make allocates a zeroed byte slice of the given size, converting the
// panic make raises for an unsatisfiable length (e.g. size too large for
// the address space) into
// memerr.ErrOutOfMemory instead of crashing the host process.
func Make(size uintptr) (buf []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			buf = nil
			err = memerr.ErrOutOfMemory
		}
	}()
	buf = make([]byte, size)
	return buf, nil
}
