// Package parking holds the garage core: occupancy and pricing math, the
// entry allocator, the placement/preemption resolver and the session
// lifecycle that sequences them inside one store transaction per event.
package parking

import "errors"

var (
	// ErrGarageFull is returned by HandleEntry when no sector has room.
	// It is recoverable; the entry is simply dropped.
	ErrGarageFull = errors.New("garage is full")

	// ErrNoAllocation is returned by the allocator when every sector was
	// full or every candidate spot was lost to a concurrent writer.
	ErrNoAllocation = errors.New("no spot could be allocated")

	// ErrSwapInvariant means the second leg of a double swap failed after
	// the first one succeeded.  The enclosing transaction must roll back.
	ErrSwapInvariant = errors.New("swap invariant violated")

	ErrInvalidTimestamp = errors.New("invalid timestamp")
	ErrUnknownEvent     = errors.New("unknown event type")
	ErrInvalidPayload   = errors.New("invalid event payload")
	ErrInvalidDate      = errors.New("invalid date")
)
