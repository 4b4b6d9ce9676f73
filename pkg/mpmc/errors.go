package mpmc

import "github.com/pkg/errors"

var (
	// ErrInvalidCapacity is returned by New when the requested capacity is
	// not a positive number of elements.
	ErrInvalidCapacity = errors.New("mpmc: capacity must be positive")

	// ErrShortArena is returned by New when an Allocator hands back a slot
	// arena whose length differs from the requested capacity.
	ErrShortArena = errors.New("mpmc: allocator returned an arena of the wrong length")

	// ErrAllocatorType is returned by New when the allocator passed through
	// WithAllocator was built for a different element type.
	ErrAllocatorType = errors.New("mpmc: allocator element type does not match queue")
)
