package mpmc

type options struct {
	allocator  any
	yieldEvery uint32
}

// Option configures a Queue at construction time.
type Option func(*options)

// WithAllocator makes the queue take its slot arena from a instead of the
// heap. The allocator must be built for the queue's element type.
func WithAllocator[T any](a Allocator[T]) Option {
	return func(o *options) {
		o.allocator = a
	}
}

// WithYield lets Push, Emplace and Pop call runtime.Gosched once every n
// failed turn checks. The default of 0 spins without ever yielding.
func WithYield(n int) Option {
	return func(o *options) {
		if n < 0 {
			n = 0
		}
		o.yieldEvery = uint32(n)
	}
}
