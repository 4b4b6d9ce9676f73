package mpmc

import (
	"math"
	"sync/atomic"

	"github.com/pkg/errors"
	"golang.org/x/sys/cpu"
)

// Queue is a bounded lock-free MPMC FIFO queue. Create it with New; a Queue
// must not be copied after first use.
type Queue[T any] struct {
	_          cpu.CacheLinePad
	capacity   uint64
	slots      []Slot[T]
	alloc      Allocator[T]
	yieldEvery uint32
	_          cpu.CacheLinePad
	head       atomic.Uint64 // next producer ticket
	_          cpu.CacheLinePad
	tail       atomic.Uint64 // next consumer ticket
	_          cpu.CacheLinePad
}

// New creates a queue holding at most capacity elements.
//
// A capacity below 1 fails with ErrInvalidCapacity. math.MaxInt is clamped to
// math.MaxInt-1 so ticket arithmetic stays clear of overflow.
func New[T any](capacity int, opts ...Option) (*Queue[T], error) {
	if capacity < 1 {
		return nil, errors.Wrapf(ErrInvalidCapacity, "capacity %d", capacity)
	}
	capacity = clampCapacity(capacity)

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	var alloc Allocator[T] = HeapAllocator[T]{}
	if o.allocator != nil {
		a, ok := o.allocator.(Allocator[T])
		if !ok {
			return nil, errors.Wrapf(ErrAllocatorType, "got %T", o.allocator)
		}
		alloc = a
	}

	slots := alloc.Allocate(capacity)
	if len(slots) != capacity {
		n := len(slots)
		alloc.Deallocate(slots)
		return nil, errors.Wrapf(ErrShortArena, "want %d slots, got %d", capacity, n)
	}
	// every cell starts writable for lap 0
	clear(slots)

	return &Queue[T]{
		capacity:   uint64(capacity),
		slots:      slots,
		alloc:      alloc,
		yieldEvery: o.yieldEvery,
	}, nil
}

func clampCapacity(capacity int) int {
	if capacity >= math.MaxInt {
		return math.MaxInt - 1
	}
	return capacity
}

// Close tears the queue down: unread values are dropped and the arena goes
// back to its allocator. It must only be called once no goroutine is inside
// any other method, and the queue must not be used afterwards. Calling Close
// twice is a no-op.
func (q *Queue[T]) Close() {
	if q.slots == nil {
		return
	}
	for i := range q.slots {
		q.slots[i].teardown()
	}
	slots := q.slots
	q.slots = nil
	q.alloc.Deallocate(slots)
	q.alloc = nil
}

func (q *Queue[T]) lap(ticket uint64) uint64 {
	return ticket / q.capacity
}

func (q *Queue[T]) slot(ticket uint64) *Slot[T] {
	return &q.slots[ticket%q.capacity]
}

// claimWrite takes the next producer ticket and waits for its slot. It
// returns the slot and the turn to publish once the value is in place.
func (q *Queue[T]) claimWrite() (*Slot[T], uint64) {
	// the counter only hands out tickets; the slot turn orders the data
	ticket := q.head.Add(1) - 1
	s := q.slot(ticket)
	want := 2 * q.lap(ticket)
	s.waitTurn(want, q.yieldEvery)
	return s, want + 1
}

// tryClaimWrite claims a producer ticket only if its slot is writable right
// now. It reports false when head did not move between two looks at a slot
// that is still waiting for a consumer, i.e. the queue is full.
func (q *Queue[T]) tryClaimWrite() (*Slot[T], uint64, bool) {
	head := q.head.Load()
	for {
		s := q.slot(head)
		want := 2 * q.lap(head)
		if s.readTurn() == want {
			if q.head.CompareAndSwap(head, head+1) {
				return s, want + 1, true
			}
			// another producer took this ticket
			head = q.head.Load()
			continue
		}
		prev := head
		head = q.head.Load()
		if head == prev {
			return nil, 0, false
		}
	}
}

func (q *Queue[T]) claimRead() (*Slot[T], uint64) {
	ticket := q.tail.Add(1) - 1
	s := q.slot(ticket)
	want := 2*q.lap(ticket) + 1
	s.waitTurn(want, q.yieldEvery)
	return s, want + 1
}

func (q *Queue[T]) tryClaimRead() (*Slot[T], uint64, bool) {
	tail := q.tail.Load()
	for {
		s := q.slot(tail)
		want := 2*q.lap(tail) + 1
		if s.readTurn() == want {
			if q.tail.CompareAndSwap(tail, tail+1) {
				return s, want + 1, true
			}
			tail = q.tail.Load()
			continue
		}
		prev := tail
		tail = q.tail.Load()
		if tail == prev {
			return nil, 0, false
		}
	}
}

// Push appends v, spinning until the queue has room for it.
func (q *Queue[T]) Push(v T) {
	s, next := q.claimWrite()
	s.write(v)
	s.publish(next)
}

// TryPush appends v if the queue is not full and reports whether it did.
func (q *Queue[T]) TryPush(v T) bool {
	s, next, ok := q.tryClaimWrite()
	if !ok {
		return false
	}
	s.write(v)
	s.publish(next)
	return true
}

// Emplace is Push for values built in place: fn receives a pointer to the
// zeroed cell and fills it. fn runs while the slot is owned by the caller and
// must not touch the queue.
func (q *Queue[T]) Emplace(fn func(*T)) {
	s, next := q.claimWrite()
	fn(&s.value)
	s.publish(next)
}

// TryEmplace is the non-blocking form of Emplace. fn is only called when a
// slot was claimed.
func (q *Queue[T]) TryEmplace(fn func(*T)) bool {
	s, next, ok := q.tryClaimWrite()
	if !ok {
		return false
	}
	fn(&s.value)
	s.publish(next)
	return true
}

// Pop removes the oldest element, spinning until there is one.
func (q *Queue[T]) Pop() T {
	s, next := q.claimRead()
	v := s.take()
	s.publish(next)
	return v
}

// PopInto is Pop writing into dst.
func (q *Queue[T]) PopInto(dst *T) {
	*dst = q.Pop()
}

// TryPop removes the oldest element if there is one. On an empty queue it
// returns the zero value and false.
func (q *Queue[T]) TryPop() (T, bool) {
	s, next, ok := q.tryClaimRead()
	if !ok {
		var zero T
		return zero, false
	}
	v := s.take()
	s.publish(next)
	return v, true
}

// TryPopInto is TryPop writing into dst. dst is left untouched when the
// queue is empty.
func (q *Queue[T]) TryPopInto(dst *T) bool {
	s, next, ok := q.tryClaimRead()
	if !ok {
		return false
	}
	*dst = s.take()
	s.publish(next)
	return true
}

// Size returns head minus tail. Under concurrent use the two counters are
// read at different instants, so the result may briefly fall outside
// [0, Capacity()], including below zero while consumers wait in Pop.
func (q *Queue[T]) Size() int64 {
	tail := q.tail.Load()
	head := q.head.Load()
	return ticketDistance(head, tail)
}

// ticketDistance is head-tail over the wrapping uint64 ticket space. A
// difference past half the range means tail is ahead of head.
func ticketDistance(head, tail uint64) int64 {
	diff := head - tail
	if diff > math.MaxInt64 {
		return -int64(tail - head)
	}
	return int64(diff)
}

// Empty reports Size() <= 0.
func (q *Queue[T]) Empty() bool {
	return q.Size() <= 0
}

// Capacity returns the capacity fixed at construction.
func (q *Queue[T]) Capacity() int {
	return int(q.capacity)
}
