// Package locked is the mutex-guarded baseline: a growable ring from
// github.com/eapache/queue bounded by a capacity check under a sync.Mutex.
package locked

import (
	"runtime"
	"sync"

	ring "github.com/eapache/queue"
	"github.com/pkg/errors"
)

// ErrInvalidCapacity is returned by New for capacity < 1.
var ErrInvalidCapacity = errors.New("locked: capacity must be positive")

// LockedQueue serializes every operation on one lock. Blocking operations
// retry the non-blocking ones and yield between attempts.
type LockedQueue[T any] struct {
	mu       sync.Mutex
	ring     *ring.Queue
	capacity int
}

func New[T any](capacity int) (*LockedQueue[T], error) {
	if capacity < 1 {
		return nil, errors.Wrapf(ErrInvalidCapacity, "capacity %d", capacity)
	}
	return &LockedQueue[T]{
		ring:     ring.New(),
		capacity: capacity,
	}, nil
}

func (q *LockedQueue[T]) TryPush(val T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.ring.Length() >= q.capacity {
		return false
	}
	q.ring.Add(val)
	return true
}

func (q *LockedQueue[T]) TryPop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.ring.Length() == 0 {
		var zero T
		return zero, false
	}
	return q.ring.Remove().(T), true
}

func (q *LockedQueue[T]) Push(val T) {
	for !q.TryPush(val) {
		runtime.Gosched()
	}
}

func (q *LockedQueue[T]) Pop() T {
	for {
		if v, ok := q.TryPop(); ok {
			return v
		}
		runtime.Gosched()
	}
}

func (q *LockedQueue[T]) Size() int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(q.ring.Length())
}

func (q *LockedQueue[T]) Capacity() int {
	return q.capacity
}
