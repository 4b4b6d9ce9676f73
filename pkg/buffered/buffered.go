package buffered

import "github.com/pkg/errors"

// ErrInvalidCapacity mirrors mpmc.ErrInvalidCapacity for the channel baseline.
var ErrInvalidCapacity = errors.New("buffered: capacity must be positive")

// BufferedQueue is a Go buffered channel behind the queue interface. It is the
// baseline every benchmark compares against.
type BufferedQueue[T any] struct {
	ch chan T
}

// New rejects capacity < 1: a zero-capacity channel is an unbuffered
// rendezvous, not an empty bounded buffer.
func New[T any](capacity int) (*BufferedQueue[T], error) {
	if capacity < 1 {
		return nil, errors.Wrapf(ErrInvalidCapacity, "capacity %d", capacity)
	}
	return &BufferedQueue[T]{
		ch: make(chan T, capacity),
	}, nil
}

func (q *BufferedQueue[T]) Push(val T) {
	q.ch <- val
}

func (q *BufferedQueue[T]) Pop() T {
	return <-q.ch
}

func (q *BufferedQueue[T]) TryPush(val T) bool {
	select {
	case q.ch <- val:
		return true
	default:
		return false
	}
}

func (q *BufferedQueue[T]) TryPop() (val T, ok bool) {
	select {
	case val = <-q.ch:
		return val, true
	default:
		return val, false
	}
}

func (q *BufferedQueue[T]) Size() int64 {
	return int64(len(q.ch))
}

func (q *BufferedQueue[T]) Capacity() int {
	return cap(q.ch)
}
