package mpmc

import (
	"runtime"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/cpu"
)

// CacheLineSize is the destructive interference size the queue pads its hot
// fields to. It follows the target architecture through cpu.CacheLinePad and
// is 64 bytes on amd64 and 128 on arm64.
const CacheLineSize = int(unsafe.Sizeof(cpu.CacheLinePad{}))

// Slot is one cell of the ring. It is exported only so an Allocator can hand
// out arenas of them; all of its state is private to the queue.
//
// An even turn 2*lap means the cell is writable by the producer of that lap,
// an odd turn 2*lap+1 means it holds a value for the consumer of that lap.
type Slot[T any] struct {
	turn  atomic.Uint64
	value T
	_     cpu.CacheLinePad
}

func (s *Slot[T]) readTurn() uint64 {
	return s.turn.Load()
}

// publish hands the cell to whoever waits for next.
func (s *Slot[T]) publish(next uint64) {
	s.turn.Store(next)
}

// waitTurn spins until the cell reaches want. With yieldEvery > 0 the
// goroutine yields to the scheduler once every yieldEvery failed checks.
func (s *Slot[T]) waitTurn(want uint64, yieldEvery uint32) {
	if yieldEvery == 0 {
		for s.readTurn() != want {
		}
		return
	}
	var spins uint32
	for s.readTurn() != want {
		spins++
		if spins%yieldEvery == 0 {
			runtime.Gosched()
		}
	}
}

// write and take must only be called by the goroutine whose ticket matches
// the current turn.
func (s *Slot[T]) write(v T) {
	s.value = v
}

// take moves the value out and leaves the zero value behind so the cell does
// not keep anything reachable until its next lap.
func (s *Slot[T]) take() T {
	v := s.value
	var zero T
	s.value = zero
	return v
}

// teardown destroys an unread value (odd turn) and returns the cell to its
// initial writable state.
func (s *Slot[T]) teardown() {
	if s.turn.Load()&1 == 1 {
		var zero T
		s.value = zero
	}
	s.turn.Store(0)
}
