package mpmc

import "sync"

// Allocator provides the backing storage of a queue. New calls Allocate once
// and Close calls Deallocate once with the same slice; the queue keeps no
// reference to the allocator or the arena afterwards.
//
// Arenas returned by Allocate may contain stale cells; New resets them.
// Arenas passed to Deallocate have every cell back in its initial state.
type Allocator[T any] interface {
	Allocate(n int) []Slot[T]
	Deallocate(slots []Slot[T])
}

// HeapAllocator allocates arenas with make and leaves them to the garbage
// collector. It is the default.
type HeapAllocator[T any] struct{}

func (HeapAllocator[T]) Allocate(n int) []Slot[T] {
	return make([]Slot[T], n)
}

func (HeapAllocator[T]) Deallocate([]Slot[T]) {}

// PoolAllocator keeps released arenas and reuses them for queues of the same
// capacity. It suits code that builds and tears down short-lived queues of a
// few fixed sizes, such as per-run pipeline stages.
type PoolAllocator[T any] struct {
	mu       sync.Mutex
	free     map[int][][]Slot[T]
	perSize  int
	reused   int
	released int
}

// NewPoolAllocator returns a PoolAllocator that retains at most perSize idle
// arenas for each capacity. perSize < 1 is treated as 1.
func NewPoolAllocator[T any](perSize int) *PoolAllocator[T] {
	if perSize < 1 {
		perSize = 1
	}
	return &PoolAllocator[T]{
		free:    make(map[int][][]Slot[T]),
		perSize: perSize,
	}
}

func (p *PoolAllocator[T]) Allocate(n int) []Slot[T] {
	p.mu.Lock()
	defer p.mu.Unlock()
	if idle := p.free[n]; len(idle) > 0 {
		slots := idle[len(idle)-1]
		idle[len(idle)-1] = nil
		p.free[n] = idle[:len(idle)-1]
		p.reused++
		return slots
	}
	return make([]Slot[T], n)
}

func (p *PoolAllocator[T]) Deallocate(slots []Slot[T]) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.released++
	n := len(slots)
	if len(p.free[n]) >= p.perSize {
		return
	}
	p.free[n] = append(p.free[n], slots)
}

// Idle reports how many arenas of capacity n are waiting for reuse.
func (p *PoolAllocator[T]) Idle(n int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free[n])
}

// Reused reports how many Allocate calls were served from an idle arena.
func (p *PoolAllocator[T]) Reused() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reused
}

// Released reports how many arenas have been handed back.
func (p *PoolAllocator[T]) Released() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.released
}
