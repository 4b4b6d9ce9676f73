package queue

// QueueValidationInterface is a *type constraint* that ensures any type Q has
// these methods. We never store Q in a runtime interface on the hot path;
// the benchmark harness is instantiated per concrete queue type.
type QueueValidationInterface[T any] interface {
	// Push appends an element and blocks (spins) while the queue is full.
	Push(T)

	// Pop removes and returns the oldest element and blocks while the queue is empty.
	Pop() T

	// TryPush appends an element unless the queue is full.
	TryPush(T) bool

	// TryPop removes the oldest element. If the queue is empty it returns
	// the zero T and false.
	TryPop() (T, bool)

	// Size returns an approximate count of queued elements.
	Size() int64

	// Capacity returns the fixed capacity.
	Capacity() int
}

// Constructor builds a queue of the given capacity.
type Constructor[T any] func(capacity int) (QueueValidationInterface[T], error)
