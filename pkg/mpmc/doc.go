// Package mpmc implements a bounded, lock-free, multi-producer/multi-consumer
// FIFO queue built on per-slot turn sequencing.
//
// Every slot of the ring carries an atomic turn counter. A producer holding
// ticket t waits for slot t%capacity to reach turn 2*(t/capacity), writes its
// value and publishes turn 2*(t/capacity)+1. A consumer holding the same ticket
// number on the tail side waits for that odd turn, takes the value and
// publishes 2*(t/capacity)+2, which is the writable turn of the next lap.
// Tickets come from two counters, head for producers and tail for consumers,
// and those counters plus the slot turns are the only shared state.
//
// Push, Emplace and Pop busy-wait on a single slot until their turn comes up.
// They never sleep and never give up once a ticket has been taken, so a Push
// on a queue nobody drains spins forever. Callers that need a bound on the
// wait use TryPush, TryEmplace and TryPop with their own retry policy.
//
// Size is approximate under concurrent use because head and tail are read
// with two independent loads.
//
//	q, err := mpmc.New[int](1024)
//	if err != nil {
//		return err
//	}
//	go func() { q.Push(42) }()
//	v := q.Pop()
package mpmc
