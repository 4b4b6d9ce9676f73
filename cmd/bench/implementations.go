package main

import (
	"github.com/i5heu/turnqueue/internal/queue"
	"github.com/i5heu/turnqueue/pkg/buffered"
	"github.com/i5heu/turnqueue/pkg/locked"
	"github.com/i5heu/turnqueue/pkg/mpmc"
)

type benchQueue = queue.QueueValidationInterface[int]

// Implementation represents a queue implementation.
type Implementation struct {
	name        string
	description string
	pkgName     string
	authors     []string
	features    []string
	newQueue    func(capacity int) (benchQueue, error)
}

func (impl Implementation) hasFeature(feature string) bool {
	for _, f := range impl.features {
		if f == feature {
			return true
		}
	}
	return false
}

// release tears a queue down once a run is over, for queues that own
// resources.
func release(q benchQueue) {
	if c, ok := q.(interface{ Close() }); ok {
		c.Close()
	}
}

// getImplementations enumerates the queues under test. yield is passed to
// the turn queue's blocking operations, see mpmc.WithYield.
func getImplementations(yield int) []Implementation {
	// runs rebuild queues of one capacity over and over, so TurnQueue
	// recycles its slot arenas instead of reallocating them
	arenas := mpmc.NewPoolAllocator[int](2)
	return []Implementation{
		{
			name:        "TurnQueue",
			pkgName:     "mpmc",
			description: "Lock-free bounded MPMC queue using per-slot turn sequencing and ticket counters.",
			authors:     []string{"Mia Heidenstedt <heidenstedt.org>"},
			features:    []string{"MPMC", "FIFO", "Cache-Optimized", "Ticket-Based", "Spin-Wait"},
			newQueue: func(capacity int) (benchQueue, error) {
				return mpmc.New[int](capacity, mpmc.WithYield(yield), mpmc.WithAllocator[int](arenas))
			},
		},
		{
			name:        "Golang Buffered Channel",
			pkgName:     "buffered",
			description: "Standard Go buffered channel, the baseline every queue has to beat.",
			authors:     []string{"Mia Heidenstedt <heidenstedt.org>"},
			features:    []string{"MPMC", "FIFO"},
			newQueue: func(capacity int) (benchQueue, error) {
				return buffered.New[int](capacity)
			},
		},
		{
			name:        "LockedQueue",
			pkgName:     "locked",
			description: "A sync.Mutex around an eapache/queue ring, bounded by a length check.",
			authors:     []string{"Mia Heidenstedt <heidenstedt.org>"},
			features:    []string{"MPMC", "FIFO", "Mutex"},
			newQueue: func(capacity int) (benchQueue, error) {
				return locked.New[int](capacity)
			},
		},
	}
}
