package main

import (
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i5heu/turnqueue/internal/report"
	"github.com/i5heu/turnqueue/pkg/buffered"
	"github.com/i5heu/turnqueue/pkg/mpmc"
)

// testYield keeps spinning goroutines from starving each other on small
// CI machines.
const testYield = 16

// progressWatchdog monitors progress and fails the test if no progress is made for 15 seconds.
type progressWatchdog struct {
	t            *testing.T
	label        string
	lastProgress atomic.Int64
	done         chan struct{}
}

func newWatchdog(t *testing.T, label string) *progressWatchdog {
	wd := &progressWatchdog{
		t:     t,
		label: label,
		done:  make(chan struct{}),
	}
	wd.lastProgress.Store(time.Now().UnixNano())
	return wd
}

func (wd *progressWatchdog) Start() {
	go func() {
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				last := wd.lastProgress.Load()
				if time.Since(time.Unix(0, last)) > 15*time.Second {
					wd.t.Errorf("No progress in the last 15 seconds (%s test likely stuck).", wd.label)
					return
				}
			case <-wd.done:
				return
			}
		}
	}()
}

func (wd *progressWatchdog) Progress() {
	wd.lastProgress.Store(time.Now().UnixNano())
}

func (wd *progressWatchdog) Stop() {
	close(wd.done)
}

// withAllQueues runs fn as a subtest for every implementation that has all
// of testedFeatures, and hands it a fresh queue of the given capacity.
func withAllQueues(t *testing.T, scenarioName string, capacity int, testedFeatures []string, fn func(t *testing.T, q benchQueue)) {
	t.Helper()
	for _, impl := range getImplementations(testYield) {
		t.Run(impl.name, func(t *testing.T) {
			for _, feature := range testedFeatures {
				if !impl.hasFeature(feature) {
					t.Skipf("Skipping: missing feature %q", feature)
				}
			}
			q, err := impl.newQueue(capacity)
			require.NoError(t, err)
			defer release(q)

			wd := newWatchdog(t, scenarioName)
			wd.Start()
			defer wd.Stop()
			fn(t, q)
		})
	}
}

func popWithin(t *testing.T, q benchQueue, d time.Duration) int {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if v, ok := q.TryPop(); ok {
			return v
		}
		time.Sleep(time.Microsecond)
	}
	t.Fatalf("no element within %v", d)
	return 0
}

func TestBasicFIFO(t *testing.T) {
	withAllQueues(t, "BasicFIFO", 1024, []string{"FIFO"}, func(t *testing.T, q benchQueue) {
		const N = 1024
		for i := 0; i < N; i++ {
			q.Push(i)
		}
		for i := 0; i < N; i++ {
			if v := popWithin(t, q, time.Second); v != i {
				t.Fatalf("Expected %d, got %d at index %d", i, v, i)
			}
		}
	})
}

func TestEmptyQueue(t *testing.T) {
	withAllQueues(t, "EmptyQueue", 16, nil, func(t *testing.T, q benchQueue) {
		if v, ok := q.TryPop(); ok {
			t.Fatalf("Expected TryPop to fail on empty queue, got %v", v)
		}
		if q.Size() != 0 {
			t.Fatalf("Expected size 0, got %d", q.Size())
		}
		q.Push(42)
		if v := popWithin(t, q, time.Second); v != 42 {
			t.Fatalf("Expected to dequeue 42, got %v", v)
		}
	})
}

func TestWrapAround(t *testing.T) {
	const capacity = 64
	withAllQueues(t, "WrapAround", capacity, []string{"FIFO"}, func(t *testing.T, q benchQueue) {
		for i := 0; i < capacity; i++ {
			q.Push(i)
		}
		for i := 0; i < capacity/2; i++ {
			require.Equal(t, i, q.Pop())
		}
		// Enqueue again to force wrap-around.
		for i := 0; i < capacity/2; i++ {
			q.Push(1000 + i)
		}
		for i := capacity / 2; i < capacity; i++ {
			require.Equal(t, i, q.Pop())
		}
		for i := 0; i < capacity/2; i++ {
			require.Equal(t, 1000+i, q.Pop())
		}
	})
}

func TestCapacityBoundaryBehavior(t *testing.T) {
	const capacity = 64
	withAllQueues(t, "CapacityBoundaryBehavior", capacity, nil, func(t *testing.T, q benchQueue) {
		require.Equal(t, capacity, q.Capacity())
		for i := 0; i < capacity; i++ {
			require.True(t, q.TryPush(i), "push %d", i)
		}
		assert.False(t, q.TryPush(-1), "push past capacity must fail")
		assert.Equal(t, int64(capacity), q.Size())

		v, ok := q.TryPop()
		require.True(t, ok)
		assert.Equal(t, 0, v)
		assert.Equal(t, int64(capacity-1), q.Size())

		assert.True(t, q.TryPush(999))
		assert.False(t, q.TryPush(-1))
	})
}

func TestAlternatingSingleCapacity(t *testing.T) {
	withAllQueues(t, "AlternatingSingleCapacity", 1, nil, func(t *testing.T, q benchQueue) {
		const iterations = 100_000
		for i := 0; i < iterations; i++ {
			q.Push(i)
			if v := q.Pop(); v != i {
				t.Fatalf("Expected %d, got %d at iteration %d", i, v, i)
			}
		}
		if q.Size() != 0 {
			t.Fatalf("Expected queue to be empty after alternating operations, got %d", q.Size())
		}
	})
}

func TestZeroCapacityQueue(t *testing.T) {
	for _, impl := range getImplementations(testYield) {
		t.Run(impl.name, func(t *testing.T) {
			q, err := impl.newQueue(0)
			assert.Error(t, err)
			assert.Nil(t, q)
		})
	}
}

func TestFullQueueBlocking(t *testing.T) {
	withAllQueues(t, "FullQueueBlocking", 4, nil, func(t *testing.T, q benchQueue) {
		for i := 0; i < 4; i++ {
			q.Push(i)
		}
		pushed := make(chan struct{})
		go func() {
			q.Push(4)
			close(pushed)
		}()

		select {
		case <-pushed:
			t.Fatal("Push returned on a full queue")
		case <-time.After(50 * time.Millisecond):
		}

		require.Equal(t, 0, q.Pop())
		select {
		case <-pushed:
		case <-time.After(5 * time.Second):
			t.Fatal("Push did not complete after room was made")
		}
		for i := 1; i <= 4; i++ {
			require.Equal(t, i, q.Pop())
		}
	})
}

func TestHighContention(t *testing.T) {
	withAllQueues(t, "HighContention", 128, []string{"MPMC"}, func(t *testing.T, q benchQueue) {
		const (
			numProducers        = 50
			numConsumers        = 50
			messagesPerProducer = 2_000
		)
		total := numProducers * messagesPerProducer
		seen := make([]atomic.Int32, total)

		var wg sync.WaitGroup
		for p := 0; p < numProducers; p++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < messagesPerProducer; j++ {
					q.Push(p*messagesPerProducer + j)
				}
			}()
		}
		for c := 0; c < numConsumers; c++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < total/numConsumers; j++ {
					seen[q.Pop()].Add(1)
				}
			}()
		}
		wg.Wait()

		for v := range seen {
			if n := seen[v].Load(); n != 1 {
				t.Fatalf("value %d received %d times", v, n)
			}
		}
	})
}

func TestPerProducerOrdering(t *testing.T) {
	withAllQueues(t, "PerProducerOrdering", 32, []string{"FIFO"}, func(t *testing.T, q benchQueue) {
		const (
			producers = 4
			each      = 5_000
		)
		var wg sync.WaitGroup
		for p := 0; p < producers; p++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < each; j++ {
					q.Push(p*each + j)
				}
			}()
		}

		last := make([]int, producers)
		for i := range last {
			last[i] = -1
		}
		for i := 0; i < producers*each; i++ {
			v := q.Pop()
			p, seq := v/each, v%each
			if seq <= last[p] {
				t.Fatalf("producer %d: got seq %d after %d", p, seq, last[p])
			}
			last[p] = seq
		}
		wg.Wait()
	})
}

func TestImplementationsRegistered(t *testing.T) {
	impls := getImplementations(0)
	require.NotEmpty(t, impls)
	names := map[string]bool{}
	for _, impl := range impls {
		assert.False(t, names[impl.name], "duplicate implementation %q", impl.name)
		names[impl.name] = true
		assert.NotEmpty(t, impl.pkgName)
		assert.NotEmpty(t, impl.description)
		assert.True(t, impl.hasFeature("MPMC"), "%s", impl.name)
	}
	assert.True(t, names["TurnQueue"])
}

func TestReleaseReturnsArena(t *testing.T) {
	arenas := mpmc.NewPoolAllocator[int](1)
	q, err := mpmc.New[int](8, mpmc.WithAllocator[int](arenas))
	require.NoError(t, err)
	q.Push(1)
	release(q)
	assert.Equal(t, 1, arenas.Released())
	assert.Equal(t, 1, arenas.Idle(8))

	b, err := buffered.New[int](8)
	require.NoError(t, err)
	release(b) // nothing to close
	assert.True(t, b.TryPush(1))
}

func TestRecycledQueueStartsEmpty(t *testing.T) {
	impl := getImplementations(testYield)[0]
	require.Equal(t, "TurnQueue", impl.name)

	q, err := impl.newQueue(4)
	require.NoError(t, err)
	q.Push(7)
	q.Push(8)
	release(q)

	q, err = impl.newQueue(4)
	require.NoError(t, err)
	defer release(q)
	_, ok := q.TryPop()
	assert.False(t, ok, "leftovers of the previous run must not leak")
	assert.Equal(t, int64(0), q.Size())
}

func TestCPUSettings(t *testing.T) {
	assert.Equal(t, []int{4}, cpuSettingsFor(4, 16))
	assert.Equal(t, []int{2}, cpuSettingsFor(8, 2))
	assert.Equal(t, []int{1, 2, 3, 4, 6}, cpuSettingsFor(0, 6))
}

func TestMarkdownTable(t *testing.T) {
	session := report.FullReport{Benchmarks: []report.BenchmarkResult{
		{Implementation: "LockedQueue", Mode: "throughput", NumProducers: 1, NumConsumers: 1, OpsPerMs: 900},
		{Implementation: "TurnQueue", Mode: "throughput", NumProducers: 1, NumConsumers: 1, OpsPerMs: 30000},
		{Implementation: "TurnQueue", Mode: "roundtrip", NumProducers: 1, NumConsumers: 1, RoundTripNs: 210},
	}}
	table := markdownTable(session, getImplementations(0))

	assert.Contains(t, table, "## Last Session Benchmark Summary")
	assert.Contains(t, table, "30000 ops/ms")
	assert.Contains(t, table, "210 ns")
	assert.Less(t, strings.Index(table, "30000 ops/ms"), strings.Index(table, "900 ops/ms"), "best result first")
}
