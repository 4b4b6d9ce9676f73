package testbench

import (
	"context"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/valyala/fastrand"
	"golang.org/x/sync/errgroup"

	"github.com/i5heu/turnqueue/internal/affinity"
	"github.com/i5heu/turnqueue/internal/queue"
)

// Config is only about concurrency: how many producers, how many consumers.
type Config struct {
	NumProducers int `yaml:"producers" json:"producers"`
	NumConsumers int `yaml:"consumers" json:"consumers"`
}

// RunTimedTest spawns producers and consumers that run for the specified
// duration, measuring how many messages are actually enqueued/dequeued
// in that window. Once the context expires, producers stop and consumers
// drain any remaining messages in the queue.
// Returns the total messages enqueued, total consumed, and the actual elapsed time.
func RunTimedTest[T any, Q queue.QueueValidationInterface[T]](
	ctx context.Context,
	q Q,
	cfg Config,
	testDuration time.Duration,
	valueGenerator func(int) T,
) (producedCount int64, consumedCount int64, elapsed time.Duration) {

	ctx, cancel := context.WithTimeout(ctx, testDuration)
	defer cancel()

	var totalProduced atomic.Int64
	var totalConsumed atomic.Int64
	var msgIndex atomic.Int64

	// productionDone flips when the test duration expires.
	var productionDone atomic.Bool
	go func() {
		<-ctx.Done()
		productionDone.Store(true)
	}()

	start := time.Now()

	var producers, consumers sync.WaitGroup
	for i := 0; i < cfg.NumProducers; i++ {
		producers.Add(1)
		go func() {
			defer producers.Done()
			for !productionDone.Load() {
				idx := msgIndex.Add(1) - 1
				q.Push(valueGenerator(int(idx)))
				totalProduced.Add(1)
			}
		}()
	}

	// Consumers outlive production so producers stuck on a full queue finish.
	var producersDone atomic.Bool
	for i := 0; i < cfg.NumConsumers; i++ {
		consumers.Add(1)
		go func() {
			defer consumers.Done()
			for !producersDone.Load() {
				if _, ok := q.TryPop(); ok {
					totalConsumed.Add(1)
				} else {
					runtime.Gosched()
				}
			}
		}()
	}

	<-ctx.Done()
	producers.Wait()
	producersDone.Store(true)
	consumers.Wait()

	// Every producer has returned, so whatever is left is published.
	for {
		if _, ok := q.TryPop(); !ok {
			break
		}
		totalConsumed.Add(1)
	}

	elapsed = time.Since(start)
	return totalProduced.Load(), totalConsumed.Load(), elapsed
}

// runPinned starts one goroutine per entry of cpus, pins goroutine i to
// cpus[i] and runs body(i) once every goroutine is pinned. If any pin fails
// no body runs. It returns the time from release to the last body returning.
func runPinned(cpus []int, body func(i int)) (time.Duration, error) {
	pinned := make(chan error, len(cpus))
	ready := make(chan struct{})
	var failed atomic.Bool

	var g errgroup.Group
	for i, cpu := range cpus {
		g.Go(func() error {
			err := affinity.Pin(cpu)
			pinned <- err
			if err != nil {
				return err
			}
			defer affinity.Unpin(cpu)
			<-ready
			if failed.Load() {
				return nil
			}
			body(i)
			return nil
		})
	}

	for range cpus {
		if err := <-pinned; err != nil {
			failed.Store(true)
		}
	}
	start := time.Now()
	close(ready)
	err := g.Wait()
	return time.Since(start), err
}

// RunThroughput pushes iters values from each producer and pops the same
// total across the consumers, which spin on TryPop. Goroutine i of the run
// (producers first, then consumers) is pinned to affinity.PinAt(pins, i).
// It returns completed transfers per millisecond.
func RunThroughput[T any, Q queue.QueueValidationInterface[T]](
	q Q,
	producers, consumers, iters int,
	valueGenerator func(int) T,
	pins []int,
) (float64, error) {
	if producers < 1 || consumers < 1 || iters < 1 {
		return 0, errors.Errorf("testbench: invalid throughput run %dP%dC x%d", producers, consumers, iters)
	}
	total := producers * iters

	cpus := make([]int, producers+consumers)
	for i := range cpus {
		cpus[i] = affinity.PinAt(pins, i)
	}
	elapsed, err := runPinned(cpus, func(i int) {
		if i < producers {
			for n := 0; n < iters; n++ {
				q.Push(valueGenerator(n))
			}
			return
		}
		c := i - producers
		share := total / consumers
		if c == consumers-1 {
			share += total % consumers
		}
		for n := 0; n < share; n++ {
			for {
				if _, ok := q.TryPop(); ok {
					break
				}
				runtime.Gosched()
			}
		}
	})
	if err != nil {
		return 0, err
	}
	return opsPerMs(total, elapsed), nil
}

// RunRoundTrip bounces iters values through a pair of queues: one goroutine
// pushes into ping, an echo goroutine moves each value to pong, and the
// sender waits for it before sending the next one. It returns the mean round
// trip in nanoseconds. pins[0] pins the echo goroutine, pins[1] the sender.
func RunRoundTrip[T any, Q queue.QueueValidationInterface[T]](
	ping, pong Q,
	iters int,
	valueGenerator func(int) T,
	pins []int,
) (float64, error) {
	if iters < 1 {
		return 0, errors.Errorf("testbench: invalid round trip count %d", iters)
	}

	cpus := []int{affinity.PinAt(pins, 0), affinity.PinAt(pins, 1)}
	elapsed, err := runPinned(cpus, func(i int) {
		if i == 0 {
			for n := 0; n < iters; n++ {
				for {
					if v, ok := ping.TryPop(); ok {
						pong.Push(v)
						break
					}
					runtime.Gosched()
				}
			}
			return
		}
		for n := 0; n < iters; n++ {
			ping.Push(valueGenerator(n))
			for {
				if _, ok := pong.TryPop(); ok {
					break
				}
				runtime.Gosched()
			}
		}
	})
	if err != nil {
		return 0, err
	}
	return float64(elapsed.Nanoseconds()) / float64(iters), nil
}

// RunConservation has producers push disjoint strides of [0, n) and
// consumers pop the same number of values. Each operation picks the blocking
// or the non-blocking variant at random. It fails if any value is lost,
// duplicated or out of range, or if the sum differs from n(n-1)/2.
//
// A consumer that sees a bad value records it and keeps popping its share,
// so producers never stall on a queue nobody drains.
func RunConservation[Q queue.QueueValidationInterface[uint64]](q Q, producers, consumers int, n uint64) error {
	if producers < 1 || consumers < 1 {
		return errors.Errorf("testbench: invalid conservation run %dP%dC", producers, consumers)
	}
	seen := make([]atomic.Int32, n)
	var sum atomic.Uint64
	var firstErr atomic.Pointer[error]
	report := func(err error) {
		firstErr.CompareAndSwap(nil, &err)
	}

	ready := make(chan struct{})
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-ready
			for v := uint64(p); v < n; v += uint64(producers) {
				if fastrand.Uint32n(2) == 0 {
					q.Push(v)
					continue
				}
				for !q.TryPush(v) {
					runtime.Gosched()
				}
			}
		}()
	}
	for c := 0; c < consumers; c++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-ready
			var local uint64
			for i := uint64(c); i < n; i += uint64(consumers) {
				var v uint64
				if fastrand.Uint32n(2) == 0 {
					v = q.Pop()
				} else {
					var ok bool
					for v, ok = q.TryPop(); !ok; v, ok = q.TryPop() {
						runtime.Gosched()
					}
				}
				if v >= n {
					report(errors.Errorf("testbench: value %d out of range [0, %d)", v, n))
					continue
				}
				seen[v].Add(1)
				local += v
			}
			sum.Add(local)
		}()
	}
	close(ready)
	wg.Wait()

	if err := firstErr.Load(); err != nil {
		return *err
	}
	for v := range seen {
		if got := seen[v].Load(); got != 1 {
			return errors.Errorf("testbench: value %d received %d times", v, got)
		}
	}
	if want := n * (n - 1) / 2; sum.Load() != want {
		return errors.Errorf("testbench: sum %d, want %d", sum.Load(), want)
	}
	return nil
}

// Median returns the middle value of samples. An even count averages the
// two middle values; an empty slice yields 0. samples is sorted in place.
func Median(samples []float64) float64 {
	n := len(samples)
	if n == 0 {
		return 0
	}
	sort.Float64s(samples)
	mid := n / 2
	if n%2 == 1 {
		return samples[mid]
	}
	return 0.5 * (samples[mid-1] + samples[mid])
}

func opsPerMs(ops int, d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(ops) * float64(time.Millisecond) / float64(d)
}
