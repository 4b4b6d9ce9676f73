package main

import (
	"fmt"
	"sort"
	"time"

	"github.com/i5heu/turnqueue/internal/report"
	"github.com/i5heu/turnqueue/internal/testbench"
	"github.com/i5heu/turnqueue/pkg/config"
)

// levelSummary condenses the ns/msg samples of one concurrency level.
type levelSummary struct {
	level     float64 // producers + consumers
	pos       float64 // x position on the plot
	low, high float64 // mean of the fastest and slowest 5%
	median    float64
}

// summaryXYs plots the median of each level with low/high as error bars.
type summaryXYs []levelSummary

func (s summaryXYs) Len() int                { return len(s) }
func (s summaryXYs) XY(i int) (x, y float64) { return s[i].pos, s[i].median }
func (s summaryXYs) YError(i int) (float64, float64) {
	return s[i].median - s[i].low, s[i].high - s[i].median
}

// timedPoints maps implementation -> producers+consumers -> ns/msg samples.
type timedPoints map[string]map[float64][]float64

// groupTimed collects ns/msg samples of timed runs per CPU count. Results
// written before modes existed carry no mode and count as timed.
func groupTimed(sessions []report.FullReport) map[int]timedPoints {
	pointsByCPU := make(map[int]timedPoints)
	for _, session := range sessions {
		cpus := session.CPUs()
		for _, b := range session.Benchmarks {
			if b.Mode != "" && b.Mode != config.ModeTimed {
				continue
			}
			dur, err := time.ParseDuration(b.ActualElapsed)
			if err != nil || b.NumMessagesConsumed == 0 {
				continue
			}
			nsPerMsg := float64(dur.Nanoseconds()) / float64(b.NumMessagesConsumed)

			implMap, ok := pointsByCPU[cpus]
			if !ok {
				implMap = make(timedPoints)
				pointsByCPU[cpus] = implMap
			}
			if _, ok := implMap[b.Implementation]; !ok {
				implMap[b.Implementation] = make(map[float64][]float64)
			}
			x := float64(b.NumProducers + b.NumConsumers)
			implMap[b.Implementation][x] = append(implMap[b.Implementation][x], nsPerMsg)
		}
	}
	return pointsByCPU
}

// modeSamples maps shape ("2P2C") -> implementation -> samples.
type modeSamples map[string]map[string][]float64

// groupMode collects the headline figure of every throughput or roundtrip
// result per CPU count.
func groupMode(sessions []report.FullReport, mode string) map[int]modeSamples {
	byCPU := make(map[int]modeSamples)
	for _, session := range sessions {
		cpus := session.CPUs()
		for _, b := range session.Benchmarks {
			if b.Mode != mode {
				continue
			}
			v := b.OpsPerMs
			if mode == config.ModeRoundTrip {
				v = b.RoundTripNs
			}
			if v <= 0 {
				continue
			}
			shapes, ok := byCPU[cpus]
			if !ok {
				shapes = make(modeSamples)
				byCPU[cpus] = shapes
			}
			shape := fmt.Sprintf("%dP%dC", b.NumProducers, b.NumConsumers)
			if _, ok := shapes[shape]; !ok {
				shapes[shape] = make(map[string][]float64)
			}
			shapes[shape][b.Implementation] = append(shapes[shape][b.Implementation], v)
		}
	}
	return byCPU
}

func sortedKeys[K int | string | float64, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// summarize returns one summary per concurrency level, ordered by level.
func summarize(byLevel map[float64][]float64) []levelSummary {
	out := make([]levelSummary, 0, len(byLevel))
	for _, level := range sortedKeys(byLevel) {
		vals := byLevel[level]
		if len(vals) == 0 {
			continue
		}
		med := testbench.Median(vals) // sorts vals
		low, high := tailMeans(vals)
		out = append(out, levelSummary{level: level, pos: level, low: low, high: high, median: med})
	}
	return out
}

// tailMeans averages the lowest and the highest 5% of sorted, always taking
// at least one sample from each end.
func tailMeans(sorted []float64) (low, high float64) {
	if len(sorted) == 0 {
		return 0, 0
	}
	k := max(len(sorted)/20, 1)
	return mean(sorted[:k]), mean(sorted[len(sorted)-k:])
}

func mean(vals []float64) float64 {
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

// formatNs renders a nanosecond axis value as a rounded duration.
func formatNs(ns float64) string {
	d := time.Duration(ns)
	switch {
	case d < time.Microsecond:
		return d.String()
	case d < time.Millisecond:
		return d.Round(100 * time.Nanosecond).String()
	default:
		return d.Round(100 * time.Microsecond).String()
	}
}
