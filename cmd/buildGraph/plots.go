package main

import (
	"fmt"
	"image/color"

	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/i5heu/turnqueue/internal/testbench"
)

var (
	background = color.RGBA{R: 30, G: 30, B: 30, A: 255}
	foreground = color.RGBA{R: 255, G: 255, B: 255, A: 255}
)

// newPlot returns a dark-themed plot with a grid and the legend top left.
func newPlot(title, yLabel string) *plot.Plot {
	p := plot.New()
	p.Title.Text = title
	p.Y.Label.Text = yLabel
	p.BackgroundColor = background
	p.Title.TextStyle.Color = foreground
	p.Legend.TextStyle.Color = foreground
	p.Legend.Top = true
	p.Legend.Left = true
	for _, ax := range []*plot.Axis{&p.X, &p.Y} {
		ax.Color = foreground
		ax.Label.TextStyle.Color = foreground
		ax.Tick.Label.Color = foreground
	}
	p.Add(plotter.NewGrid())
	return p
}

// nsTicks labels the default ticks as durations.
type nsTicks struct{}

func (nsTicks) Ticks(lo, hi float64) []plot.Tick {
	ticks := plot.DefaultTicks{}.Ticks(lo, hi)
	for i := range ticks {
		if ticks[i].Label != "" {
			ticks[i].Label = formatNs(ticks[i].Value)
		}
	}
	return ticks
}

// timedPlot draws median ns/msg per concurrency level with the 5% tails as
// error bars. Levels are spread evenly on the x axis and each implementation
// is nudged sideways so overlapping points stay readable.
func timedPlot(cpus int, implMap timedPoints) (*plot.Plot, error) {
	p := newPlot(fmt.Sprintf("Time per message vs. concurrency for %d CPU(s)", cpus), "Time per Msg")
	p.X.Label.Text = "NumProducers + NumConsumers"
	p.Y.Tick.Marker = nsTicks{}

	levelSet := make(map[float64]struct{})
	for _, byLevel := range implMap {
		for level := range byLevel {
			levelSet[level] = struct{}{}
		}
	}
	levels := sortedKeys(levelSet)
	slot := make(map[float64]float64, len(levels))
	names := make([]string, len(levels))
	for i, level := range levels {
		slot[level] = float64(i)
		names[i] = fmt.Sprint(level)
	}

	impls := sortedKeys(implMap)
	glyphs := []draw.GlyphDrawer{draw.CircleGlyph{}, draw.SquareGlyph{}, draw.TriangleGlyph{}, draw.CrossGlyph{}, draw.PlusGlyph{}}
	const spread = 0.4
	step := spread / float64(max(len(impls), 1))

	for i, impl := range impls {
		summaries := summarize(implMap[impl])
		if len(summaries) == 0 {
			continue
		}
		nudge := -spread/2 + step/2 + float64(i)*step
		for j := range summaries {
			summaries[j].pos = slot[summaries[j].level] + nudge
		}
		xys := summaryXYs(summaries)
		c := plotutil.SoftColors[i%len(plotutil.SoftColors)]

		line, points, err := plotter.NewLinePoints(xys)
		if err != nil {
			return nil, errors.Wrapf(err, "%s: line", impl)
		}
		line.Color = c
		points.Color = c
		points.Shape = glyphs[i%len(glyphs)]
		points.Radius = vg.Points(5)

		bars, err := plotter.NewYErrorBars(xys)
		if err != nil {
			return nil, errors.Wrapf(err, "%s: error bars", impl)
		}
		bars.Color = c

		p.Add(line, points, bars)
		p.Legend.Add(impl, line, points)
	}
	p.NominalX(names...)
	return p, nil
}

// barPlot draws one bar group per shape with a bar per implementation, each
// bar the median of its samples.
func barPlot(title, yLabel string, samples modeSamples) (*plot.Plot, error) {
	p := newPlot(title, yLabel)

	shapes := sortedKeys(samples)
	implSet := make(map[string]struct{})
	for _, impls := range samples {
		for impl := range impls {
			implSet[impl] = struct{}{}
		}
	}
	impls := sortedKeys(implSet)

	width := vg.Points(24)
	for i, impl := range impls {
		values := make(plotter.Values, len(shapes))
		for j, shape := range shapes {
			if vals := samples[shape][impl]; len(vals) > 0 {
				values[j] = testbench.Median(vals)
			}
		}
		bars, err := plotter.NewBarChart(values, width)
		if err != nil {
			return nil, errors.Wrapf(err, "%s: bars", impl)
		}
		bars.Color = plotutil.SoftColors[i%len(plotutil.SoftColors)]
		bars.LineStyle.Width = 0
		bars.Offset = width * vg.Length(float64(i)-float64(len(impls)-1)/2)
		p.Add(bars)
		p.Legend.Add(impl, bars)
	}
	p.NominalX(shapes...)
	return p, nil
}
