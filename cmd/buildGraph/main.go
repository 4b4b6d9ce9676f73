package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	flag "github.com/spf13/pflag"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/vg"

	"github.com/i5heu/turnqueue/internal/report"
	"github.com/i5heu/turnqueue/pkg/config"
)

func main() {
	jsonFile := flag.String("jsonfile", "test-results.json", "Path to JSON file containing test sessions")
	outputPrefix := flag.String("out", "benchmark_graph", "Output graph image filename prefix")
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		With().Timestamp().Logger()

	sessions, err := report.Load(*jsonFile)
	if err != nil {
		log.Fatal().Err(err).Str("file", *jsonFile).Msg("cannot load results")
	}

	timed := groupTimed(sessions)
	for _, cpus := range sortedKeys(timed) {
		p, err := timedPlot(cpus, timed[cpus])
		if err != nil {
			log.Error().Err(err).Int("cpus", cpus).Msg("cannot build timed graph")
			continue
		}
		save(log, p, fmt.Sprintf("%s_%d.png", *outputPrefix, cpus), 12*vg.Inch, 9*vg.Inch)
	}

	charts := []struct {
		mode, title, yLabel string
	}{
		{config.ModeThroughput, "Throughput (median ops/ms) for %d CPU(s)", "ops/ms"},
		{config.ModeRoundTrip, "Round trip latency (median ns) for %d CPU(s)", "ns per round trip"},
	}
	for _, c := range charts {
		byCPU := groupMode(sessions, c.mode)
		for _, cpus := range sortedKeys(byCPU) {
			p, err := barPlot(fmt.Sprintf(c.title, cpus), c.yLabel, byCPU[cpus])
			if err != nil {
				log.Error().Err(err).Str("mode", c.mode).Int("cpus", cpus).Msg("cannot build bar chart")
				continue
			}
			save(log, p, fmt.Sprintf("%s_%s_%d.png", *outputPrefix, c.mode, cpus), 10*vg.Inch, 7*vg.Inch)
		}
	}
}

func save(log zerolog.Logger, p *plot.Plot, filename string, w, h vg.Length) {
	if err := p.Save(w, h, filename); err != nil {
		log.Error().Err(err).Str("file", filename).Msg("cannot save graph")
		return
	}
	log.Info().Str("file", filename).Msg("graph saved")
}
