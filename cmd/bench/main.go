package main

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v3"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	flag "github.com/spf13/pflag"

	"github.com/i5heu/turnqueue/internal/report"
	"github.com/i5heu/turnqueue/internal/testbench"
	"github.com/i5heu/turnqueue/pkg/config"
)

// Common CPU/vCPU settings tested when no --cpu is given.
var commonCPUs = []int{1, 2, 3, 4, 6, 8, 12, 16, 32, 48, 56, 64, 96, 128, 192, 256, 384, 512}

// fixedOpsConfigs are the producer/consumer pairs of the throughput mode.
var fixedOpsConfigs = []testbench.Config{
	{NumProducers: 1, NumConsumers: 1},
	{NumProducers: 2, NumConsumers: 2},
}

type runner struct {
	cfg   config.Config
	impls []Implementation
	log   zerolog.Logger
	bar   *progressbar.ProgressBar
}

func main() {
	configPath := flag.String("config", "", "YAML session file; flags override its values")
	testIterations := flag.Int("iter", 5, "Number of test iterations per concurrency setting")
	cpuMaxFlag := flag.Int("cpu", 0, "If non-zero, test only that GOMAXPROCS value; if 0, test common CPU/vCPU values up to runtime.NumCPU()")
	jsonExport := flag.Bool("json", false, "Export results as JSON to --jsonfile")
	highConcurrency := flag.Bool("high-concurrency", false, "Include high concurrency configurations")
	markdownOnly := flag.Bool("markdown-table", false, "Output markdown table from --jsonfile and exit")
	jsonFile := flag.String("jsonfile", "test-results.json", "Path to the JSON results file")
	progressFlag := flag.Bool("progress", false, "Display a progress bar with ETA")
	capacity := flag.Int("capacity", 1024, "Capacity of every queue under test")
	modes := flag.StringSlice("mode", nil, "Modes to run: timed, throughput, roundtrip")
	implNames := flag.StringSlice("impl", nil, "Only run these implementations")
	duration := flag.Duration("duration", 5*time.Second, "Duration of each timed iteration")
	trials := flag.Int("trials", 7, "Odd number of trials for throughput and roundtrip modes")
	ops := flag.Int("ops", 1_000_000, "Operations per producer in throughput and roundtrip modes")
	pins := flag.IntSlice("pins", nil, "CPUs to pin worker goroutines to, in launch order")
	yield := flag.Int("yield", 64, "Spins between scheduler yields in the turn queue's blocking operations (0 = never)")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	log := newLogger(*logLevel)

	if *markdownOnly {
		if err := outputMarkdownTable(*jsonFile, getImplementations(*yield)); err != nil {
			log.Fatal().Err(err).Str("file", *jsonFile).Msg("cannot build markdown table")
		}
		return
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			log.Fatal().Err(err).Str("file", *configPath).Msg("cannot load config")
		}
	}
	overrides := map[string]func(){
		"iter":     func() { cfg.Iterations = *testIterations },
		"cpu":      func() { cfg.MaxCPU = *cpuMaxFlag },
		"capacity": func() { cfg.Capacity = *capacity },
		"mode":     func() { cfg.Modes = *modes },
		"impl":     func() { cfg.Implementations = *implNames },
		"duration": func() { cfg.TestDuration = *duration },
		"trials":   func() { cfg.Trials = *trials },
		"ops":      func() { cfg.Ops = *ops },
		"pins":     func() { cfg.Pins = *pins },
	}
	for name, apply := range overrides {
		if flag.CommandLine.Changed(name) {
			apply()
		}
	}
	if !*highConcurrency {
		cfg.HighConcurrency = nil
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid session")
	}

	var impls []Implementation
	for _, impl := range getImplementations(*yield) {
		if cfg.Selected(impl.name) {
			impls = append(impls, impl)
		}
	}
	if len(impls) == 0 {
		log.Fatal().Strs("impl", cfg.Implementations).Msg("no implementation selected")
	}

	trueCPUCount := runtime.NumCPU()
	cpuSettings := cpuSettingsFor(cfg.MaxCPU, trueCPUCount)

	r := &runner{cfg: cfg, impls: impls, log: log}
	if *progressFlag {
		r.bar = progressbar.NewOptions(r.totalTests(len(cpuSettings)),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetDescription("benchmarking"),
			progressbar.OptionShowCount(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionClearOnFinish(),
		)
	}

	ctx := context.Background()
	var allSessions []report.FullReport
	for _, cpus := range cpuSettings {
		runtime.GOMAXPROCS(cpus)
		sysInfo := gatherSystemInfo(log)
		sysInfo.NumCPU = cpus
		sysInfo.TrueCPU = trueCPUCount
		sysInfo.SimulatedCPUCount = cpus

		fmt.Printf("\n=============================\n")
		fmt.Printf("GOMAXPROCS = %d\n", cpus)
		fmt.Printf("=============================\n")

		results, err := r.runSession(ctx)
		if err != nil {
			log.Fatal().Err(err).Int("gomaxprocs", cpus).Msg("benchmark failed")
		}
		allSessions = append(allSessions, report.FullReport{
			SessionTime: time.Now().Format(time.RFC3339),
			SystemInfo:  sysInfo,
			Benchmarks:  results,
		})
	}
	if r.bar != nil {
		_ = r.bar.Finish()
	}

	if *jsonExport {
		if err := report.Append(*jsonFile, allSessions...); err != nil {
			log.Fatal().Err(err).Str("file", *jsonFile).Msg("cannot write results")
		}
		log.Info().Str("file", *jsonFile).Int("sessions", len(allSessions)).Msg("wrote results")
	}
}

func newLogger(level string) zerolog.Logger {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		With().Timestamp().Logger()
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		log.Warn().Str("level", level).Msg("unknown log level, using info")
		lvl = zerolog.InfoLevel
	}
	return log.Level(lvl)
}

// cpuSettingsFor returns the GOMAXPROCS values to test.
func cpuSettingsFor(maxCPU, trueCPUCount int) []int {
	if maxCPU > 0 {
		return []int{min(maxCPU, trueCPUCount)}
	}
	var settings []int
	for _, v := range commonCPUs {
		if v <= trueCPUCount {
			settings = append(settings, v)
		}
	}
	return settings
}

func (r *runner) totalTests(cpuSettings int) int {
	perCPU := 0
	if r.cfg.Wants(config.ModeTimed) {
		perCPU += (len(r.cfg.Concurrency) + len(r.cfg.HighConcurrency)) * r.cfg.Iterations * len(r.impls)
	}
	if r.cfg.Wants(config.ModeThroughput) {
		perCPU += len(fixedOpsConfigs) * r.cfg.Trials * len(r.impls)
	}
	if r.cfg.Wants(config.ModeRoundTrip) {
		perCPU += r.cfg.Trials * len(r.impls)
	}
	return perCPU * cpuSettings
}

func (r *runner) step() {
	if r.bar != nil {
		_ = r.bar.Add(1)
	}
}

func (r *runner) runSession(ctx context.Context) ([]report.BenchmarkResult, error) {
	var results []report.BenchmarkResult
	if r.cfg.Wants(config.ModeTimed) {
		res, err := r.runTimed(ctx)
		if err != nil {
			return nil, err
		}
		results = append(results, res...)
	}
	if r.cfg.Wants(config.ModeThroughput) {
		res, err := r.runThroughput()
		if err != nil {
			return nil, err
		}
		results = append(results, res...)
	}
	if r.cfg.Wants(config.ModeRoundTrip) {
		res, err := r.runRoundTrip()
		if err != nil {
			return nil, err
		}
		results = append(results, res...)
	}
	return results, nil
}

func (r *runner) result(impl Implementation, mode string, cc testbench.Config) report.BenchmarkResult {
	return report.BenchmarkResult{
		Implementation: impl.name,
		Mode:           mode,
		NumProducers:   cc.NumProducers,
		NumConsumers:   cc.NumConsumers,
		Timestamp:      time.Now().Unix(),
		GoVersion:      runtime.Version(),
	}
}

func (r *runner) runTimed(ctx context.Context) ([]report.BenchmarkResult, error) {
	var results []report.BenchmarkResult
	configs := append(append([]testbench.Config(nil), r.cfg.Concurrency...), r.cfg.HighConcurrency...)
	for _, cc := range configs {
		fmt.Printf("  [Concurrency: producers=%d, consumers=%d]\n", cc.NumProducers, cc.NumConsumers)
		for iteration := 1; iteration <= r.cfg.Iterations; iteration++ {
			fmt.Printf("    iteration %d/%d\n", iteration, r.cfg.Iterations)
			for _, impl := range r.impls {
				runtime.GC()
				q, err := impl.newQueue(r.cfg.Capacity)
				if err != nil {
					return nil, errors.Wrapf(err, "%s: new queue", impl.name)
				}
				time.Sleep(250 * time.Millisecond)

				produced, consumed, actualTime := testbench.RunTimedTest[int](
					ctx, q, cc, r.cfg.TestDuration, func(i int) int { return i })
				release(q)
				throughput := float64(consumed) / actualTime.Seconds()

				fmt.Printf("    %s => produced=%d, consumed=%d, throughput=%.0f msg/s, took=%v\n",
					impl.name, produced, consumed, throughput, actualTime)
				r.log.Debug().Str("impl", impl.name).Int64("produced", produced).Int64("consumed", consumed).Msg("timed run")
				r.step()

				res := r.result(impl, config.ModeTimed, cc)
				res.NumMessages = produced
				res.NumMessagesConsumed = consumed
				res.TestDuration = r.cfg.TestDuration.String()
				res.ActualElapsed = actualTime.String()
				res.Throughput = throughput
				results = append(results, res)
			}
		}
	}
	return results, nil
}

func (r *runner) runThroughput() ([]report.BenchmarkResult, error) {
	var results []report.BenchmarkResult
	for _, cc := range fixedOpsConfigs {
		fmt.Printf("  [Throughput: %dP%dC, %d ops per producer]\n", cc.NumProducers, cc.NumConsumers, r.cfg.Ops)
		for _, impl := range r.impls {
			samples := make([]float64, 0, r.cfg.Trials)
			for trial := 0; trial < r.cfg.Trials; trial++ {
				q, err := impl.newQueue(r.cfg.Capacity)
				if err != nil {
					return nil, errors.Wrapf(err, "%s: new queue", impl.name)
				}
				opsMs, err := testbench.RunThroughput[int](q, cc.NumProducers, cc.NumConsumers, r.cfg.Ops,
					func(i int) int { return i }, r.cfg.Pins)
				release(q)
				if err != nil {
					return nil, errors.Wrapf(err, "%s: throughput", impl.name)
				}
				samples = append(samples, opsMs)
				r.log.Debug().Str("impl", impl.name).Int("trial", trial).Float64("ops_per_ms", opsMs).Msg("throughput trial")
				r.step()
			}
			median := testbench.Median(samples)
			fmt.Printf("    %s => %.0f ops/ms (median of %d)\n", impl.name, median, r.cfg.Trials)

			res := r.result(impl, config.ModeThroughput, cc)
			res.NumMessages = int64(cc.NumProducers * r.cfg.Ops)
			res.NumMessagesConsumed = res.NumMessages
			res.OpsPerMs = median
			res.Throughput = median * 1000
			results = append(results, res)
		}
	}
	return results, nil
}

func (r *runner) runRoundTrip() ([]report.BenchmarkResult, error) {
	var results []report.BenchmarkResult
	fmt.Printf("  [Round trip: %d iterations]\n", r.cfg.Ops)
	for _, impl := range r.impls {
		samples := make([]float64, 0, r.cfg.Trials)
		for trial := 0; trial < r.cfg.Trials; trial++ {
			ping, err := impl.newQueue(r.cfg.Capacity)
			if err != nil {
				return nil, errors.Wrapf(err, "%s: new queue", impl.name)
			}
			pong, err := impl.newQueue(r.cfg.Capacity)
			if err != nil {
				release(ping)
				return nil, errors.Wrapf(err, "%s: new queue", impl.name)
			}
			ns, err := testbench.RunRoundTrip[int](ping, pong, r.cfg.Ops, func(i int) int { return i }, r.cfg.Pins)
			release(ping)
			release(pong)
			if err != nil {
				return nil, errors.Wrapf(err, "%s: round trip", impl.name)
			}
			samples = append(samples, ns)
			r.step()
		}
		median := testbench.Median(samples)
		fmt.Printf("    %s => %.0f ns round trip (median of %d)\n", impl.name, median, r.cfg.Trials)

		res := r.result(impl, config.ModeRoundTrip, testbench.Config{NumProducers: 1, NumConsumers: 1})
		res.NumMessages = int64(r.cfg.Ops)
		res.NumMessagesConsumed = int64(r.cfg.Ops)
		res.RoundTripNs = median
		results = append(results, res)
	}
	return results, nil
}

// outputMarkdownTable loads the JSON file and outputs a Markdown table of its
// last session.
func outputMarkdownTable(jsonFile string, impls []Implementation) error {
	sessions, err := report.Load(jsonFile)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		return errors.Errorf("no sessions found in %s", jsonFile)
	}
	fmt.Print(markdownTable(sessions[len(sessions)-1], impls))
	return nil
}

func markdownTable(session report.FullReport, impls []Implementation) string {
	implMetaMap := make(map[string]Implementation, len(impls))
	for _, impl := range impls {
		implMetaMap[impl.name] = impl
	}

	type tableRow struct {
		implementation string
		pkgName        string
		mode           string
		shape          string
		features       string
		result         string
		score          float64
	}
	var rows []tableRow
	for _, bench := range session.Benchmarks {
		meta := implMetaMap[bench.Implementation]
		row := tableRow{
			implementation: bench.Implementation,
			pkgName:        meta.pkgName,
			mode:           bench.Mode,
			shape:          fmt.Sprintf("%dP%dC", bench.NumProducers, bench.NumConsumers),
			features:       strings.Join(meta.features, ", "),
		}
		switch bench.Mode {
		case config.ModeRoundTrip:
			row.result = fmt.Sprintf("%.0f ns", bench.RoundTripNs)
			row.score = -bench.RoundTripNs
		case config.ModeThroughput:
			row.result = fmt.Sprintf("%.0f ops/ms", bench.OpsPerMs)
			row.score = bench.OpsPerMs
		default:
			row.result = fmt.Sprintf("%.0f msgs/s", bench.Throughput)
			row.score = bench.Throughput
		}
		rows = append(rows, row)
	}
	// Group by mode and shape, best result first.
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].mode != rows[j].mode {
			return rows[i].mode < rows[j].mode
		}
		if rows[i].shape != rows[j].shape {
			return rows[i].shape < rows[j].shape
		}
		return rows[i].score > rows[j].score
	})

	var b strings.Builder
	b.WriteString("## Last Session Benchmark Summary\n\n")
	b.WriteString("| Implementation           | Package  | Mode       | Shape    | Features                                 | Result          |\n")
	b.WriteString("|--------------------------|----------|------------|----------|------------------------------------------|-----------------|\n")
	for _, r := range rows {
		fmt.Fprintf(&b, "| %-24s | %-8s | %-10s | %-8s | %-40s | %15s |\n",
			r.implementation, r.pkgName, r.mode, r.shape, r.features, r.result)
	}
	return b.String()
}

// gatherSystemInfo collects basic CPU and memory details.
func gatherSystemInfo(log zerolog.Logger) report.SystemInfo {
	info := report.SystemInfo{
		NumCPU: runtime.NumCPU(),
		GOARCH: runtime.GOARCH,
	}
	if infos, err := cpu.Info(); err == nil && len(infos) > 0 {
		info.CPUModel = infos[0].ModelName
		info.CPUSpeedMHz = infos[0].Mhz
	} else if err != nil {
		log.Debug().Err(err).Msg("cpu info unavailable")
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		info.TotalMemory = vm.Total
	} else {
		log.Debug().Err(err).Msg("memory info unavailable")
	}
	return info
}
