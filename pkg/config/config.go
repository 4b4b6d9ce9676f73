// Package config describes a benchmark session. The type lives here rather
// than in cmd/bench so other programs can build sessions without pulling in
// the runner.
package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/i5heu/turnqueue/internal/testbench"
)

// Concurrency is an alias for testbench.Config.
type Concurrency = testbench.Config

// Benchmark modes.
const (
	ModeTimed      = "timed"
	ModeThroughput = "throughput"
	ModeRoundTrip  = "roundtrip"
)

// Config is one benchmark session.
type Config struct {
	// Capacity of every queue under test.
	Capacity int `yaml:"capacity"`
	// Modes to run, any of ModeTimed, ModeThroughput, ModeRoundTrip.
	Modes []string `yaml:"modes"`
	// Implementations restricts the run to these names; empty runs all.
	Implementations []string `yaml:"implementations"`

	// Timed mode.
	Iterations      int           `yaml:"iterations"`
	TestDuration    time.Duration `yaml:"test_duration"`
	MaxCPU          int           `yaml:"max_cpu"`
	Concurrency     []Concurrency `yaml:"concurrency"`
	HighConcurrency []Concurrency `yaml:"high_concurrency"`

	// Throughput and round trip modes.
	Trials int   `yaml:"trials"`
	Ops    int   `yaml:"ops"`
	Pins   []int `yaml:"pins"`
}

// Default returns the session cmd/bench runs without a config file.
func Default() Config {
	return Config{
		Capacity:     1024,
		Modes:        []string{ModeTimed, ModeThroughput, ModeRoundTrip},
		Iterations:   5,
		TestDuration: 5 * time.Second,
		Concurrency: []Concurrency{
			{NumProducers: 2, NumConsumers: 2},
			{NumProducers: 10, NumConsumers: 10},
			{NumProducers: 50, NumConsumers: 50},
		},
		HighConcurrency: []Concurrency{
			{NumProducers: 100, NumConsumers: 100},
			{NumProducers: 250, NumConsumers: 250},
			{NumProducers: 500, NumConsumers: 500},
		},
		Trials: 7,
		Ops:    1_000_000,
	}
}

// Load reads a YAML file on top of Default, so a file only needs the keys
// it changes.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "config: read")
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "config: parse %s", path)
	}
	return cfg, cfg.Validate()
}

// Validate reports the first setting the runner cannot use.
func (c Config) Validate() error {
	if c.Capacity < 1 {
		return errors.Errorf("config: capacity must be positive, got %d", c.Capacity)
	}
	if len(c.Modes) == 0 {
		return errors.New("config: no modes selected")
	}
	for _, m := range c.Modes {
		switch m {
		case ModeTimed:
			if c.Iterations < 1 || c.TestDuration <= 0 {
				return errors.Errorf("config: timed mode needs iterations and test_duration, got %d and %s", c.Iterations, c.TestDuration)
			}
			if len(c.Concurrency) == 0 {
				return errors.New("config: timed mode needs at least one concurrency entry")
			}
			for _, set := range [][]Concurrency{c.Concurrency, c.HighConcurrency} {
				for _, cc := range set {
					if cc.NumProducers < 1 || cc.NumConsumers < 1 {
						return errors.Errorf("config: concurrency %dP%dC needs at least one of each", cc.NumProducers, cc.NumConsumers)
					}
				}
			}
		case ModeThroughput, ModeRoundTrip:
			if c.Trials < 1 || c.Trials%2 == 0 {
				return errors.Errorf("config: trials must be odd and positive, got %d", c.Trials)
			}
			if c.Ops < 1 {
				return errors.Errorf("config: ops must be positive, got %d", c.Ops)
			}
		default:
			return errors.Errorf("config: unknown mode %q", m)
		}
	}
	return nil
}

// Wants reports whether the session includes mode.
func (c Config) Wants(mode string) bool {
	for _, m := range c.Modes {
		if m == mode {
			return true
		}
	}
	return false
}

// Selected reports whether implementation name is part of the session.
func (c Config) Selected(name string) bool {
	if len(c.Implementations) == 0 {
		return true
	}
	for _, n := range c.Implementations {
		if n == name {
			return true
		}
	}
	return false
}
