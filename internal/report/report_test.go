package report

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendAccumulatesSessions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test-results.json")

	first := FullReport{
		SessionTime: "2026-10-16T10:00:00Z",
		SystemInfo:  SystemInfo{NumCPU: 8, GOARCH: "amd64"},
		Benchmarks:  []BenchmarkResult{{Implementation: "TurnQueue", Mode: "throughput", OpsPerMs: 12000}},
	}
	second := FullReport{
		SessionTime: "2026-10-16T11:00:00Z",
		SystemInfo:  SystemInfo{NumCPU: 8, SimulatedCPUCount: 2},
	}
	require.NoError(t, Append(path, first))
	require.NoError(t, Append(path, second))

	sessions, err := Load(path)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, first, sessions[0])
	assert.Equal(t, 8, sessions[0].CPUs())
	assert.Equal(t, 2, sessions[1].CPUs())
}

func TestAppendRefusesCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test-results.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
	assert.Error(t, Append(path, FullReport{}))

	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
