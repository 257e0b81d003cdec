package record

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *Config {
	t.Helper()

	cfg := DefaultConfig()
	cfg.OutputDir = t.TempDir()

	return cfg
}

func waitProcessed(t *testing.T, want uint64) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for GetStats().Processed < want {
		if time.Now().After(deadline) {
			t.Fatalf("processed %d of %d events before deadline", GetStats().Processed, want)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestEndToEndRecording(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, Attach(cfg))

	type payload struct{ a, b int }

	for i := 0; i < 25; i++ {
		RecordAllocationOf(&payload{a: i})
	}
	waitProcessed(t, 25)

	require.NoError(t, Detach())

	entries, err := os.ReadDir(filepath.Join(cfg.OutputDir, "allocs"))
	require.NoError(t, err)
	require.Len(t, entries, 1)

	info, err := entries[0].Info()
	require.NoError(t, err)
	assert.EqualValues(t, 25*4, info.Size())

	trace, err := os.ReadFile(filepath.Join(cfg.OutputDir, "traces", entries[0].Name()))
	require.NoError(t, err)
	assert.Contains(t, string(trace), "TestEndToEndRecording",
		"the recorded trace should reach the allocating test, not the facade")
	assert.NotContains(t, string(trace), "record.RecordAllocationOf",
		"facade frames must be stripped from captures")
}

func TestGetInfo(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, Attach(cfg))
	defer func() { _ = Detach() }()

	info := GetInfo()
	assert.Equal(t, Version, info.Version)
	assert.True(t, info.Attached)
	assert.True(t, info.Enabled)
}

func TestDisableSuppressesRecording(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, Attach(cfg))
	defer func() { _ = Detach() }()

	Disable()
	RecordAllocation(-1, "suppressed", new(int))
	assert.False(t, Enabled())
	assert.EqualValues(t, 0, GetStats().Recorded)

	Enable()
	assert.True(t, Enabled())
}
