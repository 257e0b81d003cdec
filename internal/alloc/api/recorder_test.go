package api

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kolkov/allocprof/internal/alloc/config"
	"github.com/kolkov/allocprof/internal/alloc/persist"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := config.Default()
	cfg.OutputDir = t.TempDir()
	cfg.BaseBufferSize = 128
	cfg.MaxBufferSize = 512

	return cfg
}

func attach(t *testing.T, cfg *config.Config) {
	t.Helper()

	require.NoError(t, Attach(cfg))
	t.Cleanup(func() {
		_ = Detach()
	})
}

// waitProcessed blocks until the worker has handled want events.
func waitProcessed(t *testing.T, want uint64) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for Snapshot().Processed < want {
		if time.Now().After(deadline) {
			t.Fatalf("worker processed %d of %d events before deadline", Snapshot().Processed, want)
		}
		time.Sleep(time.Millisecond)
	}
}

func artifactNames(t *testing.T, root, sub string) []string {
	t.Helper()

	entries, err := os.ReadDir(filepath.Join(root, sub))
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}

	return names
}

func TestAttachDetachLifecycle(t *testing.T) {
	cfg := testConfig(t)
	attach(t, cfg)

	assert.True(t, Attached())
	assert.True(t, Enabled())

	require.NoError(t, Detach())
	assert.False(t, Attached())
	assert.False(t, Enabled())

	// Both idempotent.
	require.NoError(t, Detach())
	require.NoError(t, Attach(cfg))
	require.NoError(t, Attach(cfg))
	assert.True(t, Attached())
}

func TestOrderlyShutdownPersistsEveryEvent(t *testing.T) {
	cfg := testConfig(t)
	attach(t, cfg)

	const n = 10
	for i := 0; i < n; i++ {
		RecordAllocation(-1, "testobject", &struct{ x int }{i})
	}
	waitProcessed(t, n)

	require.NoError(t, Detach())

	// One call site, below buffer capacity, no intermediate flush:
	// the artifact length equals 4 bytes per recorded event.
	allocs := artifactNames(t, cfg.OutputDir, persist.AllocsDir)
	require.Len(t, allocs, 1, "a single call site must yield a single artifact")

	info, err := os.Stat(filepath.Join(cfg.OutputDir, persist.AllocsDir, allocs[0]))
	require.NoError(t, err)
	assert.EqualValues(t, n*4, info.Size())

	traces := artifactNames(t, cfg.OutputDir, persist.TracesDir)
	assert.Equal(t, allocs, traces, "every allocations artifact gets its trace")
}

func TestDistinctCallSitesGetDistinctSignatures(t *testing.T) {
	cfg := testConfig(t)
	attach(t, cfg)

	RecordAllocation(-1, "a", new(int))
	RecordAllocation(-1, "b", new(int))
	waitProcessed(t, 2)

	s := Snapshot()
	assert.Equal(t, 2, s.Signatures, "two call sites, two trace table entries")
}

func TestRepeatedSiteRegistersOneTrace(t *testing.T) {
	cfg := testConfig(t)
	attach(t, cfg)

	for i := 0; i < 50; i++ {
		RecordAllocation(-1, "loop", new(int))
	}
	waitProcessed(t, 50)

	s := Snapshot()
	assert.Equal(t, 1, s.Signatures, "one call site regardless of event count")
	assert.EqualValues(t, 50, s.Recorded)
}

func TestReentrantInvocationIsNoOp(t *testing.T) {
	cfg := testConfig(t)
	attach(t, cfg)

	before := Snapshot().Recorded

	// Simulate the hook's own bookkeeping allocating: with the
	// goroutine's recording flag set, a nested invocation must not
	// record, recurse, or disturb the flag's owner.
	gctx := getCurrentContext()
	gctx.Recording = true
	RecordAllocation(-1, "nested", new(int))
	assert.True(t, gctx.Recording, "nested no-op must not clear the outer guard")
	gctx.Recording = false

	assert.Equal(t, before, Snapshot().Recorded)

	// With the guard released, recording works again.
	RecordAllocation(-1, "after", new(int))
	waitProcessed(t, before+1)
	assert.Equal(t, before+1, Snapshot().Recorded)
}

func TestDisabledHookDropsSilently(t *testing.T) {
	cfg := testConfig(t)
	attach(t, cfg)

	Disable()
	RecordAllocation(-1, "disabled", new(int))
	assert.EqualValues(t, 0, Snapshot().Recorded)

	Enable()
	RecordAllocation(-1, "enabled", new(int))
	waitProcessed(t, 1)
	assert.EqualValues(t, 1, Snapshot().Recorded)
}

func TestHookBeforeAttachIsSafe(t *testing.T) {
	// Not attached: must not panic, must not record.
	RecordAllocation(-1, "early", new(int))
	assert.False(t, Enabled())
}

func TestNoSentinelArtifactIsEverWritten(t *testing.T) {
	cfg := testConfig(t)
	attach(t, cfg)

	for i := 0; i < 20; i++ {
		RecordAllocation(-1, "obj", new(int))
	}
	waitProcessed(t, 20)
	require.NoError(t, Detach())

	for _, sub := range []string{persist.AllocsDir, persist.TracesDir} {
		for _, name := range artifactNames(t, cfg.OutputDir, sub) {
			assert.NotEqual(t, "0", name, "sentinel signature must never be persisted (%s)", sub)
		}
	}
}

func TestConcurrentAllocators(t *testing.T) {
	cfg := testConfig(t)
	attach(t, cfg)

	const goroutines = 16
	const perGoroutine = 200

	done := make(chan struct{})
	for i := 0; i < goroutines; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for j := 0; j < perGoroutine; j++ {
				RecordAllocation(-1, "concurrent", new(int))
			}
		}()
	}
	for i := 0; i < goroutines; i++ {
		<-done
	}

	waitProcessed(t, goroutines*perGoroutine)
	require.NoError(t, Detach())

	s := Snapshot()
	assert.Zero(t, s.DroppedQueue)

	// All goroutines allocate at the same call site, so everything
	// aggregates under one signature.
	allocs := artifactNames(t, cfg.OutputDir, persist.AllocsDir)
	require.Len(t, allocs, 1)

	info, err := os.Stat(filepath.Join(cfg.OutputDir, persist.AllocsDir, allocs[0]))
	require.NoError(t, err)
	assert.EqualValues(t, goroutines*perGoroutine*4, info.Size())
}

func TestSnapshotWhenDetached(t *testing.T) {
	require.NoError(t, Detach())

	// After detach the last pipeline's counters remain readable.
	_ = Snapshot()
}

func TestIdentityTokensDiffer(t *testing.T) {
	a := identityOf(new(int))
	b := identityOf(new(int))

	assert.NotEqual(t, a, b, "consecutive tokens must differ")
}

func TestIdentityOfHandlesAllKinds(t *testing.T) {
	refs := []any{
		nil,
		new(int),
		42,
		"a string",
		map[string]int{},
		[]byte{1, 2},
		make(chan int),
		func() {},
		struct{ a, b int }{},
	}

	seen := map[uint32]bool{}
	for _, ref := range refs {
		tok := identityOf(ref)
		assert.False(t, seen[tok], "token collision within one small batch")
		seen[tok] = true
	}
}
