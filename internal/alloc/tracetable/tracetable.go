// Package tracetable implements the process-lifetime mapping of
// call-stack signatures to their frame sequences.
//
// The table deduplicates traces: however many allocations share a call
// site, its frame sequence is stored once, keyed by the 32-bit
// signature. Insertion is first-writer-wins and never overwrites, so a
// signature's frames are immutable for the lifetime of the table.
//
// Concurrency:
//   - InsertIfAbsent: safe under arbitrary simultaneous callers
//     (sync.Map LoadOrStore, atomic first-writer-wins)
//   - Get: lock-free read, called on the hot path
//   - Entries: best-effort iteration, used only at flush and shutdown;
//     it need not be a consistent snapshot across entries
package tracetable

import (
	"sync"
	"sync/atomic"

	"github.com/kolkov/allocprof/internal/alloc/frame"
)

// Table maps signature to frame sequence.
//
// The zero value is not ready for use; construct with New.
type Table struct {
	traces sync.Map // uint32 (signature) → frame.Sequence
	size   atomic.Int64
}

// New creates an empty trace table.
func New() *Table {
	return &Table{}
}

// InsertIfAbsent registers frames under sig unless the signature is
// already present. The first writer wins; later calls with the same
// signature are no-ops regardless of their frames. Reports whether this
// call performed the insertion.
//
// Thread Safety: safe for concurrent calls.
func (t *Table) InsertIfAbsent(sig uint32, frames frame.Sequence) bool {
	_, loaded := t.traces.LoadOrStore(sig, frames)
	if !loaded {
		t.size.Add(1)
	}

	return !loaded
}

// Get returns the frame sequence registered for sig.
//
// Thread Safety: lock-free read, safe for concurrent calls.
func (t *Table) Get(sig uint32) (frame.Sequence, bool) {
	val, ok := t.traces.Load(sig)
	if !ok {
		return nil, false
	}

	return val.(frame.Sequence), true
}

// Entries iterates over all registered (signature, frames) pairs,
// stopping early if fn returns false.
//
// Iteration is best-effort: entries inserted concurrently may or may
// not be visited. Callers use this only at flush and shutdown time.
func (t *Table) Entries(fn func(sig uint32, frames frame.Sequence) bool) {
	t.traces.Range(func(key, val any) bool {
		return fn(key.(uint32), val.(frame.Sequence))
	})
}

// Len returns the number of distinct signatures registered.
func (t *Table) Len() int {
	return int(t.size.Load())
}
