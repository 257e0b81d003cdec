// Package api implements the allocation recording runtime: the capture
// hook called from instrumented code and the process-wide lifecycle
// around it.
//
// The hook is the CRITICAL HOT PATH: it runs synchronously on the
// allocating goroutine for every executed allocation site. Its work is
// bounded CPU (stack capture, hashing, a map insert, a non-blocking
// enqueue); all file I/O happens on the single aggregation worker
// goroutine, off the allocating path.
//
// Two pieces of state gate the hook:
//   - a process-wide enabled flag (atomic.Bool), read once per
//     invocation; Detach clears it first, and in-flight invocations
//     already past their check may still enqueue, an accepted teardown
//     race
//   - a per-goroutine reentrancy flag in the goroutine's recorder
//     context; the pipeline's own bookkeeping allocates, and without
//     the flag those allocations would recurse into the hook forever
//
// Nothing escapes the hook boundary: every internal failure is
// recovered, logged at debug level and treated as a dropped event,
// because a panic thrown into the instrumented program would corrupt
// its control flow.
package api

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/kolkov/allocprof/internal/alloc/config"
	"github.com/kolkov/allocprof/internal/alloc/frame"
	"github.com/kolkov/allocprof/internal/alloc/goroutine"
	"github.com/kolkov/allocprof/internal/alloc/persist"
	"github.com/kolkov/allocprof/internal/alloc/queue"
	"github.com/kolkov/allocprof/internal/alloc/signature"
	"github.com/kolkov/allocprof/internal/alloc/tracetable"
	"github.com/kolkov/allocprof/internal/alloc/worker"
)

// settleTimeout is how long Detach waits for the worker goroutine to
// exit before flushing its buffers anyway.
const settleTimeout = time.Second

// Process-wide recorder state. Wired by Attach, torn down by Detach.
// The pipeline references are never nilled while disabled so that
// in-flight hook invocations past their enabled check stay safe.
var (
	// enabled gates the hook. Read racily on the hot path; Detach
	// clears it before anything else.
	enabled atomic.Bool

	// contexts caches one recorder context per goroutine.
	// Key: int64 goroutine ID. Value: *goroutine.Context.
	contexts sync.Map

	// lifecycleMu serializes Attach and Detach.
	lifecycleMu sync.Mutex

	attached bool
	cfg      *config.Config

	logger   hclog.Logger
	allocLog hclog.Logger

	table  *tracetable.Table
	events *queue.Queue
	wrk    *worker.Worker
	writer *persist.Writer

	// debugAllocs mirrors cfg.Debug||cfg.DebugAllocs for the hot
	// path, so the hook never dereferences cfg.
	debugAllocs bool

	recorded      atomic.Uint64
	sentinelDrops atomic.Uint64
)

// Attach wires the recording pipeline and enables the capture hook.
//
// c may be nil, in which case the configuration is loaded from the
// ALLOCPROF_* environment. Attach is idempotent: calling it while
// attached is a no-op.
//
// Thread Safety: safe for concurrent calls; one wins, the rest no-op.
func Attach(c *config.Config) error {
	lifecycleMu.Lock()
	defer lifecycleMu.Unlock()

	if attached {
		return nil
	}

	if c == nil {
		loaded, err := config.Load(nil)
		if err != nil {
			return err
		}
		c = loaded
	} else if err := c.Validate(); err != nil {
		return err
	}

	logger = newLogger("allocprof", c.Debug)
	allocLog = newLogger("allocprof.allocs", c.Debug || c.DebugAllocs)

	w, err := persist.NewWriter(c.OutputDir, newLogger("allocprof.persist", c.Debug || c.DebugStats))
	if err != nil {
		return err
	}

	writer = w
	table = tracetable.New()
	events = queue.New(c.QueueCapacity)

	wrk = worker.New(worker.Config{
		Queue:    events,
		Table:    table,
		Writer:   writer,
		BaseSize: c.BaseBufferSize,
		MaxSize:  c.MaxBufferSize,
		Logger:   newLogger("allocprof.worker", c.Debug || c.DebugWorker),
	})

	// The worker's own allocations must never be recorded: its
	// goroutine context stays in the recording state for the
	// worker's entire lifetime.
	wrk.Start(func() {
		getCurrentContext().Recording = true
	})

	recorded.Store(0)
	sentinelDrops.Store(0)

	cfg = c
	debugAllocs = c.Debug || c.DebugAllocs
	attached = true
	enabled.Store(true)

	logger.Info("allocation recording attached", "output", c.OutputDir)

	if c.OffHeapBuffers {
		logger.Info("off-heap buffers requested; buffers are heap-backed in this runtime")
	}

	return nil
}

// Detach disables the capture hook and tears the pipeline down.
//
// Sequence: disable the flag, stop the worker, wait briefly for
// in-flight event processing to settle, then flush every remaining
// buffer and trace. Events still queued when the worker stopped are
// lost; that tail is the accepted data-loss window of an orderly
// shutdown racing live allocators.
//
// Idempotent; returns any flush error.
func Detach() error {
	lifecycleMu.Lock()
	defer lifecycleMu.Unlock()

	if !attached {
		return nil
	}

	enabled.Store(false)

	wrk.Stop()
	if !wrk.Wait(settleTimeout) {
		logger.Warn("aggregation worker did not settle before flush")
	}

	err := wrk.FlushRemaining()

	if cfg.Debug || cfg.DebugStats {
		s := Snapshot()
		logger.Debug("recording summary",
			"recorded", s.Recorded,
			"processed", s.Processed,
			"dropped_queue", s.DroppedQueue,
			"dropped_sentinel", s.DroppedSentinel,
			"flushes", s.Flushes,
			"bytes", s.BytesWritten,
			"signatures", s.Signatures,
		)
	}

	logger.Info("allocation recording detached")
	attached = false

	return err
}

// Attached reports whether the pipeline is currently wired.
func Attached() bool {
	lifecycleMu.Lock()
	defer lifecycleMu.Unlock()

	return attached
}

// Enable turns the capture hook back on after Disable. No-op unless
// attached.
func Enable() {
	lifecycleMu.Lock()
	defer lifecycleMu.Unlock()

	if attached {
		enabled.Store(true)
	}
}

// Disable turns the capture hook off without tearing the pipeline
// down. Already-queued events are still processed.
func Disable() {
	enabled.Store(false)
}

// Enabled reports whether the capture hook is active.
func Enabled() bool {
	return enabled.Load()
}

// RecordAllocation is the capture hook. It is invoked synchronously and
// exactly once per executed allocation site, on the allocating
// goroutine, after the object is safely referencable.
//
// count is the element count for array-like allocations, or -1.
// desc is the descriptor of the allocated type. ref is the new object.
//
// Never panics across this boundary; all failures become dropped
// events.
func RecordAllocation(count int32, desc string, ref any) {
	recordAllocation(count, desc, ref, 0)
}

// RecordAllocationSkip is RecordAllocation with explicit control over
// how many additional caller frames to strip from the captured stack;
// 0 starts the capture at the caller of this function. Facade wrappers
// pass 1 so their own frame does not appear in traces.
func RecordAllocationSkip(count int32, desc string, ref any, skip int) {
	recordAllocation(count, desc, ref, skip)
}

func recordAllocation(count int32, desc string, ref any, skip int) {
	gctx := getCurrentContext()
	if gctx.Recording {
		// Reentrant invocation: the pipeline's own bookkeeping
		// allocated. Recording it would recurse forever.
		return
	}
	gctx.Recording = true

	defer func() {
		if r := recover(); r != nil && allocLog != nil {
			allocLog.Debug("capture failed", "type", desc, "panic", r)
		}
		gctx.Recording = false
	}()

	// One racy read; Detach may clear the flag right after, which
	// costs at most this event.
	if !enabled.Load() {
		return
	}

	// +2 strips recordAllocation and its exported wrapper, so the
	// capture starts at the wrapper's caller plus any extra skip.
	frames := frame.Capture(skip + 2)
	sig := signature.Hash(frames)
	if sig == signature.Sentinel {
		sentinelDrops.Add(1)
		allocLog.Debug("dropped allocation with sentinel signature", "type", desc)

		return
	}

	table.InsertIfAbsent(sig, frames)

	ev := queue.Event{ObjectID: identityOf(ref), Signature: sig}
	if !events.Push(ev) {
		allocLog.Debug("event queue full, dropping allocation", "signature", sig, "type", desc)

		return
	}

	recorded.Add(1)

	if debugAllocs {
		allocLog.Debug("recorded allocation",
			"signature", sig, "object", ev.ObjectID, "count", count, "type", desc)
	}
}

// getCurrentContext returns the recorder context for the current
// goroutine, creating and caching it on first access.
//
// The cached path is a single sync.Map load; the first access per
// goroutine additionally pays the goroutine-ID extraction and one
// allocation.
func getCurrentContext() *goroutine.Context {
	gid := goroutine.ID()

	if val, ok := contexts.Load(gid); ok {
		return val.(*goroutine.Context)
	}

	ctx := goroutine.Alloc(gid)
	if prev, loaded := contexts.LoadOrStore(gid, ctx); loaded {
		return prev.(*goroutine.Context)
	}

	return ctx
}

// Stats is a snapshot of recorder counters.
type Stats struct {
	// Recorded counts events accepted onto the queue.
	Recorded uint64

	// DroppedQueue counts events refused because the queue was full.
	DroppedQueue uint64

	// DroppedSentinel counts captures dropped for a failed signature.
	DroppedSentinel uint64

	// Processed counts events the worker has aggregated.
	Processed uint64

	// Flushes counts successful buffer flushes.
	Flushes uint64

	// BytesWritten is the total persisted allocation bytes.
	BytesWritten uint64

	// Signatures is the number of distinct call-site signatures seen.
	Signatures int

	// QueueDepth is the number of events currently awaiting the
	// worker.
	QueueDepth int
}

// Snapshot returns current counter values. Zero value when not
// attached.
func Snapshot() Stats {
	lifecycleMu.Lock()
	defer lifecycleMu.Unlock()

	if table == nil {
		return Stats{}
	}

	return Stats{
		Recorded:        recorded.Load(),
		DroppedQueue:    events.Dropped(),
		DroppedSentinel: sentinelDrops.Load(),
		Processed:       wrk.Processed(),
		Flushes:         writer.Flushes(),
		BytesWritten:    writer.BytesWritten(),
		Signatures:      table.Len(),
		QueueDepth:      events.Len(),
	}
}
