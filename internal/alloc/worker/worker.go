// Package worker implements the single-consumer aggregation loop.
//
// Exactly one worker goroutine drains the event queue. It exclusively
// owns the per-signature buffers and the persistence writer, so the
// normal path mutates both without any synchronization. Allocations
// made by the worker itself are never recorded: the lifecycle
// controller marks the worker's goroutine context as permanently
// recording before the loop starts.
//
// Buffer policy per event:
//  1. Look up the signature's buffer, allocating one at the base size
//     on first sight.
//  2. If the buffer is full, flush it; then, if its capacity is still
//     below the maximum, replace it with one of double the capacity,
//     otherwise keep reusing the emptied buffer.
//  3. Append the event's identity value.
//
// Each event is processed under a recover: a failure while handling one
// event is logged and the loop continues with the next. The loop exits
// only on Stop, without draining; final draining belongs to the
// lifecycle controller via FlushRemaining.
package worker

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/kolkov/allocprof/internal/alloc/buffer"
	"github.com/kolkov/allocprof/internal/alloc/persist"
	"github.com/kolkov/allocprof/internal/alloc/queue"
	"github.com/kolkov/allocprof/internal/alloc/tracetable"
)

// pollTimeout bounds how long a single Pop blocks. Cancellation is
// observed inside Pop as well, so this only caps how stale the loop's
// stop check can get under total allocation silence.
const pollTimeout = time.Minute

// Config carries the worker's collaborators and buffer sizing.
type Config struct {
	Queue    *queue.Queue
	Table    *tracetable.Table
	Writer   *persist.Writer
	BaseSize int
	MaxSize  int
	Logger   hclog.Logger
}

// Worker is the background aggregation consumer.
type Worker struct {
	queue  *queue.Queue
	table  *tracetable.Table
	writer *persist.Writer

	baseSize int
	maxSize  int
	logger   hclog.Logger

	// buffers is signature → accumulation buffer. Owned by the worker
	// goroutine while running; read by FlushRemaining only after the
	// goroutine has exited.
	buffers map[uint32]*buffer.Buffer

	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once

	processed atomic.Uint64
}

// New creates a worker. The worker does not run until Start.
func New(cfg Config) *Worker {
	logger := cfg.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	return &Worker{
		queue:    cfg.Queue,
		table:    cfg.Table,
		writer:   cfg.Writer,
		baseSize: cfg.BaseSize,
		maxSize:  cfg.MaxSize,
		logger:   logger,
		buffers:  make(map[uint32]*buffer.Buffer),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start launches the worker goroutine. exempt, if non-nil, runs first
// on the new goroutine; the lifecycle controller uses it to mark the
// goroutine's recorder context as permanently recording so the worker's
// own allocations never re-enter the capture hook.
func (w *Worker) Start(exempt func()) {
	go w.run(exempt)
}

func (w *Worker) run(exempt func()) {
	defer close(w.doneCh)

	if exempt != nil {
		exempt()
	}

	w.logger.Debug("aggregation worker started")

	for {
		select {
		case <-w.stopCh:
			w.logger.Debug("aggregation worker stopping", "processed", w.processed.Load())
			return
		default:
		}

		ev, ok := w.queue.Pop(pollTimeout, w.stopCh)
		if !ok {
			// Timeout or stop signal; the loop re-checks stop.
			continue
		}

		w.handle(ev)
	}
}

// handle processes a single event with per-event fault isolation.
func (w *Worker) handle(ev queue.Event) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("event processing failed",
				"signature", ev.Signature, "object", ev.ObjectID, "panic", r)
		}
	}()

	// The hook registers the trace before enqueueing, so a miss here
	// means a hook bug, not a recoverable condition. Record anyway;
	// the identity stream is still valid without its trace.
	if _, ok := w.table.Get(ev.Signature); !ok {
		w.logger.Warn("event for unregistered signature", "signature", ev.Signature)
	}

	buf := w.buffers[ev.Signature]
	if buf == nil {
		buf = buffer.New(w.baseSize)
		w.buffers[ev.Signature] = buf
		w.logger.Debug("allocated buffer", "signature", ev.Signature, "capacity", buf.Cap())
	}

	if buf.Full() {
		if err := w.writer.Flush(ev.Signature, buf); err != nil {
			// The flushed range is lost; the buffer itself was
			// reset and stays usable.
			w.logger.Error("flush failed", "signature", ev.Signature, "error", err)
		}

		if buf.Cap() < w.maxSize {
			buf = buffer.New(buffer.Grow(buf.Cap(), w.maxSize))
			w.buffers[ev.Signature] = buf
			w.logger.Debug("grew buffer", "signature", ev.Signature, "capacity", buf.Cap())
		}
	}

	buf.Append(ev.ObjectID)
	w.processed.Add(1)

	w.logger.Debug("buffered allocation", "signature", ev.Signature, "object", ev.ObjectID)
}

// Stop signals the worker to exit. Idempotent. The worker does not
// drain the queue on the way out.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
}

// Wait blocks until the worker goroutine has exited, up to timeout.
// Reports whether it exited in time.
func (w *Worker) Wait(timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-w.doneCh:
		return true
	case <-timer.C:
		return false
	}
}

// FlushRemaining persists all outstanding buffers and every known
// trace. Call only after Stop and Wait: it touches state the running
// worker owns.
func (w *Worker) FlushRemaining() error {
	return w.writer.FlushAll(w.buffers, w.table)
}

// Processed returns the number of events the worker has handled.
func (w *Worker) Processed() uint64 {
	return w.processed.Load()
}

// BufferedSignatures returns the number of signatures with a live
// buffer. Intended for stats after the worker has stopped; while
// running the value is advisory.
func (w *Worker) BufferedSignatures() int {
	return len(w.buffers)
}
