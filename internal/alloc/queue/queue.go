// Package queue implements the event channel between allocating
// goroutines and the aggregation worker.
//
// Multi-producer, single-consumer. Producers are allocating goroutines
// on their hot path, so Push never blocks: when the queue is full the
// event is dropped and counted instead of stalling the caller. The
// single consumer blocks on Pop with a long timeout so it stays
// responsive to cancellation even when no allocations arrive.
//
// An unbounded queue would trade memory for hot-path latency and grow
// without limit under sustained allocation storms, so the queue is
// bounded and drops the newest events on overflow. The Dropped counter
// makes the loss observable.
package queue

import (
	"sync/atomic"
	"time"
)

// Event is one recorded allocation in flight between the capture hook
// and the worker. Created by the hook, consumed exactly once, then
// discarded.
type Event struct {
	// ObjectID is the address-independent identity token of the
	// allocated object.
	ObjectID uint32

	// Signature is the call-stack signature of the allocation site.
	// Never the sentinel value 0; the hook drops those before
	// enqueueing.
	Signature uint32
}

// Queue is a bounded MPSC event queue.
type Queue struct {
	ch      chan Event
	dropped atomic.Uint64
}

// New creates a queue with the given capacity. Capacities below 1 are
// raised to 1.
func New(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}

	return &Queue{ch: make(chan Event, capacity)}
}

// Push enqueues an event without blocking. Reports false if the queue
// is full, in which case the event is dropped and counted.
//
// Thread Safety: safe for concurrent producers.
func (q *Queue) Push(ev Event) bool {
	select {
	case q.ch <- ev:
		return true
	default:
		q.dropped.Add(1)
		return false
	}
}

// Pop dequeues one event, blocking up to timeout. Returns false when
// the timeout elapses or stop is closed before an event arrives.
//
// Only the single consumer may call Pop.
func (q *Queue) Pop(timeout time.Duration, stop <-chan struct{}) (Event, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case ev := <-q.ch:
		return ev, true
	case <-timer.C:
		return Event{}, false
	case <-stop:
		return Event{}, false
	}
}

// TryPop dequeues one event without blocking.
func (q *Queue) TryPop() (Event, bool) {
	select {
	case ev := <-q.ch:
		return ev, true
	default:
		return Event{}, false
	}
}

// Len returns the number of events currently queued.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Dropped returns the number of events refused because the queue was
// full.
func (q *Queue) Dropped() uint64 {
	return q.dropped.Load()
}
