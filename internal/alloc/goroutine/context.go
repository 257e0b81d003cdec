// Package goroutine provides per-goroutine recorder state.
//
// Each goroutine that passes through the capture hook gets one Context,
// cached by goroutine ID. The context carries the reentrancy flag that
// keeps the pipeline's own allocations from re-triggering capture: while
// a goroutine is inside the hook, a nested invocation on the same
// goroutine observes the flag and returns immediately.
package goroutine

// Context is the recorder state for a single goroutine.
//
// A Context is only ever read and written by its own goroutine, so the
// Recording flag needs no synchronization. The one exception is the
// aggregation worker, which sets Recording on its own context once at
// startup and never clears it, permanently exempting itself from
// capture.
type Context struct {
	// GID is the goroutine ID this context belongs to.
	GID int64

	// Recording reports that this goroutine is currently inside the
	// capture hook (or, for the worker, that it is exempt for life).
	// While set, further hook invocations on this goroutine are
	// no-ops.
	Recording bool
}

// Alloc creates a Context for the given goroutine ID.
func Alloc(gid int64) *Context {
	return &Context{GID: gid}
}
