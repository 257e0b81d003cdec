package record

import (
	"fmt"

	"github.com/kolkov/allocprof/internal/alloc/api"
	"github.com/kolkov/allocprof/internal/alloc/config"
)

// Config is the recorder configuration surface. See the field
// documentation in the underlying type for defaults and constraints.
type Config = config.Config

// Stats is a snapshot of the recorder's counters.
type Stats = api.Stats

// DefaultConfig returns the configuration used when nothing is
// specified: artifacts under the system temp directory, default buffer
// sizing, debug logging off.
func DefaultConfig() *Config {
	return config.Default()
}

// LoadConfig parses args plus the ALLOCPROF_* environment into a
// Config. Pass nil args to load from the environment alone.
func LoadConfig(args []string) (*Config, error) {
	return config.Load(args)
}

// Attach wires the recording pipeline and enables the capture hook.
// With a nil cfg the configuration is loaded from the environment.
//
// Idempotent. Call once at startup, before instrumented code runs:
//
//	if err := record.Attach(nil); err != nil { ... }
//	defer record.Detach()
func Attach(cfg *Config) error {
	return api.Attach(cfg)
}

// Detach disables the hook, stops the aggregation worker, and flushes
// all remaining buffers and traces. Events still queued when the worker
// stops are lost; an orderly shutdown that stops allocating before
// calling Detach loses nothing.
//
// Idempotent; returns any flush error.
func Detach() error {
	return api.Detach()
}

// RecordAllocation is the capture hook contract consumed by the
// instrumentation layer. It must be invoked synchronously, exactly once
// per executed allocation site, on the allocating goroutine, after the
// new object is safely referencable.
//
// count is the element count for array-like allocations, or -1 for
// scalar ones. typeDescriptor names the allocated type. ref is the new
// object.
//
// The call never panics and never blocks materially; all failures are
// absorbed and become dropped events.
func RecordAllocation(count int32, typeDescriptor string, ref any) {
	api.RecordAllocationSkip(count, typeDescriptor, ref, 1)
}

// RecordAllocationOf records a scalar allocation, deriving the type
// descriptor from the reference itself. Convenience form of
// RecordAllocation for hand-instrumented code.
func RecordAllocationOf(ref any) {
	api.RecordAllocationSkip(-1, fmt.Sprintf("%T", ref), ref, 1)
}

// Enable turns the capture hook back on after Disable.
func Enable() {
	api.Enable()
}

// Disable turns the capture hook off without detaching the pipeline.
// Useful around code whose allocations should not be recorded.
func Disable() {
	api.Disable()
}

// Enabled reports whether the capture hook is currently active.
func Enabled() bool {
	return api.Enabled()
}

// Attached reports whether the pipeline is wired.
func Attached() bool {
	return api.Attached()
}

// GetStats returns a snapshot of the recorder's counters.
func GetStats() Stats {
	return api.Snapshot()
}
