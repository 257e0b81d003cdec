// Package record is the public API of the allocation recorder.
//
// The recorder captures one lightweight event per object allocation
// performed by an instrumented program: the allocating call site and an
// identity token for the new object. Events are deduplicated by
// call-stack signature, aggregated into per-signature buffers on a
// background worker, and persisted as append-only artifacts:
//
//	<output>/allocs/<signature>  packed 4-byte identity values
//	<output>/traces/<signature>  rendered call-stack frames
//
// The instrumentation layer that identifies allocation sites and
// inserts the hook calls is a separate concern; this package only
// defines the call contract. A typical embedding:
//
//	func main() {
//		if err := record.Attach(nil); err != nil {
//			log.Fatal(err)
//		}
//		defer record.Detach()
//
//		// instrumented code calls record.RecordAllocation(...)
//		// after every allocation
//	}
//
// The hook never blocks materially and never panics into the caller:
// capture failures and queue overflow become dropped events, counted in
// Stats. Configuration loads from ALLOCPROF_* environment variables
// when Attach is given a nil config; see the Config type.
package record
