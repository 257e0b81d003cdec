package record_test

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/kolkov/allocprof/record"
)

// Example shows the minimal embedding: attach at startup, let
// instrumented code invoke the hook, detach before exit.
func Example() {
	cfg := record.DefaultConfig()
	cfg.OutputDir = filepath.Join(os.TempDir(), "allocprof-example")
	defer os.RemoveAll(cfg.OutputDir)

	if err := record.Attach(cfg); err != nil {
		fmt.Println("attach failed:", err)
		return
	}

	// In a real program the instrumentation layer inserts these
	// calls after every allocation site.
	buf := make([]byte, 64)
	record.RecordAllocation(64, "[]uint8", buf)

	type order struct{ id int }
	o := &order{id: 1}
	record.RecordAllocationOf(o)

	if err := record.Detach(); err != nil {
		fmt.Println("detach failed:", err)
		return
	}

	fmt.Println("attached:", record.Attached())
	// Output:
	// attached: false
}
