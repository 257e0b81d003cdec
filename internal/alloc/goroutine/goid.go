// Goroutine ID extraction.
//
// Go deliberately hides goroutine IDs, so the portable way to obtain one
// is to parse the first line of runtime.Stack output for the current
// goroutine ("goroutine 123 [running]:"). This costs on the order of a
// microsecond per call, paid on every hook invocation to look up the
// goroutine's cached Context.
//
// Assembly g-pointer tricks would cut this to nanoseconds but tie the
// build to specific Go versions and architectures; the portable parse is
// small next to the stack capture that follows it.

package goroutine

import "runtime"

// ID returns the current goroutine's ID.
//
// Returns 0 only if the stack header cannot be parsed, which does not
// happen with any released Go runtime.
func ID() int64 {
	// The header fits comfortably in 64 bytes:
	// "goroutine 123 [running]:\n..."
	var buf [64]byte
	n := runtime.Stack(buf[:], false)

	return parseGID(buf[:n])
}

// parseGID extracts the numeric goroutine ID from a runtime.Stack
// header. Direct byte parsing, no allocations.
func parseGID(buf []byte) int64 {
	const prefix = "goroutine "

	if len(buf) < len(prefix) || string(buf[:len(prefix)]) != prefix {
		return 0
	}

	var gid int64
	for i := len(prefix); i < len(buf); i++ {
		c := buf[i]
		if c < '0' || c > '9' {
			break
		}
		gid = gid*10 + int64(c-'0')
	}

	return gid
}
