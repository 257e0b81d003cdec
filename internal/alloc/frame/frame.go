// Package frame provides call-stack frame descriptors for allocation
// recording.
//
// A Frame is the unit the rest of the pipeline hashes and persists: the
// declaring type (in Go, the package-qualified receiver or package path),
// the method name, the source file and the line number. A Sequence is an
// ordered capture of the current call stack, outermost call last,
// immutable once captured.
//
// Capture uses runtime.Callers and runtime.CallersFrames directly. The
// runtime hands us the current stack without any exception-capture
// workaround, so frames here carry resolved descriptors rather than raw
// program counters.
package frame

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"
)

// MaxDepth caps how many frames a single capture records.
//
// Allocation sites are distinguishable well within this depth; deeper
// stacks are truncated from the outermost end. Capture cost is O(depth),
// and this bound keeps the hot path bounded too.
const MaxDepth = 32

// Frame is one call-stack entry.
type Frame struct {
	// DeclaringType is the package path plus receiver, if any,
	// e.g. "github.com/acme/app/server.(*Handler)".
	DeclaringType string

	// Method is the function or method name within DeclaringType.
	Method string

	// SourceFile is the full path of the defining source file.
	SourceFile string

	// Line is the line number of the call within SourceFile.
	Line int
}

// Sequence is an ordered, immutable call-stack capture.
type Sequence []Frame

// Capture records the current goroutine's call stack.
//
// skip is the number of frames above Capture itself to leave out; 0
// means the sequence starts at Capture's caller. Returns nil when no
// frames are available.
//
// Thread Safety: safe for concurrent calls, each goroutine captures its
// own stack.
func Capture(skip int) Sequence {
	var pcs [MaxDepth]uintptr
	// +2 skips runtime.Callers and Capture.
	n := runtime.Callers(skip+2, pcs[:])
	if n == 0 {
		return nil
	}

	seq := make(Sequence, 0, n)
	frames := runtime.CallersFrames(pcs[:n])

	for {
		fr, more := frames.Next()
		if fr.PC == 0 {
			break
		}

		declaring, method := splitFunction(fr.Function)
		seq = append(seq, Frame{
			DeclaringType: declaring,
			Method:        method,
			SourceFile:    fr.File,
			Line:          fr.Line,
		})

		if !more {
			break
		}
	}

	if len(seq) == 0 {
		return nil
	}

	return seq
}

// splitFunction divides a runtime function name into declaring type and
// method at the last dot, e.g.
// "github.com/acme/app/server.(*Handler).Serve" becomes
// ("github.com/acme/app/server.(*Handler)", "Serve").
func splitFunction(name string) (declaring, method string) {
	if name == "" {
		return "", "unknown"
	}

	i := strings.LastIndexByte(name, '.')
	if i < 0 {
		return "", name
	}

	return name[:i], name[i+1:]
}

// String renders one frame as "DeclaringType.Method(SourceFile:Line)".
//
// This is the persisted trace format; ParseRendering reverses it.
func (f Frame) String() string {
	if f.DeclaringType == "" {
		return fmt.Sprintf("%s(%s:%d)", f.Method, f.SourceFile, f.Line)
	}

	return fmt.Sprintf("%s.%s(%s:%d)", f.DeclaringType, f.Method, f.SourceFile, f.Line)
}

// Render produces the newline-delimited textual form of the sequence,
// one frame per line, used for the traces artifact.
func (s Sequence) Render() string {
	var b strings.Builder

	for _, f := range s {
		b.WriteString(f.String())
		b.WriteByte('\n')
	}

	return b.String()
}

// ParseRendering parses text produced by Render back into a Sequence.
//
// Lines that do not match the rendered shape are skipped rather than
// failing the whole parse; the offline reader prefers a partial stack
// over none. Returns nil if no line parses.
func ParseRendering(text string) Sequence {
	var seq Sequence

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		f, ok := parseFrameLine(line)
		if !ok {
			continue
		}

		seq = append(seq, f)
	}

	return seq
}

// parseFrameLine parses a single "DeclaringType.Method(File:Line)" line.
func parseFrameLine(line string) (Frame, bool) {
	// The location suffix starts at the last '(' so receiver markers
	// like "(*Handler)" inside the name do not confuse the split.
	open := strings.LastIndexByte(line, '(')
	if open < 0 || !strings.HasSuffix(line, ")") {
		return Frame{}, false
	}

	name := line[:open]
	loc := line[open+1 : len(line)-1]

	colon := strings.LastIndexByte(loc, ':')
	if colon < 0 {
		return Frame{}, false
	}

	lineNo, err := strconv.Atoi(loc[colon+1:])
	if err != nil {
		return Frame{}, false
	}

	declaring, method := splitFunction(name)

	return Frame{
		DeclaringType: declaring,
		Method:        method,
		SourceFile:    loc[:colon],
		Line:          lineNo,
	}, true
}
