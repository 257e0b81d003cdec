// Package persist writes recorded allocation data to append-only
// artifacts on disk.
//
// Layout under the output root:
//
//	<root>/allocs/<signature>  binary, append-only; a raw concatenation
//	                           of 4-byte big-endian identity values, no
//	                           header or framing, growing with every
//	                           flush for that signature
//	<root>/traces/<signature>  UTF-8 text; the newline-delimited
//	                           rendering of the signature's frame
//	                           sequence, written once per signature
//
// Files are opened lazily at flush time and closed immediately after
// each write, so no descriptors stay open between flushes.
//
// The Writer is only ever driven by the single aggregation worker and,
// after the worker has stopped, by the shutdown path, so it carries no
// internal synchronization beyond the counters it exports.
package persist

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"

	"github.com/kolkov/allocprof/internal/alloc/buffer"
	"github.com/kolkov/allocprof/internal/alloc/frame"
	"github.com/kolkov/allocprof/internal/alloc/tracetable"
)

// AllocsDir and TracesDir are the artifact subdirectories under the
// output root.
const (
	AllocsDir = "allocs"
	TracesDir = "traces"
)

// Writer persists per-signature buffers and trace renderings.
type Writer struct {
	allocsDir string
	tracesDir string
	logger    hclog.Logger

	// written tracks signatures whose trace rendering has been
	// persisted, guarding the write-once policy across repeated
	// FlushAll calls. Touched only by the worker/shutdown path.
	written map[uint32]struct{}

	flushes      atomic.Uint64
	bytesWritten atomic.Uint64
}

// NewWriter creates a writer rooted at dir, creating the allocs and
// traces subdirectories.
func NewWriter(dir string, logger hclog.Logger) (*Writer, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	w := &Writer{
		allocsDir: filepath.Join(dir, AllocsDir),
		tracesDir: filepath.Join(dir, TracesDir),
		logger:    logger,
		written:   make(map[uint32]struct{}),
	}

	if err := os.MkdirAll(w.allocsDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating allocations directory: %w", err)
	}

	if err := os.MkdirAll(w.tracesDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating traces directory: %w", err)
	}

	return w, nil
}

// Flush appends buf's filled byte range to the allocations artifact for
// sig and resets the buffer.
//
// The buffer is reset even when the write fails: the contents of a
// failed flush attempt are lost, but the buffer stays usable and the
// next flush for the signature proceeds normally.
func (w *Writer) Flush(sig uint32, buf *buffer.Buffer) error {
	defer buf.Reset()

	if buf.Len() == 0 {
		return nil
	}

	path := filepath.Join(w.allocsDir, sigName(sig))

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening allocations artifact for %s: %w", sigName(sig), err)
	}

	n, err := f.Write(buf.Bytes())
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("writing allocations artifact for %s: %w", sigName(sig), err)
	}

	w.flushes.Add(1)
	w.bytesWritten.Add(uint64(n))
	w.logger.Debug("flushed buffer", "signature", sig, "bytes", n)

	return nil
}

// FlushAll flushes every buffer and persists the trace rendering of
// every signature known to the table.
//
// Trace renderings are write-once: a signature whose trace was already
// persisted by an earlier FlushAll is skipped, so repeated invocations
// do not accumulate duplicate renderings. Failures are collected per
// signature; one bad artifact does not stop the rest.
func (w *Writer) FlushAll(buffers map[uint32]*buffer.Buffer, table *tracetable.Table) error {
	var result *multierror.Error

	for sig, buf := range buffers {
		if err := w.Flush(sig, buf); err != nil {
			result = multierror.Append(result, err)
		}
	}

	if table != nil {
		table.Entries(func(sig uint32, frames frame.Sequence) bool {
			if _, done := w.written[sig]; done {
				return true
			}

			if err := w.writeTrace(sig, frames); err != nil {
				result = multierror.Append(result, err)
				return true
			}

			w.written[sig] = struct{}{}

			return true
		})
	}

	return result.ErrorOrNil()
}

// writeTrace appends the rendered frame sequence to the traces artifact
// for sig.
func (w *Writer) writeTrace(sig uint32, frames frame.Sequence) error {
	path := filepath.Join(w.tracesDir, sigName(sig))

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening traces artifact for %s: %w", sigName(sig), err)
	}

	_, err = f.WriteString(frames.Render())
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("writing traces artifact for %s: %w", sigName(sig), err)
	}

	w.logger.Debug("wrote trace", "signature", sig, "frames", len(frames))

	return nil
}

// Flushes returns the number of successful buffer flushes.
func (w *Writer) Flushes() uint64 {
	return w.flushes.Load()
}

// BytesWritten returns the total allocation bytes persisted.
func (w *Writer) BytesWritten() uint64 {
	return w.bytesWritten.Load()
}

// sigName renders a signature as its artifact file name.
func sigName(sig uint32) string {
	return strconv.FormatUint(uint64(sig), 10)
}
