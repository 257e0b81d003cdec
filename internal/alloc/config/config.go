// Package config defines the recorder's configuration surface.
//
// Options load from command-line style arguments and from the
// environment with the ALLOCPROF_ prefix (flag output-dir becomes
// ALLOCPROF_OUTPUT_DIR), flags taking precedence. Embedding programs
// that build the Config themselves can skip Load entirely.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/peterbourgon/ff/v3"
)

// Defaults.
const (
	DefaultBaseBufferSize = 4096  // 1024 entries
	DefaultMaxBufferSize  = 65536 // 16384 entries
	DefaultQueueCapacity  = 65536
)

// Config holds all recognized recorder options.
type Config struct {
	// OutputDir is the artifact root; allocs/ and traces/ are created
	// beneath it.
	OutputDir string

	// BaseBufferSize is the initial per-signature buffer capacity in
	// bytes. Must be a positive multiple of 4.
	BaseBufferSize int

	// MaxBufferSize caps buffer growth, in bytes. Must be at least
	// BaseBufferSize.
	MaxBufferSize int

	// QueueCapacity bounds the event queue; events beyond it are
	// dropped rather than blocking the allocating goroutine.
	QueueCapacity int

	// OffHeapBuffers is recognized for parity with the original
	// recording format's direct-buffer option. Buffers in this
	// implementation are always heap-backed; the option is logged at
	// attach time.
	OffHeapBuffers bool

	// Debug toggles.
	Debug       bool // all subsystems
	DebugAllocs bool // per-allocation capture logging
	DebugWorker bool // aggregation worker logging
	DebugStats  bool // persistence and summary statistics logging
}

// Default returns the configuration used when nothing is specified.
func Default() *Config {
	return &Config{
		OutputDir:      filepath.Join(os.TempDir(), "allocprof"),
		BaseBufferSize: DefaultBaseBufferSize,
		MaxBufferSize:  DefaultMaxBufferSize,
		QueueCapacity:  DefaultQueueCapacity,
	}
}

// Load parses args and the ALLOCPROF_* environment into a Config.
// args may be nil to load from the environment alone.
func Load(args []string) (*Config, error) {
	cfg := Default()

	fs := flag.NewFlagSet("allocprof", flag.ContinueOnError)
	fs.StringVar(&cfg.OutputDir, "output-dir", cfg.OutputDir, "root directory for recorded artifacts")
	fs.IntVar(&cfg.BaseBufferSize, "base-buffer-size", cfg.BaseBufferSize, "initial per-signature buffer size in bytes")
	fs.IntVar(&cfg.MaxBufferSize, "max-buffer-size", cfg.MaxBufferSize, "maximum per-signature buffer size in bytes")
	fs.IntVar(&cfg.QueueCapacity, "queue-capacity", cfg.QueueCapacity, "event queue capacity")
	fs.BoolVar(&cfg.OffHeapBuffers, "off-heap-buffers", cfg.OffHeapBuffers, "request off-heap buffers (recognized, heap-backed)")
	fs.BoolVar(&cfg.Debug, "debug", cfg.Debug, "enable debug logging for all subsystems")
	fs.BoolVar(&cfg.DebugAllocs, "debug-allocs", cfg.DebugAllocs, "log every captured allocation")
	fs.BoolVar(&cfg.DebugWorker, "debug-worker", cfg.DebugWorker, "log aggregation worker activity")
	fs.BoolVar(&cfg.DebugStats, "debug-stats", cfg.DebugStats, "log persistence statistics")

	if err := ff.Parse(fs, args, ff.WithEnvVarPrefix("ALLOCPROF")); err != nil {
		return nil, fmt.Errorf("parsing recorder configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks option consistency.
func (c *Config) Validate() error {
	if c.OutputDir == "" {
		return errors.New("output directory must not be empty")
	}

	if c.BaseBufferSize < 4 || c.BaseBufferSize%4 != 0 {
		return fmt.Errorf("base buffer size must be a positive multiple of 4, got %d", c.BaseBufferSize)
	}

	if c.MaxBufferSize < c.BaseBufferSize {
		return fmt.Errorf("max buffer size %d is below base buffer size %d", c.MaxBufferSize, c.BaseBufferSize)
	}

	if c.MaxBufferSize%4 != 0 {
		return fmt.Errorf("max buffer size must be a multiple of 4, got %d", c.MaxBufferSize)
	}

	if c.QueueCapacity < 1 {
		return fmt.Errorf("queue capacity must be positive, got %d", c.QueueCapacity)
	}

	return nil
}
