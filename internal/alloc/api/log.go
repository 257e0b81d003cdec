package api

import (
	"os"

	"github.com/hashicorp/go-hclog"
)

// newLogger builds a subsystem logger. Each subsystem gets its own
// logger instance so the debug toggles can raise verbosity per
// subsystem without affecting the others.
func newLogger(name string, debug bool) hclog.Logger {
	level := hclog.Info
	if debug {
		level = hclog.Debug
	}

	return hclog.New(&hclog.LoggerOptions{
		Name:   name,
		Level:  level,
		Output: os.Stderr,
	})
}
