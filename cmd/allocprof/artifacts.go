package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/kolkov/allocprof/internal/alloc/buffer"
	"github.com/kolkov/allocprof/internal/alloc/frame"
	"github.com/kolkov/allocprof/internal/alloc/persist"
)

// site is one recorded allocation site, reassembled from the on-disk
// artifacts.
type site struct {
	// Signature is the call-site signature the artifacts are keyed by.
	Signature uint32

	// Events is the number of recorded allocations, derived from the
	// allocations artifact length (4 bytes per event).
	Events int64

	// Frames is the recorded frame sequence, nil when the traces
	// artifact is missing or unparseable.
	Frames frame.Sequence
}

// loadSites reads every allocation site recorded under root, sorted by
// event count descending, then by signature for stable output.
func loadSites(root string) ([]site, error) {
	allocsDir := filepath.Join(root, persist.AllocsDir)

	entries, err := os.ReadDir(allocsDir)
	if err != nil {
		return nil, fmt.Errorf("reading allocations directory: %w", err)
	}

	sites := make([]site, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		sig, err := strconv.ParseUint(entry.Name(), 10, 32)
		if err != nil {
			// Not an artifact file.
			continue
		}

		info, err := entry.Info()
		if err != nil {
			return nil, fmt.Errorf("reading artifact %s: %w", entry.Name(), err)
		}

		s := site{
			Signature: uint32(sig),
			Events:    info.Size() / buffer.EntrySize,
		}

		if text, err := os.ReadFile(filepath.Join(root, persist.TracesDir, entry.Name())); err == nil {
			s.Frames = frame.ParseRendering(string(text))
		}

		sites = append(sites, s)
	}

	sort.Slice(sites, func(i, j int) bool {
		if sites[i].Events != sites[j].Events {
			return sites[i].Events > sites[j].Events
		}

		return sites[i].Signature < sites[j].Signature
	})

	return sites, nil
}
