// Package signature computes 32-bit call-stack signatures.
//
// The signature is a rolling hash over the frame sequence in call order:
//
//	h = 37
//	for each frame: h = 37*h + frameHash(frame)
//
// frameHash folds a 64-bit xxhash of the frame's four descriptor fields
// down to 32 bits. Collisions across distinct call sites are accepted
// and silently merge their statistics; the hash is not cryptographic and
// this is a documented limitation of the recording format.
//
// Hash is total: any failure while hashing, and the degenerate empty
// capture, yield the sentinel value 0. Callers treat a sentinel as an
// unrecoverable capture and drop the event, so 0 never reaches the
// queue or the persisted artifacts.
package signature

import (
	"github.com/cespare/xxhash/v2"

	"github.com/kolkov/allocprof/internal/alloc/frame"
)

// Sentinel is the signature value reserved for failed captures.
const Sentinel uint32 = 0

const seed = 37

// Hash computes the signature of a frame sequence.
//
// Deterministic within a process run: the same sequence always yields
// the same value. Returns Sentinel for empty sequences or on any
// internal failure.
//
// Thread Safety: pure function, safe for concurrent calls.
func Hash(frames frame.Sequence) (sig uint32) {
	defer func() {
		if recover() != nil {
			sig = Sentinel
		}
	}()

	if len(frames) == 0 {
		return Sentinel
	}

	h := uint32(seed)
	for i := range frames {
		h = seed*h + frameHash(&frames[i])
	}

	// A computed value of 0 is indistinguishable from the failure
	// sentinel, so it is reported as one and the event dropped.
	return h
}

// frameHash hashes one frame's descriptor fields into 32 bits.
func frameHash(f *frame.Frame) uint32 {
	var d xxhash.Digest
	d.Reset()

	// NUL separators keep adjacent fields from sharing digests,
	// e.g. ("ab","c") vs ("a","bc").
	_, _ = d.WriteString(f.DeclaringType)
	_, _ = d.Write([]byte{0})
	_, _ = d.WriteString(f.Method)
	_, _ = d.Write([]byte{0})
	_, _ = d.WriteString(f.SourceFile)
	_, _ = d.Write([]byte{0, byte(f.Line), byte(f.Line >> 8), byte(f.Line >> 16), byte(f.Line >> 24)})

	sum := d.Sum64()

	return uint32(sum ^ sum>>32)
}
