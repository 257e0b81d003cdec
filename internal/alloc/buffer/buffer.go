// Package buffer implements the growable per-signature accumulation
// buffer.
//
// A Buffer holds a packed sequence of fixed-width object identity
// values for one signature. The aggregation worker owns every buffer
// exclusively: no other goroutine ever touches one, so there is no
// synchronization here at all.
//
// Capacity policy lives in the worker: a buffer starts at the base
// size, and when it fills the worker flushes it and replaces it with one
// of double the capacity until the maximum is reached, after which the
// emptied buffer is reused in place. Grow computes that next capacity.
package buffer

import "encoding/binary"

// EntrySize is the width in bytes of one packed identity value.
const EntrySize = 4

// Buffer is a fixed-capacity append buffer of packed uint32 identity
// values.
type Buffer struct {
	data []byte
	n    int
}

// New creates an empty buffer. Capacity is rounded up to a positive
// multiple of EntrySize.
func New(capacity int) *Buffer {
	if capacity < EntrySize {
		capacity = EntrySize
	}
	if rem := capacity % EntrySize; rem != 0 {
		capacity += EntrySize - rem
	}

	return &Buffer{data: make([]byte, capacity)}
}

// Append packs one identity value into the buffer. Reports false if
// the buffer is full; the value is not written.
//
// Values are encoded big-endian, matching the persisted artifact
// layout.
func (b *Buffer) Append(id uint32) bool {
	if b.Remaining() < EntrySize {
		return false
	}

	binary.BigEndian.PutUint32(b.data[b.n:], id)
	b.n += EntrySize

	return true
}

// Full reports whether no further entry fits.
func (b *Buffer) Full() bool {
	return b.Remaining() < EntrySize
}

// Remaining returns the free space in bytes.
func (b *Buffer) Remaining() int {
	return len(b.data) - b.n
}

// Len returns the filled byte range's length.
func (b *Buffer) Len() int {
	return b.n
}

// Cap returns the buffer's capacity in bytes.
func (b *Buffer) Cap() int {
	return len(b.data)
}

// Entries returns the number of identity values currently buffered.
func (b *Buffer) Entries() int {
	return b.n / EntrySize
}

// Bytes returns the filled byte range. The slice aliases the buffer's
// storage and is invalidated by Append and Reset.
func (b *Buffer) Bytes() []byte {
	return b.data[:b.n]
}

// Reset empties the buffer. Capacity is unchanged and the storage is
// not deallocated.
func (b *Buffer) Reset() {
	b.n = 0
}

// Grow returns the capacity for a buffer replacing one of the given
// capacity: doubled, capped at max.
func Grow(capacity, max int) int {
	next := capacity * 2
	if next > max {
		next = max
	}

	return next
}
