package buffer

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendPacksBigEndian(t *testing.T) {
	b := New(16)

	require.True(t, b.Append(0x01020304))
	require.True(t, b.Append(0xAABBCCDD))

	assert.Equal(t, 8, b.Len())
	assert.Equal(t, 2, b.Entries())
	assert.Equal(t, []byte{0x01, 0x02, 0x03, 0x04, 0xAA, 0xBB, 0xCC, 0xDD}, b.Bytes())
}

func TestAppendRefusesWhenFull(t *testing.T) {
	b := New(8)

	require.True(t, b.Append(1))
	require.True(t, b.Append(2))
	require.True(t, b.Full())

	assert.False(t, b.Append(3))
	assert.Equal(t, 8, b.Len(), "refused append must not write")
}

func TestResetKeepsCapacity(t *testing.T) {
	b := New(128)

	for !b.Full() {
		b.Append(7)
	}
	require.Equal(t, 32, b.Entries())

	b.Reset()

	assert.Equal(t, 0, b.Len())
	assert.Equal(t, 128, b.Cap())
	assert.False(t, b.Full())
}

func TestNewRoundsCapacity(t *testing.T) {
	assert.Equal(t, EntrySize, New(0).Cap())
	assert.Equal(t, EntrySize, New(-5).Cap())
	assert.Equal(t, 8, New(5).Cap())
	assert.Equal(t, 128, New(128).Cap())
}

func TestGrowDoublesUpToMax(t *testing.T) {
	assert.Equal(t, 256, Grow(128, 512))
	assert.Equal(t, 512, Grow(256, 512))
	assert.Equal(t, 512, Grow(512, 512), "capacity is capped at max")
	assert.Equal(t, 512, Grow(300, 512))
}

func TestBytesMatchesAppendOrder(t *testing.T) {
	b := New(512)

	ids := []uint32{5, 1, 9, 9, 3}
	for _, id := range ids {
		require.True(t, b.Append(id))
	}

	raw := b.Bytes()
	require.Len(t, raw, len(ids)*EntrySize)

	for i, want := range ids {
		got := binary.BigEndian.Uint32(raw[i*EntrySize:])
		assert.Equal(t, want, got, "entry %d", i)
	}
}
