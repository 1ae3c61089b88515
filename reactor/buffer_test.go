package reactor

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBufferAppendAndReadable(t *testing.T) {
	b := NewBuffer(4)
	b.Append([]byte("hello"))
	require.Equal(t, "hello", string(b.Readable()))
	require.Equal(t, 5, b.Len())
}

func TestBufferAdvanceReadCompactsWhenDrained(t *testing.T) {
	b := NewBuffer(16)
	b.Append([]byte("abc"))
	b.AdvanceRead(3)
	require.True(t, b.IsEmpty())

	dst := b.EnsureWritable(4)
	require.GreaterOrEqual(t, len(dst), 4)
}

func TestBufferPartialAdvanceReadLeavesRemainder(t *testing.T) {
	b := NewBuffer(16)
	b.Append([]byte("abcdef"))
	b.AdvanceRead(2)
	require.Equal(t, "cdef", string(b.Readable()))
	require.False(t, b.IsEmpty())
}

func TestBufferEnsureWritableGrowsWithoutLosingData(t *testing.T) {
	b := NewBuffer(4)
	b.Append([]byte("ab"))
	// force growth past initial capacity
	dst := b.EnsureWritable(64)
	require.GreaterOrEqual(t, len(dst), 64)
	require.Equal(t, "ab", string(b.Readable()))
}

func TestBufferRepeatedDrainResetsCursorsToOrigin(t *testing.T) {
	b := NewBuffer(8)
	b.Append([]byte("abcdefgh"))
	b.AdvanceRead(8) // drains and resets cursors to 0,0
	b.Append([]byte("xy"))
	b.AdvanceRead(2) // drains again
	require.True(t, b.IsEmpty())
	require.Equal(t, 0, b.rpos)
	require.Equal(t, 0, b.wpos)
}

func TestBufferReset(t *testing.T) {
	b := NewBuffer(16)
	b.Append([]byte("pending"))
	b.Reset()
	require.True(t, b.IsEmpty())
	require.Equal(t, 0, b.Len())
}

func TestNewBufferNonPositiveCapacityDefaults(t *testing.T) {
	b := NewBuffer(0)
	require.NotNil(t, b.buf)
	require.True(t, b.IsEmpty())
}
