package chunk

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueEnqueueTrimFIFO(t *testing.T) {
	var q Queue

	c1 := Alloc(8)
	c1.Write([]byte("hello "))
	c2 := Alloc(8)
	c2.Write([]byte("world"))

	q.Enqueue(c1)
	q.Enqueue(c2)

	require.Equal(t, 11, q.Unread())
	assert.Equal(t, "hello ", string(q.Peek().Bytes()))

	removed := q.Trim(3)
	assert.Equal(t, 3, removed)
	assert.Equal(t, 8, q.Unread())
	assert.Equal(t, "lo ", string(q.Peek().Bytes()))

	removed = q.Trim(20)
	assert.Equal(t, 8, removed)
	assert.True(t, q.Empty())
	assert.Nil(t, q.Peek())
}

func TestQueueTrimNeverUnderrunsUnread(t *testing.T) {
	var q Queue
	total := 0
	for i := 0; i < 5; i++ {
		c := Alloc(4)
		c.Write([]byte("abcd"))
		q.Enqueue(c)
		total += 4
	}
	require.Equal(t, total, q.Unread())

	drained := 0
	for !q.Empty() {
		drained += q.Trim(3)
	}
	assert.Equal(t, total, drained)
	assert.Equal(t, 0, q.Unread())
}

func TestQueueClearDrainsEverything(t *testing.T) {
	var q Queue
	for i := 0; i < 3; i++ {
		c := Alloc(4)
		c.Write([]byte("data"))
		q.Enqueue(c)
	}
	q.Clear()
	assert.True(t, q.Empty())
	assert.Nil(t, q.Peek())
}

func TestQueueTrimMaxIntActsAsClear(t *testing.T) {
	var q Queue
	c := Alloc(4)
	c.Write([]byte("abcd"))
	q.Enqueue(c)

	removed := q.Trim(math.MaxInt)
	assert.Equal(t, 4, removed)
	assert.True(t, q.Empty())
}

func TestMoveRelinksWholeNodesOnly(t *testing.T) {
	var src, dst Queue
	c1 := Alloc(8)
	c1.Write([]byte("12345")) // 5 bytes
	c2 := Alloc(8)
	c2.Write([]byte("678")) // 3 bytes
	src.Enqueue(c1)
	src.Enqueue(c2)

	// Ask for 2 bytes; since nodes are never split, the whole 5-byte node
	// moves, so the actual count (5) exceeds max (2).
	moved := Move(&src, &dst, 2)

	assert.Equal(t, 5, moved)
	assert.Equal(t, 3, src.Unread())
	assert.Equal(t, 5, dst.Unread())
	assert.Equal(t, "12345", string(dst.Peek().Bytes()))
}

func TestMoveStopsWhenSourceExhausted(t *testing.T) {
	var src, dst Queue
	c := Alloc(4)
	c.Write([]byte("data"))
	src.Enqueue(c)

	moved := Move(&src, &dst, 1000)

	assert.Equal(t, 4, moved)
	assert.True(t, src.Empty())
	assert.Equal(t, 4, dst.Unread())
}

func TestEnqueueEmptyChunkIsNoop(t *testing.T) {
	var q Queue
	c := Alloc(4) // zero length, nothing written
	q.Enqueue(c)
	assert.True(t, q.Empty())
	assert.Nil(t, q.Peek())
}

func TestChunkAdvance(t *testing.T) {
	c := Alloc(8)
	c.Write([]byte("abcdef"))
	require.Equal(t, 6, c.Len())
	c.Advance(2)
	assert.Equal(t, 4, c.Len())
	assert.Equal(t, "cdef", string(c.Bytes()))
}

func TestAllocOversizedBypassesPool(t *testing.T) {
	c := Alloc(DefaultSize * 4)
	c.Write(make([]byte, DefaultSize*4))
	assert.Equal(t, DefaultSize*4, c.Len())
}
