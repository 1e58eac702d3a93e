package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intsSorted(t *testing.T, ix *Index[int, int]) {
	t.Helper()
	for i := 0; i+1 < ix.Len(); i++ {
		assert.LessOrEqual(t, ix.At(i), ix.At(i+1))
	}
}

func newIntIndex() *Index[int, int] {
	return New[int, int](0,
		func(a, b int) int { return a - b },
		func(k, el int) int { return k - el },
	)
}

func TestAddKeepsSortedInvariant(t *testing.T) {
	ix := newIntIndex()
	for _, v := range []int{5, 1, 9, 3, 3, 7, 0} {
		ix.Add(v)
	}
	intsSorted(t, ix)
	require.Equal(t, 7, ix.Len())
	assert.Equal(t, []int{0, 1, 3, 3, 5, 7, 9}, ix.Slice())
}

func TestFindAndFindMultiple(t *testing.T) {
	ix := newIntIndex()
	for _, v := range []int{1, 2, 2, 2, 3} {
		ix.Add(v)
	}
	got, ok := ix.Find(2)
	require.True(t, ok)
	assert.Equal(t, 2, got)

	all := ix.FindMultiple(2)
	assert.Len(t, all, 3)

	_, ok = ix.Find(42)
	assert.False(t, ok)
}

func TestDelRemovesOneAndKeepsOrder(t *testing.T) {
	ix := newIntIndex()
	for _, v := range []int{1, 2, 2, 3} {
		ix.Add(v)
	}
	ok := ix.Del(2)
	require.True(t, ok)
	assert.Equal(t, 3, ix.Len())
	intsSorted(t, ix)
	assert.Equal(t, 2, ix.FindMultiple(2)[0])
	assert.Len(t, ix.FindMultiple(2), 1)
}

func TestDupIsIndependent(t *testing.T) {
	ix := newIntIndex()
	ix.Add(1)
	ix.Add(2)

	dup := ix.Dup()
	dup.Add(3)

	assert.Equal(t, 2, ix.Len())
	assert.Equal(t, 3, dup.Len())
}

func TestTrunc(t *testing.T) {
	ix := newIntIndex()
	for _, v := range []int{1, 2, 3, 4, 5} {
		ix.Add(v)
	}
	ix.Trunc(2)
	assert.Equal(t, []int{1, 2}, ix.Slice())
}
