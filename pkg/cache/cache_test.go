package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestScenarioC_SingleFlight covers single-flight creation.
func TestScenarioC_SingleFlight(t *testing.T) {
	c := New("c", 1<<20, 0, nil)

	_, _, isCreator1, _ := c.WaitCreateEntry("k", 0)
	require.True(t, isCreator1)

	var wg sync.WaitGroup
	var t2Value any
	var t2IsCreator bool
	wg.Add(1)
	go func() {
		defer wg.Done()
		v, has, isCreator, _ := c.WaitCreateEntry("k", time.Second)
		require.True(t, has)
		t2Value, t2IsCreator = v, isCreator
	}()

	time.Sleep(20 * time.Millisecond) // let T2 block on the condvar
	c.SetValueExpires("k", "v", 1, time.Time{}, 0)

	wg.Wait()
	assert.Equal(t, "v", t2Value)
	assert.False(t, t2IsCreator)
}

// TestScenarioD_Transaction covers cache transactions.
func TestScenarioD_Transaction(t *testing.T) {
	c := New("c", 0, 0, nil)
	epoch := c.NextEpoch()

	_, _, isCreator, _ := c.WaitCreateEntry("k", 0)
	require.True(t, isCreator)

	c.SetValueExpires("k", "v1", 1, time.Time{}, epoch)

	_, found := c.FindEntry("k", nil)
	assert.False(t, found, "uncommitted entry must be invisible without the transaction stack")

	v, found := c.FindEntry("k", []uint64{epoch})
	require.True(t, found)
	assert.Equal(t, "v1", v)

	c.CommitEntries(epoch)

	v, found = c.FindEntry("k", nil)
	require.True(t, found)
	assert.Equal(t, "v1", v)
}

func TestRollbackDiscardsUncommittedEntries(t *testing.T) {
	c := New("c", 0, 0, nil)
	epoch := c.NextEpoch()

	c.CreateEntry("k")
	c.SetValueExpires("k", "v1", 1, time.Time{}, epoch)

	n := c.RollbackEntries(epoch)
	assert.Equal(t, 1, n)

	_, found := c.FindEntry("k", []uint64{epoch})
	assert.False(t, found)
}

// TestEvictionKeepsSizeWithinMax checks cache size stays within maxSize
// after eviction settles.
func TestEvictionKeepsSizeWithinMax(t *testing.T) {
	var freed []string
	c := New("c", 10, 0, func(v any) { freed = append(freed, v.(string)) })

	for _, k := range []string{"a", "b", "c", "d"} {
		c.CreateEntry(k)
		c.SetValueExpires(k, "val-"+k, 4, time.Time{}, 0)
	}

	assert.LessOrEqual(t, c.Size(), uint64(10))
	assert.NotEmpty(t, freed, "eviction should have freed at least one entry")
}

func TestTTLExpiry(t *testing.T) {
	c := New("c", 0, 0, nil)
	c.CreateEntry("k")
	c.SetValueExpires("k", "v", 1, time.Now().Add(-time.Millisecond), 0)

	_, found := c.FindEntry("k", nil)
	assert.False(t, found)
}

func TestFlushEntryInvokesFree(t *testing.T) {
	var freed any
	c := New("c", 0, 0, func(v any) { freed = v })
	c.CreateEntry("k")
	c.SetValueExpires("k", "v", 1, time.Time{}, 0)

	ok := c.FlushEntry("k")
	require.True(t, ok)
	assert.Equal(t, "v", freed)
	assert.Equal(t, uint64(0), c.Size())
}

func TestFlushAllReturnsCount(t *testing.T) {
	c := New("c", 0, 0, nil)
	c.CreateEntry("a")
	c.SetValueExpires("a", 1, 1, time.Time{}, 0)
	c.CreateEntry("b")
	c.SetValueExpires("b", 2, 1, time.Time{}, 0)

	n := c.Flush()
	assert.Equal(t, 2, n)
	assert.Equal(t, uint64(0), c.Size())
}

func TestWaitCreateEntryTimesOut(t *testing.T) {
	c := New("c", 0, 0, nil)
	c.CreateEntry("k") // leave it valueless: simulates a stuck builder

	_, _, _, timedOut := c.WaitCreateEntry("k", 20*time.Millisecond)
	assert.True(t, timedOut)
}
