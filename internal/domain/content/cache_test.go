package content

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/web3-hub/learning-hub/pkg/timeutil"
)

var epoch = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func TestCache_PutGet(t *testing.T) {
	clock := timeutil.NewFakeClock(epoch)
	c := NewCache(0, clock)

	_, ok := c.Get("zh/Web3Thoughts/01_Principles")
	assert.False(t, ok)

	c.Put("zh/Web3Thoughts/01_Principles", "# v1")
	clock.Advance(time.Hour)
	c.Put("zh/Web3Thoughts/01_Principles", "# v2")

	e, ok := c.Get("zh/Web3Thoughts/01_Principles")
	require.True(t, ok)
	assert.Equal(t, "# v2", e.Content)
	assert.Equal(t, epoch.Add(time.Hour), e.FetchedAt)
	assert.Equal(t, 1, c.Size())
}

func TestCache_EvictOlderThan(t *testing.T) {
	clock := timeutil.NewFakeClock(epoch.Add(-8 * timeutil.Day))
	c := NewCache(0, clock)
	c.Put("old", "stale")

	clock.Set(epoch.Add(-1 * timeutil.Day))
	c.Put("fresh", "recent")

	clock.Set(epoch)
	removed := c.EvictOlderThan(DefaultMaxAge)

	assert.Equal(t, 1, removed)
	_, ok := c.Get("old")
	assert.False(t, ok)
	_, ok = c.Get("fresh")
	assert.True(t, ok)

	assert.Zero(t, c.EvictOlderThan(DefaultMaxAge), "second sweep removes nothing")
}

func TestCache_EvictOlderThan_BoundaryIsKept(t *testing.T) {
	clock := timeutil.NewFakeClock(epoch.Add(-DefaultMaxAge))
	c := NewCache(0, clock)
	c.Put("edge", "exactly seven days")

	clock.Set(epoch)
	assert.Zero(t, c.EvictOlderThan(DefaultMaxAge))

	clock.Advance(time.Millisecond)
	assert.Equal(t, 1, c.EvictOlderThan(DefaultMaxAge))
}

func TestCache_MaxEntriesEvictsOldest(t *testing.T) {
	clock := timeutil.NewFakeClock(epoch)
	c := NewCache(3, clock)

	for i := 0; i < 3; i++ {
		c.Put(fmt.Sprintf("p%d", i), "x")
		clock.Advance(time.Minute)
	}

	// Overwriting an existing path never evicts.
	c.Put("p1", "y")
	assert.Equal(t, 3, c.Size())

	c.Put("p3", "z")
	assert.Equal(t, 3, c.Size())
	_, ok := c.Get("p0")
	assert.False(t, ok, "oldest entry evicted")
	_, ok = c.Get("p1")
	assert.True(t, ok)
}

func TestCache_RemoveAndClear(t *testing.T) {
	c := NewCache(0, timeutil.NewFakeClock(epoch))
	c.Put("a", "1")
	c.Put("b", "2")

	assert.True(t, c.Remove("a"))
	assert.False(t, c.Remove("a"))
	assert.Equal(t, 1, c.Size())

	c.Clear()
	assert.Zero(t, c.Size())
}

func TestCache_SnapshotRestore(t *testing.T) {
	clock := timeutil.NewFakeClock(epoch)
	src := NewCache(0, clock)
	src.Put("b", "2")
	clock.Advance(time.Second)
	src.Put("a", "1")

	snap := src.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "a", snap[0].Path)

	dst := NewCache(1, clock)
	dst.Restore(snap)
	assert.Equal(t, 1, dst.Size())
	_, ok := dst.Get("a")
	assert.True(t, ok, "newest entry survives the limit")
}
