package cachemanager

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"second-level-cache/internal/config"
)

func newTestManager(t *testing.T, caches ...config.CacheConfiguration) *Manager {
	t.Helper()

	cfg := &config.Configuration{
		Name:         t.Name(),
		DefaultCache: config.CacheConfiguration{MaxEntriesInMemory: 100},
		Caches:       caches,
	}
	m, err := New(cfg, WithSampleInterval(10*time.Millisecond))
	require.NoError(t, err)
	t.Cleanup(m.Shutdown)
	return m
}

func TestCache_PutGetRemove(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, config.CacheConfiguration{Name: "orders", MaxEntriesInMemory: 10})

	c := m.Cache("orders")
	require.NotNil(t, c)

	_, ok, err := c.Get(ctx, "1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Put(ctx, "1", "first"))
	v, ok, err := c.Get(ctx, "1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "first", v)

	found, err := c.Contains(ctx, "1")
	require.NoError(t, err)
	assert.True(t, found)

	removed, err := c.Remove(ctx, "1")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = c.Remove(ctx, "1")
	require.NoError(t, err)
	assert.False(t, removed)

	stats := c.Statistics()
	assert.Equal(t, int64(1), stats.CacheHitCount())
	assert.Equal(t, int64(1), stats.CacheMissCount())
	assert.Equal(t, int64(1), stats.CachePutCount())
	assert.Equal(t, int64(1), stats.CacheRemoveCount())
}

func TestCache_CapacityEviction(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, config.CacheConfiguration{Name: "small", MaxEntriesInMemory: 2})
	c := m.Cache("small")

	require.NoError(t, c.Put(ctx, "a", 1))
	require.NoError(t, c.Put(ctx, "b", 2))
	require.NoError(t, c.Put(ctx, "c", 3))

	assert.Equal(t, int64(2), c.MemoryStoreSize())
	found, err := c.Contains(ctx, "a")
	require.NoError(t, err)
	assert.False(t, found, "least recently used element is evicted")
}

func TestCache_TimeToIdle(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, config.CacheConfiguration{Name: "idle", MaxEntriesInMemory: 10, TimeToIdleSeconds: 1})
	c := m.Cache("idle")

	require.NoError(t, c.Put(ctx, "k", "v"))

	// force the idle window to have elapsed
	store := c.store.(*memoryStore)
	e, ok := store.lru.Peek("k")
	require.True(t, ok)
	e.lastAccess.Store(time.Now().Add(-2 * time.Second).UnixNano())

	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int64(1), c.Statistics().CacheMissExpiredCount())
}

func TestCache_TimeToLive(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, config.CacheConfiguration{Name: "live", MaxEntriesInMemory: 10, TimeToLiveSeconds: 60})
	c := m.Cache("live")

	require.NoError(t, c.Put(ctx, "old", "v"))
	require.NoError(t, c.Put(ctx, "new", "v"))

	// the element was put before the time to live
	e, ok := c.store.(*memoryStore).lru.Peek("old")
	require.True(t, ok)
	e.created = time.Now().Add(-2 * time.Minute)

	found, err := c.Contains(ctx, "old")
	require.NoError(t, err)
	assert.False(t, found)

	_, ok, err = c.Get(ctx, "old")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = c.Get(ctx, "new")
	require.NoError(t, err)
	assert.True(t, ok)

	stats := c.Statistics()
	assert.Equal(t, int64(1), stats.CacheMissExpiredCount())
	assert.Equal(t, int64(0), stats.CacheMissNotFoundCount())
	assert.Equal(t, int64(1), c.MemoryStoreSize(), "expired elements are dropped on access")
}

func TestCache_ReconfigureKeepsLifetimes(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, config.CacheConfiguration{Name: "lifetimes", MaxEntriesInMemory: 10, TimeToLiveSeconds: 60})
	c := m.Cache("lifetimes")

	require.NoError(t, c.Put(ctx, "k", "v"))
	e, ok := c.store.(*memoryStore).lru.Peek("k")
	require.True(t, ok)
	e.created = time.Now().Add(-45 * time.Second)

	c.SetMaxEntriesInMemory(5)
	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok, "resizing keeps elements")

	c.SetTimeToLiveSeconds(30)
	_, ok, err = c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok, "a shorter time to live counts from the original put")
	assert.Equal(t, int64(1), c.Statistics().CacheMissExpiredCount())
}

func TestCache_Flush(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, config.CacheConfiguration{Name: "flush", MaxEntriesInMemory: 10, TimeToIdleSeconds: 1})
	c := m.Cache("flush")

	require.NoError(t, c.Put(ctx, "stale", 1))
	require.NoError(t, c.Put(ctx, "old", 2))
	require.NoError(t, c.Put(ctx, "fresh", 3))
	c.SetTimeToLiveSeconds(120)

	e, _ := c.store.(*memoryStore).lru.Peek("stale")
	e.lastAccess.Store(time.Now().Add(-time.Minute).UnixNano())
	e, _ = c.store.(*memoryStore).lru.Peek("old")
	e.created = time.Now().Add(-time.Hour)

	require.NoError(t, c.Flush(ctx))

	keys, err := c.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"fresh"}, keys)
}

func TestCache_Disabled(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, config.CacheConfiguration{Name: "off", MaxEntriesInMemory: 10})
	c := m.Cache("off")

	require.NoError(t, c.Put(ctx, "k", "v"))
	c.SetDisabled(true)
	assert.True(t, c.IsDisabled())

	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Put(ctx, "other", "v"))
	c.SetDisabled(false)

	found, err := c.Contains(ctx, "other")
	require.NoError(t, err)
	assert.False(t, found, "puts are dropped while disabled")

	_, ok, err = c.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestCache_Reconfigure(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, config.CacheConfiguration{Name: "cfg", MaxEntriesInMemory: 10})
	c := m.Cache("cfg")

	for _, k := range []string{"a", "b", "c", "d"} {
		require.NoError(t, c.Put(ctx, k, k))
	}

	c.SetMaxEntriesInMemory(2)
	c.SetTimeToLiveSeconds(60)
	c.SetTimeToIdleSeconds(30)
	c.SetMaxEntriesTotal(500)
	c.SetLogging(true)

	cfg := c.Configuration()
	assert.Equal(t, 2, cfg.MaxEntriesInMemory)
	assert.Equal(t, int64(60), cfg.TimeToLiveSeconds)
	assert.Equal(t, int64(30), cfg.TimeToIdleSeconds)
	assert.Equal(t, 500, cfg.MaxEntriesTotal)
	assert.True(t, cfg.Logging)

	assert.Equal(t, int64(2), c.MemoryStoreSize())
	keys, err := c.Keys(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"c", "d"}, keys, "most recently used elements survive")
}

func TestCache_Sizes(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, config.CacheConfiguration{Name: "sizes", MaxEntriesInMemory: 10})
	c := m.Cache("sizes")

	require.NoError(t, c.Put(ctx, "k", strings.Repeat("x", 64)))

	assert.Equal(t, int64(0), c.OffHeapStoreSize())
	assert.Greater(t, c.CalculateInMemorySize(), int64(64))

	onDisk, err := c.DiskStoreSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), onDisk)
}

func TestCache_WriteLock(t *testing.T) {
	m := newTestManager(t, config.CacheConfiguration{Name: "locks"})
	c := m.Cache("locks")

	c.AcquireWriteLockOnKey("k")

	acquired := make(chan struct{})
	go func() {
		c.AcquireWriteLockOnKey("k")
		close(acquired)
		c.ReleaseWriteLockOnKey("k")
	}()

	select {
	case <-acquired:
		t.Fatal("second writer must wait")
	case <-time.After(20 * time.Millisecond):
	}

	c.ReleaseWriteLockOnKey("k")
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second writer never acquired the lock")
	}
}

func TestStatistics_Samples(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, config.CacheConfiguration{Name: "samples", MaxEntriesInMemory: 10})
	c := m.Cache("samples")
	stats := c.Statistics()

	// sampler ticks must not interfere with the manual samples below
	m.cancel()
	<-m.done

	stats.sample(time.Second)
	require.NoError(t, c.Put(ctx, "k", 1))
	_, _, _ = c.Get(ctx, "k")
	_, _, _ = c.Get(ctx, "k")
	_, _, _ = c.Get(ctx, "missing")
	stats.sample(time.Second)

	s := stats.Samples()
	assert.Equal(t, int64(2), s.Hits)
	assert.Equal(t, int64(1), s.MissesNotFound)
	assert.Equal(t, int64(1), s.Puts)
	assert.Equal(t, int64(3), s.Gets)

	stats.sample(2 * time.Second)
	assert.Equal(t, Samples{}, stats.Samples(), "no traffic since the last sample")

	minimum, maximum, mean := stats.GetLatency()
	assert.LessOrEqual(t, minimum, mean)
	assert.LessOrEqual(t, mean, maximum)

	stats.Clear()
	assert.Equal(t, int64(0), stats.CacheHitCount())
	minimum, maximum, mean = stats.GetLatency()
	assert.Zero(t, minimum)
	assert.Zero(t, maximum)
	assert.Zero(t, mean)
}

func TestSampler_Runs(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, config.CacheConfiguration{Name: "ticking", MaxEntriesInMemory: 10})
	c := m.Cache("ticking")

	assert.Eventually(t, func() bool {
		_ = c.Put(ctx, "k", 1)
		return c.Statistics().Samples().Puts > 0
	}, 2*time.Second, 5*time.Millisecond)
}
