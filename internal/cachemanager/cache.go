package cachemanager

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"second-level-cache/internal/config"
)

const lockStripes = 128

// Cache is a named cache owned by a Manager.
type Cache struct {
	name    string
	manager *Manager
	store   store
	stats   *Statistics

	mu  sync.RWMutex
	cfg config.CacheConfiguration

	disabled atomic.Bool
	locks    [lockStripes]sync.Mutex
}

func newCache(m *Manager, cfg config.CacheConfiguration) (*Cache, error) {
	c := &Cache{
		name:    cfg.Name,
		manager: m,
		stats:   newStatistics(),
		cfg:     cfg,
	}

	if cfg.IsClustered() {
		if m.client == nil {
			return nil, errors.Wrapf(ErrNoCluster, "clustered cache %q", cfg.Name)
		}
		c.store = newRedisStore(m.client, m.keyPrefix, cfg.Name, cfg)
	} else {
		c.store = newMemoryStore(cfg)
	}
	return c, nil
}

func (c *Cache) Name() string { return c.name }

func (c *Cache) Manager() *Manager { return c.manager }

func (c *Cache) Statistics() *Statistics { return c.stats }

// Configuration returns a snapshot of the cache settings.
func (c *Cache) Configuration() config.CacheConfiguration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg.Clone()
}

func (c *Cache) IsClustered() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg.IsClustered()
}

func (c *Cache) IsDisabled() bool { return c.disabled.Load() }

// SetDisabled turns the cache off: gets miss and puts are dropped.
func (c *Cache) SetDisabled(disabled bool) {
	c.disabled.Store(disabled)
}

func (c *Cache) loggingEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg.Logging
}

// swallowNonstop reports whether err is a nonstop timeout the cache is
// configured to absorb instead of returning.
func (c *Cache) swallowNonstop(err error) bool {
	if !errors.Is(err, ErrNonStop) {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.cfg.IsNonstopEnabled() || c.cfg.Clustered.Nonstop.TimeoutBehavior == config.TimeoutBehaviorException {
		return false
	}
	log.Debug().Err(err).Str("cache", c.name).Msg("nonstop timeout absorbed")
	return true
}

// Get returns the value mapped to key.
func (c *Cache) Get(ctx context.Context, key string) (any, bool, error) {
	if c.disabled.Load() {
		return nil, false, nil
	}

	start := time.Now()
	value, result, err := c.store.get(ctx, key)
	if err != nil {
		if c.swallowNonstop(err) {
			c.stats.recordGet(time.Since(start), lookupMiss)
			return nil, false, nil
		}
		return nil, false, err
	}
	c.stats.recordGet(time.Since(start), result)

	return value, result == lookupHit, nil
}

// Put maps key to value, replacing any previous mapping.
func (c *Cache) Put(ctx context.Context, key string, value any) error {
	if c.disabled.Load() {
		return nil
	}

	if err := c.store.put(ctx, key, value); err != nil {
		if c.swallowNonstop(err) {
			return nil
		}
		return err
	}
	c.stats.recordPut()

	if c.loggingEnabled() {
		log.Debug().Str("cache", c.name).Str("key", key).Msg("put")
	}
	return nil
}

// Remove drops key and reports whether a mapping existed.
func (c *Cache) Remove(ctx context.Context, key string) (bool, error) {
	removed, err := c.store.remove(ctx, key)
	if err != nil {
		if c.swallowNonstop(err) {
			return false, nil
		}
		return false, err
	}
	if removed {
		c.stats.recordRemove()
	}

	if c.loggingEnabled() {
		log.Debug().Str("cache", c.name).Str("key", key).Bool("removed", removed).Msg("remove")
	}
	return removed, nil
}

func (c *Cache) RemoveAll(ctx context.Context) error {
	if err := c.store.removeAll(ctx); err != nil && !c.swallowNonstop(err) {
		return err
	}

	if c.loggingEnabled() {
		log.Debug().Str("cache", c.name).Msg("remove all")
	}
	return nil
}

// Contains reports whether key is mapped, without touching statistics.
func (c *Cache) Contains(ctx context.Context, key string) (bool, error) {
	found, err := c.store.contains(ctx, key)
	if err != nil {
		if c.swallowNonstop(err) {
			return false, nil
		}
		return false, err
	}
	return found, nil
}

func (c *Cache) Keys(ctx context.Context) ([]string, error) {
	keys, err := c.store.keys(ctx)
	if err != nil {
		if c.swallowNonstop(err) {
			return nil, nil
		}
		return nil, err
	}
	return keys, nil
}

// Flush drops elements that expired while idle and were not yet evicted.
func (c *Cache) Flush(ctx context.Context) error {
	swept, err := c.store.sweep(ctx)
	if err != nil {
		return err
	}
	if swept > 0 {
		log.Debug().Str("cache", c.name).Int("count", swept).Msg("flushed expired elements")
	}
	return nil
}

func (c *Cache) MemoryStoreSize() int64 { return c.store.memorySize() }

// OffHeapStoreSize is always zero; there is no off-heap tier.
func (c *Cache) OffHeapStoreSize() int64 { return 0 }

// DiskStoreSize counts the elements of the remote tier.
func (c *Cache) DiskStoreSize(ctx context.Context) (int64, error) {
	n, err := c.store.remoteSize(ctx)
	if err != nil && c.swallowNonstop(err) {
		return 0, nil
	}
	return n, err
}

// CalculateInMemorySize estimates the bytes held by the memory tier.
func (c *Cache) CalculateInMemorySize() int64 { return c.store.inMemoryBytes() }

func (c *Cache) stripe(key string) *sync.Mutex {
	return &c.locks[xxhash.Sum64String(key)%lockStripes]
}

// AcquireWriteLockOnKey blocks until the caller holds the write lock for key.
// Keys hashing to the same stripe share a lock.
func (c *Cache) AcquireWriteLockOnKey(key string) {
	c.stripe(key).Lock()
}

func (c *Cache) ReleaseWriteLockOnKey(key string) {
	c.stripe(key).Unlock()
}

func (c *Cache) update(fn func(cfg *config.CacheConfiguration)) {
	c.mu.Lock()
	fn(&c.cfg)
	cfg := c.cfg.Clone()
	c.mu.Unlock()

	c.store.reconfigure(cfg)
}

func (c *Cache) SetTimeToIdleSeconds(seconds int64) {
	c.update(func(cfg *config.CacheConfiguration) { cfg.TimeToIdleSeconds = seconds })
}

func (c *Cache) SetTimeToLiveSeconds(seconds int64) {
	c.update(func(cfg *config.CacheConfiguration) { cfg.TimeToLiveSeconds = seconds })
}

func (c *Cache) SetMaxEntriesInMemory(n int) {
	c.update(func(cfg *config.CacheConfiguration) { cfg.MaxEntriesInMemory = n })
}

func (c *Cache) SetMaxEntriesTotal(n int) {
	c.update(func(cfg *config.CacheConfiguration) { cfg.MaxEntriesTotal = n })
}

func (c *Cache) SetLogging(enabled bool) {
	c.update(func(cfg *config.CacheConfiguration) { cfg.Logging = enabled })
}

func (c *Cache) dispose() {
	c.store.close()
}
