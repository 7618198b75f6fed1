package cachemanager

import (
	"context"

	"second-level-cache/internal/config"
)

type lookup int

const (
	lookupMiss lookup = iota
	lookupHit
	lookupExpired
)

// store is the storage tier behind a Cache. Implementations delegate to a
// library: golang-lru for memory, redis for the cluster tier.
type store interface {
	get(ctx context.Context, key string) (any, lookup, error)
	put(ctx context.Context, key string, value any) error
	remove(ctx context.Context, key string) (bool, error)
	removeAll(ctx context.Context) error
	contains(ctx context.Context, key string) (bool, error)
	keys(ctx context.Context) ([]string, error)
	// sweep drops elements that expired but were not yet evicted.
	sweep(ctx context.Context) (int, error)
	reconfigure(cfg config.CacheConfiguration)
	memorySize() int64
	inMemoryBytes() int64
	remoteSize(ctx context.Context) (int64, error)
	close()
}
