package region

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"second-level-cache/internal/cachemanager"
	"second-level-cache/internal/config"
	"second-level-cache/internal/timestamp"
)

// Properties are the string settings handed to a region factory.
type Properties map[string]string

const (
	// CacheLockTimeoutProperty is the soft-lock timeout in milliseconds.
	CacheLockTimeoutProperty = "l2cache.cacheLockTimeout"
	// PropagateNonstopErrorsProperty makes nonstop timeouts surface as errors
	// instead of degrading to cache misses.
	PropagateNonstopErrorsProperty = "l2cache.propagateNonstopErrors"

	DefaultCacheLockTimeout = 60 * time.Second
)

// Bool reads a boolean property, falling back to def when unset or malformed.
func (p Properties) Bool(key string, def bool) bool {
	v, ok := p[key]
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		log.Warn().Str("property", key).Str("value", v).Msg("ignoring malformed boolean property")
		return def
	}
	return b
}

// Keyer lets a key choose its own cache representation.
type Keyer interface {
	CacheKey() string
}

// KeyString maps a region key to the string key of the underlying cache.
func KeyString(key any) string {
	switch k := key.(type) {
	case string:
		return k
	case Keyer:
		return k.CacheKey()
	default:
		return fmt.Sprint(key)
	}
}

// NonstopHandler decides what happens to nonstop timeouts coming out of
// clustered caches.
type NonstopHandler struct {
	Propagate bool
}

// Handle returns nil for absorbed nonstop errors and err otherwise.
func (h NonstopHandler) Handle(err error) error {
	if err == nil || !errors.Is(err, cachemanager.ErrNonStop) || h.Propagate {
		return err
	}
	log.Debug().Err(err).Msg("nonstop cache operation degraded")
	return nil
}

// DataRegion is the base of every region: a named cache plus the settings
// shared by all region kinds.
type DataRegion struct {
	cache       *cachemanager.Cache
	lockTimeout int64
	nonstop     NonstopHandler
}

func newDataRegion(cache *cachemanager.Cache, props Properties) (DataRegion, error) {
	timeout := DefaultCacheLockTimeout
	if v, ok := props[CacheLockTimeoutProperty]; ok {
		ms, err := strconv.ParseInt(strings.TrimSpace(v), 0, 64)
		if err != nil {
			return DataRegion{}, errors.Wrapf(err, "property %s", CacheLockTimeoutProperty)
		}
		timeout = time.Duration(ms) * time.Millisecond
	}

	return DataRegion{
		cache:       cache,
		lockTimeout: timestamp.FromDuration(timeout),
		nonstop:     NonstopHandler{Propagate: props.Bool(PropagateNonstopErrorsProperty, false)},
	}, nil
}

func (r *DataRegion) Name() string { return r.cache.Name() }

func (r *DataRegion) Cache() *cachemanager.Cache { return r.cache }

// Destroy removes the region's cache from its manager.
func (r *DataRegion) Destroy() {
	r.cache.Manager().RemoveCache(r.cache.Name())
}

func (r *DataRegion) Contains(ctx context.Context, key any) (bool, error) {
	found, err := r.cache.Contains(ctx, KeyString(key))
	return found, r.nonstop.Handle(err)
}

// SizeInMemory estimates the bytes held in memory by the region.
func (r *DataRegion) SizeInMemory() int64 { return r.cache.CalculateInMemorySize() }

func (r *DataRegion) ElementCountInMemory() int64 { return r.cache.MemoryStoreSize() }

func (r *DataRegion) ElementCountOnDisk(ctx context.Context) (int64, error) {
	n, err := r.cache.DiskStoreSize(ctx)
	return n, r.nonstop.Handle(err)
}

// ToMap copies the region's current content.
func (r *DataRegion) ToMap(ctx context.Context) (map[string]any, error) {
	keys, err := r.cache.Keys(ctx)
	if err != nil {
		return nil, r.nonstop.Handle(err)
	}

	out := make(map[string]any, len(keys))
	for _, key := range keys {
		v, ok, err := r.cache.Get(ctx, key)
		if err != nil {
			return nil, r.nonstop.Handle(err)
		}
		if ok {
			out[key] = v
		}
	}
	return out, nil
}

func (r *DataRegion) NextTimestamp() int64 { return timestamp.Next() }

// Timeout is the soft-lock timeout in timestamp units.
func (r *DataRegion) Timeout() int64 { return r.lockTimeout }

// TransactionalRegion is a data region whose entries are guarded by an access
// strategy.
type TransactionalRegion struct {
	DataRegion
	settings    Settings
	description CacheDataDescription
}

func newTransactionalRegion(
	cache *cachemanager.Cache,
	settings Settings,
	description CacheDataDescription,
	props Properties,
) (TransactionalRegion, error) {
	base, err := newDataRegion(cache, props)
	if err != nil {
		return TransactionalRegion{}, err
	}
	if description.VersionComparator == nil {
		description.VersionComparator = NumericVersionComparator
	}
	return TransactionalRegion{
		DataRegion:  base,
		settings:    settings,
		description: description,
	}, nil
}

func (r *TransactionalRegion) Settings() Settings { return r.settings }

func (r *TransactionalRegion) Description() CacheDataDescription { return r.description }

// IsTransactionAware reports whether the underlying cache takes part in XA
// transactions.
func (r *TransactionalRegion) IsTransactionAware() bool {
	cfg := r.cache.Configuration()
	return cfg.TransactionalMode == config.TransactionalXA || cfg.TransactionalMode == config.TransactionalXAStrict
}

// Get returns the cached value or nil.
func (r *TransactionalRegion) Get(ctx context.Context, key any) (any, error) {
	v, ok, err := r.cache.Get(ctx, KeyString(key))
	if err != nil || !ok {
		return nil, err
	}
	return v, nil
}

func (r *TransactionalRegion) Put(ctx context.Context, key, value any) error {
	return r.cache.Put(ctx, KeyString(key), value)
}

func (r *TransactionalRegion) Remove(ctx context.Context, key any) error {
	_, err := r.cache.Remove(ctx, KeyString(key))
	return err
}

func (r *TransactionalRegion) Clear(ctx context.Context) error {
	return r.cache.RemoveAll(ctx)
}

func (r *TransactionalRegion) WriteLock(key any) {
	r.cache.AcquireWriteLockOnKey(KeyString(key))
}

func (r *TransactionalRegion) WriteUnlock(key any) {
	r.cache.ReleaseWriteLockOnKey(KeyString(key))
}

// Transactional is what access strategies need from a region.
type Transactional interface {
	Name() string
	Cache() *cachemanager.Cache
	Settings() Settings
	Description() CacheDataDescription
	IsTransactionAware() bool
	Get(ctx context.Context, key any) (any, error)
	Put(ctx context.Context, key, value any) error
	Remove(ctx context.Context, key any) error
	Clear(ctx context.Context) error
	Contains(ctx context.Context, key any) (bool, error)
	WriteLock(key any)
	WriteUnlock(key any)
	NextTimestamp() int64
	Timeout() int64
}

// GeneralRegion backs query results and update timestamps. Nonstop timeouts
// degrade to misses and no-ops unless propagation is enabled.
type GeneralRegion struct {
	DataRegion
}

func (r *GeneralRegion) Get(ctx context.Context, key any) (any, error) {
	v, ok, err := r.cache.Get(ctx, KeyString(key))
	if err != nil || !ok {
		return nil, r.nonstop.Handle(err)
	}
	return v, nil
}

func (r *GeneralRegion) Put(ctx context.Context, key, value any) error {
	return r.nonstop.Handle(r.cache.Put(ctx, KeyString(key), value))
}

func (r *GeneralRegion) Evict(ctx context.Context, key any) error {
	_, err := r.cache.Remove(ctx, KeyString(key))
	return r.nonstop.Handle(err)
}

func (r *GeneralRegion) EvictAll(ctx context.Context) error {
	return r.nonstop.Handle(r.cache.RemoveAll(ctx))
}
