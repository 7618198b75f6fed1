package strategy

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"second-level-cache/internal/config"
	"second-level-cache/internal/region"
)

func clustered(consistency config.Consistency, nonstop bool) config.CacheConfiguration {
	return config.CacheConfiguration{
		Name: "clustered",
		Clustered: &config.ClusteredConfiguration{
			Consistency: consistency,
			Nonstop:     &config.NonstopConfiguration{Enabled: nonstop},
		},
	}
}

func TestCheckAccessTypeCompatibility(t *testing.T) {
	tests := []struct {
		name    string
		factory Factory
		at      region.AccessType
		cfg     config.CacheConfiguration
		wantErr bool
	}{
		{name: "read-write on local cache", at: region.ReadWrite, cfg: config.CacheConfiguration{}},
		{name: "read-write on strong cache", at: region.ReadWrite, cfg: clustered(config.ConsistencyStrong, false)},
		{name: "read-write on eventual cache", at: region.ReadWrite, cfg: clustered(config.ConsistencyEventual, false), wantErr: true},
		{
			name:    "read-write on eventual cache with racy configs",
			factory: Factory{AllowRacyConfigs: true},
			at:      region.ReadWrite,
			cfg:     clustered(config.ConsistencyEventual, false),
		},
		{name: "read-write on nonstop cache", at: region.ReadWrite, cfg: clustered(config.ConsistencyStrong, true), wantErr: true},
		{
			name:    "read-write on nonstop cache always allowed",
			factory: Factory{AlwaysAllowNonstop: true},
			at:      region.ReadWrite,
			cfg:     clustered(config.ConsistencyStrong, true),
		},
		{
			name:    "read-write on eventual nonstop cache with racy configs only",
			factory: Factory{AllowRacyConfigs: true},
			at:      region.ReadWrite,
			cfg:     clustered(config.ConsistencyEventual, true),
			wantErr: true,
		},
		{name: "read-only on eventual nonstop cache", at: region.ReadOnly, cfg: clustered(config.ConsistencyEventual, true)},
		{name: "nonstrict on eventual nonstop cache", at: region.NonstrictReadWrite, cfg: clustered(config.ConsistencyEventual, true)},
		{name: "transactional without xa", at: region.Transactional, cfg: config.CacheConfiguration{TransactionalMode: config.TransactionalLocal}, wantErr: true},
		{name: "transactional with xa", at: region.Transactional, cfg: config.CacheConfiguration{TransactionalMode: config.TransactionalXA}},
		{name: "transactional with xa_strict", at: region.Transactional, cfg: config.CacheConfiguration{TransactionalMode: config.TransactionalXAStrict}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.factory.CheckAccessTypeCompatibility(tt.at, tt.cfg)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrIncompatibleAccess)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestFactory_Create(t *testing.T) {
	c := memoryCache(t, config.CacheConfiguration{})
	f := &Factory{}

	entities, err := region.NewEntityRegion(f, c, region.Settings{}, region.CacheDataDescription{Mutable: true}, nil)
	require.NoError(t, err)

	for _, at := range []region.AccessType{region.ReadOnly, region.ReadWrite, region.NonstrictReadWrite} {
		s, err := entities.BuildAccessStrategy(at)
		require.NoError(t, err, at.String())
		assert.NotNil(t, s)
	}

	_, err = entities.BuildAccessStrategy(region.Transactional)
	assert.ErrorIs(t, err, ErrIncompatibleAccess)

	_, err = entities.BuildAccessStrategy(region.AccessType(99))
	assert.ErrorIs(t, err, region.ErrUnknownAccessType)

	collections, err := region.NewCollectionRegion(f, c, region.Settings{}, region.CacheDataDescription{}, nil)
	require.NoError(t, err)
	_, err = collections.BuildAccessStrategy(region.AccessType(99))
	assert.ErrorIs(t, err, region.ErrUnknownAccessType)

	naturalIDs, err := region.NewNaturalIDRegion(f, c, region.Settings{}, region.CacheDataDescription{}, nil)
	require.NoError(t, err)
	_, err = naturalIDs.BuildAccessStrategy(region.AccessType(99))
	assert.ErrorIs(t, err, region.ErrUnknownAccessType)
}

func TestReadWrite_SoftLocks(t *testing.T) {
	ctx := context.Background()
	s := entityStrategyFor(t, &Factory{}, memoryCache(t, config.CacheConfiguration{}), region.ReadWrite, nil)
	r := s.Region()

	txBeforeLoad := r.NextTimestamp()
	ok, err := s.PutFromLoad(ctx, 1, product{ID: 1, Title: "pen"}, txBeforeLoad, int64(1), false)
	require.NoError(t, err)
	require.True(t, ok)

	v, err := s.Get(ctx, 1, txBeforeLoad)
	require.NoError(t, err)
	assert.Nil(t, v, "items cached after the transaction started are not visible to it")

	v, err = s.Get(ctx, 1, r.NextTimestamp())
	require.NoError(t, err)
	assert.Equal(t, product{ID: 1, Title: "pen"}, v)

	ok, err = s.PutFromLoad(ctx, 1, product{ID: 1, Title: "pen"}, r.NextTimestamp(), int64(1), false)
	require.NoError(t, err)
	assert.False(t, ok, "same version is not replaced")

	first, err := s.LockItem(ctx, 1, int64(1))
	require.NoError(t, err)
	second, err := s.LockItem(ctx, 1, int64(1))
	require.NoError(t, err)

	ok, err = s.PutFromLoad(ctx, 1, product{ID: 1, Title: "stale"}, r.NextTimestamp(), int64(2), false)
	require.NoError(t, err)
	assert.False(t, ok, "held locks block loads")

	ok, err = s.Update(ctx, 1, product{ID: 1, Title: "marker"}, int64(2), int64(1))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.AfterUpdate(ctx, 1, product{ID: 1, Title: "marker"}, int64(2), int64(1), first)
	require.NoError(t, err)
	assert.False(t, ok, "concurrently locked entries stay locked")

	v, err = s.Get(ctx, 1, r.NextTimestamp())
	require.NoError(t, err)
	assert.Nil(t, v)

	require.NoError(t, s.UnlockItem(ctx, 1, second))

	ok, err = s.PutFromLoad(ctx, 1, product{ID: 1, Title: "marker"}, r.NextTimestamp(), int64(2), false)
	require.NoError(t, err)
	assert.True(t, ok, "released lock accepts newer versions")

	v, err = s.Get(ctx, 1, r.NextTimestamp())
	require.NoError(t, err)
	assert.Equal(t, product{ID: 1, Title: "marker"}, v)
}

func TestReadWrite_Inserts(t *testing.T) {
	ctx := context.Background()
	s := entityStrategyFor(t, &Factory{}, memoryCache(t, config.CacheConfiguration{}), region.ReadWrite, nil)
	r := s.Region()

	ok, err := s.Insert(ctx, 1, product{ID: 1}, int64(1))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.AfterInsert(ctx, 1, product{ID: 1, Title: "pen"}, int64(1))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.AfterInsert(ctx, 1, product{ID: 1, Title: "again"}, int64(1))
	require.NoError(t, err)
	assert.False(t, ok, "existing entries are left alone")

	v, err := s.Get(ctx, 1, r.NextTimestamp())
	require.NoError(t, err)
	assert.Equal(t, product{ID: 1, Title: "pen"}, v)
}

func TestReadWrite_ForeignUnlock(t *testing.T) {
	ctx := context.Background()
	s := entityStrategyFor(t, &Factory{}, memoryCache(t, config.CacheConfiguration{}), region.ReadWrite, nil)
	r := s.Region()

	_, err := s.PutFromLoad(ctx, 1, product{ID: 1}, r.NextTimestamp(), nil, false)
	require.NoError(t, err)
	lock, err := s.LockItem(ctx, 1, nil)
	require.NoError(t, err)

	require.NoError(t, s.UnlockItem(ctx, 1, &Lock{SourceID: "elsewhere", LockID: 1}))

	ok, err := s.AfterUpdate(ctx, 1, product{ID: 1, Title: "marker"}, nil, nil, lock)
	require.NoError(t, err)
	assert.False(t, ok, "the entry was replaced by an expiry lock")

	ok, err = s.PutFromLoad(ctx, 1, product{ID: 1}, r.NextTimestamp(), nil, false)
	require.NoError(t, err)
	assert.False(t, ok, "expiry lock blocks loads until it times out")
}

func TestReadWrite_LocksAreCopied(t *testing.T) {
	ctx := context.Background()
	s := entityStrategyFor(t, &Factory{}, memoryCache(t, config.CacheConfiguration{}), region.ReadWrite, nil)
	r := s.Region()

	first, err := s.LockItem(ctx, 1, int64(1))
	require.NoError(t, err)

	cached, err := r.Get(ctx, 1)
	require.NoError(t, err)
	held := cached.(*Lock)
	require.Equal(t, 1, held.Multiplicity)

	second, err := s.LockItem(ctx, 1, int64(1))
	require.NoError(t, err)
	require.NoError(t, s.UnlockItem(ctx, 1, first))
	require.NoError(t, s.UnlockItem(ctx, 1, second))

	assert.Equal(t, 1, held.Multiplicity, "an entry read from the cache never changes afterwards")
	assert.False(t, held.Concurrent)
	assert.Zero(t, held.UnlockTimestamp)

	cached, err = r.Get(ctx, 1)
	require.NoError(t, err)
	assert.False(t, cached.(*Lock).isLocked())
}

// Run with -race: lockers and size readers share the cached entries.
func TestReadWrite_ConcurrentLocking(t *testing.T) {
	ctx := context.Background()
	s := entityStrategyFor(t, &Factory{}, memoryCache(t, config.CacheConfiguration{}), region.ReadWrite, nil)
	r := s.Region()

	for key := 0; key < 4; key++ {
		_, err := s.PutFromLoad(ctx, key, product{ID: uint64(key)}, r.NextTimestamp(), int64(1), false)
		require.NoError(t, err)
	}

	done := make(chan struct{})
	var readers sync.WaitGroup
	readers.Add(1)
	go func() {
		defer readers.Done()
		for {
			select {
			case <-done:
				return
			default:
				r.SizeInMemory()
				_, _ = r.ToMap(ctx)
			}
		}
	}()

	var lockers sync.WaitGroup
	for key := 0; key < 4; key++ {
		lockers.Add(1)
		go func() {
			defer lockers.Done()
			for range 200 {
				lock, err := s.LockItem(ctx, key, int64(1))
				assert.NoError(t, err)
				assert.NoError(t, s.UnlockItem(ctx, key, lock))
			}
		}()
	}
	lockers.Wait()
	close(done)
	readers.Wait()

	for key := 0; key < 4; key++ {
		cached, err := r.Get(ctx, key)
		require.NoError(t, err)
		lock, ok := cached.(*Lock)
		require.True(t, ok)
		assert.False(t, lock.isLocked())
	}
}
