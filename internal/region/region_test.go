package region

import (
	"context"
	"strconv"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"second-level-cache/internal/cachemanager"
	"second-level-cache/internal/config"
	"second-level-cache/internal/timestamp"
)

type orderKey struct {
	Entity string
	ID     uint64
}

func (k orderKey) CacheKey() string { return k.Entity + "#" + strconv.FormatUint(k.ID, 10) }

type stubStrategies struct {
	entity     *EntityRegion
	collection *CollectionRegion
	naturalID  *NaturalIDRegion
	accessType AccessType
}

func (s *stubStrategies) CreateEntityRegionAccessStrategy(r *EntityRegion, t AccessType) (EntityAccessStrategy, error) {
	s.entity, s.accessType = r, t
	return nil, nil
}

func (s *stubStrategies) CreateCollectionRegionAccessStrategy(r *CollectionRegion, t AccessType) (CollectionAccessStrategy, error) {
	s.collection, s.accessType = r, t
	return nil, nil
}

func (s *stubStrategies) CreateNaturalIDRegionAccessStrategy(r *NaturalIDRegion, t AccessType) (NaturalIDAccessStrategy, error) {
	s.naturalID, s.accessType = r, t
	return nil, nil
}

func newManager(t *testing.T, cfg *config.Configuration) *cachemanager.Manager {
	t.Helper()

	cfg.Name = t.Name()
	m, err := cachemanager.New(cfg)
	require.NoError(t, err)
	t.Cleanup(m.Shutdown)
	return m
}

func newCache(t *testing.T, caches ...config.CacheConfiguration) *cachemanager.Cache {
	t.Helper()

	m := newManager(t, &config.Configuration{Caches: caches})
	return m.Cache(caches[0].Name)
}

func TestParseAccessType(t *testing.T) {
	for _, at := range []AccessType{ReadOnly, ReadWrite, NonstrictReadWrite, Transactional} {
		parsed, err := ParseAccessType(" " + at.String() + " ")
		require.NoError(t, err)
		assert.Equal(t, at, parsed)
	}

	parsed, err := ParseAccessType("READ-WRITE")
	require.NoError(t, err)
	assert.Equal(t, ReadWrite, parsed)

	_, err = ParseAccessType("eventual")
	assert.ErrorIs(t, err, ErrUnknownAccessType)
	assert.Equal(t, "unknown", AccessType(42).String())
}

func TestKeyString(t *testing.T) {
	assert.Equal(t, "plain", KeyString("plain"))
	assert.Equal(t, "42", KeyString(42))
	assert.Equal(t, "order#7", KeyString(orderKey{Entity: "order", ID: 7}))
}

func TestProperties_Bool(t *testing.T) {
	props := Properties{"yes": "true", "no": " false ", "bad": "maybe"}

	assert.True(t, props.Bool("yes", false))
	assert.False(t, props.Bool("no", true))
	assert.True(t, props.Bool("bad", true))
	assert.False(t, props.Bool("missing", false))
}

func TestNumericVersionComparator(t *testing.T) {
	assert.Negative(t, NumericVersionComparator(int8(1), int64(2)))
	assert.Zero(t, NumericVersionComparator(uint16(5), uint64(5)))
	assert.Positive(t, NumericVersionComparator(uint8(9), int64(3)))
	assert.Negative(t, NumericVersionComparator(1.5, 2))
	assert.Negative(t, NumericVersionComparator("a", "b"))
}

func TestEntityRegion(t *testing.T) {
	ctx := context.Background()
	c := newCache(t, config.CacheConfiguration{Name: "order", MaxEntriesInMemory: 10})
	strategies := &stubStrategies{}

	r, err := NewEntityRegion(strategies, c, Settings{MinimalPutsEnabled: true}, CacheDataDescription{Mutable: true}, nil)
	require.NoError(t, err)

	assert.Equal(t, "order", r.Name())
	assert.Same(t, c, r.Cache())
	assert.True(t, r.Settings().MinimalPutsEnabled)
	assert.True(t, r.Description().Mutable)
	assert.NotNil(t, r.Description().VersionComparator, "comparator defaults to numeric")
	assert.False(t, r.IsTransactionAware())
	assert.Equal(t, timestamp.FromDuration(DefaultCacheLockTimeout), r.Timeout())

	key := orderKey{Entity: "order", ID: 1}
	require.NoError(t, r.Put(ctx, key, "v1"))

	v, err := r.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "v1", v)

	found, err := r.Contains(ctx, key)
	require.NoError(t, err)
	assert.True(t, found)

	content, err := r.ToMap(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{key.CacheKey(): "v1"}, content)

	assert.Equal(t, int64(1), r.ElementCountInMemory())
	assert.Positive(t, r.SizeInMemory())
	onDisk, err := r.ElementCountOnDisk(ctx)
	require.NoError(t, err)
	assert.Zero(t, onDisk)

	require.NoError(t, r.Remove(ctx, key))
	v, err = r.Get(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, v)

	require.NoError(t, r.Put(ctx, key, "v2"))
	require.NoError(t, r.Clear(ctx))
	assert.Zero(t, r.ElementCountInMemory())

	_, err = r.BuildAccessStrategy(ReadWrite)
	require.NoError(t, err)
	assert.Same(t, r, strategies.entity)
	assert.Equal(t, ReadWrite, strategies.accessType)

	ts := r.NextTimestamp()
	assert.Greater(t, r.NextTimestamp(), ts)

	r.Destroy()
	assert.Nil(t, c.Manager().Cache("order"))
}

func TestRegion_LockTimeoutProperty(t *testing.T) {
	c := newCache(t, config.CacheConfiguration{Name: "c"})

	r, err := NewCollectionRegion(&stubStrategies{}, c, Settings{}, CacheDataDescription{},
		Properties{CacheLockTimeoutProperty: "0x10"})
	require.NoError(t, err)
	assert.Equal(t, int64(16*timestamp.OneMs), r.Timeout())

	_, err = NewNaturalIDRegion(&stubStrategies{}, c, Settings{}, CacheDataDescription{},
		Properties{CacheLockTimeoutProperty: "soon"})
	assert.Error(t, err)
}

func TestRegion_BuildAccessStrategy(t *testing.T) {
	c := newCache(t, config.CacheConfiguration{Name: "c"})
	strategies := &stubStrategies{}

	collection, err := NewCollectionRegion(strategies, c, Settings{}, CacheDataDescription{}, nil)
	require.NoError(t, err)
	_, err = collection.BuildAccessStrategy(NonstrictReadWrite)
	require.NoError(t, err)
	assert.Same(t, collection, strategies.collection)

	naturalID, err := NewNaturalIDRegion(strategies, c, Settings{}, CacheDataDescription{}, nil)
	require.NoError(t, err)
	_, err = naturalID.BuildAccessStrategy(ReadOnly)
	require.NoError(t, err)
	assert.Same(t, naturalID, strategies.naturalID)
	assert.Equal(t, ReadOnly, strategies.accessType)
}

func TestRegion_TransactionAware(t *testing.T) {
	c := newCache(t, config.CacheConfiguration{Name: "xa", TransactionalMode: config.TransactionalXA})

	r, err := NewEntityRegion(&stubStrategies{}, c, Settings{}, CacheDataDescription{}, nil)
	require.NoError(t, err)
	assert.True(t, r.IsTransactionAware())
}

func TestGeneralRegions(t *testing.T) {
	ctx := context.Background()
	c := newCache(t, config.CacheConfiguration{Name: "queries", MaxEntriesInMemory: 10})

	queries, err := NewQueryResultsRegion(c, nil)
	require.NoError(t, err)

	require.NoError(t, queries.Put(ctx, "select 1", []any{int64(1)}))
	v, err := queries.Get(ctx, "select 1")
	require.NoError(t, err)
	assert.Equal(t, []any{int64(1)}, v)

	require.NoError(t, queries.Evict(ctx, "select 1"))
	v, err = queries.Get(ctx, "select 1")
	require.NoError(t, err)
	assert.Nil(t, v)

	timestamps, err := NewTimestampsRegion(c, nil)
	require.NoError(t, err)
	require.NoError(t, timestamps.Put(ctx, "orders", timestamp.Next()))
	require.NoError(t, timestamps.EvictAll(ctx))
	v, err = timestamps.Get(ctx, "orders")
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestGeneralRegion_Nonstop(t *testing.T) {
	ctx := context.Background()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	m := newManager(t, &config.Configuration{
		Cluster: &config.ClusterConfiguration{URL: "redis://" + mr.Addr()},
		Caches: []config.CacheConfiguration{{
			Name: "timestamps",
			Clustered: &config.ClusteredConfiguration{
				Nonstop: &config.NonstopConfiguration{
					Enabled:         true,
					TimeoutMillis:   100,
					TimeoutBehavior: config.TimeoutBehaviorException,
				},
			},
		}},
	})
	c := m.Cache("timestamps")
	mr.Close()

	degrading, err := NewTimestampsRegion(c, nil)
	require.NoError(t, err)

	v, err := degrading.Get(ctx, "orders")
	require.NoError(t, err)
	assert.Nil(t, v)
	assert.NoError(t, degrading.Put(ctx, "orders", int64(1)))
	assert.NoError(t, degrading.Evict(ctx, "orders"))
	assert.NoError(t, degrading.EvictAll(ctx))

	propagating, err := NewTimestampsRegion(c, Properties{PropagateNonstopErrorsProperty: "true"})
	require.NoError(t, err)

	_, err = propagating.Get(ctx, "orders")
	assert.ErrorIs(t, err, cachemanager.ErrNonStop)
}

func TestNonstopHandler(t *testing.T) {
	assert.NoError(t, NonstopHandler{}.Handle(nil))
	assert.NoError(t, NonstopHandler{}.Handle(cachemanager.ErrNonStop))
	assert.ErrorIs(t, NonstopHandler{Propagate: true}.Handle(cachemanager.ErrNonStop), cachemanager.ErrNonStop)

	other := assert.AnError
	assert.Equal(t, other, NonstopHandler{}.Handle(other))
}
