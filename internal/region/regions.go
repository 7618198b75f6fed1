package region

import (
	"second-level-cache/internal/cachemanager"
)

type EntityRegion struct {
	TransactionalRegion
	strategies AccessStrategyFactory
}

func NewEntityRegion(
	strategies AccessStrategyFactory,
	cache *cachemanager.Cache,
	settings Settings,
	description CacheDataDescription,
	props Properties,
) (*EntityRegion, error) {
	base, err := newTransactionalRegion(cache, settings, description, props)
	if err != nil {
		return nil, err
	}
	return &EntityRegion{TransactionalRegion: base, strategies: strategies}, nil
}

func (r *EntityRegion) BuildAccessStrategy(t AccessType) (EntityAccessStrategy, error) {
	return r.strategies.CreateEntityRegionAccessStrategy(r, t)
}

type CollectionRegion struct {
	TransactionalRegion
	strategies AccessStrategyFactory
}

func NewCollectionRegion(
	strategies AccessStrategyFactory,
	cache *cachemanager.Cache,
	settings Settings,
	description CacheDataDescription,
	props Properties,
) (*CollectionRegion, error) {
	base, err := newTransactionalRegion(cache, settings, description, props)
	if err != nil {
		return nil, err
	}
	return &CollectionRegion{TransactionalRegion: base, strategies: strategies}, nil
}

func (r *CollectionRegion) BuildAccessStrategy(t AccessType) (CollectionAccessStrategy, error) {
	return r.strategies.CreateCollectionRegionAccessStrategy(r, t)
}

type NaturalIDRegion struct {
	TransactionalRegion
	strategies AccessStrategyFactory
}

func NewNaturalIDRegion(
	strategies AccessStrategyFactory,
	cache *cachemanager.Cache,
	settings Settings,
	description CacheDataDescription,
	props Properties,
) (*NaturalIDRegion, error) {
	base, err := newTransactionalRegion(cache, settings, description, props)
	if err != nil {
		return nil, err
	}
	return &NaturalIDRegion{TransactionalRegion: base, strategies: strategies}, nil
}

func (r *NaturalIDRegion) BuildAccessStrategy(t AccessType) (NaturalIDAccessStrategy, error) {
	return r.strategies.CreateNaturalIDRegionAccessStrategy(r, t)
}

// QueryResultsRegion caches query result sets.
type QueryResultsRegion struct {
	GeneralRegion
}

func NewQueryResultsRegion(cache *cachemanager.Cache, props Properties) (*QueryResultsRegion, error) {
	base, err := newDataRegion(cache, props)
	if err != nil {
		return nil, err
	}
	return &QueryResultsRegion{GeneralRegion{DataRegion: base}}, nil
}

// TimestampsRegion records when each table was last updated so stale query
// results can be detected.
type TimestampsRegion struct {
	GeneralRegion
}

func NewTimestampsRegion(cache *cachemanager.Cache, props Properties) (*TimestampsRegion, error) {
	base, err := newDataRegion(cache, props)
	if err != nil {
		return nil, err
	}
	return &TimestampsRegion{GeneralRegion{DataRegion: base}}, nil
}
