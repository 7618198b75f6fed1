package strategy

import (
	"context"

	"second-level-cache/internal/region"
)

// core is a strategy before it is bound to a region kind. Natural-id regions
// call the insert and update hooks with nil versions.
type core interface {
	region.AccessStrategy
	insert(ctx context.Context, key, value, version any) (bool, error)
	afterInsert(ctx context.Context, key, value, version any) (bool, error)
	update(ctx context.Context, key, value, currentVersion, previousVersion any) (bool, error)
	afterUpdate(ctx context.Context, key, value, currentVersion, previousVersion any, lock region.SoftLock) (bool, error)
}

// base holds the operations most strategies share.
type base struct {
	region region.Transactional
}

// putIfAllowed caches value unless minimal puts are requested and key is
// already present.
func (b *base) putIfAllowed(ctx context.Context, key, value any, minimalPutOverride bool) (bool, error) {
	if minimalPutOverride {
		found, err := b.region.Contains(ctx, key)
		if err != nil {
			return false, err
		}
		if found {
			return false, nil
		}
	}
	if err := b.region.Put(ctx, key, value); err != nil {
		return false, err
	}
	return true, nil
}

// Remove does nothing: the entry is dealt with when its lock is released.
func (b *base) Remove(context.Context, any) error { return nil }

func (b *base) RemoveAll(context.Context) error { return nil }

func (b *base) Evict(ctx context.Context, key any) error {
	return b.region.Remove(ctx, key)
}

func (b *base) EvictAll(ctx context.Context) error {
	return b.region.Clear(ctx)
}

func (b *base) LockRegion(context.Context) (region.SoftLock, error) { return nil, nil }

func (b *base) UnlockRegion(ctx context.Context, _ region.SoftLock) error {
	return b.EvictAll(ctx)
}

type entityStrategy struct {
	core
	region *region.EntityRegion
}

func (s *entityStrategy) Region() *region.EntityRegion { return s.region }

func (s *entityStrategy) Insert(ctx context.Context, key, value, version any) (bool, error) {
	return s.insert(ctx, key, value, version)
}

func (s *entityStrategy) AfterInsert(ctx context.Context, key, value, version any) (bool, error) {
	return s.afterInsert(ctx, key, value, version)
}

func (s *entityStrategy) Update(ctx context.Context, key, value, currentVersion, previousVersion any) (bool, error) {
	return s.update(ctx, key, value, currentVersion, previousVersion)
}

func (s *entityStrategy) AfterUpdate(
	ctx context.Context,
	key, value, currentVersion, previousVersion any,
	lock region.SoftLock,
) (bool, error) {
	return s.afterUpdate(ctx, key, value, currentVersion, previousVersion, lock)
}

type collectionStrategy struct {
	core
	region *region.CollectionRegion
}

func (s *collectionStrategy) Region() *region.CollectionRegion { return s.region }

type naturalIDStrategy struct {
	core
	region *region.NaturalIDRegion
}

func (s *naturalIDStrategy) Region() *region.NaturalIDRegion { return s.region }

func (s *naturalIDStrategy) Insert(ctx context.Context, key, value any) (bool, error) {
	return s.insert(ctx, key, value, nil)
}

func (s *naturalIDStrategy) AfterInsert(ctx context.Context, key, value any) (bool, error) {
	return s.afterInsert(ctx, key, value, nil)
}

func (s *naturalIDStrategy) Update(ctx context.Context, key, value any) (bool, error) {
	return s.update(ctx, key, value, nil, nil)
}

func (s *naturalIDStrategy) AfterUpdate(ctx context.Context, key, value any, lock region.SoftLock) (bool, error) {
	return s.afterUpdate(ctx, key, value, nil, nil, lock)
}
