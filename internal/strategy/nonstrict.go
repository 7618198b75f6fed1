package strategy

import (
	"context"

	"second-level-cache/internal/region"
)

// nonstrict never locks: a change evicts the entry and the next read
// repopulates it, so a stale value can be served for a short while.
type nonstrict struct {
	base
}

func newNonstrict(r region.Transactional) *nonstrict {
	return &nonstrict{base{region: r}}
}

func (s *nonstrict) Get(ctx context.Context, key any, _ int64) (any, error) {
	return s.region.Get(ctx, key)
}

func (s *nonstrict) PutFromLoad(ctx context.Context, key, value any, _ int64, _ any, minimalPutOverride bool) (bool, error) {
	return s.putIfAllowed(ctx, key, value, minimalPutOverride)
}

func (s *nonstrict) LockItem(context.Context, any, any) (region.SoftLock, error) { return nil, nil }

func (s *nonstrict) UnlockItem(ctx context.Context, key any, _ region.SoftLock) error {
	return s.region.Remove(ctx, key)
}

func (s *nonstrict) Remove(ctx context.Context, key any) error {
	return s.region.Remove(ctx, key)
}

func (s *nonstrict) insert(context.Context, any, any, any) (bool, error) { return false, nil }

func (s *nonstrict) afterInsert(context.Context, any, any, any) (bool, error) { return false, nil }

func (s *nonstrict) update(ctx context.Context, key, _, _, _ any) (bool, error) {
	return false, s.region.Remove(ctx, key)
}

func (s *nonstrict) afterUpdate(ctx context.Context, key, _, _, _ any, lock region.SoftLock) (bool, error) {
	return false, s.UnlockItem(ctx, key, lock)
}
