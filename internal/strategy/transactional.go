package strategy

import (
	"context"

	"second-level-cache/internal/region"
)

// transactional writes straight through to an XA cache, which keeps the
// entries consistent with the surrounding transaction itself.
type transactional struct {
	base
}

func newTransactional(r region.Transactional) *transactional {
	return &transactional{base{region: r}}
}

func (s *transactional) Get(ctx context.Context, key any, _ int64) (any, error) {
	return s.region.Get(ctx, key)
}

func (s *transactional) PutFromLoad(ctx context.Context, key, value any, _ int64, _ any, minimalPutOverride bool) (bool, error) {
	return s.putIfAllowed(ctx, key, value, minimalPutOverride)
}

func (s *transactional) LockItem(context.Context, any, any) (region.SoftLock, error) { return nil, nil }

func (s *transactional) UnlockItem(context.Context, any, region.SoftLock) error { return nil }

func (s *transactional) Remove(ctx context.Context, key any) error {
	return s.region.Remove(ctx, key)
}

func (s *transactional) RemoveAll(ctx context.Context) error {
	return s.region.Clear(ctx)
}

func (s *transactional) insert(ctx context.Context, key, value, _ any) (bool, error) {
	if err := s.region.Put(ctx, key, value); err != nil {
		return false, err
	}
	return true, nil
}

func (s *transactional) afterInsert(context.Context, any, any, any) (bool, error) { return false, nil }

func (s *transactional) update(ctx context.Context, key, value, _, _ any) (bool, error) {
	if err := s.region.Put(ctx, key, value); err != nil {
		return false, err
	}
	return true, nil
}

func (s *transactional) afterUpdate(context.Context, any, any, any, any, region.SoftLock) (bool, error) {
	return false, nil
}
