package strategy

import (
	"context"

	"github.com/pkg/errors"

	"second-level-cache/internal/region"
)

// readOnly caches data that never changes once written.
type readOnly struct {
	base
}

func newReadOnly(r region.Transactional) *readOnly {
	return &readOnly{base{region: r}}
}

func (s *readOnly) Get(ctx context.Context, key any, _ int64) (any, error) {
	return s.region.Get(ctx, key)
}

func (s *readOnly) PutFromLoad(ctx context.Context, key, value any, _ int64, _ any, minimalPutOverride bool) (bool, error) {
	return s.putIfAllowed(ctx, key, value, minimalPutOverride)
}

func (s *readOnly) LockItem(context.Context, any, any) (region.SoftLock, error) { return nil, nil }

// UnlockItem evicts the entry. It only runs when an item is deleted.
func (s *readOnly) UnlockItem(ctx context.Context, key any, _ region.SoftLock) error {
	return s.Evict(ctx, key)
}

func (s *readOnly) insert(context.Context, any, any, any) (bool, error) { return false, nil }

func (s *readOnly) afterInsert(ctx context.Context, key, value, _ any) (bool, error) {
	if err := s.region.Put(ctx, key, value); err != nil {
		return false, err
	}
	return true, nil
}

func (s *readOnly) update(_ context.Context, key, _, _, _ any) (bool, error) {
	return false, errors.Wrapf(ErrReadOnly, "region %s key %v", s.region.Name(), key)
}

func (s *readOnly) afterUpdate(_ context.Context, key, _, _, _ any, _ region.SoftLock) (bool, error) {
	return false, errors.Wrapf(ErrReadOnly, "region %s key %v", s.region.Name(), key)
}
