package strategy

import (
	"context"

	"second-level-cache/internal/region"
)

// nonstop absorbs nonstop timeouts raised by next.
type nonstop struct {
	next    core
	handler region.NonstopHandler
}

func (s *nonstop) Get(ctx context.Context, key any, txTimestamp int64) (any, error) {
	v, err := s.next.Get(ctx, key, txTimestamp)
	if err != nil {
		return nil, s.handler.Handle(err)
	}
	return v, nil
}

func (s *nonstop) PutFromLoad(
	ctx context.Context,
	key, value any,
	txTimestamp int64,
	version any,
	minimalPutOverride bool,
) (bool, error) {
	ok, err := s.next.PutFromLoad(ctx, key, value, txTimestamp, version, minimalPutOverride)
	return s.result(ok, err)
}

func (s *nonstop) LockItem(ctx context.Context, key, version any) (region.SoftLock, error) {
	lock, err := s.next.LockItem(ctx, key, version)
	if err != nil {
		return nil, s.handler.Handle(err)
	}
	return lock, nil
}

func (s *nonstop) UnlockItem(ctx context.Context, key any, lock region.SoftLock) error {
	return s.handler.Handle(s.next.UnlockItem(ctx, key, lock))
}

func (s *nonstop) Remove(ctx context.Context, key any) error {
	return s.handler.Handle(s.next.Remove(ctx, key))
}

func (s *nonstop) RemoveAll(ctx context.Context) error {
	return s.handler.Handle(s.next.RemoveAll(ctx))
}

func (s *nonstop) Evict(ctx context.Context, key any) error {
	return s.handler.Handle(s.next.Evict(ctx, key))
}

func (s *nonstop) EvictAll(ctx context.Context) error {
	return s.handler.Handle(s.next.EvictAll(ctx))
}

func (s *nonstop) LockRegion(ctx context.Context) (region.SoftLock, error) {
	lock, err := s.next.LockRegion(ctx)
	if err != nil {
		return nil, s.handler.Handle(err)
	}
	return lock, nil
}

func (s *nonstop) UnlockRegion(ctx context.Context, lock region.SoftLock) error {
	return s.handler.Handle(s.next.UnlockRegion(ctx, lock))
}

func (s *nonstop) insert(ctx context.Context, key, value, version any) (bool, error) {
	return s.result(s.next.insert(ctx, key, value, version))
}

func (s *nonstop) afterInsert(ctx context.Context, key, value, version any) (bool, error) {
	return s.result(s.next.afterInsert(ctx, key, value, version))
}

func (s *nonstop) update(ctx context.Context, key, value, currentVersion, previousVersion any) (bool, error) {
	return s.result(s.next.update(ctx, key, value, currentVersion, previousVersion))
}

func (s *nonstop) afterUpdate(
	ctx context.Context,
	key, value, currentVersion, previousVersion any,
	lock region.SoftLock,
) (bool, error) {
	return s.result(s.next.afterUpdate(ctx, key, value, currentVersion, previousVersion, lock))
}

func (s *nonstop) result(ok bool, err error) (bool, error) {
	if err != nil {
		return false, s.handler.Handle(err)
	}
	return ok, nil
}
