package strategy

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"second-level-cache/internal/region"
)

// readWrite guards entries with soft locks stored in the cache itself. A
// writer replaces the Item with a Lock before the database changes and puts
// the new Item back after commit; readers that find a Lock go to the
// database.
type readWrite struct {
	base
	sourceID   string
	nextLockID atomic.Int64
}

func newReadWrite(r region.Transactional) *readWrite {
	return &readWrite{
		base:     base{region: r},
		sourceID: uuid.NewString(),
	}
}

func (s *readWrite) compare(a, b any) int {
	return s.region.Description().VersionComparator(a, b)
}

func (s *readWrite) entry(ctx context.Context, key any) (lockable, error) {
	v, err := s.region.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	entry, _ := v.(lockable)
	return entry, nil
}

// Get returns the cached value when it was cached before the transaction
// started and no writer holds it.
func (s *readWrite) Get(ctx context.Context, key any, txTimestamp int64) (any, error) {
	entry, err := s.entry(ctx, key)
	if err != nil || entry == nil || !entry.isReadable(txTimestamp) {
		return nil, err
	}
	return entry.value(), nil
}

func (s *readWrite) PutFromLoad(ctx context.Context, key, value any, txTimestamp int64, version any, _ bool) (bool, error) {
	s.region.WriteLock(key)
	defer s.region.WriteUnlock(key)

	entry, err := s.entry(ctx, key)
	if err != nil {
		return false, err
	}
	if entry != nil && !entry.isWriteable(txTimestamp, version, s.compare) {
		return false, nil
	}

	item := &Item{Value: value, Version: version, Timestamp: s.region.NextTimestamp()}
	if err := s.region.Put(ctx, key, item); err != nil {
		return false, err
	}
	return true, nil
}

func (s *readWrite) LockItem(ctx context.Context, key, version any) (region.SoftLock, error) {
	s.region.WriteLock(key)
	defer s.region.WriteUnlock(key)

	entry, err := s.entry(ctx, key)
	if err != nil {
		return nil, err
	}

	timeout := s.region.NextTimestamp() + s.region.Timeout()
	lockID := s.nextLockID.Add(1)

	var lock *Lock
	if entry == nil {
		lock = newLock(timeout, s.sourceID, lockID, version)
	} else {
		lock = entry.lock(timeout, s.sourceID, lockID)
	}
	if err := s.region.Put(ctx, key, lock); err != nil {
		return nil, err
	}

	handle := *lock
	return &handle, nil
}

func (s *readWrite) UnlockItem(ctx context.Context, key any, soft region.SoftLock) error {
	s.region.WriteLock(key)
	defer s.region.WriteUnlock(key)

	entry, err := s.entry(ctx, key)
	if err != nil {
		return err
	}
	if entry != nil && entry.isUnlockable(soft) {
		return s.decrementLock(ctx, key, entry.(*Lock))
	}
	return s.handleLockExpiry(ctx, key, entry)
}

func (s *readWrite) decrementLock(ctx context.Context, key any, lock *Lock) error {
	return s.region.Put(ctx, key, lock.unlock(s.region.NextTimestamp()))
}

// handleLockExpiry replaces whatever is cached under key with an unlocked
// Lock, so that no load started before now can repopulate the entry until the
// lock timeout has passed.
func (s *readWrite) handleLockExpiry(ctx context.Context, key any, entry lockable) error {
	log.Warn().
		Str("region", s.region.Name()).
		Str("key", region.KeyString(key)).
		Bool("present", entry != nil).
		Msg("cache entry lock expired, data may be stale until the lock times out")

	ts := s.region.NextTimestamp() + s.region.Timeout()
	lock := newLock(ts, s.sourceID, s.nextLockID.Add(1), nil)
	return s.region.Put(ctx, key, lock.unlock(ts))
}

func (s *readWrite) insert(context.Context, any, any, any) (bool, error) { return false, nil }

func (s *readWrite) afterInsert(ctx context.Context, key, value, version any) (bool, error) {
	s.region.WriteLock(key)
	defer s.region.WriteUnlock(key)

	entry, err := s.entry(ctx, key)
	if err != nil || entry != nil {
		return false, err
	}

	item := &Item{Value: value, Version: version, Timestamp: s.region.NextTimestamp()}
	if err := s.region.Put(ctx, key, item); err != nil {
		return false, err
	}
	return true, nil
}

func (s *readWrite) update(context.Context, any, any, any, any) (bool, error) { return false, nil }

func (s *readWrite) afterUpdate(
	ctx context.Context,
	key, value, currentVersion, _ any,
	soft region.SoftLock,
) (bool, error) {
	s.region.WriteLock(key)
	defer s.region.WriteUnlock(key)

	entry, err := s.entry(ctx, key)
	if err != nil {
		return false, err
	}
	if entry == nil || !entry.isUnlockable(soft) {
		return false, s.handleLockExpiry(ctx, key, entry)
	}

	lock := entry.(*Lock)
	if lock.Concurrent {
		// another writer still holds the entry; leave it locked for them
		return false, s.decrementLock(ctx, key, lock)
	}

	item := &Item{Value: value, Version: currentVersion, Timestamp: s.region.NextTimestamp()}
	if err := s.region.Put(ctx, key, item); err != nil {
		return false, err
	}
	return true, nil
}
