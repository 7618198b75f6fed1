package strategy

import (
	"github.com/vmihailenco/msgpack/v5"

	"second-level-cache/internal/cachemanager"
	"second-level-cache/internal/region"
)

func init() {
	cachemanager.RegisterType("l2cache.item", &Item{})
	cachemanager.RegisterType("l2cache.lock", &Lock{})
}

// lockable is an entry of a read-write region: either a cached value or a
// soft lock held while the value is being changed.
type lockable interface {
	isReadable(txTimestamp int64) bool
	isWriteable(txTimestamp int64, version any, cmp region.VersionComparator) bool
	isUnlockable(lock region.SoftLock) bool
	value() any
	lock(timeout int64, sourceID string, lockID int64) *Lock
}

// Item is a value cached by a read-write strategy.
type Item struct {
	Value     any
	Version   any
	Timestamp int64
}

type itemWire struct {
	Value     cachemanager.Nested `msgpack:"v"`
	Version   any                 `msgpack:"ver"`
	Timestamp int64               `msgpack:"ts"`
}

func (i *Item) EncodeMsgpack(enc *msgpack.Encoder) error {
	return enc.Encode(&itemWire{
		Value:     cachemanager.Nested{Value: i.Value},
		Version:   i.Version,
		Timestamp: i.Timestamp,
	})
}

func (i *Item) DecodeMsgpack(dec *msgpack.Decoder) error {
	var w itemWire
	if err := dec.Decode(&w); err != nil {
		return err
	}
	*i = Item{Value: w.Value.Value, Version: w.Version, Timestamp: w.Timestamp}
	return nil
}

func (i *Item) isReadable(txTimestamp int64) bool {
	return txTimestamp > i.Timestamp
}

func (i *Item) isWriteable(_ int64, version any, cmp region.VersionComparator) bool {
	return i.Version != nil && cmp(i.Version, version) < 0
}

func (i *Item) isUnlockable(region.SoftLock) bool { return false }

func (i *Item) value() any { return i.Value }

func (i *Item) lock(timeout int64, sourceID string, lockID int64) *Lock {
	return newLock(timeout, sourceID, lockID, i.Version)
}

// Lock is the soft lock that replaces an Item while a transaction changes it.
type Lock struct {
	SourceID        string `msgpack:"src"`
	LockID          int64  `msgpack:"id"`
	Version         any    `msgpack:"ver"`
	Timeout         int64  `msgpack:"to"`
	Concurrent      bool   `msgpack:"cc"`
	Multiplicity    int    `msgpack:"n"`
	UnlockTimestamp int64  `msgpack:"uts"`
}

func newLock(timeout int64, sourceID string, lockID int64, version any) *Lock {
	return &Lock{
		SourceID:     sourceID,
		LockID:       lockID,
		Version:      version,
		Timeout:      timeout,
		Multiplicity: 1,
	}
}

func (l *Lock) isReadable(int64) bool { return false }

func (l *Lock) isWriteable(txTimestamp int64, version any, cmp region.VersionComparator) bool {
	if txTimestamp > l.Timeout {
		// the lock outlived its holder
		return true
	}
	if l.Multiplicity > 0 {
		return false
	}
	if l.Version == nil {
		return txTimestamp > l.UnlockTimestamp
	}
	return cmp(l.Version, version) < 0
}

func (l *Lock) isUnlockable(lock region.SoftLock) bool {
	other, ok := lock.(*Lock)
	return ok && other != nil && other.SourceID == l.SourceID && other.LockID == l.LockID
}

func (l *Lock) value() any { return nil }

// lock and unlock return changed copies. The cached Lock may be read
// concurrently by the store and is never changed in place.
func (l *Lock) lock(timeout int64, _ string, _ int64) *Lock {
	next := *l
	next.Concurrent = true
	next.Multiplicity++
	next.Timeout = timeout
	return &next
}

func (l *Lock) unlock(ts int64) *Lock {
	next := *l
	next.Multiplicity--
	if next.Multiplicity == 0 {
		next.UnlockTimestamp = ts
	}
	return &next
}

func (l *Lock) isLocked() bool { return l.Multiplicity > 0 }
