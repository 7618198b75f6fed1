package region

import (
	"context"
	"strings"

	"github.com/pkg/errors"
)

// AccessType selects the concurrency strategy guarding a region.
type AccessType int

const (
	ReadOnly AccessType = iota + 1
	ReadWrite
	NonstrictReadWrite
	Transactional
)

var ErrUnknownAccessType = errors.New("unrecognized access strategy type")

var accessTypeNames = map[AccessType]string{
	ReadOnly:           "read-only",
	ReadWrite:          "read-write",
	NonstrictReadWrite: "nonstrict-read-write",
	Transactional:      "transactional",
}

func (t AccessType) String() string {
	if name, ok := accessTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// ParseAccessType accepts the external names of the access types, ignoring
// case and surrounding space.
func ParseAccessType(s string) (AccessType, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for t, n := range accessTypeNames {
		if n == name {
			return t, nil
		}
	}
	return 0, errors.Wrapf(ErrUnknownAccessType, "%q", s)
}

// SoftLock is an opaque token returned by LockItem and LockRegion and handed
// back on unlock. nil means no lock was taken.
type SoftLock any

// AccessStrategy is the part shared by all region access strategies.
//
// txTimestamp is the timestamp the calling transaction started at, taken from
// the region factory's NextTimestamp.
type AccessStrategy interface {
	Get(ctx context.Context, key any, txTimestamp int64) (any, error)
	// PutFromLoad caches a value just read from the database. With
	// minimalPutOverride the put is skipped when key is already cached.
	PutFromLoad(ctx context.Context, key, value any, txTimestamp int64, version any, minimalPutOverride bool) (bool, error)
	LockItem(ctx context.Context, key, version any) (SoftLock, error)
	UnlockItem(ctx context.Context, key any, lock SoftLock) error
	Remove(ctx context.Context, key any) error
	RemoveAll(ctx context.Context) error
	Evict(ctx context.Context, key any) error
	EvictAll(ctx context.Context) error
	LockRegion(ctx context.Context) (SoftLock, error)
	UnlockRegion(ctx context.Context, lock SoftLock) error
}

type EntityAccessStrategy interface {
	AccessStrategy
	Region() *EntityRegion
	Insert(ctx context.Context, key, value, version any) (bool, error)
	AfterInsert(ctx context.Context, key, value, version any) (bool, error)
	Update(ctx context.Context, key, value, currentVersion, previousVersion any) (bool, error)
	AfterUpdate(ctx context.Context, key, value, currentVersion, previousVersion any, lock SoftLock) (bool, error)
}

type CollectionAccessStrategy interface {
	AccessStrategy
	Region() *CollectionRegion
}

type NaturalIDAccessStrategy interface {
	AccessStrategy
	Region() *NaturalIDRegion
	Insert(ctx context.Context, key, value any) (bool, error)
	AfterInsert(ctx context.Context, key, value any) (bool, error)
	Update(ctx context.Context, key, value any) (bool, error)
	AfterUpdate(ctx context.Context, key, value any, lock SoftLock) (bool, error)
}

// AccessStrategyFactory builds the strategy guarding a region.
type AccessStrategyFactory interface {
	CreateEntityRegionAccessStrategy(r *EntityRegion, t AccessType) (EntityAccessStrategy, error)
	CreateCollectionRegionAccessStrategy(r *CollectionRegion, t AccessType) (CollectionAccessStrategy, error)
	CreateNaturalIDRegionAccessStrategy(r *NaturalIDRegion, t AccessType) (NaturalIDAccessStrategy, error)
}
