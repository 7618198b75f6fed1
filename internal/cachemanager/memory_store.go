package cachemanager

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"second-level-cache/internal/config"
)

type element struct {
	value      any
	created    time.Time
	lastAccess atomic.Int64
}

func newElement(value any) *element {
	e := &element{value: value, created: time.Now()}
	e.lastAccess.Store(e.created.UnixNano())
	return e
}

func (e *element) expired(now time.Time, ttl, tti time.Duration) bool {
	if ttl > 0 && now.Sub(e.created) > ttl {
		return true
	}
	return tti > 0 && now.Sub(time.Unix(0, e.lastAccess.Load())) > tti
}

// memoryStore keeps elements in an LRU bounded by the in-memory capacity.
// Lifetimes are checked per element on access and swept by Flush; the LRU
// runs without a time-to-live of its own, so it starts no reaper goroutine
// and settings changes never rebuild it.
type memoryStore struct {
	lru *expirable.LRU[string, *element]

	// mu guards the lifetimes
	mu  sync.RWMutex
	ttl time.Duration
	tti time.Duration
}

func newMemoryStore(cfg config.CacheConfiguration) *memoryStore {
	capacity, ttl, tti := memorySettings(cfg)
	return &memoryStore{
		lru: expirable.NewLRU[string, *element](capacity, nil, 0),
		ttl: ttl,
		tti: tti,
	}
}

func memorySettings(cfg config.CacheConfiguration) (capacity int, ttl, tti time.Duration) {
	capacity = cfg.MaxEntriesInMemory
	if cfg.Eternal {
		return capacity, 0, 0
	}
	return capacity,
		time.Duration(cfg.TimeToLiveSeconds) * time.Second,
		time.Duration(cfg.TimeToIdleSeconds) * time.Second
}

func (s *memoryStore) lifetimes() (ttl, tti time.Duration) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ttl, s.tti
}

func (s *memoryStore) get(_ context.Context, key string) (any, lookup, error) {
	e, ok := s.lru.Get(key)
	if !ok {
		return nil, lookupMiss, nil
	}

	now := time.Now()
	ttl, tti := s.lifetimes()
	if e.expired(now, ttl, tti) {
		s.lru.Remove(key)
		return nil, lookupExpired, nil
	}
	e.lastAccess.Store(now.UnixNano())

	return e.value, lookupHit, nil
}

func (s *memoryStore) put(_ context.Context, key string, value any) error {
	s.lru.Add(key, newElement(value))
	return nil
}

func (s *memoryStore) remove(_ context.Context, key string) (bool, error) {
	return s.lru.Remove(key), nil
}

func (s *memoryStore) removeAll(_ context.Context) error {
	s.lru.Purge()
	return nil
}

func (s *memoryStore) contains(_ context.Context, key string) (bool, error) {
	e, ok := s.lru.Peek(key)
	if !ok {
		return false, nil
	}
	ttl, tti := s.lifetimes()
	return !e.expired(time.Now(), ttl, tti), nil
}

func (s *memoryStore) keys(_ context.Context) ([]string, error) {
	return s.lru.Keys(), nil
}

func (s *memoryStore) sweep(_ context.Context) (int, error) {
	ttl, tti := s.lifetimes()
	if ttl <= 0 && tti <= 0 {
		return 0, nil
	}

	now := time.Now()
	swept := 0
	for _, key := range s.lru.Keys() {
		e, ok := s.lru.Peek(key)
		if ok && e.expired(now, ttl, tti) && s.lru.Remove(key) {
			swept++
		}
	}
	return swept, nil
}

// reconfigure applies new lifetimes and capacity in place. Elements keep
// their creation time, so a new time-to-live counts from when they were put.
func (s *memoryStore) reconfigure(cfg config.CacheConfiguration) {
	capacity, ttl, tti := memorySettings(cfg)

	s.mu.Lock()
	s.ttl, s.tti = ttl, tti
	s.mu.Unlock()

	s.lru.Resize(capacity)
}

func (s *memoryStore) memorySize() int64 {
	return int64(s.lru.Len())
}

func (s *memoryStore) inMemoryBytes() int64 {
	var total int64
	for _, e := range s.lru.Values() {
		total += encodedSize(e.value)
	}
	return total
}

func (s *memoryStore) remoteSize(context.Context) (int64, error) {
	return 0, nil
}

func (s *memoryStore) close() {
	s.lru.Purge()
}
