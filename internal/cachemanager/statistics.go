package cachemanager

import (
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// Statistics holds the live counters of a single cache.
type Statistics struct {
	hits           atomic.Int64
	missesNotFound atomic.Int64
	missesExpired  atomic.Int64
	puts           atomic.Int64
	removals       atomic.Int64

	gets          atomic.Int64
	getTotalNanos atomic.Int64
	getMinNanos   atomic.Int64
	getMaxNanos   atomic.Int64

	mu      sync.Mutex
	last    counters
	samples Samples
}

// Samples are per-second rates measured over the last sampling interval.
type Samples struct {
	Hits           int64
	MissesNotFound int64
	MissesExpired  int64
	Puts           int64
	Gets           int64
}

type counters struct {
	hits, missesNotFound, missesExpired, puts, gets int64
}

func newStatistics() *Statistics {
	s := &Statistics{}
	s.getMinNanos.Store(math.MaxInt64)
	return s
}

func (s *Statistics) CacheHitCount() int64 { return s.hits.Load() }

func (s *Statistics) CacheMissCount() int64 {
	return s.missesNotFound.Load() + s.missesExpired.Load()
}

func (s *Statistics) CacheMissExpiredCount() int64  { return s.missesExpired.Load() }
func (s *Statistics) CacheMissNotFoundCount() int64 { return s.missesNotFound.Load() }
func (s *Statistics) CachePutCount() int64          { return s.puts.Load() }
func (s *Statistics) CacheRemoveCount() int64       { return s.removals.Load() }
func (s *Statistics) CacheGetCount() int64          { return s.gets.Load() }

// GetLatency reports the min, max and mean get latency. All zero until the
// first get.
func (s *Statistics) GetLatency() (minimum, maximum, mean time.Duration) {
	gets := s.gets.Load()
	if gets == 0 {
		return 0, 0, 0
	}
	return time.Duration(s.getMinNanos.Load()),
		time.Duration(s.getMaxNanos.Load()),
		time.Duration(s.getTotalNanos.Load() / gets)
}

// Samples returns the rates recorded by the last sampler tick.
func (s *Statistics) Samples() Samples {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.samples
}

// Clear resets every counter and sample.
func (s *Statistics) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.hits.Store(0)
	s.missesNotFound.Store(0)
	s.missesExpired.Store(0)
	s.puts.Store(0)
	s.removals.Store(0)
	s.gets.Store(0)
	s.getTotalNanos.Store(0)
	s.getMinNanos.Store(math.MaxInt64)
	s.getMaxNanos.Store(0)
	s.last = counters{}
	s.samples = Samples{}
}

func (s *Statistics) recordGet(d time.Duration, result lookup) {
	switch result {
	case lookupHit:
		s.hits.Add(1)
	case lookupExpired:
		s.missesExpired.Add(1)
	default:
		s.missesNotFound.Add(1)
	}

	nanos := d.Nanoseconds()
	s.gets.Add(1)
	s.getTotalNanos.Add(nanos)
	for cur := s.getMinNanos.Load(); nanos < cur; cur = s.getMinNanos.Load() {
		if s.getMinNanos.CompareAndSwap(cur, nanos) {
			break
		}
	}
	for cur := s.getMaxNanos.Load(); nanos > cur; cur = s.getMaxNanos.Load() {
		if s.getMaxNanos.CompareAndSwap(cur, nanos) {
			break
		}
	}
}

func (s *Statistics) recordPut()    { s.puts.Add(1) }
func (s *Statistics) recordRemove() { s.removals.Add(1) }

// sample turns the counter deltas since the previous call into per-second rates.
func (s *Statistics) sample(interval time.Duration) {
	now := counters{
		hits:           s.hits.Load(),
		missesNotFound: s.missesNotFound.Load(),
		missesExpired:  s.missesExpired.Load(),
		puts:           s.puts.Load(),
		gets:           s.gets.Load(),
	}

	seconds := interval.Seconds()
	if seconds <= 0 {
		seconds = 1
	}
	rate := func(cur, prev int64) int64 {
		return int64(math.Round(float64(cur-prev) / seconds))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.samples = Samples{
		Hits:           rate(now.hits, s.last.hits),
		MissesNotFound: rate(now.missesNotFound, s.last.missesNotFound),
		MissesExpired:  rate(now.missesExpired, s.last.missesExpired),
		Puts:           rate(now.puts, s.last.puts),
		Gets:           rate(now.gets, s.last.gets),
	}
	s.last = now
}
