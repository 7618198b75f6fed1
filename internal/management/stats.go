package management

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"second-level-cache/internal/cachemanager"
)

const flushLimit = 100

// Region attribute keys reported by RegionCacheAttributesFor.
const (
	AttrEnabled                = "Enabled"
	AttrLoggingEnabled         = "LoggingEnabled"
	AttrMaxTTISeconds          = "MaxTTISeconds"
	AttrMaxTTLSeconds          = "MaxTTLSeconds"
	AttrTargetMaxInMemoryCount = "TargetMaxInMemoryCount"
	AttrTargetMaxTotalCount    = "TargetMaxTotalCount"
	AttrOrphanEvictionEnabled  = "OrphanEvictionEnabled"
	AttrOrphanEvictionPeriod   = "OrphanEvictionPeriod"
)

// Stats is the monitoring facade over a cache manager. Per-region getters
// return -1 for regions the manager does not know.
type Stats struct {
	Emitter

	manager *cachemanager.Manager

	mu         sync.RWMutex
	statsSince time.Time
}

func New(m *cachemanager.Manager) *Stats {
	return &Stats{
		Emitter:    Emitter{source: m.Name()},
		manager:    m,
		statsSince: time.Now(),
	}
}

func (s *Stats) each(fn func(name string, c *cachemanager.Cache)) {
	for _, name := range s.manager.CacheNames() {
		if c := s.manager.Cache(name); c != nil {
			fn(name, c)
		}
	}
}

// FlushRegionCache sweeps expired elements out of one region.
func (s *Stats) FlushRegionCache(ctx context.Context, region string) error {
	c := s.manager.Cache(region)
	if c == nil {
		return nil
	}
	if err := c.Flush(ctx); err != nil {
		return errors.Wrapf(err, "flush %s", region)
	}
	s.emit(CacheRegionFlushed, region, nil)
	return nil
}

// FlushRegionCaches flushes every region concurrently.
func (s *Stats) FlushRegionCaches(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(flushLimit)

	s.each(func(name string, c *cachemanager.Cache) {
		g.Go(func() error {
			if err := c.Flush(ctx); err != nil {
				return errors.Wrapf(err, "flush %s", name)
			}
			return nil
		})
	})

	if err := g.Wait(); err != nil {
		return err
	}
	s.emit(CacheFlushed, "", nil)
	return nil
}

func (s *Stats) GenerateActiveConfigDeclaration() (string, error) {
	return s.manager.ActiveConfigurationText()
}

func (s *Stats) GenerateActiveConfigDeclarationFor(region string) (string, error) {
	return s.manager.ActiveConfigurationTextFor(region)
}

func (s *Stats) OriginalConfigDeclaration() (string, error) {
	return s.manager.OriginalConfigurationText()
}

func (s *Stats) OriginalConfigDeclarationFor(region string) (string, error) {
	return s.manager.OriginalConfigurationTextFor(region)
}

func (s *Stats) sum(fn func(st *cachemanager.Statistics) int64) int64 {
	var total int64
	s.each(func(_ string, c *cachemanager.Cache) {
		total += fn(c.Statistics())
	})
	return total
}

// perSecond divides count by the seconds elapsed since the statistics were
// started or last cleared.
func (s *Stats) perSecond(count int64) float64 {
	s.mu.RLock()
	elapsed := time.Since(s.statsSince).Seconds()
	s.mu.RUnlock()

	if elapsed <= 0 {
		return 0
	}
	return float64(count) / elapsed
}

func (s *Stats) CacheHitCount() int64 {
	return s.sum((*cachemanager.Statistics).CacheHitCount)
}

func (s *Stats) CacheHitRate() float64 { return s.perSecond(s.CacheHitCount()) }

// CacheHitSample is the hit rate of the last sampling interval over all
// regions.
func (s *Stats) CacheHitSample() int64 {
	return s.sum(func(st *cachemanager.Statistics) int64 { return st.Samples().Hits })
}

func (s *Stats) CacheMissCount() int64 {
	return s.sum((*cachemanager.Statistics).CacheMissCount)
}

func (s *Stats) CacheMissRate() float64 { return s.perSecond(s.CacheMissCount()) }

func (s *Stats) CacheMissSample() int64 {
	return s.sum(func(st *cachemanager.Statistics) int64 {
		samples := st.Samples()
		return samples.MissesExpired + samples.MissesNotFound
	})
}

func (s *Stats) CachePutCount() int64 {
	return s.sum((*cachemanager.Statistics).CachePutCount)
}

func (s *Stats) CachePutRate() float64 { return s.perSecond(s.CachePutCount()) }

func (s *Stats) CachePutSample() int64 {
	return s.sum(func(st *cachemanager.Statistics) int64 { return st.Samples().Puts })
}

// RegionCacheSamples maps each region to its last hit, miss and put rates.
func (s *Stats) RegionCacheSamples() map[string][3]int64 {
	out := make(map[string][3]int64)
	s.each(func(name string, c *cachemanager.Cache) {
		samples := c.Statistics().Samples()
		out[name] = [3]int64{samples.Hits, samples.MissesExpired + samples.MissesNotFound, samples.Puts}
	})
	return out
}

func (s *Stats) RegionCacheAttributes() map[string]map[string]any {
	out := make(map[string]map[string]any)
	for _, name := range s.manager.CacheNames() {
		out[name] = s.RegionCacheAttributesFor(name)
	}
	return out
}

func (s *Stats) RegionCacheAttributesFor(region string) map[string]any {
	return map[string]any{
		AttrEnabled:                s.IsRegionCacheEnabled(region),
		AttrLoggingEnabled:         s.IsRegionCacheLoggingEnabled(region),
		AttrMaxTTISeconds:          s.RegionCacheMaxTTISeconds(region),
		AttrMaxTTLSeconds:          s.RegionCacheMaxTTLSeconds(region),
		AttrTargetMaxInMemoryCount: s.RegionCacheTargetMaxInMemoryCount(region),
		AttrTargetMaxTotalCount:    s.RegionCacheTargetMaxTotalCount(region),
		AttrOrphanEvictionEnabled:  s.IsRegionCacheOrphanEvictionEnabled(region),
		AttrOrphanEvictionPeriod:   s.RegionCacheOrphanEvictionPeriod(region),
	}
}

func (s *Stats) RegionCacheMaxTTISeconds(region string) int64 {
	c := s.manager.Cache(region)
	if c == nil {
		return -1
	}
	return c.Configuration().TimeToIdleSeconds
}

func (s *Stats) RegionCacheMaxTTLSeconds(region string) int64 {
	c := s.manager.Cache(region)
	if c == nil {
		return -1
	}
	return c.Configuration().TimeToLiveSeconds
}

func (s *Stats) RegionCacheTargetMaxInMemoryCount(region string) int {
	c := s.manager.Cache(region)
	if c == nil {
		return -1
	}
	return c.Configuration().MaxEntriesInMemory
}

func (s *Stats) RegionCacheTargetMaxTotalCount(region string) int {
	c := s.manager.Cache(region)
	if c == nil {
		return -1
	}
	return c.Configuration().MaxEntriesTotal
}

// RegionCacheOrphanEvictionPeriod is -1 for unknown and unclustered regions.
func (s *Stats) RegionCacheOrphanEvictionPeriod(region string) int {
	c := s.manager.Cache(region)
	if c == nil {
		return -1
	}
	cfg := c.Configuration()
	if !cfg.IsClustered() {
		return -1
	}
	return cfg.Clustered.OrphanEvictionPeriod
}

func (s *Stats) IsRegionCacheOrphanEvictionEnabled(region string) bool {
	c := s.manager.Cache(region)
	if c == nil {
		return false
	}
	cfg := c.Configuration()
	return cfg.IsClustered() && cfg.Clustered.OrphanEviction
}

func (s *Stats) IsRegionCacheLoggingEnabled(region string) bool {
	c := s.manager.Cache(region)
	return c != nil && c.Configuration().Logging
}

// ClusteredRegionNames lists the regions stored in the cluster tier.
func (s *Stats) ClusteredRegionNames() []string {
	var names []string
	s.each(func(name string, c *cachemanager.Cache) {
		if c.IsClustered() {
			names = append(names, name)
		}
	})
	return names
}

func (s *Stats) IsClusteredRegion(region string) bool {
	c := s.manager.Cache(region)
	return c != nil && c.IsClustered()
}

func (s *Stats) IsRegionCacheEnabled(region string) bool {
	c := s.manager.Cache(region)
	return c != nil && !c.IsDisabled()
}

// SetRegionCacheEnabled toggles one region. A notification is sent even for
// unknown regions.
func (s *Stats) SetRegionCacheEnabled(region string, enabled bool) {
	if c := s.manager.Cache(region); c != nil {
		c.SetDisabled(!enabled)
	}
	s.regionChanged(region)
}

// IsRegionCachesEnabled reports whether no region is disabled.
func (s *Stats) IsRegionCachesEnabled() bool {
	enabled := true
	s.each(func(_ string, c *cachemanager.Cache) {
		if c.IsDisabled() {
			enabled = false
		}
	})
	return enabled
}

func (s *Stats) SetRegionCachesEnabled(enabled bool) {
	s.each(func(_ string, c *cachemanager.Cache) {
		c.SetDisabled(!enabled)
	})
	s.emit(CacheEnabled, "", enabled)
}

func (s *Stats) SetRegionCacheLoggingEnabled(region string, enabled bool) {
	s.update(region, func(c *cachemanager.Cache) { c.SetLogging(enabled) })
}

func (s *Stats) SetRegionCacheMaxTTISeconds(region string, seconds int64) {
	s.update(region, func(c *cachemanager.Cache) { c.SetTimeToIdleSeconds(seconds) })
}

func (s *Stats) SetRegionCacheMaxTTLSeconds(region string, seconds int64) {
	s.update(region, func(c *cachemanager.Cache) { c.SetTimeToLiveSeconds(seconds) })
}

func (s *Stats) SetRegionCacheTargetMaxInMemoryCount(region string, n int) {
	s.update(region, func(c *cachemanager.Cache) { c.SetMaxEntriesInMemory(n) })
}

func (s *Stats) SetRegionCacheTargetMaxTotalCount(region string, n int) {
	s.update(region, func(c *cachemanager.Cache) { c.SetMaxEntriesTotal(n) })
}

// update applies fn to a known region and announces the change.
func (s *Stats) update(region string, fn func(c *cachemanager.Cache)) {
	c := s.manager.Cache(region)
	if c == nil {
		return
	}
	fn(c)
	s.regionChanged(region)
}

func (s *Stats) regionChanged(region string) {
	s.emit(CacheRegionChanged, region, s.RegionCacheAttributesFor(region))
}

func (s *Stats) NumberOfElementsInMemory(region string) int64 {
	c := s.manager.Cache(region)
	if c == nil {
		return -1
	}
	return c.MemoryStoreSize()
}

func (s *Stats) NumberOfElementsOffHeap(region string) int64 {
	c := s.manager.Cache(region)
	if c == nil {
		return -1
	}
	return c.OffHeapStoreSize()
}

// NumberOfElementsOnDisk counts the elements a region keeps in the cluster
// tier.
func (s *Stats) NumberOfElementsOnDisk(ctx context.Context, region string) (int64, error) {
	c := s.manager.Cache(region)
	if c == nil {
		return -1, nil
	}
	return c.DiskStoreSize(ctx)
}

// MaxGetTimeMillis is the slowest get over all regions.
func (s *Stats) MaxGetTimeMillis() int64 {
	var out int64
	for _, name := range s.manager.CacheNames() {
		out = max(out, s.MaxGetTimeMillisFor(name))
	}
	return out
}

// MinGetTimeMillis is the fastest get over the regions that served at least
// one get, 0 when none did.
func (s *Stats) MinGetTimeMillis() int64 {
	out := int64(-1)
	s.each(func(name string, c *cachemanager.Cache) {
		if c.Statistics().CacheGetCount() == 0 {
			return
		}
		if v := s.MinGetTimeMillisFor(name); out < 0 || v < out {
			out = v
		}
	})
	return max(out, 0)
}

func (s *Stats) MaxGetTimeMillisFor(region string) int64 {
	c := s.manager.Cache(region)
	if c == nil {
		return 0
	}
	_, maximum, _ := c.Statistics().GetLatency()
	return maximum.Milliseconds()
}

func (s *Stats) MinGetTimeMillisFor(region string) int64 {
	c := s.manager.Cache(region)
	if c == nil {
		return 0
	}
	minimum, _, _ := c.Statistics().GetLatency()
	return minimum.Milliseconds()
}

// AverageGetTimeMillis is the mean get latency of a region in milliseconds.
func (s *Stats) AverageGetTimeMillis(region string) float64 {
	c := s.manager.Cache(region)
	if c == nil {
		return -1
	}
	_, _, mean := c.Statistics().GetLatency()
	return float64(mean) / float64(time.Millisecond)
}

// ClearStats zeroes every region's counters and restarts the rate window.
func (s *Stats) ClearStats() {
	s.each(func(_ string, c *cachemanager.Cache) {
		c.Statistics().Clear()
	})

	s.mu.Lock()
	s.statsSince = time.Now()
	s.mu.Unlock()

	log.Debug().Str("manager", s.manager.Name()).Msg("cache statistics cleared")
	s.emit(CacheStatisticsReset, "", nil)
}
