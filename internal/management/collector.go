package management

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "l2cache"

// Collector exports a Stats facade to Prometheus. Values are read at scrape
// time.
type Collector struct {
	stats *Stats

	hits         *prometheus.Desc
	misses       *prometheus.Desc
	puts         *prometheus.Desc
	inMemory     *prometheus.Desc
	enabled      *prometheus.Desc
	getTimeMax   *prometheus.Desc
	getTimeAvg   *prometheus.Desc
	sampleHits   *prometheus.Desc
	sampleMisses *prometheus.Desc
	samplePuts   *prometheus.Desc
}

func NewCollector(stats *Stats) *Collector {
	labels := []string{"region"}
	constLabels := prometheus.Labels{"manager": stats.manager.Name()}

	desc := func(subsystem, name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, subsystem, name), help, labels, constLabels)
	}

	return &Collector{
		stats:        stats,
		hits:         desc("region", "hits_total", "Total number of region cache hits"),
		misses:       desc("region", "misses_total", "Total number of region cache misses, expired or not found"),
		puts:         desc("region", "puts_total", "Total number of region cache puts"),
		inMemory:     desc("region", "elements_in_memory", "Number of elements held in memory"),
		enabled:      desc("region", "enabled", "Whether the region cache is enabled (1) or disabled (0)"),
		getTimeMax:   desc("region", "get_time_max_milliseconds", "Slowest get served by the region"),
		getTimeAvg:   desc("region", "get_time_avg_milliseconds", "Mean get latency of the region"),
		sampleHits:   desc("sample", "hits_per_second", "Hit rate over the last sampling interval"),
		sampleMisses: desc("sample", "misses_per_second", "Miss rate over the last sampling interval"),
		samplePuts:   desc("sample", "puts_per_second", "Put rate over the last sampling interval"),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.hits
	ch <- c.misses
	ch <- c.puts
	ch <- c.inMemory
	ch <- c.enabled
	ch <- c.getTimeMax
	ch <- c.getTimeAvg
	ch <- c.sampleHits
	ch <- c.sampleMisses
	ch <- c.samplePuts
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	samples := c.stats.RegionCacheSamples()

	for _, name := range c.stats.manager.CacheNames() {
		cache := c.stats.manager.Cache(name)
		if cache == nil {
			continue
		}
		st := cache.Statistics()

		enabled := 0.0
		if c.stats.IsRegionCacheEnabled(name) {
			enabled = 1
		}

		ch <- prometheus.MustNewConstMetric(c.hits, prometheus.CounterValue, float64(st.CacheHitCount()), name)
		ch <- prometheus.MustNewConstMetric(c.misses, prometheus.CounterValue, float64(st.CacheMissCount()), name)
		ch <- prometheus.MustNewConstMetric(c.puts, prometheus.CounterValue, float64(st.CachePutCount()), name)
		ch <- prometheus.MustNewConstMetric(c.inMemory, prometheus.GaugeValue, float64(cache.MemoryStoreSize()), name)
		ch <- prometheus.MustNewConstMetric(c.enabled, prometheus.GaugeValue, enabled, name)
		ch <- prometheus.MustNewConstMetric(c.getTimeMax, prometheus.GaugeValue, float64(c.stats.MaxGetTimeMillisFor(name)), name)
		ch <- prometheus.MustNewConstMetric(c.getTimeAvg, prometheus.GaugeValue, c.stats.AverageGetTimeMillis(name), name)

		sample := samples[name]
		ch <- prometheus.MustNewConstMetric(c.sampleHits, prometheus.GaugeValue, float64(sample[0]), name)
		ch <- prometheus.MustNewConstMetric(c.sampleMisses, prometheus.GaugeValue, float64(sample[1]), name)
		ch <- prometheus.MustNewConstMetric(c.samplePuts, prometheus.GaugeValue, float64(sample[2]), name)
	}
}
