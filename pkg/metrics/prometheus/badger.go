package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"

	badgerstore "github.com/marmos91/tabletd/pkg/blocks/store/badger"
	"github.com/marmos91/tabletd/pkg/metrics"
)

// badgerCollector exports a Badger block store's cache counters. Badger
// keeps the counters itself, so they are read at scrape time.
type badgerCollector struct {
	stats func() badgerstore.CacheStats

	hitRatio *prometheus.Desc
	hits     *prometheus.Desc
	misses   *prometheus.Desc
}

// RegisterBadgerCollector exports the cache counters of a Badger block store.
// stats is typically (*badger.Store).CacheStats.
//
// Does nothing if metrics are not enabled (InitRegistry not called).
func RegisterBadgerCollector(stats func() badgerstore.CacheStats) error {
	if !metrics.IsEnabled() || stats == nil {
		return nil
	}
	return metrics.GetRegistry().Register(newBadgerCollector(stats))
}

func newBadgerCollector(stats func() badgerstore.CacheStats) *badgerCollector {
	return &badgerCollector{
		stats: stats,
		hitRatio: prometheus.NewDesc(
			"tabletd_badger_cache_hit_ratio",
			"BadgerDB cache hit ratio (0.0 to 1.0) by cache type",
			[]string{"cache_type"}, nil, // "block", "index"
		),
		hits: prometheus.NewDesc(
			"tabletd_badger_cache_hits_total",
			"Total number of BadgerDB cache hits by cache type",
			[]string{"cache_type"}, nil,
		),
		misses: prometheus.NewDesc(
			"tabletd_badger_cache_misses_total",
			"Total number of BadgerDB cache misses by cache type",
			[]string{"cache_type"}, nil,
		),
	}
}

func (c *badgerCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.hitRatio
	ch <- c.hits
	ch <- c.misses
}

func (c *badgerCollector) Collect(ch chan<- prometheus.Metric) {
	st := c.stats()
	c.collectCache(ch, "block", st.BlockHits, st.BlockMisses)
	c.collectCache(ch, "index", st.IndexHits, st.IndexMisses)
}

func (c *badgerCollector) collectCache(ch chan<- prometheus.Metric, cacheType string, hits, misses uint64) {
	ratio := 0.0
	if total := hits + misses; total > 0 {
		ratio = float64(hits) / float64(total)
	}
	ch <- prometheus.MustNewConstMetric(c.hitRatio, prometheus.GaugeValue, ratio, cacheType)
	ch <- prometheus.MustNewConstMetric(c.hits, prometheus.CounterValue, float64(hits), cacheType)
	ch <- prometheus.MustNewConstMetric(c.misses, prometheus.CounterValue, float64(misses), cacheType)
}
