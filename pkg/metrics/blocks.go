package metrics

import (
	"time"

	"github.com/marmos91/tabletd/pkg/blocks"
	"github.com/marmos91/tabletd/pkg/blocks/gc"
)

// BlockMetrics instruments the block store and the orphan-block collector.
type BlockMetrics interface {
	blocks.Metrics

	// ObserveGC records one garbage collection run.
	ObserveGC(stats *gc.Stats, dryRun bool, duration time.Duration)
}

// NewBlockMetrics creates a Prometheus-backed BlockMetrics instance for the
// named backend.
//
// Returns nil if metrics are not enabled. Wrap the store with
// blocks.Instrument only when the result is non-nil:
//
//	if m := metrics.NewBlockMetrics("s3"); m != nil {
//		store = blocks.Instrument(store, m)
//	}
func NewBlockMetrics(backend string) BlockMetrics {
	if !IsEnabled() || newPrometheusBlockMetrics == nil {
		return nil
	}
	return newPrometheusBlockMetrics(backend)
}

var newPrometheusBlockMetrics func(backend string) BlockMetrics

// RegisterBlockMetricsConstructor registers the Prometheus block metrics
// constructor.
func RegisterBlockMetricsConstructor(constructor func(backend string) BlockMetrics) {
	newPrometheusBlockMetrics = constructor
}

// ObserveGC records a GC run on m, which may be nil.
func ObserveGC(m BlockMetrics, stats *gc.Stats, dryRun bool, duration time.Duration) {
	if m != nil {
		m.ObserveGC(stats, dryRun, duration)
	}
}
