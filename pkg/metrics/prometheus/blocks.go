package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/tabletd/pkg/blocks/gc"
	"github.com/marmos91/tabletd/pkg/metrics"
)

func init() {
	metrics.RegisterBlockMetricsConstructor(func(backend string) metrics.BlockMetrics {
		return NewBlockMetrics(backend)
	})
}

// blockMetrics is the Prometheus implementation of metrics.BlockMetrics.
type blockMetrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	bytesTransferred  *prometheus.CounterVec
	blocksDeleted     prometheus.Counter
	gcRuns            *prometheus.CounterVec
	gcOrphans         prometheus.Counter
	gcDuration        prometheus.Histogram
}

// NewBlockMetrics creates a new Prometheus-backed BlockMetrics for one
// backend (memory, fs, badger, s3).
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewBlockMetrics(backend string) *blockMetrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()
	labels := prometheus.Labels{"backend": backend}

	return &blockMetrics{
		operationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name:        "tabletd_blocks_operations_total",
				Help:        "Total number of block store operations by operation type and status",
				ConstLabels: labels,
			},
			[]string{"operation", "status"},
		),
		operationDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "tabletd_blocks_operation_duration_milliseconds",
				Help:        "Duration of block store operations in milliseconds",
				ConstLabels: labels,
				Buckets: []float64{
					0.1,   // in-memory
					1,     // local disk
					10,    // 10ms - fast object store calls
					50,    // 50ms
					100,   // 100ms
					500,   // 500ms - prefix deletes of large tablets
					1000,  // 1s
					10000, // 10s
				},
			},
			[]string{"operation"},
		),
		bytesTransferred: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name:        "tabletd_blocks_bytes_transferred_total",
				Help:        "Total bytes read from or written to the block store",
				ConstLabels: labels,
			},
			[]string{"direction"},
		),
		blocksDeleted: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name:        "tabletd_blocks_deleted_total",
				Help:        "Total number of blocks deleted",
				ConstLabels: labels,
			},
		),
		gcRuns: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name:        "tabletd_blocks_gc_runs_total",
				Help:        "Total number of orphan-block collection runs",
				ConstLabels: labels,
			},
			[]string{"mode"}, // "delete", "dry_run"
		),
		gcOrphans: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name:        "tabletd_blocks_gc_orphans_total",
				Help:        "Total number of orphan blocks found by garbage collection",
				ConstLabels: labels,
			},
		),
		gcDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name:        "tabletd_blocks_gc_duration_seconds",
				Help:        "Duration of orphan-block collection runs in seconds",
				ConstLabels: labels,
				Buckets:     prometheus.DefBuckets,
			},
		),
	}
}

func (m *blockMetrics) ObserveOperation(operation string, duration time.Duration, err error) {
	if m == nil {
		return
	}

	status := "success"
	if err != nil {
		status = "error"
	}

	m.operationsTotal.WithLabelValues(operation, status).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds() * 1000)
}

func (m *blockMetrics) RecordBytes(operation string, bytes int64) {
	if m == nil || bytes <= 0 {
		return
	}

	direction := "write"
	if operation == "read" {
		direction = "read"
	}
	m.bytesTransferred.WithLabelValues(direction).Add(float64(bytes))
}

func (m *blockMetrics) RecordDeleted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.blocksDeleted.Add(float64(n))
}

func (m *blockMetrics) ObserveGC(stats *gc.Stats, dryRun bool, duration time.Duration) {
	if m == nil || stats == nil {
		return
	}
	mode := "delete"
	if dryRun {
		mode = "dry_run"
	}
	m.gcRuns.WithLabelValues(mode).Inc()
	m.gcOrphans.Add(float64(stats.OrphanBlocks))
	m.gcDuration.Observe(duration.Seconds())
}
