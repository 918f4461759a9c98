package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/tabletd/pkg/metrics"
	"github.com/marmos91/tabletd/pkg/recovery"
)

func init() {
	metrics.RegisterRecoveryMetricsConstructor(func() recovery.Metrics { return NewRecoveryMetrics() })
}

// recoveryMetrics is the Prometheus implementation of recovery.Metrics.
type recoveryMetrics struct {
	tablets  *prometheus.GaugeVec
	duration prometheus.Gauge
	runs     prometheus.Counter
}

// NewRecoveryMetrics creates a new Prometheus-backed recovery.Metrics.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewRecoveryMetrics() *recoveryMetrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &recoveryMetrics{
		tablets: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tabletd_recovery_tablets",
				Help: "Tablets handled by the last startup recovery, by result",
			},
			[]string{"result"}, // scanned, resumed, purged, violation, failed
		),
		duration: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "tabletd_recovery_duration_seconds",
				Help: "Duration of the last startup recovery in seconds",
			},
		),
		runs: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "tabletd_recovery_runs_total",
				Help: "Total number of completed recovery passes",
			},
		),
	}
}

func (m *recoveryMetrics) ObserveRecovery(stats *recovery.Stats, duration time.Duration) {
	if m == nil || stats == nil {
		return
	}
	m.tablets.WithLabelValues("scanned").Set(float64(stats.Scanned))
	m.tablets.WithLabelValues("resumed").Set(float64(stats.Resumed))
	m.tablets.WithLabelValues("purged").Set(float64(stats.Purged))
	m.tablets.WithLabelValues("violation").Set(float64(len(stats.Violations)))
	m.tablets.WithLabelValues("failed").Set(float64(len(stats.Failures)))
	m.duration.Set(duration.Seconds())
	m.runs.Inc()
}
