package prometheus

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/tabletd/pkg/checkpoint"
	"github.com/marmos91/tabletd/pkg/lifecycle"
	"github.com/marmos91/tabletd/pkg/metrics"
	"github.com/marmos91/tabletd/pkg/tablet"
)

func init() {
	metrics.RegisterLifecycleMetricsConstructor(func() lifecycle.Metrics { return NewLifecycleMetrics() })
}

// lifecycleMetrics is the Prometheus implementation of lifecycle.Metrics.
type lifecycleMetrics struct {
	transitionsTotal   *prometheus.CounterVec
	transitionDuration *prometheus.HistogramVec
	stepsTotal         *prometheus.CounterVec
	stepDuration       *prometheus.HistogramVec
	busyTotal          *prometheus.CounterVec
}

// NewLifecycleMetrics creates a new Prometheus-backed lifecycle.Metrics.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewLifecycleMetrics() *lifecycleMetrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &lifecycleMetrics{
		transitionsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "tabletd_lifecycle_transitions_total",
				Help: "Total number of DeleteTablet and Resume calls by target state and outcome",
			},
			[]string{"target", "outcome"},
		),
		transitionDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "tabletd_lifecycle_transition_duration_milliseconds",
				Help: "Duration of lifecycle transitions in milliseconds",
				Buckets: []float64{
					1,     // 1ms - no-op requests
					10,    // 10ms - small local tablets
					50,    // 50ms
					100,   // 100ms
					500,   // 500ms - many blocks
					1000,  // 1s
					5000,  // 5s - remote block stores
					30000, // 30s
				},
			},
			[]string{"target"},
		),
		stepsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "tabletd_lifecycle_steps_total",
				Help: "Total number of transition steps by checkpoint and whether they removed anything",
			},
			[]string{"checkpoint", "removed"},
		),
		stepDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tabletd_lifecycle_step_duration_milliseconds",
				Help:    "Duration of individual transition steps in milliseconds",
				Buckets: []float64{0.1, 1, 5, 10, 50, 100, 500, 1000, 5000},
			},
			[]string{"checkpoint"},
		),
		busyTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "tabletd_lifecycle_busy_rejections_total",
				Help: "Total number of requests rejected because the tablet lock was held",
			},
			[]string{"operation"},
		),
	}
}

func (m *lifecycleMetrics) ObserveTransition(target tablet.DataState, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(target.String(), outcome).Inc()
	m.transitionDuration.WithLabelValues(target.String()).Observe(duration.Seconds() * 1000)
}

func (m *lifecycleMetrics) ObserveStep(cp checkpoint.Checkpoint, removed bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.stepsTotal.WithLabelValues(cp.String(), strconv.FormatBool(removed)).Inc()
	m.stepDuration.WithLabelValues(cp.String()).Observe(duration.Seconds() * 1000)
}

func (m *lifecycleMetrics) RecordBusy(operation string) {
	if m == nil {
		return
	}
	m.busyTotal.WithLabelValues(operation).Inc()
}
