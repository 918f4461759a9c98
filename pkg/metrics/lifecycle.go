package metrics

import "github.com/marmos91/tabletd/pkg/lifecycle"

// NewLifecycleMetrics creates a Prometheus-backed lifecycle.Metrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called). When nil
// is returned, pass nil to lifecycle.Options, which results in zero overhead.
//
// Example usage:
//
//	metrics.InitRegistry()
//	ctrl, err := lifecycle.New(lifecycle.Options{
//		// ...
//		Metrics: metrics.NewLifecycleMetrics(),
//	})
func NewLifecycleMetrics() lifecycle.Metrics {
	if !IsEnabled() || newPrometheusLifecycleMetrics == nil {
		return nil
	}
	return newPrometheusLifecycleMetrics()
}

// newPrometheusLifecycleMetrics is implemented in pkg/metrics/prometheus/lifecycle.go
var newPrometheusLifecycleMetrics func() lifecycle.Metrics

// RegisterLifecycleMetricsConstructor registers the Prometheus lifecycle
// metrics constructor. Called by pkg/metrics/prometheus during package
// initialization.
func RegisterLifecycleMetricsConstructor(constructor func() lifecycle.Metrics) {
	newPrometheusLifecycleMetrics = constructor
}
