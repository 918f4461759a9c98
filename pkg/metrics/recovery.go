package metrics

import "github.com/marmos91/tabletd/pkg/recovery"

// NewRecoveryMetrics creates a Prometheus-backed recovery.Metrics instance,
// or nil when metrics are disabled.
func NewRecoveryMetrics() recovery.Metrics {
	if !IsEnabled() || newPrometheusRecoveryMetrics == nil {
		return nil
	}
	return newPrometheusRecoveryMetrics()
}

var newPrometheusRecoveryMetrics func() recovery.Metrics

// RegisterRecoveryMetricsConstructor registers the Prometheus recovery
// metrics constructor.
func RegisterRecoveryMetricsConstructor(constructor func() recovery.Metrics) {
	newPrometheusRecoveryMetrics = constructor
}
