package component

import (
	"go.opentelemetry.io/otel/metric"
)

// MetricsProvider defines the interface for components that provide metrics.
// Components can optionally implement this interface to register their metrics
// with the application's meter provider.
//
// Example implementation:
//
//	func (m *OTelMetrics) MetricsName() string {
//	    return "admission"
//	}
//
//	func (m *OTelMetrics) RegisterMetrics(meter metric.Meter) error {
//	    counter, err := meter.Int64Counter("admission_requests_total")
//	    if err != nil {
//	        return err
//	    }
//	    m.requestsTotal = counter
//	    return nil
//	}
//
//	func (m *OTelMetrics) IsMetricsEnabled() bool {
//	    return m.config.Enabled
//	}
type MetricsProvider interface {
	// MetricsName returns the metrics group name (used for Meter naming).
	// Should be a short, lowercase identifier like "admission".
	MetricsName() string

	// RegisterMetrics registers all metrics for this component.
	// Called once after component Init.
	RegisterMetrics(meter metric.Meter) error

	// IsMetricsEnabled returns whether metrics collection is enabled for this component.
	IsMetricsEnabled() bool
}
