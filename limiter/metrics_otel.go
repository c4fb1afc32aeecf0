package limiter

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelMetrics exports admission outcomes through OpenTelemetry instruments
type OTelMetrics struct {
	config     MetricsConfig
	meter      metric.Meter
	registered bool
	mu         sync.RWMutex

	requestsTotal metric.Int64Counter
	allowedTotal  metric.Int64Counter
	rejectedTotal metric.Int64Counter
	available     metric.Int64ObservableGauge

	// gauge callbacks per policy
	availableCallbacks map[string]func() int64
	callbackMu         sync.RWMutex
}

// NewOTelMetrics creates an OTel metrics recorder
func NewOTelMetrics(cfg MetricsConfig) *OTelMetrics {
	return &OTelMetrics{
		config:             cfg,
		availableCallbacks: make(map[string]func() int64),
	}
}

// MetricsName returns the metrics group name
func (m *OTelMetrics) MetricsName() string {
	return "admission"
}

// IsMetricsEnabled returns whether metrics collection is enabled
func (m *OTelMetrics) IsMetricsEnabled() bool {
	return m.config.Enabled
}

// RegisterMetrics registers all instruments with the provided Meter
func (m *OTelMetrics) RegisterMetrics(meter metric.Meter) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.registered {
		return nil
	}

	m.meter = meter
	var err error

	m.requestsTotal, err = meter.Int64Counter(
		"admission_requests_total",
		metric.WithDescription("Total number of admission decisions"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return err
	}

	m.allowedTotal, err = meter.Int64Counter(
		"admission_allowed_total",
		metric.WithDescription("Total number of admitted requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return err
	}

	m.rejectedTotal, err = meter.Int64Counter(
		"admission_rejected_total",
		metric.WithDescription("Total number of rejected requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return err
	}

	if m.config.RecordAvailable {
		m.available, err = meter.Int64ObservableGauge(
			"admission_available_permits",
			metric.WithDescription("Permits available across live partitions"),
			metric.WithUnit("{permit}"),
			metric.WithInt64Callback(m.collectAvailable),
		)
		if err != nil {
			return err
		}
	}

	m.registered = true
	return nil
}

// collectAvailable is the callback for the observable gauge
func (m *OTelMetrics) collectAvailable(_ context.Context, observer metric.Int64Observer) error {
	m.callbackMu.RLock()
	defer m.callbackMu.RUnlock()

	for policy, callback := range m.availableCallbacks {
		observer.Observe(callback(),
			metric.WithAttributes(attribute.String("policy", policy)),
		)
	}
	return nil
}

// RegisterAvailableCallback registers the available permits callback of a policy
func (m *OTelMetrics) RegisterAvailableCallback(policy string, callback func() int64) {
	m.callbackMu.Lock()
	defer m.callbackMu.Unlock()
	m.availableCallbacks[policy] = callback
}

// UnregisterAvailableCallback removes a policy callback
func (m *OTelMetrics) UnregisterAvailableCallback(policy string) {
	m.callbackMu.Lock()
	defer m.callbackMu.Unlock()
	delete(m.availableCallbacks, policy)
}

// RecordAllowed records an admitted request
func (m *OTelMetrics) RecordAllowed(ctx context.Context, policy, algorithm string) {
	if !m.IsRegistered() {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("policy", policy),
		attribute.String("algorithm", algorithm),
	)
	m.requestsTotal.Add(ctx, 1, attrs)
	m.allowedTotal.Add(ctx, 1, attrs)
}

// RecordRejected records a rejected request
func (m *OTelMetrics) RecordRejected(ctx context.Context, policy, algorithm string, reason Reason) {
	if !m.IsRegistered() {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("policy", policy),
		attribute.String("algorithm", algorithm),
		attribute.String("reason", string(reason)),
	)
	m.requestsTotal.Add(ctx, 1, attrs)
	m.rejectedTotal.Add(ctx, 1, attrs)
}

// IsRegistered returns whether metrics have been registered
func (m *OTelMetrics) IsRegistered() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.registered
}
