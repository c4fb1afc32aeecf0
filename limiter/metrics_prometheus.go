package limiter

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsLabelPolicy    = "policy"
	metricsLabelAlgorithm = "algorithm"
	metricsLabelReason    = "reason"
)

// PrometheusMetrics exports admission outcomes as Prometheus metrics.
// It is itself a prometheus.Collector.
type PrometheusMetrics struct {
	Allowed  *prometheus.CounterVec
	Rejected *prometheus.CounterVec

	availableDesc      *prometheus.Desc
	callbackMu         sync.RWMutex
	availableCallbacks map[string]func() int64
}

// NewPrometheusMetrics creates a Prometheus metrics recorder
func NewPrometheusMetrics(namespace string) *PrometheusMetrics {
	return &PrometheusMetrics{
		Allowed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "allowed_total",
			Help:      "Number of admitted requests.",
		}, []string{metricsLabelPolicy, metricsLabelAlgorithm}),
		Rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejected_total",
			Help:      "Number of rejected requests.",
		}, []string{metricsLabelPolicy, metricsLabelAlgorithm, metricsLabelReason}),
		availableDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "available_permits"),
			"Permits available across live partitions.",
			[]string{metricsLabelPolicy}, nil,
		),
		availableCallbacks: make(map[string]func() int64),
	}
}

// RecordAllowed records an admitted request
func (pm *PrometheusMetrics) RecordAllowed(_ context.Context, policy, algorithm string) {
	pm.Allowed.With(prometheus.Labels{
		metricsLabelPolicy:    policy,
		metricsLabelAlgorithm: algorithm,
	}).Inc()
}

// RecordRejected records a rejected request
func (pm *PrometheusMetrics) RecordRejected(_ context.Context, policy, algorithm string, reason Reason) {
	pm.Rejected.With(prometheus.Labels{
		metricsLabelPolicy:    policy,
		metricsLabelAlgorithm: algorithm,
		metricsLabelReason:    string(reason),
	}).Inc()
}

// RegisterAvailableCallback registers the available permits callback of a policy
func (pm *PrometheusMetrics) RegisterAvailableCallback(policy string, callback func() int64) {
	pm.callbackMu.Lock()
	defer pm.callbackMu.Unlock()
	pm.availableCallbacks[policy] = callback
}

// Describe implements prometheus.Collector
func (pm *PrometheusMetrics) Describe(ch chan<- *prometheus.Desc) {
	pm.Allowed.Describe(ch)
	pm.Rejected.Describe(ch)
	ch <- pm.availableDesc
}

// Collect implements prometheus.Collector
func (pm *PrometheusMetrics) Collect(ch chan<- prometheus.Metric) {
	pm.Allowed.Collect(ch)
	pm.Rejected.Collect(ch)

	pm.callbackMu.RLock()
	defer pm.callbackMu.RUnlock()
	for policy, callback := range pm.availableCallbacks {
		ch <- prometheus.MustNewConstMetric(pm.availableDesc, prometheus.GaugeValue, float64(callback()), policy)
	}
}

// MustRegister registers the collector and panics if any error occurs
func (pm *PrometheusMetrics) MustRegister(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(pm)
}

// Unregister cancels registration of the collector
func (pm *PrometheusMetrics) Unregister(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.Unregister(pm)
}
