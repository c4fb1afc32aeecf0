package grpc

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc/stats"
	"google.golang.org/grpc/status"
)

// GRPCMetrics server call collectors, exported through a stats.Handler
type GRPCMetrics struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestsInFlight prometheus.Gauge
}

// NewGRPCMetrics creates the collectors under namespace
func NewGRPCMetrics(namespace string) *GRPCMetrics {
	return &GRPCMetrics{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grpc_requests_total",
			Help:      "gRPC calls by method and status code.",
		}, []string{"method", "status_code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "grpc_request_duration_seconds",
			Help:      "gRPC call latency, admission wait included.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "status_code"}),
		requestsInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "grpc_requests_in_flight",
			Help:      "gRPC calls being served.",
		}),
	}
}

// MustRegister registers every collector, panics on a duplicate
func (m *GRPCMetrics) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(m.requestsTotal, m.requestDuration, m.requestsInFlight)
}

// StatsHandler server stats handler recording every call
func (m *GRPCMetrics) StatsHandler() stats.Handler {
	return &metricsStatsHandler{metrics: m}
}

type metricsStatsHandler struct {
	metrics *GRPCMetrics
}

type metricsContextKey struct{}

type callData struct {
	start  time.Time
	method string
}

func (h *metricsStatsHandler) TagRPC(ctx context.Context, info *stats.RPCTagInfo) context.Context {
	return context.WithValue(ctx, metricsContextKey{}, &callData{start: time.Now(), method: info.FullMethodName})
}

func (h *metricsStatsHandler) HandleRPC(ctx context.Context, s stats.RPCStats) {
	data, ok := ctx.Value(metricsContextKey{}).(*callData)
	if !ok {
		return
	}

	switch s := s.(type) {
	case *stats.Begin:
		h.metrics.requestsInFlight.Inc()
	case *stats.End:
		h.metrics.requestsInFlight.Dec()
		code := status.Code(s.Error).String()
		h.metrics.requestsTotal.WithLabelValues(data.method, code).Inc()
		h.metrics.requestDuration.WithLabelValues(data.method, code).Observe(s.EndTime.Sub(data.start).Seconds())
	}
}

func (h *metricsStatsHandler) TagConn(ctx context.Context, _ *stats.ConnTagInfo) context.Context {
	return ctx
}

func (h *metricsStatsHandler) HandleConn(context.Context, stats.ConnStats) {}
