package limiter

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// MetricsSnapshot per-policy metrics snapshot
type MetricsSnapshot struct {
	Policy        string
	Algorithm     string
	TotalRequests int64
	Allowed       int64
	Rejected      int64
	RejectedBy    map[Reason]int64
	RejectRate    float64
	Partitions    int
	Available     int64 // summed over live partitions
	QueuedPermits int64 // summed over live partitions
	LastResetAt   time.Time
}

// MetricsCollector in-process counters of one policy
type MetricsCollector interface {
	// RecordAllowed records a granted admission
	RecordAllowed()

	// RecordRejected records a denied admission
	RecordRejected(reason Reason)

	// GetSnapshot returns a metrics snapshot
	GetSnapshot() *MetricsSnapshot

	// Reset resets the counters
	Reset()
}

// MetricsRecorder exports admission outcomes to an external metrics system
type MetricsRecorder interface {
	RecordAllowed(ctx context.Context, policy, algorithm string)
	RecordRejected(ctx context.Context, policy, algorithm string, reason Reason)
}

// AvailabilityObserver recorders that can export available permits as a gauge
type AvailabilityObserver interface {
	RegisterAvailableCallback(policy string, callback func() int64)
}

// metricsCollector atomic counters
type metricsCollector struct {
	policy        string
	algorithm     string
	clock         Clock
	totalRequests atomic.Int64
	allowed       atomic.Int64
	rejected      atomic.Int64

	mu          sync.RWMutex
	byReason    map[Reason]int64
	lastResetAt time.Time
}

// NewMetricsCollector creates a metrics collector
func NewMetricsCollector(policy, algorithm string, clock Clock) MetricsCollector {
	if clock == nil {
		clock = NewRealClock()
	}
	return &metricsCollector{
		policy:      policy,
		algorithm:   algorithm,
		clock:       clock,
		byReason:    make(map[Reason]int64),
		lastResetAt: clock.Now(),
	}
}

// RecordAllowed records a granted admission
func (m *metricsCollector) RecordAllowed() {
	m.totalRequests.Add(1)
	m.allowed.Add(1)
}

// RecordRejected records a denied admission
func (m *metricsCollector) RecordRejected(reason Reason) {
	m.totalRequests.Add(1)
	m.rejected.Add(1)

	m.mu.Lock()
	m.byReason[reason]++
	m.mu.Unlock()
}

// GetSnapshot returns a metrics snapshot
func (m *metricsCollector) GetSnapshot() *MetricsSnapshot {
	total := m.totalRequests.Load()
	allowed := m.allowed.Load()
	rejected := m.rejected.Load()

	var rejectRate float64
	if total > 0 {
		rejectRate = float64(rejected) / float64(total)
	}

	m.mu.RLock()
	byReason := make(map[Reason]int64, len(m.byReason))
	for k, v := range m.byReason {
		byReason[k] = v
	}
	lastResetAt := m.lastResetAt
	m.mu.RUnlock()

	return &MetricsSnapshot{
		Policy:        m.policy,
		Algorithm:     m.algorithm,
		TotalRequests: total,
		Allowed:       allowed,
		Rejected:      rejected,
		RejectedBy:    byReason,
		RejectRate:    rejectRate,
		LastResetAt:   lastResetAt,
	}
}

// Reset resets the counters
func (m *metricsCollector) Reset() {
	m.totalRequests.Store(0)
	m.allowed.Store(0)
	m.rejected.Store(0)

	m.mu.Lock()
	m.byReason = make(map[Reason]int64)
	m.lastResetAt = m.clock.Now()
	m.mu.Unlock()
}
