package limiter

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/KOMKZ/go-yogan-admission/logger"
	"go.uber.org/zap"
)

// Manager composes the global policy with the request's named policy.
// Configuration is copied and validated once; it is never mutated afterwards.
type Manager struct {
	config      Config
	clock       Clock
	global      *policyState
	policies    map[string]*policyState
	eventBus    EventBus
	sinks       multiSink
	recorders   []MetricsRecorder
	replenisher *Replenisher
	logger      *logger.CtxZapLogger
	closeOnce   sync.Once
	closed      atomic.Bool
}

// policyState one policy's registry and counters
type policyState struct {
	name     string
	cfg      PolicyConfig
	registry *partitionRegistry
	metrics  MetricsCollector
}

// Option configures a Manager
type Option func(*Manager)

// WithLogger sets the logger
func WithLogger(ctxLogger *logger.CtxZapLogger) Option {
	return func(m *Manager) {
		if ctxLogger != nil {
			m.logger = ctxLogger
		}
	}
}

// WithClock sets the clock used by every limiter
func WithClock(clock Clock) Option {
	return func(m *Manager) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// WithRejectionSink adds a rejection sink
func WithRejectionSink(sink RejectionSink) Option {
	return func(m *Manager) {
		if sink != nil {
			m.sinks = append(m.sinks, sink)
		}
	}
}

// WithMetricsRecorder adds an external metrics recorder (OTel, Prometheus)
func WithMetricsRecorder(recorder MetricsRecorder) Option {
	return func(m *Manager) {
		if recorder != nil {
			m.recorders = append(m.recorders, recorder)
		}
	}
}

// Create admission manager
func NewManager(config Config, opts ...Option) (*Manager, error) {
	config = config.clone()
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	m := &Manager{
		config:   config,
		policies: make(map[string]*policyState),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = logger.GetLogger("yogan")
	}
	if m.clock == nil {
		m.clock = NewRealClock()
	}

	ctx := context.Background()

	// If not enabled, every request passes through
	if !config.Enabled {
		m.logger.DebugCtx(ctx, "⏭️  Admission control not enabled, all requests pass through")
		return m, nil
	}

	m.eventBus = newEventBus(config.EventBusBuffer, m.logger)

	if config.Global != nil {
		ps, err := m.newPolicyState(GlobalPolicy, *config.Global)
		if err != nil {
			m.eventBus.Close()
			return nil, err
		}
		m.global = ps
	}
	for name, cfg := range config.Policies {
		ps, err := m.newPolicyState(name, cfg)
		if err != nil {
			m.eventBus.Close()
			return nil, err
		}
		m.policies[name] = ps
	}

	if config.RejectionLog.Enabled {
		sink := NewLoggingSink(m.logger, config.RejectionLog.PerSecond, config.RejectionLog.Burst)
		m.sinks = append(multiSink{sink}, m.sinks...)
	}

	if config.Metrics.RecordAvailable {
		m.registerAvailableCallbacks()
	}

	if err := m.startReplenisher(); err != nil {
		m.eventBus.Close()
		return nil, err
	}

	m.logger.DebugCtx(ctx, "🎯 Admission manager initialized",
		zap.Bool("global", m.global != nil),
		zap.Int("policies", len(m.policies)),
		zap.Int("endpoints", len(config.Endpoints)),
		zap.Int("event_bus_buffer", config.EventBusBuffer))

	return m, nil
}

// newPolicyState builds the registry of one validated policy
func (m *Manager) newPolicyState(name string, cfg PolicyConfig) (*policyState, error) {
	registry, err := newPartitionRegistry(name, cfg, m.clock, m.eventBus.Publish)
	if err != nil {
		return nil, fmt.Errorf("create partition registry for %s: %w", name, err)
	}
	registry.onCreate = func(key string, g *gate) {
		m.logger.DebugCtx(context.Background(), "🎯 Creating partition limiter",
			zap.String("policy", name),
			zap.String("partition", key),
			zap.String("limiter_id", g.ID()),
			zap.String("algorithm", cfg.Algorithm))
	}

	return &policyState{
		name:     name,
		cfg:      cfg,
		registry: registry,
		metrics:  NewMetricsCollector(name, cfg.Algorithm, m.clock),
	}, nil
}

// startReplenisher schedules background ticks for auto_replenishment policies
func (m *Manager) startReplenisher() error {
	var auto []*policyState
	for _, ps := range m.allPolicies() {
		if !ps.cfg.AutoReplenishment {
			continue
		}
		if _, ok := replenishInterval(ps.cfg); ok {
			auto = append(auto, ps)
		}
	}
	if len(auto) == 0 {
		return nil
	}

	r, err := NewReplenisher(m.clock, m.logger)
	if err != nil {
		return err
	}
	for _, ps := range auto {
		interval, _ := replenishInterval(ps.cfg)
		if err := r.Add(ps.name, interval, ps.registry.replenish); err != nil {
			_ = r.Stop()
			return err
		}
	}
	r.Start()
	m.replenisher = r
	return nil
}

// registerAvailableCallbacks exposes available permits to recorders that support gauges
func (m *Manager) registerAvailableCallbacks() {
	for _, rec := range m.recorders {
		obs, ok := rec.(AvailabilityObserver)
		if !ok {
			continue
		}
		for _, ps := range m.allPolicies() {
			registry := ps.registry
			obs.RegisterAvailableCallback(ps.name, func() int64 {
				var total int64
				for _, g := range registry.all() {
					total += g.Statistics().Available
				}
				return total
			})
		}
	}
}

// Evaluate runs the global policy, then the request's named policy.
// The first denial short-circuits: later limiters are not consulted and
// stateful leases already taken are released.
func (m *Manager) Evaluate(ctx context.Context, req *Request) *Lease {
	if !m.config.Enabled {
		return passthroughLease()
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if req == nil {
		req = &Request{}
	}

	chain := m.chain(ctx, req)
	if len(chain) == 0 {
		return passthroughLease()
	}

	parts := make([]*Lease, 0, len(chain))
	for _, ps := range chain {
		g, key, err := ps.registry.resolve(req)
		if err != nil {
			m.logger.ErrorCtx(ctx, "Resolve partition limiter failed",
				zap.String("policy", ps.name),
				zap.Error(err))
			releaseAll(parts)
			return deniedLease(ps.name, ReasonLimitExceeded, -1)
		}

		lease := g.Acquire(ctx, req.permits())
		if !lease.Granted() {
			releaseAll(parts)
			m.onRejected(ctx, ps, key, req, lease)
			return lease
		}

		m.onAllowed(ctx, ps, lease)
		parts = append(parts, lease)
	}

	return compositeLease(parts)
}

// Release returns the permits of a lease, a no-op for window/token leases
func (m *Manager) Release(lease *Lease) {
	lease.Release()
}

// chain policies applicable to a request, in evaluation order
func (m *Manager) chain(ctx context.Context, req *Request) []*policyState {
	chain := make([]*policyState, 0, 2)
	if m.global != nil {
		chain = append(chain, m.global)
	}

	name := req.Policy
	if name == "" {
		name = m.config.Endpoints[req.Endpoint]
	}
	if name == "" || name == GlobalPolicy {
		return chain
	}

	ps, ok := m.policies[name]
	if !ok {
		m.logger.WarnCtx(ctx, "Unknown admission policy, only the global policy applies",
			zap.String("policy", name),
			zap.String("endpoint", req.Endpoint))
		return chain
	}
	return append(chain, ps)
}

// onAllowed records a grant
func (m *Manager) onAllowed(ctx context.Context, ps *policyState, lease *Lease) {
	ps.metrics.RecordAllowed()
	for _, rec := range m.recorders {
		rec.RecordAllowed(ctx, ps.name, ps.cfg.Algorithm)
	}

	m.eventBus.Publish(&AllowedEvent{
		BaseEvent: NewBaseEvent(EventAllowed, ps.name, lease.LimiterID(), ctx, m.clock.Now()),
		Permits:   lease.PermitCount(),
	})
}

// onRejected records a denial and notifies the rejection sinks
func (m *Manager) onRejected(ctx context.Context, ps *policyState, key string, req *Request, lease *Lease) {
	ps.metrics.RecordRejected(lease.Reason())
	for _, rec := range m.recorders {
		rec.RecordRejected(ctx, ps.name, ps.cfg.Algorithm, lease.Reason())
	}

	now := m.clock.Now()
	retryAfter, hasRetry := lease.RetryAfter()
	m.eventBus.Publish(&RejectedEvent{
		BaseEvent:  NewBaseEvent(EventRejected, ps.name, lease.LimiterID(), ctx, now),
		Reason:     lease.Reason(),
		RetryAfter: retryAfter,
		HasRetry:   hasRetry,
	})

	m.logger.DebugCtx(ctx, "🔒 Admission denied",
		zap.String("policy", ps.name),
		zap.String("limiter_id", lease.LimiterID()),
		zap.String("reason", string(lease.Reason())),
		zap.Duration("retry_after", retryAfter))

	if len(m.sinks) == 0 {
		return
	}
	rej := Rejection{
		Policy:       ps.name,
		PartitionKey: key,
		LimiterID:    lease.LimiterID(),
		Reason:       lease.Reason(),
		RetryAfter:   retryAfter,
		HasRetry:     hasRetry,
		At:           now,
		Request:      req,
	}
	if err := m.sinks.OnRejected(ctx, rej); err != nil {
		m.logger.WarnCtx(ctx, "Rejection sink failed",
			zap.String("policy", ps.name),
			zap.Error(err))
	}
}

// Resolve returns the partition limiter of a policy for a request
func (m *Manager) Resolve(policy string, req *Request) (Limiter, error) {
	if !m.config.Enabled {
		return nil, ErrManagerDisabled
	}
	ps, ok := m.policy(policy)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPolicyNotFound, policy)
	}
	g, _, err := ps.registry.resolve(req)
	if err != nil {
		return nil, err
	}
	return g, nil
}

// SetPartitionKeyFunc replaces the partition key function of a policy
func (m *Manager) SetPartitionKeyFunc(policy string, fn PartitionKeyFunc) error {
	if !m.config.Enabled {
		return ErrManagerDisabled
	}
	if fn == nil {
		return fmt.Errorf("%w: nil partition key func for %s", ErrInvalidConfig, policy)
	}
	ps, ok := m.policy(policy)
	if !ok {
		return fmt.Errorf("%w: %s", ErrPolicyNotFound, policy)
	}
	ps.registry.setKeyFunc(fn)
	return nil
}

// GetMetrics retrieves the metrics of a policy
func (m *Manager) GetMetrics(policy string) *MetricsSnapshot {
	ps, ok := m.policy(policy)
	if !ok {
		return &MetricsSnapshot{
			Policy:    policy,
			Algorithm: "unknown",
		}
	}

	snapshot := ps.metrics.GetSnapshot()
	for _, g := range ps.registry.all() {
		stats := g.Statistics()
		snapshot.Partitions++
		snapshot.Available += stats.Available
		snapshot.QueuedPermits += stats.QueuedPermits
	}
	return snapshot
}

// ResetMetrics resets the counters of a policy
func (m *Manager) ResetMetrics(policy string) {
	if ps, ok := m.policy(policy); ok {
		ps.metrics.Reset()
	}
}

// Policies names of the configured policies, sorted
func (m *Manager) Policies() []string {
	names := make([]string, 0, len(m.policies)+1)
	if m.global != nil {
		names = append(names, GlobalPolicy)
	}
	for name := range m.policies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetEventBus obtain event bus (nil when disabled)
func (m *Manager) GetEventBus() EventBus {
	return m.eventBus
}

// Close stops the replenisher, fails queued waiters and closes the event bus
func (m *Manager) Close() error {
	var err error
	m.closeOnce.Do(func() {
		m.closed.Store(true)
		if m.replenisher != nil {
			err = m.replenisher.Stop()
		}
		for _, ps := range m.allPolicies() {
			ps.registry.close()
		}
		if m.eventBus != nil {
			m.eventBus.Close()
		}
	})
	return err
}

// Implements the samber/do.Shutdownable interface for shutdown functionality
func (m *Manager) Shutdown() error {
	return m.Close()
}

// IsClosed reports whether Close has been called
func (m *Manager) IsClosed() bool {
	return m.closed.Load()
}

// Check if admission control is enabled
func (m *Manager) IsEnabled() bool {
	return m.config.Enabled
}

// GetConfig retrieve the validated configuration
func (m *Manager) GetConfig() Config {
	return m.config.clone()
}

// policy looks up a policy by name, including the global one
func (m *Manager) policy(name string) (*policyState, bool) {
	if name == GlobalPolicy {
		return m.global, m.global != nil
	}
	ps, ok := m.policies[name]
	return ps, ok
}

// allPolicies global first, then named policies
func (m *Manager) allPolicies() []*policyState {
	out := make([]*policyState, 0, len(m.policies)+1)
	if m.global != nil {
		out = append(out, m.global)
	}
	for _, ps := range m.policies {
		out = append(out, ps)
	}
	return out
}

// releaseAll releases leases taken before a denial
func releaseAll(leases []*Lease) {
	for _, l := range leases {
		l.Release()
	}
}
