package limiter

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/KOMKZ/go-yogan-admission/logger"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func nopLogger() *logger.CtxZapLogger {
	return logger.FromZap(zap.NewNop(), "yogan")
}

func enabledConfig() Config {
	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.RejectionLog.Enabled = false
	return cfg
}

func newTestManager(t *testing.T, cfg Config, clock clockwork.Clock, opts ...Option) *Manager {
	t.Helper()
	opts = append([]Option{WithLogger(nopLogger()), WithClock(clock)}, opts...)
	m, err := NewManager(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

// rejectionCollector captures rejections passed to the sink
type rejectionCollector struct {
	mu   sync.Mutex
	seen []Rejection
}

func (c *rejectionCollector) OnRejected(_ context.Context, rej Rejection) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen = append(c.seen, rej)
	return nil
}

func (c *rejectionCollector) all() []Rejection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Rejection(nil), c.seen...)
}

func TestManager_DisabledPassesThrough(t *testing.T) {
	m, err := NewManager(DefaultConfig(), WithLogger(nopLogger()))
	require.NoError(t, err)
	defer m.Close()

	assert.False(t, m.IsEnabled())
	assert.Nil(t, m.GetEventBus())

	lease := m.Evaluate(context.Background(), &Request{Endpoint: "/anything"})
	assert.True(t, lease.Granted())
	assert.NoError(t, lease.Err())
	lease.Release()

	_, err = m.Resolve("api", nil)
	assert.ErrorIs(t, err, ErrManagerDisabled)
	assert.ErrorIs(t, m.SetPartitionKeyFunc("api", KeyByIP), ErrManagerDisabled)
}

func TestManager_InvalidConfig(t *testing.T) {
	t.Run("bad algorithm", func(t *testing.T) {
		cfg := enabledConfig()
		cfg.Policies["bad"] = PolicyConfig{Algorithm: "leaky", PermitLimit: 1}

		_, err := NewManager(cfg, WithLogger(nopLogger()))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidConfig)

		var ve *ValidationError
		require.True(t, errors.As(err, &ve))
		assert.Equal(t, "bad", ve.Policy)
	})

	t.Run("endpoint points at unknown policy", func(t *testing.T) {
		cfg := enabledConfig()
		cfg.Endpoints["/api"] = "missing"

		_, err := NewManager(cfg, WithLogger(nopLogger()))
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("global name is reserved", func(t *testing.T) {
		cfg := enabledConfig()
		cfg.Policies[GlobalPolicy] = PolicyConfig{Algorithm: "concurrency", PermitLimit: 1}

		_, err := NewManager(cfg, WithLogger(nopLogger()))
		assert.ErrorIs(t, err, ErrInvalidConfig)
	})
}

func TestManager_GlobalThenNamedPolicy(t *testing.T) {
	clock := newTestClock()
	cfg := enabledConfig()
	cfg.Global = &PolicyConfig{Algorithm: "fixed_window", PermitLimit: 100, Window: time.Minute}
	cfg.Policies["fixed"] = PolicyConfig{Algorithm: "fixed_window", PermitLimit: 4, Window: 12 * time.Second}
	cfg.Endpoints["/api/fixed"] = "fixed"
	m := newTestManager(t, cfg, clock)

	req := &Request{Endpoint: "/api/fixed"}
	for i := 0; i < 4; i++ {
		lease := m.Evaluate(context.Background(), req)
		require.True(t, lease.Granted())
		assert.Equal(t, "global,fixed", lease.LimiterID())
	}

	lease := m.Evaluate(context.Background(), req)
	assert.False(t, lease.Granted())
	assert.Equal(t, "fixed", lease.LimiterID())
	assert.Equal(t, ReasonLimitExceeded, lease.Reason())
	retry, ok := lease.RetryAfter()
	assert.True(t, ok)
	assert.Equal(t, 12*time.Second, retry)

	// unmapped endpoints only see the global policy
	other := m.Evaluate(context.Background(), &Request{Endpoint: "/health"})
	assert.True(t, other.Granted())
	assert.Equal(t, GlobalPolicy, other.LimiterID())
}

func TestManager_ExplicitPolicyOverridesEndpoint(t *testing.T) {
	cfg := enabledConfig()
	cfg.Policies["a"] = PolicyConfig{Algorithm: "concurrency", PermitLimit: 1}
	cfg.Policies["b"] = PolicyConfig{Algorithm: "concurrency", PermitLimit: 1}
	cfg.Endpoints["/x"] = "a"
	m := newTestManager(t, cfg, newTestClock())

	lease := m.Evaluate(context.Background(), &Request{Endpoint: "/x", Policy: "b"})
	assert.True(t, lease.Granted())
	assert.Equal(t, "b", lease.LimiterID())
}

func TestManager_DenialReleasesEarlierLeases(t *testing.T) {
	cfg := enabledConfig()
	cfg.Global = &PolicyConfig{Algorithm: "concurrency", PermitLimit: 2}
	cfg.Policies["tight"] = PolicyConfig{Algorithm: "fixed_window", PermitLimit: 1, Window: time.Minute}
	cfg.Endpoints["/tight"] = "tight"
	m := newTestManager(t, cfg, newTestClock())

	req := &Request{Endpoint: "/tight"}
	held := m.Evaluate(context.Background(), req)
	require.True(t, held.Granted())
	assert.Equal(t, int64(1), m.GetMetrics(GlobalPolicy).Available)

	denied := m.Evaluate(context.Background(), req)
	require.False(t, denied.Granted())
	assert.Equal(t, "tight", denied.LimiterID())
	// the global permit taken for the denied request was handed back
	assert.Equal(t, int64(1), m.GetMetrics(GlobalPolicy).Available)

	m.Release(held)
	assert.Equal(t, int64(2), m.GetMetrics(GlobalPolicy).Available)
}

func TestManager_GlobalDenialSkipsNamedPolicy(t *testing.T) {
	cfg := enabledConfig()
	cfg.Global = &PolicyConfig{Algorithm: "fixed_window", PermitLimit: 1, Window: time.Minute}
	cfg.Policies["api"] = PolicyConfig{Algorithm: "fixed_window", PermitLimit: 10, Window: time.Minute}
	cfg.Endpoints["/api"] = "api"
	m := newTestManager(t, cfg, newTestClock())

	require.True(t, m.Evaluate(context.Background(), &Request{Endpoint: "/api"}).Granted())

	lease := m.Evaluate(context.Background(), &Request{Endpoint: "/api"})
	assert.False(t, lease.Granted())
	assert.Equal(t, GlobalPolicy, lease.LimiterID())
	assert.Equal(t, int64(1), m.GetMetrics("api").TotalRequests)
}

func TestManager_PartitionsAreIsolated(t *testing.T) {
	cfg := enabledConfig()
	cfg.Policies["per_user"] = PolicyConfig{
		Algorithm:   "fixed_window",
		PermitLimit: 1,
		Window:      time.Minute,
		PartitionBy: PartitionUser,
	}
	m := newTestManager(t, cfg, newTestClock())

	alice := &Request{Policy: "per_user", UserID: "alice"}
	bob := &Request{Policy: "per_user", UserID: "bob"}

	lease := m.Evaluate(context.Background(), alice)
	require.True(t, lease.Granted())
	assert.Equal(t, "per_user:user:alice", lease.LimiterID())

	assert.False(t, m.Evaluate(context.Background(), alice).Granted())
	assert.True(t, m.Evaluate(context.Background(), bob).Granted(), "alice's usage does not affect bob")

	snapshot := m.GetMetrics("per_user")
	assert.Equal(t, 2, snapshot.Partitions)
	assert.Equal(t, int64(2), snapshot.Allowed)
	assert.Equal(t, int64(1), snapshot.Rejected)
}

func TestManager_BoundedPartitionsKeepConcurrencyCap(t *testing.T) {
	cfg := enabledConfig()
	cfg.Policies["per_user"] = PolicyConfig{
		Algorithm:     "concurrency",
		PermitLimit:   1,
		PartitionBy:   PartitionUser,
		MaxPartitions: 1,
	}
	m := newTestManager(t, cfg, newTestClock())
	ctx := context.Background()

	alice := &Request{Policy: "per_user", UserID: "alice"}
	bob := &Request{Policy: "per_user", UserID: "bob"}

	held := m.Evaluate(ctx, alice)
	require.True(t, held.Granted())
	bobLease := m.Evaluate(ctx, bob)
	require.True(t, bobLease.Granted())

	assert.False(t, m.Evaluate(ctx, alice).Granted(), "alice still holds her only permit")
	assert.Equal(t, 2, m.GetMetrics("per_user").Partitions)

	held.Release()
	bobLease.Release()
	next := m.Evaluate(ctx, alice)
	assert.True(t, next.Granted())
	next.Release()
}

func TestManager_UnknownPolicyWarns(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	cfg := enabledConfig()
	cfg.Global = &PolicyConfig{Algorithm: "concurrency", PermitLimit: 10}
	m := newTestManager(t, cfg, newTestClock(), WithLogger(logger.FromZap(zap.New(core), "yogan")))

	lease := m.Evaluate(context.Background(), &Request{Policy: "nope"})
	assert.True(t, lease.Granted())
	assert.Equal(t, GlobalPolicy, lease.LimiterID())

	entries := logs.FilterMessage("Unknown admission policy, only the global policy applies").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "nope", entries[0].ContextMap()["policy"])
}

func TestManager_NoApplicablePolicyPassesThrough(t *testing.T) {
	cfg := enabledConfig()
	cfg.Policies["api"] = PolicyConfig{Algorithm: "concurrency", PermitLimit: 1}
	m := newTestManager(t, cfg, newTestClock())

	lease := m.Evaluate(context.Background(), &Request{Endpoint: "/unmapped"})
	assert.True(t, lease.Granted())
	assert.Empty(t, lease.LimiterID())
}

func TestManager_RejectionSinkReceivesContext(t *testing.T) {
	clock := newTestClock()
	sink := &rejectionCollector{}
	cfg := enabledConfig()
	cfg.Policies["ip"] = PolicyConfig{
		Algorithm:           "token_bucket",
		TokenLimit:          1,
		TokensPerPeriod:     1,
		ReplenishmentPeriod: time.Second,
		PartitionBy:         PartitionIP,
	}
	m := newTestManager(t, cfg, clock, WithRejectionSink(sink))

	req := &Request{Policy: "ip", ClientIP: "10.0.0.1", Endpoint: "/login"}
	require.True(t, m.Evaluate(context.Background(), req).Granted())
	require.False(t, m.Evaluate(context.Background(), req).Granted())

	seen := sink.all()
	require.Len(t, seen, 1)
	rej := seen[0]
	assert.Equal(t, "ip", rej.Policy)
	assert.Equal(t, "ip:10.0.0.1", rej.PartitionKey)
	assert.Equal(t, "ip:ip:10.0.0.1", rej.LimiterID)
	assert.Equal(t, ReasonLimitExceeded, rej.Reason)
	assert.True(t, rej.HasRetry)
	assert.Equal(t, time.Second, rej.RetryAfter)
	assert.Equal(t, clock.Now(), rej.At)
	assert.Same(t, req, rej.Request)
}

func TestManager_SinkErrorIsLogged(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	failing := SinkFunc(func(context.Context, Rejection) error {
		return errors.New("sink down")
	})
	cfg := enabledConfig()
	cfg.Policies["api"] = PolicyConfig{Algorithm: "concurrency", PermitLimit: 1}
	m := newTestManager(t, cfg, newTestClock(),
		WithLogger(logger.FromZap(zap.New(core), "yogan")),
		WithRejectionSink(failing))

	held := m.Evaluate(context.Background(), &Request{Policy: "api"})
	require.True(t, held.Granted())

	denied := m.Evaluate(context.Background(), &Request{Policy: "api"})
	assert.False(t, denied.Granted(), "a failing sink does not change the decision")
	assert.Equal(t, 1, logs.FilterMessage("Rejection sink failed").Len())
}

func TestManager_RejectionLogIsThrottled(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	cfg := enabledConfig()
	cfg.RejectionLog = RejectionLogConfig{Enabled: true, PerSecond: 1, Burst: 2}
	cfg.Policies["api"] = PolicyConfig{Algorithm: "concurrency", PermitLimit: 1}
	m := newTestManager(t, cfg, newTestClock(), WithLogger(logger.FromZap(zap.New(core), "yogan")))

	held := m.Evaluate(context.Background(), &Request{Policy: "api"})
	require.True(t, held.Granted())
	for i := 0; i < 10; i++ {
		m.Evaluate(context.Background(), &Request{Policy: "api"})
	}

	assert.Equal(t, 2, logs.FilterMessage("🚫 Admission rejected").Len())
	assert.Equal(t, int64(10), m.GetMetrics("api").Rejected)
}

func TestManager_SetPartitionKeyFunc(t *testing.T) {
	cfg := enabledConfig()
	cfg.Policies["tenant"] = PolicyConfig{Algorithm: "concurrency", PermitLimit: 1}
	m := newTestManager(t, cfg, newTestClock())

	require.NoError(t, m.SetPartitionKeyFunc("tenant", KeyByHeader("X-Tenant")))

	lease := m.Evaluate(context.Background(), &Request{
		Policy:  "tenant",
		Headers: map[string]string{"X-Tenant": "acme"},
	})
	require.True(t, lease.Granted())
	assert.Equal(t, "tenant:X-Tenant:acme", lease.LimiterID())

	assert.ErrorIs(t, m.SetPartitionKeyFunc("missing", KeyByIP), ErrPolicyNotFound)
	assert.ErrorIs(t, m.SetPartitionKeyFunc("tenant", nil), ErrInvalidConfig)
}

func TestManager_Resolve(t *testing.T) {
	cfg := enabledConfig()
	cfg.Global = &PolicyConfig{Algorithm: "concurrency", PermitLimit: 3}
	cfg.Policies["per_ip"] = PolicyConfig{Algorithm: "concurrency", PermitLimit: 1, PartitionBy: PartitionIP}
	m := newTestManager(t, cfg, newTestClock())

	l, err := m.Resolve("per_ip", &Request{ClientIP: "1.2.3.4"})
	require.NoError(t, err)
	assert.Equal(t, "per_ip:ip:1.2.3.4", l.ID())

	again, err := m.Resolve("per_ip", &Request{ClientIP: "1.2.3.4"})
	require.NoError(t, err)
	assert.Same(t, l, again)

	global, err := m.Resolve(GlobalPolicy, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(3), global.Statistics().Limit)

	_, err = m.Resolve("missing", nil)
	assert.ErrorIs(t, err, ErrPolicyNotFound)
}

func TestManager_Metrics(t *testing.T) {
	cfg := enabledConfig()
	cfg.Policies["api"] = PolicyConfig{Algorithm: "fixed_window", PermitLimit: 2, Window: time.Minute}
	m := newTestManager(t, cfg, newTestClock())

	for i := 0; i < 4; i++ {
		m.Evaluate(context.Background(), &Request{Policy: "api"})
	}

	snapshot := m.GetMetrics("api")
	assert.Equal(t, "fixed_window", snapshot.Algorithm)
	assert.Equal(t, int64(4), snapshot.TotalRequests)
	assert.Equal(t, int64(2), snapshot.Allowed)
	assert.Equal(t, int64(2), snapshot.Rejected)
	assert.Equal(t, int64(2), snapshot.RejectedBy[ReasonLimitExceeded])
	assert.InDelta(t, 0.5, snapshot.RejectRate, 0.0001)
	assert.Equal(t, int64(0), snapshot.Available)

	m.ResetMetrics("api")
	assert.Equal(t, int64(0), m.GetMetrics("api").TotalRequests)

	unknown := m.GetMetrics("missing")
	assert.Equal(t, "unknown", unknown.Algorithm)
}

func TestManager_PrometheusRecorder(t *testing.T) {
	pm := NewPrometheusMetrics("admission")
	cfg := enabledConfig()
	cfg.Metrics = MetricsConfig{Enabled: true, RecordAvailable: true, Namespace: "admission"}
	cfg.Global = &PolicyConfig{Algorithm: "concurrency", PermitLimit: 10}
	cfg.Policies["fixed"] = PolicyConfig{Algorithm: "fixed_window", PermitLimit: 1, Window: time.Minute}
	m := newTestManager(t, cfg, newTestClock(), WithMetricsRecorder(pm))

	m.Evaluate(context.Background(), &Request{Policy: "fixed"})
	m.Evaluate(context.Background(), &Request{Policy: "fixed"})

	assert.Equal(t, 1.0, testutil.ToFloat64(pm.Allowed.WithLabelValues("fixed", "fixed_window")))
	assert.Equal(t, 2.0, testutil.ToFloat64(pm.Allowed.WithLabelValues(GlobalPolicy, "concurrency")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.Rejected.WithLabelValues("fixed", "fixed_window", string(ReasonLimitExceeded))))

	// one gauge series per policy
	assert.Equal(t, 2, testutil.CollectAndCount(pm, "admission_available_permits"))
}

func TestManager_AutoReplenisher(t *testing.T) {
	cfg := enabledConfig()
	cfg.Policies["tokens"] = PolicyConfig{
		Algorithm:           "token_bucket",
		TokenLimit:          5,
		TokensPerPeriod:     1,
		ReplenishmentPeriod: time.Second,
		AutoReplenishment:   true,
	}
	cfg.Policies["conc"] = PolicyConfig{Algorithm: "concurrency", PermitLimit: 1, AutoReplenishment: true}
	cfg.Policies["lazy"] = PolicyConfig{Algorithm: "fixed_window", PermitLimit: 1, Window: time.Second}
	m := newTestManager(t, cfg, clockwork.NewRealClock())

	require.NotNil(t, m.replenisher)
	assert.Equal(t, 1, m.replenisher.Jobs())
}

func TestManager_PublishesEvents(t *testing.T) {
	cfg := enabledConfig()
	cfg.Policies["api"] = PolicyConfig{Algorithm: "concurrency", PermitLimit: 1}
	m := newTestManager(t, cfg, newTestClock())

	var mu sync.Mutex
	var types []EventType
	m.GetEventBus().Subscribe(EventListenerFunc(func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		types = append(types, e.Type())
	}))

	held := m.Evaluate(context.Background(), &Request{Policy: "api"})
	m.Evaluate(context.Background(), &Request{Policy: "api"})
	held.Release()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(types) == 4
	}, time.Second, time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []EventType{EventPartitionCreated, EventAllowed, EventRejected, EventReleased}, types)
}

func TestManager_QueuedRequestCancelled(t *testing.T) {
	sink := &rejectionCollector{}
	cfg := enabledConfig()
	cfg.Policies["api"] = PolicyConfig{Algorithm: "concurrency", PermitLimit: 1, QueueLimit: 1}
	m := newTestManager(t, cfg, newTestClock(), WithRejectionSink(sink))

	held := m.Evaluate(context.Background(), &Request{Policy: "api"})
	require.True(t, held.Granted())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan *Lease, 1)
	go func() {
		done <- m.Evaluate(ctx, &Request{Policy: "api"})
	}()
	require.Eventually(t, func() bool {
		return m.GetMetrics("api").QueuedPermits == 1
	}, time.Second, time.Millisecond)

	cancel()
	lease := receive(t, done)
	assert.Equal(t, ReasonCancelled, lease.Reason())
	require.Len(t, sink.all(), 1)
	assert.Equal(t, ReasonCancelled, sink.all()[0].Reason)
}

func TestManager_CloseFailsWaiters(t *testing.T) {
	cfg := enabledConfig()
	cfg.Policies["api"] = PolicyConfig{Algorithm: "concurrency", PermitLimit: 1, QueueLimit: 1}
	m, err := NewManager(cfg, WithLogger(nopLogger()), WithClock(newTestClock()))
	require.NoError(t, err)

	held := m.Evaluate(context.Background(), &Request{Policy: "api"})
	require.True(t, held.Granted())

	done := make(chan *Lease, 1)
	go func() {
		done <- m.Evaluate(context.Background(), &Request{Policy: "api"})
	}()
	require.Eventually(t, func() bool {
		return m.GetMetrics("api").QueuedPermits == 1
	}, time.Second, time.Millisecond)

	require.NoError(t, m.Close())
	assert.Equal(t, ReasonCancelled, receive(t, done).Reason())
	assert.NoError(t, m.Close())
	assert.NoError(t, m.Shutdown())

	after := m.Evaluate(context.Background(), &Request{Policy: "api"})
	assert.False(t, after.Granted())
}

func TestManager_ConfigIsCopied(t *testing.T) {
	cfg := enabledConfig()
	cfg.Policies["api"] = PolicyConfig{Algorithm: "concurrency", PermitLimit: 1}
	cfg.Policies["zeta"] = PolicyConfig{Algorithm: "concurrency", PermitLimit: 1}
	cfg.Global = &PolicyConfig{Algorithm: "concurrency", PermitLimit: 1}
	m := newTestManager(t, cfg, newTestClock())

	cfg.Policies["api"] = PolicyConfig{Algorithm: "concurrency", PermitLimit: 99}
	cfg.Global.PermitLimit = 99

	got := m.GetConfig()
	assert.Equal(t, int64(1), got.Policies["api"].PermitLimit)
	assert.Equal(t, int64(1), got.Global.PermitLimit)
	assert.Equal(t, []string{"api", GlobalPolicy, "zeta"}, m.Policies())
}
