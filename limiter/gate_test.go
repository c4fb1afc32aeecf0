package limiter

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// eventRecorder collects events published by a gate
type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) publish(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *eventRecorder) types() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type())
	}
	return out
}

func newTestGate(t *testing.T, cfg PolicyConfig, clock clockwork.Clock) *gate {
	t.Helper()
	cfg = cfg.withDefaults()
	require.NoError(t, cfg.Validate())

	g, err := newGate("test", "test", cfg, clock, nil)
	require.NoError(t, err)
	t.Cleanup(g.Close)
	return g
}

// acquireAsync starts a blocking Acquire and waits until it is parked in the queue
func acquireAsync(t *testing.T, g *gate, ctx context.Context, permits int64, queued int) <-chan *Lease {
	t.Helper()
	ch := make(chan *Lease, 1)
	go func() {
		ch <- g.Acquire(ctx, permits)
	}()
	require.Eventually(t, func() bool {
		return g.Statistics().QueuedWaiters == queued
	}, time.Second, time.Millisecond)
	return ch
}

func receive(t *testing.T, ch <-chan *Lease) *Lease {
	t.Helper()
	select {
	case l := <-ch:
		return l
	case <-time.After(2 * time.Second):
		t.Fatal("waiter was not resumed")
		return nil
	}
}

func assertPending(t *testing.T, ch <-chan *Lease) {
	t.Helper()
	select {
	case l := <-ch:
		t.Fatalf("waiter resumed unexpectedly: granted=%v reason=%s", l.Granted(), l.Reason())
	case <-time.After(20 * time.Millisecond):
	}
}

func TestGate_FixedWindowEndToEnd(t *testing.T) {
	clock := newTestClock()
	g := newTestGate(t, PolicyConfig{Algorithm: "fixed_window", PermitLimit: 4, Window: 12 * time.Second}, clock)

	for i := 0; i < 4; i++ {
		lease := g.TryAcquire(1)
		require.True(t, lease.Granted(), "call %d at t=0s", i+1)
		assert.Equal(t, "test", lease.LimiterID())
	}

	clock.Advance(time.Second)
	lease := g.TryAcquire(1)
	assert.False(t, lease.Granted())
	assert.Equal(t, ReasonLimitExceeded, lease.Reason())
	retry, ok := lease.RetryAfter()
	assert.True(t, ok)
	assert.Equal(t, 11*time.Second, retry)
	assert.ErrorIs(t, lease.Err(), ErrLimitExceeded)

	clock.Advance(11 * time.Second)
	assert.True(t, g.TryAcquire(1).Granted())
}

func TestGate_TokenBucketEndToEnd(t *testing.T) {
	clock := newTestClock()
	g := newTestGate(t, PolicyConfig{
		Algorithm:           "token_bucket",
		TokenLimit:          5,
		TokensPerPeriod:     1,
		ReplenishmentPeriod: time.Second,
	}, clock)

	for i := 0; i < 5; i++ {
		require.True(t, g.TryAcquire(1).Granted())
	}

	clock.Advance(500 * time.Millisecond)
	lease := g.TryAcquire(1)
	assert.False(t, lease.Granted())
	retry, ok := lease.RetryAfter()
	assert.True(t, ok)
	assert.Equal(t, 500*time.Millisecond, retry)

	clock.Advance(600 * time.Millisecond)
	assert.True(t, g.TryAcquire(1).Granted())
}

func TestGate_PermitNormalization(t *testing.T) {
	g := newTestGate(t, PolicyConfig{Algorithm: "fixed_window", PermitLimit: 4, Window: time.Second}, newTestClock())

	lease := g.TryAcquire(0)
	assert.True(t, lease.Granted())
	assert.Equal(t, int64(1), lease.PermitCount())

	lease = g.TryAcquire(5)
	assert.False(t, lease.Granted())
	assert.Equal(t, ReasonPermitsExceedLimit, lease.Reason())
	_, ok := lease.RetryAfter()
	assert.False(t, ok, "an unsatisfiable request has no retry hint")
	assert.ErrorIs(t, lease.Err(), ErrPermitsExceedLimit)
}

func TestGate_ConcurrentCallersNeverExceedLimit(t *testing.T) {
	configs := map[string]PolicyConfig{
		"fixed_window":   {Algorithm: "fixed_window", PermitLimit: 5, Window: time.Minute},
		"sliding_window": {Algorithm: "sliding_window", PermitLimit: 5, Window: time.Minute, SegmentsPerWindow: 6},
		"token_bucket":   {Algorithm: "token_bucket", TokenLimit: 5, TokensPerPeriod: 1, ReplenishmentPeriod: time.Minute},
		"concurrency":    {Algorithm: "concurrency", PermitLimit: 5},
	}

	for name, cfg := range configs {
		t.Run(name, func(t *testing.T) {
			g := newTestGate(t, cfg, newTestClock())

			var granted atomic.Int64
			var eg errgroup.Group
			for i := 0; i < 64; i++ {
				eg.Go(func() error {
					if g.Acquire(context.Background(), 1).Granted() {
						granted.Add(1)
					}
					return nil
				})
			}
			require.NoError(t, eg.Wait())

			assert.Equal(t, int64(5), granted.Load())
			stats := g.Statistics()
			assert.Equal(t, int64(0), stats.Available)
			assert.Equal(t, int64(5), stats.TotalGranted)
			assert.Equal(t, int64(59), stats.TotalDenied)
		})
	}
}

func TestGate_ConcurrencyLeaseReuse(t *testing.T) {
	g := newTestGate(t, PolicyConfig{Algorithm: "concurrency", PermitLimit: 1}, newTestClock())

	first := g.Acquire(context.Background(), 1)
	require.True(t, first.Granted())
	assert.False(t, g.TryAcquire(1).Granted())

	first.Release()
	first.Release() // second release is a no-op
	assert.Equal(t, int64(1), g.Statistics().Available)

	second := g.Acquire(context.Background(), 1)
	assert.True(t, second.Granted())
	assert.Equal(t, int64(0), g.Statistics().Available)
}

func TestGate_TwoConcurrentAcquiresOneGrant(t *testing.T) {
	g := newTestGate(t, PolicyConfig{Algorithm: "concurrency", PermitLimit: 1}, newTestClock())

	start := make(chan struct{})
	results := make(chan *Lease, 2)
	for i := 0; i < 2; i++ {
		go func() {
			<-start
			results <- g.Acquire(context.Background(), 1)
		}()
	}
	close(start)

	a, b := receive(t, results), receive(t, results)
	assert.NotEqual(t, a.Granted(), b.Granted(), "exactly one immediate grant")
}

func TestGate_QueueServesOldestFirst(t *testing.T) {
	clock := newTestClock()
	g := newTestGate(t, PolicyConfig{
		Algorithm:   "fixed_window",
		PermitLimit: 1,
		Window:      12 * time.Second,
		QueueLimit:  2,
	}, clock)
	require.True(t, g.TryAcquire(1).Granted())

	first := acquireAsync(t, g, context.Background(), 1, 1)
	second := acquireAsync(t, g, context.Background(), 1, 2)

	overflow := g.Acquire(context.Background(), 1)
	assert.Equal(t, ReasonQueueOverflow, overflow.Reason())
	retry, ok := overflow.RetryAfter()
	assert.True(t, ok)
	assert.Equal(t, 36*time.Second, retry, "two queued permits are served first")

	clock.Advance(12 * time.Second)
	g.TryReplenish()
	assert.True(t, receive(t, first).Granted())
	assertPending(t, second)

	clock.Advance(12 * time.Second)
	g.TryReplenish()
	assert.True(t, receive(t, second).Granted())
	assert.Equal(t, 0, g.Statistics().QueuedWaiters)
}

func TestGate_TimerDispatchesQueue(t *testing.T) {
	clock := newTestClock()
	g := newTestGate(t, PolicyConfig{
		Algorithm:           "token_bucket",
		TokenLimit:          1,
		TokensPerPeriod:     1,
		ReplenishmentPeriod: time.Second,
		QueueLimit:          1,
	}, clock)
	require.True(t, g.TryAcquire(1).Granted())

	waiter := acquireAsync(t, g, context.Background(), 1, 1)

	// no TryReplenish: the dispatcher timer must resume the waiter
	clock.Advance(time.Second)
	lease := receive(t, waiter)
	assert.True(t, lease.Granted())
}

func TestGate_NewArrivalsDoNotOvertakeQueue(t *testing.T) {
	g := newTestGate(t, PolicyConfig{Algorithm: "concurrency", PermitLimit: 2, QueueLimit: 4}, newTestClock())

	held := g.Acquire(context.Background(), 1)
	require.True(t, held.Granted())

	big := acquireAsync(t, g, context.Background(), 2, 1)

	// one permit is free, but the queue head comes first
	denied := g.TryAcquire(1)
	assert.False(t, denied.Granted())
	assert.Equal(t, ReasonLimitExceeded, denied.Reason())

	small := acquireAsync(t, g, context.Background(), 1, 2)

	held.Release()
	bigLease := receive(t, big)
	require.True(t, bigLease.Granted())
	assert.Equal(t, int64(2), bigLease.PermitCount())
	assertPending(t, small)

	bigLease.Release()
	assert.True(t, receive(t, small).Granted())
}

func TestGate_ConcurrencyStrictFIFO(t *testing.T) {
	g := newTestGate(t, PolicyConfig{Algorithm: "concurrency", PermitLimit: 3, QueueLimit: 4}, newTestClock())

	leases := make([]*Lease, 3)
	for i := range leases {
		leases[i] = g.Acquire(context.Background(), 1)
		require.True(t, leases[i].Granted())
	}

	head := acquireAsync(t, g, context.Background(), 3, 1)
	tail := acquireAsync(t, g, context.Background(), 1, 2)

	// partial capacity does not skip ahead to the smaller request
	leases[0].Release()
	assertPending(t, tail)
	assert.Equal(t, 2, g.Statistics().QueuedWaiters)

	leases[1].Release()
	leases[2].Release()
	headLease := receive(t, head)
	require.True(t, headLease.Granted())
	assertPending(t, tail)

	headLease.Release()
	assert.True(t, receive(t, tail).Granted())
}

func TestGate_CancelRemovesWaiter(t *testing.T) {
	clock := newTestClock()
	g := newTestGate(t, PolicyConfig{
		Algorithm:   "fixed_window",
		PermitLimit: 1,
		Window:      12 * time.Second,
		QueueLimit:  2,
	}, clock)
	require.True(t, g.TryAcquire(1).Granted())

	ctx, cancel := context.WithCancel(context.Background())
	cancelled := acquireAsync(t, g, ctx, 1, 1)
	remaining := acquireAsync(t, g, context.Background(), 1, 2)

	cancel()
	lease := receive(t, cancelled)
	assert.False(t, lease.Granted())
	assert.Equal(t, ReasonCancelled, lease.Reason())
	_, ok := lease.RetryAfter()
	assert.False(t, ok, "cancellation carries no retry hint")
	assert.ErrorIs(t, lease.Err(), ErrCancelled)

	stats := g.Statistics()
	assert.Equal(t, 1, stats.QueuedWaiters)
	assert.Equal(t, int64(1), stats.QueuedPermits)

	clock.Advance(12 * time.Second)
	g.TryReplenish()
	assert.True(t, receive(t, remaining).Granted())
}

func TestGate_CancelledContextIsNotQueued(t *testing.T) {
	g := newTestGate(t, PolicyConfig{Algorithm: "concurrency", PermitLimit: 1, QueueLimit: 1}, newTestClock())
	require.True(t, g.TryAcquire(1).Granted())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	lease := g.Acquire(ctx, 1)
	assert.Equal(t, ReasonCancelled, lease.Reason())
	assert.Equal(t, 0, g.Statistics().QueuedWaiters)
}

func TestGate_QueueTimeout(t *testing.T) {
	clock := newTestClock()
	g := newTestGate(t, PolicyConfig{
		Algorithm:    "fixed_window",
		PermitLimit:  1,
		Window:       12 * time.Second,
		QueueLimit:   1,
		QueueTimeout: 5 * time.Second,
	}, clock)
	require.True(t, g.TryAcquire(1).Granted())

	waiter := acquireAsync(t, g, context.Background(), 1, 1)
	clock.Advance(5 * time.Second)

	lease := receive(t, waiter)
	assert.False(t, lease.Granted())
	assert.Equal(t, ReasonWaitTimeout, lease.Reason())
	retry, ok := lease.RetryAfter()
	assert.True(t, ok, "a timeout reports when to retry")
	assert.Equal(t, 7*time.Second, retry)
	assert.ErrorIs(t, lease.Err(), ErrWaitTimeout)
	assert.Equal(t, 0, g.Statistics().QueuedWaiters)
}

func TestGate_AbandonAfterGrantKeepsGrant(t *testing.T) {
	clock := newTestClock()
	g := newTestGate(t, PolicyConfig{
		Algorithm:   "fixed_window",
		PermitLimit: 1,
		Window:      12 * time.Second,
		QueueLimit:  1,
	}, clock)
	require.True(t, g.TryAcquire(1).Granted())

	g.mu.Lock()
	_, w := g.admitLocked(context.Background(), 1, true)
	g.mu.Unlock()
	require.NotNil(t, w)

	clock.Advance(12 * time.Second)
	g.TryReplenish()

	// the cancellation lost the race: the grant is returned, permits are not counted twice
	lease := g.abandon(w, ReasonCancelled)
	assert.True(t, lease.Granted())
	stats := g.Statistics()
	assert.Equal(t, int64(2), stats.TotalGranted)
	assert.Equal(t, int64(0), stats.TotalDenied)
}

func TestGate_CloseFailsWaiters(t *testing.T) {
	g := newTestGate(t, PolicyConfig{Algorithm: "concurrency", PermitLimit: 1, QueueLimit: 1}, newTestClock())
	held := g.Acquire(context.Background(), 1)
	require.True(t, held.Granted())

	waiter := acquireAsync(t, g, context.Background(), 1, 1)
	g.Close()

	lease := receive(t, waiter)
	assert.False(t, lease.Granted())
	assert.Equal(t, ReasonCancelled, lease.Reason())

	assert.False(t, g.TryAcquire(1).Granted())
	assert.False(t, g.TryReplenish())
	assert.NotPanics(t, held.Release)
	g.Close()
}

func TestGate_TryReplenish(t *testing.T) {
	clock := newTestClock()
	window := newTestGate(t, PolicyConfig{Algorithm: "fixed_window", PermitLimit: 1, Window: time.Second}, clock)
	conc := newTestGate(t, PolicyConfig{Algorithm: "concurrency", PermitLimit: 1}, clock)

	assert.True(t, window.TryReplenish())
	assert.False(t, conc.TryReplenish())
}

func TestGate_PublishesQueueEvents(t *testing.T) {
	clock := newTestClock()
	rec := &eventRecorder{}
	cfg := PolicyConfig{Algorithm: "concurrency", PermitLimit: 1, QueueLimit: 1}.withDefaults()
	g, err := newGate("test", "test", cfg, clock, rec.publish)
	require.NoError(t, err)
	defer g.Close()

	held := g.Acquire(context.Background(), 1)
	waiter := acquireAsync(t, g, context.Background(), 1, 1)
	held.Release()
	receive(t, waiter).Release()

	assert.Equal(t, []EventType{EventQueued, EventReleased, EventDequeued, EventReleased}, rec.types())
}
