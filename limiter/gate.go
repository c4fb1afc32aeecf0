package limiter

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// gate implements Limiter over one Algorithm.
// It owns the partition lock, the wait queue and the dispatcher that resumes
// waiters when capacity grows (timer for window/token, Release for concurrency).
type gate struct {
	id      string
	policy  string
	cfg     PolicyConfig
	clock   Clock
	algo    Algorithm
	publish func(Event)

	mu      sync.Mutex
	queue   *waitQueue
	wake    clockwork.Timer
	wakeAt  time.Time
	wakeGen uint64
	closed  bool
	retired bool                 // evicted while idle, callers move to the partition's live gate
	rebind  func() (*gate, error) // set by bounded registries
	granted int64
	denied  int64
}

// newGate creates a limiter for one partition of a validated policy
func newGate(id, policy string, cfg PolicyConfig, clock Clock, publish func(Event)) (*gate, error) {
	algo, err := NewAlgorithm(cfg, clock.Now())
	if err != nil {
		return nil, err
	}
	return &gate{
		id:      id,
		policy:  policy,
		cfg:     cfg,
		clock:   clock,
		algo:    algo,
		publish: publish,
		queue:   newWaitQueue(cfg.QueueLimit),
	}, nil
}

// ID returns the limiter identifier
func (g *gate) ID() string {
	return g.id
}

// Acquire takes permits, parking the caller in the queue if the policy allows it
func (g *gate) Acquire(ctx context.Context, permits int64) *Lease {
	if ctx == nil {
		ctx = context.Background()
	}
	permits = normalizePermits(permits)

	g.mu.Lock()
	if g.retired {
		g.mu.Unlock()
		return g.forward(func(next *gate) *Lease { return next.Acquire(ctx, permits) })
	}
	lease, w := g.admitLocked(ctx, permits, true)
	g.mu.Unlock()

	if w == nil {
		return lease
	}
	return g.wait(ctx, w)
}

// TryAcquire takes permits only if they are available right now
func (g *gate) TryAcquire(permits int64) *Lease {
	permits = normalizePermits(permits)

	g.mu.Lock()
	if g.retired {
		g.mu.Unlock()
		return g.forward(func(next *gate) *Lease { return next.TryAcquire(permits) })
	}
	defer g.mu.Unlock()

	lease, _ := g.admitLocked(context.Background(), permits, false)
	return lease
}

// forward runs an acquisition on the gate that replaced this retired one
func (g *gate) forward(acquire func(next *gate) *Lease) *Lease {
	next, err := g.rebind()
	if err != nil || next == g {
		return deniedLease(g.id, ReasonLimitExceeded, -1)
	}
	return acquire(next)
}

// retireIfIdle marks the gate retired when dropping it loses no state: no queued
// waiters and full capacity, so no stateful lease is outstanding and no window or
// token budget was spent. A fresh gate for the same key behaves identically.
func (g *gate) retireIfIdle() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed || g.retired {
		return true
	}
	if g.queue.len() > 0 {
		return false
	}
	g.algo.Refresh(g.clock.Now())
	if g.algo.Available() < g.algo.Capacity() {
		return false
	}
	g.retired = true
	if g.wake != nil {
		g.wake.Stop()
		g.wake = nil
	}
	return true
}

// admitLocked grants, denies or enqueues; exactly one of the results is non-nil
func (g *gate) admitLocked(ctx context.Context, permits int64, queueable bool) (*Lease, *waiter) {
	if g.closed {
		return g.denyLocked(ReasonLimitExceeded, -1), nil
	}

	now := g.clock.Now()
	g.algo.Refresh(now)

	if permits > g.algo.Capacity() {
		return g.denyLocked(ReasonPermitsExceedLimit, -1), nil
	}

	// waiters already in line are served first
	if g.queue.len() == 0 && g.algo.TryConsume(permits) {
		g.granted++
		return g.leaseLocked(permits), nil
	}

	retry := g.algo.RetryAfter(now, g.queue.permits+permits)
	switch {
	case !queueable || !g.queue.enabled():
		return g.denyLocked(ReasonLimitExceeded, retry), nil
	case !g.queue.hasRoom(permits):
		return g.denyLocked(ReasonQueueOverflow, retry), nil
	case ctx.Err() != nil:
		return g.denyLocked(ReasonCancelled, -1), nil
	}

	w := g.queue.push(ctx, now, permits)
	if g.cfg.QueueTimeout > 0 {
		w.timeout = g.clock.NewTimer(g.cfg.QueueTimeout)
	}
	g.emit(&QueueEvent{
		BaseEvent:     NewBaseEvent(EventQueued, g.policy, g.id, ctx, now),
		Permits:       permits,
		QueuedPermits: g.queue.permits,
	})
	g.scheduleLocked(now)
	return nil, w
}

// wait parks until the dispatcher resumes the waiter, ctx is done or the queue timeout fires
func (g *gate) wait(ctx context.Context, w *waiter) *Lease {
	var timeout <-chan time.Time
	if w.timeout != nil {
		defer w.timeout.Stop()
		timeout = w.timeout.Chan()
	}

	select {
	case lease := <-w.ready:
		return lease
	case <-ctx.Done():
		return g.abandon(w, ReasonCancelled)
	case <-timeout:
		return g.abandon(w, ReasonWaitTimeout)
	}
}

// abandon removes a waiter that gave up. If the dispatcher resumed it first,
// the lease it delivered wins.
func (g *gate) abandon(w *waiter, reason Reason) *Lease {
	g.mu.Lock()
	if !g.queue.remove(w) {
		g.mu.Unlock()
		return <-w.ready
	}
	defer g.mu.Unlock()

	now := g.clock.Now()
	g.algo.Refresh(now)

	retry := time.Duration(-1)
	eventType := EventWaitCancelled
	if reason == ReasonWaitTimeout {
		retry = g.algo.RetryAfter(now, g.queue.permits+w.permits)
		eventType = EventWaitTimeout
	}

	g.emit(&QueueEvent{
		BaseEvent:     NewBaseEvent(eventType, g.policy, g.id, w.ctx, now),
		Permits:       w.permits,
		QueuedPermits: g.queue.permits,
		Waited:        now.Sub(w.enqueuedAt),
	})

	// a removed head may unblock the waiters behind it
	g.dispatchLocked(now)
	return g.denyLocked(reason, retry)
}

// dispatchLocked resumes waiters from the head while capacity allows it
func (g *gate) dispatchLocked(now time.Time) {
	g.algo.Refresh(now)

	for w := g.queue.front(); w != nil; w = g.queue.front() {
		if !g.algo.TryConsume(w.permits) {
			break
		}
		g.queue.remove(w)
		g.granted++
		w.ready <- g.leaseLocked(w.permits)

		g.emit(&QueueEvent{
			BaseEvent:     NewBaseEvent(EventDequeued, g.policy, g.id, w.ctx, now),
			Permits:       w.permits,
			QueuedPermits: g.queue.permits,
			Waited:        now.Sub(w.enqueuedAt),
		})
	}

	if g.queue.len() > 0 {
		g.scheduleLocked(now)
	}
}

// scheduleLocked arms the wake-up timer for the next refresh, keeping an earlier one
func (g *gate) scheduleLocked(now time.Time) {
	at, ok := g.algo.NextRefresh(now)
	if !ok || g.closed {
		return
	}
	if g.wake != nil {
		if !g.wakeAt.After(at) {
			return
		}
		g.wake.Stop()
	}

	g.wakeGen++
	gen := g.wakeGen
	g.wakeAt = at
	g.wake = g.clock.AfterFunc(untilOrZero(at, now), func() {
		g.onWake(gen)
	})
}

// onWake timer callback
func (g *gate) onWake(gen uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if gen == g.wakeGen {
		g.wake = nil
		g.wakeAt = time.Time{}
	}
	if g.closed {
		return
	}
	g.dispatchLocked(g.clock.Now())
}

// leaseLocked builds a granted lease, stateful algorithms get a release hook
func (g *gate) leaseLocked(permits int64) *Lease {
	if !g.algo.Stateful() {
		return grantedLease(g.id, permits, nil)
	}
	return grantedLease(g.id, permits, func() {
		g.release(permits)
	})
}

// denyLocked builds a denied lease
func (g *gate) denyLocked(reason Reason, retryAfter time.Duration) *Lease {
	g.denied++
	return deniedLease(g.id, reason, retryAfter)
}

// release returns stateful permits and serves the queue
func (g *gate) release(permits int64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.clock.Now()
	g.algo.Return(permits)
	g.emit(&ReleasedEvent{
		BaseEvent: NewBaseEvent(EventReleased, g.policy, g.id, context.Background(), now),
		Permits:   permits,
	})

	if !g.closed {
		g.dispatchLocked(now)
	}
}

// TryReplenish refreshes time-based state and serves queued waiters
func (g *gate) TryReplenish() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return false
	}

	now := g.clock.Now()
	g.dispatchLocked(now)
	_, replenishes := g.algo.NextRefresh(now)
	return replenishes
}

// Statistics returns a snapshot after applying pending refreshes
func (g *gate) Statistics() Statistics {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.closed {
		g.algo.Refresh(g.clock.Now())
	}
	return Statistics{
		Available:     g.algo.Available(),
		Limit:         g.algo.Capacity(),
		QueuedPermits: g.queue.permits,
		QueuedWaiters: g.queue.len(),
		TotalGranted:  g.granted,
		TotalDenied:   g.denied,
	}
}

// Close denies every queued waiter and stops the dispatcher
func (g *gate) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return
	}
	g.closed = true

	if g.wake != nil {
		g.wake.Stop()
		g.wake = nil
	}
	for _, w := range g.queue.drain() {
		w.ready <- g.denyLocked(ReasonCancelled, -1)
	}
}

// emit publishes an event if a publisher is attached
func (g *gate) emit(e Event) {
	if g.publish != nil {
		g.publish(e)
	}
}

// normalizePermits treats non-positive requests as a single permit
func normalizePermits(permits int64) int64 {
	if permits <= 0 {
		return 1
	}
	return permits
}
