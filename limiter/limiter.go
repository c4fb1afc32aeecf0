// Package limiter provides admission control for inbound requests
//
// Design philosophy:
// - Standalone package, depends only on the logger component of yogan
// - Every request is evaluated against the global policy, then its named policy
// - Per-request outcomes are Lease values, never errors; only misconfiguration fails
// - Each partition owns its own lock, queue and dispatcher
// - Event-driven, the application layer can subscribe to all events
// - Supports multiple algorithms: fixed window, sliding window, token bucket, concurrency
package limiter

import (
	"context"
	"net/textproto"
	"time"
)

// Limiter is one partition's rate limiting state machine
type Limiter interface {
	// ID returns the limiter identifier (policy:partition)
	ID() string

	// Acquire tries to take permits, queueing when the policy allows it.
	// Blocks until granted, denied, ctx is done or the queue timeout fires.
	Acquire(ctx context.Context, permits int64) *Lease

	// TryAcquire takes permits only if they are immediately available
	TryAcquire(permits int64) *Lease

	// TryReplenish refreshes time-based state and serves queued waiters.
	// Returns true if the limiter replenishes over time.
	TryReplenish() bool

	// Statistics returns a point-in-time view of the limiter
	Statistics() Statistics

	// Close denies all queued waiters; later acquisitions are denied
	Close()
}

// Statistics limiter snapshot
type Statistics struct {
	// Available permits that could be granted right now
	Available int64

	// Limit configured capacity
	Limit int64

	// QueuedPermits permits currently waiting in the queue
	QueuedPermits int64

	// QueuedWaiters number of waiters in the queue
	QueuedWaiters int

	// TotalGranted successful acquisitions since creation
	TotalGranted int64

	// TotalDenied failed acquisitions since creation
	TotalDenied int64
}

// Request is the admission view of an inbound call
type Request struct {
	// Endpoint route identifier used to look up the attached policy
	Endpoint string

	// Policy explicitly attached policy name (overrides the endpoint mapping)
	Policy string

	// UserID authenticated user, empty for anonymous callers
	UserID string

	// ClientIP remote address of the caller
	ClientIP string

	// Headers request headers relevant for partitioning
	Headers map[string]string

	// Permits requested (defaults to 1)
	Permits int64
}

// header returns a header value, nil-safe.
// Falls back to the canonical form so "x-tenant" matches "X-Tenant".
func (r *Request) header(name string) string {
	if r == nil || r.Headers == nil {
		return ""
	}
	if v, ok := r.Headers[name]; ok {
		return v
	}
	return r.Headers[textproto.CanonicalMIMEHeaderKey(name)]
}

// permits returns the requested permit count
func (r *Request) permits() int64 {
	if r == nil || r.Permits <= 0 {
		return 1
	}
	return r.Permits
}

// Rejection describes a denied admission for the rejection sink
type Rejection struct {
	Policy       string
	PartitionKey string
	LimiterID    string
	Reason       Reason
	RetryAfter   time.Duration
	HasRetry     bool
	At           time.Time
	Request      *Request
}
