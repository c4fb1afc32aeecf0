package limiter

import (
	"strings"
	"sync"
	"time"
)

// Reason explains why a lease was denied
type Reason string

const (
	// ReasonNone lease was granted
	ReasonNone Reason = ""

	// ReasonLimitExceeded over the limit and no queueing possible
	ReasonLimitExceeded Reason = "limit_exceeded"

	// ReasonQueueOverflow over the limit and the queue is full
	ReasonQueueOverflow Reason = "queue_overflow"

	// ReasonCancelled the caller abandoned its wait
	ReasonCancelled Reason = "cancelled"

	// ReasonWaitTimeout the wait exceeded the queue timeout
	ReasonWaitTimeout Reason = "wait_timeout"

	// ReasonPermitsExceedLimit the request can never be satisfied
	ReasonPermitsExceedLimit Reason = "permits_exceed_limit"
)

// Lease is the outcome of one acquisition attempt.
// A granted lease must be released once the work completes; releasing
// leases from window or token limiters is a no-op.
type Lease struct {
	granted    bool
	permits    int64
	retryAfter time.Duration
	hasRetry   bool
	limiterID  string
	reason     Reason

	release func()
	once    sync.Once
}

// grantedLease creates a granted lease, release may be nil
func grantedLease(limiterID string, permits int64, release func()) *Lease {
	return &Lease{
		granted:   true,
		permits:   permits,
		limiterID: limiterID,
		release:   release,
	}
}

// deniedLease creates a denied lease, a negative retryAfter means no hint
func deniedLease(limiterID string, reason Reason, retryAfter time.Duration) *Lease {
	l := &Lease{
		limiterID: limiterID,
		reason:    reason,
	}
	if retryAfter >= 0 {
		l.retryAfter = retryAfter
		l.hasRetry = true
	}
	return l
}

// passthroughLease is granted without touching any limiter
func passthroughLease() *Lease {
	return &Lease{granted: true}
}

// compositeLease merges the leases of every limiter that granted a request
func compositeLease(parts []*Lease) *Lease {
	if len(parts) == 1 {
		return parts[0]
	}

	ids := make([]string, 0, len(parts))
	var permits int64
	for _, p := range parts {
		ids = append(ids, p.limiterID)
		permits = max(permits, p.permits)
	}

	return &Lease{
		granted:   true,
		permits:   permits,
		limiterID: strings.Join(ids, ","),
		release: func() {
			for _, p := range parts {
				p.Release()
			}
		},
	}
}

// Granted whether admission was granted
func (l *Lease) Granted() bool {
	return l != nil && l.granted
}

// PermitCount number of permits held by the lease
func (l *Lease) PermitCount() int64 {
	if l == nil {
		return 0
	}
	return l.permits
}

// RetryAfter suggested wait before retrying (only meaningful on denial)
func (l *Lease) RetryAfter() (time.Duration, bool) {
	if l == nil {
		return 0, false
	}
	return l.retryAfter, l.hasRetry
}

// LimiterID identifier of the limiter that produced the lease
func (l *Lease) LimiterID() string {
	if l == nil {
		return ""
	}
	return l.limiterID
}

// Reason denial reason, empty when granted
func (l *Lease) Reason() Reason {
	if l == nil {
		return ReasonNone
	}
	return l.reason
}

// Err maps the denial reason to a sentinel error, nil when granted
func (l *Lease) Err() error {
	if l.Granted() {
		return nil
	}
	switch l.Reason() {
	case ReasonQueueOverflow:
		return ErrQueueOverflow
	case ReasonCancelled:
		return ErrCancelled
	case ReasonWaitTimeout:
		return ErrWaitTimeout
	case ReasonPermitsExceedLimit:
		return ErrPermitsExceedLimit
	default:
		return ErrLimitExceeded
	}
}

// Release returns stateful permits to their limiter, at most once
func (l *Lease) Release() {
	if l == nil || !l.granted || l.release == nil {
		return
	}
	l.once.Do(l.release)
}
