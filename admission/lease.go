// Package admission adapts limiter leases to the error codes and retry hints
// that the HTTP and gRPC surfaces return.
package admission

import (
	"math"
	"time"

	"github.com/KOMKZ/go-yogan-admission/errcode"
	"github.com/KOMKZ/go-yogan-admission/limiter"
)

// FromLease converts a denied lease into its error code; granted leases yield nil.
// A retry hint is attached as "retry_after" in whole seconds, rounded up.
func FromLease(lease *limiter.Lease) *errcode.LayeredError {
	if lease == nil || lease.Granted() {
		return nil
	}

	var e *errcode.LayeredError
	switch lease.Reason() {
	case limiter.ReasonQueueOverflow:
		e = errcode.ErrQueueFull
	case limiter.ReasonCancelled:
		e = errcode.ErrAdmissionCancelled
	case limiter.ReasonWaitTimeout:
		e = errcode.ErrAdmissionTimeout
	case limiter.ReasonPermitsExceedLimit:
		e = errcode.ErrRequestTooLarge
	default:
		e = errcode.ErrRateLimited
	}

	e = e.Wrap(lease.Err())
	if id := lease.LimiterID(); id != "" {
		e = e.WithData("limiter", id)
	}
	if retry, ok := lease.RetryAfter(); ok {
		e = e.WithData("retry_after", RetryAfterSeconds(retry))
	}
	return e
}

// RetryAfterSeconds whole seconds for a Retry-After header, never below 1
func RetryAfterSeconds(d time.Duration) int64 {
	secs := int64(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}
