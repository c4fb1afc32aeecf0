package retry

import (
	"context"
	"errors"
	"net"
	"syscall"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// RetryCondition decides whether attempt (starting at 1) failing with err is retried
type RetryCondition interface {
	ShouldRetry(err error, attempt int) bool
}

// ConditionFunc adapts a function to RetryCondition
type ConditionFunc func(err error, attempt int) bool

// ShouldRetry implements RetryCondition
func (f ConditionFunc) ShouldRetry(err error, attempt int) bool {
	return f(err, attempt)
}

// AlwaysRetry retries every error
func AlwaysRetry() RetryCondition {
	return ConditionFunc(func(err error, _ int) bool { return err != nil })
}

// NeverRetry never retries
func NeverRetry() RetryCondition {
	return ConditionFunc(func(error, int) bool { return false })
}

// RetryOnHint retries only errors carrying a server retry hint. A denial
// without a hint (e.g. a request larger than the limit) never succeeds.
func RetryOnHint() RetryCondition {
	return ConditionFunc(func(err error, _ int) bool {
		_, ok := HintFrom(err)
		return ok
	})
}

// HTTPError an error with an HTTP status
type HTTPError interface {
	error
	StatusCode() int
}

// RetryOnHTTPStatus retries HTTPErrors with one of statuses
func RetryOnHTTPStatus(statuses ...int) RetryCondition {
	set := make(map[int]struct{}, len(statuses))
	for _, s := range statuses {
		set[s] = struct{}{}
	}
	return ConditionFunc(func(err error, _ int) bool {
		var httpErr HTTPError
		if !errors.As(err, &httpErr) {
			return false
		}
		_, ok := set[httpErr.StatusCode()]
		return ok
	})
}

// RetryOnGRPCCodes retries gRPC status errors with one of targetCodes
func RetryOnGRPCCodes(targetCodes ...codes.Code) RetryCondition {
	set := make(map[codes.Code]struct{}, len(targetCodes))
	for _, code := range targetCodes {
		set[code] = struct{}{}
	}
	return ConditionFunc(func(err error, _ int) bool {
		st, ok := status.FromError(err)
		if !ok || err == nil {
			return false
		}
		_, retry := set[st.Code()]
		return retry
	})
}

// RetryOnTemporaryError retries network timeouts and refused/reset connections
func RetryOnTemporaryError() RetryCondition {
	return ConditionFunc(func(err error, _ int) bool {
		if err == nil {
			return false
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return true
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return true
		}
		return errors.Is(err, syscall.ECONNREFUSED) ||
			errors.Is(err, syscall.ECONNRESET) ||
			errors.Is(err, syscall.EPIPE)
	})
}

// Or retries when any condition does
func Or(conditions ...RetryCondition) RetryCondition {
	return ConditionFunc(func(err error, attempt int) bool {
		for _, cond := range conditions {
			if cond.ShouldRetry(err, attempt) {
				return true
			}
		}
		return false
	})
}

// And retries when every condition does
func And(conditions ...RetryCondition) RetryCondition {
	return ConditionFunc(func(err error, attempt int) bool {
		for _, cond := range conditions {
			if !cond.ShouldRetry(err, attempt) {
				return false
			}
		}
		return len(conditions) > 0
	})
}
