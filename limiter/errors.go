package limiter

import "errors"

var (
	// ErrLimitExceeded over the configured limit
	ErrLimitExceeded = errors.New("rate limit exceeded")

	// ErrQueueOverflow queue is full
	ErrQueueOverflow = errors.New("rate limit queue is full")

	// ErrCancelled the wait was abandoned by the caller
	ErrCancelled = errors.New("rate limit wait cancelled")

	// ErrWaitTimeout the wait exceeded the queue timeout
	ErrWaitTimeout = errors.New("rate limit wait timeout")

	// ErrPermitsExceedLimit request asks for more permits than the limiter can ever hold
	ErrPermitsExceedLimit = errors.New("requested permits exceed limiter capacity")

	// ErrInvalidConfig configuration is invalid
	ErrInvalidConfig = errors.New("invalid config")

	// ErrPolicyNotFound policy does not exist
	ErrPolicyNotFound = errors.New("policy not found")

	// ErrManagerDisabled admission control is not enabled
	ErrManagerDisabled = errors.New("admission control disabled")

	// ErrSinkClosed the rejection sink no longer accepts work
	ErrSinkClosed = errors.New("rejection sink closed")
)

// ValidationError configuration validation error
type ValidationError struct {
	Policy  string
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Policy != "" {
		if e.Err != nil {
			return "limiter config validation failed for policy '" + e.Policy + "': " + e.Err.Error()
		}
		return "limiter config validation failed for policy '" + e.Policy + "." + e.Field + "': " + e.Message
	}

	if e.Field != "" {
		return "limiter config validation failed for field '" + e.Field + "': " + e.Message
	}

	if e.Err != nil {
		return "limiter config validation failed: " + e.Err.Error()
	}

	return "limiter config validation failed"
}

// Unwrap exposes ErrInvalidConfig to errors.Is
func (e *ValidationError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrInvalidConfig, e.Err}
	}
	return []error{ErrInvalidConfig}
}
