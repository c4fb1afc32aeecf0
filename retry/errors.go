package retry

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrHintTooLong the server asked to wait longer than MaxHint allows
var ErrHintTooLong = errors.New("retry: server retry hint exceeds limit")

// RetryAfterHint is implemented by errors that carry a server-advertised
// delay; ok=false means the server gave no hint
type RetryAfterHint interface {
	RetryAfter() (time.Duration, bool)
}

// HintFrom extracts a retry hint anywhere in err's chain
func HintFrom(err error) (time.Duration, bool) {
	var hint RetryAfterHint
	if errors.As(err, &hint) {
		return hint.RetryAfter()
	}
	return 0, false
}

// MultiError errors of every failed attempt
type MultiError struct {
	Errors   []error
	Attempts int
}

// Error returns the last attempt's error
func (e *MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "retry failed: no errors"
	}
	return e.Errors[len(e.Errors)-1].Error()
}

// Unwrap exposes every attempt's error to errors.Is / errors.As
func (e *MultiError) Unwrap() []error {
	return e.Errors
}

// AllErrors one line per attempt
func (e *MultiError) AllErrors() string {
	var b strings.Builder
	fmt.Fprintf(&b, "retry failed after %d attempts:", e.Attempts)
	for i, err := range e.Errors {
		fmt.Fprintf(&b, "\n  attempt %d: %v", i+1, err)
	}
	return b.String()
}

// LastError the final attempt's error
func (e *MultiError) LastError() error {
	if len(e.Errors) == 0 {
		return nil
	}
	return e.Errors[len(e.Errors)-1]
}

// GetAttempts number of attempts recorded in err, 0 if err is not a MultiError
func GetAttempts(err error) int {
	var multiErr *MultiError
	if errors.As(err, &multiErr) {
		return multiErr.Attempts
	}
	return 0
}
