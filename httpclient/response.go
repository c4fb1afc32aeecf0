package httpclient

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Response a fully read HTTP response
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte

	Duration time.Duration
	Attempts int
}

// IsSuccess 2xx
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// JSON decodes the body into v
func (r *Response) JSON(v interface{}) error {
	return json.Unmarshal(r.Body, v)
}

// StatusError a non-2xx answer
type StatusError struct {
	Status int
	// Code business error code from the body, 0 if absent
	Code int
	Msg  string

	retryAfter time.Duration
	hasRetry   bool
}

// Error implements error
func (e *StatusError) Error() string {
	if e.Msg != "" {
		return fmt.Sprintf("HTTP %d: %s (code %d)", e.Status, e.Msg, e.Code)
	}
	return fmt.Sprintf("HTTP %d", e.Status)
}

// StatusCode implements retry.HTTPError
func (e *StatusError) StatusCode() int {
	return e.Status
}

// RetryAfter implements retry.RetryAfterHint
func (e *StatusError) RetryAfter() (time.Duration, bool) {
	return e.retryAfter, e.hasRetry
}

// newStatusError reads the error body and the Retry-After header
func newStatusError(resp *Response, now time.Time) *StatusError {
	e := &StatusError{Status: resp.StatusCode}

	var body struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	}
	if json.Unmarshal(resp.Body, &body) == nil {
		e.Code = body.Code
		e.Msg = body.Msg
	}

	e.retryAfter, e.hasRetry = parseRetryAfter(resp.Headers.Get("Retry-After"), now)
	return e
}

// parseRetryAfter accepts delay-seconds or an HTTP date
func parseRetryAfter(value string, now time.Time) (time.Duration, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	if secs, err := strconv.ParseInt(value, 10, 64); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	if at, err := http.ParseTime(value); err == nil {
		d := at.Sub(now)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}
