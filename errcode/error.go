// Package errcode provides layered error codes.
// Code format: MMBBBB (MM = module code, BBBB = business code).
package errcode

import (
	"fmt"
	"net/http"
)

// LayeredError error code carrying its module, message key and HTTP status.
// With* methods return copies; registered values are never mutated.
type LayeredError struct {
	module     string
	code       int // MMBBBB, e.g. 420001
	msgKey     string
	msg        string
	httpStatus int
	data       map[string]interface{}
	cause      error
}

// New creates an error code.
// moduleCode 10-99, businessCode 0001-9999, httpStatus defaults to 200.
func New(moduleCode, businessCode int, module, msgKey, msg string, httpStatus ...int) *LayeredError {
	status := http.StatusOK
	if len(httpStatus) > 0 {
		status = httpStatus[0]
	}
	return &LayeredError{
		module:     module,
		code:       moduleCode*10000 + businessCode,
		msgKey:     msgKey,
		msg:        msg,
		httpStatus: status,
		data:       make(map[string]interface{}),
	}
}

func (e *LayeredError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.cause)
	}
	return e.msg
}

// Code full error code
func (e *LayeredError) Code() int {
	return e.code
}

// Module module name
func (e *LayeredError) Module() string {
	return e.module
}

// MsgKey message key, e.g. "admission.rate_limited"
func (e *LayeredError) MsgKey() string {
	return e.msgKey
}

// Message client facing message
func (e *LayeredError) Message() string {
	return e.msg
}

// HTTPStatus HTTP status code
func (e *LayeredError) HTTPStatus() int {
	return e.httpStatus
}

// Data context data rendered with the response
func (e *LayeredError) Data() map[string]interface{} {
	return e.data
}

// Unwrap returns the wrapped cause
func (e *LayeredError) Unwrap() error {
	return e.cause
}

// WithMsgf copy with a formatted message
func (e *LayeredError) WithMsgf(format string, args ...interface{}) *LayeredError {
	clone := *e
	clone.msg = fmt.Sprintf(format, args...)
	return &clone
}

// WithData copy with one more data entry
func (e *LayeredError) WithData(key string, value interface{}) *LayeredError {
	clone := *e
	clone.data = e.cloneData()
	clone.data[key] = value
	return &clone
}

// Wrap copy wrapping cause; a nil cause returns e
func (e *LayeredError) Wrap(cause error) *LayeredError {
	if cause == nil {
		return e
	}
	clone := *e
	clone.cause = cause
	return &clone
}

// Is matches any LayeredError with the same code
func (e *LayeredError) Is(target error) bool {
	t, ok := target.(*LayeredError)
	if !ok {
		return false
	}
	return e.code == t.code
}

func (e *LayeredError) cloneData() map[string]interface{} {
	data := make(map[string]interface{}, len(e.data)+1)
	for k, v := range e.data {
		data[k] = v
	}
	return data
}

// String debug representation
func (e *LayeredError) String() string {
	if e.cause != nil {
		return fmt.Sprintf("LayeredError{code:%d, module:%s, msg:%s, cause:%v}",
			e.code, e.module, e.msg, e.cause)
	}
	return fmt.Sprintf("LayeredError{code:%d, module:%s, msg:%s}",
		e.code, e.module, e.msg)
}
