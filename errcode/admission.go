package errcode

import "net/http"

// ModuleAdmission module code of admission errors
const ModuleAdmission = 42

var (
	// ErrRateLimited the request was over its limit
	ErrRateLimited = Register(New(ModuleAdmission, 1, "admission", "admission.rate_limited",
		"Too many requests, please retry later", http.StatusTooManyRequests))

	// ErrQueueFull the wait queue was full
	ErrQueueFull = Register(New(ModuleAdmission, 2, "admission", "admission.queue_full",
		"Too many requests waiting, please retry later", http.StatusTooManyRequests))

	// ErrAdmissionCancelled the request stopped waiting for admission
	ErrAdmissionCancelled = Register(New(ModuleAdmission, 3, "admission", "admission.cancelled",
		"Request cancelled while waiting for admission", http.StatusServiceUnavailable))

	// ErrAdmissionTimeout the request waited longer than the queue timeout
	ErrAdmissionTimeout = Register(New(ModuleAdmission, 4, "admission", "admission.wait_timeout",
		"Timed out waiting for admission", http.StatusServiceUnavailable))

	// ErrRequestTooLarge the request asks for more permits than the limit
	ErrRequestTooLarge = Register(New(ModuleAdmission, 5, "admission", "admission.permits_exceed_limit",
		"Request exceeds the admission limit", http.StatusTooManyRequests))
)
