// Package health aggregates component health checks behind one endpoint
package health

import (
	"time"

	"github.com/KOMKZ/go-yogan-admission/component"
)

// Status health status
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded" // a non-critical check failed
	StatusUnhealthy Status = "unhealthy"
)

// Checker alias of component.HealthChecker
type Checker = component.HealthChecker

// CriticalChecker optionally implemented by checkers.
// A checker reporting false only degrades the overall status when it fails.
type CriticalChecker interface {
	Critical() bool
}

// CheckResult result of one check
type CheckResult struct {
	Name      string        `json:"name"`
	Status    Status        `json:"status"`
	Message   string        `json:"message,omitempty"`
	Error     string        `json:"error,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
	Duration  time.Duration `json:"duration,omitempty"`
}

// Response aggregated health
type Response struct {
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Duration  time.Duration          `json:"duration"`
	Checks    map[string]CheckResult `json:"checks"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// IsHealthy whether every check passed
func (r *Response) IsHealthy() bool {
	return r.Status == StatusHealthy
}

// IsDegraded whether only non-critical checks failed
func (r *Response) IsDegraded() bool {
	return r.Status == StatusDegraded
}

func isCritical(c Checker) bool {
	if cc, ok := c.(CriticalChecker); ok {
		return cc.Critical()
	}
	return true
}
