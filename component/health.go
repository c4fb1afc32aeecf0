package component

import "context"

// HealthChecker a single health check item
type HealthChecker interface {
	// Name check item name
	Name() string

	// Check returns nil when healthy
	Check(ctx context.Context) error
}

// HealthCheckProvider implemented by components that expose a health check
type HealthCheckProvider interface {
	// GetHealthChecker returns nil when there is nothing to check
	GetHealthChecker() HealthChecker
}
