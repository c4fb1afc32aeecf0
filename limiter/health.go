package limiter

import (
	"context"
	"errors"

	"github.com/KOMKZ/go-yogan-admission/component"
)

// HealthChecker reports the admission manager as unhealthy once it is closed
type HealthChecker struct {
	manager *Manager
}

// NewHealthChecker creates the checker
func NewHealthChecker(manager *Manager) *HealthChecker {
	return &HealthChecker{manager: manager}
}

// Name check item name
func (h *HealthChecker) Name() string {
	return "admission"
}

// Check fails when the manager is missing or closed
func (h *HealthChecker) Check(ctx context.Context) error {
	if h.manager == nil {
		return errors.New("admission manager not initialized")
	}
	if h.manager.IsClosed() {
		return errors.New("admission manager closed")
	}
	return ctx.Err()
}

// GetHealthChecker implements component.HealthCheckProvider
func (c *Component) GetHealthChecker() component.HealthChecker {
	if c.manager == nil {
		return nil
	}
	return NewHealthChecker(c.manager)
}
