package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// HealthChecker pings Redis.
// Redis only backs statistics, so a failure degrades the service instead of failing it.
type HealthChecker struct {
	client redis.UniversalClient
}

// NewHealthChecker creates a Redis health checker
func NewHealthChecker(client redis.UniversalClient) *HealthChecker {
	return &HealthChecker{client: client}
}

// Name check item name
func (h *HealthChecker) Name() string {
	return "redis"
}

// Critical false: admission keeps working without Redis
func (h *HealthChecker) Critical() bool {
	return false
}

// Check pings the server
func (h *HealthChecker) Check(ctx context.Context) error {
	if h.client == nil {
		return errors.New("redis client not initialized")
	}
	if err := h.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}
