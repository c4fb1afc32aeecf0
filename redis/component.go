package redis

import (
	"context"
	"fmt"

	"github.com/KOMKZ/go-yogan-admission/component"
	"github.com/KOMKZ/go-yogan-admission/logger"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Component Redis component
//
// Reads the "redis" section; without it the component stays idle and
// GetClient returns nil.
// Depends on: config, logger
type Component struct {
	client redis.UniversalClient
	config Config
	logger *logger.CtxZapLogger
}

// NewComponent creates the Redis component
func NewComponent() *Component {
	return &Component{}
}

// Name component name
func (c *Component) Name() string {
	return component.ComponentRedis
}

// DependsOn config and logger
func (c *Component) DependsOn() []string {
	return []string{component.ComponentConfig, component.ComponentLogger}
}

// Init connects to Redis
func (c *Component) Init(ctx context.Context, loader component.ConfigLoader) error {
	c.logger = logger.GetLogger("yogan")

	if !loader.IsSet("redis") {
		c.logger.DebugCtx(ctx, "Redis not configured, skipping")
		return nil
	}

	var cfg Config
	if err := loader.Unmarshal("redis", &cfg); err != nil {
		return fmt.Errorf("read redis config: %w", err)
	}
	cfg.ApplyDefaults()

	client, err := NewClient(ctx, cfg)
	if err != nil {
		return err
	}

	c.client = client
	c.config = cfg
	c.logger.DebugCtx(ctx, "✅ Redis connected",
		zap.String("mode", cfg.Mode),
		zap.Strings("addrs", cfg.Addrs))
	return nil
}

// Start nothing to start
func (c *Component) Start(ctx context.Context) error {
	return nil
}

// Stop closes the client
func (c *Component) Stop(ctx context.Context) error {
	if c.client == nil {
		return nil
	}
	err := c.client.Close()
	c.client = nil
	if err != nil {
		return fmt.Errorf("close redis client: %w", err)
	}
	return nil
}

// GetClient returns the client, nil when not configured
func (c *Component) GetClient() redis.UniversalClient {
	return c.client
}

// GetHealthChecker implements component.HealthCheckProvider
func (c *Component) GetHealthChecker() component.HealthChecker {
	if c.client == nil {
		return nil
	}
	return NewHealthChecker(c.client)
}
