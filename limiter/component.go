package limiter

import (
	"context"
	"fmt"

	"github.com/KOMKZ/go-yogan-admission/component"
	"github.com/KOMKZ/go-yogan-admission/logger"
	"go.uber.org/zap"
)

// Component admission control component
//
// Implements component.Component, reads the "limiter" configuration section
// Depends on: config, logger, optionally redis and kafka
type Component struct {
	manager   *Manager
	config    Config
	loaded    bool
	opts      []Option
	factories []SinkFactory
	closers   []func()
}

// SinkFactory builds a rejection sink once the dependencies have started.
// A nil sink with a nil error means the sink is not wanted.
type SinkFactory func(cfg Config) (RejectionSink, error)

// NewComponent creates the component, opts are passed to NewManager
func NewComponent(opts ...Option) *Component {
	return &Component{opts: opts}
}

// Name component name
func (c *Component) Name() string {
	return component.ComponentLimiter
}

// DependsOn config and logger; redis and kafka back the optional sinks
func (c *Component) DependsOn() []string {
	return []string{
		component.ComponentConfig,
		component.ComponentLogger,
		"optional:" + component.ComponentRedis,
		"optional:" + component.ComponentKafka,
	}
}

// AddSinkFactory registers a sink built in Start; call before Start
func (c *Component) AddSinkFactory(f SinkFactory) {
	if f != nil {
		c.factories = append(c.factories, f)
	}
}

// Init reads and validates the configuration
func (c *Component) Init(ctx context.Context, loader component.ConfigLoader) error {
	ctxLogger := logger.GetLogger("yogan")
	ctxLogger.DebugCtx(ctx, "🔧 Admission component initializing...")

	if !loader.IsSet("limiter") {
		ctxLogger.DebugCtx(ctx, "Admission control not configured, skipping")
		return nil
	}

	cfg := DefaultConfig()
	if err := loader.Unmarshal("limiter", &cfg); err != nil {
		return fmt.Errorf("read limiter config: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid limiter config: %w", err)
	}

	c.config = cfg
	c.loaded = true

	ctxLogger.DebugCtx(ctx, "✅ Admission config loaded",
		zap.Bool("enabled", cfg.Enabled),
		zap.Int("policies", len(cfg.Policies)),
		zap.Int("endpoints", len(cfg.Endpoints)))
	return nil
}

// Start creates the manager; a disabled or missing configuration yields a passthrough manager
func (c *Component) Start(ctx context.Context) error {
	if c.manager != nil {
		return nil
	}

	cfg := c.config
	if !c.loaded {
		cfg = DefaultConfig()
	}

	opts := append([]Option(nil), c.opts...)
	for _, f := range c.factories {
		sink, err := f(cfg)
		if err != nil {
			c.closeSinks()
			return fmt.Errorf("build rejection sink: %w", err)
		}
		if sink == nil {
			continue
		}
		if closer, ok := sink.(interface{ Close() }); ok {
			c.closers = append(c.closers, closer.Close)
		}
		opts = append(opts, WithRejectionSink(sink))
	}

	manager, err := NewManager(cfg, opts...)
	if err != nil {
		c.closeSinks()
		return fmt.Errorf("create admission manager: %w", err)
	}

	c.manager = manager
	logger.GetLogger("yogan").DebugCtx(ctx, "✅ Admission control started",
		zap.Bool("enabled", manager.IsEnabled()))
	return nil
}

// Stop closes the manager, then drains the sinks built in Start
func (c *Component) Stop(ctx context.Context) error {
	defer c.closeSinks()
	if c.manager != nil {
		if err := c.manager.Close(); err != nil {
			return fmt.Errorf("close admission manager: %w", err)
		}
	}
	return nil
}

func (c *Component) closeSinks() {
	for _, closeFn := range c.closers {
		closeFn()
	}
	c.closers = nil
}

// GetManager returns the manager (nil before Start)
func (c *Component) GetManager() *Manager {
	return c.manager
}
