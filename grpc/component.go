package grpc

import (
	"context"
	"fmt"

	"github.com/KOMKZ/go-yogan-admission/component"
	"github.com/KOMKZ/go-yogan-admission/jwt"
	"github.com/KOMKZ/go-yogan-admission/limiter"
	"github.com/KOMKZ/go-yogan-admission/logger"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

// Component gRPC server component
//
// Reads the "grpc" section. The server is built in Start, after the limiter
// component has created its manager.
type Component struct {
	server         *Server
	log            *logger.CtxZapLogger
	config         Config
	registrars     []func(*grpc.Server)
	tracerProvider trace.TracerProvider
	tokens         jwt.TokenManager
	metrics        *GRPCMetrics

	limiterComponent *limiter.Component
}

// NewComponent creates the gRPC component
func NewComponent() *Component {
	return &Component{}
}

// Name component name
func (c *Component) Name() string {
	return component.ComponentGRPC
}

// DependsOn config, logger and the limiter
func (c *Component) DependsOn() []string {
	return []string{
		component.ComponentConfig,
		component.ComponentLogger,
		component.ComponentLimiter,
		"optional:" + component.ComponentTelemetry,
	}
}

// Init reads and validates the server configuration
func (c *Component) Init(ctx context.Context, loader component.ConfigLoader) error {
	c.log = logger.GetLogger("yogan")

	if !loader.IsSet("grpc") {
		c.log.DebugCtx(ctx, "gRPC not configured, skipping")
		return nil
	}

	var cfg Config
	if err := loader.Unmarshal("grpc", &cfg); err != nil {
		return fmt.Errorf("read grpc config: %w", err)
	}
	cfg.Server.ApplyDefaults()
	if err := cfg.Server.Validate(); err != nil {
		return fmt.Errorf("invalid grpc server config: %w", err)
	}

	c.config = cfg
	return nil
}

// Start builds the server with the admission interceptors and starts serving
func (c *Component) Start(ctx context.Context) error {
	if !c.config.Server.Enabled || c.server != nil {
		return nil
	}

	var manager *limiter.Manager
	if c.limiterComponent != nil {
		manager = c.limiterComponent.GetManager()
	}
	if manager == nil {
		c.log.WarnCtx(ctx, "gRPC server starting without admission control")
	}

	server := NewServer(c.config.Server, c.log, manager, c.tokens)
	server.SetTracerProvider(c.tracerProvider)
	if c.metrics != nil {
		server.AddStatsHandler(c.metrics.StatsHandler())
	}
	for _, register := range c.registrars {
		register(server.GetGRPCServer())
	}

	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("start gRPC server: %w", err)
	}
	c.server = server
	c.log.InfoCtx(ctx, "✅ gRPC server listening", zap.Int("port", server.Port))
	return nil
}

// Stop drains the server
func (c *Component) Stop(ctx context.Context) error {
	if c.server != nil {
		c.server.Stop(ctx)
	}
	return nil
}

// RegisterService queues a service registration, applied when the server is built
func (c *Component) RegisterService(register func(*grpc.Server)) {
	c.registrars = append(c.registrars, register)
}

// SetLimiterComponent provides the admission manager
func (c *Component) SetLimiterComponent(lc *limiter.Component) {
	c.limiterComponent = lc
}

// SetTokenManager verifies bearer tokens so per-user policies see the token identity
func (c *Component) SetTokenManager(tokens jwt.TokenManager) {
	c.tokens = tokens
}

// SetMetrics records call counts and latency on the server
func (c *Component) SetMetrics(m *GRPCMetrics) {
	c.metrics = m
}

// SetTracerProvider enables otelgrpc tracing on the server
func (c *Component) SetTracerProvider(tp trace.TracerProvider) {
	c.tracerProvider = tp
}

// GetServer returns the server (nil before Start or when disabled)
func (c *Component) GetServer() *Server {
	return c.server
}

// GetGRPCServer returns the underlying grpc.Server
func (c *Component) GetGRPCServer() *grpc.Server {
	if c.server == nil {
		return nil
	}
	return c.server.GetGRPCServer()
}
