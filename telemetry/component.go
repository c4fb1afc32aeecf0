package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/KOMKZ/go-yogan-admission/component"
	"github.com/KOMKZ/go-yogan-admission/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/trace"
	otelTrace "go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Component OpenTelemetry tracing and metrics
type Component struct {
	config         Config
	logger         *logger.CtxZapLogger
	tracerProvider *trace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	providers      []component.MetricsProvider
	readers        []sdkmetric.Reader
	out            io.Writer
}

// Option configures the component
type Option func(*Component)

// WithReader adds a metric reader next to the configured exporter
func WithReader(reader sdkmetric.Reader) Option {
	return func(c *Component) {
		c.readers = append(c.readers, reader)
	}
}

// WithWriter redirects the stdout exporters
func WithWriter(w io.Writer) Option {
	return func(c *Component) {
		c.out = w
	}
}

// NewComponent creates the telemetry component
func NewComponent(opts ...Option) *Component {
	c := &Component{
		logger: logger.GetLogger("yogan"),
		config: DefaultConfig(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name component name
func (c *Component) Name() string {
	return component.ComponentTelemetry
}

// DependsOn config and logger
func (c *Component) DependsOn() []string {
	return []string{component.ComponentConfig, component.ComponentLogger}
}

// Init builds the providers and installs them globally
func (c *Component) Init(ctx context.Context, loader component.ConfigLoader) error {
	c.config = DefaultConfig()
	if loader.IsSet("telemetry") {
		if err := loader.Unmarshal("telemetry", &c.config); err != nil {
			return fmt.Errorf("unmarshal telemetry config failed: %w", err)
		}
	}
	if err := c.config.Validate(); err != nil {
		return fmt.Errorf("validate telemetry config failed: %w", err)
	}
	if !c.config.Enabled {
		c.logger.InfoCtx(ctx, "OpenTelemetry is disabled")
		return nil
	}

	res, err := c.createResource(ctx)
	if err != nil {
		return fmt.Errorf("create resource failed: %w", err)
	}

	tp, err := c.createTracerProvider(ctx, res)
	if err != nil {
		return fmt.Errorf("create tracer provider failed: %w", err)
	}
	c.tracerProvider = tp
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if c.config.Metrics.Enabled {
		mp, err := c.createMeterProvider(ctx, res)
		if err != nil {
			_ = tp.Shutdown(ctx)
			return fmt.Errorf("create meter provider failed: %w", err)
		}
		c.meterProvider = mp
		otel.SetMeterProvider(mp)
	}

	c.logger.InfoCtx(ctx, "✅ OpenTelemetry initialized",
		zap.String("service_name", c.config.ServiceName),
		zap.String("exporter_type", c.config.Exporter.Type),
		zap.String("sampler_type", c.config.Sampler.Type),
		zap.Bool("metrics", c.meterProvider != nil))
	return nil
}

// Start registers the metrics of every enabled provider
func (c *Component) Start(ctx context.Context) error {
	if c.meterProvider == nil {
		return nil
	}
	for _, p := range c.providers {
		if !p.IsMetricsEnabled() {
			continue
		}
		meter := c.meterProvider.Meter("yogan/"+p.MetricsName(),
			metric.WithInstrumentationAttributes(c.baseLabels()...))
		if err := p.RegisterMetrics(meter); err != nil {
			return fmt.Errorf("register %s metrics: %w", p.MetricsName(), err)
		}
		c.logger.DebugCtx(ctx, "Registered metrics", zap.String("name", p.MetricsName()))
	}
	return nil
}

// Stop flushes and shuts down both providers
func (c *Component) Stop(ctx context.Context) error {
	var errs []error
	if c.meterProvider != nil {
		if err := c.meterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown meter provider failed: %w", err))
		}
	}
	if c.tracerProvider != nil {
		if err := c.tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracer provider failed: %w", err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		c.logger.ErrorCtx(ctx, "Failed to shutdown OpenTelemetry", zap.Error(err))
		return err
	}
	return nil
}

// AddMetricsProvider registers a metrics source; call before Start
func (c *Component) AddMetricsProvider(p component.MetricsProvider) {
	if p != nil {
		c.providers = append(c.providers, p)
	}
}

// GetTracerProvider the SDK provider, or the global no-op one when disabled
func (c *Component) GetTracerProvider() otelTrace.TracerProvider {
	if c.tracerProvider == nil {
		return otel.GetTracerProvider()
	}
	return c.tracerProvider
}

// GetMeterProvider the SDK provider, or the global one when metrics are disabled
func (c *Component) GetMeterProvider() metric.MeterProvider {
	if c.meterProvider == nil {
		return otel.GetMeterProvider()
	}
	return c.meterProvider
}

// IsEnabled whether tracing is enabled
func (c *Component) IsEnabled() bool {
	return c.config.Enabled
}

// GetConfig returns the loaded configuration
func (c *Component) GetConfig() Config {
	return c.config
}
