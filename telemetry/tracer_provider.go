package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
)

func (c *Component) createTracerProvider(ctx context.Context, res *resource.Resource) (*trace.TracerProvider, error) {
	exporter, err := c.createSpanExporter(ctx)
	if err != nil {
		return nil, fmt.Errorf("create span exporter failed: %w", err)
	}

	opts := []trace.TracerProviderOption{
		trace.WithResource(res),
		trace.WithSampler(c.createSampler()),
	}
	if c.config.Batch.Enabled {
		opts = append(opts, trace.WithBatcher(exporter,
			trace.WithMaxQueueSize(c.config.Batch.MaxQueueSize),
			trace.WithMaxExportBatchSize(c.config.Batch.MaxExportBatchSize),
			trace.WithBatchTimeout(c.config.Batch.ScheduleDelay),
			trace.WithExportTimeout(c.config.Batch.ExportTimeout),
		))
	} else {
		// synchronous export, for debugging
		opts = append(opts, trace.WithSyncer(exporter))
	}

	return trace.NewTracerProvider(opts...), nil
}

func (c *Component) createSampler() trace.Sampler {
	switch c.config.Sampler.Type {
	case "always_on":
		return trace.AlwaysSample()
	case "always_off":
		return trace.NeverSample()
	case "trace_id_ratio":
		return trace.TraceIDRatioBased(c.config.Sampler.Ratio)
	default:
		return trace.ParentBased(trace.AlwaysSample())
	}
}

// createMeterProvider builds the meter provider; extra readers (tests) are added as is
func (c *Component) createMeterProvider(ctx context.Context, res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	opts := []sdkmetric.Option{sdkmetric.WithResource(res)}

	exporter, err := c.createMetricExporter(ctx)
	if err != nil {
		return nil, fmt.Errorf("create metric exporter failed: %w", err)
	}
	if exporter != nil {
		opts = append(opts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter,
			sdkmetric.WithInterval(c.config.Metrics.ExportInterval),
			sdkmetric.WithTimeout(c.config.Metrics.ExportTimeout),
		)))
	}
	for _, reader := range c.readers {
		opts = append(opts, sdkmetric.WithReader(reader))
	}

	return sdkmetric.NewMeterProvider(opts...), nil
}

func (c *Component) baseLabels() []attribute.KeyValue {
	labels := make([]attribute.KeyValue, 0, len(c.config.Metrics.Labels))
	for k, v := range c.config.Metrics.Labels {
		labels = append(labels, attribute.String(k, v))
	}
	return labels
}
