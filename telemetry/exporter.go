package telemetry

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/trace"
)

// createSpanExporter builds the span exporter named in the config
func (c *Component) createSpanExporter(ctx context.Context) (trace.SpanExporter, error) {
	switch c.config.Exporter.Type {
	case ExporterOTLP:
		opts := []otlptracegrpc.Option{
			otlptracegrpc.WithEndpoint(c.config.Exporter.Endpoint),
			otlptracegrpc.WithTimeout(c.config.Exporter.Timeout),
		}
		if c.config.Exporter.Insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		if len(c.config.Exporter.Headers) > 0 {
			opts = append(opts, otlptracegrpc.WithHeaders(c.config.Exporter.Headers))
		}
		return otlptrace.New(ctx, otlptracegrpc.NewClient(opts...))
	case ExporterStdout:
		return stdouttrace.New(stdouttrace.WithWriter(c.writer()), stdouttrace.WithPrettyPrint())
	case ExporterNoop:
		return noopExporter{}, nil
	default:
		return nil, fmt.Errorf("unsupported exporter type: %s", c.config.Exporter.Type)
	}
}

// createMetricExporter builds the metric exporter; noop yields nil (no reader)
func (c *Component) createMetricExporter(ctx context.Context) (sdkmetric.Exporter, error) {
	switch c.config.Metrics.Exporter {
	case ExporterOTLP:
		opts := []otlpmetricgrpc.Option{
			otlpmetricgrpc.WithEndpoint(c.config.Exporter.Endpoint),
			otlpmetricgrpc.WithTimeout(c.config.Metrics.ExportTimeout),
		}
		if c.config.Exporter.Insecure {
			opts = append(opts, otlpmetricgrpc.WithInsecure())
		}
		if len(c.config.Exporter.Headers) > 0 {
			opts = append(opts, otlpmetricgrpc.WithHeaders(c.config.Exporter.Headers))
		}
		return otlpmetricgrpc.New(ctx, opts...)
	case ExporterStdout:
		return stdoutmetric.New(stdoutmetric.WithWriter(c.writer()))
	case ExporterNoop:
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported metrics exporter type: %s", c.config.Metrics.Exporter)
	}
}

func (c *Component) writer() io.Writer {
	if c.out != nil {
		return c.out
	}
	return os.Stdout
}

// noopExporter drops every span
type noopExporter struct{}

func (noopExporter) ExportSpans(context.Context, []trace.ReadOnlySpan) error { return nil }

func (noopExporter) Shutdown(context.Context) error { return nil }
