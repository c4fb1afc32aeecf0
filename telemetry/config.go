package telemetry

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Exporter types
const (
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"
	ExporterNoop   = "noop"
)

// Config OpenTelemetry configuration, read from the "telemetry" section
type Config struct {
	Enabled        bool                   `mapstructure:"enabled"`
	ServiceName    string                 `mapstructure:"service_name"`
	ServiceVersion string                 `mapstructure:"service_version"`
	Exporter       ExporterConfig         `mapstructure:"exporter"`
	Sampler        SamplerConfig          `mapstructure:"sampler"`
	ResourceAttrs  map[string]interface{} `mapstructure:"resource_attributes"` // nested maps are flattened with dots
	Batch          BatchConfig            `mapstructure:"batch"`
	Metrics        MetricsConfig          `mapstructure:"metrics"`
}

// ExporterConfig span exporter
type ExporterConfig struct {
	Type     string            `mapstructure:"type"`     // stdout, otlp or noop
	Endpoint string            `mapstructure:"endpoint"` // otlp only
	Insecure bool              `mapstructure:"insecure"`
	Timeout  time.Duration     `mapstructure:"timeout"`
	Headers  map[string]string `mapstructure:"headers"`
}

// SamplerConfig sampling
type SamplerConfig struct {
	Type  string  `mapstructure:"type"`  // always_on, always_off, trace_id_ratio, parent_based_always_on
	Ratio float64 `mapstructure:"ratio"` // trace_id_ratio only
}

// BatchConfig batch span processor
type BatchConfig struct {
	Enabled            bool          `mapstructure:"enabled"`
	MaxQueueSize       int           `mapstructure:"max_queue_size"`
	MaxExportBatchSize int           `mapstructure:"max_export_batch_size"`
	ScheduleDelay      time.Duration `mapstructure:"schedule_delay"`
	ExportTimeout      time.Duration `mapstructure:"export_timeout"`
}

// MetricsConfig meter provider
type MetricsConfig struct {
	Enabled        bool              `mapstructure:"enabled"`
	Exporter       string            `mapstructure:"exporter"` // stdout, otlp or noop
	ExportInterval time.Duration     `mapstructure:"export_interval"`
	ExportTimeout  time.Duration     `mapstructure:"export_timeout"`
	Labels         map[string]string `mapstructure:"labels"`
}

// DefaultConfig disabled, stdout exporters
func DefaultConfig() Config {
	return Config{
		Enabled:        false,
		ServiceName:    "yogan-admission",
		ServiceVersion: "1.0.0",
		Exporter: ExporterConfig{
			Type:    ExporterStdout,
			Timeout: 10 * time.Second,
		},
		Sampler: SamplerConfig{
			Type:  "parent_based_always_on",
			Ratio: 1.0,
		},
		Batch: BatchConfig{
			Enabled:            true,
			MaxQueueSize:       2048,
			MaxExportBatchSize: 512,
			ScheduleDelay:      5 * time.Second,
			ExportTimeout:      30 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled:        false,
			Exporter:       ExporterStdout,
			ExportInterval: 30 * time.Second,
			ExportTimeout:  10 * time.Second,
		},
	}
}

// Validate configuration, a disabled config is always valid
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}

	exporters := []interface{}{ExporterStdout, ExporterOTLP, ExporterNoop}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.ServiceName, validation.Required),
	); err != nil {
		return err
	}
	if err := validation.ValidateStruct(&c.Exporter,
		validation.Field(&c.Exporter.Type, validation.Required, validation.In(exporters...)),
		validation.Field(&c.Exporter.Endpoint, validation.When(c.Exporter.Type == ExporterOTLP, validation.Required)),
	); err != nil {
		return err
	}
	if err := validation.ValidateStruct(&c.Sampler,
		validation.Field(&c.Sampler.Type, validation.In("always_on", "always_off", "trace_id_ratio", "parent_based_always_on")),
		validation.Field(&c.Sampler.Ratio, validation.Min(0.0), validation.Max(1.0)),
	); err != nil {
		return err
	}
	if !c.Metrics.Enabled {
		return nil
	}
	return validation.ValidateStruct(&c.Metrics,
		validation.Field(&c.Metrics.Exporter, validation.Required, validation.In(exporters...)),
		validation.Field(&c.Metrics.ExportInterval, validation.Required, validation.Min(time.Second)),
	)
}
