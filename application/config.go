package application

import (
	"fmt"
	"time"

	"github.com/KOMKZ/go-yogan-admission/component"
	"github.com/KOMKZ/go-yogan-admission/httpx"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/gin-gonic/gin"
)

// AppConfig application level configuration.
//
// Component sections (limiter, redis, kafka...) are read by the components
// themselves through the ConfigLoader and never appear here.
type AppConfig struct {
	ApiServer  ApiServerConfig          `mapstructure:"api_server"`
	Middleware MiddlewareConfig         `mapstructure:"middleware"`
	Httpx      httpx.ErrorLoggingConfig `mapstructure:"httpx"`
}

// ApiServerConfig HTTP API server configuration
type ApiServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"` // 0 picks a free port
	Mode            string        `mapstructure:"mode"` // debug, release, test
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// MiddlewareConfig global gin middleware
type MiddlewareConfig struct {
	TraceID    TraceIDConfig    `mapstructure:"trace_id"`
	RequestLog RequestLogConfig `mapstructure:"request_log"`
}

// TraceIDConfig trace id middleware
type TraceIDConfig struct {
	Enable               bool   `mapstructure:"enable"`
	TraceIDKey           string `mapstructure:"trace_id_key"`
	TraceIDHeader        string `mapstructure:"trace_id_header"`
	EnableResponseHeader bool   `mapstructure:"enable_response_header"`
}

// RequestLogConfig access log middleware
type RequestLogConfig struct {
	Enable    bool     `mapstructure:"enable"`
	SkipPaths []string `mapstructure:"skip_paths"` // e.g. /health, /metrics
}

// DefaultAppConfig port 8080, release mode, both middlewares on
func DefaultAppConfig() AppConfig {
	return AppConfig{
		ApiServer: ApiServerConfig{
			Port:            8080,
			Mode:            gin.ReleaseMode,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Middleware: MiddlewareConfig{
			TraceID: TraceIDConfig{
				Enable:               true,
				TraceIDKey:           "trace_id",
				TraceIDHeader:        "X-Trace-ID",
				EnableResponseHeader: true,
			},
			RequestLog: RequestLogConfig{
				Enable:    true,
				SkipPaths: []string{"/health", "/metrics"},
			},
		},
		Httpx: httpx.DefaultErrorLoggingConfig(),
	}
}

// ApplyDefaults fills unset values
func (c *AppConfig) ApplyDefaults() {
	d := DefaultAppConfig()
	if c.ApiServer.Mode == "" {
		c.ApiServer.Mode = d.ApiServer.Mode
	}
	if c.ApiServer.ShutdownTimeout <= 0 {
		c.ApiServer.ShutdownTimeout = d.ApiServer.ShutdownTimeout
	}
	if c.Middleware.TraceID.TraceIDKey == "" {
		c.Middleware.TraceID.TraceIDKey = d.Middleware.TraceID.TraceIDKey
	}
	if c.Middleware.TraceID.TraceIDHeader == "" {
		c.Middleware.TraceID.TraceIDHeader = d.Middleware.TraceID.TraceIDHeader
	}
	if c.Httpx.LogLevel == "" {
		c.Httpx.LogLevel = d.Httpx.LogLevel
	}
}

// Validate checks the server section
func (c AppConfig) Validate() error {
	return validation.ValidateStruct(&c.ApiServer,
		validation.Field(&c.ApiServer.Port, validation.Min(0), validation.Max(65535)),
		validation.Field(&c.ApiServer.Mode, validation.In(gin.DebugMode, gin.ReleaseMode, gin.TestMode)),
		validation.Field(&c.ApiServer.ReadTimeout, validation.Min(time.Duration(0))),
		validation.Field(&c.ApiServer.WriteTimeout, validation.Min(time.Duration(0))),
	)
}

// LoadAppConfig reads the application sections on top of the defaults
func LoadAppConfig(loader component.ConfigLoader) (AppConfig, error) {
	cfg := DefaultAppConfig()
	for key, target := range map[string]interface{}{
		"api_server": &cfg.ApiServer,
		"middleware": &cfg.Middleware,
		"httpx":      &cfg.Httpx,
	} {
		if !loader.IsSet(key) {
			continue
		}
		if err := loader.Unmarshal(key, target); err != nil {
			return cfg, fmt.Errorf("read %s config: %w", key, err)
		}
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid app config: %w", err)
	}
	return cfg, nil
}
