package middleware

import (
	"context"

	"github.com/KOMKZ/go-yogan-admission/logger"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

const (
	// TraceIDKeyDefault gin context key
	TraceIDKeyDefault = "trace_id"

	// TraceIDHeaderDefault request and response header
	TraceIDHeaderDefault = "X-Trace-ID"
)

// TraceConfig trace middleware configuration
type TraceConfig struct {
	// TraceIDKey gin context key (default "trace_id")
	TraceIDKey string

	// TraceIDHeader header carrying the id (default "X-Trace-ID")
	TraceIDHeader string

	// EnableResponseHeader echo the id in the response (default true)
	EnableResponseHeader bool

	// Generator id generator (default UUID)
	Generator func() string
}

// DefaultTraceConfig default configuration
func DefaultTraceConfig() TraceConfig {
	return TraceConfig{
		TraceIDKey:           TraceIDKeyDefault,
		TraceIDHeader:        TraceIDHeaderDefault,
		EnableResponseHeader: true,
		Generator:            uuid.NewString,
	}
}

// TraceID assigns each request a trace id.
// An active OpenTelemetry span wins; otherwise the incoming header is reused or a
// new id generated and stored in the request context for the logger.
//
//	engine.Use(middleware.TraceID(middleware.DefaultTraceConfig()))
func TraceID(cfg TraceConfig) gin.HandlerFunc {
	if cfg.TraceIDKey == "" {
		cfg.TraceIDKey = TraceIDKeyDefault
	}
	if cfg.TraceIDHeader == "" {
		cfg.TraceIDHeader = TraceIDHeaderDefault
	}
	if cfg.Generator == nil {
		cfg.Generator = uuid.NewString
	}

	return func(c *gin.Context) {
		var traceID string
		if span := trace.SpanFromContext(c.Request.Context()); span.SpanContext().IsValid() {
			traceID = span.SpanContext().TraceID().String()
		} else {
			traceID = c.GetHeader(cfg.TraceIDHeader)
			if traceID == "" {
				traceID = cfg.Generator()
			}
			ctx := context.WithValue(c.Request.Context(), logger.TraceIDKey{}, traceID)
			c.Request = c.Request.WithContext(ctx)
		}

		c.Set(cfg.TraceIDKey, traceID)
		if cfg.EnableResponseHeader {
			c.Writer.Header().Set(cfg.TraceIDHeader, traceID)
		}

		c.Next()
	}
}

// GetTraceID trace id stored under the default key
func GetTraceID(c *gin.Context) string {
	return c.GetString(TraceIDKeyDefault)
}
