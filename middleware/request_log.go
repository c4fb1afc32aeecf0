package middleware

import (
	"net/http"
	"time"

	"github.com/KOMKZ/go-yogan-admission/logger"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RequestLogConfig request log configuration
type RequestLogConfig struct {
	// SkipPaths paths not logged, e.g. /metrics
	SkipPaths []string

	// Logger destination (default module "yogan")
	Logger *logger.CtxZapLogger
}

// DefaultRequestLogConfig default configuration
func DefaultRequestLogConfig() RequestLogConfig {
	return RequestLogConfig{SkipPaths: []string{}}
}

// RequestLog structured access log.
// 5xx log at error, 4xx at warn (429 included), the rest at info.
func RequestLog() gin.HandlerFunc {
	return RequestLogWithConfig(DefaultRequestLogConfig())
}

// RequestLogWithConfig request log with a custom configuration
func RequestLogWithConfig(cfg RequestLogConfig) gin.HandlerFunc {
	skip := make(map[string]bool, len(cfg.SkipPaths))
	for _, path := range cfg.SkipPaths {
		skip[path] = true
	}

	return func(c *gin.Context) {
		if skip[c.Request.URL.Path] {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("body_size", c.Writer.Size()),
		}
		if retry := c.Writer.Header().Get("Retry-After"); retry != "" {
			fields = append(fields, zap.String("retry_after", retry))
		}
		if msg := c.Errors.ByType(gin.ErrorTypePrivate).String(); msg != "" {
			fields = append(fields, zap.String("error", msg))
		}

		l := cfg.Logger
		if l == nil {
			l = logger.GetLogger("yogan")
		}

		ctx := c.Request.Context()
		switch {
		case status >= http.StatusInternalServerError:
			l.ErrorCtx(ctx, "HTTP request", fields...)
		case status >= http.StatusBadRequest:
			l.WarnCtx(ctx, "HTTP request", fields...)
		default:
			l.InfoCtx(ctx, "HTTP request", fields...)
		}
	}
}
