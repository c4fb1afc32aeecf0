package httpx

import (
	"github.com/gin-gonic/gin"
)

const errorLoggingConfigKey = "httpx:error_logging_config"

// errorLoggingConfigInternal preprocessed for per-request lookups
type errorLoggingConfigInternal struct {
	Enable          bool
	IgnoreStatusMap map[int]bool
	FullErrorChain  bool
	LogLevel        string
}

func (c ErrorLoggingConfig) internal() errorLoggingConfigInternal {
	ignore := make(map[int]bool, len(c.IgnoreHTTPStatus))
	for _, status := range c.IgnoreHTTPStatus {
		ignore[status] = true
	}
	return errorLoggingConfigInternal{
		Enable:          c.Enable,
		IgnoreStatusMap: ignore,
		FullErrorChain:  c.FullErrorChain,
		LogLevel:        c.LogLevel,
	}
}

// ErrorLoggingMiddleware stores cfg in the gin context for HandleError
func ErrorLoggingMiddleware(cfg ErrorLoggingConfig) gin.HandlerFunc {
	internal := cfg.internal()
	return func(c *gin.Context) {
		c.Set(errorLoggingConfigKey, internal)
		c.Next()
	}
}

func getErrorLoggingConfig(c *gin.Context) errorLoggingConfigInternal {
	if val, exists := c.Get(errorLoggingConfigKey); exists {
		if cfg, ok := val.(errorLoggingConfigInternal); ok {
			return cfg
		}
	}
	return DefaultErrorLoggingConfig().internal()
}
