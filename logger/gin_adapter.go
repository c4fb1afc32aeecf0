package logger

import (
	"strings"
)

// GinLogWriter routes gin's text output (gin.DefaultWriter) to a module logger
type GinLogWriter struct {
	module string
}

// NewGinLogWriter creates the adapter, module e.g. "gin-route" or "gin-internal"
func NewGinLogWriter(module string) *GinLogWriter {
	return &GinLogWriter{module: module}
}

// Write implements io.Writer
func (w *GinLogWriter) Write(p []byte) (n int, err error) {
	msg := strings.TrimSpace(string(p))
	if msg == "" {
		return len(p), nil
	}

	switch {
	case strings.Contains(msg, "[GIN-debug]"):
		// route registration
		Debug(w.module, msg)
	case strings.Contains(msg, "[Recovery]"), strings.Contains(msg, "panic recovered"):
		Error(w.module, msg)
	default:
		Info(w.module, msg)
	}

	return len(p), nil
}
