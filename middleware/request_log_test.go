package middleware

import (
	"net/http"
	"testing"
	"time"

	"github.com/KOMKZ/go-yogan-admission/limiter"
	"github.com/KOMKZ/go-yogan-admission/logger"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestRequestLog_Levels(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	m, _ := newManager(t, func(cfg *limiter.Config) {
		cfg.Policies["fixed"] = limiter.PolicyConfig{Algorithm: "fixed_window", PermitLimit: 1, Window: 12 * time.Second}
	})

	r := gin.New()
	r.Use(RequestLogWithConfig(RequestLogConfig{
		SkipPaths: []string{"/metrics"},
		Logger:    logger.FromZap(zap.New(core), "yogan"),
	}))
	r.GET("/fixed", AdmissionPolicy(m, "fixed"), ok)
	r.GET("/boom", func(c *gin.Context) { c.Status(http.StatusBadGateway) })
	r.GET("/metrics", ok)

	get(r, "/fixed", nil)
	get(r, "/fixed", nil)
	get(r, "/boom", nil)
	get(r, "/metrics", nil)

	entries := logs.All()
	require.Len(t, entries, 3)

	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, "12", entries[1].ContextMap()["retry_after"])
	assert.Equal(t, int64(http.StatusTooManyRequests), entries[1].ContextMap()["status"])
	assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)
}
