package admission

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/KOMKZ/go-yogan-admission/errcode"
	"github.com/KOMKZ/go-yogan-admission/limiter"
	"github.com/KOMKZ/go-yogan-admission/logger"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newManager(t *testing.T, policies map[string]limiter.PolicyConfig) *limiter.Manager {
	t.Helper()
	cfg := limiter.DefaultConfig()
	cfg.Enabled = true
	cfg.RejectionLog.Enabled = false
	cfg.Policies = policies

	m, err := limiter.NewManager(cfg,
		limiter.WithLogger(logger.FromZap(zap.NewNop(), "yogan")),
		limiter.WithClock(clockwork.NewFakeClockAt(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))))
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestFromLease(t *testing.T) {
	m := newManager(t, map[string]limiter.PolicyConfig{
		"fixed":  {Algorithm: "fixed_window", PermitLimit: 1, Window: 12 * time.Second},
		"queued": {Algorithm: "concurrency", PermitLimit: 1, QueueLimit: 1},
	})
	ctx := context.Background()

	granted := m.Evaluate(ctx, &limiter.Request{Policy: "fixed"})
	require.True(t, granted.Granted())
	assert.Nil(t, FromLease(granted))
	assert.Nil(t, FromLease(nil))

	t.Run("rate limited", func(t *testing.T) {
		e := FromLease(m.Evaluate(ctx, &limiter.Request{Policy: "fixed"}))
		require.NotNil(t, e)
		assert.ErrorIs(t, e, errcode.ErrRateLimited)
		assert.ErrorIs(t, e, limiter.ErrLimitExceeded)
		assert.Equal(t, http.StatusTooManyRequests, e.HTTPStatus())
		assert.Equal(t, int64(12), e.Data()["retry_after"])
		assert.Equal(t, "fixed", e.Data()["limiter"])
	})

	t.Run("too large", func(t *testing.T) {
		e := FromLease(m.Evaluate(ctx, &limiter.Request{Policy: "queued", Permits: 2}))
		require.NotNil(t, e)
		assert.ErrorIs(t, e, errcode.ErrRequestTooLarge)
		assert.NotContains(t, e.Data(), "retry_after")
	})

	t.Run("cancelled", func(t *testing.T) {
		held := m.Evaluate(ctx, &limiter.Request{Policy: "queued"})
		require.True(t, held.Granted())
		defer held.Release()

		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		e := FromLease(m.Evaluate(cancelled, &limiter.Request{Policy: "queued"}))
		require.NotNil(t, e)
		assert.ErrorIs(t, e, errcode.ErrAdmissionCancelled)
		assert.Equal(t, http.StatusServiceUnavailable, e.HTTPStatus())
	})
}

func TestRetryAfterSeconds(t *testing.T) {
	assert.Equal(t, int64(1), RetryAfterSeconds(0))
	assert.Equal(t, int64(1), RetryAfterSeconds(500*time.Millisecond))
	assert.Equal(t, int64(2), RetryAfterSeconds(1100*time.Millisecond))
	assert.Equal(t, int64(12), RetryAfterSeconds(12*time.Second))
}
