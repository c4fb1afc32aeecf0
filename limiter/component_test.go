package limiter

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/KOMKZ/go-yogan-admission/component"
	"github.com/KOMKZ/go-yogan-admission/config"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadConfig(t *testing.T, yaml string) *config.Loader {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	loader, err := config.NewLoaderBuilder().WithConfigPath(dir).Build()
	require.NoError(t, err)
	return loader
}

func TestComponent_Lifecycle(t *testing.T) {
	loader := loadConfig(t, `
limiter:
  enabled: true
  rejection_log:
    enabled: false
  policies:
    fixed:
      algorithm: fixed_window
      permit_limit: 1
      window: 12s
  endpoints:
    /ratelimit/rate-limit/fixed: fixed
`)
	clock := newTestClock()
	c := NewComponent(WithLogger(nopLogger()), WithClock(clock))
	var _ component.Component = c

	assert.Equal(t, component.ComponentLimiter, c.Name())
	assert.Contains(t, c.DependsOn(), component.ComponentConfig)
	assert.Nil(t, c.GetManager())

	ctx := context.Background()
	require.NoError(t, c.Init(ctx, loader))
	require.NoError(t, c.Start(ctx))
	defer c.Stop(ctx)

	m := c.GetManager()
	require.NotNil(t, m)
	assert.True(t, m.IsEnabled())
	assert.Equal(t, 12*time.Second, m.GetConfig().Policies["fixed"].Window)

	req := &Request{Endpoint: "/ratelimit/rate-limit/fixed"}
	first := m.Evaluate(ctx, req)
	require.True(t, first.Granted())
	second := m.Evaluate(ctx, req)
	assert.False(t, second.Granted())

	require.NoError(t, c.Start(ctx), "Start is idempotent")
	assert.Same(t, m, c.GetManager())
}

func TestComponent_MissingSectionPassesThrough(t *testing.T) {
	loader := loadConfig(t, "server:\n  port: 8080\n")
	c := NewComponent(WithLogger(nopLogger()))

	ctx := context.Background()
	require.NoError(t, c.Init(ctx, loader))
	require.NoError(t, c.Start(ctx))
	defer c.Stop(ctx)

	assert.False(t, c.GetManager().IsEnabled())
	assert.True(t, c.GetManager().Evaluate(ctx, &Request{Endpoint: "/x"}).Granted())
}

func TestComponent_InvalidConfig(t *testing.T) {
	loader := loadConfig(t, `
limiter:
  enabled: true
  policies:
    broken:
      algorithm: fixed_window
`)
	c := NewComponent(WithLogger(nopLogger()))

	err := c.Init(context.Background(), loader)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestComponent_StopBeforeStart(t *testing.T) {
	assert.NoError(t, NewComponent().Stop(context.Background()))
}

func TestComponent_HealthChecker(t *testing.T) {
	loader := loadConfig(t, "limiter:\n  enabled: false\n")
	c := NewComponent(WithLogger(nopLogger()))
	ctx := context.Background()

	var _ component.HealthCheckProvider = c
	assert.Nil(t, c.GetHealthChecker())

	require.NoError(t, c.Init(ctx, loader))
	require.NoError(t, c.Start(ctx))

	checker := c.GetHealthChecker()
	require.NotNil(t, checker)
	assert.Equal(t, "admission", checker.Name())
	assert.NoError(t, checker.Check(ctx))

	require.NoError(t, c.Stop(ctx))
	assert.True(t, c.GetManager().IsClosed())
	assert.Error(t, checker.Check(ctx))
}

func TestComponent_SinkFactories(t *testing.T) {
	loader := loadConfig(t, `
limiter:
  enabled: true
  rejection_log:
    enabled: false
  stats:
    enabled: true
    key_prefix: "demo:stats:"
    workers: 1
  policies:
    fixed:
      algorithm: fixed_window
      permit_limit: 1
      window: 1m
  endpoints:
    /fixed: fixed
`)
	mr, rdb := newTestRedis(t)
	clock := newTestClock()
	c := NewComponent(WithLogger(nopLogger()), WithClock(clock))
	c.AddSinkFactory(RedisStatsFactory(func() redis.UniversalClient { return rdb }))
	c.AddSinkFactory(func(Config) (RejectionSink, error) { return nil, nil })

	ctx := context.Background()
	require.NoError(t, c.Init(ctx, loader))
	require.NoError(t, c.Start(ctx))

	m := c.GetManager()
	req := &Request{Endpoint: "/fixed"}
	require.True(t, m.Evaluate(ctx, req).Granted())
	require.False(t, m.Evaluate(ctx, req).Granted())

	// Stop drains the async stats sink
	require.NoError(t, c.Stop(ctx))
	bucket := "demo:stats:minute:" + clock.Now().UTC().Format("200601021504")
	assert.Equal(t, "1", mr.HGet(bucket, "fixed:limit_exceeded"))
}

func TestComponent_SinkFactoryError(t *testing.T) {
	loader := loadConfig(t, "limiter:\n  enabled: false\n")
	c := NewComponent(WithLogger(nopLogger()))
	c.AddSinkFactory(func(Config) (RejectionSink, error) { return nil, assert.AnError })

	ctx := context.Background()
	require.NoError(t, c.Init(ctx, loader))
	err := c.Start(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Nil(t, c.GetManager())
}

func TestRedisStatsFactory_SkipsWhenUnavailable(t *testing.T) {
	cfg := DefaultConfig()
	sink, err := RedisStatsFactory(func() redis.UniversalClient { return nil })(cfg)
	assert.NoError(t, err)
	assert.Nil(t, sink, "stats disabled")

	cfg.Stats.Enabled = true
	sink, err = RedisStatsFactory(func() redis.UniversalClient { return nil })(cfg)
	assert.NoError(t, err)
	assert.Nil(t, sink, "no client")
}
