package limiter

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicyConfig_Validate(t *testing.T) {
	negative := int64(-1)
	tooMany := int64(10)

	tests := []struct {
		name    string
		cfg     PolicyConfig
		wantErr string
	}{
		{"fixed window ok", PolicyConfig{Algorithm: "fixed_window", PermitLimit: 4, Window: 12 * time.Second}, ""},
		{"sliding window ok", PolicyConfig{Algorithm: "sliding_window", PermitLimit: 4, Window: 12 * time.Second, SegmentsPerWindow: 4}, ""},
		{"token bucket ok", PolicyConfig{Algorithm: "token_bucket", TokenLimit: 5, TokensPerPeriod: 1, ReplenishmentPeriod: time.Second}, ""},
		{"token limit falls back to permit limit", PolicyConfig{Algorithm: "token_bucket", PermitLimit: 5, TokensPerPeriod: 1, ReplenishmentPeriod: time.Second}, ""},
		{"concurrency ok", PolicyConfig{Algorithm: "concurrency", PermitLimit: 1, QueueLimit: 2}, ""},
		{"header partition ok", PolicyConfig{Algorithm: "concurrency", PermitLimit: 1, PartitionBy: "header:X-Tenant"}, ""},

		{"missing algorithm", PolicyConfig{PermitLimit: 1}, "algorithm"},
		{"unknown algorithm", PolicyConfig{Algorithm: "leaky_bucket", PermitLimit: 1}, "algorithm"},
		{"zero permit limit", PolicyConfig{Algorithm: "fixed_window", Window: time.Second}, "permit_limit"},
		{"negative permit limit", PolicyConfig{Algorithm: "concurrency", PermitLimit: -1}, "permit_limit"},
		{"zero window", PolicyConfig{Algorithm: "fixed_window", PermitLimit: 1}, "window"},
		{"zero segments", PolicyConfig{Algorithm: "sliding_window", PermitLimit: 1, Window: time.Second}, "segments_per_window"},
		{"segment shorter than a nanosecond", PolicyConfig{Algorithm: "sliding_window", PermitLimit: 1, Window: 2, SegmentsPerWindow: 4}, "segments_per_window"},
		{"zero tokens per period", PolicyConfig{Algorithm: "token_bucket", TokenLimit: 1, ReplenishmentPeriod: time.Second}, "tokens_per_period"},
		{"zero replenishment period", PolicyConfig{Algorithm: "token_bucket", TokenLimit: 1, TokensPerPeriod: 1}, "replenishment_period"},
		{"negative initial tokens", PolicyConfig{Algorithm: "token_bucket", TokenLimit: 5, TokensPerPeriod: 1, ReplenishmentPeriod: time.Second, InitialTokens: &negative}, "initial_tokens"},
		{"initial tokens over limit", PolicyConfig{Algorithm: "token_bucket", TokenLimit: 5, TokensPerPeriod: 1, ReplenishmentPeriod: time.Second, InitialTokens: &tooMany}, "initial_tokens"},
		{"negative queue limit", PolicyConfig{Algorithm: "concurrency", PermitLimit: 1, QueueLimit: -1}, "queue_limit"},
		{"unsupported queue order", PolicyConfig{Algorithm: "concurrency", PermitLimit: 1, QueueOrder: "newest_first"}, "queue_order"},
		{"negative queue timeout", PolicyConfig{Algorithm: "concurrency", PermitLimit: 1, QueueTimeout: -time.Second}, "queue_timeout"},
		{"unknown partition", PolicyConfig{Algorithm: "concurrency", PermitLimit: 1, PartitionBy: "session"}, "partition_by"},
		{"empty header name", PolicyConfig{Algorithm: "concurrency", PermitLimit: 1, PartitionBy: "header:"}, "partition_by"},
		{"negative max partitions", PolicyConfig{Algorithm: "concurrency", PermitLimit: 1, MaxPartitions: -1}, "max_partitions"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_ValidateDisabledSkipsChecks(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Policies["broken"] = PolicyConfig{Algorithm: "nope"}
	assert.NoError(t, cfg.Validate())
}

func TestConfig_ValidateReportsPolicy(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.Global = &PolicyConfig{Algorithm: "fixed_window"}

	err := cfg.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidConfig))

	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, GlobalPolicy, ve.Policy)
	assert.Contains(t, ve.Error(), "policy 'global'")
}

func TestConfig_ApplyDefaults(t *testing.T) {
	cfg := Config{
		Enabled: true,
		Global:  &PolicyConfig{Algorithm: "concurrency", PermitLimit: 1},
		Policies: map[string]PolicyConfig{
			"tokens": {Algorithm: "token_bucket", PermitLimit: 7, TokensPerPeriod: 1, ReplenishmentPeriod: time.Second},
		},
	}
	cfg.ApplyDefaults()

	assert.Equal(t, 500, cfg.EventBusBuffer)
	assert.Equal(t, "admission", cfg.Metrics.Namespace)
	assert.Equal(t, "admission:stats", cfg.Stats.KeyPrefix)
	assert.Equal(t, 24*time.Hour, cfg.Stats.TTL)
	assert.Equal(t, 4, cfg.Stats.Workers)
	assert.Equal(t, float64(1), cfg.RejectionLog.PerSecond)
	assert.Equal(t, 10, cfg.RejectionLog.Burst)

	assert.Equal(t, PartitionNone, cfg.Global.PartitionBy)
	assert.Equal(t, string(QueueOldestFirst), cfg.Global.QueueOrder)
	assert.Equal(t, int64(7), cfg.Policies["tokens"].TokenLimit)
	assert.NoError(t, cfg.Validate())
}

func TestConfig_CloneIsDeep(t *testing.T) {
	initial := int64(2)
	cfg := DefaultConfig()
	cfg.Global = &PolicyConfig{Algorithm: "concurrency", PermitLimit: 1}
	cfg.Policies["tokens"] = PolicyConfig{Algorithm: "token_bucket", TokenLimit: 5, TokensPerPeriod: 1, ReplenishmentPeriod: time.Second, InitialTokens: &initial}
	cfg.Endpoints["/a"] = "tokens"

	clone := cfg.clone()
	cfg.Global.PermitLimit = 10
	initial = 4
	cfg.Endpoints["/a"] = "other"

	assert.Equal(t, int64(1), clone.Global.PermitLimit)
	assert.Equal(t, int64(2), *clone.Policies["tokens"].InitialTokens)
	assert.Equal(t, "tokens", clone.Endpoints["/a"])
}

func TestConfig_GetPolicyConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Global = &PolicyConfig{Algorithm: "concurrency", PermitLimit: 3}
	cfg.Policies["api"] = PolicyConfig{Algorithm: "concurrency", PermitLimit: 1}

	global, ok := cfg.GetPolicyConfig(GlobalPolicy)
	assert.True(t, ok)
	assert.Equal(t, int64(3), global.PermitLimit)

	_, ok = cfg.GetPolicyConfig("api")
	assert.True(t, ok)

	_, ok = cfg.GetPolicyConfig("missing")
	assert.False(t, ok)
}
