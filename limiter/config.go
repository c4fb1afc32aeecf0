package limiter

import (
	"errors"
	"fmt"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Admission control configuration
type Config struct {
	// Enabled whether to enable admission control (false means direct passthrough)
	Enabled bool `mapstructure:"enabled"`

	// EventBusBuffer event bus buffer size
	EventBusBuffer int `mapstructure:"event_bus_buffer"`

	// Global policy applied to every request before its named policy (optional)
	Global *PolicyConfig `mapstructure:"global"`

	// Policies named policies
	Policies map[string]PolicyConfig `mapstructure:"policies"`

	// Endpoints maps a route to the policy attached to it
	Endpoints map[string]string `mapstructure:"endpoints"`

	// Metrics instrument configuration
	Metrics MetricsConfig `mapstructure:"metrics"`

	// RejectionLog rejection logging sink
	RejectionLog RejectionLogConfig `mapstructure:"rejection_log"`

	// Stats Redis rejection statistics sink
	Stats StatsConfig `mapstructure:"stats"`
}

// PolicyConfig one named policy
type PolicyConfig struct {
	// Algorithm fixed_window, sliding_window, token_bucket, concurrency
	Algorithm string `mapstructure:"algorithm"`

	// PermitLimit permits per window (window algorithms) or in flight (concurrency)
	PermitLimit int64 `mapstructure:"permit_limit"`

	// Window configuration
	Window            time.Duration `mapstructure:"window"`
	SegmentsPerWindow int           `mapstructure:"segments_per_window"` // sliding window only

	// Token bucket configuration
	TokenLimit          int64         `mapstructure:"token_limit"` // falls back to permit_limit
	TokensPerPeriod     int64         `mapstructure:"tokens_per_period"`
	ReplenishmentPeriod time.Duration `mapstructure:"replenishment_period"`
	InitialTokens       *int64        `mapstructure:"initial_tokens"` // nil means a full bucket

	// AutoReplenishment also replenish on a background tick
	AutoReplenishment bool `mapstructure:"auto_replenishment"`

	// Queue configuration, QueueLimit counts queued permits (0 disables queueing)
	QueueLimit   int64         `mapstructure:"queue_limit"`
	QueueOrder   string        `mapstructure:"queue_order"`
	QueueTimeout time.Duration `mapstructure:"queue_timeout"`

	// Partitioning: none, user, ip, user_or_ip, header:<Name>
	PartitionBy string `mapstructure:"partition_by"`

	// MaxPartitions bounds the partition registry with LRU eviction (0 = unbounded)
	MaxPartitions int `mapstructure:"max_partitions"`
}

// MetricsConfig holds configuration for limiter metrics
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// RecordAvailable export available permits per partition as a gauge
	RecordAvailable bool `mapstructure:"record_available"`

	// Namespace Prometheus metric namespace
	Namespace string `mapstructure:"namespace"`
}

// RejectionLogConfig throttled warn logging of rejections
type RejectionLogConfig struct {
	Enabled   bool    `mapstructure:"enabled"`
	PerSecond float64 `mapstructure:"per_second"`
	Burst     int     `mapstructure:"burst"`
}

// StatsConfig Redis rejection counters
type StatsConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	KeyPrefix string        `mapstructure:"key_prefix"`
	TTL       time.Duration `mapstructure:"ttl"`
	Workers   int           `mapstructure:"workers"` // async pool size
}

// Return default configuration
func DefaultConfig() Config {
	return Config{
		Enabled:        false,
		EventBusBuffer: 500,
		Policies:       make(map[string]PolicyConfig),
		Endpoints:      make(map[string]string),
		Metrics: MetricsConfig{
			Namespace: "admission",
		},
		RejectionLog: RejectionLogConfig{
			Enabled:   true,
			PerSecond: 1,
			Burst:     10,
		},
		Stats: StatsConfig{
			KeyPrefix: "admission:stats",
			TTL:       24 * time.Hour,
			Workers:   4,
		},
	}
}

// ApplyDefaults fills unset optional values
func (c *Config) ApplyDefaults() {
	d := DefaultConfig()
	if c.EventBusBuffer <= 0 {
		c.EventBusBuffer = d.EventBusBuffer
	}
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = d.Metrics.Namespace
	}
	if c.RejectionLog.PerSecond <= 0 {
		c.RejectionLog.PerSecond = d.RejectionLog.PerSecond
	}
	if c.RejectionLog.Burst <= 0 {
		c.RejectionLog.Burst = d.RejectionLog.Burst
	}
	if c.Stats.KeyPrefix == "" {
		c.Stats.KeyPrefix = d.Stats.KeyPrefix
	}
	if c.Stats.TTL <= 0 {
		c.Stats.TTL = d.Stats.TTL
	}
	if c.Stats.Workers <= 0 {
		c.Stats.Workers = d.Stats.Workers
	}

	if c.Global != nil {
		g := c.Global.withDefaults()
		c.Global = &g
	}
	for name, p := range c.Policies {
		c.Policies[name] = p.withDefaults()
	}
}

// Validate configuration
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil // not enabled, verification not required
	}

	if c.Global != nil {
		if err := c.Global.Validate(); err != nil {
			return wrapPolicyError(GlobalPolicy, err)
		}
	}

	for name, p := range c.Policies {
		if name == "" || name == GlobalPolicy {
			return &ValidationError{Field: "policies", Message: fmt.Sprintf("invalid policy name %q", name)}
		}
		if err := p.Validate(); err != nil {
			return wrapPolicyError(name, err)
		}
	}

	for endpoint, policy := range c.Endpoints {
		if _, ok := c.Policies[policy]; !ok {
			return &ValidationError{
				Field:   "endpoints." + endpoint,
				Message: fmt.Sprintf("unknown policy %q", policy),
			}
		}
	}

	return nil
}

// withDefaults fills optional policy values
func (p PolicyConfig) withDefaults() PolicyConfig {
	if p.QueueOrder == "" {
		p.QueueOrder = string(QueueOldestFirst)
	}
	if p.PartitionBy == "" {
		p.PartitionBy = PartitionNone
	}
	if AlgorithmType(p.Algorithm) == AlgorithmTokenBucket && p.TokenLimit == 0 {
		p.TokenLimit = p.PermitLimit
	}
	return p
}

// Validate policy configuration
func (p PolicyConfig) Validate() error {
	p = p.withDefaults()

	errs := validation.Errors{
		"algorithm": validation.Validate(p.Algorithm,
			validation.Required,
			validation.In(
				string(AlgorithmFixedWindow),
				string(AlgorithmSlidingWindow),
				string(AlgorithmTokenBucket),
				string(AlgorithmConcurrency),
			).Error("must be fixed_window, sliding_window, token_bucket or concurrency"),
		),
		"queue_limit":    validation.Validate(p.QueueLimit, validation.Min(int64(0))),
		"queue_order":    validation.Validate(p.QueueOrder, validation.In(string(QueueOldestFirst))),
		"queue_timeout":  validation.Validate(p.QueueTimeout, validation.Min(time.Duration(0))),
		"partition_by":   validation.Validate(p.PartitionBy, validation.By(validatePartitionBy)),
		"max_partitions": validation.Validate(p.MaxPartitions, validation.Min(0)),
	}

	positive := []validation.Rule{validation.Required, validation.Min(int64(1)).Error("must be > 0")}
	positiveDuration := []validation.Rule{validation.Required, validation.Min(time.Duration(1)).Error("must be > 0")}

	switch AlgorithmType(p.Algorithm) {
	case AlgorithmFixedWindow:
		errs["permit_limit"] = validation.Validate(p.PermitLimit, positive...)
		errs["window"] = validation.Validate(p.Window, positiveDuration...)

	case AlgorithmSlidingWindow:
		errs["permit_limit"] = validation.Validate(p.PermitLimit, positive...)
		errs["window"] = validation.Validate(p.Window, positiveDuration...)
		errs["segments_per_window"] = validation.Validate(p.SegmentsPerWindow,
			validation.Required, validation.Min(1).Error("must be > 0"))
		if p.Window > 0 && p.SegmentsPerWindow > 0 && p.Window/time.Duration(p.SegmentsPerWindow) <= 0 {
			errs["segments_per_window"] = errors.New("segment duration must be > 0")
		}

	case AlgorithmTokenBucket:
		errs["token_limit"] = validation.Validate(p.TokenLimit, positive...)
		errs["tokens_per_period"] = validation.Validate(p.TokensPerPeriod, positive...)
		errs["replenishment_period"] = validation.Validate(p.ReplenishmentPeriod, positiveDuration...)
		if p.InitialTokens != nil && (*p.InitialTokens < 0 || *p.InitialTokens > p.TokenLimit) {
			errs["initial_tokens"] = errors.New("must be between 0 and token_limit")
		}

	case AlgorithmConcurrency:
		errs["permit_limit"] = validation.Validate(p.PermitLimit, positive...)
	}

	return errs.Filter()
}

// initialTokens starting token count, negative means full
func (p PolicyConfig) initialTokens() int64 {
	if p.InitialTokens == nil {
		return -1
	}
	return *p.InitialTokens
}

// validatePartitionBy accepts the built-in key function names
func validatePartitionBy(value interface{}) error {
	s, _ := value.(string)
	switch s {
	case PartitionNone, PartitionUser, PartitionIP, PartitionUserOrIP:
		return nil
	}
	if name, ok := strings.CutPrefix(s, PartitionHeaderPrefix); ok && name != "" {
		return nil
	}
	return fmt.Errorf("must be none, user, ip, user_or_ip or %s<Name>", PartitionHeaderPrefix)
}

// wrapPolicyError attaches the policy name to a validation failure
func wrapPolicyError(policy string, err error) error {
	return &ValidationError{Policy: policy, Err: err}
}

// GetPolicyConfig retrieve a named policy configuration
func (c *Config) GetPolicyConfig(name string) (PolicyConfig, bool) {
	if name == GlobalPolicy && c.Global != nil {
		return *c.Global, true
	}
	p, ok := c.Policies[name]
	return p, ok
}

// clone deep-copies the maps so the manager owns an immutable configuration
func (c Config) clone() Config {
	out := c
	if c.Global != nil {
		g := *c.Global
		out.Global = &g
	}
	out.Policies = make(map[string]PolicyConfig, len(c.Policies))
	for k, v := range c.Policies {
		if v.InitialTokens != nil {
			n := *v.InitialTokens
			v.InitialTokens = &n
		}
		out.Policies[k] = v
	}
	out.Endpoints = make(map[string]string, len(c.Endpoints))
	for k, v := range c.Endpoints {
		out.Endpoints[k] = v
	}
	return out
}
