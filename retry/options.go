package retry

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// Config retry settings
type Config struct {
	maxAttempts int
	backoff     BackoffStrategy
	condition   RetryCondition
	onRetry     func(attempt int, err error, wait time.Duration)
	timeout     time.Duration // per attempt, 0 = unlimited
	maxHint     time.Duration // 0 = any hint is honored
	clock       clockwork.Clock
}

func defaultConfig() *Config {
	return &Config{
		maxAttempts: 3,
		backoff:     ExponentialBackoff(time.Second),
		condition:   AlwaysRetry(),
		clock:       clockwork.NewRealClock(),
	}
}

// Option configures Do
type Option func(*Config)

// MaxAttempts total attempts including the first (default 3)
func MaxAttempts(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// Backoff delay between attempts when the error carries no hint
func Backoff(b BackoffStrategy) Option {
	return func(c *Config) {
		if b != nil {
			c.backoff = b
		}
	}
}

// Condition decides whether an error is retried
func Condition(cond RetryCondition) Option {
	return func(c *Config) {
		if cond != nil {
			c.condition = cond
		}
	}
}

// OnRetry is called before each wait
func OnRetry(f func(attempt int, err error, wait time.Duration)) Option {
	return func(c *Config) {
		c.onRetry = f
	}
}

// Timeout bounds a single attempt
func Timeout(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// MaxHint gives up instead of waiting when the server hint is longer than d
func MaxHint(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.maxHint = d
		}
	}
}

// WithClock replaces the wall clock (tests)
func WithClock(clock clockwork.Clock) Option {
	return func(c *Config) {
		if clock != nil {
			c.clock = clock
		}
	}
}
