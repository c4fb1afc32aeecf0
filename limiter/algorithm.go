package limiter

import (
	"fmt"
	"time"
)

// Algorithm per-partition rate limiting state (strategy pattern).
// Implementations are not safe for concurrent use; the owning gate serializes calls.
type Algorithm interface {
	// Name returns the algorithm name
	Name() string

	// Refresh applies time-based replenishment up to now
	Refresh(now time.Time)

	// TryConsume takes permits if available
	TryConsume(permits int64) bool

	// Return gives permits back (stateful algorithms only)
	Return(permits int64)

	// Stateful whether leases must be released
	Stateful() bool

	// Available permits that could be consumed right now
	Available() int64

	// Capacity maximum permits a single acquisition may ask for
	Capacity() int64

	// RetryAfter estimated wait until permits become available, negative if unknown
	RetryAfter(now time.Time, permits int64) time.Duration

	// NextRefresh next instant at which capacity may grow with time
	NextRefresh(now time.Time) (time.Time, bool)
}

// AlgorithmType algorithm type
type AlgorithmType string

const (
	// AlgorithmFixedWindow fixed window counter
	AlgorithmFixedWindow AlgorithmType = "fixed_window"

	// AlgorithmSlidingWindow segmented sliding window
	AlgorithmSlidingWindow AlgorithmType = "sliding_window"

	// AlgorithmTokenBucket token bucket
	AlgorithmTokenBucket AlgorithmType = "token_bucket"

	// AlgorithmConcurrency concurrency cap
	AlgorithmConcurrency AlgorithmType = "concurrency"
)

// NewAlgorithm creates the algorithm state for a validated policy
func NewAlgorithm(cfg PolicyConfig, now time.Time) (Algorithm, error) {
	switch AlgorithmType(cfg.Algorithm) {
	case AlgorithmFixedWindow:
		return newFixedWindow(cfg.PermitLimit, cfg.Window, now), nil
	case AlgorithmSlidingWindow:
		return newSlidingWindow(cfg.PermitLimit, cfg.Window, cfg.SegmentsPerWindow, now), nil
	case AlgorithmTokenBucket:
		return newTokenBucket(cfg.TokenLimit, cfg.TokensPerPeriod, cfg.ReplenishmentPeriod, cfg.initialTokens(), now), nil
	case AlgorithmConcurrency:
		return newConcurrency(cfg.PermitLimit), nil
	default:
		return nil, fmt.Errorf("%w: unknown algorithm %q", ErrInvalidConfig, cfg.Algorithm)
	}
}

// untilOrZero returns at - now, never negative
func untilOrZero(at, now time.Time) time.Duration {
	d := at.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
