package limiter

import "time"

// tokenBucket replenishes tokensPerPeriod tokens every whole period.
// lastReplenish only moves by whole periods, so repeated refreshes inside one
// period never add tokens twice and no fraction of a period is lost.
type tokenBucket struct {
	limit         int64
	perPeriod     int64
	period        time.Duration
	tokens        int64
	lastReplenish time.Time
}

func newTokenBucket(limit, perPeriod int64, period time.Duration, initial int64, now time.Time) *tokenBucket {
	if initial < 0 || initial > limit {
		initial = limit
	}
	return &tokenBucket{
		limit:         limit,
		perPeriod:     perPeriod,
		period:        period,
		tokens:        initial,
		lastReplenish: now,
	}
}

// Name returns the algorithm name
func (a *tokenBucket) Name() string {
	return string(AlgorithmTokenBucket)
}

// Refresh adds tokens for every elapsed period, capped at the limit
func (a *tokenBucket) Refresh(now time.Time) {
	elapsed := now.Sub(a.lastReplenish)
	if elapsed < a.period {
		return
	}

	periods := int64(elapsed / a.period)
	if periods > a.limit/a.perPeriod {
		a.tokens = a.limit
	} else {
		a.tokens = min(a.limit, a.tokens+periods*a.perPeriod)
	}
	a.lastReplenish = a.lastReplenish.Add(time.Duration(periods) * a.period)
}

// TryConsume takes tokens if enough are available
func (a *tokenBucket) TryConsume(permits int64) bool {
	if a.tokens < permits {
		return false
	}
	a.tokens -= permits
	return true
}

// Return is a no-op, consumed tokens are never given back
func (a *tokenBucket) Return(int64) {}

// Stateful token leases need no release
func (a *tokenBucket) Stateful() bool {
	return false
}

// Available tokens in the bucket
func (a *tokenBucket) Available() int64 {
	return a.tokens
}

// Capacity bucket size
func (a *tokenBucket) Capacity() int64 {
	return a.limit
}

// RetryAfter time until the replenishment that covers the deficit
func (a *tokenBucket) RetryAfter(now time.Time, permits int64) time.Duration {
	deficit := permits - a.tokens
	if deficit <= 0 {
		return 0
	}
	periods := (deficit + a.perPeriod - 1) / a.perPeriod
	return untilOrZero(a.lastReplenish.Add(time.Duration(periods)*a.period), now)
}

// NextRefresh next replenishment instant
func (a *tokenBucket) NextRefresh(time.Time) (time.Time, bool) {
	return a.lastReplenish.Add(a.period), true
}
