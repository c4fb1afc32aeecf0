package limiter

import "time"

// concurrencyCap limits in-flight permits; leases must be released
type concurrencyCap struct {
	limit  int64
	active int64
}

func newConcurrency(limit int64) *concurrencyCap {
	return &concurrencyCap{limit: limit}
}

// Name returns the algorithm name
func (a *concurrencyCap) Name() string {
	return string(AlgorithmConcurrency)
}

// Refresh is a no-op, capacity only grows on release
func (a *concurrencyCap) Refresh(time.Time) {}

// TryConsume takes permits if the cap allows it
func (a *concurrencyCap) TryConsume(permits int64) bool {
	if a.active+permits > a.limit {
		return false
	}
	a.active += permits
	return true
}

// Return releases permits of a finished lease
func (a *concurrencyCap) Return(permits int64) {
	a.active -= permits
	if a.active < 0 {
		a.active = 0
	}
}

// Stateful concurrency leases must be released
func (a *concurrencyCap) Stateful() bool {
	return true
}

// Available free slots
func (a *concurrencyCap) Available() int64 {
	return a.limit - a.active
}

// Capacity maximum in-flight permits
func (a *concurrencyCap) Capacity() int64 {
	return a.limit
}

// RetryAfter unknown, depends on when leases are released
func (a *concurrencyCap) RetryAfter(time.Time, int64) time.Duration {
	return -1
}

// NextRefresh never, time does not free slots
func (a *concurrencyCap) NextRefresh(time.Time) (time.Time, bool) {
	return time.Time{}, false
}
