package limiter

import "time"

// fixedWindow counts permits in epoch-aligned windows.
// At a window boundary up to 2x the limit can be granted within a short interval.
type fixedWindow struct {
	limit       int64
	window      time.Duration
	count       int64
	windowStart time.Time
}

func newFixedWindow(limit int64, window time.Duration, now time.Time) *fixedWindow {
	return &fixedWindow{
		limit:       limit,
		window:      window,
		windowStart: alignDown(now, window),
	}
}

// Name returns the algorithm name
func (a *fixedWindow) Name() string {
	return string(AlgorithmFixedWindow)
}

// Refresh starts a new window once the current one has elapsed
func (a *fixedWindow) Refresh(now time.Time) {
	current := alignDown(now, a.window)
	if current.After(a.windowStart) {
		a.windowStart = current
		a.count = 0
	}
}

// TryConsume counts permits against the current window
func (a *fixedWindow) TryConsume(permits int64) bool {
	if a.count+permits > a.limit {
		return false
	}
	a.count += permits
	return true
}

// Return is a no-op, window permits are never given back
func (a *fixedWindow) Return(int64) {}

// Stateful window leases need no release
func (a *fixedWindow) Stateful() bool {
	return false
}

// Available remaining permits in the current window
func (a *fixedWindow) Available() int64 {
	return a.limit - a.count
}

// Capacity permits per window
func (a *fixedWindow) Capacity() int64 {
	return a.limit
}

// RetryAfter time until the window that can hold permits starts
func (a *fixedWindow) RetryAfter(now time.Time, permits int64) time.Duration {
	next := a.windowStart.Add(a.window)
	if permits > a.limit {
		// queued demand spills over several windows
		next = next.Add(time.Duration((permits-1)/a.limit) * a.window)
	}
	return untilOrZero(next, now)
}

// NextRefresh start of the next window
func (a *fixedWindow) NextRefresh(time.Time) (time.Time, bool) {
	return a.windowStart.Add(a.window), true
}
