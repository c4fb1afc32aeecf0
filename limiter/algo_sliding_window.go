package limiter

import "time"

// slidingWindow splits the window into segments kept in a ring.
// Elapsed segments are dropped lazily when the clock crosses a segment boundary.
type slidingWindow struct {
	limit    int64
	window   time.Duration
	segment  time.Duration
	segments []int64
	cursor   int       // index of the current segment
	segStart time.Time // start of the current segment
	total    int64
}

func newSlidingWindow(limit int64, window time.Duration, segmentsPerWindow int, now time.Time) *slidingWindow {
	if segmentsPerWindow <= 0 {
		segmentsPerWindow = 1
	}
	segment := window / time.Duration(segmentsPerWindow)
	return &slidingWindow{
		limit:    limit,
		window:   window,
		segment:  segment,
		segments: make([]int64, segmentsPerWindow),
		segStart: alignDown(now, segment),
	}
}

// Name returns the algorithm name
func (a *slidingWindow) Name() string {
	return string(AlgorithmSlidingWindow)
}

// Refresh advances the cursor over every fully elapsed segment
func (a *slidingWindow) Refresh(now time.Time) {
	current := alignDown(now, a.segment)
	if !current.After(a.segStart) {
		return
	}

	elapsed := int64(current.Sub(a.segStart) / a.segment)
	if elapsed >= int64(len(a.segments)) {
		for i := range a.segments {
			a.segments[i] = 0
		}
		a.total = 0
		a.cursor = 0
	} else {
		for i := int64(0); i < elapsed; i++ {
			a.cursor = (a.cursor + 1) % len(a.segments)
			a.total -= a.segments[a.cursor]
			a.segments[a.cursor] = 0
		}
	}
	a.segStart = current
}

// TryConsume counts permits in the current segment if the window total allows it
func (a *slidingWindow) TryConsume(permits int64) bool {
	if a.total+permits > a.limit {
		return false
	}
	a.segments[a.cursor] += permits
	a.total += permits
	return true
}

// Return is a no-op, window permits are never given back
func (a *slidingWindow) Return(int64) {}

// Stateful window leases need no release
func (a *slidingWindow) Stateful() bool {
	return false
}

// Available remaining permits across live segments
func (a *slidingWindow) Available() int64 {
	return a.limit - a.total
}

// Capacity permits per window
func (a *slidingWindow) Capacity() int64 {
	return a.limit
}

// RetryAfter time until enough of the oldest segments expire
func (a *slidingWindow) RetryAfter(now time.Time, permits int64) time.Duration {
	need := a.total + permits - a.limit
	if need <= 0 {
		return 0
	}

	n := len(a.segments)
	var freed int64
	for j := 1; j <= n; j++ {
		freed += a.segments[(a.cursor+j)%n]
		if freed >= need {
			return untilOrZero(a.segStart.Add(time.Duration(j)*a.segment), now)
		}
	}

	// queued demand larger than the whole window content
	rest := need - freed
	extra := time.Duration((rest+a.limit-1)/a.limit) * a.window
	return untilOrZero(a.segStart.Add(time.Duration(n)*a.segment+extra), now)
}

// NextRefresh start of the next segment
func (a *slidingWindow) NextRefresh(time.Time) (time.Time, bool) {
	return a.segStart.Add(a.segment), true
}
