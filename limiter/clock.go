package limiter

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// Clock supplies time to every limiter (injectable for tests)
type Clock = clockwork.Clock

// NewRealClock returns the wall clock
func NewRealClock() Clock {
	return clockwork.NewRealClock()
}

// alignDown floors t to a multiple of d since the zero time
func alignDown(t time.Time, d time.Duration) time.Time {
	return t.Truncate(d)
}
