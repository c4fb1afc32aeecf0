package limiter

import (
	"context"
	"fmt"
	"time"

	"github.com/KOMKZ/go-yogan-admission/logger"
	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// Replenisher ticks auto_replenishment policies in the background.
// Limiters also refresh lazily on access; both paths apply the same
// whole-period arithmetic, so they converge on the same state.
type Replenisher struct {
	scheduler gocron.Scheduler
	logger    *logger.CtxZapLogger
	jobs      int
}

// NewReplenisher creates a replenisher driven by clock
func NewReplenisher(clock Clock, ctxLogger *logger.CtxZapLogger) (*Replenisher, error) {
	if ctxLogger == nil {
		ctxLogger = logger.GetLogger("yogan")
	}

	s, err := gocron.NewScheduler(gocron.WithClock(clock))
	if err != nil {
		return nil, fmt.Errorf("create replenish scheduler: %w", err)
	}

	return &Replenisher{
		scheduler: s,
		logger:    ctxLogger,
	}, nil
}

// Add schedules fn every interval, a tick still running when the next is due is skipped
func (r *Replenisher) Add(name string, interval time.Duration, fn func()) error {
	if interval <= 0 {
		return fmt.Errorf("%w: replenish interval for %s must be > 0", ErrInvalidConfig, name)
	}

	_, err := r.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(fn),
		gocron.WithName("replenish:"+name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("schedule replenish job %s: %w", name, err)
	}

	r.jobs++
	r.logger.DebugCtx(context.Background(), "⏱️ Replenish job scheduled",
		zap.String("policy", name),
		zap.Duration("interval", interval))
	return nil
}

// Jobs number of scheduled jobs
func (r *Replenisher) Jobs() int {
	return r.jobs
}

// Start starts the scheduler
func (r *Replenisher) Start() {
	r.scheduler.Start()
}

// Stop stops the scheduler and waits for running ticks
func (r *Replenisher) Stop() error {
	return r.scheduler.Shutdown()
}

// replenishInterval tick interval of a policy, false if time never grows its capacity
func replenishInterval(cfg PolicyConfig) (time.Duration, bool) {
	switch AlgorithmType(cfg.Algorithm) {
	case AlgorithmTokenBucket:
		return cfg.ReplenishmentPeriod, true
	case AlgorithmFixedWindow:
		return cfg.Window, true
	case AlgorithmSlidingWindow:
		if cfg.SegmentsPerWindow <= 0 {
			return cfg.Window, true
		}
		return cfg.Window / time.Duration(cfg.SegmentsPerWindow), true
	default:
		return 0, false
	}
}
