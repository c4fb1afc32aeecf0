package limiter

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/KOMKZ/go-yogan-admission/logger"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RejectionSink is invoked with the context of every denied admission.
// Producing the client-visible response is up to the surrounding layer.
type RejectionSink interface {
	OnRejected(ctx context.Context, rej Rejection) error
}

// SinkFunc adapts a function to RejectionSink
type SinkFunc func(ctx context.Context, rej Rejection) error

// OnRejected implements RejectionSink
func (f SinkFunc) OnRejected(ctx context.Context, rej Rejection) error {
	return f(ctx, rej)
}

// multiSink fans a rejection out to several sinks
type multiSink []RejectionSink

// OnRejected calls every sink, joining their errors
func (s multiSink) OnRejected(ctx context.Context, rej Rejection) error {
	var errs []error
	for _, sink := range s {
		if err := sink.OnRejected(ctx, rej); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LoggingSink logs rejections at warn, throttled so a flood of denials
// does not flood the log
type LoggingSink struct {
	logger  *logger.CtxZapLogger
	limiter *rate.Limiter

	mu         sync.Mutex
	suppressed int64
}

// NewLoggingSink creates a logging sink allowing perSecond entries with burst
func NewLoggingSink(ctxLogger *logger.CtxZapLogger, perSecond float64, burst int) *LoggingSink {
	if ctxLogger == nil {
		ctxLogger = logger.GetLogger("yogan")
	}
	return &LoggingSink{
		logger:  ctxLogger,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

// OnRejected implements RejectionSink
func (s *LoggingSink) OnRejected(ctx context.Context, rej Rejection) error {
	at := rej.At
	if at.IsZero() {
		at = time.Now()
	}

	s.mu.Lock()
	if !s.limiter.AllowN(at, 1) {
		s.suppressed++
		s.mu.Unlock()
		return nil
	}
	suppressed := s.suppressed
	s.suppressed = 0
	s.mu.Unlock()

	fields := []zap.Field{
		zap.String("policy", rej.Policy),
		zap.String("partition", rej.PartitionKey),
		zap.String("limiter_id", rej.LimiterID),
		zap.String("reason", string(rej.Reason)),
	}
	if rej.HasRetry {
		fields = append(fields, zap.Duration("retry_after", rej.RetryAfter))
	}
	if rej.Request != nil && rej.Request.Endpoint != "" {
		fields = append(fields, zap.String("endpoint", rej.Request.Endpoint))
	}
	if suppressed > 0 {
		fields = append(fields, zap.Int64("suppressed", suppressed))
	}

	s.logger.WarnCtx(ctx, "🚫 Admission rejected", fields...)
	return nil
}

// Suppressed number of rejections not logged since the last entry
func (s *LoggingSink) Suppressed() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.suppressed
}

// AsyncSink runs another sink on a bounded worker pool so slow sinks
// (network, disk) stay off the request path
type AsyncSink struct {
	next    RejectionSink
	pool    *ants.Pool
	timeout time.Duration
	logger  *logger.CtxZapLogger

	// mu orders wg.Add in OnRejected before wg.Wait in Flush and Close
	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewAsyncSink creates an asynchronous sink with the given pool size
func NewAsyncSink(next RejectionSink, workers int, timeout time.Duration, ctxLogger *logger.CtxZapLogger) (*AsyncSink, error) {
	if workers <= 0 {
		workers = 4
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if ctxLogger == nil {
		ctxLogger = logger.GetLogger("yogan")
	}

	// non-blocking: when all workers are busy the submission fails instead of stalling a request
	pool, err := ants.NewPool(workers, ants.WithNonblocking(true))
	if err != nil {
		return nil, err
	}

	return &AsyncSink{
		next:    next,
		pool:    pool,
		timeout: timeout,
		logger:  ctxLogger,
	}, nil
}

// OnRejected submits the rejection to the pool.
// Returns an error if the pool is saturated, ErrSinkClosed after Close.
func (s *AsyncSink) OnRejected(ctx context.Context, rej Rejection) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrSinkClosed
	}

	// the request context ends with the request, keep only its values
	detached := context.WithoutCancel(ctx)

	s.wg.Add(1)
	err := s.pool.Submit(func() {
		defer s.wg.Done()

		runCtx, cancel := context.WithTimeout(detached, s.timeout)
		defer cancel()

		if err := s.next.OnRejected(runCtx, rej); err != nil {
			s.logger.ErrorCtx(runCtx, "Rejection sink failed",
				zap.String("policy", rej.Policy),
				zap.Error(err))
		}
	})
	if err != nil {
		s.wg.Done()
		return err
	}
	return nil
}

// Flush waits for submitted rejections to be processed.
// New submissions wait until it returns.
func (s *AsyncSink) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wg.Wait()
}

// Close stops accepting rejections, waits for pending work and releases the pool
func (s *AsyncSink) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.wg.Wait()
	s.pool.Release()
}
