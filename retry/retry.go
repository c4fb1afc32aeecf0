package retry

import (
	"context"
)

// Do runs operation until it succeeds, the condition refuses a retry or
// attempts run out. Between attempts it waits for the server hint carried
// by the error when present, otherwise for the backoff delay.
func Do(ctx context.Context, operation func(ctx context.Context) error, opts ...Option) error {
	_, err := DoWithData(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, operation(ctx)
	}, opts...)
	return err
}

// DoWithData is Do for operations returning a value
func DoWithData[T any](ctx context.Context, operation func(ctx context.Context) (T, error), opts ...Option) (T, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	var (
		result T
		errs   []error
	)
	fail := func(attempt int, extra ...error) (T, error) {
		return result, &MultiError{Errors: append(errs, extra...), Attempts: attempt}
	}

	for attempt := 1; attempt <= cfg.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		var err error
		if cfg.timeout > 0 {
			opCtx, cancel := context.WithTimeout(ctx, cfg.timeout)
			result, err = operation(opCtx)
			cancel()
		} else {
			result, err = operation(ctx)
		}
		if err == nil {
			return result, nil
		}
		errs = append(errs, err)

		if attempt == cfg.maxAttempts || !cfg.condition.ShouldRetry(err, attempt) {
			return fail(attempt)
		}

		wait, hinted := HintFrom(err)
		if hinted {
			if cfg.maxHint > 0 && wait > cfg.maxHint {
				return fail(attempt, ErrHintTooLong)
			}
		} else {
			wait = cfg.backoff.Next(attempt)
		}

		if deadline, ok := ctx.Deadline(); ok && deadline.Sub(cfg.clock.Now()) < wait {
			return fail(attempt, context.DeadlineExceeded)
		}

		if cfg.onRetry != nil {
			cfg.onRetry(attempt, err, wait)
		}

		if wait > 0 {
			select {
			case <-cfg.clock.After(wait):
			case <-ctx.Done():
				return result, ctx.Err()
			}
		}
	}

	return fail(cfg.maxAttempts)
}
