package retry

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type hintError struct {
	status int
	wait   time.Duration
	hinted bool
}

func (e *hintError) Error() string { return fmt.Sprintf("HTTP %d", e.status) }

func (e *hintError) StatusCode() int { return e.status }

func (e *hintError) RetryAfter() (time.Duration, bool) { return e.wait, e.hinted }

func TestDo_SucceedsAfterRetries(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("boom")
		}
		return nil
	}, Backoff(NoBackoff()))

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	sentinel := errors.New("boom")
	err := Do(context.Background(), func(context.Context) error {
		return sentinel
	}, MaxAttempts(2), Backoff(NoBackoff()))

	require.Error(t, err)
	assert.Equal(t, 2, GetAttempts(err))
	assert.ErrorIs(t, err, sentinel)

	var multi *MultiError
	require.ErrorAs(t, err, &multi)
	assert.Len(t, multi.Errors, 2)
	assert.Contains(t, multi.AllErrors(), "attempt 2: boom")
}

func TestDo_WaitsForServerHint(t *testing.T) {
	clock := clockwork.NewFakeClock()
	var calls atomic.Int32
	var waits []time.Duration

	done := make(chan error, 1)
	go func() {
		done <- Do(context.Background(), func(context.Context) error {
			if calls.Add(1) == 1 {
				return &hintError{status: 429, wait: 3 * time.Second, hinted: true}
			}
			return nil
		},
			WithClock(clock),
			Backoff(ConstantBackoff(time.Hour)),
			OnRetry(func(_ int, _ error, wait time.Duration) { waits = append(waits, wait) }),
		)
	}()

	require.NoError(t, clock.BlockUntilContext(context.Background(), 1))
	assert.Equal(t, int32(1), calls.Load())
	clock.Advance(3 * time.Second)

	require.NoError(t, <-done)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, []time.Duration{3 * time.Second}, waits)
}

func TestDo_HintTooLong(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func(context.Context) error {
		calls++
		return &hintError{status: 429, wait: time.Minute, hinted: true}
	}, MaxHint(10*time.Second))

	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, ErrHintTooLong)
}

func TestDo_DeadlineShorterThanWait(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := Do(ctx, func(context.Context) error {
		return &hintError{status: 503, wait: time.Minute, hinted: true}
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, GetAttempts(err))
}

func TestDo_ConditionStopsRetry(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func(context.Context) error {
		calls++
		return &hintError{status: 429}
	}, Condition(RetryOnHint()), Backoff(NoBackoff()))

	require.Error(t, err)
	assert.Equal(t, 1, calls, "a denial without hint is not retried")
}

func TestDo_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := Do(ctx, func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestDo_PerAttemptTimeout(t *testing.T) {
	err := Do(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, MaxAttempts(2), Timeout(10*time.Millisecond), Backoff(NoBackoff()))

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 2, GetAttempts(err))
}

func TestDoWithData(t *testing.T) {
	calls := 0
	got, err := DoWithData(context.Background(), func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("boom")
		}
		return "token", nil
	}, Backoff(NoBackoff()))

	require.NoError(t, err)
	assert.Equal(t, "token", got)
}

func TestConditions(t *testing.T) {
	hinted := &hintError{status: 429, wait: time.Second, hinted: true}
	bare := &hintError{status: 503}

	assert.True(t, RetryOnHint().ShouldRetry(fmt.Errorf("wrapped: %w", hinted), 1))
	assert.False(t, RetryOnHint().ShouldRetry(bare, 1))

	byStatus := RetryOnHTTPStatus(429)
	assert.True(t, byStatus.ShouldRetry(hinted, 1))
	assert.False(t, byStatus.ShouldRetry(bare, 1))
	assert.False(t, byStatus.ShouldRetry(errors.New("plain"), 1))

	byCode := RetryOnGRPCCodes(codes.Unavailable)
	assert.True(t, byCode.ShouldRetry(status.Error(codes.Unavailable, "wait timeout"), 1))
	assert.False(t, byCode.ShouldRetry(status.Error(codes.ResourceExhausted, "limit"), 1))
	assert.False(t, byCode.ShouldRetry(nil, 1))

	assert.True(t, RetryOnTemporaryError().ShouldRetry(context.DeadlineExceeded, 1))
	assert.False(t, RetryOnTemporaryError().ShouldRetry(context.Canceled, 1))

	assert.True(t, Or(NeverRetry(), AlwaysRetry()).ShouldRetry(bare, 1))
	assert.False(t, And(AlwaysRetry(), NeverRetry()).ShouldRetry(bare, 1))
	assert.False(t, And().ShouldRetry(bare, 1))
}

func TestBackoff(t *testing.T) {
	exp := ExponentialBackoff(100*time.Millisecond, WithJitter(0), WithMaxDelay(time.Second))
	assert.Equal(t, time.Duration(0), exp.Next(0))
	assert.Equal(t, 100*time.Millisecond, exp.Next(1))
	assert.Equal(t, 400*time.Millisecond, exp.Next(3))
	assert.Equal(t, time.Second, exp.Next(10))

	constant := ConstantBackoff(time.Second, WithJitter(0))
	assert.Equal(t, time.Second, constant.Next(5))

	jittered := ConstantBackoff(time.Second, WithJitter(0.5))
	for i := 0; i < 20; i++ {
		d := jittered.Next(1)
		assert.GreaterOrEqual(t, d, 500*time.Millisecond)
		assert.LessOrEqual(t, d, 1500*time.Millisecond)
	}

	assert.Equal(t, time.Duration(0), NoBackoff().Next(3))
}
