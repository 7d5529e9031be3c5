package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "igreels/pkg/errors"
	"igreels/pkg/logger"
)

func TestExponentialBackoff(t *testing.T) {
	backoff := &ExponentialBackoff{
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   time.Second,
		Multiplier: 2.0,
	}

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 0},
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, time.Second},
		{9, time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, backoff.NextDelay(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestExponentialBackoffJitterBounds(t *testing.T) {
	backoff := &ExponentialBackoff{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2, JitterFactor: 0.3}
	for i := 0; i < 50; i++ {
		d := backoff.NextDelay(2)
		assert.GreaterOrEqual(t, d, 140*time.Millisecond)
		assert.LessOrEqual(t, d, 260*time.Millisecond)
	}
}

func TestErrorTypeBackoffFor(t *testing.T) {
	etb := NewErrorTypeBackoff(time.Second, 2)

	assert.Same(t, etb.RateLimitBackoff, etb.For(&errs.Error{Type: errs.ErrorTypeRateLimit}))
	assert.Same(t, etb.NetworkErrorBackoff, etb.For(&errs.Error{Type: errs.ErrorTypeNetwork}))
	assert.Same(t, etb.ServerErrorBackoff, etb.For(&errs.Error{Type: errs.ErrorTypeServerError}))
	assert.Same(t, etb.DefaultBackoff, etb.For(errors.New("plain")))
}

func TestDefaultRetryIf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"network", &errs.Error{Type: errs.ErrorTypeNetwork}, true},
		{"rate limit", &errs.Error{Type: errs.ErrorTypeRateLimit}, true},
		{"not found", &errs.Error{Type: errs.ErrorTypeNotFound}, false},
		{"empty payload", errs.EmptyPayload("x"), false},
		{"canceled", context.Canceled, false},
		{"wrapped deadline", errors.Join(errors.New("x"), context.DeadlineExceeded), false},
		{"untyped", errors.New("boom"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DefaultRetryIf(tt.err))
		})
	}
}

func TestDo_SucceedsAfterRetries(t *testing.T) {
	var attempts []int
	err := Do(context.Background(), func(ctx context.Context, attempt int) error {
		attempts = append(attempts, attempt)
		if attempt < 3 {
			return errors.New("stale element")
		}
		return nil
	}, &Config{MaxAttempts: 3, Backoff: &ConstantBackoff{Delay: time.Millisecond}, RetryIf: Always})

	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, attempts)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	sentinel := errors.New("still stale")
	calls := 0
	err := Do(context.Background(), func(ctx context.Context, attempt int) error {
		calls++
		return sentinel
	}, &Config{MaxAttempts: 2, Backoff: &ConstantBackoff{Delay: time.Millisecond}, RetryIf: Always})

	require.Error(t, err)
	assert.ErrorIs(t, err, sentinel)
	assert.Contains(t, err.Error(), "max retry attempts (2) exceeded")
	assert.Equal(t, 2, calls)
}

func TestDo_NoBackoffAfterFinalAttempt(t *testing.T) {
	retries := 0
	start := time.Now()
	err := Do(context.Background(), func(ctx context.Context, attempt int) error {
		return errors.New("unreachable")
	}, &Config{
		MaxAttempts: 2,
		Backoff:     &ConstantBackoff{Delay: 200 * time.Millisecond},
		RetryIf:     Always,
		OnRetry:     func(int, error, time.Duration) { retries++ },
	})

	require.Error(t, err)
	assert.Equal(t, 1, retries)
	assert.Less(t, time.Since(start), 390*time.Millisecond)
}

func TestDo_StopsOnNonRetryable(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func(ctx context.Context, attempt int) error {
		calls++
		return &errs.Error{Type: errs.ErrorTypeNotFound, Message: "gone"}
	}, &Config{MaxAttempts: 5, Backoff: &ConstantBackoff{Delay: time.Millisecond}})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, errs.ErrorTypeNotFound, errs.TypeOf(err))
}

func TestDo_ContextCancelledDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	err := Do(ctx, func(ctx context.Context, attempt int) error {
		cancel()
		return errors.New("boom")
	}, &Config{MaxAttempts: 5, Backoff: &ConstantBackoff{Delay: time.Hour}, RetryIf: Always})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Contains(t, err.Error(), "retry cancelled")
}

func TestDo_OnRetryAndBackoffFor(t *testing.T) {
	var delays []time.Duration
	tl := logger.NewTestLogger()
	_ = Do(context.Background(), func(ctx context.Context, attempt int) error {
		return &errs.Error{Type: errs.ErrorTypeServerError}
	}, &Config{
		MaxAttempts: 3,
		BackoffFor: func(error) BackoffStrategy {
			return &ConstantBackoff{Delay: 2 * time.Millisecond}
		},
		OnRetry: func(attempt int, err error, delay time.Duration) {
			delays = append(delays, delay)
		},
		Logger:    tl,
		Operation: "download",
	})

	assert.Equal(t, []time.Duration{2 * time.Millisecond, 2 * time.Millisecond}, delays)
	msgs := tl.GetMessagesByLevel("WARN")
	require.Len(t, msgs, 1)
	assert.Equal(t, "download", msgs[0].Fields["operation"])
}

func TestDoWithResult(t *testing.T) {
	got, err := DoWithResult(context.Background(), func(ctx context.Context, attempt int) (int64, error) {
		if attempt == 1 {
			return 0, &errs.Error{Type: errs.ErrorTypeNetwork}
		}
		return 42, nil
	}, &Config{MaxAttempts: 2, Backoff: &ConstantBackoff{Delay: time.Millisecond}})

	require.NoError(t, err)
	assert.Equal(t, int64(42), got)
}

func TestWait(t *testing.T) {
	assert.NoError(t, Wait(context.Background(), 0))
	assert.NoError(t, Wait(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Wait(ctx, time.Hour), context.Canceled)
}
