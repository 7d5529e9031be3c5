package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	errs "igreels/pkg/errors"
)

// BackoffStrategy decides how long to wait before the next attempt
type BackoffStrategy interface {
	// NextDelay returns the delay after the given (1-based) failed attempt
	NextDelay(attempt int) time.Duration
}

// ExponentialBackoff implements exponential backoff with jitter
type ExponentialBackoff struct {
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	JitterFactor float64 // 0.0 to 1.0
}

// DefaultExponentialBackoff returns a backoff with sensible defaults
func DefaultExponentialBackoff() *ExponentialBackoff {
	return &ExponentialBackoff{
		BaseDelay:    1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
	}
}

// NextDelay calculates the next delay with exponential backoff and jitter
func (eb *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	delay := float64(eb.BaseDelay) * math.Pow(eb.Multiplier, float64(attempt-1))
	if eb.MaxDelay > 0 && delay > float64(eb.MaxDelay) {
		delay = float64(eb.MaxDelay)
	}

	if eb.JitterFactor > 0 {
		jitter := delay * eb.JitterFactor
		delay += (rand.Float64() * 2 * jitter) - jitter
	}
	if delay < 0 {
		delay = 0
	}

	return time.Duration(delay)
}

// ConstantBackoff waits the same delay after every attempt
type ConstantBackoff struct {
	Delay time.Duration
}

func (cb *ConstantBackoff) NextDelay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	return cb.Delay
}

// Wait waits for the specified duration or until context is cancelled
func Wait(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ErrorTypeBackoff picks a backoff per error type: rate limits wait longest,
// network blips shortest.
type ErrorTypeBackoff struct {
	NetworkErrorBackoff BackoffStrategy
	RateLimitBackoff    BackoffStrategy
	ServerErrorBackoff  BackoffStrategy
	DefaultBackoff      BackoffStrategy
}

// NewErrorTypeBackoff builds the per-type strategies around a base delay
func NewErrorTypeBackoff(base time.Duration, multiplier float64) *ErrorTypeBackoff {
	if base <= 0 {
		base = time.Second
	}
	if multiplier < 1 {
		multiplier = 2.0
	}
	return &ErrorTypeBackoff{
		NetworkErrorBackoff: &ExponentialBackoff{BaseDelay: base, MaxDelay: 30 * time.Second, Multiplier: multiplier, JitterFactor: 0.2},
		RateLimitBackoff:    &ExponentialBackoff{BaseDelay: 15 * base, MaxDelay: 5 * time.Minute, Multiplier: 1.5, JitterFactor: 0.3},
		ServerErrorBackoff:  &ExponentialBackoff{BaseDelay: 2 * base, MaxDelay: time.Minute, Multiplier: multiplier, JitterFactor: 0.1},
		DefaultBackoff:      &ExponentialBackoff{BaseDelay: base, MaxDelay: 30 * time.Second, Multiplier: multiplier, JitterFactor: 0.1},
	}
}

// For returns the strategy matching err's type
func (etb *ErrorTypeBackoff) For(err error) BackoffStrategy {
	switch errs.TypeOf(err) {
	case errs.ErrorTypeNetwork:
		return etb.NetworkErrorBackoff
	case errs.ErrorTypeRateLimit:
		return etb.RateLimitBackoff
	case errs.ErrorTypeServerError:
		return etb.ServerErrorBackoff
	default:
		return etb.DefaultBackoff
	}
}
