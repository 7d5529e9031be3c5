// Package ratelimit paces direct media fetches so that a burst of
// downloads does not look like scripted traffic to the CDN.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter defines the interface for rate limiting
type Limiter interface {
	// Allow takes a token if one is available
	Allow() bool
	// Wait blocks until a token is available or ctx is done
	Wait(ctx context.Context) error
	Reset()
}

// TokenBucket refills continuously at rate tokens per interval up to burst
type TokenBucket struct {
	mu       sync.Mutex
	burst    float64
	tokens   float64
	perToken time.Duration
	last     time.Time
	now      func() time.Time
}

// NewTokenBucket creates a bucket allowing perMinute requests a minute with
// bursts of up to burst requests.
func NewTokenBucket(perMinute, burst int) *TokenBucket {
	if perMinute <= 0 {
		perMinute = 1
	}
	if burst <= 0 {
		burst = 1
	}
	tb := &TokenBucket{
		burst:    float64(burst),
		tokens:   float64(burst),
		perToken: time.Minute / time.Duration(perMinute),
		now:      time.Now,
	}
	tb.last = tb.now()
	return tb
}

func (tb *TokenBucket) refill() {
	now := tb.now()
	elapsed := now.Sub(tb.last)
	if elapsed <= 0 {
		return
	}
	tb.tokens += float64(elapsed) / float64(tb.perToken)
	if tb.tokens > tb.burst {
		tb.tokens = tb.burst
	}
	tb.last = now
}

func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill()
	if tb.tokens >= 1 {
		tb.tokens--
		return true
	}
	return false
}

// delay returns how long until the next token, zero if one is available now
func (tb *TokenBucket) delay() time.Duration {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill()
	if tb.tokens >= 1 {
		return 0
	}
	return time.Duration((1 - tb.tokens) * float64(tb.perToken))
}

func (tb *TokenBucket) Wait(ctx context.Context) error {
	for !tb.Allow() {
		d := tb.delay()
		if d <= 0 {
			d = 10 * time.Millisecond
		}
		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return nil
}

// Reset refills the bucket to its burst size
func (tb *TokenBucket) Reset() {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.tokens = tb.burst
	tb.last = tb.now()
}

// Unlimited never blocks
type Unlimited struct{}

func (Unlimited) Allow() bool                    { return true }
func (Unlimited) Wait(ctx context.Context) error { return ctx.Err() }
func (Unlimited) Reset()                         {}
