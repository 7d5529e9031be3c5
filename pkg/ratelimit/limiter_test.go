package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBucket(perMinute, burst int) (*TokenBucket, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	tb := NewTokenBucket(perMinute, burst)
	tb.now = clock.now
	tb.last = clock.now()
	return tb, clock
}

func TestTokenBucketBurstThenRefill(t *testing.T) {
	tb, clock := newTestBucket(60, 3)

	for i := 0; i < 3; i++ {
		assert.True(t, tb.Allow(), "token %d", i+1)
	}
	assert.False(t, tb.Allow())

	clock.advance(999 * time.Millisecond)
	assert.False(t, tb.Allow())

	clock.advance(10 * time.Millisecond)
	assert.True(t, tb.Allow())
}

func TestTokenBucketCapsAtBurst(t *testing.T) {
	tb, clock := newTestBucket(60, 2)
	clock.advance(time.Hour)

	assert.True(t, tb.Allow())
	assert.True(t, tb.Allow())
	assert.False(t, tb.Allow())
}

func TestTokenBucketReset(t *testing.T) {
	tb, _ := newTestBucket(1, 2)
	tb.Allow()
	tb.Allow()
	require.False(t, tb.Allow())

	tb.Reset()
	assert.True(t, tb.Allow())
}

func TestTokenBucketWaitHonoursContext(t *testing.T) {
	tb := NewTokenBucket(1, 1)
	require.True(t, tb.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := tb.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestTokenBucketWaitReturnsWhenTokenAvailable(t *testing.T) {
	tb := NewTokenBucket(6000, 1)
	require.True(t, tb.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, tb.Wait(ctx))
}

func TestUnlimited(t *testing.T) {
	var l Limiter = Unlimited{}
	assert.True(t, l.Allow())
	assert.NoError(t, l.Wait(context.Background()))
}
