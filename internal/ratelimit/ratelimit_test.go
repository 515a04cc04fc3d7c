package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock drives the bucket without real sleeping: sleep advances the clock
type fakeClock struct {
	current time.Time
	slept   []time.Duration
}

func (f *fakeClock) now() time.Time { return f.current }

func (f *fakeClock) sleep(_ context.Context, d time.Duration) error {
	f.slept = append(f.slept, d)
	f.current = f.current.Add(d)
	return nil
}

func newTestBucket(capacity int, interval time.Duration) (*TokenBucket, *fakeClock) {
	clock := &fakeClock{current: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}
	tb := NewTokenBucket(capacity, interval)
	tb.now = clock.now
	tb.sleep = clock.sleep
	tb.lastRefill = clock.current
	return tb, clock
}

func TestTokenBucketBurstThenBlocks(t *testing.T) {
	tb, clock := newTestBucket(2, time.Second)
	ctx := context.Background()

	// Two burst tokens are free.
	require.NoError(t, tb.Wait(ctx))
	require.NoError(t, tb.Wait(ctx))
	assert.Empty(t, clock.slept)

	// The third call must wait one refill interval.
	require.NoError(t, tb.Wait(ctx))
	require.Len(t, clock.slept, 1)
	assert.InDelta(t, float64(time.Second), float64(clock.slept[0]), float64(time.Millisecond))
}

func TestTokenBucketRefillsOverTime(t *testing.T) {
	tb, clock := newTestBucket(1, time.Second)
	ctx := context.Background()

	require.NoError(t, tb.Wait(ctx))

	// After the interval passes a token is free again.
	clock.current = clock.current.Add(time.Second)
	require.NoError(t, tb.Wait(ctx))
	assert.Empty(t, clock.slept)
}

func TestTokenBucketCapsAtCapacity(t *testing.T) {
	tb, clock := newTestBucket(2, time.Second)
	ctx := context.Background()

	// A long idle period must not bank more than capacity tokens.
	clock.current = clock.current.Add(time.Hour)

	require.NoError(t, tb.Wait(ctx))
	require.NoError(t, tb.Wait(ctx))
	require.NoError(t, tb.Wait(ctx))
	assert.Len(t, clock.slept, 1, "third call after idle must still wait")
}

func TestTokenBucketContextCancellation(t *testing.T) {
	tb, _ := newTestBucket(1, time.Second)
	tb.sleep = func(ctx context.Context, _ time.Duration) error {
		return context.Canceled
	}
	ctx := context.Background()

	require.NoError(t, tb.Wait(ctx))
	assert.ErrorIs(t, tb.Wait(ctx), context.Canceled)
}

func TestUnlimited(t *testing.T) {
	ctx := context.Background()
	assert.NoError(t, Unlimited{}.Wait(ctx))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, Unlimited{}.Wait(cancelled), context.Canceled)
}
