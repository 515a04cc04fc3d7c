// Package ratelimit provides pacing for calls against rate-limited external
// services, using a token bucket. The pacing policy is a separate component
// from the business logic that calls it, so it can be tuned or swapped
// without touching callers.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Pacer spaces out calls to an external service. Wait blocks until a token
// is available or the context is done.
type Pacer interface {
	Wait(ctx context.Context) error
}

// TokenBucket is a Pacer that allows bursts up to capacity and refills at a
// steady rate. With capacity 1 it degenerates to a fixed inter-call delay.
type TokenBucket struct {
	capacity   int
	refillRate float64 // tokens per second
	now        func() time.Time
	sleep      func(ctx context.Context, d time.Duration) error

	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
}

// NewTokenBucket creates a pacer allowing `capacity` burst calls, refilling
// one token every `interval`.
func NewTokenBucket(capacity int, interval time.Duration) *TokenBucket {
	tb := &TokenBucket{
		capacity:   capacity,
		refillRate: 1.0 / interval.Seconds(),
		now:        time.Now,
		sleep:      sleepCtx,
		tokens:     float64(capacity),
	}
	tb.lastRefill = tb.now()
	return tb
}

// Wait blocks until a token is available, then consumes it
func (tb *TokenBucket) Wait(ctx context.Context) error {
	for {
		tb.mu.Lock()
		tb.refill()
		if tb.tokens >= 1.0 {
			tb.tokens -= 1.0
			tb.mu.Unlock()
			return nil
		}
		needed := (1.0 - tb.tokens) / tb.refillRate
		tb.mu.Unlock()

		wait := time.Duration(needed * float64(time.Second))
		if err := tb.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// refill is called with the mutex held
func (tb *TokenBucket) refill() {
	now := tb.now()
	elapsed := now.Sub(tb.lastRefill)
	tb.tokens = min(float64(tb.capacity), tb.tokens+elapsed.Seconds()*tb.refillRate)
	tb.lastRefill = now
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Unlimited is a Pacer that never blocks. Used in tests and manual runs
// where pacing would only slow things down.
type Unlimited struct{}

// Wait returns immediately
func (Unlimited) Wait(ctx context.Context) error { return ctx.Err() }
