// Package ratelimit provides the token bucket pacing device sends and
// liveness polls.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Bucket is a token bucket: refill at rate tokens/s up to burst, consume
// one token per acquire.
type Bucket struct {
	mu         sync.Mutex
	rate       float64
	burst      float64
	tokens     float64
	lastRefill time.Time

	now func() time.Time
}

// NewBucket creates a full bucket.
func NewBucket(rate, burst float64) *Bucket {
	if rate <= 0 {
		rate = 1
	}
	if burst < 1 {
		burst = 1
	}
	b := &Bucket{
		rate:  rate,
		burst: burst,
		now:   time.Now,
	}
	b.tokens = burst
	b.lastRefill = b.now()
	return b
}

// TryAcquire consumes a token if one is available.
func (b *Bucket) TryAcquire() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked()
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// Acquire blocks until a token is available or the context is done.
func (b *Bucket) Acquire(ctx context.Context) error {
	for {
		b.mu.Lock()
		b.refillLocked()
		if b.tokens >= 1 {
			b.tokens--
			b.mu.Unlock()
			return nil
		}
		wait := time.Duration((1 - b.tokens) / b.rate * float64(time.Second))
		b.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (b *Bucket) refillLocked() {
	now := b.now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	b.tokens += elapsed * b.rate
	if b.tokens > b.burst {
		b.tokens = b.burst
	}
	b.lastRefill = now
}
