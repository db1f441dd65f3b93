package adapters

import (
	"context"
	"fmt"
	"sync"
	"time"

	ports "github.com/ZanzyTHEbar/fitcheck/fitcheck/generation/harness/ports"
)

// TokenBucket implements a per-key token bucket. Acquire waits for a token
// until the context is done, so bursts of model calls are smoothed rather
// than rejected.
type TokenBucket struct {
	mu         sync.Mutex
	buckets    map[string]*bucket
	capacity   int           // max tokens per bucket
	refillRate time.Duration // time between token refills
	now        func() time.Time
}

type bucket struct {
	tokens     int
	lastRefill time.Time
}

// NewTokenBucket creates a new token bucket rate limiter.
func NewTokenBucket(capacity int, refillRate time.Duration) *TokenBucket {
	if capacity < 1 {
		capacity = 1
	}
	if refillRate <= 0 {
		refillRate = time.Second
	}
	return &TokenBucket{
		buckets:    make(map[string]*bucket),
		capacity:   capacity,
		refillRate: refillRate,
		now:        time.Now,
	}
}

// Acquire takes a token for key, waiting for a refill when the bucket is
// empty. Tokens are consumed, release is a no-op kept for the port.
func (tb *TokenBucket) Acquire(ctx context.Context, key string) (release func(), err error) {
	for {
		wait, ok := tb.take(key)
		if ok {
			return func() {}, nil
		}

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, &RateLimitError{Key: key, Err: ctx.Err()}
		case <-t.C:
		}
	}
}

// take consumes a token if one is available, otherwise it reports how long
// until the next refill.
func (tb *TokenBucket) take(key string) (time.Duration, bool) {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := tb.now()
	b, exists := tb.buckets[key]
	if !exists {
		b = &bucket{tokens: tb.capacity, lastRefill: now}
		tb.buckets[key] = b
	}

	if n := int(now.Sub(b.lastRefill) / tb.refillRate); n > 0 {
		b.tokens = min(b.tokens+n, tb.capacity)
		b.lastRefill = b.lastRefill.Add(time.Duration(n) * tb.refillRate)
	}

	if b.tokens > 0 {
		b.tokens--
		return 0, true
	}
	return tb.refillRate - now.Sub(b.lastRefill), false
}

// ErrRateLimitExceeded matches any RateLimitError via errors.Is.
var ErrRateLimitExceeded = &RateLimitError{}

// RateLimitError is returned when waiting for a token was abandoned.
type RateLimitError struct {
	Key string
	Err error
}

func (e *RateLimitError) Error() string {
	if e.Err == nil {
		return "rate limit exceeded"
	}
	return fmt.Sprintf("rate limit exceeded for %s: %v", e.Key, e.Err)
}

func (e *RateLimitError) Unwrap() error { return e.Err }

func (e *RateLimitError) Is(target error) bool {
	_, ok := target.(*RateLimitError)
	return ok
}

var _ ports.RateLimiter = (*TokenBucket)(nil)
