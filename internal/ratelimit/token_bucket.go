package ratelimit

import (
	"sync"
	"time"
)

// Clock returns the current time.
type Clock func() time.Time

type Option func(*TokenBucket)

// WithClock replaces the wall clock, mostly for tests.
func WithClock(clock Clock) Option {
	return func(tokenBucket *TokenBucket) {
		tokenBucket.now = clock
	}
}

// TokenBucket refills continuously at rate tokens per second up to capacity.
// It starts full.
type TokenBucket struct {
	mu       sync.Mutex
	rate     float64
	capacity float64
	tokens   float64
	last     time.Time
	now      Clock
}

func NewTokenBucket(ratePerSecond float64, capacity int, opts ...Option) *TokenBucket {
	tokenBucket := &TokenBucket{
		rate:     ratePerSecond,
		capacity: float64(capacity),
		tokens:   float64(capacity),
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(tokenBucket)
	}

	tokenBucket.last = tokenBucket.now()

	return tokenBucket
}

// TryAcquire deducts cost tokens if available. It never blocks.
func (tokenBucket *TokenBucket) TryAcquire(cost float64) bool {
	tokenBucket.mu.Lock()
	defer tokenBucket.mu.Unlock()

	tokenBucket.refill()

	if tokenBucket.tokens >= cost {
		tokenBucket.tokens -= cost
		return true
	}

	return false
}

// Tokens reports the refilled level without consuming anything.
func (tokenBucket *TokenBucket) Tokens() float64 {
	tokenBucket.mu.Lock()
	defer tokenBucket.mu.Unlock()

	tokenBucket.refill()

	return tokenBucket.tokens
}

func (tokenBucket *TokenBucket) refill() {
	now := tokenBucket.now()

	elapsed := now.Sub(tokenBucket.last).Seconds()
	if elapsed > 0 {
		tokenBucket.tokens = min(tokenBucket.capacity, tokenBucket.tokens+elapsed*tokenBucket.rate)
	}

	tokenBucket.last = now
}
