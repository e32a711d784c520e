package ratelimit

import (
	"sync"
	"time"
)

// TokenBucket implements the token bucket algorithm: it holds up to
// Capacity tokens and is refilled continuously at FillRate tokens per
// second. Consume draws tokens for a guarded operation; when the bucket
// is empty the operation must be refused.
type TokenBucket struct {
	capacity float64
	fillRate float64

	mu        sync.Mutex
	tokens    float64
	timestamp time.Time
	touched   time.Time
	now       func() time.Time
}

// NewBucket constructs a full bucket with the given capacity and refill
// rate in tokens per second.
func NewBucket(capacity, fillRate float64) *TokenBucket {
	if capacity < 0 {
		capacity = 0
	}
	now := time.Now()
	return &TokenBucket{
		capacity:  capacity,
		fillRate:  fillRate,
		tokens:    capacity,
		timestamp: now,
		touched:   now,
		now:       time.Now,
	}
}

// Consume takes n tokens from the bucket. It returns true if the bucket
// held at least n tokens, false otherwise; a refused consume leaves the
// bucket untouched.
func (b *TokenBucket) Consume(n float64) bool {
	if n < 0 {
		return false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill()
	b.touched = b.now()
	if n > b.tokens {
		return false
	}
	b.tokens -= n
	return true
}

// Tokens reports the current token count after applying any pending
// refill. The result is always within [0, capacity].
func (b *TokenBucket) Tokens() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill()
	return b.tokens
}

// Capacity returns the maximum number of tokens the bucket can hold.
func (b *TokenBucket) Capacity() float64 {
	return b.capacity
}

// lastUsed reports when tokens were last consumed from the bucket. Used
// by the registry's eviction sweep.
func (b *TokenBucket) lastUsed() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.touched
}

// refill credits tokens for the wall-clock time elapsed since the last
// touch. Callers must hold b.mu.
func (b *TokenBucket) refill() {
	now := b.now()
	if b.tokens < b.capacity {
		delta := b.fillRate * now.Sub(b.timestamp).Seconds()
		b.tokens = min(b.capacity, b.tokens+delta)
	}
	b.timestamp = now
}
