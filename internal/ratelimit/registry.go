package ratelimit

import (
	"sync"
	"time"
)

// Registry is a process-wide set of token buckets indexed by key. Buckets
// are created lazily on first use and shared by every connection that
// presents the same key, so reconnecting does not reset an in-progress
// penalty. Idle buckets may be evicted; losing one only relaxes limiting
// because a fresh bucket starts full.
type Registry struct {
	capacity float64
	fillRate float64

	mu      sync.Mutex
	buckets map[string]*TokenBucket
}

// NewRegistry builds a registry whose buckets all share the given
// capacity and fill rate.
func NewRegistry(capacity, fillRate float64) *Registry {
	return &Registry{
		capacity: capacity,
		fillRate: fillRate,
		buckets:  make(map[string]*TokenBucket),
	}
}

// Consume draws n tokens from the bucket for key, creating the bucket on
// first use. It returns true when the tokens were available.
func (r *Registry) Consume(key string, n float64) bool {
	return r.bucket(key).Consume(n)
}

// Tokens reports the current token count for key without consuming.
func (r *Registry) Tokens(key string) float64 {
	return r.bucket(key).Tokens()
}

// Len returns the number of live buckets.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buckets)
}

// Evict removes buckets untouched for at least maxIdle and returns how
// many were dropped. Buckets still below capacity are kept: evicting one
// would forgive its penalty early.
func (r *Registry) Evict(maxIdle time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-maxIdle)
	evicted := 0
	for key, b := range r.buckets {
		if b.lastUsed().After(cutoff) {
			continue
		}
		if b.Tokens() < b.Capacity() {
			continue
		}
		delete(r.buckets, key)
		evicted++
	}
	return evicted
}

// Sweep runs Evict every interval until stop is closed.
func (r *Registry) Sweep(interval, maxIdle time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.Evict(maxIdle)
		case <-stop:
			return
		}
	}
}

func (r *Registry) bucket(key string) *TokenBucket {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.buckets[key]
	if !ok {
		b = NewBucket(r.capacity, r.fillRate)
		r.buckets[key] = b
	}
	return b
}
