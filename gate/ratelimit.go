package gate

import (
	"sync"
	"time"
)

const (
	rateLimitWindow  = 60 * time.Second
	rateLimitPermits = 20
)

// bucket tracks the fixed window for a single client IP.
type bucket struct {
	windowStart time.Time
	count       int
}

// RateLimiter enforces a fixed 60-second window of up to 20 permits per
// client IP. This is deliberately a fixed window, not a sliding one or a
// token bucket: golang.org/x/time/rate's continuous refill cannot
// reproduce "permit 21 in a window always fails, permit 1 of the next
// window always succeeds" because it smooths permits across the boundary.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

// NewRateLimiter constructs an empty RateLimiter.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// Permit reports whether clientIP may proceed under the current window,
// starting a fresh window if none is open or the open one has elapsed.
func (r *RateLimiter) Permit(clientIP string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	b, ok := r.buckets[clientIP]
	if !ok || now.Sub(b.windowStart) >= rateLimitWindow {
		b = &bucket{windowStart: now, count: 0}
		r.buckets[clientIP] = b
	}

	if b.count >= rateLimitPermits {
		return false
	}
	b.count++
	return true
}

// Sweep discards buckets whose window has fully elapsed. Correctness never
// depends on this running — it only bounds memory growth under a long tail
// of distinct client IPs.
func (r *RateLimiter) Sweep() {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	for ip, b := range r.buckets {
		if now.Sub(b.windowStart) >= rateLimitWindow {
			delete(r.buckets, ip)
		}
	}
}
