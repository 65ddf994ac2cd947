package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter hands out one token bucket per key. Callers key by user ID
// rather than session ID so rotating tabs does not reset the budget.
type RateLimiter struct {
	limit rate.Limit
	burst int
	now   func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	limiter  *rate.Limiter
	lastUsed time.Time
}

// NewRateLimiter returns a limiter allowing rps requests per second per key
// with the given burst.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	return &RateLimiter{
		limit:   rate.Limit(rps),
		burst:   burst,
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
}

// Allow consumes one token for key.
func (l *RateLimiter) Allow(key string) bool {
	now := l.now()
	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = b
	}
	b.lastUsed = now
	l.mu.Unlock()
	return b.limiter.AllowN(now, 1)
}

// Len returns the number of tracked keys.
func (l *RateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Evict drops buckets unused for longer than idle. A dropped bucket is
// recreated full, so idle must be at least the refill time of a burst.
func (l *RateLimiter) Evict(idle time.Duration) int {
	cutoff := l.now().Add(-idle)
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for key, b := range l.buckets {
		if b.lastUsed.Before(cutoff) {
			delete(l.buckets, key)
			n++
		}
	}
	return n
}

// StartEviction periodically evicts idle buckets until ctx is canceled.
func (l *RateLimiter) StartEviction(ctx context.Context, idle time.Duration) <-chan struct{} {
	done := make(chan struct{})
	ticker := time.NewTicker(idle)
	go func() {
		defer close(done)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				l.Evict(idle)
			case <-ctx.Done():
				return
			}
		}
	}()
	return done
}

// RateLimit rejects requests with 429 once key(r) has exhausted its budget.
// Requests with an empty key pass through.
func RateLimit(l *RateLimiter, key func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			k := key(r)
			if k != "" && !l.Allow(k) {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"Too many requests. Please wait a moment and try again.","kind":"rate_limited"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
