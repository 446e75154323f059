// Package ratelimit provides per-key token bucket rate limiting for the
// HTTP API and MCP tools.
package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultMaxKeys bounds the number of buckets a Limiter keeps.
const DefaultMaxKeys = 10000

// sweepEvery is how often full buckets are dropped.
const sweepEvery = time.Minute

// Limiter keeps one token bucket per key, each with the configured rate
// and burst. It is safe for concurrent use.
//
// A bucket that has refilled to its burst is indistinguishable from a new
// one, so such buckets are dropped periodically. When the map still holds
// maxKeys buckets the least recently seen one is dropped.
type Limiter struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	rate      float64          // tokens per second
	burst     int              // max burst size (also initial token count)
	maxKeys   int
	lastSweep time.Time
	nowFunc   func() time.Time // injectable clock for testing
}

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// NewLimiter creates a rate limiter with the given rate (tokens/sec) and burst size.
// The burst size also serves as the initial number of tokens available.
func NewLimiter(r float64, burst int) *Limiter {
	return &Limiter{
		buckets: make(map[string]*bucket),
		rate:    r,
		burst:   burst,
		maxKeys: DefaultMaxKeys,
		nowFunc: time.Now,
	}
}

// Allow reports whether a request for key may proceed, consuming a token if so.
// With a zero rate only the initial burst is ever allowed. A nil Limiter
// allows everything.
func (l *Limiter) Allow(key string) bool {
	if l == nil {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFunc()
	if now.Sub(l.lastSweep) >= sweepEvery {
		l.sweep(now)
	}

	b, ok := l.buckets[key]
	if !ok {
		if len(l.buckets) >= l.maxKeys {
			l.sweep(now)
		}
		if len(l.buckets) >= l.maxKeys {
			l.evictOldest()
		}
		b = &bucket{lim: rate.NewLimiter(rate.Limit(l.rate), l.burst)}
		l.buckets[key] = b
	}
	b.seen = now
	return b.lim.AllowN(now, 1)
}

// sweep drops buckets that have refilled to their burst. Caller holds l.mu.
func (l *Limiter) sweep(now time.Time) {
	l.lastSweep = now
	for key, b := range l.buckets {
		if b.lim.TokensAt(now) >= float64(l.burst) {
			delete(l.buckets, key)
		}
	}
}

// evictOldest drops the least recently seen bucket. Caller holds l.mu.
func (l *Limiter) evictOldest() {
	var oldest *bucket
	var oldestKey string
	for key, b := range l.buckets {
		if oldest == nil || b.seen.Before(oldest.seen) {
			oldest, oldestKey = b, key
		}
	}
	if oldest != nil {
		delete(l.buckets, oldestKey)
	}
}

// Len returns the number of keys with a bucket.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// ToolLimiters maps tool names to their rate limiters.
type ToolLimiters map[string]*Limiter

// NewToolLimiters creates the default set of per-tool rate limiters.
// Validation and comparison run many simulations, so they get tighter limits.
func NewToolLimiters() ToolLimiters {
	return ToolLimiters{
		"colonysim_run":      NewLimiter(1.0, 10),      // 60/minute, burst 10
		"colonysim_validate": NewLimiter(6.0/60.0, 2),  // 6/minute, burst 2
		"colonysim_compare":  NewLimiter(10.0/60.0, 3), // 10/minute, burst 3
		"colonysim_runs":     NewLimiter(1.0, 10),      // 60/minute, burst 10
		"colonysim_defaults": NewLimiter(1.0, 10),      // 60/minute, burst 10
		"colonysim_export":   NewLimiter(5.0/60.0, 3),  // 5/minute, burst 3
	}
}

// CheckLimit checks the rate limit for a given tool name.
// Returns nil if allowed, or an error if rate limited.
// Tools without a configured limiter are always allowed.
func CheckLimit(limiters ToolLimiters, toolName string) error {
	limiter, ok := limiters[toolName]
	if !ok {
		return nil // No limiter configured = no limit
	}

	if !limiter.Allow(toolName) {
		return fmt.Errorf("rate limit exceeded for %s, please try again shortly", toolName)
	}

	return nil
}
