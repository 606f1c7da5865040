// Package ratelimit throttles the AI and auth endpoints per caller.
//
// MemoryLimiter keeps a token bucket per key inside the process.
// RedisLimiter keeps a sliding window per key in Redis so that several
// server instances share one budget.
package ratelimit

import (
	"context"
	"time"
)

// Limiter decides whether a request identified by key should be allowed.
// Implementations must be safe for concurrent use.
type Limiter interface {
	// Allow reports whether the request may proceed. An error means the
	// limiter itself failed; callers let the request through.
	Allow(ctx context.Context, key string) (bool, error)

	// Close releases background goroutines and connections.
	Close() error
}

// NoopLimiter permits every request. Used when rate limiting is disabled.
type NoopLimiter struct{}

// Allow always returns true.
func (NoopLimiter) Allow(context.Context, string) (bool, error) { return true, nil }

// Close is a no-op.
func (NoopLimiter) Close() error { return nil }

// Window converts a token bucket rate and burst into the sliding window that
// admits the same number of requests: burst requests per burst/rps seconds.
func Window(rps float64, burst int) time.Duration {
	if rps <= 0 || burst <= 0 {
		return time.Second
	}
	return max(time.Duration(float64(burst)/rps*float64(time.Second)), time.Second)
}
