package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"streetviewdl/pkg/config"
)

// Limiter defines the interface for rate limiting
type Limiter interface {
	// Allow reports whether a request may proceed right now, consuming a token if so
	Allow() bool
	// Wait blocks until a request may proceed or ctx is done
	Wait(ctx context.Context) error
	// Reset refills the limiter to its burst size
	Reset()
}

// TokenBucket is a Limiter safe for use by any number of goroutines. A single
// instance is shared by every stage that talks to the imagery service.
type TokenBucket struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	every   rate.Limit
	burst   int
}

// NewTokenBucket allows burst requests at once and then one request per interval
func NewTokenBucket(interval time.Duration, burst int) *TokenBucket {
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &TokenBucket{
		limiter: rate.NewLimiter(limit, burst),
		every:   limit,
		burst:   burst,
	}
}

// FromConfig builds the shared limiter from the rate_limit section
func FromConfig(cfg config.RateLimitConfig) *TokenBucket {
	if cfg.RequestsPerMinute <= 0 {
		return NewTokenBucket(0, cfg.BurstSize)
	}
	return NewTokenBucket(time.Minute/time.Duration(cfg.RequestsPerMinute), cfg.BurstSize)
}

// Allow checks if a request can proceed
func (tb *TokenBucket) Allow() bool {
	return tb.current().Allow()
}

// Wait blocks until a token is available or ctx is done
func (tb *TokenBucket) Wait(ctx context.Context) error {
	return tb.current().Wait(ctx)
}

// Reset replaces the bucket with a full one
func (tb *TokenBucket) Reset() {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	tb.limiter = rate.NewLimiter(tb.every, tb.burst)
}

// Tokens returns the number of tokens currently available
func (tb *TokenBucket) Tokens() float64 {
	return tb.current().Tokens()
}

func (tb *TokenBucket) current() *rate.Limiter {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.limiter
}

// Unlimited never blocks. Useful for tests and for callers that do their own pacing.
type Unlimited struct{}

func (Unlimited) Allow() bool                    { return true }
func (Unlimited) Wait(ctx context.Context) error { return ctx.Err() }
func (Unlimited) Reset()                         {}
