// Package ratelimiter provides client-side request throttling for the remote
// store API using the token bucket algorithm.
//
// The remote store enforces per-account request quotas; exceeding them turns
// every call into a retry loop against 429 responses. Throttling requests
// locally keeps the client under quota so that the retry path stays the
// exception rather than the norm.
package ratelimiter

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter wraps golang.org/x/time/rate with the small surface the store
// client needs: a blocking Wait for issuing requests and a non-blocking Allow
// for opportunistic work.
//
// Thread safety:
// All methods are safe for concurrent use.
type RateLimiter struct {
	limiter *rate.Limiter
}

// New creates a RateLimiter allowing requestsPerSecond sustained with the
// given burst capacity.
//
// requestsPerSecond = 0 disables throttling (an effectively unlimited bucket).
// burst should typically be >= requestsPerSecond; a zero burst with a non-zero
// rate would block every request, so it is raised to the sustained rate.
func New(requestsPerSecond, burst uint) *RateLimiter {
	if requestsPerSecond == 0 {
		// Effectively unlimited. rate.Inf has edge cases with Wait, so use
		// a very large finite limit instead.
		requestsPerSecond = 1_000_000_000
		burst = requestsPerSecond
	}
	if burst == 0 {
		burst = requestsPerSecond
	}

	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), int(burst)),
	}
}

// Wait blocks until a token is available or the context is cancelled.
//
// Returns nil once a token was acquired, or the context error if the context
// was cancelled first.
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}

// Allow reports whether a request may proceed right now, consuming a token
// if so. It never blocks.
func (r *RateLimiter) Allow() bool {
	return r.limiter.Allow()
}

// Tokens returns the number of tokens currently available. Primarily useful
// for monitoring and tests; the value may change immediately after the call.
func (r *RateLimiter) Tokens() float64 {
	return r.limiter.Tokens()
}
