package github

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// RATE LIMITER - Token Bucket in front of the raw-content host
// ══════════════════════════════════════════════════════════════════════════════

// RateLimiter is a token bucket. The raw-content host answers 429 for
// anonymous clients that fetch too quickly, so every remote request takes a
// token first.
type RateLimiter struct {
	mu sync.Mutex

	maxTokens   float64
	refillRate  float64 // tokens per second
	tokens      float64
	lastRefill  time.Time
	waitTimeout time.Duration
	blockedTill time.Time
	now         func() time.Time
}

// RateLimiterConfig configures a RateLimiter.
type RateLimiterConfig struct {
	// RequestsPerSecond is the sustained rate.
	RequestsPerSecond float64

	// BurstSize is the bucket capacity.
	BurstSize int

	// WaitTimeout caps how long Allow blocks.
	WaitTimeout time.Duration
}

// DefaultRateLimiterConfig allows short bursts while a learner pages
// through a module.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		RequestsPerSecond: 5.0,
		BurstSize:         10,
		WaitTimeout:       5 * time.Second,
	}
}

// NewRateLimiter creates a limiter with a full bucket.
func NewRateLimiter(cfg RateLimiterConfig) *RateLimiter {
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 1
	}
	if cfg.BurstSize <= 0 {
		cfg.BurstSize = 1
	}
	return &RateLimiter{
		maxTokens:   float64(cfg.BurstSize),
		refillRate:  cfg.RequestsPerSecond,
		tokens:      float64(cfg.BurstSize),
		lastRefill:  time.Now(),
		waitTimeout: cfg.WaitTimeout,
		now:         time.Now,
	}
}

// RateLimitError is returned when no token became available in time.
type RateLimitError struct {
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	return fmt.Sprintf("content origin rate limit, retry after %s", e.RetryAfter)
}

// Allow blocks until a token is taken, ctx is done, or the wait would
// exceed the configured timeout.
func (rl *RateLimiter) Allow(ctx context.Context) error {
	deadline := rl.now().Add(rl.waitTimeout)

	for {
		wait, ok := rl.tryAcquire()
		if ok {
			return nil
		}
		if rl.now().Add(wait).After(deadline) {
			return &RateLimitError{RetryAfter: wait}
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// TryAllow takes a token without blocking.
func (rl *RateLimiter) TryAllow() bool {
	_, ok := rl.tryAcquire()
	return ok
}

func (rl *RateLimiter) tryAcquire() (time.Duration, bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if now.Before(rl.blockedTill) {
		return rl.blockedTill.Sub(now), false
	}

	rl.refill(now)
	if rl.tokens < 1.0 {
		need := 1.0 - rl.tokens
		return time.Duration(need / rl.refillRate * float64(time.Second)), false
	}
	rl.tokens--
	return 0, true
}

// Must be called with lock held.
func (rl *RateLimiter) refill(now time.Time) {
	elapsed := now.Sub(rl.lastRefill).Seconds()
	if elapsed <= 0 {
		return
	}
	rl.tokens += elapsed * rl.refillRate
	if rl.tokens > rl.maxTokens {
		rl.tokens = rl.maxTokens
	}
	rl.lastRefill = now
}

// RecordRateLimitHit empties the bucket and blocks until retryAfter has
// passed, as announced by the origin's Retry-After header.
func (rl *RateLimiter) RecordRateLimitHit(retryAfter time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.tokens = 0
	rl.lastRefill = now
	if retryAfter > 0 {
		rl.blockedTill = now.Add(retryAfter)
	}
}

// RateLimiterStatus is a point-in-time view for health output.
type RateLimiterStatus struct {
	AvailableTokens float64   `json:"available_tokens"`
	MaxTokens       float64   `json:"max_tokens"`
	BlockedUntil    time.Time `json:"blocked_until,omitempty"`
}

// Status returns the current bucket state.
func (rl *RateLimiter) Status() RateLimiterStatus {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.refill(rl.now())

	st := RateLimiterStatus{AvailableTokens: rl.tokens, MaxTokens: rl.maxTokens}
	if rl.now().Before(rl.blockedTill) {
		st.BlockedUntil = rl.blockedTill
	}
	return st
}
