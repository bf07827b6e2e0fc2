package usecase

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/social-platform-auth/internal/core/port"
)

// RateLimitResult is the outcome of one fixed-window check.
type RateLimitResult struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// RateLimiter applies a fixed-window counter per key. The backing store is
// pluggable; when it fails the limiter fails open and logs, because a dead
// counter store must never take authentication down with it.
type RateLimiter struct {
	store  port.RateLimitStore
	limit  int
	window time.Duration
	logger *zap.Logger
	now    func() time.Time
}

// NewRateLimiter constructs a limiter allowing limit requests per window.
func NewRateLimiter(store port.RateLimitStore, limit int, window time.Duration, logger *zap.Logger) (*RateLimiter, error) {
	if store == nil {
		return nil, fmt.Errorf("rate limit store is required")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("rate limit must be positive")
	}
	if window <= 0 {
		return nil, fmt.Errorf("rate limit window must be positive")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RateLimiter{
		store:  store,
		limit:  limit,
		window: window,
		logger: logger,
		now:    time.Now,
	}, nil
}

// WithClock overrides the internal clock, used in tests.
func (l *RateLimiter) WithClock(now func() time.Time) *RateLimiter {
	if now != nil {
		l.now = now
	}
	return l
}

// Limit returns the configured per-window request budget.
func (l *RateLimiter) Limit() int { return l.limit }

// Window returns the configured window length.
func (l *RateLimiter) Window() time.Duration { return l.window }

// Check consumes one unit for key and reports whether the request is
// within the window budget. Store errors fail open.
func (l *RateLimiter) Check(ctx context.Context, key string) RateLimitResult {
	count, resetAt, err := l.store.Incr(ctx, key, l.window)
	if err != nil {
		l.logger.Warn("rate limit store unavailable, failing open",
			zap.String("key", key),
			zap.Error(err),
		)
		return l.failOpen()
	}

	return l.result(count, resetAt)
}

// Peek reports the current state for key without consuming a unit.
func (l *RateLimiter) Peek(ctx context.Context, key string) RateLimitResult {
	count, resetAt, err := l.store.Get(ctx, key)
	if err != nil {
		l.logger.Warn("rate limit store unavailable, failing open",
			zap.String("key", key),
			zap.Error(err),
		)
		return l.failOpen()
	}

	return l.result(count, resetAt)
}

// Reset clears the counter for key, typically after a successful
// authentication so earlier failures stop counting against the caller.
func (l *RateLimiter) Reset(ctx context.Context, key string) {
	if err := l.store.Reset(ctx, key); err != nil {
		l.logger.Warn("rate limit reset failed",
			zap.String("key", key),
			zap.Error(err),
		)
	}
}

func (l *RateLimiter) result(count int64, resetAt time.Time) RateLimitResult {
	remaining := l.limit - int(count)
	if remaining < 0 {
		remaining = 0
	}

	res := RateLimitResult{
		Allowed:   count <= int64(l.limit),
		Limit:     l.limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
	if !res.Allowed {
		retry := resetAt.Sub(l.now())
		if retry < 0 {
			retry = 0
		}
		res.RetryAfter = retry
	}

	return res
}

func (l *RateLimiter) failOpen() RateLimitResult {
	return RateLimitResult{
		Allowed:   true,
		Limit:     l.limit,
		Remaining: l.limit,
		ResetAt:   l.now().Add(l.window),
	}
}
