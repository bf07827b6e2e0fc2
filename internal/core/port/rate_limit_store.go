package port

import (
	"context"
	"time"
)

// RateLimitStore is a fixed-window counter backend. Implementations must
// make Incr atomic: two concurrent calls for the same key inside one
// window observe distinct counts.
type RateLimitStore interface {
	// Incr increments the counter for key, starting a new window of the
	// given length when none is active, and returns the post-increment
	// count together with the window reset time.
	Incr(ctx context.Context, key string, window time.Duration) (count int64, resetAt time.Time, err error)

	// Get returns the current count and reset time without incrementing.
	// A missing or expired key reports a zero count.
	Get(ctx context.Context, key string) (count int64, resetAt time.Time, err error)

	// Reset clears the counter for key.
	Reset(ctx context.Context, key string) error
}
