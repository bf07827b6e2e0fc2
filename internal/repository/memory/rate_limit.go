package memory

import (
	"context"
	"sync"
	"time"

	"github.com/arklim/social-platform-auth/internal/core/port"
)

type window struct {
	count   int64
	resetAt time.Time
}

// RateLimitStore is a process-local fixed-window counter, used in tests
// and in single-instance deployments without Redis. Expired windows are
// dropped lazily on access and swept by an optional janitor.
type RateLimitStore struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

// NewRateLimitStore constructs an empty in-memory store.
func NewRateLimitStore() *RateLimitStore {
	return &RateLimitStore{
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

// WithClock overrides the internal clock, used in tests.
func (s *RateLimitStore) WithClock(now func() time.Time) *RateLimitStore {
	if now != nil {
		s.now = now
	}
	return s
}

// Incr increments the window counter, starting a fresh window when none
// is active.
func (s *RateLimitStore) Incr(_ context.Context, key string, windowLen time.Duration) (int64, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	w, ok := s.windows[key]
	if !ok || !w.resetAt.After(now) {
		w = &window{resetAt: now.Add(windowLen)}
		s.windows[key] = w
	}
	w.count++

	return w.count, w.resetAt, nil
}

// Get reports the current count and window reset without incrementing.
func (s *RateLimitStore) Get(_ context.Context, key string) (int64, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[key]
	if !ok {
		return 0, time.Time{}, nil
	}
	if !w.resetAt.After(s.now()) {
		delete(s.windows, key)
		return 0, time.Time{}, nil
	}

	return w.count, w.resetAt, nil
}

// Reset clears the counter for key.
func (s *RateLimitStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.windows, key)
	return nil
}

// StartJanitor sweeps expired windows every interval until ctx is done.
func (s *RateLimitStore) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.sweep()
			}
		}
	}()
}

func (s *RateLimitStore) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for key, w := range s.windows {
		if !w.resetAt.After(now) {
			delete(s.windows, key)
		}
	}
}

var _ port.RateLimitStore = (*RateLimitStore)(nil)
