package limiter

import (
	"context"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// MemoryTracker keeps failures in process memory. Entries of idle clients
// expire with the window, so the cache doesn't grow with every address that
// ever failed.
type MemoryTracker struct {
	window time.Duration
	cache  *cache.Cache
	// mu guards the read-modify-write of a key's attempts.
	mu  sync.Mutex
	now func() time.Time
}

var _ FailureTracker = &MemoryTracker{}

func NewMemoryTracker(window time.Duration) *MemoryTracker {
	return &MemoryTracker{
		window: window,
		cache:  cache.New(window, 2*window),
		now:    time.Now,
	}
}

func (t *MemoryTracker) RecordFailure(_ context.Context, key string) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	cutoff := now.Add(-t.window)
	attempts := []time.Time{}
	if cached, ok := t.cache.Get(key); ok {
		for _, at := range cached.([]time.Time) {
			if at.After(cutoff) {
				attempts = append(attempts, at)
			}
		}
	}
	attempts = append(attempts, now)
	t.cache.Set(key, attempts, t.window)
	return len(attempts), nil
}

func (t *MemoryTracker) Reset(_ context.Context, key string) error {
	t.cache.Delete(key)
	return nil
}
