// Package limiter slows down clients that keep presenting bad credentials.
// Every denied verification is recorded against the client; the next denial
// is delayed in proportion to the failures seen inside a sliding window.
package limiter

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

// FailureTracker counts failed attempts per key inside a sliding window.
type FailureTracker interface {
	// RecordFailure adds a failure for key and returns how many failures
	// key has inside the window, this one included.
	RecordFailure(ctx context.Context, key string) (int, error)
	// Reset forgets all failures of key.
	Reset(ctx context.Context, key string) error
}

// Backoff turns a failure count into a delay: Base per failure, capped at Max.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

func (b Backoff) Delay(failures int) time.Duration {
	if failures <= 0 || b.Base <= 0 {
		return 0
	}
	d := b.Base * time.Duration(failures)
	if b.Max > 0 && d > b.Max {
		d = b.Max
	}
	return d
}

// Guard combines a FailureTracker with a Backoff policy.
type Guard struct {
	Tracker FailureTracker
	Backoff Backoff
}

// Fail records a failure for key and returns how long the response should
// be delayed. Tracker errors don't block the request; they fall back to a
// single-failure delay.
func (g *Guard) Fail(ctx context.Context, key string) time.Duration {
	failures, err := g.Tracker.RecordFailure(ctx, key)
	if err != nil {
		log.WithField("client", key).Errorf("Failed to record failed attempt: %v", err)
		failures = 1
	}
	return g.Backoff.Delay(failures)
}

// Succeed clears the failures of key.
func (g *Guard) Succeed(ctx context.Context, key string) {
	if err := g.Tracker.Reset(ctx, key); err != nil {
		log.WithField("client", key).Errorf("Failed to reset failed attempts: %v", err)
	}
}

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
