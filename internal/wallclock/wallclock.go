// Package wallclock abstracts the blocking waits of the node runtime so the
// retry, recovery and hold timings can be driven by tests.
package wallclock

import (
	"context"
	"time"
)

type (
	// Clock abstracts a subset of functionality from package time.
	Clock interface {
		Now() time.Time
		// Sleep blocks for d and cannot be interrupted.
		Sleep(d time.Duration)
		// SleepContext blocks for d or until ctx is done, returning ctx.Err()
		// in the latter case.
		SleepContext(ctx context.Context, d time.Duration) error
	}

	wallClock struct{}
)

// Instance is the real clock.
var Instance Clock = wallClock{}

// Now indirects time.Now.
func (wallClock) Now() time.Time {
	return time.Now()
}

// Sleep indirects time.Sleep.
func (wallClock) Sleep(d time.Duration) {
	time.Sleep(d)
}

// SleepContext waits on a timer or the context, whichever is first.
func (wallClock) SleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
