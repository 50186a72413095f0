package wallclock

import (
	"context"
	"sync"
	"time"
)

// Fake is a Clock that never blocks. Every sleep advances its time and is
// recorded so tests can assert on the exact waits taken.
type Fake struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration

	// OnSleep, when set, runs after each recorded sleep. Tests use it to
	// cancel a context after a given number of waits.
	OnSleep func(n int, d time.Duration)
}

// NewFake returns a Fake starting at start.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

// Now returns the fake time.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Sleep records d and advances time.
func (f *Fake) Sleep(d time.Duration) {
	f.record(d)
}

// SleepContext records d and advances time unless ctx is already done.
func (f *Fake) SleepContext(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.record(d)
	return ctx.Err()
}

// Sleeps returns every recorded wait in order.
func (f *Fake) Sleeps() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Duration(nil), f.sleeps...)
}

// Total returns the sum of all recorded waits.
func (f *Fake) Total() time.Duration {
	var total time.Duration
	for _, d := range f.Sleeps() {
		total += d
	}
	return total
}

func (f *Fake) record(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.sleeps = append(f.sleeps, d)
	n := len(f.sleeps)
	hook := f.OnSleep
	f.mu.Unlock()

	if hook != nil {
		hook(n, d)
	}
}
