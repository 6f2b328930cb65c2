package clock

import (
	"context"
	"sync"
	"time"
)

// Fake is a manual clock: Sleep advances the current time by d and returns
// immediately. It is safe for use from multiple goroutines.
type Fake struct {
	mu    sync.Mutex
	now   time.Time
	slept time.Duration
	// OnSleep, if set, runs after every advance with the new time. Tests use
	// it to cancel a context at a given point in simulated time.
	OnSleep func(now time.Time)
}

func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.Advance(d)
	return ctx.Err()
}

// Advance moves the clock forward without a context.
func (f *Fake) Advance(d time.Duration) {
	if d < 0 {
		d = 0
	}
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.slept += d
	now := f.now
	hook := f.OnSleep
	f.mu.Unlock()
	if hook != nil {
		hook(now)
	}
}

// Slept reports the total simulated time spent in Sleep/Advance.
func (f *Fake) Slept() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.slept
}
