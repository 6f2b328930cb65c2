package service

import (
	"context"
	"time"

	"github.com/fbolanos/AutoHeadFixFB/internal/clock"
)

// Forever is the Poll timeout for a wait with no deadline.
const Forever time.Duration = -1

// CheckFunc reports whether a wait condition has been met.
type CheckFunc func() (done bool, err error)

// Poll evaluates check, sleeping rest between evaluations, until it
// reports done (true), timeout elapses (false), or ctx ends (ctx.Err()).
// A negative timeout (Forever) waits indefinitely; a zero timeout checks
// once without sleeping. With a deadline the check runs once more at the
// deadline, so a condition met exactly at the end of the window is not
// missed.
func Poll(ctx context.Context, clk clock.Clock, rest, timeout time.Duration, check CheckFunc) (bool, error) {
	start := clk.Now()
	for {
		done, err := check()
		if err != nil {
			return false, err
		}
		if done {
			return true, nil
		}

		wait := rest
		if timeout >= 0 {
			remaining := timeout - clk.Now().Sub(start)
			if remaining <= 0 {
				return false, nil
			}
			if remaining < wait {
				wait = remaining
			}
		}
		if err := clk.Sleep(ctx, wait); err != nil {
			return false, err
		}
	}
}
