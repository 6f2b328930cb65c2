// Package stimulus drives timed actuation patterns on output lines: the
// reward valve pulse train and the light stimuli delivered during head
// fixation.
package stimulus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fbolanos/AutoHeadFixFB/internal/clock"
	"github.com/fbolanos/AutoHeadFixFB/internal/hardware"
)

var ErrInvalidConfig = errors.New("stimulus: invalid config")

// Config fixes the timing of one pulse cycle. A cycle asserts the line for
// On, then waits out the rest of Period. Period equal to On (or zero) means
// no off wait.
type Config struct {
	On     time.Duration
	Period time.Duration
	// Phase is the offset from pulse onset at which Hooks.AtPhase runs.
	// Zero runs AtPhase straight after the pulse.
	Phase time.Duration
}

// Off is the derived de-asserted time of each cycle.
func (c Config) Off() time.Duration {
	if c.Period == 0 {
		return 0
	}
	return c.Period - c.On
}

func (c Config) Validate() error {
	if c.On <= 0 {
		return fmt.Errorf("%w: on duration must be positive, got %s", ErrInvalidConfig, c.On)
	}
	if c.Off() < 0 {
		return fmt.Errorf("%w: period %s shorter than on duration %s", ErrInvalidConfig, c.Period, c.On)
	}
	if c.Phase != 0 && (c.Phase < c.On || c.Phase > c.cycle()) {
		return fmt.Errorf("%w: phase %s outside [%s, %s]", ErrInvalidConfig, c.Phase, c.On, c.cycle())
	}
	return nil
}

func (c Config) cycle() time.Duration {
	if c.Period == 0 {
		return c.On
	}
	return c.Period
}

// PulseFunc is invoked with the zero-based pulse index. A non-nil error
// stops the sequence.
type PulseFunc func(ctx context.Context, index int) error

type Hooks struct {
	// AfterPulse runs once the line has been de-asserted.
	AfterPulse PulseFunc
	// AtPhase runs at Config.Phase after onset.
	AtPhase PulseFunc
}

// Sequencer repeats an on/off cycle on a single output line. Hook run time
// is absorbed into the cycle so each cycle spans exactly the configured
// period as measured by the clock.
type Sequencer struct {
	line hardware.OutputLine
	clk  clock.Clock
	cfg  Config
}

func NewSequencer(line hardware.OutputLine, clk clock.Clock, cfg Config) (*Sequencer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Sequencer{line: line, clk: clk, cfg: cfg}, nil
}

func (s *Sequencer) Config() Config { return s.cfg }

// Run performs count cycles. On any error the line is left de-asserted.
func (s *Sequencer) Run(ctx context.Context, count int, hooks Hooks) error {
	for i := 0; i < count; i++ {
		start := s.clk.Now()

		if err := s.pulse(ctx); err != nil {
			return err
		}
		if hooks.AfterPulse != nil {
			if err := hooks.AfterPulse(ctx, i); err != nil {
				return err
			}
		}
		if hooks.AtPhase != nil {
			if err := s.sleepUntil(ctx, start, s.cfg.Phase); err != nil {
				return err
			}
			if err := hooks.AtPhase(ctx, i); err != nil {
				return err
			}
		}
		if err := s.sleepUntil(ctx, start, s.cfg.cycle()); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sequencer) pulse(ctx context.Context) error {
	if err := s.line.Set(true); err != nil {
		return err
	}
	slept := s.clk.Sleep(ctx, s.cfg.On)
	if err := s.line.Set(false); err != nil {
		return err
	}
	return slept
}

func (s *Sequencer) sleepUntil(ctx context.Context, start time.Time, offset time.Duration) error {
	remaining := offset - s.clk.Now().Sub(start)
	if remaining <= 0 {
		return ctx.Err()
	}
	return s.clk.Sleep(ctx, remaining)
}
