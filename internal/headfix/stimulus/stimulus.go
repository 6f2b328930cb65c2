package stimulus

import (
	"context"
	"fmt"
	"time"

	"github.com/fbolanos/AutoHeadFixFB/internal/clock"
	"github.com/fbolanos/AutoHeadFixFB/internal/hardware"
)

// Stimulus is delivered once per head-fix reward cycle. Deliver returns the
// name of the line it drove, or "" when the stimulus is identified by its
// index alone.
type Stimulus interface {
	Deliver(ctx context.Context, index int) (side string, err error)
}

// Pulse asserts a single stimulus line for a fixed on time.
type Pulse struct {
	seq *Sequencer
}

func NewPulse(line hardware.OutputLine, clk clock.Clock, on time.Duration) (*Pulse, error) {
	seq, err := NewSequencer(line, clk, Config{On: on})
	if err != nil {
		return nil, err
	}
	return &Pulse{seq: seq}, nil
}

func (p *Pulse) Deliver(ctx context.Context, _ int) (string, error) {
	return "", p.seq.Run(ctx, 1, Hooks{})
}

// NamedLine binds a wiring position (e.g. "left") to an output line.
type NamedLine struct {
	Name string
	Line hardware.OutputLine
}

type FlasherConfig struct {
	// Order is the cyclic selection order, by line name. Names may repeat.
	Order []string
	// Flashes is the number of on/off flashes per delivery.
	Flashes int
	// Frequency is the flash rate in Hz; each flash is on for half a cycle.
	Frequency float64
}

// CyclicFlasher selects among several lines in a fixed round-robin order
// across successive deliveries, flashing the selected line a fixed number
// of times before returning.
type CyclicFlasher struct {
	order   []string
	seqs    map[string]*Sequencer
	flashes int
	next    int
}

func NewCyclicFlasher(lines []NamedLine, clk clock.Clock, cfg FlasherConfig) (*CyclicFlasher, error) {
	if len(cfg.Order) == 0 {
		return nil, fmt.Errorf("%w: empty cyclic order", ErrInvalidConfig)
	}
	if cfg.Flashes <= 0 {
		return nil, fmt.Errorf("%w: flashes must be positive, got %d", ErrInvalidConfig, cfg.Flashes)
	}
	if cfg.Frequency <= 0 {
		return nil, fmt.Errorf("%w: frequency must be positive, got %g", ErrInvalidConfig, cfg.Frequency)
	}

	period := time.Duration(float64(time.Second) / cfg.Frequency)
	seqCfg := Config{On: period / 2, Period: period}

	seqs := make(map[string]*Sequencer, len(lines))
	for _, nl := range lines {
		seq, err := NewSequencer(nl.Line, clk, seqCfg)
		if err != nil {
			return nil, err
		}
		seqs[nl.Name] = seq
	}
	for _, name := range cfg.Order {
		if _, ok := seqs[name]; !ok {
			return nil, fmt.Errorf("%w: cyclic order names unknown line %q", ErrInvalidConfig, name)
		}
	}

	order := make([]string, len(cfg.Order))
	copy(order, cfg.Order)
	return &CyclicFlasher{order: order, seqs: seqs, flashes: cfg.Flashes}, nil
}

func (f *CyclicFlasher) Deliver(ctx context.Context, _ int) (string, error) {
	name := f.order[f.next]
	f.next = (f.next + 1) % len(f.order)
	return name, f.seqs[name].Run(ctx, f.flashes, Hooks{})
}
