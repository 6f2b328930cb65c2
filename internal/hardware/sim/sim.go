// Package sim provides in-memory digital lines and byte streams that stand
// in for the rig hardware in tests.
package sim

import (
	"bytes"
	"sync"
	"time"

	"github.com/fbolanos/AutoHeadFixFB/internal/clock"
)

// Transition is one recorded Set call on an Output.
type Transition struct {
	At time.Time
	On bool
}

// Output records every Set call, stamped with the supplied clock (or the
// zero time when clk is nil).
type Output struct {
	mu          sync.Mutex
	name        string
	clk         clock.Clock
	on          bool
	transitions []Transition
}

func NewOutput(name string, clk clock.Clock) *Output {
	return &Output{name: name, clk: clk}
}

func (o *Output) Set(on bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	var at time.Time
	if o.clk != nil {
		at = o.clk.Now()
	}
	o.on = on
	o.transitions = append(o.transitions, Transition{At: at, On: on})
	return nil
}

func (o *Output) On() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.on
}

func (o *Output) Transitions() []Transition {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Transition, len(o.transitions))
	copy(out, o.transitions)
	return out
}

// Pulses counts rising edges.
func (o *Output) Pulses() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	prev := false
	for _, tr := range o.transitions {
		if tr.On && !prev {
			n++
		}
		prev = tr.On
	}
	return n
}

func (o *Output) String() string { return o.name }

// Input is a sense line whose value is either set directly or computed
// from the clock by a script.
type Input struct {
	mu     sync.Mutex
	value  bool
	clk    clock.Clock
	script func(now time.Time) bool
}

func NewInput(v bool) *Input {
	return &Input{value: v}
}

// Scripted returns an Input whose value is fn(now) at each read.
func Scripted(clk clock.Clock, fn func(now time.Time) bool) *Input {
	return &Input{clk: clk, script: fn}
}

func (i *Input) Set(v bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.value = v
	i.script = nil
}

func (i *Input) Read() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.script != nil {
		return i.script(i.clk.Now())
	}
	return i.value
}

// ByteStream is a ByteSource backed by a buffer the test feeds.
type ByteStream struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	reads int
}

func (s *ByteStream) Feed(b []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf.Write(b)
}

func (s *ByteStream) Available() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Len(), nil
}

func (s *ByteStream) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	return s.buf.Read(p)
}

// Reads reports how many Read calls were made.
func (s *ByteStream) Reads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reads
}
