package memory

import (
	"context"
	"sync"

	"github.com/fbolanos/AutoHeadFixFB/internal/headfix/types"
)

// EventLog is an in-memory append-only event log. It is intended for use in
// tests and dry runs.
type EventLog struct {
	mu     sync.Mutex
	events []types.TrialEvent
	err    error
}

func NewEventLog() *EventLog {
	return &EventLog{}
}

func (l *EventLog) Append(_ context.Context, ev types.TrialEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return l.err
	}
	l.events = append(l.events, ev)
	return nil
}

// FailWith makes every subsequent Append return err.
func (l *EventLog) FailWith(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.err = err
}

// Events returns a copy of all recorded events.
func (l *EventLog) Events() []types.TrialEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]types.TrialEvent, len(l.events))
	copy(out, l.events)
	return out
}

// Labels returns the log labels of all recorded events, in order.
func (l *EventLog) Labels() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.events))
	for i, ev := range l.events {
		out[i] = ev.Label()
	}
	return out
}

// Stats keeps the most recent stats listing.
type Stats struct {
	mu     sync.Mutex
	latest []types.Animal
	writes int
}

func NewStats() *Stats {
	return &Stats{}
}

func (s *Stats) WriteStats(_ context.Context, animals []types.Animal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = make([]types.Animal, len(animals))
	copy(s.latest, animals)
	s.writes++
	return nil
}

func (s *Stats) Latest() []types.Animal {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Animal, len(s.latest))
	copy(out, s.latest)
	return out
}

func (s *Stats) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}
