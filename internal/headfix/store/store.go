package store

import (
	"context"
	"errors"

	"github.com/fbolanos/AutoHeadFixFB/internal/headfix/types"
)

// EventSink persists trial events as an append-only log. Append order is
// the event order.
type EventSink interface {
	Append(ctx context.Context, ev types.TrialEvent) error
}

// StatsSink receives a full listing of per-animal counters. Each call
// replaces what the previous call wrote.
type StatsSink interface {
	WriteStats(ctx context.Context, animals []types.Animal) error
}

// Events fans one event out to several sinks in order. Every sink is
// attempted; the errors are joined.
type Events []EventSink

func (s Events) Append(ctx context.Context, ev types.TrialEvent) error {
	var errs []error
	for _, sink := range s {
		if err := sink.Append(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Stats fans a stats listing out to several sinks.
type Stats []StatsSink

func (s Stats) WriteStats(ctx context.Context, animals []types.Animal) error {
	var errs []error
	for _, sink := range s {
		if err := sink.WriteStats(ctx, animals); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
