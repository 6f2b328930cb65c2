package service

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/fbolanos/AutoHeadFixFB/internal/headfix/store"
	"github.com/fbolanos/AutoHeadFixFB/internal/headfix/types"
)

// Snapshotter lists the current per-animal counters.
type Snapshotter interface {
	Snapshot() []types.Animal
}

// StatsExporter periodically writes the registry snapshot to a stats sink,
// independent of trial boundaries. An interval of 0 disables it.
type StatsExporter struct {
	source   Snapshotter
	sink     store.StatsSink
	interval time.Duration
	logger   zerolog.Logger

	stopOnce sync.Once
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewStatsExporter(source Snapshotter, sink store.StatsSink, interval time.Duration, logger zerolog.Logger) *StatsExporter {
	return &StatsExporter{
		source:   source,
		sink:     sink,
		interval: interval,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Start begins the export loop. It exits when ctx is cancelled or Stop is
// called, writing one final snapshot on the way out.
func (e *StatsExporter) Start(ctx context.Context) {
	if e.interval <= 0 {
		e.logger.Info().Msg("stats exporter disabled")
		close(e.done)
		return
	}

	ctx, e.cancel = context.WithCancel(ctx)
	go e.loop(ctx)

	e.logger.Info().Dur("interval", e.interval).Msg("stats exporter started")
}

// Stop signals the exporter to exit and waits for it. It is safe to call
// more than once.
func (e *StatsExporter) Stop() {
	e.stopOnce.Do(func() {
		if e.cancel != nil {
			e.cancel()
		}
	})
	<-e.done
}

func (e *StatsExporter) loop(ctx context.Context) {
	defer close(e.done)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.export(context.WithoutCancel(ctx))
			return
		case <-ticker.C:
			e.export(ctx)
		}
	}
}

func (e *StatsExporter) export(ctx context.Context) {
	animals := e.source.Snapshot()
	if len(animals) == 0 {
		return
	}
	if err := e.sink.WriteStats(ctx, animals); err != nil {
		e.logger.Error().Err(err).Msg("stats export failed")
		return
	}
	e.logger.Debug().Int("animals", len(animals)).Msg("stats exported")
}
