package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/fbolanos/AutoHeadFixFB/internal/clock"
	"github.com/fbolanos/AutoHeadFixFB/internal/config"
	"github.com/fbolanos/AutoHeadFixFB/internal/db"
	"github.com/fbolanos/AutoHeadFixFB/internal/hardware"
	"github.com/fbolanos/AutoHeadFixFB/internal/headfix/service"
	"github.com/fbolanos/AutoHeadFixFB/internal/headfix/stimulus"
	"github.com/fbolanos/AutoHeadFixFB/internal/headfix/store"
	"github.com/fbolanos/AutoHeadFixFB/internal/headfix/store/sqlite"
	"github.com/fbolanos/AutoHeadFixFB/internal/headfix/store/textlog"
	"github.com/fbolanos/AutoHeadFixFB/internal/headfix/tagreader"
	"github.com/fbolanos/AutoHeadFixFB/internal/httpapi"
	"github.com/fbolanos/AutoHeadFixFB/internal/observability"
	"github.com/fbolanos/AutoHeadFixFB/internal/video"
)

// rigHardware abstracts how lines and the tag stream are obtained so a rig
// can be assembled over simulated hardware.
type rigHardware struct {
	openOutput func(name string) (hardware.OutputLine, error)
	openInput  func(name string) (hardware.InputLine, error)
	tags       hardware.ByteSource
	close      func() error
	clock      clock.Clock
}

func openHardware(cfg config.Config) (*rigHardware, error) {
	if err := hardware.InitHost(); err != nil {
		return nil, err
	}
	src, err := hardware.OpenSerial(hardware.SerialConfig{
		Port:     cfg.SerialPort,
		BaudRate: cfg.BaudRate,
	})
	if err != nil {
		return nil, err
	}
	return &rigHardware{
		openOutput: func(name string) (hardware.OutputLine, error) {
			o, err := hardware.OpenOutput(name)
			if err != nil {
				return nil, err
			}
			return o, nil
		},
		openInput: func(name string) (hardware.InputLine, error) {
			i, err := hardware.OpenInput(name)
			if err != nil {
				return nil, err
			}
			return i, nil
		},
		tags:  src,
		close: src.Close,
		clock: clock.Real{},
	}, nil
}

// rig is one fully wired session with its sinks and status surfaces.
type rig struct {
	cfg       config.Config
	logger    zerolog.Logger
	sessionID string
	registry  *service.Registry
	session   *service.Session
	exporter  *service.StatsExporter
	api       *httpapi.Server
	health    *httpapi.HealthServer
	closers   []func() error
}

func buildRig(ctx context.Context, cfg config.Config, hw *rigHardware, logger zerolog.Logger, promReg prometheus.Registerer) (_ *rig, err error) {
	clk := hw.clock
	if clk == nil {
		clk = clock.Real{}
	}
	r := &rig{
		cfg:       cfg,
		sessionID: newSessionID(clk),
		registry:  service.NewRegistry(),
	}
	r.logger = logger.With().Str("session", r.sessionID).Logger()
	if hw.close != nil {
		r.closers = append(r.closers, hw.close)
	}
	defer func() {
		if err != nil {
			r.close()
		}
	}()

	lines, err := openLines(cfg, hw)
	if err != nil {
		return nil, err
	}
	stim, stimLines, err := buildStimulus(cfg, clk, hw.openOutput)
	if err != nil {
		return nil, err
	}
	lines.Stimulus = stimLines

	metrics := observability.NewMetrics(promReg)
	decoder := tagreader.NewDecoder(hw.tags, tagreader.Options{
		VerifyChecksum: cfg.VerifyChecksum,
		Logger:         r.logger.With().Str("component", "tagreader").Logger(),
		Metrics:        metrics,
	})

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir data dir: %w", err)
	}
	eventFile, err := textlog.OpenEventFile(filepath.Join(cfg.DataDir, textlog.DataFileName(cfg.CageID, clk.Now())))
	if err != nil {
		return nil, err
	}
	r.closers = append(r.closers, eventFile.Close)

	sqlDB, err := db.Open(ctx, db.Config{Path: cfg.DBPath})
	if err != nil {
		return nil, err
	}
	r.closers = append(r.closers, sqlDB.Close)
	writer := db.NewWorker(sqlDB)
	r.closers = append(r.closers, func() error { writer.Close(); return nil })

	events := store.Events{
		eventFile,
		sqlite.NewEventStore(sqlDB, writer, r.sessionID, cfg.CageID),
	}
	stats := store.Stats{
		textlog.NewStatsFile(filepath.Join(cfg.DataDir, textlog.StatsFileName(cfg.CageID))),
		sqlite.NewStatsStore(sqlDB, writer, r.sessionID, cfg.CageID),
	}
	r.exporter = service.NewStatsExporter(
		r.registry,
		sqlite.NewSnapshotStore(sqlDB, writer, r.sessionID, cfg.CageID),
		cfg.StatsExportInterval,
		r.logger.With().Str("component", "exporter").Logger(),
	)

	var recorder service.Recorder
	if cfg.VideoEnabled {
		recorder = video.NewExecRecorder(
			filepath.Join(cfg.VideoDir, cfg.CageID),
			cfg.VideoCommand,
			r.logger.With().Str("component", "video").Logger(),
		)
	}

	r.session, err = service.NewSession(service.Dependencies{
		Logger:   r.logger,
		Metrics:  metrics,
		Clock:    clk,
		Tags:     decoder,
		Lines:    lines,
		Registry: r.registry,
		Events:   events,
		Stats:    stats,
		Video:    recorder,
		Stimulus: stim,
		Timing:   timingFrom(cfg),
	})
	if err != nil {
		return nil, err
	}

	if cfg.HTTPAddr != "" {
		var gatherer prometheus.Gatherer
		if g, ok := promReg.(prometheus.Gatherer); ok {
			gatherer = g
		}
		r.api = httpapi.NewServer(httpapi.Dependencies{
			Logger:    r.logger.With().Str("component", "http").Logger(),
			Addr:      cfg.HTTPAddr,
			SessionID: r.sessionID,
			CageID:    cfg.CageID,
			Animals:   r.registry,
			Session:   r.session,
			Gatherer:  gatherer,
		})
	}
	if cfg.GRPCAddr != "" {
		r.health = httpapi.NewHealthServer(r.logger.With().Str("component", "grpc").Logger())
	}

	return r, nil
}

// newSessionID stamps the id with the rig clock so ids sort by session start.
func newSessionID(clk clock.Clock) string {
	return ulid.MustNew(ulid.Timestamp(clk.Now()), ulid.DefaultEntropy()).String()
}

func openLines(cfg config.Config, hw *rigHardware) (service.Lines, error) {
	var (
		lines service.Lines
		err   error
	)
	outputs := []struct {
		pin string
		dst *hardware.OutputLine
	}{
		{cfg.Pins.Restraint, &lines.Restraint},
		{cfg.Pins.Reward, &lines.Reward},
		{cfg.Pins.Indicator, &lines.Indicator},
	}
	for _, o := range outputs {
		if *o.dst, err = hw.openOutput(o.pin); err != nil {
			return service.Lines{}, err
		}
	}
	if lines.Contact, err = hw.openInput(cfg.Pins.Contact); err != nil {
		return service.Lines{}, err
	}
	if lines.Range, err = hw.openInput(cfg.Pins.Range); err != nil {
		return service.Lines{}, err
	}
	return lines, nil
}

// buildStimulus returns the configured stimulus (nil for none) and the
// lines it drives.
func buildStimulus(cfg config.Config, clk clock.Clock, open func(string) (hardware.OutputLine, error)) (stimulus.Stimulus, []hardware.OutputLine, error) {
	switch cfg.StimulusMode {
	case config.StimulusPulse:
		line, err := open(cfg.Pins.Stimulus)
		if err != nil {
			return nil, nil, err
		}
		p, err := stimulus.NewPulse(line, clk, cfg.StimulusOn)
		if err != nil {
			return nil, nil, err
		}
		return p, []hardware.OutputLine{line}, nil

	case config.StimulusCyclic:
		var (
			named []stimulus.NamedLine
			lines []hardware.OutputLine
			seen  = make(map[string]bool)
		)
		for _, name := range cfg.CyclicOrder {
			if seen[name] {
				continue
			}
			seen[name] = true
			line, err := open(cfg.Pins.Cyclic[name])
			if err != nil {
				return nil, nil, err
			}
			named = append(named, stimulus.NamedLine{Name: name, Line: line})
			lines = append(lines, line)
		}
		f, err := stimulus.NewCyclicFlasher(named, clk, stimulus.FlasherConfig{
			Order:     cfg.CyclicOrder,
			Flashes:   cfg.FlashCount,
			Frequency: cfg.FlashFrequency,
		})
		if err != nil {
			return nil, nil, err
		}
		return f, lines, nil
	}
	return nil, nil, nil
}

func timingFrom(cfg config.Config) service.Timing {
	return service.Timing{
		Rest:                cfg.RestInterval,
		EntranceRewardDelay: cfg.EntranceRewardDelay,
		MaxEntranceRewards:  cfg.MaxEntranceRewards,
		RewardOn:            cfg.RewardOn,
		InterRewardInterval: cfg.InterRewardInterval,
		StimulusPhase:       cfg.StimulusPhase,
		HeadFixRewards:      cfg.HeadFixRewards,
		Skedaddle:           cfg.Skedaddle,
	}
}

// run serves the status surfaces and runs the session until ctx ends.
func (r *rig) run(ctx context.Context) error {
	if r.health != nil {
		lis, err := net.Listen("tcp", r.cfg.GRPCAddr)
		if err != nil {
			return fmt.Errorf("grpc listen: %w", err)
		}
		go func() {
			if err := r.health.Serve(lis); err != nil {
				r.logger.Error().Err(err).Msg("grpc server error")
			}
		}()
		r.logger.Info().Str("addr", lis.Addr().String()).Msg("grpc health listening")
		r.health.SetServing(true)
	}
	if r.api != nil {
		go func() {
			r.logger.Info().Str("addr", r.cfg.HTTPAddr).Msg("http listening")
			if err := r.api.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				r.logger.Error().Err(err).Msg("http server error")
			}
		}()
	}

	r.exporter.Start(ctx)
	err := r.session.Run(ctx)
	r.exporter.Stop()

	if r.health != nil {
		r.health.SetServing(false)
		r.health.Stop()
	}
	if r.api != nil {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = r.api.Shutdown(shutdownCtx)
	}
	return err
}

// close releases resources in reverse order of acquisition.
func (r *rig) close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			r.logger.Warn().Err(err).Msg("close")
		}
	}
	r.closers = nil
}
