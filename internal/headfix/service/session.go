package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/fbolanos/AutoHeadFixFB/internal/clock"
	"github.com/fbolanos/AutoHeadFixFB/internal/hardware"
	"github.com/fbolanos/AutoHeadFixFB/internal/headfix/stimulus"
	"github.com/fbolanos/AutoHeadFixFB/internal/headfix/store"
	"github.com/fbolanos/AutoHeadFixFB/internal/headfix/types"
	"github.com/fbolanos/AutoHeadFixFB/internal/observability"
)

var ErrInvalidTiming = errors.New("session: invalid timing")

// State is the position of the session loop.
type State int

const (
	StateIdle State = iota
	StateAwaitingTag
	StateTrialEntry
	StateEntranceRewardWindow
	StateAwaitingContact
	StateHeadFixed
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingTag:
		return "awaiting-tag"
	case StateTrialEntry:
		return "trial-entry"
	case StateEntranceRewardWindow:
		return "entrance-reward-window"
	case StateAwaitingContact:
		return "awaiting-contact"
	case StateHeadFixed:
		return "head-fixed"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Timing holds the behavioural constants of a session.
type Timing struct {
	// Rest is the poll interval of every wait loop.
	Rest time.Duration
	// EntranceRewardDelay is how long an entering animal may go without
	// touching the contact before it earns an entrance reward.
	EntranceRewardDelay time.Duration
	MaxEntranceRewards  int
	RewardOn            time.Duration
	// InterRewardInterval is the period of the head-fixed reward train.
	InterRewardInterval time.Duration
	// StimulusPhase is the offset from reward onset at which the stimulus
	// is delivered. Zero means half the inter-reward interval.
	StimulusPhase  time.Duration
	HeadFixRewards int
	// Skedaddle is the pause after release that lets the animal back out.
	Skedaddle time.Duration
}

// DefaultTiming mirrors the rig protocol the cages were calibrated with.
func DefaultTiming() Timing {
	return Timing{
		Rest:                10 * time.Millisecond,
		EntranceRewardDelay: 2 * time.Second,
		MaxEntranceRewards:  100,
		RewardOn:            100 * time.Millisecond,
		InterRewardInterval: 5 * time.Second,
		HeadFixRewards:      6,
		Skedaddle:           3 * time.Second,
	}
}

func (t Timing) Validate() error {
	switch {
	case t.Rest <= 0:
		return fmt.Errorf("%w: rest must be positive", ErrInvalidTiming)
	case t.EntranceRewardDelay < 0:
		return fmt.Errorf("%w: negative entrance reward delay", ErrInvalidTiming)
	case t.MaxEntranceRewards < 0:
		return fmt.Errorf("%w: negative max entrance rewards", ErrInvalidTiming)
	case t.HeadFixRewards < 0:
		return fmt.Errorf("%w: negative head-fix reward count", ErrInvalidTiming)
	case t.Skedaddle < 0:
		return fmt.Errorf("%w: negative skedaddle", ErrInvalidTiming)
	}
	return nil
}

func (t Timing) stimulusPhase() time.Duration {
	if t.StimulusPhase > 0 {
		return t.StimulusPhase
	}
	return t.InterRewardInterval / 2
}

// TagSource yields decoded tags without blocking.
type TagSource interface {
	TryDecode() (types.TagID, bool, error)
}

// Recorder captures video for the duration of a head fixation.
type Recorder interface {
	Start(ctx context.Context, tag types.TagID, at time.Time) (string, error)
	Stop(ctx context.Context) error
}

// Lines is the physical I/O the session drives.
type Lines struct {
	Restraint hardware.OutputLine
	Reward    hardware.OutputLine
	Indicator hardware.OutputLine
	Contact   hardware.InputLine
	Range     hardware.InputLine
	// Stimulus lines are driven through Dependencies.Stimulus; they are
	// listed here so shutdown can release them.
	Stimulus []hardware.OutputLine
}

func (l Lines) outputs() []hardware.OutputLine {
	out := []hardware.OutputLine{l.Restraint, l.Reward, l.Indicator}
	return append(out, l.Stimulus...)
}

// Dependencies holds everything the session needs.
type Dependencies struct {
	Logger   zerolog.Logger
	Metrics  *observability.Metrics
	Clock    clock.Clock
	Tags     TagSource
	Lines    Lines
	Registry *Registry
	Events   store.EventSink
	Stats    store.StatsSink
	// Video may be nil.
	Video Recorder
	// Stimulus may be nil for no stimulus.
	Stimulus stimulus.Stimulus
	Timing   Timing
}

// Status is a point-in-time view of the session for reporting.
type Status struct {
	State      State
	Tag        types.TagID
	HasAnimal  bool
	Since      time.Time
	Recording  string
	TrialCount int
}

// Session runs the rig: it waits for a tag, follows the animal through
// entry, the entrance reward window and head fixation, and logs every
// step. A session is single-use.
type Session struct {
	log      zerolog.Logger
	metrics  *observability.Metrics
	clk      clock.Clock
	tags     TagSource
	lines    Lines
	registry *Registry
	events   store.EventSink
	stats    store.StatsSink
	video    Recorder
	stim     stimulus.Stimulus
	timing   Timing

	entranceReward *stimulus.Sequencer
	rewardTrain    *stimulus.Sequencer

	mu     sync.RWMutex
	status Status
}

func NewSession(d Dependencies) (*Session, error) {
	if err := d.Timing.Validate(); err != nil {
		return nil, err
	}
	if d.Tags == nil || d.Events == nil || d.Stats == nil || d.Registry == nil {
		return nil, errors.New("session: tag source, sinks and registry are required")
	}
	if d.Lines.Restraint == nil || d.Lines.Reward == nil || d.Lines.Indicator == nil ||
		d.Lines.Contact == nil || d.Lines.Range == nil {
		return nil, errors.New("session: all lines are required")
	}
	if d.Clock == nil {
		d.Clock = clock.Real{}
	}

	entrance, err := stimulus.NewSequencer(d.Lines.Reward, d.Clock, stimulus.Config{On: d.Timing.RewardOn})
	if err != nil {
		return nil, fmt.Errorf("entrance reward: %w", err)
	}

	trainCfg := stimulus.Config{On: d.Timing.RewardOn, Period: d.Timing.InterRewardInterval}
	if d.Stimulus != nil {
		trainCfg.Phase = d.Timing.stimulusPhase()
	}
	train, err := stimulus.NewSequencer(d.Lines.Reward, d.Clock, trainCfg)
	if err != nil {
		return nil, fmt.Errorf("head-fix rewards: %w", err)
	}

	return &Session{
		log:            d.Logger,
		metrics:        d.Metrics,
		clk:            d.Clock,
		tags:           d.Tags,
		lines:          d.Lines,
		registry:       d.Registry,
		events:         d.Events,
		stats:          d.Stats,
		video:          d.Video,
		stim:           d.Stimulus,
		timing:         d.Timing,
		entranceReward: entrance,
		rewardTrain:    train,
	}, nil
}

func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Run executes the session until ctx is cancelled or a fatal error occurs.
// Cancellation is a clean stop and returns nil. On any exit the output
// lines are released, a running recording is stopped and the session end
// is logged.
func (s *Session) Run(ctx context.Context) (err error) {
	start := s.clk.Now()
	if err := s.append(ctx, types.SessionEvent(types.EventSessionStart, start)); err != nil {
		return fmt.Errorf("log session start: %w", err)
	}
	s.log.Info().Time("at", start).Msg("session started")

	defer func() { err = s.shutdown(ctx, err) }()

	for {
		s.setState(StateAwaitingTag)
		tag, err := s.awaitTag(ctx)
		if err != nil {
			return err
		}

		h, created := s.registry.Resolve(tag)
		if created {
			s.log.Info().Stringer("tag", tag).Msg("new animal")
		}
		if err := s.runTrial(ctx, h); err != nil {
			return err
		}
		if err := s.stats.WriteStats(ctx, s.registry.Snapshot()); err != nil {
			return fmt.Errorf("write stats: %w", err)
		}
		s.endTrial()
	}
}

func (s *Session) awaitTag(ctx context.Context) (types.TagID, error) {
	var tag types.TagID
	_, err := Poll(ctx, s.clk, s.timing.Rest, Forever, func() (bool, error) {
		t, ok, err := s.tags.TryDecode()
		if err != nil {
			return false, fmt.Errorf("read tag: %w", err)
		}
		tag = t
		return ok, nil
	})
	return tag, err
}

// runTrial follows one animal from entry until it leaves or its head
// fixation completes.
func (s *Session) runTrial(ctx context.Context, h Handle) error {
	tag := h.Tag().String()
	log := s.log.With().Str("tag", tag).Logger()

	s.beginTrial(h)
	if err := s.append(ctx, types.AnimalEvent(h.Tag(), types.EventEntry, s.clk.Now())); err != nil {
		return err
	}
	entries := s.registry.AddEntry(h)
	s.metrics.Entry()
	log.Info().Int("entries", entries).Msg("entry")

	s.setState(StateEntranceRewardWindow)
	left := false
	contact, err := Poll(ctx, s.clk, s.timing.Rest, s.timing.EntranceRewardDelay, s.contactOrExit(&left))
	if err != nil {
		return err
	}
	if left {
		return s.exit(ctx, h, log)
	}
	if !contact && s.registry.EntranceRewardAvailable(h, s.timing.MaxEntranceRewards) {
		if err := s.entranceReward.Run(ctx, 1, stimulus.Hooks{}); err != nil {
			return fmt.Errorf("entrance reward: %w", err)
		}
		s.registry.GrantEntranceReward(h, s.timing.MaxEntranceRewards)
		s.metrics.Reward("entrance")
		log.Debug().Msg("entrance reward")
	}

	s.setState(StateAwaitingContact)
	if _, err := Poll(ctx, s.clk, s.timing.Rest, Forever, s.contactOrExit(&left)); err != nil {
		return err
	}
	if left {
		return s.exit(ctx, h, log)
	}
	return s.headFix(ctx, h, log)
}

// contactOrExit is done once the animal touches the contact or leaves the
// tag range, recording which in left.
func (s *Session) contactOrExit(left *bool) CheckFunc {
	return func() (bool, error) {
		if s.lines.Contact.Read() {
			return true, nil
		}
		if !s.lines.Range.Read() {
			*left = true
			return true, nil
		}
		return false, nil
	}
}

func (s *Session) exit(ctx context.Context, h Handle, log zerolog.Logger) error {
	if err := s.append(ctx, types.AnimalEvent(h.Tag(), types.EventExit, s.clk.Now())); err != nil {
		return err
	}
	s.metrics.Exit()
	log.Info().Msg("exit")
	return nil
}

func (s *Session) headFix(ctx context.Context, h Handle, log zerolog.Logger) error {
	s.setState(StateHeadFixed)

	if err := s.lines.Restraint.Set(true); err != nil {
		return fmt.Errorf("engage restraint: %w", err)
	}
	fixedAt := s.clk.Now()
	if err := s.append(ctx, types.AnimalEvent(h.Tag(), types.EventHeadFixStart, fixedAt)); err != nil {
		return err
	}
	log.Info().Msg("head fixed")

	s.startVideo(ctx, h.Tag(), fixedAt, log)
	if err := s.lines.Indicator.Set(true); err != nil {
		return fmt.Errorf("indicator on: %w", err)
	}

	granted := 0
	hooks := stimulus.Hooks{
		AfterPulse: func(ctx context.Context, i int) error {
			granted++
			s.metrics.Reward("headfix")
			ev := types.AnimalEvent(h.Tag(), types.EventReward, s.clk.Now())
			ev.Index = i
			return s.append(ctx, ev)
		},
	}
	if s.stim != nil {
		hooks.AtPhase = func(ctx context.Context, i int) error {
			at := s.clk.Now()
			side, err := s.stim.Deliver(ctx, i)
			if err != nil {
				return fmt.Errorf("stimulus: %w", err)
			}
			s.metrics.Stimulus()
			ev := types.AnimalEvent(h.Tag(), types.EventStimulus, at)
			ev.Index, ev.Side = i, side
			return s.append(ctx, ev)
		}
	}
	if err := s.rewardTrain.Run(ctx, s.timing.HeadFixRewards, hooks); err != nil {
		return err
	}

	if err := s.lines.Indicator.Set(false); err != nil {
		return fmt.Errorf("indicator off: %w", err)
	}
	s.stopVideo(ctx, log)
	if err := s.lines.Restraint.Set(false); err != nil {
		return fmt.Errorf("release restraint: %w", err)
	}
	releasedAt := s.clk.Now()
	if err := s.append(ctx, types.AnimalEvent(h.Tag(), types.EventHeadFixEnd, releasedAt)); err != nil {
		return err
	}
	fixes := s.registry.AddHeadFix(h)
	s.registry.AddHeadFixRewards(h, granted)
	s.metrics.HeadFix(releasedAt.Sub(fixedAt))
	log.Info().Int("rewards", granted).Int("head_fixes", fixes).Dur("fixed_for", releasedAt.Sub(fixedAt)).Msg("head fix complete")

	return s.clk.Sleep(ctx, s.timing.Skedaddle)
}

// Video problems never abort a trial.
func (s *Session) startVideo(ctx context.Context, tag types.TagID, at time.Time, log zerolog.Logger) {
	if s.video == nil {
		return
	}
	path, err := s.video.Start(ctx, tag, at)
	if err != nil {
		log.Warn().Err(err).Msg("video start failed")
		return
	}
	s.mu.Lock()
	s.status.Recording = path
	s.mu.Unlock()
}

func (s *Session) stopVideo(ctx context.Context, log zerolog.Logger) {
	if s.video == nil {
		return
	}
	s.mu.Lock()
	recording := s.status.Recording != ""
	s.status.Recording = ""
	s.mu.Unlock()
	if !recording {
		return
	}
	if err := s.video.Stop(ctx); err != nil {
		log.Warn().Err(err).Msg("video stop failed")
	}
}

func (s *Session) shutdown(ctx context.Context, runErr error) error {
	bg := context.WithoutCancel(ctx)
	s.stopVideo(bg, s.log)

	relErr := hardware.Release(s.lines.outputs()...)
	if relErr != nil {
		s.log.Error().Err(relErr).Msg("release outputs")
	}

	endErr := s.append(bg, types.SessionEvent(types.EventSessionEnd, s.clk.Now()))
	if endErr != nil {
		endErr = fmt.Errorf("log session end: %w", endErr)
	}

	s.mu.Lock()
	s.status = Status{State: StateStopped, Since: s.clk.Now(), TrialCount: s.status.TrialCount}
	s.mu.Unlock()

	if ctx.Err() != nil && errors.Is(runErr, ctx.Err()) {
		runErr = nil
	}
	if runErr != nil {
		s.log.Error().Err(runErr).Msg("session aborted")
	} else {
		s.log.Info().Msg("session ended")
	}
	return errors.Join(runErr, relErr, endErr)
}

func (s *Session) append(ctx context.Context, ev types.TrialEvent) error {
	if err := s.events.Append(ctx, ev); err != nil {
		return fmt.Errorf("append %s: %w", ev.Kind, err)
	}
	return nil
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.State = st
	s.status.Since = s.clk.Now()
	s.log.Debug().Stringer("state", st).Msg("state")
}

func (s *Session) beginTrial(h Handle) {
	s.mu.Lock()
	s.status.Tag = h.Tag()
	s.status.HasAnimal = true
	s.status.TrialCount++
	s.mu.Unlock()
	s.setState(StateTrialEntry)
}

func (s *Session) endTrial() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status.Tag = 0
	s.status.HasAnimal = false
}
