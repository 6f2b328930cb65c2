package stimulus_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fbolanos/AutoHeadFixFB/internal/clock"
	"github.com/fbolanos/AutoHeadFixFB/internal/hardware/sim"
	"github.com/fbolanos/AutoHeadFixFB/internal/headfix/stimulus"
)

var epoch = time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     stimulus.Config
		wantErr bool
	}{
		{name: "single pulse", cfg: stimulus.Config{On: 100 * time.Millisecond}},
		{name: "pulse train", cfg: stimulus.Config{On: 100 * time.Millisecond, Period: 5 * time.Second}},
		{name: "with phase", cfg: stimulus.Config{On: 100 * time.Millisecond, Period: 5 * time.Second, Phase: 2500 * time.Millisecond}},
		{name: "zero on", cfg: stimulus.Config{Period: time.Second}, wantErr: true},
		{name: "negative off", cfg: stimulus.Config{On: 2 * time.Second, Period: time.Second}, wantErr: true},
		{name: "phase before pulse ends", cfg: stimulus.Config{On: time.Second, Period: 5 * time.Second, Phase: 500 * time.Millisecond}, wantErr: true},
		{name: "phase after period", cfg: stimulus.Config{On: time.Second, Period: 5 * time.Second, Phase: 6 * time.Second}, wantErr: true},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.cfg.Validate()
			if tc.wantErr {
				assert.ErrorIs(t, err, stimulus.ErrInvalidConfig)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestConfigOff(t *testing.T) {
	cfg := stimulus.Config{On: 100 * time.Millisecond, Period: 5 * time.Second}
	assert.Equal(t, 4900*time.Millisecond, cfg.Off())
	assert.Zero(t, stimulus.Config{On: time.Second}.Off())
}

func TestSequencerRun_TimingAndHooks(t *testing.T) {
	clk := clock.NewFake(epoch)
	line := sim.NewOutput("reward", clk)
	seq, err := stimulus.NewSequencer(line, clk, stimulus.Config{
		On:     100 * time.Millisecond,
		Period: 5 * time.Second,
		Phase:  2500 * time.Millisecond,
	})
	require.NoError(t, err)

	var after, phase []time.Duration
	err = seq.Run(context.Background(), 3, stimulus.Hooks{
		AfterPulse: func(_ context.Context, i int) error {
			after = append(after, clk.Now().Sub(epoch))
			return nil
		},
		AtPhase: func(_ context.Context, i int) error {
			phase = append(phase, clk.Now().Sub(epoch))
			// Hook time is absorbed into the cycle.
			clk.Advance(10 * time.Millisecond)
			return nil
		},
	})
	require.NoError(t, err)

	assert.Equal(t, 3, line.Pulses())
	assert.False(t, line.On())
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 5100 * time.Millisecond, 10100 * time.Millisecond}, after)
	assert.Equal(t, []time.Duration{2500 * time.Millisecond, 7500 * time.Millisecond, 12500 * time.Millisecond}, phase)
	assert.Equal(t, 15*time.Second, clk.Now().Sub(epoch))

	tr := line.Transitions()
	require.Len(t, tr, 6)
	for i := 0; i < 3; i++ {
		assert.Equal(t, 100*time.Millisecond, tr[2*i+1].At.Sub(tr[2*i].At), "pulse %d width", i)
	}
}

func TestSequencerRun_NoOffWaitWhenPeriodUnset(t *testing.T) {
	clk := clock.NewFake(epoch)
	line := sim.NewOutput("reward", clk)
	seq, err := stimulus.NewSequencer(line, clk, stimulus.Config{On: 100 * time.Millisecond})
	require.NoError(t, err)

	require.NoError(t, seq.Run(context.Background(), 2, stimulus.Hooks{}))
	assert.Equal(t, 200*time.Millisecond, clk.Now().Sub(epoch))
	assert.Equal(t, 2, line.Pulses())
}

func TestSequencerRun_HookErrorStops(t *testing.T) {
	clk := clock.NewFake(epoch)
	line := sim.NewOutput("reward", clk)
	seq, err := stimulus.NewSequencer(line, clk, stimulus.Config{On: 10 * time.Millisecond, Period: time.Second})
	require.NoError(t, err)

	boom := errors.New("sink failed")
	err = seq.Run(context.Background(), 5, stimulus.Hooks{
		AfterPulse: func(_ context.Context, i int) error {
			if i == 1 {
				return boom
			}
			return nil
		},
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, line.Pulses())
	assert.False(t, line.On())
}

func TestSequencerRun_CancelDuringPulseReleasesLine(t *testing.T) {
	clk := clock.NewFake(epoch)
	line := sim.NewOutput("reward", clk)
	seq, err := stimulus.NewSequencer(line, clk, stimulus.Config{On: time.Second, Period: 2 * time.Second})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	clk.OnSleep = func(time.Time) { cancel() }

	err = seq.Run(ctx, 3, stimulus.Hooks{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, line.On())
	assert.Equal(t, 1, line.Pulses())
}
