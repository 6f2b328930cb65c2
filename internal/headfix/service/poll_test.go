package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fbolanos/AutoHeadFixFB/internal/clock"
	"github.com/fbolanos/AutoHeadFixFB/internal/headfix/service"
)

func TestPoll(t *testing.T) {
	t.Parallel()

	errSensor := errors.New("sensor")
	tests := []struct {
		name      string
		timeout   time.Duration
		doneAfter time.Duration // -1: never
		checkErr  error
		wantDone  bool
		wantErr   error
		wantSlept time.Duration
	}{
		{name: "immediately", timeout: time.Second, doneAfter: 0, wantDone: true},
		{name: "within window", timeout: time.Second, doneAfter: 300 * time.Millisecond, wantDone: true, wantSlept: 300 * time.Millisecond},
		{name: "at deadline", timeout: time.Second, doneAfter: time.Second, wantDone: true, wantSlept: time.Second},
		{name: "timeout", timeout: 95 * time.Millisecond, doneAfter: -1, wantSlept: 95 * time.Millisecond},
		{name: "unbounded", timeout: service.Forever, doneAfter: time.Minute, wantDone: true, wantSlept: time.Minute},
		{name: "zero timeout checks once", timeout: 0, doneAfter: -1},
		{name: "zero timeout met", timeout: 0, doneAfter: 0, wantDone: true},
		{name: "check error", timeout: time.Second, checkErr: errSensor, wantErr: errSensor},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			clk := clock.NewFake(epoch)
			check := func() (bool, error) {
				if tc.checkErr != nil {
					return false, tc.checkErr
				}
				return tc.doneAfter >= 0 && clk.Now().Sub(epoch) >= tc.doneAfter, nil
			}

			done, err := service.Poll(context.Background(), clk, 10*time.Millisecond, tc.timeout, check)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantDone, done)
			assert.Equal(t, tc.wantSlept, clk.Slept())
		})
	}
}

func TestPollCancelled(t *testing.T) {
	t.Parallel()
	clk := clock.NewFake(epoch)
	ctx, cancel := context.WithCancel(context.Background())
	clk.OnSleep = func(now time.Time) {
		if now.Sub(epoch) >= 50*time.Millisecond {
			cancel()
		}
	}

	done, err := service.Poll(ctx, clk, 10*time.Millisecond, service.Forever, func() (bool, error) { return false, nil })
	assert.False(t, done)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 50*time.Millisecond, clk.Slept())
}
