package observability_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/fbolanos/AutoHeadFixFB/internal/observability"
)

func TestMetricsCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := observability.NewMetrics(reg)

	m.TagDecoded()
	m.TagDecoded()
	m.ChecksumError()
	m.Reward("entrance")
	m.Reward("headfix")
	m.Reward("headfix")
	m.HeadFix(30 * time.Second)

	n, err := testutil.GatherAndCount(reg,
		"headfix_tagreader_records_total",
		"headfix_tagreader_checksum_errors_total",
		"headfix_session_rewards_total",
		"headfix_session_headfixes_total",
	)
	assert.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *observability.Metrics
	assert.NotPanics(t, func() {
		m.TagDecoded()
		m.Entry()
		m.Exit()
		m.Reward("headfix")
		m.Stimulus()
		m.HeadFix(time.Second)
	})
}

func TestNewLoggerHonoursLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := observability.NewLogger(&buf, "headfix", "warn", false)

	logger.Info().Msg("hidden")
	logger.Warn().Msg("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
	assert.Contains(t, buf.String(), `"app":"headfix"`)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, observability.ParseLevel("DEBUG"))
	assert.Equal(t, zerolog.WarnLevel, observability.ParseLevel("warning"))
	assert.Equal(t, zerolog.InfoLevel, observability.ParseLevel("bogus"))
	assert.Equal(t, zerolog.Disabled, observability.ParseLevel("off"))
}
