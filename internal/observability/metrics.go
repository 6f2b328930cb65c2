package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "headfix"

// Metrics holds the rig counters. A nil *Metrics is valid and records
// nothing, so components can be built without a registry.
type Metrics struct {
	tagsDecoded    prometheus.Counter
	checksumErrors prometheus.Counter
	decodeErrors   prometheus.Counter
	entries        prometheus.Counter
	exits          prometheus.Counter
	rewards        *prometheus.CounterVec
	stimuli        prometheus.Counter
	headFixes      prometheus.Counter
	trialDuration  prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		tagsDecoded: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tagreader",
			Name:      "records_total",
			Help:      "Tag records decoded from the serial stream.",
		}),
		checksumErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tagreader",
			Name:      "checksum_errors_total",
			Help:      "Tag records whose XOR checksum did not match.",
		}),
		decodeErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tagreader",
			Name:      "decode_errors_total",
			Help:      "Tag records containing malformed hex characters.",
		}),
		entries: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "entries_total",
			Help:      "Chamber entries.",
		}),
		exits: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "exits_total",
			Help:      "Chamber exits before head fixation.",
		}),
		rewards: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "rewards_total",
			Help:      "Rewards dispensed, by kind.",
		}, []string{"kind"}),
		stimuli: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "stimuli_total",
			Help:      "Stimuli delivered during head fixation.",
		}),
		headFixes: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "headfixes_total",
			Help:      "Completed head-fix trials.",
		}),
		trialDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "headfix_duration_seconds",
			Help:      "Duration of head-fix trials, restraint on to restraint off.",
			Buckets:   prometheus.LinearBuckets(5, 5, 12),
		}),
	}
}

func (m *Metrics) TagDecoded() {
	if m != nil {
		m.tagsDecoded.Inc()
	}
}

func (m *Metrics) ChecksumError() {
	if m != nil {
		m.checksumErrors.Inc()
	}
}

func (m *Metrics) DecodeError() {
	if m != nil {
		m.decodeErrors.Inc()
	}
}

func (m *Metrics) Entry() {
	if m != nil {
		m.entries.Inc()
	}
}

func (m *Metrics) Exit() {
	if m != nil {
		m.exits.Inc()
	}
}

// Reward records a dispensed reward; kind is "entrance" or "headfix".
func (m *Metrics) Reward(kind string) {
	if m != nil {
		m.rewards.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) Stimulus() {
	if m != nil {
		m.stimuli.Inc()
	}
}

func (m *Metrics) HeadFix(d time.Duration) {
	if m != nil {
		m.headFixes.Inc()
		m.trialDuration.Observe(d.Seconds())
	}
}
