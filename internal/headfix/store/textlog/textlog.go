// Package textlog writes the rig's plain-text outputs: the tab-separated
// event log and the current statistics table.
package textlog

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fbolanos/AutoHeadFixFB/internal/headfix/types"
)

const wallClockLayout = "2006-01-02 15:04:05.000000"

// DataFileName is the event log name for a cage on the given day:
// headFix_<cage>_<MMDD>.txt.
func DataFileName(cageID string, day time.Time) string {
	return fmt.Sprintf("headFix_%s_%s.txt", cageID, day.Format("0102"))
}

// StatsFileName is currentStats_<cage>.txt.
func StatsFileName(cageID string) string {
	return fmt.Sprintf("currentStats_%s.txt", cageID)
}

// FormatEvent renders one event log line, newline included:
// tag, event epoch time, wall-clock timestamp, label.
func FormatEvent(ev types.TrialEvent, wall time.Time) string {
	return ev.Tag + "\t" + types.EpochSeconds(ev.At) + "\t" + wall.Format(wallClockLayout) + "\t" + ev.Label() + "\n"
}

// EventFile appends events to a text file. Each Append is flushed to the
// operating system before it returns.
type EventFile struct {
	mu  sync.Mutex
	f   *os.File
	now func() time.Time
}

func OpenEventFile(path string) (*EventFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir event log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	return &EventFile{f: f, now: time.Now}, nil
}

func (e *EventFile) Append(_ context.Context, ev types.TrialEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.f.WriteString(FormatEvent(ev, e.now())); err != nil {
		return fmt.Errorf("append event log: %w", err)
	}
	return nil
}

func (e *EventFile) Path() string { return e.f.Name() }

func (e *EventFile) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.f.Close()
}

// StatsFile rewrites the statistics table in full on every WriteStats.
// The file is replaced atomically so readers never see a partial table.
type StatsFile struct {
	path string
}

func NewStatsFile(path string) *StatsFile {
	return &StatsFile{path: path}
}

func (s *StatsFile) Path() string { return s.path }

func (s *StatsFile) WriteStats(_ context.Context, animals []types.Animal) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir stats dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".stats-*.tmp")
	if err != nil {
		return fmt.Errorf("create stats temp: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	fmt.Fprint(w, "Mouse_ID\tentries\tent_rew\thfixes\thf_rew\n")
	for _, a := range animals {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\n", a.Tag, a.Entries, a.EntranceRewards, a.HeadFixes, a.HeadFixedRewards)
	}
	if err := w.Flush(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write stats: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close stats temp: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace stats file: %w", err)
	}
	return nil
}
