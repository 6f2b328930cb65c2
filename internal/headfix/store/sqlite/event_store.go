package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	dbpkg "github.com/fbolanos/AutoHeadFixFB/internal/db"
	"github.com/fbolanos/AutoHeadFixFB/internal/headfix/types"
)

// EventStore appends the trial events of one session. The session row is
// created by the session-start event and closed by the session-end event.
type EventStore struct {
	db        *sql.DB
	writer    *dbpkg.Worker
	sessionID string
	cageID    string
}

func NewEventStore(db *sql.DB, writer *dbpkg.Worker, sessionID, cageID string) *EventStore {
	return &EventStore{
		db:        db,
		writer:    writer,
		sessionID: strings.TrimSpace(sessionID),
		cageID:    strings.TrimSpace(cageID),
	}
}

func (s *EventStore) SessionID() string { return s.sessionID }

func (s *EventStore) Append(ctx context.Context, ev types.TrialEvent) error {
	atMs := ev.At.UTC().UnixMilli()

	var index, side any
	switch ev.Kind {
	case types.EventReward, types.EventStimulus:
		index = ev.Index
		if ev.Side != "" {
			side = ev.Side
		}
	}

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := ensureSession(ctx, tx, s.sessionID, s.cageID, atMs); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
INSERT INTO trial_events(session_id, tag, event_at_ms, kind, pulse_index, side, label)
VALUES (?, ?, ?, ?, ?, ?, ?);
`, s.sessionID, ev.Tag, atMs, ev.Kind.String(), index, side, ev.Label()); err != nil {
			return fmt.Errorf("Append insert event: %w", err)
		}

		if ev.Kind == types.EventSessionEnd {
			if _, err := tx.ExecContext(ctx, `
UPDATE sessions SET ended_at_ms = ? WHERE session_id = ?;
`, atMs, s.sessionID); err != nil {
				return fmt.Errorf("Append close session: %w", err)
			}
		}
		return nil
	})
}

// ensureSession guarantees a sessions row exists so the foreign keys from
// trial_events and animal_stats are satisfied. Must be called inside an
// existing transaction.
func ensureSession(ctx context.Context, tx *sql.Tx, sessionID, cageID string, nowMs int64) error {
	if _, err := tx.ExecContext(ctx, `
INSERT OR IGNORE INTO sessions(session_id, cage_id, started_at_ms)
VALUES (?, ?, ?);
`, sessionID, cageID, nowMs); err != nil {
		return fmt.Errorf("ensureSession %s: %w", sessionID, err)
	}
	return nil
}
