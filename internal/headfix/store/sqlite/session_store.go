package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type SessionRecord struct {
	SessionID string
	CageID    string
	StartedAt time.Time
	EndedAt   *time.Time
	Events    int
}

// ListSessions returns all sessions, newest first.
func ListSessions(ctx context.Context, db *sql.DB) ([]SessionRecord, error) {
	rows, err := db.QueryContext(ctx, `
SELECT s.session_id, s.cage_id, s.started_at_ms, s.ended_at_ms,
       (SELECT COUNT(*) FROM trial_events e WHERE e.session_id = s.session_id)
FROM sessions s
ORDER BY s.started_at_ms DESC, s.session_id DESC;
`)
	if err != nil {
		return nil, fmt.Errorf("ListSessions query: %w", err)
	}
	defer rows.Close()

	var out []SessionRecord
	for rows.Next() {
		var (
			rec       SessionRecord
			startedMs int64
			endedMs   sql.NullInt64
		)
		if err := rows.Scan(&rec.SessionID, &rec.CageID, &startedMs, &endedMs, &rec.Events); err != nil {
			return nil, fmt.Errorf("ListSessions scan: %w", err)
		}
		rec.StartedAt = time.UnixMilli(startedMs).UTC()
		if endedMs.Valid {
			t := time.UnixMilli(endedMs.Int64).UTC()
			rec.EndedAt = &t
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// LatestSessionID returns the most recently started session, or "" when the
// database holds none.
func LatestSessionID(ctx context.Context, db *sql.DB) (string, error) {
	var id string
	err := db.QueryRowContext(ctx, `
SELECT session_id FROM sessions ORDER BY started_at_ms DESC, session_id DESC LIMIT 1;
`).Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("LatestSessionID: %w", err)
	}
	return id, nil
}
