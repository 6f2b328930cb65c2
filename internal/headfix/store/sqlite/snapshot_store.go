package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	dbpkg "github.com/fbolanos/AutoHeadFixFB/internal/db"
	"github.com/fbolanos/AutoHeadFixFB/internal/headfix/types"
)

// SnapshotStore appends timestamped copies of the stats table to
// stats_snapshots, giving a history of counters across a session.
type SnapshotStore struct {
	db        *sql.DB
	writer    *dbpkg.Worker
	sessionID string
	cageID    string
	now       func() time.Time
}

func NewSnapshotStore(db *sql.DB, writer *dbpkg.Worker, sessionID, cageID string) *SnapshotStore {
	return &SnapshotStore{db: db, writer: writer, sessionID: sessionID, cageID: cageID, now: time.Now}
}

func (s *SnapshotStore) WriteStats(ctx context.Context, animals []types.Animal) error {
	takenMs := s.now().UTC().UnixMilli()

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := ensureSession(ctx, tx, s.sessionID, s.cageID, takenMs); err != nil {
			return err
		}
		for _, a := range animals {
			if _, err := tx.ExecContext(ctx, `
INSERT OR REPLACE INTO stats_snapshots(
  session_id, taken_at_ms, tag, entries, entrance_rewards, headfixes, headfixed_rewards
) VALUES (?, ?, ?, ?, ?, ?, ?);
`, s.sessionID, takenMs, a.Tag.String(), a.Entries, a.EntranceRewards, a.HeadFixes, a.HeadFixedRewards); err != nil {
				return fmt.Errorf("snapshot insert %s: %w", a.Tag, err)
			}
		}
		return nil
	})
}
