package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	dbpkg "github.com/fbolanos/AutoHeadFixFB/internal/db"
	"github.com/fbolanos/AutoHeadFixFB/internal/headfix/types"
)

// StatsStore keeps the current per-animal counters of one session in
// animal_stats, one row per animal.
type StatsStore struct {
	db        *sql.DB
	writer    *dbpkg.Worker
	sessionID string
	cageID    string
	now       func() time.Time
}

func NewStatsStore(db *sql.DB, writer *dbpkg.Worker, sessionID, cageID string) *StatsStore {
	return &StatsStore{db: db, writer: writer, sessionID: sessionID, cageID: cageID, now: time.Now}
}

func (s *StatsStore) WriteStats(ctx context.Context, animals []types.Animal) error {
	nowMs := s.now().UTC().UnixMilli()

	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := ensureSession(ctx, tx, s.sessionID, s.cageID, nowMs); err != nil {
			return err
		}
		for i, a := range animals {
			if _, err := tx.ExecContext(ctx, `
INSERT INTO animal_stats(
  session_id, tag, position, entries, entrance_rewards, headfixes, headfixed_rewards, updated_at_ms
) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(session_id, tag) DO UPDATE SET
  position          = excluded.position,
  entries           = excluded.entries,
  entrance_rewards  = excluded.entrance_rewards,
  headfixes         = excluded.headfixes,
  headfixed_rewards = excluded.headfixed_rewards,
  updated_at_ms     = excluded.updated_at_ms;
`, s.sessionID, a.Tag.String(), i, a.Entries, a.EntranceRewards, a.HeadFixes, a.HeadFixedRewards, nowMs); err != nil {
				return fmt.Errorf("WriteStats upsert %s: %w", a.Tag, err)
			}
		}
		return nil
	})
}

// ReadStats returns the stored counters of a session in first-sighting order.
func ReadStats(ctx context.Context, db *sql.DB, sessionID string) ([]types.Animal, error) {
	rows, err := db.QueryContext(ctx, `
SELECT tag, entries, entrance_rewards, headfixes, headfixed_rewards
FROM animal_stats
WHERE session_id = ?
ORDER BY position;
`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("ReadStats query: %w", err)
	}
	defer rows.Close()

	var out []types.Animal
	for rows.Next() {
		var (
			tag string
			a   types.Animal
		)
		if err := rows.Scan(&tag, &a.Entries, &a.EntranceRewards, &a.HeadFixes, &a.HeadFixedRewards); err != nil {
			return nil, fmt.Errorf("ReadStats scan: %w", err)
		}
		v, err := strconv.ParseUint(tag, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("ReadStats tag %q: %w", tag, err)
		}
		a.Tag = types.TagID(v)
		out = append(out, a)
	}
	return out, rows.Err()
}
