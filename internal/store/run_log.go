package store

import (
	"context"
	"fmt"
	"time"
)

// RunRecord は1回の同期実行のブックキーピング行。
type RunRecord struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Clients    int
	Fetched    int
	Inserted   int
	Updated    int
	Skipped    int
	Failures   int
}

// InsertRunRecord は同期実行の記録をsync_runsテーブルへ挿入する。
func (s *PostgresStore) InsertRunRecord(ctx context.Context, rec RunRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_runs (id, started_at, finished_at, clients, fetched, inserted, updated, skipped, failures)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rec.ID, rec.StartedAt, rec.FinishedAt, rec.Clients,
		rec.Fetched, rec.Inserted, rec.Updated, rec.Skipped, rec.Failures,
	)
	if err != nil {
		return fmt.Errorf("同期実行記録の挿入に失敗しました: %w", err)
	}
	return nil
}
