package sqlstore

import (
	"context"
	"fmt"

	"github.com/spigell/jobnorm/internal/store"
)

func (s *Store) InsertRun(ctx context.Context, r store.PipelineRun) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO pipeline_runs (run_id, stage, started_at, finished_at, processed, found, failed, baseline_size, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		r.RunID, r.Stage, r.StartedAt.UTC(), r.FinishedAt.UTC(), r.Processed, r.Found, r.Failed, r.BaselineSize, r.Status)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", r.RunID, err)
	}
	return nil
}

// ListRuns returns the latest runs first, optionally for one stage.
func (s *Store) ListRuns(ctx context.Context, stage string, limit int) ([]store.PipelineRun, error) {
	query := `SELECT CAST(run_id AS TEXT), stage, started_at, finished_at, processed, found, failed, baseline_size, status
		FROM pipeline_runs`
	var args []any
	if stage != "" {
		query += ` WHERE stage = ?`
		args = append(args, stage)
	}
	query += ` ORDER BY started_at DESC, run_id`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []store.PipelineRun
	for rows.Next() {
		var r store.PipelineRun
		if err := rows.Scan(&r.RunID, &r.Stage, &r.StartedAt, &r.FinishedAt, &r.Processed, &r.Found, &r.Failed, &r.BaselineSize, &r.Status); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.StartedAt = r.StartedAt.UTC()
		r.FinishedAt = r.FinishedAt.UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}
