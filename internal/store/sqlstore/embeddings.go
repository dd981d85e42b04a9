package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/spigell/jobnorm/internal/store"
)

// CommitEmbedding stores a job vector. The row is the claim.
func (s *Store) CommitEmbedding(ctx context.Context, e store.JobEmbedding) error {
	dim := e.Dimension
	if dim == 0 {
		dim = len(e.Vector.Slice())
	}
	created := e.CreatedAt
	if created.IsZero() {
		created = s.now()
	}

	res, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO job_embeddings (job_id, vector, model, dimension, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (job_id) DO NOTHING`),
		e.JobID, e.Vector, e.Model, dim, created.UTC())
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("job %d: %w", e.JobID, store.ErrNotFound)
		}
		return fmt.Errorf("store embedding for job %d: %w", e.JobID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("embedding for job %d: %w", e.JobID, store.ErrAlreadyClaimed)
	}
	return nil
}

func (s *Store) GetEmbedding(ctx context.Context, jobID int64) (store.JobEmbedding, error) {
	var e store.JobEmbedding
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT job_id, vector, model, dimension, created_at FROM job_embeddings WHERE job_id = ?`), jobID).
		Scan(&e.JobID, &e.Vector, &e.Model, &e.Dimension, &e.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return store.JobEmbedding{}, fmt.Errorf("embedding for job %d: %w", jobID, store.ErrNotFound)
	}
	if err != nil {
		return store.JobEmbedding{}, fmt.Errorf("get embedding for job %d: %w", jobID, err)
	}
	e.CreatedAt = e.CreatedAt.UTC()
	return e, nil
}
