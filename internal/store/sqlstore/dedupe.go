package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spigell/jobnorm/internal/dedupe"
	"github.com/spigell/jobnorm/internal/store"
)

// CommitDedupe writes the dedupe map row and, for non-degenerate text, the
// job signature. The map row is the claim.
func (s *Store) CommitDedupe(ctx context.Context, d dedupe.Decision) error {
	return s.transact(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, s.rebind(`
			INSERT INTO job_dedupe_map (job_id, canonical_job_id, similarity_score, status, created_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (job_id) DO NOTHING`),
			d.JobID, d.CanonicalID, d.Similarity, string(dedupe.StatusPending), s.now())
		if err != nil {
			if isForeignKeyViolation(err) {
				return fmt.Errorf("job %d or %d: %w", d.JobID, d.CanonicalID, store.ErrNotFound)
			}
			return fmt.Errorf("claim dedupe for job %d: %w", d.JobID, err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return fmt.Errorf("rows affected: %w", err)
		} else if n == 0 {
			return fmt.Errorf("dedupe for job %d: %w", d.JobID, store.ErrAlreadyClaimed)
		}

		if d.Signature == nil {
			return nil
		}
		_, err = tx.ExecContext(ctx, s.rebind(`
			INSERT INTO job_signatures (job_id, signature) VALUES (?, ?)
			ON CONFLICT (job_id) DO UPDATE SET signature = excluded.signature`),
			d.JobID, d.Signature.Bytes())
		if err != nil {
			return fmt.Errorf("store signature for job %d: %w", d.JobID, err)
		}
		return nil
	})
}

const dedupeColumns = `job_id, canonical_job_id, similarity_score, status, created_at, reviewed_at, reviewed_by`

func scanDedupe(row scanner) (store.DedupeMap, error) {
	var (
		m          store.DedupeMap
		status     string
		reviewedAt sql.NullTime
		reviewedBy sql.NullString
	)
	if err := row.Scan(&m.JobID, &m.CanonicalJobID, &m.Similarity, &status, &m.CreatedAt, &reviewedAt, &reviewedBy); err != nil {
		return store.DedupeMap{}, err
	}
	st, err := dedupe.ParseStatus(status)
	if err != nil {
		return store.DedupeMap{}, err
	}
	m.Status = st
	m.CreatedAt = m.CreatedAt.UTC()
	m.ReviewedAt = timePtr(reviewedAt)
	m.ReviewedBy = reviewedBy.String
	return m, nil
}

func (s *Store) getDedupe(ctx context.Context, q querier, jobID int64) (store.DedupeMap, error) {
	row := q.QueryRowContext(ctx, s.rebind(`SELECT `+dedupeColumns+` FROM job_dedupe_map WHERE job_id = ?`), jobID)
	m, err := scanDedupe(row)
	if errors.Is(err, sql.ErrNoRows) {
		return store.DedupeMap{}, fmt.Errorf("dedupe row for job %d: %w", jobID, store.ErrNotFound)
	}
	if err != nil {
		return store.DedupeMap{}, fmt.Errorf("get dedupe row for job %d: %w", jobID, err)
	}
	return m, nil
}

func (s *Store) GetDedupe(ctx context.Context, jobID int64) (store.DedupeMap, error) {
	return s.getDedupe(ctx, s.db, jobID)
}

// ListDedupe returns dedupe rows ascending by job id.
func (s *Store) ListDedupe(ctx context.Context, f store.DedupeFilter) ([]store.DedupeMap, error) {
	var (
		where []string
		args  []any
	)
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.DuplicatesOnly {
		where = append(where, "job_id <> canonical_job_id")
	}
	query := `SELECT ` + dedupeColumns + ` FROM job_dedupe_map`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY job_id`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query dedupe rows: %w", err)
	}
	defer rows.Close()

	var out []store.DedupeMap
	for rows.Next() {
		m, err := scanDedupe(rows)
		if err != nil {
			return nil, fmt.Errorf("scan dedupe row: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// CanonicalRoot follows canonical_job_id links from jobID. A job without a
// row, a self-mapped job and a dismissed job are their own roots.
func (s *Store) CanonicalRoot(ctx context.Context, jobID int64) (int64, error) {
	seen := make(map[int64]bool)
	id := jobID
	for {
		if seen[id] {
			return 0, fmt.Errorf("dedupe map cycle at job %d", id)
		}
		seen[id] = true

		var (
			canonical int64
			status    string
		)
		err := s.db.QueryRowContext(ctx, s.rebind(`
			SELECT canonical_job_id, status FROM job_dedupe_map WHERE job_id = ?`), id).Scan(&canonical, &status)
		if errors.Is(err, sql.ErrNoRows) {
			return id, nil
		}
		if err != nil {
			return 0, fmt.Errorf("resolve canonical of %d: %w", id, err)
		}
		if canonical == id || dedupe.Status(status) == dedupe.StatusDismissed {
			return id, nil
		}
		id = canonical
	}
}

// IndexEntries returns the signatures the LSH index is built from: active
// jobs that are self-mapped or whose duplicate mapping was dismissed.
func (s *Store) IndexEntries(ctx context.Context) ([]dedupe.Entry, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT sg.job_id, sg.signature
		FROM job_signatures sg
		JOIN job_dedupe_map m ON m.job_id = sg.job_id
		JOIN job_posts p ON p.id = sg.job_id
		WHERE (m.canonical_job_id = m.job_id OR m.status = ?) AND p.is_active = ?
		ORDER BY sg.job_id`), string(dedupe.StatusDismissed), true)
	if err != nil {
		return nil, fmt.Errorf("query signatures: %w", err)
	}
	defer rows.Close()

	var out []dedupe.Entry
	for rows.Next() {
		var (
			id  int64
			raw []byte
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("scan signature: %w", err)
		}
		sig, err := dedupe.DecodeSignature(raw)
		if err != nil {
			return nil, fmt.Errorf("decode signature of job %d: %w", id, err)
		}
		out = append(out, dedupe.Entry{JobID: id, Signature: sig})
	}
	return out, rows.Err()
}

// Merge confirms jobID as a duplicate of its canonical job. Pending and
// merged rows that point at jobID are re-pointed at jobID's canonical
// target; dismissed rows keep their canonical id. It returns how many rows
// were re-pointed.
func (s *Store) Merge(ctx context.Context, jobID int64, reviewer string) (int64, error) {
	var moved int64
	err := s.transact(ctx, func(tx *sql.Tx) error {
		m, err := s.review(ctx, tx, jobID, dedupe.StatusMerged, reviewer)
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, s.rebind(`
			UPDATE job_dedupe_map SET canonical_job_id = ?
			WHERE canonical_job_id = ? AND job_id <> ? AND status <> ?`),
			m.CanonicalJobID, jobID, jobID, string(dedupe.StatusDismissed))
		if err != nil {
			return fmt.Errorf("re-point rows mapped to %d: %w", jobID, err)
		}
		moved, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, err
	}
	return moved, nil
}

// Dismiss marks jobID as not a duplicate. The canonical id is kept.
func (s *Store) Dismiss(ctx context.Context, jobID int64, reviewer string) error {
	return s.transact(ctx, func(tx *sql.Tx) error {
		_, err := s.review(ctx, tx, jobID, dedupe.StatusDismissed, reviewer)
		return err
	})
}

func (s *Store) review(ctx context.Context, tx *sql.Tx, jobID int64, to dedupe.Status, reviewer string) (store.DedupeMap, error) {
	m, err := s.getDedupe(ctx, tx, jobID)
	if err != nil {
		return store.DedupeMap{}, err
	}
	if err := dedupe.Transition(m.Status, to); err != nil {
		return store.DedupeMap{}, fmt.Errorf("job %d: %w", jobID, err)
	}
	if m.SelfMapped() {
		return store.DedupeMap{}, fmt.Errorf("%w: job %d is mapped to itself", dedupe.ErrInvalidTransition, jobID)
	}

	_, err = tx.ExecContext(ctx, s.rebind(`
		UPDATE job_dedupe_map SET status = ?, reviewed_at = ?, reviewed_by = ?
		WHERE job_id = ?`), string(to), s.now(), nullString(reviewer), jobID)
	if err != nil {
		return store.DedupeMap{}, fmt.Errorf("set job %d to %s: %w", jobID, to, err)
	}
	return m, nil
}

// ExpirePending dismisses duplicate rows still pending that were created
// before cutoff. Self-mapped rows are left alone.
func (s *Store) ExpirePending(ctx context.Context, cutoff time.Time, reviewer string) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE job_dedupe_map SET status = ?, reviewed_at = ?, reviewed_by = ?
		WHERE status = ? AND job_id <> canonical_job_id AND created_at < ?`),
		string(dedupe.StatusDismissed), s.now(), nullString(reviewer), string(dedupe.StatusPending), cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("expire pending rows: %w", err)
	}
	return res.RowsAffected()
}
