package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spigell/jobnorm/internal/store"
)

// CommitEntities writes the entities stage outputs for one job in a single
// transaction. The job_entities row is the claim: when another run already
// wrote it the transaction is rolled back and ErrAlreadyClaimed returned.
func (s *Store) CommitEntities(ctx context.Context, u store.EntitiesUpdate) error {
	doc, err := json.Marshal(u.Entities)
	if err != nil {
		return fmt.Errorf("encode entities: %w", err)
	}

	return s.transact(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, s.rebind(`
			INSERT INTO job_entities (job_id, entities, created_at) VALUES (?, ?, ?)
			ON CONFLICT (job_id) DO NOTHING`), u.JobID, string(doc), s.now())
		if err != nil {
			if isForeignKeyViolation(err) {
				return fmt.Errorf("job %d: %w", u.JobID, store.ErrNotFound)
			}
			return fmt.Errorf("claim entities for job %d: %w", u.JobID, err)
		}
		if n, err := res.RowsAffected(); err != nil {
			return fmt.Errorf("rows affected: %w", err)
		} else if n == 0 {
			return fmt.Errorf("entities for job %d: %w", u.JobID, store.ErrAlreadyClaimed)
		}

		var titleNormID sql.NullInt64
		if u.TitleNorm != nil {
			id, err := s.upsertTitleNorm(ctx, tx, *u.TitleNorm)
			if err != nil {
				return err
			}
			titleNormID = sql.NullInt64{Int64: id, Valid: true}
		}

		processedAt := u.ProcessedAt
		if processedAt.IsZero() {
			processedAt = s.now()
		}
		n := u.Normalized
		res, err = tx.ExecContext(ctx, s.rebind(`
			UPDATE job_posts SET
				title_family = ?, title_canonical = ?, title_norm_id = ?, seniority = ?,
				education = ?, experience_min = ?, experience_max = ?, location_canonical = ?,
				country = ?, is_remote = ?, company_canonical = ?, employment_type = ?,
				salary_min = ?, salary_max = ?, currency = ?, salary_period = ?,
				quality_score = ?, processed_at = ?
			WHERE id = ?`),
			nullString(n.TitleFamily), nullString(n.TitleCanonical), titleNormID, nullString(n.Seniority),
			nullString(n.Education), nullInt(n.ExperienceMin), nullInt(n.ExperienceMax), nullString(n.LocationCanonical),
			nullString(n.Country), n.IsRemote, nullString(n.CompanyCanonical), nullString(n.EmploymentType),
			nullFloat(n.SalaryMin), nullFloat(n.SalaryMax), nullString(n.Currency), nullString(n.SalaryPeriod),
			nullFloat(n.QualityScore), processedAt.UTC(),
			u.JobID,
		)
		if err != nil {
			return fmt.Errorf("update job %d: %w", u.JobID, err)
		}
		if err := expectRow(res, u.JobID); err != nil {
			return err
		}

		for _, js := range u.Skills {
			skillID, err := s.upsertSkill(ctx, tx, js.Skill)
			if err != nil {
				return err
			}
			_, err = tx.ExecContext(ctx, s.rebind(`
				INSERT INTO job_skills (job_id, skill_id, confidence, source, evidence)
				VALUES (?, ?, ?, ?, ?)
				ON CONFLICT (job_id, skill_id) DO UPDATE SET
					confidence = excluded.confidence, source = excluded.source, evidence = excluded.evidence`),
				u.JobID, skillID, js.Confidence, js.Source, js.Evidence)
			if err != nil {
				return fmt.Errorf("insert skill %q for job %d: %w", js.Skill, u.JobID, err)
			}
		}
		return nil
	})
}

func (s *Store) upsertTitleNorm(ctx context.Context, q querier, tn store.TitleNorm) (int64, error) {
	aliases := tn.Aliases
	if aliases == nil {
		aliases = []string{}
	}
	doc, err := json.Marshal(aliases)
	if err != nil {
		return 0, fmt.Errorf("encode title aliases: %w", err)
	}

	var id int64
	err = q.QueryRowContext(ctx, s.rebind(`
		INSERT INTO title_norms (family, title_canonical, aliases) VALUES (?, ?, ?)
		ON CONFLICT (title_canonical) DO UPDATE SET family = excluded.family, aliases = excluded.aliases
		RETURNING id`), tn.Family, tn.TitleCanonical, string(doc)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert title norm %q: %w", tn.TitleCanonical, err)
	}
	return id, nil
}

func (s *Store) upsertSkill(ctx context.Context, q querier, name string) (int64, error) {
	var id int64
	err := q.QueryRowContext(ctx, s.rebind(`
		INSERT INTO skills (name) VALUES (?)
		ON CONFLICT (name) DO UPDATE SET name = excluded.name
		RETURNING id`), name).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert skill %q: %w", name, err)
	}
	return id, nil
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func (s *Store) GetEntities(ctx context.Context, jobID int64) (store.Entities, error) {
	var doc []byte
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT entities FROM job_entities WHERE job_id = ?`), jobID).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Entities{}, fmt.Errorf("entities for job %d: %w", jobID, store.ErrNotFound)
	}
	if err != nil {
		return store.Entities{}, fmt.Errorf("get entities for job %d: %w", jobID, err)
	}

	var e store.Entities
	if err := json.Unmarshal(doc, &e); err != nil {
		return store.Entities{}, fmt.Errorf("decode entities for job %d: %w", jobID, err)
	}
	return e, nil
}

// JobSkills returns a job's skills by confidence, then name.
func (s *Store) JobSkills(ctx context.Context, jobID int64) ([]store.JobSkill, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT js.job_id, js.skill_id, sk.name, js.confidence, js.source, js.evidence
		FROM job_skills js JOIN skills sk ON sk.id = js.skill_id
		WHERE js.job_id = ?
		ORDER BY js.confidence DESC, sk.name`), jobID)
	if err != nil {
		return nil, fmt.Errorf("query skills for job %d: %w", jobID, err)
	}
	defer rows.Close()

	var out []store.JobSkill
	for rows.Next() {
		var js store.JobSkill
		if err := rows.Scan(&js.JobID, &js.SkillID, &js.Skill, &js.Confidence, &js.Source, &js.Evidence); err != nil {
			return nil, fmt.Errorf("scan job skill: %w", err)
		}
		out = append(out, js)
	}
	return out, rows.Err()
}

// GetTitleNorm looks a shared title row up by canonical title.
func (s *Store) GetTitleNorm(ctx context.Context, canonical string) (store.TitleNorm, error) {
	var (
		tn  store.TitleNorm
		doc []byte
	)
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT id, family, title_canonical, aliases FROM title_norms WHERE title_canonical = ?`), canonical).
		Scan(&tn.ID, &tn.Family, &tn.TitleCanonical, &doc)
	if errors.Is(err, sql.ErrNoRows) {
		return store.TitleNorm{}, fmt.Errorf("title %q: %w", canonical, store.ErrNotFound)
	}
	if err != nil {
		return store.TitleNorm{}, fmt.Errorf("get title %q: %w", canonical, err)
	}
	if err := json.Unmarshal(doc, &tn.Aliases); err != nil {
		return store.TitleNorm{}, fmt.Errorf("decode title aliases: %w", err)
	}
	return tn, nil
}
