package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spigell/jobnorm/internal/store"
)

const jobColumns = `id, source, url, url_hash, title_raw, description_raw, requirements_raw,
	salary_text, location_raw, company_raw, employment_type_raw, posted_at, ingested_at,
	title_family, title_canonical, title_norm_id, seniority, education, experience_min,
	experience_max, location_canonical, country, is_remote, company_canonical,
	employment_type, salary_min, salary_max, currency, salary_period, quality_score,
	processed_at, is_active, quarantine_reason, quarantined_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (store.JobPost, error) {
	var (
		j                                                     store.JobPost
		postedAt, processedAt, quarantinedAt                  sql.NullTime
		family, canonical, seniority, education, location     sql.NullString
		country, company, employment, currency, period, qreas sql.NullString
		titleNormID, expMin, expMax                           sql.NullInt64
		salMin, salMax, quality                               sql.NullFloat64
	)
	err := row.Scan(
		&j.ID, &j.Source, &j.URL, &j.URLHash, &j.TitleRaw, &j.DescriptionRaw, &j.RequirementsRaw,
		&j.SalaryText, &j.LocationRaw, &j.CompanyRaw, &j.EmploymentTypeRaw, &postedAt, &j.IngestedAt,
		&family, &canonical, &titleNormID, &seniority, &education, &expMin,
		&expMax, &location, &country, &j.IsRemote, &company,
		&employment, &salMin, &salMax, &currency, &period, &quality,
		&processedAt, &j.IsActive, &qreas, &quarantinedAt,
	)
	if err != nil {
		return store.JobPost{}, err
	}

	j.PostedAt = timePtr(postedAt)
	j.ProcessedAt = timePtr(processedAt)
	j.QuarantinedAt = timePtr(quarantinedAt)
	j.IngestedAt = j.IngestedAt.UTC()
	j.TitleFamily = family.String
	j.TitleCanonical = canonical.String
	j.Seniority = seniority.String
	j.Education = education.String
	j.LocationCanonical = location.String
	j.Country = country.String
	j.CompanyCanonical = company.String
	j.EmploymentType = employment.String
	j.Currency = currency.String
	j.SalaryPeriod = period.String
	j.QuarantineReason = qreas.String
	if titleNormID.Valid {
		j.TitleNormID = &titleNormID.Int64
	}
	j.ExperienceMin = intPtr(expMin)
	j.ExperienceMax = intPtr(expMax)
	j.SalaryMin = floatPtr(salMin)
	j.SalaryMax = floatPtr(salMax)
	j.QualityScore = floatPtr(quality)
	return j, nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// InsertJob stores a raw job. A URL seen before returns ErrDuplicateURL.
func (s *Store) InsertJob(ctx context.Context, raw store.RawJob) (int64, error) {
	var postedAt sql.NullTime
	if raw.PostedAt != nil {
		postedAt = sql.NullTime{Time: raw.PostedAt.UTC(), Valid: true}
	}

	var id int64
	err := s.db.QueryRowContext(ctx, s.rebind(`
		INSERT INTO job_posts (source, url, url_hash, title_raw, description_raw, requirements_raw,
			salary_text, location_raw, company_raw, employment_type_raw, posted_at, ingested_at, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`),
		raw.Source, raw.URL, raw.URLHash, raw.TitleRaw, raw.DescriptionRaw, raw.RequirementsRaw,
		raw.SalaryText, raw.LocationRaw, raw.CompanyRaw, raw.EmploymentTypeRaw, postedAt, s.now(), true,
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("%w: %s", store.ErrDuplicateURL, raw.URL)
		}
		return 0, fmt.Errorf("insert job: %w", err)
	}
	return id, nil
}

func (s *Store) GetJob(ctx context.Context, id int64) (store.JobPost, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+jobColumns+` FROM job_posts WHERE id = ?`), id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return store.JobPost{}, fmt.Errorf("job %d: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return store.JobPost{}, fmt.Errorf("get job %d: %w", id, err)
	}
	return job, nil
}

// ListJobs returns jobs ascending by id. Location and Company match the
// canonical columns case-insensitively.
func (s *Store) ListJobs(ctx context.Context, f store.JobFilter) ([]store.JobPost, error) {
	var (
		where []string
		args  []any
	)
	if f.TitleFamily != "" {
		where = append(where, "title_family = ?")
		args = append(args, f.TitleFamily)
	}
	if f.Seniority != "" {
		where = append(where, "seniority = ?")
		args = append(args, f.Seniority)
	}
	if f.Location != "" {
		where = append(where, "LOWER(location_canonical) = LOWER(?)")
		args = append(args, f.Location)
	}
	if f.Company != "" {
		where = append(where, "LOWER(company_canonical) = LOWER(?)")
		args = append(args, f.Company)
	}
	if f.ActiveOnly {
		where = append(where, "is_active = ?")
		args = append(args, true)
	}
	if f.AfterID > 0 {
		where = append(where, "id > ?")
		args = append(args, f.AfterID)
	}

	query := `SELECT ` + jobColumns + ` FROM job_posts`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY id`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}
	return s.queryJobs(ctx, query, args...)
}

func (s *Store) queryJobs(ctx context.Context, query string, args ...any) ([]store.JobPost, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []store.JobPost
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return jobs, nil
}

// artifactTable maps a stage artifact to the table whose row marks it done.
func artifactTable(a store.Artifact) (string, error) {
	switch a {
	case store.ArtifactEntities:
		return "job_entities", nil
	case store.ArtifactDedupe:
		return "job_dedupe_map", nil
	case store.ArtifactEmbeddings:
		return "job_embeddings", nil
	default:
		return "", fmt.Errorf("unknown artifact %q", a)
	}
}

// PendingJobs returns up to limit jobs lacking the artifact, ascending by
// id. Dedupe and embeddings only consider active, processed jobs.
func (s *Store) PendingJobs(ctx context.Context, a store.Artifact, limit int) ([]store.JobPost, error) {
	table, err := artifactTable(a)
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + jobColumns + ` FROM job_posts p WHERE NOT EXISTS (SELECT 1 FROM ` + table + ` a WHERE a.job_id = p.id)`
	args := []any{}
	if a != store.ArtifactEntities {
		query += ` AND p.processed_at IS NOT NULL AND p.is_active = ?`
		args = append(args, true)
	}
	query += ` ORDER BY p.id LIMIT ?`
	args = append(args, limit)
	return s.queryJobs(ctx, query, args...)
}

// ArtifactCount returns how many jobs already have the artifact.
func (s *Store) ArtifactCount(ctx context.Context, a store.Artifact) (int, error) {
	table, err := artifactTable(a)
	if err != nil {
		return 0, err
	}
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

// Quarantine deactivates a job with a reason. The row is never deleted.
func (s *Store) Quarantine(ctx context.Context, id int64, reason string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE job_posts SET is_active = ?, quarantine_reason = ?, quarantined_at = ?
		WHERE id = ?`), false, reason, s.now(), id)
	if err != nil {
		return fmt.Errorf("quarantine job %d: %w", id, err)
	}
	return expectRow(res, id)
}

// Restore reverses Quarantine.
func (s *Store) Restore(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE job_posts SET is_active = ?, quarantine_reason = NULL, quarantined_at = NULL
		WHERE id = ?`), true, id)
	if err != nil {
		return fmt.Errorf("restore job %d: %w", id, err)
	}
	return expectRow(res, id)
}

func expectRow(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("job %d: %w", id, store.ErrNotFound)
	}
	return nil
}

// coverageColumns are the normalized fields reported by Stats.
var coverageColumns = map[string]string{
	"title":           "title_canonical IS NOT NULL AND title_canonical <> ''",
	"seniority":       "seniority IS NOT NULL AND seniority <> ''",
	"education":       "education IS NOT NULL AND education <> ''",
	"experience":      "experience_min IS NOT NULL",
	"location":        "location_canonical IS NOT NULL AND location_canonical <> ''",
	"company":         "company_canonical IS NOT NULL AND company_canonical <> ''",
	"salary":          "salary_min IS NOT NULL",
	"employment_type": "employment_type IS NOT NULL AND employment_type <> ''",
}

// Stats counts the corpus. Coverage counts are over active processed jobs.
func (s *Store) Stats(ctx context.Context) (store.Stats, error) {
	st := store.Stats{Coverage: make(map[string]int, len(coverageColumns)+1)}

	var avg sql.NullFloat64
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN is_active = ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN is_active = ? AND processed_at IS NOT NULL THEN 1 ELSE 0 END), 0),
			AVG(CASE WHEN is_active = ? THEN quality_score END)
		FROM job_posts`), true, true, true).Scan(&st.Total, &st.Active, &st.Processed, &avg)
	if err != nil {
		return store.Stats{}, fmt.Errorf("count jobs: %w", err)
	}
	st.AvgQuality = avg.Float64

	for name, cond := range coverageColumns {
		var n int
		query := `SELECT COUNT(*) FROM job_posts WHERE is_active = ? AND processed_at IS NOT NULL AND ` + cond
		if err := s.db.QueryRowContext(ctx, s.rebind(query), true).Scan(&n); err != nil {
			return store.Stats{}, fmt.Errorf("coverage %s: %w", name, err)
		}
		st.Coverage[name] = n
	}

	var skilled int
	err = s.db.QueryRowContext(ctx, s.rebind(`
		SELECT COUNT(*) FROM job_posts p
		WHERE p.is_active = ? AND p.processed_at IS NOT NULL
			AND EXISTS (SELECT 1 FROM job_skills js WHERE js.job_id = p.id)`), true).Scan(&skilled)
	if err != nil {
		return store.Stats{}, fmt.Errorf("coverage skills: %w", err)
	}
	st.Coverage["skills"] = skilled

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN job_id <> canonical_job_id AND status <> 'dismissed' THEN 1 ELSE 0 END), 0)
		FROM job_dedupe_map`).Scan(&st.DedupeRows, &st.Duplicates)
	if err != nil {
		return store.Stats{}, fmt.Errorf("count dedupe rows: %w", err)
	}
	return st, nil
}
