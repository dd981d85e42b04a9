package sqlstore

import (
	"context"
	"testing"
	"time"

	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spigell/jobnorm/internal/dedupe"
	"github.com/spigell/jobnorm/internal/normalize"
	"github.com/spigell/jobnorm/internal/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), Config{Driver: DriverSQLite, DSN: ":memory:"}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func insertJob(t *testing.T, s *Store, url, title string) int64 {
	t.Helper()
	id, err := s.InsertJob(context.Background(), store.RawJob{
		Source:         "test",
		URL:            url,
		URLHash:        "hash-" + url,
		TitleRaw:       title,
		DescriptionRaw: "Analyse data and build reports for the team.",
	})
	require.NoError(t, err)
	return id
}

func intp(v int) *int { return &v }
func floatp(v float64) *float64 { return &v }

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "mysql"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.driver")
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.migrate(context.Background()))

	var n int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestRebind(t *testing.T) {
	pg := &Store{dialect: DriverPostgres}
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b = $2", pg.rebind("SELECT * FROM t WHERE a = ? AND b = ?"))

	lite := &Store{dialect: DriverSQLite}
	assert.Equal(t, "a = ?", lite.rebind("a = ?"))
}

func TestInsertAndGetJob(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	posted := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	id, err := s.InsertJob(ctx, store.RawJob{
		Source:   "jsonl",
		URL:      "https://jobs.example/1",
		URLHash:  "abc",
		TitleRaw: "Data Ninja",
		PostedAt: &posted,
	})
	require.NoError(t, err)

	job, err := s.GetJob(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Data Ninja", job.TitleRaw)
	assert.True(t, job.IsActive)
	assert.Nil(t, job.ProcessedAt)
	require.NotNil(t, job.PostedAt)
	assert.True(t, posted.Equal(*job.PostedAt))

	_, err = s.InsertJob(ctx, store.RawJob{Source: "jsonl", URL: "https://jobs.example/1", URLHash: "abc"})
	require.ErrorIs(t, err, store.ErrDuplicateURL)

	_, err = s.GetJob(ctx, id+100)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestCommitEntities(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	first := insertJob(t, s, "u1", "Data Ninja")
	second := insertJob(t, s, "u2", "Accountant")

	pending, err := s.PendingJobs(ctx, store.ArtifactEntities, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, first, pending[0].ID)

	update := store.EntitiesUpdate{
		JobID: first,
		Entities: store.Entities{
			Title:  normalize.Field{Value: "data analyst", Confidence: 0.9, Evidence: "data ninja", Source: normalize.SourceRegistry},
			Skills: []normalize.Field{{Value: "python", Confidence: 0.9, Evidence: "python", Source: "ner"}},
		},
		Normalized: store.Normalized{
			TitleFamily:    "data_analytics",
			TitleCanonical: "data analyst",
			Seniority:      "mid",
			ExperienceMin:  intp(2),
			SalaryMin:      floatp(80000),
			Currency:       "KES",
			QualityScore:   floatp(0.55),
		},
		TitleNorm: &store.TitleNorm{Family: "data_analytics", TitleCanonical: "data analyst", Aliases: []string{"data ninja"}},
		Skills: []store.JobSkill{
			{Skill: "sql", Confidence: 0.7, Source: "patterns", Evidence: "sql"},
			{Skill: "python", Confidence: 0.9, Source: "ner", Evidence: "python"},
		},
	}
	require.NoError(t, s.CommitEntities(ctx, update))

	job, err := s.GetJob(ctx, first)
	require.NoError(t, err)
	require.NotNil(t, job.ProcessedAt)
	require.NotNil(t, job.TitleNormID)
	assert.Equal(t, "data analyst", job.TitleCanonical)
	assert.Equal(t, 2, *job.ExperienceMin)
	assert.Nil(t, job.ExperienceMax)
	assert.InDelta(t, 80000, *job.SalaryMin, 1e-9)

	entities, err := s.GetEntities(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, "data analyst", entities.Title.Value)
	require.Len(t, entities.Skills, 1)

	skills, err := s.JobSkills(ctx, first)
	require.NoError(t, err)
	require.Len(t, skills, 2)
	assert.Equal(t, "python", skills[0].Skill)
	assert.Equal(t, "sql", skills[1].Skill)

	tn, err := s.GetTitleNorm(ctx, "data analyst")
	require.NoError(t, err)
	assert.Equal(t, *job.TitleNormID, tn.ID)
	assert.Equal(t, []string{"data ninja"}, tn.Aliases)

	// a second commit is a lost claim and changes nothing
	update.Normalized.TitleCanonical = "something else"
	err = s.CommitEntities(ctx, update)
	require.ErrorIs(t, err, store.ErrAlreadyClaimed)
	job, err = s.GetJob(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, "data analyst", job.TitleCanonical)

	pending, err = s.PendingJobs(ctx, store.ArtifactEntities, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, second, pending[0].ID)

	// only processed jobs are eligible for dedupe
	pending, err = s.PendingJobs(ctx, store.ArtifactDedupe, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, first, pending[0].ID)

	n, err := s.ArtifactCount(ctx, store.ArtifactEntities)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	err = s.CommitEntities(ctx, store.EntitiesUpdate{JobID: 999})
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestTitleNormIsShared(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := insertJob(t, s, "a", "Data Analyst")
	b := insertJob(t, s, "b", "Data Ninja")

	for _, id := range []int64{a, b} {
		require.NoError(t, s.CommitEntities(ctx, store.EntitiesUpdate{
			JobID:      id,
			Normalized: store.Normalized{TitleCanonical: "data analyst"},
			TitleNorm:  &store.TitleNorm{Family: "data_analytics", TitleCanonical: "data analyst"},
		}))
	}

	ja, err := s.GetJob(ctx, a)
	require.NoError(t, err)
	jb, err := s.GetJob(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, *ja.TitleNormID, *jb.TitleNormID)
}

func markProcessed(t *testing.T, s *Store, ids ...int64) {
	t.Helper()
	for _, id := range ids {
		require.NoError(t, s.CommitEntities(context.Background(), store.EntitiesUpdate{JobID: id}))
	}
}

func TestDedupeLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	j1 := insertJob(t, s, "1", "a")
	j2 := insertJob(t, s, "2", "b")
	j3 := insertJob(t, s, "3", "c")
	markProcessed(t, s, j1, j2, j3)

	sig := dedupe.Signature{1, 2, 3, 4}
	require.NoError(t, s.CommitDedupe(ctx, dedupe.Decision{JobID: j1, CanonicalID: j1, Similarity: 1, Signature: sig}))
	require.NoError(t, s.CommitDedupe(ctx, dedupe.Decision{JobID: j2, CanonicalID: j1, Similarity: 0.95, Signature: sig, Duplicate: true}))
	require.NoError(t, s.CommitDedupe(ctx, dedupe.Decision{JobID: j3, CanonicalID: j2, Similarity: 0.92, Signature: sig, Duplicate: true}))

	err := s.CommitDedupe(ctx, dedupe.Decision{JobID: j1, CanonicalID: j1, Similarity: 1})
	require.ErrorIs(t, err, store.ErrAlreadyClaimed)

	root, err := s.CanonicalRoot(ctx, j3)
	require.NoError(t, err)
	assert.Equal(t, j1, root)

	entries, err := s.IndexEntries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, j1, entries[0].JobID)
	assert.Equal(t, sig, entries[0].Signature)

	// merging j2 moves j3 onto j1
	moved, err := s.Merge(ctx, j2, "alice")
	require.NoError(t, err)
	assert.EqualValues(t, 1, moved)

	row, err := s.GetDedupe(ctx, j3)
	require.NoError(t, err)
	assert.Equal(t, j1, row.CanonicalJobID)
	assert.Equal(t, dedupe.StatusPending, row.Status)

	row, err = s.GetDedupe(ctx, j2)
	require.NoError(t, err)
	assert.Equal(t, dedupe.StatusMerged, row.Status)
	assert.Equal(t, "alice", row.ReviewedBy)
	require.NotNil(t, row.ReviewedAt)

	_, err = s.Merge(ctx, j2, "alice")
	require.ErrorIs(t, err, dedupe.ErrTerminalStatus)
	require.ErrorIs(t, s.Dismiss(ctx, j2, "alice"), dedupe.ErrTerminalStatus)
	require.ErrorIs(t, s.Dismiss(ctx, j1, "alice"), dedupe.ErrInvalidTransition)

	// dismissed rows keep their canonical id and join the index
	require.NoError(t, s.Dismiss(ctx, j3, "bob"))
	row, err = s.GetDedupe(ctx, j3)
	require.NoError(t, err)
	assert.Equal(t, dedupe.StatusDismissed, row.Status)
	assert.Equal(t, j1, row.CanonicalJobID)

	root, err = s.CanonicalRoot(ctx, j3)
	require.NoError(t, err)
	assert.Equal(t, j3, root)

	entries, err = s.IndexEntries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, j3, entries[1].JobID)

	rows, err := s.ListDedupe(ctx, store.DedupeFilter{DuplicatesOnly: true})
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	rows, err = s.ListDedupe(ctx, store.DedupeFilter{Status: dedupe.StatusPending})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].SelfMapped())
}

func TestMergeKeepsDismissedCanonical(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	j1 := insertJob(t, s, "1", "a")
	j2 := insertJob(t, s, "2", "b")
	j3 := insertJob(t, s, "3", "c")
	j4 := insertJob(t, s, "4", "d")
	markProcessed(t, s, j1, j2, j3, j4)

	require.NoError(t, s.CommitDedupe(ctx, dedupe.Decision{JobID: j1, CanonicalID: j1, Similarity: 1}))
	require.NoError(t, s.CommitDedupe(ctx, dedupe.Decision{JobID: j2, CanonicalID: j1, Similarity: 0.95, Duplicate: true}))
	require.NoError(t, s.CommitDedupe(ctx, dedupe.Decision{JobID: j3, CanonicalID: j2, Similarity: 0.93, Duplicate: true}))
	require.NoError(t, s.CommitDedupe(ctx, dedupe.Decision{JobID: j4, CanonicalID: j2, Similarity: 0.91, Duplicate: true}))
	require.NoError(t, s.Dismiss(ctx, j3, "bob"))

	moved, err := s.Merge(ctx, j2, "alice")
	require.NoError(t, err)
	assert.EqualValues(t, 1, moved)

	dismissed, err := s.GetDedupe(ctx, j3)
	require.NoError(t, err)
	assert.Equal(t, j2, dismissed.CanonicalJobID)
	assert.Equal(t, dedupe.StatusDismissed, dismissed.Status)

	pending, err := s.GetDedupe(ctx, j4)
	require.NoError(t, err)
	assert.Equal(t, j1, pending.CanonicalJobID)
}

func TestDedupeRejectsCanonicalAfterJob(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	j1 := insertJob(t, s, "1", "a")
	j2 := insertJob(t, s, "2", "b")

	err := s.CommitDedupe(ctx, dedupe.Decision{JobID: j1, CanonicalID: j2, Similarity: 0.9})
	require.Error(t, err)

	_, err = s.GetDedupe(ctx, j1)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestExpirePending(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	j1 := insertJob(t, s, "1", "a")
	j2 := insertJob(t, s, "2", "b")
	j3 := insertJob(t, s, "3", "c")

	old := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return old }
	require.NoError(t, s.CommitDedupe(ctx, dedupe.Decision{JobID: j1, CanonicalID: j1, Similarity: 1}))
	require.NoError(t, s.CommitDedupe(ctx, dedupe.Decision{JobID: j2, CanonicalID: j1, Similarity: 0.93}))

	s.now = func() time.Time { return old.AddDate(0, 2, 0) }
	require.NoError(t, s.CommitDedupe(ctx, dedupe.Decision{JobID: j3, CanonicalID: j1, Similarity: 0.91}))

	n, err := s.ExpirePending(ctx, old.AddDate(0, 1, 0), "auto-expire")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	row, err := s.GetDedupe(ctx, j2)
	require.NoError(t, err)
	assert.Equal(t, dedupe.StatusDismissed, row.Status)
	assert.Equal(t, "auto-expire", row.ReviewedBy)

	for _, id := range []int64{j1, j3} {
		row, err := s.GetDedupe(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, dedupe.StatusPending, row.Status)
	}
}

func TestEmbeddings(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := insertJob(t, s, "1", "a")

	e := store.JobEmbedding{JobID: id, Vector: pgvector.NewVector([]float32{0.5, -1, 2}), Model: "test-model"}
	require.NoError(t, s.CommitEmbedding(ctx, e))
	require.ErrorIs(t, s.CommitEmbedding(ctx, e), store.ErrAlreadyClaimed)

	got, err := s.GetEmbedding(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, -1, 2}, got.Vector.Slice())
	assert.Equal(t, 3, got.Dimension)
	assert.Equal(t, "test-model", got.Model)
}

func TestRuns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	runs := []store.PipelineRun{
		{RunID: "7b4c1a9e-0000-4000-8000-000000000001", Stage: "dedupe", StartedAt: start, FinishedAt: start.Add(time.Second), Processed: 3, Found: 1, BaselineSize: 10, Status: "ok"},
		{RunID: "7b4c1a9e-0000-4000-8000-000000000002", Stage: "entities", StartedAt: start.Add(time.Minute), FinishedAt: start.Add(2 * time.Minute), Status: "noop"},
	}
	for _, r := range runs {
		require.NoError(t, s.InsertRun(ctx, r))
	}

	got, err := s.ListRuns(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "entities", got[0].Stage)

	got, err = s.ListRuns(ctx, "dedupe", 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, runs[0], got[0])
}

func TestQuarantineListAndStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	a := insertJob(t, s, "a", "Data Analyst")
	b := insertJob(t, s, "b", "Nurse")

	require.NoError(t, s.CommitEntities(ctx, store.EntitiesUpdate{
		JobID: a,
		Normalized: store.Normalized{
			TitleFamily:       "data_analytics",
			TitleCanonical:    "data analyst",
			LocationCanonical: "Nairobi, Kenya",
			SalaryMin:         floatp(1000),
			QualityScore:      floatp(0.8),
		},
		Skills: []store.JobSkill{{Skill: "sql", Confidence: 0.9, Source: "ner"}},
	}))
	require.NoError(t, s.CommitEntities(ctx, store.EntitiesUpdate{
		JobID:      b,
		Normalized: store.Normalized{TitleFamily: "healthcare", QualityScore: floatp(0.4)},
	}))

	jobs, err := s.ListJobs(ctx, store.JobFilter{Location: "nairobi, kenya"})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, a, jobs[0].ID)

	jobs, err = s.ListJobs(ctx, store.JobFilter{AfterID: a, Limit: 5})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, b, jobs[0].ID)

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, st.Total)
	assert.Equal(t, 2, st.Active)
	assert.Equal(t, 1, st.Coverage["title"])
	assert.Equal(t, 1, st.Coverage["salary"])
	assert.Equal(t, 1, st.Coverage["skills"])
	assert.InDelta(t, 0.6, st.AvgQuality, 1e-9)

	require.NoError(t, s.Quarantine(ctx, b, "spam"))
	job, err := s.GetJob(ctx, b)
	require.NoError(t, err)
	assert.False(t, job.IsActive)
	assert.Equal(t, "spam", job.QuarantineReason)
	require.NotNil(t, job.QuarantinedAt)

	jobs, err = s.ListJobs(ctx, store.JobFilter{ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, jobs, 1)

	st, err = s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Active)
	assert.InDelta(t, 0.8, st.AvgQuality, 1e-9)

	require.NoError(t, s.Restore(ctx, b))
	job, err = s.GetJob(ctx, b)
	require.NoError(t, err)
	assert.True(t, job.IsActive)
	assert.Empty(t, job.QuarantineReason)
	assert.Nil(t, job.QuarantinedAt)

	require.ErrorIs(t, s.Quarantine(ctx, 999, "x"), store.ErrNotFound)
}
