package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spigell/jobnorm/internal/dedupe"
	"github.com/spigell/jobnorm/internal/normalize"
	"github.com/spigell/jobnorm/internal/registry"
	"github.com/spigell/jobnorm/internal/runlock"
	"github.com/spigell/jobnorm/internal/skills"
	"github.com/spigell/jobnorm/internal/store"
	"github.com/spigell/jobnorm/internal/store/sqlstore"
)

const analystDescription = `We are looking for a data analyst to analyse data from our field surveys,
maintain the reporting database and build weekly dashboards for the programme team.
The analyst will write SQL queries, clean spreadsheets in Excel and present findings to managers.`

type fixture struct {
	store    *sqlstore.Store
	entities *Entities
	dedupe   *Dedupe
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()

	s, err := sqlstore.Open(ctx, sqlstore.Config{Driver: sqlstore.DriverSQLite, DSN: ":memory:"}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	reg, err := registry.Load("")
	require.NoError(t, err)
	extractor, err := skills.New(reg, skills.ModePatterns, zap.NewNop())
	require.NoError(t, err)
	detector, err := dedupe.NewDetector(dedupe.DefaultConfig(), zap.NewNop())
	require.NoError(t, err)

	return fixture{
		store:    s,
		entities: NewEntities(s, normalize.New(reg), extractor),
		dedupe:   NewDedupe(s, detector, &dedupe.IndexCache{}, zap.NewNop()),
	}
}

func (f fixture) insert(t *testing.T, url string, raw store.RawJob) int64 {
	t.Helper()
	raw.Source = "test"
	raw.URL = url
	raw.URLHash = "hash-" + url
	id, err := f.store.InsertJob(context.Background(), raw)
	require.NoError(t, err)
	return id
}

func (f fixture) coordinator(t *testing.T, stages ...Stage) *Coordinator {
	t.Helper()
	c, err := New(DefaultConfig(), f.store, nil, zap.NewNop(), stages...)
	require.NoError(t, err)
	return c
}

func TestEntitiesStage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id := f.insert(t, "a", store.RawJob{
		TitleRaw:          "Senior Data Analyst at Acme Ltd",
		DescriptionRaw:    analystDescription,
		RequirementsRaw:   "Bachelor's degree in statistics. 3-5 years of experience with SQL and Python. Strong communication skills and attention to detail are essential.",
		SalaryText:        "KES 80,000 - 120,000 per month",
		LocationRaw:       "Nairobi, Kenya",
		EmploymentTypeRaw: "Full-time",
	})

	c := f.coordinator(t, f.entities)
	sum, err := c.RunIncremental(ctx, "entities")
	require.NoError(t, err)
	assert.Equal(t, StatusOK, sum.Status)
	assert.Equal(t, 1, sum.Processed)
	assert.Zero(t, sum.Failed)
	assert.Positive(t, sum.Found)

	job, err := f.store.GetJob(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, job.ProcessedAt)
	assert.Equal(t, "data_analytics", job.TitleFamily)
	assert.Equal(t, "data analyst", job.TitleCanonical)
	assert.Equal(t, "senior", job.Seniority)
	assert.Equal(t, "Nairobi", job.LocationCanonical)
	assert.Equal(t, "Kenya", job.Country)
	assert.Equal(t, "Acme", job.CompanyCanonical)
	assert.Equal(t, "full_time", job.EmploymentType)
	require.NotNil(t, job.SalaryMin)
	assert.Equal(t, 80000.0, *job.SalaryMin)
	assert.Equal(t, "KES", job.Currency)
	require.NotNil(t, job.ExperienceMin)
	assert.Equal(t, 3, *job.ExperienceMin)
	require.NotNil(t, job.QualityScore)
	assert.InDelta(t, 1.0, *job.QualityScore, 1e-9)
	require.NotNil(t, job.TitleNormID)

	jobSkills, err := f.store.JobSkills(ctx, id)
	require.NoError(t, err)
	names := make([]string, 0, len(jobSkills))
	for _, js := range jobSkills {
		names = append(names, js.Skill)
	}
	assert.Contains(t, names, "sql")
	assert.Contains(t, names, "python")
	assert.Equal(t, len(jobSkills), sum.Found)

	ent, err := f.store.GetEntities(ctx, id)
	require.NoError(t, err)
	assert.Len(t, ent.Skills, len(jobSkills))
	assert.Equal(t, normalize.SourceRegistry, ent.Title.Source)
}

func TestRerunWithoutNewInputIsNoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.insert(t, "a", store.RawJob{TitleRaw: "Accountant", DescriptionRaw: "Prepare monthly accounts."})

	c := f.coordinator(t, f.entities)
	first, err := c.RunIncremental(ctx, "entities")
	require.NoError(t, err)
	require.Equal(t, 1, first.Processed)

	second, err := c.RunIncremental(ctx, "entities")
	require.NoError(t, err)
	assert.Equal(t, StatusNoop, second.Status)
	assert.Zero(t, second.Processed)
	assert.Equal(t, 1, second.BaselineSize)
	assert.NotEqual(t, first.RunID, second.RunID)

	runs, err := f.store.ListRuns(ctx, "entities", 0)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestDedupeStage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.insert(t, "a", store.RawJob{TitleRaw: "Data Analyst", DescriptionRaw: analystDescription})
	copied := f.insert(t, "b", store.RawJob{TitleRaw: "Data Analyst (repost)", DescriptionRaw: analystDescription})
	other := f.insert(t, "c", store.RawJob{
		TitleRaw:       "Registered Nurse",
		DescriptionRaw: "Provide patient care in the surgical ward, administer medication and keep accurate nursing records for every shift.",
	})

	c := f.coordinator(t, f.entities, f.dedupe)

	// dedupe only sees processed jobs
	sum, err := c.RunIncremental(ctx, "dedupe")
	require.NoError(t, err)
	assert.Equal(t, StatusNoop, sum.Status)

	_, err = c.RunIncremental(ctx, "entities")
	require.NoError(t, err)

	sum, err = c.RunIncremental(ctx, "dedupe")
	require.NoError(t, err)
	assert.Equal(t, StatusOK, sum.Status)
	assert.Equal(t, 3, sum.Processed)
	assert.Equal(t, 1, sum.Found)
	assert.Zero(t, sum.BaselineSize)

	dup, err := f.store.GetDedupe(ctx, copied)
	require.NoError(t, err)
	assert.Equal(t, first, dup.CanonicalJobID)
	assert.Equal(t, dedupe.StatusPending, dup.Status)
	assert.InDelta(t, 1.0, dup.Similarity, 1e-9)

	for _, id := range []int64{first, other} {
		m, err := f.store.GetDedupe(ctx, id)
		require.NoError(t, err)
		assert.True(t, m.SelfMapped())
		assert.Equal(t, 1.0, m.Similarity)
	}

	again, err := c.RunIncremental(ctx, "dedupe")
	require.NoError(t, err)
	assert.Equal(t, StatusNoop, again.Status)
	assert.Equal(t, 2, again.BaselineSize)

	late := f.insert(t, "d", store.RawJob{TitleRaw: "Data Analyst", DescriptionRaw: analystDescription})
	_, err = c.RunIncremental(ctx, "entities")
	require.NoError(t, err)
	sum, err = c.RunIncremental(ctx, "dedupe")
	require.NoError(t, err)
	assert.Equal(t, 1, sum.Found)

	m, err := f.store.GetDedupe(ctx, late)
	require.NoError(t, err)
	assert.Equal(t, first, m.CanonicalJobID)
}

func TestWhitespaceOnlyDifferenceIsDuplicate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	spaced := "  We are looking for a data analyst   to analyse data from our field surveys,\n\n" +
		"maintain the reporting database\tand build weekly dashboards for the programme team.\n" +
		"The analyst will write SQL queries,  clean spreadsheets in Excel and present findings to managers.  "

	first := f.insert(t, "a", store.RawJob{TitleRaw: "Data Analyst", DescriptionRaw: analystDescription})
	second := f.insert(t, "b", store.RawJob{TitleRaw: "Data Analyst", DescriptionRaw: spaced})

	c := f.coordinator(t, f.entities, f.dedupe)
	_, err := c.RunIncremental(ctx, "entities")
	require.NoError(t, err)
	_, err = c.RunIncremental(ctx, "dedupe")
	require.NoError(t, err)

	rows, err := f.store.ListDedupe(ctx, store.DedupeFilter{Status: dedupe.StatusPending, DuplicatesOnly: true})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, second, rows[0].JobID)
	assert.Equal(t, first, rows[0].CanonicalJobID)
	assert.Equal(t, 1.0, rows[0].Similarity)
}

type fakeStage struct {
	toggle
	fail    map[int64]bool
	claimed map[int64]bool
	seen    []int64
}

func (s *fakeStage) Name() string             { return "fake" }
func (s *fakeStage) Artifact() store.Artifact { return store.ArtifactEntities }
func (s *fakeStage) Validate(*Config) error   { return nil }

func (s *fakeStage) Run(_ context.Context, job store.JobPost) (int, error) {
	s.seen = append(s.seen, job.ID)
	switch {
	case s.fail[job.ID]:
		return 0, errors.New("boom")
	case s.claimed[job.ID]:
		return 0, store.ErrAlreadyClaimed
	}
	return 2, nil
}

type fakeRepo struct {
	pending []store.JobPost
	limit   int
	runs    []store.PipelineRun
}

func (r *fakeRepo) PendingJobs(_ context.Context, _ store.Artifact, limit int) ([]store.JobPost, error) {
	r.limit = limit
	return r.pending, nil
}

func (r *fakeRepo) ArtifactCount(context.Context, store.Artifact) (int, error) { return 7, nil }

func (r *fakeRepo) InsertRun(_ context.Context, run store.PipelineRun) error {
	r.runs = append(r.runs, run)
	return nil
}

func TestPartialFailureContinues(t *testing.T) {
	repo := &fakeRepo{pending: []store.JobPost{{ID: 1}, {ID: 2}, {ID: 3}, {ID: 4}}}
	stage := &fakeStage{fail: map[int64]bool{2: true}, claimed: map[int64]bool{3: true}}

	c, err := New(Config{BatchSize: 10}, repo, runlock.Noop{}, zap.NewNop(), stage)
	require.NoError(t, err)

	sum, err := c.RunIncremental(context.Background(), "fake")
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3, 4}, stage.seen)
	assert.Equal(t, StatusPartial, sum.Status)
	assert.Equal(t, 2, sum.Processed)
	assert.Equal(t, 4, sum.Found)
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, 1, sum.Claimed)
	assert.Equal(t, 7, sum.BaselineSize)
	assert.Equal(t, 10, repo.limit)

	require.Len(t, repo.runs, 1)
	assert.Equal(t, sum.RunID, repo.runs[0].RunID)
	assert.Equal(t, StatusPartial, repo.runs[0].Status)
}

type heldLock struct{}

func (heldLock) Acquire(context.Context, string) (runlock.Release, bool, error) {
	return nil, false, nil
}

func TestSkippedRuns(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		repo := &fakeRepo{pending: []store.JobPost{{ID: 1}}}
		stage := &fakeStage{}
		stage.Disable("switched off")

		c, err := New(DefaultConfig(), repo, nil, zap.NewNop(), stage)
		require.NoError(t, err)
		sum, err := c.RunIncremental(context.Background(), "fake")
		require.NoError(t, err)
		assert.Equal(t, StatusSkipped, sum.Status)
		assert.Empty(t, stage.seen)
		require.Len(t, repo.runs, 1)

		statuses := c.Describe()
		require.Len(t, statuses, 1)
		assert.False(t, statuses[0].Enabled)
	})

	t.Run("locked", func(t *testing.T) {
		repo := &fakeRepo{pending: []store.JobPost{{ID: 1}}}
		stage := &fakeStage{}

		c, err := New(DefaultConfig(), repo, heldLock{}, zap.NewNop(), stage)
		require.NoError(t, err)
		sum, err := c.RunIncremental(context.Background(), "fake")
		require.NoError(t, err)
		assert.Equal(t, StatusSkipped, sum.Status)
		assert.Empty(t, stage.seen)
	})
}

func TestNewRejectsBadConfig(t *testing.T) {
	_, err := New(Config{BatchSize: 0}, &fakeRepo{}, nil, nil)
	require.Error(t, err)

	_, err = New(DefaultConfig(), &fakeRepo{}, nil, nil, &fakeStage{}, &fakeStage{})
	require.Error(t, err)

	c, err := New(DefaultConfig(), &fakeRepo{}, nil, nil)
	require.NoError(t, err)
	_, err = c.RunIncremental(context.Background(), "missing")
	require.Error(t, err)
}

type fakeEmbedder struct {
	texts []string
}

func (e *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.texts = append(e.texts, text)
	return []float32{0.5, 0.25, 0.125}, nil
}

func (e *fakeEmbedder) ModelName() string { return "fake-embed" }

func TestEmbeddingsStage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.insert(t, "a", store.RawJob{TitleRaw: "Data Analyst", DescriptionRaw: analystDescription})

	embedder := &fakeEmbedder{}
	c := f.coordinator(t, f.entities, NewEmbeddings(f.store, embedder))

	summaries, err := c.RunAll(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, 1, summaries[1].Found)
	require.Len(t, embedder.texts, 1)
	assert.Contains(t, embedder.texts[0], "Data Analyst")

	got, err := f.store.GetEmbedding(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.25, 0.125}, got.Vector.Slice())
	assert.Equal(t, "fake-embed", got.Model)
	assert.Equal(t, 3, got.Dimension)

	sum, err := c.RunIncremental(ctx, "embeddings")
	require.NoError(t, err)
	assert.Equal(t, StatusNoop, sum.Status)
}

func TestEmbeddingsWithoutProviderIsDisabled(t *testing.T) {
	stage := NewEmbeddings(nil, nil)
	assert.False(t, stage.IsEnabled())
	assert.Equal(t, "no embedding provider configured", stage.Status().Reason)
}
