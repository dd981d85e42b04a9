package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spigell/jobnorm/internal/dedupe"
	"github.com/spigell/jobnorm/internal/logger"
	"github.com/spigell/jobnorm/internal/store"
)

type DedupeRepository interface {
	GetJob(ctx context.Context, id int64) (store.JobPost, error)
	CanonicalRoot(ctx context.Context, jobID int64) (int64, error)
	IndexEntries(ctx context.Context) ([]dedupe.Entry, error)
	CommitDedupe(ctx context.Context, d dedupe.Decision) error
}

// Dedupe maps each job onto an earlier near-duplicate or onto itself.
type Dedupe struct {
	toggle
	repo     DedupeRepository
	detector *dedupe.Detector
	cache    *dedupe.IndexCache
	logger   *zap.Logger
}

// NewDedupe uses the process-wide index cache unless cache is given.
func NewDedupe(repo DedupeRepository, detector *dedupe.Detector, cache *dedupe.IndexCache, log *zap.Logger) *Dedupe {
	if cache == nil {
		cache = dedupe.Shared()
	}
	return &Dedupe{repo: repo, detector: detector, cache: cache, logger: logger.OrNop(log)}
}

func (s *Dedupe) Name() string { return string(store.ArtifactDedupe) }

func (s *Dedupe) Artifact() store.Artifact { return store.ArtifactDedupe }

func (s *Dedupe) Status() Status { return s.status(s.Name()) }

func (s *Dedupe) Validate(*Config) error {
	if s.detector == nil {
		return fmt.Errorf("dedupe detector is not configured")
	}
	return s.detector.Config().Validate()
}

func (s *Dedupe) index(ctx context.Context) (*dedupe.LSH, error) {
	return s.cache.Get(ctx, s.detector.Config(), s.repo.IndexEntries)
}

// Baseline is the number of indexed jobs before the run.
func (s *Dedupe) Baseline(ctx context.Context) (int, error) {
	idx, err := s.index(ctx)
	if err != nil {
		return 0, err
	}
	return idx.Len(), nil
}

func (s *Dedupe) Run(ctx context.Context, job store.JobPost) (int, error) {
	idx, err := s.index(ctx)
	if err != nil {
		return 0, err
	}

	d, err := s.detector.Detect(ctx, job.ID, dedupe.Text(job.DescriptionRaw, job.TitleRaw), idx, corpus{s.repo})
	if err != nil {
		return 0, err
	}
	if err := s.repo.CommitDedupe(ctx, d); err != nil {
		return 0, err
	}

	if d.Signature != nil && d.SelfCanonical() {
		if err := idx.Insert(job.ID, d.Signature); err != nil {
			// committed already; the next index load picks the row up
			s.logger.Warn("index insert", append(logger.JobFields(job.ID, job.URL), zap.Error(err))...)
			s.cache.Reset()
		}
	}
	if d.Duplicate {
		s.logger.Debug("duplicate found",
			zap.Int64(logger.FieldJobID, job.ID),
			zap.Int64("canonical_id", d.CanonicalID),
			zap.Float64("similarity", d.Similarity),
		)
		return 1, nil
	}
	return 0, nil
}

type corpus struct {
	repo DedupeRepository
}

func (c corpus) Text(ctx context.Context, jobID int64) (string, error) {
	job, err := c.repo.GetJob(ctx, jobID)
	if err != nil {
		return "", err
	}
	return dedupe.Text(job.DescriptionRaw, job.TitleRaw), nil
}

func (c corpus) CanonicalRoot(ctx context.Context, jobID int64) (int64, error) {
	return c.repo.CanonicalRoot(ctx, jobID)
}
