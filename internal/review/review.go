// Package review exposes the dedupe map to a human reviewer.
package review

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/jobnorm/internal/dedupe"
	"github.com/spigell/jobnorm/internal/logger"
	"github.com/spigell/jobnorm/internal/store"
)

// ExpireReviewer is recorded on rows dismissed by Expire.
const ExpireReviewer = "auto-expire"

type Repository interface {
	ListDedupe(ctx context.Context, f store.DedupeFilter) ([]store.DedupeMap, error)
	GetJob(ctx context.Context, id int64) (store.JobPost, error)
	Merge(ctx context.Context, jobID int64, reviewer string) (int64, error)
	Dismiss(ctx context.Context, jobID int64, reviewer string) error
	ExpirePending(ctx context.Context, cutoff time.Time, reviewer string) (int64, error)
}

// Candidate is a pending duplicate with both postings loaded.
type Candidate struct {
	Map       store.DedupeMap
	Job       store.JobPost
	Canonical store.JobPost
}

type Service struct {
	repo   Repository
	cache  *dedupe.IndexCache
	logger *zap.Logger
	now    func() time.Time
}

// New uses the process-wide index cache unless cache is given.
func New(repo Repository, cache *dedupe.IndexCache, log *zap.Logger) *Service {
	if cache == nil {
		cache = dedupe.Shared()
	}
	return &Service{
		repo:   repo,
		cache:  cache,
		logger: logger.OrNop(log),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Pending lists pending duplicate candidates, oldest job first.
func (s *Service) Pending(ctx context.Context, limit int) ([]Candidate, error) {
	rows, err := s.repo.ListDedupe(ctx, store.DedupeFilter{
		Status:         dedupe.StatusPending,
		DuplicatesOnly: true,
		Limit:          limit,
	})
	if err != nil {
		return nil, err
	}

	out := make([]Candidate, 0, len(rows))
	for _, m := range rows {
		job, err := s.repo.GetJob(ctx, m.JobID)
		if err != nil {
			return nil, err
		}
		canonical, err := s.repo.GetJob(ctx, m.CanonicalJobID)
		if err != nil {
			return nil, err
		}
		out = append(out, Candidate{Map: m, Job: job, Canonical: canonical})
	}
	return out, nil
}

// Merge confirms the duplicate. It returns how many other rows were
// re-pointed at the canonical job.
func (s *Service) Merge(ctx context.Context, jobID int64, reviewer string) (int64, error) {
	moved, err := s.repo.Merge(ctx, jobID, reviewer)
	if err != nil {
		return 0, err
	}
	s.logger.Info("merged duplicate", zap.Int64(logger.FieldJobID, jobID), zap.Int64("repointed", moved), zap.String("reviewer", reviewer))
	return moved, nil
}

// Dismiss rejects the duplicate. The job joins the index, so the cached one
// is dropped.
func (s *Service) Dismiss(ctx context.Context, jobID int64, reviewer string) error {
	if err := s.repo.Dismiss(ctx, jobID, reviewer); err != nil {
		return err
	}
	s.cache.Reset()
	s.logger.Info("dismissed duplicate", zap.Int64(logger.FieldJobID, jobID), zap.String("reviewer", reviewer))
	return nil
}

// Expire dismisses pending duplicates older than olderThan.
func (s *Service) Expire(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("expiry age must be positive, got %s", olderThan)
	}
	n, err := s.repo.ExpirePending(ctx, s.now().Add(-olderThan), ExpireReviewer)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.cache.Reset()
	}
	s.logger.Info("expired pending duplicates", zap.Int64("count", n), zap.Duration("older_than", olderThan))
	return n, nil
}
