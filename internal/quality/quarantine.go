package quality

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/jobnorm/internal/logger"
	"github.com/spigell/jobnorm/internal/normalize"
	"github.com/spigell/jobnorm/internal/registry"
	"github.com/spigell/jobnorm/internal/store"
)

const (
	ReasonNoTitle        = "missing title"
	ReasonSpam           = "spam keyword"
	ReasonNoVocabulary   = "no job vocabulary"
	ReasonTooShort       = "description too short"
	minDescriptionLength = 40

	pageSize = 500
)

// Check returns the reason a job should be quarantined, or "" when it looks
// like a real posting. Spam keywords and job vocabulary come from the
// registry.
func Check(job store.JobPost, reg *registry.Registry) string {
	title := normalize.Fold(job.TitleRaw)
	if title == "" {
		return ReasonNoTitle
	}

	var data registry.Data
	if reg != nil {
		data = reg.Snapshot()
	}

	text := title + " " + normalize.Fold(job.DescriptionRaw)
	for _, kw := range data.SpamKeywords {
		if normalize.ContainsWord(text, kw) {
			return ReasonSpam + ": " + kw
		}
	}

	if len(data.JobVocabulary) > 0 && !containsAny(text, data.JobVocabulary) {
		return ReasonNoVocabulary
	}

	if length(job.DescriptionRaw) < minDescriptionLength && length(job.RequirementsRaw) == 0 {
		return ReasonTooShort
	}
	return ""
}

// vocabulary entries may be word stems, so they match anywhere.
func containsAny(text string, words []string) bool {
	for _, w := range words {
		if w != "" && strings.Contains(text, w) {
			return true
		}
	}
	return false
}

// Repository is the storage the quarantine pass needs.
type Repository interface {
	ListJobs(ctx context.Context, f store.JobFilter) ([]store.JobPost, error)
	Quarantine(ctx context.Context, id int64, reason string) error
}

// Quarantiner walks active jobs and deactivates the ones Check rejects.
type Quarantiner struct {
	repo   Repository
	reg    *registry.Registry
	logger *zap.Logger
	// DryRun reports without writing.
	DryRun bool
}

func NewQuarantiner(repo Repository, reg *registry.Registry, log *zap.Logger) *Quarantiner {
	return &Quarantiner{repo: repo, reg: reg, logger: logger.OrNop(log)}
}

// Flagged is one quarantined (or, in a dry run, would-be quarantined) job.
type Flagged struct {
	JobID  int64
	URL    string
	Reason string
}

func (q *Quarantiner) Run(ctx context.Context) ([]Flagged, error) {
	var (
		flagged []Flagged
		after   int64
	)
	for {
		jobs, err := q.repo.ListJobs(ctx, store.JobFilter{ActiveOnly: true, AfterID: after, Limit: pageSize})
		if err != nil {
			return flagged, fmt.Errorf("list jobs: %w", err)
		}
		for _, job := range jobs {
			after = job.ID
			reason := Check(job, q.reg)
			if reason == "" {
				continue
			}
			log := q.logger.With(logger.JobFields(job.ID, job.URL)...)
			if !q.DryRun {
				if err := q.repo.Quarantine(ctx, job.ID, reason); err != nil {
					return flagged, fmt.Errorf("quarantine job %d: %w", job.ID, err)
				}
			}
			log.Info("job quarantined", zap.String("reason", reason), zap.Bool("dry_run", q.DryRun))
			flagged = append(flagged, Flagged{JobID: job.ID, URL: job.URL, Reason: reason})
		}
		if len(jobs) < pageSize {
			return flagged, nil
		}
	}
}
