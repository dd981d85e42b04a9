// Package pipeline runs the incremental stages over jobs that still lack a
// stage artifact.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spigell/jobnorm/internal/logger"
	"github.com/spigell/jobnorm/internal/runlock"
	"github.com/spigell/jobnorm/internal/store"
)

const DefaultBatchSize = 1000

// Run statuses.
const (
	StatusOK      = "ok"
	StatusNoop    = "noop"
	StatusPartial = "partial"
	StatusSkipped = "skipped"
)

// Stage processes one job at a time. Run must commit all writes for the job
// as one unit and return store.ErrAlreadyClaimed when another invocation
// already wrote the artifact.
type Stage interface {
	Name() string
	Artifact() store.Artifact
	Disable(reason string)
	IsEnabled() bool

	Validate(cfg *Config) error
	// Run returns how many results the job produced: skills written,
	// duplicates found or vectors stored.
	Run(ctx context.Context, job store.JobPost) (int, error)
}

// baseliner is implemented by stages with their own notion of baseline.
type baseliner interface {
	Baseline(ctx context.Context) (int, error)
}

// Status represents runtime information about a stage.
type Status struct {
	Name    string
	Enabled bool
	Reason  string
}

type Config struct {
	BatchSize int `mapstructure:"batch_size"`
}

func DefaultConfig() Config {
	return Config{BatchSize: DefaultBatchSize}
}

func (c Config) Validate() error {
	if c.BatchSize <= 0 {
		return fmt.Errorf("pipeline.batch_size must be positive, got %d", c.BatchSize)
	}
	return nil
}

// Repository is the storage the coordinator needs.
type Repository interface {
	PendingJobs(ctx context.Context, a store.Artifact, limit int) ([]store.JobPost, error)
	ArtifactCount(ctx context.Context, a store.Artifact) (int, error)
	InsertRun(ctx context.Context, r store.PipelineRun) error
}

// Summary reports one incremental run.
type Summary struct {
	RunID        string
	Stage        string
	Processed    int
	Found        int
	Failed       int
	Claimed      int
	BaselineSize int
	Status       string
	Reason       string
}

type Coordinator struct {
	cfg    Config
	repo   Repository
	locker runlock.Locker
	stages []Stage
	logger *zap.Logger
	now    func() time.Time
}

func New(cfg Config, repo Repository, locker runlock.Locker, log *zap.Logger, stages ...Stage) (*Coordinator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if locker == nil {
		locker = runlock.Noop{}
	}
	seen := make(map[string]bool, len(stages))
	for _, s := range stages {
		if seen[s.Name()] {
			return nil, fmt.Errorf("stage %q registered twice", s.Name())
		}
		seen[s.Name()] = true
	}
	return &Coordinator{
		cfg:    cfg,
		repo:   repo,
		locker: locker,
		stages: stages,
		logger: logger.OrNop(log),
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// Stage returns the registered stage with the given name.
func (c *Coordinator) Stage(name string) (Stage, bool) {
	for _, s := range c.stages {
		if s.Name() == name {
			return s, true
		}
	}
	return nil, false
}

// Describe returns status entries for the registered stages.
func (c *Coordinator) Describe() []Status {
	statuses := make([]Status, 0, len(c.stages))
	for _, s := range c.stages {
		if reporter, ok := s.(interface{ Status() Status }); ok {
			statuses = append(statuses, reporter.Status())
			continue
		}
		statuses = append(statuses, Status{Name: s.Name(), Enabled: s.IsEnabled()})
	}
	return statuses
}

// RunAll runs every registered stage in order.
func (c *Coordinator) RunAll(ctx context.Context) ([]Summary, error) {
	out := make([]Summary, 0, len(c.stages))
	for _, s := range c.stages {
		sum, err := c.RunIncremental(ctx, s.Name())
		if err != nil {
			return out, fmt.Errorf("%s: %w", s.Name(), err)
		}
		out = append(out, sum)
	}
	return out, nil
}

// RunIncremental processes up to the batch size of jobs lacking the stage
// artifact. A failing job is counted and left for the next run; only
// infrastructure errors (selecting jobs, the audit row) are returned.
func (c *Coordinator) RunIncremental(ctx context.Context, name string) (Summary, error) {
	stage, ok := c.Stage(name)
	if !ok {
		return Summary{}, fmt.Errorf("unknown stage %q", name)
	}

	sum := Summary{RunID: uuid.NewString(), Stage: name}
	log := logger.WithStage(c.logger, name, sum.RunID)
	started := c.now()

	if !stage.IsEnabled() {
		sum.Status = StatusSkipped
		sum.Reason = "stage disabled"
		log.Info("stage disabled")
		return sum, c.audit(ctx, sum, started)
	}
	if err := stage.Validate(&c.cfg); err != nil {
		return Summary{}, fmt.Errorf("%s: %w", name, err)
	}

	release, locked, err := c.locker.Acquire(ctx, name)
	if err != nil {
		return Summary{}, fmt.Errorf("lock stage %s: %w", name, err)
	}
	if !locked {
		sum.Status = StatusSkipped
		sum.Reason = "another run holds the stage lock"
		log.Info("stage locked elsewhere")
		return sum, c.audit(ctx, sum, started)
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			log.Warn("releasing stage lock", zap.Error(err))
		}
	}()

	if sum.BaselineSize, err = c.baseline(ctx, stage); err != nil {
		return Summary{}, err
	}

	jobs, err := c.repo.PendingJobs(ctx, stage.Artifact(), c.cfg.BatchSize)
	if err != nil {
		return Summary{}, fmt.Errorf("select pending jobs: %w", err)
	}
	log.Info("starting stage", zap.Int("pending", len(jobs)), zap.Int("baseline_size", sum.BaselineSize))

	for _, job := range jobs {
		if ctx.Err() != nil {
			log.Warn("run interrupted", zap.Error(ctx.Err()))
			break
		}
		found, err := stage.Run(ctx, job)
		switch {
		case errors.Is(err, store.ErrAlreadyClaimed):
			sum.Claimed++
			log.Debug("job claimed by another run", logger.JobFields(job.ID, job.URL)...)
		case err != nil:
			sum.Failed++
			log.Warn("job failed", append(logger.JobFields(job.ID, job.URL), zap.Error(err))...)
		default:
			sum.Processed++
			sum.Found += found
		}
	}

	switch {
	case sum.Failed > 0:
		sum.Status = StatusPartial
	case sum.Processed == 0:
		sum.Status = StatusNoop
	default:
		sum.Status = StatusOK
	}

	log.Info("stage finished",
		zap.String("status", sum.Status),
		zap.Int("processed", sum.Processed),
		zap.Int("found", sum.Found),
		zap.Int("failed", sum.Failed),
		zap.Int("claimed", sum.Claimed),
	)
	return sum, c.audit(ctx, sum, started)
}

func (c *Coordinator) baseline(ctx context.Context, stage Stage) (int, error) {
	if b, ok := stage.(baseliner); ok {
		n, err := b.Baseline(ctx)
		if err != nil {
			return 0, fmt.Errorf("%s baseline: %w", stage.Name(), err)
		}
		return n, nil
	}
	n, err := c.repo.ArtifactCount(ctx, stage.Artifact())
	if err != nil {
		return 0, fmt.Errorf("%s baseline: %w", stage.Name(), err)
	}
	return n, nil
}

func (c *Coordinator) audit(ctx context.Context, sum Summary, started time.Time) error {
	err := c.repo.InsertRun(ctx, store.PipelineRun{
		RunID:        sum.RunID,
		Stage:        sum.Stage,
		StartedAt:    started,
		FinishedAt:   c.now(),
		Processed:    sum.Processed,
		Found:        sum.Found,
		Failed:       sum.Failed,
		BaselineSize: sum.BaselineSize,
		Status:       sum.Status,
	})
	if err != nil {
		return fmt.Errorf("record run %s: %w", sum.RunID, err)
	}
	return nil
}

// toggle carries the enabled state shared by the stages.
type toggle struct {
	disabled bool
	reason   string
}

func (t *toggle) Disable(reason string) {
	t.disabled = true
	t.reason = reason
}

func (t *toggle) IsEnabled() bool {
	return !t.disabled
}

func (t *toggle) status(name string) Status {
	return Status{Name: name, Enabled: !t.disabled, Reason: t.reason}
}
