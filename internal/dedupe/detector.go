package dedupe

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/spigell/jobnorm/internal/logger"
	"github.com/spigell/jobnorm/internal/normalize"
)

// DefaultFuzzyThreshold is the token sort ratio a candidate must reach.
const DefaultFuzzyThreshold = 0.9

type Config struct {
	Threshold      float64 `mapstructure:"threshold"`
	NumPerm        int     `mapstructure:"num_perm"`
	FuzzyThreshold float64 `mapstructure:"fuzzy_threshold"`
	ShingleSize    int     `mapstructure:"shingle_size"`
	Seed           uint64  `mapstructure:"seed"`
}

func DefaultConfig() Config {
	return Config{
		Threshold:      DefaultThreshold,
		NumPerm:        DefaultNumPerm,
		FuzzyThreshold: DefaultFuzzyThreshold,
		ShingleSize:    DefaultShingleSize,
		Seed:           DefaultSeed,
	}
}

func (c Config) Validate() error {
	var errs []error
	if c.Threshold <= 0 || c.Threshold >= 1 {
		errs = append(errs, fmt.Errorf("dedupe.threshold must be in (0,1), got %v", c.Threshold))
	}
	if c.NumPerm <= 0 {
		errs = append(errs, fmt.Errorf("dedupe.num_perm must be positive, got %d", c.NumPerm))
	}
	if c.FuzzyThreshold <= 0 || c.FuzzyThreshold > 1 {
		errs = append(errs, fmt.Errorf("dedupe.fuzzy_threshold must be in (0,1], got %v", c.FuzzyThreshold))
	}
	if c.ShingleSize <= 0 {
		errs = append(errs, fmt.Errorf("dedupe.shingle_size must be positive, got %d", c.ShingleSize))
	}
	return errors.Join(errs...)
}

// Corpus gives the detector access to already indexed jobs.
type Corpus interface {
	// Text returns the dedupe text of a job.
	Text(ctx context.Context, jobID int64) (string, error)
	// CanonicalRoot follows the dedupe map from jobID to its canonical job.
	CanonicalRoot(ctx context.Context, jobID int64) (int64, error)
}

// Decision is the dedupe outcome for one job.
type Decision struct {
	JobID       int64
	CanonicalID int64
	Similarity  float64
	// Signature is nil for degenerate text.
	Signature Signature
	Duplicate bool
}

// SelfCanonical reports whether the job maps onto itself and so belongs in
// the index.
func (d Decision) SelfCanonical() bool {
	return d.CanonicalID == d.JobID
}

type Detector struct {
	cfg    Config
	hasher *MinHasher
	logger *zap.Logger
}

func NewDetector(cfg Config, log *zap.Logger) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	hasher, err := NewMinHasher(cfg.NumPerm, cfg.Seed)
	if err != nil {
		return nil, err
	}
	return &Detector{cfg: cfg, hasher: hasher, logger: logger.OrNop(log)}, nil
}

func (d *Detector) Config() Config {
	return d.cfg
}

// Signature shingles and hashes text. Degenerate text yields nil.
func (d *Detector) Signature(text string) Signature {
	return d.hasher.Signature(Shingles(text, d.cfg.ShingleSize))
}

// Detect decides whether jobID duplicates an indexed job. Candidates come
// from the LSH index and must pass the fuzzy check; the best one (highest
// ratio, then smallest id) maps the job onto its canonical root. Only jobs
// seen earlier than jobID are considered so that canonical ids never exceed
// job ids.
func (d *Detector) Detect(ctx context.Context, jobID int64, text string, idx *LSH, corpus Corpus) (Decision, error) {
	self := Decision{JobID: jobID, CanonicalID: jobID, Similarity: 1}

	sig := d.Signature(text)
	if sig == nil {
		return self, nil
	}
	self.Signature = sig
	if idx == nil || idx.Len() == 0 {
		return self, nil
	}

	var (
		bestID    int64
		bestRatio float64
	)
	for _, candidate := range idx.Query(sig) {
		if candidate >= jobID {
			continue
		}
		other, err := corpus.Text(ctx, candidate)
		if err != nil {
			return Decision{}, fmt.Errorf("load candidate %d: %w", candidate, err)
		}
		ratio := normalize.TokenSortRatio(text, other)
		d.logger.Debug("dedupe candidate",
			zap.Int64(logger.FieldJobID, jobID),
			zap.Int64("candidate_id", candidate),
			zap.Float64("ratio", ratio),
		)
		if ratio < d.cfg.FuzzyThreshold {
			continue
		}
		// candidates arrive ascending, so a tie keeps the smaller id
		if ratio > bestRatio {
			bestID, bestRatio = candidate, ratio
		}
	}

	if bestID == 0 {
		return self, nil
	}

	root, err := corpus.CanonicalRoot(ctx, bestID)
	if err != nil {
		return Decision{}, fmt.Errorf("resolve canonical of %d: %w", bestID, err)
	}
	return Decision{
		JobID:       jobID,
		CanonicalID: root,
		Similarity:  bestRatio,
		Signature:   sig,
		Duplicate:   true,
	}, nil
}
