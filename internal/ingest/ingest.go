package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/spigell/jobnorm/internal/logger"
	"github.com/spigell/jobnorm/internal/source"
	"github.com/spigell/jobnorm/internal/store"
	"github.com/spigell/jobnorm/internal/utils"
)

// Inserter stores raw jobs.
type Inserter interface {
	InsertJob(ctx context.Context, raw store.RawJob) (int64, error)
}

// Result counts what one ingest pass did.
type Result struct {
	Read       int `json:"read"`
	Inserted   int `json:"inserted"`
	Duplicates int `json:"duplicates"`
	Invalid    int `json:"invalid"`
}

type Ingester struct {
	repo      Inserter
	validator *Validator
	logger    *zap.Logger
}

func New(repo Inserter, log *zap.Logger) (*Ingester, error) {
	v, err := NewValidator()
	if err != nil {
		return nil, err
	}
	return &Ingester{repo: repo, validator: v, logger: logger.OrNop(log)}, nil
}

// Run drains src into the store. Invalid records and known URLs are counted
// and skipped; any other error stops the pass.
func (i *Ingester) Run(ctx context.Context, src source.Source) (Result, error) {
	var res Result
	log := i.logger.With(zap.String("source", src.Name()))

	for {
		raw, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, source.ErrMalformed) {
			res.Invalid++
			log.Warn("skipping malformed record", zap.Error(err))
			continue
		}
		if err != nil {
			return res, fmt.Errorf("read %s: %w", src.Name(), err)
		}
		res.Read++

		rec, err := i.validator.Decode(raw)
		if err != nil {
			res.Invalid++
			log.Warn("skipping invalid record", zap.String("url", utils.TruncateForLog(fmt.Sprint(raw["url"]), 200)), zap.Error(err))
			continue
		}

		job := rec.RawJob()
		id, err := i.repo.InsertJob(ctx, job)
		if errors.Is(err, store.ErrDuplicateURL) {
			res.Duplicates++
			log.Debug("url already ingested", zap.String(logger.FieldJobURL, job.URL))
			continue
		}
		if err != nil {
			return res, fmt.Errorf("insert %s: %w", job.URL, err)
		}
		res.Inserted++
		log.Debug("job ingested", logger.JobFields(id, job.URL)...)
	}

	log.Info("ingest finished",
		zap.Int("read", res.Read),
		zap.Int("inserted", res.Inserted),
		zap.Int("duplicates", res.Duplicates),
		zap.Int("invalid", res.Invalid),
	)
	return res, nil
}
