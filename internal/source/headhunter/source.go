package headhunter

import (
	"context"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/jobnorm/internal/source"
	"github.com/spigell/jobnorm/internal/utils"
)

// Options configure the hh.ru feed.
type Options struct {
	Search   SearchParams `mapstructure:"search"`
	MaxPages int          `mapstructure:"max_pages"`
	// Details loads every vacancy to get the full description.
	Details bool `mapstructure:"details"`
}

// Source is a source.Source over one vacancy search.
type Source struct {
	client *Client
	opts   Options

	loaded    bool
	vacancies []*Vacancy
	pos       int
}

func NewSource(client *Client, opts Options) *Source {
	return &Source{client: client, opts: opts}
}

func (s *Source) Name() string {
	return SourceName
}

// Next runs the search on first use and then yields one vacancy at a time.
// Archived vacancies are skipped.
func (s *Source) Next(ctx context.Context) (source.Record, error) {
	if !s.loaded {
		vacancies, err := s.client.Search(ctx, s.opts.Search, s.opts.MaxPages)
		if err != nil {
			return nil, err
		}
		s.vacancies = vacancies
		s.loaded = true
	}

	for s.pos < len(s.vacancies) {
		v := s.vacancies[s.pos]
		s.pos++
		if v.Archived {
			continue
		}
		if s.opts.Details {
			v = s.details(ctx, v)
		}
		return v.Record(), nil
	}
	return nil, io.EOF
}

// details returns the full vacancy, or the search item when it cannot be
// loaded.
func (s *Source) details(ctx context.Context, v *Vacancy) *Vacancy {
	var full *Vacancy
	err := utils.Retry(ctx, 3, time.Second, func(ctx context.Context) error {
		var err error
		full, err = s.client.GetVacancy(ctx, v.ID)
		return err
	})
	if err != nil {
		s.client.logger.Warn("vacancy details unavailable", zap.String("vacancy_id", v.ID), zap.Error(err))
		return v
	}
	return full
}

func (s *Source) Close() error {
	return nil
}
