// Package embedding turns job text into vectors through an external model.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/spigell/jobnorm/internal/logger"
	"github.com/spigell/jobnorm/internal/utils"
)

const (
	ProviderNone   = "none"
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"

	DefaultMaxTokens = 8000
)

// ErrEmptyText is returned for text with nothing to embed.
var ErrEmptyText = errors.New("nothing to embed")

// Embedder is the model collaborator. Its numerics are opaque here.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	ModelName() string
}

type Config struct {
	Provider   string  `mapstructure:"provider"`
	Model      string  `mapstructure:"model"`
	Dimension  int     `mapstructure:"dimension"`
	APIKey     string  `mapstructure:"api_key"`
	APIKeyFile string  `mapstructure:"api_key_file"`
	MaxTokens  int     `mapstructure:"max_tokens"`
	RatePerSec float64 `mapstructure:"rate_per_sec"`
	Burst      int     `mapstructure:"burst"`
	Retries    int     `mapstructure:"retries"`
}

func DefaultConfig() Config {
	return Config{
		Provider:   ProviderNone,
		MaxTokens:  DefaultMaxTokens,
		RatePerSec: 5,
		Burst:      1,
		Retries:    3,
	}
}

func (c Config) Validate() error {
	switch c.Provider {
	case ProviderNone, ProviderOpenAI, ProviderGemini:
	default:
		return fmt.Errorf("embedding.provider must be one of none, openai, gemini, got %q", c.Provider)
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("embedding.max_tokens must be positive, got %d", c.MaxTokens)
	}
	if c.RatePerSec < 0 {
		return fmt.Errorf("embedding.rate_per_sec must not be negative, got %v", c.RatePerSec)
	}
	if c.Dimension < 0 {
		return fmt.Errorf("embedding.dimension must not be negative, got %d", c.Dimension)
	}
	return nil
}

// Service wraps an Embedder with input truncation, a call rate limit and
// retries.
type Service struct {
	embedder  Embedder
	truncator *Truncator
	limiter   *rate.Limiter
	retries   int
	backoff   time.Duration
	logger    *zap.Logger
}

func NewService(e Embedder, cfg Config, log *zap.Logger) *Service {
	limit := rate.Inf
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	retries := cfg.Retries
	if retries <= 0 {
		retries = 1
	}
	return &Service{
		embedder:  e,
		truncator: NewTruncator(cfg.MaxTokens),
		limiter:   rate.NewLimiter(limit, burst),
		retries:   retries,
		backoff:   time.Second,
		logger:    logger.OrNop(log),
	}
}

func (s *Service) ModelName() string {
	return s.embedder.ModelName()
}

func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyText
	}
	input, truncated := s.truncator.Truncate(text)
	if truncated {
		s.logger.Debug("embedding input truncated", zap.Int("max_tokens", s.truncator.maxTokens))
	}

	var vec []float32
	err := utils.Retry(ctx, s.retries, s.backoff, func(ctx context.Context) error {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
		var err error
		vec, err = s.embedder.Embed(ctx, input)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("embed with %s: %w", s.embedder.ModelName(), err)
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("embed with %s: empty vector", s.embedder.ModelName())
	}
	return vec, nil
}
