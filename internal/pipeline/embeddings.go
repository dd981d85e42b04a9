package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/pgvector/pgvector-go"

	"github.com/spigell/jobnorm/internal/store"
)

type EmbeddingsRepository interface {
	CommitEmbedding(ctx context.Context, e store.JobEmbedding) error
}

// Embedder is satisfied by embedding.Service.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	ModelName() string
}

// Embeddings stores one vector per job.
type Embeddings struct {
	toggle
	repo     EmbeddingsRepository
	embedder Embedder
}

// NewEmbeddings returns a disabled stage when embedder is nil.
func NewEmbeddings(repo EmbeddingsRepository, embedder Embedder) *Embeddings {
	s := &Embeddings{repo: repo, embedder: embedder}
	if embedder == nil {
		s.Disable("no embedding provider configured")
	}
	return s
}

func (s *Embeddings) Name() string { return string(store.ArtifactEmbeddings) }

func (s *Embeddings) Artifact() store.Artifact { return store.ArtifactEmbeddings }

func (s *Embeddings) Status() Status { return s.status(s.Name()) }

func (s *Embeddings) Validate(*Config) error {
	if s.embedder == nil {
		return fmt.Errorf("embedder is not configured")
	}
	return nil
}

func (s *Embeddings) Run(ctx context.Context, job store.JobPost) (int, error) {
	vec, err := s.embedder.Embed(ctx, EmbeddingText(job))
	if err != nil {
		return 0, err
	}
	err = s.repo.CommitEmbedding(ctx, store.JobEmbedding{
		JobID:     job.ID,
		Vector:    pgvector.NewVector(vec),
		Model:     s.embedder.ModelName(),
		Dimension: len(vec),
	})
	if err != nil {
		return 0, err
	}
	return 1, nil
}

// EmbeddingText joins the title, description and requirements.
func EmbeddingText(job store.JobPost) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{job.TitleRaw, job.DescriptionRaw, job.RequirementsRaw} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, "\n\n")
}
