// Package gemini embeds text with the Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const defaultModel = "text-embedding-004"

type contentEmbedder interface {
	EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)
}

// Embedder wraps the Google GenAI client.
type Embedder struct {
	models    contentEmbedder
	modelName string
	dimension int
}

// New creates an Embedder configured for the Gemini API backend.
func New(ctx context.Context, apiKey, model string, dimension int) (*Embedder, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return newEmbedder(client.Models, model, dimension), nil
}

func newEmbedder(models contentEmbedder, model string, dimension int) *Embedder {
	if model = strings.TrimSpace(model); model == "" {
		model = defaultModel
	}
	return &Embedder{models: models, modelName: model, dimension: dimension}
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if e == nil || e.models == nil {
		return nil, errors.New("gemini embedder is not initialized")
	}

	var cfg *genai.EmbedContentConfig
	if e.dimension > 0 {
		dim := int32(e.dimension)
		cfg = &genai.EmbedContentConfig{OutputDimensionality: &dim}
	}

	resp, err := e.models.EmbedContent(ctx, e.modelName, genai.Text(text), cfg)
	if err != nil {
		return nil, fmt.Errorf("embed content: %w", err)
	}
	if resp == nil || len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil {
		return nil, errors.New("gemini api returned no embeddings")
	}
	return resp.Embeddings[0].Values, nil
}

func (e *Embedder) ModelName() string {
	if e == nil {
		return ""
	}
	return e.modelName
}
