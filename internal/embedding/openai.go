package embedding

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/starford/tiwaz/internal/apperr"
)

// DefaultDimension matches text-embedding-3-small and the common local
// OpenAI-compatible servers.
const DefaultDimension = 1536

// OpenAI implements Embedder against any OpenAI-compatible embeddings API
// (including local servers that ignore the token).
type OpenAI struct {
	embedder  embeddings.Embedder
	dimension int
	logger    *slog.Logger
}

var _ Embedder = (*OpenAI)(nil)

// NewOpenAI creates an embedder for the given endpoint and model. A token of
// "none" is accepted by local OpenAI-compatible services. If dimension is 0,
// DefaultDimension is used.
func NewOpenAI(baseURL, token, model string, dimension int, logger *slog.Logger) (*OpenAI, error) {
	if token == "" {
		token = "none"
	}
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := openai.New(
		openai.WithBaseURL(baseURL),
		openai.WithToken(token),
		openai.WithEmbeddingModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("embedding: create client: %w", err)
	}
	embedder, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, fmt.Errorf("embedding: wrap embedder: %w", err)
	}

	return &OpenAI{
		embedder:  embedder,
		dimension: dimension,
		logger:    logger.With(slog.String("component", "embedder")),
	}, nil
}

// Dimension returns the expected embedding dimension.
func (o *OpenAI) Dimension() int {
	return o.dimension
}

// EmbedTexts generates embeddings for a batch of texts.
func (o *OpenAI) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	o.logger.Debug("embedding batch", slog.Int("texts", len(texts)))

	vecs, err := o.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embedding: embed %d texts: %v: %w", len(texts), err, apperr.ErrEmbedding)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("embedding: got %d vectors for %d texts: %w", len(vecs), len(texts), apperr.ErrEmbedding)
	}
	for i, v := range vecs {
		if len(v) != o.dimension {
			return nil, fmt.Errorf("embedding: vector %d has dimension %d, want %d: %w",
				i, len(v), o.dimension, apperr.ErrEmbedding)
		}
	}
	return vecs, nil
}
