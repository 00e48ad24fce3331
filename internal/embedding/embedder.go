// Package embedding provides the text embedding capability consumed by the
// vector index.
package embedding

import "context"

// Embedder generates vector embeddings from text. Implementations must be
// safe for concurrent use; the ingest workers call them in parallel.
type Embedder interface {
	// EmbedTexts generates embeddings for a batch of texts, returned in input
	// order. Batching is the common path: one call per source grouping.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the embedding vector dimension.
	Dimension() int
}
