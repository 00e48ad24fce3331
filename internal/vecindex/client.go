// Package vecindex defines the contract to the embedding/vector-store
// capability and its local bbolt-backed implementation.
//
// The rest of the system treats the vector database and embedding model as
// opaque: everything goes through Client.
package vecindex

import (
	"context"

	"github.com/starford/tiwaz/internal/loader"
)

// Client is the seam to the vector store. Upserts are content-addressed, so
// re-ingesting identical chunks never creates duplicate vectors.
type Client interface {
	// EmbedAndUpsert embeds chunks and stores them under source, replacing any
	// vectors from a previous version of the document. Returns the vector
	// count for the source after the upsert.
	EmbedAndUpsert(ctx context.Context, source string, chunks []loader.Chunk) (int, error)

	// DeleteSource removes all vectors for source. Deleting an absent source
	// is a no-op.
	DeleteSource(ctx context.Context, source string) error

	// CountsPerSource reports the vector count for every indexed source.
	CountsPerSource(ctx context.Context) (map[string]int, error)
}
