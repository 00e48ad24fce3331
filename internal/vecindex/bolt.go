package vecindex

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"go.etcd.io/bbolt"

	"github.com/starford/tiwaz/internal/apperr"
	"github.com/starford/tiwaz/internal/checksum"
	"github.com/starford/tiwaz/internal/embedding"
	"github.com/starford/tiwaz/internal/loader"
)

var bucketSources = []byte("sources")

// storedVector is the on-disk record for one embedded chunk.
type storedVector struct {
	Vector []float32 `json:"v"`
	Index  int       `json:"i"`
	Text   string    `json:"t"`
}

// Bolt implements Client on a bbolt database with one nested bucket per
// source. Vector keys are content hashes of (source, chunk index, chunk
// text), which makes upserts idempotent.
type Bolt struct {
	db       *bbolt.DB
	embedder embedding.Embedder
	logger   *slog.Logger
}

var _ Client = (*Bolt)(nil)

// NewBolt opens (or creates) the vector database at path.
func NewBolt(path string, embedder embedding.Embedder, logger *slog.Logger) (*Bolt, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("vecindex: open db: %v: %w", err, apperr.ErrIndex)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSources)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("vecindex: create bucket: %v: %w", err, apperr.ErrIndex)
	}
	return &Bolt{
		db:       db,
		embedder: embedder,
		logger:   logger.With(slog.String("component", "vecindex")),
	}, nil
}

// Close closes the underlying database.
func (b *Bolt) Close() error {
	return b.db.Close()
}

// EmbedAndUpsert embeds chunks and replaces the vectors stored for source.
// Chunks whose content hash is already present are not re-embedded; stale
// keys from an earlier version of the document are dropped in the same
// transaction.
func (b *Bolt) EmbedAndUpsert(ctx context.Context, source string, chunks []loader.Chunk) (int, error) {
	if source == "" {
		return 0, fmt.Errorf("vecindex: empty source: %w", apperr.ErrValidation)
	}

	keys := make([]string, len(chunks))
	for i, c := range chunks {
		keys[i] = checksum.VectorKey(source, c.Index, c.Text)
	}

	// Work out which keys still need embedding.
	existing := make(map[string]struct{})
	err := b.db.View(func(tx *bbolt.Tx) error {
		sb := tx.Bucket(bucketSources).Bucket([]byte(source))
		if sb == nil {
			return nil
		}
		return sb.ForEach(func(k, _ []byte) error {
			existing[string(k)] = struct{}{}
			return nil
		})
	})
	if err != nil {
		return 0, fmt.Errorf("vecindex: read %s: %v: %w", source, err, apperr.ErrIndex)
	}

	var missing []loader.Chunk
	var missingKeys []string
	for i, c := range chunks {
		if _, ok := existing[keys[i]]; !ok {
			missing = append(missing, c)
			missingKeys = append(missingKeys, keys[i])
		}
	}

	texts := make([]string, len(missing))
	for i, c := range missing {
		texts[i] = c.Text
	}
	vecs, err := b.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return 0, err
	}

	keep := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		keep[k] = struct{}{}
	}

	err = b.db.Update(func(tx *bbolt.Tx) error {
		root := tx.Bucket(bucketSources)
		sb, err := root.CreateBucketIfNotExists([]byte(source))
		if err != nil {
			return err
		}

		// Drop keys that no longer correspond to current content.
		var stale [][]byte
		if err := sb.ForEach(func(k, _ []byte) error {
			if _, ok := keep[string(k)]; !ok {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		}); err != nil {
			return err
		}
		for _, k := range stale {
			if err := sb.Delete(k); err != nil {
				return err
			}
		}

		for i, c := range missing {
			rec, err := json.Marshal(storedVector{Vector: vecs[i], Index: c.Index, Text: c.Text})
			if err != nil {
				return err
			}
			if err := sb.Put([]byte(missingKeys[i]), rec); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("vecindex: upsert %s: %v: %w", source, err, apperr.ErrIndex)
	}

	b.logger.Debug("upserted source",
		slog.String("source", source),
		slog.Int("chunks", len(chunks)),
		slog.Int("embedded", len(missing)))
	return len(keep), nil
}

// DeleteSource removes all vectors for source.
func (b *Bolt) DeleteSource(_ context.Context, source string) error {
	err := b.db.Update(func(tx *bbolt.Tx) error {
		root := tx.Bucket(bucketSources)
		if root.Bucket([]byte(source)) == nil {
			return nil
		}
		return root.DeleteBucket([]byte(source))
	})
	if err != nil {
		return fmt.Errorf("vecindex: delete %s: %v: %w", source, err, apperr.ErrIndex)
	}
	return nil
}

// CountsPerSource reports the vector count for every indexed source.
func (b *Bolt) CountsPerSource(_ context.Context) (map[string]int, error) {
	out := make(map[string]int)
	err := b.db.View(func(tx *bbolt.Tx) error {
		root := tx.Bucket(bucketSources)
		return root.ForEachBucket(func(name []byte) error {
			sb := root.Bucket(name)
			out[string(name)] = sb.Stats().KeyN
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("vecindex: counts: %v: %w", err, apperr.ErrIndex)
	}
	return out, nil
}
