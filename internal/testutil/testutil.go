// Package testutil provides shared test helpers for setting up uploads
// directories, registries, and vector indexes.
package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/starford/tiwaz/internal/registry"
	"github.com/starford/tiwaz/internal/storage"
	"github.com/starford/tiwaz/internal/vecindex"
)

// TestRegistry creates a temporary SQLite selection store that is
// automatically cleaned up.
func TestRegistry(t *testing.T) *registry.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "tiwaz-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := registry.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestUploads creates a temporary uploads directory with a storage provider.
func TestUploads(t *testing.T) (string, *storage.FS) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, store
}

// StubEmbedder is a deterministic in-process embedder. When Err is set every
// call fails with it. Calls counts EmbedTexts invocations.
type StubEmbedder struct {
	Err   error
	Calls atomic.Int64
}

// EmbedTexts returns one fixed-dimension vector per input text.
func (s *StubEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	s.Calls.Add(1)
	if s.Err != nil {
		return nil, fmt.Errorf("stub embedder: %w", s.Err)
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = []float32{float32(len(text)), float32(i), 1, 0}
	}
	return out, nil
}

// Dimension returns the stub vector dimension.
func (s *StubEmbedder) Dimension() int { return 4 }

// TestIndex creates a temporary bbolt vector index backed by the given
// embedder.
func TestIndex(t *testing.T, embedder *StubEmbedder) *vecindex.Bolt {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vectors.db")
	idx, err := vecindex.NewBolt(path, embedder, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { idx.Close() })
	return idx
}
