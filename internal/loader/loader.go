// Package loader turns uploaded files into normalized text chunks ready for
// embedding.
package loader

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/starford/tiwaz/internal/apperr"
)

// Chunk is a bounded slice of normalized text extracted from one source. The
// (Source, Index) pair positions it within the document.
type Chunk struct {
	Source string `json:"source"`
	Index  int    `json:"index"`
	Text   string `json:"text"`
}

// supportedExts lists the file extensions the loader accepts. Everything is
// treated as plain text; structured parsers can register here later.
var supportedExts = map[string]struct{}{
	".txt": {},
	".md":  {},
	".csv": {},
	".log": {},
}

// Supported reports whether the loader can handle the given filename.
func Supported(name string) bool {
	_, ok := supportedExts[strings.ToLower(filepath.Ext(name))]
	return ok
}

// Loader splits documents into chunks using a fixed-size window with overlap.
type Loader struct {
	cfg ChunkConfig
}

// New creates a Loader with the given chunking configuration. Zero-valued
// fields fall back to defaults.
func New(cfg ChunkConfig) *Loader {
	if cfg.Size <= 0 {
		cfg.Size = DefaultChunkConfig().Size
	}
	if cfg.Overlap < 0 || cfg.Overlap >= cfg.Size {
		cfg.Overlap = DefaultChunkConfig().Overlap
		if cfg.Overlap >= cfg.Size {
			cfg.Overlap = cfg.Size / 10
		}
	}
	return &Loader{cfg: cfg}
}

// Load normalizes data and splits it into chunks attributed to name.
// Unsupported or corrupt files yield an error wrapping apperr.ErrParse that
// carries the filename, so callers can report per-file failures without
// aborting a batch.
func (l *Loader) Load(name string, data []byte) ([]Chunk, error) {
	if !Supported(name) {
		return nil, fmt.Errorf("loader: %s: unsupported file type: %w", name, apperr.ErrParse)
	}
	if bytes.IndexByte(data, 0) >= 0 {
		return nil, fmt.Errorf("loader: %s: binary content: %w", name, apperr.ErrParse)
	}

	text := normalize(data)
	if text == "" {
		return nil, fmt.Errorf("loader: %s: empty document: %w", name, apperr.ErrParse)
	}

	windows := split(text, l.cfg)
	chunks := make([]Chunk, len(windows))
	for i, w := range windows {
		chunks[i] = Chunk{Source: name, Index: i, Text: w}
	}
	return chunks, nil
}

// normalize strips a UTF-8 BOM, converts CRLF line endings, and trims
// surrounding whitespace.
func normalize(data []byte) string {
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})
	s := strings.ReplaceAll(string(data), "\r\n", "\n")
	return strings.TrimSpace(s)
}
