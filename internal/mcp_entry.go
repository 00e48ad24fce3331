package internal

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/starford/tiwaz/internal/embedding"
	"github.com/starford/tiwaz/internal/ingest"
	"github.com/starford/tiwaz/internal/loader"
	"github.com/starford/tiwaz/internal/mcpserver"
	"github.com/starford/tiwaz/internal/reconcile"
	"github.com/starford/tiwaz/internal/registry"
	"github.com/starford/tiwaz/internal/storage"
	"github.com/starford/tiwaz/internal/vecindex"
)

// RunMCP serves the knowledge tools over MCP stdio transport instead of HTTP.
// Logs go to stderr so stdout stays clean for the protocol.
func RunMCP(_ context.Context, opts ...Option) error {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return fmt.Errorf("config is required")
	}
	cfg := app.config

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	if err := os.MkdirAll(cfg.Uploads.Path, 0o755); err != nil {
		return fmt.Errorf("create uploads dir: %w", err)
	}
	store, err := storage.NewFS(cfg.Uploads.Path)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	reg, err := registry.Open(cfg.Registry.Path)
	if err != nil {
		return fmt.Errorf("init registry: %w", err)
	}
	defer reg.Close()

	embedder, err := embedding.NewOpenAI(cfg.Embedding.BaseURL, cfg.Embedding.Token,
		cfg.Embedding.Model, cfg.Embedding.Dimension, logger)
	if err != nil {
		return fmt.Errorf("init embedder: %w", err)
	}
	index, err := vecindex.NewBolt(cfg.VectorDB.Path, embedder, logger)
	if err != nil {
		return fmt.Errorf("init vector index: %w", err)
	}
	defer index.Close()

	docs := loader.New(loader.ChunkConfig{
		Size:    cfg.Ingest.ChunkSize,
		Overlap: cfg.Ingest.ChunkOverlap,
	})
	mgr, err := ingest.NewManager(store, docs, index, ingest.NewSourceLocks(),
		ingest.WithPoolSize(cfg.Ingest.PoolSize),
		ingest.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("init task manager: %w", err)
	}
	defer mgr.Close()

	engine := reconcile.NewEngine(reg, store, index, mgr, logger)

	logger.Info("MCP server starting on stdio")
	return mcpserver.New(reg, index, engine).ServeStdio()
}
