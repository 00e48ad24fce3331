// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/tiwaz/internal/api"
	"github.com/starford/tiwaz/internal/chat"
	"github.com/starford/tiwaz/internal/embedding"
	"github.com/starford/tiwaz/internal/ingest"
	"github.com/starford/tiwaz/internal/llm"
	"github.com/starford/tiwaz/internal/loader"
	"github.com/starford/tiwaz/internal/reconcile"
	"github.com/starford/tiwaz/internal/registry"
	"github.com/starford/tiwaz/internal/sse"
	"github.com/starford/tiwaz/internal/storage"
	"github.com/starford/tiwaz/internal/vecindex"
)

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	if app.config == nil {
		return fmt.Errorf("config is required")
	}

	cfg := app.config

	// Initialize structured JSON logger.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("uploads_path", cfg.Uploads.Path),
		slog.String("registry_path", cfg.Registry.Path),
		slog.String("vector_db_path", cfg.VectorDB.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Ensure the uploads directory exists.
	if err := os.MkdirAll(cfg.Uploads.Path, 0o755); err != nil {
		return fmt.Errorf("create uploads dir: %w", err)
	}

	// Capability objects, constructed once and passed by reference; nothing
	// below reaches for ambient globals.
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

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	docs := loader.New(loader.ChunkConfig{
		Size:    cfg.Ingest.ChunkSize,
		Overlap: cfg.Ingest.ChunkOverlap,
	})

	mgr, err := ingest.NewManager(store, docs, index, ingest.NewSourceLocks(),
		ingest.WithPoolSize(cfg.Ingest.PoolSize),
		ingest.WithLogger(logger),
		ingest.WithEventCallback(func(taskID string, status ingest.Status) {
			broker.PublishTaskEvent(taskID, string(status))
		}),
	)
	if err != nil {
		return fmt.Errorf("init task manager: %w", err)
	}
	defer mgr.Close()

	engine := reconcile.NewEngine(reg, store, index, mgr, logger)

	generator, err := llm.NewOpenAI(cfg.LLM.BaseURL, cfg.LLM.Token, cfg.LLM.Model)
	if err != nil {
		return fmt.Errorf("init generator: %w", err)
	}
	streamer := chat.NewStreamer(generator, logger)

	// Run an initial reconciliation pass so a restart repairs divergence
	// before serving traffic.
	if _, err := engine.Sync(ctx); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	apiRouter := api.NewRouter(mgr, reg, index, engine, streamer,
		cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// Watch the uploads directory: broadcast file events and repair
	// divergence after out-of-band deletions.
	g.Go(func() error {
		if err := engine.Watch(gCtx, store.Root(), func(kind, name string) {
			broker.PublishFileEvent(kind, name)
		}); err != nil {
			logger.Warn("watcher failed", slog.String("error", err.Error()))
		}
		return nil
	})

	// Evict terminal tasks past the retention window.
	g.Go(func() error {
		mgr.RunEviction(gCtx, cfg.Ingest.EvictionInterval, cfg.Ingest.TaskRetention)
		return nil
	})

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}
