package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/tiwaz/internal/chat"
	"github.com/starford/tiwaz/internal/ingest"
	"github.com/starford/tiwaz/internal/reconcile"
	"github.com/starford/tiwaz/internal/registry"
	"github.com/starford/tiwaz/internal/vecindex"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(mgr *ingest.Manager, reg *registry.DB, index vecindex.Client, engine *reconcile.Engine,
	streamer *chat.Streamer, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(mgr, reg, index, engine)
	ch := NewChatHandler(streamer)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Ingestion.
	r.Post("/ingest", h.SubmitIngest)
	r.Get("/ingest/status/{task_id}", h.IngestStatus)

	// Sources.
	r.Get("/sources/vector-counts", h.VectorCounts)
	r.Post("/sources/reindex", h.Reindex)
	r.Delete("/sources/{name}", h.DeleteSource)
	r.Get("/selected-sources", h.GetSelectedSources)
	r.Post("/selected-sources", h.SetSelectedSources)

	// Knowledge reconciliation.
	r.Get("/knowledge/status", h.KnowledgeStatus)
	r.Post("/knowledge/sync", h.KnowledgeSync)
	r.Delete("/knowledge/sources/{name}", h.DeleteKnowledgeSource)

	// Streaming chat.
	r.Post("/chats/{id}/completions", ch.Completions)
	r.Post("/chats/{id}/stop", ch.Stop)

	// SSE event feed (protected by the same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
