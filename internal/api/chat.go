package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/tiwaz/internal/chat"
)

// ChatHandler serves the streaming completion endpoints.
type ChatHandler struct {
	streamer *chat.Streamer
}

// NewChatHandler creates a handler over the completion streamer.
func NewChatHandler(streamer *chat.Streamer) *ChatHandler {
	return &ChatHandler{streamer: streamer}
}

// Completions handles POST /chats/{id}/completions. The response is a
// chunked event stream: one "data: <json>" line per event, terminated by the
// literal "data: [DONE]" line. The stream is single-pass; reconnecting starts
// a new completion.
func (h *ChatHandler) Completions(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "id")
	if conversationID == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "conversation id is required", nil)
		return
	}

	var req struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Message == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "'message' is required", nil)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "internal_error", "streaming unsupported", nil)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	events := h.streamer.Stream(r.Context(), conversationID, req.Message)
	for ev := range events {
		payload, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
			// Client went away. Keep draining until the producer closes the
			// channel; its terminal send is blocking and the request context
			// cancellation has already told it to wrap up.
			for range events {
			}
			return
		}
		flusher.Flush()
	}

	_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

// Stop handles POST /chats/{id}/stop, requesting early termination of the
// conversation's in-flight stream.
func (h *ChatHandler) Stop(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "id")
	if conversationID == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "conversation id is required", nil)
		return
	}
	stopped := h.streamer.Stop(conversationID)
	writeData(w, http.StatusOK, map[string]any{"stopped": stopped})
}
