package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/tiwaz/internal/ingest"
	"github.com/starford/tiwaz/internal/reconcile"
	"github.com/starford/tiwaz/internal/registry"
	"github.com/starford/tiwaz/internal/vecindex"
)

const maxUploadBytes = 50 << 20 // 50 MB per ingestion batch

// Handler holds API route handlers.
type Handler struct {
	mgr    *ingest.Manager
	reg    *registry.DB
	index  vecindex.Client
	engine *reconcile.Engine
}

// NewHandler creates a new Handler.
func NewHandler(mgr *ingest.Manager, reg *registry.DB, index vecindex.Client, engine *reconcile.Engine) *Handler {
	return &Handler{mgr: mgr, reg: reg, index: index, engine: engine}
}

// SubmitIngest handles POST /ingest (multipart/form-data, repeated "files"
// fields). The response returns immediately with the new task id; indexing
// continues in the background.
func (h *Handler) SubmitIngest(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "invalid multipart body or batch too large", nil)
		return
	}
	if r.MultipartForm == nil || len(r.MultipartForm.File["files"]) == 0 {
		writeError(w, http.StatusBadRequest, "validation_error", "missing 'files' field in multipart form", nil)
		return
	}

	var files []ingest.UploadFile
	for _, hdr := range r.MultipartForm.File["files"] {
		f, err := hdr.Open()
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_error", "unreadable file part: "+hdr.Filename, nil)
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_error", "unreadable file part: "+hdr.Filename, nil)
			return
		}
		files = append(files, ingest.UploadFile{Name: hdr.Filename, Data: data})
	}

	taskID, err := h.mgr.Submit(files)
	if err != nil {
		writeAppError(w, err)
		return
	}
	task, err := h.mgr.Status(taskID)
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeData(w, http.StatusAccepted, map[string]any{
		"task_id": task.ID,
		"status":  task.Status,
		"files":   task.Files,
	})
}

// IngestStatus handles GET /ingest/status/{task_id}. Terminal tasks report
// the same value indefinitely, until evicted.
func (h *Handler) IngestStatus(w http.ResponseWriter, r *http.Request) {
	task, err := h.mgr.Status(chi.URLParam(r, "task_id"))
	if err != nil {
		writeAppError(w, err)
		return
	}
	body := map[string]any{"status": task.Status}
	if task.Error != "" {
		body["error"] = task.Error
	}
	if len(task.FileErrors) > 0 {
		body["file_errors"] = task.FileErrors
	}
	writeData(w, http.StatusOK, body)
}

// VectorCounts handles GET /sources/vector-counts.
func (h *Handler) VectorCounts(w http.ResponseWriter, r *http.Request) {
	counts, err := h.index.CountsPerSource(r.Context())
	if err != nil {
		writeAppError(w, err)
		return
	}
	sources, err := h.reg.ListAll(r.Context(), counts)
	if err != nil {
		writeAppError(w, err)
		return
	}
	total := 0
	for _, c := range counts {
		total += c
	}
	writeData(w, http.StatusOK, map[string]any{
		"sources":        sources,
		"total_vectors":  total,
		"source_vectors": counts,
	})
}

// GetSelectedSources handles GET /selected-sources.
func (h *Handler) GetSelectedSources(w http.ResponseWriter, r *http.Request) {
	names, err := h.reg.Selected(r.Context())
	if err != nil {
		writeAppError(w, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	writeData(w, http.StatusOK, map[string]any{"sources": names})
}

// SetSelectedSources handles POST /selected-sources.
func (h *Handler) SetSelectedSources(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Sources []string `json:"sources"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "invalid JSON body", nil)
		return
	}
	if req.Sources == nil {
		writeError(w, http.StatusBadRequest, "validation_error", "'sources' is required", nil)
		return
	}
	if err := h.reg.SetSelected(r.Context(), req.Sources); err != nil {
		writeAppError(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"sources": req.Sources})
}

// KnowledgeStatus handles GET /knowledge/status. Read-only: reports the
// three store views and any divergence, without repairing anything.
func (h *Handler) KnowledgeStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.engine.Status(r.Context())
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeData(w, http.StatusOK, status)
}

// KnowledgeSync handles POST /knowledge/sync.
func (h *Handler) KnowledgeSync(w http.ResponseWriter, r *http.Request) {
	report, err := h.engine.Sync(r.Context())
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeData(w, http.StatusOK, report)
}

// DeleteKnowledgeSource handles DELETE /knowledge/sources/{name}: removes the
// source from the selection config, the vector index, and the uploads
// directory.
func (h *Handler) DeleteKnowledgeSource(w http.ResponseWriter, r *http.Request) {
	h.deleteSource(w, r, true)
}

// DeleteSource handles DELETE /sources/{name}: removes the source from the
// selection config and the vector index, leaving the stored file in place.
func (h *Handler) DeleteSource(w http.ResponseWriter, r *http.Request) {
	h.deleteSource(w, r, false)
}

func (h *Handler) deleteSource(w http.ResponseWriter, r *http.Request, removeFile bool) {
	name := chi.URLParam(r, "name")
	if name == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "source name is required", nil)
		return
	}
	if err := h.engine.DeleteSource(r.Context(), name, removeFile); err != nil {
		writeAppError(w, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"deleted": name})
}

// Reindex handles POST /sources/reindex: resubmits every selected source that
// has a file on disk but no vectors.
func (h *Handler) Reindex(w http.ResponseWriter, r *http.Request) {
	scheduled, errs, err := h.engine.ReindexZeroVector(r.Context())
	if err != nil {
		writeAppError(w, err)
		return
	}
	writeData(w, http.StatusAccepted, map[string]any{
		"scheduled": scheduled,
		"errors":    errs,
	})
}
