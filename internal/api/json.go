package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/starford/tiwaz/internal/apperr"
)

// dataResponse is the success envelope.
type dataResponse struct {
	Data any `json:"data"`
}

// errBody is the failure envelope payload.
type errBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type errResponse struct {
	Error errBody `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

func writeData(w http.ResponseWriter, status int, v any) {
	writeJSON(w, status, dataResponse{Data: v})
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	writeJSON(w, status, errResponse{Error: errBody{Code: code, Message: message, Details: details}})
}

// writeAppError maps a sentinel-wrapped error onto the failure envelope.
func writeAppError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, apperr.ErrValidation):
		writeError(w, http.StatusBadRequest, "validation_error", err.Error(), nil)
	case errors.Is(err, apperr.ErrParse):
		writeError(w, http.StatusUnprocessableEntity, "parse_error", err.Error(), nil)
	case errors.Is(err, apperr.ErrConflict):
		writeError(w, http.StatusConflict, "conflict", err.Error(), nil)
	case errors.Is(err, apperr.ErrStorage):
		writeError(w, http.StatusServiceUnavailable, "storage_error", err.Error(), nil)
	case errors.Is(err, apperr.ErrEmbedding), errors.Is(err, apperr.ErrIndex):
		writeError(w, http.StatusBadGateway, "index_error", err.Error(), nil)
	default:
		slog.Error("internal error", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error", nil)
	}
}
