// Package apperr defines the sentinel errors shared across the application.
package apperr

import "errors"

var (
	// ErrNotFound marks an unknown task id or source name.
	ErrNotFound = errors.New("not found")
	// ErrValidation marks a malformed request, rejected before any task is created.
	ErrValidation = errors.New("validation failed")
	// ErrStorage marks an unreachable filesystem or database.
	ErrStorage = errors.New("storage unavailable")
	// ErrParse marks a file that could not be turned into chunks.
	ErrParse = errors.New("parse failed")
	// ErrEmbedding marks a failure of the embedding capability.
	ErrEmbedding = errors.New("embedding failed")
	// ErrIndex marks a failure of the vector index.
	ErrIndex = errors.New("index operation failed")
	// ErrConflict marks a state conflict between concurrent operations.
	ErrConflict = errors.New("conflict")
)
