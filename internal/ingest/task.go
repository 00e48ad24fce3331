// Package ingest owns the asynchronous pipeline from "files received" to
// "vectors indexed".
package ingest

import "time"

// Status is the coarse phase of an ingestion task. Transitions are strictly
// linear; failed may be entered from any non-terminal phase.
type Status string

const (
	StatusQueued            Status = "queued"
	StatusSavingFiles       Status = "saving_files"
	StatusLoadingDocuments  Status = "loading_documents"
	StatusIndexingDocuments Status = "indexing_documents"
	StatusCompleted         Status = "completed"
	StatusFailed            Status = "failed"
)

// Terminal reports whether s is a final state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Failure reasons exposed to polling clients.
const (
	ReasonStorage = "storage"
	ReasonParse   = "parse"
	ReasonIndex   = "index"
)

// UploadFile is one file in a submitted batch.
type UploadFile struct {
	Name string
	Data []byte
}

// Task is the client-visible snapshot of one ingestion run. Files keeps the
// submission order. Error is set only when Status is failed; FileErrors
// records per-file parse failures that did not fail the whole task.
type Task struct {
	ID         string            `json:"task_id"`
	Files      []string          `json:"files"`
	Status     Status            `json:"status"`
	Error      string            `json:"error,omitempty"`
	FileErrors map[string]string `json:"file_errors,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}
