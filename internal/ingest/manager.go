package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"github.com/starford/tiwaz/internal/apperr"
	"github.com/starford/tiwaz/internal/loader"
	"github.com/starford/tiwaz/internal/storage"
	"github.com/starford/tiwaz/internal/vecindex"
)

// EventCallback is invoked after every task status transition.
type EventCallback func(taskID string, status Status)

// task is the internal mutable record. Only the one worker driving the task
// writes to it after creation; mu guards the snapshot copy taken by readers.
type task struct {
	mu sync.RWMutex
	t  Task
}

func (tk *task) snapshot() Task {
	tk.mu.RLock()
	defer tk.mu.RUnlock()
	snap := tk.t
	snap.Files = append([]string(nil), tk.t.Files...)
	if tk.t.FileErrors != nil {
		snap.FileErrors = make(map[string]string, len(tk.t.FileErrors))
		for k, v := range tk.t.FileErrors {
			snap.FileErrors[k] = v
		}
	}
	return snap
}

// Manager schedules ingestion tasks on a worker pool and exposes status
// polling. Submit never blocks on indexing.
type Manager struct {
	store  storage.Provider
	docs   *loader.Loader
	index  vecindex.Client
	locks  *SourceLocks
	pool   *ants.Pool
	logger *slog.Logger
	onTask EventCallback

	mu    sync.RWMutex
	tasks map[string]*task
}

// Option configures a Manager.
type Option func(*Manager) error

// WithPoolSize sets the worker pool size. Default is 4.
func WithPoolSize(size int) Option {
	return func(m *Manager) error {
		if size < 1 {
			size = 1
		}
		if m.pool != nil {
			m.pool.Release()
		}
		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		m.pool = pool
		return nil
	}
}

// WithEventCallback registers a callback fired on every status transition.
func WithEventCallback(cb EventCallback) Option {
	return func(m *Manager) error {
		m.onTask = cb
		return nil
	}
}

// WithLogger sets a custom logger. Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) error {
		if logger == nil {
			logger = slog.Default()
		}
		m.logger = logger
		return nil
	}
}

// NewManager creates a task manager.
func NewManager(store storage.Provider, docs *loader.Loader, index vecindex.Client, locks *SourceLocks, opts ...Option) (*Manager, error) {
	if store == nil || docs == nil || index == nil {
		return nil, fmt.Errorf("ingest: store, loader, and index are required")
	}
	if locks == nil {
		locks = NewSourceLocks()
	}

	pool, err := ants.NewPool(4)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		store:  store,
		docs:   docs,
		index:  index,
		locks:  locks,
		pool:   pool,
		logger: slog.Default(),
		tasks:  make(map[string]*task),
	}
	for _, opt := range opts {
		if err := opt(m); err != nil {
			m.pool.Release()
			return nil, err
		}
	}
	m.logger = m.logger.With(slog.String("component", "ingest"))
	return m, nil
}

// Close releases the worker pool. Queued tasks are abandoned; in-flight
// workers run to completion.
func (m *Manager) Close() {
	m.pool.Release()
}

// Locks exposes the per-source lock table so that deletions elsewhere can
// serialize against in-flight indexing.
func (m *Manager) Locks() *SourceLocks {
	return m.locks
}

// Submit validates the batch, creates a queued task, and schedules the
// pipeline on the worker pool. It returns the task id immediately.
func (m *Manager) Submit(files []UploadFile) (string, error) {
	if len(files) == 0 {
		return "", fmt.Errorf("ingest: empty batch: %w", apperr.ErrValidation)
	}
	seen := make(map[string]struct{}, len(files))
	for _, f := range files {
		if f.Name == "" {
			return "", fmt.Errorf("ingest: file without a name: %w", apperr.ErrValidation)
		}
		if !loader.Supported(f.Name) {
			return "", fmt.Errorf("ingest: unsupported file type %q: %w", f.Name, apperr.ErrValidation)
		}
		if _, dup := seen[f.Name]; dup {
			return "", fmt.Errorf("ingest: duplicate file %q in batch: %w", f.Name, apperr.ErrValidation)
		}
		seen[f.Name] = struct{}{}
	}

	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.Name
	}

	tk := &task{t: Task{
		ID:        uuid.New().String(),
		Files:     names,
		Status:    StatusQueued,
		CreatedAt: time.Now(),
	}}

	m.mu.Lock()
	m.tasks[tk.t.ID] = tk
	m.mu.Unlock()

	if err := m.pool.Submit(func() { m.run(tk, files) }); err != nil {
		m.mu.Lock()
		delete(m.tasks, tk.t.ID)
		m.mu.Unlock()
		return "", fmt.Errorf("ingest: schedule task: %v: %w", err, apperr.ErrStorage)
	}

	m.logger.Info("task submitted",
		slog.String("task_id", tk.t.ID),
		slog.Int("files", len(files)))
	return tk.t.ID, nil
}

// Status returns a snapshot of the task. Terminal tasks return the same value
// indefinitely, until evicted.
func (m *Manager) Status(taskID string) (Task, error) {
	m.mu.RLock()
	tk, ok := m.tasks[taskID]
	m.mu.RUnlock()
	if !ok {
		return Task{}, fmt.Errorf("ingest: task %s: %w", taskID, apperr.ErrNotFound)
	}
	return tk.snapshot(), nil
}

// run drives one task through the linear state machine. It is the only writer
// of the task after creation.
func (m *Manager) run(tk *task, files []UploadFile) {
	ctx := context.Background()

	// saving_files: persist raw uploads to durable storage.
	m.transition(tk, StatusSavingFiles)
	for _, f := range files {
		if err := m.store.Write(f.Name, f.Data); err != nil {
			m.fail(tk, ReasonStorage, err)
			return
		}
	}

	// loading_documents: per-file parse failures are recorded, not fatal,
	// unless every file in the batch fails.
	m.transition(tk, StatusLoadingDocuments)
	chunksBySource := make(map[string][]loader.Chunk)
	var order []string
	failed := 0
	for _, f := range files {
		chunks, err := m.docs.Load(f.Name, f.Data)
		if err != nil {
			m.recordFileError(tk, f.Name, err)
			failed++
			continue
		}
		chunksBySource[f.Name] = chunks
		order = append(order, f.Name)
	}
	if failed == len(files) {
		m.fail(tk, ReasonParse, fmt.Errorf("ingest: all %d files failed to parse: %w", len(files), apperr.ErrParse))
		return
	}

	// indexing_documents: hold the per-source lock across the upsert so a
	// concurrent delete of the same source cannot interleave.
	m.transition(tk, StatusIndexingDocuments)
	for _, source := range order {
		m.locks.Lock(source)
		count, err := m.index.EmbedAndUpsert(ctx, source, chunksBySource[source])
		m.locks.Unlock(source)
		if err != nil {
			m.fail(tk, ReasonIndex, err)
			return
		}
		m.logger.Debug("source indexed",
			slog.String("task_id", tk.t.ID),
			slog.String("source", source),
			slog.Int("vectors", count))
	}

	m.transition(tk, StatusCompleted)
}

func (m *Manager) transition(tk *task, next Status) {
	tk.mu.Lock()
	tk.t.Status = next
	id := tk.t.ID
	tk.mu.Unlock()

	m.logger.Info("task status", slog.String("task_id", id), slog.String("status", string(next)))
	if m.onTask != nil {
		m.onTask(id, next)
	}
}

func (m *Manager) fail(tk *task, reason string, err error) {
	tk.mu.Lock()
	tk.t.Status = StatusFailed
	tk.t.Error = reason
	id := tk.t.ID
	tk.mu.Unlock()

	m.logger.Error("task failed",
		slog.String("task_id", id),
		slog.String("reason", reason),
		slog.String("error", err.Error()))
	if m.onTask != nil {
		m.onTask(id, StatusFailed)
	}
}

func (m *Manager) recordFileError(tk *task, name string, err error) {
	tk.mu.Lock()
	if tk.t.FileErrors == nil {
		tk.t.FileErrors = make(map[string]string)
	}
	tk.t.FileErrors[name] = err.Error()
	tk.mu.Unlock()

	m.logger.Warn("file skipped",
		slog.String("task_id", tk.t.ID),
		slog.String("file", name),
		slog.String("error", err.Error()))
}

// RunEviction drops terminal tasks older than retention every interval, until
// ctx is cancelled. Polling clients are expected to have read their result
// well within the retention window.
func (m *Manager) RunEviction(ctx context.Context, interval, retention time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.evict(time.Now().Add(-retention))
		}
	}
}

func (m *Manager) evict(cutoff time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, tk := range m.tasks {
		snap := tk.snapshot()
		if snap.Status.Terminal() && snap.CreatedAt.Before(cutoff) {
			delete(m.tasks, id)
			m.logger.Debug("task evicted", slog.String("task_id", id))
		}
	}
}
