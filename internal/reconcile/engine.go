// Package reconcile detects and repairs divergence between the three views of
// knowledge state: the selection config, the uploads directory, and the
// vector index.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/starford/tiwaz/internal/ingest"
	"github.com/starford/tiwaz/internal/registry"
	"github.com/starford/tiwaz/internal/storage"
	"github.com/starford/tiwaz/internal/vecindex"
)

// Report is the result of one sync run. Computed per run; never persisted.
type Report struct {
	Indexed           []string          `json:"indexed"`
	RemovedFromConfig []string          `json:"removed_from_config"`
	RemovedVectors    []string          `json:"removed_vectors"`
	Errors            map[string]string `json:"errors"`
}

// StatusReport is the read-only diagnostic view returned by Status.
type StatusReport struct {
	Config  []string `json:"config"`
	Files   []string `json:"files"`
	Vectors []string `json:"vectors"`
	Issues  []string `json:"issues"`
	Summary string   `json:"summary"`
}

// Engine computes and applies corrective actions across the three stores.
// Reads are best-effort snapshots; there is no cross-store lock. A source
// mutated between two snapshot reads may be misclassified for one run and is
// corrected on the next, which is safe because every action is idempotent.
type Engine struct {
	reg    *registry.DB
	store  storage.Provider
	index  vecindex.Client
	mgr    *ingest.Manager
	logger *slog.Logger
}

// NewEngine creates a reconciliation engine.
func NewEngine(reg *registry.DB, store storage.Provider, index vecindex.Client, mgr *ingest.Manager, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		reg:    reg,
		store:  store,
		index:  index,
		mgr:    mgr,
		logger: logger.With(slog.String("component", "reconcile")),
	}
}

// snapshots reads the three stores at approximately the same time.
func (e *Engine) snapshots(ctx context.Context) (config, files map[string]struct{}, counts map[string]int, err error) {
	selected, err := e.reg.Selected(ctx)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("reconcile: read config: %w", err)
	}
	infos, err := e.store.List()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("reconcile: list files: %w", err)
	}
	counts, err = e.index.CountsPerSource(ctx)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("reconcile: read vector counts: %w", err)
	}

	config = make(map[string]struct{}, len(selected))
	for _, n := range selected {
		config[n] = struct{}{}
	}
	files = make(map[string]struct{}, len(infos))
	for _, fi := range infos {
		files[fi.Name] = struct{}{}
	}
	return config, files, counts, nil
}

// Sync classifies every name appearing in any store and applies the
// corrective action for its class. Actions are independent per source; a
// failure is recorded in the report and does not block the remaining sources.
// Running Sync twice with no intervening changes yields an empty report the
// second time.
func (e *Engine) Sync(ctx context.Context) (*Report, error) {
	config, files, counts, err := e.snapshots(ctx)
	if err != nil {
		return nil, err
	}

	names := make(map[string]struct{})
	for n := range config {
		names[n] = struct{}{}
	}
	for n := range files {
		names[n] = struct{}{}
	}
	for n := range counts {
		names[n] = struct{}{}
	}

	report := &Report{
		Indexed:           []string{},
		RemovedFromConfig: []string{},
		RemovedVectors:    []string{},
		Errors:            map[string]string{},
	}

	for _, name := range sortedNames(names) {
		_, inConfig := config[name]
		_, onDisk := files[name]
		hasVectors := counts[name] > 0

		switch {
		case inConfig && onDisk && !hasVectors:
			// Selected and present on disk but missing vectors: re-index
			// through the task manager so the usual pipeline discipline
			// (per-source lock, idempotent upsert) applies.
			if err := e.reindex(name); err != nil {
				report.Errors[name] = err.Error()
				continue
			}
			report.Indexed = append(report.Indexed, name)

		case inConfig && !onDisk:
			// The backing file is gone; the selection entry is stale.
			if err := e.reg.Deselect(ctx, name); err != nil {
				report.Errors[name] = err.Error()
				continue
			}
			report.RemovedFromConfig = append(report.RemovedFromConfig, name)

		case !inConfig && !onDisk && hasVectors:
			// Vectors with no config entry and no file are orphans.
			locks := e.mgr.Locks()
			locks.Lock(name)
			err := e.index.DeleteSource(ctx, name)
			locks.Unlock(name)
			if err != nil {
				report.Errors[name] = err.Error()
				continue
			}
			report.RemovedVectors = append(report.RemovedVectors, name)

		default:
			// Consistent, or a file present but unselected: no action.
		}
	}

	e.logger.Info("sync complete",
		slog.Int("indexed", len(report.Indexed)),
		slog.Int("removed_from_config", len(report.RemovedFromConfig)),
		slog.Int("removed_vectors", len(report.RemovedVectors)),
		slog.Int("errors", len(report.Errors)))
	return report, nil
}

// reindex submits the stored file back through the ingestion pipeline.
func (e *Engine) reindex(name string) error {
	data, err := e.store.Read(name)
	if err != nil {
		return err
	}
	_, err = e.mgr.Submit([]ingest.UploadFile{{Name: name, Data: data}})
	return err
}

// Status reports the three store views and the issues a Sync run would act
// on, without applying anything.
func (e *Engine) Status(ctx context.Context) (*StatusReport, error) {
	config, files, counts, err := e.snapshots(ctx)
	if err != nil {
		return nil, err
	}

	vectors := make(map[string]struct{}, len(counts))
	for n, c := range counts {
		if c > 0 {
			vectors[n] = struct{}{}
		}
	}

	var issues []string
	names := make(map[string]struct{})
	for n := range config {
		names[n] = struct{}{}
	}
	for n := range files {
		names[n] = struct{}{}
	}
	for n := range vectors {
		names[n] = struct{}{}
	}
	for _, name := range sortedNames(names) {
		_, inConfig := config[name]
		_, onDisk := files[name]
		_, hasVectors := vectors[name]
		switch {
		case inConfig && onDisk && !hasVectors:
			issues = append(issues, fmt.Sprintf("%s: selected but not indexed", name))
		case inConfig && !onDisk:
			issues = append(issues, fmt.Sprintf("%s: selected but file missing", name))
		case !inConfig && !onDisk && hasVectors:
			issues = append(issues, fmt.Sprintf("%s: orphaned vectors", name))
		}
	}
	if issues == nil {
		issues = []string{}
	}

	return &StatusReport{
		Config:  sortedNames(config),
		Files:   sortedNames(files),
		Vectors: sortedNames(vectors),
		Issues:  issues,
		Summary: fmt.Sprintf("%d selected, %d files, %d indexed, %d issues",
			len(config), len(files), len(vectors), len(issues)),
	}, nil
}

// DeleteSource removes a source from the selection config and the vector
// index, and optionally the stored file. Partial failures are reported; the
// remaining removals are still attempted.
func (e *Engine) DeleteSource(ctx context.Context, name string, removeFile bool) error {
	locks := e.mgr.Locks()
	locks.Lock(name)
	defer locks.Unlock(name)

	var firstErr error
	if err := e.reg.Deselect(ctx, name); err != nil {
		firstErr = err
	}
	if err := e.index.DeleteSource(ctx, name); err != nil && firstErr == nil {
		firstErr = err
	}
	if removeFile {
		if ok, _ := e.store.Exists(name); ok {
			if err := e.store.Delete(name); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	if firstErr != nil {
		return fmt.Errorf("reconcile: delete %s: %w", name, firstErr)
	}
	e.logger.Info("source deleted", slog.String("source", name), slog.Bool("file_removed", removeFile))
	return nil
}

// ReindexZeroVector resubmits every selected source that exists on disk but
// has no vectors. Returns the names scheduled for re-indexing.
func (e *Engine) ReindexZeroVector(ctx context.Context) ([]string, map[string]string, error) {
	config, files, counts, err := e.snapshots(ctx)
	if err != nil {
		return nil, nil, err
	}

	scheduled := []string{}
	errs := map[string]string{}
	for _, name := range sortedNames(config) {
		if _, onDisk := files[name]; !onDisk || counts[name] > 0 {
			continue
		}
		if err := e.reindex(name); err != nil {
			errs[name] = err.Error()
			continue
		}
		scheduled = append(scheduled, name)
	}
	return scheduled, errs, nil
}

func sortedNames(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for n := range set {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
