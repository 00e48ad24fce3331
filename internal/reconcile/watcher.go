package reconcile

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FileEventCallback is called for every observed change to a stored upload.
// kind is one of "created", "updated", "deleted".
type FileEventCallback func(kind, name string)

// Watch starts an fsnotify watcher on the uploads directory and processes
// change events until ctx is cancelled. It calls cb (if non-nil) per event
// and schedules a debounced Sync after removals and renames, so orphaned
// vectors and stale selection entries are repaired without waiting for a
// client-triggered sync.
func (e *Engine) Watch(ctx context.Context, root string, cb FileEventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(root); err != nil {
		return err
	}
	e.logger.Info("watcher started", slog.String("root", root))

	// syncTimer debounces reconciliation after remove/rename bursts.
	var syncTimer *time.Timer
	var syncCh <-chan time.Time

	scheduleSync := func() {
		if syncTimer == nil {
			syncTimer = time.NewTimer(500 * time.Millisecond)
			syncCh = syncTimer.C
		} else {
			syncTimer.Reset(500 * time.Millisecond)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if syncTimer != nil {
				syncTimer.Stop()
			}
			e.logger.Info("watcher stopped")
			return nil

		case <-syncCh:
			if _, err := e.Sync(ctx); err != nil {
				e.logger.Warn("watcher sync failed", slog.String("error", err.Error()))
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			name := filepath.Base(ev.Name)
			// Skip dotfiles and the atomic-write temp files.
			if strings.HasPrefix(name, ".") {
				continue
			}

			switch {
			case ev.Op&fsnotify.Create != 0:
				if cb != nil {
					cb("created", name)
				}
			case ev.Op&fsnotify.Write != 0:
				if cb != nil {
					cb("updated", name)
				}
			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				if cb != nil {
					cb("deleted", name)
				}
				scheduleSync()
			}

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			e.logger.Warn("watcher error", slog.String("error", err.Error()))
		}
	}
}
