package reconcile

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func TestWatcher_ReportsCreatedFile(t *testing.T) {
	f := newFixture(t)
	root := f.store.Root()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var events []string
	go func() {
		_ = f.engine.Watch(ctx, root, func(kind, name string) {
			mu.Lock()
			events = append(events, kind+":"+name)
			mu.Unlock()
		})
	}()

	time.Sleep(100 * time.Millisecond)

	_ = os.WriteFile(filepath.Join(root, "new.txt"), []byte("hello"), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, e := range events {
			if e == "created:new.txt" {
				return true
			}
		}
		return false
	}, "expected created:new.txt callback")
}

func TestWatcher_IgnoresDotfiles(t *testing.T) {
	f := newFixture(t)
	root := f.store.Root()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var events []string
	go func() {
		_ = f.engine.Watch(ctx, root, func(kind, name string) {
			mu.Lock()
			events = append(events, kind+":"+name)
			mu.Unlock()
		})
	}()

	time.Sleep(100 * time.Millisecond)

	_ = os.WriteFile(filepath.Join(root, ".hidden"), []byte("x"), 0o644)
	_ = os.WriteFile(filepath.Join(root, "visible.txt"), []byte("x"), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, e := range events {
			if e == "created:visible.txt" {
				return true
			}
		}
		return false
	}, "expected created:visible.txt callback")

	mu.Lock()
	defer mu.Unlock()
	for _, e := range events {
		if e == "created:.hidden" {
			t.Errorf("dotfile event observed: %v", events)
		}
	}
}

func TestWatcher_RemovalTriggersSync(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	root := f.store.Root()

	// A selected, indexed source whose file is about to disappear.
	if err := f.store.Write("doomed.txt", []byte("contents")); err != nil {
		t.Fatal(err)
	}
	f.seedVectors(t, "doomed.txt", "contents")
	if err := f.reg.SetSelected(ctx, []string{"doomed.txt"}); err != nil {
		t.Fatal(err)
	}

	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		_ = f.engine.Watch(watchCtx, root, nil)
	}()
	time.Sleep(100 * time.Millisecond)

	_ = os.Remove(filepath.Join(root, "doomed.txt"))

	// The debounced sync should drop the stale selection entry.
	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		selected, err := f.reg.Selected(ctx)
		if err != nil {
			return false
		}
		return len(selected) == 0
	}, "stale selection not repaired after file removal")
}
