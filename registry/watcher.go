package registry

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/opspay/payroll/internal/logger"
)

// Watcher reloads rule set documents when they change on disk. Rapid event
// bursts are debounced into a single reload per file. A broken edit keeps
// the engine that was loaded before it.
type Watcher struct {
	registry *Registry
	watcher  *fsnotify.Watcher
	debounce time.Duration

	mu      sync.Mutex
	pending map[string]*time.Timer
}

// NewWatcher creates a watcher over dir for the given registry. dir and all
// of its subdirectories are watched for .jsonc changes.
func NewWatcher(registry *Registry, dir string, debounce time.Duration) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	w := &Watcher{
		registry: registry,
		watcher:  fsw,
		debounce: debounce,
		pending:  make(map[string]*time.Timer),
	}

	if err := w.addDirs(dir); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

func (w *Watcher) addDirs(dir string) error {
	matches, err := filepath.Glob(filepath.Join(dir, "*"))
	if err != nil {
		return err
	}
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	for _, m := range matches {
		if isDir(m) {
			if err := w.addDirs(m); err != nil {
				return err
			}
		}
	}
	return nil
}

// Run processes filesystem events until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	logger.Info("rule set watcher started", "debounce_ms", w.debounce.Milliseconds())

	for {
		select {
		case <-ctx.Done():
			logger.Info("rule set watcher stopped")
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if !w.shouldProcess(event) {
				continue
			}
			w.schedule(event.Name)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			// Keep watching despite transient errors.
			logger.Error("rule set watcher error", "error", err)
		}
	}
}

// Close stops the underlying filesystem watcher and cancels pending
// reloads.
func (w *Watcher) Close() error {
	w.mu.Lock()
	for path, t := range w.pending {
		t.Stop()
		delete(w.pending, path)
	}
	w.mu.Unlock()
	return w.watcher.Close()
}

func (w *Watcher) shouldProcess(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return false
	}
	if strings.HasPrefix(filepath.Base(event.Name), ".") {
		return false
	}
	return filepath.Ext(event.Name) == ".jsonc"
}

// schedule arms (or re-arms) the per-file debounce timer.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.pending[path]; ok {
		t.Stop()
	}
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()

		if !fileExists(path) {
			return
		}
		logger.Info("reloading rule set", "path", path)
		if err := w.registry.LoadFile(path); err != nil {
			logger.Error("rule set reload failed, keeping previous engine",
				"path", path,
				"error", err,
			)
		}
	})
}
