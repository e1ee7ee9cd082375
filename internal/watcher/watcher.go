// Package watcher observes a definitions directory and reports changed
// workflow files so callers can revalidate or reload them.
package watcher

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/hmolina-dev/orquesta/internal/logging"
)

// Handler receives the path of a created or modified definition file.
type Handler func(path string)

// Watcher debounces file-system events on one directory and invokes the
// handler for definition files only.
type Watcher struct {
	dir      string
	debounce time.Duration
	handler  Handler
	logger   *logging.Logger

	mu      sync.Mutex
	pending map[string]*time.Timer
}

// New creates a watcher for dir. A non-positive debounce defaults to
// 250ms.
func New(dir string, debounce time.Duration, handler Handler, logger *logging.Logger) *Watcher {
	if debounce <= 0 {
		debounce = 250 * time.Millisecond
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Watcher{
		dir:      dir,
		debounce: debounce,
		handler:  handler,
		logger:   logger,
		pending:  make(map[string]*time.Timer),
	}
}

// Run watches until the context is cancelled. Events for one path within
// the debounce window collapse into a single handler call.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return err
	}
	w.logger.Info("watching definitions directory", "dir", w.dir)

	for {
		select {
		case <-ctx.Done():
			w.drain()
			return ctx.Err()
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			if !isDefinitionFile(event.Name) {
				continue
			}
			w.schedule(event.Name)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", "error", err)
		}
	}
}

// schedule arms (or re-arms) the debounce timer for one path.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if timer, ok := w.pending[path]; ok {
		timer.Reset(w.debounce)
		return
	}
	w.pending[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()

		w.logger.Debug("definition changed", "path", path)
		w.handler(path)
	})
}

// drain cancels all armed timers.
func (w *Watcher) drain() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, timer := range w.pending {
		timer.Stop()
		delete(w.pending, path)
	}
}

func isDefinitionFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".yaml", ".yml":
		return true
	default:
		return false
	}
}
