// Package resource guarantees cleanup of OS resources opened by node
// executors: file handles, temp files, and child processes. A Manager is
// shared state across concurrent runs; all mutations are mutex-guarded.
package resource

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/hmolina-dev/orquesta/internal/logging"
)

// FileHandle records one tracked open file.
type FileHandle struct {
	Path     string
	Closer   io.Closer
	OpenedAt time.Time
	closed   bool
}

// Manager tracks files, temp files, and child processes for one engine.
// Engines own their Manager; there is no process-wide singleton.
type Manager struct {
	mu        sync.Mutex
	logger    *logging.Logger
	files     map[string]*FileHandle
	tempFiles map[string]struct{}
	processes map[string]*trackedProcess
	grace     time.Duration
}

// Option configures a Manager.
type Option func(*Manager)

// WithKillGrace sets the window between the graceful termination signal
// and the forced kill.
func WithKillGrace(d time.Duration) Option {
	return func(m *Manager) { m.grace = d }
}

// NewManager creates a resource manager.
func NewManager(logger *logging.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	m := &Manager{
		logger:    logger,
		files:     make(map[string]*FileHandle),
		tempFiles: make(map[string]struct{}),
		processes: make(map[string]*trackedProcess),
		grace:     3 * time.Second,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// TrackFile records an open handle for guaranteed release. Re-tracking a
// path closes the previously tracked handle first.
func (m *Manager) TrackFile(path string, closer io.Closer) {
	m.mu.Lock()
	prev := m.files[path]
	m.files[path] = &FileHandle{Path: path, Closer: closer, OpenedAt: time.Now()}
	m.mu.Unlock()

	if prev != nil && !prev.closed {
		m.closeHandle(prev)
	}
}

// TrackTempFile marks a path for deletion at cleanup.
func (m *Manager) TrackTempFile(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tempFiles[path] = struct{}{}
}

// Close closes a tracked handle. Idempotent: the underlying Close runs at
// most once, and failures are logged rather than returned.
func (m *Manager) Close(path string) {
	m.mu.Lock()
	h, ok := m.files[path]
	if !ok || h.closed {
		m.mu.Unlock()
		return
	}
	h.closed = true
	m.mu.Unlock()

	m.closeHandle(h)
}

func (m *Manager) closeHandle(h *FileHandle) {
	if h.Closer == nil {
		return
	}
	if err := h.Closer.Close(); err != nil {
		m.logger.Warn("failed to close tracked file", "path", h.Path, "error", err)
	}
}

// OpenFiles returns the number of tracked, not-yet-closed handles.
func (m *Manager) OpenFiles() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, h := range m.files {
		if !h.closed {
			n++
		}
	}
	return n
}

// FlushTempFiles deletes every tracked temp file, tolerating paths that
// are already gone.
func (m *Manager) FlushTempFiles() {
	m.mu.Lock()
	paths := make([]string, 0, len(m.tempFiles))
	for p := range m.tempFiles {
		paths = append(paths, p)
	}
	m.tempFiles = make(map[string]struct{})
	m.mu.Unlock()

	for _, p := range paths {
		if err := os.RemoveAll(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			m.logger.Warn("failed to delete temp file", "path", p, "error", err)
		}
	}
}

// Cleanup closes every tracked handle and deletes every tracked temp
// file. Called at run end and again at engine shutdown; both are safe.
func (m *Manager) Cleanup() {
	m.mu.Lock()
	var open []*FileHandle
	for _, h := range m.files {
		if !h.closed {
			h.closed = true
			open = append(open, h)
		}
	}
	m.files = make(map[string]*FileHandle)
	m.mu.Unlock()

	for _, h := range open {
		m.closeHandle(h)
	}
	m.FlushTempFiles()
}

// Shutdown releases everything: files, temp files, and processes.
func (m *Manager) Shutdown() {
	m.Cleanup()
	m.KillAll()
}
