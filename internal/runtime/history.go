package runtime

import (
	"sync"
	"time"
)

// HistoryEntry is an immutable summary of a terminated run. It keeps the
// per-node outcome detail so GetRun answers the same questions after the
// run leaves the active set.
type HistoryEntry struct {
	ID             string        `json:"id"`
	Status         Status        `json:"status"`
	Duration       time.Duration `json:"duration"`
	NodeCount      int           `json:"node_count"`
	CompletedNodes []string      `json:"completed_nodes"`
	FailedNode     string        `json:"failed_node,omitempty"`
	StartTime      time.Time     `json:"start_time"`
	EndTime        time.Time     `json:"end_time"`
	Error          string        `json:"error,omitempty"`
}

// MetricsSnapshot aggregates run outcomes. Averages cover the engine's
// lifetime, not just the bounded history window.
type MetricsSnapshot struct {
	TotalRuns       int            `json:"total_runs"`
	CompletedRuns   int            `json:"completed_runs"`
	FailedRuns      int            `json:"failed_runs"`
	StoppedRuns     int            `json:"stopped_runs"`
	SuccessRate     float64        `json:"success_rate"`
	AvgDurationMs   float64        `json:"avg_duration_ms"`
	FailuresByError map[string]int `json:"failures_by_error"`
}

// History is a bounded FIFO buffer of run summaries plus lifetime
// counters for metrics.
type History struct {
	mu      sync.RWMutex
	entries []HistoryEntry
	max     int

	totalRuns     int
	completed     int
	failed        int
	stopped       int
	totalDuration time.Duration
	failuresBy    map[string]int
}

// NewHistory creates a history buffer holding at most max entries.
func NewHistory(max int) *History {
	if max <= 0 {
		max = 500
	}
	return &History{
		entries:    make([]HistoryEntry, 0, max),
		max:        max,
		failuresBy: make(map[string]int),
	}
}

// Add appends a run summary, evicting the oldest entry beyond the cap.
func (h *History) Add(entry HistoryEntry) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.entries = append(h.entries, entry)
	if len(h.entries) > h.max {
		h.entries = h.entries[len(h.entries)-h.max:]
	}

	h.totalRuns++
	switch entry.Status {
	case StatusCompleted:
		h.completed++
		h.totalDuration += entry.Duration
	case StatusError:
		h.failed++
		msg := entry.Error
		if msg == "" {
			msg = "unknown error"
		}
		h.failuresBy[msg]++
	case StatusStopped:
		h.stopped++
	}
}

// Entries returns up to limit summaries, newest first. A non-positive
// limit returns everything retained.
func (h *History) Entries(limit int) []HistoryEntry {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := len(h.entries)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]HistoryEntry, 0, n)
	for i := len(h.entries) - 1; i >= len(h.entries)-n; i-- {
		out = append(out, h.entries[i])
	}
	return out
}

// Find returns the retained summary for a run id.
func (h *History) Find(runID string) (HistoryEntry, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for i := len(h.entries) - 1; i >= 0; i-- {
		if h.entries[i].ID == runID {
			return h.entries[i], true
		}
	}
	return HistoryEntry{}, false
}

// Metrics computes the aggregate metrics snapshot.
func (h *History) Metrics() MetricsSnapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()

	m := MetricsSnapshot{
		TotalRuns:       h.totalRuns,
		CompletedRuns:   h.completed,
		FailedRuns:      h.failed,
		StoppedRuns:     h.stopped,
		FailuresByError: make(map[string]int, len(h.failuresBy)),
	}
	for k, v := range h.failuresBy {
		m.FailuresByError[k] = v
	}
	if h.totalRuns > 0 {
		m.SuccessRate = float64(h.completed) / float64(h.totalRuns)
	}
	if h.completed > 0 {
		m.AvgDurationMs = float64(h.totalDuration.Milliseconds()) / float64(h.completed)
	}
	return m
}
