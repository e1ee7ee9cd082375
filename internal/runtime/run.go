package runtime

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/hmolina-dev/orquesta/internal/graph"
	"github.com/hmolina-dev/orquesta/internal/logging"
	"github.com/hmolina-dev/orquesta/internal/resource"
)

// Status is the lifecycle state of a run.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
	StatusStopped   Status = "stopped"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError || s == StatusStopped
}

// Run is one live execution instance of a definition.
type Run struct {
	mu             sync.RWMutex
	id             string
	def            *graph.Definition
	ec             *ExecContext
	status         Status
	completedNodes map[string]bool
	failedNode     string
	errMsg         string
	startTime      time.Time
	endTime        time.Time
}

func newRun(id string, def *graph.Definition, ec *ExecContext) *Run {
	return &Run{
		id:             id,
		def:            def,
		ec:             ec,
		status:         StatusQueued,
		completedNodes: make(map[string]bool),
		startTime:      time.Now(),
	}
}

func (r *Run) setStatus(s Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.status.Terminal() {
		return
	}
	r.status = s
	if s.Terminal() {
		r.endTime = time.Now()
	}
}

func (r *Run) finish(s Status, failedNode, errMsg string) {
	r.mu.Lock()
	if !r.status.Terminal() {
		r.status = s
		r.failedNode = failedNode
		r.errMsg = errMsg
		r.endTime = time.Now()
	}
	r.mu.Unlock()
}

func (r *Run) markCompleted(nodeID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completedNodes[nodeID] = true
}

// Status returns the current lifecycle state.
func (r *Run) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

// RunSnapshot is a point-in-time copy of a run's observable state.
type RunSnapshot struct {
	ID             string        `json:"id"`
	DefinitionID   string        `json:"definition_id"`
	Status         Status        `json:"status"`
	CompletedNodes []string      `json:"completed_nodes"`
	FailedNode     string        `json:"failed_node,omitempty"`
	Error          string        `json:"error,omitempty"`
	StartTime      time.Time     `json:"start_time"`
	EndTime        time.Time     `json:"end_time,omitempty"`
	Duration       time.Duration `json:"duration"`
}

// Snapshot captures the run's current observable state.
func (r *Run) Snapshot() RunSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	completed := make([]string, 0, len(r.completedNodes))
	for id := range r.completedNodes {
		completed = append(completed, id)
	}

	duration := time.Since(r.startTime)
	if !r.endTime.IsZero() {
		duration = r.endTime.Sub(r.startTime)
	}

	return RunSnapshot{
		ID:             r.id,
		DefinitionID:   r.def.ID,
		Status:         r.status,
		CompletedNodes: completed,
		FailedNode:     r.failedNode,
		Error:          r.errMsg,
		StartTime:      r.startTime,
		EndTime:        r.endTime,
		Duration:       duration,
	}
}

// ExecContext is the mutable per-run state shared by all nodes of a run.
// It implements registry.RunContext.
type ExecContext struct {
	runID     string
	assetsDir string
	resources *resource.Manager
	logger    *logging.Logger

	mu        sync.RWMutex
	variables map[string]any
	values    map[string]any

	cancelled atomic.Bool
}

func newExecContext(runID, assetsDir string, res *resource.Manager, logger *logging.Logger, initial map[string]any) *ExecContext {
	vars := make(map[string]any, len(initial))
	for k, v := range initial {
		vars[k] = v
	}
	return &ExecContext{
		runID:     runID,
		assetsDir: assetsDir,
		resources: res,
		logger:    logger,
		variables: vars,
		values:    make(map[string]any),
	}
}

// RunID returns the owning run's id.
func (ec *ExecContext) RunID() string { return ec.runID }

// Variable reads a run-scoped shared variable.
func (ec *ExecContext) Variable(key string) (any, bool) {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	v, ok := ec.variables[key]
	return v, ok
}

// SetVariable writes a run-scoped shared variable.
func (ec *ExecContext) SetVariable(key string, value any) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.variables[key] = value
}

// Value returns the last output produced by a node in this run.
func (ec *ExecContext) Value(nodeID string) (any, bool) {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	v, ok := ec.values[nodeID]
	return v, ok
}

// setValue stores a node's result. Written at most once per traversal
// visit; loop iterations overwrite prior passes.
func (ec *ExecContext) setValue(nodeID string, value any) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.values[nodeID] = value
}

// AssetsDir is the run-scoped temporary storage location.
func (ec *ExecContext) AssetsDir() string { return ec.assetsDir }

// Cancelled reports whether a cooperative stop was requested.
func (ec *ExecContext) Cancelled() bool { return ec.cancelled.Load() }

// Cancel requests a cooperative stop. The next yield point honors it; an
// in-flight node call is not interrupted.
func (ec *ExecContext) Cancel() { ec.cancelled.Store(true) }

// Resources returns the run's resource manager.
func (ec *ExecContext) Resources() *resource.Manager { return ec.resources }

// Logger returns the run-scoped logger.
func (ec *ExecContext) Logger() *logging.Logger { return ec.logger }
