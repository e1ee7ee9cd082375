// Package runtime implements the workflow execution engine: run admission
// and lifecycle, graph traversal, data-flow resolution, per-node error
// recovery, and guaranteed teardown of resources opened along the way.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	gort "runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/hmolina-dev/orquesta/internal/events"
	"github.com/hmolina-dev/orquesta/internal/graph"
	"github.com/hmolina-dev/orquesta/internal/logging"
	"github.com/hmolina-dev/orquesta/internal/memmon"
	"github.com/hmolina-dev/orquesta/internal/registry"
	"github.com/hmolina-dev/orquesta/internal/resource"
)

// Config bounds the engine's concurrency, time, and memory budgets.
type Config struct {
	MaxConcurrentWorkflows int
	DefaultTimeout         time.Duration
	MaxNodeExecutionTime   time.Duration
	MaxHistorySize         int
	LoopMaxIterations      int
	LoopTimeout            time.Duration
	LoopMemoryCheckEvery   int
	AssetsRoot             string
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentWorkflows: 10,
		DefaultTimeout:         5 * time.Minute,
		MaxNodeExecutionTime:   time.Minute,
		MaxHistorySize:         500,
		LoopMaxIterations:      1000,
		LoopTimeout:            30 * time.Second,
		LoopMemoryCheckEvery:   100,
		AssetsRoot:             os.TempDir(),
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxConcurrentWorkflows <= 0 {
		c.MaxConcurrentWorkflows = d.MaxConcurrentWorkflows
	}
	if c.DefaultTimeout <= 0 {
		c.DefaultTimeout = d.DefaultTimeout
	}
	if c.MaxNodeExecutionTime <= 0 {
		c.MaxNodeExecutionTime = d.MaxNodeExecutionTime
	}
	if c.MaxHistorySize <= 0 {
		c.MaxHistorySize = d.MaxHistorySize
	}
	if c.LoopMaxIterations <= 0 {
		c.LoopMaxIterations = d.LoopMaxIterations
	}
	if c.LoopTimeout <= 0 {
		c.LoopTimeout = d.LoopTimeout
	}
	if c.LoopMemoryCheckEvery <= 0 {
		c.LoopMemoryCheckEvery = d.LoopMemoryCheckEvery
	}
	if c.AssetsRoot == "" {
		c.AssetsRoot = d.AssetsRoot
	}
	return c
}

// Deps are the engine's injected collaborators. Each engine owns its own
// instances; there are no process-wide singletons.
type Deps struct {
	Logger    *logging.Logger
	Registry  *registry.Registry
	Monitor   *memmon.Monitor
	Publisher events.Publisher
}

// Engine admits, schedules, and supervises workflow runs.
type Engine struct {
	cfg       Config
	logger    *logging.Logger
	reg       *registry.Registry
	monitor   *memmon.Monitor
	publisher events.Publisher

	sem     *semaphore.Weighted
	mu      sync.RWMutex
	runs    map[string]*Run
	history *History
	wg      sync.WaitGroup
	closed  atomic.Bool
}

// NewEngine creates an engine with the given configuration and deps.
func NewEngine(cfg Config, deps Deps) *Engine {
	cfg = cfg.withDefaults()
	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	reg := deps.Registry
	if reg == nil {
		reg = registry.New(logger)
	}
	var publisher events.Publisher = deps.Publisher
	if publisher == nil {
		publisher = events.Nop{}
	}

	e := &Engine{
		cfg:       cfg,
		logger:    logger,
		reg:       reg,
		monitor:   deps.Monitor,
		publisher: publisher,
		sem:       semaphore.NewWeighted(int64(cfg.MaxConcurrentWorkflows)),
		runs:      make(map[string]*Run),
		history:   NewHistory(cfg.MaxHistorySize),
	}
	if e.monitor != nil {
		e.monitor.OnCritical(e.aggressiveCleanup)
	}
	return e
}

// Registry exposes the engine's executor registry.
func (e *Engine) Registry() *registry.Registry { return e.reg }

// RegisterNodeType is the extension point for externally implemented
// actions. Registrations are validated; built-in type names win.
func (e *Engine) RegisterNodeType(nodeType string, spec registry.PortSpec, exec registry.Executor) error {
	return e.reg.RegisterPlugin(registry.Registration{Type: nodeType, Spec: spec, Exec: exec})
}

// Validate checks a definition without creating a run.
func (e *Engine) Validate(def *graph.Definition) error {
	return graph.Validate(def, e.reg)
}

// Submit validates and admits a definition as a new run. Malformed graphs
// return *graph.ValidationError and a saturated engine returns
// *CapacityError, both synchronously; no run is created in either case.
func (e *Engine) Submit(def *graph.Definition, initialInputs map[string]any) (string, error) {
	if e.closed.Load() {
		return "", ErrState("engine is shut down")
	}
	if err := graph.Validate(def, e.reg); err != nil {
		return "", err
	}
	if !e.sem.TryAcquire(1) {
		return "", &CapacityError{Active: e.activeCount(), Limit: e.cfg.MaxConcurrentWorkflows}
	}

	runID := uuid.NewString()
	assetsDir := filepath.Join(e.cfg.AssetsRoot, "orquesta-run-"+runID)
	if err := os.MkdirAll(assetsDir, 0o755); err != nil {
		e.sem.Release(1)
		return "", ErrResource("failed to create run assets dir", err)
	}

	runLogger := e.logger.WithRun(runID)
	ec := newExecContext(runID, assetsDir, resource.NewManager(runLogger), runLogger, initialInputs)
	run := newRun(runID, def, ec)

	e.mu.Lock()
	e.runs[runID] = run
	e.mu.Unlock()

	e.publishWorkflow(runID, StatusQueued, "")

	e.wg.Add(1)
	go e.execute(run)
	return runID, nil
}

// execute drives one run to a terminal status and summarizes it.
func (e *Engine) execute(run *Run) {
	defer e.wg.Done()
	defer e.sem.Release(1)

	run.setStatus(StatusRunning)
	e.publishWorkflow(run.id, StatusRunning, "")
	e.logger.Info("run started", "run_id", run.id, "definition_id", run.def.ID)

	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.DefaultTimeout)
	defer cancel()

	err := newWalker(e, run.def, run).walk(ctx)

	var status Status
	var failedNode, errMsg string
	switch {
	case err == nil:
		status = StatusCompleted
	case errors.Is(err, errRunCancelled):
		status = StatusStopped
	case errors.Is(err, errRunTimeout):
		status = StatusError
		errMsg = "execution timeout"
	default:
		status = StatusError
		errMsg = err.Error()
		var nf *nodeFailure
		if errors.As(err, &nf) {
			failedNode = nf.nodeID
			errMsg = nf.err.Error()
		}
	}
	run.finish(status, failedNode, errMsg)

	e.teardown(run)

	snap := run.Snapshot()
	e.history.Add(HistoryEntry{
		ID:             snap.ID,
		Status:         snap.Status,
		Duration:       snap.Duration,
		NodeCount:      len(run.def.Nodes),
		CompletedNodes: snap.CompletedNodes,
		FailedNode:     snap.FailedNode,
		StartTime:      snap.StartTime,
		EndTime:        snap.EndTime,
		Error:          snap.Error,
	})

	e.mu.Lock()
	delete(e.runs, run.id)
	e.mu.Unlock()

	summary := fmt.Sprintf("%d/%d nodes completed", len(snap.CompletedNodes), len(run.def.Nodes))
	e.publishWorkflow(run.id, status, summary)
	e.logger.Info("run finished",
		"run_id", run.id,
		"status", string(status),
		"duration", snap.Duration,
		"failed_node", failedNode,
	)
}

// teardown releases everything a run opened: tracked files and processes
// first, then the run-scoped assets directory.
func (e *Engine) teardown(run *Run) {
	run.ec.Resources().Shutdown()
	if dir := run.ec.AssetsDir(); dir != "" {
		if err := os.RemoveAll(dir); err != nil {
			e.logger.Warn("failed to remove run assets dir", "run_id", run.id, "error", err)
		}
	}
}

// GetRun returns the current snapshot for an active run, or a summary
// snapshot for a terminated run still retained in history.
func (e *Engine) GetRun(runID string) (RunSnapshot, bool) {
	e.mu.RLock()
	run, ok := e.runs[runID]
	e.mu.RUnlock()
	if ok {
		return run.Snapshot(), true
	}

	entry, ok := e.history.Find(runID)
	if !ok {
		return RunSnapshot{}, false
	}
	return RunSnapshot{
		ID:             entry.ID,
		Status:         entry.Status,
		CompletedNodes: entry.CompletedNodes,
		FailedNode:     entry.FailedNode,
		Error:          entry.Error,
		StartTime:      entry.StartTime,
		EndTime:        entry.EndTime,
		Duration:       entry.Duration,
	}, true
}

// Stop requests a cooperative cancellation of an active run. It reports
// false for unknown run ids. An in-flight node call is not interrupted;
// the next yield point honors the request.
func (e *Engine) Stop(runID string) bool {
	e.mu.RLock()
	run, ok := e.runs[runID]
	e.mu.RUnlock()
	if !ok {
		return false
	}
	run.ec.Cancel()
	e.logger.Info("run stop requested", "run_id", runID)
	return true
}

// ActiveRuns returns snapshots of all in-flight runs.
func (e *Engine) ActiveRuns() []RunSnapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]RunSnapshot, 0, len(e.runs))
	for _, run := range e.runs {
		out = append(out, run.Snapshot())
	}
	return out
}

// GetHistory returns up to limit run summaries, newest first.
func (e *Engine) GetHistory(limit int) []HistoryEntry {
	return e.history.Entries(limit)
}

// GetMetrics returns aggregate run metrics.
func (e *Engine) GetMetrics() MetricsSnapshot {
	return e.history.Metrics()
}

// Shutdown stops admission, cancels every active run, and waits for them
// to wind down or the context to expire. Resource teardown of each run
// happens on its own goroutine as it terminates.
func (e *Engine) Shutdown(ctx context.Context) error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}

	e.mu.RLock()
	for _, run := range e.runs {
		run.ec.Cancel()
	}
	e.mu.RUnlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = fmt.Errorf("shutdown timed out with runs still active: %w", ctx.Err())
	}

	if e.monitor != nil {
		e.monitor.Stop()
	}
	return err
}

func (e *Engine) activeCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.runs)
}

// memoryCritical reports whether the monitor's latest sample crossed the
// critical threshold. Engines without a monitor never abort on memory.
func (e *Engine) memoryCritical() bool {
	return e.monitor != nil && e.monitor.Critical()
}

// aggressiveCleanup is invoked by the memory monitor on a critical
// crossing: long-running child processes are reaped, temp files flushed,
// and a collection requested.
func (e *Engine) aggressiveCleanup() {
	e.logger.Warn("memory critical, running aggressive cleanup")

	e.mu.RLock()
	managers := make([]*resource.Manager, 0, len(e.runs))
	for _, run := range e.runs {
		managers = append(managers, run.ec.Resources())
	}
	e.mu.RUnlock()

	killed := 0
	for _, m := range managers {
		killed += m.KillLongRunning(e.cfg.MaxNodeExecutionTime)
		m.FlushTempFiles()
	}
	gort.GC()

	e.logger.Warn("aggressive cleanup finished", "processes_killed", killed)
}

func (e *Engine) publishWorkflow(runID string, status Status, summary string) {
	e.publisher.Publish(events.TopicWorkflowStatus, events.WorkflowStatusPayload{
		RunID:     runID,
		Status:    string(status),
		Timestamp: time.Now(),
		Summary:   summary,
	})
}
