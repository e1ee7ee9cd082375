package runtime

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hmolina-dev/orquesta/internal/events"
	"github.com/hmolina-dev/orquesta/internal/graph"
	"github.com/hmolina-dev/orquesta/internal/logging"
	"github.com/hmolina-dev/orquesta/internal/nodes"
	"github.com/hmolina-dev/orquesta/internal/registry"
)

// capture records every published event for assertions.
type capture struct {
	mu   sync.Mutex
	msgs []events.Message
}

func (c *capture) Publish(topic string, payload any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, events.Message{Topic: topic, Payload: payload})
}

// nodeStatuses returns the status sequence published for one node.
func (c *capture) nodeStatuses(nodeID string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, m := range c.msgs {
		if p, ok := m.Payload.(events.NodeStatusPayload); ok && p.NodeID == nodeID {
			out = append(out, p.Status)
		}
	}
	return out
}

// nodeResult returns the last result published for a node at a status.
func (c *capture) nodeResult(nodeID, status string) any {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out any
	for _, m := range c.msgs {
		if p, ok := m.Payload.(events.NodeStatusPayload); ok && p.NodeID == nodeID && p.Status == status {
			out = p.Result
		}
	}
	return out
}

func (c *capture) workflowStatuses(runID string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, m := range c.msgs {
		if p, ok := m.Payload.(events.WorkflowStatusPayload); ok && p.RunID == runID {
			out = append(out, p.Status)
		}
	}
	return out
}

func newTestEngine(t *testing.T, cfg Config) (*Engine, *capture) {
	t.Helper()
	reg := registry.New(logging.NewNop())
	require.NoError(t, nodes.RegisterBuiltins(reg))
	cap := &capture{}
	if cfg.AssetsRoot == "" {
		cfg.AssetsRoot = t.TempDir()
	}
	e := NewEngine(cfg, Deps{Logger: logging.NewNop(), Registry: reg, Publisher: cap})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = e.Shutdown(ctx)
	})
	return e, cap
}

func waitTerminal(t *testing.T, e *Engine, runID string) RunSnapshot {
	t.Helper()
	var snap RunSnapshot
	require.Eventually(t, func() bool {
		s, ok := e.GetRun(runID)
		if !ok {
			return false
		}
		snap = s
		return s.Status.Terminal()
	}, 5*time.Second, 5*time.Millisecond)
	return snap
}

func conn(id, from string, fromPort int, to string, toPort int) graph.Connection {
	return graph.Connection{
		ID:   id,
		From: graph.Endpoint{NodeID: from, PortIndex: fromPort},
		To:   graph.Endpoint{NodeID: to, PortIndex: toPort},
	}
}

func controlOnlySpec() registry.PortSpec {
	return registry.PortSpec{
		Inputs:  []registry.Port{{Name: "main", Kind: registry.KindControl}},
		Outputs: []registry.Port{{Name: "main", Kind: registry.KindControl}},
	}
}

func TestEngine_StartLogEnd(t *testing.T) {
	e, cap := newTestEngine(t, Config{})

	def := &graph.Definition{
		ID: "wf-log",
		Nodes: []graph.Node{
			{ID: "Start", Type: "start"},
			{ID: "WriteLog", Type: "log", Config: map[string]any{"message": "hi"}},
		},
		Connections: []graph.Connection{
			conn("c1", "Start", 0, "WriteLog", 0),
		},
	}

	runID, err := e.Submit(def, nil)
	require.NoError(t, err)

	snap := waitTerminal(t, e, runID)
	assert.Equal(t, StatusCompleted, snap.Status)

	result, ok := cap.nodeResult("WriteLog", "completed").(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "hi", result["message"])

	statuses := cap.workflowStatuses(runID)
	assert.Equal(t, []string{"queued", "running", "completed"}, statuses)
}

func TestEngine_SubmitRejectsInvalidDefinition(t *testing.T) {
	e, _ := newTestEngine(t, Config{})

	def := &graph.Definition{
		ID:    "wf-no-entry",
		Nodes: []graph.Node{{ID: "OnlyLog", Type: "log"}},
	}

	_, err := e.Submit(def, nil)
	var verr *graph.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Empty(t, e.ActiveRuns(), "rejected submissions must not create runs")
}

func TestEngine_CapacityLimit(t *testing.T) {
	e, _ := newTestEngine(t, Config{MaxConcurrentWorkflows: 2})

	release := make(chan struct{})
	err := e.RegisterNodeType("block", controlOnlySpec(),
		registry.ExecutorFunc(func(ctx context.Context, _ graph.Node, _ registry.RunContext, _ map[string]any) (map[string]any, error) {
			select {
			case <-release:
				return nil, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}))
	require.NoError(t, err)

	def := &graph.Definition{
		ID: "wf-block",
		Nodes: []graph.Node{
			{ID: "Start", Type: "start"},
			{ID: "Block", Type: "block"},
		},
		Connections: []graph.Connection{
			conn("c1", "Start", 0, "Block", 0),
		},
	}

	id1, err := e.Submit(def, nil)
	require.NoError(t, err)
	id2, err := e.Submit(def, nil)
	require.NoError(t, err)

	_, err = e.Submit(def, nil)
	var cerr *CapacityError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, 2, cerr.Limit)
	assert.Contains(t, cerr.Error(), "concurrent workflow limit reached")

	close(release)
	waitTerminal(t, e, id1)
	waitTerminal(t, e, id2)

	// Capacity is handed back as runs terminate.
	var id3 string
	require.Eventually(t, func() bool {
		id, err := e.Submit(def, nil)
		if err != nil {
			return false
		}
		id3 = id
		return true
	}, 5*time.Second, 5*time.Millisecond)
	waitTerminal(t, e, id3)
}

func TestEngine_StopIsCooperative(t *testing.T) {
	e, cap := newTestEngine(t, Config{})

	gate := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once
	err := e.RegisterNodeType("pause", controlOnlySpec(),
		registry.ExecutorFunc(func(ctx context.Context, _ graph.Node, _ registry.RunContext, _ map[string]any) (map[string]any, error) {
			once.Do(func() { close(started) })
			select {
			case <-gate:
				return nil, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}))
	require.NoError(t, err)

	def := &graph.Definition{
		ID: "wf-stop",
		Nodes: []graph.Node{
			{ID: "Start", Type: "start"},
			{ID: "Pause", Type: "pause"},
			{ID: "Tail", Type: "log", Config: map[string]any{"message": "never"}},
		},
		Connections: []graph.Connection{
			conn("c1", "Start", 0, "Pause", 0),
			conn("c2", "Pause", 0, "Tail", 0),
		},
	}

	runID, err := e.Submit(def, nil)
	require.NoError(t, err)

	<-started
	require.True(t, e.Stop(runID))
	close(gate)

	snap := waitTerminal(t, e, runID)
	assert.Equal(t, StatusStopped, snap.Status)
	assert.Empty(t, cap.nodeStatuses("Tail"), "nodes after the stop point must not run")

	assert.False(t, e.Stop("no-such-run"))
}

func TestEngine_RunTimeout(t *testing.T) {
	e, _ := newTestEngine(t, Config{DefaultTimeout: 50 * time.Millisecond})

	err := e.RegisterNodeType("hang", controlOnlySpec(),
		registry.ExecutorFunc(func(ctx context.Context, _ graph.Node, _ registry.RunContext, _ map[string]any) (map[string]any, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}))
	require.NoError(t, err)

	def := &graph.Definition{
		ID: "wf-timeout",
		Nodes: []graph.Node{
			{ID: "Start", Type: "start"},
			{ID: "Hang", Type: "hang"},
		},
		Connections: []graph.Connection{
			conn("c1", "Start", 0, "Hang", 0),
		},
	}

	runID, err := e.Submit(def, nil)
	require.NoError(t, err)

	snap := waitTerminal(t, e, runID)
	assert.Equal(t, StatusError, snap.Status)
	assert.Equal(t, "execution timeout", snap.Error)
}

func TestEngine_NodeTimeoutIsScoped(t *testing.T) {
	e, _ := newTestEngine(t, Config{
		DefaultTimeout:       5 * time.Second,
		MaxNodeExecutionTime: 30 * time.Millisecond,
	})

	err := e.RegisterNodeType("slow", controlOnlySpec(),
		registry.ExecutorFunc(func(ctx context.Context, _ graph.Node, _ registry.RunContext, _ map[string]any) (map[string]any, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}))
	require.NoError(t, err)

	def := &graph.Definition{
		ID: "wf-node-timeout",
		Nodes: []graph.Node{
			{ID: "Start", Type: "start"},
			{ID: "Slow", Type: "slow"},
		},
		Connections: []graph.Connection{
			conn("c1", "Start", 0, "Slow", 0),
		},
	}

	runID, err := e.Submit(def, nil)
	require.NoError(t, err)

	snap := waitTerminal(t, e, runID)
	assert.Equal(t, StatusError, snap.Status)
	assert.Equal(t, "Slow", snap.FailedNode)
	assert.Contains(t, snap.Error, "node execution timeout")
}

func TestEngine_ShutdownStopsAdmission(t *testing.T) {
	e, _ := newTestEngine(t, Config{})

	def := &graph.Definition{
		ID:    "wf-after-shutdown",
		Nodes: []graph.Node{{ID: "Start", Type: "start"}},
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, e.Shutdown(ctx))

	_, err := e.Submit(def, nil)
	require.Error(t, err)
	assert.Equal(t, ErrCatState, Category(err))

	// Shutdown is idempotent.
	require.NoError(t, e.Shutdown(ctx))
}

func TestEngine_HistoryAndMetrics(t *testing.T) {
	e, _ := newTestEngine(t, Config{})

	good := &graph.Definition{
		ID:    "wf-good",
		Nodes: []graph.Node{{ID: "Start", Type: "start"}},
	}
	err := e.RegisterNodeType("boom", controlOnlySpec(),
		registry.ExecutorFunc(func(_ context.Context, node graph.Node, _ registry.RunContext, _ map[string]any) (map[string]any, error) {
			return nil, ErrExecution(node.ID, "boom")
		}))
	require.NoError(t, err)
	bad := &graph.Definition{
		ID: "wf-bad",
		Nodes: []graph.Node{
			{ID: "Start", Type: "start"},
			{ID: "Boom", Type: "boom"},
		},
		Connections: []graph.Connection{
			conn("c1", "Start", 0, "Boom", 0),
		},
	}

	goodID, err := e.Submit(good, nil)
	require.NoError(t, err)
	waitTerminal(t, e, goodID)
	badID, err := e.Submit(bad, nil)
	require.NoError(t, err)
	waitTerminal(t, e, badID)

	entries := e.GetHistory(0)
	require.Len(t, entries, 2)
	assert.Equal(t, badID, entries[0].ID, "history is newest first")
	assert.Equal(t, goodID, entries[1].ID)

	m := e.GetMetrics()
	assert.Equal(t, 2, m.TotalRuns)
	assert.Equal(t, 1, m.CompletedRuns)
	assert.Equal(t, 1, m.FailedRuns)
	assert.InDelta(t, 0.5, m.SuccessRate, 0.001)

	// Terminated runs stay queryable through history.
	snap, ok := e.GetRun(goodID)
	require.True(t, ok)
	assert.Equal(t, StatusCompleted, snap.Status)
	_, ok = e.GetRun("unknown")
	assert.False(t, ok)
}

func TestEngine_TerminalSnapshotRetainsNodeDetail(t *testing.T) {
	e, _ := newTestEngine(t, Config{})

	def := &graph.Definition{
		ID: "wf-detail",
		Nodes: []graph.Node{
			{ID: "Start", Type: "start"},
			{ID: "WriteLog", Type: "log", Config: map[string]any{"message": "hi"}},
		},
		Connections: []graph.Connection{
			conn("c1", "Start", 0, "WriteLog", 0),
		},
	}
	runID, err := e.Submit(def, nil)
	require.NoError(t, err)
	waitTerminal(t, e, runID)

	// Once the run leaves the active set, GetRun answers from history and
	// must still carry the per-node outcome.
	require.Eventually(t, func() bool {
		return len(e.ActiveRuns()) == 0
	}, 5*time.Second, 5*time.Millisecond)

	snap, ok := e.GetRun(runID)
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"Start", "WriteLog"}, snap.CompletedNodes)
	assert.Empty(t, snap.FailedNode)

	err = e.RegisterNodeType("kaboom", controlOnlySpec(),
		registry.ExecutorFunc(func(_ context.Context, node graph.Node, _ registry.RunContext, _ map[string]any) (map[string]any, error) {
			return nil, ErrExecution(node.ID, "kaboom")
		}))
	require.NoError(t, err)
	bad := &graph.Definition{
		ID: "wf-detail-bad",
		Nodes: []graph.Node{
			{ID: "Start", Type: "start"},
			{ID: "Kaboom", Type: "kaboom"},
		},
		Connections: []graph.Connection{
			conn("c1", "Start", 0, "Kaboom", 0),
		},
	}
	badID, err := e.Submit(bad, nil)
	require.NoError(t, err)
	waitTerminal(t, e, badID)
	require.Eventually(t, func() bool {
		return len(e.ActiveRuns()) == 0
	}, 5*time.Second, 5*time.Millisecond)

	snap, ok = e.GetRun(badID)
	require.True(t, ok)
	assert.Equal(t, "Kaboom", snap.FailedNode)
	assert.ElementsMatch(t, []string{"Start"}, snap.CompletedNodes)

	entries := e.GetHistory(1)
	require.Len(t, entries, 1)
	assert.Equal(t, "Kaboom", entries[0].FailedNode)
}

func TestEngine_PluginRegistration(t *testing.T) {
	e, _ := newTestEngine(t, Config{})

	err := e.RegisterNodeType("", controlOnlySpec(), nil)
	assert.Error(t, err, "incomplete plugin registrations are rejected whole")

	// A plugin naming a built-in type is ignored, not installed.
	err = e.RegisterNodeType("start", controlOnlySpec(),
		registry.ExecutorFunc(func(_ context.Context, _ graph.Node, _ registry.RunContext, _ map[string]any) (map[string]any, error) {
			return nil, ErrExecution("start", "shadowed")
		}))
	require.NoError(t, err)

	def := &graph.Definition{
		ID:    "wf-builtin-wins",
		Nodes: []graph.Node{{ID: "Start", Type: "start"}},
	}
	runID, err := e.Submit(def, nil)
	require.NoError(t, err)
	snap := waitTerminal(t, e, runID)
	assert.Equal(t, StatusCompleted, snap.Status)
}
