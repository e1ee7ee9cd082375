package runtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hmolina-dev/orquesta/internal/events"
	"github.com/hmolina-dev/orquesta/internal/graph"
	"github.com/hmolina-dev/orquesta/internal/registry"
)

// errRunCancelled is the cooperative-stop sentinel checked at yield
// points: before each node dispatch and before each loop iteration.
var errRunCancelled = errors.New("run cancelled")

// errRunTimeout marks the overall run budget as exhausted.
var errRunTimeout = &DomainError{Category: ErrCatTimeout, Message: "execution timeout"}

// nodeFailure carries the node id that forced a run to error.
type nodeFailure struct {
	nodeID string
	err    error
}

// Error implements the error interface.
func (f *nodeFailure) Error() string {
	return fmt.Sprintf("node %s failed: %v", f.nodeID, f.err)
}

// Unwrap returns the node's underlying error.
func (f *nodeFailure) Unwrap() error { return f.err }

// walker drives one run: a depth-first walk of the taken branches of the
// control-flow graph, starting at the entry node. A run is a single
// logical thread of control; only separate runs interleave.
type walker struct {
	engine *Engine
	def    *graph.Definition
	run    *Run

	// onPath guards against cycles outside loop nodes: an edge back to a
	// node still on the current DFS path is skipped, not followed.
	onPath map[string]bool

	// lastValue is the most recently stored node result, used for loop
	// iteration aggregation.
	lastValue any
}

func newWalker(e *Engine, def *graph.Definition, run *Run) *walker {
	return &walker{
		engine: e,
		def:    def,
		run:    run,
		onPath: make(map[string]bool),
	}
}

func (w *walker) walk(ctx context.Context) error {
	entry, err := w.findEntry()
	if err != nil {
		return err
	}
	return w.visit(ctx, *entry)
}

// findEntry locates the definition's entry node. Validation guarantees
// exactly one exists.
func (w *walker) findEntry() (*graph.Node, error) {
	for i := range w.def.Nodes {
		reg, err := w.engine.reg.Lookup(w.def.Nodes[i].Type)
		if err != nil {
			continue
		}
		if reg.Kind == registry.KindEntry {
			return &w.def.Nodes[i], nil
		}
	}
	return nil, ErrState("definition has no entry node")
}

// visit executes one node and recurses into its taken successors.
func (w *walker) visit(ctx context.Context, node graph.Node) error {
	if w.run.ec.Cancelled() {
		return errRunCancelled
	}
	if ctx.Err() != nil {
		return errRunTimeout
	}
	if w.onPath[node.ID] {
		w.engine.logger.Warn("cycle outside loop node, skipping edge",
			"run_id", w.run.id, "node_id", node.ID)
		return nil
	}
	w.onPath[node.ID] = true
	defer delete(w.onPath, node.ID)

	reg, err := w.engine.reg.Lookup(node.Type)
	if err != nil {
		return &nodeFailure{nodeID: node.ID, err: err}
	}

	inputs := resolveInputs(node, reg.Spec, w.def, w.engine.reg, w.run.ec)
	w.publishNode(node.ID, "running", nil)

	var result map[string]any
	var execErr error
	if reg.Kind == registry.KindLoop {
		result, execErr = w.runLoop(ctx, node, reg, inputs)
	} else {
		result, execErr = w.executeWithRetry(ctx, node, reg, inputs)
	}

	if execErr != nil {
		if isFatal(execErr) {
			return execErr
		}
		var nf *nodeFailure
		if errors.As(execErr, &nf) {
			// A body node already went through its own policy.
			return execErr
		}
		if Category(execErr) == ErrCatTimeout {
			// Exhausted time budgets force the run to error regardless of
			// the node's recovery policy.
			w.publishNode(node.ID, "failed", map[string]any{"error": execErr.Error()})
			return &nodeFailure{nodeID: node.ID, err: execErr}
		}
		if PolicyFor(node).Kind == PolicySkip {
			w.engine.logger.Warn("node failed, skipping",
				"run_id", w.run.id, "node_id", node.ID, "error", execErr)
			w.publishNode(node.ID, "skipped", nil)
			result = map[string]any{}
		} else {
			w.publishNode(node.ID, "failed", map[string]any{"error": execErr.Error()})
			return &nodeFailure{nodeID: node.ID, err: execErr}
		}
	} else {
		w.run.markCompleted(node.ID)
		w.publishNode(node.ID, "completed", result)
	}

	w.run.ec.setValue(node.ID, result)
	w.lastValue = result

	for _, conn := range w.successors(node, reg, result) {
		next, ok := w.def.Node(conn.To.NodeID)
		if !ok {
			continue
		}
		if err := w.visit(ctx, *next); err != nil {
			return err
		}
	}
	return nil
}

// successors selects the outgoing control connections to follow. Branch
// nodes follow only the port their result selected; loop nodes follow
// the done port after iteration; everything else follows every control
// output.
func (w *walker) successors(node graph.Node, reg registry.Registration, result map[string]any) []graph.Connection {
	switch reg.Kind {
	case registry.KindBranch:
		return w.controlConns(node, reg, selectedPort(result))
	case registry.KindLoop:
		return w.controlConns(node, reg, donePort(reg))
	default:
		var out []graph.Connection
		for i, port := range reg.Spec.Outputs {
			if port.Kind != registry.KindControl {
				continue
			}
			out = append(out, w.def.ConnectionsFrom(node.ID, i)...)
		}
		return out
	}
}

// controlConns returns the control connections leaving one output port.
func (w *walker) controlConns(node graph.Node, reg registry.Registration, portIndex int) []graph.Connection {
	if portIndex < 0 || portIndex >= len(reg.Spec.Outputs) {
		return nil
	}
	if reg.Spec.Outputs[portIndex].Kind != registry.KindControl {
		return nil
	}
	return w.def.ConnectionsFrom(node.ID, portIndex)
}

// selectedPort reads the branch decision from a result's reserved "port"
// key. Port 0 is the default when absent.
func selectedPort(result map[string]any) int {
	switch v := result["port"].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

// bodyPort returns the loop output port driving the repeated subgraph.
func bodyPort(reg registry.Registration) int {
	for i, p := range reg.Spec.Outputs {
		if p.Name == "body" {
			return i
		}
	}
	return 0
}

// donePort returns the loop output port followed after the final
// iteration.
func donePort(reg registry.Registration) int {
	for i, p := range reg.Spec.Outputs {
		if p.Name == "done" {
			return i
		}
	}
	if len(reg.Spec.Outputs) > 1 {
		return 1
	}
	return 0
}

// executeWithRetry invokes a node's executor under its recovery policy.
// MaxRetries counts additional attempts after the first failure.
func (w *walker) executeWithRetry(ctx context.Context, node graph.Node, reg registry.Registration, inputs map[string]any) (map[string]any, error) {
	policy := PolicyFor(node)
	attempts := 1
	if policy.Kind == PolicyRetry {
		attempts += policy.MaxRetries
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if w.run.ec.Cancelled() {
			return nil, errRunCancelled
		}
		result, err := w.invoke(ctx, node, reg, inputs)
		if err == nil {
			return result, nil
		}
		if isFatal(err) {
			return nil, err
		}
		if Category(err) == ErrCatTimeout {
			// Time budgets are not retried.
			return nil, err
		}
		lastErr = err
		if attempt < attempts {
			w.engine.logger.Warn("node failed, retrying",
				"run_id", w.run.id, "node_id", node.ID,
				"attempt", attempt, "max_attempts", attempts, "error", err)
		}
	}
	return nil, lastErr
}

// invoke runs the executor once under the per-node time budget.
func (w *walker) invoke(ctx context.Context, node graph.Node, reg registry.Registration, inputs map[string]any) (map[string]any, error) {
	nodeCtx := ctx
	if w.engine.cfg.MaxNodeExecutionTime > 0 {
		var cancel context.CancelFunc
		nodeCtx, cancel = context.WithTimeout(ctx, w.engine.cfg.MaxNodeExecutionTime)
		defer cancel()
	}

	result, err := reg.Exec.Execute(nodeCtx, node, w.run.ec, inputs)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, errRunTimeout
		}
		if nodeCtx.Err() == context.DeadlineExceeded {
			return nil, &DomainError{
				Category: ErrCatTimeout,
				NodeID:   node.ID,
				Message:  "node execution timeout",
			}
		}
		return nil, err
	}
	if result == nil {
		result = map[string]any{}
	}
	return result, nil
}

// runLoop re-executes the loop node's body subgraph under its iteration,
// wall-clock, and memory budgets. The stored result is an aggregate;
// per-iteration child writes are overwritten each pass.
func (w *walker) runLoop(ctx context.Context, node graph.Node, reg registry.Registration, inputs map[string]any) (map[string]any, error) {
	cfg := w.engine.cfg

	maxIter := node.ConfigInt("max_iterations", cfg.LoopMaxIterations)
	if maxIter <= 0 {
		maxIter = cfg.LoopMaxIterations
	}
	ceiling := time.Duration(node.ConfigInt("timeout_ms", 0)) * time.Millisecond
	if ceiling <= 0 {
		ceiling = cfg.LoopTimeout
	}
	whileVar := node.ConfigString("while_variable", "")

	bodyConns := w.controlConns(node, reg, bodyPort(reg))
	warnAt := maxIter * 4 / 5
	warned := false
	start := time.Now()
	iterations := 0
	results := make([]any, 0, min(maxIter, 64))

	for i := 0; i < maxIter; i++ {
		if w.run.ec.Cancelled() {
			return nil, errRunCancelled
		}
		if ctx.Err() != nil {
			return nil, errRunTimeout
		}
		if time.Since(start) > ceiling {
			return nil, &DomainError{
				Category: ErrCatTimeout,
				NodeID:   node.ID,
				Message:  fmt.Sprintf("loop exceeded time ceiling of %s", ceiling),
			}
		}
		if cfg.LoopMemoryCheckEvery > 0 && i > 0 && i%cfg.LoopMemoryCheckEvery == 0 && w.engine.memoryCritical() {
			return nil, ErrResource("loop aborted: memory critical", nil)
		}
		if !warned && warnAt > 0 && i >= warnAt {
			warned = true
			w.engine.logger.Warn("loop consumed 80% of its iteration budget",
				"run_id", w.run.id, "node_id", node.ID,
				"iteration", i, "max_iterations", maxIter)
		}
		if whileVar != "" && !truthyVariable(w.run.ec, whileVar) {
			break
		}

		for _, conn := range bodyConns {
			next, ok := w.def.Node(conn.To.NodeID)
			if !ok {
				continue
			}
			if err := w.visit(ctx, *next); err != nil {
				return nil, err
			}
		}

		iterations++
		if len(bodyConns) == 0 {
			results = append(results, map[string]any{"iteration": i})
		} else {
			results = append(results, w.lastValue)
		}
	}

	return map[string]any{
		"iterations": iterations,
		"durationMs": time.Since(start).Milliseconds(),
		"results":    results,
	}, nil
}

func truthyVariable(ec *ExecContext, name string) bool {
	v, ok := ec.Variable(name)
	if !ok {
		return false
	}
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t != "" && t != "false" && t != "0"
	case int:
		return t != 0
	case int64:
		return t != 0
	case float64:
		return t != 0
	default:
		return v != nil
	}
}

// isFatal reports errors that bypass per-node recovery policy: the
// cooperative stop and the overall run timeout.
func isFatal(err error) bool {
	return errors.Is(err, errRunCancelled) || errors.Is(err, errRunTimeout)
}

func (w *walker) publishNode(nodeID, status string, result any) {
	w.engine.publisher.Publish(events.TopicNodeStatus, events.NodeStatusPayload{
		RunID:     w.run.id,
		NodeID:    nodeID,
		Status:    status,
		Timestamp: time.Now(),
		Result:    result,
	})
}
