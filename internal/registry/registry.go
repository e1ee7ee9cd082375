// Package registry maps node type tags to their port layouts and executor
// implementations. Built-in types and externally registered plugins share
// one lookup table; plugins are validated at registration and can never
// shadow a built-in.
package registry

import (
	"context"
	"fmt"
	"sync"

	"github.com/hmolina-dev/orquesta/internal/graph"
	"github.com/hmolina-dev/orquesta/internal/logging"
	"github.com/hmolina-dev/orquesta/internal/resource"
)

// PortKind distinguishes control-flow ports from data ports.
type PortKind string

const (
	// KindControl ports signal "proceed to the next step" and never carry
	// a value into input resolution.
	KindControl PortKind = "control"
	// KindData ports carry values between nodes.
	KindData PortKind = "data"
)

// Port declares one named input or output slot.
type Port struct {
	Name string
	Kind PortKind
}

// PortSpec declares a node type's full port layout. Port indices used by
// connections refer to positions in these slices.
type PortSpec struct {
	Inputs  []Port
	Outputs []Port
}

// NodeKind tells the scheduler how to treat a node after execution.
type NodeKind int

const (
	// KindAction nodes execute once and hand control to every outgoing
	// control connection.
	KindAction NodeKind = iota
	// KindEntry nodes start a run. Exactly one entry node per definition.
	KindEntry
	// KindBranch nodes select a single output control port via the
	// reserved "port" key of their result.
	KindBranch
	// KindLoop nodes bound a subgraph that the scheduler re-executes.
	KindLoop
)

// RunContext is the executor-facing view of a run's mutable state.
// Implemented by the runtime package.
type RunContext interface {
	RunID() string
	// Variable reads a run-scoped shared variable.
	Variable(key string) (any, bool)
	// SetVariable writes a run-scoped shared variable.
	SetVariable(key string, value any)
	// Value returns the last output produced by a node in this run.
	Value(nodeID string) (any, bool)
	// AssetsDir is a run-scoped temporary directory, removed at run end.
	AssetsDir() string
	// Cancelled reports whether a cooperative stop was requested.
	Cancelled() bool
	// Resources tracks files and processes opened by executors so the
	// engine can guarantee their release.
	Resources() *resource.Manager
	Logger() *logging.Logger
}

// Executor implements a node type's behavior. The returned map is the
// node's result, stored in the run context and visible to downstream
// data ports.
type Executor interface {
	Execute(ctx context.Context, node graph.Node, rc RunContext, inputs map[string]any) (map[string]any, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, node graph.Node, rc RunContext, inputs map[string]any) (map[string]any, error)

// Execute implements Executor.
func (f ExecutorFunc) Execute(ctx context.Context, node graph.Node, rc RunContext, inputs map[string]any) (map[string]any, error) {
	return f(ctx, node, rc, inputs)
}

// Registration bundles everything the engine needs to know about one
// node type.
type Registration struct {
	Type string
	Kind NodeKind
	Spec PortSpec
	Exec Executor
}

// NotFoundError is returned when no executor is registered for a type.
type NotFoundError struct {
	Type string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no executor for type: %s", e.Type)
}

// Registry is the shared lookup table. Safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Registration
	builtin map[string]bool
	logger  *logging.Logger
}

// New creates an empty registry.
func New(logger *logging.Logger) *Registry {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Registry{
		entries: make(map[string]Registration),
		builtin: make(map[string]bool),
		logger:  logger,
	}
}

// Register installs a built-in node type. Re-registering a built-in type
// replaces the previous entry.
func (r *Registry) Register(reg Registration) error {
	if err := validateRegistration(reg); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[reg.Type] = reg
	r.builtin[reg.Type] = true
	return nil
}

// RegisterPlugin installs an externally supplied node type. The
// registration is all-or-nothing: a missing type, port spec, or executor
// rejects the whole entry. A plugin that names an existing built-in type
// is ignored; the built-in wins.
func (r *Registry) RegisterPlugin(reg Registration) error {
	if err := validateRegistration(reg); err != nil {
		return fmt.Errorf("plugin rejected: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.builtin[reg.Type] {
		r.logger.Warn("plugin attempted to shadow built-in node type, ignoring", "type", reg.Type)
		return nil
	}
	r.entries[reg.Type] = reg
	return nil
}

func validateRegistration(reg Registration) error {
	if reg.Type == "" {
		return fmt.Errorf("registration missing type")
	}
	if len(reg.Spec.Inputs) == 0 && len(reg.Spec.Outputs) == 0 {
		return fmt.Errorf("registration %s missing port spec", reg.Type)
	}
	if reg.Exec == nil {
		return fmt.Errorf("registration %s missing executor", reg.Type)
	}
	return nil
}

// Lookup resolves a node type to its registration.
func (r *Registry) Lookup(nodeType string) (Registration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.entries[nodeType]
	if !ok {
		return Registration{}, &NotFoundError{Type: nodeType}
	}
	return reg, nil
}

// Types returns the registered type names, built-in and plugin alike.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.entries))
	for t := range r.entries {
		out = append(out, t)
	}
	return out
}

// Layout implements graph.Layouts.
func (r *Registry) Layout(nodeType string) (inputs, outputs int, entry bool, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, found := r.entries[nodeType]
	if !found {
		return 0, 0, false, false
	}
	return len(reg.Spec.Inputs), len(reg.Spec.Outputs), reg.Kind == KindEntry, true
}

// DataInput implements graph.Layouts.
func (r *Registry) DataInput(nodeType string, portIndex int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, found := r.entries[nodeType]
	if !found || portIndex < 0 || portIndex >= len(reg.Spec.Inputs) {
		return false
	}
	return reg.Spec.Inputs[portIndex].Kind == KindData
}
