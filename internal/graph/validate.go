package graph

import (
	"fmt"
	"strings"
)

// Layouts exposes the port layouts declared at executor registration.
// Implemented by the executor registry; defined here to keep the model
// free of a registry dependency.
type Layouts interface {
	// Layout reports the number of input and output ports declared for a
	// node type, and whether the type is an entry point. ok is false for
	// unregistered types.
	Layout(nodeType string) (inputs, outputs int, entry bool, ok bool)
	// DataInput reports whether the given input port of a node type is a
	// data port. Control ports accept any fan-in; data ports accept one.
	DataInput(nodeType string, portIndex int) bool
}

// ValidationError describes a malformed definition. It is returned
// synchronously from submission; no run is created.
type ValidationError struct {
	DefinitionID string
	Problems     []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid definition %q: %s", e.DefinitionID, strings.Join(e.Problems, "; "))
}

// Validate checks a definition against the registered port layouts.
// Unreachable nodes are permitted; they simply never execute.
func Validate(def *Definition, layouts Layouts) error {
	v := &ValidationError{DefinitionID: def.ID}

	seen := make(map[string]bool, len(def.Nodes))
	entries := 0
	for _, n := range def.Nodes {
		if n.ID == "" {
			v.add("node with empty id")
			continue
		}
		if seen[n.ID] {
			v.add("duplicate node id: %s", n.ID)
		}
		seen[n.ID] = true

		_, _, entry, ok := layouts.Layout(n.Type)
		if !ok {
			v.add("node %s: no executor for type: %s", n.ID, n.Type)
			continue
		}
		if entry {
			entries++
		}
	}
	if entries == 0 {
		v.add("definition has no entry node")
	}
	if entries > 1 {
		v.add("definition has %d entry nodes, want exactly one", entries)
	}

	dataTargets := make(map[Endpoint]int)
	for _, c := range def.Connections {
		from, okFrom := def.Node(c.From.NodeID)
		to, okTo := def.Node(c.To.NodeID)
		if !okFrom {
			v.add("connection %s: unknown source node %s", c.ID, c.From.NodeID)
		}
		if !okTo {
			v.add("connection %s: unknown target node %s", c.ID, c.To.NodeID)
		}
		if !okFrom || !okTo {
			continue
		}

		if _, outputs, _, ok := layouts.Layout(from.Type); ok {
			if c.From.PortIndex < 0 || c.From.PortIndex >= outputs {
				v.add("connection %s: source port %d out of range for type %s", c.ID, c.From.PortIndex, from.Type)
			}
		}
		if inputs, _, _, ok := layouts.Layout(to.Type); ok {
			if c.To.PortIndex < 0 || c.To.PortIndex >= inputs {
				v.add("connection %s: target port %d out of range for type %s", c.ID, c.To.PortIndex, to.Type)
			}
		}

		// Control ports may rejoin branches; only data ports are limited
		// to a single producer.
		if layouts.DataInput(to.Type, c.To.PortIndex) {
			dataTargets[c.To]++
			if dataTargets[c.To] == 2 {
				v.add("input port %d of node %s has multiple incoming connections", c.To.PortIndex, c.To.NodeID)
			}
		}
	}

	if len(v.Problems) > 0 {
		return v
	}
	return nil
}

func (e *ValidationError) add(format string, args ...any) {
	e.Problems = append(e.Problems, fmt.Sprintf(format, args...))
}
