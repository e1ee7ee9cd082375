package runtime

import (
	"github.com/hmolina-dev/orquesta/internal/graph"
	"github.com/hmolina-dev/orquesta/internal/registry"
)

// resolveInputs computes a node's resolved input map from upstream values
// and static config. For each declared data input port: a connection into
// the port takes the producing node's whole result, or the sub-field
// named after the producer's output port when the result carries one;
// without a connection the node's config field of the same name is the
// fallback. Control ports are never populated. Resolution never mutates
// run state.
func resolveInputs(node graph.Node, spec registry.PortSpec, def *graph.Definition, reg *registry.Registry, ec *ExecContext) map[string]any {
	inputs := make(map[string]any)

	for i, port := range spec.Inputs {
		if port.Kind == registry.KindControl {
			continue
		}

		if conn, ok := def.ConnectionTo(node.ID, i); ok {
			if v, found := ec.Value(conn.From.NodeID); found {
				inputs[port.Name] = narrowToPort(v, conn, def, reg)
				continue
			}
		}

		if v, ok := node.Config[port.Name]; ok {
			inputs[port.Name] = v
		}
	}

	return inputs
}

// narrowToPort projects an upstream result onto the source output port:
// when the producer declared a named data output and its result map has a
// field of that name, the sub-field is delivered instead of the whole
// result.
func narrowToPort(value any, conn graph.Connection, def *graph.Definition, reg *registry.Registry) any {
	m, ok := value.(map[string]any)
	if !ok {
		return value
	}
	src, ok := def.Node(conn.From.NodeID)
	if !ok {
		return value
	}
	srcReg, err := reg.Lookup(src.Type)
	if err != nil || conn.From.PortIndex >= len(srcReg.Spec.Outputs) {
		return value
	}
	out := srcReg.Spec.Outputs[conn.From.PortIndex]
	if out.Kind != registry.KindData || out.Name == "" || out.Name == "main" {
		return value
	}
	if sub, ok := m[out.Name]; ok {
		return sub
	}
	return value
}
