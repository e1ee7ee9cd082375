package nodes

import (
	"context"
	"fmt"

	"github.com/hmolina-dev/orquesta/internal/graph"
	"github.com/hmolina-dev/orquesta/internal/registry"
)

// setVariableRegistration writes a run-scoped variable visible to every
// later node of the run.
func setVariableRegistration() registry.Registration {
	return registry.Registration{
		Type: "set-variable",
		Spec: registry.PortSpec{
			Inputs:  []registry.Port{controlIn(), dataIn("value")},
			Outputs: []registry.Port{controlOut()},
		},
		Exec: registry.ExecutorFunc(func(_ context.Context, node graph.Node, rc registry.RunContext, inputs map[string]any) (map[string]any, error) {
			name := node.ConfigString("name", "")
			if name == "" {
				return nil, fmt.Errorf("set-variable node %s: missing variable name", node.ID)
			}
			value, ok := inputs["value"]
			if !ok {
				value = node.Config["value"]
			}
			rc.SetVariable(name, value)
			return map[string]any{"name": name, "value": value}, nil
		}),
	}
}
