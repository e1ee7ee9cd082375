package nodes

import (
	"context"

	"github.com/hmolina-dev/orquesta/internal/graph"
	"github.com/hmolina-dev/orquesta/internal/registry"
)

// startRegistration declares the single entry point of every definition.
// Config values become run variables, seeding downstream nodes.
func startRegistration() registry.Registration {
	return registry.Registration{
		Type: "start",
		Kind: registry.KindEntry,
		Spec: registry.PortSpec{
			Outputs: []registry.Port{controlOut()},
		},
		Exec: registry.ExecutorFunc(func(_ context.Context, node graph.Node, rc registry.RunContext, _ map[string]any) (map[string]any, error) {
			for key, value := range node.Config {
				if _, exists := rc.Variable(key); !exists {
					rc.SetVariable(key, value)
				}
			}
			return map[string]any{"started": true}, nil
		}),
	}
}
