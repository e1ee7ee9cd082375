package nodes

import (
	"context"

	"github.com/hmolina-dev/orquesta/internal/graph"
	"github.com/hmolina-dev/orquesta/internal/registry"
)

// loopRegistration declares the bounded-repeat node. The scheduler drives
// the iteration itself: port 0 ("body") is the repeated subgraph, port 1
// ("done") continues after the final pass. The executor below is only a
// placeholder satisfying registration; it never runs for the subgraph.
func loopRegistration() registry.Registration {
	return registry.Registration{
		Type: "loop",
		Kind: registry.KindLoop,
		Spec: registry.PortSpec{
			Inputs: []registry.Port{controlIn()},
			Outputs: []registry.Port{
				{Name: "body", Kind: registry.KindControl},
				{Name: "done", Kind: registry.KindControl},
			},
		},
		Exec: registry.ExecutorFunc(func(_ context.Context, _ graph.Node, _ registry.RunContext, _ map[string]any) (map[string]any, error) {
			return map[string]any{}, nil
		}),
	}
}
