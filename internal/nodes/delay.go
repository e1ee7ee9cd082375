package nodes

import (
	"context"
	"time"

	"github.com/hmolina-dev/orquesta/internal/graph"
	"github.com/hmolina-dev/orquesta/internal/registry"
)

// delayRegistration pauses the run. The wait is a timer racing against
// the node's context, so timeouts and shutdown still win.
func delayRegistration() registry.Registration {
	return registry.Registration{
		Type: "delay",
		Spec: registry.PortSpec{
			Inputs:  []registry.Port{controlIn()},
			Outputs: []registry.Port{controlOut()},
		},
		Exec: registry.ExecutorFunc(func(ctx context.Context, node graph.Node, _ registry.RunContext, _ map[string]any) (map[string]any, error) {
			ms := node.ConfigInt("duration_ms", 1000)
			timer := time.NewTimer(time.Duration(ms) * time.Millisecond)
			defer timer.Stop()

			select {
			case <-timer.C:
				return map[string]any{"waited_ms": ms}, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}),
	}
}
