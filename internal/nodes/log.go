package nodes

import (
	"context"
	"fmt"

	"github.com/hmolina-dev/orquesta/internal/graph"
	"github.com/hmolina-dev/orquesta/internal/registry"
)

// logRegistration writes a message to the run's log and passes it on as
// the node's result.
func logRegistration() registry.Registration {
	return registry.Registration{
		Type: "log",
		Spec: registry.PortSpec{
			Inputs:  []registry.Port{controlIn(), dataIn("message")},
			Outputs: []registry.Port{controlOut(), dataOut("message")},
		},
		Exec: registry.ExecutorFunc(func(_ context.Context, node graph.Node, rc registry.RunContext, inputs map[string]any) (map[string]any, error) {
			msg := inputs["message"]
			level := node.ConfigString("level", "info")

			text := asString(msg)
			if text == "" && msg != nil {
				text = fmt.Sprintf("%v", msg)
			}
			switch level {
			case "debug":
				rc.Logger().Debug(text)
			case "warn":
				rc.Logger().Warn(text)
			case "error":
				rc.Logger().Error(text)
			default:
				rc.Logger().Info(text)
			}
			return map[string]any{"message": msg}, nil
		}),
	}
}
