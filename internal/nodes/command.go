package nodes

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/hmolina-dev/orquesta/internal/graph"
	"github.com/hmolina-dev/orquesta/internal/registry"
)

// commandRegistration launches a subprocess. The process handle is
// registered with the run's resource manager, which escalates
// SIGTERM-then-SIGKILL if the process outlives its budget and reaps it
// at run teardown regardless.
func commandRegistration() registry.Registration {
	return registry.Registration{
		Type: "command",
		Spec: registry.PortSpec{
			Inputs:  []registry.Port{controlIn(), dataIn("stdin")},
			Outputs: []registry.Port{controlOut(), dataOut("stdout")},
		},
		Exec: registry.ExecutorFunc(func(ctx context.Context, node graph.Node, rc registry.RunContext, inputs map[string]any) (map[string]any, error) {
			program := node.ConfigString("command", "")
			if program == "" {
				return nil, fmt.Errorf("command node %s: missing command", node.ID)
			}
			var args []string
			if raw, ok := node.Config["args"].([]any); ok {
				for _, a := range raw {
					args = append(args, fmt.Sprintf("%v", a))
				}
			}

			cmd := exec.CommandContext(ctx, program, args...)
			cmd.Dir = rc.AssetsDir()
			if stdin := asString(inputs["stdin"]); stdin != "" {
				cmd.Stdin = bytes.NewBufferString(stdin)
			}
			var stdout, stderr bytes.Buffer
			cmd.Stdout = &stdout
			cmd.Stderr = &stderr

			if err := cmd.Start(); err != nil {
				return nil, fmt.Errorf("command node %s: %w", node.ID, err)
			}

			procName := fmt.Sprintf("%s/%s", rc.RunID(), node.ID)
			budget := time.Duration(node.ConfigInt("timeout_ms", 30000)) * time.Millisecond
			rc.Resources().TrackProcess(procName, cmd.Process, budget)
			defer rc.Resources().UntrackProcess(procName)

			err := cmd.Wait()
			result := map[string]any{
				"stdout":    stdout.String(),
				"stderr":    stderr.String(),
				"exit_code": cmd.ProcessState.ExitCode(),
			}
			if err != nil {
				if _, isExit := err.(*exec.ExitError); isExit && node.ConfigBool("allow_failure", false) {
					return result, nil
				}
				return nil, fmt.Errorf("command node %s: %w", node.ID, err)
			}
			return result, nil
		}),
	}
}
