package nodes

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/hmolina-dev/orquesta/internal/graph"
	"github.com/hmolina-dev/orquesta/internal/registry"
)

// maxFileReadBytes bounds how much of a file a read node pulls into the
// run context.
const maxFileReadBytes = 16 << 20

// fileWriteRegistration writes content to a path. Relative paths land in
// the run's assets directory and are flagged as temp files so teardown
// removes them.
func fileWriteRegistration() registry.Registration {
	return registry.Registration{
		Type: "file-write",
		Spec: registry.PortSpec{
			Inputs:  []registry.Port{controlIn(), dataIn("content")},
			Outputs: []registry.Port{controlOut(), dataOut("path")},
		},
		Exec: registry.ExecutorFunc(func(_ context.Context, node graph.Node, rc registry.RunContext, inputs map[string]any) (map[string]any, error) {
			path := node.ConfigString("path", "")
			if path == "" {
				return nil, fmt.Errorf("file-write node %s: missing path", node.ID)
			}
			runScoped := !filepath.IsAbs(path)
			if runScoped {
				path = filepath.Join(rc.AssetsDir(), path)
			}

			content := asString(inputs["content"])
			if content == "" && inputs["content"] != nil {
				content = fmt.Sprintf("%v", inputs["content"])
			}

			f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
			if err != nil {
				return nil, fmt.Errorf("file-write node %s: %w", node.ID, err)
			}
			rc.Resources().TrackFile(path, f)
			if runScoped {
				rc.Resources().TrackTempFile(path)
			}
			defer rc.Resources().Close(path)

			n, err := io.WriteString(f, content)
			if err != nil {
				return nil, fmt.Errorf("file-write node %s: %w", node.ID, err)
			}
			return map[string]any{"path": path, "bytes": n}, nil
		}),
	}
}

// fileReadRegistration reads a file into the run context. Relative paths
// resolve against the run's assets directory.
func fileReadRegistration() registry.Registration {
	return registry.Registration{
		Type: "file-read",
		Spec: registry.PortSpec{
			Inputs:  []registry.Port{controlIn(), dataIn("path")},
			Outputs: []registry.Port{controlOut(), dataOut("content")},
		},
		Exec: registry.ExecutorFunc(func(_ context.Context, node graph.Node, rc registry.RunContext, inputs map[string]any) (map[string]any, error) {
			path := asString(inputs["path"])
			if path == "" {
				path = node.ConfigString("path", "")
			}
			if path == "" {
				return nil, fmt.Errorf("file-read node %s: missing path", node.ID)
			}
			if !filepath.IsAbs(path) {
				path = filepath.Join(rc.AssetsDir(), path)
			}

			f, err := os.Open(path)
			if err != nil {
				return nil, fmt.Errorf("file-read node %s: %w", node.ID, err)
			}
			rc.Resources().TrackFile(path, f)
			defer rc.Resources().Close(path)

			var b strings.Builder
			if _, err := io.Copy(&b, io.LimitReader(f, maxFileReadBytes)); err != nil {
				return nil, fmt.Errorf("file-read node %s: %w", node.ID, err)
			}
			return map[string]any{"path": path, "content": b.String()}, nil
		}),
	}
}
