package nodes

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/hmolina-dev/orquesta/internal/graph"
	"github.com/hmolina-dev/orquesta/internal/registry"
)

// maxHTTPBodyBytes bounds the response body stored in the run context.
const maxHTTPBodyBytes = 4 << 20

// httpRequestRegistration performs an HTTP call with the node's context,
// so node timeouts and run teardown cut the request off.
func httpRequestRegistration() registry.Registration {
	client := &http.Client{}
	return registry.Registration{
		Type: "http-request",
		Spec: registry.PortSpec{
			Inputs:  []registry.Port{controlIn(), dataIn("body")},
			Outputs: []registry.Port{controlOut(), dataOut("response")},
		},
		Exec: registry.ExecutorFunc(func(ctx context.Context, node graph.Node, _ registry.RunContext, inputs map[string]any) (map[string]any, error) {
			url := node.ConfigString("url", "")
			if url == "" {
				return nil, fmt.Errorf("http-request node %s: missing url", node.ID)
			}
			method := strings.ToUpper(node.ConfigString("method", "GET"))

			var body io.Reader
			if payload := asString(inputs["body"]); payload != "" {
				body = strings.NewReader(payload)
			}

			req, err := http.NewRequestWithContext(ctx, method, url, body)
			if err != nil {
				return nil, fmt.Errorf("http-request node %s: %w", node.ID, err)
			}
			if headers, ok := node.Config["headers"].(map[string]any); ok {
				for k, v := range headers {
					req.Header.Set(k, fmt.Sprintf("%v", v))
				}
			}

			resp, err := client.Do(req)
			if err != nil {
				return nil, fmt.Errorf("http-request node %s: %w", node.ID, err)
			}
			defer resp.Body.Close()

			data, err := io.ReadAll(io.LimitReader(resp.Body, maxHTTPBodyBytes))
			if err != nil {
				return nil, fmt.Errorf("http-request node %s: %w", node.ID, err)
			}

			return map[string]any{
				"status":   resp.StatusCode,
				"response": string(data),
			}, nil
		}),
	}
}
