package runtime

import (
	"github.com/hmolina-dev/orquesta/internal/graph"
)

// PolicyKind is the closed set of per-node error recovery behaviors.
type PolicyKind int

const (
	// PolicyStop fails the run immediately, recording the failed node.
	PolicyStop PolicyKind = iota
	// PolicySkip records the failure but continues along the node's
	// control-flow outputs with an empty result.
	PolicySkip
	// PolicyRetry re-invokes the executor before degrading to stop.
	PolicyRetry
)

// ErrorPolicy is a node's recovery policy. MaxRetries counts additional
// attempts after the first failure: retry with MaxRetries=2 invokes the
// executor at most three times.
type ErrorPolicy struct {
	Kind       PolicyKind
	MaxRetries int
}

// String names the policy for logs and events.
func (p ErrorPolicy) String() string {
	switch p.Kind {
	case PolicySkip:
		return "skip"
	case PolicyRetry:
		return "retry"
	default:
		return "stop"
	}
}

// PolicyFor reads a node's recovery policy. Unknown values fall back to
// stop, the safe default.
func PolicyFor(node graph.Node) ErrorPolicy {
	switch node.OnError {
	case "skip":
		return ErrorPolicy{Kind: PolicySkip}
	case "retry":
		retries := node.MaxRetries
		if retries <= 0 {
			retries = 1
		}
		return ErrorPolicy{Kind: PolicyRetry, MaxRetries: retries}
	default:
		return ErrorPolicy{Kind: PolicyStop}
	}
}
