// Package events defines the lifecycle notification contract and an
// in-process pub/sub implementation. The engine publishes workflow and
// node status changes; what sits behind the Publisher (a push channel, a
// queue, a log) is the caller's business.
package events

import "time"

// Topics published by the engine.
const (
	TopicWorkflowStatus = "workflow.status"
	TopicNodeStatus     = "node.status"
)

// Publisher is the transport-agnostic notification sink.
type Publisher interface {
	Publish(topic string, payload any)
}

// WorkflowStatusPayload is the payload for workflow-level events.
type WorkflowStatusPayload struct {
	RunID     string    `json:"run_id"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Summary   string    `json:"summary,omitempty"`
}

// NodeStatusPayload is the payload for node-level events.
type NodeStatusPayload struct {
	RunID     string    `json:"run_id"`
	NodeID    string    `json:"node_id"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Result    any       `json:"result,omitempty"`
}

// Nop is a Publisher that discards everything. Useful default for tests
// and callers that do not observe events.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(string, any) {}
