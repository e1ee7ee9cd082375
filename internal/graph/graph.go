// Package graph holds the immutable workflow definition model: nodes,
// connections, and structural validation against registered port layouts.
package graph

// Definition is an immutable workflow graph supplied by the caller.
type Definition struct {
	ID          string       `json:"id" yaml:"id"`
	Name        string       `json:"name,omitempty" yaml:"name,omitempty"`
	Nodes       []Node       `json:"nodes" yaml:"nodes"`
	Connections []Connection `json:"connections" yaml:"connections"`
}

// Node is a single step in a workflow. Its port layout is declared by the
// executor registered for Type, not stored on the node.
type Node struct {
	ID     string         `json:"id" yaml:"id"`
	Type   string         `json:"type" yaml:"type"`
	Name   string         `json:"name,omitempty" yaml:"name,omitempty"`
	Config map[string]any `json:"config,omitempty" yaml:"config,omitempty"`

	// OnError selects the recovery policy: "stop" (default), "skip" or "retry".
	OnError    string `json:"on_error,omitempty" yaml:"on_error,omitempty"`
	MaxRetries int    `json:"max_retries,omitempty" yaml:"max_retries,omitempty"`
}

// Endpoint addresses one port of one node.
type Endpoint struct {
	NodeID    string `json:"node_id" yaml:"node_id"`
	PortIndex int    `json:"port_index" yaml:"port_index"`
}

// Connection is a directed edge between two ports.
type Connection struct {
	ID   string   `json:"id" yaml:"id"`
	From Endpoint `json:"from" yaml:"from"`
	To   Endpoint `json:"to" yaml:"to"`
}

// Node returns the node with the given id.
func (d *Definition) Node(id string) (*Node, bool) {
	for i := range d.Nodes {
		if d.Nodes[i].ID == id {
			return &d.Nodes[i], true
		}
	}
	return nil, false
}

// ConnectionsFrom returns all connections originating at the given node,
// optionally restricted to one output port index.
func (d *Definition) ConnectionsFrom(nodeID string, portIndex int) []Connection {
	var out []Connection
	for _, c := range d.Connections {
		if c.From.NodeID == nodeID && (portIndex < 0 || c.From.PortIndex == portIndex) {
			out = append(out, c)
		}
	}
	return out
}

// ConnectionTo returns the connection terminating at the given input port,
// if any. Definitions with several connections into one data port are
// rejected by Validate, so the first match is authoritative.
func (d *Definition) ConnectionTo(nodeID string, portIndex int) (Connection, bool) {
	for _, c := range d.Connections {
		if c.To.NodeID == nodeID && c.To.PortIndex == portIndex {
			return c, true
		}
	}
	return Connection{}, false
}

// ConfigString reads a string config value with a fallback.
func (n *Node) ConfigString(key, fallback string) string {
	if v, ok := n.Config[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return fallback
}

// ConfigInt reads an integer config value with a fallback. JSON decoding
// yields float64 for numbers, so both forms are accepted.
func (n *Node) ConfigInt(key string, fallback int) int {
	switch v := n.Config[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return fallback
	}
}

// ConfigBool reads a boolean config value with a fallback.
func (n *Node) ConfigBool(key string, fallback bool) bool {
	if v, ok := n.Config[key].(bool); ok {
		return v
	}
	return fallback
}
