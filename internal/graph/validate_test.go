package graph

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeLayouts declares fixed port layouts for validation tests.
type fakeLayouts map[string]struct {
	inputs, outputs int
	entry           bool
	dataInputs      []int
}

func (f fakeLayouts) Layout(nodeType string) (int, int, bool, bool) {
	l, ok := f[nodeType]
	return l.inputs, l.outputs, l.entry, ok
}

func (f fakeLayouts) DataInput(nodeType string, portIndex int) bool {
	l, ok := f[nodeType]
	if !ok {
		return false
	}
	for _, p := range l.dataInputs {
		if p == portIndex {
			return true
		}
	}
	return false
}

func testLayouts() fakeLayouts {
	return fakeLayouts{
		"start":  {inputs: 0, outputs: 1, entry: true},
		"action": {inputs: 2, outputs: 1, dataInputs: []int{1}},
		"branch": {inputs: 1, outputs: 2},
	}
}

func validDef() *Definition {
	return &Definition{
		ID: "d",
		Nodes: []Node{
			{ID: "Start", Type: "start"},
			{ID: "Step", Type: "action"},
		},
		Connections: []Connection{
			{ID: "c1", From: Endpoint{NodeID: "Start", PortIndex: 0}, To: Endpoint{NodeID: "Step", PortIndex: 0}},
		},
	}
}

func TestValidate_OK(t *testing.T) {
	assert.NoError(t, Validate(validDef(), testLayouts()))
}

func TestValidate_ControlFanInAllowed(t *testing.T) {
	def := &Definition{
		ID: "rejoin",
		Nodes: []Node{
			{ID: "Start", Type: "start"},
			{ID: "Check", Type: "branch"},
			{ID: "Join", Type: "action"},
		},
		Connections: []Connection{
			{ID: "c1", From: Endpoint{NodeID: "Start", PortIndex: 0}, To: Endpoint{NodeID: "Check", PortIndex: 0}},
			{ID: "c2", From: Endpoint{NodeID: "Check", PortIndex: 0}, To: Endpoint{NodeID: "Join", PortIndex: 0}},
			{ID: "c3", From: Endpoint{NodeID: "Check", PortIndex: 1}, To: Endpoint{NodeID: "Join", PortIndex: 0}},
		},
	}
	assert.NoError(t, Validate(def, testLayouts()),
		"both sides of a branch may rejoin at one control input")
}

func TestValidate_Problems(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Definition)
		problem string
	}{
		{
			name:    "empty node id",
			mutate:  func(d *Definition) { d.Nodes[1].ID = "" },
			problem: "node with empty id",
		},
		{
			name:    "duplicate node id",
			mutate:  func(d *Definition) { d.Nodes = append(d.Nodes, Node{ID: "Step", Type: "action"}) },
			problem: "duplicate node id",
		},
		{
			name:    "unknown type",
			mutate:  func(d *Definition) { d.Nodes[1].Type = "mystery" },
			problem: "no executor for type: mystery",
		},
		{
			name:    "no entry node",
			mutate:  func(d *Definition) { d.Nodes[0].Type = "action" },
			problem: "no entry node",
		},
		{
			name:    "two entry nodes",
			mutate:  func(d *Definition) { d.Nodes = append(d.Nodes, Node{ID: "Start2", Type: "start"}) },
			problem: "entry nodes, want exactly one",
		},
		{
			name:    "unknown source node",
			mutate:  func(d *Definition) { d.Connections[0].From.NodeID = "ghost" },
			problem: "unknown source node",
		},
		{
			name:    "unknown target node",
			mutate:  func(d *Definition) { d.Connections[0].To.NodeID = "ghost" },
			problem: "unknown target node",
		},
		{
			name:    "source port out of range",
			mutate:  func(d *Definition) { d.Connections[0].From.PortIndex = 5 },
			problem: "source port 5 out of range",
		},
		{
			name:    "target port out of range",
			mutate:  func(d *Definition) { d.Connections[0].To.PortIndex = 5 },
			problem: "target port 5 out of range",
		},
		{
			name: "multiple connections into one data port",
			mutate: func(d *Definition) {
				d.Connections = append(d.Connections,
					Connection{
						ID:   "c2",
						From: Endpoint{NodeID: "Start", PortIndex: 0},
						To:   Endpoint{NodeID: "Step", PortIndex: 1},
					},
					Connection{
						ID:   "c3",
						From: Endpoint{NodeID: "Step", PortIndex: 0},
						To:   Endpoint{NodeID: "Step", PortIndex: 1},
					})
			},
			problem: "multiple incoming connections",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			def := validDef()
			tc.mutate(def)

			err := Validate(def, testLayouts())
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, "d", verr.DefinitionID)

			found := false
			for _, p := range verr.Problems {
				if strings.Contains(p, tc.problem) {
					found = true
				}
			}
			assert.True(t, found, "expected a problem containing %q, got %v", tc.problem, verr.Problems)
		})
	}
}

func TestValidationError_Message(t *testing.T) {
	err := &ValidationError{DefinitionID: "d", Problems: []string{"a", "b"}}
	assert.Equal(t, `invalid definition "d": a; b`, err.Error())
}
