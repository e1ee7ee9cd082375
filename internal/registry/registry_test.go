package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hmolina-dev/orquesta/internal/graph"
	"github.com/hmolina-dev/orquesta/internal/logging"
)

func noopExec() Executor {
	return ExecutorFunc(func(_ context.Context, _ graph.Node, _ RunContext, _ map[string]any) (map[string]any, error) {
		return nil, nil
	})
}

func actionReg(typ string) Registration {
	return Registration{
		Type: typ,
		Spec: PortSpec{
			Inputs:  []Port{{Name: "main", Kind: KindControl}},
			Outputs: []Port{{Name: "main", Kind: KindControl}},
		},
		Exec: noopExec(),
	}
}

func TestRegistry_LookupAndNotFound(t *testing.T) {
	r := New(logging.NewNop())
	require.NoError(t, r.Register(actionReg("step")))

	reg, err := r.Lookup("step")
	require.NoError(t, err)
	assert.Equal(t, "step", reg.Type)

	_, err = r.Lookup("ghost")
	var nfe *NotFoundError
	require.ErrorAs(t, err, &nfe)
	assert.Equal(t, "no executor for type: ghost", err.Error())
}

func TestRegistry_PluginValidationIsAllOrNothing(t *testing.T) {
	r := New(logging.NewNop())

	cases := []struct {
		name string
		reg  Registration
	}{
		{"missing type", Registration{Spec: actionReg("x").Spec, Exec: noopExec()}},
		{"missing port spec", Registration{Type: "x", Exec: noopExec()}},
		{"missing executor", Registration{Type: "x", Spec: actionReg("x").Spec}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Error(t, r.RegisterPlugin(tc.reg))
			if tc.reg.Type != "" {
				_, err := r.Lookup(tc.reg.Type)
				assert.Error(t, err, "a rejected plugin must not be installed")
			}
		})
	}
}

func TestRegistry_BuiltinWinsOverPlugin(t *testing.T) {
	r := New(logging.NewNop())

	builtin := actionReg("step")
	builtin.Kind = KindEntry
	require.NoError(t, r.Register(builtin))

	shadow := actionReg("step")
	require.NoError(t, r.RegisterPlugin(shadow), "shadowing is ignored, not an error")

	reg, err := r.Lookup("step")
	require.NoError(t, err)
	assert.Equal(t, KindEntry, reg.Kind, "the built-in registration survives")
}

func TestRegistry_PluginExtendsTypes(t *testing.T) {
	r := New(logging.NewNop())
	require.NoError(t, r.Register(actionReg("builtin-step")))
	require.NoError(t, r.RegisterPlugin(actionReg("custom-step")))

	assert.ElementsMatch(t, []string{"builtin-step", "custom-step"}, r.Types())
}

func TestRegistry_Layout(t *testing.T) {
	r := New(logging.NewNop())
	entry := Registration{
		Type: "begin",
		Kind: KindEntry,
		Spec: PortSpec{Outputs: []Port{{Name: "main", Kind: KindControl}}},
		Exec: noopExec(),
	}
	require.NoError(t, r.Register(entry))

	inputs, outputs, isEntry, ok := r.Layout("begin")
	require.True(t, ok)
	assert.Zero(t, inputs)
	assert.Equal(t, 1, outputs)
	assert.True(t, isEntry)

	_, _, _, ok = r.Layout("ghost")
	assert.False(t, ok)
}

func TestRegistry_DataInput(t *testing.T) {
	r := New(logging.NewNop())
	mixed := Registration{
		Type: "mix",
		Spec: PortSpec{
			Inputs: []Port{
				{Name: "main", Kind: KindControl},
				{Name: "value", Kind: KindData},
			},
			Outputs: []Port{{Name: "main", Kind: KindControl}},
		},
		Exec: noopExec(),
	}
	require.NoError(t, r.Register(mixed))

	assert.False(t, r.DataInput("mix", 0))
	assert.True(t, r.DataInput("mix", 1))
	assert.False(t, r.DataInput("mix", 9))
	assert.False(t, r.DataInput("ghost", 0))
}
