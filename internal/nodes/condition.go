package nodes

import (
	"context"
	"fmt"
	"strconv"

	"github.com/hmolina-dev/orquesta/internal/graph"
	"github.com/hmolina-dev/orquesta/internal/registry"
)

// conditionRegistration evaluates a comparison and selects exactly one of
// its two control outputs: port 0 when true, port 1 when false. The
// untaken branch's subgraph is never visited.
func conditionRegistration() registry.Registration {
	return registry.Registration{
		Type: "condition",
		Kind: registry.KindBranch,
		Spec: registry.PortSpec{
			Inputs: []registry.Port{controlIn(), dataIn("value")},
			Outputs: []registry.Port{
				{Name: "true", Kind: registry.KindControl},
				{Name: "false", Kind: registry.KindControl},
			},
		},
		Exec: registry.ExecutorFunc(func(_ context.Context, node graph.Node, rc registry.RunContext, inputs map[string]any) (map[string]any, error) {
			left, ok := inputs["value"]
			if !ok {
				if name := node.ConfigString("variable", ""); name != "" {
					left, _ = rc.Variable(name)
				}
			}

			operator := node.ConfigString("operator", "==")
			right := node.Config["compare_to"]

			outcome, err := compare(left, operator, right)
			if err != nil {
				return nil, fmt.Errorf("condition node %s: %w", node.ID, err)
			}

			port := 0
			branch := "true"
			if !outcome {
				port = 1
				branch = "false"
			}
			return map[string]any{"branch": branch, "port": port}, nil
		}),
	}
}

func compare(left any, operator string, right any) (bool, error) {
	switch operator {
	case "truthy":
		return truthy(left), nil
	case "==":
		return looseEqual(left, right), nil
	case "!=":
		return !looseEqual(left, right), nil
	case ">", ">=", "<", "<=":
		l, lok := toFloat(left)
		r, rok := toFloat(right)
		if !lok || !rok {
			return false, fmt.Errorf("operator %q needs numeric operands, got %T and %T", operator, left, right)
		}
		switch operator {
		case ">":
			return l > r, nil
		case ">=":
			return l >= r, nil
		case "<":
			return l < r, nil
		default:
			return l <= r, nil
		}
	default:
		return false, fmt.Errorf("unknown operator %q", operator)
	}
}

// looseEqual compares across the numeric/string representations a JSON
// definition produces.
func looseEqual(left, right any) bool {
	if left == nil || right == nil {
		return left == right
	}
	if l, lok := toFloat(left); lok {
		if r, rok := toFloat(right); rok {
			return l == r
		}
	}
	return fmt.Sprintf("%v", left) == fmt.Sprintf("%v", right)
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != "" && t != "false" && t != "0"
	case int:
		return t != 0
	case int64:
		return t != 0
	case float64:
		return t != 0
	default:
		return true
	}
}
