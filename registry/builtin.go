package registry

import (
	"github.com/sorryhyun/DiPeO-sub002/diagram"
	"github.com/sorryhyun/DiPeO-sub002/errors"
)

// BranchLabels are the output labels of the conditional-branching node type.
// Arrows drawn from these outputs carry a branch discriminant in their data.
var BranchLabels = []string{"true", "false"}

// IsBranchLabel reports whether label is a conditional branch output.
func IsBranchLabel(label string) bool {
	for _, b := range BranchLabels {
		if label == b {
			return true
		}
	}
	return false
}

func inputHandle(label string) HandleSpec {
	return HandleSpec{
		Label:     label,
		Direction: diagram.DirectionInput,
		DataType:  diagram.DataAny,
		Position:  diagram.PositionLeft,
	}
}

func outputHandle(label string) HandleSpec {
	return HandleSpec{
		Label:     label,
		Direction: diagram.DirectionOutput,
		DataType:  diagram.DataAny,
		Position:  diagram.PositionRight,
	}
}

// Builtin returns a registry populated with the editor's standard node types.
func Builtin() (*Registry, error) {
	r := NewRegistry()

	specs := []NodeSpec{
		{
			Type:        diagram.NodeStart,
			DisplayName: "Start",
			Icon:        "play",
			Handles:     []HandleSpec{outputHandle("default")},
			Defaults: map[string]any{
				"trigger_mode": "manual",
			},
		},
		{
			Type:        diagram.NodePersonJob,
			DisplayName: "Person Job",
			Icon:        "robot",
			Handles: []HandleSpec{
				inputHandle("default"),
				inputHandle("first"),
				outputHandle("default"),
			},
			Defaults: map[string]any{
				"max_iteration": 1,
			},
		},
		{
			Type:        diagram.NodeCondition,
			DisplayName: "Condition",
			Icon:        "git-branch",
			Handles: []HandleSpec{
				inputHandle("default"),
				{
					Label:     "true",
					Direction: diagram.DirectionOutput,
					DataType:  diagram.DataBoolean,
					Position:  diagram.PositionRight,
				},
				{
					Label:     "false",
					Direction: diagram.DirectionOutput,
					DataType:  diagram.DataBoolean,
					Position:  diagram.PositionRight,
				},
			},
			Defaults: map[string]any{
				"condition_type": "custom",
			},
		},
		{
			Type:        diagram.NodeCodeJob,
			DisplayName: "Code Job",
			Icon:        "code",
			Handles:     []HandleSpec{inputHandle("default"), outputHandle("default")},
			Defaults: map[string]any{
				"language": "python",
			},
		},
		{
			Type:        diagram.NodeAPIJob,
			DisplayName: "API Job",
			Icon:        "globe",
			Handles:     []HandleSpec{inputHandle("default"), outputHandle("default")},
			Defaults: map[string]any{
				"method": "GET",
			},
		},
		{
			Type:        diagram.NodeEndpoint,
			DisplayName: "Endpoint",
			Icon:        "flag",
			Handles:     []HandleSpec{inputHandle("default")},
			Defaults: map[string]any{
				"save_to_file": false,
			},
		},
		{
			Type:        diagram.NodeDB,
			DisplayName: "Database",
			Icon:        "database",
			Handles:     []HandleSpec{inputHandle("default"), outputHandle("default")},
			Defaults: map[string]any{
				"operation":      "read",
				"serialize_json": false,
			},
		},
		{
			Type:        diagram.NodeUserResponse,
			DisplayName: "User Response",
			Icon:        "message-circle",
			Handles:     []HandleSpec{inputHandle("default"), outputHandle("default")},
			Defaults: map[string]any{
				"timeout": 60,
			},
		},
		{
			Type:        diagram.NodeHook,
			DisplayName: "Hook",
			Icon:        "webhook",
			Handles:     []HandleSpec{inputHandle("default"), outputHandle("default")},
			Defaults: map[string]any{
				"hook_type": "shell",
			},
		},
		{
			Type:        diagram.NodeNote,
			DisplayName: "Note",
			Icon:        "sticky-note",
			Handles:     nil,
			Defaults:    map[string]any{},
		},
	}

	for _, spec := range specs {
		if err := r.Register(spec); err != nil {
			return nil, errors.Wrap(err, "registry", "Builtin", "builtin spec registration")
		}
	}
	return r, nil
}

// MustBuiltin returns the builtin registry and panics on registration failure.
// The builtin table is static, so a failure is a programming error.
func MustBuiltin() *Registry {
	r, err := Builtin()
	if err != nil {
		panic(err)
	}
	return r
}
