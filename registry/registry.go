// Package registry provides the static node-type configuration table for the
// diagram editor: per-type handle templates, default field values, and display
// metadata. The table is read-only for the rest of the core; handle
// materialization and export backfill consume it, nothing mutates it.
package registry

import (
	"fmt"
	"maps"
	"sync"

	"github.com/sorryhyun/DiPeO-sub002/diagram"
	"github.com/sorryhyun/DiPeO-sub002/errors"
)

// HandleSpec is the template for one connection point a node type defines.
type HandleSpec struct {
	Label     string                  `json:"label"`
	Direction diagram.HandleDirection `json:"direction"`
	DataType  diagram.DataType        `json:"data_type"`
	Position  diagram.HandlePosition  `json:"position"`
}

// NodeSpec holds the static configuration for a node type.
type NodeSpec struct {
	Type        diagram.NodeType `json:"type"`
	DisplayName string           `json:"display_name"`
	Icon        string           `json:"icon"`
	Handles     []HandleSpec     `json:"handles"`
	Defaults    map[string]any   `json:"defaults"`
}

// Clone returns a deep copy of the spec so callers cannot mutate the table.
func (s NodeSpec) Clone() NodeSpec {
	c := s
	c.Handles = make([]HandleSpec, len(s.Handles))
	copy(c.Handles, s.Handles)
	if s.Defaults != nil {
		c.Defaults = make(map[string]any, len(s.Defaults))
		maps.Copy(c.Defaults, s.Defaults)
	}
	return c
}

// Registry maps node types to their specs. It provides thread-safe
// registration and lookup; after construction it is consumed read-only.
type Registry struct {
	specs map[diagram.NodeType]NodeSpec
	mu    sync.RWMutex
}

// NewRegistry creates a new empty node-type registry.
func NewRegistry() *Registry {
	return &Registry{specs: make(map[diagram.NodeType]NodeSpec)}
}

// Register adds a node spec to the registry.
// Returns an error if the spec is malformed or the type is already registered.
func (r *Registry) Register(spec NodeSpec) error {
	if !spec.Type.IsValid() {
		return errors.WrapInvalid(
			fmt.Errorf("unknown node type: %q", spec.Type),
			"Registry", "Register", "node type validation")
	}
	seen := make(map[string]bool, len(spec.Handles))
	for _, h := range spec.Handles {
		if !diagram.ValidHandleLabel(h.Label) {
			return errors.WrapInvalid(
				fmt.Errorf("node type %s: invalid handle label %q", spec.Type, h.Label),
				"Registry", "Register", "handle label validation")
		}
		if !h.Direction.IsValid() {
			return errors.WrapInvalid(
				fmt.Errorf("node type %s: invalid handle direction %q", spec.Type, h.Direction),
				"Registry", "Register", "handle direction validation")
		}
		key := h.Label + "/" + string(h.Direction)
		if seen[key] {
			return errors.WrapInvalid(
				fmt.Errorf("node type %s: duplicate handle %s", spec.Type, key),
				"Registry", "Register", "duplicate handle check")
		}
		seen[key] = true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.specs[spec.Type]; exists {
		return errors.WrapInvalid(
			fmt.Errorf("node type %s is already registered", spec.Type),
			"Registry", "Register", "duplicate type check")
	}
	r.specs[spec.Type] = spec.Clone()
	return nil
}

// Get returns the spec for a node type.
func (r *Registry) Get(nodeType diagram.NodeType) (NodeSpec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	spec, ok := r.specs[nodeType]
	if !ok {
		return NodeSpec{}, false
	}
	return spec.Clone(), true
}

// Types returns all registered node types.
func (r *Registry) Types() []diagram.NodeType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]diagram.NodeType, 0, len(r.specs))
	for t := range r.specs {
		types = append(types, t)
	}
	return types
}

// Defaults returns a copy of the default field values for a node type, or an
// empty map for unknown types.
func (r *Registry) Defaults(nodeType diagram.NodeType) map[string]any {
	spec, ok := r.Get(nodeType)
	if !ok || spec.Defaults == nil {
		return map[string]any{}
	}
	return spec.Defaults
}

// TemplateHandles materializes the type-defined handle set for a concrete
// node, assigning deterministic composite ids. Ids are direction-qualified so
// a label shared by an input and an output handle never collides.
func (r *Registry) TemplateHandles(nodeID diagram.NodeID, nodeType diagram.NodeType) []diagram.Handle {
	spec, ok := r.Get(nodeType)
	if !ok {
		return nil
	}
	handles := make([]diagram.Handle, 0, len(spec.Handles))
	for _, hs := range spec.Handles {
		handles = append(handles, diagram.Handle{
			ID:        diagram.EncodeHandleIDWithDirection(nodeID, hs.Label, hs.Direction),
			NodeID:    nodeID,
			Label:     hs.Label,
			Direction: hs.Direction,
			DataType:  hs.DataType,
			Position:  hs.Position,
		})
	}
	return handles
}
