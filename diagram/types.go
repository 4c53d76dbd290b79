// Package diagram defines the normalized data model for node-and-arrow
// workflow diagrams: nodes, handles, arrows, and persons, plus the composite
// handle identifier scheme linking nodes to their connection points.
package diagram

import (
	"maps"
	"time"

	"github.com/google/uuid"
)

// NodeID uniquely identifies a node within a diagram.
type NodeID string

// HandleID is the composite identifier of a connection point, encoding the
// owning node and the handle label (see EncodeHandleID).
type HandleID string

// ArrowID uniquely identifies a directed edge between two handles.
type ArrowID string

// PersonID uniquely identifies an LLM persona referenced by node data.
type PersonID string

// Node is a single step on the canvas. Data holds the type-specific fields as
// an open string-keyed map; its schema is described by the node-type registry.
type Node struct {
	ID       NodeID         `json:"id"`
	Type     NodeType       `json:"type"`
	Position Point          `json:"position"`
	Data     map[string]any `json:"data"`

	// Flip mirrors the node's visual. Decoding normalizes the legacy bool and
	// array encodings (see Flip.UnmarshalJSON); absent means not mirrored.
	Flip *Flip `json:"flip,omitempty"`

	// Version is bumped by the graph store on every mutation of this node.
	// The canvas adapter uses it for cache invalidation.
	Version uint64 `json:"-"`
}

// Clone returns a deep copy of the node.
func (n Node) Clone() Node {
	c := n
	if n.Data != nil {
		c.Data = make(map[string]any, len(n.Data))
		maps.Copy(c.Data, n.Data)
	}
	if n.Flip != nil {
		f := *n.Flip
		c.Flip = &f
	}
	return c
}

// Handle is a named, directional connection point on a node.
type Handle struct {
	ID        HandleID        `json:"id"`
	NodeID    NodeID          `json:"node_id"`
	Label     string          `json:"label"`
	Direction HandleDirection `json:"direction"`
	DataType  DataType        `json:"data_type"`
	Position  HandlePosition  `json:"position"`
}

// Arrow is a directed edge between a source and a target handle. Data may
// carry a branch discriminant for conditional outputs (see the "branch" key).
type Arrow struct {
	ID          ArrowID        `json:"id"`
	Source      HandleID       `json:"source"`
	Target      HandleID       `json:"target"`
	ContentType ContentType    `json:"content_type,omitempty"`
	Label       string         `json:"label,omitempty"`
	Data        map[string]any `json:"data,omitempty"`

	// Version is bumped by the graph store on every mutation of this arrow.
	Version uint64 `json:"-"`
}

// BranchKey is the arrow data key carrying the conditional branch discriminant.
const BranchKey = "branch"

// Branch returns the branch discriminant attached to the arrow, if any.
func (a Arrow) Branch() (string, bool) {
	if a.Data == nil {
		return "", false
	}
	branch, ok := a.Data[BranchKey].(string)
	return branch, ok
}

// Clone returns a deep copy of the arrow.
func (a Arrow) Clone() Arrow {
	c := a
	if a.Data != nil {
		c.Data = make(map[string]any, len(a.Data))
		maps.Copy(c.Data, a.Data)
	}
	return c
}

// PersonLLMConfig references the LLM service backing a persona.
type PersonLLMConfig struct {
	Service      LLMService `json:"service"`
	Model        string     `json:"model"`
	APIKeyID     string     `json:"api_key_id,omitempty"`
	SystemPrompt string     `json:"system_prompt,omitempty"`
}

// Person is an LLM persona. Persons are orthogonal to graph topology: node
// data references them by id, handles and arrows never do.
type Person struct {
	ID        PersonID        `json:"id"`
	Label     string          `json:"label"`
	LLMConfig PersonLLMConfig `json:"llm_config"`

	// Display holds derived, UI-only fields (for example a masked credential
	// preview). Stripped by the serializer before export.
	Display map[string]any `json:"display,omitempty"`
}

// Clone returns a deep copy of the person.
func (p Person) Clone() Person {
	c := p
	if p.Display != nil {
		c.Display = make(map[string]any, len(p.Display))
		maps.Copy(c.Display, p.Display)
	}
	return c
}

// Metadata describes a stored diagram.
type Metadata struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Version     string    `json:"version"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Diagram is the referentially-closed export bundle handed to the persistence
// collaborator: every arrow endpoint exists in Handles, every handle's owner
// exists in Nodes.
type Diagram struct {
	Metadata Metadata            `json:"metadata"`
	Nodes    map[NodeID]Node     `json:"nodes"`
	Handles  map[HandleID]Handle `json:"handles"`
	Arrows   map[ArrowID]Arrow   `json:"arrows"`
	Persons  map[PersonID]Person `json:"persons"`
}

// NewNodeID generates a fresh node identifier.
func NewNodeID() NodeID { return NodeID("node_" + shortID()) }

// NewArrowID generates a fresh arrow identifier.
func NewArrowID() ArrowID { return ArrowID("arrow_" + shortID()) }

// NewPersonID generates a fresh person identifier.
func NewPersonID() PersonID { return PersonID("person_" + shortID()) }

func shortID() string {
	return uuid.NewString()[:8]
}
