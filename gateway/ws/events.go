// Package ws is the websocket gateway between canvas clients and the graph
// core. Incoming canvas change events are folded into graph store operations,
// with new connections gated through the validator; committed state is pushed
// back to every session.
package ws

import (
	"encoding/json"

	"github.com/sorryhyun/DiPeO-sub002/canvas"
	"github.com/sorryhyun/DiPeO-sub002/diagram"
)

// Envelope wraps all gateway messages with type discrimination.
//
// Client to server types:
//   - "move":        a node is being dragged (high frequency, batched)
//   - "drag_end":    final resting position of a drag gesture
//   - "add_node":    a node was created on the canvas
//   - "update_node": node data edited in the side panel
//   - "connect":     a new connection was drawn
//   - "delete_node", "delete_arrow": removals
//   - "undo", "redo", "clear": history and reset actions
//   - "load":        open a persisted diagram
//   - "save":        persist the current graph
//   - "state":       request a full state push
//
// Server to client types:
//   - "state":    full visual node/edge arrays with the store version
//   - "rejected": a connection attempt was refused
//   - "saved":    persistence acknowledged
//   - "error":    operation failed
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// MovePayload carries a position event.
type MovePayload struct {
	NodeID diagram.NodeID `json:"node_id"`
	X      float64        `json:"x"`
	Y      float64        `json:"y"`
}

// NodePayload carries a canvas node for add/update events.
type NodePayload struct {
	Node canvas.VisualNode `json:"node"`
}

// ConnectPayload carries a freshly drawn connection.
type ConnectPayload struct {
	Edge canvas.VisualEdge `json:"edge"`
}

// DeletePayload addresses an entity for removal.
type DeletePayload struct {
	NodeID  diagram.NodeID  `json:"node_id,omitempty"`
	ArrowID diagram.ArrowID `json:"arrow_id,omitempty"`
}

// DiagramPayload addresses a persisted diagram.
type DiagramPayload struct {
	DiagramID string `json:"diagram_id"`
}

// StatePayload is the full visual state pushed to clients.
type StatePayload struct {
	Version uint64              `json:"version"`
	Nodes   []canvas.VisualNode `json:"nodes"`
	Edges   []canvas.VisualEdge `json:"edges"`
}

// RejectedPayload reports a refused connection attempt.
type RejectedPayload struct {
	Reason string `json:"reason"`
	Detail string `json:"detail,omitempty"`
}

// SavedPayload acknowledges persistence.
type SavedPayload struct {
	DiagramID string `json:"diagram_id"`
	Revision  uint64 `json:"revision"`
}

// ErrorPayload reports a failed operation.
type ErrorPayload struct {
	Message string `json:"message"`
}

func envelope(typ string, payload any) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: typ, Payload: data}, nil
}
