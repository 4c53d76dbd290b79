// Package canvas converts between the normalized graph model and the visual
// canvas engine's native node/edge representation, caching conversions by
// entity identity, and batches high-frequency drag events into per-frame
// store transactions.
package canvas

import (
	"github.com/sorryhyun/DiPeO-sub002/diagram"
)

// VisualHandle is a connection point in the canvas engine's shape.
type VisualHandle struct {
	ID       diagram.HandleID       `json:"id"`
	Label    string                 `json:"label"`
	DataType diagram.DataType       `json:"data_type"`
	Position diagram.HandlePosition `json:"position"`
}

// VisualNode is the canvas engine's native node payload: input and output
// connection points keyed by label, plus the node's data.
type VisualNode struct {
	ID       string                  `json:"id"`
	Type     string                  `json:"type"`
	Position diagram.Point           `json:"position"`
	Flip     *diagram.Flip           `json:"flip,omitempty"`
	Inputs   map[string]VisualHandle `json:"inputs"`
	Outputs  map[string]VisualHandle `json:"outputs"`
	Data     map[string]any          `json:"data"`
}

// VisualEdge is the canvas engine's native edge payload. Endpoints use the
// engine's (node, handle label) addressing rather than composite handle ids.
type VisualEdge struct {
	ID           string         `json:"id"`
	SourceNode   string         `json:"source_node"`
	SourceHandle string         `json:"source_handle"`
	TargetNode   string         `json:"target_node"`
	TargetHandle string         `json:"target_handle"`
	Label        string         `json:"label,omitempty"`
	ContentType  string         `json:"content_type,omitempty"`
	Data         map[string]any `json:"data,omitempty"`
}
