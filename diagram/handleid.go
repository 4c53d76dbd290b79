package diagram

import "strings"

// Handle ids are composite: "{node_id}_{label}" or "{node_id}_{label}_{direction}".
// Node ids may themselves contain the separator, so decoding parses from the
// right. Labels must not contain the separator and must not equal a direction
// word; ValidHandleLabel enforces both.
const handleIDSeparator = "_"

// ParsedHandleID is the decoded form of a composite handle id.
type ParsedHandleID struct {
	NodeID    NodeID
	Label     string
	Direction HandleDirection // empty when the id carries no direction
}

// EncodeHandleID builds the composite id for a node's handle. It is pure and
// deterministic: distinct (node, label) pairs yield distinct ids as long as
// the label satisfies ValidHandleLabel.
func EncodeHandleID(nodeID NodeID, label string) HandleID {
	return HandleID(string(nodeID) + handleIDSeparator + label)
}

// EncodeHandleIDWithDirection builds the composite id including the handle
// direction, for callers that materialize both an input and an output handle
// under the same label.
func EncodeHandleIDWithDirection(nodeID NodeID, label string, direction HandleDirection) HandleID {
	return HandleID(string(nodeID) + handleIDSeparator + label + handleIDSeparator + string(direction))
}

// DecodeHandleID parses a composite handle id back into its parts. Malformed
// ids return ok=false rather than an error: callers treat the referencing
// arrow or handle as orphaned.
//
// The canvas engine appends a numeric "_<n>" suffix when a label collides on
// screen; that mechanical suffix is stripped before decoding so a renamed
// handle still resolves to its semantic label.
func DecodeHandleID(id HandleID) (ParsedHandleID, bool) {
	parts := strings.Split(string(id), handleIDSeparator)
	if len(parts) < 2 {
		return ParsedHandleID{}, false
	}

	// Strip a trailing disambiguation suffix such as "_2".
	if len(parts) >= 3 && isDigits(parts[len(parts)-1]) {
		parts = parts[:len(parts)-1]
	}

	parsed := ParsedHandleID{}
	last := parts[len(parts)-1]
	if len(parts) >= 3 && HandleDirection(last).IsValid() {
		parsed.Direction = HandleDirection(last)
		parts = parts[:len(parts)-1]
	}

	parsed.Label = parts[len(parts)-1]
	parsed.NodeID = NodeID(strings.Join(parts[:len(parts)-1], handleIDSeparator))

	if parsed.NodeID == "" || parsed.Label == "" {
		return ParsedHandleID{}, false
	}
	return parsed, true
}

// NodeIDOf returns just the owning node of a handle id.
func NodeIDOf(id HandleID) (NodeID, bool) {
	parsed, ok := DecodeHandleID(id)
	if !ok {
		return "", false
	}
	return parsed.NodeID, true
}

// ValidHandleLabel reports whether label is usable in a composite handle id:
// non-empty, free of the separator, not a reserved direction word, and not
// purely numeric (which would collide with disambiguation suffixes).
func ValidHandleLabel(label string) bool {
	if label == "" || strings.Contains(label, handleIDSeparator) {
		return false
	}
	if HandleDirection(label).IsValid() {
		return false
	}
	return !isDigits(label)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
