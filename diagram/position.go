package diagram

import (
	"encoding/json"
	"math"
)

// Point is a canvas coordinate. Zero value is the origin.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// IsFinite reports whether both coordinates are finite numbers.
func (p Point) IsFinite() bool {
	return !math.IsNaN(p.X) && !math.IsInf(p.X, 0) &&
		!math.IsNaN(p.Y) && !math.IsInf(p.Y, 0)
}

// Clamp returns the point itself when finite, or the origin otherwise.
// Node positions must always be finite (see the graph store).
func (p Point) Clamp() Point {
	if p.IsFinite() {
		return p
	}
	return Point{}
}

// Flip records whether a node's visual is mirrored. Historical diagrams
// encoded this as either a single bool (horizontal only) or a two-element
// bool array; UnmarshalJSON normalizes both legacy forms once at load time so
// consuming code only ever sees the tagged structure.
type Flip struct {
	Horizontal bool `json:"horizontal"`
	Vertical   bool `json:"vertical"`
}

// UnmarshalJSON accepts the canonical object form plus the two legacy
// encodings: a bare bool and a [horizontal, vertical] array.
func (f *Flip) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = Flip{Horizontal: b}
		return nil
	}

	var pair []bool
	if err := json.Unmarshal(data, &pair); err == nil {
		out := Flip{}
		if len(pair) > 0 {
			out.Horizontal = pair[0]
		}
		if len(pair) > 1 {
			out.Vertical = pair[1]
		}
		*f = out
		return nil
	}

	type plain Flip
	var obj plain
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*f = Flip(obj)
	return nil
}
