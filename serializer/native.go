package serializer

import (
	"github.com/bytedance/sonic"

	"github.com/sorryhyun/DiPeO-sub002/diagram"
	"github.com/sorryhyun/DiPeO-sub002/errors"
)

// MarshalNative encodes an export bundle in the native JSON format used for
// persistence and transport.
func MarshalNative(d diagram.Diagram) ([]byte, error) {
	data, err := sonic.Marshal(d)
	if err != nil {
		return nil, errors.WrapInvalid(err, "serializer", "MarshalNative", "json encoding")
	}
	return data, nil
}

// UnmarshalNative decodes a native JSON bundle. Map fields are never nil on
// success so callers can index without guarding.
func UnmarshalNative(data []byte) (diagram.Diagram, error) {
	var d diagram.Diagram
	if err := sonic.Unmarshal(data, &d); err != nil {
		return diagram.Diagram{}, errors.WrapInvalid(err, "serializer", "UnmarshalNative", "json decoding")
	}
	if d.Nodes == nil {
		d.Nodes = make(map[diagram.NodeID]diagram.Node)
	}
	if d.Handles == nil {
		d.Handles = make(map[diagram.HandleID]diagram.Handle)
	}
	if d.Arrows == nil {
		d.Arrows = make(map[diagram.ArrowID]diagram.Arrow)
	}
	if d.Persons == nil {
		d.Persons = make(map[diagram.PersonID]diagram.Person)
	}
	return d, nil
}
