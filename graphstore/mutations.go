package graphstore

import (
	"fmt"

	"github.com/sorryhyun/DiPeO-sub002/diagram"
	"github.com/sorryhyun/DiPeO-sub002/errors"
)

// AddNode inserts a node. An empty id is replaced with a generated one. When
// a registry is configured, the node's type-defined handles are materialized
// in the same commit and registry defaults fill data keys the caller left
// unset. Returns the stored node.
func (s *Store) AddNode(node diagram.Node) (diagram.Node, error) {
	var stored diagram.Node
	_, err := s.mutate("node", "add", func() (bool, error) {
		var err error
		stored, err = s.addNodeLocked(node)
		return err == nil, err
	})
	return stored, err
}

func (s *Store) addNodeLocked(node diagram.Node) (diagram.Node, error) {
	if node.ID == "" {
		node.ID = diagram.NewNodeID()
	}
	if _, exists := s.st.nodes[node.ID]; exists {
		return diagram.Node{}, errors.WrapInvalid(
			fmt.Errorf("node %s already exists", node.ID),
			"Store", "AddNode", "duplicate id check")
	}

	node = node.Clone()
	node.Position = node.Position.Clamp()
	if node.Data == nil {
		node.Data = make(map[string]any)
	}
	if s.reg != nil {
		for key, value := range s.reg.Defaults(node.Type) {
			if _, set := node.Data[key]; !set {
				node.Data[key] = value
			}
		}
	}
	node.Version = s.nextRevision()
	s.st.nodes[node.ID] = node

	if s.reg != nil {
		for _, h := range s.reg.TemplateHandles(node.ID, node.Type) {
			s.st.handles[h.ID] = h
		}
	}
	return node.Clone(), nil
}

// UpdateNode replaces the position, data, and flip of an existing node.
// Updates addressed at a missing node are no-ops returning false.
func (s *Store) UpdateNode(node diagram.Node) bool {
	changed, _ := s.mutate("node", "update", func() (bool, error) {
		return s.updateNodeLocked(node), nil
	})
	return changed
}

func (s *Store) updateNodeLocked(node diagram.Node) bool {
	current, ok := s.st.nodes[node.ID]
	if !ok {
		return false
	}
	clone := node.Clone()
	current.Position = clone.Position.Clamp()
	current.Data = clone.Data
	current.Flip = clone.Flip
	current.Version = s.nextRevision()
	s.st.nodes[node.ID] = current
	return true
}

// MoveNode updates just the position of a node.
func (s *Store) MoveNode(id diagram.NodeID, pos diagram.Point) bool {
	changed, _ := s.mutate("node", "move", func() (bool, error) {
		return s.moveNodeLocked(id, pos), nil
	})
	return changed
}

func (s *Store) moveNodeLocked(id diagram.NodeID, pos diagram.Point) bool {
	current, ok := s.st.nodes[id]
	if !ok {
		return false
	}
	current.Position = pos.Clamp()
	current.Version = s.nextRevision()
	s.st.nodes[id] = current
	return true
}

// DeleteNode removes a node, cascading to its handles and to any arrows
// referencing those handles. Returns false if the node does not exist.
func (s *Store) DeleteNode(id diagram.NodeID) bool {
	changed, _ := s.mutate("node", "delete", func() (bool, error) {
		return s.deleteNodeLocked(id), nil
	})
	return changed
}

func (s *Store) deleteNodeLocked(id diagram.NodeID) bool {
	if _, ok := s.st.nodes[id]; !ok {
		return false
	}
	delete(s.st.nodes, id)

	removed := make(map[diagram.HandleID]bool)
	for hid, h := range s.st.handles {
		if h.NodeID == id {
			removed[hid] = true
			delete(s.st.handles, hid)
		}
	}
	for aid, a := range s.st.arrows {
		if removed[a.Source] || removed[a.Target] {
			delete(s.st.arrows, aid)
		}
	}
	return true
}

// AddHandle inserts a handle on an existing node. An empty id is derived from
// the owning node, label, and direction. The label must be valid for the
// composite id scheme.
func (s *Store) AddHandle(handle diagram.Handle) (diagram.Handle, error) {
	var stored diagram.Handle
	_, err := s.mutate("handle", "add", func() (bool, error) {
		var err error
		stored, err = s.addHandleLocked(handle)
		return err == nil, err
	})
	return stored, err
}

func (s *Store) addHandleLocked(handle diagram.Handle) (diagram.Handle, error) {
	if _, ok := s.st.nodes[handle.NodeID]; !ok {
		return diagram.Handle{}, errors.WrapInvalid(
			fmt.Errorf("%w: %s", errors.ErrNodeNotFound, handle.NodeID),
			"Store", "AddHandle", "owner lookup")
	}
	if !diagram.ValidHandleLabel(handle.Label) {
		return diagram.Handle{}, errors.WrapInvalid(
			fmt.Errorf("invalid handle label %q", handle.Label),
			"Store", "AddHandle", "label validation")
	}
	if handle.ID == "" {
		if handle.Direction != "" {
			handle.ID = diagram.EncodeHandleIDWithDirection(handle.NodeID, handle.Label, handle.Direction)
		} else {
			handle.ID = diagram.EncodeHandleID(handle.NodeID, handle.Label)
		}
	}
	if _, exists := s.st.handles[handle.ID]; exists {
		return diagram.Handle{}, errors.WrapInvalid(
			fmt.Errorf("handle %s already exists", handle.ID),
			"Store", "AddHandle", "duplicate id check")
	}
	s.st.handles[handle.ID] = handle
	s.touchNodeLocked(handle.NodeID)
	return handle, nil
}

// UpdateHandle replaces the data type and visual position of an existing
// handle. Identity fields (id, owner, label, direction) are immutable; a
// relabel is a delete plus add. Missing handles are no-ops returning false.
func (s *Store) UpdateHandle(handle diagram.Handle) bool {
	changed, _ := s.mutate("handle", "update", func() (bool, error) {
		return s.updateHandleLocked(handle), nil
	})
	return changed
}

func (s *Store) updateHandleLocked(handle diagram.Handle) bool {
	current, ok := s.st.handles[handle.ID]
	if !ok {
		return false
	}
	current.DataType = handle.DataType
	current.Position = handle.Position
	s.st.handles[handle.ID] = current
	s.touchNodeLocked(current.NodeID)
	return true
}

// touchNodeLocked bumps the owning node's revision so handle-set changes
// invalidate the adapter's cached visual node.
func (s *Store) touchNodeLocked(id diagram.NodeID) {
	if n, ok := s.st.nodes[id]; ok {
		n.Version = s.nextRevision()
		s.st.nodes[id] = n
	}
}

// AddArrow connects two existing handles. Both endpoints must resolve and the
// ordered (source, target) pair must be new; violations return classified
// invalid errors since the caller asserts existence here.
func (s *Store) AddArrow(source, target diagram.HandleID, data map[string]any) (diagram.Arrow, error) {
	var stored diagram.Arrow
	_, err := s.mutate("arrow", "add", func() (bool, error) {
		var err error
		stored, err = s.addArrowLocked(source, target, data)
		return err == nil, err
	})
	return stored, err
}

func (s *Store) addArrowLocked(source, target diagram.HandleID, data map[string]any) (diagram.Arrow, error) {
	if _, ok := s.st.handles[source]; !ok {
		return diagram.Arrow{}, errors.WrapInvalid(
			fmt.Errorf("%w: source %s", errors.ErrHandleNotFound, source),
			"Store", "AddArrow", "source lookup")
	}
	if _, ok := s.st.handles[target]; !ok {
		return diagram.Arrow{}, errors.WrapInvalid(
			fmt.Errorf("%w: target %s", errors.ErrHandleNotFound, target),
			"Store", "AddArrow", "target lookup")
	}
	if s.st.hasArrow(source, target) {
		return diagram.Arrow{}, errors.WrapInvalid(
			fmt.Errorf("%w: %s -> %s", errors.ErrDuplicateArrow, source, target),
			"Store", "AddArrow", "duplicate pair check")
	}

	arrow := diagram.Arrow{
		ID:     diagram.NewArrowID(),
		Source: source,
		Target: target,
	}
	if data != nil {
		arrow.Data = make(map[string]any, len(data))
		for k, v := range data {
			arrow.Data[k] = v
		}
	}
	arrow.Version = s.nextRevision()
	s.st.arrows[arrow.ID] = arrow
	return arrow.Clone(), nil
}

// UpdateArrow replaces the label, content type, and data of an existing
// arrow. Endpoints are immutable. Missing arrows are no-ops returning false.
func (s *Store) UpdateArrow(arrow diagram.Arrow) bool {
	changed, _ := s.mutate("arrow", "update", func() (bool, error) {
		return s.updateArrowLocked(arrow), nil
	})
	return changed
}

func (s *Store) updateArrowLocked(arrow diagram.Arrow) bool {
	current, ok := s.st.arrows[arrow.ID]
	if !ok {
		return false
	}
	current.Label = arrow.Label
	current.ContentType = arrow.ContentType
	current.Data = arrow.Clone().Data
	current.Version = s.nextRevision()
	s.st.arrows[arrow.ID] = current
	return true
}

// DeleteArrow removes an arrow. Returns false if it does not exist.
func (s *Store) DeleteArrow(id diagram.ArrowID) bool {
	changed, _ := s.mutate("arrow", "delete", func() (bool, error) {
		return s.deleteArrowLocked(id), nil
	})
	return changed
}

func (s *Store) deleteArrowLocked(id diagram.ArrowID) bool {
	if _, ok := s.st.arrows[id]; !ok {
		return false
	}
	delete(s.st.arrows, id)
	return true
}

// AddPerson inserts an LLM persona. An empty id is replaced with a generated
// one.
func (s *Store) AddPerson(person diagram.Person) (diagram.Person, error) {
	var stored diagram.Person
	_, err := s.mutate("person", "add", func() (bool, error) {
		var err error
		stored, err = s.addPersonLocked(person)
		return err == nil, err
	})
	return stored, err
}

func (s *Store) addPersonLocked(person diagram.Person) (diagram.Person, error) {
	if person.ID == "" {
		person.ID = diagram.NewPersonID()
	}
	if _, exists := s.st.persons[person.ID]; exists {
		return diagram.Person{}, errors.WrapInvalid(
			fmt.Errorf("person %s already exists", person.ID),
			"Store", "AddPerson", "duplicate id check")
	}
	s.st.persons[person.ID] = person.Clone()
	return person, nil
}

// UpdatePerson replaces an existing person record. Missing persons are no-ops
// returning false.
func (s *Store) UpdatePerson(person diagram.Person) bool {
	changed, _ := s.mutate("person", "update", func() (bool, error) {
		return s.updatePersonLocked(person), nil
	})
	return changed
}

func (s *Store) updatePersonLocked(person diagram.Person) bool {
	if _, ok := s.st.persons[person.ID]; !ok {
		return false
	}
	s.st.persons[person.ID] = person.Clone()
	return true
}

// DeletePerson removes a person. Node data referencing it is left untouched;
// dangling person references are a rendering concern, not a topology one.
func (s *Store) DeletePerson(id diagram.PersonID) bool {
	changed, _ := s.mutate("person", "delete", func() (bool, error) {
		return s.deletePersonLocked(id), nil
	})
	return changed
}

func (s *Store) deletePersonLocked(id diagram.PersonID) bool {
	if _, ok := s.st.persons[id]; !ok {
		return false
	}
	delete(s.st.persons, id)
	return true
}

// ClearAll removes every node, handle, arrow, and person in one commit.
func (s *Store) ClearAll() bool {
	changed, _ := s.mutate("store", "clear", func() (bool, error) {
		return s.clearAllLocked(), nil
	})
	return changed
}

func (s *Store) clearAllLocked() bool {
	if len(s.st.nodes) == 0 && len(s.st.handles) == 0 &&
		len(s.st.arrows) == 0 && len(s.st.persons) == 0 {
		return false
	}
	s.st = newState()
	return true
}
