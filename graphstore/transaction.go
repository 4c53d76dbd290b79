package graphstore

import (
	"github.com/sorryhyun/DiPeO-sub002/diagram"
	"github.com/sorryhyun/DiPeO-sub002/errors"
)

// Tx exposes the store's mutation set inside a transaction. All operations
// performed through it become visible as a single version increment and a
// single subscriber notification when the transaction commits.
type Tx struct {
	s     *Store
	dirty bool
}

// AddNode inserts a node within the transaction.
func (tx *Tx) AddNode(node diagram.Node) (diagram.Node, error) {
	stored, err := tx.s.addNodeLocked(node)
	if err == nil {
		tx.dirty = true
	}
	return stored, err
}

// UpdateNode replaces the position and data of an existing node.
func (tx *Tx) UpdateNode(node diagram.Node) bool {
	changed := tx.s.updateNodeLocked(node)
	tx.dirty = tx.dirty || changed
	return changed
}

// MoveNode updates just the position of a node.
func (tx *Tx) MoveNode(id diagram.NodeID, pos diagram.Point) bool {
	changed := tx.s.moveNodeLocked(id, pos)
	tx.dirty = tx.dirty || changed
	return changed
}

// DeleteNode removes a node with cascade within the transaction.
func (tx *Tx) DeleteNode(id diagram.NodeID) bool {
	changed := tx.s.deleteNodeLocked(id)
	tx.dirty = tx.dirty || changed
	return changed
}

// AddHandle inserts a handle within the transaction.
func (tx *Tx) AddHandle(handle diagram.Handle) (diagram.Handle, error) {
	stored, err := tx.s.addHandleLocked(handle)
	if err == nil {
		tx.dirty = true
	}
	return stored, err
}

// UpdateHandle updates a handle within the transaction.
func (tx *Tx) UpdateHandle(handle diagram.Handle) bool {
	changed := tx.s.updateHandleLocked(handle)
	tx.dirty = tx.dirty || changed
	return changed
}

// AddArrow connects two handles within the transaction.
func (tx *Tx) AddArrow(source, target diagram.HandleID, data map[string]any) (diagram.Arrow, error) {
	stored, err := tx.s.addArrowLocked(source, target, data)
	if err == nil {
		tx.dirty = true
	}
	return stored, err
}

// UpdateArrow updates an arrow within the transaction.
func (tx *Tx) UpdateArrow(arrow diagram.Arrow) bool {
	changed := tx.s.updateArrowLocked(arrow)
	tx.dirty = tx.dirty || changed
	return changed
}

// DeleteArrow removes an arrow within the transaction.
func (tx *Tx) DeleteArrow(id diagram.ArrowID) bool {
	changed := tx.s.deleteArrowLocked(id)
	tx.dirty = tx.dirty || changed
	return changed
}

// AddPerson inserts a person within the transaction.
func (tx *Tx) AddPerson(person diagram.Person) (diagram.Person, error) {
	stored, err := tx.s.addPersonLocked(person)
	if err == nil {
		tx.dirty = true
	}
	return stored, err
}

// UpdatePerson updates a person within the transaction.
func (tx *Tx) UpdatePerson(person diagram.Person) bool {
	changed := tx.s.updatePersonLocked(person)
	tx.dirty = tx.dirty || changed
	return changed
}

// DeletePerson removes a person within the transaction.
func (tx *Tx) DeletePerson(id diagram.PersonID) bool {
	changed := tx.s.deletePersonLocked(id)
	tx.dirty = tx.dirty || changed
	return changed
}

// ClearAll empties the store within the transaction.
func (tx *Tx) ClearAll() bool {
	changed := tx.s.clearAllLocked()
	tx.dirty = tx.dirty || changed
	return changed
}

// Node returns a copy of a node as the transaction currently sees it.
func (tx *Tx) Node(id diagram.NodeID) (diagram.Node, bool) {
	n, ok := tx.s.st.nodes[id]
	if !ok {
		return diagram.Node{}, false
	}
	return n.Clone(), true
}

// Handle returns a handle as the transaction currently sees it.
func (tx *Tx) Handle(id diagram.HandleID) (diagram.Handle, bool) {
	h, ok := tx.s.st.handles[id]
	return h, ok
}

// Transaction runs fn with exclusive access to the store. All mutations fn
// performs through the Tx commit together as one version increment and one
// subscriber notification. If fn returns an error, every mutation is rolled
// back, the version counter is untouched, and the error propagates.
func (s *Store) Transaction(fn func(tx *Tx) error) error {
	s.mu.Lock()
	pre := s.st.clone()
	tx := &Tx{s: s}

	if err := fn(tx); err != nil {
		s.st = pre
		s.mu.Unlock()
		if s.metrics != nil {
			s.metrics.TransactionsTotal.WithLabelValues("rolled_back").Inc()
		}
		return errors.Wrap(err, "Store", "Transaction", "callback")
	}
	if !tx.dirty {
		s.mu.Unlock()
		return nil
	}

	notify := s.commitLocked(pre)
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.TransactionsTotal.WithLabelValues("committed").Inc()
	}
	notify()
	return nil
}

// Undo restores the state preceding the most recent commit. The restored
// state is itself a commit: the version counter advances and subscribers are
// notified. Returns false when there is nothing to undo.
func (s *Store) Undo() bool {
	s.mu.Lock()
	if len(s.history) == 0 {
		s.mu.Unlock()
		return false
	}

	s.future = append(s.future, s.st.clone())
	s.st = s.history[len(s.history)-1]
	s.history = s.history[:len(s.history)-1]
	notify := s.bumpRestoredLocked()
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.MutationsTotal.WithLabelValues("store", "undo").Inc()
	}
	notify()
	return true
}

// Redo reapplies the most recently undone commit. Returns false when there is
// nothing to redo.
func (s *Store) Redo() bool {
	s.mu.Lock()
	if len(s.future) == 0 {
		s.mu.Unlock()
		return false
	}

	s.history = append(s.history, s.st.clone())
	if len(s.history) > s.historyDepth {
		s.history = s.history[len(s.history)-s.historyDepth:]
	}
	s.st = s.future[len(s.future)-1]
	s.future = s.future[:len(s.future)-1]
	notify := s.bumpRestoredLocked()
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.MutationsTotal.WithLabelValues("store", "redo").Inc()
	}
	notify()
	return true
}

// bumpRestoredLocked advances the version after a history restore without
// recording a new history entry. Callers hold the write lock.
func (s *Store) bumpRestoredLocked() func() {
	s.version++

	if s.metrics != nil {
		s.metrics.StoreVersion.Set(float64(s.version))
		s.metrics.HistoryDepth.Set(float64(len(s.history)))
	}

	ev := Event{Version: s.version}
	subs := make([]func(Event), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	return func() {
		for _, fn := range subs {
			fn(ev)
		}
	}
}

// LoadDiagram replaces the entire store content with the given bundle, for
// example when the user opens another diagram. History and redo stacks are
// cleared since undoing across independent datasets is meaningless. Entities
// receive fresh revision stamps.
func (s *Store) LoadDiagram(d diagram.Diagram) {
	s.mu.Lock()

	st := newState()
	for id, n := range d.Nodes {
		n = n.Clone()
		n.Position = n.Position.Clamp()
		n.Version = s.nextRevision()
		st.nodes[id] = n
	}
	for id, h := range d.Handles {
		st.handles[id] = h
	}
	for id, a := range d.Arrows {
		a = a.Clone()
		a.Version = s.nextRevision()
		st.arrows[id] = a
	}
	for id, p := range d.Persons {
		st.persons[id] = p.Clone()
	}
	s.st = st
	s.history = nil
	s.future = nil
	notify := s.bumpRestoredLocked()
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.MutationsTotal.WithLabelValues("store", "load").Inc()
	}
	notify()
}
