// Package graphstore implements the canonical in-memory store for diagram
// graph state. All mutations flow through the store's declared operations;
// each committed change bumps a monotonic version counter and notifies
// subscribers exactly once. Transactions batch mutations into a single
// observable change, and a bounded snapshot history backs undo/redo.
package graphstore

import (
	"log/slog"
	"sync"

	"github.com/sorryhyun/DiPeO-sub002/diagram"
	"github.com/sorryhyun/DiPeO-sub002/metric"
	"github.com/sorryhyun/DiPeO-sub002/registry"
)

// DefaultHistoryDepth bounds the undo history when no override is given.
const DefaultHistoryDepth = 50

// Event describes a committed change, delivered to subscribers after the
// store has reached its new state.
type Event struct {
	Version uint64
}

// state is the complete mutable graph content. Snapshots of it back both
// transaction rollback and the undo history.
type state struct {
	nodes   map[diagram.NodeID]diagram.Node
	handles map[diagram.HandleID]diagram.Handle
	arrows  map[diagram.ArrowID]diagram.Arrow
	persons map[diagram.PersonID]diagram.Person
}

func newState() state {
	return state{
		nodes:   make(map[diagram.NodeID]diagram.Node),
		handles: make(map[diagram.HandleID]diagram.Handle),
		arrows:  make(map[diagram.ArrowID]diagram.Arrow),
		persons: make(map[diagram.PersonID]diagram.Person),
	}
}

func (st state) clone() state {
	c := state{
		nodes:   make(map[diagram.NodeID]diagram.Node, len(st.nodes)),
		handles: make(map[diagram.HandleID]diagram.Handle, len(st.handles)),
		arrows:  make(map[diagram.ArrowID]diagram.Arrow, len(st.arrows)),
		persons: make(map[diagram.PersonID]diagram.Person, len(st.persons)),
	}
	for id, n := range st.nodes {
		c.nodes[id] = n.Clone()
	}
	for id, h := range st.handles {
		c.handles[id] = h
	}
	for id, a := range st.arrows {
		c.arrows[id] = a.Clone()
	}
	for id, p := range st.persons {
		c.persons[id] = p.Clone()
	}
	return c
}

// Store holds the normalized graph. It is safe for concurrent use; readers
// take the read lock, mutations serialize on the write lock and subscribers
// observe only committed states in commit order.
type Store struct {
	mu sync.RWMutex
	st state

	// version counts committed changes; revision hands out per-entity
	// modification stamps and is never rewound by undo, so a stamp is
	// never reused for different content.
	version  uint64
	revision uint64

	history      []state
	future       []state
	historyDepth int

	subs      map[int]func(Event)
	nextSubID int

	reg     *registry.Registry
	logger  *slog.Logger
	metrics *metric.Metrics
}

// Option configures a Store.
type Option func(*Store)

// WithRegistry sets the node-type registry used to materialize template
// handles and default data when nodes are added.
func WithRegistry(reg *registry.Registry) Option {
	return func(s *Store) { s.reg = reg }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithMetrics enables mutation and version instrumentation.
func WithMetrics(m *metric.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// WithHistoryDepth bounds the undo history. Values below 1 keep the default.
func WithHistoryDepth(depth int) Option {
	return func(s *Store) {
		if depth >= 1 {
			s.historyDepth = depth
		}
	}
}

// NewStore creates an empty graph store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		st:           newState(),
		historyDepth: DefaultHistoryDepth,
		subs:         make(map[int]func(Event)),
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Version returns the monotonic commit counter.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Subscribe registers fn to be called after every committed change. The
// returned function removes the subscription.
func (s *Store) Subscribe(fn func(Event)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSubID
	s.nextSubID++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// Node returns a copy of the node with the given id.
func (s *Store) Node(id diagram.NodeID) (diagram.Node, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.st.nodes[id]
	if !ok {
		return diagram.Node{}, false
	}
	return n.Clone(), true
}

// Handle returns a copy of the handle with the given id.
func (s *Store) Handle(id diagram.HandleID) (diagram.Handle, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.st.handles[id]
	return h, ok
}

// Arrow returns a copy of the arrow with the given id.
func (s *Store) Arrow(id diagram.ArrowID) (diagram.Arrow, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.st.arrows[id]
	if !ok {
		return diagram.Arrow{}, false
	}
	return a.Clone(), true
}

// Person returns a copy of the person with the given id.
func (s *Store) Person(id diagram.PersonID) (diagram.Person, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.st.persons[id]
	if !ok {
		return diagram.Person{}, false
	}
	return p.Clone(), true
}

// NodeHandles returns the handles owned by a node.
func (s *Store) NodeHandles(id diagram.NodeID) []diagram.Handle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var handles []diagram.Handle
	for _, h := range s.st.handles {
		if h.NodeID == id {
			handles = append(handles, h)
		}
	}
	return handles
}

// HasArrow reports whether an arrow with the given ordered endpoint pair
// already exists.
func (s *Store) HasArrow(source, target diagram.HandleID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.hasArrow(source, target)
}

func (st state) hasArrow(source, target diagram.HandleID) bool {
	for _, a := range st.arrows {
		if a.Source == source && a.Target == target {
			return true
		}
	}
	return false
}

// Counts returns the number of nodes, handles, arrows, and persons.
func (s *Store) Counts() (nodes, handles, arrows, persons int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.st.nodes), len(s.st.handles), len(s.st.arrows), len(s.st.persons)
}

// Snapshot returns a deep copy of the full graph content along with the
// version it was taken at.
func (s *Store) Snapshot() (diagram.Diagram, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c := s.st.clone()
	return diagram.Diagram{
		Nodes:   c.nodes,
		Handles: c.handles,
		Arrows:  c.arrows,
		Persons: c.persons,
	}, s.version
}

// nextRevision stamps an entity modification. Callers hold the write lock.
func (s *Store) nextRevision() uint64 {
	s.revision++
	return s.revision
}

// commitLocked records pre as an undo snapshot, bumps the version, and
// returns the notification to run after the lock is released. Callers hold
// the write lock.
func (s *Store) commitLocked(pre state) func() {
	s.history = append(s.history, pre)
	if len(s.history) > s.historyDepth {
		s.history = s.history[len(s.history)-s.historyDepth:]
	}
	s.future = nil
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

// mutate runs fn under the write lock and commits if it reports a change.
func (s *Store) mutate(entity, op string, fn func() (bool, error)) (bool, error) {
	s.mu.Lock()
	pre := s.st.clone()
	changed, err := fn()
	if err != nil || !changed {
		s.mu.Unlock()
		return changed, err
	}
	notify := s.commitLocked(pre)
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.MutationsTotal.WithLabelValues(entity, op).Inc()
	}
	notify()
	return true, nil
}
