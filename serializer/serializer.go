// Package serializer turns live graph state into a referentially-closed,
// export-ready bundle: transient data stripped, per-type defaults filled,
// template handles regenerated, orphans and duplicates pruned with a logged
// warning each.
package serializer

import (
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/sorryhyun/DiPeO-sub002/diagram"
	"github.com/sorryhyun/DiPeO-sub002/metric"
	"github.com/sorryhyun/DiPeO-sub002/registry"
)

// Drop reasons used for logging and metrics.
const (
	dropOrphanHandle   = "orphan_handle"
	dropDanglingArrow  = "dangling_arrow"
	dropDuplicateArrow = "duplicate_arrow"
)

// defaultTransientKeys are the layout-only node data flags the editor layer
// folds into node data at runtime. User-authored fields are never listed
// here.
var defaultTransientKeys = []string{"_selected", "_hover", "_dragging", "_highlight"}

// transientKeyPrefix marks derived display-only fields by convention.
const transientKeyPrefix = "_"

// Serializer produces export snapshots from graph bundles.
type Serializer struct {
	reg           *registry.Registry
	logger        *slog.Logger
	metrics       *metric.Metrics
	transientKeys map[string]bool
}

// Option configures a Serializer.
type Option func(*Serializer)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Serializer) { s.logger = logger }
}

// WithMetrics counts dropped entities by reason.
func WithMetrics(m *metric.Metrics) Option {
	return func(s *Serializer) { s.metrics = m }
}

// WithTransientKeys replaces the default set of node data keys stripped
// before export. Underscore-prefixed keys are always stripped.
func WithTransientKeys(keys ...string) Option {
	return func(s *Serializer) {
		s.transientKeys = make(map[string]bool, len(keys))
		for _, k := range keys {
			s.transientKeys[k] = true
		}
	}
}

// NewSerializer creates a serializer backed by the given node-type registry.
func NewSerializer(reg *registry.Registry, opts ...Option) *Serializer {
	s := &Serializer{
		reg:           reg,
		logger:        slog.Default(),
		transientKeys: make(map[string]bool, len(defaultTransientKeys)),
	}
	for _, k := range defaultTransientKeys {
		s.transientKeys[k] = true
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Serializer) drop(reason string, args ...any) {
	s.logger.Warn("dropped during export", append([]any{"reason", reason}, args...)...)
	if s.metrics != nil {
		s.metrics.SerializerDrops.WithLabelValues(reason).Inc()
	}
}

// Export runs the full pipeline over a graph snapshot and returns a
// self-consistent bundle: every arrow endpoint exists in the exported handle
// set, every handle's owner exists in the exported node set, and no two
// arrows share an ordered endpoint pair. The input is not modified.
func (s *Serializer) Export(snapshot diagram.Diagram, meta diagram.Metadata) diagram.Diagram {
	out := diagram.Diagram{
		Metadata: stampMetadata(meta),
		Nodes:    make(map[diagram.NodeID]diagram.Node, len(snapshot.Nodes)),
		Handles:  make(map[diagram.HandleID]diagram.Handle, len(snapshot.Handles)),
		Arrows:   make(map[diagram.ArrowID]diagram.Arrow, len(snapshot.Arrows)),
		Persons:  make(map[diagram.PersonID]diagram.Person, len(snapshot.Persons)),
	}

	// Steps 1 and 2: strip transient keys, backfill per-type defaults.
	for id, node := range snapshot.Nodes {
		node = node.Clone()
		node.Data = s.cleanNodeData(node)
		if s.reg != nil {
			for key, value := range s.reg.Defaults(node.Type) {
				if _, set := node.Data[key]; !set {
					node.Data[key] = value
				}
			}
		}
		out.Nodes[id] = node
	}

	// Step 3: regenerate type-defined handles, unioned with surviving
	// originals. Existing handles win on id collision so a customized
	// template handle keeps its data type and position.
	for id, h := range snapshot.Handles {
		out.Handles[id] = h
	}
	if s.reg != nil {
		for id, node := range out.Nodes {
			for _, h := range s.reg.TemplateHandles(id, node.Type) {
				if _, exists := out.Handles[h.ID]; !exists {
					out.Handles[h.ID] = h
				}
			}
		}
	}

	// Step 4: drop handles whose owning node is absent.
	for id, h := range out.Handles {
		if _, ok := out.Nodes[h.NodeID]; !ok {
			s.drop(dropOrphanHandle, "handle", id, "owner", h.NodeID)
			delete(out.Handles, id)
		}
	}

	// Steps 5 and 6: drop dangling arrows, then deduplicate by ordered
	// endpoint pair. Arrows are walked in id order so "first wins" is
	// deterministic.
	seen := make(map[string]diagram.ArrowID, len(snapshot.Arrows))
	for _, id := range sortedArrowIDs(snapshot.Arrows) {
		arrow := snapshot.Arrows[id].Clone()
		if !s.arrowResolves(arrow, out) {
			continue
		}
		pair := string(arrow.Source) + "\x00" + string(arrow.Target)
		if first, dup := seen[pair]; dup {
			s.drop(dropDuplicateArrow, "arrow", id, "kept", first)
			continue
		}
		seen[pair] = id
		out.Arrows[id] = arrow
	}

	// Step 7: strip display-only person fields.
	for id, p := range snapshot.Persons {
		p = p.Clone()
		p.Display = nil
		out.Persons[id] = p
	}

	return out
}

// cleanNodeData removes transient and derived display-only keys.
func (s *Serializer) cleanNodeData(node diagram.Node) map[string]any {
	cleaned := make(map[string]any, len(node.Data))
	for key, value := range node.Data {
		if s.transientKeys[key] || strings.HasPrefix(key, transientKeyPrefix) {
			continue
		}
		cleaned[key] = value
	}
	return cleaned
}

// arrowResolves checks that both endpoints exist in the final handle set and
// their owners survived, logging the drop otherwise.
func (s *Serializer) arrowResolves(arrow diagram.Arrow, out diagram.Diagram) bool {
	for _, endpoint := range []diagram.HandleID{arrow.Source, arrow.Target} {
		h, ok := out.Handles[endpoint]
		if !ok {
			s.drop(dropDanglingArrow, "arrow", arrow.ID, "endpoint", endpoint)
			return false
		}
		if _, ok := out.Nodes[h.NodeID]; !ok {
			s.drop(dropDanglingArrow, "arrow", arrow.ID, "owner", h.NodeID)
			return false
		}
	}
	return true
}

func sortedArrowIDs(arrows map[diagram.ArrowID]diagram.Arrow) []diagram.ArrowID {
	ids := make([]diagram.ArrowID, 0, len(arrows))
	for id := range arrows {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// stampMetadata fills defaulted metadata fields and refreshes the update
// timestamp.
func stampMetadata(meta diagram.Metadata) diagram.Metadata {
	now := time.Now().UTC()
	if meta.Version == "" {
		meta.Version = "1.0"
	}
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = now
	}
	meta.UpdatedAt = now
	return meta
}
