package canvas

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/sorryhyun/DiPeO-sub002/diagram"
	"github.com/sorryhyun/DiPeO-sub002/pkg/cache"
)

// DefaultCacheSize bounds each conversion cache when no override is given.
const DefaultCacheSize = 1024

type cachedNode struct {
	fingerprint string
	visual      VisualNode
}

type cachedEdge struct {
	fingerprint string
	visual      VisualEdge
}

// Adapter converts graph entities to and from the canvas engine's native
// representation. Conversions are cached by entity id and checked against a
// revision fingerprint; InvalidateAll clears everything when an independent
// diagram is loaded.
type Adapter struct {
	nodes  cache.Cache[cachedNode]
	edges  cache.Cache[cachedEdge]
	logger *slog.Logger
}

// AdapterOption configures an Adapter.
type AdapterOption func(*adapterConfig)

type adapterConfig struct {
	cacheSize    int
	cacheOptions []cache.Option[cachedNode]
	edgeOptions  []cache.Option[cachedEdge]
	logger       *slog.Logger
}

// WithCacheSize bounds the per-entity conversion caches.
func WithCacheSize(size int) AdapterOption {
	return func(c *adapterConfig) {
		if size > 0 {
			c.cacheSize = size
		}
	}
}

// WithAdapterLogger sets the structured logger.
func WithAdapterLogger(logger *slog.Logger) AdapterOption {
	return func(c *adapterConfig) { c.logger = logger }
}

// NewAdapter creates an adapter with LRU conversion caches.
func NewAdapter(opts ...AdapterOption) (*Adapter, error) {
	cfg := adapterConfig{
		cacheSize: DefaultCacheSize,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	cacheCfg := cache.Config{Type: cache.TypeLRU, MaxSize: cfg.cacheSize}
	nodes, err := cache.NewFromConfig(cacheCfg, cfg.cacheOptions...)
	if err != nil {
		return nil, err
	}
	edges, err := cache.NewFromConfig(cacheCfg, cfg.edgeOptions...)
	if err != nil {
		return nil, err
	}
	return &Adapter{nodes: nodes, edges: edges, logger: cfg.logger}, nil
}

// nodeFingerprint captures everything a cached visual node depends on: the
// node's revision plus the identity of each handle. Any handle added,
// removed, relabeled, or redirected changes the fingerprint.
func nodeFingerprint(node diagram.Node, handles []diagram.Handle) string {
	parts := make([]string, 0, len(handles)+1)
	parts = append(parts, fmt.Sprintf("v%d:h%d", node.Version, len(handles)))
	for _, h := range handles {
		parts = append(parts, string(h.ID)+"|"+h.Label+"|"+string(h.Direction))
	}
	sort.Strings(parts[1:])
	return strings.Join(parts, ";")
}

// NodeToCanvas builds the visual node for a graph node and its handles.
// Results are cached by node id and reused until the node or its handle set
// changes.
func (a *Adapter) NodeToCanvas(node diagram.Node, handles []diagram.Handle) VisualNode {
	fp := nodeFingerprint(node, handles)
	if entry, ok := a.nodes.Get(string(node.ID)); ok && entry.fingerprint == fp {
		return entry.visual
	}

	clone := node.Clone()
	visual := VisualNode{
		ID:       string(node.ID),
		Type:     string(node.Type),
		Position: node.Position,
		Flip:     clone.Flip,
		Inputs:   make(map[string]VisualHandle),
		Outputs:  make(map[string]VisualHandle),
		Data:     clone.Data,
	}
	for _, h := range handles {
		vh := VisualHandle{
			ID:       h.ID,
			Label:    h.Label,
			DataType: h.DataType,
			Position: h.Position,
		}
		switch h.Direction {
		case diagram.DirectionInput:
			visual.Inputs[h.Label] = vh
		case diagram.DirectionOutput:
			visual.Outputs[h.Label] = vh
		}
	}

	if _, err := a.nodes.Set(string(node.ID), cachedNode{fingerprint: fp, visual: visual}); err != nil {
		a.logger.Warn("visual node cache write failed", "node", node.ID, "error", err)
	}
	return visual
}

// ArrowToCanvas builds the visual edge for an arrow, decoding both composite
// handle ids into the engine's (node, label) addressing. Arrows whose
// endpoints cannot be decoded return ok=false and are treated as orphaned by
// the caller.
func (a *Adapter) ArrowToCanvas(arrow diagram.Arrow) (VisualEdge, bool) {
	fp := fmt.Sprintf("v%d", arrow.Version)
	if entry, ok := a.edges.Get(string(arrow.ID)); ok && entry.fingerprint == fp {
		return entry.visual, true
	}

	src, ok := diagram.DecodeHandleID(arrow.Source)
	if !ok {
		a.logger.Warn("arrow with undecodable source", "arrow", arrow.ID, "source", arrow.Source)
		return VisualEdge{}, false
	}
	tgt, ok := diagram.DecodeHandleID(arrow.Target)
	if !ok {
		a.logger.Warn("arrow with undecodable target", "arrow", arrow.ID, "target", arrow.Target)
		return VisualEdge{}, false
	}

	visual := VisualEdge{
		ID:           string(arrow.ID),
		SourceNode:   string(src.NodeID),
		SourceHandle: src.Label,
		TargetNode:   string(tgt.NodeID),
		TargetHandle: tgt.Label,
		Label:        arrow.Label,
		ContentType:  string(arrow.ContentType),
		Data:         arrow.Clone().Data,
	}

	if _, err := a.edges.Set(string(arrow.ID), cachedEdge{fingerprint: fp, visual: visual}); err != nil {
		a.logger.Warn("visual edge cache write failed", "arrow", arrow.ID, "error", err)
	}
	return visual, true
}

// CanvasToNode folds a canvas-reported node edit back into graph terms. Only
// identity, position, flip, and data survive the inverse conversion; handles
// are store-owned and never round-trip through the canvas.
func (a *Adapter) CanvasToNode(visual VisualNode) diagram.Node {
	node := diagram.Node{
		ID:       diagram.NodeID(visual.ID),
		Type:     diagram.NodeType(visual.Type),
		Position: visual.Position.Clamp(),
	}
	if visual.Flip != nil {
		f := *visual.Flip
		node.Flip = &f
	}
	if visual.Data != nil {
		node.Data = make(map[string]any, len(visual.Data))
		for k, v := range visual.Data {
			node.Data[k] = v
		}
	}
	return node
}

// CanvasToArrow folds a freshly drawn connection back into graph terms,
// re-encoding the engine's (node, label) endpoint addressing into composite
// handle ids. The source is the drawn edge's output side and the target its
// input side. The returned arrow carries no id; the store assigns one.
func (a *Adapter) CanvasToArrow(visual VisualEdge) diagram.Arrow {
	arrow := diagram.Arrow{
		ID:          diagram.ArrowID(visual.ID),
		Source:      diagram.EncodeHandleIDWithDirection(diagram.NodeID(visual.SourceNode), visual.SourceHandle, diagram.DirectionOutput),
		Target:      diagram.EncodeHandleIDWithDirection(diagram.NodeID(visual.TargetNode), visual.TargetHandle, diagram.DirectionInput),
		Label:       visual.Label,
		ContentType: diagram.ContentType(visual.ContentType),
	}
	if visual.Data != nil {
		arrow.Data = make(map[string]any, len(visual.Data))
		for k, v := range visual.Data {
			arrow.Data[k] = v
		}
	}
	return arrow
}

// InvalidateNode drops the cached conversion for one node.
func (a *Adapter) InvalidateNode(id diagram.NodeID) {
	if _, err := a.nodes.Delete(string(id)); err != nil {
		a.logger.Warn("visual node cache invalidation failed", "node", id, "error", err)
	}
}

// InvalidateArrow drops the cached conversion for one arrow.
func (a *Adapter) InvalidateArrow(id diagram.ArrowID) {
	if _, err := a.edges.Delete(string(id)); err != nil {
		a.logger.Warn("visual edge cache invalidation failed", "arrow", id, "error", err)
	}
}

// InvalidateAll clears both conversion caches. Must be called when an
// independent diagram is loaded: identity-keyed caching is meaningless across
// datasets.
func (a *Adapter) InvalidateAll() {
	if err := a.nodes.Clear(); err != nil {
		a.logger.Warn("visual node cache clear failed", "error", err)
	}
	if err := a.edges.Clear(); err != nil {
		a.logger.Warn("visual edge cache clear failed", "error", err)
	}
}

// Close releases cache resources.
func (a *Adapter) Close() error {
	if err := a.nodes.Close(); err != nil {
		return err
	}
	return a.edges.Close()
}
