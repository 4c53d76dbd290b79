package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sorryhyun/DiPeO-sub002/canvas"
	"github.com/sorryhyun/DiPeO-sub002/diagram"
	"github.com/sorryhyun/DiPeO-sub002/graphstore"
	"github.com/sorryhyun/DiPeO-sub002/metric"
	"github.com/sorryhyun/DiPeO-sub002/serializer"
	"github.com/sorryhyun/DiPeO-sub002/validation"
)

const (
	writeWait      = 10 * time.Second
	sendBufferSize = 32
)

// Persistence is the diagram persistence surface the gateway uses.
// *diagramstore.Store satisfies it.
type Persistence interface {
	Get(ctx context.Context, id string) (diagram.Diagram, uint64, error)
	Save(ctx context.Context, d diagram.Diagram) (uint64, error)
}

// Gateway folds canvas events into graph operations and pushes committed
// state back to connected sessions.
type Gateway struct {
	store      *graphstore.Store
	adapter    *canvas.Adapter
	batcher    *canvas.PositionBatcher
	validator  *validation.Validator
	serializer *serializer.Serializer
	diagrams   Persistence

	upgrader websocket.Upgrader
	logger   *slog.Logger
	metrics  *metric.Metrics

	mu        sync.RWMutex
	sessions  map[*session]struct{}
	diagramID string

	unsubscribe func()
}

// session is one connected canvas client.
type session struct {
	conn *websocket.Conn
	send chan []byte
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) { g.logger = logger }
}

// WithMetrics tracks active sessions.
func WithMetrics(m *metric.Metrics) Option {
	return func(g *Gateway) { g.metrics = m }
}

// NewGateway wires the gateway to the graph core. diagrams may be nil, which
// disables load/save.
func NewGateway(
	store *graphstore.Store,
	adapter *canvas.Adapter,
	batcher *canvas.PositionBatcher,
	validator *validation.Validator,
	ser *serializer.Serializer,
	diagrams Persistence,
	opts ...Option,
) *Gateway {
	g := &Gateway{
		store:      store,
		adapter:    adapter,
		batcher:    batcher,
		validator:  validator,
		serializer: ser,
		diagrams:   diagrams,
		logger:     slog.Default(),
		sessions:   make(map[*session]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
	for _, opt := range opts {
		opt(g)
	}
	g.unsubscribe = store.Subscribe(func(ev graphstore.Event) {
		g.broadcastState(ev.Version)
	})
	return g
}

// ServeHTTP upgrades the connection and runs the session loops.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	s := &session{conn: conn, send: make(chan []byte, sendBufferSize)}
	g.addSession(s)
	defer g.removeSession(s)

	go s.writePump()

	// Push the current state so a joining client renders immediately.
	g.sendState(s, g.store.Version())

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				g.logger.Warn("websocket read failed", "error", err)
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			g.send(s, errorEnvelope("malformed envelope"))
			continue
		}
		if resp := g.Dispatch(r.Context(), env); resp != nil {
			g.send(s, *resp)
		}
	}
}

// Dispatch applies one canvas event to the graph core and returns the direct
// response to the issuing client, or nil when the only observable effect is
// the state broadcast that follows a commit.
func (g *Gateway) Dispatch(ctx context.Context, env Envelope) *Envelope {
	switch env.Type {
	case "move":
		return g.handleMove(env.Payload, false)
	case "drag_end":
		return g.handleMove(env.Payload, true)
	case "add_node":
		return g.handleAddNode(env.Payload)
	case "update_node":
		return g.handleUpdateNode(env.Payload)
	case "connect":
		return g.handleConnect(env.Payload)
	case "delete_node", "delete_arrow":
		return g.handleDelete(env.Payload)
	case "undo":
		g.store.Undo()
		return nil
	case "redo":
		g.store.Redo()
		return nil
	case "clear":
		g.store.ClearAll()
		return nil
	case "load":
		return g.handleLoad(ctx, env.Payload)
	case "save":
		return g.handleSave(ctx)
	case "state":
		resp := g.stateEnvelope(g.store.Version())
		return &resp
	default:
		return errorEnvelopePtr(fmt.Sprintf("unknown event type %q", env.Type))
	}
}

func (g *Gateway) handleMove(payload json.RawMessage, final bool) *Envelope {
	var p MovePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return errorEnvelopePtr("malformed move payload")
	}
	pos := diagram.Point{X: p.X, Y: p.Y}
	if final {
		g.batcher.EndDrag(p.NodeID, pos)
	} else {
		g.batcher.Push(p.NodeID, pos)
	}
	return nil
}

func (g *Gateway) handleAddNode(payload json.RawMessage) *Envelope {
	var p NodePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return errorEnvelopePtr("malformed node payload")
	}
	if _, err := g.store.AddNode(g.adapter.CanvasToNode(p.Node)); err != nil {
		return errorEnvelopePtr(err.Error())
	}
	return nil
}

func (g *Gateway) handleUpdateNode(payload json.RawMessage) *Envelope {
	var p NodePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return errorEnvelopePtr("malformed node payload")
	}
	g.store.UpdateNode(g.adapter.CanvasToNode(p.Node))
	return nil
}

// handleConnect gates a drawn connection through the validator. Rejections
// go back to the issuing client only; an accepted connection commits and
// reaches everyone through the state broadcast.
func (g *Gateway) handleConnect(payload json.RawMessage) *Envelope {
	var p ConnectPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return errorEnvelopePtr("malformed connect payload")
	}

	proposed := g.adapter.CanvasToArrow(p.Edge)
	res := g.validator.Validate(proposed.Source, proposed.Target, g.store)
	if !res.OK {
		env, err := envelope("rejected", RejectedPayload{
			Reason: string(res.Reason),
			Detail: res.Detail,
		})
		if err != nil {
			return errorEnvelopePtr("encoding failure")
		}
		return &env
	}

	data := proposed.Data
	if branchData := res.ArrowData(); branchData != nil {
		if data == nil {
			data = branchData
		} else {
			data[diagram.BranchKey] = branchData[diagram.BranchKey]
		}
	}
	arrow, err := g.store.AddArrow(proposed.Source, proposed.Target, data)
	if err != nil {
		return errorEnvelopePtr(err.Error())
	}
	if proposed.Label != "" || proposed.ContentType != "" {
		arrow.Label = proposed.Label
		arrow.ContentType = proposed.ContentType
		g.store.UpdateArrow(arrow)
	}
	return nil
}

func (g *Gateway) handleDelete(payload json.RawMessage) *Envelope {
	var p DeletePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return errorEnvelopePtr("malformed delete payload")
	}
	if p.NodeID != "" {
		g.store.DeleteNode(p.NodeID)
		g.adapter.InvalidateNode(p.NodeID)
	}
	if p.ArrowID != "" {
		g.store.DeleteArrow(p.ArrowID)
		g.adapter.InvalidateArrow(p.ArrowID)
	}
	return nil
}

func (g *Gateway) handleLoad(ctx context.Context, payload json.RawMessage) *Envelope {
	if g.diagrams == nil {
		return errorEnvelopePtr("persistence disabled")
	}
	var p DiagramPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return errorEnvelopePtr("malformed load payload")
	}

	d, _, err := g.diagrams.Get(ctx, p.DiagramID)
	if err != nil {
		return errorEnvelopePtr(err.Error())
	}

	g.mu.Lock()
	g.diagramID = p.DiagramID
	g.mu.Unlock()

	// Conversion caches are identity-keyed; they are meaningless for an
	// independently loaded dataset.
	g.adapter.InvalidateAll()
	g.store.LoadDiagram(d)
	return nil
}

func (g *Gateway) handleSave(ctx context.Context) *Envelope {
	if g.diagrams == nil {
		return errorEnvelopePtr("persistence disabled")
	}

	g.mu.RLock()
	id := g.diagramID
	g.mu.RUnlock()
	if id == "" {
		return errorEnvelopePtr("no diagram loaded")
	}

	snapshot, _ := g.store.Snapshot()
	exported := g.serializer.Export(snapshot, diagram.Metadata{ID: id})
	revision, err := g.diagrams.Save(ctx, exported)
	if err != nil {
		return errorEnvelopePtr(err.Error())
	}

	env, err := envelope("saved", SavedPayload{DiagramID: id, Revision: revision})
	if err != nil {
		return errorEnvelopePtr("encoding failure")
	}
	return &env
}

// State renders the full visual state at the given store version.
func (g *Gateway) State(version uint64) StatePayload {
	snapshot, _ := g.store.Snapshot()

	nodes := make([]canvas.VisualNode, 0, len(snapshot.Nodes))
	for _, id := range sortedNodeIDs(snapshot.Nodes) {
		node := snapshot.Nodes[id]
		handles := make([]diagram.Handle, 0, 4)
		for _, h := range snapshot.Handles {
			if h.NodeID == id {
				handles = append(handles, h)
			}
		}
		nodes = append(nodes, g.adapter.NodeToCanvas(node, handles))
	}

	edges := make([]canvas.VisualEdge, 0, len(snapshot.Arrows))
	for _, arrow := range snapshot.Arrows {
		if edge, ok := g.adapter.ArrowToCanvas(arrow); ok {
			edges = append(edges, edge)
		}
	}
	sort.Slice(edges, func(i, j int) bool { return edges[i].ID < edges[j].ID })

	return StatePayload{Version: version, Nodes: nodes, Edges: edges}
}

func (g *Gateway) stateEnvelope(version uint64) Envelope {
	env, err := envelope("state", g.State(version))
	if err != nil {
		g.logger.Error("state encoding failed", "error", err)
		return errorEnvelope("encoding failure")
	}
	return env
}

func (g *Gateway) broadcastState(version uint64) {
	g.mu.RLock()
	empty := len(g.sessions) == 0
	g.mu.RUnlock()
	if empty {
		return
	}

	env := g.stateEnvelope(version)
	data, err := json.Marshal(env)
	if err != nil {
		return
	}

	g.mu.RLock()
	defer g.mu.RUnlock()
	for s := range g.sessions {
		select {
		case s.send <- data:
		default:
			g.logger.Warn("dropping state push for slow session")
		}
	}
}

func (g *Gateway) sendState(s *session, version uint64) {
	g.send(s, g.stateEnvelope(version))
}

func (g *Gateway) send(s *session, env Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		return
	}
	select {
	case s.send <- data:
	default:
		g.logger.Warn("dropping message for slow session", "type", env.Type)
	}
}

func (g *Gateway) addSession(s *session) {
	g.mu.Lock()
	g.sessions[s] = struct{}{}
	count := len(g.sessions)
	g.mu.Unlock()

	if g.metrics != nil {
		g.metrics.GatewaySessions.Set(float64(count))
	}
	g.logger.Info("canvas session opened", "sessions", count)
}

func (g *Gateway) removeSession(s *session) {
	g.mu.Lock()
	delete(g.sessions, s)
	count := len(g.sessions)
	g.mu.Unlock()

	close(s.send)
	if g.metrics != nil {
		g.metrics.GatewaySessions.Set(float64(count))
	}
	g.logger.Info("canvas session closed", "sessions", count)
}

// Close detaches from the store and closes all sessions.
func (g *Gateway) Close() {
	if g.unsubscribe != nil {
		g.unsubscribe()
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	for s := range g.sessions {
		_ = s.conn.Close()
	}
}

func (s *session) writePump() {
	for data := range s.send {
		_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
	_ = s.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func errorEnvelope(message string) Envelope {
	env, _ := envelope("error", ErrorPayload{Message: message})
	return env
}

func errorEnvelopePtr(message string) *Envelope {
	env := errorEnvelope(message)
	return &env
}

func sortedNodeIDs(nodes map[diagram.NodeID]diagram.Node) []diagram.NodeID {
	ids := make([]diagram.NodeID, 0, len(nodes))
	for id := range nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
