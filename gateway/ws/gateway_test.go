package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sorryhyun/DiPeO-sub002/canvas"
	"github.com/sorryhyun/DiPeO-sub002/diagram"
	"github.com/sorryhyun/DiPeO-sub002/errors"
	"github.com/sorryhyun/DiPeO-sub002/graphstore"
	"github.com/sorryhyun/DiPeO-sub002/registry"
	"github.com/sorryhyun/DiPeO-sub002/serializer"
	"github.com/sorryhyun/DiPeO-sub002/validation"
)

// fakePersistence is an in-memory Persistence for dispatch tests.
type fakePersistence struct {
	diagrams map[string]diagram.Diagram
	revision uint64
}

func (f *fakePersistence) Get(_ context.Context, id string) (diagram.Diagram, uint64, error) {
	d, ok := f.diagrams[id]
	if !ok {
		return diagram.Diagram{}, 0, errors.WrapInvalid(
			fmt.Errorf("%w: %s", errors.ErrKeyNotFound, id), "fake", "Get", "lookup")
	}
	return d, f.revision, nil
}

func (f *fakePersistence) Save(_ context.Context, d diagram.Diagram) (uint64, error) {
	if f.diagrams == nil {
		f.diagrams = map[string]diagram.Diagram{}
	}
	f.revision++
	f.diagrams[d.Metadata.ID] = d
	return f.revision, nil
}

type fixture struct {
	gateway *Gateway
	store   *graphstore.Store
	persist *fakePersistence
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg := registry.MustBuiltin()
	store := graphstore.NewStore(graphstore.WithRegistry(reg))
	adapter, err := canvas.NewAdapter(canvas.WithCacheSize(64))
	require.NoError(t, err)
	t.Cleanup(func() { _ = adapter.Close() })

	batcher := canvas.NewPositionBatcher(store, canvas.WithFrameInterval(time.Hour))
	t.Cleanup(batcher.Close)

	persist := &fakePersistence{diagrams: map[string]diagram.Diagram{}}
	g := NewGateway(store, adapter, batcher, validation.NewValidator(),
		serializer.NewSerializer(reg), persist)
	t.Cleanup(g.Close)

	return &fixture{gateway: g, store: store, persist: persist}
}

func event(t *testing.T, typ string, payload any) Envelope {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return Envelope{Type: typ, Payload: data}
}

func decode[T any](t *testing.T, env *Envelope) T {
	t.Helper()
	require.NotNil(t, env)
	var v T
	require.NoError(t, json.Unmarshal(env.Payload, &v))
	return v
}

func (f *fixture) addNode(t *testing.T, id, nodeType string) {
	t.Helper()
	resp := f.gateway.Dispatch(context.Background(), event(t, "add_node", NodePayload{
		Node: canvas.VisualNode{ID: id, Type: nodeType},
	}))
	require.Nil(t, resp)
}

func TestDispatchAddAndConnect(t *testing.T) {
	f := newFixture(t)
	f.addNode(t, "a", "start")
	f.addNode(t, "b", "endpoint")

	resp := f.gateway.Dispatch(context.Background(), event(t, "connect", ConnectPayload{
		Edge: canvas.VisualEdge{
			SourceNode: "a", SourceHandle: "default",
			TargetNode: "b", TargetHandle: "default",
		},
	}))
	assert.Nil(t, resp, "accepted connections answer through the state broadcast")

	_, _, arrows, _ := f.store.Counts()
	assert.Equal(t, 1, arrows)
}

func TestDispatchConnectRejectionFeedback(t *testing.T) {
	f := newFixture(t)
	f.addNode(t, "a", "db")

	resp := f.gateway.Dispatch(context.Background(), event(t, "connect", ConnectPayload{
		Edge: canvas.VisualEdge{
			SourceNode: "a", SourceHandle: "default",
			TargetNode: "a", TargetHandle: "default",
		},
	}))
	require.NotNil(t, resp)
	assert.Equal(t, "rejected", resp.Type)

	rejected := decode[RejectedPayload](t, resp)
	assert.Equal(t, string(validation.ReasonSelfConnection), rejected.Reason)

	_, _, arrows, _ := f.store.Counts()
	assert.Zero(t, arrows, "rejected connection is discarded")
}

func TestDispatchConnectAttachesBranch(t *testing.T) {
	f := newFixture(t)
	f.addNode(t, "c", "condition")
	f.addNode(t, "b", "endpoint")

	resp := f.gateway.Dispatch(context.Background(), event(t, "connect", ConnectPayload{
		Edge: canvas.VisualEdge{
			SourceNode: "c", SourceHandle: "true",
			TargetNode: "b", TargetHandle: "default",
		},
	}))
	require.Nil(t, resp)

	snapshot, _ := f.store.Snapshot()
	require.Len(t, snapshot.Arrows, 1)
	for _, a := range snapshot.Arrows {
		branch, ok := a.Branch()
		require.True(t, ok)
		assert.Equal(t, "true", branch)
	}
}

func TestDispatchMoveAndDragEnd(t *testing.T) {
	f := newFixture(t)
	f.addNode(t, "a", "note")

	resp := f.gateway.Dispatch(context.Background(), event(t, "move", MovePayload{NodeID: "a", X: 5, Y: 5}))
	require.Nil(t, resp)
	node, _ := f.store.Node("a")
	assert.Zero(t, node.Position.X, "moves are batched, not written through")

	resp = f.gateway.Dispatch(context.Background(), event(t, "drag_end", MovePayload{NodeID: "a", X: 30, Y: 40}))
	require.Nil(t, resp)
	node, _ = f.store.Node("a")
	assert.Equal(t, diagram.Point{X: 30, Y: 40}, node.Position)
}

func TestDispatchDeleteNodeCascades(t *testing.T) {
	f := newFixture(t)
	f.addNode(t, "a", "start")
	f.addNode(t, "b", "endpoint")
	require.Nil(t, f.gateway.Dispatch(context.Background(), event(t, "connect", ConnectPayload{
		Edge: canvas.VisualEdge{
			SourceNode: "a", SourceHandle: "default",
			TargetNode: "b", TargetHandle: "default",
		},
	})))

	resp := f.gateway.Dispatch(context.Background(), event(t, "delete_node", DeletePayload{NodeID: "a"}))
	require.Nil(t, resp)

	nodes, _, arrows, _ := f.store.Counts()
	assert.Equal(t, 1, nodes)
	assert.Zero(t, arrows)
}

func TestDispatchUndoRedo(t *testing.T) {
	f := newFixture(t)
	f.addNode(t, "a", "note")

	require.Nil(t, f.gateway.Dispatch(context.Background(), Envelope{Type: "undo"}))
	nodes, _, _, _ := f.store.Counts()
	assert.Zero(t, nodes)

	require.Nil(t, f.gateway.Dispatch(context.Background(), Envelope{Type: "redo"}))
	nodes, _, _, _ = f.store.Counts()
	assert.Equal(t, 1, nodes)
}

func TestDispatchSaveAndLoad(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Nothing loaded yet.
	resp := f.gateway.Dispatch(ctx, Envelope{Type: "save"})
	require.NotNil(t, resp)
	assert.Equal(t, "error", resp.Type)

	// Seed a persisted diagram, load it, extend it, save it.
	f.persist.diagrams["flow-1"] = diagram.Diagram{
		Metadata: diagram.Metadata{ID: "flow-1", Name: "seed"},
		Nodes: map[diagram.NodeID]diagram.Node{
			"seed": {ID: "seed", Type: diagram.NodeStart, Data: map[string]any{}},
		},
	}

	resp = f.gateway.Dispatch(ctx, event(t, "load", DiagramPayload{DiagramID: "flow-1"}))
	require.Nil(t, resp)
	_, ok := f.store.Node("seed")
	assert.True(t, ok)

	f.addNode(t, "extra", "note")

	resp = f.gateway.Dispatch(ctx, Envelope{Type: "save"})
	require.NotNil(t, resp)
	require.Equal(t, "saved", resp.Type)
	saved := decode[SavedPayload](t, resp)
	assert.Equal(t, "flow-1", saved.DiagramID)

	stored := f.persist.diagrams["flow-1"]
	assert.Len(t, stored.Nodes, 2)
	assert.Contains(t, stored.Handles, diagram.EncodeHandleIDWithDirection("seed", "default", diagram.DirectionOutput),
		"export regenerates template handles")
}

func TestDispatchLoadUnknownDiagram(t *testing.T) {
	f := newFixture(t)
	resp := f.gateway.Dispatch(context.Background(), event(t, "load", DiagramPayload{DiagramID: "ghost"}))
	require.NotNil(t, resp)
	assert.Equal(t, "error", resp.Type)
}

func TestDispatchStateRequest(t *testing.T) {
	f := newFixture(t)
	f.addNode(t, "a", "start")

	resp := f.gateway.Dispatch(context.Background(), Envelope{Type: "state"})
	require.NotNil(t, resp)
	require.Equal(t, "state", resp.Type)

	state := decode[StatePayload](t, resp)
	assert.Equal(t, f.store.Version(), state.Version)
	require.Len(t, state.Nodes, 1)
	assert.Contains(t, state.Nodes[0].Outputs, "default")
}

func TestDispatchUnknownType(t *testing.T) {
	f := newFixture(t)
	resp := f.gateway.Dispatch(context.Background(), Envelope{Type: "bogus"})
	require.NotNil(t, resp)
	assert.Equal(t, "error", resp.Type)
}
