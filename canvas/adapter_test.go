package canvas

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sorryhyun/DiPeO-sub002/diagram"
)

func newTestAdapter(t *testing.T) *Adapter {
	t.Helper()
	a, err := NewAdapter(WithCacheSize(16))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func testNode() (diagram.Node, []diagram.Handle) {
	node := diagram.Node{
		ID:       "pj1",
		Type:     diagram.NodePersonJob,
		Position: diagram.Point{X: 100, Y: 50},
		Data:     map[string]any{"max_iteration": 3},
		Version:  7,
	}
	handles := []diagram.Handle{
		{
			ID:        diagram.EncodeHandleIDWithDirection("pj1", "default", diagram.DirectionInput),
			NodeID:    "pj1",
			Label:     "default",
			Direction: diagram.DirectionInput,
			DataType:  diagram.DataAny,
			Position:  diagram.PositionLeft,
		},
		{
			ID:        diagram.EncodeHandleIDWithDirection("pj1", "default", diagram.DirectionOutput),
			NodeID:    "pj1",
			Label:     "default",
			Direction: diagram.DirectionOutput,
			DataType:  diagram.DataAny,
			Position:  diagram.PositionRight,
		},
	}
	return node, handles
}

func TestNodeToCanvas(t *testing.T) {
	a := newTestAdapter(t)
	node, handles := testNode()

	visual := a.NodeToCanvas(node, handles)
	assert.Equal(t, "pj1", visual.ID)
	assert.Equal(t, "person_job", visual.Type)
	assert.Equal(t, node.Position, visual.Position)
	assert.Equal(t, 3, visual.Data["max_iteration"])

	require.Contains(t, visual.Inputs, "default")
	require.Contains(t, visual.Outputs, "default")
	assert.Equal(t, handles[0].ID, visual.Inputs["default"].ID)
	assert.Equal(t, handles[1].ID, visual.Outputs["default"].ID)
}

func TestNodeToCanvasCacheHitAndInvalidation(t *testing.T) {
	a := newTestAdapter(t)
	node, handles := testNode()

	first := a.NodeToCanvas(node, handles)
	second := a.NodeToCanvas(node, handles)
	assert.Equal(t, first, second)
	assert.EqualValues(t, 1, a.nodes.Stats().Hits())

	// Revision bump invalidates.
	node.Version = 8
	node.Data["max_iteration"] = 4
	third := a.NodeToCanvas(node, handles)
	assert.Equal(t, 4, third.Data["max_iteration"])

	// Handle-set shrink invalidates even at the same revision.
	fourth := a.NodeToCanvas(node, handles[:1])
	assert.Empty(t, fourth.Outputs)

	// Relabel invalidates even with the same length.
	relabeled := make([]diagram.Handle, 1)
	relabeled[0] = handles[0]
	relabeled[0].Label = "renamed"
	fifth := a.NodeToCanvas(node, relabeled)
	assert.Contains(t, fifth.Inputs, "renamed")
}

func TestArrowToCanvas(t *testing.T) {
	a := newTestAdapter(t)
	arrow := diagram.Arrow{
		ID:          "arrow_1",
		Source:      diagram.EncodeHandleIDWithDirection("cond_1", "true", diagram.DirectionOutput),
		Target:      diagram.EncodeHandleIDWithDirection("job_2", "default", diagram.DirectionInput),
		Label:       "yes",
		ContentType: diagram.ContentVariable,
		Data:        map[string]any{diagram.BranchKey: "true"},
		Version:     3,
	}

	visual, ok := a.ArrowToCanvas(arrow)
	require.True(t, ok)
	assert.Equal(t, "cond_1", visual.SourceNode)
	assert.Equal(t, "true", visual.SourceHandle)
	assert.Equal(t, "job_2", visual.TargetNode)
	assert.Equal(t, "default", visual.TargetHandle)
	assert.Equal(t, "yes", visual.Label)
	assert.Equal(t, "variable", visual.ContentType)

	// Cached until the revision moves.
	_, ok = a.ArrowToCanvas(arrow)
	require.True(t, ok)
	assert.EqualValues(t, 1, a.edges.Stats().Hits())

	arrow.Version = 4
	arrow.Label = "changed"
	visual, ok = a.ArrowToCanvas(arrow)
	require.True(t, ok)
	assert.Equal(t, "changed", visual.Label)
}

func TestArrowToCanvasUndecodableEndpoints(t *testing.T) {
	a := newTestAdapter(t)

	_, ok := a.ArrowToCanvas(diagram.Arrow{ID: "a1", Source: "garbage", Target: "node_1_default"})
	assert.False(t, ok)

	_, ok = a.ArrowToCanvas(diagram.Arrow{ID: "a2", Source: "node_1_default", Target: ""})
	assert.False(t, ok)
}

func TestCanvasToNodeRoundTrip(t *testing.T) {
	a := newTestAdapter(t)
	node, handles := testNode()
	node.Flip = &diagram.Flip{Vertical: true}

	visual := a.NodeToCanvas(node, handles)
	back := a.CanvasToNode(visual)

	assert.Equal(t, node.ID, back.ID)
	assert.Equal(t, node.Type, back.Type)
	assert.Equal(t, node.Position, back.Position)
	assert.Equal(t, node.Data, back.Data)
	require.NotNil(t, back.Flip)
	assert.Equal(t, *node.Flip, *back.Flip)
	assert.NotSame(t, node.Flip, back.Flip, "conversions detach the flip from the stored node")
}

func TestCanvasToArrowEncodesEndpoints(t *testing.T) {
	a := newTestAdapter(t)

	arrow := a.CanvasToArrow(VisualEdge{
		SourceNode:   "cond_1",
		SourceHandle: "false",
		TargetNode:   "job_2",
		TargetHandle: "default",
		Label:        "no",
	})

	assert.Equal(t, diagram.EncodeHandleIDWithDirection("cond_1", "false", diagram.DirectionOutput), arrow.Source)
	assert.Equal(t, diagram.EncodeHandleIDWithDirection("job_2", "default", diagram.DirectionInput), arrow.Target)
	assert.Equal(t, "no", arrow.Label)
	assert.Empty(t, arrow.ID, "store assigns ids for drawn connections")
}

func TestInvalidateAll(t *testing.T) {
	a := newTestAdapter(t)
	node, handles := testNode()
	a.NodeToCanvas(node, handles)

	a.InvalidateAll()
	assert.Zero(t, a.nodes.Size())
	assert.Zero(t, a.edges.Size())
}

func TestInvalidateSingleEntries(t *testing.T) {
	a := newTestAdapter(t)
	node, handles := testNode()
	a.NodeToCanvas(node, handles)
	require.Equal(t, 1, a.nodes.Size())

	a.InvalidateNode(node.ID)
	assert.Zero(t, a.nodes.Size())
}
