package serializer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sorryhyun/DiPeO-sub002/diagram"
	"github.com/sorryhyun/DiPeO-sub002/graphstore"
	"github.com/sorryhyun/DiPeO-sub002/registry"
)

func newTestSerializer(t *testing.T, opts ...Option) *Serializer {
	t.Helper()
	return NewSerializer(registry.MustBuiltin(), opts...)
}

func newGraph(t *testing.T) *graphstore.Store {
	t.Helper()
	return graphstore.NewStore(graphstore.WithRegistry(registry.MustBuiltin()))
}

func mustAddNode(t *testing.T, s *graphstore.Store, id diagram.NodeID, nt diagram.NodeType, data map[string]any) {
	t.Helper()
	_, err := s.AddNode(diagram.Node{ID: id, Type: nt, Data: data})
	require.NoError(t, err)
}

func out(nodeID diagram.NodeID, label string) diagram.HandleID {
	return diagram.EncodeHandleIDWithDirection(nodeID, label, diagram.DirectionOutput)
}

func in(nodeID diagram.NodeID, label string) diagram.HandleID {
	return diagram.EncodeHandleIDWithDirection(nodeID, label, diagram.DirectionInput)
}

// assertClosed checks the referential-closure guarantees on an exported
// bundle.
func assertClosed(t *testing.T, d diagram.Diagram) {
	t.Helper()
	for id, h := range d.Handles {
		_, ok := d.Nodes[h.NodeID]
		assert.True(t, ok, "handle %s references missing node %s", id, h.NodeID)
	}
	pairs := map[string]bool{}
	for id, a := range d.Arrows {
		_, ok := d.Handles[a.Source]
		assert.True(t, ok, "arrow %s has dangling source", id)
		_, ok = d.Handles[a.Target]
		assert.True(t, ok, "arrow %s has dangling target", id)

		pair := string(a.Source) + "->" + string(a.Target)
		assert.False(t, pairs[pair], "duplicate pair %s", pair)
		pairs[pair] = true
	}
}

func TestExportStripsTransientKeys(t *testing.T) {
	s := newGraph(t)
	mustAddNode(t, s, "n", diagram.NodeNote, map[string]any{
		"label":     "remember",
		"_selected": true,
		"_derived":  "preview",
	})

	snap, _ := s.Snapshot()
	exported := newTestSerializer(t).Export(snap, diagram.Metadata{})

	data := exported.Nodes["n"].Data
	assert.Equal(t, "remember", data["label"], "user-authored fields survive")
	assert.NotContains(t, data, "_selected")
	assert.NotContains(t, data, "_derived")
}

func TestExportBackfillsDefaults(t *testing.T) {
	snap := diagram.Diagram{
		Nodes: map[diagram.NodeID]diagram.Node{
			"c":  {ID: "c", Type: diagram.NodeCondition, Data: map[string]any{}},
			"pj": {ID: "pj", Type: diagram.NodePersonJob, Data: map[string]any{"max_iteration": 7}},
			"d":  {ID: "d", Type: diagram.NodeDB, Data: map[string]any{}},
		},
	}

	exported := newTestSerializer(t).Export(snap, diagram.Metadata{})

	assert.Equal(t, "custom", exported.Nodes["c"].Data["condition_type"])
	assert.Equal(t, 7, exported.Nodes["pj"].Data["max_iteration"], "user value wins over default")
	assert.Equal(t, false, exported.Nodes["d"].Data["serialize_json"])
}

func TestExportRegeneratesTemplateHandles(t *testing.T) {
	// A bundle whose handles were lost keeps its nodes connectable after
	// export: the registry's template set is rematerialized.
	snap := diagram.Diagram{
		Nodes: map[diagram.NodeID]diagram.Node{
			"a": {ID: "a", Type: diagram.NodeStart, Data: map[string]any{}},
		},
	}

	exported := newTestSerializer(t).Export(snap, diagram.Metadata{})
	assert.Contains(t, exported.Handles, out("a", "default"))
	assertClosed(t, exported)
}

func TestExportUnionKeepsCustomHandlesAndCustomizedTemplates(t *testing.T) {
	s := newGraph(t)
	mustAddNode(t, s, "a", diagram.NodeStart, nil)

	// Customize a template handle and add a non-template one.
	require.True(t, s.UpdateHandle(diagram.Handle{ID: out("a", "default"), DataType: diagram.DataString}))
	_, err := s.AddHandle(diagram.Handle{
		NodeID:    "a",
		Label:     "extra",
		Direction: diagram.DirectionOutput,
		DataType:  diagram.DataObject,
	})
	require.NoError(t, err)

	snap, _ := s.Snapshot()
	exported := newTestSerializer(t).Export(snap, diagram.Metadata{})

	assert.Equal(t, diagram.DataString, exported.Handles[out("a", "default")].DataType,
		"existing handle wins over regenerated template")
	assert.Contains(t, exported.Handles, out("a", "extra"), "manually added handle survives")
}

func TestExportDropsOrphanedHandles(t *testing.T) {
	snap := diagram.Diagram{
		Nodes: map[diagram.NodeID]diagram.Node{
			"a": {ID: "a", Type: diagram.NodeNote, Data: map[string]any{}},
		},
		Handles: map[diagram.HandleID]diagram.Handle{
			"ghost_default": {ID: "ghost_default", NodeID: "ghost", Label: "default", Direction: diagram.DirectionInput},
		},
	}

	exported := newTestSerializer(t).Export(snap, diagram.Metadata{})
	assert.NotContains(t, exported.Handles, diagram.HandleID("ghost_default"))
	assertClosed(t, exported)
}

func TestExportDropsDanglingArrows(t *testing.T) {
	s := newGraph(t)
	mustAddNode(t, s, "a", diagram.NodeStart, nil)
	mustAddNode(t, s, "b", diagram.NodeEndpoint, nil)
	_, err := s.AddArrow(out("a", "default"), in("b", "default"), nil)
	require.NoError(t, err)

	snap, _ := s.Snapshot()
	// Simulate a corrupt bundle: node and handles gone, arrow left behind.
	delete(snap.Nodes, "a")
	for id, h := range snap.Handles {
		if h.NodeID == "a" {
			delete(snap.Handles, id)
		}
	}

	exported := newTestSerializer(t).Export(snap, diagram.Metadata{})
	assert.Empty(t, exported.Arrows)
	assertClosed(t, exported)
}

func TestExportDeduplicatesArrowsFirstWins(t *testing.T) {
	s := newGraph(t)
	mustAddNode(t, s, "a", diagram.NodeStart, nil)
	mustAddNode(t, s, "b", diagram.NodeEndpoint, nil)

	snap, _ := s.Snapshot()
	// The store refuses duplicates, so forge them in the raw bundle.
	snap.Arrows = map[diagram.ArrowID]diagram.Arrow{
		"arrow_1": {ID: "arrow_1", Source: out("a", "default"), Target: in("b", "default"), Label: "first"},
		"arrow_2": {ID: "arrow_2", Source: out("a", "default"), Target: in("b", "default"), Label: "second"},
	}

	exported := newTestSerializer(t).Export(snap, diagram.Metadata{})
	require.Len(t, exported.Arrows, 1)
	assert.Equal(t, "first", exported.Arrows["arrow_1"].Label)
	assertClosed(t, exported)
}

func TestExportStripsPersonDisplayFields(t *testing.T) {
	snap := diagram.Diagram{
		Persons: map[diagram.PersonID]diagram.Person{
			"p1": {
				ID:    "p1",
				Label: "analyst",
				LLMConfig: diagram.PersonLLMConfig{
					Service:  diagram.ServiceAnthropic,
					Model:    "claude-sonnet-4",
					APIKeyID: "APIKEY_1",
				},
				Display: map[string]any{"masked_key": "sk-...42"},
			},
		},
	}

	exported := newTestSerializer(t).Export(snap, diagram.Metadata{})
	p := exported.Persons["p1"]
	assert.Nil(t, p.Display)
	assert.Equal(t, "APIKEY_1", p.LLMConfig.APIKeyID, "credential reference is not display-only")
}

func TestExportMetadataStamping(t *testing.T) {
	exported := newTestSerializer(t).Export(diagram.Diagram{}, diagram.Metadata{Name: "demo"})
	assert.Equal(t, "demo", exported.Metadata.Name)
	assert.Equal(t, "1.0", exported.Metadata.Version)
	assert.False(t, exported.Metadata.UpdatedAt.IsZero())
}

// Scenario from the editor's happy path: connect start to endpoint, delete
// the start node, export.
func TestExportAfterCascadeDelete(t *testing.T) {
	s := newGraph(t)
	mustAddNode(t, s, "a", diagram.NodeStart, nil)
	mustAddNode(t, s, "b", diagram.NodeEndpoint, nil)
	_, err := s.AddArrow(out("a", "default"), in("b", "default"), nil)
	require.NoError(t, err)

	require.True(t, s.DeleteNode("a"))

	snap, _ := s.Snapshot()
	exported := newTestSerializer(t).Export(snap, diagram.Metadata{})

	assert.Len(t, exported.Nodes, 1)
	assert.Empty(t, exported.Arrows)
	for _, h := range exported.Handles {
		assert.Equal(t, diagram.NodeID("b"), h.NodeID)
	}
	assertClosed(t, exported)
}
