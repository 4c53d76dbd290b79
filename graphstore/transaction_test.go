package graphstore

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sorryhyun/DiPeO-sub002/diagram"
)

func TestTransactionCommitsAsOneVersionBumpAndNotification(t *testing.T) {
	s := newTestStore(t)

	var notifications int
	s.Subscribe(func(Event) { notifications++ })

	err := s.Transaction(func(tx *Tx) error {
		if _, err := tx.AddNode(diagram.Node{ID: "a", Type: diagram.NodeStart}); err != nil {
			return err
		}
		if _, err := tx.AddNode(diagram.Node{ID: "b", Type: diagram.NodeEndpoint}); err != nil {
			return err
		}
		_, err := tx.AddArrow(outputID("a", "default"), inputID("b", "default"), nil)
		return err
	})
	require.NoError(t, err)

	assert.Equal(t, uint64(1), s.Version(), "three mutations, one commit")
	assert.Equal(t, 1, notifications)
}

func TestTransactionRollbackOnError(t *testing.T) {
	s := newTestStore(t)
	addTestNode(t, s, "keep", diagram.NodeNote)
	before := s.Version()

	var notifications int
	s.Subscribe(func(Event) { notifications++ })

	boom := stderrors.New("boom")
	err := s.Transaction(func(tx *Tx) error {
		if _, err := tx.AddNode(diagram.Node{ID: "doomed", Type: diagram.NodeStart}); err != nil {
			return err
		}
		if !tx.DeleteNode("keep") {
			t.Fatal("delete inside transaction should succeed")
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	assert.Equal(t, before, s.Version(), "failed transaction leaves version unchanged")
	assert.Zero(t, notifications, "subscribers never observe a rolled-back state")

	_, ok := s.Node("doomed")
	assert.False(t, ok)
	_, ok = s.Node("keep")
	assert.True(t, ok)
}

func TestEmptyTransactionDoesNotCommit(t *testing.T) {
	s := newTestStore(t)
	before := s.Version()

	require.NoError(t, s.Transaction(func(tx *Tx) error { return nil }))
	assert.Equal(t, before, s.Version())
}

func TestTransactionReadsSeeUncommittedWrites(t *testing.T) {
	s := newTestStore(t)

	err := s.Transaction(func(tx *Tx) error {
		if _, err := tx.AddNode(diagram.Node{ID: "a", Type: diagram.NodeStart}); err != nil {
			return err
		}
		if _, ok := tx.Node("a"); !ok {
			t.Fatal("transaction should see its own writes")
		}
		if _, ok := tx.Handle(outputID("a", "default")); !ok {
			t.Fatal("materialized handles visible inside the transaction")
		}
		return nil
	})
	require.NoError(t, err)
}

func TestUndoRedoRestoreFullState(t *testing.T) {
	s := newTestStore(t)
	addTestNode(t, s, "a", diagram.NodeStart)
	addTestNode(t, s, "b", diagram.NodeEndpoint)
	_, err := s.AddArrow(outputID("a", "default"), inputID("b", "default"), nil)
	require.NoError(t, err)

	versionBefore := s.Version()

	require.True(t, s.Undo())
	_, _, arrows, _ := s.Counts()
	assert.Equal(t, 0, arrows)
	assert.Greater(t, s.Version(), versionBefore, "undo is itself a committed change")

	require.True(t, s.Redo())
	_, _, arrows, _ = s.Counts()
	assert.Equal(t, 1, arrows)

	assert.False(t, s.Redo(), "nothing left to redo")
}

func TestUndoRestoresCascadedEntities(t *testing.T) {
	s := newTestStore(t)
	addTestNode(t, s, "a", diagram.NodeStart)
	addTestNode(t, s, "b", diagram.NodeEndpoint)
	_, err := s.AddArrow(outputID("a", "default"), inputID("b", "default"), nil)
	require.NoError(t, err)

	require.True(t, s.DeleteNode("a"))
	require.True(t, s.Undo())

	nodes, handles, arrows, _ := s.Counts()
	assert.Equal(t, 2, nodes)
	assert.Equal(t, 2, handles)
	assert.Equal(t, 1, arrows, "undo restores the cascade-deleted arrow too")
}

func TestNewMutationClearsRedoStack(t *testing.T) {
	s := newTestStore(t)
	addTestNode(t, s, "a", diagram.NodeStart)
	require.True(t, s.Undo())

	addTestNode(t, s, "b", diagram.NodeEndpoint)
	assert.False(t, s.Redo(), "diverging mutation invalidates the redo stack")
}

func TestHistoryDepthIsBounded(t *testing.T) {
	s := newTestStore(t, WithHistoryDepth(3))

	for _, id := range []diagram.NodeID{"a", "b", "c", "d", "e"} {
		addTestNode(t, s, id, diagram.NodeNote)
	}

	undone := 0
	for s.Undo() {
		undone++
	}
	assert.Equal(t, 3, undone)
}

func TestUndoEmptyHistory(t *testing.T) {
	s := newTestStore(t)
	assert.False(t, s.Undo())
}

func TestLoadDiagramReplacesStateAndClearsHistory(t *testing.T) {
	s := newTestStore(t)
	addTestNode(t, s, "old", diagram.NodeStart)

	var notifications int
	s.Subscribe(func(Event) { notifications++ })

	s.LoadDiagram(diagram.Diagram{
		Nodes: map[diagram.NodeID]diagram.Node{
			"fresh": {ID: "fresh", Type: diagram.NodeNote},
		},
	})

	_, ok := s.Node("old")
	assert.False(t, ok)
	_, ok = s.Node("fresh")
	assert.True(t, ok)
	assert.Equal(t, 1, notifications)
	assert.False(t, s.Undo(), "history does not span diagram loads")
}
