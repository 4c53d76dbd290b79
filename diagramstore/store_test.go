package diagramstore

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sorryhyun/DiPeO-sub002/diagram"
	"github.com/sorryhyun/DiPeO-sub002/errors"
	"github.com/sorryhyun/DiPeO-sub002/natsclient"
)

// fakeKV is an in-memory KV with revision semantics matching JetStream.
type fakeKV struct {
	mu       sync.Mutex
	data     map[string][]byte
	revision map[string]uint64
	next     uint64
}

func newFakeKV() *fakeKV {
	return &fakeKV{data: map[string][]byte{}, revision: map[string]uint64{}}
}

func (f *fakeKV) Get(_ context.Context, key string) (*natsclient.KVEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	value, ok := f.data[key]
	if !ok {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %s", errors.ErrKeyNotFound, key), "KVStore", "Get", "key lookup")
	}
	return &natsclient.KVEntry{Key: key, Value: value, Revision: f.revision[key]}, nil
}

func (f *fakeKV) Create(_ context.Context, key string, value []byte) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.data[key]; exists {
		return 0, errors.WrapInvalid(
			fmt.Errorf("%w: %s already exists", errors.ErrVersionConflict, key),
			"KVStore", "Create", "key create")
	}
	return f.put(key, value), nil
}

func (f *fakeKV) Update(_ context.Context, key string, value []byte, revision uint64) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.revision[key] != revision {
		return 0, errors.WrapInvalid(
			fmt.Errorf("%w: %s at revision %d", errors.ErrVersionConflict, key, revision),
			"KVStore", "Update", "cas write")
	}
	return f.put(key, value), nil
}

func (f *fakeKV) UpdateWithRetry(ctx context.Context, key string, modify func([]byte) ([]byte, error)) (uint64, error) {
	f.mu.Lock()
	current := f.data[key]
	f.mu.Unlock()

	next, err := modify(current)
	if err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.put(key, next), nil
}

func (f *fakeKV) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, key)
	delete(f.revision, key)
	return nil
}

func (f *fakeKV) Keys(_ context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]string, 0, len(f.data))
	for k := range f.data {
		keys = append(keys, k)
	}
	return keys, nil
}

func (f *fakeKV) put(key string, value []byte) uint64 {
	f.next++
	f.data[key] = value
	f.revision[key] = f.next
	return f.next
}

func testDiagram(id, name string) diagram.Diagram {
	return diagram.Diagram{
		Metadata: diagram.Metadata{ID: id, Name: name},
		Nodes: map[diagram.NodeID]diagram.Node{
			"n1": {ID: "n1", Type: diagram.NodeStart, Data: map[string]any{}},
		},
	}
}

func TestCreateAndGet(t *testing.T) {
	s := NewStore(newFakeKV())
	ctx := context.Background()

	id, err := s.Create(ctx, testDiagram("flow-1", "demo"))
	require.NoError(t, err)
	assert.Equal(t, "flow-1", id)

	got, revision, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "demo", got.Metadata.Name)
	assert.NotZero(t, revision)
	assert.False(t, got.Metadata.CreatedAt.IsZero())
}

func TestCreateGeneratesID(t *testing.T) {
	s := NewStore(newFakeKV())

	id, err := s.Create(context.Background(), testDiagram("", "unnamed"))
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}

func TestCreateDuplicateFails(t *testing.T) {
	s := NewStore(newFakeKV())
	ctx := context.Background()

	_, err := s.Create(ctx, testDiagram("flow-1", "first"))
	require.NoError(t, err)

	_, err = s.Create(ctx, testDiagram("flow-1", "second"))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrVersionConflict)
}

func TestUpdateDetectsConcurrentWriter(t *testing.T) {
	s := NewStore(newFakeKV())
	ctx := context.Background()

	id, err := s.Create(ctx, testDiagram("flow-1", "v1"))
	require.NoError(t, err)

	d, revision, err := s.Get(ctx, id)
	require.NoError(t, err)

	// A second editor saves first.
	d.Metadata.Name = "other editor"
	_, err = s.Update(ctx, d, revision)
	require.NoError(t, err)

	// The stale revision must be rejected.
	d.Metadata.Name = "stale"
	_, err = s.Update(ctx, d, revision)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrVersionConflict)
	assert.True(t, errors.IsInvalid(err))
}

func TestSavePreservesCreationTime(t *testing.T) {
	s := NewStore(newFakeKV())
	ctx := context.Background()

	id, err := s.Create(ctx, testDiagram("flow-1", "v1"))
	require.NoError(t, err)
	original, _, err := s.Get(ctx, id)
	require.NoError(t, err)

	d := testDiagram("flow-1", "v2")
	_, err = s.Save(ctx, d)
	require.NoError(t, err)

	saved, _, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "v2", saved.Metadata.Name)
	assert.Equal(t, original.Metadata.CreatedAt, saved.Metadata.CreatedAt)
}

func TestDeleteAndList(t *testing.T) {
	s := NewStore(newFakeKV())
	ctx := context.Background()

	_, err := s.Create(ctx, testDiagram("a", "first"))
	require.NoError(t, err)
	_, err = s.Create(ctx, testDiagram("b", "second"))
	require.NoError(t, err)

	metas, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, metas, 2)

	require.NoError(t, s.Delete(ctx, "a"))
	require.NoError(t, s.Delete(ctx, "a"), "deleting an absent id is not an error")

	metas, err = s.List(ctx)
	require.NoError(t, err)
	require.Len(t, metas, 1)
	assert.Equal(t, "b", metas[0].ID)
}

func TestIDValidation(t *testing.T) {
	s := NewStore(newFakeKV())
	ctx := context.Background()

	for _, id := range []string{"has space", "dotted.id", "wild*card"} {
		_, _, err := s.Get(ctx, id)
		assert.Error(t, err, "id %q should be rejected", id)
	}
	_, _, err := s.Get(ctx, "")
	assert.Error(t, err)
}
