package diagram

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleIDRoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		nodeID NodeID
		label  string
	}{
		{"simple", "a", "default"},
		{"node id with underscore", "node_1", "default"},
		{"node id with many underscores", "person_job_abc123", "first"},
		{"branch label", "cond1", "true"},
		{"false branch", "cond1", "false"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := EncodeHandleID(tt.nodeID, tt.label)
			parsed, ok := DecodeHandleID(id)
			require.True(t, ok)
			assert.Equal(t, tt.nodeID, parsed.NodeID)
			assert.Equal(t, tt.label, parsed.Label)
			assert.Empty(t, parsed.Direction)
		})
	}
}

func TestHandleIDRoundTripWithDirection(t *testing.T) {
	id := EncodeHandleIDWithDirection("node_7", "default", DirectionOutput)
	parsed, ok := DecodeHandleID(id)
	require.True(t, ok)
	assert.Equal(t, NodeID("node_7"), parsed.NodeID)
	assert.Equal(t, "default", parsed.Label)
	assert.Equal(t, DirectionOutput, parsed.Direction)
}

func TestDecodeStripsDisambiguationSuffix(t *testing.T) {
	// The canvas engine appends "_<n>" when labels collide on screen.
	parsed, ok := DecodeHandleID("node_1_default_2")
	require.True(t, ok)
	assert.Equal(t, NodeID("node_1"), parsed.NodeID)
	assert.Equal(t, "default", parsed.Label)

	parsed, ok = DecodeHandleID(EncodeHandleIDWithDirection("a", "default", DirectionInput) + "_3")
	require.True(t, ok)
	assert.Equal(t, NodeID("a"), parsed.NodeID)
	assert.Equal(t, "default", parsed.Label)
	assert.Equal(t, DirectionInput, parsed.Direction)
}

func TestDecodeMalformedIDs(t *testing.T) {
	tests := []struct {
		name string
		id   HandleID
	}{
		{"empty", ""},
		{"no separator", "justanodeid"},
		{"only separator", "_"},
		{"empty node", "_default"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := DecodeHandleID(tt.id)
			assert.False(t, ok)
		})
	}
}

func TestEncodeCollisionFree(t *testing.T) {
	seen := make(map[HandleID]bool)
	pairs := []struct {
		node  NodeID
		label string
	}{
		{"a", "default"},
		{"a", "first"},
		{"b", "default"},
		{"a_b", "c"},
		{"a", "b-c"},
	}

	for _, p := range pairs {
		id := EncodeHandleID(p.node, p.label)
		assert.False(t, seen[id], "collision for %v", p)
		seen[id] = true
	}
}

func TestNodeIDOf(t *testing.T) {
	nodeID, ok := NodeIDOf(EncodeHandleID("node_42", "default"))
	require.True(t, ok)
	assert.Equal(t, NodeID("node_42"), nodeID)

	_, ok = NodeIDOf("garbage")
	assert.False(t, ok)
}

func TestValidHandleLabel(t *testing.T) {
	assert.True(t, ValidHandleLabel("default"))
	assert.True(t, ValidHandleLabel("true"))
	assert.True(t, ValidHandleLabel("results-a"))

	assert.False(t, ValidHandleLabel(""))
	assert.False(t, ValidHandleLabel("has_underscore"))
	assert.False(t, ValidHandleLabel("input"), "direction words are reserved")
	assert.False(t, ValidHandleLabel("output"), "direction words are reserved")
	assert.False(t, ValidHandleLabel("42"), "numeric labels collide with suffixes")
}
