package packer

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gertrudedb/gertrude/internal/value"
)

func TestRowRoundTrip(t *testing.T) {
	row := []value.Value{
		value.NewInt64(1),
		value.NewString("bob"),
		value.Null(value.TypeFloat64),
		value.NewBool(true),
	}
	encoded := EncodeRow(row)
	decoded, err := DecodeRow(encoded)
	require.NoError(t, err)
	require.Len(t, decoded, len(row))
	for i := range row {
		require.Equal(t, row[i].Native(), decoded[i].Native())
	}
}

func TestLeafNodeRoundTrip(t *testing.T) {
	n := Node{
		Kind:   KindLeaf,
		NodeID: 3,
		Leaves: []LeafItem{
			{Key: value.NewInt64(1), HeapID: 100},
			{Key: value.NewInt64(2), HeapID: 200},
		},
	}
	encoded, err := EncodeNode(n)
	require.NoError(t, err)

	decoded, err := DecodeNode(encoded)
	require.NoError(t, err)
	require.Equal(t, KindLeaf, decoded.Kind)
	require.EqualValues(t, 3, decoded.NodeID)
	require.Len(t, decoded.Leaves, 2)
	require.EqualValues(t, 100, decoded.Leaves[0].HeapID)
	require.EqualValues(t, 200, decoded.Leaves[1].HeapID)
}

func TestInternalNodeRoundTrip(t *testing.T) {
	n := Node{
		Kind:   KindInternal,
		NodeID: 0,
		Internals: []InternalItem{
			{Key: value.Null(value.TypeInt64), ChildID: 1},
			{Key: value.NewInt64(50), ChildID: 2},
		},
	}
	encoded, err := EncodeNode(n)
	require.NoError(t, err)

	decoded, err := DecodeNode(encoded)
	require.NoError(t, err)
	require.Equal(t, KindInternal, decoded.Kind)
	require.Len(t, decoded.Internals, 2)
	require.True(t, decoded.Internals[0].Key.IsNull())
	require.EqualValues(t, 2, decoded.Internals[1].ChildID)
}
