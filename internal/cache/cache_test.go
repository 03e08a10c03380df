package cache

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gertrudedb/gertrude/internal/packer"
	"github.com/gertrudedb/gertrude/internal/value"
)

func TestRegisterGetPutRoundTrip(t *testing.T) {
	dir := t.TempDir()
	c, err := New(4, nil)
	require.NoError(t, err)
	c.Register(1, dir)

	n := packer.Node{Kind: packer.KindLeaf, NodeID: 5, Leaves: []packer.LeafItem{
		{Key: value.NewInt64(1), HeapID: 10},
	}}
	require.NoError(t, c.Put(1, 0, n, true))

	got, err := c.Get(1, 0)
	require.NoError(t, err)
	require.Equal(t, int64(5), got.NodeID)
	require.Len(t, got.Leaves, 1)

	stats := c.Stats()
	require.Equal(t, 1, stats.Puts)
	require.Equal(t, 1, stats.Gets)
	require.Equal(t, 1, stats.Hits)
}

func TestGetUnregisteredIndexFails(t *testing.T) {
	c, err := New(4, nil)
	require.NoError(t, err)
	_, err = c.Get(99, 0)
	require.Error(t, err)
}

func TestPutWithoutCacheDoesNotCache(t *testing.T) {
	dir := t.TempDir()
	c, err := New(4, nil)
	require.NoError(t, err)
	c.Register(1, dir)

	n := packer.Node{Kind: packer.KindLeaf, NodeID: 1}
	require.NoError(t, c.Put(1, 0, n, false))
	require.Equal(t, 0, c.Stats().Blocks)

	// Still readable from disk on a miss.
	got, err := c.Get(1, 0)
	require.NoError(t, err)
	require.EqualValues(t, 1, got.NodeID)
}

func TestEvictionUnderCapacity(t *testing.T) {
	dir := t.TempDir()
	c, err := New(2, nil)
	require.NoError(t, err)
	c.Register(1, dir)

	for i := 0; i < 5; i++ {
		n := packer.Node{Kind: packer.KindLeaf, NodeID: int64(i)}
		require.NoError(t, c.Put(1, i, n, true))
	}
	stats := c.Stats()
	require.LessOrEqual(t, stats.Blocks, 2)
	require.Greater(t, stats.Evictions, 0)
}

func TestUnregisterEvictsIndexEntries(t *testing.T) {
	dir := t.TempDir()
	c, err := New(4, nil)
	require.NoError(t, err)
	c.Register(1, dir)
	n := packer.Node{Kind: packer.KindLeaf, NodeID: 1}
	require.NoError(t, c.Put(1, 0, n, true))
	require.Equal(t, 1, c.Stats().Blocks)

	c.Unregister(1)
	require.Equal(t, 0, c.Stats().Blocks)

	_, err = c.Get(1, 0)
	require.Error(t, err)
}
