package idgen

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewGeneratorStartsAtOne(t *testing.T) {
	path := filepath.Join(t.TempDir(), "int_id")
	g, err := Open(path)
	require.NoError(t, err)

	id, err := g.Next()
	require.NoError(t, err)
	require.Equal(t, int64(1), id)
}

func TestNextPersistsEverySaveInterval(t *testing.T) {
	path := filepath.Join(t.TempDir(), "int_id")
	g, err := Open(path)
	require.NoError(t, err)

	var last int64
	for i := 0; i < SaveInterval; i++ {
		last, err = g.Next()
		require.NoError(t, err)
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, last, int64(binary.BigEndian.Uint64(data)))
}

func TestOpenReservesWindowAfterRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "int_id")
	g, err := Open(path)
	require.NoError(t, err)
	for i := 0; i < SaveInterval; i++ {
		_, err = g.Next()
		require.NoError(t, err)
	}
	require.NoError(t, g.Close())

	g2, err := Open(path)
	require.NoError(t, err)
	next, err := g2.Next()
	require.NoError(t, err)
	require.Greater(t, next, int64(SaveInterval+2*SaveInterval))
}

func TestCloseIsNoopWhenNotDirty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "int_id")
	g, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, g.Close())
	_, err = os.Stat(path)
	require.True(t, os.IsNotExist(err))
}
