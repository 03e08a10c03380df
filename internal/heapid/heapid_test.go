package heapid

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTextRoundTrip(t *testing.T) {
	id, err := Generate()
	require.NoError(t, err)

	parsed, err := FromString(id.String())
	require.NoError(t, err)
	require.Equal(t, id, parsed)
}

func TestBytesRoundTrip(t *testing.T) {
	id, err := Generate()
	require.NoError(t, err)

	parsed, err := FromBytes(id.Bytes())
	require.NoError(t, err)
	require.Equal(t, id, parsed)
}

func TestIntRoundTrip(t *testing.T) {
	id, err := Generate()
	require.NoError(t, err)
	require.Equal(t, id, ID(id.Int64()))
}

func TestPathShape(t *testing.T) {
	id, err := FromString("0123456789ABCDEF")
	require.NoError(t, err)
	require.Equal(t, "01/23/456789ABCDEF", id.Path())
}

func TestGenerateIsUnique(t *testing.T) {
	seen := make(map[ID]bool)
	for i := 0; i < 100; i++ {
		id, err := Generate()
		require.NoError(t, err)
		require.False(t, seen[id], "unexpected collision in small sample")
		seen[id] = true
	}
}
