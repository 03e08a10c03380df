package heap

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gertrudedb/gertrude/internal/heapid"
	"github.com/gertrudedb/gertrude/internal/value"
)

func TestWriteReadDelete(t *testing.T) {
	root := t.TempDir()
	row := []value.Value{value.NewInt64(1), value.NewString("bob")}

	id, err := Write(root, row)
	require.NoError(t, err)

	got, err := Read(root, id)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, int64(1), got[0].Native())
	require.Equal(t, "bob", got[1].Native())

	deleted, err := Delete(root, id)
	require.NoError(t, err)
	require.Len(t, deleted, 2)

	got, err = Read(root, id)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestWalkEnumeratesAllRows(t *testing.T) {
	root := t.TempDir()
	want := map[string]bool{}
	for i := 0; i < 10; i++ {
		id, err := Write(root, []value.Value{value.NewInt64(int64(i))})
		require.NoError(t, err)
		want[id.String()] = true
	}

	seen := map[string]bool{}
	err := Walk(root, func(id heapid.ID, row []value.Value) error {
		seen[id.String()] = true
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, want, seen)
}
