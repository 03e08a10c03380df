package gertrude

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gertrudedb/gertrude/internal/expr"
	"github.com/gertrudedb/gertrude/internal/schema"
	"github.com/gertrudedb/gertrude/internal/value"
)

func ageAtLeast(n int64) expr.Node {
	return expr.Operation{
		Category: expr.CategoryCompare,
		Cmp:      value.Ge,
		Left:     expr.ColumnName{Name: "age"},
		Right:    expr.Literal{Value: value.NewInt64(n)},
	}
}

func TestInsertMissingRequiredFieldFails(t *testing.T) {
	db := newTestDatabase(t)
	tbl, err := db.AddTable("people", peopleSpec(t))
	require.NoError(t, err)

	_, err = tbl.Insert(schema.Row{"name": value.NewString("no id")})
	require.Error(t, err)
}

func TestInsertAppliesDefaultForMissingNullableColumn(t *testing.T) {
	db := newTestDatabase(t)
	tbl, err := db.AddTable("people", peopleSpec(t))
	require.NoError(t, err)

	_, err = tbl.Insert(schema.Row{"id": value.NewInt64(1)})
	require.NoError(t, err)

	rows, err := tbl.Scan()
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.True(t, rows[0]["name"].IsNull())
}

func TestAddIndexOnUniqueNullableColumnPreservesNullability(t *testing.T) {
	db := newTestDatabase(t)
	spec := schema.Spec{
		mustField(t, "id", value.TypeInt64, schema.Options{PK: true}),
		mustField(t, "email", value.TypeString, schema.Options{Unique: true, Nullable: true}),
	}
	tbl, err := db.AddTable("users", spec)
	require.NoError(t, err)

	idx, ok := tbl.Index("unq_email")
	require.True(t, ok)
	require.True(t, idx.Nullable)

	_, err = tbl.Insert(schema.Row{"id": value.NewInt64(1)})
	require.NoError(t, err)
	_, err = tbl.Insert(schema.Row{"id": value.NewInt64(2)})
	require.NoError(t, err)
}

func TestAddIndexBulkLoadsExistingRows(t *testing.T) {
	db := newTestDatabase(t)
	tbl, err := db.AddTable("people", peopleSpec(t))
	require.NoError(t, err)

	for i := int64(0); i < 3; i++ {
		_, err := tbl.Insert(schema.Row{"id": value.NewInt64(i), "age": value.NewInt64(i * 10)})
		require.NoError(t, err)
	}

	_, err = tbl.AddIndex("idx_age", "age", false, true)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, tbl.PrintIndex("idx_age", &buf))
	require.Contains(t, buf.String(), "3 total entries")
	require.Contains(t, buf.String(), "L node=")
}

func TestDropIndexRemovesItFromList(t *testing.T) {
	db := newTestDatabase(t)
	tbl, err := db.AddTable("people", peopleSpec(t))
	require.NoError(t, err)

	_, err = tbl.AddIndex("idx_age", "age", false, true)
	require.NoError(t, err)
	require.Contains(t, tbl.IndexList(), "idx_age")

	require.NoError(t, tbl.DropIndex("idx_age"))
	require.NotContains(t, tbl.IndexList(), "idx_age")
}

func TestDeleteFromQueryDeletesMatchingRows(t *testing.T) {
	db := newTestDatabase(t)
	tbl, err := db.AddTable("people", peopleSpec(t))
	require.NoError(t, err)

	for i := int64(0); i < 4; i++ {
		_, err := tbl.Insert(schema.Row{"id": value.NewInt64(i), "age": value.NewInt64(i)})
		require.NoError(t, err)
	}

	q, err := db.Query("people")
	require.NoError(t, err)
	q.Filter(ageAtLeast(2))

	n, err := tbl.DeleteFromQuery(q)
	require.NoError(t, err)
	require.Equal(t, 2, n)

	rows, err := tbl.Scan()
	require.NoError(t, err)
	require.Len(t, rows, 2)
}
