package gertrude

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gertrudedb/gertrude/internal/btree"
	"github.com/gertrudedb/gertrude/internal/expr"
	"github.com/gertrudedb/gertrude/internal/schema"
	"github.com/gertrudedb/gertrude/internal/value"
)

func mustField(t *testing.T, name string, typ value.Type, opts schema.Options) schema.FieldSpec {
	t.Helper()
	f, err := schema.NewFieldSpec(name, typ, opts)
	require.NoError(t, err)
	return f
}

func peopleSpec(t *testing.T) schema.Spec {
	t.Helper()
	return schema.Spec{
		mustField(t, "id", value.TypeInt64, schema.Options{PK: true}),
		mustField(t, "name", value.TypeString, schema.Options{Nullable: true}),
		mustField(t, "age", value.TypeInt64, schema.Options{Nullable: true}),
	}
}

func newTestDatabase(t *testing.T) *Database {
	t.Helper()
	path := filepath.Join(t.TempDir(), "db")
	db, err := Create(path, "test database", Options{})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestCreateOpenRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db")
	db, err := Create(path, "hello", Options{})
	require.NoError(t, err)
	_, err = db.AddTable("people", peopleSpec(t))
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db2, err := Open(path, ModeReadWrite)
	require.NoError(t, err)
	defer db2.Close()

	tbl, ok := db2.Table("people")
	require.True(t, ok)
	require.Len(t, tbl.GetSpec(), 3)
	require.Contains(t, tbl.IndexList(), "pk_id")
}

func TestCreateOptionsOverrideIndexFanoutAndCacheSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db")
	db, err := Create(path, "", Options{IndexFanout: 4, IndexCacheSize: 2})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	tbl, err := db.AddTable("people", peopleSpec(t))
	require.NoError(t, err)
	idx, ok := tbl.Index("pk_id")
	require.True(t, ok)

	var buf bytes.Buffer
	require.NoError(t, idx.Dump(&buf))
	require.Contains(t, buf.String(), "fanout=4")

	require.NoError(t, db.Close())

	db2, err := Open(path, ModeReadWrite)
	require.NoError(t, err)
	defer db2.Close()

	tbl2, ok := db2.Table("people")
	require.True(t, ok)
	_, err = tbl2.AddIndex("idx_age", "age", false, true)
	require.NoError(t, err)
	idx2, ok := tbl2.Index("idx_age")
	require.True(t, ok)

	buf.Reset()
	require.NoError(t, idx2.Dump(&buf))
	require.Contains(t, buf.String(), "fanout=4")
}

func TestOpenRejectsVersionMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db")
	db, err := Create(path, "", Options{})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	data, err := os.ReadFile(confPath(path))
	require.NoError(t, err)
	var cfg dbConfig
	require.NoError(t, json.Unmarshal(data, &cfg))
	cfg.SchemaVersion = CurrentSchemaVersion + 1
	data, err = json.Marshal(cfg)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(confPath(path), data, 0o644))

	_, err = Open(path, ModeReadWrite)
	require.Error(t, err)
}

func TestReadOnlyRejectsMutation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "db")
	db, err := Create(path, "", Options{})
	require.NoError(t, err)
	_, err = db.AddTable("people", peopleSpec(t))
	require.NoError(t, err)
	require.NoError(t, db.Close())

	ro, err := Open(path, ModeReadOnly)
	require.NoError(t, err)
	defer ro.Close()

	tbl, ok := ro.Table("people")
	require.True(t, ok)
	_, err = tbl.Insert(schema.Row{"id": value.NewInt64(1)})
	require.Error(t, err)
}

func TestClosedDatabaseRejectsFurtherWrites(t *testing.T) {
	db := newTestDatabase(t)
	_, err := db.AddTable("people", peopleSpec(t))
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = db.AddTable("other", peopleSpec(t))
	require.Error(t, err)
}

func TestUniqueIndexRejectsDuplicateInsert(t *testing.T) {
	db := newTestDatabase(t)
	tbl, err := db.AddTable("people", peopleSpec(t))
	require.NoError(t, err)

	_, err = tbl.Insert(schema.Row{"id": value.NewInt64(1), "name": value.NewString("ada")})
	require.NoError(t, err)

	_, err = tbl.Insert(schema.Row{"id": value.NewInt64(1), "name": value.NewString("grace")})
	require.Error(t, err)
}

func TestIndexScanRangeThroughIndex(t *testing.T) {
	db := newTestDatabase(t)
	tbl, err := db.AddTable("people", peopleSpec(t))
	require.NoError(t, err)

	for i := int64(0); i < 5; i++ {
		_, err := tbl.Insert(schema.Row{"id": value.NewInt64(i), "name": value.NewString("p"), "age": value.NewInt64(20 + i)})
		require.NoError(t, err)
	}

	rows, err := tbl.IndexScan("pk_id", value.NewInt64(2), btree.OpGe)
	require.NoError(t, err)
	require.Len(t, rows, 3)
}

func TestDeleteRemovesRowAndIndexEntries(t *testing.T) {
	db := newTestDatabase(t)
	tbl, err := db.AddTable("people", peopleSpec(t))
	require.NoError(t, err)

	row := schema.Row{"id": value.NewInt64(1), "name": value.NewString("ada"), "age": value.NewInt64(30)}
	_, err = tbl.Insert(row)
	require.NoError(t, err)

	ok, err := tbl.Delete(row)
	require.NoError(t, err)
	require.True(t, ok)

	rows, err := tbl.Scan()
	require.NoError(t, err)
	require.Empty(t, rows)

	found, err := tbl.IndexScan("pk_id", value.NewInt64(1), btree.OpEq)
	require.NoError(t, err)
	require.Empty(t, found)
}

func TestQueryPlannerChoosesIndexScan(t *testing.T) {
	db := newTestDatabase(t)
	tbl, err := db.AddTable("people", peopleSpec(t))
	require.NoError(t, err)
	for i := int64(0); i < 3; i++ {
		_, err := tbl.Insert(schema.Row{"id": value.NewInt64(i), "name": value.NewString("p"), "age": value.NewInt64(i)})
		require.NoError(t, err)
	}

	q, err := db.Query("people")
	require.NoError(t, err)
	q.Filter(expr.Operation{
		Category: expr.CategoryCompare,
		Cmp:      value.Eq,
		Left:     expr.ColumnName{Name: "id"},
		Right:    expr.Literal{Value: value.NewInt64(1)},
	})
	shown, err := q.ShowPlan()
	require.NoError(t, err)
	require.Contains(t, shown, "index scan")
	require.Contains(t, shown, "pk_id")

	rows, err := q.Run()
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, int64(1), rows[0]["id"])
}

func TestQueryNoIndexableFilterFallsBackToTableScan(t *testing.T) {
	db := newTestDatabase(t)
	_, err := db.AddTable("people", peopleSpec(t))
	require.NoError(t, err)

	q, err := db.Query("people")
	require.NoError(t, err)
	shown, err := q.ShowPlan()
	require.NoError(t, err)
	require.Contains(t, shown, "table scan")
}
