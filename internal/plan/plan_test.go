package plan

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gertrudedb/gertrude/internal/btree"
	"github.com/gertrudedb/gertrude/internal/expr"
	"github.com/gertrudedb/gertrude/internal/value"
)

type fakeLookup struct {
	tables  map[string][]Row
	indexes map[string]string // "table.column" -> index name
}

func (f *fakeLookup) Scan(table string) ([]Row, error) { return f.tables[table], nil }

func (f *fakeLookup) IndexForColumn(table, column string) (string, bool) {
	name, ok := f.indexes[table+"."+column]
	return name, ok
}

func (f *fakeLookup) IndexScan(table, indexName string, key value.Value, op btree.Op) ([]Row, error) {
	var out []Row
	for _, row := range f.tables[table] {
		v := row["id"]
		c, err := value.Compare(v, key)
		if err != nil {
			return nil, err
		}
		switch op {
		case btree.OpGe:
			if c >= 0 {
				out = append(out, row)
			}
		case btree.OpEq:
			if c == 0 {
				out = append(out, row)
			}
		}
	}
	return out, nil
}

func row(pairs ...any) Row {
	r := make(Row, len(pairs)/2)
	for i := 0; i < len(pairs); i += 2 {
		r[pairs[i].(string)] = pairs[i+1].(value.Value)
	}
	return r
}

func TestCompileRejectsNonReadFirstOp(t *testing.T) {
	_, err := Compile(&fakeLookup{}, []PlanOp{{Kind: KindFilter}})
	require.Error(t, err)
}

// TestCompileChoosesIndexScan mirrors spec scenario S4.
func TestCompileChoosesIndexScan(t *testing.T) {
	lookup := &fakeLookup{
		tables: map[string][]Row{
			"test": {
				row("id", value.NewInt64(1)),
				row("id", value.NewInt64(2)),
				row("id", value.NewInt64(3)),
			},
		},
		indexes: map[string]string{"test.id": "pk_id"},
	}
	ops := []PlanOp{
		{Kind: KindRead, Table: "test"},
		{Kind: KindFilter, Filters: []expr.Node{
			expr.Operation{Category: expr.CategoryCompare, Cmp: value.Ge, Left: expr.ColumnName{Name: "id"}, Right: expr.Literal{Value: value.NewInt64(2)}},
		}},
		{Kind: KindSort, Sorts: []SortSpec{{Column: "id"}}},
	}
	compiled, err := Compile(lookup, ops)
	require.NoError(t, err)
	require.Equal(t, KindScan, compiled[0].Kind)
	require.Contains(t, compiled[0].Description, "index scan")
	require.Len(t, compiled[0].Rows, 2)
}

func TestCompileFallsBackToTableScan(t *testing.T) {
	lookup := &fakeLookup{tables: map[string][]Row{"test": {row("id", value.NewInt64(1))}}}
	ops := []PlanOp{{Kind: KindRead, Table: "test"}}
	compiled, err := Compile(lookup, ops)
	require.NoError(t, err)
	require.Equal(t, KindScan, compiled[0].Kind)
	require.Contains(t, compiled[0].Description, "table scan")
	require.Equal(t, KindUnwrap, compiled[len(compiled)-1].Kind)
}

func TestRunnerFilterSortLimit(t *testing.T) {
	rows := []Row{
		row("id", value.NewInt64(3)),
		row("id", value.NewInt64(1)),
		row("id", value.NewInt64(2)),
	}
	r := &Runner{}
	result, err := r.Run([]PlanOp{
		{Kind: KindScan, Rows: rows},
		{Kind: KindSort, Sorts: []SortSpec{{Column: "id"}}},
		{Kind: KindLimit, Limit: 2},
		{Kind: KindUnwrap},
	})
	require.NoError(t, err)
	require.True(t, result.WasUnwrap)
	require.Len(t, result.Unwrapped, 2)
	require.Equal(t, int64(1), result.Unwrapped[0]["id"])
	require.Equal(t, int64(2), result.Unwrapped[1]["id"])
}

func TestRunnerDistinctFullRow(t *testing.T) {
	rows := []Row{
		row("id", value.NewInt64(1)),
		row("id", value.NewInt64(1)),
		row("id", value.NewInt64(2)),
	}
	r := &Runner{}
	result, err := r.Run([]PlanOp{{Kind: KindScan, Rows: rows}, {Kind: KindDistinct}})
	require.NoError(t, err)
	require.Len(t, result.Rows, 2)
}

func TestRunnerProjectRetainAddsComputedColumn(t *testing.T) {
	rows := []Row{row("id", value.NewInt64(1))}
	r := &Runner{}
	result, err := r.Run([]PlanOp{
		{Kind: KindScan, Rows: rows},
		{Kind: KindProject, Retain: true, Columns: []ProjectCol{
			{Name: "doubled", Expr: expr.Operation{Category: expr.CategoryArith, Arith: value.Mul, Left: expr.ColumnName{Name: "id"}, Right: expr.Literal{Value: value.NewInt64(2)}}},
		}},
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), result.Rows[0]["id"].Native())
	require.Equal(t, int64(2), result.Rows[0]["doubled"].Native())
}

// TestLeftOuterJoinWithRename mirrors spec scenario S5.
func TestLeftOuterJoinWithRename(t *testing.T) {
	emp := []Row{
		row("id", value.NewInt64(1), "name", value.NewString("bob")),
		row("id", value.NewInt64(2), "name", value.NewString("alice")),
		row("id", value.NewInt64(3), "name", value.NewString("charlie")),
		row("id", value.NewInt64(4), "name", value.NewString("dave")),
	}
	proj := []Row{
		row("id", value.NewInt64(101), "name", value.NewString("p1"), "emp_id", value.NewInt64(1)),
		row("id", value.NewInt64(102), "name", value.NewString("p2"), "emp_id", value.NewInt64(2)),
		row("id", value.NewInt64(103), "name", value.NewString("p3"), "emp_id", value.NewInt64(3)),
	}

	r := &Runner{}
	result, err := r.Run([]PlanOp{
		{Kind: KindScan, Rows: emp},
		{Kind: KindJoin,
			JoinRight:  []PlanOp{{Kind: KindScan, Rows: proj}},
			JoinOn:     [2]string{"id", "emp_id"},
			JoinHow:    JoinLeftOuter,
			JoinRename: RenameAuto,
		},
		{Kind: KindSort, Sorts: []SortSpec{{Column: "id_left"}}},
	})
	require.NoError(t, err)
	require.Len(t, result.Rows, 4)
	last := result.Rows[3]
	require.Equal(t, "dave", last["name_left"].Native())
	require.True(t, last["name_right"].IsNull())
}
