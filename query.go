package gertrude

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/gertrudedb/gertrude/internal/errs"
	"github.com/gertrudedb/gertrude/internal/expr"
	"github.com/gertrudedb/gertrude/internal/plan"
)

// Row is the dict-form result row a Query produces (spec §3 "Row").
type Row = plan.Row

// Query is the fluent query builder of spec §4.6: a table name plus an
// ordered list of plan ops, compiled lazily at Run time so the planner
// always sees the full chain at once.
//
// Grounded on the original implementation's Query class
// (gertrude/query.py): a thin, chainable builder over the same plan op
// vocabulary the runner executes, generalized here onto
// internal/plan.PlanOp/Compile/Runner rather than a parsed string DSL --
// SPEC_FULL.md's fluent API takes expr.Node values directly from Go
// callers, so there is no expr_parse equivalent here.
type Query struct {
	db  *Database
	ops []plan.PlanOp
}

// Filter appends a Filter op; multiple expressions AND together (spec
// §4.6 Filter, §4.7).
func (q *Query) Filter(exprs ...expr.Node) *Query {
	q.ops = append(q.ops, plan.PlanOp{Kind: plan.KindFilter, Filters: exprs})
	return q
}

// Select restricts the row to the named columns (spec §4.6 Select:
// Project with retain=false).
func (q *Query) Select(cols ...string) *Query {
	pcols := make([]plan.ProjectCol, len(cols))
	for i, c := range cols {
		pcols[i] = plan.ProjectCol{Name: c, Expr: expr.ColumnName{Name: c}}
	}
	q.ops = append(q.ops, plan.PlanOp{Kind: plan.KindProject, Retain: false, Columns: pcols})
	return q
}

// AddColumn adds a single computed column, keeping existing ones (spec
// §4.6 AddColumn: Project with retain=true).
func (q *Query) AddColumn(name string, e expr.Node) *Query {
	return q.AddColumns(plan.ProjectCol{Name: name, Expr: e})
}

// AddColumns adds several computed columns at once.
func (q *Query) AddColumns(cols ...plan.ProjectCol) *Query {
	q.ops = append(q.ops, plan.PlanOp{Kind: plan.KindProject, Retain: true, Columns: cols})
	return q
}

// RenameColumns renames columns (spec §4.6 RenameColumns).
func (q *Query) RenameColumns(pairs ...plan.RenamePair) *Query {
	q.ops = append(q.ops, plan.PlanOp{Kind: plan.KindRename, Renames: pairs})
	return q
}

// Asc builds an ascending SortSpec for Sort.
func Asc(col string) plan.SortSpec { return plan.SortSpec{Column: col, Desc: false} }

// Desc builds a descending SortSpec for Sort.
func Desc(col string) plan.SortSpec { return plan.SortSpec{Column: col, Desc: true} }

// Sort appends a Sort op: a stable multi-key sort, the first spec being
// the major key (spec §4.6 Sort, §4.7, §9 "Sort stability is assumed").
func (q *Query) Sort(specs ...plan.SortSpec) *Query {
	q.ops = append(q.ops, plan.PlanOp{Kind: plan.KindSort, Sorts: specs})
	return q
}

// Distinct deduplicates on the given columns, or the whole row if none
// are given (spec §4.6 Distinct).
func (q *Query) Distinct(cols ...string) *Query {
	q.ops = append(q.ops, plan.PlanOp{Kind: plan.KindDistinct, DistinctKeys: cols})
	return q
}

// Limit caps the number of rows (spec §4.6 Limit).
func (q *Query) Limit(n int) *Query {
	q.ops = append(q.ops, plan.PlanOp{Kind: plan.KindLimit, Limit: n})
	return q
}

// Join appends a Join op against right's own (uncompiled) op chain (spec
// §4.6 Join, §4.7). how and rename select the join kind and column-
// collision handling; when rename is plan.RenameExplicit, suffix supplies
// the (left, right) suffixes.
func (q *Query) Join(right *Query, on [2]string, how plan.JoinHow, rename plan.RenameMode, suffix ...[2]string) *Query {
	var s [2]string
	if len(suffix) > 0 {
		s = suffix[0]
	}
	op := plan.PlanOp{
		Kind:       plan.KindJoin,
		JoinRight:  right.ops,
		JoinOn:     on,
		JoinHow:    how,
		JoinRename: rename,
		JoinSuffix: s,
	}
	q.ops = append(q.ops, op)
	return q
}

// compileOpsRecursive compiles ops, first recursively compiling any
// nested Join's raw right-side op list. plan.Compile appends a trailing
// Unwrap only when the compiled chain has length 1; runJoin expects its
// JoinRight chain to yield dict Rows (not runner's unwrapped form), so
// any such trailing Unwrap is stripped before the op is reattached.
func compileOpsRecursive(db *Database, ops []plan.PlanOp) ([]plan.PlanOp, error) {
	raw := make([]plan.PlanOp, len(ops))
	copy(raw, ops)
	for i, op := range raw {
		if op.Kind != plan.KindJoin {
			continue
		}
		compiledRight, err := compileOpsRecursive(db, op.JoinRight)
		if err != nil {
			return nil, err
		}
		if n := len(compiledRight); n > 0 && compiledRight[n-1].Kind == plan.KindUnwrap {
			compiledRight = compiledRight[:n-1]
		}
		op.JoinRight = compiledRight
		raw[i] = op
	}
	return plan.Compile(db, raw)
}

// Run compiles and executes the query, returning rows with every Value
// unwrapped to its native Go scalar (spec §4.6 "run": the default at API
// boundaries, GLOSSARY "Unwrap").
func (q *Query) Run() ([]map[string]any, error) {
	compiled, err := compileOpsRecursive(q.db, q.ops)
	if err != nil {
		return nil, err
	}
	if n := len(compiled); n == 0 || compiled[n-1].Kind != plan.KindUnwrap {
		compiled = append(compiled, plan.PlanOp{Kind: plan.KindUnwrap})
	}
	runner := &plan.Runner{}
	result, err := runner.Run(compiled)
	if err != nil {
		return nil, err
	}
	return result.Unwrapped, nil
}

// RunValues compiles and executes the query, returning rows as typed
// Value dicts rather than unwrapped native scalars (used internally by
// Table.DeleteFromQuery, and available to callers who want typed
// results).
func (q *Query) RunValues() ([]Row, error) {
	compiled, err := compileOpsRecursive(q.db, q.ops)
	if err != nil {
		return nil, err
	}
	if n := len(compiled); n > 0 && compiled[n-1].Kind == plan.KindUnwrap {
		compiled = compiled[:n-1]
	}
	runner := &plan.Runner{}
	result, err := runner.Run(compiled)
	if err != nil {
		return nil, err
	}
	return result.Rows, nil
}

// ShowPlan renders the compiled physical plan's per-stage descriptions,
// one per line (spec §4.6 "show_plan").
func (q *Query) ShowPlan() (string, error) {
	compiled, err := compileOpsRecursive(q.db, q.ops)
	if err != nil {
		return "", err
	}
	var lines []string
	for _, op := range compiled {
		if op.Kind == plan.KindScan {
			lines = append(lines, op.Description)
		} else {
			lines = append(lines, planOpLabel(op))
		}
	}
	return strings.Join(lines, "\n"), nil
}

func planOpLabel(op plan.PlanOp) string {
	switch op.Kind {
	case plan.KindFilter:
		return "filter"
	case plan.KindSort:
		return "sort"
	case plan.KindDistinct:
		return "distinct"
	case plan.KindProject:
		return "project"
	case plan.KindRename:
		return "rename"
	case plan.KindLimit:
		return "limit"
	case plan.KindJoin:
		return "join"
	case plan.KindUnwrap:
		return "unwrap"
	default:
		return "?"
	}
}

// Columns reports the compile-time output column set of the query
// (spec §4.7 "Column projection (compile-time)"). Join's right-side
// columns are only available once the right plan is compiled; see
// plan.PlanOp.Columns for the documented simplification this builds on.
func (q *Query) Columns() (plan.ColumnSet, error) {
	if len(q.ops) == 0 || q.ops[0].Kind != plan.KindRead {
		return nil, errors.Wrap(errs.ErrFirstOpNotRead, "query: Columns")
	}
	cols := plan.ColumnSet{}
	if t, ok := q.db.tables[q.ops[0].Table]; ok {
		for _, f := range t.spec {
			cols[f.Name] = true
		}
	}
	for _, op := range q.ops[1:] {
		var err error
		cols, err = op.Columns(cols)
		if err != nil {
			return nil, err
		}
	}
	return cols, nil
}
