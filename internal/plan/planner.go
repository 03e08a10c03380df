package plan

import (
	"fmt"

	"github.com/gertrudedb/gertrude/internal/btree"
	"github.com/gertrudedb/gertrude/internal/errs"
	"github.com/gertrudedb/gertrude/internal/expr"
	"github.com/gertrudedb/gertrude/internal/value"
)

// TableLookup is the abstract capability the planner needs from a
// Database, breaking the Database/Query/Runner/Table cycle (spec §9
// "Cyclic dependency").
type TableLookup interface {
	Scan(table string) ([]Row, error)
	IndexForColumn(table, column string) (indexName string, ok bool)
	IndexScan(table, indexName string, key value.Value, op btree.Op) ([]Row, error)
}

// matchIndexableFilter recognizes a "column <op> literal" (or reversed)
// comparison with op in {=,<,<=,>,>=} (spec §4.7 Planner).
func matchIndexableFilter(n expr.Node) (column string, cmp value.Cmp, lit value.Value, ok bool) {
	o, isOp := n.(expr.Operation)
	if !isOp || o.Category != expr.CategoryCompare || o.Cmp == value.Ne {
		return "", 0, value.Value{}, false
	}
	if cn, isCol := o.Left.(expr.ColumnName); isCol {
		if l, isLit := o.Right.(expr.Literal); isLit {
			return cn.Name, o.Cmp, l.Value, true
		}
	}
	if cn, isCol := o.Right.(expr.ColumnName); isCol {
		if l, isLit := o.Left.(expr.Literal); isLit {
			return cn.Name, reverseCmp(o.Cmp), l.Value, true
		}
	}
	return "", 0, value.Value{}, false
}

// Compile rewrites a logical plan (beginning with Read) into a physical
// plan beginning with Scan (spec §4.7 "Planner"): if the next op is a
// Filter holding exactly one expression, that expression is an indexable
// comparison, and an index exists on that column, the scan becomes an
// index scan and that filter is dropped; otherwise (including a Filter
// with several expressions) it becomes a table scan. A bare scan gets an
// appended Unwrap.
func Compile(lookup TableLookup, ops []PlanOp) ([]PlanOp, error) {
	if len(ops) == 0 || ops[0].Kind != KindRead {
		return nil, errs.ErrFirstOpNotRead
	}
	table := ops[0].Table
	rest := ops[1:]

	if len(rest) > 0 && rest[0].Kind == KindFilter && len(rest[0].Filters) == 1 {
		if col, cmp, lit, ok := matchIndexableFilter(rest[0].Filters[0]); ok {
			if bop, okOp := bisectOpFromCmp(cmp); okOp {
				if idxName, ok2 := lookup.IndexForColumn(table, col); ok2 {
					rows, err := lookup.IndexScan(table, idxName, lit, bop)
					if err != nil {
						return nil, err
					}
					scanOp := PlanOp{Kind: KindScan, Rows: rows, Description: fmt.Sprintf("index scan: %s using %s", table, idxName)}
					compiled := append([]PlanOp{scanOp}, rest[1:]...)
					if len(compiled) == 1 {
						compiled = append(compiled, PlanOp{Kind: KindUnwrap})
					}
					return compiled, nil
				}
			}
		}
	}

	rows, err := lookup.Scan(table)
	if err != nil {
		return nil, err
	}
	scanOp := PlanOp{Kind: KindScan, Rows: rows, Description: fmt.Sprintf("table scan: %s", table)}
	compiled := append([]PlanOp{scanOp}, rest...)
	if len(compiled) == 1 {
		compiled = append(compiled, PlanOp{Kind: KindUnwrap})
	}
	return compiled, nil
}
