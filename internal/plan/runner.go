package plan

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/gertrudedb/gertrude/internal/errs"
	"github.com/gertrudedb/gertrude/internal/expr"
	"github.com/gertrudedb/gertrude/internal/value"
)

// Runner executes a compiled plan (spec §4.7 "Plan ops and Runner").
type Runner struct {
	DataVars map[string]value.Value
}

// Result is the Runner's output: either dict rows (Unwrap absent) or
// native-scalar rows (Unwrap present, the default at API boundaries,
// spec GLOSSARY "Unwrap").
type Result struct {
	Rows      []Row
	Unwrapped []map[string]any
	WasUnwrap bool
}

// Run executes ops in order, threading rows through each stage.
func (r *Runner) Run(ops []PlanOp) (Result, error) {
	var rows []Row
	for _, op := range ops {
		var err error
		switch op.Kind {
		case KindRead:
			return Result{}, errors.Wrap(errs.ErrFirstOpNotRead, "runner: Read must be compiled away before Run")
		case KindScan:
			rows = op.Rows
		case KindFilter:
			rows, err = r.runFilter(op, rows)
		case KindSort:
			rows, err = r.runSort(op, rows)
		case KindDistinct:
			rows, err = r.runDistinct(op, rows)
		case KindProject:
			rows, err = r.runProject(op, rows)
		case KindRename:
			rows, err = r.runRename(op, rows)
		case KindLimit:
			if op.Limit < len(rows) {
				rows = rows[:op.Limit]
			}
		case KindJoin:
			rows, err = r.runJoin(op, rows)
		case KindUnwrap:
			return Result{Unwrapped: unwrapAll(rows), WasUnwrap: true}, nil
		default:
			return Result{}, errors.Wrapf(errs.ErrUnknownOperator, "plan op kind %d", op.Kind)
		}
		if err != nil {
			return Result{}, err
		}
	}
	return Result{Rows: rows}, nil
}

func unwrapAll(rows []Row) []map[string]any {
	out := make([]map[string]any, len(rows))
	for i, row := range rows {
		m := make(map[string]any, len(row))
		for k, v := range row {
			m[k] = v.Native()
		}
		out[i] = m
	}
	return out
}

func (r *Runner) env(row Row) expr.Env {
	return expr.Env{Row: expr.Row(row), DataVars: r.DataVars}
}

// runFilter keeps rows where every expression evaluates true (implicit
// AND across multiple filter expressions); a null predicate excludes the
// row (SQL WHERE semantics).
func (r *Runner) runFilter(op PlanOp, rows []Row) ([]Row, error) {
	out := rows[:0:0]
	for _, row := range rows {
		keep := true
		for _, e := range op.Filters {
			v, err := e.Eval(r.env(row))
			if err != nil {
				return nil, err
			}
			if v.IsNull() {
				keep = false
				break
			}
			b, err := v.Bool()
			if err != nil {
				return nil, err
			}
			if !b {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, row)
		}
	}
	return out, nil
}

// runSort implements a stable multi-key sort in a single pass whose
// comparator checks the keys major-first, which orders rows the same way
// as stable minor-to-major passes would (spec §4.7 Sort, §9 "Sort
// stability is assumed").
func (r *Runner) runSort(op PlanOp, rows []Row) ([]Row, error) {
	out := append([]Row(nil), rows...)
	var sortErr error
	sort.SliceStable(out, func(i, j int) bool {
		for _, spec := range op.Sorts {
			c, err := value.Compare(out[i][spec.Column], out[j][spec.Column])
			if err != nil {
				sortErr = err
				return false
			}
			if c == 0 {
				continue
			}
			if spec.Desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
	return out, sortErr
}

// runDistinct preserves first occurrence, deduplicating on a tuple of
// Values under the given keys (or the full row if keys is empty, spec
// §4.7 Distinct).
func (r *Runner) runDistinct(op PlanOp, rows []Row) ([]Row, error) {
	keys := op.DistinctKeys
	seen := make(map[string]bool, len(rows))
	var out []Row
	for _, row := range rows {
		k, err := distinctKey(row, keys)
		if err != nil {
			return nil, err
		}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, row)
	}
	return out, nil
}

func distinctKey(row Row, keys []string) (string, error) {
	if len(keys) == 0 {
		// full-row distinct: stable ordering over all columns.
		names := make([]string, 0, len(row))
		for k := range row {
			names = append(names, k)
		}
		sort.Strings(names)
		keys = names
	}
	var buf []byte
	for _, k := range keys {
		v, ok := row[k]
		if !ok {
			buf = append(buf, 0)
			continue
		}
		buf = append(buf, v.Raw()...)
		buf = append(buf, 0)
	}
	return string(buf), nil
}

// runProject implements Project: retain=true keeps existing columns and
// adds computed ones; false restricts to the listed columns (spec §4.7).
func (r *Runner) runProject(op PlanOp, rows []Row) ([]Row, error) {
	out := make([]Row, len(rows))
	for i, row := range rows {
		var nr Row
		if op.Retain {
			nr = make(Row, len(row)+len(op.Columns))
			for k, v := range row {
				nr[k] = v
			}
		} else {
			nr = make(Row, len(op.Columns))
		}
		for _, c := range op.Columns {
			v, err := c.Expr.Eval(r.env(row))
			if err != nil {
				return nil, err
			}
			nr[c.Name] = v
		}
		out[i] = nr
	}
	return out, nil
}

// runRename remaps column names (spec §4.7 Rename).
func (r *Runner) runRename(op PlanOp, rows []Row) ([]Row, error) {
	out := make([]Row, len(rows))
	for i, row := range rows {
		nr := make(Row, len(row))
		for k, v := range row {
			nr[k] = v
		}
		for _, p := range op.Renames {
			if v, ok := nr[p.Old]; ok {
				delete(nr, p.Old)
				nr[p.New] = v
			}
		}
		out[i] = nr
	}
	return out, nil
}
