// Package plan implements the plan op tagged variant and runner of spec
// §4.7: Read/Scan/Filter/Sort/Distinct/Project/Rename/Limit/Join/Unwrap,
// the planner that rewrites Read into an index- or table-scan, and the
// row-stream runner that executes the compiled plan.
//
// Grounded on the teacher's staged, lazy read pipeline
// (internal/core/dataset_reader.go, dataset_reader_chunked.go: raw bytes
// -> filter pipeline -> typed values, each stage a small struct with a
// uniform "process the previous stage's output" method) generalized here
// to a query-plan pipeline over row streams. Unlike the teacher's
// byte-chunk pipeline this package materializes each stage's output as a
// []Row rather than true incremental streaming -- gertrude's datasets are
// small files on local disk, not chunked binary arrays, so the extra
// complexity of a lazy iterator interface bought nothing beyond what the
// teacher's own Scan already does at the heap layer (see internal/btree's
// Cursor for the one place real lazy iteration matters).
package plan

import (
	"github.com/gertrudedb/gertrude/internal/btree"
	"github.com/gertrudedb/gertrude/internal/expr"
	"github.com/gertrudedb/gertrude/internal/value"
)

// Row is a dict-form row flowing through the plan (spec §3 "Row").
type Row map[string]value.Value

// Kind tags a PlanOp's variant (spec §9 "Ad-hoc inheritance... collapses
// to a tagged variant").
type Kind int

const (
	KindRead Kind = iota
	KindScan
	KindFilter
	KindSort
	KindDistinct
	KindProject
	KindRename
	KindLimit
	KindJoin
	KindUnwrap
)

// SortSpec is one column's direction within a Sort op.
type SortSpec struct {
	Column string
	Desc   bool
}

// ProjectCol is one (name, expr) pair of a Project op.
type ProjectCol struct {
	Name string
	Expr expr.Node
}

// RenamePair is one (old, new) column rename.
type RenamePair struct {
	Old, New string
}

// JoinHow is the join kind (spec §6 "how").
type JoinHow int

const (
	JoinInner JoinHow = iota
	JoinLeftOuter
)

// RenameMode controls Join's column-collision handling.
type RenameMode int

const (
	RenameOff RenameMode = iota
	RenameAuto
	RenameExplicit
)

// PlanOp is the tagged plan-op variant (spec §4.7). Only the fields
// relevant to Kind are populated.
type PlanOp struct {
	Kind Kind

	// Read
	Table string

	// Scan (filled in by the planner, never by a caller)
	Rows        []Row
	Description string

	// Filter
	Filters []expr.Node

	// Sort
	Sorts []SortSpec

	// Distinct
	DistinctKeys []string

	// Project
	Retain  bool
	Columns []ProjectCol

	// Rename
	Renames []RenamePair

	// Limit
	Limit int

	// Join
	JoinRight  []PlanOp // the right side's own (compiled) plan
	JoinOn     [2]string
	JoinHow    JoinHow
	JoinRename RenameMode
	JoinSuffix [2]string
}

// ColumnSet is the compile-time output column set an op reports given its
// input (spec §4.7 "Column projection (compile-time)").
type ColumnSet map[string]bool

func (c ColumnSet) clone() ColumnSet {
	out := make(ColumnSet, len(c))
	for k := range c {
		out[k] = true
	}
	return out
}

// Columns reports the output column set of op given its input columns.
func (op PlanOp) Columns(in ColumnSet) (ColumnSet, error) {
	switch op.Kind {
	case KindProject:
		if op.Retain {
			out := in.clone()
			for _, c := range op.Columns {
				out[c.Name] = true
			}
			return out, nil
		}
		out := make(ColumnSet, len(op.Columns))
		for _, c := range op.Columns {
			out[c.Name] = true
		}
		return out, nil
	case KindRename:
		out := in.clone()
		for _, r := range op.Renames {
			delete(out, r.Old)
			out[r.New] = true
		}
		return out, nil
	case KindJoin:
		out := in.clone()
		// The right side's columns are not known without compiling it;
		// callers that need exact post-join introspection should compile
		// the right plan first and union its Columns output in.
		return out, nil
	default:
		return in, nil
	}
}

func bisectOpFromCmp(c value.Cmp) (btree.Op, bool) {
	switch c {
	case value.Eq:
		return btree.OpEq, true
	case value.Lt:
		return btree.OpLt, true
	case value.Le:
		return btree.OpLe, true
	case value.Gt:
		return btree.OpGt, true
	case value.Ge:
		return btree.OpGe, true
	default:
		return btree.OpNone, false
	}
}

func reverseCmp(c value.Cmp) value.Cmp {
	switch c {
	case value.Lt:
		return value.Gt
	case value.Le:
		return value.Ge
	case value.Gt:
		return value.Lt
	case value.Ge:
		return value.Le
	default:
		return c
	}
}
