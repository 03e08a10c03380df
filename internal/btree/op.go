package btree

import (
	"github.com/pkg/errors"

	"github.com/gertrudedb/gertrude/internal/errs"
)

// Op is a scan operator (spec §6 "Scan operator"). Synonyms map to a
// canonical form at parse time so callers never branch on spelling.
type Op int

const (
	OpNone Op = iota
	OpEq
	OpLt
	OpLe
	OpGt
	OpGe
)

// ParseOp maps the recognized spellings (eq|=|==, lt|<, le|<=, gt|>,
// ge|>=) to their canonical Op.
func ParseOp(s string) (Op, error) {
	switch s {
	case "":
		return OpNone, nil
	case "eq", "=", "==":
		return OpEq, nil
	case "lt", "<":
		return OpLt, nil
	case "le", "<=":
		return OpLe, nil
	case "gt", ">":
		return OpGt, nil
	case "ge", ">=":
		return OpGe, nil
	default:
		return OpNone, errors.Wrapf(errs.ErrUnknownOption, "scan operator %q", s)
	}
}

func (o Op) String() string {
	switch o {
	case OpEq:
		return "="
	case OpLt:
		return "<"
	case OpLe:
		return "<="
	case OpGt:
		return ">"
	case OpGe:
		return ">="
	default:
		return ""
	}
}
