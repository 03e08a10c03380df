package value

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/gertrudedb/gertrude/internal/errs"
)

// Arith is an arithmetic operator category (spec §4.6's Operation node).
type Arith int

const (
	Add Arith = iota
	Sub
	Mul
	Div
	Mod
)

// ArithOp applies an arithmetic operator with null propagation: if either
// operand is null, the result is null of a's type (spec §4.1, §4.6).
// Division by a literal zero is a runtime error, not a null result.
func ArithOp(op Arith, a, b Value) (Value, error) {
	if a.null || b.null {
		return Null(a.typ), nil
	}

	if a.typ == TypeString || b.typ == TypeString {
		if op != Add || a.typ != TypeString || b.typ != TypeString {
			return Value{}, errors.Wrapf(errs.ErrTypeMismatch, "arithmetic on %s/%s", a.typ, b.typ)
		}
		return NewString(a.s + b.s), nil
	}

	if a.typ == TypeBool || b.typ == TypeBool {
		return Value{}, errors.Wrapf(errs.ErrTypeMismatch, "arithmetic on %s/%s", a.typ, b.typ)
	}

	// Mixed INT64/FLOAT64 promotes to FLOAT64.
	if a.typ == TypeFloat64 || b.typ == TypeFloat64 {
		af, err := asFloat(a)
		if err != nil {
			return Value{}, err
		}
		bf, err := asFloat(b)
		if err != nil {
			return Value{}, err
		}
		switch op {
		case Add:
			return NewFloat64(af + bf), nil
		case Sub:
			return NewFloat64(af - bf), nil
		case Mul:
			return NewFloat64(af * bf), nil
		case Div:
			if bf == 0 {
				return Value{}, errs.ErrDivisionByZero
			}
			return NewFloat64(af / bf), nil
		case Mod:
			if bf == 0 {
				return Value{}, errs.ErrDivisionByZero
			}
			return NewFloat64(float64(int64(af) % int64(bf))), nil
		}
	}

	switch op {
	case Add:
		return NewInt64(a.i + b.i), nil
	case Sub:
		return NewInt64(a.i - b.i), nil
	case Mul:
		return NewInt64(a.i * b.i), nil
	case Div:
		if b.i == 0 {
			return Value{}, errs.ErrDivisionByZero
		}
		return NewInt64(a.i / b.i), nil
	case Mod:
		if b.i == 0 {
			return Value{}, errs.ErrDivisionByZero
		}
		return NewInt64(a.i % b.i), nil
	}
	return Value{}, errors.New("unknown arithmetic operator")
}

func asFloat(v Value) (float64, error) {
	switch v.typ {
	case TypeFloat64:
		return v.f, nil
	case TypeInt64:
		return float64(v.i), nil
	default:
		return 0, errors.Wrapf(errs.ErrTypeMismatch, "cannot widen %s to float", v.typ)
	}
}

// Cmp is a comparison operator (spec §4.6's Operation node, comparison
// category).
type Cmp int

const (
	Eq Cmp = iota
	Ne
	Lt
	Le
	Gt
	Ge
)

// CmpOp evaluates a comparison, returning a BOOL Value. Either operand
// being null yields a null BOOL (spec §4.6 null semantics).
func CmpOp(op Cmp, a, b Value) (Value, error) {
	if a.null || b.null {
		return Null(TypeBool), nil
	}
	c, err := Compare(a, b)
	if err != nil {
		return Value{}, err
	}
	switch op {
	case Eq:
		return NewBool(c == 0), nil
	case Ne:
		return NewBool(c != 0), nil
	case Lt:
		return NewBool(c < 0), nil
	case Le:
		return NewBool(c <= 0), nil
	case Gt:
		return NewBool(c > 0), nil
	case Ge:
		return NewBool(c >= 0), nil
	}
	return Value{}, errors.New("unknown comparison operator")
}

// Substring implements spec §4.6a: 0-based, out-of-range clamps rather
// than erroring; a null argument or bound propagates null.
func Substring(arg Value, start int, length *int) (Value, error) {
	if arg.typ != TypeString {
		return Value{}, errors.Wrapf(errs.ErrTypeMismatch, "Substring() on %s", arg.typ)
	}
	if arg.null {
		return Null(TypeString), nil
	}
	s := arg.s
	if start < 0 {
		start = 0
	}
	if start > len(s) {
		start = len(s)
	}
	end := len(s)
	if length != nil {
		end = start + *length
		if end > len(s) {
			end = len(s)
		}
		if end < start {
			end = start
		}
	}
	return NewString(s[start:end]), nil
}

// Upper / Lower implement the spec §4.6 Upper/Lower nodes.
func Upper(arg Value) (Value, error) {
	if arg.typ != TypeString {
		return Value{}, errors.Wrapf(errs.ErrTypeMismatch, "Upper() on %s", arg.typ)
	}
	if arg.null {
		return Null(TypeString), nil
	}
	return NewString(strings.ToUpper(arg.s)), nil
}

func Lower(arg Value) (Value, error) {
	if arg.typ != TypeString {
		return Value{}, errors.Wrapf(errs.ErrTypeMismatch, "Lower() on %s", arg.typ)
	}
	if arg.null {
		return Null(TypeString), nil
	}
	return NewString(strings.ToLower(arg.s)), nil
}

// StrLen implements the spec §4.6 StrLen node.
func StrLen(arg Value) (Value, error) {
	if arg.typ != TypeString {
		return Value{}, errors.Wrapf(errs.ErrTypeMismatch, "StrLen() on %s", arg.typ)
	}
	if arg.null {
		return Null(TypeInt64), nil
	}
	return NewInt64(int64(len(arg.s))), nil
}

// ToStr implements the spec §4.6 ToStr node; null propagates to null.
func ToStr(arg Value) (Value, error) {
	if arg.null {
		return Null(TypeString), nil
	}
	switch arg.typ {
	case TypeString:
		return arg, nil
	case TypeInt64:
		return NewString(strconv.FormatInt(arg.i, 10)), nil
	case TypeFloat64:
		return NewString(strconv.FormatFloat(arg.f, 'g', -1, 64)), nil
	case TypeBool:
		return NewString(strconv.FormatBool(arg.b)), nil
	}
	return Value{}, errors.New("unknown type in ToStr")
}

// ToInt implements the spec §4.6a ToInt node: null propagates to null, a
// non-numeric STRING is a type error (not a null result).
func ToInt(arg Value) (Value, error) {
	if arg.null {
		return Null(TypeInt64), nil
	}
	switch arg.typ {
	case TypeInt64:
		return arg, nil
	case TypeFloat64:
		return NewInt64(int64(arg.f)), nil
	case TypeBool:
		if arg.b {
			return NewInt64(1), nil
		}
		return NewInt64(0), nil
	case TypeString:
		n, err := strconv.ParseInt(strings.TrimSpace(arg.s), 10, 64)
		if err != nil {
			return Value{}, errors.Wrapf(errs.ErrParseFailure, "ToInt(%q)", arg.s)
		}
		return NewInt64(n), nil
	}
	return Value{}, errors.New("unknown type in ToInt")
}
