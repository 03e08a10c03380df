package expr

import "github.com/gertrudedb/gertrude/internal/value"

// SubstringNode is Substring(arg, start, length?) (spec §4.6, §4.6a):
// 0-based, out-of-range clamps rather than erroring.
type SubstringNode struct {
	Arg    Node
	Start  Node
	Length Node // may be nil: substring to end
}

func (n SubstringNode) Eval(env Env) (value.Value, error) {
	arg, err := n.Arg.Eval(env)
	if err != nil {
		return value.Value{}, err
	}
	startV, err := n.Start.Eval(env)
	if err != nil {
		return value.Value{}, err
	}
	if arg.IsNull() || startV.IsNull() {
		return value.Null(value.TypeString), nil
	}
	startI, err := startV.Int64()
	if err != nil {
		return value.Value{}, err
	}

	var lengthPtr *int
	if n.Length != nil {
		lengthV, err := n.Length.Eval(env)
		if err != nil {
			return value.Value{}, err
		}
		if lengthV.IsNull() {
			return value.Null(value.TypeString), nil
		}
		lengthI, err := lengthV.Int64()
		if err != nil {
			return value.Value{}, err
		}
		l := int(lengthI)
		lengthPtr = &l
	}
	return value.Substring(arg, int(startI), lengthPtr)
}

// UpperNode uppercases a STRING argument.
type UpperNode struct{ Arg Node }

func (n UpperNode) Eval(env Env) (value.Value, error) {
	v, err := n.Arg.Eval(env)
	if err != nil {
		return value.Value{}, err
	}
	return value.Upper(v)
}

// LowerNode lowercases a STRING argument.
type LowerNode struct{ Arg Node }

func (n LowerNode) Eval(env Env) (value.Value, error) {
	v, err := n.Arg.Eval(env)
	if err != nil {
		return value.Value{}, err
	}
	return value.Lower(v)
}

// StrLenNode returns the byte length of a STRING argument.
type StrLenNode struct{ Arg Node }

func (n StrLenNode) Eval(env Env) (value.Value, error) {
	v, err := n.Arg.Eval(env)
	if err != nil {
		return value.Value{}, err
	}
	return value.StrLen(v)
}

// ToStrNode converts any argument to its STRING form; null yields null
// (spec §4.6a).
type ToStrNode struct{ Arg Node }

func (n ToStrNode) Eval(env Env) (value.Value, error) {
	v, err := n.Arg.Eval(env)
	if err != nil {
		return value.Value{}, err
	}
	return value.ToStr(v)
}

// ToIntNode parses a STRING (or passes through a numeric) argument to
// INT64; null yields null, but a non-numeric STRING is a type error, not
// null propagation (spec §4.6a).
type ToIntNode struct{ Arg Node }

func (n ToIntNode) Eval(env Env) (value.Value, error) {
	v, err := n.Arg.Eval(env)
	if err != nil {
		return value.Value{}, err
	}
	return value.ToInt(v)
}
