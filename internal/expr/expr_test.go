package expr

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gertrudedb/gertrude/internal/value"
)

func lit(v value.Value) Node { return Literal{Value: v} }

func TestArithOperationNullPropagation(t *testing.T) {
	op := Operation{Category: CategoryArith, Arith: value.Add, Left: lit(value.Null(value.TypeInt64)), Right: lit(value.NewInt64(1))}
	v, err := op.Eval(Env{})
	require.NoError(t, err)
	require.True(t, v.IsNull())
}

func TestCompareOperation(t *testing.T) {
	op := Operation{Category: CategoryCompare, Cmp: value.Lt, Left: lit(value.NewInt64(1)), Right: lit(value.NewInt64(2))}
	v, err := op.Eval(Env{})
	require.NoError(t, err)
	b, _ := v.Bool()
	require.True(t, b)
}

func TestLogicalAndShortCircuitsOnFalse(t *testing.T) {
	op := Operation{
		Category: CategoryLogical, Logical: LogicalAnd,
		Left:  lit(value.NewBool(false)),
		Right: lit(value.Null(value.TypeBool)),
	}
	v, err := op.Eval(Env{})
	require.NoError(t, err)
	require.False(t, v.IsNull())
	b, _ := v.Bool()
	require.False(t, b)
}

func TestLogicalOrNullPropagatesWhenUndetermined(t *testing.T) {
	op := Operation{
		Category: CategoryLogical, Logical: LogicalOr,
		Left:  lit(value.NewBool(false)),
		Right: lit(value.Null(value.TypeBool)),
	}
	v, err := op.Eval(Env{})
	require.NoError(t, err)
	require.True(t, v.IsNull())
}

func TestMonoIsNull(t *testing.T) {
	op := MonoOperation{Op: MonoIsNull, Arg: lit(value.Null(value.TypeInt64))}
	v, err := op.Eval(Env{})
	require.NoError(t, err)
	b, _ := v.Bool()
	require.True(t, b)
}

func TestNVLReturnsFirstNonNull(t *testing.T) {
	n := NVLOp{Args: []Node{lit(value.Null(value.TypeInt64)), lit(value.NewInt64(5))}}
	v, err := n.Eval(Env{})
	require.NoError(t, err)
	require.Equal(t, int64(5), v.Native())
}

func TestINStmtMembership(t *testing.T) {
	n := INStmt{Left: lit(value.NewInt64(2)), Right: []Node{lit(value.NewInt64(1)), lit(value.NewInt64(2))}}
	v, err := n.Eval(Env{})
	require.NoError(t, err)
	b, _ := v.Bool()
	require.True(t, b)
}

// TestCaseLeapYearMatchesBooleanForm mirrors spec scenario S6.
func TestCaseLeapYearMatchesBooleanForm(t *testing.T) {
	isLeap := func(year int64) Node {
		mod := func(m int64) Node {
			return Operation{Category: CategoryArith, Arith: value.Mod, Left: lit(value.NewInt64(year)), Right: lit(value.NewInt64(m))}
		}
		eq := func(n Node, v int64) Node {
			return Operation{Category: CategoryCompare, Cmp: value.Eq, Left: n, Right: lit(value.NewInt64(v))}
		}
		return CaseStmt{
			Legs: []CaseLeg{
				{Cond: eq(mod(400), 0), Result: lit(value.NewBool(true))},
				{Cond: eq(mod(100), 0), Result: lit(value.NewBool(false))},
				{Cond: eq(mod(4), 0), Result: lit(value.NewBool(true))},
			},
			Default: lit(value.NewBool(false)),
		}
	}

	for year, want := range map[int64]bool{2000: true, 1900: false, 2001: false, 2024: true} {
		v, err := isLeap(year).Eval(Env{})
		require.NoError(t, err)
		b, _ := v.Bool()
		require.Equal(t, want, b, "year %d", year)
	}
}

func TestBetweenNullPropagation(t *testing.T) {
	b := Between{Arg: lit(value.Null(value.TypeInt64)), Low: lit(value.NewInt64(1)), High: lit(value.NewInt64(5))}
	v, err := b.Eval(Env{})
	require.NoError(t, err)
	require.True(t, v.IsNull())
}

func TestBetweenInclusive(t *testing.T) {
	b := Between{Arg: lit(value.NewInt64(5)), Low: lit(value.NewInt64(1)), High: lit(value.NewInt64(5))}
	v, err := b.Eval(Env{})
	require.NoError(t, err)
	res, _ := v.Bool()
	require.True(t, res)
}

func TestColumnNameAndDataVar(t *testing.T) {
	env := Env{Row: Row{"id": value.NewInt64(7)}, DataVars: map[string]value.Value{"current_timestamp": value.NewInt64(123)}}
	v, err := (ColumnName{Name: "id"}).Eval(env)
	require.NoError(t, err)
	require.Equal(t, int64(7), v.Native())

	v, err = (DataVar{Name: "current_timestamp"}).Eval(env)
	require.NoError(t, err)
	require.Equal(t, int64(123), v.Native())
}

func TestSubstringWithoutLengthRunsToEnd(t *testing.T) {
	n := SubstringNode{Arg: lit(value.NewString("hello")), Start: lit(value.NewInt64(2))}
	v, err := n.Eval(Env{})
	require.NoError(t, err)
	s, _ := v.Str()
	require.Equal(t, "llo", s)
}

func TestToIntParseFailureIsTypeError(t *testing.T) {
	n := ToIntNode{Arg: lit(value.NewString("xyz"))}
	_, err := n.Eval(Env{})
	require.Error(t, err)
}
