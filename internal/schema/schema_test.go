package schema

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gertrudedb/gertrude/internal/value"
)

func TestNewFieldSpecPKForcesUniqueNonNullable(t *testing.T) {
	f, err := NewFieldSpec("id", value.TypeInt64, Options{PK: true, Nullable: true})
	require.NoError(t, err)
	require.True(t, f.Options.Unique)
	require.False(t, f.Options.Nullable)
}

func TestNewFieldSpecRejectsBadName(t *testing.T) {
	_, err := NewFieldSpec("9bad", value.TypeInt64, Options{})
	require.Error(t, err)
}

func TestSpecValidateRejectsDuplicateNames(t *testing.T) {
	id, _ := NewFieldSpec("id", value.TypeInt64, Options{PK: true})
	dup, _ := NewFieldSpec("id", value.TypeString, Options{Nullable: true})
	require.Error(t, Spec{id, dup}.Validate())
}

func TestNormalizeFillsDefaultsAndNulls(t *testing.T) {
	id, _ := NewFieldSpec("id", value.TypeInt64, Options{PK: true})
	name, _ := NewFieldSpec("name", value.TypeString, Options{Nullable: true})
	calls := 0
	age, _ := NewFieldSpec("age", value.TypeInt64, Options{
		Nullable: true,
		Default: &Default{Producer: func() value.Value {
			calls++
			return value.NewInt64(int64(calls))
		}},
	})
	s := Spec{id, name, age}

	out1, err := s.Normalize(Row{"id": value.NewInt64(1)})
	require.NoError(t, err)
	require.True(t, out1[1].IsNull())
	require.Equal(t, int64(1), out1[2].Native())

	out2, err := s.Normalize(Row{"id": value.NewInt64(2)})
	require.NoError(t, err)
	require.Equal(t, int64(2), out2[2].Native(), "default producer must be invoked fresh, not memoized")
}

func TestNormalizeRejectsMissingRequired(t *testing.T) {
	id, _ := NewFieldSpec("id", value.TypeInt64, Options{PK: true})
	s := Spec{id}
	_, err := s.Normalize(Row{})
	require.Error(t, err)
}

func TestNormalizeRejectsUnknownColumn(t *testing.T) {
	id, _ := NewFieldSpec("id", value.TypeInt64, Options{PK: true})
	s := Spec{id}
	_, err := s.Normalize(Row{"id": value.NewInt64(1), "bogus": value.NewInt64(2)})
	require.Error(t, err)
}

func TestStructuralEqual(t *testing.T) {
	a := []value.Value{value.NewInt64(1), value.NewString("x")}
	b := []value.Value{value.NewInt64(1), value.NewString("x")}
	c := []value.Value{value.NewInt64(1), value.NewString("y")}
	require.True(t, StructuralEqual(a, b))
	require.False(t, StructuralEqual(a, c))
}
