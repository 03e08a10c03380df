// Package schema implements FieldSpec and row normalization (spec §3 "Field
// spec", "Row"): the ordered, named, typed column list a Table is defined
// over, and the dict<->positional conversions insert/scan use.
//
// Grounded on the teacher's object-header message model
// (internal/core/objectheader.go / attribute.go): an ordered list of named,
// typed fields with default/required semantics, normalized once on
// read/write rather than duck-typed ad hoc.
package schema

import (
	"regexp"

	"github.com/pkg/errors"

	"github.com/gertrudedb/gertrude/internal/errs"
	"github.com/gertrudedb/gertrude/internal/value"
)

var nameRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidateName checks the `^[A-Za-z_][A-Za-z0-9_]*$` rule shared by table,
// column, and index names (spec §7).
func ValidateName(name string) error {
	if !nameRE.MatchString(name) {
		return errors.Wrapf(errs.ErrBadName, "%q", name)
	}
	return nil
}

// Default is either a constant Value or a zero-arg producer, invoked fresh
// on every fill (spec §3 Field spec; SPEC_FULL §3 resolves that a producer
// is never memoized).
type Default struct {
	Const    *value.Value
	Producer func() value.Value
}

func (d *Default) value() value.Value {
	if d.Producer != nil {
		return d.Producer()
	}
	return *d.Const
}

// Options are the per-column options named in spec §6.
type Options struct {
	PK       bool
	Unique   bool
	Nullable bool
	Default  *Default
}

// FieldSpec is (name, type-tag, options) (spec §3).
type FieldSpec struct {
	Name    string
	Type    value.Type
	Options Options
}

// NewFieldSpec builds a FieldSpec, applying the "pk forces unique+non-
// nullable" rule (spec §3). Nullable is taken as given for non-pk columns;
// callers that want the common case pass Options{Nullable: true}.
func NewFieldSpec(name string, typ value.Type, opts Options) (FieldSpec, error) {
	if err := ValidateName(name); err != nil {
		return FieldSpec{}, err
	}
	if opts.PK {
		opts.Unique = true
		opts.Nullable = false
	}
	return FieldSpec{Name: name, Type: typ, Options: opts}, nil
}

// Spec is the ordered, unique-named tuple of FieldSpecs that defines a
// Table's schema (spec §3).
type Spec []FieldSpec

// Validate checks unique names across the spec.
func (s Spec) Validate() error {
	seen := make(map[string]bool, len(s))
	for _, f := range s {
		if seen[f.Name] {
			return errors.Wrapf(errs.ErrDuplicateTable, "duplicate column name %q", f.Name)
		}
		seen[f.Name] = true
	}
	return nil
}

// Index returns the position of a column by name, or -1.
func (s Spec) Index(name string) int {
	for i, f := range s {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// Row is the user-facing dict form of a row (spec §3 "Row").
type Row map[string]value.Value

// Normalize fills missing columns from defaults (else null if nullable,
// else an error) and returns the positional array matching spec's column
// order (spec §3, §4.5 "insert: normalize").
func (s Spec) Normalize(row Row) ([]value.Value, error) {
	out := make([]value.Value, len(s))
	for i, f := range s {
		v, ok := row[f.Name]
		if !ok {
			switch {
			case f.Options.Default != nil:
				v = f.Options.Default.value()
			case f.Options.Nullable:
				v = value.Null(f.Type)
			default:
				return nil, errors.Wrapf(errs.ErrMissingRequired, "column %q", f.Name)
			}
		}
		if v.Type() != f.Type {
			return nil, errors.Wrapf(errs.ErrTypeMismatch, "column %q expects %s, got %s", f.Name, f.Type, v.Type())
		}
		if v.IsNull() && !f.Options.Nullable {
			return nil, errors.Wrapf(errs.ErrNullNotAllowed, "column %q", f.Name)
		}
		out[i] = v
	}
	for name := range row {
		if s.Index(name) < 0 {
			return nil, errors.Wrapf(errs.ErrUnknownColumn, "%q", name)
		}
	}
	return out, nil
}

// ToDict converts a positional row back to the dict form.
func (s Spec) ToDict(positional []value.Value) Row {
	row := make(Row, len(s))
	for i, f := range s {
		if i < len(positional) {
			row[f.Name] = positional[i]
		}
	}
	return row
}

// StructuralEqual compares two positional rows value-by-value (spec §4.5
// delete semantics: structural equality on normalized rows).
func StructuralEqual(a, b []value.Value) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !value.Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}
