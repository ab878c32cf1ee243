// Package schema provides column typing metadata and row/field
// validation for tables. A Schema is the single source of truth for a
// table's column types, nullability, and defaults. Validators are
// stateless: every call returns its own error value.
package schema

import (
	"github.com/tablo-db/tablo/internal/errors"
	"github.com/tablo-db/tablo/pkg/types"
)

// ColumnRule is the caller-facing rule for one column. Type is
// required at AddColumn time; NotNull defaults to true when nil;
// Default, when set, must match Type.
type ColumnRule struct {
	Type    types.ColumnType
	NotNull *bool
	Default *types.Value
}

// Column is the stored, fully-resolved metadata for one column.
type Column struct {
	Name    string
	Type    types.ColumnType
	NotNull bool
	Default *types.Value
}

// Schema holds an ordered set of column definitions.
type Schema struct {
	names   []string
	columns map[string]Column
}

// New creates an empty schema.
func New() *Schema {
	return &Schema{columns: make(map[string]Column)}
}

// AddColumn defines a new column. It fails if the name is already
// defined, the type is not one of the four supported types, or the
// default's runtime type differs from the declared type. Definition
// errors never partially apply.
func (s *Schema) AddColumn(name string, rule ColumnRule) error {
	if _, ok := s.columns[name]; ok {
		return errors.NewDefinitionError(errors.CodeDuplicateColumn,
			"column %q is already defined", name)
	}
	if !rule.Type.Valid() {
		return errors.NewDefinitionError(errors.CodeInvalidType,
			"column %q: invalid type %q", name, string(rule.Type))
	}
	notNull := true
	if rule.NotNull != nil {
		notNull = *rule.NotNull
	}
	var def *types.Value
	if rule.Default != nil {
		if !rule.Default.Is(rule.Type) {
			return errors.NewDefinitionError(errors.CodeInvalidDefault,
				"column %q: default %s does not match type %q",
				name, rule.Default.String(), rule.Type)
		}
		d := *rule.Default
		def = &d
	}
	s.names = append(s.names, name)
	s.columns[name] = Column{Name: name, Type: rule.Type, NotNull: notNull, Default: def}
	return nil
}

// DeleteColumn removes a column definition. Removing an undefined
// column is a no-op. The schema does not cascade into rows or indexes;
// the owning table is responsible for those.
func (s *Schema) DeleteColumn(name string) {
	if _, ok := s.columns[name]; !ok {
		return
	}
	delete(s.columns, name)
	for i, n := range s.names {
		if n == name {
			s.names = append(s.names[:i], s.names[i+1:]...)
			break
		}
	}
}

// Has reports whether a column is defined.
func (s *Schema) Has(name string) bool {
	_, ok := s.columns[name]
	return ok
}

// Len returns the number of defined columns.
func (s *Schema) Len() int { return len(s.names) }

// Columns returns the column names in definition order.
func (s *Schema) Columns() []string {
	out := make([]string, len(s.names))
	copy(out, s.names)
	return out
}

// Column returns the stored metadata for a column.
func (s *Schema) Column(name string) (Column, bool) {
	c, ok := s.columns[name]
	return c, ok
}

// DefaultFor returns the column's default value, or null when the
// column has none (or is undefined).
func (s *Schema) DefaultFor(name string) types.Value {
	if c, ok := s.columns[name]; ok && c.Default != nil {
		return *c.Default
	}
	return types.Null()
}

// ValidateField checks one value against one column's rule. Null is
// valid only for nullable columns; non-null values must have a runtime
// type identical to the declared type, with no coercion.
func (s *Schema) ValidateField(name string, v types.Value) error {
	c, ok := s.columns[name]
	if !ok {
		return errors.NewUsageError(errors.CodeUndefinedColumn,
			"column %q is not defined", name)
	}
	if v.IsNull() {
		if c.NotNull {
			return errors.NewValidationError(errors.CodeNullViolation,
				"column %q does not accept null", name)
		}
		return nil
	}
	if !v.Is(c.Type) {
		got, _ := v.Type()
		return errors.NewValidationError(errors.CodeTypeMismatch,
			"column %q: %q expected, got %q (%s)", name, c.Type, got, v.String())
	}
	return nil
}

// ValidateRow checks a full row. It fails closed: the row must have
// exactly the schema's column count and an entry for every defined
// column; each field is then checked with ValidateField.
func (s *Schema) ValidateRow(row types.Row) error {
	if len(row) != len(s.names) {
		return errors.NewValidationError(errors.CodeRowShape,
			"row has %d fields, schema defines %d columns", len(row), len(s.names))
	}
	for _, name := range s.names {
		v, ok := row[name]
		if !ok {
			return errors.NewValidationError(errors.CodeRowShape,
				"row is missing column %q", name)
		}
		if err := s.ValidateField(name, v); err != nil {
			return err
		}
	}
	return nil
}

// Clone returns an independent deep copy: mutating the copy never
// affects the original.
func (s *Schema) Clone() *Schema {
	cp := &Schema{
		names:   make([]string, len(s.names)),
		columns: make(map[string]Column, len(s.columns)),
	}
	copy(cp.names, s.names)
	for name, c := range s.columns {
		cc := c
		if c.Default != nil {
			d := *c.Default
			cc.Default = &d
		}
		cp.columns[name] = cc
	}
	return cp
}

// Project returns a new schema restricted to exactly the requested
// columns, in the requested order. It fails on any undefined column.
func (s *Schema) Project(columns []string) (*Schema, error) {
	out := New()
	for _, name := range columns {
		c, ok := s.columns[name]
		if !ok {
			return nil, errors.NewUsageError(errors.CodeUndefinedColumn,
				"column %q is not defined", name)
		}
		notNull := c.NotNull
		out.names = append(out.names, name)
		cc := Column{Name: name, Type: c.Type, NotNull: notNull}
		if c.Default != nil {
			d := *c.Default
			cc.Default = &d
		}
		out.columns[name] = cc
	}
	return out, nil
}
