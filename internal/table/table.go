// Package table implements the in-memory tabular data engine: a
// schema-validated, indexed, queryable collection of rows addressed by
// integer or string keys. Tables are built from raw row data through a
// schema-inference pass, then queried through a select/project/sort/
// limit pipeline. The engine assumes exclusive single-actor access for
// a table's lifetime; concurrent use requires external locking.
package table

import (
	"github.com/tablo-db/tablo/internal/criteria"
	"github.com/tablo-db/tablo/internal/errors"
	"github.com/tablo-db/tablo/internal/schema"
	"github.com/tablo-db/tablo/pkg/types"
)

// RawRow is one row of raw construction input: an untyped key plus
// untyped field values, as received from an external source.
type RawRow struct {
	Key    interface{}
	Fields map[string]interface{}
}

// Table is an ordered mapping from row key to row, owning a schema,
// zero or more secondary indexes, and the query pipeline.
type Table struct {
	schema    *schema.Schema
	keys      []types.Key
	rows      map[types.Key]types.Row
	indexes   map[string]*Index
	keyColumn string
	keyKind   *types.KeyKind
	immutable bool
	eval      *criteria.Evaluator
}

// New builds a table from raw rows plus optional explicit column
// rules. Construction runs schema inference over the raw data, fails
// with an aggregate structural error when the data is malformed,
// merges explicit rules over inferred ones (explicit type/nullability
// wins), builds the schema, and imports every row in original order.
func New(raw []RawRow, rules map[string]schema.ColumnRule) (*Table, error) {
	analysis := Analyze(raw)
	if err := analysis.Err(); err != nil {
		return nil, err
	}

	merged := mergeRules(analysis, rules)
	s := schema.New()
	for _, col := range merged {
		if err := s.AddColumn(col.name, col.rule); err != nil {
			return nil, err
		}
	}

	t := newEmpty(s)
	for _, rr := range raw {
		key, _ := types.KeyFromAny(rr.Key)
		row := make(types.Row, len(rr.Fields))
		for name, rawVal := range rr.Fields {
			v, _ := types.FromAny(rawVal)
			row[name] = v
		}
		if err := t.AddRow(key, row, true); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// NewWithSchema builds an empty table over an explicit schema,
// bypassing inference. The schema is cloned; the caller's copy stays
// independent.
func NewWithSchema(s *schema.Schema) *Table {
	return newEmpty(s.Clone())
}

func newEmpty(s *schema.Schema) *Table {
	return &Table{
		schema:  s,
		rows:    make(map[types.Key]types.Row),
		indexes: make(map[string]*Index),
		eval:    criteria.NewEvaluator(),
	}
}

// mergedColumn pairs a column name with its resolved rule, keeping
// definition order: inferred columns first (input order), then columns
// declared only by the caller.
type mergedColumn struct {
	name string
	rule schema.ColumnRule
}

// mergeRules resolves explicit caller rules against inferred ones.
// For every column an explicit type or nullability wins over the
// inferred value; columns the caller declares without constraints
// defer entirely to inference (string, nullable when never observed).
func mergeRules(a *Analysis, rules map[string]schema.ColumnRule) []mergedColumn {
	var out []mergedColumn
	seen := make(map[string]bool)

	for _, name := range a.ColumnOrder {
		tally := a.Columns[name]
		rule := schema.ColumnRule{}
		if explicit, ok := rules[name]; ok {
			rule = explicit
		}
		if rule.Type == "" {
			rule.Type = tally.InferredType()
		}
		if rule.NotNull == nil {
			notNull := tally.InferredNotNull(a.RowCount)
			rule.NotNull = &notNull
		}
		out = append(out, mergedColumn{name: name, rule: rule})
		seen[name] = true
	}

	// Columns only the caller mentioned: declared existence without
	// observed data. Inference has nothing, so they default to a
	// nullable string column unless the rule says otherwise.
	for _, name := range sortedRuleNames(rules) {
		if seen[name] {
			continue
		}
		rule := rules[name]
		if rule.Type == "" {
			rule.Type = types.TypeString
		}
		if rule.NotNull == nil {
			notNull := false
			rule.NotNull = &notNull
		}
		out = append(out, mergedColumn{name: name, rule: rule})
	}
	return out
}

// Schema returns the table's schema. Callers must treat it as
// read-only; column changes go through AddColumn/DeleteColumn.
func (t *Table) Schema() *schema.Schema { return t.schema }

// Len returns the row count.
func (t *Table) Len() int { return len(t.keys) }

// KeyColumn returns the column currently used to derive row keys, or
// empty for synthetic keys.
func (t *Table) KeyColumn() string { return t.keyColumn }

// SetImmutable freezes the table: every subsequent mutating call
// fails with a usage error.
func (t *Table) SetImmutable() { t.immutable = true }

// IsImmutable reports whether the table is frozen.
func (t *Table) IsImmutable() bool { return t.immutable }

func (t *Table) failIfImmutable() error {
	if t.immutable {
		return errors.NewUsageError(errors.CodeImmutableTable,
			"table is immutable")
	}
	return nil
}

// KeyKind reports the table's key kind: the kind of the stored keys,
// or the pinned kind for an empty table. ok is false when neither is
// established.
func (t *Table) KeyKind() (types.KeyKind, bool) {
	if len(t.keys) > 0 {
		return t.keys[0].Kind(), true
	}
	if t.keyKind != nil {
		return *t.keyKind, true
	}
	return types.KeyInt, false
}

// SetKeyKind pins the table's key kind so new rows must carry keys of
// that kind even while the table is empty. Pinning a kind that
// conflicts with stored keys is a usage error.
func (t *Table) SetKeyKind(kind types.KeyKind) error {
	if err := t.failIfImmutable(); err != nil {
		return err
	}
	if len(t.keys) > 0 && t.keys[0].Kind() != kind {
		return errors.NewUsageError(errors.CodeWrongKeyType,
			"stored keys do not match the requested key kind")
	}
	t.keyKind = &kind
	return nil
}

// keyKindMatches checks an incoming key against the table's
// established key type. The type is established by the first stored
// row or a pinned kind; otherwise an empty table accepts either kind.
func (t *Table) keyKindMatches(key types.Key) bool {
	kind, ok := t.KeyKind()
	if !ok {
		return true
	}
	return kind == key.Kind()
}

// AddRow inserts or replaces a row. Missing fields fill with null.
// It fails on an immutable table, on a duplicate key when replace is
// false, on a key whose runtime type differs from the table's
// established key type, and on any schema validation failure. Declared
// indexes are rebuilt in full after the insert.
func (t *Table) AddRow(key types.Key, row types.Row, replace bool) error {
	if err := t.failIfImmutable(); err != nil {
		return err
	}
	_, exists := t.rows[key]
	if exists && !replace {
		return errors.NewUsageError(errors.CodeDuplicateKey,
			"key %s already present", key.String())
	}
	if !t.keyKindMatches(key) {
		return errors.NewUsageError(errors.CodeWrongKeyType,
			"key %s does not match the table's key type", key.String())
	}

	full := make(types.Row, t.schema.Len())
	for _, name := range t.schema.Columns() {
		if v, ok := row[name]; ok {
			full[name] = v
		} else {
			full[name] = types.Null()
		}
	}
	if err := t.schema.ValidateRow(full); err != nil {
		return err
	}

	if !exists {
		t.keys = append(t.keys, key)
	}
	t.rows[key] = full
	return t.rebuildIndexes()
}

// DeleteRow removes a row. Deleting an absent key is a no-op. Indexes
// are rebuilt after removal.
func (t *Table) DeleteRow(key types.Key) error {
	if err := t.failIfImmutable(); err != nil {
		return err
	}
	if _, ok := t.rows[key]; !ok {
		return nil
	}
	delete(t.rows, key)
	for i, k := range t.keys {
		if k == key {
			t.keys = append(t.keys[:i], t.keys[i+1:]...)
			break
		}
	}
	return t.rebuildIndexes()
}

// UpdateField sets one cell. The value is validated against the
// schema before the mutation; only the index on the touched column is
// rebuilt afterwards.
func (t *Table) UpdateField(key types.Key, column string, v types.Value) error {
	if err := t.failIfImmutable(); err != nil {
		return err
	}
	row, ok := t.rows[key]
	if !ok {
		return errors.NewUsageError(errors.CodeRowNotFound,
			"row %s does not exist", key.String())
	}
	if !t.schema.Has(column) {
		return errors.NewUsageError(errors.CodeUndefinedColumn,
			"column %q is not defined", column)
	}
	if err := t.schema.ValidateField(column, v); err != nil {
		return err
	}
	row[column] = v
	if _, indexed := t.indexes[column]; indexed {
		return t.RebuildIndex(column)
	}
	return nil
}

// NullifyField sets one cell to null, subject to the column's
// nullability rule.
func (t *Table) NullifyField(key types.Key, column string) error {
	return t.UpdateField(key, column, types.Null())
}

// ResetField restores one cell to the column's default value (null
// when the column has none).
func (t *Table) ResetField(key types.Key, column string) error {
	if !t.schema.Has(column) {
		return errors.NewUsageError(errors.CodeUndefinedColumn,
			"column %q is not defined", column)
	}
	return t.UpdateField(key, column, t.schema.DefaultFor(column))
}

// AddColumn defines a new column and backfills existing rows with its
// default value. A not-null column without a default cannot be added
// to a non-empty table; the check runs before any mutation so a
// failed call leaves the table unchanged.
func (t *Table) AddColumn(name string, rule schema.ColumnRule) error {
	if err := t.failIfImmutable(); err != nil {
		return err
	}
	notNull := rule.NotNull == nil || *rule.NotNull
	if notNull && rule.Default == nil && len(t.keys) > 0 {
		return errors.NewValidationError(errors.CodeNullViolation,
			"column %q: cannot backfill a not-null column without a default", name)
	}
	if err := t.schema.AddColumn(name, rule); err != nil {
		return err
	}
	fill := t.schema.DefaultFor(name)
	for _, row := range t.rows {
		row[name] = fill
	}
	return nil
}

// DeleteColumn removes a column from the schema, drops its values
// from every row, and drops any index declared on it. Removing an
// undefined column is a no-op.
func (t *Table) DeleteColumn(name string) error {
	if err := t.failIfImmutable(); err != nil {
		return err
	}
	if !t.schema.Has(name) {
		return nil
	}
	t.schema.DeleteColumn(name)
	for _, row := range t.rows {
		delete(row, name)
	}
	delete(t.indexes, name)
	if t.keyColumn == name {
		t.keyColumn = ""
	}
	return nil
}
