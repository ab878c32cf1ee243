package table

import (
	"sort"

	"github.com/tablo-db/tablo/internal/criteria"
	"github.com/tablo-db/tablo/internal/errors"
	"github.com/tablo-db/tablo/internal/schema"
	"github.com/tablo-db/tablo/pkg/types"
)

// SortKey is one entry of a sort order: a column plus direction.
type SortKey struct {
	Column string
	Desc   bool
}

// Asc returns an ascending sort key.
func Asc(column string) SortKey { return SortKey{Column: column} }

// Desc returns a descending sort key.
func Desc(column string) SortKey { return SortKey{Column: column, Desc: true} }

// view creates an empty view table over the given schema. Views share
// the source's schema subset (as an independent copy) but own their
// row storage; they start without indexes and are mutable.
func (t *Table) view(s *schema.Schema) *Table {
	v := newEmpty(s.Clone())
	if t.keyColumn != "" && s.Has(t.keyColumn) {
		v.keyColumn = t.keyColumn
	}
	return v
}

// appendRow inserts an already-validated row into a view, preserving
// insertion order and cloning the row so the view's storage is
// independent of its source.
func (v *Table) appendRow(key types.Key, row types.Row) {
	v.keys = append(v.keys, key)
	v.rows[key] = row.Clone()
}

// Select returns a new table holding the rows that pass every
// criterion. With preserveKeys false the output rows are renumbered
// 0..n-1 in selection order.
func (t *Table) Select(crits []criteria.Criterion, preserveKeys bool) (*Table, error) {
	for _, c := range crits {
		if !t.schema.Has(c.Field) {
			return nil, errors.NewUsageError(errors.CodeUndefinedColumn,
				"column %q is not defined", c.Field)
		}
	}
	out := t.view(t.schema)
	if !preserveKeys {
		out.keyColumn = ""
	}
	n := int64(0)
	for _, key := range t.keys {
		ok, err := t.eval.MatchAll(t.rows[key], crits)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if preserveKeys {
			out.appendRow(key, t.rows[key])
		} else {
			out.appendRow(types.IntKey(n), t.rows[key])
			n++
		}
	}
	return out, nil
}

// Project returns a new table restricted to exactly the requested
// columns, in the requested order, preserving row keys. It fails on
// any undefined column.
func (t *Table) Project(columns []string) (*Table, error) {
	projected, err := t.schema.Project(columns)
	if err != nil {
		return nil, err
	}
	out := t.view(projected)
	for _, key := range t.keys {
		src := t.rows[key]
		row := make(types.Row, len(columns))
		for _, name := range columns {
			row[name] = src[name]
		}
		out.keys = append(out.keys, key)
		out.rows[key] = row
	}
	return out, nil
}

// Sort returns a new table with rows reordered by the sort keys: the
// first key is primary, later keys break ties, and the sort is stable
// with respect to the full composite key. Unknown columns are
// silently skipped. Integer keys are renumbered in the new order
// unless preserveNumericKeys is set; string keys are always retained.
func (t *Table) Sort(order []SortKey, preserveNumericKeys bool) (*Table, error) {
	keys := make([]SortKey, 0, len(order))
	for _, sk := range order {
		if t.schema.Has(sk.Column) {
			keys = append(keys, sk)
		}
	}

	sorted := make([]types.Key, len(t.keys))
	copy(sorted, t.keys)
	sort.SliceStable(sorted, func(i, j int) bool {
		ri, rj := t.rows[sorted[i]], t.rows[sorted[j]]
		for _, sk := range keys {
			cmp := ri[sk.Column].Compare(rj[sk.Column])
			if cmp == 0 {
				continue
			}
			if sk.Desc {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})

	renumber := !preserveNumericKeys && len(sorted) > 0 && sorted[0].Kind() == types.KeyInt
	out := t.view(t.schema)
	if renumber {
		out.keyColumn = ""
	}
	for i, key := range sorted {
		outKey := key
		if renumber {
			outKey = types.IntKey(int64(i))
		}
		out.appendRow(outKey, t.rows[key])
	}
	return out, nil
}

// Limit returns a new table holding at most count rows starting at
// offset, over the current row order. A zero count means no bound;
// negative count or offset is treated as zero. Output keys are always
// renumbered from 0: limited views lose key identity.
func (t *Table) Limit(count, offset int) *Table {
	if count < 0 {
		count = 0
	}
	if offset < 0 {
		offset = 0
	}
	out := t.view(t.schema)
	out.keyColumn = ""
	if offset >= len(t.keys) {
		return out
	}
	end := len(t.keys)
	if count > 0 && offset+count < end {
		end = offset + count
	}
	for i, key := range t.keys[offset:end] {
		out.appendRow(types.IntKey(int64(i)), t.rows[key])
	}
	return out
}

// Query composes the pipeline in fixed order: select, project, sort,
// limit. Empty columns skip projection; an empty order skips sorting;
// the limit stage runs only when count or offset is set, so an
// unlimited query keeps its row keys.
func (t *Table) Query(crits []criteria.Criterion, columns []string, order []SortKey, count, offset int) (*Table, error) {
	out, err := t.Select(crits, true)
	if err != nil {
		return nil, err
	}
	if len(columns) > 0 {
		if out, err = out.Project(columns); err != nil {
			return nil, err
		}
	}
	if len(order) > 0 {
		if out, err = out.Sort(order, true); err != nil {
			return nil, err
		}
	}
	if count > 0 || offset > 0 {
		out = out.Limit(count, offset)
	}
	return out, nil
}

// FetchRow returns the first row whose column equals the value, using
// the cheapest available path: direct key lookup when the column is
// the key column, index lookup when an index is declared, otherwise a
// full scan with a strict-equality criterion. All three paths return
// identical results for equivalent input. Absence is not an error.
func (t *Table) FetchRow(column string, v types.Value) (types.Row, types.Key, bool, error) {
	keys, err := t.fetchKeys(column, v)
	if err != nil || len(keys) == 0 {
		return nil, types.Key{}, false, err
	}
	return t.rows[keys[0]].Clone(), keys[0], true, nil
}

// FetchRows returns all rows whose column equals the value as a new
// table preserving row keys, via the same path priority as FetchRow.
func (t *Table) FetchRows(column string, v types.Value) (*Table, error) {
	keys, err := t.fetchKeys(column, v)
	if err != nil {
		return nil, err
	}
	out := t.view(t.schema)
	for _, key := range keys {
		out.appendRow(key, t.rows[key])
	}
	return out, nil
}

// fetchKeys resolves the row keys matching column = v, in row order,
// preferring key-column lookup, then a declared index, then a scan.
func (t *Table) fetchKeys(column string, v types.Value) ([]types.Key, error) {
	if !t.schema.Has(column) {
		return nil, errors.NewUsageError(errors.CodeUndefinedColumn,
			"column %q is not defined", column)
	}
	if column == t.keyColumn && t.keyColumn != "" {
		key, ok := types.KeyFromValue(v)
		if !ok {
			return nil, nil
		}
		if _, present := t.rows[key]; present {
			return []types.Key{key}, nil
		}
		return nil, nil
	}
	if idx, ok := t.indexes[column]; ok {
		return idx.lookup(v), nil
	}
	var keys []types.Key
	for _, key := range t.keys {
		if t.rows[key][column].Equal(v) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// Find returns the first row matching the criteria. The common
// single-equality case takes the FetchRow fast path; everything else
// scans in row order. A miss returns ok=false, not an error.
func (t *Table) Find(crits []criteria.Criterion) (types.Row, types.Key, bool, error) {
	if len(crits) == 1 && crits[0].Op == criteria.OpEq {
		return t.FetchRow(crits[0].Field, crits[0].Value)
	}
	for _, c := range crits {
		if !t.schema.Has(c.Field) {
			return nil, types.Key{}, false, errors.NewUsageError(errors.CodeUndefinedColumn,
				"column %q is not defined", c.Field)
		}
	}
	for _, key := range t.keys {
		ok, err := t.eval.MatchAll(t.rows[key], crits)
		if err != nil {
			return nil, types.Key{}, false, err
		}
		if ok {
			return t.rows[key].Clone(), key, true, nil
		}
	}
	return nil, types.Key{}, false, nil
}

// FindAll returns all rows matching the criteria, optionally
// projected and sorted. The single-equality case routes through
// FetchRows; both paths return identical results.
func (t *Table) FindAll(crits []criteria.Criterion, columns []string, order []SortKey) (*Table, error) {
	var out *Table
	var err error
	if len(crits) == 1 && crits[0].Op == criteria.OpEq {
		out, err = t.FetchRows(crits[0].Field, crits[0].Value)
	} else {
		out, err = t.Select(crits, true)
	}
	if err != nil {
		return nil, err
	}
	if len(columns) > 0 {
		if out, err = out.Project(columns); err != nil {
			return nil, err
		}
	}
	if len(order) > 0 {
		if out, err = out.Sort(order, true); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ListItem pairs a row key with one column's value, for key/label
// style listings.
type ListItem struct {
	Key   types.Key
	Value types.Value
}

// GetList returns the (key, value) pairs of one column in row order.
func (t *Table) GetList(column string) ([]ListItem, error) {
	if !t.schema.Has(column) {
		return nil, errors.NewUsageError(errors.CodeUndefinedColumn,
			"column %q is not defined", column)
	}
	out := make([]ListItem, 0, len(t.keys))
	for _, key := range t.keys {
		out = append(out, ListItem{Key: key, Value: t.rows[key][column]})
	}
	return out, nil
}

// ResetKeys replaces all row keys with a fresh 0..n-1 sequence in
// current order and clears the key column.
func (t *Table) ResetKeys() error {
	if err := t.failIfImmutable(); err != nil {
		return err
	}
	rows := make(map[types.Key]types.Row, len(t.keys))
	keys := make([]types.Key, len(t.keys))
	for i, old := range t.keys {
		key := types.IntKey(int64(i))
		keys[i] = key
		rows[key] = t.rows[old]
	}
	t.keys = keys
	t.rows = rows
	t.keyColumn = ""
	kind := types.KeyInt
	t.keyKind = &kind
	return t.rebuildIndexes()
}

// SetKeyColumn rebuilds the table keyed by a chosen column's values.
// The column must map one-to-one onto the rows: every value non-null,
// key-capable (string or integer), and unique.
func (t *Table) SetKeyColumn(column string) error {
	if err := t.failIfImmutable(); err != nil {
		return err
	}
	if !t.schema.Has(column) {
		return errors.NewUsageError(errors.CodeUndefinedColumn,
			"column %q is not defined", column)
	}
	rows := make(map[types.Key]types.Row, len(t.keys))
	keys := make([]types.Key, 0, len(t.keys))
	for _, old := range t.keys {
		v := t.rows[old][column]
		key, ok := types.KeyFromValue(v)
		if !ok {
			return errors.NewUsageError(errors.CodeKeyColumnNotOneToOne,
				"column %q: value %s cannot serve as a row key", column, v.String())
		}
		if _, dup := rows[key]; dup {
			return errors.NewUsageError(errors.CodeKeyColumnNotOneToOne,
				"column %q: duplicate key value %s", column, v.String())
		}
		rows[key] = t.rows[old]
		keys = append(keys, key)
	}
	t.keys = keys
	t.rows = rows
	t.keyColumn = column
	kind := types.KeyInt
	if col, ok := t.schema.Column(column); ok && col.Type == types.TypeString {
		kind = types.KeyString
	}
	t.keyKind = &kind
	return t.rebuildIndexes()
}

// Keys returns the row keys in order.
func (t *Table) Keys() []types.Key {
	out := make([]types.Key, len(t.keys))
	copy(out, t.keys)
	return out
}

// Columns returns the schema's column names in definition order.
func (t *Table) Columns() []string { return t.schema.Columns() }

// Has reports whether a row key is present.
func (t *Table) Has(key types.Key) bool {
	_, ok := t.rows[key]
	return ok
}

// Row returns a copy of one row. Absence is not an error.
func (t *Table) Row(key types.Key) (types.Row, bool) {
	row, ok := t.rows[key]
	if !ok {
		return nil, false
	}
	return row.Clone(), true
}

// Values returns one column's values in row order.
func (t *Table) Values(column string) ([]types.Value, error) {
	if !t.schema.Has(column) {
		return nil, errors.NewUsageError(errors.CodeUndefinedColumn,
			"column %q is not defined", column)
	}
	out := make([]types.Value, 0, len(t.keys))
	for _, key := range t.keys {
		out = append(out, t.rows[key][column])
	}
	return out, nil
}

// Slice returns row copies by offset and count over the current row
// order. Bounds beyond the row count yield an empty slice.
func (t *Table) Slice(offset, count int) []types.Row {
	if offset < 0 {
		offset = 0
	}
	if count < 0 {
		count = 0
	}
	if offset >= len(t.keys) {
		return nil
	}
	end := len(t.keys)
	if count > 0 && offset+count < end {
		end = offset + count
	}
	out := make([]types.Row, 0, end-offset)
	for _, key := range t.keys[offset:end] {
		out = append(out, t.rows[key].Clone())
	}
	return out
}
