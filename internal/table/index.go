package table

import (
	"github.com/tablo-db/tablo/internal/errors"
	"github.com/tablo-db/tablo/pkg/types"
)

// Index is a derived value-to-key map accelerating equality lookup on
// one column. Indexes hold back-references only: they map values to
// row keys, never to row data, so the rows stay the single source of
// truth. Indexes are rebuilt from the rows after every structural
// mutation.
type Index struct {
	Column string
	Unique bool
	single map[types.Value]types.Key
	multi  map[types.Value][]types.Key
}

// AddIndex declares an index on a column. The column must exist, be
// of string or integer type, and be declared not-null. A unique index
// over duplicate values fails with a usage error.
func (t *Table) AddIndex(column string, unique bool) error {
	col, ok := t.schema.Column(column)
	if !ok {
		return errors.NewUsageError(errors.CodeUndefinedColumn,
			"column %q is not defined", column)
	}
	if col.Type != types.TypeString && col.Type != types.TypeInteger {
		return errors.NewUsageError(errors.CodeUnindexableType,
			"column %q: cannot index type %q", column, col.Type)
	}
	if !col.NotNull {
		return errors.NewUsageError(errors.CodeNullableIndex,
			"column %q: cannot index a nullable column", column)
	}
	idx := &Index{Column: column, Unique: unique}
	if err := t.fillIndex(idx); err != nil {
		return err
	}
	t.indexes[column] = idx
	return nil
}

// RebuildIndex recomputes one index from the current rows.
func (t *Table) RebuildIndex(column string) error {
	idx, ok := t.indexes[column]
	if !ok {
		return errors.NewUsageError(errors.CodeUndefinedColumn,
			"no index on column %q", column)
	}
	return t.fillIndex(idx)
}

// rebuildIndexes recomputes every declared index. Called after any
// structural mutation.
func (t *Table) rebuildIndexes() error {
	for _, idx := range t.indexes {
		if err := t.fillIndex(idx); err != nil {
			return err
		}
	}
	return nil
}

// DeleteIndex drops an index without touching row data. Dropping an
// undeclared index is a no-op.
func (t *Table) DeleteIndex(column string) {
	delete(t.indexes, column)
}

// DeleteIndexes drops all indexes.
func (t *Table) DeleteIndexes() {
	t.indexes = make(map[string]*Index)
}

// HasIndex reports whether an index is declared on the column.
func (t *Table) HasIndex(column string) bool {
	_, ok := t.indexes[column]
	return ok
}

// Indexes returns the indexed column names.
func (t *Table) Indexes() []string {
	out := make([]string, 0, len(t.indexes))
	for column := range t.indexes {
		out = append(out, column)
	}
	return out
}

// fillIndex populates an index from the current rows in key order.
// Rows with a null in the indexed column are skipped; a unique index
// is bijective onto the rows with non-null values. The maps are built
// aside and swapped in only when the whole scan succeeds, so a failed
// rebuild leaves the previous index intact.
func (t *Table) fillIndex(idx *Index) error {
	if idx.Unique {
		single := make(map[types.Value]types.Key, len(t.keys))
		for _, key := range t.keys {
			v := t.rows[key][idx.Column]
			if v.IsNull() {
				continue
			}
			if prev, dup := single[v]; dup {
				return errors.NewUsageError(errors.CodeDuplicateValue,
					"unique index on %q: value %s held by rows %s and %s",
					idx.Column, v.String(), prev.String(), key.String())
			}
			single[v] = key
		}
		idx.single = single
		idx.multi = nil
		return nil
	}
	multi := make(map[types.Value][]types.Key, len(t.keys))
	for _, key := range t.keys {
		v := t.rows[key][idx.Column]
		if v.IsNull() {
			continue
		}
		multi[v] = append(multi[v], key)
	}
	idx.single = nil
	idx.multi = multi
	return nil
}

// lookup returns the row keys matching a value via the index, in row
// order for non-unique indexes.
func (idx *Index) lookup(v types.Value) []types.Key {
	if idx.Unique {
		if key, ok := idx.single[v]; ok {
			return []types.Key{key}
		}
		return nil
	}
	return idx.multi[v]
}
