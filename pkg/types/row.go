package types

// Row maps column names to cell values. Every row in a table carries
// exactly one entry per schema column; absent columns are stored as
// explicit nulls.
type Row map[string]Value

// Clone returns an independent copy of the row.
func (r Row) Clone() Row {
	cp := make(Row, len(r))
	for k, v := range r {
		cp[k] = v
	}
	return cp
}

// Get returns the value for a column, or null if the row has no entry.
func (r Row) Get(column string) Value {
	return r[column]
}
