package table

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tablo-db/tablo/internal/errors"
	"github.com/tablo-db/tablo/internal/schema"
	"github.com/tablo-db/tablo/pkg/types"
)

// ColumnTally accumulates per-column observations during analysis:
// how many rows carry the column at all, how many carry null, and how
// many carry each runtime type.
type ColumnTally struct {
	All    int
	Null   int
	ByType map[types.ColumnType]int
}

// InferredType returns the single non-null type observed for the
// column. A column that was always null (or never observed) infers
// as string. With multiple observed types (a defect that fails
// construction anyway) the lexicographically first is returned, so
// inference stays deterministic.
func (c *ColumnTally) InferredType() types.ColumnType {
	if len(c.ByType) == 0 {
		return types.TypeString
	}
	best := types.ColumnType("")
	for t := range c.ByType {
		if best == "" || t < best {
			best = t
		}
	}
	return best
}

// InferredNotNull reports whether the column can be declared not-null:
// true iff no row omitted the column and no observed value was null.
func (c *ColumnTally) InferredNotNull(rowCount int) bool {
	return c.All == rowCount && c.Null == 0
}

// consistent reports whether the column's non-null values share one
// runtime type.
func (c *ColumnTally) consistent() bool {
	return len(c.ByType) <= 1
}

// Defect is one structural problem found in raw row data, tagged with
// the error code it maps to.
type Defect struct {
	Code    string
	Message string
}

// Analysis is the result of scanning raw row data: key-type and
// per-column value-type tallies plus a bag of structural defects.
type Analysis struct {
	RowCount    int
	KeyKinds    map[types.KeyKind]int
	Columns     map[string]*ColumnTally
	ColumnOrder []string
	Defects     []Defect
}

// Err folds the defect bag into a single aggregate structural error,
// or nil when the data is clean. The message lists every defect so
// the caller sees the full picture in one failure; the error code is
// the first defect's, matching the order defects were found.
func (a *Analysis) Err() error {
	if len(a.Defects) == 0 {
		return nil
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d structural defect(s) in raw row data:", len(a.Defects))
	for _, d := range a.Defects {
		sb.WriteString("\n  - ")
		sb.WriteString(d.Message)
	}
	return errors.NewStructuralError(a.Defects[0].Code, "%s", sb.String())
}

// Analyze scans raw row data and tallies key kinds and per-column
// value types, collecting structural defects: unsupported key types,
// mixed key types across rows, non-scalar values, and columns whose
// non-null values are not uniformly typed. Analysis is deterministic:
// the same input always yields the same tallies and inferred rules.
func Analyze(raw []RawRow) *Analysis {
	a := &Analysis{
		RowCount: len(raw),
		KeyKinds: make(map[types.KeyKind]int),
		Columns:  make(map[string]*ColumnTally),
	}

	for i, rr := range raw {
		key, ok := types.KeyFromAny(rr.Key)
		if !ok {
			a.defect(errors.CodeInvalidKey, "row %d: unsupported key type %T", i, rr.Key)
			continue
		}
		a.KeyKinds[key.Kind()]++

		if rr.Fields == nil {
			a.defect(errors.CodeRowShape, "row %s: no field data", key.String())
			continue
		}
		for _, name := range sortedFieldNames(rr.Fields) {
			tally := a.Columns[name]
			if tally == nil {
				tally = &ColumnTally{ByType: make(map[types.ColumnType]int)}
				a.Columns[name] = tally
				a.ColumnOrder = append(a.ColumnOrder, name)
			}
			v, scalar := types.FromAny(rr.Fields[name])
			if !scalar {
				a.defect(errors.CodeNonScalarValue, "row %s, column %q: non-scalar value of type %T",
					key.String(), name, rr.Fields[name])
				continue
			}
			tally.All++
			if v.IsNull() {
				tally.Null++
				continue
			}
			vt, _ := v.Type()
			tally.ByType[vt]++
		}
	}

	if len(a.KeyKinds) > 1 {
		a.defect(errors.CodeMixedKeys, "mixed key types: %d integer key(s), %d string key(s)",
			a.KeyKinds[types.KeyInt], a.KeyKinds[types.KeyString])
	}
	for _, name := range a.ColumnOrder {
		if !a.Columns[name].consistent() {
			a.defect(errors.CodeInconsistentColumn, "column %q: inconsistent value types %s",
				name, typeList(a.Columns[name].ByType))
		}
	}
	return a
}

func (a *Analysis) defect(code, format string, args ...interface{}) {
	a.Defects = append(a.Defects, Defect{Code: code, Message: fmt.Sprintf(format, args...)})
}

func typeList(byType map[types.ColumnType]int) string {
	names := make([]string, 0, len(byType))
	for t := range byType {
		names = append(names, string(t))
	}
	sort.Strings(names)
	return "{" + strings.Join(names, ", ") + "}"
}

// Map iteration order is randomized; analysis sorts field and rule
// names so defect messages and column order are deterministic.
func sortedFieldNames(fields map[string]interface{}) []string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func sortedRuleNames(rules map[string]schema.ColumnRule) []string {
	names := make([]string, 0, len(rules))
	for name := range rules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
