// Package criteria provides the row filter evaluator used by table
// queries. A criterion is a (field, operator, value) triple; a row
// passes a criteria list iff every triple evaluates true.
package criteria

import (
	"regexp"
	"strings"

	"github.com/tablo-db/tablo/internal/errors"
	"github.com/tablo-db/tablo/pkg/types"
)

// Operator identifies a comparison operator.
type Operator string

const (
	OpEq      Operator = "="
	OpNe      Operator = "!="
	OpNeAlt   Operator = "<>"
	OpLt      Operator = "<"
	OpLe      Operator = "<="
	OpGt      Operator = ">"
	OpGe      Operator = ">="
	OpIn      Operator = "in"
	OpNotIn   Operator = "not_in"
	OpLike    Operator = "like"
	OpRegexp  Operator = "regexp"
	OpIsNull  Operator = "is_null"
	OpNotNull Operator = "not_null"
)

// Criterion is a single (field, operator, value) filter triple.
// Values holds the comparand set for in/not_in; Value holds the single
// comparand for every other operator.
type Criterion struct {
	Field  string
	Op     Operator
	Value  types.Value
	Values []types.Value
}

// C builds a criterion from a raw comparand. Slices become the
// comparand set for in/not_in; anything else is converted to a single
// scalar value (non-scalar input becomes null).
func C(field string, op Operator, value interface{}) Criterion {
	c := Criterion{Field: field, Op: op}
	switch vs := value.(type) {
	case []types.Value:
		c.Values = vs
	case []interface{}:
		for _, raw := range vs {
			if v, ok := types.FromAny(raw); ok {
				c.Values = append(c.Values, v)
			}
		}
	default:
		v, _ := types.FromAny(value)
		c.Value = v
	}
	return c
}

// Eq is shorthand for an equality criterion.
func Eq(field string, value interface{}) Criterion {
	return C(field, OpEq, value)
}

// Evaluator evaluates criteria against rows. Compiled patterns for
// like/regexp operators are cached across calls. The evaluator
// assumes single-actor use, matching the table it filters for.
type Evaluator struct {
	patterns map[string]*regexp.Regexp
}

// NewEvaluator creates an evaluator with an empty pattern cache.
func NewEvaluator() *Evaluator {
	return &Evaluator{patterns: make(map[string]*regexp.Regexp)}
}

// MatchAll reports whether the row passes every criterion (logical
// AND). An empty criteria list matches every row.
func (e *Evaluator) MatchAll(row types.Row, criteria []Criterion) (bool, error) {
	for _, c := range criteria {
		ok, err := e.Match(row, c)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// Match evaluates a single criterion against a row.
func (e *Evaluator) Match(row types.Row, c Criterion) (bool, error) {
	cell := row.Get(c.Field)

	switch c.Op {
	case OpEq:
		return cell.Equal(c.Value), nil
	case OpNe, OpNeAlt:
		return !cell.Equal(c.Value), nil
	case OpLt, OpLe, OpGt, OpGe:
		return matchOrdering(cell, c.Op, c.Value), nil
	case OpIn:
		return containsValue(c.Values, cell), nil
	case OpNotIn:
		return !containsValue(c.Values, cell), nil
	case OpLike:
		return e.matchPattern(cell, likeToRegexp(c.Value.Text()))
	case OpRegexp:
		return e.matchPattern(cell, c.Value.Text())
	case OpIsNull:
		return cell.IsNull(), nil
	case OpNotNull:
		return !cell.IsNull(), nil
	}
	return false, errors.NewUsageError(errors.CodeUnknownOperator,
		"unknown operator %q", string(c.Op))
}

// matchOrdering applies <, <=, >, >= semantics. Null never orders
// against anything, and values of incompatible kinds do not match.
func matchOrdering(cell types.Value, op Operator, comparand types.Value) bool {
	if cell.IsNull() || comparand.IsNull() {
		return false
	}
	if !comparableKinds(cell, comparand) {
		return false
	}
	cmp := cell.Compare(comparand)
	switch op {
	case OpLt:
		return cmp < 0
	case OpLe:
		return cmp <= 0
	case OpGt:
		return cmp > 0
	case OpGe:
		return cmp >= 0
	}
	return false
}

func comparableKinds(a, b types.Value) bool {
	ak, bk := a.Kind(), b.Kind()
	if ak == bk {
		return true
	}
	numeric := func(k types.ValueKind) bool {
		return k == types.KindInt || k == types.KindFloat
	}
	return numeric(ak) && numeric(bk)
}

func containsValue(set []types.Value, v types.Value) bool {
	for _, candidate := range set {
		if candidate.Equal(v) {
			return true
		}
	}
	return false
}

// matchPattern matches a string cell against a regular expression.
// Non-string and null cells never match.
func (e *Evaluator) matchPattern(cell types.Value, pattern string) (bool, error) {
	if cell.Kind() != types.KindString {
		return false, nil
	}
	re, ok := e.patterns[pattern]
	if !ok {
		var err error
		re, err = regexp.Compile(pattern)
		if err != nil {
			return false, errors.Newf(errors.ErrCategoryUsage, errors.CodeUnknownOperator,
				"invalid pattern %q: %v", pattern, err)
		}
		e.patterns[pattern] = re
	}
	return re.MatchString(cell.Text()), nil
}

// likeToRegexp translates a SQL-style LIKE pattern (% and _) into an
// anchored regular expression.
func likeToRegexp(pattern string) string {
	var sb strings.Builder
	sb.WriteString("^")
	for _, r := range pattern {
		switch r {
		case '%':
			sb.WriteString(".*")
		case '_':
			sb.WriteString(".")
		default:
			sb.WriteString(regexp.QuoteMeta(string(r)))
		}
	}
	sb.WriteString("$")
	return sb.String()
}
