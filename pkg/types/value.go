// Package types provides the core data types for Tablo: tagged scalar
// values, row keys, and column type identifiers.
package types

import (
	"fmt"
	"strconv"
)

// ColumnType identifies the declared type of a column.
type ColumnType string

const (
	TypeString  ColumnType = "string"
	TypeInteger ColumnType = "integer"
	TypeDouble  ColumnType = "double"
	TypeBoolean ColumnType = "boolean"
)

// Valid reports whether t is one of the four supported column types.
func (t ColumnType) Valid() bool {
	switch t {
	case TypeString, TypeInteger, TypeDouble, TypeBoolean:
		return true
	}
	return false
}

// ValueKind is the runtime tag of a Value.
type ValueKind int

const (
	KindNull ValueKind = iota
	KindInt
	KindFloat
	KindBool
	KindString
)

// Value is a tagged scalar cell value. The zero Value is null.
// Value is comparable and can be used as a map key, which the
// table index maps rely on.
type Value struct {
	kind ValueKind
	i    int64
	f    float64
	b    bool
	s    string
}

// Null returns the null Value.
func Null() Value { return Value{} }

// Int returns an integer Value.
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Float returns a double Value.
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// Bool returns a boolean Value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Str returns a string Value.
func Str(s string) Value { return Value{kind: KindString, s: s} }

// FromAny converts a raw Go scalar into a Value. The second return is
// false for non-scalar input (slices, maps, structs, pointers).
func FromAny(v interface{}) (Value, bool) {
	switch x := v.(type) {
	case nil:
		return Null(), true
	case Value:
		return x, true
	case int:
		return Int(int64(x)), true
	case int8:
		return Int(int64(x)), true
	case int16:
		return Int(int64(x)), true
	case int32:
		return Int(int64(x)), true
	case int64:
		return Int(x), true
	case uint:
		return Int(int64(x)), true
	case uint8:
		return Int(int64(x)), true
	case uint16:
		return Int(int64(x)), true
	case uint32:
		return Int(int64(x)), true
	case uint64:
		return Int(int64(x)), true
	case float32:
		return Float(float64(x)), true
	case float64:
		return Float(x), true
	case bool:
		return Bool(x), true
	case string:
		return Str(x), true
	}
	return Value{}, false
}

// Kind returns the runtime tag.
func (v Value) Kind() ValueKind { return v.kind }

// IsNull reports whether the value is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Int64 returns the integer payload. Zero for non-integer values.
func (v Value) Int64() int64 { return v.i }

// Float64 returns the double payload. Zero for non-double values.
func (v Value) Float64() float64 { return v.f }

// Bool returns the boolean payload. False for non-boolean values.
func (v Value) Bool() bool { return v.b }

// Text returns the string payload. Empty for non-string values.
func (v Value) Text() string { return v.s }

// Type maps the runtime tag to a ColumnType. The second return is
// false for null, which has no column type of its own.
func (v Value) Type() (ColumnType, bool) {
	switch v.kind {
	case KindInt:
		return TypeInteger, true
	case KindFloat:
		return TypeDouble, true
	case KindBool:
		return TypeBoolean, true
	case KindString:
		return TypeString, true
	}
	return "", false
}

// Is reports whether the value's runtime type is exactly t. There is
// no implicit coercion: an integer never passes for a double column.
func (v Value) Is(t ColumnType) bool {
	vt, ok := v.Type()
	return ok && vt == t
}

// Compare orders two values. Null sorts before everything; integers
// and doubles compare numerically across kinds; otherwise values of
// different kinds order by kind tag. Returns -1, 0, or 1.
func (v Value) Compare(o Value) int {
	if v.kind == KindNull || o.kind == KindNull {
		switch {
		case v.kind == o.kind:
			return 0
		case v.kind == KindNull:
			return -1
		default:
			return 1
		}
	}
	if isNumeric(v.kind) && isNumeric(o.kind) {
		a, b := v.asFloat(), o.asFloat()
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		default:
			return 0
		}
	}
	if v.kind != o.kind {
		if v.kind < o.kind {
			return -1
		}
		return 1
	}
	switch v.kind {
	case KindBool:
		switch {
		case v.b == o.b:
			return 0
		case !v.b:
			return -1
		default:
			return 1
		}
	case KindString:
		switch {
		case v.s < o.s:
			return -1
		case v.s > o.s:
			return 1
		default:
			return 0
		}
	}
	return 0
}

// Equal reports strict equality: same kind, same payload.
func (v Value) Equal(o Value) bool { return v == o }

// String renders the value for error messages and logs.
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return "null"
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.b)
	case KindString:
		return fmt.Sprintf("%q", v.s)
	}
	return "invalid"
}

func isNumeric(k ValueKind) bool { return k == KindInt || k == KindFloat }

func (v Value) asFloat() float64 {
	if v.kind == KindInt {
		return float64(v.i)
	}
	return v.f
}
