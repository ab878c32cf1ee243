package types

import (
	"fmt"
	"strconv"
)

// KeyKind is the runtime tag of a row key.
type KeyKind int

const (
	KeyInt KeyKind = iota
	KeyString
)

// Key addresses a row within a table. A table's keys are uniformly
// integer or uniformly string, never mixed. Key is comparable and
// usable as a map key.
type Key struct {
	kind KeyKind
	i    int64
	s    string
}

// IntKey returns an integer key.
func IntKey(i int64) Key { return Key{kind: KeyInt, i: i} }

// StringKey returns a string key.
func StringKey(s string) Key { return Key{kind: KeyString, s: s} }

// KeyFromAny converts a raw Go value into a Key. The second return is
// false for unsupported key types.
func KeyFromAny(v interface{}) (Key, bool) {
	switch x := v.(type) {
	case Key:
		return x, true
	case int:
		return IntKey(int64(x)), true
	case int32:
		return IntKey(int64(x)), true
	case int64:
		return IntKey(x), true
	case uint:
		return IntKey(int64(x)), true
	case uint32:
		return IntKey(int64(x)), true
	case uint64:
		return IntKey(int64(x)), true
	case string:
		return StringKey(x), true
	}
	return Key{}, false
}

// KeyFromValue derives a Key from a cell value. Only non-null integer
// and string values can serve as keys.
func KeyFromValue(v Value) (Key, bool) {
	switch v.Kind() {
	case KindInt:
		return IntKey(v.Int64()), true
	case KindString:
		return StringKey(v.Text()), true
	}
	return Key{}, false
}

// Kind returns the runtime tag.
func (k Key) Kind() KeyKind { return k.kind }

// Int64 returns the integer payload. Zero for string keys.
func (k Key) Int64() int64 { return k.i }

// Text returns the string payload. Empty for integer keys.
func (k Key) Text() string { return k.s }

// Value converts the key to the equivalent cell value.
func (k Key) Value() Value {
	if k.kind == KeyInt {
		return Int(k.i)
	}
	return Str(k.s)
}

// Compare orders two keys of the same kind. Integer keys order before
// string keys when kinds differ.
func (k Key) Compare(o Key) int {
	if k.kind != o.kind {
		if k.kind < o.kind {
			return -1
		}
		return 1
	}
	if k.kind == KeyInt {
		switch {
		case k.i < o.i:
			return -1
		case k.i > o.i:
			return 1
		default:
			return 0
		}
	}
	switch {
	case k.s < o.s:
		return -1
	case k.s > o.s:
		return 1
	default:
		return 0
	}
}

// String renders the key for error messages and logs.
func (k Key) String() string {
	if k.kind == KeyInt {
		return strconv.FormatInt(k.i, 10)
	}
	return fmt.Sprintf("%q", k.s)
}
