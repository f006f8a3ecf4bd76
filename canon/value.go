// Package canon models the dynamic JSON payloads carried by page snapshots
// and produces their canonical, key-order-independent content hash.
//
// A snapshot tree is a Value: a small tagged union over null, bool, number,
// string, array and object. Objects are ordered Maps so that a decoded payload
// re-encodes in its original key order, while Canonical and Hash sort keys.
//
// Usage:
//
//	v, err := canon.Parse(data)
//	h, err := canon.Hash(v) // 64 hex chars, stable across processes
package canon

import (
	"encoding/json"
	"fmt"
	"slices"
)

// Kind discriminates the variants of a Value.
type Kind uint8

const (
	Null Kind = iota
	Bool
	Number
	String
	Array
	Object
)

func (k Kind) String() string {
	switch k {
	case Null:
		return "null"
	case Bool:
		return "bool"
	case Number:
		return "number"
	case String:
		return "string"
	case Array:
		return "array"
	case Object:
		return "object"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Value is an immutable JSON value. The zero Value is null.
type Value struct {
	kind Kind
	b    bool
	s    string // string contents, or the number literal
	arr  []Value
	obj  *Map
}

// NullValue returns the null value.
func NullValue() Value { return Value{} }

// BoolValue wraps b.
func BoolValue(b bool) Value { return Value{kind: Bool, b: b} }

// StringValue wraps s.
func StringValue(s string) Value { return Value{kind: String, s: s} }

// NumberValue wraps a JSON number literal. The literal is validated lazily:
// Canonical and Hash fail with an EncodingError on a malformed literal.
func NumberValue(n json.Number) Value { return Value{kind: Number, s: string(n)} }

// IntValue wraps an integer.
func IntValue(i int64) Value { return Value{kind: Number, s: fmt.Sprint(i)} }

// FloatValue wraps a float. NaN and infinities are representable here but
// cannot be canonically encoded.
func FloatValue(f float64) Value { return Value{kind: Number, s: formatFloat(f)} }

// ArrayValue wraps the given elements.
func ArrayValue(elems ...Value) Value {
	return Value{kind: Array, arr: slices.Clone(elems)}
}

// ObjectValue wraps m. A nil map yields an empty object.
func ObjectValue(m *Map) Value {
	if m == nil {
		m = NewMap()
	}
	return Value{kind: Object, obj: m}
}

// Kind returns the variant of v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.kind == Null }

// Bool returns the boolean and whether v is a bool.
func (v Value) Bool() (bool, bool) { return v.b, v.kind == Bool }

// Str returns the string and whether v is a string.
func (v Value) Str() (string, bool) {
	if v.kind != String {
		return "", false
	}
	return v.s, true
}

// Number returns the number literal and whether v is a number.
func (v Value) Number() (json.Number, bool) {
	if v.kind != Number {
		return "", false
	}
	return json.Number(v.s), true
}

// Array returns the elements and whether v is an array. The slice must not
// be modified.
func (v Value) Array() ([]Value, bool) {
	if v.kind != Array {
		return nil, false
	}
	return v.arr, true
}

// Map returns the object and whether v is an object.
func (v Value) Map() (*Map, bool) {
	if v.kind != Object {
		return nil, false
	}
	return v.obj, true
}

// Map is an ordered string-keyed map. Keys keep their first insertion
// position; setting an existing key replaces its value in place.
type Map struct {
	keys []string
	vals map[string]Value
}

// NewMap returns an empty Map.
func NewMap() *Map {
	return &Map{vals: make(map[string]Value)}
}

// Len returns the number of entries.
func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

// Set stores v under key.
func (m *Map) Set(key string, v Value) {
	if _, ok := m.vals[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.vals[key] = v
}

// Get returns the value stored under key.
func (m *Map) Get(key string) (Value, bool) {
	if m == nil {
		return Value{}, false
	}
	v, ok := m.vals[key]
	return v, ok
}

// Keys returns the keys in insertion order.
func (m *Map) Keys() []string {
	if m == nil {
		return nil
	}
	return slices.Clone(m.keys)
}

// SortedKeys returns the keys in code point order.
func (m *Map) SortedKeys() []string {
	keys := m.Keys()
	slices.Sort(keys)
	return keys
}

// Clone returns a shallow copy. Values are immutable so sharing them is safe.
func (m *Map) Clone() *Map {
	if m == nil {
		return NewMap()
	}
	c := &Map{keys: slices.Clone(m.keys), vals: make(map[string]Value, m.Len())}
	for k, v := range m.vals {
		c.vals[k] = v
	}
	return c
}

// Without returns a copy of m minus key.
func (m *Map) Without(key string) *Map {
	c := NewMap()
	for _, k := range m.Keys() {
		if k == key {
			continue
		}
		c.Set(k, m.vals[k])
	}
	return c
}

// GetString returns the string stored under key, if any.
func (m *Map) GetString(key string) (string, bool) {
	v, ok := m.Get(key)
	if !ok {
		return "", false
	}
	return v.Str()
}
