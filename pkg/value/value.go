package value

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

// Kind identifies the concrete shape of a Value.
type Kind int

const (
	// KindAbsent is the kind of a node that does not exist.
	KindAbsent Kind = iota
	// KindNull is an explicit null.
	KindNull
	// KindBool is a boolean scalar.
	KindBool
	// KindNumber is a numeric scalar. All numbers are carried as float64.
	KindNumber
	// KindString is a string scalar.
	KindString
	// KindBytes is an opaque byte string.
	KindBytes
	// KindMap is a string-keyed mapping.
	KindMap
	// KindList is an ordered sequence.
	KindList
	// KindUnknown marks a field whose value cannot be computed yet.
	KindUnknown
)

// String returns the lower-case name of the kind.
func (k Kind) String() string {
	switch k {
	case KindAbsent:
		return "absent"
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	case KindMap:
		return "map"
	case KindList:
		return "list"
	case KindUnknown:
		return "unknown"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// IsContainer reports whether the kind holds child nodes.
func (k Kind) IsContainer() bool {
	return k == KindMap || k == KindList
}

// Value is an immutable snapshot of a node in a protocol tree, or a value
// about to be written into one.
type Value struct {
	kind Kind
	b    bool
	n    float64
	s    string
	raw  []byte
	m    map[string]Value
	l    []Value
}

// Absent returns the value of a missing node.
func Absent() Value { return Value{} }

// Null returns an explicit null.
func Null() Value { return Value{kind: KindNull} }

// Unknown returns the unknown marker.
func Unknown() Value { return Value{kind: KindUnknown} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Number returns a numeric value.
func Number(n float64) Value { return Value{kind: KindNumber, n: n} }

// Int returns a numeric value from an integer.
func Int(i int64) Value { return Value{kind: KindNumber, n: float64(i)} }

// String returns a string value.
func String(s string) Value { return Value{kind: KindString, s: s} }

// Bytes returns an opaque value. The slice is not copied.
func Bytes(b []byte) Value { return Value{kind: KindBytes, raw: b} }

// Map returns a mapping value. A nil map yields an empty mapping.
func Map(m map[string]Value) Value {
	if m == nil {
		m = map[string]Value{}
	}
	return Value{kind: KindMap, m: m}
}

// List returns a sequence value.
func List(items ...Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{kind: KindList, l: items}
}

// Kind returns the kind of v.
func (v Value) Kind() Kind { return v.kind }

// IsAbsent reports whether v denotes a missing node.
func (v Value) IsAbsent() bool { return v.kind == KindAbsent }

// IsUnknown reports whether v is the unknown marker.
func (v Value) IsUnknown() bool { return v.kind == KindUnknown }

// IsScalar reports whether v is null, a boolean, a number or a string.
func (v Value) IsScalar() bool {
	switch v.kind {
	case KindNull, KindBool, KindNumber, KindString:
		return true
	}
	return false
}

// Bool returns the boolean payload.
func (v Value) Bool() bool { return v.b }

// Number returns the numeric payload.
func (v Value) Number() float64 { return v.n }

// Int returns the numeric payload as an integer, and whether it is integral.
func (v Value) Int() (int64, bool) {
	if v.kind != KindNumber || v.n != math.Trunc(v.n) || math.IsInf(v.n, 0) {
		return 0, false
	}
	if v.n > math.MaxInt64 || v.n < math.MinInt64 {
		return 0, false
	}
	return int64(v.n), true
}

// Str returns the string payload. Bytes are returned as their string form.
func (v Value) Str() string {
	if v.kind == KindBytes {
		return string(v.raw)
	}
	return v.s
}

// Bytes returns the opaque payload. Strings are returned as their bytes.
func (v Value) Bytes() []byte {
	if v.kind == KindString {
		return []byte(v.s)
	}
	return v.raw
}

// Map returns the mapping payload. The returned map must not be modified.
func (v Value) Map() map[string]Value { return v.m }

// List returns the sequence payload. The returned slice must not be modified.
func (v Value) List() []Value { return v.l }

// Len returns the number of children of a container, or the length of a
// string or byte payload.
func (v Value) Len() int {
	switch v.kind {
	case KindMap:
		return len(v.m)
	case KindList:
		return len(v.l)
	case KindString:
		return len(v.s)
	case KindBytes:
		return len(v.raw)
	}
	return 0
}

// Keys returns the sorted keys of a mapping.
func (v Value) Keys() []string {
	if v.kind != KindMap {
		return nil
	}
	keys := make([]string, 0, len(v.m))
	for k := range v.m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Field returns the child of a mapping, or Absent.
func (v Value) Field(key string) Value {
	if v.kind != KindMap {
		return Absent()
	}
	return v.m[key]
}

// Item returns the i-th element of a sequence, or Absent.
func (v Value) Item(i int) Value {
	if v.kind != KindList {
		return Absent()
	}
	if i < 0 {
		i += len(v.l)
	}
	if i < 0 || i >= len(v.l) {
		return Absent()
	}
	return v.l[i]
}

// Truthy is false for absent and null values, empty containers, empty
// strings, false and zero. The unknown marker is truthy.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindAbsent, KindNull:
		return false
	case KindBool:
		return v.b
	case KindNumber:
		return v.n != 0
	case KindString:
		return v.s != ""
	case KindBytes:
		return len(v.raw) > 0
	case KindMap:
		return len(v.m) > 0
	case KindList:
		return len(v.l) > 0
	}
	return true
}

// HasUnknowns reports whether v is, or contains, the unknown marker.
func (v Value) HasUnknowns() bool {
	switch v.kind {
	case KindUnknown:
		return true
	case KindMap:
		for _, c := range v.m {
			if c.HasUnknowns() {
				return true
			}
		}
	case KindList:
		for _, c := range v.l {
			if c.HasUnknowns() {
				return true
			}
		}
	}
	return false
}

// Equal reports deep structural equality. Strings and bytes compare by content.
func (v Value) Equal(o Value) bool {
	if (v.kind == KindString || v.kind == KindBytes) && (o.kind == KindString || o.kind == KindBytes) {
		return bytes.Equal(v.Bytes(), o.Bytes())
	}
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindBool:
		return v.b == o.b
	case KindNumber:
		return v.n == o.n
	case KindMap:
		if len(v.m) != len(o.m) {
			return false
		}
		for k, c := range v.m {
			oc, ok := o.m[k]
			if !ok || !c.Equal(oc) {
				return false
			}
		}
		return true
	case KindList:
		if len(v.l) != len(o.l) {
			return false
		}
		for i := range v.l {
			if !v.l[i].Equal(o.l[i]) {
				return false
			}
		}
		return true
	}
	return true
}

// FromInterface converts plain Go data, as produced by the JSON and YAML
// decoders, into a Value.
func FromInterface(x interface{}) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Null(), nil
	case Value:
		return t, nil
	case bool:
		return Bool(t), nil
	case int:
		return Int(int64(t)), nil
	case int32:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case uint:
		return Number(float64(t)), nil
	case uint32:
		return Number(float64(t)), nil
	case uint64:
		return Number(float64(t)), nil
	case float32:
		return Number(float64(t)), nil
	case float64:
		return Number(t), nil
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Absent(), err
		}
		return Number(f), nil
	case string:
		return String(t), nil
	case []byte:
		return Bytes(t), nil
	case map[string]interface{}:
		m := make(map[string]Value, len(t))
		for k, c := range t {
			cv, err := FromInterface(c)
			if err != nil {
				return Absent(), fmt.Errorf("%s: %w", k, err)
			}
			m[k] = cv
		}
		return Map(m), nil
	case map[interface{}]interface{}:
		m := make(map[string]Value, len(t))
		for k, c := range t {
			cv, err := FromInterface(c)
			if err != nil {
				return Absent(), err
			}
			m[fmt.Sprint(k)] = cv
		}
		return Map(m), nil
	case map[string]string:
		m := make(map[string]Value, len(t))
		for k, c := range t {
			m[k] = String(c)
		}
		return Map(m), nil
	case []interface{}:
		l := make([]Value, len(t))
		for i, c := range t {
			cv, err := FromInterface(c)
			if err != nil {
				return Absent(), fmt.Errorf("[%d]: %w", i, err)
			}
			l[i] = cv
		}
		return List(l...), nil
	case []string:
		l := make([]Value, len(t))
		for i, c := range t {
			l[i] = String(c)
		}
		return List(l...), nil
	default:
		return Absent(), fmt.Errorf("%w: unsupported Go type %T", ErrType, x)
	}
}

// Interface converts v into plain Go data. Integral numbers become int64,
// absent and unknown values become nil.
func (v Value) Interface() interface{} {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		if i, ok := v.Int(); ok {
			return i
		}
		return v.n
	case KindString:
		return v.s
	case KindBytes:
		return v.raw
	case KindMap:
		m := make(map[string]interface{}, len(v.m))
		for k, c := range v.m {
			if c.kind == KindAbsent || c.kind == KindUnknown {
				continue
			}
			m[k] = c.Interface()
		}
		return m
	case KindList:
		l := make([]interface{}, 0, len(v.l))
		for _, c := range v.l {
			if c.kind == KindAbsent || c.kind == KindUnknown {
				continue
			}
			l = append(l, c.Interface())
		}
		return l
	}
	return nil
}

// String renders v as compact JSON. The unknown marker renders as
// "(unknown)" and absent values as "(absent)".
func (v Value) String() string {
	switch v.kind {
	case KindAbsent:
		return "(absent)"
	case KindUnknown:
		return "(unknown)"
	}
	data, err := json.Marshal(v.Interface())
	if err != nil {
		return fmt.Sprintf("(%s)", v.kind)
	}
	return string(data)
}
