package script

import (
	"fmt"
	"math"

	"go.starlark.net/starlark"

	"github.com/openfroyo/function-starlark/pkg/value"
)

// toValue converts a Starlark value into a value.Value. Handles are
// snapshotted, so assigning one handle to another copies the data.
func toValue(v starlark.Value) (value.Value, error) {
	switch x := v.(type) {
	case starlark.NoneType:
		return value.Null(), nil
	case starlark.Bool:
		return value.Bool(bool(x)), nil
	case starlark.Int:
		if i, ok := x.Int64(); ok {
			return value.Int(i), nil
		}
		return value.Number(float64(x.Float())), nil
	case starlark.Float:
		return value.Number(float64(x)), nil
	case starlark.String:
		return value.String(string(x)), nil
	case starlark.Bytes:
		return value.Bytes([]byte(x)), nil
	case *unknownValue:
		return value.Unknown(), nil
	case *handleValue:
		return x.h.Value()
	case *overlayValue:
		return x.value()
	case *starlark.Dict:
		m := make(map[string]value.Value, x.Len())
		for _, item := range x.Items() {
			k, ok := starlark.AsString(item[0])
			if !ok {
				return value.Value{}, fmt.Errorf("map keys must be strings, got %s", item[0].Type())
			}
			cv, err := toValue(item[1])
			if err != nil {
				return value.Value{}, fmt.Errorf("%s: %w", k, err)
			}
			m[k] = cv
		}
		return value.Map(m), nil
	case starlark.Indexable:
		// lists and tuples
		items := make([]value.Value, x.Len())
		for i := range items {
			cv, err := toValue(x.Index(i))
			if err != nil {
				return value.Value{}, fmt.Errorf("[%d]: %w", i, err)
			}
			items[i] = cv
		}
		return value.List(items...), nil
	case starlark.Iterable:
		// sets
		var items []value.Value
		iter := x.Iterate()
		defer iter.Done()
		var elem starlark.Value
		for iter.Next(&elem) {
			cv, err := toValue(elem)
			if err != nil {
				return value.Value{}, err
			}
			items = append(items, cv)
		}
		return value.List(items...), nil
	}
	return value.Value{}, fmt.Errorf("cannot convert %s to a field value", v.Type())
}

// fromScalar converts a scalar value.Value into a Starlark value.
func fromScalar(v value.Value) starlark.Value {
	switch v.Kind() {
	case value.KindBool:
		return starlark.Bool(v.Bool())
	case value.KindNumber:
		if i, ok := v.Int(); ok {
			return starlark.MakeInt64(i)
		}
		return starlark.Float(v.Number())
	case value.KindString:
		return starlark.String(v.Str())
	case value.KindBytes:
		return starlark.Bytes(v.Bytes())
	case value.KindUnknown:
		return Unknown
	}
	return starlark.None
}

// fromValue converts a detached value.Value into plain Starlark data.
func fromValue(v value.Value) starlark.Value {
	switch v.Kind() {
	case value.KindMap:
		d := starlark.NewDict(v.Len())
		for _, k := range v.Keys() {
			_ = d.SetKey(starlark.String(k), fromValue(v.Field(k)))
		}
		return d
	case value.KindList:
		items := make([]starlark.Value, 0, v.Len())
		for _, c := range v.List() {
			items = append(items, fromValue(c))
		}
		return starlark.NewList(items)
	}
	return fromScalar(v)
}

// wrap returns the Starlark view of the node at h: scalars are converted,
// containers and absent nodes stay handles so they can be written through.
func wrap(h value.Handle) (starlark.Value, error) {
	k, err := h.Kind()
	if err != nil {
		return nil, err
	}
	switch k {
	case value.KindMap, value.KindList, value.KindAbsent:
		return &handleValue{h: h}, nil
	case value.KindUnknown:
		return Unknown, nil
	}
	v, err := h.Value()
	if err != nil {
		return nil, err
	}
	return fromScalar(v), nil
}

// toInt converts a Starlark number into an int.
func toInt(v starlark.Value) (int, error) {
	switch x := v.(type) {
	case starlark.Int:
		i, ok := x.Int64()
		if !ok || i > math.MaxInt32 || i < math.MinInt32 {
			return 0, fmt.Errorf("index %s out of range", x)
		}
		return int(i), nil
	}
	return 0, fmt.Errorf("want int, got %s", v.Type())
}

// toGo converts a Starlark value into plain Go data for log fields.
func toGo(v starlark.Value) interface{} {
	if s, ok := v.(starlark.String); ok {
		return string(s)
	}
	cv, err := toValue(v)
	if err != nil {
		return v.String()
	}
	return cv.Interface()
}
