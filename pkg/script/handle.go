package script

import (
	"fmt"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/openfroyo/function-starlark/pkg/value"
)

// handleValue is the Starlark view of a mapping, sequence or absent node.
// Attribute and index access navigate, assignment writes through. Reading a
// missing key never fails: it yields a handle to the absent node, which is
// falsy and can be written to. As a consequence `k in handle` is always
// True; test the value instead.
type handleValue struct {
	h value.Handle
}

var (
	_ starlark.HasAttrs    = (*handleValue)(nil)
	_ starlark.HasSetField = (*handleValue)(nil)
	_ starlark.HasSetKey   = (*handleValue)(nil)
	_ starlark.Sequence    = (*handleValue)(nil)
	_ starlark.Callable    = (*handleValue)(nil)
	_ starlark.Comparable  = (*handleValue)(nil)
)

func (hv *handleValue) String() string {
	v, err := hv.h.Value()
	if err != nil {
		return hv.h.Label()
	}
	return v.String()
}

func (hv *handleValue) Type() string {
	k, _ := hv.h.Kind()
	switch k {
	case value.KindList:
		return "List"
	case value.KindAbsent:
		return "Absent"
	}
	return "Map"
}

func (hv *handleValue) Freeze()              {}
func (hv *handleValue) Truth() starlark.Bool { return starlark.Bool(hv.h.Truthy()) }

func (hv *handleValue) Hash() (uint32, error) {
	return 0, fmt.Errorf("unhashable type: %s", hv.Type())
}

func (hv *handleValue) Name() string { return hv.h.Label() }

func (hv *handleValue) isList() bool {
	k, _ := hv.h.Kind()
	return k == value.KindList
}

func (hv *handleValue) Attr(name string) (starlark.Value, error) {
	if hv.isList() {
		switch name {
		case "append":
			return starlark.NewBuiltin("append", hv.appendBuiltin), nil
		case "extend":
			return starlark.NewBuiltin("extend", hv.extendBuiltin), nil
		}
		return nil, nil
	}
	return wrap(hv.h.Field(name))
}

func (hv *handleValue) AttrNames() []string {
	if hv.isList() {
		return []string{"append", "extend"}
	}
	return hv.h.Keys()
}

func (hv *handleValue) SetField(name string, v starlark.Value) error {
	return assign(hv.h.Field(name), v)
}

func (hv *handleValue) segment(k starlark.Value) (value.Segment, error) {
	switch x := k.(type) {
	case starlark.String:
		return value.Key(string(x)), nil
	case starlark.Int:
		i, err := toInt(x)
		if err != nil {
			return value.Segment{}, err
		}
		return value.Index(i), nil
	}
	return value.Segment{}, fmt.Errorf("%s index must be a string or int, got %s", hv.Type(), k.Type())
}

func (hv *handleValue) Get(k starlark.Value) (starlark.Value, bool, error) {
	seg, err := hv.segment(k)
	if err != nil {
		return nil, false, err
	}
	v, err := wrap(hv.h.At(seg))
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (hv *handleValue) SetKey(k, v starlark.Value) error {
	seg, err := hv.segment(k)
	if err != nil {
		return err
	}
	return assign(hv.h.At(seg), v)
}

func (hv *handleValue) Len() int { return hv.h.Len() }

func (hv *handleValue) Iterate() starlark.Iterator {
	var items []starlark.Value
	if hv.isList() {
		for i := 0; i < hv.h.Len(); i++ {
			v, err := wrap(hv.h.Index(i))
			if err != nil {
				v = starlark.None
			}
			items = append(items, v)
		}
	} else {
		for _, k := range hv.h.Keys() {
			items = append(items, starlark.String(k))
		}
	}
	return &sliceIterator{items: items}
}

// CallInternal resets the node, then assigns a positional mapping and the
// keyword arguments.
func (hv *handleValue) CallInternal(_ *starlark.Thread, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(args) > 1 {
		return nil, fmt.Errorf("%s: got %d positional arguments, want at most 1", hv.h.Label(), len(args))
	}
	if err := hv.h.Reset(); err != nil {
		return nil, err
	}
	if len(args) == 1 {
		if err := assign(hv.h, args[0]); err != nil {
			return nil, err
		}
	}
	for _, kv := range kwargs {
		if err := assign(hv.h.Field(string(kv[0].(starlark.String))), kv[1]); err != nil {
			return nil, err
		}
	}
	return hv, nil
}

func (hv *handleValue) CompareSameType(op syntax.Token, y starlark.Value, _ int) (bool, error) {
	other := y.(*handleValue)
	switch op {
	case syntax.EQL:
		return hv.h.Equal(other.h), nil
	case syntax.NEQ:
		return !hv.h.Equal(other.h), nil
	}
	return false, fmt.Errorf("%s %s %s not implemented", hv.Type(), op, y.Type())
}

func (hv *handleValue) appendBuiltin(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var item starlark.Value
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &item); err != nil {
		return nil, err
	}
	v, err := toValue(item)
	if err != nil {
		return nil, err
	}
	if err := hv.h.Append(v); err != nil {
		return nil, err
	}
	return starlark.None, nil
}

func (hv *handleValue) extendBuiltin(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var items starlark.Iterable
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &items); err != nil {
		return nil, err
	}
	iter := items.Iterate()
	defer iter.Done()
	var elem starlark.Value
	for iter.Next(&elem) {
		v, err := toValue(elem)
		if err != nil {
			return nil, err
		}
		if err := hv.h.Append(v); err != nil {
			return nil, err
		}
	}
	return starlark.None, nil
}

// assign writes a Starlark value into h. None removes the node.
func assign(h value.Handle, v starlark.Value) error {
	if v == starlark.None {
		return h.Remove()
	}
	cv, err := toValue(v)
	if err != nil {
		return fmt.Errorf("%s: %w", h.Label(), err)
	}
	if other, ok := v.(*handleValue); ok && other.h.Path().Equal(h.Path()) && other.h.Tree() == h.Tree() {
		return nil
	}
	return h.Assign(cv)
}

type sliceIterator struct {
	items []starlark.Value
	i     int
}

func (it *sliceIterator) Next(p *starlark.Value) bool {
	if it.i >= len(it.items) {
		return false
	}
	*p = it.items[it.i]
	it.i++
	return true
}

func (it *sliceIterator) Done() {}
