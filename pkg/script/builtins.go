package script

import (
	"encoding/base64"
	"fmt"

	"go.starlark.net/starlark"

	"github.com/openfroyo/function-starlark/pkg/value"
)

// unknownValue is the Unknown sentinel as seen by scripts.
type unknownValue struct{}

// Unknown is the singleton Unknown sentinel.
var Unknown starlark.Value = &unknownValue{}

func (*unknownValue) String() string        { return "Unknown" }
func (*unknownValue) Type() string          { return "Unknown" }
func (*unknownValue) Freeze()               {}
func (*unknownValue) Truth() starlark.Bool  { return starlark.True }
func (*unknownValue) Hash() (uint32, error) { return 0x756e6b6e, nil }

// Universe returns the names predeclared in every script. Nothing else is
// reachable: scripts have no filesystem, network or process access.
func Universe() starlark.StringDict {
	return starlark.StringDict{
		"BaseComposite": starlark.NewBuiltin("BaseComposite", baseComposite),
		"Map":           starlark.NewBuiltin("Map", newMap),
		"List":          starlark.NewBuiltin("List", newList),
		"Unknown":       Unknown,
		"Yaml":          starlark.NewBuiltin("Yaml", codecBuiltin(value.YAML)),
		"Json":          starlark.NewBuiltin("Json", codecBuiltin(value.JSON)),
		"B64Encode":     starlark.NewBuiltin("B64Encode", b64Encode),
		"B64Decode":     starlark.NewBuiltin("B64Decode", b64Decode),
	}
}

// newMap builds a detached mapping from an optional positional value and
// keyword arguments.
func newMap(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(args) > 1 {
		return nil, fmt.Errorf("%s: got %d positional arguments, want at most 1", b.Name(), len(args))
	}
	h, err := value.NewMap(value.Absent())
	if err != nil {
		return nil, err
	}
	hv := &handleValue{h: h}
	if len(args) == 1 {
		if err := assign(h, args[0]); err != nil {
			return nil, fmt.Errorf("%s: %w", b.Name(), err)
		}
	}
	for _, kv := range kwargs {
		if err := assign(h.Field(string(kv[0].(starlark.String))), kv[1]); err != nil {
			return nil, fmt.Errorf("%s: %w", b.Name(), err)
		}
	}
	return hv, nil
}

// newList builds a detached sequence from its positional arguments.
func newList(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(kwargs) > 0 {
		return nil, fmt.Errorf("%s: unexpected keyword arguments", b.Name())
	}
	h, err := value.NewList(value.Absent())
	if err != nil {
		return nil, err
	}
	for _, item := range args {
		v, err := toValue(item)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", b.Name(), err)
		}
		if err := h.Append(v); err != nil {
			return nil, err
		}
	}
	return &handleValue{h: h}, nil
}

// codecBuiltin returns Yaml or Json. Given a mapping handle and a key it
// opens the string field under the key as a document that is written back
// after compose; a handle to an absent field works the same way. Given a
// string it parses it. Given a mapping or sequence it serializes it.
func codecBuiltin(c value.Codec) func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
	return func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var x starlark.Value
		var key starlark.Value = starlark.None
		if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &x, &key); err != nil {
			return nil, err
		}
		if key != starlark.None {
			k, ok := key.(starlark.String)
			if !ok {
				return nil, fmt.Errorf("%s: key must be a string, got %s", b.Name(), key.Type())
			}
			var target value.Handle
			switch arg := x.(type) {
			case *handleValue:
				target = arg.h.Field(string(k))
			case *overlayValue:
				target = arg.desired.Field(string(k))
			default:
				return nil, fmt.Errorf("%s: want a mapping field, got %s", b.Name(), x.Type())
			}
			return open(b, c, target)
		}
		switch arg := x.(type) {
		case *handleValue:
			k, err := arg.h.Kind()
			if err != nil {
				return nil, err
			}
			if k == value.KindMap || k == value.KindList {
				return encode(b, c, x)
			}
			return open(b, c, arg.h)
		case starlark.String, starlark.Bytes:
			s, ok := starlark.AsString(x)
			if !ok {
				s = string(x.(starlark.Bytes))
			}
			doc, err := value.Decode(s, c)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", b.Name(), err)
			}
			return &handleValue{h: doc}, nil
		}
		return encode(b, c, x)
	}
}

func open(b *starlark.Builtin, c value.Codec, target value.Handle) (starlark.Value, error) {
	doc, err := value.Open(target, c)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	return &handleValue{h: doc}, nil
}

func encode(b *starlark.Builtin, c value.Codec, x starlark.Value) (starlark.Value, error) {
	v, err := toValue(x)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	s, err := c.Encode(v)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	return starlark.String(s), nil
}

func b64Encode(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var x starlark.Value
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &x); err != nil {
		return nil, err
	}
	var raw []byte
	switch s := x.(type) {
	case starlark.String:
		raw = []byte(s)
	case starlark.Bytes:
		raw = []byte(s)
	default:
		return nil, fmt.Errorf("%s: want string or bytes, got %s", b.Name(), x.Type())
	}
	return starlark.String(base64.StdEncoding.EncodeToString(raw)), nil
}

func b64Decode(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var x starlark.Value
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &x); err != nil {
		return nil, err
	}
	var s string
	switch v := x.(type) {
	case starlark.String:
		s = string(v)
	case starlark.Bytes:
		s = string(v)
	default:
		return nil, fmt.Errorf("%s: want string or bytes, got %s", b.Name(), x.Type())
	}
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	return starlark.String(raw), nil
}
