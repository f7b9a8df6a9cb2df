package value

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/protobuf/types/known/structpb"
	"gopkg.in/yaml.v3"
)

// Codec converts between a serialized string and a Value.
type Codec interface {
	Name() string
	Decode(s string) (Value, error)
	Encode(v Value) (string, error)
}

var (
	// YAML is the YAML codec.
	YAML Codec = yamlCodec{}
	// JSON is the compact JSON codec.
	JSON Codec = jsonCodec{}
)

type yamlCodec struct{}

func (yamlCodec) Name() string { return "yaml" }

func (yamlCodec) Decode(s string) (Value, error) {
	var data interface{}
	if err := yaml.Unmarshal([]byte(s), &data); err != nil {
		return Value{}, fmt.Errorf("decoding yaml: %w", err)
	}
	return FromInterface(data)
}

func (yamlCodec) Encode(v Value) (string, error) {
	data, err := yaml.Marshal(v.Interface())
	if err != nil {
		return "", fmt.Errorf("encoding yaml: %w", err)
	}
	return string(data), nil
}

type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Decode(s string) (Value, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var data interface{}
	if err := dec.Decode(&data); err != nil {
		return Value{}, fmt.Errorf("decoding json: %w", err)
	}
	return FromInterface(data)
}

func (jsonCodec) Encode(v Value) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v.Interface()); err != nil {
		return "", fmt.Errorf("encoding json: %w", err)
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

// document is a decoded string field bound to the tree that holds it.
type document struct {
	target Handle
	codec  Codec
	tree   *Tree
}

// Open decodes the string at h and returns a handle to the resulting
// document. Writes into the document are serialized back into h when the
// tree of h is committed. Opening the same target again returns the same
// document.
func Open(h Handle, c Codec) (Handle, error) {
	t := h.tree
	canon := t.resolve(h.path)
	for _, d := range t.docs {
		if d.target.path.Equal(canon) {
			if d.codec.Name() != c.Name() {
				return Handle{}, t.fail("open", h.path, typeError("already open as %s", d.codec.Name()))
			}
			return d.tree.Root(), nil
		}
	}
	v, err := h.Value()
	if err != nil {
		return Handle{}, err
	}
	doc := Map(nil)
	switch v.Kind() {
	case KindAbsent, KindNull:
	case KindString, KindBytes:
		if strings.TrimSpace(v.Str()) != "" {
			if doc, err = c.Decode(v.Str()); err != nil {
				return Handle{}, t.fail("open", h.path, err)
			}
		}
	default:
		return Handle{}, t.fail("open", h.path, typeError("cannot decode %s", v.Kind()))
	}
	var dt *Tree
	label := fmt.Sprintf("%s(%s)", c.Name(), t.labelOf(canon))
	switch doc.Kind() {
	case KindNull:
		dt = NewTree(&structpb.Struct{Fields: map[string]*structpb.Value{}}, label)
	case KindMap:
		dt = NewTree(&structpb.Struct{Fields: map[string]*structpb.Value{}}, label)
	case KindList:
		dt = NewTree(&structpb.ListValue{}, label)
	default:
		return Handle{}, t.fail("open", h.path, typeError("%s document is a %s, not a map or list", c.Name(), doc.Kind()))
	}
	if doc.Kind() != KindNull {
		if err := dt.Root().Replace(doc); err != nil {
			return Handle{}, err
		}
	}
	t.docs = append(t.docs, &document{target: Handle{tree: t, path: canon}, codec: c, tree: dt})
	return dt.Root(), nil
}

// Decode parses s into a detached document.
func Decode(s string, c Codec) (Handle, error) {
	doc, err := c.Decode(s)
	if err != nil {
		return Handle{}, err
	}
	switch doc.Kind() {
	case KindList:
		return NewList(doc)
	case KindMap:
		return NewMap(doc)
	case KindNull:
		return NewMap(Absent())
	}
	return Handle{}, typeError("%s document is a %s, not a map or list", c.Name(), doc.Kind())
}
