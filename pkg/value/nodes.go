package value

import (
	"math"
	"sort"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/known/durationpb"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	structName   protoreflect.FullName = "google.protobuf.Struct"
	listName     protoreflect.FullName = "google.protobuf.ListValue"
	valueName    protoreflect.FullName = "google.protobuf.Value"
	durationName protoreflect.FullName = "google.protobuf.Duration"
)

// node is a container inside a protocol tree. Nodes returned by get are only
// used for reading; nodes returned by ensure may be mutated.
type node interface {
	kind() Kind
	length() int
	keys() []string
	// canonical normalizes seg: field names become proto names and negative
	// indices become absolute.
	canonical(seg Segment) (Segment, error)
	// get returns the child container at seg, or its scalar value. A missing
	// child yields a nil node and an Absent value.
	get(seg Segment) (node, Value, error)
	// ensure returns the mutable child container at seg, creating an empty
	// mapping (or sequence when asList is set) if it is absent or null.
	ensure(seg Segment, asList bool) (node, error)
	store(seg Segment, v Value) error
	remove(seg Segment) (bool, error)
	appendValue(v Value) error
	clear()
	snapshot() Value
}

func keyOf(seg Segment) (string, error) {
	if seg.IsIndex() {
		return "", typeError("index %d used on a map", seg.Index())
	}
	return seg.Key(), nil
}

func indexOf(seg Segment, n int) (int, error) {
	if !seg.IsIndex() {
		return 0, typeError("key %q used on a list", seg.Key())
	}
	i := seg.Index()
	if i < 0 {
		i += n
	}
	return i, nil
}

func placeholder(v Value) bool {
	return v.kind == KindNull || v.kind == KindUnknown || v.kind == KindAbsent
}

// ---- google.protobuf.Struct / ListValue ----

func toStructValue(v Value) (*structpb.Value, error) {
	switch v.kind {
	case KindAbsent, KindNull, KindUnknown:
		return structpb.NewNullValue(), nil
	case KindBool:
		return structpb.NewBoolValue(v.b), nil
	case KindNumber:
		return structpb.NewNumberValue(v.n), nil
	case KindString:
		return structpb.NewStringValue(v.s), nil
	case KindBytes:
		return structpb.NewStringValue(string(v.raw)), nil
	case KindMap:
		s, err := toStruct(v)
		if err != nil {
			return nil, err
		}
		return structpb.NewStructValue(s), nil
	case KindList:
		l, err := toListValue(v)
		if err != nil {
			return nil, err
		}
		return structpb.NewListValue(l), nil
	}
	return nil, typeError("cannot store %s", v.kind)
}

func toStruct(v Value) (*structpb.Struct, error) {
	s := &structpb.Struct{Fields: make(map[string]*structpb.Value, len(v.m))}
	for k, c := range v.m {
		if c.kind == KindAbsent || c.kind == KindUnknown {
			continue
		}
		sv, err := toStructValue(c)
		if err != nil {
			return nil, err
		}
		s.Fields[k] = sv
	}
	return s, nil
}

func toListValue(v Value) (*structpb.ListValue, error) {
	l := &structpb.ListValue{Values: make([]*structpb.Value, 0, len(v.l))}
	for _, c := range v.l {
		sv, err := toStructValue(c)
		if err != nil {
			return nil, err
		}
		l.Values = append(l.Values, sv)
	}
	return l, nil
}

func fromStructValue(v *structpb.Value) Value {
	switch k := v.GetKind().(type) {
	case *structpb.Value_BoolValue:
		return Bool(k.BoolValue)
	case *structpb.Value_NumberValue:
		return Number(k.NumberValue)
	case *structpb.Value_StringValue:
		return String(k.StringValue)
	case *structpb.Value_StructValue:
		return structNode{k.StructValue}.snapshot()
	case *structpb.Value_ListValue:
		return listValueNode{k.ListValue}.snapshot()
	}
	return Null()
}

// valueChild splits a structpb.Value into a container node or a scalar.
func valueChild(v *structpb.Value) (node, Value) {
	switch k := v.GetKind().(type) {
	case *structpb.Value_StructValue:
		if k.StructValue == nil {
			return nil, Null()
		}
		return structNode{k.StructValue}, Value{}
	case *structpb.Value_ListValue:
		if k.ListValue == nil {
			return nil, Null()
		}
		return listValueNode{k.ListValue}, Value{}
	}
	return nil, fromStructValue(v)
}

// ensureValue returns the container held by cur, or creates one. The second
// result is the structpb.Value to store when a container was created.
func ensureValue(cur *structpb.Value, asList bool) (node, *structpb.Value, error) {
	if cur != nil {
		switch k := cur.GetKind().(type) {
		case *structpb.Value_StructValue:
			if k.StructValue != nil {
				if k.StructValue.Fields == nil {
					k.StructValue.Fields = map[string]*structpb.Value{}
				}
				return structNode{k.StructValue}, nil, nil
			}
		case *structpb.Value_ListValue:
			if k.ListValue != nil {
				return listValueNode{k.ListValue}, nil, nil
			}
		case *structpb.Value_NullValue, nil:
		default:
			return nil, nil, typeError("cannot descend into %s", fromStructValue(cur).kind)
		}
	}
	if asList {
		l := &structpb.ListValue{}
		return listValueNode{l}, structpb.NewListValue(l), nil
	}
	s := &structpb.Struct{Fields: map[string]*structpb.Value{}}
	return structNode{s}, structpb.NewStructValue(s), nil
}

type structNode struct{ s *structpb.Struct }

func (n structNode) kind() Kind  { return KindMap }
func (n structNode) length() int { return len(n.s.GetFields()) }

func (n structNode) keys() []string {
	keys := make([]string, 0, len(n.s.GetFields()))
	for k := range n.s.GetFields() {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (n structNode) canonical(seg Segment) (Segment, error) {
	_, err := keyOf(seg)
	return seg, err
}

func (n structNode) get(seg Segment) (node, Value, error) {
	k, err := keyOf(seg)
	if err != nil {
		return nil, Value{}, err
	}
	v, ok := n.s.GetFields()[k]
	if !ok {
		return nil, Absent(), nil
	}
	child, sv := valueChild(v)
	return child, sv, nil
}

func (n structNode) ensure(seg Segment, asList bool) (node, error) {
	k, err := keyOf(seg)
	if err != nil {
		return nil, err
	}
	if n.s.Fields == nil {
		n.s.Fields = map[string]*structpb.Value{}
	}
	child, created, err := ensureValue(n.s.Fields[k], asList)
	if err != nil {
		return nil, err
	}
	if created != nil {
		n.s.Fields[k] = created
	}
	return child, nil
}

func (n structNode) store(seg Segment, v Value) error {
	k, err := keyOf(seg)
	if err != nil {
		return err
	}
	if v.kind == KindAbsent || v.kind == KindUnknown {
		delete(n.s.Fields, k)
		return nil
	}
	sv, err := toStructValue(v)
	if err != nil {
		return err
	}
	if n.s.Fields == nil {
		n.s.Fields = map[string]*structpb.Value{}
	}
	n.s.Fields[k] = sv
	return nil
}

func (n structNode) remove(seg Segment) (bool, error) {
	k, err := keyOf(seg)
	if err != nil {
		return false, err
	}
	_, ok := n.s.Fields[k]
	delete(n.s.Fields, k)
	return ok, nil
}

func (n structNode) appendValue(Value) error {
	return typeError("cannot append to a map")
}

func (n structNode) clear() {
	for k := range n.s.Fields {
		delete(n.s.Fields, k)
	}
}

func (n structNode) snapshot() Value {
	m := make(map[string]Value, len(n.s.GetFields()))
	for k, v := range n.s.GetFields() {
		m[k] = fromStructValue(v)
	}
	return Map(m)
}

type listValueNode struct{ l *structpb.ListValue }

func (n listValueNode) kind() Kind     { return KindList }
func (n listValueNode) length() int    { return len(n.l.GetValues()) }
func (n listValueNode) keys() []string { return nil }

func (n listValueNode) canonical(seg Segment) (Segment, error) {
	i, err := indexOf(seg, n.length())
	return Index(i), err
}

func (n listValueNode) get(seg Segment) (node, Value, error) {
	i, err := indexOf(seg, n.length())
	if err != nil {
		return nil, Value{}, err
	}
	if i < 0 || i >= n.length() {
		return nil, Absent(), nil
	}
	child, v := valueChild(n.l.Values[i])
	return child, v, nil
}

func (n listValueNode) ensure(seg Segment, asList bool) (node, error) {
	i, err := indexOf(seg, n.length())
	if err != nil {
		return nil, err
	}
	if i < 0 || i >= n.length() {
		return nil, indexError(seg.Index(), n.length())
	}
	child, created, err := ensureValue(n.l.Values[i], asList)
	if err != nil {
		return nil, err
	}
	if created != nil {
		n.l.Values[i] = created
	}
	return child, nil
}

func (n listValueNode) store(seg Segment, v Value) error {
	i, err := indexOf(seg, n.length())
	if err != nil {
		return err
	}
	if i < 0 || i >= n.length() {
		return indexError(seg.Index(), n.length())
	}
	sv, err := toStructValue(v)
	if err != nil {
		return err
	}
	n.l.Values[i] = sv
	return nil
}

func (n listValueNode) remove(seg Segment) (bool, error) {
	i, err := indexOf(seg, n.length())
	if err != nil {
		return false, err
	}
	if i < 0 || i >= n.length() {
		return false, nil
	}
	n.l.Values = append(n.l.Values[:i], n.l.Values[i+1:]...)
	return true, nil
}

func (n listValueNode) appendValue(v Value) error {
	sv, err := toStructValue(v)
	if err != nil {
		return err
	}
	n.l.Values = append(n.l.Values, sv)
	return nil
}

func (n listValueNode) clear() { n.l.Values = nil }

func (n listValueNode) snapshot() Value {
	l := make([]Value, len(n.l.GetValues()))
	for i, v := range n.l.GetValues() {
		l[i] = fromStructValue(v)
	}
	return List(l...)
}

// ---- generic protocol messages ----

// messageChild wraps a message found while reading.
func messageChild(msg protoreflect.Message) (node, Value, error) {
	switch msg.Descriptor().FullName() {
	case structName:
		s, ok := msg.Interface().(*structpb.Struct)
		if !ok {
			return nil, Value{}, typeError("unexpected %T for %s", msg.Interface(), structName)
		}
		return structNode{s}, Value{}, nil
	case listName:
		l, ok := msg.Interface().(*structpb.ListValue)
		if !ok {
			return nil, Value{}, typeError("unexpected %T for %s", msg.Interface(), listName)
		}
		return listValueNode{l}, Value{}, nil
	case valueName:
		v, ok := msg.Interface().(*structpb.Value)
		if !ok {
			return nil, Value{}, typeError("unexpected %T for %s", msg.Interface(), valueName)
		}
		child, sv := valueChild(v)
		return child, sv, nil
	case durationName:
		d, ok := msg.Interface().(*durationpb.Duration)
		if !ok {
			return nil, Value{}, typeError("unexpected %T for %s", msg.Interface(), durationName)
		}
		return nil, Number(d.AsDuration().Seconds()), nil
	}
	return msgNode{msg}, Value{}, nil
}

// mutableChild wraps a message obtained for writing.
func mutableChild(msg protoreflect.Message) (node, error) {
	switch msg.Descriptor().FullName() {
	case structName, listName:
		child, _, err := messageChild(msg)
		if err != nil {
			return nil, err
		}
		if s, ok := child.(structNode); ok && s.s.Fields == nil {
			s.s.Fields = map[string]*structpb.Value{}
		}
		return child, nil
	case valueName, durationName:
		return nil, typeError("cannot descend into %s", msg.Descriptor().FullName())
	}
	return msgNode{msg}, nil
}

// fillMessage writes v into an empty message.
func fillMessage(msg protoreflect.Message, v Value) error {
	switch msg.Descriptor().FullName() {
	case structName:
		if v.kind != KindMap {
			return typeError("cannot store %s in a map", v.kind)
		}
		s, err := toStruct(v)
		if err != nil {
			return err
		}
		proto.Merge(msg.Interface(), s)
		return nil
	case listName:
		if v.kind != KindList {
			return typeError("cannot store %s in a list", v.kind)
		}
		l, err := toListValue(v)
		if err != nil {
			return err
		}
		proto.Merge(msg.Interface(), l)
		return nil
	case valueName:
		sv, err := toStructValue(v)
		if err != nil {
			return err
		}
		proto.Merge(msg.Interface(), sv)
		return nil
	case durationName:
		if v.kind != KindNumber {
			return typeError("cannot store %s in a duration", v.kind)
		}
		proto.Merge(msg.Interface(), durationpb.New(time.Duration(v.n*float64(time.Second))))
		return nil
	}
	if v.kind != KindMap {
		return typeError("cannot store %s in %s", v.kind, msg.Descriptor().Name())
	}
	n := msgNode{msg}
	for _, k := range v.Keys() {
		if err := n.store(Key(k), v.m[k]); err != nil {
			return err
		}
	}
	return nil
}

// protoValue converts v for a field of kind fd. newMsg allocates an empty
// message for message-typed fields.
func protoValue(fd protoreflect.FieldDescriptor, newMsg func() protoreflect.Value, v Value) (protoreflect.Value, error) {
	if fd.Kind() == protoreflect.MessageKind || fd.Kind() == protoreflect.GroupKind {
		pv := newMsg()
		if placeholder(v) {
			return pv, nil
		}
		if err := fillMessage(pv.Message(), v); err != nil {
			return protoreflect.Value{}, err
		}
		return pv, nil
	}
	if placeholder(v) {
		return zeroScalar(fd), nil
	}
	return scalarProto(fd, v)
}

// zeroScalar returns the zero value of a scalar field kind. Default cannot be
// used because it is invalid for repeated fields.
func zeroScalar(fd protoreflect.FieldDescriptor) protoreflect.Value {
	switch fd.Kind() {
	case protoreflect.BoolKind:
		return protoreflect.ValueOfBool(false)
	case protoreflect.Int32Kind, protoreflect.Sint32Kind, protoreflect.Sfixed32Kind:
		return protoreflect.ValueOfInt32(0)
	case protoreflect.Int64Kind, protoreflect.Sint64Kind, protoreflect.Sfixed64Kind:
		return protoreflect.ValueOfInt64(0)
	case protoreflect.Uint32Kind, protoreflect.Fixed32Kind:
		return protoreflect.ValueOfUint32(0)
	case protoreflect.Uint64Kind, protoreflect.Fixed64Kind:
		return protoreflect.ValueOfUint64(0)
	case protoreflect.FloatKind:
		return protoreflect.ValueOfFloat32(0)
	case protoreflect.DoubleKind:
		return protoreflect.ValueOfFloat64(0)
	case protoreflect.StringKind:
		return protoreflect.ValueOfString("")
	case protoreflect.BytesKind:
		return protoreflect.ValueOfBytes(nil)
	case protoreflect.EnumKind:
		return protoreflect.ValueOfEnum(0)
	}
	return protoreflect.Value{}
}

func scalarProto(fd protoreflect.FieldDescriptor, v Value) (protoreflect.Value, error) {
	mismatch := func() (protoreflect.Value, error) {
		return protoreflect.Value{}, typeError("cannot store %s in %s field %s", v.kind, fd.Kind(), fd.Name())
	}
	switch fd.Kind() {
	case protoreflect.BoolKind:
		if v.kind != KindBool {
			return mismatch()
		}
		return protoreflect.ValueOfBool(v.b), nil
	case protoreflect.Int32Kind, protoreflect.Sint32Kind, protoreflect.Sfixed32Kind:
		if v.kind != KindNumber {
			return mismatch()
		}
		return protoreflect.ValueOfInt32(int32(v.n)), nil
	case protoreflect.Int64Kind, protoreflect.Sint64Kind, protoreflect.Sfixed64Kind:
		if v.kind != KindNumber {
			return mismatch()
		}
		return protoreflect.ValueOfInt64(int64(v.n)), nil
	case protoreflect.Uint32Kind, protoreflect.Fixed32Kind:
		if v.kind != KindNumber || v.n < 0 {
			return mismatch()
		}
		return protoreflect.ValueOfUint32(uint32(v.n)), nil
	case protoreflect.Uint64Kind, protoreflect.Fixed64Kind:
		if v.kind != KindNumber || v.n < 0 {
			return mismatch()
		}
		return protoreflect.ValueOfUint64(uint64(v.n)), nil
	case protoreflect.FloatKind:
		if v.kind != KindNumber {
			return mismatch()
		}
		return protoreflect.ValueOfFloat32(float32(v.n)), nil
	case protoreflect.DoubleKind:
		if v.kind != KindNumber {
			return mismatch()
		}
		return protoreflect.ValueOfFloat64(v.n), nil
	case protoreflect.StringKind:
		if v.kind != KindString && v.kind != KindBytes {
			return mismatch()
		}
		return protoreflect.ValueOfString(v.Str()), nil
	case protoreflect.BytesKind:
		if v.kind != KindString && v.kind != KindBytes {
			return mismatch()
		}
		return protoreflect.ValueOfBytes(v.Bytes()), nil
	case protoreflect.EnumKind:
		switch v.kind {
		case KindString:
			ev := fd.Enum().Values().ByName(protoreflect.Name(v.s))
			if ev == nil {
				return protoreflect.Value{}, typeError("%q is not a value of %s", v.s, fd.Enum().Name())
			}
			return protoreflect.ValueOfEnum(ev.Number()), nil
		case KindNumber:
			if v.n != math.Trunc(v.n) {
				return mismatch()
			}
			return protoreflect.ValueOfEnum(protoreflect.EnumNumber(int32(v.n))), nil
		}
		return mismatch()
	}
	return mismatch()
}

func scalarValue(fd protoreflect.FieldDescriptor, pv protoreflect.Value) Value {
	switch fd.Kind() {
	case protoreflect.BoolKind:
		return Bool(pv.Bool())
	case protoreflect.Int32Kind, protoreflect.Sint32Kind, protoreflect.Sfixed32Kind,
		protoreflect.Int64Kind, protoreflect.Sint64Kind, protoreflect.Sfixed64Kind:
		return Int(pv.Int())
	case protoreflect.Uint32Kind, protoreflect.Fixed32Kind, protoreflect.Uint64Kind, protoreflect.Fixed64Kind:
		return Number(float64(pv.Uint()))
	case protoreflect.FloatKind, protoreflect.DoubleKind:
		return Number(pv.Float())
	case protoreflect.StringKind:
		return String(pv.String())
	case protoreflect.BytesKind:
		return Bytes(pv.Bytes())
	case protoreflect.EnumKind:
		if ev := fd.Enum().Values().ByNumber(pv.Enum()); ev != nil {
			return String(string(ev.Name()))
		}
		return Int(int64(pv.Enum()))
	}
	return Absent()
}

func isMessageField(fd protoreflect.FieldDescriptor) bool {
	return fd.Kind() == protoreflect.MessageKind || fd.Kind() == protoreflect.GroupKind
}

type msgNode struct{ m protoreflect.Message }

func (n msgNode) field(k string) protoreflect.FieldDescriptor {
	fields := n.m.Descriptor().Fields()
	if fd := fields.ByName(protoreflect.Name(k)); fd != nil {
		return fd
	}
	if fd := fields.ByJSONName(k); fd != nil {
		return fd
	}
	return fields.ByTextName(k)
}

func (n msgNode) setFields() []protoreflect.FieldDescriptor {
	var fds []protoreflect.FieldDescriptor
	n.m.Range(func(fd protoreflect.FieldDescriptor, _ protoreflect.Value) bool {
		fds = append(fds, fd)
		return true
	})
	sort.Slice(fds, func(i, j int) bool { return fds[i].Number() < fds[j].Number() })
	return fds
}

func (n msgNode) kind() Kind  { return KindMap }
func (n msgNode) length() int { return len(n.setFields()) }

func (n msgNode) keys() []string {
	fds := n.setFields()
	keys := make([]string, len(fds))
	for i, fd := range fds {
		keys[i] = string(fd.Name())
	}
	return keys
}

func (n msgNode) canonical(seg Segment) (Segment, error) {
	k, err := keyOf(seg)
	if err != nil {
		return seg, err
	}
	if fd := n.field(k); fd != nil {
		return Key(string(fd.Name())), nil
	}
	return seg, nil
}

func (n msgNode) noField(k string) error {
	return typeError("%s has no field %q", n.m.Descriptor().Name(), k)
}

func (n msgNode) get(seg Segment) (node, Value, error) {
	k, err := keyOf(seg)
	if err != nil {
		return nil, Value{}, err
	}
	fd := n.field(k)
	if fd == nil {
		return nil, Absent(), nil
	}
	switch {
	case fd.IsList():
		if !n.m.Has(fd) {
			return nil, Absent(), nil
		}
		return listNode{n.m.Get(fd).List(), fd}, Value{}, nil
	case fd.IsMap():
		if !n.m.Has(fd) {
			return nil, Absent(), nil
		}
		return mapNode{n.m.Get(fd).Map(), fd}, Value{}, nil
	case isMessageField(fd):
		if !n.m.Has(fd) {
			return nil, Absent(), nil
		}
		return messageChild(n.m.Get(fd).Message())
	}
	if fd.HasPresence() && !n.m.Has(fd) {
		return nil, Absent(), nil
	}
	return nil, scalarValue(fd, n.m.Get(fd)), nil
}

func (n msgNode) ensure(seg Segment, _ bool) (node, error) {
	k, err := keyOf(seg)
	if err != nil {
		return nil, err
	}
	fd := n.field(k)
	if fd == nil {
		return nil, n.noField(k)
	}
	switch {
	case fd.IsList():
		return listNode{n.m.Mutable(fd).List(), fd}, nil
	case fd.IsMap():
		return mapNode{n.m.Mutable(fd).Map(), fd}, nil
	case isMessageField(fd):
		return mutableChild(n.m.Mutable(fd).Message())
	}
	return nil, typeError("cannot descend into %s field %s", fd.Kind(), fd.Name())
}

func (n msgNode) store(seg Segment, v Value) error {
	k, err := keyOf(seg)
	if err != nil {
		return err
	}
	fd := n.field(k)
	if fd == nil {
		return n.noField(k)
	}
	if placeholder(v) {
		n.m.Clear(fd)
		return nil
	}
	switch {
	case fd.IsList():
		if v.kind != KindList {
			return typeError("cannot store %s in list field %s", v.kind, fd.Name())
		}
		n.m.Clear(fd)
		lst := n.m.Mutable(fd).List()
		for _, item := range v.l {
			pv, err := protoValue(fd, lst.NewElement, item)
			if err != nil {
				return err
			}
			lst.Append(pv)
		}
		return nil
	case fd.IsMap():
		if v.kind != KindMap {
			return typeError("cannot store %s in map field %s", v.kind, fd.Name())
		}
		n.m.Clear(fd)
		mp := n.m.Mutable(fd).Map()
		for _, key := range v.Keys() {
			if v.m[key].kind == KindAbsent || v.m[key].kind == KindUnknown {
				continue
			}
			pv, err := protoValue(fd.MapValue(), mp.NewValue, v.m[key])
			if err != nil {
				return err
			}
			mp.Set(protoreflect.ValueOfString(key).MapKey(), pv)
		}
		return nil
	}
	pv, err := protoValue(fd, func() protoreflect.Value { return n.m.NewField(fd) }, v)
	if err != nil {
		return err
	}
	n.m.Set(fd, pv)
	return nil
}

func (n msgNode) remove(seg Segment) (bool, error) {
	k, err := keyOf(seg)
	if err != nil {
		return false, err
	}
	fd := n.field(k)
	if fd == nil {
		return false, nil
	}
	had := n.m.Has(fd)
	n.m.Clear(fd)
	return had, nil
}

func (n msgNode) appendValue(Value) error {
	return typeError("cannot append to %s", n.m.Descriptor().Name())
}

func (n msgNode) clear() {
	for _, fd := range n.setFields() {
		n.m.Clear(fd)
	}
}

func (n msgNode) snapshot() Value {
	m := map[string]Value{}
	for _, fd := range n.setFields() {
		child, v, err := n.get(Key(string(fd.Name())))
		if err != nil {
			continue
		}
		if child != nil {
			v = child.snapshot()
		}
		if v.kind != KindAbsent {
			m[string(fd.Name())] = v
		}
	}
	return Map(m)
}

// mapNode is a protobuf map field with string keys.
type mapNode struct {
	mp protoreflect.Map
	fd protoreflect.FieldDescriptor
}

func (n mapNode) kind() Kind  { return KindMap }
func (n mapNode) length() int { return n.mp.Len() }

func (n mapNode) keys() []string {
	keys := make([]string, 0, n.mp.Len())
	n.mp.Range(func(k protoreflect.MapKey, _ protoreflect.Value) bool {
		keys = append(keys, k.String())
		return true
	})
	sort.Strings(keys)
	return keys
}

func (n mapNode) canonical(seg Segment) (Segment, error) {
	_, err := keyOf(seg)
	return seg, err
}

func (n mapNode) get(seg Segment) (node, Value, error) {
	k, err := keyOf(seg)
	if err != nil {
		return nil, Value{}, err
	}
	mk := protoreflect.ValueOfString(k).MapKey()
	if !n.mp.Has(mk) {
		return nil, Absent(), nil
	}
	vd := n.fd.MapValue()
	if isMessageField(vd) {
		return messageChild(n.mp.Get(mk).Message())
	}
	return nil, scalarValue(vd, n.mp.Get(mk)), nil
}

func (n mapNode) ensure(seg Segment, _ bool) (node, error) {
	k, err := keyOf(seg)
	if err != nil {
		return nil, err
	}
	vd := n.fd.MapValue()
	if !isMessageField(vd) {
		return nil, typeError("cannot descend into %s value of %s", vd.Kind(), n.fd.Name())
	}
	return mutableChild(n.mp.Mutable(protoreflect.ValueOfString(k).MapKey()).Message())
}

func (n mapNode) store(seg Segment, v Value) error {
	k, err := keyOf(seg)
	if err != nil {
		return err
	}
	mk := protoreflect.ValueOfString(k).MapKey()
	if v.kind == KindAbsent || v.kind == KindUnknown {
		n.mp.Clear(mk)
		return nil
	}
	pv, err := protoValue(n.fd.MapValue(), n.mp.NewValue, v)
	if err != nil {
		return err
	}
	n.mp.Set(mk, pv)
	return nil
}

func (n mapNode) remove(seg Segment) (bool, error) {
	k, err := keyOf(seg)
	if err != nil {
		return false, err
	}
	mk := protoreflect.ValueOfString(k).MapKey()
	had := n.mp.Has(mk)
	n.mp.Clear(mk)
	return had, nil
}

func (n mapNode) appendValue(Value) error {
	return typeError("cannot append to map field %s", n.fd.Name())
}

func (n mapNode) clear() {
	var keys []protoreflect.MapKey
	n.mp.Range(func(k protoreflect.MapKey, _ protoreflect.Value) bool {
		keys = append(keys, k)
		return true
	})
	for _, k := range keys {
		n.mp.Clear(k)
	}
}

func (n mapNode) snapshot() Value {
	m := make(map[string]Value, n.mp.Len())
	for _, k := range n.keys() {
		child, v, err := n.get(Key(k))
		if err != nil {
			continue
		}
		if child != nil {
			v = child.snapshot()
		}
		m[k] = v
	}
	return Map(m)
}

// listNode is a repeated protobuf field.
type listNode struct {
	lst protoreflect.List
	fd  protoreflect.FieldDescriptor
}

func (n listNode) kind() Kind     { return KindList }
func (n listNode) length() int    { return n.lst.Len() }
func (n listNode) keys() []string { return nil }

func (n listNode) canonical(seg Segment) (Segment, error) {
	i, err := indexOf(seg, n.lst.Len())
	return Index(i), err
}

func (n listNode) get(seg Segment) (node, Value, error) {
	i, err := indexOf(seg, n.lst.Len())
	if err != nil {
		return nil, Value{}, err
	}
	if i < 0 || i >= n.lst.Len() {
		return nil, Absent(), nil
	}
	if isMessageField(n.fd) {
		return messageChild(n.lst.Get(i).Message())
	}
	return nil, scalarValue(n.fd, n.lst.Get(i)), nil
}

func (n listNode) ensure(seg Segment, _ bool) (node, error) {
	i, err := indexOf(seg, n.lst.Len())
	if err != nil {
		return nil, err
	}
	if i < 0 || i >= n.lst.Len() {
		return nil, indexError(seg.Index(), n.lst.Len())
	}
	if !isMessageField(n.fd) {
		return nil, typeError("cannot descend into %s element of %s", n.fd.Kind(), n.fd.Name())
	}
	return mutableChild(n.lst.Get(i).Message())
}

func (n listNode) store(seg Segment, v Value) error {
	i, err := indexOf(seg, n.lst.Len())
	if err != nil {
		return err
	}
	if i < 0 || i >= n.lst.Len() {
		return indexError(seg.Index(), n.lst.Len())
	}
	pv, err := protoValue(n.fd, n.lst.NewElement, v)
	if err != nil {
		return err
	}
	n.lst.Set(i, pv)
	return nil
}

func (n listNode) remove(seg Segment) (bool, error) {
	i, err := indexOf(seg, n.lst.Len())
	if err != nil {
		return false, err
	}
	size := n.lst.Len()
	if i < 0 || i >= size {
		return false, nil
	}
	for j := i; j < size-1; j++ {
		n.lst.Set(j, n.lst.Get(j+1))
	}
	n.lst.Truncate(size - 1)
	return true, nil
}

func (n listNode) appendValue(v Value) error {
	pv, err := protoValue(n.fd, n.lst.NewElement, v)
	if err != nil {
		return err
	}
	n.lst.Append(pv)
	return nil
}

func (n listNode) clear() { n.lst.Truncate(0) }

func (n listNode) snapshot() Value {
	l := make([]Value, n.lst.Len())
	for i := range l {
		child, v, err := n.get(Index(i))
		if err != nil {
			continue
		}
		if child != nil {
			v = child.snapshot()
		}
		l[i] = v
	}
	return List(l...)
}
