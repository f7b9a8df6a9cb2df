package value

import (
	"sort"
	"strings"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/known/structpb"
)

// Tree is a protocol message addressed through Handles. A Tree also owns the
// unknown markers and the open codec documents of the message. Trees are not
// safe for concurrent use; each request owns its own.
type Tree struct {
	root     protoreflect.Message
	label    string
	readOnly bool
	unknowns map[string]Path
	docs     []*document
}

// TreeOption configures a Tree.
type TreeOption func(*Tree)

// ReadOnly rejects every write into the tree.
func ReadOnly() TreeOption {
	return func(t *Tree) { t.readOnly = true }
}

// NewTree wraps msg. label prefixes every handle label, e.g. "Function Request".
func NewTree(msg proto.Message, label string, opts ...TreeOption) *Tree {
	t := &Tree{
		root:     msg.ProtoReflect(),
		label:    label,
		unknowns: map[string]Path{},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// NewMap returns a handle to a detached mapping initialized with v, which
// may be Absent.
func NewMap(v Value) (Handle, error) {
	t := NewTree(&structpb.Struct{Fields: map[string]*structpb.Value{}}, "Map")
	if v.Kind() != KindAbsent {
		if err := t.Root().Assign(v); err != nil {
			return Handle{}, err
		}
	}
	return t.Root(), nil
}

// NewList returns a handle to a detached sequence initialized with v, which
// may be Absent.
func NewList(v Value) (Handle, error) {
	t := NewTree(&structpb.ListValue{}, "List")
	if v.Kind() != KindAbsent {
		if err := t.Root().Assign(v); err != nil {
			return Handle{}, err
		}
	}
	return t.Root(), nil
}

// Root returns a handle to the root of the tree.
func (t *Tree) Root() Handle { return Handle{tree: t} }

// Label returns the tree label.
func (t *Tree) Label() string { return t.label }

// IsReadOnly reports whether writes are rejected.
func (t *Tree) IsReadOnly() bool { return t.readOnly }

// Message returns the wrapped protocol message.
func (t *Tree) Message() proto.Message { return t.root.Interface() }

func (t *Tree) rootNode() node {
	switch m := t.root.Interface().(type) {
	case *structpb.Struct:
		if m.Fields == nil && !t.readOnly {
			m.Fields = map[string]*structpb.Value{}
		}
		return structNode{m}
	case *structpb.ListValue:
		return listValueNode{m}
	}
	return msgNode{t.root}
}

func (t *Tree) labelOf(p Path) string {
	if len(p) == 0 {
		return t.label
	}
	rendered := p.String()
	if !strings.HasPrefix(rendered, "[") {
		rendered = "." + rendered
	}
	return t.label + rendered
}

func (t *Tree) fail(op string, p Path, err error) error {
	return &PathError{Op: op, Label: t.labelOf(p), Err: err}
}

// lookup walks p for reading. It returns the container at p, or its scalar
// value, along with the canonical form of p.
func (t *Tree) lookup(p Path) (node, Value, Path, error) {
	cur := t.rootNode()
	var v Value
	canon := make(Path, 0, len(p))
	for i, seg := range p {
		if cur == nil {
			switch v.kind {
			case KindAbsent, KindNull:
				return nil, Absent(), append(canon, p[i:]...), nil
			}
			return nil, Value{}, canon, typeError("cannot descend into %s", v.kind)
		}
		c, err := cur.canonical(seg)
		if err != nil {
			return nil, Value{}, canon, err
		}
		canon = append(canon, c)
		if cur, v, err = cur.get(c); err != nil {
			return nil, Value{}, canon, err
		}
	}
	return cur, v, canon, nil
}

// resolve returns the canonical form of p as far as it can be determined.
func (t *Tree) resolve(p Path) Path {
	_, _, canon, err := t.lookup(p)
	if err != nil && len(canon) < len(p) {
		canon = append(canon, p[len(canon):]...)
	}
	return canon
}

// parentFor creates every missing intermediate of p and returns the parent of
// its last segment together with the canonical last segment and path.
func (t *Tree) parentFor(p Path) (node, Segment, Path, error) {
	cur := t.rootNode()
	canon := make(Path, 0, len(p))
	for i := 0; i < len(p)-1; i++ {
		c, err := cur.canonical(p[i])
		if err != nil {
			return nil, Segment{}, canon, err
		}
		canon = append(canon, c)
		if cur, err = cur.ensure(c, p[i+1].IsIndex()); err != nil {
			return nil, Segment{}, canon, err
		}
	}
	last, err := cur.canonical(p.Last())
	if err != nil {
		return nil, Segment{}, canon, err
	}
	return cur, last, append(canon, last), nil
}

func (t *Tree) read(p Path) (Value, Path, error) {
	cur, v, canon, err := t.lookup(p)
	if err != nil {
		return Value{}, canon, err
	}
	if cur != nil {
		v = cur.snapshot()
	}
	return t.overlay(canon, v), canon, nil
}

// write stores v at p. Mappings merge into existing mappings when merge is
// set; every other value replaces the node.
func (t *Tree) write(op string, p Path, v Value, merge bool) error {
	if t.readOnly {
		return t.fail(op, p, ErrReadOnly)
	}
	if len(p) == 0 {
		root := t.rootNode()
		if !merge || v.kind != KindMap {
			root.clear()
			t.clearMarkers(nil)
		}
		if err := t.fill(root, nil, v); err != nil {
			return t.fail(op, p, err)
		}
		return nil
	}
	parent, last, canon, err := t.parentFor(p)
	if err != nil {
		return t.fail(op, p, err)
	}
	t.clearAncestorMarkers(canon)
	if err := t.put(parent, last, canon, v, merge); err != nil {
		return t.fail(op, p, err)
	}
	return nil
}

// fill writes the children of v into the root container.
func (t *Tree) fill(root node, canon Path, v Value) error {
	switch {
	case v.kind == KindAbsent:
		return nil
	case v.kind == KindMap && root.kind() == KindMap:
		for _, k := range v.Keys() {
			c, err := root.canonical(Key(k))
			if err != nil {
				return err
			}
			if err := t.put(root, c, canon.Append(c), v.m[k], true); err != nil {
				return err
			}
		}
		return nil
	case v.kind == KindList && root.kind() == KindList:
		for _, item := range v.l {
			if err := t.appendTo(root, canon, item); err != nil {
				return err
			}
		}
		return nil
	}
	return typeError("cannot assign %s to a %s", v.kind, root.kind())
}

func (t *Tree) put(parent node, seg Segment, canon Path, v Value, merge bool) error {
	if merge && v.kind == KindMap {
		child, _, err := parent.get(seg)
		if err != nil {
			return err
		}
		if child != nil && child.kind() == KindMap {
			mc, err := parent.ensure(seg, false)
			if err != nil {
				return err
			}
			delete(t.unknowns, canon.String())
			for _, k := range v.Keys() {
				c, err := mc.canonical(Key(k))
				if err != nil {
					return err
				}
				if err := t.put(mc, c, canon.Append(c), v.m[k], true); err != nil {
					return err
				}
			}
			return nil
		}
	}
	t.clearMarkers(canon)
	if v.kind == KindAbsent {
		_, err := parent.remove(seg)
		return err
	}
	if err := parent.store(seg, v); err != nil {
		return err
	}
	t.markUnknowns(canon, v)
	return nil
}

func (t *Tree) appendTo(list node, canon Path, v Value) error {
	n := list.length()
	if err := list.appendValue(v); err != nil {
		return err
	}
	t.markUnknowns(canon.Append(Index(n)), v)
	return nil
}

func (t *Tree) remove(op string, p Path) error {
	if t.readOnly {
		return t.fail(op, p, ErrReadOnly)
	}
	if len(p) == 0 {
		t.rootNode().clear()
		t.clearMarkers(nil)
		return nil
	}
	parent, _, canon, err := t.lookup(p.Parent())
	if err != nil {
		return t.fail(op, p, err)
	}
	if parent == nil {
		return nil
	}
	last, err := parent.canonical(p.Last())
	if err != nil {
		return t.fail(op, p, err)
	}
	full := canon.Append(last)
	removed, err := parent.remove(last)
	if err != nil {
		return t.fail(op, p, err)
	}
	t.clearMarkers(full)
	if removed && last.IsIndex() {
		t.shiftMarkers(canon, last.Index())
	}
	return nil
}

// ---- unknown markers ----

func (t *Tree) mark(p Path) {
	t.unknowns[p.String()] = p
}

func (t *Tree) markUnknowns(canon Path, v Value) {
	switch v.kind {
	case KindUnknown:
		t.mark(t.resolve(canon))
	case KindMap:
		if !v.HasUnknowns() {
			return
		}
		for k, c := range v.m {
			t.markUnknowns(canon.Append(Key(k)), c)
		}
	case KindList:
		if !v.HasUnknowns() {
			return
		}
		for i, c := range v.l {
			t.markUnknowns(canon.Append(Index(i)), c)
		}
	}
}

// clearMarkers forgets markers at or below p.
func (t *Tree) clearMarkers(p Path) {
	for k, mp := range t.unknowns {
		if mp.HasPrefix(p) {
			delete(t.unknowns, k)
		}
	}
}

// clearAncestorMarkers forgets markers on the strict ancestors of p, which
// are now concrete containers.
func (t *Tree) clearAncestorMarkers(p Path) {
	for i := 0; i < len(p); i++ {
		delete(t.unknowns, p[:i].String())
	}
}

// shiftMarkers renumbers markers below the sequence at list after the element
// at removed was deleted.
func (t *Tree) shiftMarkers(list Path, removed int) {
	depth := len(list)
	moved := map[string]Path{}
	for k, mp := range t.unknowns {
		if len(mp) <= depth || !mp.HasPrefix(list) || !mp[depth].IsIndex() || mp[depth].Index() <= removed {
			continue
		}
		delete(t.unknowns, k)
		np := mp.Append()
		np[depth] = Index(mp[depth].Index() - 1)
		moved[np.String()] = np
	}
	for k, mp := range moved {
		t.unknowns[k] = mp
	}
}

// markersUnder returns the markers at or below p, deepest and highest
// index first so they can be deleted in order.
func (t *Tree) markersUnder(p Path) []Path {
	var out []Path
	for _, mp := range t.unknowns {
		if mp.HasPrefix(p) {
			out = append(out, mp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return pathAfter(out[i], out[j]) })
	return out
}

func pathAfter(a, b Path) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] == b[i] {
			continue
		}
		if a[i].IsIndex() && b[i].IsIndex() {
			return a[i].Index() > b[i].Index()
		}
		return a[i].String() > b[i].String()
	}
	return len(a) > len(b)
}

func (t *Tree) overlay(canon Path, v Value) Value {
	if _, ok := t.unknowns[canon.String()]; ok {
		return Unknown()
	}
	if len(t.unknowns) == 0 {
		return v
	}
	for _, mp := range t.unknowns {
		if len(mp) > len(canon) && mp.HasPrefix(canon) {
			v = overlayAt(v, mp[len(canon):])
		}
	}
	return v
}

func overlayAt(v Value, rel Path) Value {
	if len(rel) == 0 {
		return Unknown()
	}
	seg := rel[0]
	switch v.kind {
	case KindMap:
		if seg.IsIndex() {
			return v
		}
		v.m[seg.Key()] = overlayAt(v.m[seg.Key()], rel[1:])
	case KindList:
		if !seg.IsIndex() || seg.Index() < 0 || seg.Index() >= len(v.l) {
			return v
		}
		v.l[seg.Index()] = overlayAt(v.l[seg.Index()], rel[1:])
	case KindAbsent, KindNull:
		if seg.IsIndex() {
			return v
		}
		return Map(map[string]Value{seg.Key(): overlayAt(Absent(), rel[1:])})
	}
	return v
}

// Commit serializes every open document back into its target string.
// A document still holding unknown markers marks its target unknown instead.
// Documents of read-only trees are not written back.
func (t *Tree) Commit() error {
	for _, d := range t.docs {
		if err := d.tree.Commit(); err != nil {
			return err
		}
		if t.readOnly {
			continue
		}
		if len(d.tree.unknowns) > 0 {
			if err := d.target.Replace(Unknown()); err != nil {
				return err
			}
			continue
		}
		v, err := d.tree.Root().Value()
		if err != nil {
			return err
		}
		s, err := d.codec.Encode(v)
		if err != nil {
			return &PathError{Op: "commit", Label: d.target.Label(), Err: err}
		}
		if err := d.target.Replace(String(s)); err != nil {
			return err
		}
	}
	return nil
}
