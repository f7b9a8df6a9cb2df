package value

// Handle addresses one node of a Tree. Handles are cheap values; every
// operation walks the tree from its root, so two handles with the same path
// always observe each other's writes.
type Handle struct {
	tree *Tree
	path Path
}

// IsZero reports whether h is the zero Handle.
func (h Handle) IsZero() bool { return h.tree == nil }

// Tree returns the tree h belongs to.
func (h Handle) Tree() *Tree { return h.tree }

// Path returns the path of h from the tree root.
func (h Handle) Path() Path { return h.path }

// Label renders the tree label followed by the path, e.g.
// `Function Response.desired.resources["bucket"]`.
func (h Handle) Label() string {
	if h.tree == nil {
		return "(nil)"
	}
	return h.tree.labelOf(h.path)
}

// String implements fmt.Stringer.
func (h Handle) String() string { return h.Label() }

// ReadOnly reports whether writes through h are rejected.
func (h Handle) ReadOnly() bool { return h.tree != nil && h.tree.readOnly }

// At returns a handle to a descendant.
func (h Handle) At(segs ...Segment) Handle {
	return Handle{tree: h.tree, path: h.path.Append(segs...)}
}

// AtPath returns a handle to the descendant at the relative path p.
func (h Handle) AtPath(p Path) Handle { return h.At(p...) }

// Field returns a handle to a chain of mapping keys below h.
func (h Handle) Field(keys ...string) Handle {
	segs := make([]Segment, len(keys))
	for i, k := range keys {
		segs[i] = Key(k)
	}
	return h.At(segs...)
}

// Index returns a handle to a sequence element below h.
func (h Handle) Index(i int) Handle { return h.At(Index(i)) }

// Parent returns a handle to the parent of h. The root is its own parent.
func (h Handle) Parent() Handle { return Handle{tree: h.tree, path: h.path.Parent()} }

// Value returns a snapshot of the node. Reading through missing
// intermediates yields Absent.
func (h Handle) Value() (Value, error) {
	v, _, err := h.tree.read(h.path)
	if err != nil {
		return Value{}, h.tree.fail("read", h.path, err)
	}
	return v, nil
}

// Get returns a snapshot of the child at seg.
func (h Handle) Get(seg Segment) (Value, error) { return h.At(seg).Value() }

// Kind returns the kind of the node without building a snapshot.
func (h Handle) Kind() (Kind, error) {
	cur, v, canon, err := h.tree.lookup(h.path)
	if err != nil {
		return KindAbsent, h.tree.fail("read", h.path, err)
	}
	if _, ok := h.tree.unknowns[canon.String()]; ok {
		return KindUnknown, nil
	}
	if cur != nil {
		return cur.kind(), nil
	}
	return v.kind, nil
}

// Exists reports whether the node is present.
func (h Handle) Exists() bool {
	k, err := h.Kind()
	return err == nil && k != KindAbsent
}

// Truthy is false for absent and null nodes, and for empty containers.
func (h Handle) Truthy() bool {
	cur, v, canon, err := h.tree.lookup(h.path)
	if err != nil {
		return false
	}
	if _, ok := h.tree.unknowns[canon.String()]; ok {
		return true
	}
	if cur != nil {
		return cur.length() > 0
	}
	return v.Truthy()
}

// Equal compares the snapshots of two nodes.
func (h Handle) Equal(o Handle) bool {
	a, err := h.Value()
	if err != nil {
		return false
	}
	b, err := o.Value()
	if err != nil {
		return false
	}
	return a.Equal(b)
}

// Len returns the number of children of a container node.
func (h Handle) Len() int {
	cur, v, _, err := h.tree.lookup(h.path)
	if err != nil {
		return 0
	}
	if cur != nil {
		return cur.length()
	}
	return v.Len()
}

// Keys returns the keys of a mapping node.
func (h Handle) Keys() []string {
	cur, _, _, err := h.tree.lookup(h.path)
	if err != nil || cur == nil {
		return nil
	}
	return cur.keys()
}

// Set writes v into the child at seg, creating missing intermediates.
// Mappings are merged key by key into an existing mapping; every other value
// replaces the child.
func (h Handle) Set(seg Segment, v Value) error { return h.At(seg).Assign(v) }

// Assign writes v into the node with the merge semantics of Set.
func (h Handle) Assign(v Value) error { return h.tree.write("assign", h.path, v, true) }

// Replace overwrites the node with v.
func (h Handle) Replace(v Value) error { return h.tree.write("replace", h.path, v, false) }

// Reset clears the node, leaving an empty container of the same kind. An
// absent or scalar node becomes an empty mapping.
func (h Handle) Reset() error {
	t := h.tree
	if t.readOnly {
		return t.fail("reset", h.path, ErrReadOnly)
	}
	if len(h.path) == 0 {
		t.rootNode().clear()
		t.clearMarkers(nil)
		return nil
	}
	parent, last, canon, err := t.parentFor(h.path)
	if err != nil {
		return t.fail("reset", h.path, err)
	}
	t.clearAncestorMarkers(canon)
	t.clearMarkers(canon)
	child, _, err := parent.get(last)
	if err != nil {
		return t.fail("reset", h.path, err)
	}
	if child != nil && child.kind() == KindList {
		if mc, err := parent.ensure(last, true); err == nil {
			mc.clear()
			return nil
		}
	}
	if child != nil {
		if mc, err := parent.ensure(last, false); err == nil {
			mc.clear()
			return nil
		}
	}
	if err := parent.store(last, Null()); err != nil {
		return t.fail("reset", h.path, err)
	}
	if _, err := parent.ensure(last, false); err != nil {
		return t.fail("reset", h.path, err)
	}
	return nil
}

// Delete removes the child at seg. Deleting a missing child is not an error.
// Removing a sequence element shifts the following elements down.
func (h Handle) Delete(seg Segment) error { return h.At(seg).Remove() }

// Remove deletes the node itself.
func (h Handle) Remove() error { return h.tree.remove("delete", h.path) }

// Append adds v at the end of the sequence at h, creating it if missing.
func (h Handle) Append(v Value) error {
	t := h.tree
	if t.readOnly {
		return t.fail("append", h.path, ErrReadOnly)
	}
	var list node
	var canon Path
	if len(h.path) == 0 {
		list = t.rootNode()
	} else {
		parent, last, c, err := t.parentFor(h.path)
		if err != nil {
			return t.fail("append", h.path, err)
		}
		t.clearAncestorMarkers(c)
		if _, ok := t.unknowns[c.String()]; ok {
			delete(t.unknowns, c.String())
			if err := parent.store(last, Null()); err != nil {
				return t.fail("append", h.path, err)
			}
		}
		if list, err = parent.ensure(last, true); err != nil {
			return t.fail("append", h.path, err)
		}
		canon = c
	}
	if list.kind() != KindList {
		return t.fail("append", h.path, typeError("cannot append to a %s", list.kind()))
	}
	if err := t.appendTo(list, canon, v); err != nil {
		return t.fail("append", h.path, err)
	}
	return nil
}
