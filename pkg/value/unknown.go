package value

// HasUnknowns reports whether an unknown marker exists at or below h.
func HasUnknowns(h Handle) bool {
	canon := h.tree.resolve(h.path)
	for _, mp := range h.tree.unknowns {
		if mp.HasPrefix(canon) {
			return true
		}
	}
	return false
}

// UnknownPaths returns the paths of the markers at or below h, relative to h.
func UnknownPaths(h Handle) []Path {
	canon := h.tree.resolve(h.path)
	markers := h.tree.markersUnder(canon)
	out := make([]Path, len(markers))
	for i, mp := range markers {
		out[i] = mp[len(canon):]
	}
	return out
}

// PatchUnknowns replaces every marker below desired with the concrete value
// found at the same relative path below observed. A sequence element with no
// observed counterpart restores the whole observed sequence, so elements keep
// their positions. Markers with nothing to patch from are left in place.
func PatchUnknowns(desired, observed Handle) (resolved, unresolved int, err error) {
	marked := UnknownPaths(desired)
	for _, rel := range marked {
		v, err := observed.AtPath(rel).Value()
		if err != nil {
			return 0, 0, err
		}
		switch v.Kind() {
		case KindAbsent, KindUnknown:
			continue
		}
		if err := desired.AtPath(rel).Replace(v); err != nil {
			return 0, 0, err
		}
	}

	for _, rel := range UnknownPaths(desired) {
		if len(rel) == 0 || !rel.Last().IsIndex() {
			continue
		}
		seq := sequenceField(rel)
		if len(seq) == 0 || !HasUnknowns(desired.AtPath(seq)) {
			continue
		}
		v, err := observed.AtPath(seq).Value()
		if err != nil {
			return 0, 0, err
		}
		if v.Kind() == KindAbsent || v.Kind() == KindNull {
			continue
		}
		if err := desired.AtPath(seq).Replace(v); err != nil {
			return 0, 0, err
		}
	}

	unresolved = len(UnknownPaths(desired))
	return len(marked) - unresolved, unresolved, nil
}

// DropUnknowns removes every marker at or below h together with its
// placeholder, leaving those fields absent. A marker on a sequence element
// removes the whole sequence field instead of shifting the later elements
// into its place. It returns the number of markers dropped.
func DropUnknowns(h Handle) (int, error) {
	t := h.tree
	canon := t.resolve(h.path)
	markers := t.markersUnder(canon)
	for _, mp := range markers {
		delete(t.unknowns, mp.String())
	}
	removed := map[string]bool{}
	for _, mp := range markers {
		target := mp
		if rel := mp[len(canon):]; len(rel) > 0 && rel.Last().IsIndex() {
			target = canon.Append(sequenceField(rel)...)
		}
		if removed[target.String()] {
			continue
		}
		removed[target.String()] = true
		if err := t.remove("drop", target); err != nil {
			return 0, err
		}
	}
	return len(markers), nil
}

// sequenceField returns the nearest ancestor of rel that is addressed by a
// key, skipping every enclosing sequence element. An empty result is the
// handle itself.
func sequenceField(rel Path) Path {
	p := rel.Parent()
	for len(p) > 0 && p.Last().IsIndex() {
		p = p.Parent()
	}
	return p
}
