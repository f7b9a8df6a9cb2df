package value

import (
	"fmt"
	"strconv"
	"strings"
)

// Segment is one step of a Path: either a mapping key or a sequence index.
type Segment struct {
	key   string
	index int
	isIdx bool
}

// Key returns a mapping-key segment.
func Key(k string) Segment { return Segment{key: k} }

// Index returns a sequence-index segment. Negative indices count from the end.
func Index(i int) Segment { return Segment{index: i, isIdx: true} }

// IsIndex reports whether s addresses a sequence element.
func (s Segment) IsIndex() bool { return s.isIdx }

// Key returns the mapping key of s.
func (s Segment) Key() string { return s.key }

// Index returns the sequence index of s.
func (s Segment) Index() int { return s.index }

// String renders the segment as it appears inside a path label.
func (s Segment) String() string {
	if s.isIdx {
		return "[" + strconv.Itoa(s.index) + "]"
	}
	if isIdentifier(s.key) {
		return "." + s.key
	}
	return "[" + strconv.Quote(s.key) + "]"
}

// Path is an absolute sequence of segments from a tree root.
type Path []Segment

// Append returns a new path with segs appended. p is never modified.
func (p Path) Append(segs ...Segment) Path {
	out := make(Path, 0, len(p)+len(segs))
	out = append(out, p...)
	return append(out, segs...)
}

// Parent returns the path without its last segment.
func (p Path) Parent() Path {
	if len(p) == 0 {
		return p
	}
	return p[:len(p)-1:len(p)-1]
}

// Last returns the final segment of p. It panics on an empty path.
func (p Path) Last() Segment { return p[len(p)-1] }

// HasPrefix reports whether prefix addresses p or one of its ancestors.
func (p Path) HasPrefix(prefix Path) bool {
	if len(prefix) > len(p) {
		return false
	}
	for i := range prefix {
		if prefix[i] != p[i] {
			return false
		}
	}
	return true
}

// Equal reports whether both paths address the same node.
func (p Path) Equal(o Path) bool {
	return len(p) == len(o) && p.HasPrefix(o)
}

// String renders p as `a.b["c.d"][0]`.
func (p Path) String() string {
	var b strings.Builder
	for i, s := range p {
		str := s.String()
		if i == 0 && strings.HasPrefix(str, ".") {
			str = str[1:]
		}
		b.WriteString(str)
	}
	return b.String()
}

// ParsePath parses the syntax produced by Path.String.
func ParsePath(s string) (Path, error) {
	var p Path
	i := 0
	for i < len(s) {
		switch s[i] {
		case '.':
			i++
			continue
		case '[':
			end := i + 1
			if end < len(s) && s[end] == '"' {
				// Quoted key: find the closing quote honoring escapes.
				j := end + 1
				for j < len(s) && s[j] != '"' {
					if s[j] == '\\' {
						j++
					}
					j++
				}
				if j+1 >= len(s) || s[j+1] != ']' {
					return nil, fmt.Errorf("unterminated key in path %q", s)
				}
				key, err := strconv.Unquote(s[end : j+1])
				if err != nil {
					return nil, fmt.Errorf("invalid key in path %q: %w", s, err)
				}
				p = append(p, Key(key))
				i = j + 2
				continue
			}
			j := strings.IndexByte(s[end:], ']')
			if j < 0 {
				return nil, fmt.Errorf("unterminated index in path %q", s)
			}
			n, err := strconv.Atoi(s[end : end+j])
			if err != nil {
				return nil, fmt.Errorf("invalid index in path %q: %w", s, err)
			}
			p = append(p, Index(n))
			i = end + j + 1
		default:
			j := i
			for j < len(s) && s[j] != '.' && s[j] != '[' {
				j++
			}
			p = append(p, Key(s[i:j]))
			i = j
		}
	}
	return p, nil
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}
