package hierarchy

import "fmt"

// Path is the materialized ancestor path of a node: one id per ancestor level,
// root first. An exam has an empty path; a chapter has [exam, subject, unit].
type Path []string

// Validate checks the path has exactly one well-formed id per ancestor of kind.
func (p Path) Validate(kind Kind) error {
	if len(p) != kind.Depth() {
		return invalidArg("%s needs %d ancestor ids, got %d", kind, kind.Depth(), len(p))
	}
	for i, id := range p {
		if err := ValidateID(id); err != nil {
			return fmt.Errorf("%s: %w", Chain[i].IDField(), err)
		}
	}
	return nil
}

// ID returns the ancestor id stored for level k, or "" when k is not above the path.
func (p Path) ID(k Kind) string {
	i := int(k - KindExam)
	if i < 0 || i >= len(p) {
		return ""
	}
	return p[i]
}

// Parent returns the immediate parent id, or "" for a root path.
func (p Path) Parent() string {
	if len(p) == 0 {
		return ""
	}
	return p[len(p)-1]
}

// Child returns the path of a child of the node identified by id.
func (p Path) Child(id string) Path {
	out := make(Path, len(p), len(p)+1)
	copy(out, p)
	return append(out, id)
}

// HasPrefix reports whether prefix is a leading segment of p.
func (p Path) HasPrefix(prefix Path) bool {
	if len(prefix) > len(p) {
		return false
	}
	for i := range prefix {
		if p[i] != prefix[i] {
			return false
		}
	}
	return true
}

// Fields maps each ancestor id column to its value.
func (p Path) Fields() map[string]string {
	out := make(map[string]string, len(p))
	for i, id := range p {
		out[Chain[i].IDField()] = id
	}
	return out
}
