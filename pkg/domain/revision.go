package domain

import (
	"strconv"
	"strings"
)

// Revision is a parsed dotted version string such as "3" or "2.1".
type Revision []int

// ParseRevision parses s. Malformed input (empty, non-numeric or negative
// components) yields revision 0 rather than an error.
func ParseRevision(s string) Revision {
	s = strings.TrimSpace(s)
	if s == "" {
		return Revision{0}
	}
	parts := strings.Split(s, ".")
	out := make(Revision, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return Revision{0}
		}
		out = append(out, n)
	}
	return out
}

func (r Revision) String() string {
	if len(r) == 0 {
		return "0"
	}
	parts := make([]string, len(r))
	for i, n := range r {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ".")
}

// Major returns the leading component.
func (r Revision) Major() int {
	if len(r) == 0 {
		return 0
	}
	return r[0]
}

// Compare returns -1, 0 or 1. Missing trailing components count as zero.
func (r Revision) Compare(other Revision) int {
	n := len(r)
	if len(other) > n {
		n = len(other)
	}
	for i := 0; i < n; i++ {
		var a, b int
		if i < len(r) {
			a = r[i]
		}
		if i < len(other) {
			b = other[i]
		}
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		}
	}
	return 0
}

// NextMajor returns the first major revision above r.
func (r Revision) NextMajor() Revision {
	return Revision{r.Major() + 1}
}

// NextRevision returns a major revision strictly greater than the revision
// of obj and of every object of the same kind found in the registry, in
// root's owned closure, and among the supplied in-flight replicas.
func NextRevision(obj Object, reg *Registry, root Object, inflight ...Object) string {
	t := obj.Type()
	highest := ParseRevision(obj.Meta().Revision)
	consider := func(o Object) {
		if IsNil(o) || o.Type() != t {
			return
		}
		if rev := ParseRevision(o.Meta().Revision); rev.Compare(highest) > 0 {
			highest = rev
		}
	}
	if reg != nil {
		for _, o := range reg.List(t) {
			consider(o)
		}
	}
	if !IsNil(root) {
		Walk(root, func(o Object) bool {
			consider(o)
			return true
		})
	}
	for _, o := range inflight {
		consider(o)
	}
	return highest.NextMajor().String()
}

// SetHigherVersion bumps self above other when other's revision is not
// lower than self's. It reports whether self changed.
func SetHigherVersion(self, other Object) bool {
	if IsNil(self) || IsNil(other) {
		return false
	}
	mine := ParseRevision(self.Meta().Revision)
	theirs := ParseRevision(other.Meta().Revision)
	if theirs.Compare(mine) < 0 {
		return false
	}
	self.Meta().Revision = theirs.NextMajor().String()
	return true
}
