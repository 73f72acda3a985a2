package domain

// IsLinked reports whether target is referenced by a weak link held by
// self or any of its owned descendants.
func IsLinked(self, target Object) bool {
	if IsNil(target) {
		return false
	}
	for _, e := range SubtreeEdges(self) {
		if SameObject(e.Target, target) {
			return true
		}
	}
	return false
}

// HasBrokenLink reports whether any weak link held in self's subtree
// points at a broken placeholder.
func HasBrokenLink(self Object) bool {
	for _, e := range SubtreeEdges(self) {
		if e.Kind() == LinkBroken {
			return true
		}
	}
	return false
}

// BrokenLinks returns every edge in self's subtree whose target is broken.
func BrokenLinks(self Object) []*Edge {
	var out []*Edge
	for _, e := range SubtreeEdges(self) {
		if e.Kind() == LinkBroken {
			out = append(out, e)
		}
	}
	return out
}

// BreakLinks replaces every local link target in self's subtree that lies
// outside scope with a broken placeholder. Templates are always available
// and are never broken. For related-element links a target is also local
// when root is a Universe owning it, or when it is root itself. It returns
// the number of links broken.
func BreakLinks(self, root, scope Object) int {
	broken := 0
	placeholders := make(map[Object]Object)
	for _, e := range SubtreeEdges(self) {
		if e.Kind() != LinkLocal || isLocal(e, root, scope) {
			continue
		}
		ph, ok := placeholders[e.Target]
		if !ok {
			ph = Broken(e.Target)
			placeholders[e.Target] = ph
		}
		e.Rebind(ph)
		broken++
	}
	return broken
}

func isLocal(e *Edge, root, scope Object) bool {
	if Contains(scope, e.Target) {
		return true
	}
	if e.TargetType != ObjElement {
		return false
	}
	if SameObject(root, e.Target) {
		return true
	}
	if u, ok := root.(*Universe); ok {
		return Contains(u, e.Target)
	}
	return false
}

// ReplaceLinkWith retargets every link in self's subtree that points at
// linkObj to replObj. Nothing happens when the two differ in kind. It
// returns the number of links retargeted.
func ReplaceLinkWith(self, linkObj, replObj Object) int {
	if IsNil(linkObj) || IsNil(replObj) || linkObj.Type() != replObj.Type() {
		return 0
	}
	n := 0
	for _, e := range SubtreeEdges(self) {
		if SameObject(e.Target, linkObj) {
			e.Rebind(replObj)
			n++
		}
	}
	return n
}

// Broken returns a broken placeholder standing in for obj: identity and
// payload fields are kept for later repair, children and links are not.
func Broken(obj Object) Object {
	return hollow(obj, CloneBRK)
}

// BrokenAs is the typed form of Broken.
func BrokenAs[T Object](obj T) T {
	return Broken(obj).(T)
}
