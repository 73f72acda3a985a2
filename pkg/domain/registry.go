package domain

// Registry holds the canonical template objects of one document, per kind.
// Membership and Base.Template are kept in step by Add and Remove; nothing
// outside this package should toggle Base.Template directly.
type Registry struct {
	lists map[ObjType][]Object
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{lists: make(map[ObjType][]Object)}
}

// Add registers obj as a template, marking it Template with ParentUID 0.
// Registering an object already present (same instance, or same kind and
// persisted uid) is a no-op. It reports whether obj was newly added.
func (r *Registry) Add(obj Object) bool {
	if IsNil(obj) {
		return false
	}
	if _, ok := r.find(obj); ok {
		return false
	}
	b := obj.Meta()
	b.Template = true
	b.ParentUID = 0
	t := obj.Type()
	r.lists[t] = append(r.lists[t], obj)
	return true
}

// Remove unregisters obj and clears its Template flag. Referrers are not
// touched; callers decide whether to break links still pointing at obj.
func (r *Registry) Remove(obj Object) bool {
	if IsNil(obj) {
		return false
	}
	idx, ok := r.find(obj)
	if !ok {
		return false
	}
	t := obj.Type()
	list := r.lists[t]
	removed := list[idx]
	r.lists[t] = append(list[:idx:idx], list[idx+1:]...)
	removed.Meta().Template = false
	obj.Meta().Template = false
	return true
}

// Contains reports registry membership.
func (r *Registry) Contains(obj Object) bool {
	if IsNil(obj) {
		return false
	}
	_, ok := r.find(obj)
	return ok
}

// List returns the templates of kind t in registration order. ObjAll
// returns the union in canonical kind order.
func (r *Registry) List(t ObjType) []Object {
	if t == ObjAll {
		var out []Object
		for _, kind := range objTypes {
			out = append(out, r.lists[kind]...)
		}
		return out
	}
	return append([]Object(nil), r.lists[t]...)
}

// Get looks a template up by kind and persisted uid.
func (r *Registry) Get(t ObjType, uid int) (Object, bool) {
	if uid <= 0 {
		return nil, false
	}
	for _, o := range r.lists[t] {
		if o.Meta().UID == uid {
			return o, true
		}
	}
	return nil, false
}

// Match returns the first template structurally equal (superficially) to obj.
func (r *Registry) Match(obj Object) (Object, bool) {
	if IsNil(obj) {
		return nil, false
	}
	for _, o := range r.lists[obj.Type()] {
		if Compare(o, obj, true) {
			return o, true
		}
	}
	return nil, false
}

// Len returns the number of registered templates across all kinds.
func (r *Registry) Len() int {
	n := 0
	for _, list := range r.lists {
		n += len(list)
	}
	return n
}

func (r *Registry) find(obj Object) (int, bool) {
	for i, o := range r.lists[obj.Type()] {
		if SameObject(o, obj) {
			return i, true
		}
	}
	return -1, false
}

// TemplatesOf returns the templates of the kind carried by T.
func TemplatesOf[T Object](r *Registry) []T {
	var zero T
	var out []T
	for _, o := range r.lists[zero.Type()] {
		out = append(out, o.(T))
	}
	return out
}
