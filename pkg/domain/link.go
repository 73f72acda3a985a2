package domain

// LinkKind classifies the target of a weak (non-owning) reference.
type LinkKind int

// Link kinds. A set link is exactly one of local, template or broken.
const (
	LinkNone LinkKind = iota
	LinkLocal
	LinkTemplate
	LinkBroken
)

func (k LinkKind) String() string {
	switch k {
	case LinkLocal:
		return "local"
	case LinkTemplate:
		return "template"
	case LinkBroken:
		return "broken"
	default:
		return "none"
	}
}

// Link is a weak reference to an entity owned elsewhere: a local object
// owned by another parent, a registry template, or a broken placeholder.
// The kind is derived from the target's flags with precedence
// broken > template > local, so exactly one holds for a set link.
type Link[T Object] struct {
	target T
}

// LinkTo returns a link pointing at target.
func LinkTo[T Object](target T) Link[T] {
	return Link[T]{target: target}
}

// Target returns the referenced object, which may be a typed nil.
func (l Link[T]) Target() T { return l.target }

// IsSet reports whether the link references anything.
func (l Link[T]) IsSet() bool { return !IsNil(l.target) }

// Kind classifies the current target.
func (l Link[T]) Kind() LinkKind {
	if !l.IsSet() {
		return LinkNone
	}
	return kindOf(l.target)
}

// IsBroken reports whether the link points at a broken placeholder.
func (l Link[T]) IsBroken() bool { return l.Kind() == LinkBroken }

// Set rebinds the link.
func (l *Link[T]) Set(target T) { l.target = target }

// Clear unsets the link.
func (l *Link[T]) Clear() {
	var zero T
	l.target = zero
}

func kindOf(obj Object) LinkKind {
	b := obj.Meta()
	switch {
	case b.Broken:
		return LinkBroken
	case b.Template:
		return LinkTemplate
	default:
		return LinkLocal
	}
}

// Edge is one weak reference held by an object, exposed uniformly so the
// engine can classify, break, repair and retarget links of every kind.
type Edge struct {
	// Owner holds the reference.
	Owner Object
	// Name is the link field name: dataset, transform, related or eclass.
	Name string
	// Index is the position within a list link (related), 0 otherwise.
	Index int
	// TargetType is the kind the link accepts.
	TargetType ObjType
	// Target is the current target, nil when unset.
	Target Object

	rebind func(Object)
}

// Kind classifies the edge's current target.
func (e Edge) Kind() LinkKind {
	if IsNil(e.Target) {
		return LinkNone
	}
	return kindOf(e.Target)
}

// Rebind points the underlying link at target. target must be of TargetType.
func (e *Edge) Rebind(target Object) {
	if !IsNil(target) && target.Type() != e.TargetType {
		panic(ErrInvariant{Op: "Edge.Rebind", Detail: "cannot bind " + string(target.Type()) + " to " + e.Name})
	}
	e.rebind(target)
	e.Target = target
}

// Link names used by Edges and by the record codec.
const (
	LinkDataset   = "dataset"
	LinkTransform = "transform"
	LinkRelated   = "related"
	LinkEClass    = "eclass"
)

// Edges returns the weak references held directly by obj (not by its
// descendants), including unset single links.
func Edges(obj Object) []*Edge {
	switch o := obj.(type) {
	case *Element:
		return []*Edge{{
			Owner: o, Name: LinkEClass, TargetType: ObjEClass, Target: targetOf(o.EClass),
			rebind: func(t Object) { o.EClass.Set(asType[*EClass](t)) },
		}}
	case *Action:
		out := []*Edge{{
			Owner: o, Name: LinkDataset, TargetType: ObjAttribute, Target: targetOf(o.Dataset),
			rebind: func(t Object) { o.Dataset.Set(asType[*Attribute](t)) },
		}}
		if o.IsTimestepKind() {
			out = append(out, &Edge{
				Owner: o, Name: LinkTransform, TargetType: ObjAction, Target: targetOf(o.Transform),
				rebind: func(t Object) { o.Transform.Set(asType[*Action](t)) },
			})
		}
		for i := range o.Related {
			idx := i
			out = append(out, &Edge{
				Owner: o, Name: LinkRelated, Index: idx, TargetType: ObjElement, Target: targetOf(o.Related[idx]),
				rebind: func(t Object) { o.Related[idx].Set(asType[*Element](t)) },
			})
		}
		return out
	case *Timestep:
		return []*Edge{{
			Owner: o, Name: LinkDataset, TargetType: ObjAttribute, Target: targetOf(o.Dataset),
			rebind: func(t Object) { o.Dataset.Set(asType[*Attribute](t)) },
		}}
	case *Universe, *Attribute, *EClass, *Spatial, *Report, *Trial:
		return nil
	default:
		panic(unknownKind("Edges", obj))
	}
}

// SubtreeEdges returns the set edges held by obj and its owned descendants.
func SubtreeEdges(obj Object) []*Edge {
	var out []*Edge
	Walk(obj, func(o Object) bool {
		for _, e := range Edges(o) {
			if !IsNil(e.Target) {
				out = append(out, e)
			}
		}
		return true
	})
	return out
}

// SetLink binds the named link of obj. For the related list the targets
// replace the whole list; single links take at most one target.
func SetLink(obj Object, name string, targets ...Object) bool {
	switch o := obj.(type) {
	case *Element:
		if name == LinkEClass && len(targets) <= 1 {
			o.EClass.Set(asType[*EClass](first(targets)))
			return true
		}
	case *Action:
		switch name {
		case LinkDataset:
			if len(targets) <= 1 {
				o.Dataset.Set(asType[*Attribute](first(targets)))
				return true
			}
		case LinkTransform:
			if len(targets) <= 1 {
				o.Transform.Set(asType[*Action](first(targets)))
				return true
			}
		case LinkRelated:
			o.Related = make([]Link[*Element], 0, len(targets))
			for _, t := range targets {
				o.Related = append(o.Related, LinkTo(asType[*Element](t)))
			}
			return true
		}
	case *Timestep:
		if name == LinkDataset && len(targets) <= 1 {
			o.Dataset.Set(asType[*Attribute](first(targets)))
			return true
		}
	}
	return false
}

func first(objs []Object) Object {
	if len(objs) == 0 {
		return nil
	}
	return objs[0]
}

func targetOf[T Object](l Link[T]) Object {
	if !l.IsSet() {
		return nil
	}
	return l.Target()
}

func asType[T Object](obj Object) T {
	if IsNil(obj) {
		var zero T
		return zero
	}
	t, ok := obj.(T)
	if !ok {
		panic(ErrInvariant{Op: "asType", Detail: "unexpected link target " + string(obj.Type())})
	}
	return t
}
