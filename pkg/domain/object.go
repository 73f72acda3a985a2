package domain

import "fmt"

// Object is the closed set of entity kinds. Only the nine entity pointer
// types in this package implement it; every dispatch over Object is an
// exhaustive type switch.
type Object interface {
	Meta() *Base
	Type() ObjType
	sealed()
}

func (*Universe) sealed()  {}
func (*Element) sealed()   {}
func (*Action) sealed()    {}
func (*Attribute) sealed() {}
func (*Timestep) sealed()  {}
func (*EClass) sealed()    {}
func (*Spatial) sealed()   {}
func (*Report) sealed()    {}
func (*Trial) sealed()     {}

// Type implements Object.
func (*Universe) Type() ObjType { return ObjUniverse }

// Type implements Object.
func (*Element) Type() ObjType { return ObjElement }

// Type implements Object.
func (*Action) Type() ObjType { return ObjAction }

// Type implements Object.
func (*Attribute) Type() ObjType { return ObjAttribute }

// Type implements Object.
func (*Timestep) Type() ObjType { return ObjTimestep }

// Type implements Object.
func (*EClass) Type() ObjType { return ObjEClass }

// Type implements Object.
func (*Spatial) Type() ObjType { return ObjSpatial }

// Type implements Object.
func (*Report) Type() ObjType { return ObjReport }

// Type implements Object.
func (*Trial) Type() ObjType { return ObjTrial }

// ErrInvariant reports a programmer error: an unknown kind or a broken
// engine precondition. It is raised with panic, never returned.
type ErrInvariant struct {
	Op     string
	Detail string
}

func (e ErrInvariant) Error() string {
	return fmt.Sprintf("domain invariant violated in %s: %s", e.Op, e.Detail)
}

func unknownKind(op string, obj any) ErrInvariant {
	return ErrInvariant{Op: op, Detail: fmt.Sprintf("unknown object kind %T", obj)}
}

// IsNil reports whether obj is nil or a typed nil entity pointer.
func IsNil(obj Object) bool {
	switch v := obj.(type) {
	case nil:
		return true
	case *Universe:
		return v == nil
	case *Element:
		return v == nil
	case *Action:
		return v == nil
	case *Attribute:
		return v == nil
	case *Timestep:
		return v == nil
	case *EClass:
		return v == nil
	case *Spatial:
		return v == nil
	case *Report:
		return v == nil
	case *Trial:
		return v == nil
	default:
		panic(unknownKind("IsNil", obj))
	}
}

// NewBlank returns an empty instance of kind t carrying uid.
func NewBlank(t ObjType, uid int) Object {
	var obj Object
	switch t {
	case ObjUniverse:
		obj = &Universe{Elements: make(map[Module][]*Element)}
	case ObjElement:
		obj = &Element{}
	case ObjAction:
		obj = &Action{}
	case ObjAttribute:
		obj = &Attribute{}
	case ObjTimestep:
		obj = &Timestep{}
	case ObjEClass:
		obj = &EClass{}
	case ObjSpatial:
		obj = &Spatial{}
	case ObjReport:
		obj = &Report{}
	case ObjTrial:
		obj = &Trial{}
	default:
		panic(ErrInvariant{Op: "NewBlank", Detail: fmt.Sprintf("unknown object type %q", t)})
	}
	obj.Meta().UID = uid
	return obj
}

// Children returns the owned children of obj in sibling order.
func Children(obj Object) []Object {
	var out []Object
	switch o := obj.(type) {
	case *Universe:
		for _, e := range o.AllElements() {
			out = append(out, e)
		}
		if o.Spatial != nil {
			out = append(out, o.Spatial)
		}
		if o.Report != nil {
			out = append(out, o.Report)
		}
		for _, t := range o.Trials {
			out = append(out, t)
		}
	case *Element:
		for _, a := range o.Actions {
			out = append(out, a)
		}
		for _, a := range o.Attributes {
			out = append(out, a)
		}
	case *Action:
		for _, t := range o.Timesteps {
			out = append(out, t)
		}
	case *Attribute, *Timestep, *EClass, *Spatial, *Report, *Trial:
	default:
		panic(unknownKind("Children", obj))
	}
	return out
}

// AttachChild appends child to parent's matching owned collection.
func AttachChild(parent, child Object) error {
	switch p := parent.(type) {
	case *Universe:
		switch c := child.(type) {
		case *Element:
			p.AddElement(c)
			return nil
		case *Spatial:
			p.Spatial = c
			c.ParentUID = p.UID
			return nil
		case *Report:
			p.Report = c
			c.ParentUID = p.UID
			return nil
		case *Trial:
			p.AddTrial(c)
			return nil
		}
	case *Element:
		switch c := child.(type) {
		case *Action:
			p.AddAction(c)
			return nil
		case *Attribute:
			p.AddAttribute(c)
			return nil
		}
	case *Action:
		if c, ok := child.(*Timestep); ok {
			p.AddTimestep(c)
			return nil
		}
	}
	return fmt.Errorf("%s cannot own %s", parent.Type(), child.Type())
}

// DetachChild removes child from parent's owned collections. Links inside
// parent that pointed at an element, action or attribute are broken, and
// child is deleted from storage on the next save.
func DetachChild(parent, child Object) error {
	ok := false
	switch p := parent.(type) {
	case *Universe:
		switch c := child.(type) {
		case *Element:
			ok = p.RemoveElement(c) != nil
		case *Trial:
			ok = p.RemoveTrial(c)
		case *Spatial:
			if ok = p.Spatial == c; ok {
				p.Spatial = nil
				p.removed = append(p.removed, c)
			}
		case *Report:
			if ok = p.Report == c; ok {
				p.Report = nil
				p.removed = append(p.removed, c)
			}
		}
	case *Element:
		switch c := child.(type) {
		case *Action:
			ok = p.RemoveAction(c) != nil
		case *Attribute:
			ok = p.RemoveAttribute(c) != nil
		}
	case *Action:
		if c, isStep := child.(*Timestep); isStep {
			ok = p.RemoveTimestep(c)
		}
	}
	if !ok {
		return fmt.Errorf("%s %q does not own %s %q", parent.Type(), parent.Meta().Shortname, child.Type(), child.Meta().Shortname)
	}
	return nil
}

// Walk visits obj and its owned descendants depth-first, parents before
// children. Returning false from fn prunes the subtree below that node.
func Walk(obj Object, fn func(Object) bool) {
	if IsNil(obj) || !fn(obj) {
		return
	}
	for _, child := range Children(obj) {
		Walk(child, fn)
	}
}

// Contains reports whether target is obj or one of its owned descendants.
func Contains(obj, target Object) bool {
	if IsNil(obj) || IsNil(target) {
		return false
	}
	found := false
	Walk(obj, func(o Object) bool {
		if found {
			return false
		}
		if SameObject(o, target) {
			found = true
			return false
		}
		return true
	})
	return found
}

// SameObject reports identity: the same instance, or two persisted
// instances of the same kind carrying the same uid.
func SameObject(a, b Object) bool {
	if IsNil(a) || IsNil(b) {
		return false
	}
	if a == b {
		return true
	}
	if a.Type() != b.Type() {
		return false
	}
	ua, ub := a.Meta().UID, b.Meta().UID
	return ua > 0 && ua == ub
}

// collectOfType gathers non-broken owned descendants of root (root included) of kind t.
func collectOfType(root Object, t ObjType) []Object {
	var out []Object
	Walk(root, func(o Object) bool {
		if o.Type() == t && !o.Meta().Broken {
			out = append(out, o)
		}
		return true
	})
	return out
}
