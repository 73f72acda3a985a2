package domain

import "sort"

// AllElements returns the universe's elements module by module.
func (u *Universe) AllElements() []*Element {
	var out []*Element
	for _, m := range modules {
		out = append(out, u.Elements[m]...)
	}
	return out
}

// ElementsOf returns the elements of one module.
func (u *Universe) ElementsOf(m Module) []*Element {
	return append([]*Element(nil), u.Elements[m]...)
}

// AddElement appends e to its module collection.
func (u *Universe) AddElement(e *Element) {
	if u.Elements == nil {
		u.Elements = make(map[Module][]*Element)
	}
	u.Elements[e.Module] = appendChild(u.Elements[e.Module], e, u.UID)
}

// FindElement looks an element up by uid.
func (u *Universe) FindElement(uid int) (*Element, bool) {
	for _, e := range u.AllElements() {
		if e.UID == uid {
			return e, true
		}
	}
	return nil, false
}

// RemoveElement detaches e, retargets every link in the universe that
// pointed at it to a broken placeholder, and queues e for deletion on the
// next save. It returns the placeholder, or nil when e is not owned here.
func (u *Universe) RemoveElement(e *Element) *Element {
	list, ok := removeChild(u.Elements[e.Module], e)
	if !ok {
		return nil
	}
	u.Elements[e.Module] = list
	return detach(u, e).(*Element)
}

// AddTrial appends a trial.
func (u *Universe) AddTrial(t *Trial) {
	u.Trials = appendChild(u.Trials, t, u.UID)
}

// RemoveTrial detaches t and queues it for deletion.
func (u *Universe) RemoveTrial(t *Trial) bool {
	list, ok := removeChild(u.Trials, t)
	if !ok {
		return false
	}
	u.Trials = list
	u.removed = append(u.removed, t)
	return true
}

// AddAction appends an action.
func (e *Element) AddAction(a *Action) {
	e.Actions = appendChild(e.Actions, a, e.UID)
}

// AddAttribute appends an attribute.
func (e *Element) AddAttribute(a *Attribute) {
	e.Attributes = appendChild(e.Attributes, a, e.UID)
}

// FindAction looks an action up by shortname.
func (e *Element) FindAction(shortname string) (*Action, bool) {
	for _, a := range e.Actions {
		if a.Shortname == shortname {
			return a, true
		}
	}
	return nil, false
}

// FindAttribute looks an attribute up by shortname.
func (e *Element) FindAttribute(shortname string) (*Attribute, bool) {
	for _, a := range e.Attributes {
		if a.Shortname == shortname {
			return a, true
		}
	}
	return nil, false
}

// RemoveAction detaches a, retargets every link in the element's subtree
// that pointed at it to a broken placeholder, and queues a for deletion.
func (e *Element) RemoveAction(a *Action) *Action {
	list, ok := removeChild(e.Actions, a)
	if !ok {
		return nil
	}
	e.Actions = list
	return detach(e, a).(*Action)
}

// RemoveAttribute detaches a, retargets every link in the element's
// subtree that pointed at it to a broken placeholder, and queues a for deletion.
func (e *Element) RemoveAttribute(a *Attribute) *Attribute {
	list, ok := removeChild(e.Attributes, a)
	if !ok {
		return nil
	}
	e.Attributes = list
	return detach(e, a).(*Attribute)
}

// AddTimestep appends a timestep.
func (a *Action) AddTimestep(t *Timestep) {
	a.Timesteps = appendChild(a.Timesteps, t, a.UID)
}

// RemoveTimestep detaches t and queues it for deletion.
func (a *Action) RemoveTimestep(t *Timestep) bool {
	list, ok := removeChild(a.Timesteps, t)
	if !ok {
		return false
	}
	a.Timesteps = list
	a.removed = append(a.removed, t)
	return true
}

// AddRelated appends a related-element link.
func (a *Action) AddRelated(e *Element) {
	a.Related = append(a.Related, LinkTo(e))
}

// RelatedElements returns the set related-element targets in order.
func (a *Action) RelatedElements() []*Element {
	out := make([]*Element, 0, len(a.Related))
	for _, l := range a.Related {
		if l.IsSet() {
			out = append(out, l.Target())
		}
	}
	return out
}

func detach(parent, child Object) Object {
	ph := Broken(child)
	ReplaceLinkWith(parent, child, ph)
	parent.Meta().removed = append(parent.Meta().removed, child)
	return ph
}

// Removed returns the owned children detached from obj since the last save.
func Removed(obj Object) []Object {
	return append([]Object(nil), obj.Meta().removed...)
}

func clearRemoved(obj Object) {
	obj.Meta().removed = nil
}

func appendChild[T Object](list []T, child T, parentUID int) []T {
	b := child.Meta()
	if !b.Template {
		b.ParentUID = parentUID
	}
	if b.Position <= 0 {
		b.Position = len(list) + 1
	}
	return append(list, child)
}

func removeChild[T Object](list []T, child T) ([]T, bool) {
	for i, c := range list {
		if Object(c) == Object(child) {
			out := append(list[:i:i], list[i+1:]...)
			Reposition(out)
			return out, true
		}
	}
	return list, false
}

// Reposition rewrites positions as a contiguous 1-based ranking that keeps
// the current relative order (ties keep slice order).
func Reposition[T Object](list []T) {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Meta().Position < list[j].Meta().Position
	})
	for i, c := range list {
		c.Meta().Position = i + 1
	}
}

// MoveUp swaps the child at idx with its predecessor and renumbers.
func MoveUp[T Object](list []T, idx int) bool {
	if idx <= 0 || idx >= len(list) {
		return false
	}
	list[idx-1], list[idx] = list[idx], list[idx-1]
	for i, c := range list {
		c.Meta().Position = i + 1
	}
	return true
}

// MoveDown swaps the child at idx with its successor and renumbers.
func MoveDown[T Object](list []T, idx int) bool {
	return MoveUp(list, idx+1)
}

// RepositionAll applies Reposition to every sibling collection under obj.
func RepositionAll(obj Object) {
	Walk(obj, func(o Object) bool {
		switch v := o.(type) {
		case *Universe:
			for _, m := range modules {
				Reposition(v.Elements[m])
			}
			Reposition(v.Trials)
		case *Element:
			Reposition(v.Actions)
			Reposition(v.Attributes)
		case *Action:
			Reposition(v.Timesteps)
		}
		return true
	})
}

// FindParent returns the object in root's subtree that owns child.
func FindParent(root, child Object) (Object, bool) {
	var parent Object
	Walk(root, func(o Object) bool {
		if parent != nil {
			return false
		}
		for _, c := range Children(o) {
			if c == child {
				parent = o
				return false
			}
		}
		return true
	})
	return parent, parent != nil
}

// ReplaceChild swaps old for repl in parent's owned collection, keeping
// old's position. Both must be of the same kind.
func ReplaceChild(parent, old, repl Object) bool {
	if IsNil(old) || IsNil(repl) || old.Type() != repl.Type() {
		return false
	}
	owned := false
	for _, c := range Children(parent) {
		if c == old {
			owned = true
			break
		}
	}
	if !owned {
		return false
	}
	rb := repl.Meta()
	rb.Position = old.Meta().Position
	if !rb.Template {
		rb.ParentUID = parent.Meta().UID
	}
	switch p := parent.(type) {
	case *Universe:
		switch r := repl.(type) {
		case *Element:
			o := old.(*Element)
			list := p.Elements[o.Module]
			for i := range list {
				if list[i] == o {
					if r.Module == o.Module {
						list[i] = r
					} else {
						p.Elements[o.Module] = append(list[:i:i], list[i+1:]...)
						p.Elements[r.Module] = append(p.Elements[r.Module], r)
						rb.Position = len(p.Elements[r.Module])
						Reposition(p.Elements[o.Module])
					}
					break
				}
			}
		case *Spatial:
			p.Spatial = r
		case *Report:
			p.Report = r
		case *Trial:
			replaceIn(p.Trials, old.(*Trial), r)
		}
	case *Element:
		switch r := repl.(type) {
		case *Action:
			replaceIn(p.Actions, old.(*Action), r)
		case *Attribute:
			replaceIn(p.Attributes, old.(*Attribute), r)
		}
	case *Action:
		replaceIn(p.Timesteps, old.(*Timestep), repl.(*Timestep))
	default:
		return false
	}
	return true
}

func replaceIn[T Object](list []T, old, repl T) {
	for i := range list {
		if Object(list[i]) == Object(old) {
			list[i] = repl
			return
		}
	}
}
