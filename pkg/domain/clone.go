package domain

import "fmt"

// CloneMethod selects how Clone treats owned children and link targets.
type CloneMethod int

const (
	// CloneCLN duplicates the structure: owned children are deep-copied and
	// non-template link targets are copied; templates are aliased unless
	// recurse is set.
	CloneCLN CloneMethod = iota + 1
	// CloneRPL builds a standalone replica: owned children are deep-copied,
	// templates are aliased and every other external target is broken.
	CloneRPL
	// CloneREV bumps the revision of the identity fields only; children and
	// links are shared with the source.
	CloneREV
	// CloneBRK produces a terminal broken placeholder.
	CloneBRK
)

func (m CloneMethod) String() string {
	switch m {
	case CloneCLN:
		return "CLN"
	case CloneRPL:
		return "RPL"
	case CloneREV:
		return "REV"
	case CloneBRK:
		return "BRK"
	default:
		return fmt.Sprintf("CloneMethod(%d)", int(m))
	}
}

// CloneContext is the read-only context a clone runs in. Root is the
// document root used for revision numbering; Registry may be nil.
type CloneContext struct {
	Root     Object
	Registry *Registry
}

// Clone returns a copy of obj made with method. Links whose targets are
// themselves copied during the same call are rebound to those copies, so a
// cloned subtree keeps its internal references. A nil context root is a
// programmer error.
func Clone(obj Object, method CloneMethod, recurse bool, cx CloneContext) Object {
	if IsNil(cx.Root) {
		panic(ErrInvariant{Op: "Clone", Detail: "nil context root"})
	}
	if IsNil(obj) {
		return obj
	}
	switch method {
	case CloneBRK:
		return hollow(obj, CloneBRK)
	case CloneREV:
		cp := shallow(obj)
		b := cp.Meta()
		b.UID = UIDNew
		b.Template = false
		b.Broken = false
		b.Revision = NextRevision(obj, cx.Registry, cx.Root)
		return cp
	case CloneCLN, CloneRPL:
		if method == CloneRPL {
			recurse = true
		}
		c := &cloner{method: method, recurse: recurse, cx: cx, memo: make(map[Object]Object)}
		out := c.structure(obj)
		if method == CloneRPL {
			out.Meta().Revision = NextRevision(obj, cx.Registry, cx.Root)
		}
		c.resolve()
		return out
	default:
		panic(ErrInvariant{Op: "Clone", Detail: "unknown method " + method.String()})
	}
}

// CloneAs is the typed form of Clone.
func CloneAs[T Object](obj T, method CloneMethod, recurse bool, cx CloneContext) T {
	return Clone(obj, method, recurse, cx).(T)
}

type cloner struct {
	method  CloneMethod
	recurse bool
	cx      CloneContext
	memo    map[Object]Object
	pending []Object
}

// structure copies src and its owned subtree, leaving links for resolve.
// A node copied earlier through a link is reused and moved under the copy
// of its owner.
func (c *cloner) structure(src Object) Object {
	if dst, ok := c.memo[src]; ok {
		return dst
	}
	dst := hollow(src, c.method)
	c.memo[src] = dst
	c.pending = append(c.pending, src)
	for _, child := range Children(src) {
		cp := c.structure(child)
		if err := AttachChild(dst, cp); err != nil {
			panic(ErrInvariant{Op: "Clone", Detail: err.Error()})
		}
	}
	return dst
}

// resolve rebinds the links of every copied node. Targets deep-copied here
// enqueue their own links, so the loop runs until the copy closes.
func (c *cloner) resolve() {
	for len(c.pending) > 0 {
		src := c.pending[0]
		c.pending = c.pending[1:]
		dst := c.memo[src]
		srcEdges, dstEdges := Edges(src), Edges(dst)
		for i, e := range srcEdges {
			if IsNil(e.Target) {
				continue
			}
			dstEdges[i].Rebind(c.link(e.Target))
		}
	}
}

// link applies the alias/copy/break decision to one link target.
func (c *cloner) link(target Object) Object {
	if dst, ok := c.memo[target]; ok {
		return dst
	}
	b := target.Meta()
	if b.Broken {
		return hollow(target, CloneBRK)
	}
	switch c.method {
	case CloneRPL:
		if b.Template {
			return target
		}
		ph := hollow(target, CloneBRK)
		c.memo[target] = ph
		return ph
	default:
		if b.Template && !c.recurse {
			return target
		}
		return c.structure(target)
	}
}

// hollow copies obj's identity and payload fields and clears owned
// children and links. With CloneBRK the copy becomes a broken placeholder.
func hollow(obj Object, method CloneMethod) Object {
	cp := shallow(obj)
	switch o := cp.(type) {
	case *Universe:
		o.Elements = make(map[Module][]*Element)
		o.Spatial = nil
		o.Report = nil
		o.Trials = nil
	case *Element:
		o.EClass.Clear()
		o.Actions = nil
		o.Attributes = nil
	case *Action:
		o.Dataset.Clear()
		o.Transform.Clear()
		o.Timesteps = nil
		if len(o.Related) > 0 {
			o.Related = make([]Link[*Element], len(o.Related))
		}
	case *Timestep:
		o.Dataset.Clear()
	case *Attribute, *EClass, *Spatial, *Report, *Trial:
	default:
		panic(unknownKind("hollow", obj))
	}
	b := cp.Meta()
	b.Template = false
	b.ParentUID = 0
	if method == CloneBRK {
		b.UID = UIDBroken
		b.Broken = true
		if a, ok := cp.(*Action); ok {
			a.Related = nil
		}
		return cp
	}
	b.UID = UIDNew
	b.Broken = false
	b.Locked = false
	return cp
}

// shallow copies obj's struct, duplicating slices so the copy never shares
// backing arrays with the source. Owned children and link targets are
// shared until hollow clears them.
func shallow(obj Object) Object {
	var cp Object
	switch o := obj.(type) {
	case *Universe:
		v := *o
		v.Elements = make(map[Module][]*Element, len(o.Elements))
		for m, list := range o.Elements {
			v.Elements[m] = append([]*Element(nil), list...)
		}
		v.Trials = append([]*Trial(nil), o.Trials...)
		cp = &v
	case *Element:
		v := *o
		v.Actions = append([]*Action(nil), o.Actions...)
		v.Attributes = append([]*Attribute(nil), o.Attributes...)
		cp = &v
	case *Action:
		v := *o
		v.Related = append([]Link[*Element](nil), o.Related...)
		v.Timesteps = append([]*Timestep(nil), o.Timesteps...)
		cp = &v
	case *Attribute:
		v := *o
		cp = &v
	case *Timestep:
		v := *o
		cp = &v
	case *EClass:
		v := *o
		cp = &v
	case *Spatial:
		v := *o
		v.Polygons = make([]Polygon, len(o.Polygons))
		for i, p := range o.Polygons {
			v.Polygons[i] = Polygon{Name: p.Name, Coords: append([]Coord(nil), p.Coords...)}
		}
		cp = &v
	case *Report:
		v := *o
		cp = &v
	case *Trial:
		v := *o
		cp = &v
	default:
		panic(unknownKind("shallow", obj))
	}
	cp.Meta().removed = nil
	return cp
}
