package domain

import (
	"context"
	"errors"
	"fmt"
)

// Document is one universe together with the template registry it owns.
// A Document is not safe for concurrent use; independent documents never
// share a registry.
type Document struct {
	Root      *Universe
	Templates *Registry
	Config    EngineConfig
	Rules     *RulesEngine

	pending *DeleteQueue
	linked  templateLinks
}

// templateLinks maps a referring object's uid to the templates it links.
type templateLinks map[int]UIDSet

func (l templateLinks) add(parentUID int, t ObjType, uid int) {
	if parentUID <= 0 || uid <= 0 {
		return
	}
	set, ok := l[parentUID]
	if !ok {
		set = make(UIDSet)
		l[parentUID] = set
	}
	set.Add(t, uid)
}

// NewDocument wraps root with a fresh registry.
func NewDocument(root *Universe, cfg EngineConfig) *Document {
	return &Document{
		Root:      root,
		Templates: NewRegistry(),
		Config:    cfg,
		Rules:     NewDefaultRulesEngine(),
		pending:   NewDeleteQueue(),
		linked:    make(templateLinks),
	}
}

// CloneContext returns the context clones of this document run in.
func (d *Document) CloneContext() CloneContext {
	return CloneContext{Root: d.Root, Registry: d.Templates}
}

// Clone clones obj within the document.
func (d *Document) Clone(obj Object, method CloneMethod, recurse bool) Object {
	return Clone(obj, method, recurse, d.CloneContext())
}

// Template registers obj's subtree with the document registry.
func (d *Document) Template(obj Object) bool {
	return Template(obj, d.Templates, d.Config)
}

// UnsetAsTemplate unregisters obj from the document registry. Links held
// by the root or by remaining templates that point at an untemplated object
// not owned by the root are retargeted to a broken placeholder, so no link
// is left local to an unreachable object. It reports whether obj was a
// template and how many links were broken.
func (d *Document) UnsetAsTemplate(obj Object, parentUID int, recurse bool) (bool, int) {
	if !UnsetAsTemplate(obj, d.Templates, parentUID, recurse) {
		return false, 0
	}
	var freed []Object
	Walk(obj, func(o Object) bool {
		if o.Meta().Template {
			return false
		}
		if !Contains(d.Root, o) {
			freed = append(freed, o)
		}
		return recurse
	})
	holders := append([]Object{d.Root}, d.Templates.List(ObjAll)...)
	broken := 0
	for _, o := range freed {
		var ph Object
		for _, h := range holders {
			if !IsLinked(h, o) {
				continue
			}
			if ph == nil {
				ph = Broken(o)
			}
			broken += ReplaceLinkWith(h, o, ph)
		}
	}
	return true, broken
}

// Repair runs RepairLinks over obj against the document root and registry.
func (d *Document) Repair(obj Object, onlyBroken bool, scope Object) int {
	return RepairLinks(obj, onlyBroken, d.Root, scope, d.Templates, d.Config)
}

// Extract returns a structural duplicate of obj whose links reaching
// outside the duplicate are broken. The document is left unchanged.
func (d *Document) Extract(obj Object) Object {
	cp := d.Clone(obj, CloneCLN, false)
	BreakLinks(cp, cp, cp)
	return cp
}

// Import adopts obj, typically decoded from an archive, under parent (the
// root when parent is nil). Templates linked from obj are reconciled with
// the registry: a superficially equal registered template replaces the
// imported copy, otherwise the copy is registered. Links are then repaired
// against obj's own subtree and the document.
func (d *Document) Import(obj, parent Object) (int, error) {
	if IsNil(obj) {
		return 0, errors.New("import: nil object")
	}
	if IsNil(parent) {
		parent = d.Root
	}
	d.adoptTemplates(obj)
	if !SameObject(obj, parent) {
		if err := AttachChild(parent, obj); err != nil {
			return 0, fmt.Errorf("import: %w", err)
		}
	}
	return d.Repair(obj, false, obj), nil
}

func (d *Document) adoptTemplates(obj Object) {
	adopted := make(map[Object]Object)
	adopt := func(t Object) Object {
		if got, ok := adopted[t]; ok {
			return got
		}
		got := t
		switch m, ok := d.Templates.Match(t); {
		case d.Templates.Contains(t):
		case ok:
			got = m
		default:
			Walk(t, func(o Object) bool {
				d.Templates.Add(o)
				return true
			})
		}
		adopted[t] = got
		return got
	}
	if obj.Meta().Template {
		adopt(obj)
	}
	for _, e := range SubtreeEdges(obj) {
		if e.Kind() != LinkTemplate {
			continue
		}
		if got := adopt(e.Target); got != e.Target {
			e.Rebind(got)
		}
	}
}

// ReplaceModified swaps old for revised everywhere in the document:
// revised takes old's place among its siblings and every link to old is
// retargeted to revised. When old was a template it leaves the registry,
// revised takes its place there and the next save unlinks old; otherwise
// old is queued for deletion on the next save.
func (d *Document) ReplaceModified(old, revised Object) error {
	if IsNil(old) || IsNil(revised) {
		return errors.New("replace modified: nil object")
	}
	if old.Type() != revised.Type() {
		return fmt.Errorf("replace modified: %s cannot replace %s", revised.Type(), old.Type())
	}
	wasTemplate := old.Meta().Template
	if parent, ok := FindParent(d.Root, old); ok {
		ReplaceChild(parent, old, revised)
	}
	ReplaceLinkWith(d.Root, old, revised)
	for _, t := range d.Templates.List(ObjAll) {
		ReplaceLinkWith(t, old, revised)
	}
	if wasTemplate {
		d.Templates.Remove(old)
		revised.Meta().Revision = NextRevision(revised, d.Templates, d.Root, old)
		d.Template(revised)
		return nil
	}
	SetHigherVersion(revised, old)
	d.pending.Push(old)
	return nil
}

// Queue schedules obj for deletion on the next save.
func (d *Document) Queue(obj Object) bool {
	return d.pending.Push(obj)
}

// Validate evaluates the document rules over obj (the root when nil).
func (d *Document) Validate(ctx context.Context, obj Object) (Result, error) {
	if IsNil(obj) {
		obj = d.Root
	}
	return d.Rules.Evaluate(ctx, obj)
}

// Save validates the root, normalizes positions and persists the root with
// its subtree. It then records the template links of every object, flushes
// pending deletions and unlinks templates no longer referenced. Templates
// left without any referrer that are no longer registered are deleted.
// Blocking violations abort the save with a RuleViolationError.
func (d *Document) Save(ctx context.Context, st Storage) (Result, error) {
	if d.Root == nil {
		return Result{}, errors.New("save: document has no root")
	}
	res, err := d.Validate(ctx, d.Root)
	if err != nil {
		return Result{}, fmt.Errorf("save: validate: %w", err)
	}
	if res.HasBlocking() {
		return res, RuleViolationError{Result: res}
	}

	RepositionAll(d.Root)
	if err := st.Save(ctx, d.Root, true); err != nil {
		return res, fmt.Errorf("save universe %q: %w", d.Root.Shortname, err)
	}

	current := collectTemplateLinks(d.Root)
	for parentUID, set := range current {
		for _, t := range set.Types() {
			for _, uid := range set.UIDs(t) {
				tmpl, ok := d.Templates.Get(t, uid)
				if !ok {
					tmpl = NewBlank(t, uid)
				}
				if err := st.LinkTemplate(ctx, parentUID, tmpl); err != nil {
					return res, fmt.Errorf("link template %s %d: %w", t, uid, err)
				}
			}
		}
	}

	for _, obj := range collectRemoved(d.Root) {
		d.pending.Push(obj)
	}
	for _, obj := range d.pending.Drain() {
		if obj.Meta().Template {
			// decided by the link diff below
			continue
		}
		if err := st.Delete(ctx, obj, true); err != nil && !IsNotFound(err) {
			return res, fmt.Errorf("delete %s %d: %w", obj.Type(), obj.Meta().UID, err)
		}
	}

	for parentUID, prev := range d.linked {
		stale := prev
		if cur, ok := current[parentUID]; ok {
			stale = prev.Difference(cur)
		}
		for _, t := range stale.Types() {
			for _, uid := range stale.UIDs(t) {
				if err := d.unlink(ctx, st, parentUID, t, uid, current); err != nil {
					return res, err
				}
			}
		}
	}
	d.linked = current
	Walk(d.Root, func(o Object) bool {
		clearRemoved(o)
		return true
	})
	return res, nil
}

func (d *Document) unlink(ctx context.Context, st Storage, parentUID int, t ObjType, uid int, current templateLinks) error {
	if err := st.UnlinkTemplate(ctx, parentUID, uid, t); err != nil {
		return fmt.Errorf("unlink template %s %d: %w", t, uid, err)
	}
	if _, registered := d.Templates.Get(t, uid); registered || current.references(t, uid) {
		return nil
	}
	used, err := st.TemplateUsedByOther(ctx, parentUID, uid, t)
	if err != nil {
		return fmt.Errorf("template %s %d usage: %w", t, uid, err)
	}
	if used {
		return nil
	}
	if err := st.Delete(ctx, NewBlank(t, uid), true); err != nil && !IsNotFound(err) {
		return fmt.Errorf("delete orphaned template %s %d: %w", t, uid, err)
	}
	return nil
}

func (l templateLinks) references(t ObjType, uid int) bool {
	for _, set := range l {
		if set.Contains(t, uid) {
			return true
		}
	}
	return false
}

// collectTemplateLinks records, for every object in root's subtree, the
// templates it owns directly and the templates its links point at.
func collectTemplateLinks(root Object) templateLinks {
	out := make(templateLinks)
	Walk(root, func(o Object) bool {
		owner := o.Meta().UID
		for _, c := range Children(o) {
			if c.Meta().Template {
				out.add(owner, c.Type(), c.Meta().UID)
			}
		}
		for _, e := range Edges(o) {
			if e.Kind() == LinkTemplate {
				out.add(owner, e.TargetType, e.Target.Meta().UID)
			}
		}
		return true
	})
	return out
}

func collectRemoved(root Object) []Object {
	var out []Object
	Walk(root, func(o Object) bool {
		out = append(out, o.Meta().removed...)
		return true
	})
	return out
}

// Load materializes the universe uid from st. The registry is seeded
// first with every persisted template so that objects shared by several
// parents resolve to one instance.
func Load(ctx context.Context, st Storage, uid int, cfg EngineConfig) (*Document, error) {
	doc := NewDocument(nil, cfg)
	loader := NewLoader(st, doc.Templates)
	if err := loader.LoadTemplates(ctx); err != nil {
		return nil, err
	}
	obj, err := loader.Resolve(ctx, ObjUniverse, uid)
	if err != nil {
		return nil, fmt.Errorf("load universe %d: %w", uid, err)
	}
	doc.Root = obj.(*Universe)
	doc.linked = collectTemplateLinks(doc.Root)
	return doc, nil
}

type loadKey struct {
	t   ObjType
	uid int
}

// Loader resolves objects from storage, keeping at most one instance per
// (kind, uid): registered templates first, then objects already loaded.
type Loader struct {
	st    Storage
	reg   *Registry
	cache map[loadKey]Object
}

// NewLoader constructs a loader over st that consults reg.
func NewLoader(st Storage, reg *Registry) *Loader {
	return &Loader{st: st, reg: reg, cache: make(map[loadKey]Object)}
}

// Resolve implements Resolver.
func (l *Loader) Resolve(ctx context.Context, t ObjType, uid int) (Object, error) {
	if uid <= 0 {
		return nil, fmt.Errorf("resolve %s: invalid uid %d", t, uid)
	}
	if l.reg != nil {
		if obj, ok := l.reg.Get(t, uid); ok {
			return obj, nil
		}
	}
	key := loadKey{t: t, uid: uid}
	if obj, ok := l.cache[key]; ok {
		return obj, nil
	}
	obj := NewBlank(t, uid)
	l.cache[key] = obj
	if err := l.st.Load(ctx, obj, l); err != nil {
		delete(l.cache, key)
		return nil, err
	}
	return obj, nil
}

// LoadTemplates registers every persisted template.
func (l *Loader) LoadTemplates(ctx context.Context) error {
	if l.reg == nil {
		return errors.New("load templates: no registry")
	}
	for _, t := range objTypes {
		uids, err := l.st.TemplateUIDs(ctx, t)
		if err != nil {
			return fmt.Errorf("list %s templates: %w", t, err)
		}
		for _, uid := range uids {
			obj, err := l.Resolve(ctx, t, uid)
			if err != nil {
				return fmt.Errorf("load %s template %d: %w", t, uid, err)
			}
			l.reg.Add(obj)
		}
	}
	return nil
}
