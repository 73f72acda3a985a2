package domain

// EngineConfig carries the switches that steer repair and templating.
// It is passed explicitly into every call that depends on it.
type EngineConfig struct {
	// AutoMatchTemplates lets RepairLinks on a template fall back to
	// registry templates when no local candidate matches.
	AutoMatchTemplates bool
	// TemplateLinkedObjects makes Template register non-template link
	// targets as templates too, instead of breaking those links.
	TemplateLinkedObjects bool
}

// DefaultEngineConfig returns the editor defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{AutoMatchTemplates: true}
}

// Template registers obj and its owned subtree as templates. Link targets
// that are neither templates nor broken and lie outside the subtree are
// either templated as well (TemplateLinkedObjects) or replaced by broken
// placeholders, so a template never depends on mutable local state.
// Templates and broken objects are left untouched. It reports whether obj
// was templated by this call.
func Template(obj Object, reg *Registry, cfg EngineConfig) bool {
	if IsNil(obj) || reg == nil {
		return false
	}
	b := obj.Meta()
	if b.Template || b.Broken {
		return false
	}
	Walk(obj, func(o Object) bool {
		if !o.Meta().Broken {
			reg.Add(o)
		}
		return true
	})
	placeholders := make(map[Object]Object)
	for _, e := range SubtreeEdges(obj) {
		if e.Kind() != LinkLocal {
			continue
		}
		if cfg.TemplateLinkedObjects {
			Template(e.Target, reg, cfg)
			continue
		}
		ph, ok := placeholders[e.Target]
		if !ok {
			ph = Broken(e.Target)
			placeholders[e.Target] = ph
		}
		e.Rebind(ph)
	}
	return true
}

// UnsetAsTemplate unregisters obj and re-parents it under parentUID. With
// recurse set the owned subtree is unregistered too, each child keeping
// its own parent. Link targets stay registered. It reports whether obj
// was a template.
func UnsetAsTemplate(obj Object, reg *Registry, parentUID int, recurse bool) bool {
	if IsNil(obj) || reg == nil {
		return false
	}
	b := obj.Meta()
	if !b.Template {
		return false
	}
	reg.Remove(obj)
	b.Template = false
	b.ParentUID = parentUID
	if recurse {
		for _, child := range Children(obj) {
			UnsetAsTemplate(child, reg, b.UID, true)
		}
	}
	return true
}
