package domain

// RepairLinks rebinds link targets in self's subtree to structurally equal
// replacements. With onlyBroken set only broken targets are considered;
// otherwise every set link is re-resolved. Candidates come from the local
// scope first (the matching owned objects of scope, and for element links
// the elements of root when root is a Universe), then, when the link owner
// is a template and cfg.AutoMatchTemplates is set, from the registry. The
// first superficially equal, non-broken candidate wins. Links with no
// match keep their current target, so a working link never turns broken.
// It returns the number of links rebound.
func RepairLinks(self Object, onlyBroken bool, root, scope Object, reg *Registry, cfg EngineConfig) int {
	pools := make(map[ObjType][]Object)
	localPool := func(t ObjType) []Object {
		if pool, ok := pools[t]; ok {
			return pool
		}
		var pool []Object
		if !IsNil(scope) {
			pool = collectOfType(scope, t)
		}
		if u, ok := root.(*Universe); ok && t == ObjElement && !SameObject(u, scope) {
			pool = appendMissing(pool, collectOfType(u, t))
		}
		pools[t] = pool
		return pool
	}

	repaired := 0
	for _, e := range SubtreeEdges(self) {
		kind := e.Kind()
		if onlyBroken && kind != LinkBroken {
			continue
		}
		candidates := localPool(e.TargetType)
		if reg != nil && cfg.AutoMatchTemplates && e.Owner.Meta().Template {
			candidates = append(append([]Object(nil), candidates...), reg.List(e.TargetType)...)
		}
		for _, c := range candidates {
			if c.Meta().Broken {
				continue
			}
			if !Compare(e.Target, c, true) {
				continue
			}
			if c != e.Target {
				e.Rebind(c)
				repaired++
			}
			break
		}
	}
	return repaired
}

func appendMissing(dst, src []Object) []Object {
	seen := make(map[Object]struct{}, len(dst))
	for _, o := range dst {
		seen[o] = struct{}{}
	}
	for _, o := range src {
		if _, ok := seen[o]; !ok {
			dst = append(dst, o)
		}
	}
	return dst
}
