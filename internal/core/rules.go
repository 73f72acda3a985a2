package core

import (
	"context"
	"epoccore/pkg/domain"
	"fmt"
)

// Service-level rule names.
const (
	RuleUniqueSiblings    = "unique_siblings"
	RuleTemplateIntegrity = "template_integrity"
)

// ServiceRules returns the rules the service adds to every document it
// manages, on top of the domain defaults.
func ServiceRules() []domain.Rule {
	return []domain.Rule{uniqueSiblingsRule{}, templateIntegrityRule{}}
}

// uniqueSiblingsRule blocks owned children of one kind sharing a
// shortname: repair matches by shortname, so duplicates are ambiguous.
type uniqueSiblingsRule struct{}

func (uniqueSiblingsRule) Name() string { return RuleUniqueSiblings }

func (uniqueSiblingsRule) Evaluate(_ context.Context, obj domain.Object, path string) (domain.Result, error) {
	type key struct {
		t    domain.ObjType
		name string
	}
	seen := make(map[key]int)
	res := domain.Result{}
	for _, child := range domain.Children(obj) {
		k := key{t: child.Type(), name: child.Meta().Shortname}
		seen[k]++
		if seen[k] != 2 {
			continue
		}
		res.Add(domain.Violation{
			Rule:     RuleUniqueSiblings,
			Severity: domain.SeverityBlock,
			Message:  fmt.Sprintf("%s %q owns more than one %s named %q", obj.Type(), obj.Meta().Shortname, k.t, k.name),
			Type:     obj.Type(),
			UID:      obj.Meta().UID,
			Path:     path,
		})
	}
	return res, nil
}

// templateIntegrityRule warns when a template links an ordinary local
// object, which makes the template depend on one document's state.
type templateIntegrityRule struct{}

func (templateIntegrityRule) Name() string { return RuleTemplateIntegrity }

func (templateIntegrityRule) Evaluate(_ context.Context, obj domain.Object, path string) (domain.Result, error) {
	res := domain.Result{}
	if !obj.Meta().Template {
		return res, nil
	}
	for _, e := range domain.Edges(obj) {
		if e.Kind() != domain.LinkLocal {
			continue
		}
		res.Add(domain.Violation{
			Rule:     RuleTemplateIntegrity,
			Severity: domain.SeverityWarn,
			Message:  fmt.Sprintf("template %s %q links local %s %q through %s", obj.Type(), obj.Meta().Shortname, e.TargetType, e.Target.Meta().Shortname, e.Name),
			Type:     obj.Type(),
			UID:      obj.Meta().UID,
			Path:     path,
		})
	}
	return res, nil
}
