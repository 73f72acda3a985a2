package core

import (
	"context"
	"epoccore/pkg/domain"
	"testing"
)

func TestUniqueSiblingsRuleReportsOncePerName(t *testing.T) {
	e := domain.NewElement(domain.ModuleBiota, "cod")
	for i := 0; i < 3; i++ {
		e.AddAttribute(domain.NewAttribute("mass", ""))
	}
	e.AddAction(domain.NewAction(domain.ActionSetup, "mass"))

	res, err := uniqueSiblingsRule{}.Evaluate(context.Background(), e, "cod")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(res.Violations) != 1 || res.Violations[0].Severity != domain.SeverityBlock {
		t.Fatalf("expected one blocking violation, got %+v", res.Violations)
	}
}

func TestTemplateIntegrityRuleWarnsOnLocalLinks(t *testing.T) {
	reg := domain.NewRegistry()
	a := domain.NewAction(domain.ActionSetup, "grow")
	reg.Add(a)
	a.Dataset.Set(domain.NewAttribute("mass", ""))

	res, err := templateIntegrityRule{}.Evaluate(context.Background(), a, "grow")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(res.Violations) != 1 || res.Violations[0].Severity != domain.SeverityWarn {
		t.Fatalf("expected one warning, got %+v", res.Violations)
	}

	a.Dataset.Set(domain.BrokenAs(domain.NewAttribute("mass", "")))
	if res, _ := (templateIntegrityRule{}).Evaluate(context.Background(), a, "grow"); len(res.Violations) != 0 {
		t.Fatalf("expected broken link ignored, got %+v", res.Violations)
	}
}
