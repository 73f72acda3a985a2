package domain

import (
	"context"
	"fmt"
	"regexp"
)

var shortnamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// Built-in rule names.
const (
	RuleShortname        = "shortname"
	RuleBrokenLink       = "broken_link"
	RuleRequiredChildren = "required_children"
	RulePositions        = "positions"
	RuleTimestepDates    = "timestep_dates"
)

// DefaultRules returns the rules Validate runs.
func DefaultRules() []Rule {
	return []Rule{
		RuleFunc{RuleName: RuleShortname, Fn: checkShortname},
		RuleFunc{RuleName: RuleBrokenLink, Fn: checkBrokenLinks},
		RuleFunc{RuleName: RuleRequiredChildren, Fn: checkRequiredChildren},
		RuleFunc{RuleName: RulePositions, Fn: checkPositions},
		RuleFunc{RuleName: RuleTimestepDates, Fn: checkTimestepDates},
	}
}

// NewDefaultRulesEngine returns an engine preloaded with DefaultRules.
func NewDefaultRulesEngine() *RulesEngine {
	engine := NewRulesEngine()
	for _, r := range DefaultRules() {
		engine.Register(r)
	}
	return engine
}

// Validate evaluates the default rules over obj's subtree.
func Validate(ctx context.Context, obj Object) (Result, error) {
	return NewDefaultRulesEngine().Evaluate(ctx, obj)
}

func violation(rule string, sev Severity, obj Object, path, format string, args ...any) Violation {
	return Violation{
		Rule:     rule,
		Severity: sev,
		Message:  fmt.Sprintf(format, args...),
		Type:     obj.Type(),
		UID:      obj.Meta().UID,
		Path:     path,
	}
}

func checkShortname(_ context.Context, obj Object, path string) Result {
	var res Result
	sn := obj.Meta().Shortname
	switch {
	case sn == "":
		res.Add(violation(RuleShortname, SeverityBlock, obj, path, "%s has an empty shortname", obj.Type()))
	case !shortnamePattern.MatchString(sn):
		res.Add(violation(RuleShortname, SeverityBlock, obj, path, "shortname %q must start with a letter and contain only letters, digits and underscores", sn))
	}
	return res
}

func checkBrokenLinks(_ context.Context, obj Object, path string) Result {
	var res Result
	for _, e := range Edges(obj) {
		if e.Kind() != LinkBroken {
			continue
		}
		res.Add(violation(RuleBrokenLink, SeverityBlock, obj, path,
			"%s link to %s %q is broken", e.Name, e.TargetType, e.Target.Meta().Shortname))
	}
	return res
}

func checkRequiredChildren(_ context.Context, obj Object, path string) Result {
	var res Result
	if obj.Meta().Broken {
		return res
	}
	switch o := obj.(type) {
	case *Element:
		if len(o.Actions) == 0 {
			res.Add(violation(RuleRequiredChildren, SeverityBlock, obj, path, "element %q has no actions", o.Shortname))
		}
	case *Action:
		if o.IsTimestepKind() && len(o.Timesteps) == 0 {
			res.Add(violation(RuleRequiredChildren, SeverityBlock, obj, path, "timestep action %q has no timesteps", o.Shortname))
		}
	}
	return res
}

func checkPositions(_ context.Context, obj Object, path string) Result {
	var res Result
	check := func(label string, positions []int) {
		for i, p := range positions {
			if p != i+1 {
				res.Add(violation(RulePositions, SeverityWarn, obj, path,
					"%s positions are not a contiguous ranking (found %d at index %d)", label, p, i))
				return
			}
		}
	}
	switch o := obj.(type) {
	case *Universe:
		for _, m := range modules {
			check(string(m)+" elements", positionsOf(o.Elements[m]))
		}
		check("trials", positionsOf(o.Trials))
	case *Element:
		check("actions", positionsOf(o.Actions))
		check("attributes", positionsOf(o.Attributes))
	case *Action:
		check("timesteps", positionsOf(o.Timesteps))
	}
	return res
}

func positionsOf[T Object](list []T) []int {
	out := make([]int, len(list))
	for i, c := range list {
		out[i] = c.Meta().Position
	}
	return out
}

var daysInMonth = [13]int{0, 31, 29, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}

func validDayMonth(day, month int) bool {
	return month >= 1 && month <= 12 && day >= 1 && day <= daysInMonth[month]
}

func checkTimestepDates(_ context.Context, obj Object, path string) Result {
	var res Result
	ts, ok := obj.(*Timestep)
	if !ok || ts.Broken {
		return res
	}
	if !validDayMonth(ts.StartDay, ts.StartMonth) {
		res.Add(violation(RuleTimestepDates, SeverityBlock, obj, path, "invalid start date %d/%d", ts.StartDay, ts.StartMonth))
	}
	if !validDayMonth(ts.EndDay, ts.EndMonth) {
		res.Add(violation(RuleTimestepDates, SeverityBlock, obj, path, "invalid end date %d/%d", ts.EndDay, ts.EndMonth))
	}
	switch ts.StepType {
	case StepBefore, StepDuring, StepAfter:
	default:
		res.Add(violation(RuleTimestepDates, SeverityBlock, obj, path, "unknown step type %q", ts.StepType))
	}
	return res
}
