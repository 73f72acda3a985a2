package domain

import (
	"context"
	"fmt"
	"strings"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine whether a save may proceed.
const (
	// SeverityBlock prevents the save.
	SeverityBlock Severity = "block"
	// SeverityWarn is reported but allows the save.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// Violation reports a failed rule evaluation against one object.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Type     ObjType
	UID      int
	Path     string
}

func (v Violation) String() string {
	return fmt.Sprintf("[%s] %s: %s (%s)", v.Severity, v.Rule, v.Message, v.Path)
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// Add appends a single violation.
func (r *Result) Add(v Violation) {
	r.Violations = append(r.Violations, v)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// OK reports whether nothing blocks.
func (r Result) OK() bool { return !r.HasBlocking() }

// Messages renders every violation as a human readable line.
func (r Result) Messages() []string {
	out := make([]string, len(r.Violations))
	for i, v := range r.Violations {
		out[i] = v.String()
	}
	return out
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	var blocking []string
	for _, v := range e.Result.Violations {
		if v.Severity == SeverityBlock {
			blocking = append(blocking, v.Rule)
		}
	}
	return "save blocked by rules: " + strings.Join(blocking, ", ")
}

// Rule validates one object. The engine walks the subtree and calls every
// rule on every node.
type Rule interface {
	Name() string
	Evaluate(ctx context.Context, obj Object, path string) (Result, error)
}

// RuleFunc adapts a function into a Rule.
type RuleFunc struct {
	RuleName string
	Fn       func(ctx context.Context, obj Object, path string) Result
}

// Name implements Rule.
func (f RuleFunc) Name() string { return f.RuleName }

// Evaluate implements Rule.
func (f RuleFunc) Evaluate(ctx context.Context, obj Object, path string) (Result, error) {
	return f.Fn(ctx, obj, path), nil
}

// RulesEngine orchestrates rule evaluation.
type RulesEngine struct {
	rules []Rule
}

// NewRulesEngine constructs an engine instance.
func NewRulesEngine() *RulesEngine {
	return &RulesEngine{}
}

// Register appends a rule to the engine.
func (e *RulesEngine) Register(rule Rule) {
	e.rules = append(e.rules, rule)
}

// Rules returns the registered rules.
func (e *RulesEngine) Rules() []Rule {
	return append([]Rule(nil), e.rules...)
}

// Evaluate executes all registered rules over obj's subtree and aggregates
// their results.
func (e *RulesEngine) Evaluate(ctx context.Context, obj Object) (Result, error) {
	var combined Result
	var walkErr error
	var visit func(o Object, path string)
	visit = func(o Object, path string) {
		if walkErr != nil {
			return
		}
		if err := ctx.Err(); err != nil {
			walkErr = err
			return
		}
		for _, rule := range e.rules {
			res, err := rule.Evaluate(ctx, o, path)
			if err != nil {
				walkErr = fmt.Errorf("rule %s: %w", rule.Name(), err)
				return
			}
			combined.Merge(res)
		}
		for _, child := range Children(o) {
			visit(child, path+"/"+pathSegment(child))
		}
	}
	if !IsNil(obj) {
		visit(obj, pathSegment(obj))
	}
	if walkErr != nil {
		return Result{}, walkErr
	}
	return combined, nil
}

func pathSegment(o Object) string {
	b := o.Meta()
	name := b.Shortname
	if name == "" {
		name = fmt.Sprintf("#%d", b.UID)
	}
	return string(o.Type()) + ":" + name
}
