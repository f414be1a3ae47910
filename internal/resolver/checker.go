package resolver

import (
	"context"

	"github.com/jward/regraft/internal/semtree"
	"github.com/jward/regraft/internal/syntax"
)

// DeclarationAction tells the collection walk what to do at a declaration.
type DeclarationAction int

const (
	// CheckAndDescend runs rules on the declaration and walks its children.
	CheckAndDescend DeclarationAction = iota
	// CheckWithoutDescent runs rules but skips the children.
	CheckWithoutDescent
	// SkipWithDescent walks the children without running rules here.
	SkipWithDescent
	// SkipEntirely ignores the declaration and everything under it.
	SkipEntirely
)

// EnterFunc decides the action for a declaration before its subtree is
// visited. ExitFunc is called after the subtree regardless of the action
// taken, except under SkipEntirely.
type (
	EnterFunc func(n *semtree.Node) DeclarationAction
	ExitFunc  func(n *semtree.Node)
)

// Rule inspects one declaration and reports findings.
type Rule interface {
	Name() string
	DefaultSeverity() Severity
	Check(ctx context.Context, n *semtree.Node) ([]Diagnostic, error)
}

// Checker runs a rule set over a semantic tree. Rules can be disabled or
// have their severity overridden per name.
type Checker struct {
	rules      []Rule
	disabled   map[string]bool
	severities map[string]Severity
}

func NewChecker(rules ...Rule) *Checker {
	return &Checker{
		rules:      rules,
		disabled:   make(map[string]bool),
		severities: make(map[string]Severity),
	}
}

func (c *Checker) AddRules(rules ...Rule) {
	c.rules = append(c.rules, rules...)
}

func (c *Checker) Disable(name string) {
	c.disabled[name] = true
}

func (c *Checker) OverrideSeverity(name string, sev Severity) {
	c.severities[name] = sev
}

// Collect walks the declarations under root, consulting enter for the
// action at each one, and returns findings keyed by the declaration's
// syntax node. Rule errors abort the walk.
func (c *Checker) Collect(ctx context.Context, root *semtree.Node, enter EnterFunc, exit ExitFunc) (map[*syntax.Node][]Diagnostic, error) {
	out := make(map[*syntax.Node][]Diagnostic)
	if err := c.collect(ctx, root, enter, exit, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Checker) collect(ctx context.Context, n *semtree.Node, enter EnterFunc, exit ExitFunc, out map[*syntax.Node][]Diagnostic) error {
	if !n.IsDeclaration() {
		return nil
	}
	action := CheckAndDescend
	if enter != nil {
		action = enter(n)
	}
	if action == SkipEntirely {
		return nil
	}

	if action == CheckAndDescend || action == CheckWithoutDescent {
		if err := c.check(ctx, n, out); err != nil {
			return err
		}
	}
	if action == CheckAndDescend || action == SkipWithDescent {
		for _, d := range n.Decls {
			if err := c.collect(ctx, d, enter, exit, out); err != nil {
				return err
			}
		}
	}
	if exit != nil {
		exit(n)
	}
	return nil
}

func (c *Checker) check(ctx context.Context, n *semtree.Node, out map[*syntax.Node][]Diagnostic) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, rule := range c.rules {
		if c.disabled[rule.Name()] {
			continue
		}
		diags, err := rule.Check(ctx, n)
		if err != nil {
			return err
		}
		for _, d := range diags {
			if d.Rule == "" {
				d.Rule = rule.Name()
			}
			if sev, ok := c.severities[d.Rule]; ok {
				d.Severity = sev
			}
			if n.Syntax != nil {
				out[n.Syntax] = append(out[n.Syntax], d)
			}
		}
	}
	return nil
}
