package resolver

import (
	"context"
	"fmt"
	"strings"

	"github.com/jward/regraft/internal/semtree"
)

// BuiltinRules returns the rule set that ships with the analyzer.
func BuiltinRules() []Rule {
	return []Rule{
		unresolvedRefRule{},
		emptyBodyRule{},
		longParamListRule{limit: 6},
		redeclaredRule{},
		shadowedRule{},
	}
}

// unresolvedRefRule reports identifier uses that bound to nothing.
type unresolvedRefRule struct{}

func (unresolvedRefRule) Name() string              { return "unresolved-reference" }
func (unresolvedRefRule) DefaultSeverity() Severity { return SeverityError }

func (r unresolvedRefRule) Check(_ context.Context, n *semtree.Node) ([]Diagnostic, error) {
	if n.Kind != semtree.KindFunction || n.Phase < PhaseBodyResolved {
		return nil, nil
	}
	var diags []Diagnostic
	for _, ref := range n.Refs {
		if ref.Resolved {
			continue
		}
		diags = append(diags, Diagnostic{
			Rule:      r.Name(),
			Severity:  r.DefaultSeverity(),
			Message:   fmt.Sprintf("undefined: %s", ref.Name),
			StartByte: ref.Offset,
			EndByte:   ref.Offset + uint32(len(ref.Name)),
		})
	}
	return diags, nil
}

// emptyBodyRule flags functions whose body contains no statements.
type emptyBodyRule struct{}

func (emptyBodyRule) Name() string              { return "empty-body" }
func (emptyBodyRule) DefaultSeverity() Severity { return SeverityInfo }

func (r emptyBodyRule) Check(_ context.Context, n *semtree.Node) ([]Diagnostic, error) {
	if n.Kind != semtree.KindFunction || n.Syntax == nil {
		return nil, nil
	}
	body := semtree.BodyNode(n.Syntax)
	if body == nil {
		return nil, nil
	}
	for i := 0; i < int(body.NamedChildCount()); i++ {
		switch body.NamedChild(i).Type() {
		case "comment", "pass_statement":
		default:
			return nil, nil
		}
	}
	start, end := n.Syntax.Span()
	return []Diagnostic{{
		Rule:      r.Name(),
		Severity:  r.DefaultSeverity(),
		Message:   fmt.Sprintf("%s has an empty body", n.Name),
		StartByte: start,
		EndByte:   end,
	}}, nil
}

// longParamListRule flags functions taking more parameters than limit.
type longParamListRule struct {
	limit int
}

func (longParamListRule) Name() string              { return "long-parameter-list" }
func (longParamListRule) DefaultSeverity() Severity { return SeverityWarning }

func (r longParamListRule) Check(_ context.Context, n *semtree.Node) ([]Diagnostic, error) {
	if n.Kind != semtree.KindFunction || len(n.Params) <= r.limit || n.Syntax == nil {
		return nil, nil
	}
	start, end := n.Syntax.Span()
	return []Diagnostic{{
		Rule:      r.Name(),
		Severity:  r.DefaultSeverity(),
		Message:   fmt.Sprintf("%s takes %d parameters, more than %d", n.Name, len(n.Params), r.limit),
		StartByte: start,
		EndByte:   end,
	}}, nil
}

// shadowedRule flags local bindings that hide a file-level declaration.
type shadowedRule struct{}

func (shadowedRule) Name() string              { return "shadowed" }
func (shadowedRule) DefaultSeverity() Severity { return SeverityWarning }

func (r shadowedRule) Check(_ context.Context, n *semtree.Node) ([]Diagnostic, error) {
	if n.Kind != semtree.KindFunction || n.Phase < PhaseBodyResolved || n.Syntax == nil {
		return nil, nil
	}
	fileScope := make(map[string]bool)
	if file := n.OwningFile(); file != nil {
		for _, d := range file.Decls {
			if d.Kind != semtree.KindImport && d.Kind != semtree.KindPackage && d.Name != "" {
				fileScope[bareName(d.Name)] = true
			}
		}
	}
	start, end := n.Syntax.Span()
	var diags []Diagnostic
	for _, local := range n.Locals {
		if !fileScope[local] || local == n.Name {
			continue
		}
		diags = append(diags, Diagnostic{
			Rule:      r.Name(),
			Severity:  r.DefaultSeverity(),
			Message:   fmt.Sprintf("local %s shadows a file-level declaration", local),
			StartByte: start,
			EndByte:   end,
		})
	}
	return diags, nil
}

// redeclaredRule flags duplicate declaration names in a file or class.
type redeclaredRule struct{}

func (redeclaredRule) Name() string              { return "redeclared" }
func (redeclaredRule) DefaultSeverity() Severity { return SeverityError }

func (r redeclaredRule) Check(_ context.Context, n *semtree.Node) ([]Diagnostic, error) {
	if n.Kind != semtree.KindFile && n.Kind != semtree.KindClass {
		return nil, nil
	}
	seen := make(map[string]*semtree.Node)
	var diags []Diagnostic
	for _, d := range n.Decls {
		if d.Kind == semtree.KindImport || d.Kind == semtree.KindPackage || d.Name == "" || strings.Contains(d.Name, ".") {
			continue
		}
		first, dup := seen[d.Name]
		if !dup {
			seen[d.Name] = d
			continue
		}
		if d.Syntax == nil || first == nil {
			continue
		}
		start, end := d.Syntax.Span()
		diags = append(diags, Diagnostic{
			Rule:      r.Name(),
			Severity:  r.DefaultSeverity(),
			Message:   fmt.Sprintf("%s redeclared in this scope", d.Name),
			StartByte: start,
			EndByte:   end,
		})
	}
	return diags, nil
}
