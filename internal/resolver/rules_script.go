package resolver

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/risor-io/risor"
	"github.com/risor-io/risor/object"

	"github.com/jward/regraft/internal/semtree"
)

// ScriptRule is a diagnostic rule written in Risor. The script receives a
// `decl` global describing the declaration under check and evaluates to a
// list of finding maps: {message, severity, start, end}. An empty list or
// nil means no findings. Script errors abort collection.
type ScriptRule struct {
	name     string
	severity Severity
	source   string
}

func (s *ScriptRule) Name() string              { return s.name }
func (s *ScriptRule) DefaultSeverity() Severity { return s.severity }

// LoadScriptRules reads every *.risor file in fsys as one rule, named after
// the file. A leading `# severity: <level>` comment sets the default
// severity; it is warning otherwise.
func LoadScriptRules(fsys fs.FS) ([]Rule, error) {
	var rules []Rule
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(p, ".risor") {
			return nil
		}
		src, err := fs.ReadFile(fsys, p)
		if err != nil {
			return fmt.Errorf("resolver: read rule %s: %w", p, err)
		}
		rules = append(rules, &ScriptRule{
			name:     strings.TrimSuffix(path.Base(p), ".risor"),
			severity: scriptSeverity(string(src)),
			source:   string(src),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rules, nil
}

func scriptSeverity(src string) Severity {
	for _, line := range strings.Split(src, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if rest, ok := strings.CutPrefix(line, "# severity:"); ok {
			if sev, ok := ParseSeverity(strings.TrimSpace(rest)); ok {
				return sev
			}
		}
		break
	}
	return SeverityWarning
}

func (s *ScriptRule) Check(ctx context.Context, n *semtree.Node) ([]Diagnostic, error) {
	if n.Syntax == nil {
		return nil, nil
	}
	result, err := risor.Eval(ctx, s.source, risor.WithGlobal("decl", declGlobal(n)))
	if err != nil {
		return nil, fmt.Errorf("resolver: rule %s on %s: %w", s.name, n.Name, err)
	}
	return s.findings(result, n)
}

// declGlobal builds the map the script sees as `decl`.
func declGlobal(n *semtree.Node) map[string]any {
	sn := n.Syntax
	start, end := sn.Span()

	refs := make([]map[string]any, 0, len(n.Refs))
	for _, ref := range n.Refs {
		refs = append(refs, map[string]any{
			"name":     ref.Name,
			"offset":   int64(ref.Offset),
			"resolved": ref.Resolved,
		})
	}

	params := make([]any, 0, len(n.Params))
	for _, p := range n.Params {
		params = append(params, p)
	}

	return map[string]any{
		"name":     n.Name,
		"kind":     strings.ToLower(n.Kind.String()),
		"language": sn.File().Language(),
		"params":   params,
		"start":    int64(start),
		"end":      int64(end),
		"text":     string(sn.Text()),
		"refs":     refs,
	}
}

func (s *ScriptRule) findings(result object.Object, n *semtree.Node) ([]Diagnostic, error) {
	switch v := result.(type) {
	case *object.NilType:
		return nil, nil
	case *object.List:
		start, end := n.Syntax.Span()
		var diags []Diagnostic
		for _, item := range v.Value() {
			m, ok := item.(*object.Map)
			if !ok {
				return nil, fmt.Errorf("resolver: rule %s returned %s, want map", s.name, item.Type())
			}
			d := Diagnostic{
				Rule:      s.name,
				Severity:  s.severity,
				StartByte: start,
				EndByte:   end,
			}
			fields := m.Value()
			if msg, ok := fields["message"].(*object.String); ok {
				d.Message = msg.Value()
			}
			if sev, ok := fields["severity"].(*object.String); ok {
				if parsed, ok := ParseSeverity(sev.Value()); ok {
					d.Severity = parsed
				}
			}
			if off, ok := fields["start"].(*object.Int); ok {
				d.StartByte = uint32(off.Value())
			}
			if off, ok := fields["end"].(*object.Int); ok {
				d.EndByte = uint32(off.Value())
			}
			diags = append(diags, d)
		}
		return diags, nil
	default:
		return nil, fmt.Errorf("resolver: rule %s returned %s, want list", s.name, result.Type())
	}
}
