package resolver

import (
	"context"

	sitter "github.com/smacker/go-tree-sitter"
)

type use struct {
	name   string
	offset uint32
}

// bodyBindings walks a function body and collects the names it defines and
// the identifier uses it makes, with absolute byte offsets. Nested named
// function definitions are skipped: they are declarations of their own.
// Uses are bound after the walk so a definition anywhere in the body counts.
func bodyBindings(ctx context.Context, body *sitter.Node, content []byte, language string, poll bool) (map[string]bool, []use, error) {
	w := &bodyWalker{
		ctx:      ctx,
		content:  content,
		language: language,
		poll:     poll,
		defs:     make(map[string]bool),
	}
	if err := w.visit(body); err != nil {
		return nil, nil, err
	}
	return w.defs, w.uses, nil
}

type bodyWalker struct {
	ctx      context.Context
	content  []byte
	language string
	poll     bool
	defs     map[string]bool
	uses     []use
	visited  int
}

func (w *bodyWalker) visit(n *sitter.Node) error {
	w.visited++
	if w.poll && w.visited%256 == 0 {
		if err := w.ctx.Err(); err != nil {
			return err
		}
	}

	switch w.language {
	case "go":
		if done, err := w.visitGo(n); done || err != nil {
			return err
		}
	case "python":
		if done, err := w.visitPython(n); done || err != nil {
			return err
		}
	}

	switch n.Type() {
	case "identifier":
		w.uses = append(w.uses, use{name: n.Content(w.content), offset: n.StartByte()})
		return nil
	case "type_identifier":
		w.uses = append(w.uses, use{name: n.Content(w.content), offset: n.StartByte()})
		return nil
	case "field_identifier", "package_identifier", "label_name", "comment", "string", "interpreted_string_literal", "raw_string_literal":
		return nil
	}
	return w.visitChildren(n)
}

func (w *bodyWalker) visitChildren(n *sitter.Node) error {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if err := w.visit(n.NamedChild(i)); err != nil {
			return err
		}
	}
	return nil
}

// visitGo handles the Go constructs that introduce or restrict bindings.
// It returns done=true when it fully handled the subtree.
func (w *bodyWalker) visitGo(n *sitter.Node) (bool, error) {
	switch n.Type() {
	case "short_var_declaration", "range_clause":
		if left := n.ChildByFieldName("left"); left != nil {
			w.defineIdentifiers(left)
		}
		if right := n.ChildByFieldName("right"); right != nil {
			return true, w.visit(right)
		}
		return true, nil
	case "var_spec", "const_spec":
		if name := n.ChildByFieldName("name"); name != nil {
			w.defineIdentifiers(name)
		}
		if typ := n.ChildByFieldName("type"); typ != nil {
			if err := w.visit(typ); err != nil {
				return true, err
			}
		}
		if value := n.ChildByFieldName("value"); value != nil {
			return true, w.visit(value)
		}
		return true, nil
	case "func_literal":
		if params := n.ChildByFieldName("parameters"); params != nil {
			w.defineIdentifiers(params)
		}
		if body := n.ChildByFieldName("body"); body != nil {
			return true, w.visit(body)
		}
		return true, nil
	case "selector_expression":
		if operand := n.ChildByFieldName("operand"); operand != nil {
			return true, w.visit(operand)
		}
		return true, nil
	case "type_switch_statement":
		if alias := n.ChildByFieldName("alias"); alias != nil {
			w.defineIdentifiers(alias)
		}
	case "labeled_statement":
		if stmt := n.NamedChild(int(n.NamedChildCount()) - 1); stmt != nil && n.NamedChildCount() > 1 {
			return true, w.visit(stmt)
		}
		return true, nil
	}
	return false, nil
}

func (w *bodyWalker) visitPython(n *sitter.Node) (bool, error) {
	switch n.Type() {
	case "function_definition":
		// Nested named defs are separate declarations.
		return true, nil
	case "assignment", "for_statement", "for_in_clause":
		if left := n.ChildByFieldName("left"); left != nil {
			w.defineIdentifiers(left)
		}
		if right := n.ChildByFieldName("right"); right != nil {
			if err := w.visit(right); err != nil {
				return true, err
			}
		}
		if body := n.ChildByFieldName("body"); body != nil {
			return true, w.visit(body)
		}
		return true, nil
	case "as_pattern":
		if alias := n.ChildByFieldName("alias"); alias != nil {
			w.defineIdentifiers(alias)
		}
		if value := n.NamedChild(0); value != nil {
			return true, w.visit(value)
		}
		return true, nil
	case "lambda":
		if params := n.ChildByFieldName("parameters"); params != nil {
			w.defineIdentifiers(params)
		}
		if body := n.ChildByFieldName("body"); body != nil {
			return true, w.visit(body)
		}
		return true, nil
	case "attribute":
		if obj := n.ChildByFieldName("object"); obj != nil {
			return true, w.visit(obj)
		}
		return true, nil
	case "keyword_argument":
		if value := n.ChildByFieldName("value"); value != nil {
			return true, w.visit(value)
		}
		return true, nil
	case "global_statement", "nonlocal_statement":
		w.defineIdentifiers(n)
		return true, nil
	}
	return false, nil
}

// defineIdentifiers records every identifier in the subtree as a binding.
func (w *bodyWalker) defineIdentifiers(n *sitter.Node) {
	if n.Type() == "identifier" {
		name := n.Content(w.content)
		if name != "_" {
			w.defs[name] = true
		}
		return
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		w.defineIdentifiers(n.NamedChild(i))
	}
}
