package semtree

import (
	"errors"
	"fmt"
	"path/filepath"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/regraft/internal/syntax"
)

// ErrMalformedSyntax reports that a syntax node cannot be turned into a
// semantic node: wrong kind, missing name, or a parse error in its subtree.
var ErrMalformedSyntax = errors.New("semtree: malformed syntax")

// Builder constructs unresolved semantic nodes from syntax overlay nodes.
// Built nodes are in PhaseDeclared; reference binding is the resolver's job.
type Builder struct{}

func NewBuilder() *Builder { return &Builder{} }

// FileFromSyntax builds the whole semantic tree for a file. Parse errors
// inside individual declarations do not fail the build; they surface later
// as diagnostics.
func (b *Builder) FileFromSyntax(f *syntax.File) (*Node, error) {
	root := f.Root()
	fileNode := &Node{
		Kind:   KindFile,
		Name:   filepath.Base(f.Path()),
		Syntax: root,
	}
	NewSymbol(fileNode)

	for _, child := range root.Children() {
		switch child.Kind() {
		case syntax.KindPackage:
			if child.Name() != "" {
				fileNode.Name = child.Name()
			}
			fileNode.Decls = append(fileNode.Decls, &Node{
				Kind:   KindPackage,
				Name:   child.Name(),
				Syntax: child,
				Parent: fileNode,
			})
		case syntax.KindImport:
			fileNode.Decls = append(fileNode.Decls, &Node{
				Kind:   KindImport,
				Syntax: child,
				Parent: fileNode,
			})
		case syntax.KindFunction:
			fileNode.Decls = append(fileNode.Decls, b.functionNode(child, fileNode))
		case syntax.KindClass:
			fileNode.Decls = append(fileNode.Decls, b.classNode(child, fileNode))
		case syntax.KindProperty:
			fileNode.Decls = append(fileNode.Decls, b.propertyNode(child, fileNode))
		}
	}
	return fileNode, nil
}

// FunctionWithBody builds an unresolved semantic node for a single function
// declaration. It fails before any tree mutation when the syntax is not a
// well-formed named function.
func (b *Builder) FunctionWithBody(sn *syntax.Node) (*Node, error) {
	if sn == nil || sn.Kind() != syntax.KindFunction {
		return nil, fmt.Errorf("build function: not a function declaration: %w", ErrMalformedSyntax)
	}
	if sn.Name() == "" {
		return nil, fmt.Errorf("build function: unnamed declaration: %w", ErrMalformedSyntax)
	}
	if sn.HasError() {
		return nil, fmt.Errorf("build function %s: parse error in declaration: %w", sn.Name(), ErrMalformedSyntax)
	}
	return b.functionNode(sn, nil), nil
}

func (b *Builder) functionNode(sn *syntax.Node, parent *Node) *Node {
	n := &Node{
		Kind:   KindFunction,
		Name:   sn.Name(),
		Syntax: sn,
		Parent: parent,
		Params: paramNames(sn),
	}
	NewSymbol(n)
	for _, child := range sn.Children() {
		if child.Kind() == syntax.KindFunction {
			n.Decls = append(n.Decls, b.functionNode(child, n))
		}
	}
	return n
}

func (b *Builder) classNode(sn *syntax.Node, parent *Node) *Node {
	n := &Node{
		Kind:   KindClass,
		Name:   sn.Name(),
		Syntax: sn,
		Parent: parent,
	}
	NewSymbol(n)
	for _, child := range sn.Children() {
		switch child.Kind() {
		case syntax.KindFunction:
			n.Decls = append(n.Decls, b.functionNode(child, n))
		case syntax.KindClass:
			n.Decls = append(n.Decls, b.classNode(child, n))
		case syntax.KindProperty:
			n.Decls = append(n.Decls, b.propertyNode(child, n))
		}
	}
	return n
}

func (b *Builder) propertyNode(sn *syntax.Node, parent *Node) *Node {
	n := &Node{
		Kind:   KindProperty,
		Name:   sn.Name(),
		Syntax: sn,
		Parent: parent,
	}
	NewSymbol(n)
	return n
}

// paramNames pulls parameter names (receiver included for Go methods) out of
// a function declaration's raw CST.
func paramNames(sn *syntax.Node) []string {
	raw := definitionNode(sn)
	if raw == nil {
		return nil
	}
	content := sn.File().Content()

	var names []string
	if recv := raw.ChildByFieldName("receiver"); recv != nil {
		names = append(names, identifiersIn(recv, content)...)
	}
	if params := raw.ChildByFieldName("parameters"); params != nil {
		names = append(names, identifiersIn(params, content)...)
	}
	return names
}

// definitionNode resolves an overlay function node to the raw CST node that
// carries the name/parameters/body fields, unwrapping Python decorators.
func definitionNode(sn *syntax.Node) *sitter.Node {
	raw := sn.Raw()
	if raw == nil {
		return nil
	}
	if raw.Type() == "decorated_definition" {
		if def := raw.ChildByFieldName("definition"); def != nil {
			return def
		}
	}
	return raw
}

// identifiersIn collects parameter-position identifier names from a
// parameter list subtree. Identifiers inside default values and type
// expressions are not parameter names and are skipped by construction:
// only direct identifier children and "name"-field children count.
func identifiersIn(params *sitter.Node, content []byte) []string {
	var names []string
	for i := 0; i < int(params.NamedChildCount()); i++ {
		c := params.NamedChild(i)
		switch c.Type() {
		case "identifier":
			names = append(names, c.Content(content))
		case "parameter_declaration", "variadic_parameter_declaration":
			for j := 0; j < int(c.NamedChildCount()); j++ {
				gc := c.NamedChild(j)
				if gc.Type() == "identifier" {
					names = append(names, gc.Content(content))
				}
			}
		default:
			if name := c.ChildByFieldName("name"); name != nil {
				names = append(names, name.Content(content))
			} else if c.NamedChildCount() > 0 && c.NamedChild(0).Type() == "identifier" {
				names = append(names, c.NamedChild(0).Content(content))
			}
		}
	}
	return names
}

// BodyNode returns the raw CST body of a function declaration, or nil when
// the declaration has none.
func BodyNode(sn *syntax.Node) *sitter.Node {
	raw := definitionNode(sn)
	if raw == nil {
		return nil
	}
	return raw.ChildByFieldName("body")
}
