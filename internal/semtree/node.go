// Package semtree holds the resolved semantic tree for a single file: a
// parent-owned, mutable list of declarations built from the syntax overlay,
// plus the stable symbol handles that survive node replacement.
package semtree

import (
	"fmt"

	"github.com/jward/regraft/internal/syntax"
)

// Kind classifies a semantic node.
type Kind int

const (
	KindFile Kind = iota
	KindImport
	KindFunction
	KindClass
	KindProperty
	KindPackage
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindImport:
		return "import"
	case KindFunction:
		return "function"
	case KindClass:
		return "class"
	case KindProperty:
		return "property"
	case KindPackage:
		return "package"
	}
	return "unknown"
}

// Phase is a node's resolution progress.
type Phase int

const (
	// PhaseDeclared means the node's declaration shape (name, parameters,
	// members) is known but its body has not been resolved.
	PhaseDeclared Phase = iota
	// PhaseBodyResolved means body references have been bound.
	PhaseBodyResolved
)

// Node is one node of the semantic tree. The tree is mutable in exactly one
// way: a parent's Decls list may have a child replaced by identity (see
// ReplaceDecl). Everything else is written once by the builder or the
// resolver.
type Node struct {
	Kind   Kind
	Name   string
	Syntax *syntax.Node
	Parent *Node

	// Decls is the parent-owned child list: top-level declarations for a
	// file (imports included), members for a class, local functions for a
	// function.
	Decls []*Node

	// Params holds parameter names for functions (receiver included).
	Params []string

	// Locals holds body-level binding names, filled during resolution.
	Locals []string

	// Refs holds the body's identifier references, filled during resolution.
	Refs []Ref

	Phase Phase

	sym *Symbol
}

// Ref is a single identifier reference inside a declaration body.
type Ref struct {
	Name   string
	Offset uint32
	// Resolved is true when the name bound to anything in scope: a local,
	// parameter, builtin, or declared symbol.
	Resolved bool
	// Target is the declared symbol the reference bound to, when it bound
	// to a declaration rather than a local or builtin.
	Target *Symbol
}

// Symbol returns the node's stable handle, or nil for nodes that have none
// (imports).
func (n *Node) Symbol() *Symbol { return n.sym }

// AdoptSymbol re-points sym at n and records it as n's handle. Used by the
// splice so that symbol holders keep referring to "the declaration" across
// replacement, and by the rollback to restore the original binding.
func (n *Node) AdoptSymbol(sym *Symbol) {
	n.sym = sym
	sym.node.Store(n)
}

// OwningFile walks up to the file node.
func (n *Node) OwningFile() *Node {
	for n.Parent != nil {
		n = n.Parent
	}
	return n
}

// IsDeclaration reports whether the node is a declaration boundary for
// scoped diagnostics collection. Imports are file content, not declarations.
func (n *Node) IsDeclaration() bool {
	switch n.Kind {
	case KindFile, KindFunction, KindClass, KindProperty:
		return true
	}
	return false
}

// IndependentlyReanalyzable reports whether the node owns its own cache
// region: a named non-local function at file level or as a direct member of
// a top-level class.
func (n *Node) IndependentlyReanalyzable() bool {
	return n.Kind == KindFunction && n.Syntax != nil && n.Syntax.Reanalyzable()
}

func (n *Node) String() string {
	if n.Name != "" {
		return fmt.Sprintf("%s %s", n.Kind, n.Name)
	}
	return n.Kind.String()
}
