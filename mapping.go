package regraft

import (
	"github.com/jward/regraft/internal/semtree"
	"github.com/jward/regraft/internal/syntax"
)

// ElementMapping maps the syntax declarations an element covers to their
// semantic nodes. Each syntax declaration in a file belongs to exactly one
// element's mapping.
type ElementMapping map[*syntax.Node]*semtree.Node

// Semantic looks up the semantic node for a syntax declaration.
func (m ElementMapping) Semantic(sn *syntax.Node) (*semtree.Node, bool) {
	n, ok := m[sn]
	return n, ok
}

// recordMappings fills m with the declarations the element rooted at root
// covers, following the same boundaries the element's diagnostic scope uses.
func recordMappings(m ElementMapping, n, root *semtree.Node, policy scopePolicy) {
	if n.Syntax == nil {
		return
	}
	if n != root {
		switch {
		case policy == scopeFileOnly && n.Kind != semtree.KindImport && n.Kind != semtree.KindPackage:
			// Declarations under a file have elements of their own;
			// only imports and the package directive stay file-owned.
			return
		case policy == scopeDeclaration && n.IndependentlyReanalyzable():
			return
		}
	}
	m[n.Syntax] = n
	for _, d := range n.Decls {
		recordMappings(m, d, root, policy)
	}
}
