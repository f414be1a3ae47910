package regraft

import (
	"github.com/jward/regraft/internal/resolver"
	"github.com/jward/regraft/internal/semtree"
)

// scopePolicy selects which declarations under an element's root take part
// in its diagnostic collection and mapping.
type scopePolicy int

const (
	// scopeFileOnly covers the file node and its imports; every other
	// declaration belongs to another element.
	scopeFileOnly scopePolicy = iota
	// scopeDeclaration covers a declaration and everything nested in it
	// except independently reanalyzable member functions.
	scopeDeclaration
	// scopeFunction covers a reanalyzable function including its local
	// functions.
	scopeFunction
)

// scopeHooks returns the enter/exit pair that bounds a collection walk to
// the element rooted at root under the given policy.
func scopeHooks(root *semtree.Node, policy scopePolicy) (resolver.EnterFunc, resolver.ExitFunc) {
	enter := func(n *semtree.Node) resolver.DeclarationAction {
		if n == root {
			return resolver.CheckAndDescend
		}
		switch policy {
		case scopeFileOnly:
			if n.Kind == semtree.KindImport {
				return resolver.CheckAndDescend
			}
			return resolver.SkipEntirely
		case scopeDeclaration:
			if n.IndependentlyReanalyzable() {
				return resolver.SkipEntirely
			}
			return resolver.CheckAndDescend
		default:
			return resolver.CheckAndDescend
		}
	}
	return enter, nil
}
