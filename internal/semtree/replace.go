package semtree

import (
	"errors"
	"fmt"
)

// ErrNotFound reports that a node was not present in the owning list.
var ErrNotFound = errors.New("semtree: node not present in declaration list")

// ReplaceDecl finds old in the owner's Decls list by pointer identity
// (first match, not index) and substitutes repl at that position, adopting
// repl into the owner. Two structurally equal but distinct nodes stay
// distinguishable, and running the same call with the arguments swapped
// undoes it, so the rollback path of a failed splice is this function.
func (owner *Node) ReplaceDecl(old, repl *Node) (int, error) {
	for i, d := range owner.Decls {
		if d == old {
			owner.Decls[i] = repl
			repl.Parent = owner
			return i, nil
		}
	}
	return -1, fmt.Errorf("replace %s in %s: %w", old, owner, ErrNotFound)
}
