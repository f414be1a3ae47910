package regraft

import (
	"github.com/jward/regraft/internal/resolver"
	"github.com/jward/regraft/internal/semtree"
	"github.com/jward/regraft/internal/syntax"
)

// Public aliases for the internal analysis types surfaced by the structure
// API. They are identical to the internal types at compile time, so no
// conversion is needed.

type Diagnostic = resolver.Diagnostic
type Severity = resolver.Severity
type Rule = resolver.Rule
type DeclarationAction = resolver.DeclarationAction

type SyntaxNode = syntax.Node
type SyntaxFile = syntax.File
type Change = syntax.Change
type SemanticNode = semtree.Node
type Symbol = semtree.Symbol

const (
	SeverityInfo    = resolver.SeverityInfo
	SeverityWarning = resolver.SeverityWarning
	SeverityError   = resolver.SeverityError
)

const (
	CheckAndDescend     = resolver.CheckAndDescend
	CheckWithoutDescent = resolver.CheckWithoutDescent
	SkipWithDescent     = resolver.SkipWithDescent
	SkipEntirely        = resolver.SkipEntirely
)

var (
	// ErrMalformedSyntax reports a declaration that cannot be built into a
	// semantic node. Reanalysis fails with it before touching the tree.
	ErrMalformedSyntax = semtree.ErrMalformedSyntax
	// ErrNotFound reports a splice target absent from its owning list.
	ErrNotFound = semtree.ErrNotFound
)
