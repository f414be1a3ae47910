package regraft

import (
	"context"
	"sync"

	"github.com/tliron/commonlog"
	"golang.org/x/sync/singleflight"

	"github.com/jward/regraft/internal/resolver"
	"github.com/jward/regraft/internal/semtree"
	"github.com/jward/regraft/internal/syntax"
)

// NodeBuilder constructs semantic nodes from syntax declarations.
type NodeBuilder interface {
	FileFromSyntax(f *syntax.File) (*semtree.Node, error)
	FunctionWithBody(sn *syntax.Node) (*semtree.Node, error)
}

// BodyResolver binds references for semantic nodes. ResolveScoped bounds
// the work to the declarations an enter hook selects, so an element never
// writes nodes another element covers.
type BodyResolver interface {
	Resolve(ctx context.Context, n *semtree.Node, phase resolver.Phase, opts resolver.Options) error
	ResolveScoped(ctx context.Context, root *semtree.Node, phase resolver.Phase, opts resolver.Options, enter resolver.EnterFunc) error
}

// DiagnosticsPass runs rules over a scoped region of the semantic tree.
type DiagnosticsPass interface {
	Collect(ctx context.Context, root *semtree.Node, enter resolver.EnterFunc, exit resolver.ExitFunc) (map[*syntax.Node][]Diagnostic, error)
}

// LockProvider serializes access per file path.
type LockProvider interface {
	WithReadLock(file string, fn func() error) error
	WithWriteLock(file string, fn func() error) error
}

// elementDeps bundles the collaborators every element needs.
type elementDeps struct {
	builder  NodeBuilder
	resolver BodyResolver
	pass     DiagnosticsPass
	locks    LockProvider
	flights  *singleflight.Group
	log      commonlog.Logger
}

// StructureElement is a cached unit of analysis: a region of one file with
// its semantic nodes, its syntax-to-semantic mapping, and its diagnostics.
// Diagnostics are computed at most once per element; a failed computation
// stays unpopulated so a later call can retry.
type StructureElement interface {
	// Syntax returns the declaration the element is rooted at.
	Syntax() *syntax.Node
	// Semantic returns the element's root semantic node.
	Semantic() *semtree.Node
	// Mappings returns the syntax declarations the element covers.
	Mappings() ElementMapping
	// Diagnostics computes or returns the element's findings, keyed by
	// the covered syntax declaration.
	Diagnostics(ctx context.Context) (map[*syntax.Node][]Diagnostic, error)
	// DiagnosticsFor returns the findings attached to one covered
	// declaration.
	DiagnosticsFor(ctx context.Context, sn *syntax.Node) ([]Diagnostic, error)
	// UpToDate reports whether the element still matches its syntax. A
	// stale element keeps answering from its cache until it is replaced.
	UpToDate() bool
}

// diagCell memoizes one diagnostics computation. Errors leave the cell
// empty, unlike sync.Once, so callers can retry after transient failures.
type diagCell struct {
	mu    sync.Mutex
	done  bool
	diags map[*syntax.Node][]Diagnostic
}

func (c *diagCell) get(compute func() (map[*syntax.Node][]Diagnostic, error)) (map[*syntax.Node][]Diagnostic, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done {
		return c.diags, nil
	}
	diags, err := compute()
	if err != nil {
		return nil, err
	}
	c.done = true
	c.diags = diags
	return diags, nil
}

// baseElement carries the state and behavior shared by all element kinds.
type baseElement struct {
	deps     *elementDeps
	sn       *syntax.Node
	sem      *semtree.Node
	policy   scopePolicy
	stamp    uint64
	mappings ElementMapping
	cell     diagCell
}

func newBaseElement(deps *elementDeps, sn *syntax.Node, sem *semtree.Node, policy scopePolicy) baseElement {
	m := make(ElementMapping)
	recordMappings(m, sem, sem, policy)
	return baseElement{
		deps:     deps,
		sn:       sn,
		sem:      sem,
		policy:   policy,
		stamp:    sn.ModStamp(),
		mappings: m,
	}
}

func (e *baseElement) Syntax() *syntax.Node     { return e.sn }
func (e *baseElement) Semantic() *semtree.Node  { return e.sem }
func (e *baseElement) Mappings() ElementMapping { return e.mappings }
func (e *baseElement) UpToDate() bool           { return e.stamp == e.sn.ModStamp() }

func (e *baseElement) Diagnostics(ctx context.Context) (map[*syntax.Node][]Diagnostic, error) {
	return e.cell.get(func() (map[*syntax.Node][]Diagnostic, error) {
		var out map[*syntax.Node][]Diagnostic
		err := e.deps.locks.WithReadLock(e.sn.File().Path(), func() error {
			opts := resolver.Options{CheckCancellation: true}
			enter, exit := scopeHooks(e.sem, e.policy)
			if err := e.deps.resolver.ResolveScoped(ctx, e.sem, resolver.PhaseBodyResolved, opts, enter); err != nil {
				return err
			}
			var err error
			out, err = e.deps.pass.Collect(ctx, e.sem, enter, exit)
			return err
		})
		if err != nil {
			return nil, err
		}
		return out, nil
	})
}

func (e *baseElement) DiagnosticsFor(ctx context.Context, sn *syntax.Node) ([]Diagnostic, error) {
	all, err := e.Diagnostics(ctx)
	if err != nil {
		return nil, err
	}
	return all[sn], nil
}

// FileWithoutDeclarations covers a file's own scope: the file node and its
// imports. Every other top-level declaration has an element of its own.
type FileWithoutDeclarations struct {
	baseElement
}

func newFileElement(deps *elementDeps, sem *semtree.Node) *FileWithoutDeclarations {
	return &FileWithoutDeclarations{newBaseElement(deps, sem.Syntax, sem, scopeFileOnly)}
}

// NonLocalDeclaration covers a class or property declaration and what nests
// inside it, except member functions that reanalyze independently.
type NonLocalDeclaration struct {
	baseElement
}

func newDeclarationElement(deps *elementDeps, sem *semtree.Node) *NonLocalDeclaration {
	return &NonLocalDeclaration{newBaseElement(deps, sem.Syntax, sem, scopeDeclaration)}
}

// ReanalyzableFunction covers one independently reanalyzable function,
// including its local functions. When its body changes it can be rebuilt
// and spliced into the semantic tree without touching its neighbors.
type ReanalyzableFunction struct {
	baseElement
	sym *semtree.Symbol
}

func newFunctionElement(deps *elementDeps, sem *semtree.Node) *ReanalyzableFunction {
	return &ReanalyzableFunction{
		baseElement: newBaseElement(deps, sem.Syntax, sem, scopeFunction),
		sym:         sem.Symbol(),
	}
}

// Symbol returns the stable handle tracking this function across
// reanalysis.
func (e *ReanalyzableFunction) Symbol() *semtree.Symbol { return e.sym }
