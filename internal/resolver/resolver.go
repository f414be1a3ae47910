// Package resolver provides the collaborators the cache core drives: a lazy
// body resolver that binds identifier references against lexical scope, and
// a diagnostics checker running built-in and scripted rules over the
// semantic tree under caller-supplied scoping hooks.
package resolver

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/regraft/internal/semtree"
)

// Options controls a single Resolve call.
type Options struct {
	// CheckCancellation makes the resolver poll ctx between declarations
	// and periodically inside bodies, aborting with ctx.Err().
	CheckCancellation bool
	// ForceFileContext discards the cached file-level scope before
	// resolving, so the binding sees the declaration list as it is now.
	// Required after a splice changed the list.
	ForceFileContext bool
}

// Resolver binds body references for semantic nodes. It memoizes the
// file-level name scope per file node; ForceFileContext invalidates it.
type Resolver struct {
	mu         sync.Mutex
	fileScopes map[*semtree.Node]map[string]*semtree.Symbol
}

func NewResolver() *Resolver {
	return &Resolver{fileScopes: make(map[*semtree.Node]map[string]*semtree.Symbol)}
}

// Resolve brings n (and its nested declarations) to the requested phase.
// For functions, PhaseBodyResolved walks the body, records local bindings,
// and binds every identifier use against locals, parameters, builtins, and
// the file/class scope.
func (r *Resolver) Resolve(ctx context.Context, n *semtree.Node, phase Phase, opts Options) error {
	if opts.CheckCancellation {
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	if opts.ForceFileContext {
		r.invalidateScope(n.OwningFile())
		opts.ForceFileContext = false
	}

	switch n.Kind {
	case semtree.KindFile, semtree.KindClass:
		for _, d := range n.Decls {
			if err := r.Resolve(ctx, d, phase, opts); err != nil {
				return err
			}
		}
		n.Phase = phase
	case semtree.KindImport, semtree.KindProperty, semtree.KindPackage:
		n.Phase = phase
	case semtree.KindFunction:
		if phase == PhaseBodyResolved {
			if err := r.resolveBody(ctx, n, opts); err != nil {
				return err
			}
			for _, d := range n.Decls {
				if err := r.Resolve(ctx, d, phase, opts); err != nil {
					return err
				}
			}
		}
		n.Phase = phase
	}
	return nil
}

// ResolveScoped brings the declarations selected by enter to the requested
// phase, honoring the same actions as Checker.Collect. Declarations the
// hook skips are left untouched, so elements covering disjoint regions of
// one file can resolve concurrently without writing each other's nodes.
func (r *Resolver) ResolveScoped(ctx context.Context, root *semtree.Node, phase Phase, opts Options, enter EnterFunc) error {
	if opts.ForceFileContext {
		r.invalidateScope(root.OwningFile())
		opts.ForceFileContext = false
	}
	return r.resolveScoped(ctx, root, phase, opts, enter)
}

func (r *Resolver) resolveScoped(ctx context.Context, n *semtree.Node, phase Phase, opts Options, enter EnterFunc) error {
	if !n.IsDeclaration() {
		return nil
	}
	if opts.CheckCancellation {
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	action := CheckAndDescend
	if enter != nil {
		action = enter(n)
	}
	if action == SkipEntirely {
		return nil
	}
	if action == CheckAndDescend || action == CheckWithoutDescent {
		if n.Kind == semtree.KindFunction && phase == PhaseBodyResolved {
			if err := r.resolveBody(ctx, n, opts); err != nil {
				return err
			}
		}
		n.Phase = phase
	}
	if action == CheckAndDescend || action == SkipWithDescent {
		for _, d := range n.Decls {
			if err := r.resolveScoped(ctx, d, phase, opts, enter); err != nil {
				return err
			}
		}
	}
	return nil
}

// Phase re-exports the semantic resolution phases for callers that only
// import this package.
type Phase = semtree.Phase

const (
	PhaseDeclared     = semtree.PhaseDeclared
	PhaseBodyResolved = semtree.PhaseBodyResolved
)

func (r *Resolver) invalidateScope(file *semtree.Node) {
	r.mu.Lock()
	delete(r.fileScopes, file)
	r.mu.Unlock()
}

// fileScope returns the memoized file-level name table: every named
// declaration's symbol plus imported names (nil symbol).
func (r *Resolver) fileScope(file *semtree.Node) map[string]*semtree.Symbol {
	r.mu.Lock()
	defer r.mu.Unlock()
	if scope, ok := r.fileScopes[file]; ok {
		return scope
	}
	scope := make(map[string]*semtree.Symbol)
	for _, d := range file.Decls {
		if d.Kind == semtree.KindImport {
			for _, name := range importedNames(d) {
				scope[name] = nil
			}
			continue
		}
		if d.Kind == semtree.KindPackage {
			continue
		}
		if d.Name != "" {
			scope[bareName(d.Name)] = d.Symbol()
		}
	}
	r.fileScopes[file] = scope
	return scope
}

// bareName strips the receiver qualifier from Go method names so that
// "Buffer.Len" also resolves plain "Len" lookups inside the type's methods.
func bareName(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[i+1:]
	}
	return name
}

func (r *Resolver) resolveBody(ctx context.Context, fn *semtree.Node, opts Options) error {
	sn := fn.Syntax
	if sn == nil {
		return fmt.Errorf("resolver: function %s has no syntax", fn.Name)
	}
	file := sn.File()
	body := semtree.BodyNode(sn)
	if body == nil {
		fn.Refs = nil
		fn.Phase = PhaseBodyResolved
		return nil
	}

	defs, uses, err := bodyBindings(ctx, body, file.Content(), file.Language(), opts.CheckCancellation)
	if err != nil {
		return err
	}

	scope := r.fileScope(fn.OwningFile())

	refs := make([]semtree.Ref, 0, len(uses))
	for _, u := range uses {
		ref := semtree.Ref{Name: u.name, Offset: u.offset}
		switch {
		case defs[u.name], isBuiltin(file.Language(), u.name):
			ref.Resolved = true
		case inParams(fn, u.name), localFuncNamed(fn, u.name), inEnclosing(fn, u.name):
			ref.Resolved = true
		default:
			if sym, ok := lookupScope(fn, scope, u.name); ok {
				ref.Resolved = true
				ref.Target = sym
			}
		}
		refs = append(refs, ref)
	}

	locals := make([]string, 0, len(defs))
	for name := range defs {
		locals = append(locals, name)
	}
	sort.Strings(locals)

	fn.Locals = locals
	fn.Refs = refs
	fn.Phase = PhaseBodyResolved
	return nil
}

func inParams(fn *semtree.Node, name string) bool {
	for _, p := range fn.Params {
		if p == name {
			return true
		}
	}
	return false
}

// localFuncNamed reports whether fn declares a local function by this name.
// Nested defs are skipped by the body walk, so calls to them bind here.
func localFuncNamed(fn *semtree.Node, name string) bool {
	for _, d := range fn.Decls {
		if d.Kind == semtree.KindFunction && d.Name == name {
			return true
		}
	}
	return false
}

// inEnclosing resolves against the params, locals, and local functions of
// enclosing functions, for local functions nested inside another body.
func inEnclosing(fn *semtree.Node, name string) bool {
	for p := fn.Parent; p != nil; p = p.Parent {
		if p.Kind != semtree.KindFunction {
			break
		}
		if inParams(p, name) || localFuncNamed(p, name) {
			return true
		}
		for _, l := range p.Locals {
			if l == name {
				return true
			}
		}
	}
	return false
}

// lookupScope checks the containing class's members (when fn is a member)
// and then the file scope.
func lookupScope(fn *semtree.Node, fileScope map[string]*semtree.Symbol, name string) (*semtree.Symbol, bool) {
	for p := fn.Parent; p != nil; p = p.Parent {
		if p.Kind != semtree.KindClass {
			continue
		}
		for _, m := range p.Decls {
			if bareName(m.Name) == name {
				return m.Symbol(), true
			}
		}
	}
	sym, ok := fileScope[name]
	return sym, ok
}

// importedNames extracts the names an import declaration brings into file
// scope: the alias when present, otherwise the final path/module segment.
func importedNames(imp *semtree.Node) []string {
	sn := imp.Syntax
	if sn == nil {
		return nil
	}
	raw := sn.Raw()
	if raw == nil {
		return nil
	}
	content := sn.File().Content()

	var names []string
	var visit func(n *sitter.Node)
	visit = func(n *sitter.Node) {
		switch n.Type() {
		case "import_spec":
			if alias := n.ChildByFieldName("name"); alias != nil {
				names = append(names, alias.Content(content))
				return
			}
			if path := n.ChildByFieldName("path"); path != nil {
				names = append(names, lastSegment(strings.Trim(path.Content(content), `"`)))
				return
			}
		case "dotted_name":
			names = append(names, lastSegment(n.Content(content)))
			return
		case "aliased_import":
			if alias := n.ChildByFieldName("alias"); alias != nil {
				names = append(names, alias.Content(content))
				return
			}
		}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			visit(n.NamedChild(i))
		}
	}
	visit(raw)
	return names
}

func lastSegment(path string) string {
	path = strings.TrimSuffix(path, "/")
	if i := strings.LastIndexAny(path, "/."); i >= 0 {
		return path[i+1:]
	}
	return path
}
