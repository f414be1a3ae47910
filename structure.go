package regraft

import (
	"context"
	"fmt"
	"sync"

	"github.com/jward/regraft/internal/resolver"
	"github.com/jward/regraft/internal/semtree"
	"github.com/jward/regraft/internal/syntax"
)

// FileStructure is the cached analysis of one file: a semantic tree over
// the file's syntax overlay, partitioned into structure elements. Every
// syntax declaration in the file belongs to exactly one element.
type FileStructure struct {
	deps *elementDeps
	file *syntax.File

	mu       sync.RWMutex
	sem      *semtree.Node
	elements map[*syntax.Node]StructureElement
	order    []*syntax.Node
}

func newFileStructure(ctx context.Context, deps *elementDeps, file *syntax.File) (*FileStructure, error) {
	s := &FileStructure{deps: deps, file: file}
	if err := s.rebuild(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// File returns the syntax file the structure is built over.
func (s *FileStructure) File() *syntax.File { return s.file }

// rebuild replaces the semantic tree and the full element partition.
// Callers hold s.mu or own s exclusively.
func (s *FileStructure) rebuild(ctx context.Context) error {
	sem, err := s.deps.builder.FileFromSyntax(s.file)
	if err != nil {
		return fmt.Errorf("structure %s: %w", s.file.Path(), err)
	}
	opts := resolver.Options{CheckCancellation: true, ForceFileContext: true}
	if err := s.deps.resolver.Resolve(ctx, sem, resolver.PhaseDeclared, opts); err != nil {
		return err
	}

	elements := make(map[*syntax.Node]StructureElement)
	var order []*syntax.Node

	add := func(sn *syntax.Node, el StructureElement) {
		elements[sn] = el
		order = append(order, sn)
	}

	add(sem.Syntax, newFileElement(s.deps, sem))
	for _, d := range sem.Decls {
		switch {
		case d.Kind == semtree.KindImport || d.Kind == semtree.KindPackage || d.Syntax == nil:
		case d.IndependentlyReanalyzable():
			add(d.Syntax, newFunctionElement(s.deps, d))
		case d.Kind == semtree.KindClass:
			add(d.Syntax, newDeclarationElement(s.deps, d))
			for _, m := range d.Decls {
				if m.IndependentlyReanalyzable() && m.Syntax != nil {
					add(m.Syntax, newFunctionElement(s.deps, m))
				}
			}
		default:
			add(d.Syntax, newDeclarationElement(s.deps, d))
		}
	}

	s.sem = sem
	s.elements = elements
	s.order = order
	return nil
}

// Elements returns the structure's elements in declaration order.
func (s *FileStructure) Elements() []StructureElement {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]StructureElement, 0, len(s.order))
	for _, sn := range s.order {
		out = append(out, s.elements[sn])
	}
	return out
}

// Stale returns the elements whose stamps no longer match their syntax, in
// declaration order. An empty result means the structure is current.
func (s *FileStructure) Stale() []StructureElement {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []StructureElement
	for _, sn := range s.order {
		if el := s.elements[sn]; !el.UpToDate() {
			out = append(out, el)
		}
	}
	return out
}

// ElementFor returns the element covering the given syntax declaration, or
// nil when the node is not part of this file's structure.
func (s *FileStructure) ElementFor(sn *syntax.Node) StructureElement {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for p := sn; p != nil; p = p.Parent() {
		el, ok := s.elements[p]
		if !ok {
			continue
		}
		if _, covered := el.Mappings()[sn]; covered {
			return el
		}
	}
	return nil
}

// DiagnosticsFor computes the findings attached to one declaration via its
// covering element.
func (s *FileStructure) DiagnosticsFor(ctx context.Context, sn *syntax.Node) ([]Diagnostic, error) {
	el := s.ElementFor(sn)
	if el == nil {
		return nil, fmt.Errorf("structure %s: node %s has no element", s.file.Path(), sn)
	}
	return el.DiagnosticsFor(ctx, sn)
}

// Diagnostics computes every element's findings and merges them.
func (s *FileStructure) Diagnostics(ctx context.Context) (map[*syntax.Node][]Diagnostic, error) {
	out := make(map[*syntax.Node][]Diagnostic)
	for _, el := range s.Elements() {
		diags, err := el.Diagnostics(ctx)
		if err != nil {
			return nil, err
		}
		for sn, ds := range diags {
			out[sn] = append(out[sn], ds...)
		}
	}
	return out, nil
}

// Refresh reconciles the structure after the underlying syntax file was
// edited. Functions whose body alone changed are reanalyzed in place and
// every other element keeps its cache; any structural change rebuilds the
// partition.
func (s *FileStructure) Refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	structural := false
	for sn, el := range s.elements {
		if el.UpToDate() {
			continue
		}
		fe, ok := el.(*ReanalyzableFunction)
		if !ok || !s.attached(sn) {
			structural = true
			break
		}
		next, err := fe.Reanalyze(ctx, sn)
		if err != nil {
			return err
		}
		s.elements[sn] = next
	}
	if !structural {
		structural = s.hasUnmappedDecls()
	}
	if structural {
		return s.rebuild(ctx)
	}
	return nil
}

// attached reports whether sn is still part of the file's overlay tree.
func (s *FileStructure) attached(sn *syntax.Node) bool {
	p := sn
	for p.Parent() != nil {
		p = p.Parent()
	}
	return p == s.file.Root()
}

// hasUnmappedDecls reports whether the overlay has grown declarations no
// element covers yet.
func (s *FileStructure) hasUnmappedDecls() bool {
	covered := make(map[*syntax.Node]bool)
	for _, el := range s.elements {
		for sn := range el.Mappings() {
			covered[sn] = true
		}
	}
	missing := false
	var walk func(n *syntax.Node)
	walk = func(n *syntax.Node) {
		if missing {
			return
		}
		if !covered[n] {
			missing = true
			return
		}
		for _, c := range n.Children() {
			walk(c)
		}
	}
	walk(s.file.Root())
	return missing
}
