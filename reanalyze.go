package regraft

import (
	"context"
	"fmt"

	"github.com/jward/regraft/internal/resolver"
	"github.com/jward/regraft/internal/syntax"
)

// Reanalyze rebuilds this function's element from newSyntax and splices the
// rebuilt semantic node into the tree in place of the old one. The splice
// is transactional: the new node is built and validated before the tree is
// touched, and if resolution of the new body fails the old node is put back
// and the old element stays authoritative. The function's Symbol tracks
// whichever node is currently installed.
//
// Concurrent calls for the same symbol collapse into one computation; every
// caller gets the element that computation produced.
func (e *ReanalyzableFunction) Reanalyze(ctx context.Context, newSyntax *syntax.Node) (*ReanalyzableFunction, error) {
	v, err, _ := e.deps.flights.Do(e.sym.Key(), func() (any, error) {
		return e.reanalyze(ctx, newSyntax)
	})
	if err != nil {
		return nil, err
	}
	return v.(*ReanalyzableFunction), nil
}

func (e *ReanalyzableFunction) reanalyze(ctx context.Context, newSyntax *syntax.Node) (*ReanalyzableFunction, error) {
	path := newSyntax.File().Path()

	// Build before touching the tree. A malformed declaration fails here
	// and the installed node is never disturbed.
	rebuilt, err := e.deps.builder.FunctionWithBody(newSyntax)
	if err != nil {
		return nil, fmt.Errorf("reanalyze %s: %w", e.sym.Name(), err)
	}

	old := e.sym.Node()
	owner := old.Parent
	if owner == nil {
		return nil, fmt.Errorf("reanalyze %s: node is detached", e.sym.Name())
	}

	err = e.deps.locks.WithWriteLock(path, func() error {
		if _, err := owner.ReplaceDecl(old, rebuilt); err != nil {
			return fmt.Errorf("reanalyze %s: splice: %w", e.sym.Name(), err)
		}
		rebuilt.AdoptSymbol(e.sym)
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Resolution runs outside the write lock so readers of other elements
	// are not blocked behind reference binding.
	opts := resolver.Options{CheckCancellation: true, ForceFileContext: true}
	if resolveErr := e.deps.resolver.Resolve(ctx, rebuilt, resolver.PhaseBodyResolved, opts); resolveErr != nil {
		rollbackErr := e.deps.locks.WithWriteLock(path, func() error {
			if _, err := owner.ReplaceDecl(rebuilt, old); err != nil {
				return fmt.Errorf("reanalyze %s: rollback: %w", e.sym.Name(), err)
			}
			old.AdoptSymbol(e.sym)
			return nil
		})
		if rollbackErr != nil {
			return nil, rollbackErr
		}
		e.deps.log.Errorf("reanalysis of %s rolled back: %s", e.sym.Name(), resolveErr)
		return nil, fmt.Errorf("reanalyze %s: %w", e.sym.Name(), resolveErr)
	}

	var next *ReanalyzableFunction
	err = e.deps.locks.WithReadLock(path, func() error {
		next = newFunctionElement(e.deps, rebuilt)
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.deps.log.Debugf("reanalyzed %s at stamp %d", e.sym.Name(), newSyntax.ModStamp())
	return next, nil
}
