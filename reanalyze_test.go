package regraft

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/regraft/internal/resolver"
	"github.com/jward/regraft/internal/semtree"
	"github.com/jward/regraft/internal/syntax"
)

func editFunctionBody(t *testing.T, st *FileStructure, old, new string) {
	t.Helper()
	edited := []byte(strings.Replace(string(st.File().Content()), old, new, 1))
	change, changed := st.File().Diff(edited)
	require.True(t, changed)
	require.NoError(t, st.File().Apply(context.Background(), change))
}

func mainElement(t *testing.T, st *FileStructure) *ReanalyzableFunction {
	t.Helper()
	el, ok := elementNamed(t, st, "main").(*ReanalyzableFunction)
	require.True(t, ok)
	return el
}

func TestReanalyze_SplicesRebuiltNode(t *testing.T) {
	t.Parallel()
	st := buildStructure(t, "widget.py", widgetSource, "python")
	ctx := context.Background()

	el := mainElement(t, st)
	oldSem := el.Semantic()
	sn := el.Syntax()

	editFunctionBody(t, st, "w.render() + helper()", "w.render() - helper()")
	require.False(t, el.UpToDate())

	next, err := el.Reanalyze(ctx, sn)
	require.NoError(t, err)
	require.NotSame(t, el, next)

	assert.True(t, next.UpToDate())
	assert.NotSame(t, oldSem, next.Semantic())
	assert.Same(t, next.Semantic(), el.Symbol().Node(), "symbol tracks the installed node")
	assert.Same(t, el.Symbol(), next.Symbol(), "handle survives the splice")

	owner := next.Semantic().Parent
	require.NotNil(t, owner)
	assert.Contains(t, owner.Decls, next.Semantic())
	assert.NotContains(t, owner.Decls, oldSem)
	assert.Equal(t, semtree.PhaseBodyResolved, next.Semantic().Phase)

	root := st.File().Root()
	for key := range next.Mappings() {
		p := key
		for p.Parent() != nil {
			p = p.Parent()
		}
		assert.Same(t, root, p, "mapping keys all belong to the live overlay")
	}
}

func TestReanalyze_RollsBackOnResolutionFailure(t *testing.T) {
	t.Parallel()
	st := buildStructure(t, "widget.py", widgetSource, "python")

	el := mainElement(t, st)
	oldSem := el.Semantic()
	owner := oldSem.Parent
	sn := el.Syntax()

	editFunctionBody(t, st, "w.render() + helper()", "w.render() // 2")

	canceled, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := el.Reanalyze(canceled, sn)
	require.ErrorIs(t, err, context.Canceled)

	assert.Same(t, oldSem, el.Symbol().Node(), "symbol points at the old node again")
	assert.Contains(t, owner.Decls, oldSem, "old node spliced back")
	for _, d := range owner.Decls {
		if d.Name == "main" {
			assert.Same(t, oldSem, d)
		}
	}
}

func TestReanalyze_RejectsMalformedSyntax(t *testing.T) {
	t.Parallel()
	st := buildStructure(t, "widget.py", widgetSource, "python")

	el := mainElement(t, st)
	oldSem := el.Semantic()
	classNode := st.File().DeclarationByName(syntax.KindClass, "Widget")
	require.NotNil(t, classNode)

	_, err := el.Reanalyze(context.Background(), classNode)
	require.ErrorIs(t, err, semtree.ErrMalformedSyntax)
	assert.Same(t, oldSem, el.Symbol().Node(), "tree untouched when the build fails")
}

// gateResolver blocks body resolution until the gate opens, so concurrent
// reanalysis calls pile up on one in-flight computation.
type gateResolver struct {
	inner    BodyResolver
	gate     chan struct{}
	resolves atomic.Int32
}

func (g *gateResolver) Resolve(ctx context.Context, n *semtree.Node, phase resolver.Phase, opts resolver.Options) error {
	if phase == resolver.PhaseBodyResolved {
		g.resolves.Add(1)
		<-g.gate
	}
	return g.inner.Resolve(ctx, n, phase, opts)
}

func (g *gateResolver) ResolveScoped(ctx context.Context, root *semtree.Node, phase resolver.Phase, opts resolver.Options, enter resolver.EnterFunc) error {
	return g.inner.ResolveScoped(ctx, root, phase, opts, enter)
}

func TestReanalyze_ConcurrentCallsCollapse(t *testing.T) {
	t.Parallel()
	deps := newTestDeps()
	gate := &gateResolver{inner: deps.resolver, gate: make(chan struct{})}
	deps.resolver = gate

	f, err := syntax.Parse(context.Background(), "widget.py", []byte(widgetSource), "python")
	require.NoError(t, err)
	t.Cleanup(f.Close)
	st, err := newFileStructure(context.Background(), deps, f)
	require.NoError(t, err)

	el := mainElement(t, st)
	sn := el.Syntax()
	editFunctionBody(t, st, "w.render() + helper()", "w.render() + helper() + 1")

	const callers = 4
	results := make(chan *ReanalyzableFunction, callers)
	var entered sync.WaitGroup
	for i := 0; i < callers; i++ {
		entered.Add(1)
		go func() {
			entered.Done()
			next, err := el.Reanalyze(context.Background(), sn)
			assert.NoError(t, err)
			results <- next
		}()
	}
	entered.Wait()
	for gate.resolves.Load() == 0 {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)
	close(gate.gate)

	first := <-results
	for i := 1; i < callers; i++ {
		assert.Same(t, first, <-results, "all callers share one computation")
	}
	assert.Equal(t, int32(1), gate.resolves.Load())
}
