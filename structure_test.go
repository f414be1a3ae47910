package regraft

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tliron/commonlog"
	"golang.org/x/sync/singleflight"

	"github.com/jward/regraft/internal/locks"
	"github.com/jward/regraft/internal/resolver"
	"github.com/jward/regraft/internal/semtree"
	"github.com/jward/regraft/internal/syntax"
)

const widgetSource = `import os

LIMIT = 4

class Widget:
    def render(self):
        return LIMIT

    def broken(self):
        return phantom

def main():
    def helper():
        return 1
    w = Widget()
    return w.render() + helper()
`

const demoGoSource = `package demo

import "strings"

const limit = 3

type Greeter struct {
	name string
}

func (g Greeter) Greet() string {
	return strings.ToUpper(g.name)
}

func alpha() int {
	x := limit
	return x
}

func beta() int {
	return limit + 1
}
`

func newTestDeps() *elementDeps {
	return &elementDeps{
		builder:  semtree.NewBuilder(),
		resolver: resolver.NewResolver(),
		pass:     resolver.NewChecker(resolver.BuiltinRules()...),
		locks:    locks.NewProvider(),
		flights:  &singleflight.Group{},
		log:      commonlog.GetLogger("regraft.test"),
	}
}

func buildStructure(t *testing.T, name, src, lang string) *FileStructure {
	t.Helper()
	f, err := syntax.Parse(context.Background(), name, []byte(src), lang)
	require.NoError(t, err)
	t.Cleanup(f.Close)
	st, err := newFileStructure(context.Background(), newTestDeps(), f)
	require.NoError(t, err)
	return st
}

func elementNamed(t *testing.T, st *FileStructure, name string) StructureElement {
	t.Helper()
	for _, el := range st.Elements() {
		if el.Semantic().Name == name {
			return el
		}
	}
	t.Fatalf("element %s not found", name)
	return nil
}

func TestFileStructure_Partition(t *testing.T) {
	t.Parallel()
	st := buildStructure(t, "widget.py", widgetSource, "python")

	els := st.Elements()
	require.Len(t, els, 6, "file, LIMIT, Widget, render, broken, main")

	assert.IsType(t, &FileWithoutDeclarations{}, els[0])
	assert.IsType(t, &NonLocalDeclaration{}, elementNamed(t, st, "LIMIT"))
	assert.IsType(t, &NonLocalDeclaration{}, elementNamed(t, st, "Widget"))
	assert.IsType(t, &ReanalyzableFunction{}, elementNamed(t, st, "render"))
	assert.IsType(t, &ReanalyzableFunction{}, elementNamed(t, st, "main"))
}

func TestFileStructure_EveryNodeHasExactlyOneElement(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		file string
		src  string
		lang string
	}{
		{"python", "widget.py", widgetSource, "python"},
		{"go", "demo.go", demoGoSource, "go"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			st := buildStructure(t, tc.file, tc.src, tc.lang)

			var walk func(sn *syntax.Node)
			walk = func(sn *syntax.Node) {
				owners := 0
				for _, el := range st.Elements() {
					if _, ok := el.Mappings()[sn]; ok {
						owners++
					}
				}
				assert.Equal(t, 1, owners, "node %s", sn)
				for _, c := range sn.Children() {
					walk(c)
				}
			}
			walk(st.File().Root())
		})
	}
}

func TestFileStructure_GoPackageDirectiveBelongsToFileElement(t *testing.T) {
	t.Parallel()
	st := buildStructure(t, "demo.go", demoGoSource, "go")

	pkg := st.File().Root().Children()[0]
	require.Equal(t, syntax.KindPackage, pkg.Kind())
	assert.Same(t, st.Elements()[0], st.ElementFor(pkg))
}

func TestFileStructure_GoBodyEditReanalyzesOnlyEditedFunction(t *testing.T) {
	t.Parallel()
	st := buildStructure(t, "demo.go", demoGoSource, "go")
	ctx := context.Background()

	fileBefore := st.Elements()[0]
	alphaBefore := elementNamed(t, st, "alpha")
	betaBefore := elementNamed(t, st, "beta")

	editFunctionBody(t, st, "return x", "return x * 2")
	require.NoError(t, st.Refresh(ctx))

	assert.Same(t, fileBefore, st.Elements()[0], "file element untouched")
	assert.Same(t, betaBefore, elementNamed(t, st, "beta"), "untouched function keeps its element")
	assert.NotSame(t, alphaBefore, elementNamed(t, st, "alpha"), "edited function reanalyzed")
	assert.Empty(t, st.Stale())
}

func TestFileStructure_ElementFor(t *testing.T) {
	t.Parallel()
	st := buildStructure(t, "widget.py", widgetSource, "python")

	fileEl := st.Elements()[0]
	root := st.File().Root()

	importNode := root.Children()[0]
	require.Equal(t, syntax.KindImport, importNode.Kind())
	assert.Same(t, fileEl, st.ElementFor(importNode))
	assert.Same(t, fileEl, st.ElementFor(root))

	render := st.File().DeclarationByName(syntax.KindFunction, "render")
	require.NotNil(t, render)
	assert.Same(t, elementNamed(t, st, "render"), st.ElementFor(render))

	helper := st.File().DeclarationByName(syntax.KindFunction, "helper")
	require.NotNil(t, helper)
	assert.Same(t, elementNamed(t, st, "main"), st.ElementFor(helper),
		"local function belongs to the enclosing function's element")
}

func TestFileStructure_ElementResolvesOnlyItsOwnRegion(t *testing.T) {
	t.Parallel()
	st := buildStructure(t, "widget.py", widgetSource, "python")
	ctx := context.Background()

	_, err := st.Elements()[0].Diagnostics(ctx)
	require.NoError(t, err)
	_, err = elementNamed(t, st, "Widget").Diagnostics(ctx)
	require.NoError(t, err)
	for _, name := range []string{"render", "broken", "main"} {
		assert.Equal(t, semtree.PhaseDeclared, elementNamed(t, st, name).Semantic().Phase,
			"function bodies resolve through their own elements")
	}

	_, err = elementNamed(t, st, "main").Diagnostics(ctx)
	require.NoError(t, err)
	assert.Equal(t, semtree.PhaseBodyResolved, elementNamed(t, st, "main").Semantic().Phase)
}

func TestFileStructure_ConcurrentDiagnosticsAcrossElements(t *testing.T) {
	t.Parallel()
	st := buildStructure(t, "widget.py", widgetSource, "python")

	var wg sync.WaitGroup
	for _, el := range st.Elements() {
		for i := 0; i < 3; i++ {
			wg.Add(1)
			go func(el StructureElement) {
				defer wg.Done()
				_, err := el.Diagnostics(context.Background())
				assert.NoError(t, err)
			}(el)
		}
	}
	wg.Wait()

	diags, err := st.Diagnostics(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, diags)
}

func TestFileStructure_ClassElementExcludesMemberFindings(t *testing.T) {
	t.Parallel()
	st := buildStructure(t, "widget.py", widgetSource, "python")
	ctx := context.Background()

	broken := st.File().DeclarationByName(syntax.KindFunction, "broken")
	require.NotNil(t, broken)

	classDiags, err := elementNamed(t, st, "Widget").Diagnostics(ctx)
	require.NoError(t, err)
	assert.NotContains(t, classDiags, broken, "member findings live on the member's element")

	fnDiags, err := elementNamed(t, st, "broken").Diagnostics(ctx)
	require.NoError(t, err)
	require.Contains(t, fnDiags, broken)
	require.Len(t, fnDiags[broken], 1)
	assert.Equal(t, "undefined: phantom", fnDiags[broken][0].Message)
}

func TestFileStructure_MergedDiagnostics(t *testing.T) {
	t.Parallel()
	st := buildStructure(t, "widget.py", widgetSource, "python")

	all, err := st.Diagnostics(context.Background())
	require.NoError(t, err)

	broken := st.File().DeclarationByName(syntax.KindFunction, "broken")
	require.Contains(t, all, broken)

	got, err := st.DiagnosticsFor(context.Background(), broken)
	require.NoError(t, err)
	assert.Equal(t, all[broken], got)
}

func TestFileStructure_RefreshReanalyzesOnlyEditedFunction(t *testing.T) {
	t.Parallel()
	st := buildStructure(t, "widget.py", widgetSource, "python")
	ctx := context.Background()

	before := map[string]StructureElement{}
	for _, el := range st.Elements() {
		before[el.Semantic().Name] = el
	}

	edited := []byte(strings.Replace(string(st.File().Content()),
		"w.render() + helper()", "w.render() * helper()", 1))
	change, changed := st.File().Diff(edited)
	require.True(t, changed)
	require.NoError(t, st.File().Apply(ctx, change))

	assert.False(t, before["main"].UpToDate())
	assert.True(t, before["Widget"].UpToDate())
	assert.True(t, before["widget.py"].UpToDate())

	stale := st.Stale()
	require.Len(t, stale, 1)
	assert.Same(t, before["main"], stale[0])

	require.NoError(t, st.Refresh(ctx))
	assert.Empty(t, st.Stale())

	assert.NotSame(t, before["main"], elementNamed(t, st, "main"), "edited function rebuilt")
	assert.Same(t, before["Widget"], elementNamed(t, st, "Widget"))
	assert.Same(t, before["render"], elementNamed(t, st, "render"))
	assert.Same(t, before["widget.py"], st.Elements()[0])
}

func TestFileStructure_MemberBodyEditTouchesOnlyTheMember(t *testing.T) {
	t.Parallel()
	st := buildStructure(t, "widget.py", widgetSource, "python")
	ctx := context.Background()

	fileEl := st.Elements()[0]
	classEl := elementNamed(t, st, "Widget")
	renderEl := elementNamed(t, st, "render")
	classDiags, err := classEl.Diagnostics(ctx)
	require.NoError(t, err)

	edited := []byte(strings.Replace(string(st.File().Content()),
		"return LIMIT", "return LIMIT * 2", 1))
	change, changed := st.File().Diff(edited)
	require.True(t, changed)
	require.NoError(t, st.File().Apply(ctx, change))

	assert.False(t, renderEl.UpToDate())
	assert.True(t, classEl.UpToDate(), "member body edit leaves the class region alone")

	require.NoError(t, st.Refresh(ctx))

	assert.NotSame(t, renderEl, elementNamed(t, st, "render"))
	assert.Same(t, classEl, elementNamed(t, st, "Widget"))
	assert.Same(t, fileEl, st.Elements()[0])

	after, err := classEl.Diagnostics(ctx)
	require.NoError(t, err)
	assert.Equal(t, classDiags, after, "class element keeps its cached findings")
}

func TestFileStructure_RefreshRebuildsOnNewDeclaration(t *testing.T) {
	t.Parallel()
	st := buildStructure(t, "widget.py", widgetSource, "python")
	ctx := context.Background()

	fileElBefore := st.Elements()[0]

	edited := append([]byte(st.File().Content()), []byte("\ndef extra():\n    return 2\n")...)
	change, changed := st.File().Diff(edited)
	require.True(t, changed)
	require.NoError(t, st.File().Apply(ctx, change))
	require.NoError(t, st.Refresh(ctx))

	assert.NotSame(t, fileElBefore, st.Elements()[0], "structural change rebuilds the partition")
	assert.NotNil(t, elementNamed(t, st, "extra"))
}
