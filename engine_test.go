package regraft

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/regraft/internal/config"
)

const appSource = `def noop():
    pass

def greet(name):
    return "hi " + name
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "results.db")
	e, err := New(dbPath, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func rulesOf(diags []Diagnostic) []string {
	var out []string
	for _, d := range diags {
		out = append(out, d.Rule)
	}
	return out
}

func TestEngine_CheckSkipAndChanged(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := writeFile(t, dir, "app.py", appSource)
	e := newTestEngine(t, WithParallel(false))
	ctx := context.Background()

	res, err := e.CheckFiles(ctx, []string{path})
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.False(t, res[0].Skipped)
	assert.Equal(t, "python", res[0].Language)
	assert.Contains(t, rulesOf(res[0].Diagnostics), "empty-body")

	stored, err := e.Store().FileByPath(path)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.NotEmpty(t, stored.Snapshot)

	res, err = e.CheckFiles(ctx, []string{path})
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.True(t, res[0].Skipped, "unchanged content with unchanged rules")

	writeFile(t, dir, "app.py", `def noop():
    pass

def greet(name):
    return "hello " + name
`)
	res, err = e.CheckFiles(ctx, []string{path})
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.False(t, res[0].Skipped)
	assert.Equal(t, []string{"greet"}, res[0].Changed)
}

func TestEngine_IncrementalRecheckReusesElements(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := writeFile(t, dir, "app.py", appSource)
	e := newTestEngine(t, WithParallel(false))
	ctx := context.Background()

	_, err := e.CheckFiles(ctx, []string{path})
	require.NoError(t, err)

	st := e.Structure(path)
	require.NotNil(t, st)
	noopBefore := elementNamed(t, st, "noop")
	greetBefore := elementNamed(t, st, "greet")
	fileBefore := st.Elements()[0]

	writeFile(t, dir, "app.py", `def noop():
    pass

def greet(name):
    return "hello there " + name
`)
	res, err := e.CheckFiles(ctx, []string{path})
	require.NoError(t, err)
	require.Len(t, res, 1)
	require.False(t, res[0].Skipped)

	st2 := e.Structure(path)
	assert.Same(t, st, st2, "structure stays live across checks")
	assert.Same(t, fileBefore, st2.Elements()[0])
	assert.Same(t, noopBefore, elementNamed(t, st2, "noop"), "untouched function keeps its element")
	assert.NotSame(t, greetBefore, elementNamed(t, st2, "greet"), "edited function reanalyzed")
	assert.Contains(t, rulesOf(res[0].Diagnostics), "empty-body", "cached findings carried over")
}

const appGoSource = `package app

func Noop() {
}

func Greet(name string) string {
	return name
}
`

func TestEngine_GoIncrementalRecheckReusesElements(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := writeFile(t, dir, "app.go", appGoSource)
	e := newTestEngine(t, WithParallel(false))
	ctx := context.Background()

	_, err := e.CheckFiles(ctx, []string{path})
	require.NoError(t, err)

	st := e.Structure(path)
	require.NotNil(t, st)
	noopBefore := elementNamed(t, st, "Noop")
	greetBefore := elementNamed(t, st, "Greet")
	fileBefore := st.Elements()[0]

	writeFile(t, dir, "app.go", `package app

func Noop() {
}

func Greet(name string) string {
	return "hi " + name
}
`)
	res, err := e.CheckFiles(ctx, []string{path})
	require.NoError(t, err)
	require.Len(t, res, 1)
	require.False(t, res[0].Skipped)

	st2 := e.Structure(path)
	assert.Same(t, st, st2, "structure stays live across checks")
	assert.Same(t, fileBefore, st2.Elements()[0])
	assert.Same(t, noopBefore, elementNamed(t, st2, "Noop"), "untouched function keeps its element")
	assert.NotSame(t, greetBefore, elementNamed(t, st2, "Greet"), "edited function reanalyzed")
}

func TestEngine_CloseConcurrentWithStructureLookup(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := writeFile(t, dir, "app.py", appSource)
	dbPath := filepath.Join(t.TempDir(), "results.db")
	e, err := New(dbPath, WithParallel(false))
	require.NoError(t, err)

	_, err = e.CheckFiles(context.Background(), []string{path})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.Structure(path)
		}()
	}
	require.NoError(t, e.Close())
	wg.Wait()

	assert.Nil(t, e.Structure(path))
}

func TestEngine_LanguageFilterAndExclude(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	keep := writeFile(t, dir, "keep.py", appSource)
	goFile := writeFile(t, dir, "other.go", "package other\n\nfunc Other() {}\n")
	ignored := writeFile(t, dir, "ignored.py", appSource)

	e := newTestEngine(t,
		WithParallel(false),
		WithLanguages("python"),
		WithConfig(&config.Config{Exclude: []string{"ignored.py"}}),
	)

	res, err := e.CheckFiles(context.Background(), []string{keep, goFile, ignored})
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, keep, res[0].Path)
}

func TestEngine_ConfigTunesRules(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := writeFile(t, dir, "app.py", appSource)

	off := false
	e := newTestEngine(t,
		WithParallel(false),
		WithConfig(&config.Config{Rules: map[string]config.RuleConfig{
			"empty-body": {Enabled: &off},
		}}),
	)

	res, err := e.CheckFiles(context.Background(), []string{path})
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.NotContains(t, rulesOf(res[0].Diagnostics), "empty-body")
}

func TestEngine_RulesChangedInvalidatesSkip(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := writeFile(t, dir, "app.py", appSource)
	dbPath := filepath.Join(t.TempDir(), "results.db")

	e, err := New(dbPath, WithParallel(false))
	require.NoError(t, err)
	assert.True(t, e.RulesChanged(), "first run")

	_, err = e.CheckFiles(context.Background(), []string{path})
	require.NoError(t, err)
	assert.False(t, e.RulesChanged())
	require.NoError(t, e.Close())

	scripted := fstest.MapFS{
		"extra.risor": {Data: []byte("# severity: info\n[]\n")},
	}
	e2, err := New(dbPath, WithParallel(false), WithRulesFS(scripted))
	require.NoError(t, err)
	defer e2.Close()
	assert.True(t, e2.RulesChanged(), "new rule set invalidates stored results")

	res, err := e2.CheckFiles(context.Background(), []string{path})
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.False(t, res[0].Skipped, "unchanged file rechecked under new rules")
}

func TestEngine_Query(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := writeFile(t, dir, "app.py", appSource)
	e := newTestEngine(t, WithParallel(false))

	_, err := e.CheckFiles(context.Background(), []string{path})
	require.NoError(t, err)

	q := e.Query()
	byRule, err := q.DiagnosticsByRule("empty-body")
	require.NoError(t, err)
	require.NotEmpty(t, byRule)
	assert.Equal(t, path, byRule[0].File)
	assert.Equal(t, "noop", byRule[0].Decl)

	bySev, err := q.DiagnosticsBySeverity("info")
	require.NoError(t, err)
	assert.NotEmpty(t, bySev)

	summary, err := q.Summary()
	require.NoError(t, err)
	require.NotEmpty(t, summary)
	assert.Positive(t, summary[0].Count)

	files, err := q.CheckedFiles()
	require.NoError(t, err)
	assert.Contains(t, files, path)
}

func TestEngine_CheckDirectory(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeFile(t, dir, "app.py", appSource)
	writeFile(t, dir, "notes.txt", "not code")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "node_modules"), 0o755))
	writeFile(t, filepath.Join(dir, "node_modules"), "dep.py", appSource)

	e := newTestEngine(t, WithParallel(false))
	res, err := e.CheckDirectory(context.Background(), dir)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, filepath.Join(dir, "app.py"), res[0].Path)
}

func TestEngine_ParallelCheck(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	var paths []string
	for _, name := range []string{"a.py", "b.py", "c.py", "d.py"} {
		paths = append(paths, writeFile(t, dir, name, appSource))
	}

	e := newTestEngine(t)
	res, err := e.CheckFiles(context.Background(), paths)
	require.NoError(t, err)
	require.Len(t, res, 4)
	for i, r := range res {
		assert.Equal(t, paths[i], r.Path, "results sorted by path")
		assert.False(t, r.Skipped)
	}
}
