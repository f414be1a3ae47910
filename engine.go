package regraft

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tliron/commonlog"
	"golang.org/x/sync/singleflight"

	"github.com/jward/regraft/internal/config"
	"github.com/jward/regraft/internal/locks"
	"github.com/jward/regraft/internal/resolver"
	"github.com/jward/regraft/internal/semtree"
	"github.com/jward/regraft/internal/store"
	"github.com/jward/regraft/internal/syntax"
)

// Engine orchestrates the analysis pipeline: file discovery, change
// detection, structuring, scoped diagnostics collection, and persistence.
// Structures stay live between checks of the same Engine, so re-checking
// an edited file reanalyzes only the elements the edit made stale.
type Engine struct {
	store     *store.Store
	deps      *elementDeps
	checker   *resolver.Checker
	cfg       *config.Config
	rulesFS   fs.FS
	languages map[string]bool // nil means all languages

	// useParallel enables the worker-pool check pipeline.
	useParallel bool
	workers     int

	mu         sync.Mutex
	structures map[string]*FileStructure
}

// Option configures an Engine.
type Option func(*Engine)

// WithLanguages restricts which languages the Engine will process.
func WithLanguages(languages ...string) Option {
	return func(e *Engine) {
		e.languages = make(map[string]bool, len(languages))
		for _, lang := range languages {
			e.languages[lang] = true
		}
	}
}

// WithParallel controls parallel checking. When true (default), CheckFiles
// structures and checks files on a worker pool, with a single goroutine
// committing results to SQLite. Set to false for serial mode.
func WithParallel(parallel bool) Option {
	return func(e *Engine) {
		e.useParallel = parallel
	}
}

// WithRulesFS configures the Engine to load Risor rule scripts from the
// given filesystem, typically an embed.FS.
func WithRulesFS(fsys fs.FS) Option {
	return func(e *Engine) {
		e.rulesFS = fsys
	}
}

// WithConfig applies a project configuration: language filter, exclude
// globs, worker count, and per-rule tuning.
func WithConfig(cfg *config.Config) Option {
	return func(e *Engine) {
		e.cfg = cfg
	}
}

// New creates an Engine backed by a SQLite database at dbPath.
func New(dbPath string, opts ...Option) (*Engine, error) {
	s, err := store.NewStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("regraft: create store: %w", err)
	}
	if err := s.Migrate(); err != nil {
		s.Close()
		return nil, fmt.Errorf("regraft: migrate: %w", err)
	}

	e := &Engine{
		store:       s,
		cfg:         &config.Config{},
		useParallel: true,
		structures:  make(map[string]*FileStructure),
	}
	for _, opt := range opts {
		opt(e)
	}

	e.checker = resolver.NewChecker(resolver.BuiltinRules()...)
	if e.rulesFS != nil {
		scripted, err := resolver.LoadScriptRules(e.rulesFS)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("regraft: load rules: %w", err)
		}
		e.checker.AddRules(scripted...)
	}
	e.applyConfig()

	e.deps = &elementDeps{
		builder:  semtree.NewBuilder(),
		resolver: resolver.NewResolver(),
		pass:     e.checker,
		locks:    locks.NewProvider(),
		flights:  &singleflight.Group{},
		log:      commonlog.GetLogger("regraft"),
	}
	return e, nil
}

func (e *Engine) applyConfig() {
	if len(e.cfg.Languages) > 0 && e.languages == nil {
		e.languages = make(map[string]bool, len(e.cfg.Languages))
		for _, lang := range e.cfg.Languages {
			e.languages[lang] = true
		}
	}
	if e.cfg.Parallel > 0 {
		e.workers = e.cfg.Parallel
	}
	for name, rc := range e.cfg.Rules {
		if rc.Enabled != nil && !*rc.Enabled {
			e.checker.Disable(name)
		}
		if rc.Severity != "" {
			if sev, ok := resolver.ParseSeverity(rc.Severity); ok {
				e.checker.OverrideSeverity(name, sev)
			}
		}
	}
}

// Close releases the Engine's database resources and live parse trees.
func (e *Engine) Close() error {
	e.mu.Lock()
	for _, s := range e.structures {
		s.File().Close()
	}
	e.structures = nil
	e.mu.Unlock()
	return e.store.Close()
}

// Store returns the underlying Store for direct access.
func (e *Engine) Store() *store.Store {
	return e.store
}

// Structure returns the live structure for a previously checked path, or
// nil when the path was not checked in this Engine's lifetime.
func (e *Engine) Structure(path string) *FileStructure {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.structures[path]
}

// FileResult is the outcome of checking one file.
type FileResult struct {
	Path        string
	Language    string
	Skipped     bool
	Changed     []string // declarations changed since the previous run
	Diagnostics []Diagnostic
}

// CheckFiles checks the given paths. Unchanged files (same content hash and
// rule set) are skipped. Results are persisted and returned in path order.
func (e *Engine) CheckFiles(ctx context.Context, paths []string) ([]FileResult, error) {
	var results []FileResult
	if e.useParallel {
		var err error
		results, err = e.checkFilesParallel(ctx, paths)
		if err != nil {
			return nil, err
		}
	} else {
		for _, path := range paths {
			res, err := e.checkFile(ctx, path)
			if err != nil {
				return nil, fmt.Errorf("check %s: %w", path, err)
			}
			if res != nil {
				results = append(results, *res)
			}
		}
	}
	e.storeRulesHash()
	sort.Slice(results, func(i, j int) bool { return results[i].Path < results[j].Path })
	return results, nil
}

// fileOutcome carries one analyzed file to the persistence step.
type fileOutcome struct {
	res      *FileResult
	hash     string
	snapshot []byte
	diags    map[*syntax.Node][]Diagnostic
}

// checkFile runs the full pipeline for one path:
//  1. Detect language from extension; skip unsupported or filtered-out ones.
//  2. Skip unchanged files (same content hash, same rules).
//  3. Structure the file, or refresh the live structure incrementally.
//  4. Collect diagnostics per element.
//  5. Persist diagnostics and the declaration snapshot.
func (e *Engine) checkFile(ctx context.Context, path string) (*FileResult, error) {
	out, err := e.analyzeFile(ctx, path)
	if err != nil || out == nil {
		return nil, err
	}
	if !out.res.Skipped {
		if err := e.persist(out); err != nil {
			return nil, err
		}
	}
	return out.res, nil
}

// analyzeFile runs everything up to persistence and reports the outcome.
// A nil outcome means the path is not checkable (unsupported language or
// excluded).
func (e *Engine) analyzeFile(ctx context.Context, path string) (*fileOutcome, error) {
	lang, ok := syntax.LanguageForFile(path)
	if !ok {
		return nil, nil // unsupported extension
	}
	if e.languages != nil && !e.languages[lang] {
		return nil, nil // filtered out
	}
	if e.cfg.Excluded(path) {
		return nil, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	hash := fmt.Sprintf("%x", sha256.Sum256(content))

	existing, err := e.store.FileByPath(path)
	if err != nil {
		return nil, fmt.Errorf("lookup file: %w", err)
	}
	if existing != nil && existing.Hash == hash && !e.RulesChanged() {
		return &fileOutcome{res: &FileResult{Path: path, Language: lang, Skipped: true}}, nil
	}

	st, err := e.structureFor(ctx, path, content)
	if err != nil {
		return nil, err
	}

	diags, err := st.Diagnostics(ctx)
	if err != nil {
		return nil, err
	}

	res := &FileResult{Path: path, Language: lang}
	for _, ds := range diags {
		res.Diagnostics = append(res.Diagnostics, ds...)
	}
	sort.Slice(res.Diagnostics, func(i, j int) bool {
		a, b := res.Diagnostics[i], res.Diagnostics[j]
		if a.StartByte != b.StartByte {
			return a.StartByte < b.StartByte
		}
		return a.Rule < b.Rule
	})

	snapshot, sigs := e.snapshotOf(st)
	if existing != nil {
		old, err := store.DecodeSnapshot(existing.Snapshot)
		if err == nil {
			res.Changed = store.ChangedDecls(old, sigs)
			sort.Strings(res.Changed)
		}
	}

	return &fileOutcome{res: res, hash: hash, snapshot: snapshot, diags: diags}, nil
}

// structureFor builds a structure for new content, or applies the content
// as an incremental edit to the live structure when one exists. The
// incremental path localizes the edit, reparses, and refreshes only the
// stale elements.
func (e *Engine) structureFor(ctx context.Context, path string, content []byte) (*FileStructure, error) {
	e.mu.Lock()
	st, ok := e.structures[path]
	e.mu.Unlock()
	if ok {
		change, changed := st.File().Diff(content)
		if changed {
			if err := st.File().Apply(ctx, change); err != nil {
				return nil, fmt.Errorf("apply edit: %w", err)
			}
			if err := st.Refresh(ctx); err != nil {
				return nil, fmt.Errorf("refresh structure: %w", err)
			}
		}
		return st, nil
	}

	file, err := syntax.ParseFile(ctx, path, content)
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	built, err := newFileStructure(ctx, e.deps, file)
	if err != nil {
		file.Close()
		return nil, err
	}
	e.mu.Lock()
	e.structures[path] = built
	e.mu.Unlock()
	return built, nil
}

// snapshotOf captures per-declaration body hashes for cross-run change
// naming.
func (e *Engine) snapshotOf(st *FileStructure) ([]byte, []store.DeclSig) {
	var sigs []store.DeclSig
	for _, el := range st.Elements() {
		sem := el.Semantic()
		if sem.Kind == semtree.KindFile {
			continue
		}
		container := ""
		if sem.Parent != nil && sem.Parent.Kind == semtree.KindClass {
			container = sem.Parent.Name
		}
		sigs = append(sigs, store.DeclSig{
			Name:      sem.Name,
			Kind:      strings.ToLower(sem.Kind.String()),
			Container: container,
			BodyHash:  fmt.Sprintf("%x", sha256.Sum256(el.Syntax().Text())),
		})
	}
	blob, err := store.EncodeSnapshot(sigs)
	if err != nil {
		return nil, sigs
	}
	return blob, sigs
}

func (e *Engine) persist(out *fileOutcome) error {
	fileID, err := e.store.UpsertFile(&store.File{
		Path:        out.res.Path,
		Language:    out.res.Language,
		Hash:        out.hash,
		Snapshot:    out.snapshot,
		LastChecked: time.Now(),
	})
	if err != nil {
		return err
	}

	var rows []store.Diagnostic
	for sn, ds := range out.diags {
		decl := sn.Name()
		for _, d := range ds {
			rows = append(rows, store.Diagnostic{
				FileID:    fileID,
				Decl:      decl,
				Rule:      d.Rule,
				Severity:  d.Severity.String(),
				Message:   d.Message,
				StartByte: d.StartByte,
				EndByte:   d.EndByte,
			})
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].StartByte != rows[j].StartByte {
			return rows[i].StartByte < rows[j].StartByte
		}
		return rows[i].Rule < rows[j].Rule
	})
	return e.store.ReplaceDiagnostics(fileID, rows)
}

// rulesHash hashes the active rule set: built-in rule names plus every
// script's source. A changed hash invalidates the skip-unchanged shortcut.
func (e *Engine) rulesHash() string {
	h := sha256.New()
	for _, r := range resolver.BuiltinRules() {
		h.Write([]byte(r.Name()))
	}
	if e.rulesFS != nil {
		var paths []string
		fs.WalkDir(e.rulesFS, ".", func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if !d.IsDir() && strings.HasSuffix(path, ".risor") {
				paths = append(paths, path)
			}
			return nil
		})
		sort.Strings(paths)
		for _, p := range paths {
			src, err := fs.ReadFile(e.rulesFS, p)
			if err != nil {
				continue
			}
			h.Write([]byte(p))
			h.Write(src)
		}
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

// RulesChanged reports whether the active rules differ from what produced
// the stored results. True on first run or when the hash does not match.
func (e *Engine) RulesChanged() bool {
	current := e.rulesHash()
	stored, err := e.store.GetMetadata("rules_hash")
	if err != nil || stored == "" {
		return true
	}
	return current != stored
}

func (e *Engine) storeRulesHash() {
	_ = e.store.SetMetadata("rules_hash", e.rulesHash())
}

// skipDirs are directories excluded from discovery.
var skipDirs = map[string]bool{
	"node_modules": true,
	"vendor":       true,
	"__pycache__":  true,
}

// CheckDirectory walks root and checks all files with supported
// extensions. If root is inside a git repository, uses git ls-files to
// respect .gitignore; otherwise falls back to a filesystem walk.
func (e *Engine) CheckDirectory(ctx context.Context, root string) ([]FileResult, error) {
	paths, err := e.gitListFiles(root)
	if err != nil {
		paths, err = e.walkListFiles(root)
		if err != nil {
			return nil, err
		}
	}
	return e.CheckFiles(ctx, paths)
}

// gitListFiles uses git ls-files to discover tracked and untracked (but
// not ignored) files under root, filtered to supported languages.
func (e *Engine) gitListFiles(root string) ([]string, error) {
	cmd := exec.Command("git", "ls-files", "--cached", "--others", "--exclude-standard")
	cmd.Dir = root
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("git ls-files: %w", err)
	}

	var paths []string
	for _, line := range strings.Split(stdout.String(), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		absPath := filepath.Join(root, line)
		if _, ok := syntax.LanguageForFile(absPath); ok {
			paths = append(paths, absPath)
		}
	}
	return paths, nil
}

// walkListFiles discovers files by walking the filesystem, used as a
// fallback when git is not available.
func (e *Engine) walkListFiles(root string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if (strings.HasPrefix(name, ".") && path != root) || skipDirs[name] {
				return filepath.SkipDir
			}
			return nil
		}
		if _, ok := syntax.LanguageForFile(path); ok {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk directory: %w", err)
	}
	return paths, nil
}
