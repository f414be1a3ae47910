// Package regraft is an incremental re-resolution cache for source
// analysis built on tree-sitter. It keeps a declaration-level structure
// over each file's concrete syntax tree and recomputes analysis results
// only for the regions an edit actually touched.
//
// # Structure
//
// Each checked file is partitioned into structure elements:
//
//   - A file element covering the file's own scope and imports.
//   - A declaration element per top-level class or property, covering
//     everything nested inside it except member functions that qualify
//     for independent reanalysis.
//   - A function element per reanalyzable function: a named, non-local
//     function declared at the top level or directly inside a top-level
//     class.
//
// Every syntax declaration in a file belongs to exactly one element.
// Elements memoize their diagnostics; a failed computation stays
// unpopulated so a later call can retry.
//
// # Reanalysis
//
// When an edit is confined to one function's body, only that function's
// element goes stale. [ReanalyzableFunction.Reanalyze] rebuilds the
// function's semantic node from the edited syntax and splices it into the
// semantic tree in place of the old one. The splice is transactional: the
// replacement is built and validated first, and a failure during
// re-resolution restores the old node, leaving the previous analysis
// authoritative. A [Symbol] handle tracks the function across splices.
// Edits that change a file's declaration structure rebuild the whole
// partition.
//
// # Usage
//
// Create an Engine, check files, read diagnostics:
//
//	e, err := regraft.New("regraft.db", regraft.WithRulesFS(rules.FS))
//	if err != nil { ... }
//	defer e.Close()
//
//	ctx := context.Background()
//	results, err := e.CheckDirectory(ctx, "path/to/project")
//
// [Engine.CheckFiles] skips files whose content hash and rule set are
// unchanged since the stored run. Re-checking an edited file reuses the
// live structure: the new content is diffed against the old, applied as
// an incremental reparse, and only stale elements are recomputed.
//
// # Rules
//
// Diagnostics come from built-in rules and from Risor rule scripts. Each
// script sees one declaration at a time through a `decl` global and
// evaluates to a list of findings. The rules package embeds the scripts
// that ship with regraft; [WithRulesFS] accepts any fs.FS.
package regraft
