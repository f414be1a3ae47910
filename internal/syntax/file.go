package syntax

import (
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
)

// Change is a single textual edit: the bytes in [StartByte, OldEndByte) are
// replaced with NewText.
type Change struct {
	StartByte  uint32
	OldEndByte uint32
	NewText    []byte
}

// File is an editable parsed source file. It owns the source bytes, the
// tree-sitter tree, and a declaration-level overlay of Node handles with
// modification stamps.
//
// Apply performs an incremental tree-sitter reparse and re-anchors the
// overlay: declarations that keep their kind, name, and parent keep their
// *Node identity, and a node's stamp is bumped only when the edit changed
// the node's exclusive region (its span minus nested independently-cached
// declarations). An edit inside one function body therefore bumps that
// function's stamp and nobody else's.
type File struct {
	path     string
	language string
	content  []byte
	parser   *sitter.Parser
	tree     *sitter.Tree
	root     *Node
	version  uint64
	nextID   int
}

// Parse parses content and builds the declaration overlay.
func Parse(ctx context.Context, path string, content []byte, language string) (*File, error) {
	grammar, ok := GrammarFor(language)
	if !ok {
		return nil, fmt.Errorf("syntax: unsupported language %q", language)
	}

	parser := sitter.NewParser()
	parser.SetLanguage(grammar)

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		parser.Close()
		return nil, fmt.Errorf("syntax: parse %s: %w", path, err)
	}

	f := &File{
		path:     path,
		language: language,
		content:  content,
		parser:   parser,
		tree:     tree,
		version:  1,
	}
	f.root = f.extract()
	f.stampAll(f.root, 1)
	return f, nil
}

// ParseFile reads and parses a file from disk, detecting the language from
// the extension.
func ParseFile(ctx context.Context, path string, content []byte) (*File, error) {
	lang, ok := LanguageForFile(path)
	if !ok {
		return nil, fmt.Errorf("syntax: no grammar for %s", path)
	}
	return Parse(ctx, path, content, lang)
}

// Path returns the file path, which also serves as the file's lock identity.
func (f *File) Path() string { return f.path }

// Language returns the canonical language name.
func (f *File) Language() string { return f.language }

// Content returns the current source bytes. Callers must not mutate them.
func (f *File) Content() []byte { return f.content }

// Version returns the file's edit counter. It starts at 1 and increases by
// one per applied change.
func (f *File) Version() uint64 { return f.version }

// Root returns the overlay root (kind KindFile).
func (f *File) Root() *Node { return f.root }

// Close releases the tree-sitter tree and parser.
func (f *File) Close() {
	if f.tree != nil {
		f.tree.Close()
		f.tree = nil
	}
	if f.parser != nil {
		f.parser.Close()
		f.parser = nil
	}
}

// Apply applies changes in order, incrementally reparsing after each one and
// re-anchoring the overlay. Node identity survives for declarations whose
// (kind, name, parent) is unchanged.
func (f *File) Apply(ctx context.Context, changes ...Change) error {
	for _, change := range changes {
		if err := f.applyOne(ctx, change); err != nil {
			return err
		}
	}
	return nil
}

func (f *File) applyOne(ctx context.Context, change Change) error {
	if change.OldEndByte < change.StartByte || int(change.OldEndByte) > len(f.content) {
		return fmt.Errorf("syntax: change out of range [%d:%d) in %s", change.StartByte, change.OldEndByte, f.path)
	}

	// Capture each node's pre-edit exclusive-region signature so the
	// re-anchor pass can tell which regions the edit actually touched.
	oldSigs := make(map[*Node]string)
	f.walk(f.root, func(n *Node) {
		oldSigs[n] = exclusiveSignature(n, f.content)
	})

	edit := sitter.EditInput{
		StartIndex:  change.StartByte,
		OldEndIndex: change.OldEndByte,
		NewEndIndex: change.StartByte + uint32(len(change.NewText)),
		StartPoint:  pointAt(f.content, change.StartByte),
		OldEndPoint: pointAt(f.content, change.OldEndByte),
	}

	newContent := make([]byte, 0, len(f.content)-int(change.OldEndByte-change.StartByte)+len(change.NewText))
	newContent = append(newContent, f.content[:change.StartByte]...)
	newContent = append(newContent, change.NewText...)
	newContent = append(newContent, f.content[change.OldEndByte:]...)
	edit.NewEndPoint = pointAt(newContent, edit.NewEndIndex)

	f.tree.Edit(edit)
	f.content = newContent

	newTree, err := f.parser.ParseCtx(ctx, f.tree, f.content)
	if err != nil {
		return fmt.Errorf("syntax: reparse %s: %w", f.path, err)
	}
	if newTree != f.tree {
		f.tree.Close()
	}
	f.tree = newTree
	f.version++

	fresh := f.extract()
	f.root = f.merge(f.root, fresh)

	// Bump stamps for every surviving node whose exclusive region changed.
	f.walk(f.root, func(n *Node) {
		old, existed := oldSigs[n]
		if !existed {
			return // new node, already stamped at the current version
		}
		if exclusiveSignature(n, f.content) != old {
			n.stamp = f.version
		}
	})
	return nil
}

// Diff computes the minimal single Change turning the file's current content
// into newContent, via common prefix/suffix trimming. Returns false when the
// contents are identical.
func (f *File) Diff(newContent []byte) (Change, bool) {
	oldContent := f.content
	prefix := 0
	for prefix < len(oldContent) && prefix < len(newContent) && oldContent[prefix] == newContent[prefix] {
		prefix++
	}
	if prefix == len(oldContent) && prefix == len(newContent) {
		return Change{}, false
	}
	suffix := 0
	for suffix < len(oldContent)-prefix && suffix < len(newContent)-prefix &&
		oldContent[len(oldContent)-1-suffix] == newContent[len(newContent)-1-suffix] {
		suffix++
	}
	return Change{
		StartByte:  uint32(prefix),
		OldEndByte: uint32(len(oldContent) - suffix),
		NewText:    append([]byte(nil), newContent[prefix:len(newContent)-suffix]...),
	}, true
}

// NodeAt returns the innermost overlay node whose span contains the byte
// offset, or the file node when the offset falls outside every declaration.
func (f *File) NodeAt(offset uint32) *Node {
	n := f.root
	for {
		var deeper *Node
		for _, c := range n.children {
			if c.startByte <= offset && offset < c.endByte {
				deeper = c
				break
			}
		}
		if deeper == nil {
			return n
		}
		n = deeper
	}
}

// DeclarationByName finds a declaration by kind and name anywhere in the
// overlay. Used by tooling and tests; returns nil when absent.
func (f *File) DeclarationByName(kind Kind, name string) *Node {
	var found *Node
	f.walk(f.root, func(n *Node) {
		if found == nil && n.kind == kind && n.name == name {
			found = n
		}
	})
	return found
}

func (f *File) walk(n *Node, fn func(*Node)) {
	fn(n)
	for _, c := range n.children {
		f.walk(c, fn)
	}
}

func (f *File) stampAll(n *Node, stamp uint64) {
	n.stamp = stamp
	for _, c := range n.children {
		f.stampAll(c, stamp)
	}
}

// merge re-anchors a freshly extracted overlay onto the existing one.
// Children are matched by (kind, name, local); matched nodes keep their
// identity and receive the fresh span, unmatched fresh nodes are adopted
// as-is with the current version as their stamp.
func (f *File) merge(old, fresh *Node) *Node {
	old.startByte = fresh.startByte
	old.endByte = fresh.endByte
	old.rng = fresh.rng

	used := make([]bool, len(old.children))
	merged := make([]*Node, 0, len(fresh.children))
	for _, fc := range fresh.children {
		matched := -1
		for j, oc := range old.children {
			if !used[j] && oc.kind == fc.kind && oc.name == fc.name && oc.local == fc.local {
				matched = j
				break
			}
		}
		if matched >= 0 {
			used[matched] = true
			merged = append(merged, f.merge(old.children[matched], fc))
		} else {
			fc.parent = old
			f.stampAll(fc, f.version)
			merged = append(merged, fc)
		}
	}
	old.children = merged
	return old
}

// exclusiveSignature fingerprints the part of a node's text that belongs to
// the node itself rather than to separately cached nested declarations:
// the file node excludes all top-level declarations, a class excludes its
// reanalyzable member functions, everything else owns its full span. The
// excluded children's identities are folded in so that adding or removing a
// declaration still registers as a change to the container.
func exclusiveSignature(n *Node, content []byte) string {
	var excluded []*Node
	switch n.kind {
	case KindFile:
		for _, c := range n.children {
			switch c.kind {
			case KindFunction, KindClass, KindProperty:
				excluded = append(excluded, c)
			}
		}
	case KindClass:
		for _, c := range n.children {
			if c.kind == KindFunction && c.Reanalyzable() {
				excluded = append(excluded, c)
			}
		}
	}

	if int(n.endByte) > len(content) || n.startByte > n.endByte {
		return ""
	}

	buf := make([]byte, 0, n.endByte-n.startByte)
	pos := n.startByte
	for _, ex := range excluded {
		if ex.startByte > pos {
			buf = append(buf, content[pos:ex.startByte]...)
		}
		if ex.endByte > pos {
			pos = ex.endByte
		}
	}
	if n.endByte > pos {
		buf = append(buf, content[pos:n.endByte]...)
	}
	sig := string(buf)
	for _, ex := range excluded {
		sig += "|" + ex.kind.String() + ":" + ex.name
	}
	return sig
}

// pointAt converts a byte offset into a tree-sitter row/column point.
func pointAt(content []byte, offset uint32) sitter.Point {
	if int(offset) > len(content) {
		offset = uint32(len(content))
	}
	var p sitter.Point
	for i := uint32(0); i < offset; i++ {
		if content[i] == '\n' {
			p.Row++
			p.Column = 0
		} else {
			p.Column++
		}
	}
	return p
}
