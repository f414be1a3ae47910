package syntax

import (
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
)

// Kind classifies an overlay node. The overlay tracks declaration-level
// structure only; statement- and expression-level syntax stays in the
// underlying tree-sitter tree.
type Kind int

const (
	// KindFile is the root node of a parsed file.
	KindFile Kind = iota
	// KindPackage is a package/module directive (Go package clause).
	KindPackage
	// KindImport is a single import declaration.
	KindImport
	// KindFunction is a named function or method declaration.
	KindFunction
	// KindClass is a type-level declaration that owns members
	// (Go type declaration, Python class).
	KindClass
	// KindProperty is a top-level value declaration (var, const,
	// module-level assignment).
	KindProperty
)

func (k Kind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindPackage:
		return "package"
	case KindImport:
		return "import"
	case KindFunction:
		return "function"
	case KindClass:
		return "class"
	case KindProperty:
		return "property"
	}
	return "unknown"
}

// Node is a handle to one declaration-level region of a parsed file.
//
// Node identity is stable across edits: as long as a declaration keeps its
// kind, name, and parent, Apply reuses the same *Node and only updates its
// span and modification stamp. Consumers may therefore hold *Node references
// across reparses and compare stamps to detect staleness.
type Node struct {
	file *File
	id   int
	kind Kind
	name string

	startByte uint32
	endByte   uint32
	rng       sitter.Range

	parent   *Node
	children []*Node

	// local marks named functions nested inside another function body.
	// Local functions never get their own structure element.
	local bool

	// stamp is the file version of the last edit that landed inside this
	// node's exclusive region (its span minus nested declarations).
	stamp uint64
}

// Kind returns the node's declaration kind.
func (n *Node) Kind() Kind { return n.kind }

// Name returns the declared name, or "" for unnamed nodes (file, imports).
func (n *Node) Name() string { return n.name }

// File returns the owning file.
func (n *Node) File() *File { return n.file }

// Parent returns the enclosing overlay node, or nil for the file node.
func (n *Node) Parent() *Node { return n.parent }

// Children returns the node's declaration-level children. The returned
// slice is shared; callers must not mutate it.
func (n *Node) Children() []*Node { return n.children }

// Span returns the node's byte range in the current file content.
func (n *Node) Span() (start, end uint32) { return n.startByte, n.endByte }

// Range returns the node's tree-sitter range (bytes and points).
func (n *Node) Range() sitter.Range { return n.rng }

// ModStamp returns the node's current modification stamp. The stamp
// increases monotonically; it changes whenever an edit lands inside the
// node's region.
func (n *Node) ModStamp() uint64 { return n.stamp }

// Local reports whether the node is a named function nested inside another
// function body.
func (n *Node) Local() bool { return n.local }

// Text returns the node's source text in the current file content.
func (n *Node) Text() []byte {
	content := n.file.Content()
	if int(n.endByte) > len(content) {
		return nil
	}
	return content[n.startByte:n.endByte]
}

// Raw resolves the overlay node back to its tree-sitter node in the file's
// current tree, by exact byte span. Raw nodes must not be retained across
// Apply calls.
func (n *Node) Raw() *sitter.Node {
	root := n.file.tree.RootNode()
	if n.kind == KindFile {
		return root
	}
	return rawBySpan(root, n.startByte, n.endByte)
}

// rawBySpan walks down to the outermost named node with the exact span,
// falling back to the smallest named node containing it.
func rawBySpan(raw *sitter.Node, start, end uint32) *sitter.Node {
	if raw.StartByte() == start && raw.EndByte() == end {
		return raw
	}
	for i := 0; i < int(raw.NamedChildCount()); i++ {
		c := raw.NamedChild(i)
		if c.StartByte() <= start && end <= c.EndByte() {
			return rawBySpan(c, start, end)
		}
	}
	return raw
}

// HasError reports whether the node's current subtree contains a parse error.
func (n *Node) HasError() bool {
	raw := n.Raw()
	return raw == nil || raw.HasError()
}

// Reanalyzable reports whether the node is an independently re-resolvable
// function: a named, non-local function declared at file level or as a
// direct member of a top-level class. Functions nested any deeper are owned
// by their enclosing declaration's cache region.
func (n *Node) Reanalyzable() bool {
	if n.kind != KindFunction || n.name == "" || n.local {
		return false
	}
	p := n.parent
	if p == nil {
		return false
	}
	if p.kind == KindFile {
		return true
	}
	return p.kind == KindClass && p.parent != nil && p.parent.kind == KindFile
}

func (n *Node) String() string {
	if n.name != "" {
		return fmt.Sprintf("%s %s [%d:%d)", n.kind, n.name, n.startByte, n.endByte)
	}
	return fmt.Sprintf("%s [%d:%d)", n.kind, n.startByte, n.endByte)
}

// contains reports whether the byte interval [start, end) falls inside the
// node's span.
func (n *Node) contains(start, end uint32) bool {
	return n.startByte <= start && end <= n.endByte
}
