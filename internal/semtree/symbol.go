package semtree

import (
	"strconv"
	"sync/atomic"
)

var symbolSeq atomic.Uint64

// Symbol is a stable handle to a semantic node. The handle survives
// replacement-by-identity: after a splice the same Symbol points at the
// replacement node, so holders keep referring to "the declaration" rather
// than to one particular resolved incarnation of it.
type Symbol struct {
	id   uint64
	name string
	kind Kind
	node atomic.Pointer[Node]
}

// NewSymbol creates a handle bound to n and records it on the node.
func NewSymbol(n *Node) *Symbol {
	s := &Symbol{
		id:   symbolSeq.Add(1),
		name: n.Name,
		kind: n.Kind,
	}
	n.AdoptSymbol(s)
	return s
}

// Node returns the node the symbol currently points at.
func (s *Symbol) Node() *Node { return s.node.Load() }

// Name returns the declared name captured at symbol creation.
func (s *Symbol) Name() string { return s.name }

// Kind returns the declaration kind captured at symbol creation.
func (s *Symbol) Kind() Kind { return s.kind }

// Key returns a process-unique string identity, usable as a map or
// single-flight key.
func (s *Symbol) Key() string { return strconv.FormatUint(s.id, 10) }
