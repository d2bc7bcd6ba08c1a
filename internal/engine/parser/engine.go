package parser

import (
	sitter "github.com/tree-sitter/go-tree-sitter"
)

// NodeHandler processes a node during a walk.
// Returns true if the walker must not descend into the node's children.
type NodeHandler func(tree *Tree, node *sitter.Node) bool

// Walker walks the syntax tree and dispatches node handlers by kind.
type Walker struct {
	handlers map[string]NodeHandler
}

func NewWalker(handlers map[string]NodeHandler) *Walker {
	return &Walker{handlers: handlers}
}

// Walk visits node and its descendants depth-first in source order.
func (w *Walker) Walk(tree *Tree, node *sitter.Node) {
	if node == nil {
		return
	}

	stop := false
	if handler, ok := w.handlers[node.Kind()]; ok {
		stop = handler(tree, node)
	}

	if !stop {
		for i := uint(0); i < node.ChildCount(); i++ {
			w.Walk(tree, node.Child(i))
		}
	}
}

// Skip is a NodeHandler that prunes the subtree.
func Skip(*Tree, *sitter.Node) bool { return true }
