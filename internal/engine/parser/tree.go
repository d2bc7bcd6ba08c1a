package parser

import (
	"fmt"
	"strings"

	"pycomplete/internal/core/errors"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

// Tree is a parsed Python module together with the bytes it was parsed
// from. It is immutable input for the reducer and must be closed after use.
type Tree struct {
	Path   string
	Source []byte
	tree   *sitter.Tree
}

func (t *Tree) Root() *sitter.Node {
	if t == nil || t.tree == nil {
		return nil
	}
	return t.tree.RootNode()
}

func (t *Tree) Close() {
	if t == nil || t.tree == nil {
		return
	}
	t.tree.Close()
	t.tree = nil
}

func (t *Tree) Text(node *sitter.Node) string {
	if node == nil {
		return ""
	}
	return string(t.Source[node.StartByte():node.EndByte()])
}

// Line returns the 1-based line a node starts on.
func (t *Tree) Line(node *sitter.Node) int {
	if node == nil {
		return 0
	}
	return int(node.StartPosition().Row) + 1
}

// SyntaxError reports the first ERROR or MISSING node of the tree in the
// same shape Python uses for its own syntax errors, or nil for a clean tree.
func (t *Tree) SyntaxError() error {
	root := t.Root()
	if root == nil {
		return errors.New(errors.CodeParse, "empty syntax tree")
	}
	if !root.HasError() {
		return nil
	}
	line := 1
	if bad := firstErrorNode(root); bad != nil {
		line = t.Line(bad)
	}
	name := t.Path
	if name == "" {
		name = "<string>"
	}
	return errors.AddContext(
		errors.New(errors.CodeParse, fmt.Sprintf("invalid syntax (%s, line %d)", name, line)),
		errors.CtxPath, t.Path)
}

func firstErrorNode(node *sitter.Node) *sitter.Node {
	if node == nil {
		return nil
	}
	if node.IsError() || node.IsMissing() {
		return node
	}
	if !node.HasError() {
		return nil
	}
	for i := uint(0); i < node.ChildCount(); i++ {
		if found := firstErrorNode(node.Child(i)); found != nil {
			return found
		}
	}
	return nil
}

// NamedChildren returns the named children of node, skipping comments.
func NamedChildren(node *sitter.Node) []*sitter.Node {
	if node == nil {
		return nil
	}
	out := make([]*sitter.Node, 0, node.NamedChildCount())
	for i := uint(0); i < node.NamedChildCount(); i++ {
		child := node.NamedChild(i)
		if child == nil || child.Kind() == "comment" {
			continue
		}
		out = append(out, child)
	}
	return out
}

// FirstChildOfKind returns the first direct child with the given kind.
func FirstChildOfKind(node *sitter.Node, kind string) *sitter.Node {
	if node == nil {
		return nil
	}
	for i := uint(0); i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child != nil && child.Kind() == kind {
			return child
		}
	}
	return nil
}

// CompactText collapses all runs of whitespace in a node's text to single
// spaces. Used for one-line identifiers such as dotted names.
func (t *Tree) CompactText(node *sitter.Node) string {
	return strings.Join(strings.Fields(t.Text(node)), " ")
}
