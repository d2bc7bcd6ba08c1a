package reduce

import (
	"strings"

	"pycomplete/internal/engine/parser"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

// ImportStmt is one import statement rebuilt as a single line.
type ImportStmt struct {
	Text   string
	Line   int
	Future bool
}

// ImportUnit holds the module-level imports of a file in source order.
type ImportUnit struct {
	Path  string
	Stmts []ImportStmt
}

// Statements returns the plain import statements.
func (u *ImportUnit) Statements() []string {
	out := make([]string, 0, len(u.Stmts))
	for _, s := range u.Stmts {
		out = append(out, s.Text)
	}
	return out
}

// Source renders the unit as executable code. __future__ imports stay
// unwrapped because the compiler rejects them inside try. Every other import
// is wrapped on its own so one failing import does not stop the rest.
func (u *ImportUnit) Source() string {
	var sb strings.Builder
	for _, s := range u.Stmts {
		if s.Future {
			sb.WriteString(s.Text)
			sb.WriteByte('\n')
			continue
		}
		sb.WriteString("try:\n")
		sb.WriteString(indentUnit + s.Text + "\n")
		sb.WriteString("except Exception:\n")
		sb.WriteString(indentUnit + "pass\n")
	}
	return sb.String()
}

// ExtractImports collects the imports of a module outside of function and
// class bodies. Imports under top-level if/try/with blocks are included.
func ExtractImports(tree *parser.Tree) *ImportUnit {
	unit := &ImportUnit{Path: tree.Path}
	collect := func(t *parser.Tree, node *sitter.Node) bool {
		if stmt, ok := importStatement(t, node); ok {
			unit.Stmts = append(unit.Stmts, stmt)
		}
		return true
	}
	walker := parser.NewWalker(map[string]parser.NodeHandler{
		"function_definition":     parser.Skip,
		"class_definition":        parser.Skip,
		"import_statement":        collect,
		"import_from_statement":   collect,
		"future_import_statement": collect,
	})
	walker.Walk(tree, tree.Root())
	return unit
}

// importStatement rebuilds an import node from its parts so that comments
// and line continuations inside parenthesized name lists disappear.
func importStatement(t *parser.Tree, node *sitter.Node) (ImportStmt, bool) {
	stmt := ImportStmt{Line: t.Line(node)}
	switch node.Kind() {
	case "import_statement":
		names := importNames(t, node, nil)
		if len(names) == 0 {
			return stmt, false
		}
		stmt.Text = "import " + strings.Join(names, ", ")
	case "future_import_statement":
		names := importNames(t, node, nil)
		if len(names) == 0 {
			return stmt, false
		}
		stmt.Text = "from __future__ import " + strings.Join(names, ", ")
		stmt.Future = true
	case "import_from_statement":
		module := node.ChildByFieldName("module_name")
		if module == nil {
			return stmt, false
		}
		moduleName := squeeze(t.Text(module))
		var names []string
		if parser.FirstChildOfKind(node, "wildcard_import") != nil {
			names = []string{"*"}
		} else {
			names = importNames(t, node, module)
		}
		if len(names) == 0 {
			return stmt, false
		}
		stmt.Text = "from " + moduleName + " import " + strings.Join(names, ", ")
		stmt.Future = moduleName == "__future__"
	default:
		return stmt, false
	}
	return stmt, true
}

// importNames renders the imported names (dotted or aliased) of node,
// skipping the module node of a from-import.
func importNames(t *parser.Tree, node, module *sitter.Node) []string {
	var names []string
	for _, child := range parser.NamedChildren(node) {
		if module != nil && child.StartByte() == module.StartByte() {
			continue
		}
		switch child.Kind() {
		case "dotted_name":
			names = append(names, squeeze(t.Text(child)))
		case "aliased_import":
			name := child.ChildByFieldName("name")
			alias := child.ChildByFieldName("alias")
			if name == nil || alias == nil {
				continue
			}
			names = append(names, squeeze(t.Text(name))+" as "+t.Text(alias))
		}
	}
	return names
}

// squeeze removes all whitespace, for dotted names like "os . path".
func squeeze(s string) string {
	return strings.Join(strings.Fields(s), "")
}
