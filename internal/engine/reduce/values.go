package reduce

import (
	"regexp"
	"strings"

	"pycomplete/internal/engine/parser"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

// classNamePattern matches CapWords identifiers, which are assumed to name
// classes. A call of such a name is replaced by the class itself.
var classNamePattern = regexp.MustCompile(`^_?[A-Z][A-Za-z0-9]+$`)

// openReplacement stands in for the result of open(...). It keeps the member
// set of a buffered file object without touching the file system and does
// not depend on io being imported by the module.
const openReplacement = `__import__("io").BufferedIOBase`

// Value is a neutralized right-hand side.
type Value struct {
	Expr string
	// Guarded values may raise when evaluated (for example a class name that
	// failed to import) and must be assigned inside try/except.
	Guarded bool
}

var placeholder = Value{Expr: "None"}

// Placeholder reports whether v carries no information beyond "some value".
func (v Value) Placeholder() bool {
	return v.Expr == "None"
}

// IsClassName reports whether name looks like a class name.
func IsClassName(name string) bool {
	return classNamePattern.MatchString(name)
}

// neutralize maps an expression to a value that is safe to evaluate.
func neutralize(t *parser.Tree, node *sitter.Node) Value {
	if node == nil {
		return placeholder
	}
	switch node.Kind() {
	case "integer", "float", "true", "false", "none":
		return Value{Expr: t.CompactText(node)}
	case "string":
		if isPlainString(node) {
			return Value{Expr: t.Text(node)}
		}
	case "concatenated_string":
		for _, part := range parser.NamedChildren(node) {
			if part.Kind() != "string" || !isPlainString(part) {
				return placeholder
			}
		}
		return Value{Expr: t.Text(node)}
	case "unary_operator":
		op := node.ChildByFieldName("operator")
		arg := node.ChildByFieldName("argument")
		if op != nil && arg != nil && (t.Text(op) == "-" || t.Text(op) == "+") {
			if kind := arg.Kind(); kind == "integer" || kind == "float" {
				return Value{Expr: t.Text(op) + t.CompactText(arg)}
			}
		}
	case "list", "list_comprehension":
		return Value{Expr: "[]"}
	case "tuple":
		return Value{Expr: "()"}
	case "dictionary":
		return Value{Expr: "{}"}
	case "call":
		return neutralizeCall(t, node)
	}
	return placeholder
}

func neutralizeCall(t *parser.Tree, node *sitter.Node) Value {
	fn := node.ChildByFieldName("function")
	if fn == nil {
		return placeholder
	}
	switch fn.Kind() {
	case "identifier":
		name := t.Text(fn)
		if name == "open" {
			return Value{Expr: openReplacement, Guarded: true}
		}
		if IsClassName(name) {
			return Value{Expr: name, Guarded: true}
		}
	case "attribute":
		attr := fn.ChildByFieldName("attribute")
		if attr == nil || !IsClassName(t.Text(attr)) {
			return placeholder
		}
		if dotted, ok := dottedName(t, fn); ok {
			return Value{Expr: dotted, Guarded: true}
		}
	}
	return placeholder
}

// neutralizeDefault is neutralize for parameter defaults. Defaults may also
// refer to names, e.g. sentinel objects, which are looked up guarded.
func neutralizeDefault(t *parser.Tree, node *sitter.Node) Value {
	if node != nil && (node.Kind() == "identifier" || node.Kind() == "attribute") {
		if dotted, ok := dottedName(t, node); ok {
			return Value{Expr: dotted, Guarded: true}
		}
	}
	return neutralize(t, node)
}

// dottedName renders a chain of plain attribute accesses (a.b.c). It fails
// for anything containing calls, subscripts or other expressions.
func dottedName(t *parser.Tree, node *sitter.Node) (string, bool) {
	switch node.Kind() {
	case "identifier":
		return t.Text(node), true
	case "attribute":
		obj := node.ChildByFieldName("object")
		attr := node.ChildByFieldName("attribute")
		if obj == nil || attr == nil {
			return "", false
		}
		prefix, ok := dottedName(t, obj)
		if !ok {
			return "", false
		}
		return prefix + "." + t.Text(attr), true
	}
	return "", false
}

// isPlainString reports whether a string node has no f-string interpolation.
func isPlainString(node *sitter.Node) bool {
	return parser.FirstChildOfKind(node, "interpolation") == nil
}

// docstring returns the string literal of a statement that is only a plain
// string, as used for docstrings.
func docstring(t *parser.Tree, stmt *sitter.Node) (string, bool) {
	if stmt == nil || stmt.Kind() != "expression_statement" {
		return "", false
	}
	children := parser.NamedChildren(stmt)
	if len(children) != 1 || children[0].Kind() != "string" || !isPlainString(children[0]) {
		return "", false
	}
	return strings.TrimRight(t.Text(children[0]), " \t"), true
}
