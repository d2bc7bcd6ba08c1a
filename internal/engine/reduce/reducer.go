package reduce

import (
	"pycomplete/internal/engine/parser"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

// keptDecorators are the builtin decorators that change what completion
// sees on a class (descriptor type of the attribute).
var keptDecorators = map[string]bool{
	"staticmethod": true,
	"classmethod":  true,
	"property":     true,
}

var propertyAccessors = map[string]bool{
	"setter":  true,
	"getter":  true,
	"deleter": true,
}

// Reduce turns a syntax tree into a module that defines the same top-level
// names but performs no work when executed: function bodies are gutted,
// expression statements other than string literals are dropped and
// assigned values are neutralized. The tree is not modified.
func Reduce(tree *parser.Tree) *Module {
	r := &reducer{tree: tree}
	m := &Module{Path: tree.Path}
	for _, child := range parser.NamedChildren(tree.Root()) {
		m.Body = append(m.Body, r.statement(child, "")...)
		if len(r.hoisted) > 0 {
			m.Body = append(m.Body, r.hoisted...)
			r.hoisted = nil
		}
	}
	return m
}

type reducer struct {
	tree *parser.Tree
	// hoisted holds self attribute assignments of the class being reduced,
	// emitted after the enclosing top-level class statement.
	hoisted []Stmt
}

// statement reduces one statement. class is the qualified name of the
// enclosing class, empty at module level.
func (r *reducer) statement(node *sitter.Node, class string) []Stmt {
	switch node.Kind() {
	case "import_statement", "import_from_statement":
		if class != "" {
			return nil
		}
		if stmt, ok := importStatement(r.tree, node); ok && !stmt.Future {
			return []Stmt{&Import{Text: stmt.Text, Line: stmt.Line}}
		}
	case "expression_statement":
		return r.expressionStatement(node)
	case "function_definition":
		return []Stmt{r.function(node, nil)}
	case "class_definition":
		return []Stmt{r.class(node, class)}
	case "decorated_definition":
		def := node.ChildByFieldName("definition")
		if def == nil {
			return nil
		}
		switch def.Kind() {
		case "function_definition":
			return []Stmt{r.function(def, decoratorsOf(node))}
		case "class_definition":
			return []Stmt{r.class(def, class)}
		}
	}
	return nil
}

func decoratorsOf(node *sitter.Node) []*sitter.Node {
	var out []*sitter.Node
	for _, child := range parser.NamedChildren(node) {
		if child.Kind() == "decorator" {
			out = append(out, child)
		}
	}
	return out
}

func (r *reducer) expressionStatement(node *sitter.Node) []Stmt {
	if doc, ok := docstring(r.tree, node); ok {
		return []Stmt{&Docstring{Text: doc, Line: r.tree.Line(node)}}
	}
	children := parser.NamedChildren(node)
	if len(children) != 1 || children[0].Kind() != "assignment" {
		return nil
	}
	return r.assignment(children[0])
}

// assignment reduces a (possibly chained or annotated) assignment to plain
// name bindings. Unpacked names get the placeholder value.
func (r *reducer) assignment(node *sitter.Node) []Stmt {
	var names, unpacked []string
	value := node
	for value != nil && value.Kind() == "assignment" {
		left := value.ChildByFieldName("left")
		if left != nil {
			switch left.Kind() {
			case "identifier":
				names = append(names, r.tree.Text(left))
			case "pattern_list", "tuple_pattern", "list_pattern", "tuple", "list":
				unpacked = append(unpacked, patternNames(r.tree, left)...)
			}
		}
		value = value.ChildByFieldName("right")
	}
	if value == nil {
		// Annotation without value: nothing is bound at runtime.
		return nil
	}

	line := r.tree.Line(node)
	var out []Stmt
	if len(names) > 0 {
		out = append(out, &Assign{Targets: names, Value: neutralize(r.tree, value), Line: line})
	}
	if len(unpacked) > 0 {
		out = append(out, &Assign{Targets: unpacked, Value: placeholder, Line: line})
	}
	return out
}

// patternNames lists the plain names bound by an unpacking target.
func patternNames(t *parser.Tree, node *sitter.Node) []string {
	var out []string
	for _, child := range parser.NamedChildren(node) {
		switch child.Kind() {
		case "identifier":
			out = append(out, t.Text(child))
		case "pattern_list", "tuple_pattern", "list_pattern", "tuple", "list", "list_splat_pattern", "parenthesized_expression":
			out = append(out, patternNames(t, child)...)
		}
	}
	return out
}

func (r *reducer) function(node *sitter.Node, decorators []*sitter.Node) *FuncDef {
	def := &FuncDef{
		Name:  r.tree.Text(node.ChildByFieldName("name")),
		Async: parser.FirstChildOfKind(node, "async") != nil,
		Line:  r.tree.Line(node),
	}
	def.BodyLine = def.Line

	for _, d := range decorators {
		if kept, ok := r.decorator(d); ok {
			def.Decorators = append(def.Decorators, kept)
		}
	}
	if params := node.ChildByFieldName("parameters"); params != nil {
		for _, p := range parser.NamedChildren(params) {
			if param, ok := r.parameter(p); ok {
				def.Params = append(def.Params, param)
			}
		}
	}
	if body := node.ChildByFieldName("body"); body != nil {
		stmts := parser.NamedChildren(body)
		if len(stmts) > 0 {
			def.BodyLine = r.tree.Line(stmts[0])
			if doc, ok := docstring(r.tree, stmts[0]); ok {
				def.Doc = &Docstring{Text: doc, Line: def.BodyLine}
				if len(stmts) > 1 {
					def.BodyLine = r.tree.Line(stmts[1])
				}
			}
		}
	}
	return def
}

func (r *reducer) decorator(node *sitter.Node) (Decorator, bool) {
	children := parser.NamedChildren(node)
	if len(children) != 1 {
		return Decorator{}, false
	}
	expr := children[0]
	line := r.tree.Line(node)
	switch expr.Kind() {
	case "identifier":
		name := r.tree.Text(expr)
		if keptDecorators[name] {
			return Decorator{Text: name, Line: line}, true
		}
	case "attribute":
		obj := expr.ChildByFieldName("object")
		attr := expr.ChildByFieldName("attribute")
		if obj != nil && attr != nil && obj.Kind() == "identifier" && propertyAccessors[r.tree.Text(attr)] {
			return Decorator{Text: r.tree.Text(obj) + "." + r.tree.Text(attr), Line: line, Guarded: true}, true
		}
	}
	return Decorator{}, false
}

// parameter renders a parameter without its annotation.
func (r *reducer) parameter(node *sitter.Node) (Param, bool) {
	switch node.Kind() {
	case "identifier", "list_splat_pattern", "dictionary_splat_pattern":
		return Param{Text: r.tree.CompactText(node)}, true
	case "keyword_separator":
		return Param{Text: "*"}, true
	case "positional_separator":
		return Param{Text: "/"}, true
	case "typed_parameter":
		children := parser.NamedChildren(node)
		if len(children) == 0 {
			return Param{}, false
		}
		return Param{Text: r.tree.CompactText(children[0])}, true
	case "default_parameter", "typed_default_parameter":
		name := node.ChildByFieldName("name")
		if name == nil {
			return Param{}, false
		}
		value := neutralizeDefault(r.tree, node.ChildByFieldName("value"))
		return Param{Text: r.tree.Text(name), Default: &value}, true
	}
	return Param{}, false
}

func (r *reducer) class(node *sitter.Node, outer string) *ClassDef {
	def := &ClassDef{
		Name: r.tree.Text(node.ChildByFieldName("name")),
		Line: r.tree.Line(node),
	}
	qualified := def.Name
	if outer != "" {
		qualified = outer + "." + def.Name
	}
	if supers := node.ChildByFieldName("superclasses"); supers != nil {
		def.Bases = r.bases(supers)
	}

	body := node.ChildByFieldName("body")
	r.hoisted = append(r.hoisted, r.selfAssignments(body, qualified)...)
	for _, child := range parser.NamedChildren(body) {
		def.Body = append(def.Body, r.statement(child, qualified)...)
	}
	return def
}

// bases keeps the base classes and keyword arguments (metaclass=...) that
// are plain dotted names. Computed bases are dropped.
func (r *reducer) bases(args *sitter.Node) []string {
	var out []string
	for _, arg := range parser.NamedChildren(args) {
		switch arg.Kind() {
		case "identifier", "attribute":
			if name, ok := dottedName(r.tree, arg); ok {
				out = append(out, name)
			}
		case "keyword_argument":
			key := arg.ChildByFieldName("name")
			value := arg.ChildByFieldName("value")
			if key == nil || value == nil {
				continue
			}
			if name, ok := dottedName(r.tree, value); ok {
				out = append(out, r.tree.Text(key)+"="+name)
			}
		}
	}
	return out
}

// selfAssignments collects every self.<attr> assignment in a class body,
// including those nested in methods and their inner functions, and turns
// them into class attribute assignments on the qualified class name.
// Nested classes are left to their own pass.
func (r *reducer) selfAssignments(body *sitter.Node, class string) []Stmt {
	if body == nil {
		return nil
	}
	var order []string
	byAttr := make(map[string]*Assign)

	collect := func(t *parser.Tree, node *sitter.Node) bool {
		left := node.ChildByFieldName("left")
		right := node.ChildByFieldName("right")
		if left == nil || right == nil || left.Kind() != "attribute" {
			return false
		}
		obj := left.ChildByFieldName("object")
		attr := left.ChildByFieldName("attribute")
		if obj == nil || attr == nil || obj.Kind() != "identifier" || t.Text(obj) != "self" {
			return false
		}
		for right.Kind() == "assignment" && right.ChildByFieldName("right") != nil {
			right = right.ChildByFieldName("right")
		}
		value := neutralize(t, right)
		value.Guarded = true

		name := t.Text(attr)
		prev, seen := byAttr[name]
		if !seen {
			order = append(order, name)
			byAttr[name] = &Assign{Targets: []string{class + "." + name}, Value: value, Line: t.Line(node)}
			return false
		}
		if prev.Value.Placeholder() && !value.Placeholder() {
			prev.Value = value
			prev.Line = t.Line(node)
		}
		return false
	}

	walker := parser.NewWalker(map[string]parser.NodeHandler{
		"class_definition": parser.Skip,
		"assignment":       collect,
	})
	for _, child := range parser.NamedChildren(body) {
		walker.Walk(r.tree, child)
	}

	out := make([]Stmt, 0, len(order))
	for _, name := range order {
		out = append(out, byAttr[name])
	}
	return out
}
