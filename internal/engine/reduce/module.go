package reduce

import (
	"strings"
)

const indentUnit = "    "

// Module is a reduced Python module. It is built fresh from a syntax tree
// and never shares nodes with it.
type Module struct {
	Path string
	Body []Stmt
}

// Stmt is one statement of a reduced module.
type Stmt interface {
	render(w *writer, depth int)
}

// LineMap maps lines of a rendered module (1-based index) to lines of the
// source it was reduced from. Zero means the line has no source counterpart.
type LineMap []int

// Source returns the source line for a rendered line, or the rendered line
// itself when it is out of range or unmapped.
func (m LineMap) Source(line int) int {
	if line < 1 || line > len(m) || m[line-1] == 0 {
		return line
	}
	return m[line-1]
}

// Render returns the module as Python source together with its line map.
func (m *Module) Render() (string, LineMap) {
	w := &writer{}
	for _, stmt := range m.Body {
		stmt.render(w, 0)
	}
	return w.sb.String(), w.lines
}

type writer struct {
	sb    strings.Builder
	lines LineMap
}

// emit writes text at the given depth. Only the first line of a multi-line
// text is indented: continuation lines belong to a string literal.
func (w *writer) emit(depth int, text string, srcLine int) {
	w.sb.WriteString(strings.Repeat(indentUnit, depth))
	w.sb.WriteString(text)
	w.sb.WriteByte('\n')
	n := strings.Count(text, "\n") + 1
	for i := 0; i < n; i++ {
		if srcLine > 0 {
			w.lines = append(w.lines, srcLine+i)
		} else {
			w.lines = append(w.lines, 0)
		}
	}
}

func (w *writer) guard(depth int, srcLine int, body func(depth int), fallback func(depth int)) {
	w.emit(depth, "try:", srcLine)
	body(depth + 1)
	w.emit(depth, "except Exception:", srcLine)
	if fallback == nil {
		w.emit(depth+1, "pass", srcLine)
		return
	}
	fallback(depth + 1)
}

// Import is a module-level import statement. It is always emitted guarded.
type Import struct {
	Text string
	Line int
}

func (s *Import) render(w *writer, depth int) {
	w.guard(depth, s.Line, func(d int) { w.emit(d, s.Text, s.Line) }, nil)
}

// Docstring is a string literal expression statement.
type Docstring struct {
	Text string
	Line int
}

func (s *Docstring) render(w *writer, depth int) {
	w.emit(depth, s.Text, s.Line)
}

// Assign binds one or more targets to a neutralized value.
type Assign struct {
	Targets []string
	Value   Value
	Line    int
}

func (s *Assign) text() string {
	return strings.Join(s.Targets, " = ") + " = " + s.Value.Expr
}

func (s *Assign) render(w *writer, depth int) {
	if !s.Value.Guarded {
		w.emit(depth, s.text(), s.Line)
		return
	}
	w.guard(depth, s.Line, func(d int) { w.emit(d, s.text(), s.Line) }, nil)
}

// Param is one entry of a parameter list, already rendered without its
// default ("a", "*args", "**kw", "*", "/").
type Param struct {
	Text    string
	Default *Value
}

type Decorator struct {
	Text string
	Line int
	// Guarded decorators refer to module state (prop.setter) and may raise.
	Guarded bool
}

// FuncDef is a function definition with its body reduced to an optional
// docstring followed by pass.
type FuncDef struct {
	Name       string
	Async      bool
	Params     []Param
	Decorators []Decorator
	Doc        *Docstring
	Line       int
	BodyLine   int
}

// Guarded reports whether the definition needs a fallback definition
// because its decorators or defaults may raise.
func (s *FuncDef) Guarded() bool {
	for _, d := range s.Decorators {
		if d.Guarded {
			return true
		}
	}
	for _, p := range s.Params {
		if p.Default != nil && p.Default.Guarded {
			return true
		}
	}
	return false
}

func (s *FuncDef) render(w *writer, depth int) {
	if !s.Guarded() {
		s.renderDef(w, depth, false)
		return
	}
	w.guard(depth, s.Line,
		func(d int) { s.renderDef(w, d, false) },
		func(d int) { s.renderDef(w, d, true) })
}

// renderDef writes the definition. The fallback form drops decorators and
// replaces every default by None so it cannot raise.
func (s *FuncDef) renderDef(w *writer, depth int, fallback bool) {
	if !fallback {
		for _, d := range s.Decorators {
			w.emit(depth, "@"+d.Text, d.Line)
		}
	}
	params := make([]string, 0, len(s.Params))
	for _, p := range s.Params {
		switch {
		case p.Default == nil:
			params = append(params, p.Text)
		case fallback:
			params = append(params, p.Text+"=None")
		default:
			params = append(params, p.Text+"="+p.Default.Expr)
		}
	}
	header := "def " + s.Name + "(" + strings.Join(params, ", ") + "):"
	if s.Async {
		header = "async " + header
	}
	w.emit(depth, header, s.Line)
	if s.Doc != nil {
		s.Doc.render(w, depth+1)
	}
	w.emit(depth+1, "pass", s.BodyLine)
}

// ClassDef is a class definition with a reduced body.
type ClassDef struct {
	Name  string
	Bases []string
	Body  []Stmt
	Line  int
}

func (s *ClassDef) render(w *writer, depth int) {
	if len(s.Bases) == 0 {
		s.renderClass(w, depth, false)
		return
	}
	w.guard(depth, s.Line,
		func(d int) { s.renderClass(w, d, false) },
		func(d int) { s.renderClass(w, d, true) })
}

func (s *ClassDef) renderClass(w *writer, depth int, fallback bool) {
	header := "class " + s.Name
	if !fallback && len(s.Bases) > 0 {
		header += "(" + strings.Join(s.Bases, ", ") + ")"
	}
	w.emit(depth, header+":", s.Line)
	if len(s.Body) == 0 {
		w.emit(depth+1, "pass", s.Line)
		return
	}
	for _, stmt := range s.Body {
		stmt.render(w, depth+1)
	}
}
