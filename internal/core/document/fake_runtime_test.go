package document

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"pycomplete/internal/core/errors"
	"pycomplete/internal/engine/runtime"
)

// fakeObj is a scripted Python object.
type fakeObj struct {
	name    string
	kind    runtime.Kind
	doc     string
	falsy   bool
	members map[string]*fakeObj
	spec    *runtime.ArgSpec
	init    *fakeObj
	bases   []*fakeObj
	fn      *fakeObj
	loc     *runtime.Location
}

type fakeSpace struct {
	file     string
	locals   map[string]*fakeObj
	saved    map[string]*fakeObj
	hasSaved bool
	refs     map[runtime.Ref]*fakeObj
}

// fakeRuntime interprets just enough of Python to drive a Document: plain
// import lines, top-level def/class/assignment lines and dotted lookups.
type fakeRuntime struct {
	modules    map[string]*fakeObj
	builtins   map[string]*fakeObj
	generation uint64
	spaces     map[runtime.Namespace]*fakeSpace
	nextRef    runtime.Ref

	infoCalls int
	evals     []string
	execs     []string
	helps     []string
	released  []runtime.Namespace
	helpErr   error
}

var (
	dottedExpr = regexp.MustCompile(`^[A-Za-z_]\w*(\.[A-Za-z_]\w*)*$`)
	importLine = regexp.MustCompile(`^(\s*)import ([\w.]+)(?: as (\w+))?$`)
	fromLine   = regexp.MustCompile(`^(\s*)from ([\w.]+) import (\w+)$`)
	defLine    = regexp.MustCompile(`^(?:async )?def (\w+)\(`)
	classLine  = regexp.MustCompile(`^class (\w+)`)
	assignLine = regexp.MustCompile(`^(\w+) = `)
)

func module(name, doc string, members ...*fakeObj) *fakeObj {
	m := &fakeObj{name: name, kind: runtime.KindOther, doc: doc, members: map[string]*fakeObj{}}
	for _, member := range members {
		m.members[member.name] = member
	}
	return m
}

func function(name string, args ...string) *fakeObj {
	return &fakeObj{
		name: name,
		kind: runtime.KindFunction,
		spec: &runtime.ArgSpec{Name: name, Args: args},
	}
}

func value(name, doc string) *fakeObj {
	return &fakeObj{name: name, kind: runtime.KindScalar, doc: doc}
}

func newFakeRuntime() *fakeRuntime {
	osPath := module("path", "Common pathname manipulations.",
		function("join", "a"),
		value("sep", "str(object='') -> str"),
	)
	osMod := module("os", "OS routines for NT or Posix.",
		osPath,
		value("pardir", ""),
		value("pathsep", ""),
		function("getcwd"),
	)

	base := &fakeObj{name: "Base", kind: runtime.KindClass, doc: "A shape."}
	base.init = &fakeObj{
		name: "__init__",
		kind: runtime.KindFunction,
		spec: &runtime.ArgSpec{Name: "__init__", Args: []string{"self", "size", "color"}, Defaults: []string{"'red'"}},
		loc:  &runtime.Location{File: "/lib/shapes.py", Line: 2},
	}
	square := &fakeObj{name: "Square", kind: runtime.KindClass, bases: []*fakeObj{base}}
	areaFn := function("area", "self")
	areaFn.doc = "Area of the shape."
	sq := &fakeObj{name: "sq", kind: runtime.KindOther, members: map[string]*fakeObj{
		"area": {name: "area", kind: runtime.KindMethod, doc: "Area of the shape.", fn: areaFn},
	}}
	long := &fakeObj{name: "Long", kind: runtime.KindOther, doc: "  " + strings.Repeat("x", 100)}
	count := value("count", "int([x]) -> integer\nint(x, base=10) -> integer")
	empty := value("EMPTY", "")
	empty.falsy = true
	shapes := module("shapes", "Shapes.", base, square, sq, long, count, empty)

	helper := &fakeObj{name: "Helper", kind: runtime.KindClass, doc: "Interactive help."}
	pydoc := module("pydoc", "Generate documentation.", helper, &fakeObj{name: "help", kind: runtime.KindOther})

	return &fakeRuntime{
		modules: map[string]*fakeObj{
			"os":      osMod,
			"os.path": osPath,
			"math":    module("math", "Mathematical functions.", value("pi", ""), function("sqrt", "x")),
			"re":      module("re", "Regular expressions.", function("compile", "pattern", "flags"), function("match")),
			"pydoc":   pydoc,
			"glyphs":  module("glyphs", "Non-ASCII names.", value("zzé", ""), value("zzè", ""), value("größe", ""), value("größer", "")),
			"shapes":  shapes,
		},
		builtins: map[string]*fakeObj{
			"abs":   {name: "abs", kind: runtime.KindOther, doc: "Return the absolute value of the argument."},
			"len":   {name: "len", kind: runtime.KindOther, doc: "Return the number of items in a container."},
			"print": {name: "print", kind: runtime.KindOther, doc: "Prints the values to a stream."},
		},
		spaces: map[runtime.Namespace]*fakeSpace{},
	}
}

// restart simulates a worker process that died and came back.
func (f *fakeRuntime) restart() {
	f.generation++
	f.spaces = map[runtime.Namespace]*fakeSpace{}
}

func pyErr(typ, format string, args ...any) error {
	return &runtime.PyError{Type: typ, Message: fmt.Sprintf(format, args...)}
}

func (f *fakeRuntime) space(ns runtime.Namespace) (*fakeSpace, error) {
	s, ok := f.spaces[ns]
	if !ok {
		return nil, errors.New(errors.CodeRuntime, "unknown namespace: "+string(ns))
	}
	return s, nil
}

func (f *fakeRuntime) obj(ns runtime.Namespace, ref runtime.Ref) (*fakeSpace, *fakeObj, error) {
	s, err := f.space(ns)
	if err != nil {
		return nil, nil, err
	}
	o, ok := s.refs[ref]
	if !ok {
		return nil, nil, errors.New(errors.CodeRuntime, fmt.Sprintf("unknown ref: %d", ref))
	}
	return s, o, nil
}

func (f *fakeRuntime) ref(s *fakeSpace, o *fakeObj) runtime.Ref {
	if o == nil {
		return 0
	}
	f.nextRef++
	s.refs[f.nextRef] = o
	return f.nextRef
}

func (f *fakeRuntime) Info(ctx context.Context) (runtime.Info, error) {
	f.infoCalls++
	if f.generation == 0 {
		f.generation = 1
	}
	return runtime.Info{
		Version:  "3.12.0",
		Keywords: []string{"def", "for", "import", "while"},
		Builtins: []string{"abs", "len", "print"},
	}, nil
}

func (f *fakeRuntime) Generation() uint64 {
	return f.generation
}

func (f *fakeRuntime) NewNamespace(ctx context.Context, ns runtime.Namespace, file string) error {
	f.spaces[ns] = &fakeSpace{file: file, locals: map[string]*fakeObj{}, refs: map[runtime.Ref]*fakeObj{}}
	return nil
}

func (f *fakeRuntime) Release(ctx context.Context, ns runtime.Namespace) error {
	f.released = append(f.released, ns)
	delete(f.spaces, ns)
	return nil
}

func (f *fakeRuntime) Exec(ctx context.Context, ns runtime.Namespace, code, filename string) error {
	s, err := f.space(ns)
	if err != nil {
		return err
	}
	f.execs = append(f.execs, code)
	if strings.Contains(code, "TypeError") {
		return pyErr("TypeError", "exec() arg 1 must be a string")
	}
	if strings.Contains(code, "from __future__ import braces") {
		return pyErr("SyntaxError", "not a chance")
	}
	for i, line := range strings.Split(code, "\n") {
		if m := importLine.FindStringSubmatch(line); m != nil {
			mod, ok := f.modules[m[2]]
			if !ok {
				if m[1] == "" {
					return pyErr("ModuleNotFoundError", "No module named '%s'", m[2])
				}
				continue
			}
			switch {
			case m[3] != "":
				s.locals[m[3]] = mod
			default:
				top := strings.Split(m[2], ".")[0]
				s.locals[top] = f.modules[top]
			}
			continue
		}
		if m := fromLine.FindStringSubmatch(line); m != nil {
			if mod, ok := f.modules[m[2]]; ok && mod.members[m[3]] != nil {
				s.locals[m[3]] = mod.members[m[3]]
			} else if m[1] == "" {
				return pyErr("ImportError", "cannot import name '%s'", m[3])
			}
			continue
		}
		if m := defLine.FindStringSubmatch(line); m != nil {
			fn := function(m[1])
			fn.loc = &runtime.Location{File: filename, Line: i + 1}
			s.locals[m[1]] = fn
			continue
		}
		if m := classLine.FindStringSubmatch(line); m != nil {
			s.locals[m[1]] = &fakeObj{name: m[1], kind: runtime.KindClass}
			continue
		}
		if m := assignLine.FindStringSubmatch(line); m != nil {
			s.locals[m[1]] = value(m[1], "")
		}
	}
	return nil
}

func (f *fakeRuntime) Checkpoint(ctx context.Context, ns runtime.Namespace) error {
	s, err := f.space(ns)
	if err != nil {
		return err
	}
	s.saved = make(map[string]*fakeObj, len(s.locals))
	for k, v := range s.locals {
		s.saved[k] = v
	}
	s.hasSaved = true
	return nil
}

func (f *fakeRuntime) Restore(ctx context.Context, ns runtime.Namespace) error {
	s, err := f.space(ns)
	if err != nil {
		return err
	}
	if !s.hasSaved {
		return errors.New(errors.CodeRuntime, "no checkpoint")
	}
	s.locals, s.saved, s.hasSaved = s.saved, nil, false
	s.refs = map[runtime.Ref]*fakeObj{}
	return nil
}

func (f *fakeRuntime) ResetLocals(ctx context.Context, ns runtime.Namespace) error {
	s, err := f.space(ns)
	if err != nil {
		return err
	}
	s.locals = map[string]*fakeObj{}
	s.refs = map[runtime.Ref]*fakeObj{}
	return nil
}

func (f *fakeRuntime) Keys(ctx context.Context, ns runtime.Namespace) (runtime.Keys, error) {
	s, err := f.space(ns)
	if err != nil {
		return runtime.Keys{}, err
	}
	locals := make([]string, 0, len(s.locals))
	for k := range s.locals {
		locals = append(locals, k)
	}
	sort.Strings(locals)
	return runtime.Keys{Locals: locals, Globals: []string{"__builtins__", "__name__"}}, nil
}

func (f *fakeRuntime) Eval(ctx context.Context, ns runtime.Namespace, expr string) (runtime.Ref, error) {
	s, err := f.space(ns)
	if err != nil {
		return 0, err
	}
	f.evals = append(f.evals, expr)
	if expr == "None" {
		return 0, nil
	}
	if !dottedExpr.MatchString(expr) {
		return 0, pyErr("SyntaxError", "invalid syntax")
	}
	parts := strings.Split(expr, ".")
	o, ok := s.locals[parts[0]]
	if !ok {
		o, ok = f.builtins[parts[0]]
	}
	if !ok {
		return 0, pyErr("NameError", "name '%s' is not defined", parts[0])
	}
	for _, part := range parts[1:] {
		next, ok := o.members[part]
		if !ok {
			return 0, pyErr("AttributeError", "'%s' has no attribute '%s'", o.name, part)
		}
		o = next
	}
	return f.ref(s, o), nil
}

func (f *fakeRuntime) Import(ctx context.Context, ns runtime.Namespace, name string, bind bool) (runtime.Ref, error) {
	s, err := f.space(ns)
	if err != nil {
		return 0, err
	}
	mod, ok := f.modules[name]
	if !ok {
		return 0, pyErr("ModuleNotFoundError", "No module named '%s'", name)
	}
	if bind {
		top := strings.Split(name, ".")[0]
		s.locals[top] = f.modules[top]
	}
	return f.ref(s, mod), nil
}

func (f *fakeRuntime) Dir(ctx context.Context, ns runtime.Namespace, ref runtime.Ref) ([]string, error) {
	_, o, err := f.obj(ns, ref)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(o.members))
	for k := range o.members {
		names = append(names, k)
	}
	sort.Strings(names)
	return names, nil
}

func (f *fakeRuntime) Describe(ctx context.Context, ns runtime.Namespace, ref runtime.Ref) (runtime.Description, error) {
	_, o, err := f.obj(ns, ref)
	if err != nil {
		return runtime.Description{}, err
	}
	return runtime.Description{Kind: o.kind, Name: o.name, Truthy: !o.falsy, Doc: strings.TrimSpace(o.doc), RawDoc: o.doc}, nil
}

func (f *fakeRuntime) Unwrap(ctx context.Context, ns runtime.Namespace, ref runtime.Ref) (runtime.Ref, error) {
	s, o, err := f.obj(ns, ref)
	if err != nil {
		return 0, err
	}
	return f.ref(s, o.fn), nil
}

func (f *fakeRuntime) OwnInit(ctx context.Context, ns runtime.Namespace, ref runtime.Ref) (runtime.Ref, error) {
	s, o, err := f.obj(ns, ref)
	if err != nil {
		return 0, err
	}
	return f.ref(s, o.init), nil
}

func (f *fakeRuntime) Bases(ctx context.Context, ns runtime.Namespace, ref runtime.Ref) ([]runtime.Ref, error) {
	s, o, err := f.obj(ns, ref)
	if err != nil {
		return nil, err
	}
	refs := make([]runtime.Ref, 0, len(o.bases))
	for _, b := range o.bases {
		refs = append(refs, f.ref(s, b))
	}
	return refs, nil
}

func (f *fakeRuntime) ArgSpec(ctx context.Context, ns runtime.Namespace, ref runtime.Ref) (runtime.ArgSpec, error) {
	_, o, err := f.obj(ns, ref)
	if err != nil {
		return runtime.ArgSpec{}, err
	}
	if o.spec == nil {
		return runtime.ArgSpec{}, pyErr("TypeError", "unsupported callable")
	}
	return *o.spec, nil
}

func (f *fakeRuntime) CodeLocation(ctx context.Context, ns runtime.Namespace, ref runtime.Ref) (runtime.Location, error) {
	_, o, err := f.obj(ns, ref)
	if err != nil {
		return runtime.Location{}, err
	}
	if o.loc == nil {
		return runtime.Location{}, pyErr("AttributeError", "no code object")
	}
	return *o.loc, nil
}

func (f *fakeRuntime) SourceLocation(ctx context.Context, ns runtime.Namespace, ref runtime.Ref) (runtime.Location, error) {
	_, o, err := f.obj(ns, ref)
	if err != nil {
		return runtime.Location{}, err
	}
	if o.loc == nil {
		return runtime.Location{}, pyErr("TypeError", "%s is a built-in object", o.name)
	}
	return *o.loc, nil
}

func (f *fakeRuntime) Help(ctx context.Context, ns runtime.Namespace, ref runtime.Ref, text string) (string, error) {
	name := text
	if ref != 0 {
		_, o, err := f.obj(ns, ref)
		if err != nil {
			return "", err
		}
		name = o.name
	}
	f.helps = append(f.helps, fmt.Sprintf("%d:%s", ref, name))
	if f.helpErr != nil {
		return "", f.helpErr
	}
	return "Help on " + name, nil
}

func (f *fakeRuntime) Close() error {
	return nil
}
