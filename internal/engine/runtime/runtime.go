// Package runtime gives the engine access to live Python objects. All
// objects stay inside an interpreter process; the engine only handles
// namespace names and opaque references.
package runtime

import (
	"context"
	"errors"
	"strings"
)

// Namespace names a pair of global and local dictionaries in the
// interpreter. Every document owns one.
type Namespace string

// Ref is an opaque handle to a live object held by a namespace. The zero Ref
// stands for None and is never returned for a real object.
type Ref int64

// Kind classifies an object for the lookups that treat classes, bound
// methods and plain functions differently.
type Kind string

const (
	KindClass    Kind = "class"
	KindMethod   Kind = "method"
	KindFunction Kind = "function"
	// KindScalar covers numbers and strings, which have no useful docs.
	KindScalar Kind = "scalar"
	KindOther  Kind = "other"
)

type Info struct {
	Version    string   `json:"version"`
	Executable string   `json:"executable"`
	Keywords   []string `json:"keywords"`
	Builtins   []string `json:"builtins"`
}

type Keys struct {
	Locals  []string `json:"locals"`
	Globals []string `json:"globals"`
}

type Description struct {
	Kind   Kind   `json:"kind"`
	Name   string `json:"name"`
	Truthy bool   `json:"truthy"`
	// Doc is the cleaned documentation (inspect.getdoc), RawDoc the
	// unprocessed __doc__ attribute.
	Doc    string `json:"doc"`
	RawDoc string `json:"raw_doc"`
}

type ArgSpec struct {
	Name           string            `json:"name"`
	Args           []string          `json:"args"`
	Varargs        string            `json:"varargs"`
	Varkw          string            `json:"varkw"`
	Defaults       []string          `json:"defaults"`
	KwOnly         []string          `json:"kwonly"`
	KwOnlyDefaults map[string]string `json:"kwonly_defaults"`
}

// Format renders the argument list as "name(a, b=1, *args, c=2, **kwargs)".
// Defaults are the repr of the evaluated default values.
func (a ArgSpec) Format() string {
	parts := make([]string, 0, len(a.Args)+len(a.KwOnly)+2)
	firstDefault := len(a.Args) - len(a.Defaults)
	for i, arg := range a.Args {
		if i >= firstDefault && i-firstDefault < len(a.Defaults) {
			parts = append(parts, arg+"="+a.Defaults[i-firstDefault])
			continue
		}
		parts = append(parts, arg)
	}
	if a.Varargs != "" {
		parts = append(parts, "*"+a.Varargs)
	} else if len(a.KwOnly) > 0 {
		parts = append(parts, "*")
	}
	for _, kw := range a.KwOnly {
		if def, ok := a.KwOnlyDefaults[kw]; ok {
			parts = append(parts, kw+"="+def)
			continue
		}
		parts = append(parts, kw)
	}
	if a.Varkw != "" {
		parts = append(parts, "**"+a.Varkw)
	}
	return a.Name + "(" + strings.Join(parts, ", ") + ")"
}

type Location struct {
	File string `json:"file"`
	Line int    `json:"line"`
}

// PyError is an exception raised inside the interpreter.
type PyError struct {
	Type    string
	Message string
}

func (e *PyError) Error() string {
	return e.Message
}

// IsPyError reports whether err is a Python exception of the given type.
func IsPyError(err error, typ string) bool {
	var pe *PyError
	return errors.As(err, &pe) && pe.Type == typ
}

// IsException reports whether err was raised by Python code, as opposed to a
// failure of the worker itself.
func IsException(err error) bool {
	var pe *PyError
	return errors.As(err, &pe)
}

// Runtime is the set of interpreter capabilities the engine needs. Methods
// taking a namespace evaluate with the namespace's file directory as working
// directory and restore the previous directory afterwards.
type Runtime interface {
	Info(ctx context.Context) (Info, error)
	// Generation changes whenever the interpreter was restarted, which
	// invalidates every namespace and reference.
	Generation() uint64

	NewNamespace(ctx context.Context, ns Namespace, file string) error
	Release(ctx context.Context, ns Namespace) error
	Exec(ctx context.Context, ns Namespace, code, filename string) error
	Checkpoint(ctx context.Context, ns Namespace) error
	Restore(ctx context.Context, ns Namespace) error
	ResetLocals(ctx context.Context, ns Namespace) error
	Keys(ctx context.Context, ns Namespace) (Keys, error)

	Eval(ctx context.Context, ns Namespace, expr string) (Ref, error)
	Import(ctx context.Context, ns Namespace, name string, bind bool) (Ref, error)

	Dir(ctx context.Context, ns Namespace, ref Ref) ([]string, error)
	Describe(ctx context.Context, ns Namespace, ref Ref) (Description, error)
	Unwrap(ctx context.Context, ns Namespace, ref Ref) (Ref, error)
	OwnInit(ctx context.Context, ns Namespace, ref Ref) (Ref, error)
	Bases(ctx context.Context, ns Namespace, ref Ref) ([]Ref, error)
	ArgSpec(ctx context.Context, ns Namespace, ref Ref) (ArgSpec, error)
	CodeLocation(ctx context.Context, ns Namespace, ref Ref) (Location, error)
	SourceLocation(ctx context.Context, ns Namespace, ref Ref) (Location, error)
	// Help renders pydoc help for ref, or for text when ref is zero.
	Help(ctx context.Context, ns Namespace, ref Ref, text string) (string, error)

	Close() error
}
