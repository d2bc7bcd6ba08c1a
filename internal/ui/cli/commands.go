package cli

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"sort"
	"strings"

	"pycomplete/internal/core/app"
	"pycomplete/internal/core/document"
	"pycomplete/internal/core/errors"
	"pycomplete/internal/shared/util"
)

type command struct {
	summary string
	run     func(ctx context.Context, e *env) error
}

var commands = map[string]command{
	"complete":    {summary: "Print the completion suffix or the candidates of EXPR", run: lookup(runComplete)},
	"completions": {summary: "List every name completing EXPR", run: lookup(runCompletions)},
	"help":        {summary: "Print the one line help of EXPR", run: lookup(runHelp)},
	"doc":         {summary: "Print the docstring of EXPR", run: lookup(runDoc)},
	"signature":   {summary: "Print the call signature of EXPR", run: lookup(runSignature)},
	"location":    {summary: "Print where EXPR is defined as FILE:LINE", run: lookup(runLocation)},
	"parse":       {summary: "Parse FILE and report syntax or import errors", run: runParse},
	"imports":     {summary: "List the import statements of FILE", run: runImports},
	"reduce":      {summary: "Print FILE without side effects (-o OUT writes it instead)", run: runReduce},
	"serve":       {summary: "Answer requests on stdin/stdout", run: runServe},
	"ui":          {summary: "Explore completions interactively", run: runUI},
	"history":     {summary: "Show recent parses from the journal", run: runHistory},
	"version":     {summary: "Print version and exit"},
}

func commandNames() []string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// query is one lookup taken from the command line.
type query struct {
	expr    string
	path    string
	imports []string
}

type lookupFunc func(ctx context.Context, e *env, a *app.App, q query) error

// lookup wraps a command that takes exactly one expression argument.
func lookup(fn lookupFunc) func(ctx context.Context, e *env) error {
	return func(ctx context.Context, e *env) error {
		if len(e.opts.args) != 1 {
			fmt.Fprintf(e.errOut, "%s requires exactly one expression argument\n", e.opts.command)
			return errUsage
		}
		a, cleanup, err := newApp(e)
		if err != nil {
			return err
		}
		defer cleanup()
		return fn(ctx, e, a, query{
			expr:    e.opts.args[0],
			path:    e.opts.file,
			imports: e.opts.imports,
		})
	}
}

func runComplete(ctx context.Context, e *env, a *app.App, q query) error {
	res, err := a.Complete(ctx, q.expr, q.path, q.imports)
	if err != nil {
		return err
	}
	if e.opts.jsonOut {
		return writeJSON(e, res)
	}
	switch res.Kind {
	case document.CompleteSuffix:
		fmt.Fprintln(e.out, res.Suffix)
	case document.CompleteAmbiguous:
		fmt.Fprintln(e.out, strings.Join(res.Candidates, "\n"))
	case document.CompleteNotFound:
		return errNoResult
	}
	return nil
}

func runCompletions(ctx context.Context, e *env, a *app.App, q query) error {
	names, err := a.GetAllCompletions(ctx, q.expr, q.path, q.imports)
	if err != nil {
		return err
	}
	if e.opts.jsonOut {
		return writeJSON(e, names)
	}
	if len(names) == 0 {
		return errNoResult
	}
	fmt.Fprintln(e.out, strings.Join(names, "\n"))
	return nil
}

func runHelp(ctx context.Context, e *env, a *app.App, q query) error {
	return writeText(e, a.Help(ctx, q.expr, q.path, q.imports))
}

func runDoc(ctx context.Context, e *env, a *app.App, q query) error {
	return writeText(e, a.GetDocstring(ctx, q.expr, q.path, q.imports))
}

func runSignature(ctx context.Context, e *env, a *app.App, q query) error {
	return writeText(e, a.GetSignature(ctx, q.expr, q.path, q.imports))
}

func runLocation(ctx context.Context, e *env, a *app.App, q query) error {
	loc, ok := a.GetLocation(ctx, q.expr, q.path, q.imports)
	if e.opts.jsonOut {
		if !ok {
			return writeJSON(e, nil)
		}
		return writeJSON(e, loc)
	}
	if !ok {
		return errNoResult
	}
	fmt.Fprintf(e.out, "%s:%d\n", loc.File, loc.Line)
	return nil
}

// fileArg returns the FILE argument, falling back to -file.
func fileArg(e *env) (string, error) {
	switch {
	case len(e.opts.args) == 1:
		return e.opts.args[0], nil
	case len(e.opts.args) == 0 && e.opts.file != "":
		return e.opts.file, nil
	}
	fmt.Fprintf(e.errOut, "%s requires one file argument\n", e.opts.command)
	return "", errUsage
}

func runParse(ctx context.Context, e *env) error {
	path, err := fileArg(e)
	if err != nil {
		return err
	}
	a, cleanup, err := newApp(e)
	if err != nil {
		return err
	}
	defer cleanup()

	msg := a.ParseSource(ctx, path, false)
	if e.opts.jsonOut {
		return writeJSON(e, map[string]any{"path": path, "ok": msg == "", "error": msg})
	}
	if msg != "" {
		fmt.Fprintln(e.errOut, msg)
		return errNoResult
	}
	fmt.Fprintln(e.out, "ok")
	return nil
}

func runImports(_ context.Context, e *env) error {
	path, err := fileArg(e)
	if err != nil {
		return err
	}
	a, cleanup, err := newApp(e)
	if err != nil {
		return err
	}
	defer cleanup()

	stmts, err := a.Imports(path)
	if err != nil {
		return err
	}
	if e.opts.jsonOut {
		return writeJSON(e, stmts)
	}
	for _, stmt := range stmts {
		fmt.Fprintln(e.out, stmt)
	}
	return nil
}

func runReduce(_ context.Context, e *env) error {
	fs := flag.NewFlagSet("reduce", flag.ContinueOnError)
	fs.SetOutput(e.errOut)
	output := fs.String("o", "", "Write the reduced source to `FILE` instead of stdout")
	if err := fs.Parse(e.opts.args); err != nil {
		return errUsage
	}
	e.opts.args = fs.Args()
	path, err := fileArg(e)
	if err != nil {
		return err
	}
	a, cleanup, err := newApp(e)
	if err != nil {
		return err
	}
	defer cleanup()

	src, err := a.Reduce(path)
	if err != nil {
		return err
	}
	if *output == "" {
		fmt.Fprint(e.out, src)
		return nil
	}
	if err := util.WriteStringWithDirs(*output, src, 0o644); err != nil {
		return errors.AddContext(errors.Wrap(err, errors.CodeFile, "write reduced source"), errors.CtxPath, *output)
	}
	e.logger.Debug("reduced source written", "path", path, "output", *output)
	return nil
}

func writeText(e *env, text string) error {
	if e.opts.jsonOut {
		return writeJSON(e, text)
	}
	if text == "" {
		return errNoResult
	}
	fmt.Fprintln(e.out, text)
	return nil
}

func writeJSON(e *env, v any) error {
	enc := json.NewEncoder(e.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
