// Package document holds the per-file completion state: the applied import
// list, a namespace in the Python worker populated from the reduced source,
// and caches of visible names and resolved objects.
package document

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"pycomplete/internal/core/errors"
	"pycomplete/internal/engine/parser"
	"pycomplete/internal/engine/reduce"
	"pycomplete/internal/engine/runtime"
	"pycomplete/internal/shared/observability"
	"pycomplete/internal/shared/util"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultNamespace is used by the document without a file.
const DefaultNamespace runtime.Namespace = "default"

// signatureDocLimit caps the docstring fallback of GetSignature.
const signatureDocLimit = 70

// symbolCacheSize bounds the resolved objects kept per document.
const symbolCacheSize = 1024

// Location is where an object is defined. Line is 1-based.
type Location = runtime.Location

type CompleteKind int

const (
	// CompleteEmpty answers an empty expression.
	CompleteEmpty CompleteKind = iota
	CompleteNotFound
	// CompleteSuffix carries the text to insert after what was typed.
	CompleteSuffix
	// CompleteAmbiguous carries every candidate name.
	CompleteAmbiguous
)

func (k CompleteKind) String() string {
	switch k {
	case CompleteEmpty:
		return "empty"
	case CompleteNotFound:
		return "not_found"
	case CompleteSuffix:
		return "suffix"
	case CompleteAmbiguous:
		return "ambiguous"
	}
	return "unknown"
}

type CompleteResult struct {
	Kind       CompleteKind
	Suffix     string
	Candidates []string
}

// MarshalJSON encodes the result the way editors expect it: "" for an empty
// expression, null when nothing matched, a one element list holding the
// suffix, or the list of candidates.
func (r CompleteResult) MarshalJSON() ([]byte, error) {
	switch r.Kind {
	case CompleteEmpty:
		return json.Marshal("")
	case CompleteSuffix:
		return json.Marshal([]string{r.Suffix})
	case CompleteAmbiguous:
		return json.Marshal(r.Candidates)
	}
	return []byte("null"), nil
}

// Document is the completion context of one source file. It is not safe for
// concurrent use; callers serialize requests.
type Document struct {
	path    string
	absPath string
	ns      runtime.Namespace
	rt      runtime.Runtime
	parser  *parser.Parser
	logger  *slog.Logger

	// generation of the worker the namespace lives in, 0 before the first
	// request.
	generation uint64
	keywords   map[string]struct{}
	info       runtime.Info

	// imports is nil until an explicit list was applied.
	imports       []string
	parsedOnce    bool
	symbolNames   []string
	symbolObjects *util.LRU[string, runtime.Ref]
	lineMap       reduce.LineMap
	lastParse     ParseStats
}

// ParseStats describes the last ParseSource call that read the file.
// Outcome is empty when no such call happened.
type ParseStats struct {
	Outcome  string
	Imports  int
	Duration time.Duration
}

func newDocument(path string, ns runtime.Namespace, rt runtime.Runtime, p *parser.Parser, logger *slog.Logger) *Document {
	abs := path
	if path != "" {
		if a, err := filepath.Abs(path); err == nil {
			abs = a
		}
	}
	return &Document{
		path:          path,
		absPath:       abs,
		ns:            ns,
		rt:            rt,
		parser:        p,
		logger:        logger.With("document", path),
		symbolObjects: util.NewLRU[string, runtime.Ref](symbolCacheSize),
	}
}

// Path returns the path the document was registered with.
func (d *Document) Path() string {
	return d.path
}

// LastParse reports on the most recent parse of the document's file.
func (d *Document) LastParse() ParseStats {
	return d.lastParse
}

// Imports returns the last applied import list, nil if none was applied.
func (d *Document) Imports() []string {
	return slices.Clone(d.imports)
}

// session makes sure the document has a namespace in the current worker.
// A restarted worker lost every namespace, so all state is dropped and the
// next request parses the file again.
func (d *Document) session(ctx context.Context) error {
	info, err := d.rt.Info(ctx)
	if err != nil {
		return err
	}
	gen := d.rt.Generation()
	if gen == d.generation {
		return nil
	}
	if d.generation != 0 {
		d.logger.Warn("python worker restarted, resetting document", "generation", gen)
	}
	d.reset()
	d.info = info
	d.keywords = make(map[string]struct{}, len(info.Keywords))
	for _, kw := range info.Keywords {
		d.keywords[kw] = struct{}{}
	}
	if err := d.rt.NewNamespace(ctx, d.ns, d.absPath); err != nil {
		return err
	}
	d.generation = gen
	return nil
}

func (d *Document) reset() {
	d.imports = nil
	d.parsedOnce = false
	d.lineMap = nil
	d.clearCaches()
}

func (d *Document) clearCaches() {
	d.symbolNames = nil
	d.symbolObjects.Clear()
}

func (d *Document) isKeyword(s string) bool {
	_, ok := d.keywords[s]
	return ok
}

// applyImports brings the namespace in line with imports. A nil list reuses
// the current state, parsing the file first if that never happened.
func (d *Document) applyImports(ctx context.Context, imports []string) error {
	if err := d.session(ctx); err != nil {
		return err
	}
	if imports == nil {
		if !d.parsedOnce {
			if err := d.ParseSource(ctx, false); err != nil {
				d.logger.Debug("implicit parse failed", "error", err)
			}
		}
		return nil
	}
	if d.imports != nil && slices.Equal(imports, d.imports) {
		return nil
	}

	ctx, span := observability.Tracer.Start(ctx, "Document.applyImports",
		trace.WithAttributes(attribute.Int("imports", len(imports))))
	defer span.End()

	if err := d.rt.ResetLocals(ctx, d.ns); err != nil {
		return err
	}
	d.clearCaches()
	for _, stmt := range imports {
		err := d.rt.Exec(ctx, d.ns, stmt, "<string>")
		if err == nil {
			continue
		}
		if runtime.IsPyError(err, "TypeError") {
			err = errors.New(errors.CodeInvalidImport, "invalid type: "+stmt)
			return errors.AddContext(err, errors.CtxStatement, stmt)
		}
		if !runtime.IsException(err) {
			return err
		}
		d.logger.Debug("import skipped", "statement", stmt, "error", err)
	}
	d.imports = slices.Clone(imports)
	return nil
}

// collectSymbolNames returns every name visible at module level: keywords,
// locals, globals and builtins, sorted.
func (d *Document) collectSymbolNames(ctx context.Context) ([]string, error) {
	if len(d.symbolNames) > 0 {
		return d.symbolNames, nil
	}
	keys, err := d.rt.Keys(ctx, d.ns)
	if err != nil {
		return nil, err
	}
	d.symbolNames = util.SortedUnion(d.info.Keywords, keys.Locals, keys.Globals, d.info.Builtins)
	return d.symbolNames, nil
}

// resolveObject evaluates name in the namespace. An unknown name is imported
// as a module and bound; an unknown attribute is imported as a submodule
// without binding it.
func (d *Document) resolveObject(ctx context.Context, name string) (runtime.Ref, bool) {
	if ref, ok := d.symbolObjects.Get(name); ok {
		return ref, true
	}
	ref, err := d.rt.Eval(ctx, d.ns, name)
	switch {
	case err == nil:
	case runtime.IsPyError(err, "NameError"):
		ref, err = d.rt.Import(ctx, d.ns, name, true)
	case runtime.IsPyError(err, "AttributeError"):
		ref, err = d.rt.Import(ctx, d.ns, name, false)
	}
	if err != nil {
		d.logger.Debug("symbol not resolved", "name", name, "error", err)
		return 0, false
	}
	if ref == 0 {
		return 0, false
	}
	d.symbolObjects.Put(name, ref)
	return ref, true
}

// resolveDottedPath resolves path one prefix at a time. In strict mode any
// unresolved prefix fails the lookup; otherwise the deepest resolved prefix
// is returned.
func (d *Document) resolveDottedPath(ctx context.Context, path string, strict bool) (runtime.Ref, bool) {
	if ref, ok := d.symbolObjects.Get(path); ok {
		return ref, true
	}
	segments := strings.Split(path, ".")
	if len(segments) == 1 {
		return d.resolveObject(ctx, path)
	}
	var found runtime.Ref
	ok := false
	for i := 1; i <= len(segments); i++ {
		prefix := strings.Join(segments[:i], ".")
		if prefix == "" {
			continue
		}
		ref, hit := d.resolveObject(ctx, prefix)
		if hit {
			found, ok = ref, true
			continue
		}
		if strict {
			return 0, false
		}
	}
	return found, ok
}

// GetAllCompletions returns the names completing expr. Without a dot these
// are module level names, otherwise the members of the object before the
// last dot.
func (d *Document) GetAllCompletions(ctx context.Context, expr string, imports []string) ([]string, error) {
	if err := d.applyImports(ctx, imports); err != nil {
		return nil, err
	}
	dot := strings.LastIndex(expr, ".")
	if dot < 0 {
		names, err := d.collectSymbolNames(ctx)
		if err != nil {
			return nil, err
		}
		return util.FilterPrefix(names, expr), nil
	}
	ref, ok := d.resolveDottedPath(ctx, expr[:dot], true)
	if !ok {
		return []string{}, nil
	}
	members, err := d.rt.Dir(ctx, d.ns, ref)
	if err != nil {
		return nil, err
	}
	return util.FilterPrefix(members, expr[dot+1:]), nil
}

// Complete returns the text to insert when the completion of expr is
// unambiguous, and the candidates otherwise.
func (d *Document) Complete(ctx context.Context, expr string, imports []string) (CompleteResult, error) {
	if expr == "" {
		return CompleteResult{Kind: CompleteEmpty}, nil
	}
	candidates, err := d.GetAllCompletions(ctx, expr, imports)
	if err != nil {
		return CompleteResult{}, err
	}
	if len(candidates) == 0 {
		return CompleteResult{Kind: CompleteNotFound}, nil
	}
	typed := expr[strings.LastIndex(expr, ".")+1:]
	prefix := util.CommonPrefix(candidates)
	if len(candidates) == 1 || len(prefix) > len(typed) {
		return CompleteResult{Kind: CompleteSuffix, Suffix: prefix[len(typed):]}, nil
	}
	return CompleteResult{Kind: CompleteAmbiguous, Candidates: candidates}, nil
}

// Help returns the pydoc help text for expr. Failures are returned as text.
func (d *Document) Help(ctx context.Context, expr string, imports []string) string {
	if expr == "" {
		return ""
	}
	if expr == "pydoc.help" {
		// pydoc.help would start the interactive helper.
		expr = "pydoc.Helper"
	}
	if err := d.session(ctx); err != nil {
		return errors.Describe(err)
	}

	var ref runtime.Ref
	if !d.isKeyword(expr) {
		if err := d.applyImports(ctx, imports); err != nil {
			return errors.Describe(err)
		}
		if r, ok := d.resolveDottedPath(ctx, expr, false); ok {
			desc, err := d.rt.Describe(ctx, d.ns, r)
			if err != nil {
				return errors.Describe(err)
			}
			if desc.Truthy {
				ref = r
			}
		}
	}
	text, err := d.rt.Help(ctx, d.ns, ref, expr)
	if err != nil {
		return errors.Describe(err)
	}
	return text
}

// GetDocstring returns the documentation of the object expr names exactly,
// or "" for numbers, strings and anything unresolved.
func (d *Document) GetDocstring(ctx context.Context, expr string, imports []string) string {
	if expr == "" {
		return ""
	}
	if err := d.session(ctx); err != nil || d.isKeyword(expr) {
		return ""
	}
	if err := d.applyImports(ctx, imports); err != nil {
		return ""
	}
	ref, ok := d.resolveDottedPath(ctx, expr, true)
	if !ok {
		return ""
	}
	desc, err := d.rt.Describe(ctx, d.ns, ref)
	if err != nil || !desc.Truthy || desc.Kind == runtime.KindScalar {
		return ""
	}
	return desc.Doc
}

// GetSignature formats the parameters of the callable expr names. Classes
// use their constructor and bound methods their function. Objects without
// a Python signature fall back to the first line of their docstring.
func (d *Document) GetSignature(ctx context.Context, expr string, imports []string) string {
	if expr == "" {
		return ""
	}
	if err := d.session(ctx); err != nil {
		return errors.Describe(err)
	}
	if d.isKeyword(expr) {
		return ""
	}
	if err := d.applyImports(ctx, imports); err != nil {
		return errors.Describe(err)
	}
	ref, ok := d.resolveDottedPath(ctx, expr, false)
	if !ok {
		return ""
	}
	target, desc, err := d.callable(ctx, ref)
	if err != nil {
		d.logger.Debug("signature lookup failed", "expression", expr, "error", err)
		return ""
	}

	if desc.Kind == runtime.KindFunction {
		spec, err := d.rt.ArgSpec(ctx, d.ns, target)
		if err == nil {
			return spec.Format()
		}
		d.logger.Debug("argspec failed", "expression", expr, "error", err)
	}
	return firstDocLine(desc.RawDoc)
}

// GetLocation returns where the object expr names is defined. Functions
// defined by the document's own source report their line in that source.
func (d *Document) GetLocation(ctx context.Context, expr string, imports []string) (Location, bool) {
	if expr == "" {
		return Location{}, false
	}
	if err := d.session(ctx); err != nil || d.isKeyword(expr) {
		return Location{}, false
	}
	if err := d.applyImports(ctx, imports); err != nil {
		return Location{}, false
	}
	ref, ok := d.resolveDottedPath(ctx, expr, false)
	if !ok {
		return Location{}, false
	}
	target, desc, err := d.callable(ctx, ref)
	if err != nil {
		return Location{}, false
	}

	var loc Location
	if desc.Kind == runtime.KindFunction {
		loc, err = d.rt.CodeLocation(ctx, d.ns, target)
	} else {
		loc, err = d.rt.SourceLocation(ctx, d.ns, target)
	}
	if err != nil {
		d.logger.Debug("location lookup failed", "expression", expr, "error", err)
		return Location{}, false
	}
	if d.absPath != "" && loc.File == d.absPath && d.lineMap != nil {
		loc.Line = d.lineMap.Source(loc.Line)
	}
	return loc, true
}

// callable replaces a class by its constructor and a bound method by its
// function, returning the object to inspect and its description.
func (d *Document) callable(ctx context.Context, ref runtime.Ref) (runtime.Ref, runtime.Description, error) {
	desc, err := d.rt.Describe(ctx, d.ns, ref)
	if err != nil {
		return 0, runtime.Description{}, err
	}
	var target runtime.Ref
	switch desc.Kind {
	case runtime.KindClass:
		target, _ = d.findConstructor(ctx, ref)
	case runtime.KindMethod:
		target, err = d.rt.Unwrap(ctx, d.ns, ref)
		if err != nil {
			return 0, runtime.Description{}, err
		}
	}
	if target == 0 {
		return ref, desc, nil
	}
	desc, err = d.rt.Describe(ctx, d.ns, target)
	if err != nil {
		return 0, runtime.Description{}, err
	}
	return target, desc, nil
}

// findConstructor returns the __init__ function the class defines itself or
// the first one found walking its bases depth first.
func (d *Document) findConstructor(ctx context.Context, class runtime.Ref) (runtime.Ref, bool) {
	if init, err := d.rt.OwnInit(ctx, d.ns, class); err == nil && init != 0 {
		return init, true
	}
	bases, err := d.rt.Bases(ctx, d.ns, class)
	if err != nil {
		return 0, false
	}
	for _, base := range bases {
		if init, ok := d.findConstructor(ctx, base); ok {
			return init, true
		}
	}
	return 0, false
}

func firstDocLine(doc string) string {
	doc = strings.TrimLeft(doc, " \t\n\r\v\f")
	runes := []rune(doc)
	end := slices.Index(runes, '\n')
	if end < 0 || end > signatureDocLimit {
		end = min(signatureDocLimit, len(runes))
	}
	return string(runes[:end])
}

// ParseSource reads the document's file, runs its imports and then its
// reduced source in the namespace. With onlyReload set, a document that was
// never parsed is left alone. A failure while running the imports restores
// the namespace as it was; a failure in the reduced source keeps the
// imports.
func (d *Document) ParseSource(ctx context.Context, onlyReload bool) (err error) {
	d.lastParse = ParseStats{}
	if onlyReload && !d.parsedOnce {
		return nil
	}
	if d.path == "" {
		d.parsedOnce = true
		return nil
	}

	ctx, span := observability.Tracer.Start(ctx, "Document.ParseSource",
		trace.WithAttributes(attribute.String("path", d.path), attribute.Bool("only_reload", onlyReload)))
	outcome := "ok"
	imports := 0
	began := time.Now()
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, errors.Describe(err))
		}
		span.End()
		observability.ParseSourceTotal.WithLabelValues(outcome).Inc()
		d.lastParse = ParseStats{Outcome: outcome, Imports: imports, Duration: time.Since(began)}
	}()

	if err := d.session(ctx); err != nil {
		outcome = "runtime_error"
		return err
	}
	d.parsedOnce = true

	src, err := os.ReadFile(d.path)
	if err != nil {
		outcome = "file_error"
		return errors.AddContext(errors.Wrap(err, errors.CodeFile, "read source"), errors.CtxPath, d.path)
	}

	tree, err := d.parser.Parse(d.absPath, src)
	if err != nil {
		outcome = "syntax_error"
		return err
	}
	if err := tree.SyntaxError(); err != nil {
		tree.Close()
		outcome = "syntax_error"
		return err
	}
	start := time.Now()
	unit := reduce.ExtractImports(tree)
	imports = len(unit.Stmts)
	reduced, lineMap := reduce.Reduce(tree).Render()
	tree.Close()
	observability.ReductionDuration.Observe(time.Since(start).Seconds())

	if err := d.rt.Checkpoint(ctx, d.ns); err != nil {
		outcome = "runtime_error"
		return err
	}
	if err := d.rt.ResetLocals(ctx, d.ns); err != nil {
		outcome = "runtime_error"
		return err
	}
	d.clearCaches()
	if err := d.rt.Exec(ctx, d.ns, unit.Source(), d.absPath); err != nil {
		outcome = "import_error"
		if rerr := d.rt.Restore(ctx, d.ns); rerr != nil {
			d.logger.Warn("namespace rollback failed", "error", rerr)
			_ = d.rt.ResetLocals(ctx, d.ns)
		}
		return err
	}

	d.lineMap = lineMap
	if err := d.rt.Exec(ctx, d.ns, reduced, d.absPath); err != nil {
		outcome = "exec_error"
		return err
	}
	d.logger.Debug("source parsed", "imports", imports)
	return nil
}

// Release drops the document's namespace in the worker.
func (d *Document) Release(ctx context.Context) error {
	if d.generation == 0 || d.generation != d.rt.Generation() {
		return nil
	}
	d.generation = 0
	return d.rt.Release(ctx, d.ns)
}
