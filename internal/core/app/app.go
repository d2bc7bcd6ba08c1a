// Package app is the surface every front end talks to. It serializes
// requests, routes them to the document of the requested file and turns
// failures into empty results. Completion requests report rejected import
// statements instead.
package app

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"pycomplete/internal/core/config"
	"pycomplete/internal/core/document"
	"pycomplete/internal/core/errors"
	"pycomplete/internal/data/history"
	"pycomplete/internal/engine/parser"
	"pycomplete/internal/engine/reduce"
	"pycomplete/internal/engine/runtime"
	"pycomplete/internal/shared/observability"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type App struct {
	Config *config.Config

	// mu serializes requests; documents are not safe for concurrent use.
	mu       sync.Mutex
	rt       runtime.Runtime
	parser   *parser.Parser
	registry *document.Registry
	journal  *journal
	logger   *slog.Logger
	session  string
	started  time.Time
}

// Options wires an App to an existing runtime. Store is optional.
type Options struct {
	Runtime   runtime.Runtime
	Parser    *parser.Parser
	Store     *history.Store
	Retention int
	Logger    *slog.Logger
}

// New starts nothing yet: the Python worker is launched by the first
// request. The parse journal is opened when enabled.
func New(cfg *config.Config, paths config.ResolvedPaths, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	worker := runtime.NewWorker(runtime.Options{
		Interpreter:    cfg.Python.Interpreter,
		Args:           cfg.Python.Args,
		Env:            cfg.Python.Env,
		RequestTimeout: cfg.Python.RequestTimeout,
		StartupTimeout: cfg.Python.StartupTimeout,
		Logger:         logger,
	})

	var store *history.Store
	if cfg.History.Enabled {
		s, err := history.Open(paths.HistoryDB, cfg.History.BusyTimeout)
		if err != nil {
			_ = worker.Close()
			return nil, errors.Wrap(err, errors.CodeInternal, "open parse journal")
		}
		store = s
	}

	a := NewWithOptions(Options{
		Runtime:   worker,
		Store:     store,
		Retention: cfg.History.Retention,
		Logger:    logger,
	})
	a.Config = cfg
	return a, nil
}

func NewWithOptions(opts Options) *App {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	p := opts.Parser
	if p == nil {
		p = parser.NewParser()
	}
	a := &App{
		Config:   config.Default(),
		rt:       opts.Runtime,
		parser:   p,
		registry: document.NewRegistry(opts.Runtime, p, logger),
		logger:   logger,
		session:  uuid.NewString(),
		started:  time.Now(),
	}
	if opts.Store != nil {
		a.journal = newJournal(opts.Store, opts.Retention, logger.With("component", "journal"))
	}
	return a
}

// Session identifies this process in the parse journal.
func (a *App) Session() string {
	return a.session
}

// Documents lists the files that have a document.
func (a *App) Documents() []string {
	return a.registry.Paths()
}

// observe starts a span for op and returns a function recording the
// request's outcome.
func (a *App) observe(ctx context.Context, op, expr, path string) (context.Context, func(outcome string)) {
	ctx, span := observability.Tracer.Start(ctx, "App."+op, trace.WithAttributes(
		attribute.String("expression", expr),
		attribute.String("path", path),
	))
	start := time.Now()
	return ctx, func(outcome string) {
		observability.RequestsTotal.WithLabelValues(op, outcome).Inc()
		observability.RequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
		span.SetAttributes(attribute.String("outcome", outcome))
		span.End()
	}
}

// GetAllCompletions returns every name completing expr. A rejected import
// statement is returned as an error; every other failure answers empty.
func (a *App) GetAllCompletions(ctx context.Context, expr, path string, imports []string) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	ctx, done := a.observe(ctx, "get_all_completions", expr, path)

	names, err := a.registry.Instance(path).GetAllCompletions(ctx, expr, imports)
	if err != nil {
		done("error")
		return []string{}, a.completionFailed(err, expr, path)
	}
	done(outcomeOf(len(names) > 0))
	return names, nil
}

// Complete returns the unambiguous suffix for expr or the candidates.
// Failures answer as if nothing matched, except a rejected import statement.
func (a *App) Complete(ctx context.Context, expr, path string, imports []string) (document.CompleteResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	ctx, done := a.observe(ctx, "complete", expr, path)

	res, err := a.registry.Instance(path).Complete(ctx, expr, imports)
	if err != nil {
		done("error")
		return document.CompleteResult{Kind: document.CompleteNotFound}, a.completionFailed(err, expr, path)
	}
	done(res.Kind.String())
	return res, nil
}

// completionFailed logs err and keeps it only when the caller sent an import
// statement the interpreter rejected.
func (a *App) completionFailed(err error, expr, path string) error {
	err = errors.AddContext(err, errors.CtxExpression, expr)
	if errors.IsCode(err, errors.CodeInvalidImport) {
		a.logger.Info("import rejected", "path", path, "error", err)
		return err
	}
	a.logger.Warn("completion failed", "path", path, "error", err)
	return nil
}

func (a *App) Help(ctx context.Context, expr, path string, imports []string) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	ctx, done := a.observe(ctx, "help", expr, path)

	text := a.registry.Instance(path).Help(ctx, expr, imports)
	done(outcomeOf(text != ""))
	return text
}

func (a *App) GetDocstring(ctx context.Context, expr, path string, imports []string) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	ctx, done := a.observe(ctx, "get_docstring", expr, path)

	doc := a.registry.Instance(path).GetDocstring(ctx, expr, imports)
	done(outcomeOf(doc != ""))
	return doc
}

func (a *App) GetSignature(ctx context.Context, expr, path string, imports []string) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	ctx, done := a.observe(ctx, "get_signature", expr, path)

	sig := a.registry.Instance(path).GetSignature(ctx, expr, imports)
	done(outcomeOf(sig != ""))
	return sig
}

func (a *App) GetLocation(ctx context.Context, expr, path string, imports []string) (document.Location, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	ctx, done := a.observe(ctx, "get_location", expr, path)

	loc, ok := a.registry.Instance(path).GetLocation(ctx, expr, imports)
	done(outcomeOf(ok))
	return loc, ok
}

// ParseSource parses path into its document. It returns "" on success and
// the error text otherwise. Every parse that read the file is journaled.
func (a *App) ParseSource(ctx context.Context, path string, onlyReload bool) string {
	a.mu.Lock()
	defer a.mu.Unlock()
	ctx, done := a.observe(ctx, "parse_source", "", path)

	doc := a.registry.Instance(path)
	err := doc.ParseSource(ctx, onlyReload)
	msg := ""
	if err != nil {
		msg = errors.Describe(err)
		a.logger.Info("parse failed", "path", path, "error", err)
	}

	stats := doc.LastParse()
	if stats.Outcome == "" {
		done("skipped")
		return msg
	}
	done(stats.Outcome)
	if a.journal != nil {
		a.journal.record(history.Entry{
			Session:     a.session,
			Path:        path,
			Timestamp:   time.Now(),
			Outcome:     stats.Outcome,
			Message:     msg,
			ImportCount: stats.Imports,
			Duration:    stats.Duration,
		})
	}
	return msg
}

// Imports returns the import statements of path as they would be run.
func (a *App) Imports(path string) ([]string, error) {
	tree, err := a.parseFile(path)
	if err != nil {
		return nil, err
	}
	defer tree.Close()
	return reduce.ExtractImports(tree).Statements(), nil
}

// Reduce returns the side effect free rendition of path.
func (a *App) Reduce(path string) (string, error) {
	tree, err := a.parseFile(path)
	if err != nil {
		return "", err
	}
	defer tree.Close()
	src, _ := reduce.Reduce(tree).Render()
	return src, nil
}

func (a *App) parseFile(path string) (*parser.Tree, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.AddContext(errors.Wrap(err, errors.CodeFile, "read source"), errors.CtxPath, path)
	}
	tree, err := a.parser.Parse(path, src)
	if err != nil {
		return nil, err
	}
	if err := tree.SyntaxError(); err != nil {
		tree.Close()
		return nil, err
	}
	return tree, nil
}

// Close stops the journal writer and the Python worker.
func (a *App) Close(ctx context.Context) error {
	if a == nil {
		return nil
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.registry.Reset(ctx)

	var firstErr error
	if a.journal != nil {
		if err := a.journal.close(ctx); err != nil {
			firstErr = err
		}
		if err := a.journal.store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		a.journal = nil
	}
	if a.rt != nil {
		if err := a.rt.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func outcomeOf(found bool) string {
	if found {
		return "ok"
	}
	return "empty"
}
