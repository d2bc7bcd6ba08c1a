package transport

import (
	"context"

	"pycomplete/internal/core/document"
)

// Service is the completion surface the bridge exposes.
type Service interface {
	GetAllCompletions(ctx context.Context, expr, path string, imports []string) ([]string, error)
	Complete(ctx context.Context, expr, path string, imports []string) (document.CompleteResult, error)
	Help(ctx context.Context, expr, path string, imports []string) string
	GetDocstring(ctx context.Context, expr, path string, imports []string) string
	GetSignature(ctx context.Context, expr, path string, imports []string) string
	GetLocation(ctx context.Context, expr, path string, imports []string) (document.Location, bool)
	ParseSource(ctx context.Context, path string, onlyReload bool) string
	Imports(path string) ([]string, error)
	Session() string
}

// query holds the parameters shared by the lookup methods.
type query struct {
	expr    string
	path    string
	imports []string
}

func parseQuery(p Params) (query, error) {
	var (
		q   query
		err error
	)
	if q.expr, err = p.String("expression"); err != nil {
		return q, err
	}
	if q.path, err = p.String("path"); err != nil {
		return q, err
	}
	if q.imports, err = p.Strings("imports"); err != nil {
		return q, err
	}
	return q, nil
}

// NewHandler maps bridge methods onto svc.
func NewHandler(svc Service) Handler {
	// Completion methods fail on a rejected import statement; the other
	// lookups report every failure in their result.
	completions := map[string]func(ctx context.Context, q query) (any, error){
		"complete": func(ctx context.Context, q query) (any, error) {
			res, err := svc.Complete(ctx, q.expr, q.path, q.imports)
			if err != nil {
				return nil, err
			}
			return res, nil
		},
		"get_all_completions": func(ctx context.Context, q query) (any, error) {
			names, err := svc.GetAllCompletions(ctx, q.expr, q.path, q.imports)
			if err != nil {
				return nil, err
			}
			return names, nil
		},
	}
	lookups := map[string]func(ctx context.Context, q query) any{
		"help": func(ctx context.Context, q query) any {
			return svc.Help(ctx, q.expr, q.path, q.imports)
		},
		"get_docstring": func(ctx context.Context, q query) any {
			return svc.GetDocstring(ctx, q.expr, q.path, q.imports)
		},
		"get_signature": func(ctx context.Context, q query) any {
			return svc.GetSignature(ctx, q.expr, q.path, q.imports)
		},
		"get_location": func(ctx context.Context, q query) any {
			loc, ok := svc.GetLocation(ctx, q.expr, q.path, q.imports)
			if !ok {
				return nil
			}
			return loc
		},
	}

	return func(ctx context.Context, method string, params Params) (any, error) {
		if fn, ok := completions[method]; ok {
			q, err := parseQuery(params)
			if err != nil {
				return nil, err
			}
			return fn(ctx, q)
		}
		if fn, ok := lookups[method]; ok {
			q, err := parseQuery(params)
			if err != nil {
				return nil, err
			}
			return fn(ctx, q), nil
		}

		switch method {
		case "ping":
			return map[string]any{"status": "ok", "session": svc.Session()}, nil
		case "parse_source":
			path, err := params.String("path")
			if err != nil {
				return nil, err
			}
			onlyReload, err := params.Bool("only_reload")
			if err != nil {
				return nil, err
			}
			return svc.ParseSource(ctx, path, onlyReload), nil
		case "imports":
			path, err := params.String("path")
			if err != nil {
				return nil, err
			}
			return svc.Imports(path)
		}
		return nil, ErrMethodNotFound
	}
}
