package document

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"pycomplete/internal/engine/parser"
	"pycomplete/internal/engine/runtime"
	"pycomplete/internal/shared/observability"
)

// Registry holds one Document per path. Paths are used as given, so a
// relative and an absolute spelling of the same file are two documents.
// Documents are never evicted.
type Registry struct {
	mu     sync.Mutex
	docs   map[string]*Document
	rt     runtime.Runtime
	parser *parser.Parser
	logger *slog.Logger
}

func NewRegistry(rt runtime.Runtime, p *parser.Parser, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	if p == nil {
		p = parser.NewParser()
	}
	return &Registry{
		docs:   make(map[string]*Document),
		rt:     rt,
		parser: p,
		logger: logger,
	}
}

// Instance returns the document for path, creating it on first use. The
// empty path selects the shared document without a file.
func (r *Registry) Instance(path string) *Document {
	r.mu.Lock()
	defer r.mu.Unlock()

	if doc, ok := r.docs[path]; ok {
		return doc
	}
	ns := DefaultNamespace
	if path != "" {
		ns = runtime.Namespace("file:" + path)
	}
	doc := newDocument(path, ns, r.rt, r.parser, r.logger)
	r.docs[path] = doc
	observability.DocumentsActive.Set(float64(len(r.docs)))
	return doc
}

// Lookup returns the document for path if one was created.
func (r *Registry) Lookup(path string) (*Document, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc, ok := r.docs[path]
	return doc, ok
}

// Paths lists the file paths of all documents in sorted order.
func (r *Registry) Paths() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	paths := make([]string, 0, len(r.docs))
	for path := range r.docs {
		if path != "" {
			paths = append(paths, path)
		}
	}
	sort.Strings(paths)
	return paths
}

// Reset drops every document and releases its namespace.
func (r *Registry) Reset(ctx context.Context) {
	r.mu.Lock()
	docs := r.docs
	r.docs = make(map[string]*Document)
	observability.DocumentsActive.Set(0)
	r.mu.Unlock()

	for path, doc := range docs {
		if err := doc.Release(ctx); err != nil {
			r.logger.Debug("release namespace failed", "path", path, "error", err)
		}
	}
}
