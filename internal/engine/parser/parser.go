// # internal/engine/parser/parser.go
package parser

import (
	"sync"
	"time"

	"pycomplete/internal/core/errors"
	"pycomplete/internal/shared/observability"

	sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"
)

var (
	pythonOnce sync.Once
	pythonLang *sitter.Language
)

// PythonLanguage returns the process-wide tree-sitter Python grammar.
func PythonLanguage() *sitter.Language {
	pythonOnce.Do(func() {
		pythonLang = sitter.NewLanguage(tree_sitter_python.Language())
	})
	return pythonLang
}

// Parser produces syntax trees for Python source. It recycles tree-sitter
// parser instances so repeated reloads of the same document stay cheap.
//
// Concurrency: safe for use by multiple goroutines simultaneously.
type Parser struct {
	lang *sitter.Language
	pool sync.Pool

	leasesMu sync.Mutex
	leases   int
}

func NewParser() *Parser {
	p := &Parser{lang: PythonLanguage()}
	p.pool.New = func() any {
		sp := sitter.NewParser()
		_ = sp.SetLanguage(p.lang)
		return sp
	}
	return p
}

func (p *Parser) acquire() *sitter.Parser {
	sp := p.pool.Get().(*sitter.Parser)
	// The language is dropped by Reset() on some binding versions.
	_ = sp.SetLanguage(p.lang)

	p.leasesMu.Lock()
	p.leases++
	p.leasesMu.Unlock()
	return sp
}

func (p *Parser) release(sp *sitter.Parser) {
	if sp == nil {
		return
	}
	p.leasesMu.Lock()
	p.leases--
	p.leasesMu.Unlock()

	sp.Reset()
	p.pool.Put(sp)
}

// Active returns the number of parsers currently leased out.
func (p *Parser) Active() int {
	p.leasesMu.Lock()
	defer p.leasesMu.Unlock()
	return p.leases
}

// Parse builds a syntax tree for source. Tree-sitter is error tolerant, so a
// tree is returned even for invalid input; callers decide whether
// Tree.SyntaxError matters to them. The caller owns the tree and must Close it.
func (p *Parser) Parse(path string, source []byte) (*Tree, error) {
	start := time.Now()
	defer func() {
		observability.ParsingDuration.WithLabelValues("python").Observe(time.Since(start).Seconds())
	}()

	sp := p.acquire()
	defer p.release(sp)

	content := make([]byte, len(source))
	copy(content, source)

	tree := sp.Parse(content, nil)
	if tree == nil {
		return nil, errors.AddContext(errors.New(errors.CodeInternal, "parse failed"), errors.CtxPath, path)
	}
	return &Tree{Path: path, Source: content, tree: tree}, nil
}
