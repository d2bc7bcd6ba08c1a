package parser

import (
	"sync"
	"testing"

	"pycomplete/internal/core/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sitter "github.com/tree-sitter/go-tree-sitter"
)

func TestParse_ValidSource(t *testing.T) {
	p := NewParser()
	tree, err := p.Parse("mod.py", []byte("import os\n\n\ndef f(a):\n    return a\n"))
	require.NoError(t, err)
	defer tree.Close()

	assert.NoError(t, tree.SyntaxError())
	root := tree.Root()
	require.NotNil(t, root)
	assert.Equal(t, "module", root.Kind())

	children := NamedChildren(root)
	require.Len(t, children, 2)
	assert.Equal(t, "import os", tree.Text(children[0]))
	assert.Equal(t, 4, tree.Line(children[1]))
	assert.Equal(t, 0, p.Active())
}

func TestParse_CopiesSource(t *testing.T) {
	src := []byte("x = 1\n")
	tree, err := NewParser().Parse("mod.py", src)
	require.NoError(t, err)
	defer tree.Close()

	src[0] = 'y'
	assert.Equal(t, "x = 1", tree.Text(NamedChildren(tree.Root())[0]))
}

func TestSyntaxError(t *testing.T) {
	tests := []struct {
		name string
		path string
		src  string
		want string
	}{
		{name: "unclosed paren", path: "/tmp/broken.py", src: "x = 1\ny = (\n", want: "/tmp/broken.py, line"},
		{name: "bad def", path: "a.py", src: "def f(:\n    pass\n", want: "invalid syntax"},
		{name: "no path", path: "", src: "class :\n", want: "(<string>, line"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree, err := NewParser().Parse(tt.path, []byte(tt.src))
			require.NoError(t, err)
			defer tree.Close()

			serr := tree.SyntaxError()
			require.Error(t, serr)
			assert.True(t, errors.IsCode(serr, errors.CodeParse))
			assert.Contains(t, errors.Describe(serr), tt.want)
		})
	}
}

func TestSyntaxError_ReportsFirstBadLine(t *testing.T) {
	tree, err := NewParser().Parse("m.py", []byte("a = 1\nb = 2\nc = = 3\n"))
	require.NoError(t, err)
	defer tree.Close()

	assert.Equal(t, "invalid syntax (m.py, line 3)", errors.Describe(tree.SyntaxError()))
}

func TestWalker_SkipsSubtrees(t *testing.T) {
	tree, err := NewParser().Parse("m.py", []byte("def f():\n    x = 1\ny = 2\nclass C:\n    z = 3\n"))
	require.NoError(t, err)
	defer tree.Close()

	var seen []string
	w := NewWalker(map[string]NodeHandler{
		"function_definition": Skip,
		"assignment": func(t *Tree, n *sitter.Node) bool {
			seen = append(seen, t.Text(n.ChildByFieldName("left")))
			return true
		},
	})
	w.Walk(tree, tree.Root())

	assert.Equal(t, []string{"y", "z"}, seen)
}

func TestParser_ConcurrentUse(t *testing.T) {
	p := NewParser()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tree, err := p.Parse("m.py", []byte("import sys\n"))
			if assert.NoError(t, err) {
				tree.Close()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, p.Active())
}

func TestTree_NilSafe(t *testing.T) {
	var tree *Tree
	assert.Nil(t, tree.Root())
	tree.Close()
	assert.Equal(t, "", (&Tree{}).Text(nil))
	assert.Equal(t, 0, (&Tree{}).Line(nil))
}
