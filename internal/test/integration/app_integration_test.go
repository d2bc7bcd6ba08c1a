package integration

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"pycomplete/internal/core/app"
	"pycomplete/internal/core/config"
	"pycomplete/internal/core/document"
	"pycomplete/internal/core/errors"
	"pycomplete/internal/data/history"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const widgetSource = `import os

def area(size, scale=2):
    return size * scale

class Widget:
    """A widget."""

    def __init__(self, name, size=1):
        self.name = name

print("never runs")
`

func newApp(t *testing.T) (*app.App, string) {
	t.Helper()
	python, err := exec.LookPath("python3")
	if err != nil {
		t.Skip("python3 not available")
	}
	tmpDir := t.TempDir()

	cfg := config.Default()
	cfg.Python.Interpreter = python
	cfg.History.Enabled = true
	paths, err := config.ResolvePaths(cfg, tmpDir)
	require.NoError(t, err)

	a, err := app.New(cfg, paths, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(context.Background()) })
	return a, tmpDir
}

func TestCompletionAgainstPython(t *testing.T) {
	a, _ := newApp(t)
	ctx := context.Background()
	imports := []string{"import os"}

	res, err := a.Complete(ctx, "os.getc", "", imports)
	require.NoError(t, err)
	assert.Equal(t, document.CompleteSuffix, res.Kind)
	assert.Equal(t, "wd", res.Suffix)

	res, err = a.Complete(ctx, "os.pa", "", imports)
	require.NoError(t, err)
	require.Equal(t, document.CompleteAmbiguous, res.Kind)
	assert.Contains(t, res.Candidates, "path")
	assert.Contains(t, res.Candidates, "pardir")

	res, err = a.Complete(ctx, "os.nothing_here", "", imports)
	require.NoError(t, err)
	assert.Equal(t, document.CompleteNotFound, res.Kind)

	_, err = a.Complete(ctx, "os.pa", "", []string{"exec(1)"})
	assert.True(t, errors.IsCode(err, errors.CodeInvalidImport), "a TypeError while importing is reported")
	assert.NotEmpty(t, a.GetDocstring(ctx, "os.path.join", "", imports))
	assert.Empty(t, a.GetDocstring(ctx, "os.sep", "", imports))
	assert.NotEmpty(t, a.Help(ctx, "os.getcwd", "", imports))
}

func TestParsedSourceAgainstPython(t *testing.T) {
	a, dir := newApp(t)
	ctx := context.Background()
	path := filepath.Join(dir, "widget.py")
	require.NoError(t, os.WriteFile(path, []byte(widgetSource), 0o644))

	require.Empty(t, a.ParseSource(ctx, path, false))
	names, err := a.GetAllCompletions(ctx, "Wid", path, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"Widget"}, names)
	assert.Equal(t, "area(size, scale=2)", a.GetSignature(ctx, "area", path, nil))
	assert.Equal(t, "__init__(self, name, size=1)", a.GetSignature(ctx, "Widget", path, nil))
	assert.Equal(t, "A widget.", a.GetDocstring(ctx, "Widget", path, nil))

	loc, ok := a.GetLocation(ctx, "area", path, nil)
	require.True(t, ok)
	abs, err := filepath.Abs(path)
	require.NoError(t, err)
	assert.Equal(t, abs, loc.File)
	assert.Equal(t, 3, loc.Line)

	require.NoError(t, os.WriteFile(path, []byte("def broken(:\n"), 0o644))
	assert.Contains(t, a.ParseSource(ctx, path, true), "invalid syntax")
	names, err = a.GetAllCompletions(ctx, "Wid", path, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"Widget"}, names, "a failed reload keeps the namespace")

	require.NoError(t, a.Close(ctx))
	store, err := history.Open(filepath.Join(dir, "pycomplete-history.db"), 0)
	require.NoError(t, err)
	defer store.Close()
	entries, err := store.Recent(path, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, history.OutcomeSyntaxError, entries[0].Outcome)
	assert.Equal(t, history.OutcomeOK, entries[1].Outcome)
}
