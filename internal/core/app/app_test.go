package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"pycomplete/internal/core/document"
	"pycomplete/internal/core/errors"
	"pycomplete/internal/data/history"
	"pycomplete/internal/engine/runtime"
	"pycomplete/internal/shared/observability"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubRuntime answers the session handshake and fails Info with err when
// set. Any other capability panics, so tests only reach code paths that
// stop before evaluating Python.
type stubRuntime struct {
	runtime.Runtime
	err     error
	execErr error
	closed  bool
}

func (s *stubRuntime) Info(ctx context.Context) (runtime.Info, error) {
	if s.err != nil {
		return runtime.Info{}, s.err
	}
	return runtime.Info{Version: "3.12.0", Keywords: []string{"for"}}, nil
}

func (s *stubRuntime) Generation() uint64 { return 1 }

func (s *stubRuntime) NewNamespace(ctx context.Context, ns runtime.Namespace, file string) error {
	return nil
}

func (s *stubRuntime) ResetLocals(ctx context.Context, ns runtime.Namespace) error { return nil }

func (s *stubRuntime) Exec(ctx context.Context, ns runtime.Namespace, code, filename string) error {
	return s.execErr
}

func (s *stubRuntime) Release(ctx context.Context, ns runtime.Namespace) error { return nil }

func (s *stubRuntime) Close() error {
	s.closed = true
	return nil
}

func writeFile(t *testing.T, dir, name, src string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

func TestApp_TotalOnRuntimeFailure(t *testing.T) {
	ctx := context.Background()
	rt := &stubRuntime{err: errors.New(errors.CodeRuntime, "python worker unavailable")}
	a := NewWithOptions(Options{Runtime: rt})
	t.Cleanup(func() { _ = a.Close(ctx) })

	before := testutil.ToFloat64(observability.RequestsTotal.WithLabelValues("get_all_completions", "error"))
	names, err := a.GetAllCompletions(ctx, "os.pa", "", []string{"import os"})
	require.NoError(t, err, "a broken worker answers empty")
	assert.NotNil(t, names)
	assert.Empty(t, names)
	assert.Equal(t, before+1, testutil.ToFloat64(observability.RequestsTotal.WithLabelValues("get_all_completions", "error")))

	res, err := a.Complete(ctx, "os.pa", "", nil)
	require.NoError(t, err)
	assert.Equal(t, document.CompleteNotFound, res.Kind)
	res, err = a.Complete(ctx, "", "", nil)
	require.NoError(t, err)
	assert.Equal(t, document.CompleteEmpty, res.Kind)
	assert.Equal(t, "python worker unavailable", a.Help(ctx, "os", "", nil))
	assert.Equal(t, "python worker unavailable", a.GetSignature(ctx, "os.getcwd", "", nil))
	assert.Empty(t, a.GetDocstring(ctx, "os", "", nil))
	_, ok := a.GetLocation(ctx, "os.getcwd", "", nil)
	assert.False(t, ok)

	path := writeFile(t, t.TempDir(), "mod.py", "import os\n")
	assert.Equal(t, "python worker unavailable", a.ParseSource(ctx, path, false))
}

func TestApp_CompletionReportsRejectedImport(t *testing.T) {
	ctx := context.Background()
	rt := &stubRuntime{execErr: &runtime.PyError{Type: "TypeError", Message: "exec() arg 1 must be a string"}}
	a := NewWithOptions(Options{Runtime: rt})
	t.Cleanup(func() { _ = a.Close(ctx) })
	imports := []string{"raise TypeError('bad')"}

	names, err := a.GetAllCompletions(ctx, "os.pa", "", imports)
	require.Error(t, err)
	assert.Empty(t, names)
	assert.True(t, errors.IsCode(err, errors.CodeInvalidImport))
	assert.Equal(t, "invalid type: raise TypeError('bad')", errors.Describe(err))

	var de *errors.DomainError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "os.pa", de.Context[errors.CtxExpression])
	assert.Equal(t, imports[0], de.Context[errors.CtxStatement])

	res, err := a.Complete(ctx, "os.pa", "", imports)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeInvalidImport))
	assert.Equal(t, document.CompleteNotFound, res.Kind)
}

func TestApp_ParseSourceJournal(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "history.db")
	store, err := history.Open(dbPath, time.Second)
	require.NoError(t, err)

	rt := &stubRuntime{}
	a := NewWithOptions(Options{Runtime: rt, Store: store})
	missing := filepath.Join(t.TempDir(), "gone.py")

	assert.Empty(t, a.ParseSource(ctx, missing, true), "reload of an unparsed file is skipped")
	assert.Empty(t, a.ParseSource(ctx, "", false))
	msg := a.ParseSource(ctx, missing, false)
	assert.Contains(t, msg, "read source")

	a.HandleChanges([]string{filepath.Join(t.TempDir(), "other.py")})
	a.HandleChanges([]string{missing})

	assert.Equal(t, []string{missing}, a.Documents())
	require.NoError(t, a.Close(ctx))
	assert.True(t, rt.closed)

	store, err = history.Open(dbPath, time.Second)
	require.NoError(t, err)
	defer store.Close()
	entries, err := store.Recent("", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2, "the initial parse and the reload")
	for _, e := range entries {
		assert.Equal(t, missing, e.Path)
		assert.Equal(t, history.OutcomeFileError, e.Outcome)
		assert.Equal(t, a.Session(), e.Session)
		assert.Equal(t, msg, e.Message)
	}
}

func TestApp_Imports(t *testing.T) {
	a := NewWithOptions(Options{Runtime: &stubRuntime{}})
	dir := t.TempDir()
	path := writeFile(t, dir, "mod.py", "import os\nfrom math import sqrt\n\ndef f():\n    import json\n")

	stmts, err := a.Imports(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"import os", "from math import sqrt"}, stmts)

	bad := writeFile(t, dir, "bad.py", "def broken(:\n    pass\n")
	_, err = a.Imports(bad)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeParse))

	_, err = a.Imports(filepath.Join(dir, "missing.py"))
	assert.True(t, errors.IsCode(err, errors.CodeFile))
}

func TestApp_Reduce(t *testing.T) {
	a := NewWithOptions(Options{Runtime: &stubRuntime{}})
	path := writeFile(t, t.TempDir(), "mod.py", "import os\n\ndef area(size, scale=2):\n    print(size)\n    return size * scale\n")

	out, err := a.Reduce(path)
	require.NoError(t, err)
	assert.Contains(t, out, "def area(size, scale=2):\n    pass\n")
	assert.NotContains(t, out, "print")
}

func TestApp_Health(t *testing.T) {
	ctx := context.Background()
	a := NewWithOptions(Options{Runtime: &stubRuntime{}})
	h := a.Health(ctx)
	assert.Equal(t, "up", h.Status)
	assert.Equal(t, "ok (3.12.0, generation 1)", h.Components["python"])
	assert.Equal(t, "disabled", h.Components["journal"])
	assert.Equal(t, a.Session(), h.Session)

	broken := NewWithOptions(Options{Runtime: &stubRuntime{err: errors.New(errors.CodeRuntime, "no python")}})
	m := broken.HealthMap(ctx)
	assert.Equal(t, "degraded", m["status"])
}
