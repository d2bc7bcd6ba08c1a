package errors

import (
	"errors"
	"testing"
)

func TestDomainError(t *testing.T) {
	t.Run("New", func(t *testing.T) {
		err := New(CodeNotFound, "symbol not found")
		if err.Error() != "[NOT_FOUND] symbol not found" {
			t.Errorf("expected [NOT_FOUND] symbol not found, got %s", err.Error())
		}
	})

	t.Run("Wrap", func(t *testing.T) {
		original := errors.New("broken pipe")
		err := Wrap(original, CodeRuntime, "worker request failed")
		expected := "[RUNTIME_ERROR] worker request failed: broken pipe"
		if err.Error() != expected {
			t.Errorf("expected %s, got %s", expected, err.Error())
		}
	})

	t.Run("IsCode", func(t *testing.T) {
		err := New(CodeParse, "invalid syntax (a.py, line 1)")
		if !IsCode(err, CodeParse) {
			t.Error("expected IsCode to return true for CodeParse")
		}
		if IsCode(err, CodeFile) {
			t.Error("expected IsCode to return false for CodeFile")
		}
	})

	t.Run("IsCodeWithWrapped", func(t *testing.T) {
		err := Wrap(errors.New("eof"), CodeRuntime, "worker died")
		wrapped := errors.Join(errors.New("outer"), err)
		if !IsCode(wrapped, CodeRuntime) {
			t.Error("expected IsCode to see through joined errors")
		}
	})

	t.Run("AddContext", func(t *testing.T) {
		err := AddContext(New(CodeInvalidImport, "invalid type: import x"), CtxPath, "/tmp/a.py")
		var de *DomainError
		if !errors.As(err, &de) {
			t.Fatal("expected DomainError")
		}
		if de.Context[CtxPath] != "/tmp/a.py" {
			t.Errorf("expected path context, got %v", de.Context)
		}

		plain := AddContext(errors.New("boom"), CtxOperation, "help")
		if !IsCode(plain, CodeInternal) {
			t.Error("expected plain errors to be wrapped as internal")
		}
	})
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "plain", err: errors.New("boom"), want: "boom"},
		{name: "message only", err: New(CodeParse, "invalid syntax (a.py, line 2)"), want: "invalid syntax (a.py, line 2)"},
		{name: "wrapped without message", err: Wrap(errors.New("open a.py: no such file or directory"), CodeFile, ""), want: "open a.py: no such file or directory"},
		{name: "wrapped with message", err: Wrap(errors.New("eof"), CodeRuntime, "worker exited"), want: "worker exited: eof"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Describe(tt.err); got != tt.want {
				t.Errorf("Describe() = %q, want %q", got, tt.want)
			}
		})
	}
}
