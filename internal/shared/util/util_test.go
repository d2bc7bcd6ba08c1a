package util

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNormalizePatternPath(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "Empty", input: "", expected: ""},
		{name: "Dot", input: ".", expected: ""},
		{name: "Trim", input: "  ./pkg/mod.py  ", expected: "pkg/mod.py"},
		{name: "Relative", input: "pkg/../mod.py", expected: "mod.py"},
		{name: "Windows", input: `pkg\sub\mod.py`, expected: "pkg/sub/mod.py"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := NormalizePatternPath(tc.input); got != tc.expected {
				t.Fatalf("expected %q, got %q", tc.expected, got)
			}
		})
	}
}

func TestSortedUnion(t *testing.T) {
	t.Parallel()

	got := SortedUnion([]string{"while", "def"}, []string{"os", "def"}, nil, []string{"abs"})
	expected := []string{"abs", "def", "os", "while"}
	if len(got) != len(expected) {
		t.Fatalf("expected %v, got %v", expected, got)
	}
	for i := range expected {
		if got[i] != expected[i] {
			t.Fatalf("expected %q at %d, got %q", expected[i], i, got[i])
		}
	}

	keys := SortedStringKeys(map[string]int{"b": 2, "a": 1})
	if len(keys) != 2 || keys[0] != "a" || keys[1] != "b" {
		t.Fatalf("unexpected keys %v", keys)
	}
}

func TestFilterPrefix(t *testing.T) {
	t.Parallel()

	items := []string{"path", "pathsep", "pardir", "sep"}
	if got := FilterPrefix(items, "pa"); len(got) != 3 || got[2] != "pardir" {
		t.Fatalf("unexpected filter result %v", got)
	}
	if got := FilterPrefix(items, ""); len(got) != len(items) {
		t.Fatalf("expected all items, got %v", got)
	}
	if got := FilterPrefix(items, "zz"); got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", got)
	}
}

func TestCommonPrefix(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		items    []string
		expected string
	}{
		{name: "None", items: nil, expected: ""},
		{name: "Single", items: []string{"path"}, expected: "path"},
		{name: "Shared", items: []string{"path", "pathsep"}, expected: "path"},
		{name: "Partial", items: []string{"pardir", "path"}, expected: "pa"},
		{name: "Disjoint", items: []string{"abc", "xyz"}, expected: ""},
		{name: "SharedLeadByte", items: []string{"zzé", "zzè"}, expected: "zz"},
		{name: "NonASCIIShared", items: []string{"größe", "größer"}, expected: "größe"},
		{name: "DifferentLengthRunes", items: []string{"aé", "a€"}, expected: "a"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := CommonPrefix(tc.items); got != tc.expected {
				t.Fatalf("expected %q, got %q", tc.expected, got)
			}
		})
	}
}

func TestWriteStringWithDirs(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "reduced.py")

	if err := WriteStringWithDirs(path, "x = None\n", 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(got) != "x = None\n" {
		t.Fatalf("expected %q, got %q", "x = None\n", string(got))
	}
}
