package vcs

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestIgnorer_RootAndNestedPatterns(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".gitignore"), "# caches\n*.map\nnode_modules/\n")
	writeFile(t, filepath.Join(root, "js", ".gitignore"), "tmp.js\n")

	ig := NewIgnorer(root, false)
	cases := []struct {
		rel    string
		isDir  bool
		ignore bool
	}{
		{"app.js", false, false},
		{"app.js.map", false, true},
		{"node_modules", true, true},
		{filepath.Join("js", "tmp.js"), false, true},
		{"tmp.js", false, false},
		{filepath.Join("js", "deep", "x.map"), false, true},
	}
	for _, c := range cases {
		if got := ig.Match(c.rel, c.isDir); got != c.ignore {
			t.Fatalf("Match(%q, %v) = %v, want %v", c.rel, c.isDir, got, c.ignore)
		}
	}
}

func TestIgnorer_Disabled(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".gitignore"), "*\n")
	if NewIgnorer(root, true).Match("anything", false) {
		t.Fatalf("disabled ignorer must not match")
	}
}

func TestRevision_NotARepo(t *testing.T) {
	_, err := Revision(t.TempDir())
	if !errors.Is(err, ErrNoRevision) {
		t.Fatalf("expected ErrNoRevision, got %v", err)
	}
}
