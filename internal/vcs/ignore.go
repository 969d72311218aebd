// Package vcs wraps the go-git pieces the pipeline needs: gitignore matching
// for source trees and the revision of the checkout a build came from.
package vcs

import (
	"os"
	"path/filepath"
	"strings"

	gitignore "github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// Ignorer answers gitignore queries for one source tree. Patterns are read
// lazily per directory and cached, so a walk reads each .gitignore once.
type Ignorer struct {
	root     string
	disabled bool
	cache    map[string][]gitignore.Pattern
}

// NewIgnorer returns an Ignorer rooted at root. With disabled set every query
// reports false.
func NewIgnorer(root string, disabled bool) *Ignorer {
	return &Ignorer{root: root, disabled: disabled, cache: map[string][]gitignore.Pattern{}}
}

// Match reports whether rel (relative to the root, OS separators) is ignored.
func (ig *Ignorer) Match(rel string, isDir bool) bool {
	if ig == nil || ig.disabled {
		return false
	}
	rel = filepath.Clean(rel)
	if rel == "." || rel == "" {
		return false
	}
	var patterns []gitignore.Pattern
	for _, d := range dirsForRel(rel) {
		patterns = append(patterns, ig.patternsIn(d)...)
	}
	if len(patterns) == 0 {
		return false
	}
	m := gitignore.NewMatcher(patterns)
	return m.Match(strings.Split(rel, string(os.PathSeparator)), isDir)
}

// IsIgnoreFile reports whether name is a .gitignore file itself.
func IsIgnoreFile(name string) bool { return name == ".gitignore" }

func (ig *Ignorer) patternsIn(dir string) []gitignore.Pattern {
	if p, ok := ig.cache[dir]; ok {
		return p
	}
	p := readPatterns(ig.root, dir)
	ig.cache[dir] = p
	return p
}

// dirsForRel returns the directories from "." down to the parent of rel.
func dirsForRel(rel string) []string {
	dirs := []string{"."}
	dir := filepath.Dir(rel)
	if dir == "." {
		return dirs
	}
	cur := ""
	for _, part := range strings.Split(dir, string(os.PathSeparator)) {
		cur = filepath.Join(cur, part)
		dirs = append(dirs, cur)
	}
	return dirs
}

func readPatterns(root, dir string) []gitignore.Pattern {
	b, err := os.ReadFile(filepath.Join(root, dir, ".gitignore"))
	if err != nil {
		return nil
	}
	var domain []string
	if dir != "." && dir != "" {
		domain = strings.Split(filepath.ToSlash(dir), "/")
	}
	var out []gitignore.Pattern
	for _, line := range strings.Split(string(b), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, gitignore.ParsePattern(line, domain))
	}
	return out
}
