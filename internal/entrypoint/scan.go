package entrypoint

import (
	"context"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/flarebyte/kiln/internal/vcs"
)

// DefaultConventions are base-name patterns for conventional entry points.
var DefaultConventions = []string{"*Application.class", "main", "main.js", "server.js", "app.py"}

// ScanFiles lists regular files under root as sorted slash-separated paths,
// skipping gitignored entries.
func ScanFiles(ctx context.Context, root string) ([]string, error) {
	ig := vcs.NewIgnorer(root, false)
	var files []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		if ig.Match(rel, d.IsDir()) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() && !vcs.IsIgnoreFile(d.Name()) {
			files = append(files, filepath.ToSlash(rel))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

// ScanConventions returns a convention candidate for every file under root
// whose base name matches one of patterns. With a rule, the rule decides
// instead of the patterns.
func ScanConventions(ctx context.Context, root string, patterns []string, rule *Rule) ([]Candidate, error) {
	st, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !st.IsDir() {
		root, patterns = filepath.Dir(root), []string{filepath.Base(root)}
	}
	files, err := ScanFiles(ctx, root)
	if err != nil {
		return nil, err
	}
	slashRoot := filepath.ToSlash(root)
	if rule != nil {
		return rule.Map(ctx, slashRoot, files)
	}
	if len(patterns) == 0 {
		patterns = DefaultConventions
	}
	var out []Candidate
	for _, f := range files {
		if !matchAny(patterns, path.Base(f)) {
			continue
		}
		out = append(out, Candidate{ID: identifierFor(f), Source: SourceConvention, Origin: slashRoot + "/" + f})
	}
	return out, nil
}

func matchAny(patterns []string, name string) bool {
	for _, p := range patterns {
		if ok, err := path.Match(p, name); err == nil && ok {
			return true
		}
	}
	return false
}

// identifierFor maps a class file to its dotted class name, relative to the
// innermost "classes" directory when there is one. Other files keep their
// relative path.
func identifierFor(rel string) string {
	if !strings.HasSuffix(rel, ".class") {
		return rel
	}
	rel = strings.TrimSuffix(rel, ".class")
	if i := strings.LastIndex(rel, "classes/"); i >= 0 && (i == 0 || rel[i-1] == '/') {
		rel = rel[i+len("classes/"):]
	}
	return strings.ReplaceAll(rel, "/", ".")
}
