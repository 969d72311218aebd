package stage

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/flarebyte/kiln/internal/ctxlog"
	"github.com/flarebyte/kiln/internal/vcs"
)

func init() {
	Register(KindRelocate, Kind{
		Validate: validateRelocate,
		New: func(s Spec, env *Env) (Stage, error) {
			return relocateStage{spec: s, env: env}, nil
		},
	})
}

func validateRelocate(s Spec) error {
	if len(s.Inputs) != 1 {
		return specErrorf(s.Name, "relocate stages declare exactly 1 input, got %d", len(s.Inputs))
	}
	if err := requireOutputs(s, 1, 1); err != nil {
		return err
	}
	if s.Destination == "" {
		return specErrorf(s.Name, "relocate stages need a destination")
	}
	switch s.Mode {
	case "", ModeCopy, ModeMove:
	default:
		return specErrorf(s.Name, "unknown relocation mode %q", s.Mode)
	}
	return nil
}

// relocateStage copies its input tree into the destination, skipping
// gitignored paths unless told otherwise. Move mode carries every file,
// ignored ones included, since the source is removed afterwards.
type relocateStage struct {
	spec Spec
	env  *Env
}

func (r relocateStage) Execute(ctx context.Context, in Inputs) (Outputs, error) {
	src := in[r.spec.Inputs[0]].Location
	dst := r.env.Path(r.spec.Destination)
	fail := func(reason string, err error) error {
		return &RelocationError{Source: src, Destination: dst, Reason: reason, Err: err}
	}

	st, err := os.Stat(src)
	if err != nil {
		return nil, fail("source missing", err)
	}
	if st.IsDir() && within(src, dst) {
		return nil, fail("destination inside source", nil)
	}
	if err := checkWritable(dst); err != nil {
		return nil, fail("destination not writable", err)
	}

	var copied int
	if st.IsDir() {
		move := r.spec.Mode == ModeMove
		copied, err = copyTree(ctx, src, dst, vcs.NewIgnorer(src, r.spec.IncludeIgnored || move), move)
	} else {
		err = copyFile(src, filepath.Join(dst, filepath.Base(src)), st.Mode())
		copied = 1
	}
	if err != nil {
		return nil, fail("copy", err)
	}
	if copied == 0 {
		return nil, fail("source is empty", nil)
	}
	if r.spec.Mode == ModeMove {
		if err := os.RemoveAll(src); err != nil {
			return nil, fail("remove source", err)
		}
	}
	ctxlog.FromContext(ctx).Debug("relocated", "stage", r.spec.Name, "files", copied, "to", dst)
	return Outputs{r.spec.Outputs[0]: {Location: dst}}, nil
}

// within reports whether p is dir itself or lies below it.
func within(dir, p string) bool {
	rel, err := filepath.Rel(filepath.Clean(dir), filepath.Clean(p))
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

func checkWritable(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".kiln-write-check-*")
	if err != nil {
		return err
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}

// copyTree copies regular files under src into dst and returns how many it
// copied. With keepIgnoreFiles unset, .gitignore files are left behind.
func copyTree(ctx context.Context, src, dst string, ig *vcs.Ignorer, keepIgnoreFiles bool) (int, error) {
	n := 0
	err := filepath.WalkDir(src, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
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
		out := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(out, 0o755)
		}
		if !d.Type().IsRegular() || (!keepIgnoreFiles && vcs.IsIgnoreFile(d.Name())) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if err := copyFile(p, out, info.Mode()); err != nil {
			return err
		}
		n++
		return nil
	})
	return n, err
}

func copyFile(src, dst string, mode fs.FileMode) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode.Perm())
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("write %s: %w", dst, err)
	}
	return nil
}
