package config

import (
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// compileFile loads and compiles a CUE file at the given path.
func compileFile(ctx *cue.Context, path string) (cue.Value, error) {
	if filepath.Ext(path) != ".cue" {
		return cue.Value{}, fmt.Errorf("%w: unsupported config format: expected .cue", ErrInvalidConfig)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cue.Value{}, fmt.Errorf("failed to read config: %w", err)
	}
	v := ctx.CompileBytes(data, cue.Filename(path))
	if err := v.Err(); err != nil {
		return cue.Value{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return v, nil
}

// compileCUE compiles path and unifies it with the pipeline schema.
func compileCUE(path string) (cue.Value, error) {
	ctx := cuecontext.New()
	v, err := compileFile(ctx, path)
	if err != nil {
		return cue.Value{}, err
	}
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return cue.Value{}, fmt.Errorf("pipeline schema: %w", err)
	}
	u := schema.LookupPath(cue.ParsePath("#Config")).Unify(v)
	if err := u.Validate(cue.Concrete(true)); err != nil {
		return cue.Value{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return u, nil
}

func lookupString(v cue.Value, path string) (string, bool) {
	f := v.LookupPath(cue.ParsePath(path))
	if !f.Exists() || f.Kind() != cue.StringKind {
		return "", false
	}
	s, err := f.String()
	if err != nil {
		return "", false
	}
	return s, true
}
