package stage

import (
	"context"
	"os"
	"path/filepath"

	"github.com/flarebyte/kiln/internal/entrypoint"
)

func init() {
	Register(KindResolve, Kind{
		Validate: validateResolve,
		New: func(s Spec, env *Env) (Stage, error) {
			return resolveStage{spec: s, env: env}, nil
		},
	})
}

func validateResolve(s Spec) error {
	if err := requireOutputs(s, 1, 1); err != nil {
		return err
	}
	ep := s.Entrypoint
	if ep.Declared == "" && ep.Manifest == "" && ep.Scan == "" {
		return specErrorf(s.Name, "resolve stages need entrypoint.declared, entrypoint.manifest or entrypoint.scan")
	}
	for _, key := range []string{ep.Manifest, ep.Scan} {
		if key != "" && !s.HasInput(key) {
			return specErrorf(s.Name, "entry point source %q is not a declared input", key)
		}
	}
	if _, err := entrypoint.ParsePreference(ep.Prefer); err != nil {
		return &SpecError{Stage: s.Name, Msg: err.Error()}
	}
	if ep.Rule != "" {
		if _, err := entrypoint.CompileRule(ep.Rule); err != nil {
			return &SpecError{Stage: s.Name, Msg: err.Error()}
		}
	}
	return nil
}

// EntrypointConfig maps the stage settings onto resolver sources, taking
// source locations from in. Sources whose input is absent are left out.
func EntrypointConfig(s Spec, in Inputs) entrypoint.Config {
	ep := s.Entrypoint
	cfg := entrypoint.Config{
		Declared:    ep.Declared,
		Conventions: ep.Conventions,
		Rule:        ep.Rule,
		Prefer:      ep.Prefer,
	}
	if rec, ok := in[ep.Manifest]; ok && ep.Manifest != "" {
		cfg.Manifest = rec.Location
	}
	if rec, ok := in[ep.Scan]; ok && ep.Scan != "" {
		cfg.Scan = rec.Location
	}
	return cfg
}

// resolveStage writes the resolved entry point identifier to its output.
type resolveStage struct {
	spec Spec
	env  *Env
}

func (r resolveStage) outputPath() string {
	key := r.spec.Outputs[0]
	if p := r.spec.Produces[key]; p != "" {
		return r.env.Path(p)
	}
	return filepath.Join(r.env.ScratchDir(r.spec.Name), "entrypoint")
}

func (r resolveStage) Execute(ctx context.Context, in Inputs) (Outputs, error) {
	res, err := entrypoint.Resolve(ctx, EntrypointConfig(r.spec, in))
	if err != nil {
		return nil, err
	}
	p := r.outputPath()
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(p, []byte(res.Chosen.ID+"\n"), 0o644); err != nil {
		return nil, err
	}
	return Outputs{r.spec.Outputs[0]: {Location: p}}, nil
}
