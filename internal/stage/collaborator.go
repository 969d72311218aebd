package stage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/flarebyte/kiln/internal/ctxlog"
)

// collaborator is the part shared by stages that shell out to an external
// tool and then pick up the outputs it declared via produces.
type collaborator struct {
	spec Spec
	env  *Env
}

func (c collaborator) outputPath(key string) string {
	return c.env.Path(c.spec.Produces[key])
}

func (c collaborator) vars(in Inputs) Vars {
	v := Vars{
		Inputs:   make(map[string]string, len(in)),
		Outputs:  make(map[string]string, len(c.spec.Outputs)),
		Workdir:  c.env.Workdir,
		Registry: c.env.Registry,
	}
	for k, rec := range in {
		v.Inputs[k] = rec.Location
	}
	for _, k := range c.spec.Outputs {
		if _, ok := c.spec.Produces[k]; ok {
			v.Outputs[k] = c.outputPath(k)
		}
	}
	return v
}

func (c collaborator) run(ctx context.Context, v Vars) error {
	argv, err := renderArgs(c.spec.Command, v)
	if err != nil {
		return fmt.Errorf("stage %q: %w", c.spec.Name, err)
	}
	for _, k := range c.spec.Outputs {
		if p, ok := v.Outputs[k]; ok {
			if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
				return err
			}
		}
	}
	log := ctxlog.FromContext(ctx).With("stage", c.spec.Name, "program", argv[0])
	log.Debug("collaborator start", "args", argv[1:])
	res, err := c.env.Runner.Run(ctx, Invocation{
		Argv: argv,
		Dir:  c.env.Path(c.spec.Dir),
		Env:  mergeVars(c.env.Vars, c.spec.Env),
	})
	if res.Stdout != "" {
		log.Debug("collaborator stdout", "output", res.Stdout, "truncated", res.StdoutTruncated)
	}
	if err != nil {
		return err
	}
	log.Debug("collaborator done", "exit", res.ExitCode)
	return nil
}

// collect verifies every declared output exists at its produces location.
func (c collaborator) collect() (Outputs, error) {
	out := make(Outputs, len(c.spec.Outputs))
	for _, k := range c.spec.Outputs {
		p := c.outputPath(k)
		if _, err := os.Stat(p); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, &MissingOutputError{Key: k, Location: p}
			}
			return nil, err
		}
		out[k] = Output{Location: p}
	}
	return out, nil
}

// toolStage runs a collaborator and reports its produced outputs.
type toolStage struct{ collaborator }

func (t toolStage) Execute(ctx context.Context, in Inputs) (Outputs, error) {
	if err := t.run(ctx, t.vars(in)); err != nil {
		return nil, err
	}
	return t.collect()
}

func newToolStage(s Spec, env *Env) (Stage, error) {
	return toolStage{collaborator{spec: s, env: env}}, nil
}

func requireCommand(s Spec) error {
	if len(s.Command) == 0 {
		return specErrorf(s.Name, "%s stages need a command", s.Kind)
	}
	return nil
}

func requireProduces(s Spec) error {
	for _, k := range s.Outputs {
		if s.Produces[k] == "" {
			return specErrorf(s.Name, "output %q has no produces location", k)
		}
	}
	return nil
}

func requireOutputs(s Spec, lo, hi int) error {
	n := len(s.Outputs)
	switch {
	case lo == hi && n != lo:
		return specErrorf(s.Name, "%s stages declare exactly %d output(s), got %d", s.Kind, lo, n)
	case n < lo:
		return specErrorf(s.Name, "%s stages declare at least %d output(s), got %d", s.Kind, lo, n)
	case hi >= 0 && n > hi:
		return specErrorf(s.Name, "%s stages declare at most %d output(s), got %d", s.Kind, hi, n)
	}
	return nil
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
