package orchestrator

import (
	"context"
	"errors"

	"github.com/flarebyte/kiln/internal/artifact"
	"github.com/flarebyte/kiln/internal/ctxlog"
	"github.com/flarebyte/kiln/internal/entrypoint"
	"github.com/flarebyte/kiln/internal/stage"
)

// EntryPointCheck is the outcome of reconciling one resolve stage before
// anything runs.
type EntryPointCheck struct {
	Stage      string
	Resolution entrypoint.Resolution
	Err        error
	// Determinable is false when a source comes from a stage that has not
	// run yet; Resolution and Err are then empty.
	Determinable bool
}

// Validation is the result of a dry check of a pipeline.
type Validation struct {
	Plan        *Plan
	EntryPoints []EntryPointCheck
}

// Failed reports whether some entry point is already known to be
// Ambiguous or NotFound.
func (v *Validation) Failed() bool {
	for _, c := range v.EntryPoints {
		if c.Err != nil {
			return true
		}
	}
	return false
}

// Validate plans specs and reconciles every resolve stage whose sources are
// all starting artifacts. No collaborator runs. Structural defects are
// returned as a *PlanError.
func Validate(ctx context.Context, specs []stage.Spec, starting map[string]string, env *stage.Env) (*Validation, error) {
	plan, err := NewPlan(specs, starting)
	if err != nil {
		return nil, err
	}
	if env == nil {
		env = stage.NewEnv(".")
	}
	v := &Validation{Plan: plan}
	for _, s := range plan.Stages() {
		if s.Kind != stage.KindResolve {
			continue
		}
		check := EntryPointCheck{Stage: s.Name}
		if determinable(s, starting) {
			in := stage.Inputs{}
			for _, key := range s.Inputs {
				if loc, ok := starting[key]; ok {
					in[key] = artifact.Record{Key: key, Location: env.Path(loc), Producer: artifact.InputProducer}
				}
			}
			check.Determinable = true
			check.Resolution, check.Err = entrypoint.Resolve(ctx, stage.EntrypointConfig(s, in))
			if check.Err != nil && !isResolution(check.Err) {
				ctxlog.FromContext(ctx).Warn("entry point source unreadable", "stage", s.Name, "err", check.Err)
			}
		}
		v.EntryPoints = append(v.EntryPoints, check)
	}
	return v, nil
}

// determinable reports whether a resolve stage can be reconciled without
// running anything upstream.
func determinable(s stage.Spec, starting map[string]string) bool {
	ep := s.Entrypoint
	if ep.Declared != "" {
		return true
	}
	for _, key := range []string{ep.Manifest, ep.Scan} {
		if key == "" {
			continue
		}
		if _, ok := starting[key]; !ok {
			return false
		}
	}
	return true
}

func isResolution(err error) bool {
	var re *entrypoint.ResolutionError
	return errors.As(err, &re)
}
