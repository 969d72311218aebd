package stage

import (
	"context"
	"errors"
	"fmt"

	"github.com/flarebyte/kiln/internal/ctxlog"
	"github.com/flarebyte/kiln/internal/registry"
	"github.com/opencontainers/go-digest"
)

const defaultTag = "latest"

// ErrNoRegistry is returned when a publish stage has no target repository.
var ErrNoRegistry = errors.New("no registry configured")

func init() {
	Register(KindPublish, Kind{
		Validate: validatePublish,
		New: func(s Spec, env *Env) (Stage, error) {
			return publishStage{collaborator{spec: s, env: env}}, nil
		},
	})
}

func validatePublish(s Spec) error {
	if err := requireOutputs(s, 0, 1); err != nil {
		return err
	}
	if _, err := imageKey(s); err != nil {
		return err
	}
	switch s.Driver {
	case "", DriverORAS:
	case DriverCommand:
		if err := requireCommand(s); err != nil {
			return err
		}
	default:
		return specErrorf(s.Name, "unknown publish driver %q", s.Driver)
	}
	return nil
}

func imageKey(s Spec) (string, error) {
	if s.Image != "" {
		if !s.HasInput(s.Image) {
			return "", specErrorf(s.Name, "image %q is not a declared input", s.Image)
		}
		return s.Image, nil
	}
	if len(s.Inputs) != 1 {
		return "", specErrorf(s.Name, "cannot infer image among inputs %v; set image", s.Inputs)
	}
	return s.Inputs[0], nil
}

// Reference returns the image reference a publish stage pushes to.
func Reference(s Spec, env *Env) (string, error) {
	if env.Registry == "" {
		return "", fmt.Errorf("stage %q: %w", s.Name, ErrNoRegistry)
	}
	tag := s.Tag
	if tag == "" {
		tag = defaultTag
	}
	return env.Registry + ":" + tag, nil
}

// publishStage pushes an assembled image. Pushing a digest the target
// already holds is a successful no-op.
type publishStage struct{ collaborator }

func (p publishStage) Execute(ctx context.Context, in Inputs) (Outputs, error) {
	key, err := imageKey(p.spec)
	if err != nil {
		return nil, err
	}
	ref, err := Reference(p.spec, p.env)
	if err != nil {
		return nil, err
	}
	rec := in[key]
	d := rec.Checksum
	if d == "" && registry.IsLayout(rec.Location) {
		if d, err = registry.LayoutDigest(rec.Location); err != nil {
			return nil, err
		}
	}
	target := registry.Target{Ref: ref, PlainHTTP: p.spec.PlainHTTP}
	log := ctxlog.FromContext(ctx).With("stage", p.spec.Name, "ref", ref)

	pushed, skipped, err := p.push(ctx, in, rec.Location, target, d)
	if err != nil {
		return nil, err
	}
	if skipped {
		log.Info("image already published", "digest", d)
	} else {
		log.Info("image published", "digest", pushed)
	}
	p.env.Ledger.Record(ref, pushed)

	out := Outputs{}
	if len(p.spec.Outputs) == 1 {
		loc := ref
		if pushed != "" {
			loc = ref + "@" + pushed.String()
		}
		out[p.spec.Outputs[0]] = Output{Location: loc, Digest: pushed}
	}
	return out, nil
}

func (p publishStage) push(ctx context.Context, in Inputs, layout string, t registry.Target, d digest.Digest) (digest.Digest, bool, error) {
	if p.env.Ledger.Published(t.Ref, d) {
		return d, true, nil
	}
	if p.spec.Driver == DriverCommand {
		v := p.vars(in)
		v.Ref = t.Ref
		v.Digest = d.String()
		if err := p.run(ctx, v); err != nil {
			return "", false, err
		}
		return d, false, nil
	}
	if p.env.Pusher == nil {
		return "", false, fmt.Errorf("stage %q: no registry pusher configured", p.spec.Name)
	}
	if d != "" {
		exists, err := p.env.Pusher.Exists(ctx, t, d)
		if err != nil {
			return "", false, err
		}
		if exists {
			return d, true, nil
		}
	}
	pushed, err := p.env.Pusher.Push(ctx, layout, t)
	if err != nil {
		return "", false, err
	}
	return pushed, false, nil
}
