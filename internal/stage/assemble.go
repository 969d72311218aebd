package stage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/flarebyte/kiln/internal/artifact"
	"github.com/flarebyte/kiln/internal/ctxlog"
	"github.com/flarebyte/kiln/internal/registry"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

func init() {
	Register(KindAssemble, Kind{
		Validate: validateAssemble,
		New: func(s Spec, env *Env) (Stage, error) {
			return assembleStage{collaborator{spec: s, env: env}}, nil
		},
	})
}

func validateAssemble(s Spec) error {
	if err := firstErr(requireCommand(s), requireOutputs(s, 1, 1), requireProduces(s)); err != nil {
		return err
	}
	if s.EntrypointKey == "" {
		return specErrorf(s.Name, "assemble stages need entrypointKey")
	}
	if !s.HasInput(s.EntrypointKey) {
		return specErrorf(s.Name, "entrypointKey %q is not a declared input", s.EntrypointKey)
	}
	if _, err := bundleKey(s); err != nil {
		return err
	}
	return nil
}

// bundleKey returns the bundle input: the explicit setting, or else the only
// input besides the entry point.
func bundleKey(s Spec) (string, error) {
	if s.Bundle != "" {
		if !s.HasInput(s.Bundle) {
			return "", specErrorf(s.Name, "bundle %q is not a declared input", s.Bundle)
		}
		return s.Bundle, nil
	}
	var rest []string
	for _, k := range s.Inputs {
		if k != s.EntrypointKey {
			rest = append(rest, k)
		}
	}
	if len(rest) != 1 {
		return "", specErrorf(s.Name, "cannot infer bundle among inputs %v; set bundle", rest)
	}
	return rest[0], nil
}

// assembleStage writes the image config and hands it to the image builder.
type assembleStage struct{ collaborator }

func (a assembleStage) Execute(ctx context.Context, in Inputs) (Outputs, error) {
	id, err := readIdentifier(in[a.spec.EntrypointKey].Location)
	if err != nil {
		return nil, err
	}
	cfgPath := filepath.Join(a.env.ScratchDir(a.spec.Name), "config.json")
	if err := a.writeImageConfig(ctx, cfgPath, id); err != nil {
		return nil, err
	}
	v := a.vars(in)
	v.Entrypoint = id
	v.Config = cfgPath
	if err := a.run(ctx, v); err != nil {
		return nil, err
	}
	out, err := a.collect()
	if err != nil {
		return nil, err
	}
	key := a.spec.Outputs[0]
	o := out[key]
	switch {
	case registry.IsLayout(o.Location):
		o.Digest, err = registry.LayoutDigest(o.Location)
	default:
		if st, statErr := os.Stat(o.Location); statErr == nil && st.Mode().IsRegular() {
			o.Digest, err = artifact.Checksum(o.Location)
		}
	}
	if err != nil {
		return nil, err
	}
	out[key] = o
	return out, nil
}

func readIdentifier(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read entry point: %w", err)
	}
	id := strings.TrimSpace(string(b))
	if id == "" {
		return "", fmt.Errorf("entry point file %s is empty", path)
	}
	return id, nil
}

// Label keys written into every image config.
const (
	LabelRevision = "org.opencontainers.image.revision"
	LabelCreated  = "org.opencontainers.image.created"
)

func (a assembleStage) imageConfig(ctx context.Context, id string) ocispec.Image {
	created := a.env.now().UTC().Truncate(time.Second)
	labels := map[string]string{LabelCreated: created.Format(time.RFC3339)}
	if a.env.Revision != nil {
		if rev, err := a.env.Revision(a.env.Workdir); err == nil {
			labels[LabelRevision] = rev
		} else {
			ctxlog.FromContext(ctx).Debug("no source revision", "stage", a.spec.Name, "err", err)
		}
	}
	for k, v := range a.spec.Labels {
		labels[k] = v
	}
	entry := append(append([]string(nil), a.spec.Launcher...), id)
	return ocispec.Image{
		Created: &created,
		Platform: ocispec.Platform{
			OS:           "linux",
			Architecture: runtime.GOARCH,
		},
		Config: ocispec.ImageConfig{
			Entrypoint: entry,
			WorkingDir: a.spec.WorkingDir,
			Labels:     labels,
		},
		RootFS: ocispec.RootFS{Type: "layers"},
	}
}

func (a assembleStage) writeImageConfig(ctx context.Context, path, id string) error {
	b, err := json.MarshalIndent(a.imageConfig(ctx, id), "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, append(b, '\n'), 0o644)
}
