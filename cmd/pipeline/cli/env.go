package cli

import (
	"context"
	"fmt"

	"github.com/flarebyte/kiln/internal/config"
	"github.com/flarebyte/kiln/internal/ctxlog"
	"github.com/flarebyte/kiln/internal/registry"
	"github.com/flarebyte/kiln/internal/runlog"
	"github.com/flarebyte/kiln/internal/stage"
)

// LoadConfig loads path, mapping every failure to exit code 3.
func LoadConfig(path string) (*config.Config, error) {
	if path == "" {
		return nil, ExitError{Code: ExitConfig, Msg: "missing required flag: --config"}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, ConfigError(err)
	}
	return cfg, nil
}

// NewEnv builds the stage environment for cfg. Registry credentials come
// from the docker credential store when one is available.
func NewEnv(ctx context.Context, cfg *config.Config) *stage.Env {
	env := stage.NewEnv(cfg.Options.Workdir)
	env.Registry = cfg.Options.Registry
	env.Vars = cfg.Options.Env
	pusher, err := registry.NewORAS()
	if err != nil {
		ctxlog.FromContext(ctx).Warn("pushing without registry credentials", "err", err)
		pusher = &registry.ORAS{}
	}
	env.Pusher = pusher
	return env
}

// StatePath picks the run log location: the flag, then the config, then
// the XDG state directory.
func StatePath(flag string, cfg *config.Config) (string, error) {
	if flag != "" {
		return flag, nil
	}
	if cfg != nil && cfg.Options.StateFile != "" {
		return cfg.Options.StateFile, nil
	}
	p, err := runlog.DefaultPath()
	if err != nil {
		return "", fmt.Errorf("state file: %w", err)
	}
	return p, nil
}
