package entrypoint

import (
	"context"
	"fmt"

	"github.com/flarebyte/kiln/internal/ctxlog"
)

// Config names the sources one resolution draws from. Empty fields are
// skipped.
type Config struct {
	Declared    string
	Manifest    string
	Scan        string
	Conventions []string
	// Rule is Lua source defining entrypoint(path).
	Rule   string
	Prefer string
}

// Resolve runs a full Collecting -> Reconciling pass over cfg. Failures to
// read a source are returned as plain errors; Ambiguous and NotFound come
// back as *ResolutionError alongside the Resolution.
func Resolve(ctx context.Context, cfg Config) (Resolution, error) {
	prefer, err := ParsePreference(cfg.Prefer)
	if err != nil {
		return Resolution{}, err
	}
	var rule *Rule
	if cfg.Rule != "" {
		if rule, err = CompileRule(cfg.Rule); err != nil {
			return Resolution{}, err
		}
	}
	r := NewResolver(prefer)
	if cfg.Declared != "" {
		if err := r.Declare(cfg.Declared, "config"); err != nil {
			return Resolution{}, err
		}
	}
	if cfg.Manifest != "" {
		cs, err := ReadManifest(cfg.Manifest)
		if err != nil {
			return Resolution{}, fmt.Errorf("read manifest: %w", err)
		}
		if err := r.Add(cs...); err != nil {
			return Resolution{}, err
		}
	}
	if cfg.Scan != "" {
		cs, err := ScanConventions(ctx, cfg.Scan, cfg.Conventions, rule)
		if err != nil {
			return Resolution{}, fmt.Errorf("convention scan: %w", err)
		}
		if err := r.Add(cs...); err != nil {
			return Resolution{}, err
		}
	}
	res, err := r.Reconcile()
	log := ctxlog.FromContext(ctx)
	if err != nil {
		log.Debug("entry point unresolved", "state", res.State, "candidates", len(res.Candidates))
		return res, err
	}
	log.Debug("entry point resolved", "id", res.Chosen.ID, "source", res.Chosen.Source)
	return res, nil
}
