// Package config loads pipeline definitions from CUE files.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"sort"
	"time"

	"cuelang.org/go/cue/cuecontext"
	"github.com/flarebyte/kiln/internal/stage"
)

// ErrInvalidConfig marks configs that fail to parse or validate.
var ErrInvalidConfig = errors.New("invalid config")

// DefaultTimeout bounds each stage attempt unless the config says otherwise.
const DefaultTimeout = 30 * time.Minute

// Config is a loaded and validated pipeline definition.
type Config struct {
	// Path is the absolute config file path.
	Path          string
	ConfigVersion string
	Name          string
	Options       Options
	// Artifacts maps starting artifact keys to paths relative to the workdir.
	Artifacts map[string]string
	Stages    []stage.Spec
}

// Options are the run-wide settings.
type Options struct {
	Concurrency int
	Timeout     time.Duration
	Registry    string
	// Workdir is absolute; a relative setting is taken from the config
	// file's directory.
	Workdir   string
	StateFile string
	Env       map[string]string
}

type rawConfig struct {
	ConfigVersion string            `json:"configVersion"`
	Name          string            `json:"name"`
	Options       rawOptions        `json:"options"`
	Artifacts     map[string]string `json:"artifacts"`
	Stages        []rawStage        `json:"stages"`
}

type rawOptions struct {
	Concurrency int               `json:"concurrency"`
	Timeout     string            `json:"timeout"`
	Registry    string            `json:"registry"`
	Workdir     string            `json:"workdir"`
	StateFile   string            `json:"stateFile"`
	Env         map[string]string `json:"env"`
}

type rawRetry struct {
	Attempts int    `json:"attempts"`
	Backoff  string `json:"backoff"`
}

type rawStage struct {
	Name     string            `json:"name"`
	Kind     string            `json:"kind"`
	Inputs   []string          `json:"inputs"`
	Outputs  []string          `json:"outputs"`
	Command  []string          `json:"command"`
	Dir      string            `json:"dir"`
	Env      map[string]string `json:"env"`
	Produces map[string]string `json:"produces"`
	Timeout  string            `json:"timeout"`
	Retry    *rawRetry         `json:"retry"`

	Destination    string `json:"destination"`
	Mode           string `json:"mode"`
	IncludeIgnored bool   `json:"includeIgnored"`

	Entrypoint stage.EntrypointSettings `json:"entrypoint"`

	Bundle        string            `json:"bundle"`
	EntrypointKey string            `json:"entrypointKey"`
	Launcher      []string          `json:"launcher"`
	WorkingDir    string            `json:"workingDir"`
	Labels        map[string]string `json:"labels"`

	Image     string `json:"image"`
	Driver    string `json:"driver"`
	Tag       string `json:"tag"`
	PlainHTTP bool   `json:"plainHTTP"`
}

// Load reads path, validates it against the schema and the version policy,
// and returns the decoded config. Stage declarations are type-checked here;
// graph-level defects are left to the planner.
func Load(path string) (*Config, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if v, ok := rawVersion(abs); ok {
		if err := CheckConfigVersion(v); err != nil {
			return nil, err
		}
	}
	v, err := compileCUE(abs)
	if err != nil {
		return nil, err
	}
	var raw rawConfig
	if err := v.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := CheckConfigVersion(raw.ConfigVersion); err != nil {
		return nil, err
	}
	opts, err := raw.Options.resolve(filepath.Dir(abs))
	if err != nil {
		return nil, err
	}
	stages := make([]stage.Spec, 0, len(raw.Stages))
	for i, rs := range raw.Stages {
		s, err := rs.spec()
		if err != nil {
			return nil, fmt.Errorf("%w: stages[%d]: %v", ErrInvalidConfig, i, err)
		}
		stages = append(stages, s)
	}
	name := raw.Name
	if name == "" {
		name = filepath.Base(opts.Workdir)
	}
	return &Config{
		Path:          abs,
		ConfigVersion: raw.ConfigVersion,
		Name:          name,
		Options:       opts,
		Artifacts:     raw.Artifacts,
		Stages:        stages,
	}, nil
}

// rawVersion peeks at configVersion before schema validation so that a
// config written for another major version reports the version mismatch
// rather than schema noise.
func rawVersion(path string) (string, bool) {
	v, err := compileFile(cuecontext.New(), path)
	if err != nil {
		return "", false
	}
	return lookupString(v, "configVersion")
}

func (o rawOptions) resolve(base string) (Options, error) {
	out := Options{
		Concurrency: o.Concurrency,
		Timeout:     DefaultTimeout,
		Registry:    o.Registry,
		StateFile:   o.StateFile,
		Env:         o.Env,
	}
	if out.Concurrency == 0 {
		out.Concurrency = runtime.NumCPU()
	}
	if o.Timeout != "" {
		d, err := parseDuration("options.timeout", o.Timeout)
		if err != nil {
			return Options{}, err
		}
		out.Timeout = d
	}
	out.Workdir = base
	if o.Workdir != "" {
		if filepath.IsAbs(o.Workdir) {
			out.Workdir = filepath.Clean(o.Workdir)
		} else {
			out.Workdir = filepath.Join(base, o.Workdir)
		}
	}
	if out.StateFile != "" && !filepath.IsAbs(out.StateFile) {
		out.StateFile = filepath.Join(base, out.StateFile)
	}
	return out, nil
}

func (r rawStage) spec() (stage.Spec, error) {
	s := stage.Spec{
		Name:           r.Name,
		Kind:           r.Kind,
		Inputs:         r.Inputs,
		Outputs:        r.Outputs,
		Command:        r.Command,
		Dir:            r.Dir,
		Env:            r.Env,
		Produces:       r.Produces,
		Destination:    r.Destination,
		Mode:           r.Mode,
		IncludeIgnored: r.IncludeIgnored,
		Entrypoint:     r.Entrypoint,
		Bundle:         r.Bundle,
		EntrypointKey:  r.EntrypointKey,
		Launcher:       r.Launcher,
		WorkingDir:     r.WorkingDir,
		Labels:         r.Labels,
		Image:          r.Image,
		Driver:         r.Driver,
		Tag:            r.Tag,
		PlainHTTP:      r.PlainHTTP,
	}
	if r.Timeout != "" {
		d, err := parseDuration(r.Name+".timeout", r.Timeout)
		if err != nil {
			return stage.Spec{}, err
		}
		s.Timeout = d
	}
	if r.Retry != nil {
		s.Retry = &stage.Retry{Attempts: r.Retry.Attempts}
		if r.Retry.Backoff != "" {
			d, err := parseDuration(r.Name+".retry.backoff", r.Retry.Backoff)
			if err != nil {
				return stage.Spec{}, err
			}
			s.Retry.Backoff = d
		}
	}
	return s, nil
}

func parseDuration(field, v string) (time.Duration, error) {
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %q is not a duration", ErrInvalidConfig, field, v)
	}
	if d < 0 {
		return 0, fmt.Errorf("%w: %s must not be negative", ErrInvalidConfig, field)
	}
	return d, nil
}

// ArtifactKeys returns the starting artifact keys, sorted.
func (c *Config) ArtifactKeys() []string {
	keys := make([]string, 0, len(c.Artifacts))
	for k := range c.Artifacts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Starting returns a copy of the starting artifacts.
func (c *Config) Starting() map[string]string {
	out := make(map[string]string, len(c.Artifacts))
	for k, v := range c.Artifacts {
		out[k] = v
	}
	return out
}
