package stage

import (
	"fmt"
	"time"
)

// Built-in stage kinds.
const (
	KindCompile  = "compile"
	KindRelocate = "relocate"
	KindPackage  = "package"
	KindResolve  = "resolve"
	KindAssemble = "assemble"
	KindPublish  = "publish"
	KindCommand  = "command"
)

// Relocation modes.
const (
	ModeCopy = "copy"
	ModeMove = "move"
)

// Publish drivers.
const (
	DriverORAS    = "oras"
	DriverCommand = "command"
)

// Retry is a fixed-count retry policy. Backoff doubles after each failed
// attempt. Attempts counts the first try, so 1 means no retry.
type Retry struct {
	Attempts int           `yaml:"attempts" json:"attempts"`
	Backoff  time.Duration `yaml:"backoff,omitempty" json:"backoff,omitempty"`
}

// EntrypointSettings configures a resolve stage. Manifest and Scan name
// input keys; Declared is an explicit identifier that wins when set.
type EntrypointSettings struct {
	Declared    string   `yaml:"declared,omitempty" json:"declared,omitempty"`
	Manifest    string   `yaml:"manifest,omitempty" json:"manifest,omitempty"`
	Scan        string   `yaml:"scan,omitempty" json:"scan,omitempty"`
	Conventions []string `yaml:"conventions,omitempty" json:"conventions,omitempty"`
	Rule        string   `yaml:"rule,omitempty" json:"rule,omitempty"`
	Prefer      string   `yaml:"prefer,omitempty" json:"prefer,omitempty"`
}

// Spec is the immutable declaration of one stage.
type Spec struct {
	Name    string            `yaml:"name" json:"name"`
	Kind    string            `yaml:"kind" json:"kind"`
	Inputs  []string          `yaml:"inputs,omitempty" json:"inputs,omitempty"`
	Outputs []string          `yaml:"outputs,omitempty" json:"outputs,omitempty"`
	Command []string          `yaml:"command,omitempty" json:"command,omitempty"`
	Dir     string            `yaml:"dir,omitempty" json:"dir,omitempty"`
	Env     map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
	// Produces maps an output key to the location the collaborator writes.
	Produces map[string]string `yaml:"produces,omitempty" json:"produces,omitempty"`
	Timeout  time.Duration     `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	Retry    *Retry            `yaml:"retry,omitempty" json:"retry,omitempty"`

	// relocate
	Destination    string `yaml:"destination,omitempty" json:"destination,omitempty"`
	Mode           string `yaml:"mode,omitempty" json:"mode,omitempty"`
	IncludeIgnored bool   `yaml:"includeIgnored,omitempty" json:"includeIgnored,omitempty"`

	// resolve
	Entrypoint EntrypointSettings `yaml:"entrypoint,omitempty" json:"entrypoint,omitempty"`

	// assemble
	Bundle        string            `yaml:"bundle,omitempty" json:"bundle,omitempty"`
	EntrypointKey string            `yaml:"entrypointKey,omitempty" json:"entrypointKey,omitempty"`
	Launcher      []string          `yaml:"launcher,omitempty" json:"launcher,omitempty"`
	WorkingDir    string            `yaml:"workingDir,omitempty" json:"workingDir,omitempty"`
	Labels        map[string]string `yaml:"labels,omitempty" json:"labels,omitempty"`

	// publish
	Image     string `yaml:"image,omitempty" json:"image,omitempty"`
	Driver    string `yaml:"driver,omitempty" json:"driver,omitempty"`
	Tag       string `yaml:"tag,omitempty" json:"tag,omitempty"`
	PlainHTTP bool   `yaml:"plainHTTP,omitempty" json:"plainHTTP,omitempty"`
}

// DefaultPublishRetry applies to publish stages without an explicit policy.
var DefaultPublishRetry = Retry{Attempts: 3, Backoff: 2 * time.Second}

// RetryPolicy returns the effective retry policy of s.
func (s Spec) RetryPolicy() Retry {
	if s.Retry != nil {
		r := *s.Retry
		if r.Attempts < 1 {
			r.Attempts = 1
		}
		return r
	}
	if s.Kind == KindPublish {
		return DefaultPublishRetry
	}
	return Retry{Attempts: 1}
}

// HasInput reports whether key is a declared input of s.
func (s Spec) HasInput(key string) bool { return contains(s.Inputs, key) }

// HasOutput reports whether key is a declared output of s.
func (s Spec) HasOutput(key string) bool { return contains(s.Outputs, key) }

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

// SpecError is a structural defect in one stage declaration.
type SpecError struct {
	Stage string
	Msg   string
}

func (e *SpecError) Error() string { return fmt.Sprintf("stage %q: %s", e.Stage, e.Msg) }

// Unwrap ties every SpecError to ErrInvalidSpec.
func (e *SpecError) Unwrap() error { return ErrInvalidSpec }

func specErrorf(stage, format string, args ...any) error {
	return &SpecError{Stage: stage, Msg: fmt.Sprintf(format, args...)}
}
