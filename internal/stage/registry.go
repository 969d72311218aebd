package stage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/flarebyte/kiln/internal/artifact"
	"github.com/opencontainers/go-digest"
)

// Inputs maps each declared input key to its resolved record.
type Inputs map[string]artifact.Record

// Output is what a stage reports for one declared output key. A missing
// Digest is computed by the caller.
type Output struct {
	Location string
	Digest   digest.Digest
}

// Outputs maps each declared output key to what the stage produced.
type Outputs map[string]Output

// Stage is one executable unit of a pipeline.
type Stage interface {
	Execute(ctx context.Context, in Inputs) (Outputs, error)
}

// Kind builds and validates stages of one kind.
type Kind struct {
	// Validate checks kind-specific settings without touching the filesystem.
	Validate func(s Spec) error
	New      func(s Spec, env *Env) (Stage, error)
}

var (
	registryMu   sync.RWMutex
	kindRegistry = map[string]Kind{}
)

// Register adds a stage kind. Registering a name twice replaces it.
func Register(name string, k Kind) {
	registryMu.Lock()
	defer registryMu.Unlock()
	kindRegistry[name] = k
}

// Kinds lists registered kind names in lexical order.
func Kinds() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]string, 0, len(kindRegistry))
	for k := range kindRegistry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func lookup(kind string) (Kind, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	k, ok := kindRegistry[kind]
	if !ok {
		return Kind{}, ErrUnknownKind{name: kind}
	}
	return k, nil
}

// Validate checks s against the generic rules and its kind's rules.
func Validate(s Spec) error {
	if s.Name == "" {
		return specErrorf("", "name must not be empty")
	}
	k, err := lookup(s.Kind)
	if err != nil {
		return &SpecError{Stage: s.Name, Msg: err.Error()}
	}
	for _, key := range s.Inputs {
		if key == "" {
			return specErrorf(s.Name, "empty input key")
		}
	}
	for _, key := range s.Outputs {
		if key == "" {
			return specErrorf(s.Name, "empty output key")
		}
		if s.HasInput(key) {
			return specErrorf(s.Name, "key %q is both input and output", key)
		}
	}
	for key := range s.Produces {
		if !s.HasOutput(key) {
			return specErrorf(s.Name, "produces names undeclared output %q", key)
		}
	}
	if s.Retry != nil && s.Retry.Attempts < 1 {
		return specErrorf(s.Name, "retry attempts must be at least 1")
	}
	if s.Timeout < 0 {
		return specErrorf(s.Name, "timeout must not be negative")
	}
	if err := validateTemplate(s); err != nil {
		return err
	}
	if k.Validate != nil {
		return k.Validate(s)
	}
	return nil
}

// New validates s and builds the stage for its kind.
func New(s Spec, env *Env) (Stage, error) {
	if err := Validate(s); err != nil {
		return nil, err
	}
	k, err := lookup(s.Kind)
	if err != nil {
		return nil, err
	}
	if env == nil {
		return nil, fmt.Errorf("stage %q: nil environment", s.Name)
	}
	return k.New(s, env)
}

// ErrUnknownKind is returned when no kind is registered under a name.
type ErrUnknownKind struct{ name string }

func (e ErrUnknownKind) Error() string { return "unknown stage kind: " + e.name }
