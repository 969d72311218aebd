// Package entrypoint decides which process entry point an image runs.
//
// A Resolver collects candidates from three sources (declared configuration,
// packaged manifests, and directory conventions) and then reconciles them
// into exactly one identifier, or into Ambiguous or NotFound with the
// candidates that led there.
package entrypoint

import (
	"errors"
	"fmt"
	"strings"
)

// Source says where a candidate came from.
type Source string

const (
	SourceDeclared   Source = "declared-config"
	SourceManifest   Source = "manifest-scan"
	SourceConvention Source = "convention-scan"
)

// State is a resolver state.
type State string

const (
	StateCollecting  State = "Collecting"
	StateReconciling State = "Reconciling"
	StateResolved    State = "Resolved"
	StateAmbiguous   State = "Ambiguous"
	StateNotFound    State = "NotFound"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateResolved || s == StateAmbiguous || s == StateNotFound
}

// Preference picks which scan source wins when both yield candidates.
type Preference string

const (
	PreferManifest   Preference = "manifest"
	PreferConvention Preference = "convention"
)

// ParsePreference accepts "", "manifest" and "convention".
func ParsePreference(s string) (Preference, error) {
	switch Preference(s) {
	case "", PreferManifest:
		return PreferManifest, nil
	case PreferConvention:
		return PreferConvention, nil
	}
	return "", fmt.Errorf("unknown entry point preference %q (want manifest or convention)", s)
}

// Candidate is one possible entry point.
type Candidate struct {
	ID     string `yaml:"id" json:"id"`
	Source Source `yaml:"source" json:"source"`
	// Origin is the file or setting the candidate was read from.
	Origin string `yaml:"origin,omitempty" json:"origin,omitempty"`
}

func (c Candidate) String() string {
	if c.Origin == "" {
		return fmt.Sprintf("%s (%s)", c.ID, c.Source)
	}
	return fmt.Sprintf("%s (%s, %s)", c.ID, c.Source, c.Origin)
}

// ErrInvalidTransition is returned when a resolver is used out of order.
var ErrInvalidTransition = errors.New("invalid resolver transition")

// Resolver is a single-use state machine. It is not safe for concurrent use.
type Resolver struct {
	state      State
	prefer     Preference
	candidates []Candidate
}

// NewResolver returns a resolver in the Collecting state.
func NewResolver(prefer Preference) *Resolver {
	if prefer == "" {
		prefer = PreferManifest
	}
	return &Resolver{state: StateCollecting, prefer: prefer}
}

// State returns the current state.
func (r *Resolver) State() State { return r.state }

// Add records candidates while collecting.
func (r *Resolver) Add(cs ...Candidate) error {
	if r.state != StateCollecting {
		return fmt.Errorf("%w: add in state %s", ErrInvalidTransition, r.state)
	}
	for _, c := range cs {
		c.ID = strings.TrimSpace(c.ID)
		if c.ID == "" {
			continue
		}
		r.candidates = append(r.candidates, c)
	}
	return nil
}

// Declare adds an explicitly configured identifier.
func (r *Resolver) Declare(id, origin string) error {
	return r.Add(Candidate{ID: id, Source: SourceDeclared, Origin: origin})
}

// Candidates returns everything collected so far.
func (r *Resolver) Candidates() []Candidate {
	return append([]Candidate(nil), r.candidates...)
}

// Resolution is the outcome of Reconcile.
type Resolution struct {
	State State
	// Chosen is set when State is Resolved.
	Chosen Candidate
	// Candidates lists the competing candidates for Ambiguous. It is empty,
	// never nil, for Resolved and NotFound.
	Candidates []Candidate
	// Related holds secondary-source candidates that were too many to pick
	// from when the primary source had none.
	Related []Candidate
}

// Reconcile moves the resolver through Reconciling to a terminal state. Any
// state other than Resolved also returns a *ResolutionError.
func (r *Resolver) Reconcile() (Resolution, error) {
	if r.state != StateCollecting {
		return Resolution{}, fmt.Errorf("%w: reconcile in state %s", ErrInvalidTransition, r.state)
	}
	r.state = StateReconciling

	if declared := distinct(r.candidates, SourceDeclared); len(declared) > 0 {
		return r.finish(StateResolved, declared[0], nil, nil)
	}
	primary, secondary := SourceManifest, SourceConvention
	if r.prefer == PreferConvention {
		primary, secondary = secondary, primary
	}
	first := distinct(r.candidates, primary)
	switch {
	case len(first) == 1:
		return r.finish(StateResolved, first[0], nil, nil)
	case len(first) > 1:
		return r.finish(StateAmbiguous, Candidate{}, first, nil)
	}
	second := distinct(r.candidates, secondary)
	if len(second) == 1 {
		return r.finish(StateResolved, second[0], nil, nil)
	}
	return r.finish(StateNotFound, Candidate{}, nil, second)
}

func (r *Resolver) finish(s State, chosen Candidate, competing, related []Candidate) (Resolution, error) {
	r.state = s
	res := Resolution{State: s, Chosen: chosen, Candidates: competing, Related: related}
	if res.Candidates == nil {
		res.Candidates = []Candidate{}
	}
	if s == StateResolved {
		return res, nil
	}
	return res, &ResolutionError{State: s, Candidates: res.Candidates, Related: related}
}

// distinct returns the candidates of one source, first occurrence of each
// identifier only.
func distinct(cs []Candidate, src Source) []Candidate {
	seen := map[string]bool{}
	var out []Candidate
	for _, c := range cs {
		if c.Source != src || seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		out = append(out, c)
	}
	return out
}

// ErrResolution marks entry point resolution failures.
var ErrResolution = errors.New("entry point resolution failed")

// ResolutionError reports an Ambiguous or NotFound resolution.
type ResolutionError struct {
	State      State
	Candidates []Candidate
	Related    []Candidate
}

func (e *ResolutionError) Error() string {
	switch e.State {
	case StateAmbiguous:
		ids := make([]string, len(e.Candidates))
		for i, c := range e.Candidates {
			ids[i] = c.String()
		}
		return fmt.Sprintf("%s: ambiguous, %d candidates: %s", ErrResolution, len(e.Candidates), strings.Join(ids, ", "))
	case StateNotFound:
		if len(e.Related) == 0 {
			return fmt.Sprintf("%s: no entry point found", ErrResolution)
		}
		ids := make([]string, len(e.Related))
		for i, c := range e.Related {
			ids[i] = c.String()
		}
		return fmt.Sprintf("%s: no single entry point among %s", ErrResolution, strings.Join(ids, ", "))
	}
	return fmt.Sprintf("%s: %s", ErrResolution, e.State)
}

func (e *ResolutionError) Unwrap() error { return ErrResolution }
