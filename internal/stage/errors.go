package stage

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidSpec marks structural defects in a stage declaration.
	ErrInvalidSpec = errors.New("invalid stage")
	// ErrRelocation marks failed relocate stages.
	ErrRelocation = errors.New("relocation failed")
	// ErrCollaborator marks failed external tool invocations.
	ErrCollaborator = errors.New("collaborator failed")
	// ErrMissingOutput marks a collaborator that exited cleanly without
	// producing a declared output.
	ErrMissingOutput = errors.New("missing output")
)

// RelocationError reports why a relocate stage could not copy its input.
type RelocationError struct {
	Source      string
	Destination string
	Reason      string
	Err         error
}

func (e *RelocationError) Error() string {
	msg := fmt.Sprintf("%s: %s -> %s: %s", ErrRelocation, e.Source, e.Destination, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RelocationError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrRelocation}
	}
	return []error{ErrRelocation, e.Err}
}

// CollaboratorError reports a non-zero exit or a failed start of an
// external tool.
type CollaboratorError struct {
	Program  string
	ExitCode int
	// Stderr is trimmed and capped at the capture limit.
	Stderr string
	Err    error
}

func (e *CollaboratorError) Error() string {
	var b strings.Builder
	b.WriteString(ErrCollaborator.Error())
	b.WriteString(": ")
	b.WriteString(e.Program)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	} else {
		fmt.Fprintf(&b, " exited with code %d", e.ExitCode)
	}
	if s := lastLine(e.Stderr); s != "" {
		b.WriteString(": ")
		b.WriteString(s)
	}
	return b.String()
}

func (e *CollaboratorError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrCollaborator}
	}
	return []error{ErrCollaborator, e.Err}
}

// MissingOutputError names an output the collaborator should have written.
type MissingOutputError struct {
	Key      string
	Location string
}

func (e *MissingOutputError) Error() string {
	return fmt.Sprintf("%s: %q expected at %s", ErrMissingOutput, e.Key, e.Location)
}

func (e *MissingOutputError) Unwrap() error { return ErrMissingOutput }

// lastLine returns the last non-empty line of s; collaborators usually end
// stderr with the actual error.
func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	lines := strings.Split(s, "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
