package artifact

import (
	"errors"
	"fmt"
)

var (
	// ErrConflictingArtifact marks a publish by a second producer of one key.
	ErrConflictingArtifact = errors.New("conflicting artifact")
	// ErrUnresolvedArtifact marks a lookup of a key nobody published.
	ErrUnresolvedArtifact = errors.New("unresolved artifact")
)

// ConflictingArtifactError reports that Key already belongs to Existing.
type ConflictingArtifactError struct {
	Key       string
	Existing  string
	Attempted string
}

func (e *ConflictingArtifactError) Error() string {
	return fmt.Sprintf("%s: %q already published by %q, refused from %q", ErrConflictingArtifact, e.Key, e.Existing, e.Attempted)
}

func (e *ConflictingArtifactError) Unwrap() error { return ErrConflictingArtifact }

// UnresolvedArtifactError reports a key with no current record.
type UnresolvedArtifactError struct {
	Key string
	// Consumer is the stage that needed the key, when known.
	Consumer string
}

func (e *UnresolvedArtifactError) Error() string {
	if e.Consumer != "" {
		return fmt.Sprintf("%s: %q (needed by %q)", ErrUnresolvedArtifact, e.Key, e.Consumer)
	}
	return fmt.Sprintf("%s: %q", ErrUnresolvedArtifact, e.Key)
}

func (e *UnresolvedArtifactError) Unwrap() error { return ErrUnresolvedArtifact }
