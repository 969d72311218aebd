package graph

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrDuplicateOutput = errors.New("duplicate output")
	ErrDuplicateStage  = errors.New("duplicate stage")
	ErrCycle           = errors.New("cyclic dependency")
	ErrInvalidStage    = errors.New("invalid stage")
)

// DuplicateOutputError names both stages that declare Key.
type DuplicateOutputError struct {
	Key    string
	First  string
	Second string
}

func (e *DuplicateOutputError) Error() string {
	return fmt.Sprintf("%s: %q declared by both %q and %q", ErrDuplicateOutput, e.Key, e.First, e.Second)
}

func (e *DuplicateOutputError) Unwrap() error { return ErrDuplicateOutput }

// DuplicateStageError reports a stage name registered twice.
type DuplicateStageError struct{ Name string }

func (e *DuplicateStageError) Error() string {
	return fmt.Sprintf("%s: %q", ErrDuplicateStage, e.Name)
}

func (e *DuplicateStageError) Unwrap() error { return ErrDuplicateStage }

// CyclicDependencyError carries one cycle; the first stage is repeated at
// the end.
type CyclicDependencyError struct{ Path []string }

func (e *CyclicDependencyError) Error() string {
	if len(e.Path) == 0 {
		return ErrCycle.Error()
	}
	return fmt.Sprintf("%s: %s", ErrCycle, strings.Join(e.Path, " -> "))
}

func (e *CyclicDependencyError) Unwrap() error { return ErrCycle }
