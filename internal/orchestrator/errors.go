package orchestrator

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrStructural marks defects found before anything runs.
	ErrStructural = errors.New("structural error")
	// ErrTimeout marks a stage attempt that ran out of time.
	ErrTimeout = errors.New("stage timeout")
	// ErrAborted marks stages that never ran because the run was cancelled.
	ErrAborted = errors.New("run aborted")
)

// PlanError wraps a structural defect. The run never starts.
type PlanError struct{ Err error }

func (e *PlanError) Error() string { return e.Err.Error() }

func (e *PlanError) Unwrap() []error { return []error{ErrStructural, e.Err} }

// TimeoutError reports an attempt that exceeded its time limit.
type TimeoutError struct {
	Stage   string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: %q exceeded %s", ErrTimeout, e.Stage, e.Timeout)
}

func (e *TimeoutError) Unwrap() error { return ErrTimeout }

// UpstreamError is recorded on stages skipped because Stage failed.
type UpstreamError struct{ Stage string }

func (e *UpstreamError) Error() string { return fmt.Sprintf("skipped: upstream %q failed", e.Stage) }
