// Package cli holds what the pipeline subcommands share: exit codes, config
// loading, stage environment and the run summary.
package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/flarebyte/kiln/internal/orchestrator"
)

// Process exit codes.
const (
	ExitSuccess = 0
	ExitFailed  = 1
	ExitAborted = 2
	ExitConfig  = 3
)

// ExitError carries a process exit code to main.
type ExitError struct {
	Code int
	Msg  string
}

func (e ExitError) Error() string { return e.Msg }
func (e ExitError) ExitCode() int { return e.Code }

// ConfigError reports a config or structural defect with exit code 3,
// followed by a remediation hint when there is one.
func ConfigError(err error) error {
	msg := err.Error()
	if h := orchestrator.Hint(err); h != "" {
		msg += " (hint: " + h + ")"
	}
	return ExitError{Code: ExitConfig, Msg: msg}
}

// RunExit maps a finished run to its exit error, nil on success.
func RunExit(run *orchestrator.PipelineRun) error {
	switch run.Outcome {
	case orchestrator.Success:
		return nil
	case orchestrator.Aborted:
		return ExitError{Code: ExitAborted, Msg: "run aborted"}
	}
	var failed []string
	for _, r := range run.Results {
		if r.Outcome == orchestrator.Failed {
			failed = append(failed, r.Stage)
		}
	}
	return ExitError{Code: ExitFailed, Msg: fmt.Sprintf("pipeline failed: %s", strings.Join(failed, ", "))}
}

// Sanitize collapses an error message onto one line.
func Sanitize(err error) string {
	msg := strings.Join(strings.Fields(err.Error()), " ")
	if msg == "" {
		return "error"
	}
	return msg
}

// Code returns the exit code err asks for, 1 when it has none.
func Code(err error) int {
	var ec interface{ ExitCode() int }
	if errors.As(err, &ec) {
		if c := ec.ExitCode(); c != 0 {
			return c
		}
	}
	return ExitFailed
}
