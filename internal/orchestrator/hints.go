package orchestrator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/flarebyte/kiln/internal/artifact"
	"github.com/flarebyte/kiln/internal/entrypoint"
	"github.com/flarebyte/kiln/internal/graph"
	"github.com/flarebyte/kiln/internal/stage"
)

// Classify maps an error to its class.
func Classify(err error) ErrorClass {
	var re *entrypoint.ResolutionError
	switch {
	case errors.As(err, &re):
		return ClassResolution
	case errors.Is(err, ErrStructural),
		errors.Is(err, stage.ErrInvalidSpec),
		errors.Is(err, graph.ErrDuplicateOutput),
		errors.Is(err, graph.ErrDuplicateStage),
		errors.Is(err, graph.ErrCycle),
		errors.Is(err, graph.ErrInvalidStage),
		errors.Is(err, artifact.ErrUnresolvedArtifact):
		return ClassStructural
	}
	return ClassExecution
}

// Hint returns a one-line remediation for err, or "" when there is nothing
// more useful to say than the error itself.
func Hint(err error) string {
	var (
		re  *entrypoint.ResolutionError
		te  *TimeoutError
		rle *stage.RelocationError
		ce  *stage.CollaboratorError
		me  *stage.MissingOutputError
		cfe *artifact.ConflictingArtifactError
		ue  *artifact.UnresolvedArtifactError
		de  *graph.DuplicateOutputError
		cye *graph.CyclicDependencyError
	)
	switch {
	case errors.As(err, &re):
		if re.State == entrypoint.StateAmbiguous {
			return "multiple entry points found: specify one explicitly (entrypoint.declared)"
		}
		if len(re.Related) > 0 {
			ids := make([]string, len(re.Related))
			for i, c := range re.Related {
				ids[i] = c.ID
			}
			return "several conventional entry points found (" + strings.Join(ids, ", ") + "): specify one explicitly (entrypoint.declared)"
		}
		return "no entry point found: declare one (entrypoint.declared) or check that the packager writes a manifest"
	case errors.As(err, &te):
		return fmt.Sprintf("stage did not finish within %s: raise its timeout or check the collaborator for hangs", te.Timeout)
	case errors.As(err, &rle):
		switch rle.Reason {
		case "source missing", "source is empty":
			return "nothing to relocate: check that the upstream stage wrote files to " + rle.Source
		case "destination not writable":
			return "check permissions on " + rle.Destination
		case "destination inside source":
			return "move the destination out of " + rle.Source
		}
		return ""
	case errors.As(err, &me):
		return "the collaborator exited cleanly but wrote nothing at " + me.Location + ": check produces"
	case errors.As(err, &ce):
		if ce.Err != nil && ce.ExitCode == -1 {
			return "could not start " + ce.Program + ": check that it is installed and on PATH"
		}
		return fmt.Sprintf("%s exited with code %d: rerun with --log-level debug for its output", ce.Program, ce.ExitCode)
	case errors.As(err, &cfe):
		return "one artifact key has two producers: rename one of the outputs"
	case errors.As(err, &ue):
		return "declare " + ue.Key + " under artifacts or add a stage that outputs it"
	case errors.As(err, &de):
		return "each output key must be declared by exactly one stage"
	case errors.As(err, &cye):
		return "break the cycle by removing one of the inputs along the path"
	case errors.Is(err, stage.ErrInvalidSpec):
		return "fix the stage declaration in the config and run pipeline validate"
	case errors.Is(err, stage.ErrNoRegistry):
		return "set options.registry to the target repository"
	}
	return ""
}

func candidatesOf(err error) []entrypoint.Candidate {
	var re *entrypoint.ResolutionError
	if errors.As(err, &re) {
		return append([]entrypoint.Candidate{}, re.Candidates...)
	}
	return nil
}
