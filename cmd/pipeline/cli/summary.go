package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/flarebyte/kiln/internal/orchestrator"
)

// WriteSummary prints one line per stage outcome, with the hint and
// candidates of each failure indented below it.
func WriteSummary(w io.Writer, run *orchestrator.PipelineRun) error {
	counts := run.Counts()
	name := run.Name
	if name == "" {
		name = "pipeline"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s (%d succeeded, %d failed, %d skipped) in %s\n",
		name, run.Outcome, counts[orchestrator.Success], counts[orchestrator.Failed], counts[orchestrator.Skipped],
		run.End.Sub(run.Start).Round(time.Millisecond))
	width := 0
	for _, r := range run.Results {
		width = max(width, len(r.Stage))
	}
	for _, r := range run.Results {
		fmt.Fprintf(&b, "  %-7s %-*s  %-8s", r.Outcome, width, r.Stage, r.Kind)
		switch r.Outcome {
		case orchestrator.Success:
			fmt.Fprintf(&b, "  %s", r.Duration.Round(time.Millisecond))
			if r.Attempts > 1 {
				fmt.Fprintf(&b, " after %d attempts", r.Attempts)
			}
		default:
			if r.Error != "" {
				b.WriteString("  ")
				b.WriteString(strings.Join(strings.Fields(r.Error), " "))
			}
		}
		b.WriteByte('\n')
		if r.Hint != "" {
			fmt.Fprintf(&b, "          hint: %s\n", r.Hint)
		}
		for _, c := range r.Candidates {
			fmt.Fprintf(&b, "          candidate: %s\n", c)
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// WritePlan prints the execution order of a plan.
func WritePlan(w io.Writer, plan *orchestrator.Plan) error {
	var b strings.Builder
	for i, s := range plan.Stages() {
		fmt.Fprintf(&b, "%d. %s (%s)", i+1, s.Name, s.Kind)
		if len(s.Inputs) > 0 {
			fmt.Fprintf(&b, " in=%s", strings.Join(s.Inputs, ","))
		}
		if len(s.Outputs) > 0 {
			fmt.Fprintf(&b, " out=%s", strings.Join(s.Outputs, ","))
		}
		b.WriteByte('\n')
	}
	_, err := io.WriteString(w, b.String())
	return err
}
