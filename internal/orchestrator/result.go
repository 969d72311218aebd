package orchestrator

import (
	"time"

	"github.com/flarebyte/kiln/internal/artifact"
	"github.com/flarebyte/kiln/internal/entrypoint"
)

// Outcome is the result of one stage or of a whole run.
type Outcome string

const (
	Success Outcome = "Success"
	Failed  Outcome = "Failed"
	Skipped Outcome = "Skipped"
	// Aborted only applies to runs.
	Aborted Outcome = "Aborted"
)

// ErrorClass groups failures by how far their effect reaches.
type ErrorClass string

const (
	ClassStructural ErrorClass = "structural"
	ClassExecution  ErrorClass = "execution"
	ClassResolution ErrorClass = "resolution"
)

// StageResult records what happened to one stage. Results are appended to
// the run log and never changed afterwards.
type StageResult struct {
	Stage   string     `yaml:"stage" json:"stage"`
	Kind    string     `yaml:"kind" json:"kind"`
	Outcome Outcome    `yaml:"outcome" json:"outcome"`
	Error   string     `yaml:"error,omitempty" json:"error,omitempty"`
	Class   ErrorClass `yaml:"class,omitempty" json:"class,omitempty"`
	Hint    string     `yaml:"hint,omitempty" json:"hint,omitempty"`
	// Cause names the failed upstream stage for Skipped results.
	Cause      string                 `yaml:"cause,omitempty" json:"cause,omitempty"`
	Candidates []entrypoint.Candidate `yaml:"candidates,omitempty" json:"candidates,omitempty"`
	Attempts   int                    `yaml:"attempts,omitempty" json:"attempts,omitempty"`
	Duration   time.Duration          `yaml:"duration,omitempty" json:"duration,omitempty"`
	Artifacts  []artifact.Record      `yaml:"artifacts,omitempty" json:"artifacts,omitempty"`

	// Err is the underlying error; it is not persisted.
	Err error `yaml:"-" json:"-"`
}

// PipelineRun is the record of one execution.
type PipelineRun struct {
	ID      string        `yaml:"id" json:"id"`
	Name    string        `yaml:"name,omitempty" json:"name,omitempty"`
	Outcome Outcome       `yaml:"outcome" json:"outcome"`
	Start   time.Time     `yaml:"start" json:"start"`
	End     time.Time     `yaml:"end" json:"end"`
	Results []StageResult `yaml:"results" json:"results"`
}

// Result returns the result recorded for a stage.
func (r *PipelineRun) Result(name string) (StageResult, bool) {
	for _, res := range r.Results {
		if res.Stage == name {
			return res, true
		}
	}
	return StageResult{}, false
}

// Counts tallies results per outcome.
func (r *PipelineRun) Counts() map[Outcome]int {
	out := map[Outcome]int{}
	for _, res := range r.Results {
		out[res.Outcome]++
	}
	return out
}
