package orchestrator

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sort"
	"time"

	"github.com/flarebyte/kiln/internal/artifact"
	"github.com/flarebyte/kiln/internal/ctxlog"
	"github.com/flarebyte/kiln/internal/entrypoint"
	"github.com/flarebyte/kiln/internal/stage"
	"github.com/google/uuid"
)

// Observer receives stage lifecycle events. Calls come from the
// coordinating goroutine, one at a time.
type Observer interface {
	OnStageStart(s stage.Spec)
	OnStageFinish(r StageResult)
}

// Options tunes one run.
type Options struct {
	// Name labels the run in its record.
	Name string
	// Concurrency bounds parallel stages; zero means runtime.NumCPU().
	Concurrency int
	// Timeout applies per attempt to stages without their own; zero means
	// no limit.
	Timeout  time.Duration
	Env      *stage.Env
	Observer Observer
}

type job struct {
	idx  int
	spec stage.Spec
	st   stage.Stage
	in   stage.Inputs
}

type jobResult struct {
	idx      int
	out      stage.Outputs
	err      error
	attempts int
	duration time.Duration
}

// Run plans and executes specs. Structural defects return a *PlanError and
// no run. Otherwise the returned run carries one result per stage.
//
// Cancelling ctx aborts the run: stages already executing finish, nothing
// new starts, and unstarted stages are recorded as Skipped.
func Run(ctx context.Context, specs []stage.Spec, starting map[string]string, opts Options) (*PipelineRun, error) {
	plan, err := NewPlan(specs, starting)
	if err != nil {
		return nil, err
	}
	return Execute(ctx, plan, opts)
}

// Execute runs an already validated plan.
func Execute(ctx context.Context, plan *Plan, opts Options) (*PipelineRun, error) {
	env := opts.Env
	if env == nil {
		env = stage.NewEnv(".")
	}
	conc := opts.Concurrency
	if conc <= 0 {
		conc = runtime.NumCPU()
	}
	log := ctxlog.FromContext(ctx)

	specs := plan.Graph.Stages()
	stages := make([]stage.Stage, len(specs))
	for i, s := range specs {
		st, err := stage.New(s, env)
		if err != nil {
			return nil, &PlanError{Err: err}
		}
		stages[i] = st
	}

	store := artifact.NewStore()
	keys := make([]string, 0, len(plan.Starting))
	for k := range plan.Starting {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, err := store.Seed(k, env.Path(plan.Starting[k])); err != nil {
			return nil, &PlanError{Err: err}
		}
	}

	c := &coordinator{
		plan:     plan,
		specs:    specs,
		stages:   stages,
		store:    store,
		env:      env,
		opts:     opts,
		log:      log,
		decided:  make([]bool, len(specs)),
		position: make(map[string]int, len(specs)),
		run: &PipelineRun{
			ID:    uuid.NewString(),
			Name:  opts.Name,
			Start: time.Now().UTC(),
		},
	}
	for i, s := range specs {
		c.position[s.Name] = i
	}
	log.Info("run start", "run", c.run.ID, "stages", len(specs), "concurrency", conc)
	aborted := c.loop(ctx, conc)

	c.run.End = time.Now().UTC()
	switch {
	case aborted:
		c.run.Outcome = Aborted
	case c.run.Counts()[Failed] > 0:
		c.run.Outcome = Failed
	default:
		c.run.Outcome = Success
	}
	log.Info("run finished", "run", c.run.ID, "outcome", c.run.Outcome, "elapsed", c.run.End.Sub(c.run.Start))
	return c.run, nil
}

// coordinator owns the run record and the store. Only its goroutine mutates
// them; workers receive jobs and send back results.
type coordinator struct {
	plan     *Plan
	specs    []stage.Spec
	stages   []stage.Stage
	store    *artifact.Store
	env      *stage.Env
	opts     Options
	run      *PipelineRun
	log      *slog.Logger
	decided  []bool
	position map[string]int
}

func (c *coordinator) loop(ctx context.Context, conc int) bool {
	n := len(c.specs)
	pending := make([]int, n)
	for i, s := range c.specs {
		pending[i] = len(c.plan.Graph.Dependencies(s.Name))
	}
	ready := &indexHeap{}
	for i := 0; i < n; i++ {
		if pending[i] == 0 {
			heap.Push(ready, i)
		}
	}

	workCh := make(chan job, conc)
	doneCh := make(chan jobResult, conc)
	// Stages keep running after an abort; only scheduling stops.
	execCtx := context.WithoutCancel(ctx)
	for w := 0; w < conc; w++ {
		go func() {
			for j := range workCh {
				doneCh <- c.execute(execCtx, ctx, j)
			}
		}()
	}
	defer close(workCh)

	cancelled := ctx.Done()
	aborted := false
	inFlight := 0
	for {
		if !aborted && ctx.Err() != nil {
			aborted = true
			cancelled = nil
			c.log.Warn("run aborted, waiting for running stages", "running", inFlight)
		}
		for !aborted && inFlight < conc && ready.Len() > 0 {
			i := heap.Pop(ready).(int)
			in, err := c.inputs(i)
			if err != nil {
				c.fail(i, err, 0, 0)
				continue
			}
			c.notifyStart(i)
			workCh <- job{idx: i, spec: c.specs[i], st: c.stages[i], in: in}
			inFlight++
		}
		if inFlight == 0 {
			break
		}
		select {
		case r := <-doneCh:
			inFlight--
			if !c.complete(r) {
				continue
			}
			for _, d := range c.plan.Graph.Dependents(c.specs[r.idx].Name) {
				di := c.position[d]
				pending[di]--
				if pending[di] == 0 && !c.decided[di] {
					heap.Push(ready, di)
				}
			}
		case <-cancelled:
		}
	}
	for i := range c.specs {
		if !c.decided[i] {
			c.record(StageResult{
				Stage:   c.specs[i].Name,
				Kind:    c.specs[i].Kind,
				Outcome: Skipped,
				Error:   ErrAborted.Error(),
				Err:     ErrAborted,
			}, i)
		}
	}
	return aborted
}

func (c *coordinator) inputs(i int) (stage.Inputs, error) {
	in := stage.Inputs{}
	for _, key := range c.specs[i].Inputs {
		rec, err := c.store.Resolve(key)
		if err != nil {
			var ue *artifact.UnresolvedArtifactError
			if errors.As(err, &ue) {
				ue.Consumer = c.specs[i].Name
			}
			return nil, err
		}
		in[key] = rec
	}
	return in, nil
}

// complete records a finished job and reports whether it succeeded.
func (c *coordinator) complete(r jobResult) bool {
	if r.err != nil {
		c.fail(r.idx, r.err, r.attempts, r.duration)
		return false
	}
	s := c.specs[r.idx]
	out, err := c.checkOutputs(s, r.out)
	if err != nil {
		c.fail(r.idx, err, r.attempts, r.duration)
		return false
	}
	records := make([]artifact.Record, 0, len(out))
	for _, key := range s.Outputs {
		o := out[key]
		published, err := c.store.Publish(key, o.Location, s.Name, o.Digest)
		if err != nil {
			// checkOutputs rules conflicts out; this is a store invariant breach.
			panic(fmt.Sprintf("publish %s after ownership check: %v", key, err))
		}
		records = append(records, published)
	}
	// Dependents are scheduled by the caller, after the result is on record.
	c.record(StageResult{
		Stage:     s.Name,
		Kind:      s.Kind,
		Outcome:   Success,
		Attempts:  r.attempts,
		Duration:  r.duration,
		Artifacts: records,
	}, r.idx)
	return true
}

// checkOutputs verifies the stage reported exactly its declared outputs and
// owns them, and fills in missing digests for outputs on disk.
func (c *coordinator) checkOutputs(s stage.Spec, out stage.Outputs) (stage.Outputs, error) {
	for key := range out {
		if !s.HasOutput(key) {
			return nil, fmt.Errorf("stage %q reported undeclared output %q", s.Name, key)
		}
	}
	filled := make(stage.Outputs, len(out))
	for _, key := range s.Outputs {
		o, ok := out[key]
		if !ok {
			return nil, &stage.MissingOutputError{Key: key, Location: s.Produces[key]}
		}
		if cur, err := c.store.Resolve(key); err == nil && cur.Producer != s.Name {
			return nil, &artifact.ConflictingArtifactError{Key: key, Existing: cur.Producer, Attempted: s.Name}
		}
		if o.Digest == "" {
			if _, err := os.Stat(o.Location); err == nil {
				d, err := artifact.Checksum(o.Location)
				if err != nil {
					return nil, fmt.Errorf("checksum %s: %w", key, err)
				}
				o.Digest = d
			}
		}
		filled[key] = o
	}
	return filled, nil
}

func (c *coordinator) fail(i int, err error, attempts int, d time.Duration) {
	s := c.specs[i]
	c.record(StageResult{
		Stage:      s.Name,
		Kind:       s.Kind,
		Outcome:    Failed,
		Error:      err.Error(),
		Class:      Classify(err),
		Hint:       Hint(err),
		Candidates: candidatesOf(err),
		Attempts:   attempts,
		Duration:   d,
		Err:        err,
	}, i)
	for _, name := range c.plan.Graph.Downstream(s.Name) {
		di := c.position[name]
		if c.decided[di] {
			continue
		}
		cause := &UpstreamError{Stage: s.Name}
		c.record(StageResult{
			Stage:   name,
			Kind:    c.specs[di].Kind,
			Outcome: Skipped,
			Error:   cause.Error(),
			Cause:   s.Name,
			Err:     cause,
		}, di)
	}
}

func (c *coordinator) record(r StageResult, i int) {
	c.decided[i] = true
	c.run.Results = append(c.run.Results, r)
	log := c.log
	switch r.Outcome {
	case Failed:
		log.Error("stage failed", "stage", r.Stage, "kind", r.Kind, "attempts", r.Attempts, "err", r.Error)
	case Skipped:
		log.Warn("stage skipped", "stage", r.Stage, "reason", r.Error)
	default:
		log.Info("stage succeeded", "stage", r.Stage, "kind", r.Kind, "duration", r.Duration)
	}
	if c.opts.Observer != nil {
		c.opts.Observer.OnStageFinish(r)
	}
}

func (c *coordinator) notifyStart(i int) {
	if c.opts.Observer != nil {
		c.opts.Observer.OnStageStart(c.specs[i])
	}
}

// execute runs one job with its retry policy. runCtx is the caller's
// context: once it is done no further attempt starts.
func (c *coordinator) execute(execCtx, runCtx context.Context, j job) jobResult {
	start := time.Now()
	policy := j.spec.RetryPolicy()
	timeout := j.spec.Timeout
	if timeout == 0 {
		timeout = c.opts.Timeout
	}
	log := ctxlog.FromContext(runCtx).With("stage", j.spec.Name, "kind", j.spec.Kind)
	ctx := ctxlog.WithLogger(execCtx, log)

	backoff := policy.Backoff
	var (
		out stage.Outputs
		err error
	)
	attempt := 0
	for {
		attempt++
		log.Debug("attempt start", "attempt", attempt)
		out, err = attemptOnce(ctx, j, timeout)
		if err == nil || attempt >= policy.Attempts || !retryable(err) || runCtx.Err() != nil {
			break
		}
		log.Warn("attempt failed, retrying", "attempt", attempt, "backoff", backoff, "err", err)
		if !sleep(runCtx, backoff) {
			break
		}
		backoff *= 2
	}
	return jobResult{idx: j.idx, out: out, err: err, attempts: attempt, duration: time.Since(start)}
}

// attemptOnce runs the stage and gives up on it when timeout passes, without
// waiting for it to return.
func attemptOnce(ctx context.Context, j job, timeout time.Duration) (stage.Outputs, error) {
	if timeout <= 0 {
		return j.st.Execute(ctx, j.in)
	}
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	type result struct {
		out stage.Outputs
		err error
	}
	ch := make(chan result, 1)
	go func() {
		out, err := j.st.Execute(actx, j.in)
		ch <- result{out: out, err: err}
	}()
	select {
	case r := <-ch:
		if r.err != nil && errors.Is(actx.Err(), context.DeadlineExceeded) {
			return nil, &TimeoutError{Stage: j.spec.Name, Timeout: timeout}
		}
		return r.out, r.err
	case <-actx.Done():
		return nil, &TimeoutError{Stage: j.spec.Name, Timeout: timeout}
	}
}

func retryable(err error) bool {
	var re *entrypoint.ResolutionError
	if errors.As(err, &re) {
		return false
	}
	return !errors.Is(err, stage.ErrInvalidSpec) && !errors.Is(err, stage.ErrNoRegistry)
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

type indexHeap []int

func (h indexHeap) Len() int           { return len(h) }
func (h indexHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h indexHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *indexHeap) Push(x any)        { *h = append(*h, x.(int)) }
func (h *indexHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
