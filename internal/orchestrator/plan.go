// Package orchestrator runs a set of stages in dependency order on a bounded
// worker pool, records one result per stage, and decides which stages to
// skip when something upstream fails.
package orchestrator

import (
	"github.com/flarebyte/kiln/internal/artifact"
	"github.com/flarebyte/kiln/internal/graph"
	"github.com/flarebyte/kiln/internal/stage"
)

// Plan is a validated, ordered pipeline.
type Plan struct {
	Graph *graph.Graph
	Order []string
	// Starting maps externally supplied artifact keys to their locations.
	Starting map[string]string
}

// NewPlan checks specs and starting artifacts for structural defects and
// computes the execution order. Every error is a *PlanError.
func NewPlan(specs []stage.Spec, starting map[string]string) (*Plan, error) {
	for _, s := range specs {
		if err := stage.Validate(s); err != nil {
			return nil, &PlanError{Err: err}
		}
	}
	g, err := graph.Build(specs)
	if err != nil {
		return nil, &PlanError{Err: err}
	}
	for key := range starting {
		if p, ok := g.Producer(key); ok {
			return nil, &PlanError{Err: &graph.DuplicateOutputError{Key: key, First: artifact.InputProducer, Second: p}}
		}
	}
	for _, key := range g.ExternalInputs() {
		if _, ok := starting[key]; ok {
			continue
		}
		return nil, &PlanError{Err: &artifact.UnresolvedArtifactError{Key: key, Consumer: firstConsumer(g, key)}}
	}
	order, err := g.ComputeOrder()
	if err != nil {
		return nil, &PlanError{Err: err}
	}
	st := make(map[string]string, len(starting))
	for k, v := range starting {
		st[k] = v
	}
	return &Plan{Graph: g, Order: order, Starting: st}, nil
}

func firstConsumer(g *graph.Graph, key string) string {
	for _, s := range g.Stages() {
		if s.HasInput(key) {
			return s.Name
		}
	}
	return ""
}

// Stages returns the specs in execution order.
func (p *Plan) Stages() []stage.Spec {
	out := make([]stage.Spec, 0, len(p.Order))
	for _, name := range p.Order {
		s, _ := p.Graph.Stage(name)
		out = append(out, s)
	}
	return out
}
