// Package graph orders stages by the artifacts they exchange. A stage
// depends on whichever stage produces one of its inputs.
package graph

import (
	"container/heap"
	"fmt"
	"sort"

	"github.com/flarebyte/kiln/internal/stage"
)

// Graph is built once and then read; it is not safe for concurrent AddStage.
type Graph struct {
	specs     []stage.Spec
	index     map[string]int
	producers map[string]int
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{index: map[string]int{}, producers: map[string]int{}}
}

// Build adds specs in declaration order.
func Build(specs []stage.Spec) (*Graph, error) {
	g := New()
	for _, s := range specs {
		if err := g.AddStage(s); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// AddStage registers s. An output key already claimed by any stage,
// including s itself, is a *DuplicateOutputError.
func (g *Graph) AddStage(s stage.Spec) error {
	if s.Name == "" {
		return fmt.Errorf("%w: empty stage name", ErrInvalidStage)
	}
	if _, ok := g.index[s.Name]; ok {
		return &DuplicateStageError{Name: s.Name}
	}
	seen := map[string]bool{}
	for _, key := range s.Outputs {
		if seen[key] {
			return &DuplicateOutputError{Key: key, First: s.Name, Second: s.Name}
		}
		seen[key] = true
		if p, ok := g.producers[key]; ok {
			return &DuplicateOutputError{Key: key, First: g.specs[p].Name, Second: s.Name}
		}
	}
	idx := len(g.specs)
	g.specs = append(g.specs, s)
	g.index[s.Name] = idx
	for _, key := range s.Outputs {
		g.producers[key] = idx
	}
	return nil
}

// Len returns the number of stages.
func (g *Graph) Len() int { return len(g.specs) }

// Stages returns the specs in declaration order.
func (g *Graph) Stages() []stage.Spec { return append([]stage.Spec(nil), g.specs...) }

// Stage looks up a spec by name.
func (g *Graph) Stage(name string) (stage.Spec, bool) {
	i, ok := g.index[name]
	if !ok {
		return stage.Spec{}, false
	}
	return g.specs[i], true
}

// Producer returns the stage that declares key as an output.
func (g *Graph) Producer(key string) (string, bool) {
	i, ok := g.producers[key]
	if !ok {
		return "", false
	}
	return g.specs[i].Name, true
}

// Dependencies returns the direct producers of name's inputs in declaration
// order.
func (g *Graph) Dependencies(name string) []string {
	i, ok := g.index[name]
	if !ok {
		return nil
	}
	return g.names(g.deps(i))
}

// Dependents returns the stages consuming any output of name, in
// declaration order.
func (g *Graph) Dependents(name string) []string {
	i, ok := g.index[name]
	if !ok {
		return nil
	}
	return g.names(g.dependents()[i])
}

// Downstream returns every stage that transitively depends on name, in
// declaration order.
func (g *Graph) Downstream(name string) []string {
	start, ok := g.index[name]
	if !ok {
		return nil
	}
	out := g.dependents()
	visited := map[int]bool{}
	stack := append([]int(nil), out[start]...)
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[n] {
			continue
		}
		visited[n] = true
		stack = append(stack, out[n]...)
	}
	idx := make([]int, 0, len(visited))
	for n := range visited {
		idx = append(idx, n)
	}
	sort.Ints(idx)
	return g.names(idx)
}

// ExternalInputs returns, sorted, the keys consumed by some stage but
// produced by none.
func (g *Graph) ExternalInputs() []string {
	set := map[string]bool{}
	for _, s := range g.specs {
		for _, key := range s.Inputs {
			if _, ok := g.producers[key]; !ok {
				set[key] = true
			}
		}
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ComputeOrder returns stage names so that every stage follows the
// producers of its inputs. Among stages that become eligible together, the
// one declared first comes first.
func (g *Graph) ComputeOrder() ([]string, error) {
	n := len(g.specs)
	indeg := make([]int, n)
	for i := range g.specs {
		indeg[i] = len(g.deps(i))
	}
	out := g.dependents()
	ready := &intHeap{}
	for i := 0; i < n; i++ {
		if indeg[i] == 0 {
			heap.Push(ready, i)
		}
	}
	order := make([]string, 0, n)
	for ready.Len() > 0 {
		i := heap.Pop(ready).(int)
		order = append(order, g.specs[i].Name)
		for _, d := range out[i] {
			indeg[d]--
			if indeg[d] == 0 {
				heap.Push(ready, d)
			}
		}
	}
	if len(order) != n {
		return nil, &CyclicDependencyError{Path: g.findCycle(indeg)}
	}
	return order, nil
}

// deps returns the distinct producer indices of stage i's inputs, sorted.
func (g *Graph) deps(i int) []int {
	if i < 0 || i >= len(g.specs) {
		return nil
	}
	set := map[int]bool{}
	for _, key := range g.specs[i].Inputs {
		if p, ok := g.producers[key]; ok {
			set[p] = true
		}
	}
	out := make([]int, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Ints(out)
	return out
}

// dependents inverts deps: for each stage, who consumes its outputs.
func (g *Graph) dependents() [][]int {
	out := make([][]int, len(g.specs))
	for i := range g.specs {
		for _, p := range g.deps(i) {
			out[p] = append(out[p], i)
		}
	}
	return out
}

// findCycle walks dependencies among stages left with unmet in-degree until
// it revisits one, then returns that loop in dependency-flow order.
func (g *Graph) findCycle(indeg []int) []string {
	start := -1
	for i, d := range indeg {
		if d > 0 {
			start = i
			break
		}
	}
	if start < 0 {
		return nil
	}
	pos := map[int]int{}
	var walk []int
	cur := start
	for {
		if at, ok := pos[cur]; ok {
			loop := walk[at:]
			path := make([]string, 0, len(loop)+1)
			// walk follows producer edges backwards; reverse for reading order
			for j := len(loop) - 1; j >= 0; j-- {
				path = append(path, g.specs[loop[j]].Name)
			}
			return append(path, path[0])
		}
		pos[cur] = len(walk)
		walk = append(walk, cur)
		next := -1
		for _, p := range g.deps(cur) {
			if indeg[p] > 0 {
				next = p
				break
			}
		}
		if next < 0 {
			return nil
		}
		cur = next
	}
}

func (g *Graph) names(idx []int) []string {
	out := make([]string, len(idx))
	for i, n := range idx {
		out[i] = g.specs[n].Name
	}
	return out
}

type intHeap []int

func (h intHeap) Len() int           { return len(h) }
func (h intHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h intHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *intHeap) Push(x any)        { *h = append(*h, x.(int)) }
func (h *intHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
