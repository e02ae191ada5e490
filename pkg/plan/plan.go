package plan

import (
	"fmt"
	"slices"

	"github.com/leapstack-labs/fedplan/internal/dag"
)

// Plan is an append-only list of steps. A step only consumes results of
// earlier steps, so list order is a valid execution order.
type Plan struct {
	Steps []Step
	// ResultRefs maps a producing step index to the indices of the steps consuming it.
	ResultRefs map[int][]int
}

// New returns an empty plan.
func New() *Plan {
	return &Plan{ResultRefs: make(map[int][]int)}
}

// Add appends a step and returns the handle to its output.
func (p *Plan) Add(s Step) Result {
	if p.ResultRefs == nil {
		p.ResultRefs = make(map[int][]int)
	}
	idx := len(p.Steps)
	p.Steps = append(p.Steps, s)
	for _, in := range s.Inputs() {
		p.ResultRefs[in.Step] = append(p.ResultRefs[in.Step], idx)
	}
	return Result{Step: idx}
}

// Len returns the number of steps.
func (p *Plan) Len() int {
	return len(p.Steps)
}

// Last returns the result of the most recently added step.
func (p *Plan) Last() (Result, bool) {
	if len(p.Steps) == 0 {
		return Result{}, false
	}
	return Result{Step: len(p.Steps) - 1}, true
}

// Step returns the step producing r.
func (p *Plan) Step(r Result) (Step, bool) {
	if r.Step < 0 || r.Step >= len(p.Steps) {
		return nil, false
	}
	return p.Steps[r.Step], true
}

// Consumers returns the steps that read the output of step idx, in plan order.
func (p *Plan) Consumers(idx int) []int {
	return p.ResultRefs[idx]
}

// Validate checks that every step input refers to an earlier step and that
// ResultRefs agrees with the steps.
func (p *Plan) Validate() error {
	refs := make(map[int][]int)
	for i, s := range p.Steps {
		for _, in := range s.Inputs() {
			if in.Step < 0 || in.Step >= i {
				return fmt.Errorf("step %d (%s) references %s which is not an earlier step", i, s.Kind(), in)
			}
			refs[in.Step] = append(refs[in.Step], i)
		}
	}
	if len(refs) != len(p.ResultRefs) {
		return fmt.Errorf("result refs cover %d producers, steps reference %d", len(p.ResultRefs), len(refs))
	}
	for producer, consumers := range refs {
		if !slices.Equal(consumers, p.ResultRefs[producer]) {
			return fmt.Errorf("result refs for step %d are %v, steps reference %v", producer, p.ResultRefs[producer], consumers)
		}
	}
	return nil
}

// Graph returns the dependency graph of the plan keyed by step index.
func (p *Plan) Graph() (*dag.Graph[int], error) {
	g := dag.NewGraph[int]()
	for i := range p.Steps {
		g.AddNode(i)
	}
	for i, s := range p.Steps {
		for _, in := range s.Inputs() {
			if err := g.AddEdge(in.Step, i); err != nil {
				return nil, fmt.Errorf("step %d: %w", i, err)
			}
		}
	}
	return g, nil
}

// ExecutionLevels groups step indices by dependency depth. Steps of the same
// level do not depend on each other.
func (p *Plan) ExecutionLevels() ([][]int, error) {
	g, err := p.Graph()
	if err != nil {
		return nil, err
	}
	return g.Levels()
}
