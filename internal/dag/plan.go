package dag

import "fmt"

// Planner builds a Graph from one RunKey at a time. The orchestrator
// (cmd/spineprep) calls steps.BuildRun, which adds that run's steps
// through AddStep, once per manifest row in manifest order, then Build
// to obtain the final Graph. Keeping construction
// incremental rather than dereferencing the whole manifest up front
// avoids a circular dependency between crop detection (which must run
// before its own downstream stages can be planned with real
// dimensions) and the rest of the graph: each run's steps are wired
// against that run's own prior-stage outputs, never another run's.
type Planner struct {
	steps []Step
}

// NewPlanner starts an empty plan.
func NewPlanner() *Planner { return &Planner{} }

// AddStep appends one step to the plan. Steps must be added in an
// order consistent with StageOrder for a given run; Build does not
// reorder them, since spec section 4.1 fixes the stage sequence and
// the caller (internal/steps) is expected to respect it when wiring a
// run's steps.
func (p *Planner) AddStep(s Step) { p.steps = append(p.steps, s) }

// Build finalizes the plan into a Graph, indexing each step's declared
// outputs for dependency lookups during Execute.
func (p *Planner) Build() (*Graph, error) {
	g := &Graph{Steps: p.steps, byOutputPath: make(map[string]int, len(p.steps))}
	for i, s := range p.steps {
		for _, out := range s.Outputs {
			if prev, ok := g.byOutputPath[out]; ok {
				return nil, fmt.Errorf("dag: output %q produced by both %s and %s", out, g.Steps[prev].ID, s.ID)
			}
			g.byOutputPath[out] = i
		}
	}
	return g, nil
}

// dependsOn reports the indices of steps that produce one of s's
// declared inputs, used by Execute to respect ordering beyond the
// steps slice's own sequence (e.g. a confounds step depending on a
// motion step added for a different stage group).
func (g *Graph) dependsOn(s Step) []int {
	var deps []int
	for _, in := range s.Inputs {
		if idx, ok := g.byOutputPath[in]; ok {
			deps = append(deps, idx)
		}
	}
	return deps
}
