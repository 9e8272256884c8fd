package dag

import (
	"context"

	"golang.org/x/sync/semaphore"

	"github.com/spineprep/spineprep/internal/atomicio"
	"github.com/spineprep/spineprep/internal/resources"
)

// Mode selects whether Execute performs the work or only reports the
// plan, per spec section 4.1's "Plan(manifest, config) -> DAG,
// Execute(DAG, mode in {dry-run, run})".
type Mode string

const (
	ModeDryRun Mode = "dry-run"
	ModeRun    Mode = "run"
)

// Execute runs every step in g respecting dependency order, bounded by
// a semaphore.Weighted sized from internal/resources.WorkerCount. In
// ModeDryRun no step's Run function is called; every step is reported
// StateSkip with a nil error, matching "dry-run emits the graph
// description" without touching the filesystem. A dependency that
// settled on StateSkip through its own fallback has written placeholder
// outputs and does not hold back its dependents. A step whose
// dependency failed (or was itself held back) is reported StateSkip
// without running, since its declared input will not exist. ctx
// cancellation stops scheduling new steps; steps already dispatched
// are allowed to finish.
//
// All scheduling state (remaining dependency counts, the ready queue)
// is owned by this single goroutine; worker goroutines only run a
// step and report its result back over a channel, so no mutex is
// needed.
func Execute(ctx context.Context, g *Graph, mode Mode, configuredWorkers int) []StepResult {
	n := len(g.Steps)
	results := make([]StepResult, n)
	done := make([]bool, n)
	blocked := make([]bool, n)

	deps := make([][]int, n)
	dependents := make([][]int, n)
	remaining := make([]int, n)
	for i, s := range g.Steps {
		deps[i] = g.dependsOn(s)
		remaining[i] = len(deps[i])
		for _, d := range deps[i] {
			dependents[d] = append(dependents[d], i)
		}
	}

	sem := semaphore.NewWeighted(int64(resources.WorkerCount(configuredWorkers)))
	type outcome struct {
		idx int
		res StepResult
	}
	finished := make(chan outcome, n)

	var queue []int
	for i := range g.Steps {
		if remaining[i] == 0 {
			queue = append(queue, i)
		}
	}

	dispatch := func(idx int) {
		if ctx.Err() != nil {
			finished <- outcome{idx, StepResult{ID: g.Steps[idx].ID, State: StateFailedFatal, Err: ctx.Err()}}
			return
		}
		dep := blockedDependency(deps[idx], results, done, blocked)
		if dep >= 0 {
			blocked[idx] = true
			finished <- outcome{idx, StepResult{ID: g.Steps[idx].ID, State: StateSkip, Err: nil}}
			return
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			finished <- outcome{idx, StepResult{ID: g.Steps[idx].ID, State: StateFailedFatal, Err: err}}
			return
		}
		go func() {
			defer sem.Release(1)
			finished <- outcome{idx, runStep(ctx, g.Steps[idx], mode)}
		}()
	}

	pending := n
	for _, idx := range queue {
		dispatch(idx)
	}
	queue = nil

	for pending > 0 {
		out := <-finished
		pending--
		results[out.idx] = out.res
		done[out.idx] = true
		for _, dep := range dependents[out.idx] {
			remaining[dep]--
			if remaining[dep] == 0 {
				dispatch(dep)
			}
		}
	}
	return results
}

// blockedDependency returns the index of the first dependency that
// failed or was itself held back, or -1 if every dependency finished
// StateOK or StateSkip through its own fallback (or there are none).
func blockedDependency(deps []int, results []StepResult, done, blocked []bool) int {
	for _, d := range deps {
		if !done[d] || blocked[d] {
			return d
		}
		if s := results[d].State; s != StateOK && s != StateSkip {
			return d
		}
	}
	return -1
}

// runStep calls s.Run, first applying the DAG-level half of spec
// section 4.1's idempotence policy: if s's primary declared output
// already exists (or is marked .skip) and is newer than every
// declared input, the step is reported without being invoked at all:
// StateSkip when a .skip marker sits beside that output, StateOK
// otherwise. Steps with finer-grained outputs of their own (sidecars,
// markers the adapter writes) additionally pre-check themselves; this
// is the coarse, output-path-only backstop every step gets for free.
func runStep(ctx context.Context, s Step, mode Mode) StepResult {
	if mode == ModeDryRun || s.Run == nil {
		return StepResult{ID: s.ID, State: StateSkip, Err: nil}
	}
	if ctx.Err() != nil {
		return StepResult{ID: s.ID, State: StateFailedFatal, Err: ctx.Err()}
	}
	if len(s.Outputs) > 0 && atomicio.UpToDate(s.Outputs[0], s.Inputs) {
		if atomicio.MarkerExists(s.Outputs[0], ".skip") {
			return StepResult{ID: s.ID, State: StateSkip, Err: nil}
		}
		return StepResult{ID: s.ID, State: StateOK, Err: nil}
	}
	state, err := s.Run()
	if err != nil && state == "" {
		state = StateFailedFatal
	}
	return StepResult{ID: s.ID, State: state, Err: err}
}
