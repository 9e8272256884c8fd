// Package dag implements the orchestrator (spec section 4.1): from a
// manifest and configuration it builds a DAG of per-run steps and
// executes them so that each output is built at most once per
// invocation, idempotently, atomically, and with tool fallback
// treated as a legitimate graph output.
package dag

import (
	"fmt"

	"github.com/spineprep/spineprep/internal/manifest"
)

// Stage is one of the fixed orchestrator stages, in the order spec
// section 4.1 requires: crop_detect, mppca, motion, confounds,
// registration, mask_warp. registration and mask_warp are conditional
// on registration.enable.
type Stage string

const (
	StageCropDetect   Stage = "crop_detect"
	StageMPPCA        Stage = "mppca"
	StageMotion       Stage = "motion"
	StageConfounds    Stage = "confounds"
	StageRegistration Stage = "registration"
	StageMaskWarp     Stage = "mask_warp"
)

// StageOrder is the fixed stage order spec section 4.1 names.
var StageOrder = []Stage{StageCropDetect, StageMPPCA, StageMotion, StageConfounds, StageRegistration, StageMaskWarp}

// State is a step's position in the spec section 4.1 state machine:
// PENDING -> RUNNING -> (OK | SKIP | FAILED_RETRIED | FAILED_FATAL).
type State string

const (
	StatePending       State = "PENDING"
	StateRunning       State = "RUNNING"
	StateOK            State = "OK"
	StateSkip          State = "SKIP"
	StateFailedRetried State = "FAILED_RETRIED"
	StateFailedFatal   State = "FAILED_FATAL"
)

// RunKey identifies one run by internal/manifest.Run's entity fields
// (subject, session, task, acquisition, run); the stage is carried
// separately by StepID.
type RunKey struct {
	Subject, Session, Task, Acquisition, RunID string
}

func (k RunKey) String() string {
	return fmt.Sprintf("sub-%s_ses-%s_task-%s_acq-%s_run-%s", k.Subject, k.Session, k.Task, k.Acquisition, k.RunID)
}

// KeyFromRun derives a RunKey from a manifest run, the tuple
// internal/steps uses to key every stage's StepID for that run.
func KeyFromRun(r manifest.Run) RunKey {
	return RunKey{Subject: r.Subject, Session: r.Session, Task: r.Task, Acquisition: r.Acquisition, RunID: r.RunID}
}

// StepID identifies one node in the DAG: a run key plus stage (for
// subject-level anatomical steps, Key carries only the Subject).
type StepID struct {
	Key   RunKey
	Stage Stage
}

func (id StepID) String() string { return fmt.Sprintf("%s.%s", id.Key, id.Stage) }

// StepFunc performs one step's work, returning its terminal state.
// Implementations are responsible for idempotence (checking for their
// primary output or .skip marker before doing anything) and for
// atomic writes; dag only sequences calls and records state.
type StepFunc func() (State, error)

// Step is one DAG node: declared inputs/outputs for dependency
// ordering, plus the work function.
type Step struct {
	ID      StepID
	Inputs  []string // paths this step depends on
	Outputs []string // paths this step produces
	Run     StepFunc
}

// Graph is a planned DAG: steps in a fixed, dependency-respecting
// order plus an index from output path to producing step, used both
// for topological execution and for wildcard-style lookups rather
// than dereferencing the manifest again at execution time.
type Graph struct {
	Steps        []Step
	byOutputPath map[string]int // output path -> index into Steps
}

// StepResult records one step's outcome, as returned by Execute and
// summarized by cmd/spineprep.
type StepResult struct {
	ID    StepID
	State State
	Err   error
}
