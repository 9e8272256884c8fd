// Package adapter implements the external-tool adapter contract
// (spec section 4.4): one adapter per external tool family
// (segmentation, vertebral labeling, template registration, mask
// warping), all sharing the same pre-check/run/fallback/provenance
// shape. It is built directly on internal/tools/cli/exec.go's
// ExecutorImpl.Run: exec.CommandContext, a per-command timeout,
// stdout/stderr capture with a truncation limit, and OTel span/metric
// instrumentation.
package adapter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"

	"github.com/spineprep/spineprep/internal/atomicio"
	"github.com/spineprep/spineprep/internal/errs"
	"github.com/spineprep/spineprep/internal/observability"
	"github.com/spineprep/spineprep/internal/provenance"
)

const outputTruncateBytes = 64 * 1024

// Request names one invocation of an external tool: the binary, its
// arguments, and a per-run timeout override.
type Request struct {
	Binary  string
	Args    []string
	Timeout time.Duration
}

// Result is what a successful tool run produced.
type Result struct {
	OK        bool
	ExitCode  int
	Stdout    string
	Stderr    string
	Duration  time.Duration
	Truncated bool
}

// Placeholder writes the fallback outputs for a tool family when its
// binary is unavailable or fails, preserving downstream dependency
// validity per spec section 4.4 ("a zero-valued or copy of the input
// with matching header; for small files: an empty but well-formed
// record").
type Placeholder func() error

// Adapter is one external-tool family: segmentation, vertebral
// labeling, template registration, mask warping, or a motion engine
// that shells out. DefaultTimeout bounds every Run unless the caller
// supplies a shorter one via Request.Timeout.
type Adapter struct {
	Name           string
	DefaultTimeout time.Duration
}

// New constructs an Adapter with the given name and default timeout.
func New(name string, defaultTimeout time.Duration) *Adapter {
	if defaultTimeout <= 0 {
		defaultTimeout = 30 * time.Minute
	}
	return &Adapter{Name: name, DefaultTimeout: defaultTimeout}
}

// Available reports whether req.Binary resolves on PATH, the
// adapter's pre-check for "declared environment inputs."
func (a *Adapter) Available(req Request) bool {
	_, err := exec.LookPath(req.Binary)
	return err == nil
}

// run shells out to req.Binary, recording an OTel span and the
// steps.total/step.duration.ms metrics exactly as
// internal/tools/cli/exec.go does for its own command executions.
func (a *Adapter) run(ctx context.Context, req Request) (Result, error) {
	tracer := otel.Tracer("adapter")
	meter := otel.Meter("adapter")
	ctx, span := tracer.Start(ctx, "step."+a.Name)
	defer span.End()

	stepCounter, _ := meter.Int64Counter("steps.total")
	durHist, _ := meter.Int64Histogram("step.duration.ms")

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = a.DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	c := exec.CommandContext(ctx, req.Binary, req.Args...)
	c.Env = os.Environ()
	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	start := time.Now()
	err := c.Run()
	dur := time.Since(start)

	attrs := otelmetric.WithAttributes(attribute.String("tool", a.Name))
	stepCounter.Add(ctx, 1, attrs)
	durHist.Record(ctx, dur.Milliseconds(), attrs)

	exit := 0
	if err != nil {
		var ee *exec.ExitError
		switch {
		case errors.As(err, &ee):
			exit = ee.ExitCode()
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			exit = 124
		default:
			exit = 1
		}
	}
	span.SetAttributes(attribute.String("tool", a.Name), attribute.Int("exit_code", exit), attribute.Int64("duration_ms", dur.Milliseconds()))

	observability.LoggerWithTrace(ctx).Debug().
		Str("tool", a.Name).
		Int("exit_code", exit).
		Dur("duration", dur).
		Msg("adapter: tool invocation finished")

	outS, trunc1 := truncate(stdout.String())
	errS, trunc2 := truncate(stderr.String())

	res := Result{
		OK:        err == nil,
		ExitCode:  exit,
		Stdout:    outS,
		Stderr:    errS,
		Duration:  dur,
		Truncated: trunc1 || trunc2,
	}
	if err != nil {
		return res, errs.New(errs.ToolFailure, "adapter."+a.Name, fmt.Errorf("%s: %w", a.Name, err))
	}
	return res, nil
}

func truncate(s string) (string, bool) {
	if len(s) <= outputTruncateBytes {
		return s, false
	}
	return s[:outputTruncateBytes] + "\n[TRUNCATED]", true
}

// Run executes the pre-check/run/fallback/provenance shape common to
// every adapter (spec section 4.4): it first checks output (or its
// .skip marker) against inputs, returning immediately without
// touching the binary, fallback, or provenance again if that check
// already holds. Otherwise, if the binary is unavailable, fallback
// runs and the outputs are marked .skip; otherwise the tool runs, and
// on success or failure the corresponding marker and provenance
// sidecar are written. output is the artifact path the provenance
// record and status marker are attached to; inputs and params feed
// the provenance record verbatim.
func (a *Adapter) Run(ctx context.Context, req Request, output string, inputs []string, params map[string]any, fallback Placeholder, now provenance.Clock) (Result, error) {
	if atomicio.UpToDate(output, inputs) {
		if atomicio.MarkerExists(output, ".skip") {
			return Result{}, errs.New(errs.ToolUnavailable, "adapter."+a.Name, fmt.Errorf("%s: binary %q previously unavailable (cached)", a.Name, req.Binary))
		}
		return Result{OK: true}, nil
	}

	if !a.Available(req) {
		if err := fallback(); err != nil {
			return Result{}, errs.New(errs.AtomicCommitFailed, "adapter."+a.Name, fmt.Errorf("fallback placeholder: %w", err))
		}
		if err := atomicio.TouchMarker(output, ".skip"); err != nil {
			return Result{}, err
		}
		rec := provenance.New(now, a.Name, output, inputs, params, nil, "skip", "tool_unavailable: "+req.Binary)
		if err := provenance.Write(rec); err != nil {
			return Result{}, err
		}
		return Result{}, errs.New(errs.ToolUnavailable, "adapter."+a.Name, fmt.Errorf("%s: binary %q not found", a.Name, req.Binary))
	}

	res, runErr := a.run(ctx, req)
	if runErr != nil {
		if err := fallback(); err != nil {
			return Result{}, errs.New(errs.AtomicCommitFailed, "adapter."+a.Name, fmt.Errorf("fallback placeholder: %w", err))
		}
		if err := atomicio.TouchMarker(output, ".skip"); err != nil {
			return Result{}, err
		}
		rec := provenance.New(now, a.Name, output, inputs, params, nil, "skip", runErr.Error())
		if err := provenance.Write(rec); err != nil {
			return Result{}, err
		}
		return res, runErr
	}

	if err := atomicio.TouchMarker(output, ".ok"); err != nil {
		return Result{}, err
	}
	rec := provenance.New(now, a.Name, output, inputs, params, map[string]string{a.Name: "external"}, "ok", "")
	if err := provenance.Write(rec); err != nil {
		return Result{}, err
	}
	return res, nil
}
