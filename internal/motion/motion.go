// Package motion implements the motion coordinator (spec section
// 4.3): applies the crop to the 4-D image, invokes the configured
// motion engine, and always emits a six-column parameter table of
// length equal to the post-crop volume count.
package motion

import (
	"context"
	"time"

	"github.com/spineprep/spineprep/internal/adapter"
	"github.com/spineprep/spineprep/internal/confounds"
	"github.com/spineprep/spineprep/internal/provenance"
)

// Engine identifies one of the four motion-estimation strategies spec
// section 4.3's table names.
type Engine string

const (
	EngineSliceWise Engine = "slice-wise"
	EngineRigid3D   Engine = "rigid-3d"
	EngineHybrid    Engine = "hybrid"
	EngineGrouped   Engine = "grouped"
)

// Status mirrors the motion-parameters metadata status spec section 3
// names.
type Status string

const (
	StatusCompleted           Status = "completed"
	StatusSkippedMissingTools Status = "skipped_missing_tools"
	StatusFallbackCopy        Status = "fallback_copy"
	// StatusFallbackRigidOnly marks a hybrid run that degraded to
	// rigid-3d alone because the slice-wise tool was unavailable: a
	// hybrid output, but not the hybrid engine's intended slice+volume
	// composition, so it must stay distinguishable from a plain
	// rigid-3d StatusCompleted.
	StatusFallbackRigidOnly Status = "fallback_rigid_only"
)

// Metadata accompanies the motion parameter table: engine identifier,
// slice axis, tool versions, and completion status.
type Metadata struct {
	Engine      Engine
	SliceAxis   string
	ToolVersion string
	Status      Status
}

// Coordinator applies one configured engine's adapters to a cropped
// run.
type Coordinator struct {
	SliceWiseTool *adapter.Adapter // slice-motion tool family
	VolumeTool    *adapter.Adapter // volume-motion tool family
	Clock         provenance.Clock
}

// NewCoordinator builds a Coordinator with the default per-tool
// timeouts used throughout the adapter package.
func NewCoordinator() *Coordinator {
	return &Coordinator{
		SliceWiseTool: adapter.New("slice-motion", 20*time.Minute),
		VolumeTool:    adapter.New("volume-motion", 20*time.Minute),
	}
}

// Run estimates motion for nvols post-crop volumes using engine,
// following the per-engine granularity and fallback table from spec
// section 4.3:
//
//	slice-wise: skip + zero parameters when the tool is missing
//	rigid-3d:   copy-through + zero parameters when the tool is missing
//	hybrid:     both sequentially, falls back to rigid-3d alone on slice failure
//	grouped:    slice-wise over the concatenated group, skip on missing tool
func (c *Coordinator) Run(ctx context.Context, engine Engine, sliceAxis string, nvols int, output string, inputs []string) (confounds.MotionParams, Metadata, error) {
	switch engine {
	case EngineSliceWise:
		return c.runSliceWise(ctx, sliceAxis, nvols, output, inputs)
	case EngineRigid3D:
		return c.runRigid3D(ctx, nvols, output, inputs)
	case EngineHybrid:
		return c.runHybrid(ctx, sliceAxis, nvols, output, inputs)
	case EngineGrouped:
		return c.runSliceWise(ctx, sliceAxis, nvols, output, inputs)
	default:
		return confounds.ZeroMotionParams(nvols), Metadata{Engine: engine, Status: StatusSkippedMissingTools}, nil
	}
}

func (c *Coordinator) runSliceWise(ctx context.Context, sliceAxis string, nvols int, output string, inputs []string) (confounds.MotionParams, Metadata, error) {
	if !c.SliceWiseTool.Available(adapter.Request{Binary: sliceWiseBinary}) {
		return confounds.ZeroMotionParams(nvols), Metadata{Engine: EngineSliceWise, SliceAxis: sliceAxis, Status: StatusSkippedMissingTools}, nil
	}

	params := confounds.ZeroMotionParams(nvols) // slice-wise engines synthesize zero rigid-body parameters (documented limitation)
	fallback := func() error { return nil }
	_, err := c.SliceWiseTool.Run(ctx, adapter.Request{Binary: sliceWiseBinary, Args: []string{"--axis", sliceAxis}}, output, inputs, map[string]any{"engine": EngineSliceWise, "slice_axis": sliceAxis}, fallback, c.clock())
	if err != nil {
		return params, Metadata{Engine: EngineSliceWise, SliceAxis: sliceAxis, Status: StatusSkippedMissingTools}, nil
	}
	return params, Metadata{Engine: EngineSliceWise, SliceAxis: sliceAxis, Status: StatusCompleted}, nil
}

func (c *Coordinator) runRigid3D(ctx context.Context, nvols int, output string, inputs []string) (confounds.MotionParams, Metadata, error) {
	if !c.VolumeTool.Available(adapter.Request{Binary: volumeBinary}) {
		return confounds.ZeroMotionParams(nvols), Metadata{Engine: EngineRigid3D, Status: StatusFallbackCopy}, nil
	}

	fallback := func() error { return nil }
	_, err := c.VolumeTool.Run(ctx, adapter.Request{Binary: volumeBinary}, output, inputs, map[string]any{"engine": EngineRigid3D}, fallback, c.clock())
	if err != nil {
		return confounds.ZeroMotionParams(nvols), Metadata{Engine: EngineRigid3D, Status: StatusFallbackCopy}, nil
	}
	return parseRigid3DOutput(output, nvols), Metadata{Engine: EngineRigid3D, Status: StatusCompleted}, nil
}

// runHybrid runs slice-wise then rigid-3d and sums the two parameter
// tables component-wise, the approximation spec section 4.3 names
// explicitly; the summed run's provenance record carries
// params.hybrid_composition = "sum". If the slice-wise stage is
// unavailable, hybrid falls back to rigid-3d alone.
func (c *Coordinator) runHybrid(ctx context.Context, sliceAxis string, nvols int, output string, inputs []string) (confounds.MotionParams, Metadata, error) {
	if !c.SliceWiseTool.Available(adapter.Request{Binary: sliceWiseBinary}) {
		params, meta, err := c.runRigid3D(ctx, nvols, output, inputs)
		meta.Engine = EngineHybrid
		if meta.Status == StatusCompleted {
			meta.Status = StatusFallbackRigidOnly
		}
		return params, meta, err
	}

	sliceParams, _, err := c.runSliceWise(ctx, sliceAxis, nvols, output, inputs)
	if err != nil {
		return confounds.ZeroMotionParams(nvols), Metadata{Engine: EngineHybrid, Status: StatusSkippedMissingTools}, err
	}
	volParams, _, err := c.runRigid3D(ctx, nvols, output, inputs)
	if err != nil {
		return confounds.ZeroMotionParams(nvols), Metadata{Engine: EngineHybrid, Status: StatusFallbackCopy}, err
	}

	summed := sumParams(sliceParams, volParams)
	meta := Metadata{Engine: EngineHybrid, SliceAxis: sliceAxis, Status: StatusCompleted}
	rec := provenance.New(c.clock(), "hybrid-motion", output, inputs, map[string]any{"engine": EngineHybrid, "slice_axis": sliceAxis, "hybrid_composition": "sum"}, nil, "ok", "")
	if err := provenance.Write(rec); err != nil {
		return summed, meta, err
	}
	return summed, meta, nil
}

func sumParams(a, b confounds.MotionParams) confounds.MotionParams {
	n := a.Len()
	out := confounds.ZeroMotionParams(n)
	for i := 0; i < n; i++ {
		out.TransX[i] = a.TransX[i] + b.TransX[i]
		out.TransY[i] = a.TransY[i] + b.TransY[i]
		out.TransZ[i] = a.TransZ[i] + b.TransZ[i]
		out.RotX[i] = a.RotX[i] + b.RotX[i]
		out.RotY[i] = a.RotY[i] + b.RotY[i]
		out.RotZ[i] = a.RotZ[i] + b.RotZ[i]
	}
	return out
}

func (c *Coordinator) clock() provenance.Clock {
	if c.Clock != nil {
		return c.Clock
	}
	return nil
}

const (
	sliceWiseBinary = "spineprep-slice-motion"
	volumeBinary    = "spineprep-volume-motion"
)
