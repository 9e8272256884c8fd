// Package steps wires the concrete per-stage logic (internal/crop,
// internal/motion, internal/confounds, internal/adapter) into
// dag.Step values for one manifest run, following the fixed stage
// order spec section 4.1 names: crop_detect, mppca, motion,
// confounds, registration*, mask_warp* (the starred stages
// conditional on registration.enable). Each step's Run closes over
// the paths and configuration it needs and returns the dag.State the
// coordinator/adapter work settled on, never erroring for a
// recoverable tool-availability condition (those become StateSkip).
package steps

import (
	"context"
	"fmt"
	"time"

	"github.com/spineprep/spineprep/internal/adapter"
	"github.com/spineprep/spineprep/internal/atomicio"
	"github.com/spineprep/spineprep/internal/confounds"
	"github.com/spineprep/spineprep/internal/config"
	"github.com/spineprep/spineprep/internal/crop"
	"github.com/spineprep/spineprep/internal/dag"
	"github.com/spineprep/spineprep/internal/manifest"
	"github.com/spineprep/spineprep/internal/motion"
	"github.com/spineprep/spineprep/internal/nifti"
	"github.com/spineprep/spineprep/internal/paths"
	"github.com/spineprep/spineprep/internal/provenance"
)

// RunPaths collects the derivative paths one run's steps read and
// write, composed once via internal/paths so every step and its tests
// agree on where an artifact lives.
type RunPaths struct {
	Raw          string
	CropSidecar  string
	Denoised     string
	MotionParams string
	Confounds    string
	Masks        map[string]string // tissue -> mask NIfTI path, keyed by descriptor ("wm" -> wmmask, "csf" -> csfmask, "cord" -> cordmask)
}

// maskDescriptor maps a configured tissue name to its paths.Compose
// descriptor, per the descriptor vocabulary spec section 3 names
// (cordmask, wmmask, csfmask).
func maskDescriptor(tissue string) string {
	switch tissue {
	case "cord":
		return "cordmask"
	case "wm":
		return "wmmask"
	case "csf":
		return "csfmask"
	default:
		return tissue + "mask"
	}
}

// ComposeRunPaths builds a RunPaths for r under derivRoot.
func ComposeRunPaths(derivRoot string, r manifest.Run) (RunPaths, error) {
	entity := paths.Entity{Subject: r.Subject, Session: r.Session, Task: r.Task, Acquisition: r.Acquisition, Run: r.RunID}

	cropPath, err := paths.Compose(derivRoot, entity, "crop", paths.SpaceNative, "")
	if err != nil {
		return RunPaths{}, err
	}
	denoised, err := paths.Compose(derivRoot, entity, "mppca", paths.SpaceNative, "nii")
	if err != nil {
		return RunPaths{}, err
	}
	motionParams, err := paths.Compose(derivRoot, entity, "motion", paths.SpaceNative, "tsv")
	if err != nil {
		return RunPaths{}, err
	}
	confoundsPath, err := paths.Compose(derivRoot, entity, "confounds", paths.SpaceNative, "tsv")
	if err != nil {
		return RunPaths{}, err
	}

	masks := map[string]string{}
	for _, tissue := range []string{"cord", "wm", "csf"} {
		p, err := paths.Compose(derivRoot, entity, maskDescriptor(tissue), paths.SpaceNative, "nii")
		if err != nil {
			return RunPaths{}, err
		}
		masks[tissue] = p
	}

	return RunPaths{
		Raw:          r.ImagePath,
		CropSidecar:  cropPath,
		Denoised:     denoised,
		MotionParams: motionParams,
		Confounds:    confoundsPath,
		Masks:        masks,
	}, nil
}

// BuildRun appends one run's crop_detect/mppca/motion/confounds steps
// (plus mask_warp when registration.enable is set) to p, wiring each stage's declared Inputs/Outputs to the previous
// stage's outputs so dag.Execute schedules them in order without the
// planner needing to know the stage sequence itself.
func BuildRun(p *dag.Planner, cfg config.Config, r manifest.Run, rp RunPaths, derivRoot string, now provenance.Clock) {
	key := dag.KeyFromRun(r)

	p.AddStep(dag.Step{
		ID:      dag.StepID{Key: key, Stage: dag.StageCropDetect},
		Inputs:  []string{rp.Raw},
		Outputs: []string{rp.CropSidecar},
		Run:     cropDetectStep(cfg, r, rp),
	})

	p.AddStep(dag.Step{
		ID:      dag.StepID{Key: key, Stage: dag.StageMPPCA},
		Inputs:  []string{rp.CropSidecar},
		Outputs: []string{rp.Denoised},
		Run:     mppcaStep(r, rp, now),
	})

	p.AddStep(dag.Step{
		ID:      dag.StepID{Key: key, Stage: dag.StageMotion},
		Inputs:  []string{rp.Denoised},
		Outputs: []string{rp.MotionParams},
		Run:     motionStep(cfg, r, rp, now),
	})

	p.AddStep(dag.Step{
		ID:      dag.StepID{Key: key, Stage: dag.StageConfounds},
		Inputs:  []string{rp.MotionParams},
		Outputs: []string{rp.Confounds},
		Run:     confoundsStep(cfg, r, rp, now),
	})

	if cfg.Registration.Enable {
		warped := rp.Masks["cord"] + ".PAM50.nii"
		p.AddStep(dag.Step{
			ID:      dag.StepID{Key: key, Stage: dag.StageMaskWarp},
			Inputs:  []string{rp.Masks["cord"], xfmPath(derivRoot, r)},
			Outputs: []string{warped},
			Run:     maskWarpStep(r, rp, derivRoot, now),
		})
	}
}

// xfmPath is the subject-level native-to-PAM50 transform the
// registration stage produces, shared by every run of that subject.
func xfmPath(derivRoot string, r manifest.Run) string {
	entity := paths.Entity{Subject: r.Subject}
	p, _ := paths.Compose(derivRoot, entity, "xfm-to-PAM50", paths.SpaceNative, "")
	return p
}

// BuildSubjectRegistration appends the subject-level registration step
// spec section 4.1 names as a DAG node independent of any one run: it
// estimates the native-to-PAM50 transform from the subject's
// anatomical image via the template-registration adapter, falling
// back to an identity-transform placeholder.
func BuildSubjectRegistration(p *dag.Planner, derivRoot string, anat manifest.Anatomical, now provenance.Clock) {
	out := xfmPath(derivRoot, manifest.Run{Subject: anat.Subject})
	p.AddStep(dag.Step{
		ID:      dag.StepID{Key: dag.RunKey{Subject: anat.Subject}, Stage: dag.StageRegistration},
		Inputs:  []string{anat.ImagePath},
		Outputs: []string{out},
		Run:     registrationStep(anat, out, now),
	})
}

func registrationStep(anat manifest.Anatomical, out string, now provenance.Clock) dag.StepFunc {
	a := adapter.New("registration", 45*time.Minute)
	return func() (dag.State, error) {
		fallback := func() error { return writeIdentityXfm(out) }
		_, err := a.Run(context.Background(),
			adapter.Request{Binary: "spineprep-register", Args: []string{"--anat", anat.ImagePath, "--template", "PAM50", "--output", out}},
			out, []string{anat.ImagePath}, map[string]any{"subject": anat.Subject, "template": "PAM50"}, fallback, now)
		if err != nil {
			return dag.StateSkip, nil
		}
		return dag.StateOK, nil
	}
}

// maskWarpStep warps the subject's cord mask into PAM50 space. It
// first ensures a native cord mask exists (segmentation adapter, or
// an all-false fallback), then warps it (mask-warp adapter, or a
// copy-through fallback when the transform or tool is unavailable):
// the cord mask is not a declared output of any other stage, since
// registration/mask_warp is the only consumer that needs it in
// native space.
func maskWarpStep(r manifest.Run, rp RunPaths, derivRoot string, now provenance.Clock) dag.StepFunc {
	seg := adapter.New("segmentation", 10*time.Minute)
	a := adapter.New("mask-warp", 10*time.Minute)
	cordMask := rp.Masks["cord"]
	warped := cordMask + ".PAM50.nii"
	xfm := xfmPath(derivRoot, r)
	return func() (dag.State, error) {
		v, err := nifti.Read(rp.Denoised)
		if err != nil {
			return dag.StateFailedFatal, fmt.Errorf("steps: mask_warp: read %s: %w", rp.Denoised, err)
		}
		segFallback := func() error { return nifti.Write(cordMask, nifti.NewVolume4D(v.NX, v.NY, v.NZ, 1)) }
		_, _ = seg.Run(context.Background(),
			adapter.Request{Binary: "spineprep-segment", Args: []string{"--tissue", "cord", "--input", rp.Denoised, "--output", cordMask}},
			cordMask, []string{rp.Denoised}, map[string]any{"subject": r.Subject, "run": r.RunID, "tissue": "cord"}, segFallback, now)

		fallback := func() error { return copyFile(cordMask, warped) }
		_, err = a.Run(context.Background(),
			adapter.Request{Binary: "spineprep-warp", Args: []string{"--mask", cordMask, "--xfm", xfm, "--output", warped}},
			warped, []string{cordMask, xfm}, map[string]any{"subject": r.Subject, "run": r.RunID}, fallback, now)
		if err != nil {
			return dag.StateSkip, nil
		}
		return dag.StateOK, nil
	}
}

// cropDetectStep reads the run's raw image, runs robust-z crop
// detection, and publishes the sidecar other stages read from (never
// the image itself: spec section 4.3 keeps crop detection and
// cropping decoupled via the sidecar contract).
func cropDetectStep(cfg config.Config, r manifest.Run, rp RunPaths) dag.StepFunc {
	return func() (dag.State, error) {
		if atomicio.UpToDate(crop.SidecarPath(rp.CropSidecar), []string{rp.Raw}) {
			return dag.StateOK, nil
		}

		v, err := nifti.Read(rp.Raw)
		if err != nil {
			return dag.StateFailedFatal, fmt.Errorf("steps: crop_detect: read %s: %w", rp.Raw, err)
		}

		sc := crop.Detect(v, nil, crop.Config{
			Enable:       cfg.Options.TemporalCrop.Enable,
			MaxTrimStart: cfg.Options.TemporalCrop.MaxTrimStart,
			MaxTrimEnd:   cfg.Options.TemporalCrop.MaxTrimEnd,
			ZThresh:      cfg.Options.TemporalCrop.ZThresh,
		})
		if err := crop.Write(rp.CropSidecar, sc); err != nil {
			return dag.StateFailedFatal, err
		}
		return dag.StateOK, nil
	}
}

// mppcaStep denoises the cropped volume via the spineprep-mppca
// adapter; on tool unavailability it copies the cropped volume
// through unchanged, the copy-through fallback spec section 4.4
// names for whole-image tool families.
func mppcaStep(r manifest.Run, rp RunPaths, now provenance.Clock) dag.StepFunc {
	a := adapter.New("mppca", 30*time.Minute)
	return func() (dag.State, error) {
		if atomicio.UpToDate(rp.Denoised, []string{rp.Raw, crop.SidecarPath(rp.CropSidecar)}) {
			return dag.StateOK, nil
		}

		_, err := croppedVolumeCount(rp)
		if err != nil {
			return dag.StateFailedFatal, err
		}

		fallback := func() error { return copyThrough(rp) }
		_, err = a.Run(context.Background(), adapter.Request{Binary: "spineprep-mppca", Args: []string{"--input", rp.Raw, "--output", rp.Denoised}},
			rp.Denoised, []string{rp.Raw}, map[string]any{"subject": r.Subject, "run": r.RunID}, fallback, now)
		if err != nil {
			return dag.StateSkip, nil // tool unavailable/failed: fallback already ran, this is a legitimate graph output
		}
		return dag.StateOK, nil
	}
}

// motionStep estimates motion on the denoised, cropped run and
// writes the parameter table the confounds stage derives FD from.
func motionStep(cfg config.Config, r manifest.Run, rp RunPaths, now provenance.Clock) dag.StepFunc {
	return func() (dag.State, error) {
		if atomicio.UpToDate(rp.MotionParams, []string{rp.Denoised}) {
			if meta, err := motion.ReadMetadata(motion.MetadataPath(rp.MotionParams)); err == nil {
				switch meta.Status {
				case motion.StatusCompleted, motion.StatusFallbackRigidOnly:
					return dag.StateOK, nil
				default:
					return dag.StateSkip, nil
				}
			}
			return dag.StateOK, nil
		}

		nvols, err := croppedVolumeCount(rp)
		if err != nil {
			return dag.StateFailedFatal, err
		}

		c := motion.NewCoordinator()
		c.Clock = now
		params, meta, err := c.Run(context.Background(), motion.Engine(cfg.Options.Motion.Engine), cfg.Options.Motion.SliceAxis, nvols, rp.MotionParams, []string{rp.Denoised})
		if err != nil {
			return dag.StateSkip, nil
		}
		if err := motion.WriteParamsTSV(rp.MotionParams, params); err != nil {
			return dag.StateFailedFatal, err
		}
		if err := motion.WriteMetadata(motion.MetadataPath(rp.MotionParams), meta); err != nil {
			return dag.StateFailedFatal, err
		}
		switch meta.Status {
		case motion.StatusCompleted, motion.StatusFallbackRigidOnly:
			return dag.StateOK, nil
		default:
			if err := atomicio.TouchMarker(rp.MotionParams, ".skip"); err != nil {
				return dag.StateFailedFatal, err
			}
			return dag.StateSkip, nil
		}
	}
}

// confoundsStep reads the motion parameter table, computes FD/DVARS/
// censoring, and writes the canonical confounds TSV. aCompCor tissue
// extraction is skipped (zero components per configured tissue) when
// options.masks is disabled or sourced as "none". When sourced as
// "tool" it invokes the segmentation adapter per tissue, falling back
// to an all-false mask (also zero components, well-formed) if the
// tool is unavailable.
func confoundsStep(cfg config.Config, r manifest.Run, rp RunPaths, now provenance.Clock) dag.StepFunc {
	return func() (dag.State, error) {
		if atomicio.UpToDate(rp.Confounds, []string{rp.MotionParams, rp.Denoised}) {
			return dag.StateOK, nil
		}

		v, err := nifti.Read(rp.Denoised)
		if err != nil {
			return dag.StateFailedFatal, fmt.Errorf("steps: confounds: read %s: %w", rp.Denoised, err)
		}

		cropFrom, cropTo, err := cropBounds(rp)
		if err != nil {
			return dag.StateFailedFatal, err
		}

		params, fellBack, err := readMotionParamsTSV(rp.MotionParams, v.NT)
		if err != nil {
			return dag.StateFailedFatal, err
		}

		fd := confounds.FramewiseDisplacement(params)
		mask := confounds.DefaultDVARSMask(v)
		dvars := confounds.DVARS(v, mask)

		censorCfg := confounds.CensorConfig{
			FDThreshMM:    cfg.Options.Censor.FDThreshMM,
			DVARSThresh:   cfg.Options.Censor.DVARSThresh,
			PadVols:       cfg.Options.Censor.PadVols,
			MinContigVols: cfg.Options.Censor.MinContigVols,
		}
		var censorResult confounds.CensorResult
		if cfg.Options.Censor.Enable {
			censorResult = confounds.Censor(fd, dvars, censorCfg)
		} else {
			censorResult = confounds.CensorResult{FrameCensor: make([]int, v.NT), Kept: v.NT}
		}

		byTissue := map[string]confounds.TissueResult{}
		if cfg.Options.ACompCor.Enable && cfg.Options.Masks.Enable && cfg.Options.Masks.Source != "none" {
			seg := adapter.New("segmentation", 10*time.Minute)
			for _, tissue := range cfg.Options.ACompCor.Tissues {
				tmask, err := tissueMask(seg, cfg, r, rp, tissue, v, now)
				if err != nil {
					return dag.StateFailedFatal, err
				}
				byTissue[tissue] = confounds.ACompCor(v, tmask, r.RepetitionTime, confounds.ACompCorConfig{
					NComponents: cfg.Options.ACompCor.NComponentsPerTissue,
					HighpassHz:  cfg.Options.ACompCor.HighpassHz,
					Detrend:     cfg.Options.ACompCor.Detrend,
					Standardize: cfg.Options.ACompCor.Standardize,
				})
			}
		}

		frame := confounds.Frame{
			FD:          fd,
			DVARS:       dvars,
			FrameCensor: censorResult.FrameCensor,
			Tissues:     cfg.Options.ACompCor.Tissues,
			ByTissue:    byTissue,
		}
		if err := confounds.WriteTSV(rp.Confounds, frame); err != nil {
			return dag.StateFailedFatal, err
		}

		acompDesc := make(map[string]confounds.TissueDescriptor, len(byTissue))
		for tissue, tr := range byTissue {
			acompDesc[tissue] = confounds.TissueDescriptor{NComponents: tr.NComponents, ExplainedVariance: tr.ExplainedVariance}
		}
		desc := confounds.Descriptor{
			Sources:               []string{rp.MotionParams, rp.Denoised},
			FDMethod:              "power",
			DVARSMethod:           "standard",
			SamplingPeriodSeconds: r.RepetitionTime,
			CropFrom:              cropFrom,
			CropTo:                cropTo,
			CensorConfig:          censorCfg,
			Kept:                  censorResult.Kept,
			Censored:              censorResult.Censored,
			ACompCor:              acompDesc,
		}
		if fellBack {
			desc.FDSource = "fallback_zeros"
		}
		if err := confounds.WriteDescriptor(descriptorPath(rp.Confounds), desc); err != nil {
			return dag.StateFailedFatal, err
		}
		return dag.StateOK, nil
	}
}

func descriptorPath(confoundsTSVPath string) string { return confoundsTSVPath + ".json" }
