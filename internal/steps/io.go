package steps

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spineprep/spineprep/internal/adapter"
	"github.com/spineprep/spineprep/internal/atomicio"
	"github.com/spineprep/spineprep/internal/config"
	"github.com/spineprep/spineprep/internal/confounds"
	"github.com/spineprep/spineprep/internal/crop"
	"github.com/spineprep/spineprep/internal/manifest"
	"github.com/spineprep/spineprep/internal/nifti"
	"github.com/spineprep/spineprep/internal/provenance"
)

// identityMatrix is the 4x4 identity, written in plain row-major text
// as the registration adapter's fallback transform when the
// template-registration tool is unavailable: every downstream warp
// becomes a no-op rather than an error.
const identityMatrix = "1 0 0 0\n0 1 0 0\n0 0 1 0\n0 0 0 1\n"

func writeIdentityXfm(path string) error {
	return atomicio.WriteFile(path, []byte(identityMatrix), 0o644)
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("steps: copy %s: %w", src, err)
	}
	return atomicio.WriteFile(dst, data, 0o644)
}

// tissueMask resolves the boolean mask ACompCor extracts tissue over,
// per options.masks.source: "provided" reads an existing mask file at
// rp.Masks[tissue] (an all-false mask if absent), "tool" invokes the
// segmentation adapter, with an all-false mask as its
// tool-unavailable fallback output.
func tissueMask(seg *adapter.Adapter, cfg config.Config, r manifest.Run, rp RunPaths, tissue string, v *nifti.Volume4D, now provenance.Clock) ([]bool, error) {
	maskPath, ok := rp.Masks[tissue]
	if !ok {
		return make([]bool, v.VoxelsPerVolume()), nil
	}

	if cfg.Options.Masks.Source == "tool" {
		fallback := func() error { return nifti.Write(maskPath, nifti.NewVolume4D(v.NX, v.NY, v.NZ, 1)) }
		// Run's error on tool unavailability/failure is not propagated:
		// the fallback it invoked already wrote an all-false mask, which
		// readBinaryMask below reads as a legitimate degenerate output.
		_, _ = seg.Run(context.Background(),
			adapter.Request{Binary: "spineprep-segment", Args: []string{"--tissue", tissue, "--input", rp.Denoised, "--output", maskPath}},
			maskPath, []string{rp.Denoised}, map[string]any{"subject": r.Subject, "run": r.RunID, "tissue": tissue}, fallback, now)
	}

	return readBinaryMask(maskPath, v.VoxelsPerVolume(), cfg.Options.Masks.BinarizeThr)
}

// readBinaryMask reads a single-volume NIfTI mask and binarizes it at
// thr. A missing or unreadable file degrades to an all-false mask
// rather than erroring, matching the adapter's own tool-unavailable
// degradation.
func readBinaryMask(path string, voxPerVol int, thr float64) ([]bool, error) {
	m, err := nifti.Read(path)
	if err != nil {
		return make([]bool, voxPerVol), nil
	}
	vol := m.Volume(0)
	mask := make([]bool, len(vol))
	for i, x := range vol {
		mask[i] = nifti.IsFinite(x) && float64(x) > thr
	}
	return mask, nil
}

// cropBounds reads the crop sidecar rp records, returning the
// surviving [from, to) volume range over the raw image.
func cropBounds(rp RunPaths) (from, to int, err error) {
	v, err := nifti.Read(rp.Raw)
	if err != nil {
		return 0, 0, fmt.Errorf("steps: read %s for crop bounds: %w", rp.Raw, err)
	}
	sc, err := crop.Read(rp.CropSidecar, v.NT)
	if err != nil {
		return 0, 0, err
	}
	return sc.From, sc.To, nil
}

// croppedVolumeCount reads the crop sidecar rp records and returns
// the surviving (to-from) volume count, used by downstream stages that
// need the post-crop shape. It reads the raw image header and data via
// cropBounds.
func croppedVolumeCount(rp RunPaths) (int, error) {
	from, to, err := cropBounds(rp)
	if err != nil {
		return 0, err
	}
	return to - from, nil
}

// copyThrough writes rp.Raw's crop-sidecar-bounded volumes to
// rp.Denoised unchanged, the whole-image copy-through fallback spec section 4.4
// names when a denoising tool is unavailable.
func copyThrough(rp RunPaths) error {
	v, err := nifti.Read(rp.Raw)
	if err != nil {
		return fmt.Errorf("steps: copy-through: read %s: %w", rp.Raw, err)
	}
	from, to, err := cropBounds(rp)
	if err != nil {
		return err
	}
	return nifti.Write(rp.Denoised, v.Crop(from, to))
}

// readMotionParamsTSV reads the table motion.WriteParamsTSV wrote,
// padding/truncating to nvols rows with zeros if the file is short or
// missing, mirroring the coordinator's own "always emit the right
// shape" guarantee. fellBack reports whether path did not exist at
// all, so the caller can record fd_source=fallback_zeros rather than
// silently attributing FD to a motion table that was never read.
func readMotionParamsTSV(path string, nvols int) (params confounds.MotionParams, fellBack bool, err error) {
	params = confounds.ZeroMotionParams(nvols)

	f, openErr := os.Open(path)
	if openErr != nil {
		return params, true, nil
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Scan() // header
	row := 0
	for sc.Scan() && row < nvols {
		fields := strings.Split(sc.Text(), "\t")
		if len(fields) != 6 {
			continue
		}
		vals := make([]float64, 6)
		for i, fld := range fields {
			v, err := strconv.ParseFloat(fld, 64)
			if err != nil {
				continue
			}
			vals[i] = v
		}
		params.TransX[row], params.TransY[row], params.TransZ[row] = vals[0], vals[1], vals[2]
		params.RotX[row], params.RotY[row], params.RotZ[row] = vals[3], vals[4], vals[5]
		row++
	}
	return params, false, nil
}
