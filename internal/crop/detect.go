package crop

import (
	"sort"

	"github.com/spineprep/spineprep/internal/nifti"
)

// Config mirrors internal/config's options.temporal_crop recognized
// keys.
type Config struct {
	Enable       bool
	MaxTrimStart int
	MaxTrimEnd   int
	ZThresh      float64
}

// Detect implements spec section 4.3's robust-z temporal crop
// detector: per-volume mean within mask (or whole FOV), robust z via
// median/MAD, leading/trailing trim walks clamped to the configured
// maxima. Detection never errors; invalid or degenerate inputs
// produce a conservative no-crop or detection-failed sidecar instead.
func Detect(v *nifti.Volume4D, mask []bool, cfg Config) Sidecar {
	nvols := v.NT
	if nvols == 0 {
		return Sidecar{From: 0, To: 0, NVols: 0, Reason: ReasonDetectionFailed}
	}
	if !cfg.Enable {
		return Sidecar{From: 0, To: nvols, NVols: nvols, Reason: ReasonNoCrop}
	}

	means := perVolumeMeans(v, mask)
	median := medianOf(means)
	mad := medianAbsoluteDeviation(means, median)

	if mad == 0 {
		return Sidecar{From: 0, To: nvols, NVols: nvols, Reason: ReasonNoCrop}
	}

	z := make([]float64, nvols)
	for i, m := range means {
		z[i] = (m - median) / (1.4826 * mad)
	}

	from := 0
	for from < nvols && absf(z[from]) > cfg.ZThresh {
		from++
	}
	if cfg.MaxTrimStart >= 0 && from > cfg.MaxTrimStart {
		from = cfg.MaxTrimStart
	}

	to := nvols
	for to > from && absf(z[to-1]) > cfg.ZThresh {
		to--
	}
	trimmedEnd := nvols - to
	if cfg.MaxTrimEnd >= 0 && trimmedEnd > cfg.MaxTrimEnd {
		to = nvols - cfg.MaxTrimEnd
	}

	reason := ReasonRobustZ
	switch {
	case from == 0 && to == nvols:
		reason = ReasonNoCrop
	case mask == nil:
		// Detection ran over the whole field of view rather than a
		// cord/brain mask: a real trim was still found, but the
		// decision is weaker than a masked robust-z detection would
		// be, so it gets its own reason rather than ReasonRobustZ.
		reason = ReasonFallbackNoMask
	}

	from, to = clamp(from, to, nvols)
	if from > to {
		return Sidecar{From: 0, To: nvols, NVols: nvols, Reason: ReasonOutOfBoundsClamped}
	}

	return Sidecar{From: from, To: to, NVols: nvols, Reason: reason}
}

func clamp(from, to, nvols int) (int, int) {
	if from < 0 {
		from = 0
	}
	if to > nvols {
		to = nvols
	}
	if from > nvols {
		from = nvols
	}
	if to < 0 {
		to = 0
	}
	return from, to
}

func perVolumeMeans(v *nifti.Volume4D, mask []bool) []float64 {
	n := v.VoxelsPerVolume()
	var indices []int
	for i := 0; i < n; i++ {
		if mask == nil || (i < len(mask) && mask[i]) {
			indices = append(indices, i)
		}
	}
	if len(indices) == 0 {
		for i := 0; i < n; i++ {
			indices = append(indices, i)
		}
	}

	means := make([]float64, v.NT)
	for t := 0; t < v.NT; t++ {
		vol := v.Volume(t)
		var sum float64
		var count int
		for _, idx := range indices {
			if nifti.IsFinite(vol[idx]) {
				sum += float64(vol[idx])
				count++
			}
		}
		if count > 0 {
			means[t] = sum / float64(count)
		}
	}
	return means
}

func medianOf(vals []float64) float64 {
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func medianAbsoluteDeviation(vals []float64, median float64) float64 {
	devs := make([]float64, len(vals))
	for i, v := range vals {
		devs[i] = absf(v - median)
	}
	return medianOf(devs)
}

func absf(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
