package confounds

import (
	"math"
	"sort"

	"github.com/spineprep/spineprep/internal/nifti"
)

// DVARSMask selects which voxels DVARS is computed over. A nil mask
// means the whole field of view; callers without a mask of their own
// build the median default with DefaultDVARSMask.
type DVARSMask []bool

// DefaultDVARSMask builds the fallback mask spec section 4.2 names
// when no mask is supplied: voxels above the median of the first
// volume. When that selects no voxel (e.g. a constant first volume),
// it returns nil, so DVARS falls back to the whole field of view. The
// precedence is therefore: a caller-provided mask, then this median
// default, then the whole field of view.
func DefaultDVARSMask(v *nifti.Volume4D) DVARSMask {
	first := v.Volume(0)
	vals := make([]float64, 0, len(first))
	for _, x := range first {
		if nifti.IsFinite(x) {
			vals = append(vals, float64(x))
		}
	}
	if len(vals) == 0 {
		return make(DVARSMask, len(first))
	}
	median := medianOf(vals)

	mask := make(DVARSMask, len(first))
	selected := 0
	for i, x := range first {
		mask[i] = nifti.IsFinite(x) && float64(x) > median
		if mask[i] {
			selected++
		}
	}
	if selected == 0 {
		return nil
	}
	return mask
}

func medianOf(vals []float64) float64 {
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// DVARS computes the volumewise RMS temporal difference over mask
// (or the whole field of view if mask is nil), restricted to finite
// voxels, per spec section 4.2. DVARS_0 = 0.
func DVARS(v *nifti.Volume4D, mask DVARSMask) []float64 {
	n := v.NT
	out := make([]float64, n)
	if n == 0 {
		return out
	}
	voxPerVol := v.VoxelsPerVolume()

	indices := make([]int, 0, voxPerVol)
	for i := 0; i < voxPerVol; i++ {
		if mask == nil || (i < len(mask) && mask[i]) {
			indices = append(indices, i)
		}
	}
	if len(indices) == 0 {
		return out
	}

	for t := 1; t < n; t++ {
		prev, cur := v.Volume(t-1), v.Volume(t)
		var sumSq float64
		var count int
		for _, idx := range indices {
			a, b := prev[idx], cur[idx]
			if !nifti.IsFinite(a) || !nifti.IsFinite(b) {
				continue
			}
			d := float64(b) - float64(a)
			sumSq += d * d
			count++
		}
		if count == 0 {
			out[t] = 0
			continue
		}
		out[t] = math.Sqrt(sumSq / float64(count))
	}
	return out
}
