package confounds

import (
	"math"

	"github.com/spineprep/spineprep/internal/nifti"
	"github.com/spineprep/spineprep/internal/pca"
)

// ACompCorConfig mirrors internal/config's options.acompcor
// recognized keys for a single tissue extraction.
type ACompCorConfig struct {
	NComponents int
	HighpassHz  float64
	Detrend     bool
	Standardize bool
}

// TissueResult is one tissue's aCompCor outcome: component score
// columns (T x k) plus the explained-variance vector spec section
// 4.2 requires in the descriptor. NComponents is 0 when the mask was
// empty or the covariance matrix had rank zero.
type TissueResult struct {
	Components        [][]float64 // T x k, row-major: Components[t][c]
	ExplainedVariance []float64
	NComponents       int
}

// ACompCor implements spec section 4.2's per-tissue algorithm:
// extract the T x V_t matrix over mask voxels, optionally detrend,
// optionally high-pass filter, optionally standardize, then PCA with
// sign-normalized, deterministic components.
func ACompCor(v *nifti.Volume4D, mask []bool, trSeconds float64, cfg ACompCorConfig) TissueResult {
	t := v.NT
	var voxelIdx []int
	for i, in := range mask {
		if in {
			voxelIdx = append(voxelIdx, i)
		}
	}
	if len(voxelIdx) == 0 || t == 0 {
		return TissueResult{NComponents: 0}
	}

	matrix := make([][]float64, t)
	for tt := 0; tt < t; tt++ {
		vol := v.Volume(tt)
		row := make([]float64, len(voxelIdx))
		for j, idx := range voxelIdx {
			row[j] = float64(vol[idx])
		}
		matrix[tt] = row
	}

	columns := transpose(matrix)
	for c := range columns {
		if cfg.Detrend {
			columns[c] = linearDetrend(columns[c])
		}
		if cfg.HighpassHz > 0 && trSeconds > 0 {
			columns[c] = highpassZeroPhase(columns[c], cfg.HighpassHz, 1/trSeconds)
		}
		if cfg.Standardize {
			columns[c] = standardize(columns[c])
		}
	}
	matrix = transpose(columns)

	result, err := pca.Fit(matrix, cfg.NComponents)
	if err != nil || len(result.Components) == 0 {
		return TissueResult{NComponents: 0}
	}

	return TissueResult{
		Components:        result.Scores,
		ExplainedVariance: result.ExplainedVariance,
		NComponents:       len(result.Components),
	}
}

func transpose(m [][]float64) [][]float64 {
	if len(m) == 0 {
		return nil
	}
	rows, cols := len(m), len(m[0])
	out := make([][]float64, cols)
	for c := 0; c < cols; c++ {
		out[c] = make([]float64, rows)
		for r := 0; r < rows; r++ {
			out[c][r] = m[r][c]
		}
	}
	return out
}

// linearDetrend subtracts the best-fit line (ordinary least squares
// against the sample index) from x.
func linearDetrend(x []float64) []float64 {
	n := len(x)
	if n < 2 {
		return append([]float64(nil), x...)
	}
	var sumT, sumY, sumTT, sumTY float64
	for i, y := range x {
		t := float64(i)
		sumT += t
		sumY += y
		sumTT += t * t
		sumTY += t * y
	}
	nf := float64(n)
	denom := nf*sumTT - sumT*sumT
	out := make([]float64, n)
	if math.Abs(denom) < 1e-12 {
		mean := sumY / nf
		for i := range x {
			out[i] = x[i] - mean
		}
		return out
	}
	slope := (nf*sumTY - sumT*sumY) / denom
	intercept := (sumY - slope*sumT) / nf
	for i, y := range x {
		out[i] = y - (slope*float64(i) + intercept)
	}
	return out
}

// standardize z-scores x (zero mean, unit variance). A near-zero
// standard deviation leaves x mean-centered rather than dividing by
// ~0.
func standardize(x []float64) []float64 {
	n := len(x)
	if n == 0 {
		return x
	}
	var sum float64
	for _, v := range x {
		sum += v
	}
	mean := sum / float64(n)

	var sumSq float64
	for _, v := range x {
		d := v - mean
		sumSq += d * d
	}
	std := math.Sqrt(sumSq / float64(n))

	out := make([]float64, n)
	if std < 1e-12 {
		for i, v := range x {
			out[i] = v - mean
		}
		return out
	}
	for i, v := range x {
		out[i] = (v - mean) / std
	}
	return out
}
