// Package confounds implements the confounds engine (spec section
// 4.2): framewise displacement, DVARS, contiguity-aware censoring,
// and aCompCor, emitted as a canonical-column TSV plus a JSON
// descriptor.
package confounds

// rotationRadiusMM is the r = 50 mm constant the Power FD formula
// multiplies rotations by.
const rotationRadiusMM = 50.0

// MotionParams is a T x 6 table: three translations in millimeters
// then three rotations in radians, one row per post-crop volume.
type MotionParams struct {
	TransX, TransY, TransZ []float64
	RotX, RotY, RotZ       []float64
}

// Len reports the number of volumes (rows) in p.
func (p MotionParams) Len() int { return len(p.TransX) }

// ZeroMotionParams returns a T-row table of all zeros, the fallback
// spec section 4.2 names when the motion table is missing.
func ZeroMotionParams(t int) MotionParams {
	return MotionParams{
		TransX: make([]float64, t), TransY: make([]float64, t), TransZ: make([]float64, t),
		RotX: make([]float64, t), RotY: make([]float64, t), RotZ: make([]float64, t),
	}
}

// FramewiseDisplacement computes Power-method FD for each volume:
// FD_t = |Δtx| + |Δty| + |Δtz| + r·(|Δrx| + |Δry| + |Δrz|), FD_0 = 0.
func FramewiseDisplacement(p MotionParams) []float64 {
	t := p.Len()
	fd := make([]float64, t)
	for i := 1; i < t; i++ {
		fd[i] = absf(p.TransX[i]-p.TransX[i-1]) +
			absf(p.TransY[i]-p.TransY[i-1]) +
			absf(p.TransZ[i]-p.TransZ[i-1]) +
			rotationRadiusMM*(absf(p.RotX[i]-p.RotX[i-1])+
				absf(p.RotY[i]-p.RotY[i-1])+
				absf(p.RotZ[i]-p.RotZ[i-1]))
	}
	return fd
}

func absf(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}
