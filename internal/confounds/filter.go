package confounds

import "math"

// biquadHighpass is a second-order Butterworth high-pass filter
// (Q = 1/sqrt(2)) designed via the standard bilinear-transform
// coefficients, applied forward then backward for zero phase. spec
// section 4.2 names "a stable biquad/Butterworth design" without
// fixing the order; this is the resolved choice (see DESIGN.md).
type biquadHighpass struct {
	b0, b1, b2 float64
	a1, a2     float64
}

// newBiquadHighpass designs a high-pass biquad for cutoff (Hz) given
// the sampling rate fs (Hz, i.e. 1/TR). Returns ok=false if the
// cutoff is not meaningfully below the Nyquist frequency, in which
// case the caller should skip filtering rather than apply a
// degenerate design.
func newBiquadHighpass(cutoffHz, fs float64) (biquadHighpass, bool) {
	if cutoffHz <= 0 || fs <= 0 || cutoffHz >= fs/2 {
		return biquadHighpass{}, false
	}
	const q = 0.7071067811865476 // 1/sqrt(2): maximally flat (Butterworth) response

	omega := 2 * math.Pi * cutoffHz / fs
	sinW, cosW := math.Sin(omega), math.Cos(omega)
	alpha := sinW / (2 * q)

	b0 := (1 + cosW) / 2
	b1 := -(1 + cosW)
	b2 := (1 + cosW) / 2
	a0 := 1 + alpha
	a1 := -2 * cosW
	a2 := 1 - alpha

	return biquadHighpass{
		b0: b0 / a0, b1: b1 / a0, b2: b2 / a0,
		a1: a1 / a0, a2: a2 / a0,
	}, true
}

// apply runs the biquad over x once, direct-form-II transposed.
func (f biquadHighpass) apply(x []float64) []float64 {
	out := make([]float64, len(x))
	var z1, z2 float64
	for i, v := range x {
		y := f.b0*v + z1
		z1 = f.b1*v + z2 - f.a1*y
		z2 = f.b2*v - f.a2*y
		out[i] = y
	}
	return out
}

// reversed returns a new slice with x's elements in reverse order.
func reversed(x []float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		out[len(x)-1-i] = v
	}
	return out
}

// highpassZeroPhase forward-backward filters x through a Butterworth
// high-pass biquad at cutoffHz given sampling rate fs, for zero phase
// distortion. Returns x unchanged if the cutoff can't be designed
// (too close to or above Nyquist) or the series is too short to
// filter meaningfully.
func highpassZeroPhase(x []float64, cutoffHz, fs float64) []float64 {
	if len(x) < 4 {
		return append([]float64(nil), x...)
	}
	f, ok := newBiquadHighpass(cutoffHz, fs)
	if !ok {
		return append([]float64(nil), x...)
	}
	forward := f.apply(x)
	backward := f.apply(reversed(forward))
	return reversed(backward)
}
