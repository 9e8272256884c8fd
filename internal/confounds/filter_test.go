package confounds

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHighpassZeroPhaseRemovesConstantOffset(t *testing.T) {
	n := 200
	x := make([]float64, n)
	for i := range x {
		x[i] = 5.0 + math.Sin(2*math.Pi*0.2*float64(i))
	}
	out := highpassZeroPhase(x, 0.01, 1.0)

	var mean float64
	for _, v := range out[50:150] {
		mean += v
	}
	mean /= float64(len(out[50:150]))
	require.InDelta(t, 0, mean, 0.5)
}

func TestHighpassZeroPhasePassesThroughWhenCutoffInvalid(t *testing.T) {
	x := []float64{1, 2, 3, 4, 5}
	out := highpassZeroPhase(x, 10, 1.0) // cutoff above Nyquist
	require.Equal(t, x, out)
}

func TestHighpassZeroPhaseShortSeriesUnchanged(t *testing.T) {
	x := []float64{1, 2}
	out := highpassZeroPhase(x, 0.01, 1.0)
	require.Equal(t, x, out)
}
