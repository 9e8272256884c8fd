package pca

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func syntheticMatrix() [][]float64 {
	// T=6 samples, V=3 variables, with variable 0 carrying most of the variance.
	return [][]float64{
		{10, 1, 0.1},
		{-9, 0.5, -0.2},
		{8, -1, 0.3},
		{-11, 0.2, -0.1},
		{9.5, -0.3, 0.05},
		{-7.5, 0.6, -0.15},
	}
}

func TestFitIsDeterministic(t *testing.T) {
	x := syntheticMatrix()
	r1, err := Fit(x, 2)
	require.NoError(t, err)
	r2, err := Fit(x, 2)
	require.NoError(t, err)

	require.Equal(t, r1.Components, r2.Components)
	require.Equal(t, r1.ExplainedVariance, r2.ExplainedVariance)
	require.Equal(t, r1.Scores, r2.Scores)
}

func TestFitExplainedVarianceDescending(t *testing.T) {
	r, err := Fit(syntheticMatrix(), 3)
	require.NoError(t, err)
	require.True(t, len(r.ExplainedVariance) >= 2)
	for i := 1; i < len(r.ExplainedVariance); i++ {
		require.GreaterOrEqual(t, r.ExplainedVariance[i-1], r.ExplainedVariance[i])
	}
}

func TestFitSignNormalization(t *testing.T) {
	r, err := Fit(syntheticMatrix(), 1)
	require.NoError(t, err)
	require.Len(t, r.Components, 1)

	vec := r.Components[0]
	best := 0
	for i := 1; i < len(vec); i++ {
		if absf(vec[i]) > absf(vec[best]) {
			best = i
		}
	}
	require.GreaterOrEqual(t, vec[best], 0.0)
}

func absf(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

func TestFitEmptyMatrixReturnsZeroComponents(t *testing.T) {
	r, err := Fit(nil, 5)
	require.NoError(t, err)
	require.Empty(t, r.Components)
}

func TestFitRejectsJaggedInput(t *testing.T) {
	_, err := Fit([][]float64{{1, 2}, {1}}, 1)
	require.Error(t, err)
}
