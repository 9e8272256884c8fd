package resources

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWorkerCountPrefersConfigured(t *testing.T) {
	require.Equal(t, 5, WorkerCount(5))
	require.Equal(t, 1, WorkerCount(1))
}

func TestWorkerCountAutoIsPositive(t *testing.T) {
	n := WorkerCount(0)
	require.GreaterOrEqual(t, n, 1)
	require.LessOrEqual(t, n, runtime.NumCPU())
}

func TestWorkerCountNegativeFallsBackToAuto(t *testing.T) {
	require.GreaterOrEqual(t, WorkerCount(-1), 1)
}
