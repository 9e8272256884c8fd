package motion

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spineprep/spineprep/internal/adapter"
)

func noToolsCoordinator() *Coordinator {
	return &Coordinator{
		SliceWiseTool: adapter.New("slice-motion", time.Second),
		VolumeTool:    adapter.New("volume-motion", time.Second),
	}
}

func TestRunSliceWiseSkipsWhenToolMissing(t *testing.T) {
	c := noToolsCoordinator()
	output := filepath.Join(t.TempDir(), "sub-01_desc-motion_bold.tsv")

	params, meta, err := c.Run(context.Background(), EngineSliceWise, "z", 5, output, nil)
	require.NoError(t, err)
	require.Equal(t, StatusSkippedMissingTools, meta.Status)
	require.Equal(t, 5, params.Len())
	for _, v := range params.TransX {
		require.Equal(t, 0.0, v)
	}
}

func TestRunRigid3DFallsBackToCopyThrough(t *testing.T) {
	c := noToolsCoordinator()
	output := filepath.Join(t.TempDir(), "sub-01_desc-motion_bold.tsv")

	params, meta, err := c.Run(context.Background(), EngineRigid3D, "", 4, output, nil)
	require.NoError(t, err)
	require.Equal(t, StatusFallbackCopy, meta.Status)
	require.Equal(t, 4, params.Len())
}

func TestRunHybridFallsBackToRigid3DWhenSliceWiseMissing(t *testing.T) {
	c := noToolsCoordinator()
	output := filepath.Join(t.TempDir(), "sub-01_desc-motion_bold.tsv")

	params, meta, err := c.Run(context.Background(), EngineHybrid, "z", 6, output, nil)
	require.NoError(t, err)
	require.Equal(t, EngineHybrid, meta.Engine)
	require.Equal(t, 6, params.Len())
}

func TestRunGroupedIsSliceWiseOverTheGroup(t *testing.T) {
	c := noToolsCoordinator()
	output := filepath.Join(t.TempDir(), "sub-01_desc-motion_bold.tsv")

	params, meta, err := c.Run(context.Background(), EngineGrouped, "z", 3, output, nil)
	require.NoError(t, err)
	require.Equal(t, StatusSkippedMissingTools, meta.Status)
	require.Equal(t, 3, params.Len())
}

func TestRunAlwaysEmitsSixColumnTableOfPostCropLength(t *testing.T) {
	c := noToolsCoordinator()
	for _, eng := range []Engine{EngineSliceWise, EngineRigid3D, EngineHybrid, EngineGrouped} {
		output := filepath.Join(t.TempDir(), "bold.tsv")
		params, _, err := c.Run(context.Background(), eng, "z", 7, output, nil)
		require.NoError(t, err)
		require.Equal(t, 7, params.Len())
		require.Len(t, params.RotZ, 7)
	}
}
