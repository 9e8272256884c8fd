package steps

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spineprep/spineprep/internal/config"
	"github.com/spineprep/spineprep/internal/dag"
	"github.com/spineprep/spineprep/internal/manifest"
	"github.com/spineprep/spineprep/internal/nifti"
)

func fixedClock() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }

func newRawImage(t *testing.T, nt int) string {
	t.Helper()
	v := nifti.NewVolume4D(2, 2, 2, nt)
	v.TR = 1.0
	for i := range v.Data {
		v.Data[i] = float32(i%7) + 1
	}
	path := filepath.Join(t.TempDir(), "sub-01_task-rest_run-01_bold.nii")
	require.NoError(t, nifti.Write(path, v))
	return path
}

func testRun(imagePath string, nt int) manifest.Run {
	return manifest.Run{
		Subject: "01", Task: "rest", RunID: "01",
		ImagePath: imagePath, RepetitionTime: 1.0, VolumeCount: nt,
	}
}

func TestBuildRunExecutesAllFourStagesWithoutExternalTools(t *testing.T) {
	derivRoot := t.TempDir()
	nt := 8
	run := testRun(newRawImage(t, nt), nt)

	rp, err := ComposeRunPaths(derivRoot, run)
	require.NoError(t, err)

	cfg := config.Default()
	p := dag.NewPlanner()
	BuildRun(p, cfg, run, rp, derivRoot, fixedClock)

	g, err := p.Build()
	require.NoError(t, err)
	require.Len(t, g.Steps, 4)

	results := dag.Execute(context.Background(), g, dag.ModeRun, 2)
	for _, r := range results {
		require.NotEqual(t, dag.StateFailedFatal, r.State, "%s: %v", r.ID, r.Err)
	}

	require.FileExists(t, rp.CropSidecar+".crop.json")
	require.FileExists(t, rp.Denoised)
	require.FileExists(t, rp.MotionParams)
	require.FileExists(t, rp.Confounds)
	require.FileExists(t, descriptorPath(rp.Confounds))

	data, err := os.ReadFile(rp.Confounds)
	require.NoError(t, err)
	require.Contains(t, string(data), "framewise_displacement\tdvars\tframe_censor")
}

func TestBuildRunWiresMaskWarpWhenRegistrationEnabled(t *testing.T) {
	derivRoot := t.TempDir()
	nt := 6
	run := testRun(newRawImage(t, nt), nt)

	rp, err := ComposeRunPaths(derivRoot, run)
	require.NoError(t, err)

	cfg := config.Default()
	cfg.Registration.Enable = true
	p := dag.NewPlanner()
	BuildRun(p, cfg, run, rp, derivRoot, fixedClock)

	g, err := p.Build()
	require.NoError(t, err)
	require.Len(t, g.Steps, 5)

	found := false
	for _, s := range g.Steps {
		if s.ID.Stage == dag.StageMaskWarp {
			found = true
		}
	}
	require.True(t, found)
}

func TestBuildSubjectRegistrationFallsBackToIdentity(t *testing.T) {
	derivRoot := t.TempDir()
	anatPath := filepath.Join(t.TempDir(), "sub-01_T2w.nii")
	require.NoError(t, nifti.Write(anatPath, nifti.NewVolume4D(2, 2, 2, 1)))

	p := dag.NewPlanner()
	BuildSubjectRegistration(p, derivRoot, manifest.Anatomical{Subject: "01", ImagePath: anatPath}, fixedClock)
	g, err := p.Build()
	require.NoError(t, err)

	results := dag.Execute(context.Background(), g, dag.ModeRun, 1)
	require.Len(t, results, 1)
	require.NotEqual(t, dag.StateFailedFatal, results[0].State)

	out := xfmPath(derivRoot, manifest.Run{Subject: "01"})
	require.FileExists(t, out)
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Contains(t, string(data), "1 0 0 0")
}
