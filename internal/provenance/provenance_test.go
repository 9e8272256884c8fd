package provenance

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func fixedClock() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

func TestWriteReadRoundTrip(t *testing.T) {
	artifact := filepath.Join(t.TempDir(), "sub-01_desc-motion_bold.tsv")
	rec := New(fixedClock, "motion", artifact, []string{"sub-01_bold.nii"}, map[string]any{"engine": "rigid-3d"}, map[string]string{"rigid3d": "1.2.3"}, "ok", "")

	require.NoError(t, Write(rec))

	got, err := Read(artifact)
	require.NoError(t, err)
	require.Equal(t, "motion", got.Step)
	require.Equal(t, "ok", got.Status)
	require.Equal(t, "2026-01-02T03:04:05Z", got.Timestamp)
	require.Equal(t, "rigid-3d", got.Params["engine"])
}

func TestReadMissingSidecar(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "nope.tsv"))
	require.Error(t, err)
}
