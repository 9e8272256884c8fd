package atomicio

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteFileCreatesAndOverwrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "out.txt")

	require.NoError(t, WriteFile(path, []byte("first"), 0o644))
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "first", string(got))

	require.NoError(t, WriteFile(path, []byte("second"), 0o644))
	got, err = os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "second", string(got))

	// no stray temp files left behind
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestWriteLeavesNoPartialFileOnCallbackError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.txt")

	require.NoError(t, WriteFile(path, []byte("stable"), 0o644))

	boom := errors.New("boom")
	err := Write(path, 0o644, func(w io.Writer) error {
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "stable", string(got), "pre-existing content must survive a failed write")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "no temp file should remain")
}

func TestMarkers(t *testing.T) {
	dir := t.TempDir()
	artifact := filepath.Join(dir, "run-01_desc-motion_bold.tsv")
	require.NoError(t, os.WriteFile(artifact, []byte("x"), 0o644))

	require.False(t, MarkerExists(artifact, ".ok"))
	require.NoError(t, TouchMarker(artifact, ".ok"))
	require.True(t, MarkerExists(artifact, ".ok"))

	fi, err := os.Stat(artifact + ".ok")
	require.NoError(t, err)
	require.Equal(t, int64(0), fi.Size())
}
