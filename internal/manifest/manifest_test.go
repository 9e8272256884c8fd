package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeFakeImage(t *testing.T, dir, name string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte("fake"), 0o644))
	return p
}

func TestNewOrdersDeterministically(t *testing.T) {
	dir := t.TempDir()
	img := writeFakeImage(t, dir, "img.nii")

	runs := []Run{
		{Subject: "02", Task: "rest", RunID: "01", ImagePath: img},
		{Subject: "01", Task: "rest", RunID: "02", ImagePath: img},
		{Subject: "01", Task: "rest", RunID: "01", ImagePath: img},
	}
	m, err := New(runs, nil)
	require.NoError(t, err)
	require.Equal(t, "01", m.Runs[0].Subject)
	require.Equal(t, "01", m.Runs[0].RunID)
	require.Equal(t, "01", m.Runs[1].Subject)
	require.Equal(t, "02", m.Runs[1].RunID)
	require.Equal(t, "02", m.Runs[2].Subject)
}

func TestNewRejectsDuplicateTuples(t *testing.T) {
	dir := t.TempDir()
	img := writeFakeImage(t, dir, "img.nii")
	runs := []Run{
		{Subject: "01", Task: "rest", RunID: "01", ImagePath: img},
		{Subject: "01", Task: "rest", RunID: "01", ImagePath: img},
	}
	_, err := New(runs, nil)
	require.Error(t, err)
}

func TestNewRejectsMissingImage(t *testing.T) {
	runs := []Run{
		{Subject: "01", Task: "rest", RunID: "01", ImagePath: "/does/not/exist.nii"},
	}
	_, err := New(runs, nil)
	require.Error(t, err)
}

func TestCSVRoundTrip(t *testing.T) {
	dir := t.TempDir()
	img := writeFakeImage(t, dir, "img.nii")
	runs := []Run{
		{Subject: "01", Task: "rest", RunID: "01", ImagePath: img, RepetitionTime: 2.5, VolumeCount: 120, VoxelSizeMM: [3]float64{1, 1, 1}},
	}
	m, err := New(runs, nil)
	require.NoError(t, err)

	csvPath := filepath.Join(dir, "manifest.csv")
	require.NoError(t, WriteCSV(csvPath, m))

	loaded, err := LoadCSV(csvPath)
	require.NoError(t, err)
	require.Len(t, loaded.Runs, 1)
	require.Equal(t, m.Runs[0].Subject, loaded.Runs[0].Subject)
	require.Equal(t, m.Runs[0].RepetitionTime, loaded.Runs[0].RepetitionTime)
	require.Equal(t, m.Runs[0].VolumeCount, loaded.Runs[0].VolumeCount)
}

func TestLoadAnatomicalsCSVReadsRows(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "anatomicals.csv")
	require.NoError(t, os.WriteFile(path, []byte("subject,image_path\n01,/data/sub-01_T2w.nii\n"), 0o644))

	anat, err := LoadAnatomicalsCSV(path)
	require.NoError(t, err)
	require.Equal(t, []Anatomical{{Subject: "01", ImagePath: "/data/sub-01_T2w.nii"}}, anat)
}

func TestLoadAnatomicalsCSVMissingFileIsNotAnError(t *testing.T) {
	anat, err := LoadAnatomicalsCSV(filepath.Join(t.TempDir(), "nope.csv"))
	require.NoError(t, err)
	require.Nil(t, anat)
}
