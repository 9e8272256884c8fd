package adapter

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spineprep/spineprep/internal/atomicio"
)

func fixedClock() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

func TestRunFallsBackWhenBinaryUnavailable(t *testing.T) {
	a := New("segmentation", time.Second)
	output := filepath.Join(t.TempDir(), "sub-01_desc-seg_mask.nii")

	var placeholderRan bool
	fallback := func() error {
		placeholderRan = true
		return atomicio.WriteFile(output, []byte("placeholder"), 0o644)
	}

	_, err := a.Run(context.Background(), Request{Binary: "spineprep-definitely-not-a-real-binary"}, output, nil, nil, fallback, fixedClock)
	require.Error(t, err)
	require.True(t, placeholderRan)
	require.True(t, atomicio.MarkerExists(output, ".skip"))
	require.False(t, atomicio.MarkerExists(output, ".ok"))
}

func TestRunSucceedsWithRealBinary(t *testing.T) {
	a := New("probe", 5*time.Second)
	output := filepath.Join(t.TempDir(), "sub-01_desc-probe_bold.nii")

	fallback := func() error { return atomicio.WriteFile(output, []byte("placeholder"), 0o644) }

	_, err := a.Run(context.Background(), Request{Binary: "true"}, output, []string{"in.nii"}, map[string]any{"k": "v"}, fallback, fixedClock)
	require.NoError(t, err)
	require.True(t, atomicio.MarkerExists(output, ".ok"))
}

func TestRunIsIdempotentOnExistingOutput(t *testing.T) {
	a := New("probe", 5*time.Second)
	dir := t.TempDir()
	input := filepath.Join(dir, "in.nii")
	output := filepath.Join(dir, "sub-01_desc-probe_bold.nii")
	require.NoError(t, atomicio.WriteFile(input, []byte("in"), 0o644))
	require.NoError(t, atomicio.WriteFile(output, []byte("already done"), 0o644))

	var ran bool
	fallback := func() error { ran = true; return nil }

	_, err := a.Run(context.Background(), Request{Binary: "spineprep-definitely-not-a-real-binary"}, output, []string{input}, nil, fallback, fixedClock)
	require.NoError(t, err)
	require.False(t, ran, "pre-check must short-circuit before the fallback/binary path runs")
	require.False(t, atomicio.MarkerExists(output, ".ok"), "idempotence short-circuit should not rewrite markers either")
}
