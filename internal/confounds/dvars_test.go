package confounds

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spineprep/spineprep/internal/nifti"
)

func TestDVARSFirstIsZero(t *testing.T) {
	v := nifti.NewVolume4D(2, 2, 1, 3)
	for tt := 0; tt < 3; tt++ {
		vol := v.Volume(tt)
		for i := range vol {
			vol[i] = float32(tt)
		}
	}
	mask := DefaultDVARSMask(v)
	d := DVARS(v, mask)
	require.Equal(t, 0.0, d[0])
	require.InDelta(t, 1.0, d[1], 1e-6)
	require.InDelta(t, 1.0, d[2], 1e-6)
}

func TestDefaultDVARSMaskAboveMedian(t *testing.T) {
	v := nifti.NewVolume4D(4, 1, 1, 1)
	vol := v.Volume(0)
	vol[0], vol[1], vol[2], vol[3] = 1, 2, 3, 4

	mask := DefaultDVARSMask(v)
	require.Equal(t, DVARSMask{false, false, true, true}, mask)
}

func TestDVARSWithExplicitMask(t *testing.T) {
	v := nifti.NewVolume4D(2, 1, 1, 2)
	v.Volume(0)[0], v.Volume(0)[1] = 1, 100
	v.Volume(1)[0], v.Volume(1)[1] = 3, 999

	mask := DVARSMask{true, false}
	d := DVARS(v, mask)
	require.InDelta(t, 2.0, d[1], 1e-6)
}
