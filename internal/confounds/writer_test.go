package confounds

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteTSVCanonicalColumnOrder(t *testing.T) {
	frame := Frame{
		FD:          []float64{0, 0.1},
		DVARS:       []float64{0, 1.2},
		FrameCensor: []int{0, 1},
		Tissues:     []string{"cord", "csf"},
		ByTissue: map[string]TissueResult{
			"cord": {NComponents: 1, Components: [][]float64{{0.5}, {0.6}}, ExplainedVariance: []float64{2.0}},
			"csf":  {NComponents: 0},
		},
	}

	path := filepath.Join(t.TempDir(), "confounds.tsv")
	require.NoError(t, WriteTSV(path, frame))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	require.Equal(t, "framewise_displacement\tdvars\tframe_censor\tacomp_cord_pc01", lines[0])
	require.Equal(t, "0.000000\t0.000000\t0\t0.500000", lines[1])
	require.Equal(t, "0.100000\t1.200000\t1\t0.600000", lines[2])
}

func TestWriteDescriptorRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "confounds_descriptor.json")
	d := Descriptor{
		Sources:  []string{"sub-01_bold.nii"},
		FDMethod: "power",
		Kept:     9, Censored: 1,
		ACompCor: map[string]TissueDescriptor{
			"cord": {NComponents: 2, ExplainedVariance: []float64{3.1, 1.2}},
		},
	}
	require.NoError(t, WriteDescriptor(path, d))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), `"fd_method": "power"`)
	require.Contains(t, string(data), `"n_components": 2`)
}
