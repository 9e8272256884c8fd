package paths

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestComposeBasic(t *testing.T) {
	e := Entity{Subject: "01", Session: "01", Task: "rest", Run: "01"}
	p, err := Compose("/deriv", e, "motion", SpaceNative, "tsv")
	require.NoError(t, err)
	require.Equal(t, "/deriv/sub-01/func/sub-01_ses-01_task-rest_run-01_desc-motion.tsv", p)
}

func TestComposeSpaceRendersOnlyWhenNonNative(t *testing.T) {
	e := Entity{Subject: "01", Task: "rest", Run: "01"}
	native, err := Compose("/deriv", e, "confounds", SpaceNative, "tsv")
	require.NoError(t, err)
	require.NotContains(t, native, "space-")

	pam50, err := Compose("/deriv", e, "confounds", SpacePAM50, "tsv")
	require.NoError(t, err)
	require.Contains(t, pam50, "space-PAM50")
}

func TestComposeXfmGoesUnderXfmDir(t *testing.T) {
	e := Entity{Subject: "02"}
	p, err := Compose("/deriv", e, "xfm-to-PAM50", SpaceNative, "h5")
	require.NoError(t, err)
	require.Contains(t, p, "/sub-02/xfm/")
}

func TestComposeRequiresSubjectAndDescriptor(t *testing.T) {
	_, err := Compose("/deriv", Entity{}, "motion", SpaceNative, "tsv")
	require.Error(t, err)

	_, err = Compose("/deriv", Entity{Subject: "01"}, "", SpaceNative, "tsv")
	require.Error(t, err)
}

func TestComposeInjective(t *testing.T) {
	seen := map[string]bool{}
	entities := []Entity{
		{Subject: "01", Run: "01"},
		{Subject: "01", Run: "02"},
		{Subject: "01", Session: "01", Run: "01"},
		{Subject: "02", Run: "01"},
	}
	for _, e := range entities {
		for _, d := range []string{"motion", "confounds"} {
			for _, sp := range []Space{SpaceNative, SpacePAM50} {
				p, err := Compose("/deriv", e, d, sp, "tsv")
				require.NoError(t, err)
				require.False(t, seen[p], "collision at %s", p)
				seen[p] = true
			}
		}
	}
}

func TestComposeIdempotent(t *testing.T) {
	e := Entity{Subject: "01", Run: "01"}
	a, err := Compose("/deriv", e, "motion", SpaceNative, "tsv")
	require.NoError(t, err)
	b, err := Compose("/deriv", e, "motion", SpaceNative, "tsv")
	require.NoError(t, err)
	require.Equal(t, a, b)
}
