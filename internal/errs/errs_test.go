package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindRecoverable(t *testing.T) {
	require.True(t, ToolUnavailable.Recoverable())
	require.True(t, ToolFailure.Recoverable())
	require.True(t, NumericalDegenerate.Recoverable())
	require.False(t, ConfigInvalid.Recoverable())
	require.False(t, MissingRequiredInput.Recoverable())
	require.False(t, AtomicCommitFailed.Recoverable())
}

func TestKindOfUnwraps(t *testing.T) {
	base := New(ToolUnavailable, "motion(run-01)", errors.New("slice-motion binary missing"))
	wrapped := fmt.Errorf("wrapping: %w", base)

	kind, ok := KindOf(wrapped)
	require.True(t, ok)
	require.Equal(t, ToolUnavailable, kind)

	_, ok = KindOf(errors.New("plain"))
	require.False(t, ok)
}
