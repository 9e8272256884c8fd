package observability

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/require"
)

func TestInitLoggerWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spineprep.log")
	InitLogger(path, "debug")
	defer InitLogger("", "info")

	require.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())

	log.Logger.Info().Msg("hello")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "hello")
}

func TestInitLoggerParsesWarningAlias(t *testing.T) {
	InitLogger("", "warning")
	defer InitLogger("", "info")
	require.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())
}
