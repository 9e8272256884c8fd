package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultValidates(t *testing.T) {
	require.NoError(t, Validate(Default()))
}

func TestLoadEmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, Default().Options.Motion.Engine, cfg.Options.Motion.Engine)
}

func TestLoadParsesRecognizedKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlBody := `
paths:
  bids_dir: /data/bids
  deriv_dir: /data/deriv
options:
  motion:
    engine: hybrid
    slice_axis: y
  censor:
    enable: false
registration:
  enable: false
workers: 3
`
	require.NoError(t, os.WriteFile(path, []byte(yamlBody), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/data/bids", cfg.Paths.BIDSDir)
	require.Equal(t, "hybrid", cfg.Options.Motion.Engine)
	require.Equal(t, "y", cfg.Options.Motion.SliceAxis)
	require.False(t, cfg.Options.Censor.Enable)
	require.False(t, cfg.Registration.Enable)
	require.Equal(t, 3, cfg.Workers)
}

func TestLoadRejectsUnknownEngine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("options:\n  motion:\n    engine: bogus\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestEnvOverrideWins(t *testing.T) {
	t.Setenv("SPINEPREP_LOG_LEVEL", "debug")
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "debug", cfg.LogLevel)
}
