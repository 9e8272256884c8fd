package lockfile

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAcquireThenReleaseAllowsReacquire(t *testing.T) {
	dir := t.TempDir()

	lock, err := Acquire(dir)
	require.NoError(t, err)
	require.NotEmpty(t, lock.Info.Token)
	require.Equal(t, os.Getpid(), lock.Info.PID)

	require.NoError(t, lock.Release())

	lock2, err := Acquire(dir)
	require.NoError(t, err)
	require.NotEqual(t, lock.Info.Token, lock2.Info.Token)
}

func TestAcquireTwiceFails(t *testing.T) {
	dir := t.TempDir()

	lock, err := Acquire(dir)
	require.NoError(t, err)
	defer lock.Release()

	_, err = Acquire(dir)
	require.Error(t, err)
}

func TestReadReturnsAcquiredInfo(t *testing.T) {
	dir := t.TempDir()
	lock, err := Acquire(dir)
	require.NoError(t, err)
	defer lock.Release()

	info, err := Read(dir)
	require.NoError(t, err)
	require.Equal(t, lock.Info.Token, info.Token)
}
