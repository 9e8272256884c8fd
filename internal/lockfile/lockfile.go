// Package lockfile implements the derivatives-root lock file spec
// section 5 requires: "concurrent runs against the same derivatives
// root must be prevented by an external lock file." It is a plain
// os.OpenFile with O_EXCL, storing a uuid token and PID for
// diagnostics; stale-lock cleanup is the caller's responsibility and
// is deliberately not automated here.
package lockfile

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
)

const fileName = ".spineprep.lock"

// Info is what a lock file records: a unique token identifying this
// invocation, the acquiring process's PID, and when it was acquired.
type Info struct {
	Token     string    `json:"token"`
	PID       int       `json:"pid"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// Lock holds an acquired lock; call Release to remove it.
type Lock struct {
	path string
	Info Info
}

// Acquire creates the lock file under derivRoot, failing if one
// already exists. The caller owns deciding whether an existing lock
// is stale and should be removed before retrying.
func Acquire(derivRoot string) (*Lock, error) {
	path := derivRoot + string(os.PathSeparator) + fileName

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return nil, fmt.Errorf("lockfile: %s is already locked (another invocation may be running, or a stale lock needs manual removal): %w", derivRoot, err)
		}
		return nil, fmt.Errorf("lockfile: create %s: %w", path, err)
	}
	defer f.Close()

	info := Info{Token: uuid.New().String(), PID: os.Getpid(), AcquiredAt: time.Now().UTC()}
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("lockfile: marshal info: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("lockfile: write info: %w", err)
	}

	return &Lock{path: path, Info: info}, nil
}

// Release removes the lock file. It is a no-op error-wise if the file
// was already removed by someone else.
func (l *Lock) Release() error {
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("lockfile: release %s: %w", l.path, err)
	}
	return nil
}

// Read loads the lock info at derivRoot without acquiring it, for
// diagnostics (e.g. reporting who holds a stale lock).
func Read(derivRoot string) (Info, error) {
	path := derivRoot + string(os.PathSeparator) + fileName
	data, err := os.ReadFile(path)
	if err != nil {
		return Info{}, fmt.Errorf("lockfile: read %s: %w", path, err)
	}
	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		return Info{}, fmt.Errorf("lockfile: unmarshal %s: %w", path, err)
	}
	return info, nil
}
