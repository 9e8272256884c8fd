package motion

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spineprep/spineprep/internal/atomicio"
	"github.com/spineprep/spineprep/internal/confounds"
)

// WriteParamsTSV atomically writes params as a six-column
// translation/rotation table, the motion stage's primary output and
// the input the confounds stage reads FD from.
func WriteParamsTSV(path string, params confounds.MotionParams) error {
	return atomicio.Write(path, 0o644, func(w io.Writer) error {
		if _, err := fmt.Fprintln(w, "trans_x\ttrans_y\ttrans_z\trot_x\trot_y\trot_z"); err != nil {
			return err
		}
		for i := 0; i < params.Len(); i++ {
			if _, err := fmt.Fprintf(w, "%.6f\t%.6f\t%.6f\t%.6f\t%.6f\t%.6f\n",
				params.TransX[i], params.TransY[i], params.TransZ[i],
				params.RotX[i], params.RotY[i], params.RotZ[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// WriteMetadata atomically writes meta as the motion stage's JSON
// sidecar, recording engine, slice axis, and completion status.
func WriteMetadata(path string, meta Metadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("motion: marshal metadata: %w", err)
	}
	data = append(data, '\n')
	return atomicio.WriteFile(path, data, 0o644)
}

// MetadataPath derives the metadata sidecar path for a params TSV path.
func MetadataPath(paramsPath string) string { return paramsPath + ".meta.json" }

// ReadMetadata reads back the sidecar WriteMetadata wrote. It is the
// motion step's idempotence pre-check's source for which dag.State a
// cached (already up-to-date) run should report, since a prior SKIP
// must stay a SKIP rather than silently becoming OK on a second
// invocation.
func ReadMetadata(path string) (Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, err
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return Metadata{}, fmt.Errorf("motion: unmarshal metadata: %w", err)
	}
	return meta, nil
}
