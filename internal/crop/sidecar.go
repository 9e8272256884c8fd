// Package crop implements temporal-crop detection and the sidecar
// contract decoupling it from motion correction and confounds (spec
// section 4.3): the crop-detect step is the sole writer, downstream
// steps are read-only readers, and a missing sidecar defaults to
// "no-crop" rather than erroring.
package crop

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spineprep/spineprep/internal/atomicio"
)

// Reason enumerates why a crop sidecar has the bounds it does.
type Reason string

const (
	ReasonNoCrop             Reason = "no-crop"
	ReasonRobustZ            Reason = "robust-z"
	ReasonFallbackNoMask     Reason = "fallback-no-mask"
	ReasonDetectionFailed    Reason = "detection-failed"
	ReasonOutOfBoundsClamped Reason = "out-of-bounds-clamped"
	ReasonNoSidecar          Reason = "no-sidecar" // reader-side only, never written by crop-detect
)

// Sidecar is the small structured record crop-detect publishes:
// 0 <= from <= to <= nvols, and to-from equals the surviving volume
// count.
type Sidecar struct {
	From   int    `json:"from"`
	To     int    `json:"to"`
	NVols  int    `json:"nvols"`
	Reason Reason `json:"reason"`
}

func sidecarPath(artifactPath string) string { return artifactPath + ".crop.json" }

// SidecarPath returns the path Write publishes to and Read loads
// from for artifactPath, the idempotence pre-check's source for the
// crop-detect step's actual on-disk output.
func SidecarPath(artifactPath string) string { return sidecarPath(artifactPath) }

// Write atomically publishes sc as the crop sidecar for artifactPath.
// Only the crop-detect step should call this.
func Write(artifactPath string, sc Sidecar) error {
	data, err := json.MarshalIndent(sc, "", "  ")
	if err != nil {
		return fmt.Errorf("crop: marshal sidecar: %w", err)
	}
	data = append(data, '\n')
	return atomicio.WriteFile(sidecarPath(artifactPath), data, 0o644)
}

// Read loads the crop sidecar for artifactPath. If it is missing,
// Read returns a {from:0, to:nvols, reason:"no-sidecar"} default per
// spec section 4.3 rather than an error, so callers do not need a
// separate existence check.
func Read(artifactPath string, nvols int) (Sidecar, error) {
	data, err := os.ReadFile(sidecarPath(artifactPath))
	if os.IsNotExist(err) {
		return Sidecar{From: 0, To: nvols, NVols: nvols, Reason: ReasonNoSidecar}, nil
	}
	if err != nil {
		return Sidecar{}, fmt.Errorf("crop: read sidecar: %w", err)
	}
	var sc Sidecar
	if err := json.Unmarshal(data, &sc); err != nil {
		return Sidecar{}, fmt.Errorf("crop: unmarshal sidecar: %w", err)
	}
	return sc, nil
}
