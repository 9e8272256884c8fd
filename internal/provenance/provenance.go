// Package provenance implements the per-artifact provenance record
// (spec section 3, "Provenance record") and its `.prov.json` sibling
// file; the `.ok`/`.skip` status markers live in internal/atomicio.
// Writes go through
// internal/atomicio so a provenance record is never partially visible.
package provenance

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spineprep/spineprep/internal/atomicio"
)

// Record is one provenance entry, stored adjacent to its artifact as
// "<artifact>.prov.json".
type Record struct {
	Step         string            `json:"step"`
	Output       string            `json:"output"`
	Inputs       []string          `json:"inputs"`
	Params       map[string]any    `json:"params,omitempty"`
	ToolVersions map[string]string `json:"tool_versions,omitempty"`
	Timestamp    string            `json:"timestamp"` // ISO-8601 UTC
	Status       string            `json:"status"`    // "ok", "skip", or "failed"
	Reason       string            `json:"reason,omitempty"`
}

// Clock lets callers stamp deterministic timestamps in tests; the
// default production clock is time.Now in UTC.
type Clock func() time.Time

// New builds a Record with a UTC RFC3339 timestamp from now.
func New(now Clock, step, output string, inputs []string, params map[string]any, toolVersions map[string]string, status, reason string) Record {
	if now == nil {
		now = time.Now
	}
	return Record{
		Step:         step,
		Output:       output,
		Inputs:       inputs,
		Params:       params,
		ToolVersions: toolVersions,
		Timestamp:    now().UTC().Format(time.RFC3339),
		Status:       status,
		Reason:       reason,
	}
}

// sidecarPath returns "<artifact>.prov.json".
func sidecarPath(artifactPath string) string {
	return artifactPath + ".prov.json"
}

// Write atomically writes rec as the provenance sidecar for its
// Output path.
func Write(rec Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("provenance: marshal: %w", err)
	}
	data = append(data, '\n')
	return atomicio.WriteFile(sidecarPath(rec.Output), data, 0o644)
}

// Read loads the provenance sidecar for artifactPath.
func Read(artifactPath string) (Record, error) {
	// Deliberately re-derive the path rather than accept it directly,
	// so callers can't accidentally pass the sidecar path itself.
	path := sidecarPath(artifactPath)
	data, err := readFile(path)
	if err != nil {
		return Record{}, err
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("provenance: unmarshal %s: %w", path, err)
	}
	return rec, nil
}

func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("provenance: read %s: %w", path, err)
	}
	return data, nil
}
