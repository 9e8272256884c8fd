// Package manifest defines the Run descriptor and Manifest types
// (spec section 3) plus a minimal CSV boundary format. Dataset
// discovery (walking an imaging-data-convention directory tree to
// produce this manifest) is an out-of-scope external collaborator per
// spec.md; Discoverer documents that seam.
package manifest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/spineprep/spineprep/internal/atomicio"
)

// Run is a single functional acquisition. Runs are immutable after
// manifest creation: nothing in SpinePrep mutates a Run once it is
// part of a Manifest.
type Run struct {
	Subject        string
	Session        string // optional
	Task           string
	Acquisition    string // optional
	RunID          string
	ImagePath      string
	RepetitionTime float64 // seconds
	PhaseEncodeDir string
	VoxelSizeMM    [3]float64
	VolumeCount    int
	MotionGroup    string // optional; runs sharing a key are motion-corrected together
}

// Key returns the ordering/uniqueness tuple (subject, session, task, run).
func (r Run) Key() [4]string {
	return [4]string{r.Subject, r.Session, r.Task, r.RunID}
}

// Anatomical is a subject-level anatomical record used for
// registration-stage planning when registration.enable is set.
type Anatomical struct {
	Subject   string
	ImagePath string
}

// Manifest is an ordered, deduplicated sequence of runs plus
// anatomical records. One manifest exists per pipeline invocation.
type Manifest struct {
	Runs        []Run
	Anatomicals []Anatomical
}

// Discoverer is the seam an external, out-of-scope dataset walker
// plugs into: given a dataset root, produce a Manifest. SpinePrep's
// core never implements Discoverer itself; tests build Manifests by
// hand or via New/LoadCSV.
type Discoverer interface {
	Discover(datasetRoot string) (Manifest, error)
}

// New builds a Manifest from rows, sorting them into canonical order
// and validating the invariants from spec section 3: deterministic
// ordering by (subject, session, task, run); unique tuples; every
// imaging path exists and is readable.
func New(runs []Run, anat []Anatomical) (Manifest, error) {
	out := make([]Run, len(runs))
	copy(out, runs)
	sort.SliceStable(out, func(i, j int) bool {
		return less(out[i].Key(), out[j].Key())
	})

	seen := make(map[[4]string]bool, len(out))
	for _, r := range out {
		k := r.Key()
		if seen[k] {
			return Manifest{}, fmt.Errorf("manifest: duplicate run tuple (subject=%s session=%s task=%s run=%s)", k[0], k[1], k[2], k[3])
		}
		seen[k] = true
		if r.ImagePath == "" {
			return Manifest{}, fmt.Errorf("manifest: run %v has no image path", k)
		}
		if _, err := os.Stat(r.ImagePath); err != nil {
			return Manifest{}, fmt.Errorf("manifest: image path for run %v: %w", k, err)
		}
	}

	return Manifest{Runs: out, Anatomicals: append([]Anatomical(nil), anat...)}, nil
}

func less(a, b [4]string) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

// csvHeader is the fixed column order for the manifest CSV boundary
// format. encoding/csv is standard library; no CSV or dataset-manifest
// library appears anywhere in the retrieved corpus, so this one
// boundary format is implemented on the standard library (see
// DESIGN.md).
var csvHeader = []string{
	"subject", "session", "task", "acquisition", "run", "image_path",
	"repetition_time", "phase_encode_dir", "voxel_x", "voxel_y", "voxel_z",
	"volume_count", "motion_group",
}

// WriteCSV atomically writes m's runs as a manifest CSV. Anatomicals
// are not part of this boundary format; LoadAnatomicalsCSV reads them
// from a separate CSV.
func WriteCSV(path string, m Manifest) error {
	return atomicio.Write(path, 0o644, func(w io.Writer) error {
		cw := csv.NewWriter(w)
		if err := cw.Write(csvHeader); err != nil {
			return err
		}
		for _, r := range m.Runs {
			rec := []string{
				r.Subject, r.Session, r.Task, r.Acquisition, r.RunID, r.ImagePath,
				strconv.FormatFloat(r.RepetitionTime, 'f', -1, 64),
				r.PhaseEncodeDir,
				strconv.FormatFloat(r.VoxelSizeMM[0], 'f', -1, 64),
				strconv.FormatFloat(r.VoxelSizeMM[1], 'f', -1, 64),
				strconv.FormatFloat(r.VoxelSizeMM[2], 'f', -1, 64),
				strconv.Itoa(r.VolumeCount),
				r.MotionGroup,
			}
			if err := cw.Write(rec); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	})
}

// LoadCSV reads a manifest CSV written by WriteCSV and validates it
// via New.
func LoadCSV(path string) (Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("manifest: open %s: %w", path, err)
	}
	defer f.Close()

	cr := csv.NewReader(f)
	rows, err := cr.ReadAll()
	if err != nil {
		return Manifest{}, fmt.Errorf("manifest: read %s: %w", path, err)
	}
	if len(rows) == 0 {
		return Manifest{}, fmt.Errorf("manifest: %s is empty", path)
	}

	runs := make([]Run, 0, len(rows)-1)
	for _, rec := range rows[1:] {
		if len(rec) != len(csvHeader) {
			return Manifest{}, fmt.Errorf("manifest: row has %d fields, want %d", len(rec), len(csvHeader))
		}
		rt, err := strconv.ParseFloat(rec[6], 64)
		if err != nil {
			return Manifest{}, fmt.Errorf("manifest: repetition_time: %w", err)
		}
		vx, _ := strconv.ParseFloat(rec[8], 64)
		vy, _ := strconv.ParseFloat(rec[9], 64)
		vz, _ := strconv.ParseFloat(rec[10], 64)
		nvols, err := strconv.Atoi(rec[11])
		if err != nil {
			return Manifest{}, fmt.Errorf("manifest: volume_count: %w", err)
		}
		runs = append(runs, Run{
			Subject: rec[0], Session: rec[1], Task: rec[2], Acquisition: rec[3], RunID: rec[4],
			ImagePath: rec[5], RepetitionTime: rt, PhaseEncodeDir: rec[7],
			VoxelSizeMM: [3]float64{vx, vy, vz}, VolumeCount: nvols, MotionGroup: rec[12],
		})
	}
	return New(runs, nil)
}

// anatCSVHeader is the fixed column order for the optional anatomicals
// CSV boundary format cmd/spineprep reads alongside the run manifest
// when registration.enable is set.
var anatCSVHeader = []string{"subject", "image_path"}

// LoadAnatomicalsCSV reads a subject/image_path CSV produced by the
// (out-of-scope) discovery collaborator. A missing file is not an
// error: it returns an empty slice, since registration is only ever
// conditional on configuration.
func LoadAnatomicalsCSV(path string) ([]Anatomical, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("manifest: open %s: %w", path, err)
	}
	defer f.Close()

	cr := csv.NewReader(f)
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("manifest: read %s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	out := make([]Anatomical, 0, len(rows)-1)
	for _, rec := range rows[1:] {
		if len(rec) != len(anatCSVHeader) {
			return nil, fmt.Errorf("manifest: anatomicals row has %d fields, want %d", len(rec), len(anatCSVHeader))
		}
		out = append(out, Anatomical{Subject: rec[0], ImagePath: rec[1]})
	}
	return out, nil
}
