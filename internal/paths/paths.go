// Package paths implements the derivative path model (spec section
// 4.5): a pure, total, injective composition from an entity tuple and
// a descriptor/space to an output path. The only I/O performed here is
// directory creation on demand (EnsureDir); path composition itself
// never touches the filesystem.
package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Entity identifies one run (or one subject, for anatomical/xfm
// outputs) within the derivatives tree.
type Entity struct {
	Subject      string
	Session      string // optional
	Task         string // optional; empty for anatomical entities
	Acquisition  string // optional
	Run          string // optional; empty for anatomical entities
}

// Space labels the geometric space an output lives in. Empty means
// "native" is implied but not rendered in the filename (e.g. the raw
// crop sidecar).
type Space string

const (
	SpaceNative Space = "native"
	SpacePAM50  Space = "PAM50"
)

// xfmDescriptors lists descriptor strings that live under the
// subject's xfm/ sibling directory instead of its func/ directory.
var xfmDescriptors = map[string]bool{
	"xfm-to-PAM50":   true,
	"xfm-from-PAM50": true,
	"warpfield":      true,
}

// Compose builds the derivatives path for the given entity, descriptor
// (e.g. "motion", "mppca", "confounds", "crop", "cordmask", "wmmask",
// "csfmask"), space, and file extension (without the leading dot,
// e.g. "nii", "tsv", "json"). derivRoot is the derivatives root
// directory. Compose is pure: it never creates directories or checks
// existence.
//
// Composition is total over legal (non-empty Subject, non-empty
// descriptor) inputs and injective: distinct (Entity, descriptor,
// Space) tuples never collide on the same path, because every
// non-empty entity field and the descriptor are each rendered as their
// own key-value or trailing segment.
func Compose(derivRoot string, e Entity, descriptor string, space Space, ext string) (string, error) {
	if e.Subject == "" {
		return "", fmt.Errorf("paths: entity subject is required")
	}
	if descriptor == "" {
		return "", fmt.Errorf("paths: descriptor is required")
	}

	dir := filepath.ToSlash(filepath.Join(derivRoot, "sub-"+e.Subject))
	if xfmDescriptors[descriptor] {
		dir = filepath.ToSlash(filepath.Join(dir, "xfm"))
	} else {
		dir = filepath.ToSlash(filepath.Join(dir, "func"))
	}

	var segs []string
	segs = append(segs, "sub-"+e.Subject)
	if e.Session != "" {
		segs = append(segs, "ses-"+e.Session)
	}
	if e.Task != "" {
		segs = append(segs, "task-"+e.Task)
	}
	if e.Acquisition != "" {
		segs = append(segs, "acq-"+e.Acquisition)
	}
	if e.Run != "" {
		segs = append(segs, "run-"+e.Run)
	}
	if space != "" && space != SpaceNative {
		segs = append(segs, "space-"+string(space))
	}
	segs = append(segs, "desc-"+descriptor)

	name := strings.Join(segs, "_")
	if ext != "" {
		name += "." + ext
	}
	return filepath.ToSlash(filepath.Join(dir, name)), nil
}

// EnsureDir creates the directory component of path, if it does not
// already exist. This is the only I/O the path model performs.
func EnsureDir(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0o755)
}
