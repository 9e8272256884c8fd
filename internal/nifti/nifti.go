// Package nifti implements a minimal NIfTI-1 single-file (.nii)
// reader/writer on top of encoding/binary. No imaging or NIfTI
// library appears anywhere in the retrieved example corpus (the
// corpus's only audio/image-adjacent dependencies are go-audio/wav
// and whisper.cpp's audio bindings, neither of which reads volumetric
// scientific imaging data), so this boundary format is implemented on
// the standard library; see DESIGN.md.
//
// Only what SpinePrep's confounds/crop/motion/adapter code needs is
// implemented: 4-D (and degenerate 3-D treated as T=1) float32
// volumes, written and read uncompressed and little-endian (big-endian
// files are not detected or byte-swapped).
package nifti

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/spineprep/spineprep/internal/atomicio"
)

const (
	headerSize  = 348
	magicSingle = "n+1\x00"

	dtFloat32 = 16
	dtInt16   = 4
	dtUint8   = 2
	dtFloat64 = 64
)

// Volume4D is an in-memory 4-D (x, y, z, t) functional image. Data is
// stored in column-major (x fastest) flattened order, one float32 per
// voxel-timepoint, matching NIfTI's on-disk layout so encode/decode
// are a straight copy.
type Volume4D struct {
	NX, NY, NZ, NT int
	PixDim         [3]float64 // voxel size in mm (x, y, z)
	TR             float64    // repetition time in seconds (pixdim[4])
	Data           []float32  // len == NX*NY*NZ*NT
}

// NewVolume4D allocates a zeroed volume of the given dimensions.
func NewVolume4D(nx, ny, nz, nt int) *Volume4D {
	return &Volume4D{NX: nx, NY: ny, NZ: nz, NT: nt, Data: make([]float32, nx*ny*nz*nt)}
}

// VoxelsPerVolume returns the number of spatial voxels in one volume
// (one timepoint).
func (v *Volume4D) VoxelsPerVolume() int { return v.NX * v.NY * v.NZ }

// Volume returns the flat spatial slice for timepoint t (no copy).
func (v *Volume4D) Volume(t int) []float32 {
	n := v.VoxelsPerVolume()
	return v.Data[t*n : (t+1)*n]
}

// CloneShape returns a new zeroed volume with the same dimensions and
// geometry as v, used by placeholder outputs that must be
// shape-preserving (spec section 4.4).
func (v *Volume4D) CloneShape() *Volume4D {
	out := NewVolume4D(v.NX, v.NY, v.NZ, v.NT)
	out.PixDim = v.PixDim
	out.TR = v.TR
	return out
}

// Crop returns a new volume containing timepoints [from, to).
func (v *Volume4D) Crop(from, to int) *Volume4D {
	out := NewVolume4D(v.NX, v.NY, v.NZ, to-from)
	out.PixDim = v.PixDim
	out.TR = v.TR
	n := v.VoxelsPerVolume()
	copy(out.Data, v.Data[from*n:to*n])
	return out
}

// header is a trimmed NIfTI-1 fixed-size header: every field is
// exported so encoding/binary can read and write it directly via
// reflection; the Pad fields occupy the standard's reserved byte
// ranges we never interpret.
type header struct {
	SizeofHdr int32
	Pad1      [36]byte
	Dim       [8]int16
	Pad2      [14]byte
	DataType  int16
	BitPix    int16
	Pad3      [2]byte
	PixDim    [8]float32
	VoxOffset float32
	SclSlope  float32
	SclInter  float32
	Pad4      [224]byte
	Magic     [4]byte
}

// Write atomically writes v to path as an uncompressed single-file
// NIfTI-1 volume of float32 voxels.
func Write(path string, v *Volume4D) error {
	var buf bytes.Buffer
	hdr := header{
		SizeofHdr: headerSize,
		DataType:  dtFloat32,
		BitPix:    32,
		VoxOffset: headerSize,
		SclSlope:  1,
	}
	hdr.Dim[0] = 4
	hdr.Dim[1] = int16(v.NX)
	hdr.Dim[2] = int16(v.NY)
	hdr.Dim[3] = int16(v.NZ)
	hdr.Dim[4] = int16(v.NT)
	hdr.PixDim[1] = float32(v.PixDim[0])
	hdr.PixDim[2] = float32(v.PixDim[1])
	hdr.PixDim[3] = float32(v.PixDim[2])
	hdr.PixDim[4] = float32(v.TR)
	copy(hdr.Magic[:], magicSingle)

	if err := binary.Write(&buf, binary.LittleEndian, hdr); err != nil {
		return fmt.Errorf("nifti: encode header: %w", err)
	}
	if buf.Len() != headerSize {
		return fmt.Errorf("nifti: internal header size mismatch: got %d want %d", buf.Len(), headerSize)
	}
	if err := binary.Write(&buf, binary.LittleEndian, v.Data); err != nil {
		return fmt.Errorf("nifti: encode data: %w", err)
	}

	return atomicio.WriteFile(path, buf.Bytes(), 0o644)
}

// Read loads a single-file NIfTI-1 volume from path, converting
// whatever on-disk datatype it finds to float32 in memory.
func Read(path string) (*Volume4D, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("nifti: open %s: %w", path, err)
	}
	defer f.Close()

	var hdr header
	if err := binary.Read(f, binary.LittleEndian, &hdr); err != nil {
		return nil, fmt.Errorf("nifti: read header: %w", err)
	}
	if string(bytes.TrimRight(hdr.Magic[:], "\x00")) != "n+1" {
		return nil, fmt.Errorf("nifti: %s is not a single-file NIfTI-1 volume (bad magic)", path)
	}

	nx, ny, nz := int(hdr.Dim[1]), int(hdr.Dim[2]), int(hdr.Dim[3])
	nt := 1
	if hdr.Dim[0] >= 4 {
		nt = int(hdr.Dim[4])
	}
	if nx <= 0 || ny <= 0 || nz <= 0 || nt <= 0 {
		return nil, fmt.Errorf("nifti: %s has invalid dimensions %v", path, hdr.Dim)
	}

	if _, err := f.Seek(int64(hdr.VoxOffset), io.SeekStart); err != nil {
		return nil, fmt.Errorf("nifti: seek to voxel data: %w", err)
	}

	n := nx * ny * nz * nt
	data, err := decodeVoxels(f, int(hdr.DataType), n)
	if err != nil {
		return nil, fmt.Errorf("nifti: %s: %w", path, err)
	}

	slope := float64(hdr.SclSlope)
	inter := float64(hdr.SclInter)
	if slope != 0 && (slope != 1 || inter != 0) {
		for i := range data {
			data[i] = float32(float64(data[i])*slope + inter)
		}
	}

	v := &Volume4D{
		NX: nx, NY: ny, NZ: nz, NT: nt,
		PixDim: [3]float64{float64(hdr.PixDim[1]), float64(hdr.PixDim[2]), float64(hdr.PixDim[3])},
		TR:     float64(hdr.PixDim[4]),
		Data:   data,
	}
	return v, nil
}

func decodeVoxels(r io.Reader, datatype int, n int) ([]float32, error) {
	switch datatype {
	case dtFloat32:
		out := make([]float32, n)
		if err := binary.Read(r, binary.LittleEndian, out); err != nil {
			return nil, fmt.Errorf("decode float32 voxels: %w", err)
		}
		return out, nil
	case dtFloat64:
		raw := make([]float64, n)
		if err := binary.Read(r, binary.LittleEndian, raw); err != nil {
			return nil, fmt.Errorf("decode float64 voxels: %w", err)
		}
		out := make([]float32, n)
		for i, x := range raw {
			out[i] = float32(x)
		}
		return out, nil
	case dtInt16:
		raw := make([]int16, n)
		if err := binary.Read(r, binary.LittleEndian, raw); err != nil {
			return nil, fmt.Errorf("decode int16 voxels: %w", err)
		}
		out := make([]float32, n)
		for i, x := range raw {
			out[i] = float32(x)
		}
		return out, nil
	case dtUint8:
		raw := make([]uint8, n)
		if _, err := io.ReadFull(r, raw); err != nil {
			return nil, fmt.Errorf("decode uint8 voxels: %w", err)
		}
		out := make([]float32, n)
		for i, x := range raw {
			out[i] = float32(x)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported NIfTI datatype code %d", datatype)
	}
}

// IsFinite reports whether x is neither NaN nor infinite, used by
// DVARS's default-mask computation and elsewhere.
func IsFinite(x float32) bool {
	f := float64(x)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
