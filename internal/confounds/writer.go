package confounds

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spineprep/spineprep/internal/atomicio"
)

// TissueColumnPrefix is the acomp_{t}_pc{NN} prefix spec section 3
// names, for tissue t.
func TissueColumnPrefix(tissue string) string { return "acomp_" + tissue }

// Frame is the full confounds table plus the per-tissue results
// needed to emit its aCompCor columns, in the canonical column order
// spec section 3 defines: framewise_displacement, dvars,
// frame_censor, then acomp_{t}_pc{NN} per configured tissue in
// configuration order.
type Frame struct {
	FD          []float64
	DVARS       []float64
	FrameCensor []int
	Tissues     []string // configuration order
	ByTissue    map[string]TissueResult
}

// Descriptor is the structured key/value record accompanying the
// confounds TSV, per spec section 3.
type Descriptor struct {
	Sources               []string                    `json:"sources"`
	FDMethod              string                      `json:"fd_method"`
	FDSource              string                      `json:"fd_source,omitempty"`
	DVARSMethod           string                      `json:"dvars_method"`
	SamplingPeriodSeconds float64                     `json:"sampling_period_seconds"`
	CropFrom              int                         `json:"crop_from"`
	CropTo                int                         `json:"crop_to"`
	CensorConfig          CensorConfig                `json:"censor_config"`
	Kept                  int                         `json:"kept"`
	Censored              int                         `json:"censored"`
	ACompCor              map[string]TissueDescriptor `json:"acompcor"`
}

// TissueDescriptor records per-tissue aCompCor metadata: component
// count and explained-variance vector.
type TissueDescriptor struct {
	NComponents       int       `json:"n_components"`
	ExplainedVariance []float64 `json:"explained_variance"`
}

// WriteTSV atomically writes f as the canonical-column TSV, six
// decimals for continuous values, integer 0/1 for frame_censor.
func WriteTSV(path string, f Frame) error {
	return atomicio.Write(path, 0o644, func(w io.Writer) error {
		return writeTSV(w, f)
	})
}

func writeTSV(w io.Writer, f Frame) error {
	header := []string{"framewise_displacement", "dvars", "frame_censor"}
	for _, tissue := range f.Tissues {
		tr := f.ByTissue[tissue]
		for i := 1; i <= tr.NComponents; i++ {
			header = append(header, fmt.Sprintf("%s_pc%02d", TissueColumnPrefix(tissue), i))
		}
	}
	if _, err := fmt.Fprintln(w, joinTab(header)); err != nil {
		return err
	}

	t := len(f.FD)
	for row := 0; row < t; row++ {
		fields := []string{
			fmt.Sprintf("%.6f", f.FD[row]),
			fmt.Sprintf("%.6f", f.DVARS[row]),
			fmt.Sprintf("%d", f.FrameCensor[row]),
		}
		for _, tissue := range f.Tissues {
			tr := f.ByTissue[tissue]
			for c := 0; c < tr.NComponents; c++ {
				fields = append(fields, fmt.Sprintf("%.6f", tr.Components[row][c]))
			}
		}
		if _, err := fmt.Fprintln(w, joinTab(fields)); err != nil {
			return err
		}
	}
	return nil
}

func joinTab(fields []string) string {
	var buf bytes.Buffer
	for i, f := range fields {
		if i > 0 {
			buf.WriteByte('\t')
		}
		buf.WriteString(f)
	}
	return buf.String()
}

// WriteDescriptor atomically writes d as JSON alongside the TSV.
func WriteDescriptor(path string, d Descriptor) error {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("confounds: marshal descriptor: %w", err)
	}
	data = append(data, '\n')
	return atomicio.WriteFile(path, data, 0o644)
}
