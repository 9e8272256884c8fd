package motion

import (
	"bufio"
	"os"
	"strconv"
	"strings"

	"github.com/spineprep/spineprep/internal/confounds"
)

// parseRigid3DOutput reads the six-column whitespace-separated
// parameter table the volume-motion tool writes next to its primary
// output (spec section 4.3: "for rigid-3d it is parsed from the tool
// output"). Any read or parse failure degrades to an all-zero table
// rather than erroring, consistent with the coordinator always
// emitting a parameter table of the right shape.
func parseRigid3DOutput(path string, nvols int) confounds.MotionParams {
	f, err := os.Open(rigid3DParamsPath(path))
	if err != nil {
		return confounds.ZeroMotionParams(nvols)
	}
	defer f.Close()

	params := confounds.ZeroMotionParams(nvols)
	sc := bufio.NewScanner(f)
	row := 0
	for sc.Scan() && row < nvols {
		fields := strings.Fields(sc.Text())
		if len(fields) != 6 {
			continue
		}
		vals := make([]float64, 6)
		ok := true
		for i, f := range fields {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				ok = false
				break
			}
			vals[i] = v
		}
		if !ok {
			continue
		}
		params.TransX[row], params.TransY[row], params.TransZ[row] = vals[0], vals[1], vals[2]
		params.RotX[row], params.RotY[row], params.RotZ[row] = vals[3], vals[4], vals[5]
		row++
	}
	return params
}

func rigid3DParamsPath(output string) string { return output + ".motion_params.txt" }
