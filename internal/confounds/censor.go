package confounds

// CensorConfig mirrors internal/config's options.censor recognized
// keys.
type CensorConfig struct {
	FDThreshMM    float64
	DVARSThresh   float64
	PadVols       int
	MinContigVols int
}

// CensorResult carries the binary frame_censor vector plus the
// kept/censored counts spec section 4.2 requires in the descriptor.
type CensorResult struct {
	FrameCensor []int
	Kept        int
	Censored    int
}

// Censor implements spec section 4.2's four-step censoring policy:
// threshold, symmetric dilation by pad volumes, minimum-contiguous-run
// enforcement in the complement, binary output. Minimum-run enforcement
// applies only when at least one volume was flagged: a series with no
// flagged volume is kept whole even if it is shorter than
// MinContigVols.
func Censor(fd, dvars []float64, cfg CensorConfig) CensorResult {
	t := len(fd)
	flagged := make([]bool, t)
	for i := 0; i < t; i++ {
		if fd[i] > cfg.FDThreshMM || dvars[i] > cfg.DVARSThresh {
			flagged[i] = true
		}
	}

	pad := cfg.PadVols
	if pad > t-1 {
		pad = t - 1
	}
	if pad < 0 {
		pad = 0
	}
	dilated := dilate(flagged, pad)

	anyFlagged := false
	for _, f := range dilated {
		if f {
			anyFlagged = true
			break
		}
	}
	if anyFlagged {
		enforceMinRun(dilated, cfg.MinContigVols)
	}

	out := make([]int, t)
	kept, censored := 0, 0
	for i, c := range dilated {
		if c {
			out[i] = 1
			censored++
		} else {
			kept++
		}
	}
	return CensorResult{FrameCensor: out, Kept: kept, Censored: censored}
}

// dilate flags a symmetric window of pad volumes on either side of
// every already-flagged volume.
func dilate(flagged []bool, pad int) []bool {
	t := len(flagged)
	out := make([]bool, t)
	for i, f := range flagged {
		if !f {
			continue
		}
		lo, hi := i-pad, i+pad
		if lo < 0 {
			lo = 0
		}
		if hi > t-1 {
			hi = t - 1
		}
		for j := lo; j <= hi; j++ {
			out[j] = true
		}
	}
	return out
}

// enforceMinRun walks the complement of dilated, finds maximal
// contiguous kept runs, and additionally flags any run shorter than
// minContig, in place.
func enforceMinRun(dilated []bool, minContig int) {
	if minContig <= 1 {
		return
	}
	t := len(dilated)
	i := 0
	for i < t {
		if dilated[i] {
			i++
			continue
		}
		start := i
		for i < t && !dilated[i] {
			i++
		}
		runLen := i - start
		if runLen < minContig {
			for j := start; j < i; j++ {
				dilated[j] = true
			}
		}
	}
}
