package metric

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Edge suppression widths applied to the shifted difference signal.
const (
	edgeLeadZeroed  = 2
	edgeTrailZeroed = 3
)

// ArgMin returns the index of the smallest finite score, taking the first
// occurrence on ties. NaN scores are skipped. A series with no finite score,
// or whose finite scores are all equal, is degenerate.
func ArgMin(scores []float64) (int, error) {
	best := -1
	lo, hi := math.Inf(1), math.Inf(-1)
	for i, v := range scores {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		if v < lo {
			lo = v
			best = i
		}
		if v > hi {
			hi = v
		}
	}
	if best < 0 {
		return -1, fmt.Errorf("%w: no finite scores in %d samples", ErrDegenerateSignal, len(scores))
	}
	if lo == hi {
		return -1, fmt.Errorf("%w: constant score %v", ErrDegenerateSignal, lo)
	}
	return best, nil
}

// EdgeSignal returns the absolute forward difference of intensity, shifted so
// that element i holds the jump from sample i to sample i+1. The last element
// wraps around to the first sample. The first two and last three elements are
// zeroed to suppress artifacts at the ends of the sweep.
func EdgeSignal(intensity []float64) []float64 {
	n := len(intensity)
	d := make([]float64, n)
	for i := range intensity {
		d[i] = math.Abs(intensity[(i+1)%n] - intensity[i])
	}
	for i := 0; i < edgeLeadZeroed && i < n; i++ {
		d[i] = 0
	}
	for i := max(0, n-edgeTrailZeroed); i < n; i++ {
		d[i] = 0
	}
	return d
}

// EdgeIndex locates the chip edge in an intensity sweep. It returns the index
// of the sample just before the steepest brightness jump, so the chosen
// position sits on the near side of the transition. Ties resolve to the
// first jump in sweep order.
func EdgeIndex(intensity []float64) (int, error) {
	if len(intensity) == 0 {
		return -1, fmt.Errorf("%w: empty intensity series", ErrDegenerateSignal)
	}
	d := EdgeSignal(intensity)
	i := floats.MaxIdx(d)
	if !(d[i] > 0) {
		return -1, fmt.Errorf("%w: no brightness transition in %d samples", ErrDegenerateSignal, len(intensity))
	}
	return i, nil
}
