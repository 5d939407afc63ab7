package coupling

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// maxPositions bounds a single sweep.
const maxPositions = 10000

// PositionRange is the half-open set of lens positions Min, Min+Step, ...
// strictly below Max.
type PositionRange struct {
	Min  int `json:"min"`
	Max  int `json:"max"`
	Step int `json:"step"`
}

// ParsePositionRange parses a "min:max:step" string.
func ParsePositionRange(s string) (PositionRange, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return PositionRange{}, fmt.Errorf("invalid range format %q: expected min:max:step", s)
	}

	var vals [3]int
	for i, name := range []string{"min", "max", "step"} {
		v, err := strconv.Atoi(strings.TrimSpace(parts[i]))
		if err != nil {
			return PositionRange{}, fmt.Errorf("invalid %s value %q: %w", name, parts[i], err)
		}
		vals[i] = v
	}

	r := PositionRange{Min: vals[0], Max: vals[1], Step: vals[2]}
	if err := r.Validate(); err != nil {
		return PositionRange{}, err
	}
	return r, nil
}

// String formats the range as "min:max:step".
func (r PositionRange) String() string {
	return fmt.Sprintf("%d:%d:%d", r.Min, r.Max, r.Step)
}

// Len returns the number of positions, or 0 for an invalid range. Counts
// that do not fit in an int saturate at math.MaxInt.
func (r PositionRange) Len() int {
	if r.Step <= 0 || r.Max <= r.Min {
		return 0
	}
	// Max > Min, so the unsigned difference is exact even when Max-Min
	// overflows int.
	span := uint64(r.Max) - uint64(r.Min)
	n := (span-1)/uint64(r.Step) + 1
	if n > math.MaxInt {
		return math.MaxInt
	}
	return int(n)
}

// Validate checks that the range is non-empty and bounded.
func (r PositionRange) Validate() error {
	if r.Step <= 0 {
		return fmt.Errorf("step must be positive, got %d", r.Step)
	}
	if r.Max <= r.Min {
		return fmt.Errorf("range %s is empty: max must exceed min", r)
	}
	if n := r.Len(); n > maxPositions {
		return fmt.Errorf("range %s has %d positions (max %d)", r, n, maxPositions)
	}
	return nil
}

// Positions returns the positions in ascending sweep order.
func (r PositionRange) Positions() ([]int, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	n := r.Len()
	out := make([]int, n)
	for i := range out {
		out[i] = r.Min + i*r.Step
	}
	return out, nil
}
