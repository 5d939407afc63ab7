package coupling

import (
	"github.com/banshee-data/autocouple/internal/hardware"
	"github.com/banshee-data/autocouple/internal/metric"
)

// Sample is the score recorded at one sweep position.
type Sample struct {
	Position int               `json:"position"`
	Score    float64           `json:"score"`
	Spot     *metric.SpotStats `json:"spot,omitempty"`
}

// Series holds one sweep's samples in sweep order.
type Series []Sample

// Positions returns the sample positions in order.
func (s Series) Positions() []int {
	out := make([]int, len(s))
	for i, smp := range s {
		out[i] = smp.Position
	}
	return out
}

// Scores returns the sample scores in order.
func (s Series) Scores() []float64 {
	out := make([]float64, len(s))
	for i, smp := range s {
		out[i] = smp.Score
	}
	return out
}

// Observer receives every sample as it is recorded. It runs on the sweep's
// goroutine, so slow observers slow the sweep.
type Observer interface {
	Observe(axis hardware.Axis, s Sample)
}

// ObserverFunc adapts a plain function to Observer.
type ObserverFunc func(axis hardware.Axis, s Sample)

// Observe calls fn(axis, s).
func (fn ObserverFunc) Observe(axis hardware.Axis, s Sample) { fn(axis, s) }
