// Package report collects the score series of a coupling run for display and
// renders them as PNG plots and an HTML chart page.
package report

import (
	"sync"

	"github.com/banshee-data/autocouple/internal/coupling"
	"github.com/banshee-data/autocouple/internal/hardware"
)

// axes is the plotting order: focus first, then edge.
var axes = []hardware.Axis{hardware.AxisZ, hardware.AxisX}

// Recorder is a coupling.Observer that keeps every sample it is shown.
type Recorder struct {
	mu       sync.Mutex
	series   map[hardware.Axis]coupling.Series
	selected map[hardware.Axis]int
}

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		series:   make(map[hardware.Axis]coupling.Series),
		selected: make(map[hardware.Axis]int),
	}
}

// Observe implements coupling.Observer.
func (r *Recorder) Observe(axis hardware.Axis, s coupling.Sample) {
	r.mu.Lock()
	r.series[axis] = append(r.series[axis], s)
	r.mu.Unlock()
}

// Series returns a copy of the samples recorded for axis.
func (r *Recorder) Series(axis hardware.Axis) coupling.Series {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append(coupling.Series(nil), r.series[axis]...)
}

// Select marks pos as the chosen position on axis.
func (r *Recorder) Select(axis hardware.Axis, pos int) {
	r.mu.Lock()
	r.selected[axis] = pos
	r.mu.Unlock()
}

// Selected returns the chosen position on axis, if any.
func (r *Recorder) Selected(axis hardware.Axis) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pos, ok := r.selected[axis]
	return pos, ok
}

// SetResult marks the positions a run actually selected. A run that failed
// before choosing a position leaves that axis unmarked.
func (r *Recorder) SetResult(res coupling.Result) {
	if res.Reached >= coupling.StateZRelocate {
		r.Select(hardware.AxisZ, res.ZFocus)
	}
	if res.Reached >= coupling.StateXRelocate {
		r.Select(hardware.AxisX, res.XEdge)
	}
}

type axisData struct {
	axis     hardware.Axis
	series   coupling.Series
	selected int
	hasSel   bool
}

// snapshot returns the non-empty axes in plotting order.
func (r *Recorder) snapshot() []axisData {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []axisData
	for _, a := range axes {
		s := r.series[a]
		if len(s) == 0 {
			continue
		}
		sel, ok := r.selected[a]
		out = append(out, axisData{
			axis:     a,
			series:   append(coupling.Series(nil), s...),
			selected: sel,
			hasSel:   ok,
		})
	}
	return out
}

func axisTitle(a hardware.Axis) string {
	if a == hardware.AxisZ {
		return "Z focus sweep (spot area, px)"
	}
	return "X edge sweep (mean intensity)"
}
