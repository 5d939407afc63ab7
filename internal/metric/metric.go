// Package metric turns camera frames into scalar scores and picks target
// positions from score series.
//
// Two frame metrics exist. Focus measures the area of the bright spot after
// smoothing: smaller is better focused. MeanIntensity is the plain frame
// average, used to find the chip edge along X.
package metric

import (
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/autocouple/internal/frame"
	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

var (
	// ErrDegenerateSignal reports a score series with no usable extremum.
	ErrDegenerateSignal = errors.New("degenerate signal")

	// ErrDarkFrame reports a frame whose smoothed maximum is not positive,
	// which leaves the spot threshold undefined.
	ErrDarkFrame = errors.New("dark frame")
)

// Metric scores a single frame.
type Metric interface {
	Score(f *frame.Frame) (float64, error)
}

// Func adapts a plain function to Metric.
type Func func(f *frame.Frame) (float64, error)

// Score calls fn(f).
func (fn Func) Score(f *frame.Frame) (float64, error) { return fn(f) }

// MeanIntensity averages every channel of every pixel.
var MeanIntensity = Func(func(f *frame.Frame) (float64, error) {
	if err := f.Validate(); err != nil {
		return 0, err
	}
	return stat.Mean(f.Pix, nil), nil
})

// Default focus parameters.
const (
	DefaultFocusSigma     = 20.0
	DefaultFocusThreshold = 0.5
)

// Focus scores spot concentration as the number of smoothed pixels above a
// fraction of the smoothed peak.
type Focus struct {
	// Sigma is the Gaussian blur width in pixels.
	Sigma float64
	// Threshold is the fraction of the smoothed peak a pixel must exceed.
	Threshold float64
	// Drop lists channels excluded before averaging. The red channel carries
	// the reference reflection and saturates, so it is dropped by default.
	Drop []int
}

// DefaultFocus returns the focus metric used by the coupling routine.
func DefaultFocus() Focus {
	return Focus{
		Sigma:     DefaultFocusSigma,
		Threshold: DefaultFocusThreshold,
		Drop:      []int{frame.Red},
	}
}

// SpotStats describes the thresholded spot in one frame.
type SpotStats struct {
	Area      int     `json:"area"`
	Peak      float64 `json:"peak"`
	PeakX     int     `json:"peak_x"`
	PeakY     int     `json:"peak_y"`
	CentroidX float64 `json:"centroid_x"`
	CentroidY float64 `json:"centroid_y"`
}

// Stats smooths the frame and measures the spot. A frame whose smoothed peak
// is not positive returns ErrDarkFrame.
func (m Focus) Stats(f *frame.Frame) (SpotStats, error) {
	plane, err := f.Plane(m.Drop...)
	if err != nil {
		return SpotStats{}, err
	}
	src := frame.PlaneMat(plane)
	defer src.Close()
	smoothed := gocv.NewMat()
	defer smoothed.Close()
	frame.GaussianBlur(src, &smoothed, m.Sigma)
	return spotStats(smoothed, m.Threshold)
}

// Score returns the spot area. Dark frames score NaN so that a position where
// the spot left the field of view never wins the minimum search.
func (m Focus) Score(f *frame.Frame) (float64, error) {
	ms, err := m.Measure(f)
	return ms.Score, err
}

// Measurement is a score plus optional detail about what was scored.
type Measurement struct {
	Score float64
	Spot  *SpotStats
}

// Measurer is implemented by metrics that can report detail alongside the
// score. Callers fall back to Score for metrics that do not.
type Measurer interface {
	Measure(f *frame.Frame) (Measurement, error)
}

// Measure returns the spot area with the spot statistics. Dark frames measure
// as NaN without detail.
func (m Focus) Measure(f *frame.Frame) (Measurement, error) {
	s, err := m.Stats(f)
	if errors.Is(err, ErrDarkFrame) {
		return Measurement{Score: math.NaN()}, nil
	}
	if err != nil {
		return Measurement{}, err
	}
	return Measurement{Score: float64(s.Area), Spot: &s}, nil
}

// spotStats locates the peak of the smoothed plane, keeps the pixels strictly
// above threshold*peak and measures their count and intensity-weighted
// centre.
func spotStats(smoothed gocv.Mat, threshold float64) (SpotStats, error) {
	_, _, _, maxLoc := gocv.MinMaxLoc(smoothed)
	peak := smoothed.GetDoubleAt(maxLoc.Y, maxLoc.X)
	if !(peak > 0) {
		return SpotStats{}, fmt.Errorf("%w: peak %v", ErrDarkFrame, peak)
	}
	s := SpotStats{Peak: peak, PeakX: maxLoc.X, PeakY: maxLoc.Y}

	spot := gocv.NewMat()
	defer spot.Close()
	gocv.Threshold(smoothed, &spot, float32(peak*threshold), 0, gocv.ThresholdToZero)
	s.Area = gocv.CountNonZero(spot)

	plane, err := frame.MatPlane(spot)
	if err != nil {
		return SpotStats{}, err
	}
	rows, cols := plane.Dims()
	xs := make([]float64, cols)
	for i := range xs {
		xs[i] = float64(i)
	}
	var mass, mx, my float64
	for r := 0; r < rows; r++ {
		row := plane.RawRowView(r)
		w := floats.Sum(row)
		mass += w
		mx += floats.Dot(row, xs)
		my += w * float64(r)
	}
	if mass > 0 {
		s.CentroidX = mx / mass
		s.CentroidY = my / mass
	}
	return s, nil
}
