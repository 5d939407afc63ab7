package coupling

import (
	"context"
	"fmt"
	"time"

	"github.com/banshee-data/autocouple/internal/camera"
	"github.com/banshee-data/autocouple/internal/frame"
	"github.com/banshee-data/autocouple/internal/hardware"
	"github.com/banshee-data/autocouple/internal/metric"
	"github.com/banshee-data/autocouple/internal/monitoring"
	"github.com/banshee-data/autocouple/internal/timeutil"
)

// DefaultSettle is the wait between a move and the frame that scores it.
const DefaultSettle = 200 * time.Millisecond

// AxisSweep steps one axis through a list of positions, scoring a frame at
// each stop.
type AxisSweep struct {
	Axis     hardware.Axis
	Actuator hardware.Actuator
	Source   camera.FrameSource
	Metric   metric.Metric
	Settle   time.Duration
	Clock    timeutil.Clock
	Observer Observer
}

// Run visits positions in order: move, settle, read, score. The returned
// series has one sample per position. Any failure stops the sweep and is
// returned together with the samples recorded so far. Cancellation is
// checked before every move and while settling.
func (s *AxisSweep) Run(ctx context.Context, positions []int) (Series, error) {
	clock := s.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}

	series := make(Series, 0, len(positions))
	for _, pos := range positions {
		if err := ctx.Err(); err != nil {
			return series, fmt.Errorf("sweep %s stopped before %d: %w", s.Axis, pos, err)
		}

		if err := s.Actuator.Move(pos, s.Axis); err != nil {
			return series, fmt.Errorf("%w: %s to %d: %w", ErrActuator, s.Axis, pos, err)
		}

		if err := settle(ctx, clock, s.Settle); err != nil {
			return series, fmt.Errorf("sweep %s stopped settling at %d: %w", s.Axis, pos, err)
		}

		f, err := s.Source.Read()
		if err != nil {
			return series, fmt.Errorf("%w: %s at %d: %w", ErrFrameAcquisition, s.Axis, pos, err)
		}

		smp, err := s.measure(pos, f)
		if err != nil {
			return series, fmt.Errorf("score %s at %d: %w", s.Axis, pos, err)
		}
		series = append(series, smp)

		monitoring.Logf("coord %s: %d, score: %g", s.Axis, pos, smp.Score)
		if s.Observer != nil {
			s.Observer.Observe(s.Axis, smp)
		}
	}
	return series, nil
}

func (s *AxisSweep) measure(pos int, f *frame.Frame) (Sample, error) {
	if m, ok := s.Metric.(metric.Measurer); ok {
		ms, err := m.Measure(f)
		if err != nil {
			return Sample{}, err
		}
		return Sample{Position: pos, Score: ms.Score, Spot: ms.Spot}, nil
	}
	score, err := s.Metric.Score(f)
	if err != nil {
		return Sample{}, err
	}
	return Sample{Position: pos, Score: score}, nil
}

// settle waits d on clock unless ctx ends first.
func settle(ctx context.Context, clock timeutil.Clock, d time.Duration) error {
	if d > 0 {
		select {
		case <-ctx.Done():
		case <-clock.After(d):
		}
	}
	return ctx.Err()
}
