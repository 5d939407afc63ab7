package coupling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/autocouple/internal/camera"
	"github.com/banshee-data/autocouple/internal/hardware"
	"github.com/banshee-data/autocouple/internal/metric"
	"github.com/banshee-data/autocouple/internal/monitoring"
	"github.com/banshee-data/autocouple/internal/timeutil"
)

// State is a stage of one coupling run.
type State int

const (
	StateInit State = iota
	StateZFocusSweep
	StateZRelocate
	StateXEdgeSweep
	StateXRelocate
	StateTeardown
	StateDone
)

var stateNames = [...]string{
	StateInit:        "init",
	StateZFocusSweep: "z-focus-sweep",
	StateZRelocate:   "z-relocate",
	StateXEdgeSweep:  "x-edge-sweep",
	StateXRelocate:   "x-relocate",
	StateTeardown:    "teardown",
	StateDone:        "done",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// DefaultSerialPort is the bench controller's usual device node.
const DefaultSerialPort = "/dev/ttyUSB0"

// Config holds the inputs of one coupling run. Display enables the
// observer callback for every sample. LaserIntensity, when set, is applied
// during Init.
type Config struct {
	XRange         PositionRange `json:"x_range"`
	ZRange         PositionRange `json:"z_range"`
	SerialPort     string        `json:"serial_port"`
	Display        bool          `json:"display"`
	Settle         time.Duration `json:"settle"`
	WarmupFrames   int           `json:"warmup_frames"`
	LaserIntensity *int          `json:"laser_intensity,omitempty"`
}

// DefaultConfig returns the ranges and timings used on the bench.
func DefaultConfig() Config {
	return Config{
		XRange:       PositionRange{Min: 0, Max: 3000, Step: 50},
		ZRange:       PositionRange{Min: 0, Max: 2000, Step: 100},
		SerialPort:   DefaultSerialPort,
		Settle:       DefaultSettle,
		WarmupFrames: camera.DefaultWarmupFrames,
	}
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	if err := c.XRange.Validate(); err != nil {
		return fmt.Errorf("x range: %w", err)
	}
	if err := c.ZRange.Validate(); err != nil {
		return fmt.Errorf("z range: %w", err)
	}
	if c.SerialPort == "" {
		return errors.New("serial port is required")
	}
	if c.Settle < 0 {
		return fmt.Errorf("settle must be non-negative, got %s", c.Settle)
	}
	if c.WarmupFrames < 0 {
		return fmt.Errorf("warmup frames must be non-negative, got %d", c.WarmupFrames)
	}
	if c.LaserIntensity != nil {
		v := *c.LaserIntensity
		if v < hardware.MinLaserIntensity || v > hardware.MaxLaserIntensity {
			return fmt.Errorf("laser intensity %d out of range [%d, %d]",
				v, hardware.MinLaserIntensity, hardware.MaxLaserIntensity)
		}
	}
	return nil
}

// Result is the outcome of a run. On failure it holds whatever was measured
// before the error and Reached names the stage that failed.
type Result struct {
	ZFocus     int           `json:"z_focus"`
	XEdge      int           `json:"x_edge"`
	ZSeries    Series        `json:"z_series"`
	XSeries    Series        `json:"x_series"`
	Reached    State         `json:"-"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Elapsed    time.Duration `json:"elapsed"`
}

// Controller runs the two-stage search: a Z sweep picking the smallest spot,
// then an X sweep picking the steepest brightness step.
type Controller struct {
	opener   hardware.Opener
	clock    timeutil.Clock
	observer Observer
	focus    metric.Metric
	edge     metric.Metric
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock sets the clock used for settle delays and timestamps.
func WithClock(c timeutil.Clock) Option {
	return func(ctl *Controller) { ctl.clock = c }
}

// WithObserver sets the observer notified when Config.Display is true.
func WithObserver(o Observer) Option {
	return func(ctl *Controller) { ctl.observer = o }
}

// WithFocusMetric replaces the Z sweep metric.
func WithFocusMetric(m metric.Metric) Option {
	return func(ctl *Controller) { ctl.focus = m }
}

// WithEdgeMetric replaces the X sweep metric.
func WithEdgeMetric(m metric.Metric) Option {
	return func(ctl *Controller) { ctl.edge = m }
}

// NewController creates a controller that acquires a fresh session from
// opener for every run.
func NewController(opener hardware.Opener, opts ...Option) *Controller {
	c := &Controller{
		opener: opener,
		clock:  timeutil.RealClock{},
		focus:  metric.DefaultFocus(),
		edge:   metric.MeanIntensity,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run performs one coupling attempt. The session is closed before Run
// returns, whatever the outcome; a close failure is joined to the returned
// error.
func (c *Controller) Run(ctx context.Context, cfg Config) (res Result, err error) {
	res.StartedAt = c.clock.Now()
	defer func() {
		res.FinishedAt = c.clock.Now()
		res.Elapsed = c.clock.Since(res.StartedAt)
	}()

	if err := cfg.Validate(); err != nil {
		return res, fmt.Errorf("invalid config: %w", err)
	}
	zPositions, err := cfg.ZRange.Positions()
	if err != nil {
		return res, err
	}
	xPositions, err := cfg.XRange.Positions()
	if err != nil {
		return res, err
	}

	res.Reached = StateInit
	monitoring.Logf("coupling: opening hardware on %s", cfg.SerialPort)
	session, err := c.opener.Open(ctx, cfg.SerialPort)
	if err != nil {
		return res, fmt.Errorf("%s: %w: %w", StateInit, ErrHardwareConnect, err)
	}
	defer func() {
		failed := res.Reached
		c.enter(&res, StateTeardown)
		if cerr := session.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("%s: %w", StateTeardown, cerr))
		}
		if err == nil {
			c.enter(&res, StateDone)
		} else {
			res.Reached = failed
		}
	}()

	var observer Observer
	if cfg.Display {
		observer = c.observer
	}
	sweep := func(axis hardware.Axis, m metric.Metric) *AxisSweep {
		return &AxisSweep{
			Axis:     axis,
			Actuator: session.Lens,
			Source:   session.Camera,
			Metric:   m,
			Settle:   cfg.Settle,
			Clock:    c.clock,
			Observer: observer,
		}
	}

	if err := c.init(ctx, session, cfg); err != nil {
		return res, fmt.Errorf("%s: %w", StateInit, err)
	}

	c.enter(&res, StateZFocusSweep)
	res.ZSeries, err = sweep(hardware.AxisZ, c.focus).Run(ctx, zPositions)
	if err != nil {
		return res, fmt.Errorf("%s: %w", StateZFocusSweep, err)
	}
	zi, err := metric.ArgMin(res.ZSeries.Scores())
	if err != nil {
		return res, fmt.Errorf("%s: focus series: %w", StateZFocusSweep, err)
	}
	res.ZFocus = res.ZSeries[zi].Position

	c.enter(&res, StateZRelocate)
	if err := c.relocate(ctx, session.Lens, hardware.AxisZ, res.ZFocus); err != nil {
		return res, fmt.Errorf("%s: %w", StateZRelocate, err)
	}

	c.enter(&res, StateXEdgeSweep)
	res.XSeries, err = sweep(hardware.AxisX, c.edge).Run(ctx, xPositions)
	if err != nil {
		return res, fmt.Errorf("%s: %w", StateXEdgeSweep, err)
	}
	xi, err := metric.EdgeIndex(res.XSeries.Scores())
	if err != nil {
		return res, fmt.Errorf("%s: edge series: %w", StateXEdgeSweep, err)
	}
	res.XEdge = res.XSeries[xi].Position

	c.enter(&res, StateXRelocate)
	if err := c.relocate(ctx, session.Lens, hardware.AxisX, res.XEdge); err != nil {
		return res, fmt.Errorf("%s: %w", StateXRelocate, err)
	}

	monitoring.Logf("coupling: focus Z=%d, edge X=%d", res.ZFocus, res.XEdge)
	return res, nil
}

// init warms up the camera, applies the laser intensity and parks the lens
// at the origin, X first.
func (c *Controller) init(ctx context.Context, s *hardware.Session, cfg Config) error {
	if err := camera.Warmup(s.Camera, cfg.WarmupFrames); err != nil {
		return fmt.Errorf("%w: %w", ErrFrameAcquisition, err)
	}
	if cfg.LaserIntensity != nil {
		if s.Laser == nil {
			return fmt.Errorf("%w: no laser in session", ErrIlluminator)
		}
		if err := s.Laser.SetIntensity(*cfg.LaserIntensity); err != nil {
			return fmt.Errorf("%w: %w", ErrIlluminator, err)
		}
	}
	for _, axis := range []hardware.Axis{hardware.AxisX, hardware.AxisZ} {
		if err := c.relocate(ctx, s.Lens, axis, 0); err != nil {
			return fmt.Errorf("reset: %w", err)
		}
	}
	return nil
}

func (c *Controller) relocate(ctx context.Context, lens hardware.Actuator, axis hardware.Axis, pos int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := lens.Move(pos, axis); err != nil {
		return fmt.Errorf("%w: %s to %d: %w", ErrActuator, axis, pos, err)
	}
	return nil
}

func (c *Controller) enter(res *Result, s State) {
	res.Reached = s
	monitoring.Logf("coupling: %s", s)
}
