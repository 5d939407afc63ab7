// Package sim provides a simulated coupling bench for development and tests:
// a lens controller answering serial commands and a camera rendering the
// reflected laser spot for the current lens position.
package sim

import (
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/banshee-data/autocouple/internal/camera"
	"github.com/banshee-data/autocouple/internal/hardware"
	"github.com/banshee-data/autocouple/internal/serialmux"
)

// Bench holds the simulated lens, laser and optics. Configuration fields may
// be changed before the bench is used.
type Bench struct {
	mu sync.Mutex
	x  int
	z  int

	laser    int
	commands []string

	// Configuration
	LensID      int     // address answered by the lens
	LaserID     int     // address answered by the laser
	FocusZ      int     // Z position of the smallest spot
	EdgeX       int     // X position where the chip edge starts
	SpotSigma   float64 // pixels, spot radius at focus
	Defocus     float64 // pixels of spot growth per Z step away from focus
	Peak        float64 // spot peak intensity at full laser power and unit exposure, 0..255 scale
	OffChip     float64 // reflectivity left of the edge
	OnChip      float64 // reflectivity at and right of the edge
	RedGlare    float64 // constant red-channel reflection
	Noise       float64 // standard deviation of additive pixel noise
	Width       int     // frame width in pixels
	Height      int     // frame height in pixels
	Exposure    int     // sensor exposure in camera.ExposureUnit steps, scales brightness
	FailOnMoves int     // reject the n-th lens move; 0 never

	moves int
	rng   *rand.Rand
}

// NewBench returns a bench focused at focusZ with its edge at edgeX.
func NewBench(focusZ, edgeX int) *Bench {
	return &Bench{
		laser:     hardware.MaxLaserIntensity,
		LensID:    hardware.DefaultLensID,
		LaserID:   hardware.DefaultLaserID,
		FocusZ:    focusZ,
		EdgeX:     edgeX,
		SpotSigma: 6,
		Defocus:   0.04,
		Peak:      220,
		OffChip:   0.2,
		OnChip:    1.0,
		RedGlare:  180,
		Width:     camera.DefaultFrameWidth,
		Height:    camera.DefaultFrameHeight,
		Exposure:  camera.DefaultExposure,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Seed makes the pixel noise reproducible.
func (b *Bench) Seed(seed int64) {
	b.mu.Lock()
	b.rng = rand.New(rand.NewSource(seed))
	b.mu.Unlock()
}

// Position returns the current lens position.
func (b *Bench) Position() (x, z int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.x, b.z
}

// Laser returns the current laser intensity.
func (b *Bench) Laser() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.laser
}

// Commands returns every command line received, in order.
func (b *Bench) Commands() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.commands...)
}

// HandleCommand executes one command line and returns the controller's
// reply: "ok" or "error:<reason>".
func (b *Bench) HandleCommand(line string) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	line = strings.TrimSpace(line)
	b.commands = append(b.commands, line)
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "error:empty command"
	}

	switch {
	case strings.HasPrefix(fields[0], "LENS"):
		return b.lens(fields)
	case strings.HasPrefix(fields[0], "LASER"):
		return b.setLaser(fields)
	}
	return fmt.Sprintf("error:unknown command %s", fields[0])
}

func (b *Bench) lens(fields []string) string {
	if id, err := strconv.Atoi(strings.TrimPrefix(fields[0], "LENS")); err != nil || id != b.LensID {
		return fmt.Sprintf("error:no device %s", fields[0])
	}
	if len(fields) != 3 {
		return "error:usage LENS<id> <axis> <position>"
	}
	pos, err := strconv.Atoi(fields[2])
	if err != nil {
		return fmt.Sprintf("error:bad position %s", fields[2])
	}

	b.moves++
	if b.FailOnMoves > 0 && b.moves == b.FailOnMoves {
		return "error:motor stalled"
	}

	switch hardware.Axis(fields[1]) {
	case hardware.AxisX:
		b.x = pos
	case hardware.AxisZ:
		b.z = pos
	default:
		return fmt.Sprintf("error:bad axis %s", fields[1])
	}
	return "ok"
}

func (b *Bench) setLaser(fields []string) string {
	if id, err := strconv.Atoi(strings.TrimPrefix(fields[0], "LASER")); err != nil || id != b.LaserID {
		return fmt.Sprintf("error:no device %s", fields[0])
	}
	if len(fields) != 2 {
		return "error:usage LASER<id> <value>"
	}
	v, err := strconv.Atoi(fields[1])
	if err != nil || v < hardware.MinLaserIntensity || v > hardware.MaxLaserIntensity {
		return fmt.Sprintf("error:bad intensity %s", fields[1])
	}
	b.laser = v
	return "ok"
}

// SerialPort returns a serial port whose device side is this bench.
func (b *Bench) SerialPort() *serialmux.TestableSerialPort {
	return serialmux.NewRespondingSerialPort(b.HandleCommand)
}

// Opener returns a session opener that reaches the bench through the real
// serialmux command path.
func (b *Bench) Opener() *hardware.SerialOpener {
	return &hardware.SerialOpener{
		Factory: serialmux.NewMockSerialPortFactory(b.SerialPort()),
		LensID:  b.LensID,
		LaserID: b.LaserID,
		OpenCamera: func() (camera.Camera, error) {
			return NewCamera(b), nil
		},
	}
}

// spotSigma returns the spot radius for lens height z.
func (b *Bench) spotSigma(z int) float64 {
	return b.SpotSigma + b.Defocus*math.Abs(float64(z-b.FocusZ))
}

// reflectivity returns the surface reflectivity under lens position x.
func (b *Bench) reflectivity(x int) float64 {
	if x >= b.EdgeX {
		return b.OnChip
	}
	return b.OffChip
}
