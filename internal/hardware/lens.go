package hardware

import (
	"fmt"

	"github.com/banshee-data/autocouple/internal/serialmux"
)

// Laser intensity bounds accepted by the controller firmware.
const (
	MinLaserIntensity = 0
	MaxLaserIntensity = 1024
)

// Lens is a two-axis lens positioner addressed by ID on a shared serial link.
type Lens struct {
	link serialmux.Commander
	id   int
}

// NewLens returns the lens endpoint with the given ID.
func NewLens(link serialmux.Commander, id int) *Lens {
	return &Lens{link: link, id: id}
}

// Move sends "LENS<id> <axis> <position>" and waits for the acknowledgement
// the firmware sends after the motion completes.
func (l *Lens) Move(position int, axis Axis) error {
	if axis != AxisX && axis != AxisZ {
		return fmt.Errorf("lens %d: unknown axis %q", l.id, axis)
	}
	if err := l.link.SendCommand(fmt.Sprintf("LENS%d %s %d", l.id, axis, position)); err != nil {
		return fmt.Errorf("lens %d move %s to %d: %w", l.id, axis, position, err)
	}
	return nil
}

// Laser is an intensity-controlled laser addressed by ID on a shared serial
// link.
type Laser struct {
	link serialmux.Commander
	id   int
}

// NewLaser returns the laser endpoint with the given ID.
func NewLaser(link serialmux.Commander, id int) *Laser {
	return &Laser{link: link, id: id}
}

// SetIntensity sends "LASER<id> <value>".
func (l *Laser) SetIntensity(value int) error {
	if value < MinLaserIntensity || value > MaxLaserIntensity {
		return fmt.Errorf("laser %d: intensity %d outside %d..%d", l.id, value, MinLaserIntensity, MaxLaserIntensity)
	}
	if err := l.link.SendCommand(fmt.Sprintf("LASER%d %d", l.id, value)); err != nil {
		return fmt.Errorf("laser %d intensity %d: %w", l.id, value, err)
	}
	return nil
}
