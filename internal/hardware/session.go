package hardware

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/banshee-data/autocouple/internal/camera"
	"github.com/banshee-data/autocouple/internal/serialmux"
)

// Default endpoint addresses on the bench controller.
const (
	DefaultLensID  = 1
	DefaultLaserID = 1
)

// Session is the exclusively owned hardware of one coupling run: the serial
// link, the lens and laser endpoints on it, and the camera.
type Session struct {
	Lens   Actuator
	Laser  Illuminator
	Camera camera.Camera

	link      io.Closer
	closeOnce sync.Once
	closeErr  error
}

// NewSession bundles already opened hardware. link may be nil when the
// endpoints are not serial-backed.
func NewSession(link io.Closer, lens Actuator, laser Illuminator, cam camera.Camera) *Session {
	return &Session{Lens: lens, Laser: laser, Camera: cam, link: link}
}

// Close releases the camera and then closes the serial link. Both steps run
// even if the first fails; repeated calls return the first result.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		var errs []error
		if s.Camera != nil {
			if err := s.Camera.Close(); err != nil {
				errs = append(errs, fmt.Errorf("release camera: %w", err))
			}
		}
		if s.link != nil {
			if err := s.link.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close serial link: %w", err))
			}
		}
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}

// Opener acquires a fresh session for one run.
type Opener interface {
	Open(ctx context.Context, port string) (*Session, error)
}

// CameraOpener opens the camera used by a session.
type CameraOpener func() (camera.Camera, error)

// SerialOpener opens the serial link through a port factory, attaches the
// lens and laser endpoints and opens the camera. Partially opened hardware is
// released before an error is returned.
type SerialOpener struct {
	Factory    serialmux.SerialPortFactory
	Options    serialmux.PortOptions
	LensID     int
	LaserID    int
	OpenCamera CameraOpener
}

// Open implements Opener.
func (o *SerialOpener) Open(ctx context.Context, port string) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if o.OpenCamera == nil {
		return nil, errors.New("no camera configured")
	}

	p, err := o.Factory.Open(port, o.Options)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", port, err)
	}
	mux := serialmux.NewSerialMux(p)

	cam, err := o.OpenCamera()
	if err != nil {
		mux.Close()
		return nil, fmt.Errorf("open camera: %w", err)
	}

	lensID, laserID := o.LensID, o.LaserID
	if lensID == 0 {
		lensID = DefaultLensID
	}
	if laserID == 0 {
		laserID = DefaultLaserID
	}
	return NewSession(mux, NewLens(mux, lensID), NewLaser(mux, laserID), cam), nil
}
