package coupling

import (
	"errors"

	"github.com/banshee-data/autocouple/internal/metric"
)

var (
	// ErrHardwareConnect wraps failures opening the serial link or camera.
	// Nothing has moved when it is returned.
	ErrHardwareConnect = errors.New("hardware connect failed")

	// ErrActuator wraps a failed lens move.
	ErrActuator = errors.New("actuator move failed")

	// ErrIlluminator wraps a failed laser command.
	ErrIlluminator = errors.New("illuminator command failed")

	// ErrFrameAcquisition wraps a failed camera read.
	ErrFrameAcquisition = errors.New("frame acquisition failed")

	// ErrDegenerateSignal reports a sweep whose scores have no usable
	// extremum, such as a flat focus series or an X sweep without an edge.
	ErrDegenerateSignal = metric.ErrDegenerateSignal
)
