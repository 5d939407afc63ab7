// Package hardware drives the lens and laser endpoints hosted on the coupling
// bench's serial controller and bundles them with the camera into a session.
package hardware

import (
	"fmt"
	"strings"
)

// Axis names one lens axis.
type Axis string

const (
	AxisX Axis = "X"
	AxisZ Axis = "Z"
)

// ParseAxis accepts "x"/"X" and "z"/"Z".
func ParseAxis(s string) (Axis, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "X":
		return AxisX, nil
	case "Z":
		return AxisZ, nil
	}
	return "", fmt.Errorf("unknown axis %q", s)
}

// Actuator moves one axis to an absolute position and returns once the
// motion has completed.
type Actuator interface {
	Move(position int, axis Axis) error
}

// Illuminator sets the source intensity.
type Illuminator interface {
	SetIntensity(value int) error
}
