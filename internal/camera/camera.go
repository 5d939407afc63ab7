// Package camera defines the frame source the coupling loop reads from, the
// GStreamer capture camera of the bench and a playback camera that serves
// recorded frames from disk.
package camera

import (
	"fmt"

	"github.com/banshee-data/autocouple/internal/frame"
)

// DefaultWarmupFrames is the number of frames discarded after opening a
// camera while its auto-exposure settles.
const DefaultWarmupFrames = 20

// Default frame geometry of the bench camera.
const (
	DefaultFrameWidth  = 320
	DefaultFrameHeight = 240
)

// FrameSource acquires single frames. Read may block for the camera's frame
// interval.
type FrameSource interface {
	Read() (*frame.Frame, error)
}

// Camera is a FrameSource holding a device handle that must be released.
type Camera interface {
	FrameSource
	Close() error
}

// Warmup reads and discards n frames.
func Warmup(src FrameSource, n int) error {
	for i := 0; i < n; i++ {
		if _, err := src.Read(); err != nil {
			return fmt.Errorf("warm-up frame %d/%d: %w", i+1, n, err)
		}
	}
	return nil
}
