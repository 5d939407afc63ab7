package camera

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/banshee-data/autocouple/internal/frame"
)

// ExposureUnit is the step of the exposure setting. An exposure of 1 holds
// the sensor open for 100µs.
const ExposureUnit = 100 * time.Microsecond

// DefaultExposure is the shortest exposure the sensor accepts.
const DefaultExposure = 1

// captureFrameRate is the sensor mode requested from the CSI driver.
const captureFrameRate = 120

// GStreamerPipeline returns the appsink pipeline for the bench's CSI sensor.
// Exposure and gain are pinned so frame brightness only depends on the scene.
func GStreamerPipeline(width, height, exposure int) string {
	ns := int64(exposure) * ExposureUnit.Nanoseconds()
	return fmt.Sprintf("nvarguscamerasrc "+
		`exposuretimerange="%d %d" gainrange="1 1" ispdigitalgainrange="1 1" `+
		"awblock=true aelock=true "+
		"! video/x-raw(memory:NVMM), width=(int)%d, height=(int)%d, "+
		"format=(string)NV12, framerate=(fraction)%d/1 "+
		"! nvvidconv flip-method=0 "+
		"! video/x-raw, width=(int)%d, height=(int)%d, format=(string)BGRx "+
		"! videoconvert ! video/x-raw, format=(string)BGR ! appsink",
		ns, ns, width, height, captureFrameRate, width, height)
}

// CaptureCamera reads frames from an OpenCV capture device.
type CaptureCamera struct {
	mu     sync.Mutex
	vc     *gocv.VideoCapture
	img    gocv.Mat
	width  int
	height int
	closed bool
}

// OpenCapture opens a GStreamer pipeline through OpenCV. When width and
// height are positive, every frame read must match them.
func OpenCapture(pipeline string, width, height int) (*CaptureCamera, error) {
	vc, err := gocv.OpenVideoCaptureWithAPI(pipeline, gocv.VideoCaptureGstreamer)
	if err != nil {
		if vc != nil {
			vc.Close()
		}
		return nil, fmt.Errorf("open capture: %w", err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, errors.New("open capture: pipeline did not start")
	}
	return &CaptureCamera{vc: vc, img: gocv.NewMat(), width: width, height: height}, nil
}

// Read grabs the next frame and converts it to RGB.
func (c *CaptureCamera) Read() (*frame.Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrCameraClosed
	}

	if ok := c.vc.Read(&c.img); !ok || c.img.Empty() {
		return nil, errors.New("capture returned no frame")
	}
	img, err := c.img.ToImage()
	if err != nil {
		return nil, fmt.Errorf("convert capture frame: %w", err)
	}
	f := frame.FromImage(img)
	if c.width > 0 && c.height > 0 && (f.Width != c.width || f.Height != c.height) {
		return nil, fmt.Errorf("capture frame is %dx%d, camera configured for %dx%d",
			f.Width, f.Height, c.width, c.height)
	}
	return f, nil
}

// Close releases the capture device. Further reads fail.
func (c *CaptureCamera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.img.Close()
	return c.vc.Close()
}
