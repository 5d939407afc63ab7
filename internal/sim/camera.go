package sim

import (
	"math"
	"sync"

	"github.com/banshee-data/autocouple/internal/camera"
	"github.com/banshee-data/autocouple/internal/frame"
)

// Camera renders frames of a Bench. The spot sits in the middle of the frame
// in the green and blue channels; its width follows the Z defocus and its
// brightness scales with laser intensity and exposure times the reflectivity
// under X. The red channel carries a constant glare. Pixels saturate at 255.
type Camera struct {
	bench  *Bench
	mu     sync.Mutex
	closed bool
	frames int
}

// NewCamera returns a camera looking at b.
func NewCamera(b *Bench) *Camera {
	return &Camera{bench: b}
}

// Frames returns the number of frames rendered.
func (c *Camera) Frames() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frames
}

// Read renders the current view.
func (c *Camera) Read() (*frame.Frame, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, camera.ErrCameraClosed
	}
	c.frames++
	c.mu.Unlock()

	b := c.bench
	b.mu.Lock()
	defer b.mu.Unlock()

	sigma := b.spotSigma(b.z)
	amp := b.Peak * float64(b.laser) / 1024 * b.reflectivity(b.x)
	// Spread the same power over a wider spot.
	amp *= (b.SpotSigma * b.SpotSigma) / (sigma * sigma)
	exposure := float64(max(b.Exposure, 1))
	amp *= exposure
	glare := clamp(b.RedGlare * exposure)

	f := frame.New(b.Width, b.Height, 3)
	cx, cy := float64(b.Width-1)/2, float64(b.Height-1)/2
	k := -1 / (2 * sigma * sigma)
	for y := 0; y < b.Height; y++ {
		dy := float64(y) - cy
		for x := 0; x < b.Width; x++ {
			dx := float64(x) - cx
			v := amp * math.Exp((dx*dx+dy*dy)*k)
			if b.Noise > 0 {
				v += b.rng.NormFloat64() * b.Noise
			}
			v = clamp(v)
			f.Set(x, y, frame.Red, glare)
			f.Set(x, y, frame.Green, v)
			f.Set(x, y, frame.Blue, v)
		}
	}
	return f, nil
}

// Close marks the camera released. Further reads fail.
func (c *Camera) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(255, v))
}
