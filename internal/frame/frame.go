// Package frame holds camera frames as float64 pixel grids and the reductions
// the coupling metrics apply to them.
package frame

import (
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	"gonum.org/v1/gonum/mat"
)

// Channel indexes of a three-channel frame. Frames are always stored in RGB
// order regardless of the sensor's native layout.
const (
	Red   = 0
	Green = 1
	Blue  = 2
)

// ErrEmptyFrame is returned for frames with no pixels.
var ErrEmptyFrame = errors.New("empty frame")

// Frame is a Height x Width grid of pixels with Channels interleaved values
// per pixel, stored row-major.
type Frame struct {
	Width    int
	Height   int
	Channels int
	Pix      []float64
}

// New allocates a zeroed frame.
func New(width, height, channels int) *Frame {
	return &Frame{
		Width:    width,
		Height:   height,
		Channels: channels,
		Pix:      make([]float64, width*height*channels),
	}
}

func (f *Frame) index(x, y, c int) int {
	return (y*f.Width+x)*f.Channels + c
}

// At returns the value of channel c at pixel (x, y).
func (f *Frame) At(x, y, c int) float64 {
	return f.Pix[f.index(x, y, c)]
}

// Set stores v into channel c at pixel (x, y).
func (f *Frame) Set(x, y, c int, v float64) {
	f.Pix[f.index(x, y, c)] = v
}

// Validate checks that the frame has pixels and that the backing slice
// matches its dimensions.
func (f *Frame) Validate() error {
	if f == nil || f.Width <= 0 || f.Height <= 0 || f.Channels <= 0 {
		return ErrEmptyFrame
	}
	if want := f.Width * f.Height * f.Channels; len(f.Pix) != want {
		return fmt.Errorf("frame %dx%dx%d has %d values, want %d", f.Width, f.Height, f.Channels, len(f.Pix), want)
	}
	return nil
}

// Plane averages the channels not listed in drop into a single Height x Width
// intensity plane. Dropping a channel the frame does not have is ignored, so
// single-channel frames pass through unchanged.
func (f *Frame) Plane(drop ...int) (*mat.Dense, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	keep := make([]int, 0, f.Channels)
	for c := 0; c < f.Channels; c++ {
		dropped := false
		for _, d := range drop {
			if c == d {
				dropped = true
				break
			}
		}
		if !dropped {
			keep = append(keep, c)
		}
	}
	if len(keep) == 0 {
		return nil, fmt.Errorf("all %d channels dropped", f.Channels)
	}

	data := make([]float64, f.Width*f.Height)
	n := float64(len(keep))
	for p := range data {
		base := p * f.Channels
		sum := 0.0
		for _, c := range keep {
			sum += f.Pix[base+c]
		}
		data[p] = sum / n
	}
	return mat.NewDense(f.Height, f.Width, data), nil
}

// FromImage converts img into a three-channel RGB frame with 8-bit scaled
// values (0..255).
func FromImage(img image.Image) *Frame {
	b := img.Bounds()
	f := New(b.Dx(), b.Dy(), 3)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			i := f.index(x-b.Min.X, y-b.Min.Y, 0)
			f.Pix[i+Red] = float64(r >> 8)
			f.Pix[i+Green] = float64(g >> 8)
			f.Pix[i+Blue] = float64(bl >> 8)
		}
	}
	return f
}

// Decode reads an encoded image (PNG, JPEG, TIFF or BMP) into a frame.
func Decode(r io.Reader) (*Frame, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	return FromImage(img), nil
}
