package frame

import (
	"errors"
	"image"

	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/mat"
)

// PlaneMat copies plane into a new single-channel CV_64F Mat. The caller
// owns the Mat and must Close it.
func PlaneMat(plane *mat.Dense) gocv.Mat {
	rows, cols := plane.Dims()
	m := gocv.NewMatWithSize(rows, cols, gocv.MatTypeCV64F)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			m.SetDoubleAt(r, c, plane.At(r, c))
		}
	}
	return m
}

// MatPlane copies a single-channel CV_64F Mat into a plane.
func MatPlane(m gocv.Mat) (*mat.Dense, error) {
	if m.Empty() {
		return nil, ErrEmptyFrame
	}
	if m.Type() != gocv.MatTypeCV64F {
		return nil, errors.New("mat is not single-channel float64")
	}
	rows, cols := m.Rows(), m.Cols()
	out := mat.NewDense(rows, cols, nil)
	for r := 0; r < rows; r++ {
		row := out.RawRowView(r)
		for c := range row {
			row[c] = m.GetDoubleAt(r, c)
		}
	}
	return out, nil
}

// GaussianBlur smooths src into dst with a Gaussian of the given sigma in
// pixels. OpenCV sizes the kernel to 4 sigma either side for float input and
// the border mirrors with the edge sample repeated (d c b a | a b c d). A
// non-positive sigma copies src.
func GaussianBlur(src gocv.Mat, dst *gocv.Mat, sigma float64) {
	if sigma <= 0 {
		src.CopyTo(dst)
		return
	}
	gocv.GaussianBlur(src, dst, image.Point{}, sigma, sigma, gocv.BorderReflect)
}
