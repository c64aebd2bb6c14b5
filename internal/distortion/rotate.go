package distortion

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// RotMatrix builds the 2x2 rotation [[cos, sin], [-sin, cos]] for deg degrees.
func RotMatrix(deg float64) *mat.Dense {
	rad := deg * math.Pi / 180
	c, s := math.Cos(rad), math.Sin(rad)
	return mat.NewDense(2, 2, []float64{c, s, -s, c})
}

// RotateCoeffs rotates a coefficient pair by deg degrees.
func RotateCoeffs(fx, fy mat.Matrix, deg float64) (*mat.Dense, *mat.Dense) {
	return transformPair(RotMatrix(deg), fx, fy)
}

// transformPair multiplies the 2x2 matrix t against the flattened (fx, fy)
// pair and reshapes the two result rows back into matrices.
func transformPair(t mat.Matrix, fx, fy mat.Matrix) (*mat.Dense, *mat.Dense) {
	r, c := fx.Dims()
	pair := mat.NewDense(2, r*c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			pair.Set(0, i*c+j, fx.At(i, j))
			pair.Set(1, i*c+j, fy.At(i, j))
		}
	}
	var out mat.Dense
	out.Mul(t, pair)

	ox := mat.NewDense(r, c, nil)
	oy := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			ox.Set(i, j, out.At(0, i*c+j))
			oy.Set(i, j, out.At(1, i*c+j))
		}
	}
	return ox, oy
}
