// Package fit solves least-squares affine registrations between point sets.
package fit

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// ErrTooFewPoints is returned when fewer than three point pairs are given.
var ErrTooFewPoints = errors.New("fit: need at least 3 point pairs")

// SingularMatrixError reports a normal-equations matrix that cannot be
// inverted, usually because the image points are collinear or repeated.
type SingularMatrixError struct {
	Err error
}

func (e *SingularMatrixError) Error() string {
	return fmt.Sprintf("fit: singular normal matrix: %v", e.Err)
}

func (e *SingularMatrixError) Unwrap() error { return e.Err }

// Point is a 2D position.
type Point struct {
	X, Y float64
}

// Result holds the affine map x' = A*x + B*y + XT, y' = C*x + D*y + YT.
type Result struct {
	A, B, XT float64
	C, D, YT float64
}

// Apply maps p through the fitted transform.
func (r Result) Apply(p Point) Point {
	return Point{
		X: r.A*p.X + r.B*p.Y + r.XT,
		Y: r.C*p.X + r.D*p.Y + r.YT,
	}
}

// Fitlin computes the least-squares affine transform mapping img onto ref.
// Coordinates are centred on the first pair before the normal equations are
// accumulated.
func Fitlin(img, ref []Point) (Result, error) {
	if len(img) != len(ref) {
		return Result{}, fmt.Errorf("fit: point count mismatch: %d vs %d", len(img), len(ref))
	}
	if len(img) < 3 {
		return Result{}, ErrTooFewPoints
	}

	org, oorg := img[0], ref[0]
	normal := mat.NewSymDense(3, nil)
	rhsX := mat.NewVecDense(3, nil)
	rhsY := mat.NewVecDense(3, nil)
	for i := range img {
		u, v := img[i].X-org.X, img[i].Y-org.Y
		du, dv := ref[i].X-oorg.X, ref[i].Y-oorg.Y

		normal.SetSym(0, 0, normal.At(0, 0)+u*u)
		normal.SetSym(0, 1, normal.At(0, 1)+u*v)
		normal.SetSym(0, 2, normal.At(0, 2)+u)
		normal.SetSym(1, 1, normal.At(1, 1)+v*v)
		normal.SetSym(1, 2, normal.At(1, 2)+v)

		for k, w := range []float64{u, v, 1} {
			rhsX.SetVec(k, rhsX.AtVec(k)+du*w)
			rhsY.SetVec(k, rhsY.AtVec(k)+dv*w)
		}
	}
	normal.SetSym(2, 2, float64(len(img)))

	var inv mat.Dense
	if err := inv.Inverse(normal); err != nil {
		return Result{}, &SingularMatrixError{Err: err}
	}

	var px, py mat.VecDense
	px.MulVec(&inv, rhsX)
	py.MulVec(&inv, rhsY)

	r := Result{
		A: px.AtVec(0), B: px.AtVec(1),
		C: py.AtVec(0), D: py.AtVec(1),
	}
	// The centred intercepts are dropped; the translation is anchored on the
	// first pair.
	r.XT = oorg.X - r.A*org.X - r.B*org.Y
	r.YT = oorg.Y - r.C*org.X - r.D*org.Y
	return r, nil
}
