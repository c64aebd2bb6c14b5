// Package distortion builds and corrects polynomial optical-distortion models.
//
// A Model holds two square coefficient matrices Fx and Fy. Entry (i, j) with
// j <= i is the coefficient of x^j * y^(i-j) in the degree-i term. Models are
// immutable: every correction returns a new Model.
package distortion

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// MinOrder is the lowest polynomial order a Model carries.
const MinOrder = 3

// RefPix describes the reference pixel and pointing metadata of a model.
type RefPix struct {
	XRef         float64
	YRef         float64
	Width        float64
	Height       float64
	PlateScale   float64
	V2Ref        float64
	V3Ref        float64
	Theta        float64
	XDelta       float64
	YDelta       float64
	DefaultScale bool
	Centered     bool
	Identity     bool
}

// Model is a distortion coefficient model.
type Model struct {
	fx, fy *mat.Dense
	order  int
	ref    RefPix
}

// NewModel copies fx and fy into a new Model. Both must be square, equal in
// size, and describe at least MinOrder.
func NewModel(fx, fy mat.Matrix, ref RefPix) (*Model, error) {
	r, c := fx.Dims()
	ry, cy := fy.Dims()
	if r != c || ry != cy || r != ry {
		return nil, fmt.Errorf("coefficient matrices must be square and equal in size, got %dx%d and %dx%d", r, c, ry, cy)
	}
	if r-1 < MinOrder {
		return nil, fmt.Errorf("coefficient matrices describe order %d, need at least %d", r-1, MinOrder)
	}
	return &Model{
		fx:    mat.DenseCopyOf(fx),
		fy:    mat.DenseCopyOf(fy),
		order: r - 1,
		ref:   ref,
	}, nil
}

// Identity returns the non-distorting default model.
func Identity() *Model {
	m := zeroModel(MinOrder)
	m.fx.Set(1, 1, 1)
	m.fy.Set(1, 0, 1)
	m.ref = RefPix{Centered: true, Identity: true}
	return m
}

func zeroModel(order int) *Model {
	return &Model{
		fx:    mat.NewDense(order+1, order+1, nil),
		fy:    mat.NewDense(order+1, order+1, nil),
		order: order,
	}
}

// Order returns the polynomial order.
func (m *Model) Order() int { return m.order }

// RefPix returns the model's reference metadata.
func (m *Model) RefPix() RefPix { return m.ref }

// IsIdentity reports whether this is the default non-distorting model;
// consumers skip geometric correction when it is set.
func (m *Model) IsIdentity() bool { return m.ref.Identity }

// Fx returns a copy of the X coefficient matrix.
func (m *Model) Fx() *mat.Dense { return mat.DenseCopyOf(m.fx) }

// Fy returns a copy of the Y coefficient matrix.
func (m *Model) Fy() *mat.Dense { return mat.DenseCopyOf(m.fy) }

// CX returns the X coefficient for degree i, term j.
func (m *Model) CX(i, j int) float64 { return m.fx.At(i, j) }

// CY returns the Y coefficient for degree i, term j.
func (m *Model) CY(i, j int) float64 { return m.fy.At(i, j) }

// Clone returns an independent copy.
func (m *Model) Clone() *Model {
	return &Model{fx: mat.DenseCopyOf(m.fx), fy: mat.DenseCopyOf(m.fy), order: m.order, ref: m.ref}
}

// NormScale returns the divisor that converts polynomial output into pixel
// units. The identity model is already in pixels.
func (m *Model) NormScale(framePlateScale float64) float64 {
	switch {
	case m.ref.Identity:
		return 1
	case m.ref.PlateScale > 0:
		return m.ref.PlateScale
	case framePlateScale > 0:
		return framePlateScale
	default:
		return 1
	}
}

// Apply evaluates the polynomial at (x, y) relative to (cx, cy) and returns
// the corrected offsets divided by scale. order <= 0 uses the full order.
func (m *Model) Apply(x, y, cx, cy, scale float64, order int) (float64, float64) {
	if order <= 0 || order > m.order {
		order = m.order
	}
	if scale == 0 {
		scale = 1
	}
	dx, dy := x-cx, y-cy
	var ox, oy float64
	for i := 0; i <= order; i++ {
		for j := 0; j <= i; j++ {
			term := math.Pow(dx, float64(j)) * math.Pow(dy, float64(i-j))
			ox += m.fx.At(i, j) * term
			oy += m.fy.At(i, j) * term
		}
	}
	return ox / scale, oy / scale
}

// scaled returns a copy with both matrices multiplied by s.
func (m *Model) scaled(s float64) *Model {
	out := m.Clone()
	out.fx.Scale(s, out.fx)
	out.fy.Scale(s, out.fy)
	return out
}
