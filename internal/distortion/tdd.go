package distortion

import (
	"math"
	"time"

	"gonum.org/v1/gonum/mat"
)

// TDDParams holds the constants of the time-dependent skew correction.
type TDDParams struct {
	Epoch       time.Time
	Alpha0      float64
	Alpha1      float64
	Beta0       float64
	Beta1       float64
	PeriodYears float64
	ReferenceX  float64
	ReferenceY  float64
	PixelScale  float64
	ModelScale  float64
}

// DefaultTDDParams returns the published skew-correction constants.
func DefaultTDDParams() TDDParams {
	return TDDParams{
		Epoch:       time.Date(2004, time.July, 1, 0, 0, 0, 0, time.UTC),
		Alpha0:      0.095,
		Alpha1:      0.090,
		Beta0:       -0.029,
		Beta1:       -0.030,
		PeriodYears: 2.5,
		ReferenceX:  2048,
		ReferenceY:  1024,
		PixelScale:  0.04973324715,
		ModelScale:  0.05,
	}
}

// Terms returns the alpha and beta skew terms at date.
func (p TDDParams) Terms(date time.Time) (alpha, beta float64) {
	days := math.Floor(date.Sub(p.Epoch).Hours() / 24)
	t := days / 365.25 / p.PeriodYears
	return p.Alpha0 + p.Alpha1*t, p.Beta0 + p.Beta1*t
}

// Correct applies the skew correction to a coefficient pair. dx, dy is the
// pixel offset from the reference point. It returns the corrected matrices
// and the zero-degree offsets divided by ModelScale.
func (p TDDParams) Correct(fx, fy mat.Matrix, dx, dy float64, date time.Time) (*mat.Dense, *mat.Dense, float64, float64) {
	alpha, beta := p.Terms(date)

	theta := math.Atan2(fx.At(1, 0), fy.At(1, 0)) * 180 / math.Pi
	rcx, rcy := RotateCoeffs(fx, fy, theta)

	rx, ry := p.ReferenceX, p.ReferenceY
	mix := mat.NewDense(2, 2, []float64{
		1 + beta/rx, alpha / rx,
		alpha / rx, 1 - beta/rx,
	})
	tcx, tcy := transformPair(mix, rcx, rcy)

	xd := dx + rx
	yd := dy + ry
	tcx.Set(0, 0, tcx.At(0, 0)+(-beta-alpha+xd*(beta/rx)+yd*(alpha/rx))*p.PixelScale)
	tcy.Set(0, 0, tcy.At(0, 0)+(beta-alpha-yd*(beta/rx)+xd*(alpha/rx))*p.PixelScale)

	icx, icy := RotateCoeffs(tcx, tcy, -theta)
	return icx, icy, icx.At(0, 0) / p.ModelScale, icy.At(0, 0) / p.ModelScale
}

// WithTDD returns a corrected copy of m using its XDelta/YDelta as the pixel
// offset, plus the two zero-degree offsets.
func (m *Model) WithTDD(p TDDParams, date time.Time) (*Model, float64, float64) {
	fx, fy, x00, y00 := p.Correct(m.fx, m.fy, m.ref.XDelta, m.ref.YDelta, date)
	return &Model{fx: fx, fy: fy, order: m.order, ref: m.ref}, x00, y00
}
