// Package wcs implements frame descriptors: the linear mapping between pixel
// and sky coordinates of one image plus its size, orientation and plate scale.
package wcs

import (
	"fmt"
	"math"

	"wcscal/internal/header"
)

// Frame is a value type; assignment copies it completely, so frames are
// never aliased across owners.
type Frame struct {
	CRPix  [2]float64
	CRVal  [2]float64
	CD     [2][2]float64
	PScale float64
	Orient float64
	Width  int
	Height int
}

// New builds a frame and derives plate scale and orientation from cd.
func New(crpix, crval [2]float64, cd [2][2]float64, width, height int) Frame {
	f := Frame{CRPix: crpix, CRVal: crval, CD: cd, Width: width, Height: height}
	f.PScale = f.DerivedPlateScale()
	f.Orient = f.DerivedOrientation()
	return f
}

// Clone returns a copy of f.
func (f Frame) Clone() Frame { return f }

// DerivedPlateScale computes arcsec/pixel from the CD matrix.
func (f Frame) DerivedPlateScale() float64 {
	return math.Hypot(f.CD[0][0], f.CD[1][0]) * 3600
}

// DerivedOrientation computes the position angle of the Y axis in degrees.
func (f Frame) DerivedOrientation() float64 {
	return math.Atan2(f.CD[0][1], f.CD[1][1]) * 180 / math.Pi
}

// RotateCD post-multiplies the CD matrix by the rotation for deg degrees.
func (f *Frame) RotateCD(deg float64) {
	rad := deg * math.Pi / 180
	c, s := math.Cos(rad), math.Sin(rad)
	r := [2][2]float64{{c, s}, {-s, c}}
	var out [2][2]float64
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			out[i][j] = f.CD[i][0]*r[0][j] + f.CD[i][1]*r[1][j]
		}
	}
	f.CD = out
}

// ScaleCD multiplies every CD entry by s.
func (f *Frame) ScaleCD(s float64) {
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			f.CD[i][j] *= s
		}
	}
}

// RotateVector rotates (x, y) as a row vector by deg degrees.
func RotateVector(x, y, deg float64) (float64, float64) {
	rad := deg * math.Pi / 180
	c, s := math.Cos(rad), math.Sin(rad)
	return x*c - y*s, x*s + y*c
}

// FromHeader builds a frame from CRPIXn, CRVALn, CDi_j and NAXISn (or NPIXn)
// keywords. ORIENTAT, when present, overrides the derived orientation.
func FromHeader(h header.Header) (Frame, error) {
	var f Frame
	var err error
	for i, ax := range []string{"1", "2"} {
		if f.CRPix[i], err = h.Float("CRPIX" + ax); err != nil {
			return Frame{}, fmt.Errorf("frame from header: %w", err)
		}
		if f.CRVal[i], err = h.Float("CRVAL" + ax); err != nil {
			return Frame{}, fmt.Errorf("frame from header: %w", err)
		}
	}
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			f.CD[i][j] = h.FloatOr(fmt.Sprintf("CD%d_%d", i+1, j+1), 0)
		}
	}
	if f.CD[0][0]*f.CD[1][1]-f.CD[0][1]*f.CD[1][0] == 0 {
		return Frame{}, fmt.Errorf("frame from header: CD matrix is singular or missing")
	}
	f.Width = sizeKeyword(h, "NAXIS1", "NPIX1")
	f.Height = sizeKeyword(h, "NAXIS2", "NPIX2")
	f.PScale = f.DerivedPlateScale()
	f.Orient = h.FloatOr("ORIENTAT", f.DerivedOrientation())
	return f, nil
}

func sizeKeyword(h header.Header, keys ...string) int {
	for _, k := range keys {
		if n, err := h.Int(k); err == nil {
			return n
		}
	}
	return 0
}

// ToHeader writes the frame keywords into h.
func (f Frame) ToHeader(h header.Header) {
	h.Set("CRPIX1", f.CRPix[0])
	h.Set("CRPIX2", f.CRPix[1])
	h.Set("CRVAL1", f.CRVal[0])
	h.Set("CRVAL2", f.CRVal[1])
	h.Set("CD1_1", f.CD[0][0])
	h.Set("CD1_2", f.CD[0][1])
	h.Set("CD2_1", f.CD[1][0])
	h.Set("CD2_2", f.CD[1][1])
	h.Set("ORIENTAT", f.Orient)
}

// ToDrizzleArray packs the frame into the resampler's 8-element layout.
func (f Frame) ToDrizzleArray() [8]float64 {
	return [8]float64{
		f.CRPix[0], f.CRVal[0], f.CRPix[1], f.CRVal[1],
		f.CD[0][0], f.CD[1][0], f.CD[0][1], f.CD[1][1],
	}
}

// FromDrizzleArray unpacks the resampler layout into f and recomputes its
// plate scale and orientation. Size is left unchanged.
func (f *Frame) FromDrizzleArray(a [8]float64) {
	f.CRPix = [2]float64{a[0], a[2]}
	f.CRVal = [2]float64{a[1], a[3]}
	f.CD = [2][2]float64{{a[4], a[6]}, {a[5], a[7]}}
	f.PScale = f.DerivedPlateScale()
	f.Orient = f.DerivedOrientation()
}

func (f Frame) String() string {
	return fmt.Sprintf("crpix=(%.3f,%.3f) crval=(%.7f,%.7f) pscale=%.6f orient=%.4f size=%dx%d",
		f.CRPix[0], f.CRPix[1], f.CRVal[0], f.CRVal[1], f.PScale, f.Orient, f.Width, f.Height)
}
