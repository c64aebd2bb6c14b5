package wcs

import (
	"fmt"
	"math"
)

const deg2rad = math.Pi / 180

// Distortion is a polynomial model that maps pixel offsets from a reference
// position into undistorted offsets.
type Distortion interface {
	Apply(x, y, cx, cy, scale float64, order int) (float64, float64)
	NormScale(framePlateScale float64) float64
	IsIdentity() bool
}

// PixToSky maps a 1-based pixel position to (ra, dec) in degrees through the
// distortion-free gnomonic projection.
func (f Frame) PixToSky(px, py float64) (float64, float64) {
	return f.offsetToSky(px-f.CRPix[0], py-f.CRPix[1])
}

// AllPixToSky maps a pixel position to sky including the distortion model d,
// evaluated about the frame's reference pixel. A nil or identity model
// reduces to PixToSky.
func (f Frame) AllPixToSky(d Distortion, px, py float64) (float64, float64) {
	if d == nil || d.IsIdentity() {
		return f.PixToSky(px, py)
	}
	ux, uy := d.Apply(px, py, f.CRPix[0], f.CRPix[1], d.NormScale(f.PScale), 0)
	return f.offsetToSky(ux, uy)
}

// SkyToPix maps (ra, dec) in degrees to a 1-based pixel position through the
// distortion-free gnomonic projection.
func (f Frame) SkyToPix(ra, dec float64) (float64, float64) {
	ra0, dec0 := f.CRVal[0]*deg2rad, f.CRVal[1]*deg2rad
	a, d := ra*deg2rad, dec*deg2rad

	cosc := math.Sin(dec0)*math.Sin(d) + math.Cos(dec0)*math.Cos(d)*math.Cos(a-ra0)
	xi := math.Cos(d) * math.Sin(a-ra0) / cosc
	eta := (math.Cos(dec0)*math.Sin(d) - math.Sin(dec0)*math.Cos(d)*math.Cos(a-ra0)) / cosc
	xi /= deg2rad
	eta /= deg2rad

	det := f.CD[0][0]*f.CD[1][1] - f.CD[0][1]*f.CD[1][0]
	dx := (f.CD[1][1]*xi - f.CD[0][1]*eta) / det
	dy := (-f.CD[1][0]*xi + f.CD[0][0]*eta) / det
	return dx + f.CRPix[0], dy + f.CRPix[1]
}

func (f Frame) offsetToSky(dx, dy float64) (float64, float64) {
	xi := (f.CD[0][0]*dx + f.CD[0][1]*dy) * deg2rad
	eta := (f.CD[1][0]*dx + f.CD[1][1]*dy) * deg2rad
	ra0, dec0 := f.CRVal[0]*deg2rad, f.CRVal[1]*deg2rad

	den := math.Cos(dec0) - eta*math.Sin(dec0)
	ra := ra0 + math.Atan2(xi, den)
	dec := math.Atan2(math.Sin(dec0)+eta*math.Cos(dec0), math.Hypot(xi, den))

	ra /= deg2rad
	ra = math.Mod(ra, 360)
	if ra < 0 {
		ra += 360
	}
	return ra, dec / deg2rad
}

// HMS formats a sky position as sexagesimal hours and degrees.
func HMS(ra, dec float64) (string, string) {
	h := ra / 15
	m := (h - math.Floor(h)) * 60
	s := (m - math.Floor(m)) * 60

	adec := math.Abs(dec)
	dm := (adec - math.Floor(adec)) * 60
	ds := (dm - math.Floor(dm)) * 60
	sign := ""
	if dec < 0 {
		sign = "-"
	}
	return fmt.Sprintf("%d:%02d:%06.3f", int(h), int(m), s),
		fmt.Sprintf("%s%d:%02d:%06.3f", sign, int(adec), int(dm), ds)
}
