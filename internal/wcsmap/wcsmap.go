// Package wcsmap maps pixel positions from an input frame, through its
// distortion model and the sky, onto an output frame.
package wcsmap

import (
	"log/slog"
	"math"

	"wcscal/internal/distortion"
	"wcscal/internal/fit"
	"wcscal/internal/shiftext"
	"wcscal/internal/wcs"
)

// Correction is a shift record translated into the output frame.
type Correction struct {
	ShiftX   float64
	ShiftY   float64
	Rotation float64
	Scale    float64
}

// Translate expresses r, derived in its own reference frame, in out.
func Translate(r shiftext.Record, out wcs.Frame) Correction {
	ratio := r.Frame.PScale / out.PScale
	deltaOrient := r.Frame.Orient - out.Orient
	sx, sy := wcs.RotateVector(r.ShiftX, r.ShiftY, deltaOrient)
	return Correction{
		ShiftX:   sx * ratio,
		ShiftY:   sy * ratio,
		Rotation: -math.Mod(360-r.Rotation, 360),
		Scale:    r.Scale * ratio,
	}
}

// Map pairs an input frame and its distortion model with an output frame.
// The output frame is an owned copy; the input frame and model are shared
// and never modified.
type Map struct {
	input  *wcs.Frame
	model  *distortion.Model
	output wcs.Frame
	shift  *Correction
	ext    shiftext.Manager
	log    *slog.Logger
}

// New builds a map. A nil model means no distortion.
func New(input *wcs.Frame, model *distortion.Model, output wcs.Frame, log *slog.Logger) *Map {
	if model == nil {
		model = distortion.Identity()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Map{
		input:  input,
		model:  model,
		output: output.Clone(),
		ext:    shiftext.Manager{Log: log},
		log:    log,
	}
}

// ApplyShift folds the shift record stored with img into the output frame.
// Images without a record are left alone. Once a shift has been applied,
// further calls leave the output frame unchanged.
func (m *Map) ApplyShift(img shiftext.Image) error {
	if m.shift != nil {
		m.log.Warn("shift already applied to output frame; ignoring repeated request")
		return nil
	}
	rec, err := m.ext.Read(img)
	if err != nil {
		return err
	}
	if rec == nil {
		return nil
	}

	c := Translate(*rec, m.output)
	m.log.Info("correcting output frame for shift",
		"dx", c.ShiftX, "dy", c.ShiftY, "rot", c.Rotation, "scale", c.Scale)
	m.output.CRPix[0] -= c.ShiftX
	m.output.CRPix[1] -= c.ShiftY
	m.output.RotateCD(c.Rotation)
	m.output.ScaleCD(c.Scale)
	m.output.Orient += c.Rotation
	m.output.PScale *= c.Scale
	m.shift = &c
	return nil
}

// Shift returns the applied correction, or nil when none has been applied.
func (m *Map) Shift() *Correction {
	if m.shift == nil {
		return nil
	}
	c := *m.shift
	return &c
}

// Output returns a copy of the current output frame.
func (m *Map) Output() wcs.Frame { return m.output }

// Forward maps an input pixel position to the output frame.
func (m *Map) Forward(px, py float64) (float64, float64) {
	ra, dec := m.input.AllPixToSky(m.model, px, py)
	return m.output.SkyToPix(ra, dec)
}

// PixelAreaRatio is the output plate scale over the input plate scale.
func (m *Map) PixelAreaRatio() float64 {
	return m.output.PScale / m.input.PScale
}

// SkyOf converts a pixel position of f to sky coordinates.
func SkyOf(f wcs.Frame, px, py float64) (float64, float64) {
	return f.PixToSky(px, py)
}

// PixelOf converts sky coordinates to a pixel position of f.
func PixelOf(f wcs.Frame, ra, dec float64) (float64, float64) {
	return f.SkyToPix(ra, dec)
}

// WCSFit derives the linear transform from img, with its distortion model,
// to the undistorted ref frame. The fit uses the four pixels at and next to
// img's reference pixel.
func WCSFit(img wcs.Frame, model *distortion.Model, ref wcs.Frame) (fit.Result, error) {
	if model == nil {
		model = distortion.Identity()
	}
	cx, cy := img.CRPix[0], img.CRPix[1]
	pix := [4][2]float64{{cx, cy}, {cx, cy + 1}, {cx + 1, cy + 1}, {cx + 1, cy}}

	scale := model.NormScale(img.PScale)
	imgPts := make([]fit.Point, len(pix))
	refPts := make([]fit.Point, len(pix))
	for i, p := range pix {
		ra, dec := img.AllPixToSky(model, p[0], p[1])
		x, y := ref.SkyToPix(ra, dec)
		refPts[i] = fit.Point{X: x, Y: y}

		ux, uy := model.Apply(p[0], p[1], cx, cy, scale, 1)
		imgPts[i] = fit.Point{X: ux, Y: uy}
	}

	r, err := fit.Fitlin(imgPts, refPts)
	if err != nil {
		return fit.Result{}, err
	}
	r.XT -= ref.CRPix[0]
	r.YT -= ref.CRPix[1]
	return r, nil
}
