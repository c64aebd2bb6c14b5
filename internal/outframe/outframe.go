// Package outframe builds the output frame that resampled images are placed
// on, and merges user overrides into it.
package outframe

import (
	"errors"
	"fmt"
	"math"

	"wcscal/internal/wcs"
)

// Overrides are the user-adjustable properties of an output frame. A nil
// field keeps the base frame's value.
type Overrides struct {
	RA        *float64 `json:"ra,omitempty"`
	Dec       *float64 `json:"dec,omitempty"`
	PixelSize *float64 `json:"scale,omitempty"`
	Orient    *float64 `json:"rot,omitempty"`
	OutNX     *int     `json:"outnx,omitempty"`
	OutNY     *int     `json:"outny,omitempty"`
	CRPix1    *float64 `json:"crpix1,omitempty"`
	CRPix2    *float64 `json:"crpix2,omitempty"`
}

// IsZero reports whether no override is set.
func (o Overrides) IsZero() bool {
	return o.RA == nil && o.Dec == nil && o.PixelSize == nil && o.Orient == nil &&
		o.OutNX == nil && o.OutNY == nil && o.CRPix1 == nil && o.CRPix2 == nil
}

// Merge returns base adjusted by o. base is never modified.
func Merge(base wcs.Frame, o Overrides) wcs.Frame {
	out := base.Clone()
	if o.IsZero() {
		return out
	}

	ratio := 1.0
	if o.PixelSize != nil && *o.PixelSize > 0 {
		ratio = base.PScale / *o.PixelSize
	}
	delta := 0.0
	if o.Orient != nil {
		delta = base.Orient - *o.Orient
	}

	var nx, ny float64
	var crpix [2]float64
	if o.OutNX == nil && o.OutNY == nil {
		w, h := RotatedSize(float64(base.Width), float64(base.Height), delta)
		nx, ny = w*ratio, h*ratio
		crpix = [2]float64{nx / 2, ny / 2}
	} else {
		nx, ny = float64(base.Width), float64(base.Height)
		if o.OutNX != nil {
			nx = float64(*o.OutNX)
		}
		if o.OutNY != nil {
			ny = float64(*o.OutNY)
		}
		crpix = [2]float64{nx / 2, ny / 2}
		if o.CRPix1 != nil && o.CRPix2 != nil {
			crpix = [2]float64{*o.CRPix1, *o.CRPix2}
		}
	}

	out.ScaleCD(1 / ratio)
	out.PScale /= ratio
	out.RotateCD(delta)
	out.Orient += -delta
	out.Width = int(nx)
	out.Height = int(ny)
	out.CRPix = crpix
	if o.RA != nil {
		out.CRVal[0] = *o.RA
	}
	if o.Dec != nil {
		out.CRVal[1] = *o.Dec
	}
	return out
}

// RotatedSize returns the axis-aligned extent of a width x height box,
// centred on its own centre, after rotating it by deg degrees.
func RotatedSize(width, height, deg float64) (float64, float64) {
	corners := [4][2]float64{{0, 0}, {width, 0}, {0, height}, {width, height}}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, c := range corners {
		x, y := wcs.RotateVector(c[0]-width/2, c[1]-height/2, deg)
		minX, maxX = math.Min(minX, x), math.Max(maxX, x)
		minY, maxY = math.Min(minY, y), math.Max(maxY, y)
	}
	return maxX - minX, maxY - minY
}

// spanTolerance absorbs projection round-off when sizing a union.
const spanTolerance = 1e-6

// FootprintUnion computes one frame covering every input frame.
type FootprintUnion func(frames []wcs.Frame) (wcs.Frame, error)

// BoundingUnion projects the corners of every frame into the pixel grid of
// the first one and returns a frame with the first frame's scale and
// orientation covering their bounding box.
func BoundingUnion(frames []wcs.Frame) (wcs.Frame, error) {
	if len(frames) == 0 {
		return wcs.Frame{}, errors.New("footprint union: no input frames")
	}
	ref := frames[0]
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, f := range frames {
		w, h := float64(f.Width), float64(f.Height)
		for _, c := range [4][2]float64{{0.5, 0.5}, {w + 0.5, 0.5}, {0.5, h + 0.5}, {w + 0.5, h + 0.5}} {
			ra, dec := f.PixToSky(c[0], c[1])
			x, y := ref.SkyToPix(ra, dec)
			if math.IsNaN(x) || math.IsNaN(y) {
				return wcs.Frame{}, fmt.Errorf("footprint union: corner of frame %v does not project", f)
			}
			minX, maxX = math.Min(minX, x), math.Max(maxX, x)
			minY, maxY = math.Min(minY, y), math.Max(maxY, y)
		}
	}

	out := ref.Clone()
	out.Width = int(math.Ceil(maxX - minX - spanTolerance))
	out.Height = int(math.Ceil(maxY - minY - spanTolerance))
	out.CRVal[0], out.CRVal[1] = ref.PixToSky((minX+maxX)/2, (minY+maxY)/2)
	out.CRPix = [2]float64{float64(out.Width) / 2, float64(out.Height) / 2}
	return out, nil
}

// Build returns the default output frame: a copy of ref when one is given,
// otherwise the union of the inputs' footprints.
func Build(inputs []wcs.Frame, ref *wcs.Frame, union FootprintUnion) (wcs.Frame, error) {
	if ref != nil {
		return ref.Clone(), nil
	}
	if union == nil {
		union = BoundingUnion
	}
	f, err := union(inputs)
	if err != nil {
		return wcs.Frame{}, fmt.Errorf("build output frame: %w", err)
	}
	return f, nil
}

// Set holds the default output frame and its two merged variants.
type Set struct {
	Default wcs.Frame
	Single  wcs.Frame
	Final   wcs.Frame
}

// Make builds the default frame and merges the single-exposure and final
// overrides into independent copies of it.
func Make(inputs []wcs.Frame, ref *wcs.Frame, union FootprintUnion, single, final Overrides) (Set, error) {
	def, err := Build(inputs, ref, union)
	if err != nil {
		return Set{}, err
	}
	return Set{
		Default: def,
		Single:  Merge(def, single),
		Final:   Merge(def, final),
	}, nil
}
