package outframe

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"wcscal/internal/wcs"
)

func ptr[T any](v T) *T { return &v }

func baseFrame() wcs.Frame {
	ps := 0.05 / 3600
	f := wcs.New([2]float64{500, 400}, [2]float64{80, -20}, [2][2]float64{{-ps, 0}, {0, ps}}, 1000, 800)
	f.PScale = 0.05
	return f
}

func TestMergeNoOverrides(t *testing.T) {
	base := baseFrame()
	if got := Merge(base, Overrides{}); got != base {
		t.Fatalf("expected unmodified copy, got %v", got)
	}
}

func TestMergePixelSize(t *testing.T) {
	base := baseFrame()
	out := Merge(base, Overrides{PixelSize: ptr(0.1)})

	if out.Width != 500 || out.Height != 400 {
		t.Fatalf("expected 500x400, got %dx%d", out.Width, out.Height)
	}
	require.InDelta(t, 0.1, out.PScale, 1e-12)
	require.InDelta(t, 0.1, out.DerivedPlateScale(), 1e-12)
	require.Equal(t, [2]float64{250, 200}, out.CRPix)
	require.Equal(t, base.CRVal, out.CRVal)
}

func TestMergeOrientation(t *testing.T) {
	base := baseFrame()
	out := Merge(base, Overrides{Orient: ptr(30.0)})

	require.InDelta(t, 30.0, out.Orient, 1e-12)
	require.InDelta(t, 30.0, out.DerivedOrientation(), 1e-9)
	require.InDelta(t, base.PScale, out.PScale, 1e-12)

	rad := 30 * math.Pi / 180
	wantW := 1000*math.Cos(rad) + 800*math.Sin(rad)
	wantH := 1000*math.Sin(rad) + 800*math.Cos(rad)
	require.InDelta(t, wantW, float64(out.Width), 1)
	require.InDelta(t, wantH, float64(out.Height), 1)
	require.InDelta(t, wantW/2, out.CRPix[0], 1e-9)
	require.InDelta(t, wantH/2, out.CRPix[1], 1e-9)
}

func TestMergeExplicitSize(t *testing.T) {
	base := baseFrame()

	out := Merge(base, Overrides{OutNX: ptr(2048), OutNY: ptr(1024)})
	if out.Width != 2048 || out.Height != 1024 {
		t.Fatalf("expected 2048x1024, got %dx%d", out.Width, out.Height)
	}
	require.Equal(t, [2]float64{1024, 512}, out.CRPix)

	out = Merge(base, Overrides{OutNX: ptr(2048), OutNY: ptr(1024), CRPix1: ptr(10.0), CRPix2: ptr(20.0)})
	require.Equal(t, [2]float64{10, 20}, out.CRPix)

	out = Merge(base, Overrides{OutNX: ptr(2048), OutNY: ptr(1024), CRPix1: ptr(10.0)})
	require.Equal(t, [2]float64{1024, 512}, out.CRPix)
}

func TestMergeTargetPosition(t *testing.T) {
	base := baseFrame()
	out := Merge(base, Overrides{RA: ptr(81.5), Dec: ptr(-21.25)})
	require.Equal(t, [2]float64{81.5, -21.25}, out.CRVal)
	require.Equal(t, base.CD, out.CD)
	if out.Width != base.Width || out.Height != base.Height {
		t.Fatalf("size changed without size overrides: %dx%d", out.Width, out.Height)
	}
}

func TestMakeKeepsVariantsIndependent(t *testing.T) {
	base := baseFrame()
	ref := base
	set, err := Make(nil, &ref, nil,
		Overrides{PixelSize: ptr(0.1)},
		Overrides{Orient: ptr(45.0), RA: ptr(81.0)})
	if err != nil {
		t.Fatalf("Make: %v", err)
	}
	if ref != base {
		t.Fatalf("reference frame mutated")
	}
	if set.Default != base {
		t.Fatalf("default frame differs from reference")
	}
	require.InDelta(t, 0.1, set.Single.PScale, 1e-12)
	require.InDelta(t, base.Orient, set.Single.Orient, 1e-12)
	require.InDelta(t, base.PScale, set.Final.PScale, 1e-12)
	require.InDelta(t, 45.0, set.Final.Orient, 1e-12)
	require.Equal(t, 81.0, set.Final.CRVal[0])
	require.Equal(t, base.CRVal[0], set.Single.CRVal[0])
}

func TestBuildUsesUnion(t *testing.T) {
	called := 0
	union := func(frames []wcs.Frame) (wcs.Frame, error) {
		called++
		return frames[0], nil
	}
	in := []wcs.Frame{baseFrame()}
	f, err := Build(in, nil, union)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if called != 1 || f != in[0] {
		t.Fatalf("expected union result, called=%d", called)
	}

	failing := func([]wcs.Frame) (wcs.Frame, error) { return wcs.Frame{}, errors.New("boom") }
	if _, err := Build(in, nil, failing); err == nil {
		t.Fatalf("expected union error")
	}
	if _, err := Build(nil, nil, nil); err == nil {
		t.Fatalf("expected error for empty input list")
	}
}

func TestBoundingUnion(t *testing.T) {
	ps := 1.0 / 3600
	cd := [2][2]float64{{-ps, 0}, {0, ps}}
	left := wcs.New([2]float64{50.5, 50.5}, [2]float64{10, 0}, cd, 100, 100)
	right := left
	right.CRVal[0], _ = left.PixToSky(-49.5, 50.5)

	out, err := BoundingUnion([]wcs.Frame{left, right})
	if err != nil {
		t.Fatalf("BoundingUnion: %v", err)
	}
	require.InDelta(t, 200, float64(out.Width), 1)
	require.InDelta(t, 100, float64(out.Height), 1)
	require.InDelta(t, left.PScale, out.PScale, 1e-12)

	single, err := BoundingUnion([]wcs.Frame{left})
	if err != nil {
		t.Fatalf("BoundingUnion: %v", err)
	}
	if single.Width != 100 || single.Height != 100 {
		t.Fatalf("expected 100x100, got %dx%d", single.Width, single.Height)
	}
	require.InDelta(t, left.CRVal[0], single.CRVal[0], 1e-9)
	require.InDelta(t, left.CRVal[1], single.CRVal[1], 1e-9)
}
