package wcs

import (
	"testing"

	"github.com/stretchr/testify/require"

	"wcscal/internal/header"
)

func testFrame() Frame {
	ps := 0.05 / 3600
	return New([2]float64{512, 512}, [2]float64{150.1, 2.2}, [2][2]float64{{-ps, 0}, {0, ps}}, 1024, 1024)
}

func TestDerivedScaleAndOrientation(t *testing.T) {
	f := testFrame()
	require.InDelta(t, 0.05, f.PScale, 1e-12)
	require.InDelta(t, 0.0, f.Orient, 1e-12)

	f.RotateCD(-30)
	require.InDelta(t, 30.0, f.DerivedOrientation(), 1e-9)
	require.InDelta(t, 0.05, f.DerivedPlateScale(), 1e-12)
}

func TestPixSkyRoundTrip(t *testing.T) {
	f := testFrame()
	f.RotateCD(17)

	ra, dec := f.PixToSky(f.CRPix[0], f.CRPix[1])
	require.InDelta(t, f.CRVal[0], ra, 1e-12)
	require.InDelta(t, f.CRVal[1], dec, 1e-12)

	for _, p := range [][2]float64{{1, 1}, {1024, 1}, {300.5, 700.25}, {1024, 1024}} {
		ra, dec := f.PixToSky(p[0], p[1])
		x, y := f.SkyToPix(ra, dec)
		require.InDelta(t, p[0], x, 1e-8)
		require.InDelta(t, p[1], y, 1e-8)
	}
}

func TestPixToSkyWrapsRA(t *testing.T) {
	ps := 1.0 / 3600
	f := New([2]float64{1, 1}, [2]float64{0.0001, 0}, [2][2]float64{{-ps, 0}, {0, ps}}, 10, 10)
	ra, _ := f.PixToSky(10, 1)
	if ra < 359 || ra >= 360 {
		t.Fatalf("expected wrapped ra near 360, got %v", ra)
	}
}

type shiftModel struct{ dx, dy float64 }

func (s shiftModel) Apply(x, y, cx, cy, scale float64, order int) (float64, float64) {
	return (x - cx + s.dx) / scale, (y - cy + s.dy) / scale
}
func (shiftModel) NormScale(float64) float64 { return 1 }
func (shiftModel) IsIdentity() bool          { return false }

func TestAllPixToSkyUsesDistortion(t *testing.T) {
	f := testFrame()
	ra, dec := f.AllPixToSky(shiftModel{dx: 2, dy: -1}, 100, 200)
	wantRA, wantDec := f.PixToSky(102, 199)
	require.InDelta(t, wantRA, ra, 1e-12)
	require.InDelta(t, wantDec, dec, 1e-12)

	ra, dec = f.AllPixToSky(nil, 100, 200)
	wantRA, wantDec = f.PixToSky(100, 200)
	require.InDelta(t, wantRA, ra, 1e-12)
	require.InDelta(t, wantDec, dec, 1e-12)
}

func TestFromHeader(t *testing.T) {
	h := header.New()
	h.Set("CRPIX1", 10.0)
	h.Set("CRPIX2", 20.0)
	h.Set("CRVAL1", 5.0)
	h.Set("CRVAL2", -5.0)
	h.Set("CD1_1", -1.0/3600)
	h.Set("CD2_2", 1.0/3600)
	h.Set("NPIX1", 100)
	h.Set("NAXIS2", 200)

	f, err := FromHeader(h)
	if err != nil {
		t.Fatalf("FromHeader: %v", err)
	}
	if f.Width != 100 || f.Height != 200 {
		t.Fatalf("unexpected size %dx%d", f.Width, f.Height)
	}
	require.InDelta(t, 1.0, f.PScale, 1e-12)

	h.Set("ORIENTAT", 12.5)
	f, err = FromHeader(h)
	if err != nil {
		t.Fatalf("FromHeader: %v", err)
	}
	if f.Orient != 12.5 {
		t.Fatalf("expected ORIENTAT override, got %v", f.Orient)
	}

	delete(h, "CD1_1")
	if _, err := FromHeader(h); err == nil {
		t.Fatalf("expected error for singular CD matrix")
	}
}

func TestHeaderRoundTrip(t *testing.T) {
	f := testFrame()
	f.RotateCD(10)
	f.Orient = f.DerivedOrientation()
	h := header.New()
	f.ToHeader(h)
	h.Set("NAXIS1", f.Width)
	h.Set("NAXIS2", f.Height)

	got, err := FromHeader(h)
	if err != nil {
		t.Fatalf("FromHeader: %v", err)
	}
	require.Equal(t, f.CRPix, got.CRPix)
	require.Equal(t, f.CRVal, got.CRVal)
	require.Equal(t, f.CD, got.CD)
	require.Equal(t, f.Width, got.Width)
	require.Equal(t, f.Height, got.Height)
	require.InDelta(t, f.PScale, got.PScale, 1e-12)
	require.InDelta(t, f.Orient, got.Orient, 1e-9)
}

func TestDrizzleArray(t *testing.T) {
	f := testFrame()
	f.RotateCD(45)
	a := f.ToDrizzleArray()
	if a[4] != f.CD[0][0] || a[5] != f.CD[1][0] || a[6] != f.CD[0][1] || a[7] != f.CD[1][1] {
		t.Fatalf("unexpected CD layout %v", a)
	}

	var g Frame
	g.FromDrizzleArray(a)
	require.InDelta(t, f.DerivedOrientation(), g.Orient, 1e-12)
	require.InDelta(t, f.PScale, g.PScale, 1e-12)
}

func TestRotateVector(t *testing.T) {
	x, y := RotateVector(1, 0, 90)
	require.InDelta(t, 0.0, x, 1e-12)
	require.InDelta(t, 1.0, y, 1e-12)
}

func TestHMS(t *testing.T) {
	ra, dec := HMS(150.0, -2.5)
	if ra != "10:00:00.000" {
		t.Fatalf("unexpected ra %q", ra)
	}
	if dec != "-2:30:00.000" {
		t.Fatalf("unexpected dec %q", dec)
	}
}
