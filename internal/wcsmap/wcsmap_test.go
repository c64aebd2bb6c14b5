package wcsmap

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"wcscal/internal/distortion"
	"wcscal/internal/header"
	"wcscal/internal/shiftext"
	"wcscal/internal/wcs"
)

func chipFrame() wcs.Frame {
	ps := 0.05 / 3600
	f := wcs.New([2]float64{2048, 1024}, [2]float64{150.0, 2.0}, [2][2]float64{{-ps, 0}, {0, ps}}, 4096, 2048)
	f.RotateCD(-12)
	f.Orient = f.DerivedOrientation()
	return f
}

func shiftedImage(t *testing.T, ref wcs.Frame, dx, dy, rot, scale float64) shiftext.Image {
	t.Helper()
	img := &shiftext.MemImage{List: []shiftext.Block{{Name: "SCI", Header: header.New()}}}
	rec := shiftext.Record{ShiftX: dx, ShiftY: dy, Rotation: rot, Scale: scale, Frame: ref}
	if err := (shiftext.Manager{}).Write(img, rec); err != nil {
		t.Fatalf("write shift: %v", err)
	}
	return img
}

func TestForwardIdentity(t *testing.T) {
	in := chipFrame()
	m := New(&in, distortion.Identity(), in, nil)
	for _, p := range [][2]float64{{1, 1}, {2048, 1024}, {4096, 2048}, {17.25, 1999.5}} {
		x, y := m.Forward(p[0], p[1])
		require.InDelta(t, p[0], x, 1e-6)
		require.InDelta(t, p[1], y, 1e-6)
	}
}

func TestForwardLinearModel(t *testing.T) {
	in := chipFrame()
	fx := mat.NewDense(4, 4, nil)
	fy := mat.NewDense(4, 4, nil)
	fx.Set(1, 1, 0.05)
	fy.Set(1, 0, 0.05)
	model, err := distortion.NewModel(fx, fy, distortion.RefPix{PlateScale: 0.05})
	if err != nil {
		t.Fatalf("NewModel: %v", err)
	}
	m := New(&in, model, in, nil)
	x, y := m.Forward(100, 200)
	require.InDelta(t, 100, x, 1e-6)
	require.InDelta(t, 200, y, 1e-6)
}

func TestPixelAreaRatio(t *testing.T) {
	in := chipFrame()
	out := in
	out.PScale = 0.1
	m := New(&in, nil, out, nil)
	require.InDelta(t, 0.1/in.PScale, m.PixelAreaRatio(), 1e-12)
}

func TestOutputIsOwnedCopy(t *testing.T) {
	in := chipFrame()
	out := in
	m := New(&in, nil, out, nil)
	if err := m.ApplyShift(shiftedImage(t, in, 2, -1, 0, 1)); err != nil {
		t.Fatalf("ApplyShift: %v", err)
	}
	if out != in {
		t.Fatalf("caller's output frame was modified")
	}
	if m.Output() == out {
		t.Fatalf("owned output frame was not corrected")
	}
}

func TestApplyShiftTranslatesReferencePixel(t *testing.T) {
	in := chipFrame()
	m := New(&in, nil, in, nil)
	if err := m.ApplyShift(shiftedImage(t, in, 2, -1, 0, 1)); err != nil {
		t.Fatalf("ApplyShift: %v", err)
	}
	out := m.Output()
	require.InDelta(t, in.CRPix[0]-2, out.CRPix[0], 1e-9)
	require.InDelta(t, in.CRPix[1]+1, out.CRPix[1], 1e-9)
	require.InDelta(t, in.PScale, out.PScale, 1e-12)
	if m.Shift() == nil {
		t.Fatalf("expected applied shift to be recorded")
	}
}

func TestApplyShiftIsIdempotent(t *testing.T) {
	in := chipFrame()
	m := New(&in, nil, in, nil)
	img := shiftedImage(t, in, 3.5, 1.25, 0.2, 1.001)

	if err := m.ApplyShift(img); err != nil {
		t.Fatalf("ApplyShift: %v", err)
	}
	first := m.Output()
	if err := m.ApplyShift(img); err != nil {
		t.Fatalf("second ApplyShift: %v", err)
	}
	if m.Output() != first {
		t.Fatalf("second application changed output:\n got %v\nwant %v", m.Output(), first)
	}
}

func TestApplyShiftWithoutRecord(t *testing.T) {
	in := chipFrame()
	m := New(&in, nil, in, nil)
	if err := m.ApplyShift(&shiftext.MemImage{}); err != nil {
		t.Fatalf("ApplyShift: %v", err)
	}
	if m.Output() != in || m.Shift() != nil {
		t.Fatalf("expected no change without a shift record")
	}

	if err := m.ApplyShift(shiftedImage(t, in, 1, 1, 0, 1)); err != nil {
		t.Fatalf("ApplyShift: %v", err)
	}
	if m.Shift() == nil {
		t.Fatalf("a later record should still be applied")
	}
}

func TestTranslate(t *testing.T) {
	ref := chipFrame()
	ref.PScale = 0.1
	ref.Orient = 90
	out := chipFrame()
	out.PScale = 0.05
	out.Orient = 0

	c := Translate(shiftext.Record{ShiftX: 1, ShiftY: 0, Rotation: 10, Scale: 1.5, Frame: ref}, out)
	require.InDelta(t, 0.0, c.ShiftX, 1e-12)
	require.InDelta(t, 2.0, c.ShiftY, 1e-12)
	require.InDelta(t, -350.0, c.Rotation, 1e-12)
	require.InDelta(t, 3.0, c.Scale, 1e-12)
}

func TestSkyOfPixelOf(t *testing.T) {
	f := chipFrame()
	ra, dec := SkyOf(f, 10, 20)
	x, y := PixelOf(f, ra, dec)
	require.InDelta(t, 10.0, x, 1e-8)
	require.InDelta(t, 20.0, y, 1e-8)
}

func TestWCSFitSelfIsIdentity(t *testing.T) {
	f := chipFrame()
	r, err := WCSFit(f, distortion.Identity(), f)
	if err != nil {
		t.Fatalf("WCSFit: %v", err)
	}
	require.InDelta(t, 1.0, r.A, 1e-6)
	require.InDelta(t, 0.0, r.B, 1e-6)
	require.InDelta(t, 0.0, r.C, 1e-6)
	require.InDelta(t, 1.0, r.D, 1e-6)
	require.InDelta(t, 0.0, r.XT, 1e-6)
	require.InDelta(t, 0.0, r.YT, 1e-6)
}

func TestWCSFitRotatedReference(t *testing.T) {
	img := chipFrame()
	ref := img
	ref.RotateCD(90)

	r, err := WCSFit(img, nil, ref)
	if err != nil {
		t.Fatalf("WCSFit: %v", err)
	}
	require.InDelta(t, 0.0, r.A, 1e-6)
	require.InDelta(t, -1.0, r.B, 1e-6)
	require.InDelta(t, 1.0, r.C, 1e-6)
	require.InDelta(t, 0.0, r.D, 1e-6)
	require.InDelta(t, 0.0, r.XT, 1e-6)
	require.InDelta(t, 0.0, r.YT, 1e-6)
}
