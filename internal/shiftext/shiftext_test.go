package shiftext

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"wcscal/internal/fitsfile"
	"wcscal/internal/header"
	"wcscal/internal/wcs"
)

func refFrame() wcs.Frame {
	ps := 0.05 / 3600
	return wcs.New([2]float64{2048, 1024}, [2]float64{10.5, 41.2}, [2][2]float64{{-ps, 0}, {0, ps}}, 4096, 2048)
}

func record(dx, dy float64) Record {
	return Record{ShiftX: dx, ShiftY: dy, Rotation: 0.25, Scale: 1.0001, Frame: refFrame()}
}

func shiftBlocks(img *MemImage) int {
	n := 0
	for _, b := range img.List {
		if b.Name == ExtName {
			n++
		}
	}
	return n
}

func TestWriteKeepsSingleRecord(t *testing.T) {
	img := &MemImage{List: []Block{{Name: "SCI", Header: header.New()}}}
	m := Manager{}

	if err := m.Write(img, record(1, 2)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := m.Write(img, record(3, 4)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if n := shiftBlocks(img); n != 1 {
		t.Fatalf("expected one shift block, got %d", n)
	}
	if len(img.List) != 2 || img.List[0].Name != "SCI" {
		t.Fatalf("unrelated blocks disturbed: %+v", img.List)
	}

	got, err := m.Read(img)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got == nil {
		t.Fatalf("expected a record")
	}
	require.Equal(t, 3.0, got.ShiftX)
	require.Equal(t, 4.0, got.ShiftY)
	require.Equal(t, 0.25, got.Rotation)
	require.Equal(t, 1.0001, got.Scale)
	require.Equal(t, 4096, got.Frame.Width)
	require.Equal(t, 2048, got.Frame.Height)
	require.InDelta(t, 0.05, got.Frame.PScale, 1e-12)
}

func TestWriteCleansDuplicates(t *testing.T) {
	stale := record(9, 9).Header()
	img := &MemImage{List: []Block{
		{Name: ExtName, Header: stale},
		{Name: "SCI", Header: header.New()},
		{Name: ExtName, Header: stale},
	}}
	if err := (Manager{}).Write(img, record(1, 1)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if n := shiftBlocks(img); n != 1 {
		t.Fatalf("expected duplicates removed, got %d shift blocks", n)
	}
	got, err := (Manager{}).Read(img)
	if err != nil || got == nil || got.ShiftX != 1 {
		t.Fatalf("expected new record, got %+v %v", got, err)
	}
}

func TestReadFallsBackToLegacyName(t *testing.T) {
	img := &MemImage{List: []Block{{Name: LegacyExtName, Header: record(5, 6).Header()}}}
	got, err := (Manager{}).Read(img)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got == nil || got.ShiftX != 5 || got.ShiftY != 6 {
		t.Fatalf("unexpected record %+v", got)
	}
}

func TestReadWithoutRecord(t *testing.T) {
	got, err := (Manager{}).Read(&MemImage{})
	if err != nil || got != nil {
		t.Fatalf("expected no record and no error, got %+v %v", got, err)
	}
}

func TestReadIncompleteBlock(t *testing.T) {
	h := record(1, 1).Header()
	delete(h, KeyScale)
	if _, err := (Manager{}).Read(&MemImage{List: []Block{{Name: ExtName, Header: h}}}); err == nil {
		t.Fatalf("expected error for missing %s", KeyScale)
	}
}

func TestRemoveIsIdempotent(t *testing.T) {
	img := &MemImage{}
	m := Manager{}
	if err := m.Remove(img); err != nil {
		t.Fatalf("Remove on empty image: %v", err)
	}
	if err := m.Write(img, record(1, 1)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := m.Remove(img); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := m.Remove(img); err != nil {
		t.Fatalf("second Remove: %v", err)
	}
	if len(img.List) != 0 {
		t.Fatalf("expected no blocks, got %d", len(img.List))
	}
}

func TestHeaderletName(t *testing.T) {
	cases := map[string]string{
		"j8c0d1011_flt.fits": "j8c0d1011_flt_hdrlet.fits",
		"/data/img.fit":      "/data/img_hdrlet.fits",
	}
	for in, want := range cases {
		if got := HeaderletName(in); got != want {
			t.Fatalf("HeaderletName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestWriteHeaderlet(t *testing.T) {
	src := filepath.Join(t.TempDir(), "img_flt.fits")
	path, err := WriteHeaderlet(src, record(1.5, -2.5))
	if err != nil {
		t.Fatalf("WriteHeaderlet: %v", err)
	}
	hdus, err := fitsfile.ReadHeaders(path)
	if err != nil {
		t.Fatalf("ReadHeaders: %v", err)
	}
	if v, err := hdus[0].Header.Float(KeyShiftX); err != nil || v != 1.5 {
		t.Fatalf("%s = %v, %v", KeyShiftX, v, err)
	}
}
