package fitsfile

import (
	"path/filepath"
	"testing"

	"wcscal/internal/header"
)

func TestWriteHeaderRoundTrip(t *testing.T) {
	h := header.New()
	h.Set("EXTNAME", "WCSCORR")
	h.Set("WSHIFT1", 1.5)
	h.Set("NPIX1", 4096)
	h.Set("NAXIS1", 12)

	path := filepath.Join(t.TempDir(), "img_hdrlet.fits")
	if err := WriteHeader(path, h); err != nil {
		t.Fatalf("WriteHeader: %v", err)
	}

	hdus, err := ReadHeaders(path)
	if err != nil {
		t.Fatalf("ReadHeaders: %v", err)
	}
	if len(hdus) != 1 {
		t.Fatalf("expected one header unit, got %d", len(hdus))
	}
	got := hdus[0].Header
	if v, err := got.Float("WSHIFT1"); err != nil || v != 1.5 {
		t.Fatalf("WSHIFT1 = %v, %v", v, err)
	}
	if v, err := got.Int("NPIX1"); err != nil || v != 4096 {
		t.Fatalf("NPIX1 = %v, %v", v, err)
	}
	if got.String("EXTNAME") != "WCSCORR" {
		t.Fatalf("EXTNAME = %q", got.String("EXTNAME"))
	}
	if got.Has("NAXIS1") {
		t.Fatalf("reserved NAXIS1 should not be copied into a data-less header")
	}
}
