package fsutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestListImagesFiltersFITS(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.fits", "b.FIT", "notes.txt", "sub/c.fts"} {
		p := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	files, err := ListImages(dir)
	if err != nil {
		t.Fatalf("ListImages: %v", err)
	}
	if len(files) != 3 {
		t.Fatalf("expected 3 FITS files, got %v", files)
	}
}

func TestExpandRef(t *testing.T) {
	t.Setenv("jref", "")
	t.Setenv("JREF", "")

	if got, err := ExpandRef("/data/idc.fits", nil); err != nil || got != "/data/idc.fits" {
		t.Fatalf("plain path changed: %q %v", got, err)
	}
	if _, err := ExpandRef("jref$idc.fits", nil); err == nil {
		t.Fatalf("expected error for unset reference directory")
	}

	got, err := ExpandRef("jref$idc.fits", map[string]string{"jref": "/cfg/ref"})
	if err != nil || got != filepath.Join("/cfg/ref", "idc.fits") {
		t.Fatalf("config directory not used: %q %v", got, err)
	}

	t.Setenv("jref", "/env/ref")
	got, err = ExpandRef("jref$idc.fits", map[string]string{"jref": "/cfg/ref"})
	if err != nil || got != filepath.Join("/env/ref", "idc.fits") {
		t.Fatalf("environment should win: %q %v", got, err)
	}
}

func TestFirstExisting(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "x.fits")
	if err := os.WriteFile(p, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if got := FirstExisting(filepath.Join(dir, "missing"), p); got != p {
		t.Fatalf("expected %s, got %s", p, got)
	}
}

func TestExpandRefSearchesDirsForPlainNames(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "offsets.fits")
	if err := os.WriteFile(p, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	dirs := map[string]string{"a": filepath.Join(dir, "missing"), "b": dir}
	if got, err := ExpandRef("offsets.fits", dirs); err != nil || got != p {
		t.Fatalf("expected %s, got %q %v", p, got, err)
	}
	if got, err := ExpandRef("other.fits", dirs); err != nil || got != "other.fits" {
		t.Fatalf("unknown name should be unchanged: %q %v", got, err)
	}
}
