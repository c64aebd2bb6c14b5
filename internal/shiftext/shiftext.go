// Package shiftext persists shift corrections as metadata blocks attached to
// an image, keeping at most one such block per image.
package shiftext

import (
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"strings"

	"wcscal/internal/fitsfile"
	"wcscal/internal/header"
	"wcscal/internal/wcs"
)

const (
	// ExtName is the reserved name of the shift block.
	ExtName = "WCSCORR"
	// LegacyExtName is read when no ExtName block exists.
	LegacyExtName = "WCS"
)

// Shift keywords carried by a block alongside the reference frame keywords.
const (
	KeyShiftX   = "WSHIFT1"
	KeyShiftY   = "WSHIFT2"
	KeyRotation = "WROT"
	KeyScale    = "WSCALE"
)

// Block is one named metadata block of an image.
type Block struct {
	Name   string
	Header header.Header
}

// Image is the ordered metadata block list of one image.
type Image interface {
	Blocks() ([]Block, error)
	DeleteBlock(index int) error
	AppendBlock(b Block) error
}

// Record is a shift correction relative to the reference frame it was
// derived in.
type Record struct {
	ShiftX   float64
	ShiftY   float64
	Rotation float64
	Scale    float64
	Frame    wcs.Frame
}

// Header renders r as block keywords.
func (r Record) Header() header.Header {
	h := header.New()
	h.Set("EXTNAME", ExtName)
	r.Frame.ToHeader(h)
	h.Set("NPIX1", r.Frame.Width)
	h.Set("NPIX2", r.Frame.Height)
	h.Set(KeyShiftX, r.ShiftX)
	h.Set(KeyShiftY, r.ShiftY)
	h.Set(KeyRotation, r.Rotation)
	h.Set(KeyScale, r.Scale)
	return h
}

// RecordFromHeader rebuilds a record from block keywords.
func RecordFromHeader(h header.Header) (*Record, error) {
	f, err := wcs.FromHeader(h)
	if err != nil {
		return nil, err
	}
	orient, err := h.Float("ORIENTAT")
	if err != nil {
		return nil, err
	}
	f.Orient = orient
	f.PScale = math.Hypot(f.CD[1][0], f.CD[1][1]) * 3600

	r := &Record{Frame: f}
	for _, kv := range []struct {
		key string
		dst *float64
	}{
		{KeyShiftX, &r.ShiftX},
		{KeyShiftY, &r.ShiftY},
		{KeyRotation, &r.Rotation},
		{KeyScale, &r.Scale},
	} {
		if *kv.dst, err = h.Float(kv.key); err != nil {
			return nil, err
		}
	}
	if r.Frame.Width, err = h.Int("NPIX1"); err != nil {
		return nil, err
	}
	if r.Frame.Height, err = h.Int("NPIX2"); err != nil {
		return nil, err
	}
	return r, nil
}

// Manager reads and writes shift blocks.
type Manager struct {
	Log *slog.Logger
}

func (m Manager) log() *slog.Logger {
	if m.Log == nil {
		return slog.Default()
	}
	return m.Log
}

// Write removes every existing shift block from img, including leftovers of
// interrupted earlier writes, then appends one block for r.
func (m Manager) Write(img Image, r Record) error {
	removed, err := removeAll(img, ExtName)
	if err != nil {
		return fmt.Errorf("write shift block: %w", err)
	}
	if removed > 1 {
		m.log().Warn("removed duplicate shift blocks", "count", removed)
	}
	if err := img.AppendBlock(Block{Name: ExtName, Header: r.Header()}); err != nil {
		return fmt.Errorf("write shift block: %w", err)
	}
	return nil
}

// Read returns the image's shift record, or nil when there is none.
func (m Manager) Read(img Image) (*Record, error) {
	blocks, err := img.Blocks()
	if err != nil {
		return nil, fmt.Errorf("read shift block: %w", err)
	}
	idx := find(blocks, ExtName)
	if idx < 0 {
		idx = find(blocks, LegacyExtName)
	}
	if idx < 0 {
		return nil, nil
	}
	r, err := RecordFromHeader(blocks[idx].Header)
	if err != nil {
		return nil, fmt.Errorf("read shift block %s: %w", blocks[idx].Name, err)
	}
	return r, nil
}

// Remove deletes every shift block. It is a no-op when none exist.
func (m Manager) Remove(img Image) error {
	removed, err := removeAll(img, ExtName)
	if err != nil {
		return fmt.Errorf("remove shift block: %w", err)
	}
	if removed > 0 {
		m.log().Info("removed shift blocks", "count", removed)
	}
	return nil
}

func removeAll(img Image, name string) (int, error) {
	removed := 0
	for {
		blocks, err := img.Blocks()
		if err != nil {
			return removed, err
		}
		idx := find(blocks, name)
		if idx < 0 {
			return removed, nil
		}
		if err := img.DeleteBlock(idx); err != nil {
			return removed, err
		}
		removed++
	}
}

func find(blocks []Block, name string) int {
	for i, b := range blocks {
		if strings.EqualFold(b.Name, name) {
			return i
		}
	}
	return -1
}

// HeaderletName derives the headerlet file name for an image path.
func HeaderletName(src string) string {
	return strings.TrimSuffix(src, filepath.Ext(src)) + "_hdrlet.fits"
}

// WriteHeaderlet writes r as a standalone headerlet file next to src and
// returns its path.
func WriteHeaderlet(src string, r Record) (string, error) {
	path := HeaderletName(src)
	if err := fitsfile.WriteHeader(path, r.Header()); err != nil {
		return "", fmt.Errorf("write headerlet %s: %w", path, err)
	}
	return path, nil
}

// MemImage keeps blocks in memory.
type MemImage struct {
	List []Block
}

// Blocks returns a copy of the block list.
func (m *MemImage) Blocks() ([]Block, error) {
	return append([]Block(nil), m.List...), nil
}

// DeleteBlock removes the block at index.
func (m *MemImage) DeleteBlock(index int) error {
	if index < 0 || index >= len(m.List) {
		return fmt.Errorf("block index %d out of range", index)
	}
	m.List = append(m.List[:index], m.List[index+1:]...)
	return nil
}

// AppendBlock adds b at the end.
func (m *MemImage) AppendBlock(b Block) error {
	m.List = append(m.List, Block{Name: b.Name, Header: b.Header.Clone()})
	return nil
}
