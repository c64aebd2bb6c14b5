// Package fitsfile reads reference tables and image headers from FITS files
// and writes header-only FITS files.
package fitsfile

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/astrogo/fitsio"

	"wcscal/internal/header"
	"wcscal/internal/table"
)

// HDU is the header of one FITS unit together with its name.
type HDU struct {
	Name   string
	Header header.Header
}

// ReadHeaders returns the headers of every unit in path.
func ReadHeaders(path string) ([]HDU, error) {
	r, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return DecodeHeaders(r)
}

// DecodeHeaders returns the headers of every unit in a FITS stream.
func DecodeHeaders(r io.Reader) ([]HDU, error) {
	f, err := fitsio.Open(r)
	if err != nil {
		return nil, fmt.Errorf("open fits: %w", err)
	}
	defer f.Close()

	var out []HDU
	for _, hdu := range f.HDUs() {
		out = append(out, HDU{Name: hdu.Name(), Header: convertHeader(hdu.Header())})
	}
	return out, nil
}

// ReadTable loads the first binary or ASCII table in path. Keywords of the
// primary header are merged underneath the table's own header.
func ReadTable(path string) (*table.Table, error) {
	r, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	f, err := fitsio.Open(r)
	if err != nil {
		return nil, fmt.Errorf("open fits %s: %w", path, err)
	}
	defer f.Close()

	hdus := f.HDUs()
	if len(hdus) == 0 {
		return nil, fmt.Errorf("fits %s: no header units", path)
	}
	merged := convertHeader(hdus[0].Header())
	for _, hdu := range hdus[1:] {
		tbl, ok := hdu.(*fitsio.Table)
		if !ok {
			continue
		}
		for k, v := range convertHeader(tbl.Header()) {
			merged[k] = v
		}
		return readRows(path, tbl, merged)
	}
	return nil, fmt.Errorf("fits %s: no table extension", path)
}

func readRows(path string, tbl *fitsio.Table, hdr header.Header) (*table.Table, error) {
	cols := make([]string, 0, tbl.NumCols())
	for _, c := range tbl.Cols() {
		cols = append(cols, strings.ToUpper(c.Name))
	}
	t := table.New(path, hdr, cols)

	rows, err := tbl.Read(0, tbl.NumRows())
	if err != nil {
		return nil, fmt.Errorf("read table %s: %w", path, err)
	}
	defer rows.Close()
	for rows.Next() {
		data := make(map[string]interface{}, len(cols))
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan table %s: %w", path, err)
		}
		row := make(map[string]any, len(data))
		for k, v := range data {
			if s, ok := v.(string); ok {
				v = strings.TrimSpace(s)
			}
			row[strings.ToUpper(k)] = v
		}
		t.AddRow(row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read table %s: %w", path, err)
	}
	return t, nil
}

func convertHeader(h *fitsio.Header) header.Header {
	out := header.New()
	for _, k := range h.Keys() {
		card := h.Get(k)
		if card == nil {
			continue
		}
		v := card.Value
		if s, ok := v.(string); ok {
			v = strings.TrimSpace(s)
		}
		out.Set(k, v)
	}
	return out
}

// reserved keywords are generated by the encoder itself.
var reserved = map[string]bool{
	"SIMPLE": true, "BITPIX": true, "NAXIS": true, "NAXIS1": true, "NAXIS2": true,
	"EXTEND": true, "END": true, "XTENSION": true, "PCOUNT": true, "GCOUNT": true,
}

// WriteHeader creates path as a data-less FITS file whose primary header
// carries h.
func WriteHeader(path string, h header.Header) (err error) {
	w, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := w.Close(); err == nil {
			err = cerr
		}
	}()
	return EncodeHeader(w, h)
}

// EncodeHeader writes a data-less FITS stream whose primary header carries h.
func EncodeHeader(w io.Writer, h header.Header) error {
	cards := make([]fitsio.Card, 0, len(h))
	for _, k := range h.Keys() {
		if reserved[k] {
			continue
		}
		v, _ := h.Get(k)
		cards = append(cards, fitsio.Card{Name: k, Value: v})
	}

	f, err := fitsio.Create(w)
	if err != nil {
		return fmt.Errorf("create fits: %w", err)
	}
	phdu, err := fitsio.NewPrimaryHDU(fitsio.NewHeader(cards, fitsio.IMAGE_HDU, 8, []int{}))
	if err != nil {
		return fmt.Errorf("primary header: %w", err)
	}
	if err := f.Write(phdu); err != nil {
		return errors.Join(fmt.Errorf("write primary header: %w", err), f.Close())
	}
	return f.Close()
}
