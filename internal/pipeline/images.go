package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"wcscal/internal/distortion"
	"wcscal/internal/fitsfile"
	"wcscal/internal/header"
	"wcscal/internal/wcs"
)

// Image is the geometry-relevant metadata of one exposure: its primary
// keywords merged with those of the science unit carrying the frame.
type Image struct {
	Path   string
	Header header.Header
	Frame  wcs.Frame
}

// LoadImage reads the headers of a FITS image.
func LoadImage(path string) (Image, error) {
	hdus, err := fitsfile.ReadHeaders(path)
	if err != nil {
		return Image{}, fmt.Errorf("read %s: %w", path, err)
	}
	return imageFromHDUs(path, hdus)
}

func imageFromHDUs(path string, hdus []fitsfile.HDU) (Image, error) {
	if len(hdus) == 0 {
		return Image{}, fmt.Errorf("%s: no header units", path)
	}
	merged := hdus[0].Header.Clone()
	for _, hdu := range hdus {
		if !hdu.Header.Has("CD1_1") {
			continue
		}
		for k, v := range hdu.Header {
			merged[k] = v
		}
		break
	}
	f, err := wcs.FromHeader(merged)
	if err != nil {
		return Image{}, fmt.Errorf("%s: %w", path, err)
	}
	return Image{Path: path, Header: merged, Frame: f}, nil
}

// ObsDate returns the observation date, if recorded.
func (img Image) ObsDate() (time.Time, bool) {
	v, ok := img.Header.Get("DATE-OBS")
	if !ok {
		return time.Time{}, false
	}
	d, err := distortion.ParseObsDate(v)
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}

// Source picks the distortion source named by the image keywords: the IDCTAB
// reference table, else coefficients embedded in the header, else none.
func (img Image) Source(tables distortion.TableOpener, log *slog.Logger) distortion.Source {
	h := img.Header
	if name := refName(h.String("IDCTAB")); name != "" && tables != nil {
		sel := distortion.Selector{
			Chip:        1,
			Direction:   distortion.DirectionForward,
			Filter1:     h.String("FILTER1"),
			Filter2:     h.String("FILTER2"),
			OffsetTable: refName(h.String("OFFTAB")),
		}
		if chip, err := h.Int("CCDCHIP"); err == nil {
			sel.Chip = chip
		}
		if d, ok := img.ObsDate(); ok {
			sel.Date = d
		}
		return distortion.TableSource{Tables: tables, Name: name, Select: sel, Log: log}
	}
	if h.Has("A_ORDER") {
		return distortion.HeaderSource{Header: h}
	}
	return nil
}

// NeedsTDD reports whether the skew correction applies to this detector.
func (img Image) NeedsTDD() bool {
	return strings.EqualFold(img.Header.String("INSTRUME"), "ACS") &&
		strings.EqualFold(img.Header.String("DETECTOR"), "WFC")
}

func refName(s string) string {
	if s == "" || strings.EqualFold(s, "N/A") {
		return ""
	}
	return s
}

// modelSpec carries the job options that steer model selection.
type modelSpec struct {
	force      bool    // apply the skew correction regardless of detector
	coeffs     string  // plain-text coefficients file overriding the image keywords
	wavelength float64 // nm; selects the Trauger reading of coeffs
}

func modelSpecFrom(options map[string]any) modelSpec {
	return modelSpec{
		force:      getBoolOption(options, "tdd"),
		coeffs:     getStringOption(options, "coeffs"),
		wavelength: getFloatOption(options, "wavelength"),
	}
}

// source returns the coefficients file source when one is named, else the
// source selected by the image keywords.
func (s modelSpec) source(img Image, tables distortion.TableOpener, log *slog.Logger) distortion.Source {
	switch {
	case s.coeffs != "" && s.wavelength > 0:
		return distortion.TraugerSource{Path: s.coeffs, Wavelength: s.wavelength}
	case s.coeffs != "":
		return distortion.CubicSource{Path: s.coeffs}
	default:
		return img.Source(tables, log)
	}
}

// loadModel resolves the image's distortion model and applies the skew
// correction when the detector needs it or spec.force is set.
func loadModel(ctx context.Context, img Image, s Settings, spec modelSpec, log *slog.Logger) (*distortion.Model, map[string]any, error) {
	m, err := distortion.Load(ctx, spec.source(img, s.Tables, log), log)
	if err != nil {
		return nil, nil, err
	}
	info := map[string]any{}
	if m.IsIdentity() || !(spec.force || img.NeedsTDD()) {
		return m, info, nil
	}
	date, ok := img.ObsDate()
	if !ok {
		log.Warn("no observation date; skipping time-dependent correction", "image", img.Path)
		return m, info, nil
	}
	alpha, beta := s.TDD.Terms(date)
	m, x00, y00 := m.WithTDD(s.TDD, date)
	info["tdd_alpha"] = alpha
	info["tdd_beta"] = beta
	info["x00"] = x00
	info["y00"] = y00
	return m, info, nil
}
