package distortion

import (
	"context"
	"fmt"

	"wcscal/internal/header"
)

// HeaderSource loads a model from coefficients embedded in a frame header
// (A_p_q / B_p_q keywords plus the OCX/OCY linear terms).
type HeaderSource struct {
	Header header.Header
}

// Load reads the embedded coefficients.
func (s HeaderSource) Load(ctx context.Context) (*Model, error) {
	h := s.Header
	xorder, err := h.Int("A_ORDER")
	if err != nil {
		return nil, err
	}
	yorder, err := h.Int("B_ORDER")
	if err != nil {
		return nil, err
	}
	order := max(xorder, yorder, MinOrder)

	var ref RefPix
	fields := []struct {
		key string
		dst *float64
	}{
		{"CRPIX1", &ref.XRef},
		{"CRPIX2", &ref.YRef},
		{"NAXIS1", &ref.Width},
		{"NAXIS2", &ref.Height},
		{"IDCSCALE", &ref.PlateScale},
		{"IDCV2REF", &ref.V2Ref},
		{"IDCV3REF", &ref.V3Ref},
		{"IDCTHETA", &ref.Theta},
	}
	for _, f := range fields {
		if *f.dst, err = h.Float(f.key); err != nil {
			return nil, fmt.Errorf("inline distortion coefficients: %w", err)
		}
	}
	ref.DefaultScale = true

	var ocx10, ocx11, ocy10, ocy11 float64
	for _, f := range []struct {
		key string
		dst *float64
	}{{"OCX10", &ocx10}, {"OCX11", &ocx11}, {"OCY10", &ocy10}, {"OCY11", &ocy11}} {
		if *f.dst, err = h.Float(f.key); err != nil {
			return nil, fmt.Errorf("inline distortion coefficients: %w", err)
		}
	}

	m := zeroModel(order)
	m.ref = ref
	m.fx.Set(1, 0, ocx10)
	m.fx.Set(1, 1, ocx11)
	m.fy.Set(1, 0, ocy10)
	m.fy.Set(1, 1, ocy11)
	for i := 0; i <= xorder; i++ {
		for j := 0; j <= i; j++ {
			akey := fmt.Sprintf("A_%d_%d", j, i-j)
			bkey := fmt.Sprintf("B_%d_%d", j, i-j)
			if !h.Has(akey) {
				continue
			}
			a := h.FloatOr(akey, 0)
			b := h.FloatOr(bkey, 0)
			m.fx.Set(i, j, ocx11*a+ocx10*b)
			m.fy.Set(i, j, ocy11*a+ocy10*b)
		}
	}
	return m, nil
}
