package distortion

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"wcscal/internal/table"
)

// AnyChip is the chip id a table row uses to apply to every chip.
const AnyChip = -999

const (
	DirectionForward = "forward"
	DirectionInverse = "inverse"
)

// CoeffConvention names the two legacy coefficient column conventions.
type CoeffConvention int

const (
	// ConventionCX names columns CX<i><j> and CY<i><j>.
	ConventionCX CoeffConvention = iota
	// ConventionAB names columns A<i><j> and B<i><j>.
	ConventionAB
)

func (c CoeffConvention) prefixes() (string, string) {
	if c == ConventionCX {
		return "CX", "CY"
	}
	return "A", "B"
}

// DetectConvention resolves the coefficient naming convention of t.
func DetectConvention(t *table.Table) CoeffConvention {
	if t.HasColumn("CX10") {
		return ConventionCX
	}
	return ConventionAB
}

// FilterSchema describes how filter names are stored in a table.
type FilterSchema int

const (
	// FilterPair has FILTER1 and FILTER2 columns.
	FilterPair FilterSchema = iota
	// FilterOptElem has OPT_ELEM and FILTER columns.
	FilterOptElem
	// FilterOptElemOnly has an OPT_ELEM column only.
	FilterOptElemOnly
	// FilterSingle has a FILTER column only; the second filter is CLEAR.
	FilterSingle
	// FilterNone has no filter columns; every row applies.
	FilterNone
)

// DetectFilterSchema checks column presence in priority order.
func DetectFilterSchema(t *table.Table) FilterSchema {
	switch {
	case t.HasColumn("FILTER1") && t.HasColumn("FILTER2"):
		return FilterPair
	case t.HasColumn("OPT_ELEM") && t.HasColumn("FILTER"):
		return FilterOptElem
	case t.HasColumn("OPT_ELEM"):
		return FilterOptElemOnly
	case t.HasColumn("FILTER"):
		return FilterSingle
	default:
		return FilterNone
	}
}

// Selector picks one row of an instrument distortion table.
type Selector struct {
	Chip        int
	Date        time.Time
	Direction   string
	Filter1     string
	Filter2     string
	FPOffset    *float64
	OffsetTable string
}

// TableSource loads a model from an instrument lookup table.
type TableSource struct {
	Tables TableOpener
	Name   string
	Select Selector
	Log    *slog.Logger
}

// Load selects the matching row and builds the model.
func (s TableSource) Load(ctx context.Context) (*Model, error) {
	log := orDefault(s.Log)
	if s.Name == "" {
		log.Warn("no distortion table specified, no distortion correction will be applied")
		return Identity(), nil
	}
	t, err := s.Tables.Open(s.Name)
	if err != nil {
		return nil, &MissingTableError{Name: s.Name, Err: err}
	}

	sel := s.Select
	if sel.Direction == "" {
		sel.Direction = DirectionForward
	}
	sel.Filter1 = defaultFilter(sel.Filter1)
	sel.Filter2 = defaultFilter(sel.Filter2)
	if strings.EqualFold(t.Header.String("DETECTOR"), "SBC") {
		if sel.Filter1 == "CLEAR" {
			sel.Filter1 = "F115LP"
			sel.Filter2 = "N/A"
		}
		if sel.Filter2 == "CLEAR" {
			sel.Filter2 = "N/A"
		}
	}

	norder, err := t.Header.Int("NORDER")
	if err != nil {
		return nil, fmt.Errorf("table %s: %w", s.Name, err)
	}
	order := norder
	if order < MinOrder {
		order = MinOrder
	}

	row, err := findRow(t, sel)
	if err != nil {
		return nil, err
	}
	log.Info("distortion model selected",
		"table", s.Name,
		"row", row+1,
		"chip", sel.Chip,
		"filter1", sel.Filter1,
		"filter2", sel.Filter2,
		"direction", sel.Direction,
	)

	ref, err := s.readRefPix(t, row, sel)
	if err != nil {
		return nil, err
	}

	m := zeroModel(order)
	m.ref = ref
	cxPrefix, cyPrefix := DetectConvention(t).prefixes()
	for i := 1; i <= norder; i++ {
		for j := 0; j <= i; j++ {
			suffix := strconv.Itoa(i) + strconv.Itoa(j)
			cx, err := t.Float(row, cxPrefix+suffix)
			if err != nil {
				return nil, err
			}
			cy, err := t.Float(row, cyPrefix+suffix)
			if err != nil {
				return nil, err
			}
			m.fx.Set(i, j, cx)
			m.fy.Set(i, j, cy)
		}
	}

	// Unit linear term that differs from the plate scale means the
	// coefficients were stored pixel-normalized.
	if m.fx.At(1, 1) == 1.0 && math.Abs(m.fx.At(1, 1)) != ref.PlateScale {
		m = m.scaled(ref.PlateScale)
	}
	return m, nil
}

func (s TableSource) readRefPix(t *table.Table, row int, sel Selector) (RefPix, error) {
	ref := RefPix{DefaultScale: true}
	var err error
	get := func(col string) float64 {
		if err != nil {
			return 0
		}
		var v float64
		v, err = t.Float(row, col)
		return v
	}
	ref.XRef = get("XREF")
	ref.YRef = get("YREF")
	ref.Width = get("XSIZE")
	ref.Height = get("YSIZE")
	ref.PlateScale = roundTo(get("SCALE"), 8)
	if err != nil {
		return RefPix{}, err
	}

	thetaKnown := false
	switch {
	case t.HasColumn("V2REF"):
		ref.V2Ref = get("V2REF")
		ref.V3Ref = get("V3REF")
	case sel.OffsetTable != "":
		off, oerr := s.Tables.Open(sel.OffsetTable)
		if oerr != nil {
			return RefPix{}, &MissingTableError{Name: sel.OffsetTable, Err: oerr}
		}
		v2, v3, theta, oerr := ReadOffsets(off, sel.Date, sel.Chip, s.Log)
		if oerr != nil {
			return RefPix{}, oerr
		}
		ref.V2Ref, ref.V3Ref, ref.Theta = v2, v3, theta
		thetaKnown = true
	}
	if !thetaKnown && t.HasColumn("THETA") {
		ref.Theta = get("THETA")
	}
	return ref, err
}

func findRow(t *table.Table, sel Selector) (int, error) {
	schema := DetectFilterSchema(t)
	for i := 0; i < t.NumRows(); i++ {
		f1, f2 := rowFilters(t, i, schema, sel)
		if f1 != strings.TrimSpace(sel.Filter1) || f2 != strings.TrimSpace(sel.Filter2) {
			continue
		}
		if rowDirection(t, i) != strings.TrimSpace(sel.Direction) {
			continue
		}
		if sel.FPOffset != nil && t.HasColumn("FPOFFSET") {
			fp, err := t.Float(i, "FPOFFSET")
			if err != nil || fp != *sel.FPOffset {
				continue
			}
		}
		chip := rowChip(t, i)
		if chip == sel.Chip || chip == AnyChip {
			return i, nil
		}
	}
	return -1, &RowNotFoundError{
		Table:     t.Name,
		Chip:      sel.Chip,
		Filter1:   sel.Filter1,
		Filter2:   sel.Filter2,
		Direction: sel.Direction,
	}
}

// rowFilters returns the filter pair a row applies to. Rows whose filter
// cells cannot be read apply to the requested filters.
func rowFilters(t *table.Table, i int, schema FilterSchema, sel Selector) (string, string) {
	cell := func(col string) (string, bool) {
		v, err := t.String(i, col)
		if err != nil {
			return "", false
		}
		return clearName(v), true
	}
	switch schema {
	case FilterPair:
		f1, ok1 := cell("FILTER1")
		f2, ok2 := cell("FILTER2")
		if ok1 && ok2 {
			return f1, f2
		}
	case FilterOptElem:
		f1, ok1 := cell("OPT_ELEM")
		f2, ok2 := cell("FILTER")
		if ok1 && ok2 {
			return f1, f2
		}
	case FilterOptElemOnly:
		if f1, ok := cell("OPT_ELEM"); ok {
			return f1, sel.Filter2
		}
	case FilterSingle:
		if f1, ok := cell("FILTER"); ok {
			return f1, "CLEAR"
		}
	}
	return sel.Filter1, sel.Filter2
}

func rowDirection(t *table.Table, i int) string {
	if !t.HasColumn("DIRECTION") {
		return DirectionForward
	}
	d, err := t.String(i, "DIRECTION")
	if err != nil {
		return DirectionForward
	}
	return strings.ToLower(strings.TrimSpace(d))
}

func rowChip(t *table.Table, i int) int {
	if !t.HasColumn("DETCHIP") {
		return 1
	}
	s, err := t.String(i, "DETCHIP")
	if err != nil {
		return 1
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 1
	}
	return n
}

func defaultFilter(f string) string {
	f = strings.TrimSpace(f)
	if f == "" || strings.HasPrefix(f, "CLEAR") {
		return "CLEAR"
	}
	return f
}

// clearName truncates any CLEAR variant (CLEAR1L, CLEAR2S) to CLEAR.
func clearName(f string) string {
	if idx := strings.Index(f, "CLEAR"); idx >= 0 && len(f) >= 5 {
		return f[:5]
	}
	return f
}

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
