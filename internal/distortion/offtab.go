package distortion

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"wcscal/internal/header"
	"wcscal/internal/table"
)

var mjdEpoch = time.Date(1858, time.November, 17, 0, 0, 0, 0, time.UTC)

type offsetRow struct {
	index int
	date  time.Time
	v2    float64
	v3    float64
	theta float64
}

// ReadOffsets interpolates V2REF, V3REF and THETA for chip at date from an
// offset table. Dates outside the table's range clamp to the nearest row.
func ReadOffsets(t *table.Table, date time.Time, chip int, log *slog.Logger) (v2, v3, theta float64, err error) {
	log = orDefault(log)
	var rows []offsetRow
	for i := 0; i < t.NumRows(); i++ {
		detchip := 1
		if t.HasColumn("DETCHIP") {
			c, err := t.Float(i, "DETCHIP")
			if err != nil {
				return 0, 0, 0, err
			}
			detchip = int(c)
		}
		if detchip != chip && detchip != AnyChip {
			continue
		}
		r := offsetRow{index: i}
		raw, err := t.Value(i, "OBSDATE")
		if err != nil {
			return 0, 0, 0, err
		}
		if r.date, err = ParseObsDate(raw); err != nil {
			return 0, 0, 0, fmt.Errorf("offset table %s row %d: %w", t.Name, i+1, err)
		}
		if r.v2, err = t.Float(i, "V2REF"); err != nil {
			return 0, 0, 0, err
		}
		if r.v3, err = t.Float(i, "V3REF"); err != nil {
			return 0, 0, 0, err
		}
		if r.theta, err = t.Float(i, "THETA"); err != nil {
			return 0, 0, 0, err
		}
		rows = append(rows, r)
	}
	if len(rows) == 0 {
		return 0, 0, 0, &RowNotFoundError{Table: t.Name, Chip: chip}
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].date.Before(rows[j].date) })

	first, last := rows[0], rows[len(rows)-1]
	if !date.After(first.date) {
		log.Info("offset defined by row", "table", t.Name, "row", first.index+1)
		return first.v2, first.v3, first.theta, nil
	}
	if !date.Before(last.date) {
		log.Info("offset defined by row", "table", t.Name, "row", last.index+1)
		return last.v2, last.v3, last.theta, nil
	}

	end := sort.Search(len(rows), func(i int) bool { return !rows[i].date.Before(date) })
	start := rows[end-1]
	stop := rows[end]
	span := stop.date.Sub(start.date).Seconds()
	frac := 0.0
	if span > 0 {
		frac = date.Sub(start.date).Seconds() / span
	}
	log.Info("offset interpolated from rows", "table", t.Name, "start", start.index+1, "end", stop.index+1, "fraction", frac)

	v2 = frac*(stop.v2-start.v2) + start.v2
	v3 = frac*(stop.v3-start.v3) + start.v3
	theta = frac*(stop.theta-start.theta) + start.theta
	return v2, v3, theta, nil
}

// ParseObsDate accepts a YYYY-MM-DD string (longer ISO timestamps are
// truncated to the date) or a numeric Modified Julian Date.
func ParseObsDate(v any) (time.Time, error) {
	if s, ok := v.(string); ok {
		s = strings.TrimSpace(s)
		if len(s) >= 10 {
			if t, err := time.Parse("2006-01-02", s[:10]); err == nil {
				return t, nil
			}
		}
	}
	if mjd, ok := header.ToFloat(v); ok {
		return mjdEpoch.Add(time.Duration(mjd * float64(24*time.Hour))), nil
	}
	return time.Time{}, fmt.Errorf("unrecognised observation date %v", v)
}
