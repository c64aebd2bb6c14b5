// Package table holds calibration reference tables in memory.
package table

import (
	"fmt"
	"strings"

	"wcscal/internal/header"
)

// Table is a row-oriented reference table with its primary header.
type Table struct {
	Name    string
	Header  header.Header
	Columns []string
	Rows    []map[string]any
}

// New builds a Table; column names are upper-cased.
func New(name string, hdr header.Header, columns []string) *Table {
	if hdr == nil {
		hdr = header.New()
	}
	cols := make([]string, len(columns))
	for i, c := range columns {
		cols[i] = strings.ToUpper(c)
	}
	return &Table{Name: name, Header: hdr, Columns: cols}
}

// AddRow appends a row keyed by column name.
func (t *Table) AddRow(row map[string]any) {
	r := make(map[string]any, len(row))
	for k, v := range row {
		r[strings.ToUpper(k)] = v
	}
	t.Rows = append(t.Rows, r)
}

// NumRows returns the row count.
func (t *Table) NumRows() int {
	return len(t.Rows)
}

// HasColumn reports whether the named column exists.
func (t *Table) HasColumn(name string) bool {
	name = strings.ToUpper(name)
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// Value returns the raw cell value.
func (t *Table) Value(row int, col string) (any, error) {
	if row < 0 || row >= len(t.Rows) {
		return nil, fmt.Errorf("table %s: row %d out of range", t.Name, row)
	}
	v, ok := t.Rows[row][strings.ToUpper(col)]
	if !ok {
		return nil, fmt.Errorf("table %s: column %s not found", t.Name, strings.ToUpper(col))
	}
	return v, nil
}

// Float returns a numeric cell.
func (t *Table) Float(row int, col string) (float64, error) {
	v, err := t.Value(row, col)
	if err != nil {
		return 0, err
	}
	f, ok := header.ToFloat(v)
	if !ok {
		return 0, fmt.Errorf("table %s: column %s row %d: %v is not numeric", t.Name, strings.ToUpper(col), row, v)
	}
	return f, nil
}

// String returns a cell as a trimmed string.
func (t *Table) String(row int, col string) (string, error) {
	v, err := t.Value(row, col)
	if err != nil {
		return "", err
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s), nil
	}
	return fmt.Sprint(v), nil
}
