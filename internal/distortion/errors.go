package distortion

import "fmt"

// RowNotFoundError reports a reference-table lookup miss.
type RowNotFoundError struct {
	Table     string
	Chip      int
	Filter1   string
	Filter2   string
	Direction string
}

func (e *RowNotFoundError) Error() string {
	if e.Filter1 == "" && e.Filter2 == "" {
		return fmt.Sprintf("table %s: no row found for chip %d", e.Table, e.Chip)
	}
	return fmt.Sprintf("table %s: no row found for chip %d, filters %s,%s, direction %s",
		e.Table, e.Chip, e.Filter1, e.Filter2, e.Direction)
}

// MissingTableError reports a reference table that could not be opened.
type MissingTableError struct {
	Name string
	Err  error
}

func (e *MissingTableError) Error() string {
	return fmt.Sprintf("reference table %q could not be opened: %v; verify that the environment variable "+
		"or configured reference directory for its prefix (e.g. jref$) points at the reference files", e.Name, e.Err)
}

func (e *MissingTableError) Unwrap() error { return e.Err }
