// Package header provides keyword/value access to FITS-style metadata headers.
package header

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Header maps upper-cased keyword names to values.
type Header map[string]any

// New creates an empty Header.
func New() Header {
	return make(Header)
}

// Set stores a value under the upper-cased keyword.
func (h Header) Set(key string, v any) {
	h[strings.ToUpper(key)] = v
}

// Has reports whether key is present.
func (h Header) Has(key string) bool {
	_, ok := h[strings.ToUpper(key)]
	return ok
}

// Get returns the raw value for key.
func (h Header) Get(key string) (any, bool) {
	v, ok := h[strings.ToUpper(key)]
	return v, ok
}

// Keys returns the keywords in sorted order.
func (h Header) Keys() []string {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a shallow copy; values are scalars so this is sufficient.
func (h Header) Clone() Header {
	out := make(Header, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}

// Float returns key as a float64.
func (h Header) Float(key string) (float64, error) {
	v, ok := h.Get(key)
	if !ok {
		return 0, fmt.Errorf("keyword %s not found", strings.ToUpper(key))
	}
	f, ok := ToFloat(v)
	if !ok {
		return 0, fmt.Errorf("keyword %s: %v is not numeric", strings.ToUpper(key), v)
	}
	return f, nil
}

// FloatOr returns key as a float64, or def when missing or not numeric.
func (h Header) FloatOr(key string, def float64) float64 {
	f, err := h.Float(key)
	if err != nil {
		return def
	}
	return f
}

// Int returns key as an int.
func (h Header) Int(key string) (int, error) {
	f, err := h.Float(key)
	if err != nil {
		return 0, err
	}
	return int(f), nil
}

// String returns key as a trimmed string.
func (h Header) String(key string) string {
	v, ok := h.Get(key)
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return fmt.Sprint(v)
}

// ToFloat converts the numeric kinds found in FITS headers and table cells.
func ToFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
