package distortion

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

const textCoeffs = 10

// CubicSource loads a cubic model from a plain-text coefficients file.
type CubicSource struct {
	Path string
}

// Load opens Path and parses it.
func (s CubicSource) Load(ctx context.Context) (*Model, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, &MissingTableError{Name: s.Path, Err: err}
	}
	defer f.Close()
	return ParseCubic(f)
}

// ParseCubic reads a cubic coefficients file: a line starting with cubic,
// quartic, quintic or poly, then two rows of X and two rows of Y coefficients.
// The coefficients are passed along unscaled.
func ParseCubic(r io.Reader) (*Model, error) {
	lines := newLineReader(r)
	if err := lines.skipTo(func(l string) bool {
		l = strings.ToLower(l)
		for _, p := range []string{"cubic", "quartic", "quintic", "poly"} {
			if strings.HasPrefix(l, p) {
				return true
			}
		}
		return false
	}); err != nil {
		return nil, fmt.Errorf("cubic coefficients: %w", err)
	}

	a, err := lines.coeffRows(2)
	if err != nil {
		return nil, fmt.Errorf("cubic coefficients (x): %w", err)
	}
	b, err := lines.coeffRows(2)
	if err != nil {
		return nil, fmt.Errorf("cubic coefficients (y): %w", err)
	}
	if len(a) < textCoeffs || len(b) < textCoeffs {
		return nil, fmt.Errorf("cubic coefficients: need %d per axis, got %d and %d", textCoeffs, len(a), len(b))
	}

	m := cubicModel(a, b)
	m.ref = RefPix{V2Ref: a[0], V3Ref: b[0], Centered: true}
	return m, nil
}

// TraugerSource loads a wavelength-dependent cubic model.
type TraugerSource struct {
	Path       string
	Wavelength float64
}

// Load opens Path and parses it.
func (s TraugerSource) Load(ctx context.Context) (*Model, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, &MissingTableError{Name: s.Path, Err: err}
	}
	defer f.Close()
	return ParseTrauger(f, s.Wavelength)
}

// ParseTrauger reads twenty rows of (c0, c1, c2) following a line starting
// with "trauger". Each coefficient is c0 + c1*(n-1.5) + c2*(n-1.5)^2 where n
// is the MgF2 index of refraction at wavelength.
func ParseTrauger(r io.Reader, wavelength float64) (*Model, error) {
	lines := newLineReader(r)
	if err := lines.skipTo(func(l string) bool {
		return strings.HasPrefix(strings.ToLower(l), "trauger")
	}); err != nil {
		return nil, fmt.Errorf("trauger coefficients: %w", err)
	}

	dn := MgF2(wavelength) - 1.5
	a := make([]float64, textCoeffs)
	b := make([]float64, textCoeffs)
	for j := 0; j < 2*textCoeffs; j++ {
		fields, err := lines.next()
		if err != nil {
			return nil, fmt.Errorf("trauger coefficients row %d: %w", j+1, err)
		}
		if len(fields) < 3 {
			return nil, fmt.Errorf("trauger coefficients row %d: need 3 values, got %d", j+1, len(fields))
		}
		c, err := parseFloats(fields[:3])
		if err != nil {
			return nil, fmt.Errorf("trauger coefficients row %d: %w", j+1, err)
		}
		v := c[0] + c[1]*dn + c[2]*dn*dn
		if j < textCoeffs {
			a[j] = v
		} else {
			b[j-textCoeffs] = v
		}
	}

	m := cubicModel(a, b)
	m.ref = RefPix{Centered: true}
	return m, nil
}

// MgF2 returns the index of refraction of MgF2 at the given wavelength.
func MgF2(lambda float64) float64 {
	sig := math.Pow(1.0e7/lambda, 2)
	return math.Sqrt(1.0 + 2.590355e10/(5.312993e10-sig) +
		4.4543708e9/(11.17083e9-sig) + 4.0838897e5/(1.766361e5-sig))
}

// cubicModel places ten coefficients per axis into order-3 matrices.
func cubicModel(a, b []float64) *Model {
	m := zeroModel(3)
	place := func(d interface{ Set(i, j int, v float64) }, c []float64) {
		d.Set(1, 0, c[2])
		d.Set(1, 1, c[1])
		d.Set(2, 0, c[5])
		d.Set(2, 1, c[4])
		d.Set(2, 2, c[3])
		d.Set(3, 0, c[9])
		d.Set(3, 1, c[8])
		d.Set(3, 2, c[7])
		d.Set(3, 3, c[6])
	}
	place(m.fx, a)
	place(m.fy, b)
	return m
}

type lineReader struct {
	sc *bufio.Scanner
}

func newLineReader(r io.Reader) *lineReader {
	return &lineReader{sc: bufio.NewScanner(r)}
}

// next returns the fields of the next non-blank line.
func (l *lineReader) next() ([]string, error) {
	for l.sc.Scan() {
		line := strings.TrimSpace(l.sc.Text())
		if line == "" {
			continue
		}
		return strings.Fields(line), nil
	}
	if err := l.sc.Err(); err != nil {
		return nil, err
	}
	return nil, io.ErrUnexpectedEOF
}

func (l *lineReader) skipTo(match func(string) bool) error {
	for l.sc.Scan() {
		if match(strings.TrimSpace(l.sc.Text())) {
			return nil
		}
	}
	if err := l.sc.Err(); err != nil {
		return err
	}
	return fmt.Errorf("coefficient header line not found")
}

// coeffRows concatenates the values of n lines.
func (l *lineReader) coeffRows(n int) ([]float64, error) {
	var out []float64
	for i := 0; i < n; i++ {
		fields, err := l.next()
		if err != nil {
			return nil, err
		}
		vals, err := parseFloats(fields)
		if err != nil {
			return nil, err
		}
		out = append(out, vals...)
	}
	return out, nil
}

func parseFloats(fields []string) ([]float64, error) {
	out := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
