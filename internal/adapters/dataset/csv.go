// Package dataset reads the historical student CSV used for statistics.
package dataset

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/encoding/charmap"
	textunicode "golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/okian/dropout/internal/domain/model"
	"github.com/okian/dropout/internal/domain/stats"
	"github.com/okian/dropout/pkg/logger"
)

// Supported encodings.
const (
	EncodingUTF8        = "utf-8"
	EncodingLatin1      = "latin1"
	EncodingWindows1252 = "windows-1252"
)

const ctxCheckEvery = 1024

// columns in the order they populate a Row.
var columns = [...]string{model.FieldGrades, model.FieldAttendance, model.FieldIncidents, model.FieldLabel}

// Option applies a configuration option to the Reader.
type Option func(*Reader)

// WithEncoding selects the file encoding.
func WithEncoding(name string) Option {
	return func(r *Reader) {
		if name != "" {
			r.encoding = strings.ToLower(name)
		}
	}
}

// WithLogger sets the reader logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Reader) {
		if l != nil {
			r.log = l
		}
	}
}

// Reader loads the dataset from disk on every call. Nothing is cached.
type Reader struct {
	path     string
	encoding string
	log      logger.Logger
}

// NewReader creates a reader for path.
func NewReader(path string, opts ...Option) (*Reader, error) {
	r := &Reader{path: path, encoding: EncodingUTF8, log: logger.Nop()}
	for _, opt := range opts {
		opt(r)
	}
	if _, err := decoderFor(r.encoding); err != nil {
		return nil, err
	}
	return r, nil
}

// Rows reads and parses the whole file.
func (r *Reader) Rows(ctx context.Context) ([]stats.Row, error) {
	f, err := os.Open(r.path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer func() { _ = f.Close() }()

	dec, err := decoderFor(r.encoding)
	if err != nil {
		return nil, err
	}
	rows, err := Parse(ctx, transform.NewReader(f, dec))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", r.path, err)
	}
	r.log.Debug(ctx, "dataset read", logger.String("path", r.path), logger.Int("rows", len(rows)))
	return rows, nil
}

// Parse reads CSV with a header row. Required columns may appear in any
// order and extra columns are ignored. Every cell of a required column must
// be a finite number.
func Parse(ctx context.Context, src io.Reader) ([]stats.Row, error) {
	cr := csv.NewReader(src)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: no header", ErrMalformedRow)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRow, err)
	}
	idx, err := columnIndex(header)
	if err != nil {
		return nil, err
	}

	var rows []stats.Row
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformedRow, line, err)
		}
		if line%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		var vals [len(columns)]float64
		for c, i := range idx {
			if i >= len(rec) {
				return nil, fmt.Errorf("%w: line %d: missing %s", ErrMalformedRow, line, columns[c])
			}
			cell := strings.TrimSpace(rec[i])
			if cell == "" {
				return nil, fmt.Errorf("%w: line %d: empty %s", ErrMalformedRow, line, columns[c])
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: %s is not a number: %q", ErrMalformedRow, line, columns[c], cell)
			}
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("%w: line %d: %s is not finite: %q", ErrMalformedRow, line, columns[c], cell)
			}
			vals[c] = v
		}
		rows = append(rows, stats.Row{
			Features: model.FeatureVector{Grades: vals[0], Attendance: vals[1], BehaviorIncidents: vals[2]},
			Label:    vals[3],
		})
	}
	return rows, nil
}

func columnIndex(header []string) ([len(columns)]int, error) {
	var idx [len(columns)]int
	seen := make(map[string]int, len(header))
	for i, h := range header {
		seen[canonical(h)] = i
	}
	for c, name := range columns {
		i, ok := seen[name]
		if !ok {
			return idx, fmt.Errorf("%w: %s", ErrMissingColumn, name)
		}
		idx[c] = i
	}
	return idx, nil
}

// canonical lowercases a header and strips diacritics so "Deserción"
// matches "desercion".
func canonical(h string) string {
	var b strings.Builder
	for _, r := range norm.NFD.String(strings.TrimSpace(h)) {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// decoderFor returns a fresh transformer; they carry state and are not shared.
func decoderFor(name string) (transform.Transformer, error) {
	switch name {
	case EncodingUTF8, "utf8", "":
		return textunicode.BOMOverride(textunicode.UTF8.NewDecoder()), nil
	case EncodingLatin1, "iso-8859-1":
		return charmap.ISO8859_1.NewDecoder(), nil
	case EncodingWindows1252, "cp1252":
		return charmap.Windows1252.NewDecoder(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEncoding, name)
	}
}
