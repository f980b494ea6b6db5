package sources

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/desertthunder/listsync/internal/models"
	"github.com/desertthunder/listsync/internal/shared"
)

// CSVReader reads a CSV stream whose first record is the header. All values are strings.
type CSVReader struct {
	r      *csv.Reader
	closer io.Closer
	schema models.Schema
	names  []string
	line   int
}

// NewCSVReader reads the header from r. delimiter defaults to ",".
func NewCSVReader(r io.Reader, delimiter string, closer io.Closer) (*CSVReader, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = false

	if delimiter != "" {
		d, size := utf8.DecodeRuneInString(delimiter)
		if size != len(delimiter) || d == utf8.RuneError {
			return nil, fmt.Errorf("%w: delimiter must be a single character, got %q", shared.ErrInvalidConfig, delimiter)
		}
		cr.Comma = d
	}

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: csv has no header", shared.ErrInvalidInput)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}

	names := make([]string, len(header))
	for i, h := range header {
		names[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}

	return &CSVReader{r: cr, closer: closer, schema: models.NewSchema(names...), names: names, line: 1}, nil
}

// OpenCSVFile opens path as a CSV source.
func OpenCSVFile(path, delimiter string) (*CSVReader, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: csv source needs a path", shared.ErrInvalidConfig)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open csv: %w", err)
	}
	r, err := NewCSVReader(f, delimiter, f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

func (c *CSVReader) Schema() models.Schema { return c.schema }

// Next returns the next record. Short records are padded with nil values.
func (c *CSVReader) Next() (models.Row, error) {
	for {
		rec, err := c.r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return models.Row{}, io.EOF
			}
			return models.Row{}, fmt.Errorf("csv line %d: %w", c.line+1, err)
		}
		c.line++
		if len(rec) == 1 && rec[0] == "" {
			continue
		}

		values := make([]any, len(rec))
		for i, v := range rec {
			values[i] = v
		}
		return models.NewRow(c.names, values), nil
	}
}

func (c *CSVReader) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer.Close()
}
