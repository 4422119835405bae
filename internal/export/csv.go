// Package export writes provider tables as CSV files to a local directory tree
// or to an object store.
package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dvloznov/orders-to-cash/internal/table"
)

// WriteCSV writes a header row followed by every row of t. Missing values are
// written as empty fields, numbers without exponent or padding.
func WriteCSV(w io.Writer, t *table.Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns()); err != nil {
		return fmt.Errorf("WriteCSV: writing header: %w", err)
	}

	record := make([]string, len(t.Columns()))
	for i, row := range t.Rows() {
		for j, v := range row {
			record[j] = table.Format(v)
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("WriteCSV: writing row %d: %w", i, err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("WriteCSV: flushing: %w", err)
	}
	return nil
}

// ReadCSV reads a file produced by WriteCSV. Every field comes back as a
// string; empty fields come back as missing. An empty-string cell and a
// missing cell are written identically, so both read back as missing.
func ReadCSV(r io.Reader) (*table.Table, error) {
	cr := csv.NewReader(r)

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("ReadCSV: empty input")
	}
	if err != nil {
		return nil, fmt.Errorf("ReadCSV: reading header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], utf8BOM)
	}

	t, err := table.New(header...)
	if err != nil {
		return nil, fmt.Errorf("ReadCSV: %w", err)
	}

	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ReadCSV: line %d: %w", line, err)
		}
		values := make([]table.Value, len(rec))
		for i, f := range rec {
			if f != "" {
				values[i] = f
			}
		}
		if err := t.Append(values...); err != nil {
			return nil, fmt.Errorf("ReadCSV: line %d: %w", line, err)
		}
	}
	return t, nil
}

const utf8BOM = "\uFEFF"
