// Package csvout writes and reads the per-source CSV side output.
package csvout

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"slices"

	"github.com/spf13/afero"

	"github.com/JakeFAU/campus-extractor/internal/extract"
	"github.com/JakeFAU/campus-extractor/internal/structured"
)

// FileName returns the side-output file name for a run.
func FileName(mode extract.Mode, department string) string {
	switch mode {
	case extract.ModeResearch:
		return fmt.Sprintf("research_%s.csv", department)
	case extract.ModeCourses:
		return fmt.Sprintf("%s_courses.csv", department)
	default:
		return "events.csv"
	}
}

// Writer writes CSV files under a directory.
type Writer struct {
	fs  afero.Fs
	dir string
}

// NewWriter builds a Writer on fsys rooted at dir.
func NewWriter(fsys afero.Fs, dir string) *Writer {
	return &Writer{fs: fsys, dir: dir}
}

// Write replaces dir/name with a header row plus one row per record and
// returns the file path.
func Write[T any](w *Writer, name string, schema structured.Schema[T], records []T) (string, error) {
	data, err := Encode(schema, records)
	if err != nil {
		return "", err
	}
	if err := w.fs.MkdirAll(w.dir, 0o750); err != nil {
		return "", fmt.Errorf("create csv dir: %w", err)
	}
	path := filepath.Join(w.dir, name)
	if err := afero.WriteFile(w.fs, path, data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}

// Encode renders records as CSV with the schema header.
func Encode[T any](schema structured.Schema[T], records []T) ([]byte, error) {
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	if err := cw.Write(schema.Header()); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	for _, rec := range records {
		if err := cw.Write(schema.Row(rec)); err != nil {
			return nil, fmt.Errorf("write row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode parses CSV produced by Encode. Rows that fail validation are
// returned as errors alongside the valid records.
func Decode[T any](schema structured.Schema[T], r io.Reader) ([]T, []error, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read header: %w", err)
	}
	if !slices.Equal(header, schema.Header()) {
		return nil, nil, &extract.SchemaValidationError{Schema: schema.Name, Reason: fmt.Sprintf("unexpected header %v", header)}
	}

	var (
		records []T
		rowErrs []error
	)
	for line := 2; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return records, rowErrs, fmt.Errorf("read row %d: %w", line, err)
		}
		rec, err := schema.FromRow(row)
		if err != nil {
			rowErrs = append(rowErrs, fmt.Errorf("row %d: %w", line, err))
			continue
		}
		records = append(records, rec)
	}
	return records, rowErrs, nil
}
