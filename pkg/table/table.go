// Package table reads and writes the interchange table handed between the
// extraction, description and merge phases.
package table

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	apperrors "github.com/xhad/pdfalt/internal/errors"
	"github.com/xhad/pdfalt/internal/models"
)

// Column names, in the order they are written.
const (
	ColumnImageName   = "image_name"
	ColumnTitle       = "title"
	ColumnTextBefore  = "text_before"
	ColumnTextAfter   = "text_after"
	ColumnDescription = "description"

	// legacyDescription is accepted on read for tables written by older tools.
	legacyDescription = "alt_text"
)

var (
	ContextColumns   = []string{ColumnImageName, ColumnTitle, ColumnTextBefore, ColumnTextAfter}
	DescribedColumns = append(append([]string(nil), ContextColumns...), ColumnDescription)
)

var ErrMissingImageName = errors.New("table has no image_name column")

// RowError describes a data row that was skipped on read. Line is the
// 1-based line of the row in the input, counting the header. Err is a
// merge-kind error.
type RowError struct {
	Line int
	Err  error
}

func (e RowError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e RowError) Unwrap() error { return e.Err }

// WriteContext writes a header and one row per record.
func WriteContext(w io.Writer, records []models.ContextRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ContextColumns); err != nil {
		return err
	}
	for _, r := range records {
		if err := cw.Write([]string{r.ImageName, r.Title, r.TextBefore, r.TextAfter}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteDescribed writes a header and one row per record, description last.
func WriteDescribed(w io.Writer, records []models.DescribedRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(DescribedColumns); err != nil {
		return err
	}
	for _, r := range records {
		if err := cw.Write([]string{r.ImageName, r.Title, r.TextBefore, r.TextAfter, r.Description}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

type header map[string]int

func readHeader(cr *csv.Reader) (header, error) {
	names, err := cr.Read()
	if err == io.EOF {
		return nil, ErrMissingImageName
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	h := make(header, len(names))
	for i, name := range names {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		if _, dup := h[name]; !dup {
			h[name] = i
		}
	}
	if _, ok := h[ColumnImageName]; !ok {
		return nil, ErrMissingImageName
	}
	return h, nil
}

// field returns the value of column in row. A column absent from the
// header reads as empty; a row too short to hold a present column is an
// error.
func (h header) field(row []string, column string) (string, error) {
	idx, ok := h[column]
	if !ok {
		return "", nil
	}
	if idx >= len(row) {
		return "", fmt.Errorf("missing %s field", column)
	}
	return row[idx], nil
}

func (h header) contextRecord(row []string) (models.ContextRecord, error) {
	var r models.ContextRecord
	var err error
	if r.ImageName, err = h.field(row, ColumnImageName); err != nil {
		return r, err
	}
	if strings.TrimSpace(r.ImageName) == "" {
		return r, errors.New("empty image_name")
	}
	if r.Title, err = h.field(row, ColumnTitle); err != nil {
		return r, err
	}
	if r.TextBefore, err = h.field(row, ColumnTextBefore); err != nil {
		return r, err
	}
	if r.TextAfter, err = h.field(row, ColumnTextAfter); err != nil {
		return r, err
	}
	return r, nil
}

func newReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	return cr
}

// readRows feeds every data row to visit. Rows that fail to parse or that
// visit rejects are collected as RowErrors; reading continues.
func readRows(cr *csv.Reader, visit func(row []string) error) ([]RowError, error) {
	var skipped []RowError
	for {
		row, err := cr.Read()
		if err == io.EOF {
			return skipped, nil
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				skipped = append(skipped, rowError(perr.StartLine, perr.Err))
				continue
			}
			return skipped, err
		}
		line, _ := cr.FieldPos(0)
		if err := visit(row); err != nil {
			skipped = append(skipped, rowError(line, err))
		}
	}
}

func rowError(line int, err error) RowError {
	return RowError{Line: line, Err: apperrors.NewMergeError("read row", err)}
}

// ReadContext reads a context table. Extra columns are ignored and
// malformed rows are skipped and reported.
func ReadContext(r io.Reader) ([]models.ContextRecord, []RowError, error) {
	cr := newReader(r)
	h, err := readHeader(cr)
	if err != nil {
		return nil, nil, err
	}
	var records []models.ContextRecord
	skipped, err := readRows(cr, func(row []string) error {
		rec, err := h.contextRecord(row)
		if err != nil {
			return err
		}
		records = append(records, rec)
		return nil
	})
	return records, skipped, err
}

// ReadDescribed reads a described table. Rows without a description value
// are skipped and reported.
func ReadDescribed(r io.Reader) ([]models.DescribedRecord, []RowError, error) {
	cr := newReader(r)
	h, err := readHeader(cr)
	if err != nil {
		return nil, nil, err
	}
	descColumn := ColumnDescription
	if _, ok := h[descColumn]; !ok {
		descColumn = legacyDescription
	}

	var records []models.DescribedRecord
	skipped, err := readRows(cr, func(row []string) error {
		rec, err := h.contextRecord(row)
		if err != nil {
			return err
		}
		if _, ok := h[descColumn]; !ok {
			return errors.New("missing description column")
		}
		desc, err := h.field(row, descColumn)
		if err != nil {
			return err
		}
		records = append(records, models.DescribedRecord{ContextRecord: rec, Description: desc})
		return nil
	})
	return records, skipped, err
}

// WriteContextFile writes a context table to path, replacing it atomically.
func WriteContextFile(path string, records []models.ContextRecord) error {
	return writeFile(path, func(w io.Writer) error { return WriteContext(w, records) })
}

// WriteDescribedFile writes a described table to path, replacing it atomically.
func WriteDescribedFile(path string, records []models.DescribedRecord) error {
	return writeFile(path, func(w io.Writer) error { return WriteDescribed(w, records) })
}

func ReadContextFile(path string) ([]models.ContextRecord, []RowError, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	return ReadContext(f)
}

func ReadDescribedFile(path string) ([]models.DescribedRecord, []RowError, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	return ReadDescribed(f)
}

func writeFile(path string, write func(io.Writer) error) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if err = write(tmp); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
