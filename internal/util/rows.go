package util

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Row is one CSV record keyed by the header of its file.
type Row map[string]string

// RowReader streams header-keyed rows from CSV input, one record in memory
// at a time. The first record is the header.
//
// Usage mirrors bufio.Scanner:
//
//	rr := NewRowReader(f)
//	for rr.Next() {
//	    row := rr.Row()
//	}
//	if err := rr.Err(); err != nil { ... }
type RowReader struct {
	r       *csv.Reader
	header  []string
	row     Row
	line    int
	err     error
	started bool
	done    bool
}

// NewRowReader reads r as UTF-8, dropping a leading byte order mark.
// Invalid UTF-8 stops iteration with encoding.ErrInvalidUTF8. A bare quote
// inside an unquoted field is kept as data.
func NewRowReader(r io.Reader) *RowReader {
	decoded := transform.NewReader(r, unicode.BOMOverride(encoding.UTF8Validator))
	cr := csv.NewReader(decoded)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = true
	return &RowReader{r: cr}
}

// Header returns the column names once the first Next call has read them.
func (rr *RowReader) Header() []string { return rr.header }

// Line returns the number of records consumed, header included.
func (rr *RowReader) Line() int { return rr.line }

// Next advances to the next row. It returns false at end of input or on the
// first error; Err distinguishes the two.
func (rr *RowReader) Next() bool {
	if rr.done {
		return false
	}
	if !rr.started {
		rr.started = true
		rec, err := rr.r.Read()
		if err != nil {
			rr.finish(err)
			return false
		}
		rr.line++
		rr.header = append([]string(nil), rec...)
	}

	rec, err := rr.r.Read()
	if err != nil {
		rr.finish(err)
		return false
	}
	rr.line++

	row := make(Row, len(rr.header))
	for i, col := range rr.header {
		if i < len(rec) {
			row[col] = rec[i]
		} else {
			row[col] = ""
		}
	}
	rr.row = row
	return true
}

// Row returns the current row. The map is owned by the caller.
func (rr *RowReader) Row() Row { return rr.row }

// Err returns the first non-EOF error encountered.
func (rr *RowReader) Err() error { return rr.err }

func (rr *RowReader) finish(err error) {
	rr.done = true
	rr.row = nil
	if errors.Is(err, io.EOF) {
		return
	}
	rr.err = fmt.Errorf("read CSV near record %d: %w", rr.line+1, err)
}
