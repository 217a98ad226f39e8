// Package sheetsvc reads & writes the CSV sheets exchanged with instructors and admins.
package sheetsvc

import (
	"bufio"
	"encoding/csv"
	"io"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/pkg/errors"

	"github.com/trezcool/clotrack/core"
	"github.com/trezcool/clotrack/core/attainment"
	"github.com/trezcool/clotrack/core/batch"
	"github.com/trezcool/clotrack/core/mark"
	"github.com/trezcool/clotrack/core/subject"
)

const bom = "\ufeff"

var ErrNoRollNoColumn = core.NewValidationError(nil, core.FieldError{
	Field: "file",
	Error: "the sheet has no " + attainment.ColRollNo + " column",
})

// DuplicateColumnError is the error returned when two header cells name the same column once trimmed.
func DuplicateColumnError(col string) error {
	return core.NewValidationError(nil, core.FieldError{
		Field: "file",
		Error: "the sheet has a duplicate " + col + " column",
	})
}

// skipBOM drops the byte order mark spreadsheet tools put in front of exported files.
func skipBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	if b, err := br.Peek(len(bom)); err == nil && string(b) == bom {
		_, _ = br.Discard(len(bom))
	}
	return br
}

// ReadMarks reads a marks sheet. Header cells are trimmed & blank rows skipped.
// Header cells that collide once trimmed reject the sheet.
func ReadMarks(r io.Reader) ([]mark.StudentRecord, error) {
	rows, err := gocsv.CSVToMaps(skipBOM(r))
	if err != nil {
		return nil, core.NewValidationError(errors.Wrap(err, "parsing marks sheet"))
	}

	records := make([]mark.StudentRecord, 0, len(rows))
	for _, row := range rows {
		data := make(map[string]string, len(row))
		blank := true
		for col, val := range row {
			key := strings.TrimSpace(col)
			if _, dup := data[key]; dup {
				return nil, DuplicateColumnError(key)
			}
			data[key] = val
			if strings.TrimSpace(val) != "" {
				blank = false
			}
		}
		if blank {
			continue
		}
		rollNo, ok := data[attainment.ColRollNo]
		if !ok {
			return nil, ErrNoRollNoColumn
		}
		records = append(records, mark.StudentRecord{RollNo: core.CleanString(rollNo), Data: data})
	}
	return records, nil
}

// ReadTagging reads a student tagging sheet (RollNo, SubjectCode, InstructorId).
func ReadTagging(r io.Reader) ([]subject.TagStudent, error) {
	rows := make([]subject.TagStudent, 0)
	if err := gocsv.Unmarshal(skipBOM(r), &rows); err != nil {
		if errors.Cause(err) == gocsv.ErrEmptyCSVFile {
			return rows, nil
		}
		return nil, core.NewValidationError(errors.Wrap(err, "parsing tagging sheet"))
	}
	return rows, nil
}

// ReadStudents reads a batch roster (RollNo, Name, Department).
func ReadStudents(r io.Reader) ([]batch.Student, error) {
	students := make([]batch.Student, 0)
	if err := gocsv.Unmarshal(skipBOM(r), &students); err != nil {
		if errors.Cause(err) == gocsv.ErrEmptyCSVFile {
			return students, nil
		}
		return nil, core.NewValidationError(errors.Wrap(err, "parsing students sheet"))
	}
	return students, nil
}

// WriteTable writes the table as CSV, header first.
func WriteTable(w io.Writer, t mark.Table) error {
	cw := gocsv.NewSafeCSVWriter(csv.NewWriter(w))
	if err := cw.Write(t.Header); err != nil {
		return errors.Wrap(err, "writing header")
	}
	for _, row := range t.Rows {
		if err := cw.Write(row); err != nil {
			return errors.Wrap(err, "writing row")
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteTagging writes the rows of a tagging sheet.
func WriteTagging(w io.Writer, rows []subject.TagStudent) error {
	return gocsv.Marshal(&rows, w)
}
