package mark

import (
	"time"

	"github.com/trezcool/clotrack/core/attainment"
)

// StudentMark holds the marks of a student for one evaluation criterion, as submitted by one instructor.
// It is unique by Key.
type StudentMark struct {
	ID           string             `json:"id" bson:"_id"`
	SubjectID    string             `json:"subject_id" bson:"subjectId"`
	RollNo       string             `json:"roll_no" bson:"rollNo"`
	InstructorID string             `json:"instructor_id" bson:"instructorId"`
	EvalCriteria string             `json:"eval_criteria" bson:"evalCriteria"`
	Data         map[string]string  `json:"data" bson:"data"`
	CLOMarks     map[string]float64 `json:"clo_marks" bson:"cloMarks"`
	CLOTotals    map[string]float64 `json:"clo_totals" bson:"cloTotals"`
	CreatedAt    time.Time          `json:"created_at" bson:"createdAt"` // UTC
	UpdatedAt    time.Time          `json:"updated_at" bson:"updatedAt"` // UTC
}

type Key struct {
	SubjectID    string
	RollNo       string
	InstructorID string
	EvalCriteria string
}

func (m StudentMark) Key() Key {
	return Key{SubjectID: m.SubjectID, RollNo: m.RollNo, InstructorID: m.InstructorID, EvalCriteria: m.EvalCriteria}
}

// StudentRecord is a row of a marks sheet: the raw cells of one student, keyed by column.
type StudentRecord struct {
	RollNo string            `json:"roll_no" validate:"required"`
	Data   map[string]string `json:"data"`
}

type RecordError struct {
	RollNo string `json:"roll_no"`
	Error  string `json:"error"`
}

// SubmitResult reports the outcome of a submission, record by record.
type SubmitResult struct {
	Saved   []string      `json:"saved"`
	Dropped []string      `json:"dropped"` // not tagged to the instructor
	Errors  []RecordError `json:"errors"`
}

// Attainment is the computed attainment of a student, as previewed.
type Attainment struct {
	RollNo string            `json:"roll_no"`
	Data   map[string]string `json:"data"`
	attainment.Result
}

type SubmissionStatus struct {
	InstructorID   string `json:"instructor_id"`
	InstructorName string `json:"instructor_name"`
	HasSubmitted   bool   `json:"has_submitted"`
	Count          int    `json:"count"`
}

type QueryFilter struct {
	SubjectID    string
	InstructorID string
	EvalCriteria string
}
