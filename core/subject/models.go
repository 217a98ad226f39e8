package subject

import (
	"sort"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/clotrack/core"
)

const defaultWeightage = 100.0

type (
	Part struct {
		PartNo   int     `json:"part_no" bson:"partNo" validate:"min=1"`
		MaxMarks float64 `json:"max_marks" bson:"maxMarks" validate:"min=0"`
	}

	// Question is worth the sum of its Parts when it has any.
	Question struct {
		QuestionNo int     `json:"question_no" bson:"questionNo" validate:"min=1"`
		MaxMarks   float64 `json:"max_marks" bson:"maxMarks" validate:"min=0"`
		Parts      []Part  `json:"parts" bson:"parts" validate:"dive"`
	}

	// EvaluationCriterion is one assessment (e.g. MST, EST) of a Subject.
	EvaluationCriterion struct {
		TotalMarks float64    `json:"total_marks" bson:"totalMarks" validate:"min=0"`
		Weightage  *float64   `json:"weightage" bson:"weightage" validate:"omitempty,min=0,max=100"` // percent; nil means 100
		Questions  []Question `json:"questions" bson:"questions" validate:"dive"`
	}

	CLO struct {
		CLONumber int    `json:"clo_number" bson:"cloNumber" validate:"min=1"`
		Statement string `json:"clo_statement" bson:"cloStatement" validate:"required"`
	}

	// MapEntry points at a whole question (PartNo nil) or at one of its parts.
	MapEntry struct {
		Criteria   string `json:"criteria" bson:"criteria" validate:"required,alphanum_"`
		QuestionNo int    `json:"question_no" bson:"questionNo" validate:"min=1"`
		PartNo     *int   `json:"part_no" bson:"partNo" validate:"omitempty,min=1"`
	}

	CLOMapping struct {
		CLONumber int        `json:"clo_number" bson:"cloNumber" validate:"min=1"`
		Mappings  []MapEntry `json:"mappings" bson:"mappings" validate:"dive"`
	}

	// InstructorAssignment lists the roll numbers tagged to an instructor.
	InstructorAssignment struct {
		InstructorID string   `json:"instructor_id" bson:"instructorId"`
		Students     []string `json:"students" bson:"students"`
	}

	Subject struct {
		ID               string                         `json:"id" bson:"_id"`
		Name             string                         `json:"subject_name" bson:"subjectName"`
		Code             string                         `json:"subject_code" bson:"subjectCode"`
		Department       string                         `json:"department" bson:"department"`
		EvaluationSchema map[string]EvaluationCriterion `json:"evaluation_schema" bson:"evaluationSchema"`
		CLOs             []CLO                          `json:"clos" bson:"clos"`
		CLOMappings      []CLOMapping                   `json:"clo_mappings" bson:"cloMappings"`
		Instructors      []InstructorAssignment         `json:"instructors" bson:"instructors"`
		CoordinatorID    string                         `json:"coordinator_id" bson:"coordinatorId"` // empty if none
		CreatedAt        time.Time                      `json:"created_at" bson:"createdAt"`         // UTC
		UpdatedAt        time.Time                      `json:"updated_at" bson:"updatedAt"`         // UTC
	}
)

// WeightageFactor returns the criterion weightage as a fraction.
func (ec EvaluationCriterion) WeightageFactor() float64 {
	if ec.Weightage == nil {
		return defaultWeightage / 100
	}
	return *ec.Weightage / 100
}

func (s Subject) Criterion(name string) (EvaluationCriterion, bool) {
	ec, ok := s.EvaluationSchema[name]
	return ec, ok
}

// CriteriaNames returns the evaluation criteria names, sorted.
func (s Subject) CriteriaNames() []string {
	names := make([]string, 0, len(s.EvaluationSchema))
	for name := range s.EvaluationSchema {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s Subject) Instructor(id string) (InstructorAssignment, bool) {
	for _, ia := range s.Instructors {
		if ia.InstructorID == id {
			return ia, true
		}
	}
	return InstructorAssignment{}, false
}

func (s Subject) HasInstructor(id string) bool {
	_, ok := s.Instructor(id)
	return ok
}

func (s Subject) IsCoordinator(id string) bool {
	return s.CoordinatorID != "" && s.CoordinatorID == id
}

// TaggedInstructor returns the ID of the instructor the student is tagged to, if any.
func (s Subject) TaggedInstructor(rollNo string) (string, bool) {
	for _, ia := range s.Instructors {
		for _, r := range ia.Students {
			if r == rollNo {
				return ia.InstructorID, true
			}
		}
	}
	return "", false
}

// InstructorIDs returns the IDs of the Subject instructors, in assignment order.
func (s Subject) InstructorIDs() []string {
	ids := make([]string, 0, len(s.Instructors))
	for _, ia := range s.Instructors {
		ids = append(ids, ia.InstructorID)
	}
	return ids
}

// instructorIndex returns the index of the instructor entry, appending an empty one if missing.
func (s *Subject) instructorIndex(id string) int {
	for i, ia := range s.Instructors {
		if ia.InstructorID == id {
			return i
		}
	}
	s.Instructors = append(s.Instructors, InstructorAssignment{InstructorID: id, Students: []string{}})
	return len(s.Instructors) - 1
}

// tag adds the roll numbers to the instructor's students, skipping those already present.
func (s *Subject) tag(instructorID string, rollNos ...string) {
	idx := s.instructorIndex(instructorID)
	ia := &s.Instructors[idx]
	for _, r := range rollNos {
		if !contains(ia.Students, r) {
			ia.Students = append(ia.Students, r)
		}
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Summary is a Subject as seen by one of its instructors.
type Summary struct {
	Subject
	StudentsCount int `json:"students_count"`
}

// TaggedStudent is a student tagged to a Subject instructor.
type TaggedStudent struct {
	RollNo       string `json:"roll_no"`
	Name         string `json:"name"`
	Department   string `json:"department"`
	BatchID      string `json:"batch_id"`
	InstructorID string `json:"instructor_id"`
}

type NewSubject struct {
	Name       string `json:"subject_name" validate:"required"`
	Code       string `json:"subject_code" validate:"required,alphanum_"`
	Department string `json:"department" validate:"required"`
}

func (ns *NewSubject) Validate(validate *validator.Validate, svc *Service) error {
	ns.Name = core.CleanString(ns.Name)
	ns.Code = core.CleanString(ns.Code)
	ns.Department = core.CleanString(ns.Department)

	if err := validate.Struct(ns); err != nil {
		return err
	}
	return svc.checkUniqueness(ns.Code)
}

// EvaluationSettings holds the coordinator editable parts of a Subject.
// Nil fields keep their current value; set fields replace it wholesale.
type EvaluationSettings struct {
	CLOs             *[]CLO                          `json:"clos" validate:"omitempty,dive"`
	EvaluationSchema *map[string]EvaluationCriterion `json:"evaluation_schema" validate:"omitempty,dive,keys,alphanum_,endkeys"`
	CLOMappings      *[]CLOMapping                   `json:"clo_mappings" validate:"omitempty,dive"`
}

func (es *EvaluationSettings) Validate(validate *validator.Validate) error {
	if es.CLOs != nil {
		for i := range *es.CLOs {
			(*es.CLOs)[i].Statement = core.CleanString((*es.CLOs)[i].Statement)
		}
	}
	if es.CLOMappings != nil {
		for i := range *es.CLOMappings {
			for j := range (*es.CLOMappings)[i].Mappings {
				m := &(*es.CLOMappings)[i].Mappings[j]
				m.Criteria = core.CleanString(m.Criteria)
			}
		}
	}
	return validate.Struct(es)
}

// AssignInstructor adds a teacher to a Subject, optionally (un)setting them as its coordinator.
type AssignInstructor struct {
	TeacherID     string `json:"teacher_id" validate:"required"`
	SubjectCode   string `json:"subject_code" validate:"required"`
	IsCoordinator *bool  `json:"is_coordinator"`
}

// TagStudent tags a student to a Subject instructor. Its csv tags match the tagging sheet header.
type TagStudent struct {
	RollNo       string `json:"roll_no" csv:"RollNo" validate:"required"`
	SubjectCode  string `json:"subject_code" csv:"SubjectCode" validate:"required"`
	InstructorID string `json:"instructor_id" csv:"InstructorId" validate:"required"`
}

func (ts *TagStudent) Clean() {
	ts.RollNo = core.CleanString(ts.RollNo)
	ts.SubjectCode = core.CleanString(ts.SubjectCode)
	ts.InstructorID = core.CleanString(ts.InstructorID)
}

type AssignStudents struct {
	InstructorID string   `json:"instructor_id" validate:"required"`
	RollNos      []string `json:"roll_nos"`
}

type AssignBatch struct {
	BatchID      string `json:"batch_id" validate:"required"`
	SubjectCode  string `json:"subject_code" validate:"required"`
	InstructorID string `json:"instructor_id" validate:"required"`
}

// RowError reports why a row of an uploaded sheet was rejected. Row is 1-based.
type RowError struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

func (re RowError) Error() string {
	return "Row " + strconv.Itoa(re.Row) + ": " + re.Reason
}

type QueryFilter struct {
	Department   string `query:"department"`
	Code         string `query:"subject_code"`
	InstructorID string `query:"instructor_id"` // subjects taught or coordinated by the instructor
}

func (qf *QueryFilter) Clean() {
	qf.Department = core.CleanString(qf.Department)
	qf.Code = core.CleanString(qf.Code)
	qf.InstructorID = core.CleanString(qf.InstructorID)
}
