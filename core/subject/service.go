package subject

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/clotrack/core"
	"github.com/trezcool/clotrack/core/batch"
	"github.com/trezcool/clotrack/core/user"
)

var (
	// errors
	ErrNotFound       = core.NewNotFoundError("subject not found")
	ErrNotCoordinator = core.NewPermissionError("only the course coordinator can update evaluation settings")
	ErrForbidden      = core.NewPermissionError("not authorized to access this subject")
	ErrCodeExists     = errors.New("subject code already exists")

	errMissingTagFields = errors.New("missing required fields (RollNo, SubjectCode, InstructorId)")
)

type (
	GetFilter struct {
		ID   string
		Code string
	}

	Repository interface {
		CreateSubject(ctx context.Context, s Subject) (Subject, error)
		GetSubject(ctx context.Context, filter GetFilter) (Subject, error)
		// QuerySubjects applies AND operation on available QueryFilter fields.
		QuerySubjects(ctx context.Context, filter QueryFilter) ([]Subject, error)
		UpdateSubject(ctx context.Context, s Subject) (Subject, error)
		DeleteSubject(ctx context.Context, id string) error
	}

	// MarkStore is the part of the marks storage the Subject lifecycle depends on.
	MarkStore interface {
		// SubjectCriteria returns the evaluation criteria that have persisted marks for the subject.
		SubjectCriteria(ctx context.Context, subjectID string) ([]string, error)
		DeleteSubjectMarks(ctx context.Context, subjectID string) error
	}

	Service struct {
		repo    Repository
		marks   MarkStore
		users   *user.Service
		batches *batch.Service
		logger  core.Logger
	}
)

func NewService(repo Repository, marks MarkStore, users *user.Service, batches *batch.Service, logger core.Logger) *Service {
	return &Service{
		repo:    repo,
		marks:   marks,
		users:   users,
		batches: batches,
		logger:  logger,
	}
}

func (svc *Service) checkUniqueness(code string) error {
	_, err := svc.repo.GetSubject(context.Background(), GetFilter{Code: code})
	if err == nil {
		return core.NewValidationError(ErrCodeExists, core.FieldError{Field: "subject_code", Error: ErrCodeExists.Error()})
	}
	if !core.IsNotFound(err) {
		return errors.Wrap(err, "checking subject code uniqueness")
	}
	return nil
}

func (svc *Service) Create(ctx context.Context, ns NewSubject) (Subject, error) {
	now := time.Now().UTC()
	s := Subject{
		ID:               uuid.New().String(),
		Name:             ns.Name,
		Code:             ns.Code,
		Department:       ns.Department,
		EvaluationSchema: map[string]EvaluationCriterion{},
		CLOs:             []CLO{},
		CLOMappings:      []CLOMapping{},
		Instructors:      []InstructorAssignment{},
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	return svc.repo.CreateSubject(ctx, s)
}

func (svc *Service) GetByID(ctx context.Context, id string) (Subject, error) {
	return svc.repo.GetSubject(ctx, GetFilter{ID: id})
}

func (svc *Service) GetByCode(ctx context.Context, code string) (Subject, error) {
	return svc.repo.GetSubject(ctx, GetFilter{Code: code})
}

func (svc *Service) Query(ctx context.Context, filter QueryFilter) ([]Subject, error) {
	return svc.repo.QuerySubjects(ctx, filter)
}

// InstructorSubjects lists the subjects taught or coordinated by the caller, with their own students count.
func (svc *Service) InstructorSubjects(ctx context.Context, id core.Identity) ([]Summary, error) {
	subjects, err := svc.repo.QuerySubjects(ctx, QueryFilter{InstructorID: id.UserID})
	if err != nil {
		return nil, errors.Wrap(err, "querying instructor subjects")
	}
	summaries := make([]Summary, 0, len(subjects))
	for _, s := range subjects {
		ia, _ := s.Instructor(id.UserID)
		summaries = append(summaries, Summary{Subject: s, StudentsCount: len(ia.Students)})
	}
	return summaries, nil
}

// Delete removes the Subject along with its marks, and clears it from its teachers.
// The Subject goes first so a failed delete leaves its marks untouched.
func (svc *Service) Delete(ctx context.Context, id string) error {
	s, err := svc.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err = svc.repo.DeleteSubject(ctx, s.ID); err != nil {
		return errors.Wrap(err, "deleting subject")
	}
	if err = svc.marks.DeleteSubjectMarks(ctx, s.ID); err != nil {
		return errors.Wrap(err, "deleting subject marks")
	}
	if err = svc.users.UnassignSubject(ctx, s.Code); err != nil {
		return errors.Wrap(err, "unassigning subject from users")
	}
	return nil
}

// SetEvaluationSettings replaces the provided top-level settings of the Subject.
// Only the Subject coordinator may do so. Invalid settings are rejected here too,
// whether or not the caller validated them.
// The returned warnings flag schemas whose marks do not add up.
func (svc *Service) SetEvaluationSettings(ctx context.Context, id core.Identity, subjectID string, es EvaluationSettings) (Subject, []string, error) {
	if err := es.Validate(settingsValidate); err != nil {
		return Subject{}, nil, err
	}
	s, err := svc.GetByID(ctx, subjectID)
	if err != nil {
		return Subject{}, nil, err
	}
	if !s.IsCoordinator(id.UserID) {
		return Subject{}, nil, ErrNotCoordinator
	}

	if es.EvaluationSchema != nil {
		if err = svc.checkStructuralEdit(ctx, s, *es.EvaluationSchema); err != nil {
			return Subject{}, nil, err
		}
		s.EvaluationSchema = *es.EvaluationSchema
	}
	if es.CLOs != nil {
		s.CLOs = *es.CLOs
	}
	if es.CLOMappings != nil {
		s.CLOMappings = *es.CLOMappings
	}

	s.UpdatedAt = time.Now().UTC()
	if s, err = svc.repo.UpdateSubject(ctx, s); err != nil {
		return Subject{}, nil, errors.Wrap(err, "updating evaluation settings")
	}

	warnings := schemaWarnings(s.EvaluationSchema)
	if len(warnings) > 0 {
		svc.logger.Warn("inconsistent evaluation schema", map[string]interface{}{"subject": s.Code, "warnings": warnings}, id)
	}
	return s, warnings, nil
}

// checkStructuralEdit rejects schemas removing or changing criteria which already have marks.
func (svc *Service) checkStructuralEdit(ctx context.Context, s Subject, schema map[string]EvaluationCriterion) error {
	criteria, err := svc.marks.SubjectCriteria(ctx, s.ID)
	if err != nil {
		return errors.Wrap(err, "querying marked criteria")
	}

	var flds []core.FieldError
	for _, name := range criteria {
		old, ok := s.EvaluationSchema[name]
		if !ok {
			continue
		}
		fld := "evaluation_schema." + name
		if ec, ok := schema[name]; !ok {
			flds = append(flds, core.FieldError{Field: fld, Error: "criterion has submitted marks and cannot be removed"})
		} else if !criterionEqual(old, ec) {
			flds = append(flds, core.FieldError{Field: fld, Error: "criterion has submitted marks and cannot be changed"})
		}
	}
	if len(flds) > 0 {
		return core.NewValidationError(nil, flds...)
	}
	return nil
}

func criterionEqual(a, b EvaluationCriterion) bool {
	if a.TotalMarks != b.TotalMarks || a.WeightageFactor() != b.WeightageFactor() || len(a.Questions) != len(b.Questions) {
		return false
	}
	for i, qa := range a.Questions {
		qb := b.Questions[i]
		if qa.QuestionNo != qb.QuestionNo || qa.MaxMarks != qb.MaxMarks || len(qa.Parts) != len(qb.Parts) {
			return false
		}
		for j, pa := range qa.Parts {
			if pa != qb.Parts[j] {
				return false
			}
		}
	}
	return true
}

// AssignInstructor adds the teacher to the subject instructors and keeps the teacher's assigned subjects in sync.
func (svc *Service) AssignInstructor(ctx context.Context, ai AssignInstructor) (Subject, error) {
	s, err := svc.GetByCode(ctx, ai.SubjectCode)
	if err != nil {
		return Subject{}, err
	}
	if _, err = svc.users.AssignSubject(ctx, ai.TeacherID, s.Code, ai.IsCoordinator); err != nil {
		return Subject{}, err
	}

	s.instructorIndex(ai.TeacherID)
	if ai.IsCoordinator != nil {
		if *ai.IsCoordinator {
			if prev := s.CoordinatorID; prev != "" && prev != ai.TeacherID {
				demote := false
				if _, err = svc.users.AssignSubject(ctx, prev, s.Code, &demote); err != nil && !core.IsNotFound(err) {
					return Subject{}, errors.Wrap(err, "demoting previous coordinator")
				}
			}
			s.CoordinatorID = ai.TeacherID
		} else if s.CoordinatorID == ai.TeacherID {
			s.CoordinatorID = ""
		}
	}

	s.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateSubject(ctx, s)
}

// AssignStudents replaces the students tagged to the instructor.
func (svc *Service) AssignStudents(ctx context.Context, subjectID string, as AssignStudents) (Subject, error) {
	s, err := svc.GetByID(ctx, subjectID)
	if err != nil {
		return Subject{}, err
	}

	rolls := make([]string, 0, len(as.RollNos))
	for _, r := range as.RollNos {
		if r = core.CleanString(r); r != "" && !contains(rolls, r) {
			rolls = append(rolls, r)
		}
	}
	idx := s.instructorIndex(as.InstructorID)
	s.Instructors[idx].Students = rolls

	s.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateSubject(ctx, s)
}

// checkTag returns the subject a student can be tagged to, or why it cannot be.
func (svc *Service) checkTag(ctx context.Context, ts TagStudent, requireStudent bool) (Subject, error) {
	if requireStudent {
		if _, err := svc.batches.FindStudent(ctx, ts.RollNo); err != nil {
			if core.IsNotFound(err) {
				return Subject{}, core.NewNotFoundError(fmt.Sprintf("Student %s not found", ts.RollNo))
			}
			return Subject{}, errors.Wrap(err, "finding student")
		}
	}

	s, err := svc.GetByCode(ctx, ts.SubjectCode)
	if err != nil {
		if core.IsNotFound(err) {
			return Subject{}, core.NewNotFoundError(fmt.Sprintf("Subject %s not found", ts.SubjectCode))
		}
		return Subject{}, errors.Wrap(err, "finding subject")
	}

	instructor, err := svc.users.GetByID(ctx, ts.InstructorID)
	if err != nil && !core.IsNotFound(err) {
		return Subject{}, errors.Wrap(err, "finding instructor")
	}
	if err != nil || !instructor.IsInstructor() {
		return Subject{}, core.NewNotFoundError(fmt.Sprintf("Instructor %s not found or invalid", ts.InstructorID))
	}
	if !instructor.TeachesSubject(s.Code) {
		return Subject{}, core.NewPermissionError(fmt.Sprintf("Instructor %s not assigned to %s", instructor.Name, s.Code))
	}

	if other, ok := s.TaggedInstructor(ts.RollNo); ok && other != ts.InstructorID {
		msg := fmt.Sprintf("Student %s already assigned to another instructor for %s", ts.RollNo, s.Code)
		return Subject{}, core.NewValidationError(errors.New(msg))
	}
	return s, nil
}

// isRowError reports whether err rejects a single tagging request rather than failing the operation.
func isRowError(err error) bool {
	switch errors.Cause(err).(type) {
	case *core.NotFoundError, *core.PermissionError, *core.ValidationError:
		return true
	}
	return false
}

// AssignStudent tags a single student to an instructor of the subject.
func (svc *Service) AssignStudent(ctx context.Context, ts TagStudent) (Subject, error) {
	ts.Clean()
	s, err := svc.checkTag(ctx, ts, false)
	if err != nil {
		return Subject{}, err
	}
	s.tag(ts.InstructorID, ts.RollNo)
	s.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateSubject(ctx, s)
}

// UploadTagging applies the rows of a tagging sheet in order.
// Invalid rows are skipped and reported; valid ones are applied.
func (svc *Service) UploadTagging(ctx context.Context, rows []TagStudent) ([]RowError, error) {
	rowErrs := make([]RowError, 0)
	for i, ts := range rows {
		ts.Clean()
		if ts.RollNo == "" || ts.SubjectCode == "" || ts.InstructorID == "" {
			rowErrs = append(rowErrs, RowError{Row: i + 1, Reason: errMissingTagFields.Error()})
			continue
		}

		s, err := svc.checkTag(ctx, ts, true)
		if err != nil {
			if isRowError(err) {
				rowErrs = append(rowErrs, RowError{Row: i + 1, Reason: errors.Cause(err).Error()})
				continue
			}
			return rowErrs, err
		}

		s.tag(ts.InstructorID, ts.RollNo)
		s.UpdatedAt = time.Now().UTC()
		if _, err = svc.repo.UpdateSubject(ctx, s); err != nil {
			return rowErrs, errors.Wrapf(err, "tagging row %d", i+1)
		}
	}

	if len(rowErrs) > 0 {
		svc.logger.Warn("student tagging rows rejected", map[string]interface{}{"rows": len(rows), "rejected": len(rowErrs)})
	}
	return rowErrs, nil
}

// RemoveStudent untags a student from an instructor of the subject.
func (svc *Service) RemoveStudent(ctx context.Context, ts TagStudent) (Subject, error) {
	ts.Clean()
	s, err := svc.GetByCode(ctx, ts.SubjectCode)
	if err != nil {
		return Subject{}, err
	}

	for i, ia := range s.Instructors {
		if ia.InstructorID != ts.InstructorID {
			continue
		}
		for j, r := range ia.Students {
			if r == ts.RollNo {
				s.Instructors[i].Students = append(ia.Students[:j:j], ia.Students[j+1:]...)
				s.UpdatedAt = time.Now().UTC()
				return svc.repo.UpdateSubject(ctx, s)
			}
		}
		return Subject{}, core.NewNotFoundError(fmt.Sprintf(
			"Student %s not assigned to this instructor for %s", ts.RollNo, s.Code,
		))
	}
	return Subject{}, core.NewNotFoundError(fmt.Sprintf("Instructor %s not assigned to %s", ts.InstructorID, s.Code))
}

// AssignBatch tags every student of the batch to the instructor.
// Students already tagged to another instructor of the subject are skipped and returned.
func (svc *Service) AssignBatch(ctx context.Context, ab AssignBatch) (Subject, []string, error) {
	b, err := svc.batches.Get(ctx, ab.BatchID)
	if err != nil {
		return Subject{}, nil, err
	}

	s, err := svc.checkTag(ctx, TagStudent{SubjectCode: ab.SubjectCode, InstructorID: ab.InstructorID}, false)
	if err != nil {
		return Subject{}, nil, err
	}

	skipped := make([]string, 0)
	rolls := make([]string, 0, len(b.Students))
	for _, r := range b.RollNos() {
		if other, ok := s.TaggedInstructor(r); ok && other != ab.InstructorID {
			skipped = append(skipped, r)
			continue
		}
		rolls = append(rolls, r)
	}
	s.tag(ab.InstructorID, rolls...)

	s.UpdatedAt = time.Now().UTC()
	if s, err = svc.repo.UpdateSubject(ctx, s); err != nil {
		return Subject{}, nil, errors.Wrap(err, "assigning batch")
	}
	return s, skipped, nil
}

// Students lists the students of the subject visible to the caller:
// every tagged student for admins, their own for instructors and coordinators.
func (svc *Service) Students(ctx context.Context, id core.Identity, subjectID string) ([]TaggedStudent, error) {
	s, err := svc.GetByID(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	if !(id.IsAdmin() || s.HasInstructor(id.UserID) || s.IsCoordinator(id.UserID)) {
		return nil, ErrForbidden
	}

	dir, err := svc.batches.Directory(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "loading students directory")
	}

	students := make([]TaggedStudent, 0)
	for _, ia := range s.Instructors {
		if !id.IsAdmin() && ia.InstructorID != id.UserID {
			continue
		}
		for _, r := range ia.Students {
			ts := TaggedStudent{RollNo: r, Name: "Unknown", Department: "Unknown", InstructorID: ia.InstructorID}
			if info, ok := dir[r]; ok {
				ts.Name = info.Name
				ts.Department = info.Department
				ts.BatchID = info.BatchID
			}
			students = append(students, ts)
		}
	}
	return students, nil
}

// TaggingTemplate returns one blank tagging row per known student.
func (svc *Service) TaggingTemplate(ctx context.Context) ([]TagStudent, error) {
	students, err := svc.batches.Students(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "listing students")
	}
	rows := make([]TagStudent, 0, len(students))
	for _, s := range students {
		rows = append(rows, TagStudent{RollNo: s.RollNo})
	}
	return rows, nil
}
