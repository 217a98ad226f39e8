package mark

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/clotrack/core"
	"github.com/trezcool/clotrack/core/attainment"
	"github.com/trezcool/clotrack/core/batch"
	"github.com/trezcool/clotrack/core/subject"
	"github.com/trezcool/clotrack/core/user"
)

var (
	// errors
	ErrNotInstructor   = core.NewPermissionError("not an instructor of this subject")
	ErrNotCoordinator  = core.NewPermissionError("only the course coordinator can view submissions")
	ErrNoSubmission    = core.NewNotFoundError("no submission found for this instructor and criterion")
	ErrNoSubmissions   = core.NewNotFoundError("no submissions found for this criterion")
	errUnknownCriteria = "evaluation criterion %s not found"
)

type (
	Repository interface {
		// Upsert creates the StudentMark or replaces the one with the same Key, keeping its ID & CreatedAt.
		Upsert(ctx context.Context, m StudentMark) (StudentMark, error)
		QueryMarks(ctx context.Context, filter QueryFilter) ([]StudentMark, error)
		SubjectCriteria(ctx context.Context, subjectID string) ([]string, error)
		DeleteSubjectMarks(ctx context.Context, subjectID string) error
	}

	Service struct {
		repo     Repository
		subjects *subject.Service
		users    *user.Service
		batches  *batch.Service
		logger   core.Logger
		workers  int
	}
)

func NewService(repo Repository, subjects *subject.Service, users *user.Service, batches *batch.Service, logger core.Logger, workers int) *Service {
	return &Service{
		repo:     repo,
		subjects: subjects,
		users:    users,
		batches:  batches,
		logger:   logger,
		workers:  workers,
	}
}

func unknownCriteria(name string) error {
	msg := fmt.Sprintf(errUnknownCriteria, name)
	return core.NewValidationError(nil, core.FieldError{Field: "eval_criteria", Error: msg})
}

// instructorInput loads the subject & criterion an instructor works on.
func (svc *Service) instructorInput(ctx context.Context, id core.Identity, subjectID, evalCriteria string) (subject.Subject, attainment.Input, error) {
	s, err := svc.subjects.GetByID(ctx, subjectID)
	if err != nil {
		return subject.Subject{}, attainment.Input{}, err
	}
	in, ok := attainment.NewInput(s, evalCriteria)
	if !ok {
		return subject.Subject{}, attainment.Input{}, unknownCriteria(evalCriteria)
	}
	if !s.HasInstructor(id.UserID) {
		return subject.Subject{}, attainment.Input{}, ErrNotInstructor
	}
	return s, in, nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// enrich returns a copy of the raw cells completed with the derived columns.
func enrich(plan *attainment.Plan, data map[string]string, marks attainment.Marks, res attainment.Result) map[string]string {
	out := make(map[string]string, len(data)+len(res.CLOMarks)+2)
	for k, v := range data {
		out[k] = v
	}
	for col, w := range plan.Weighted(marks) {
		out[col] = formatFloat(w)
	}
	out[attainment.ColTotalMarks] = formatFloat(res.TotalMarksAchieved)
	out[attainment.ColTotalMarksWeighted] = formatFloat(res.TotalMarksWeighted)
	for clo, v := range res.CLOMarks {
		out[clo] = formatFloat(v)
	}
	return out
}

// Submit computes & stores the attainment of the students tagged to the caller.
// Records of other students are dropped. Each record is stored on its own:
// failures are collected and do not stop the submission.
func (svc *Service) Submit(ctx context.Context, id core.Identity, subjectID, evalCriteria string, records []StudentRecord) (SubmitResult, error) {
	s, in, err := svc.instructorInput(ctx, id, subjectID, evalCriteria)
	if err != nil {
		return SubmitResult{}, err
	}
	ia, _ := s.Instructor(id.UserID)
	tagged := make(map[string]bool, len(ia.Students))
	for _, r := range ia.Students {
		tagged[r] = true
	}

	result := SubmitResult{Saved: []string{}, Dropped: []string{}, Errors: []RecordError{}}
	plan := attainment.NewPlan(in)
	for _, rec := range records {
		rollNo := core.CleanString(rec.RollNo)
		if !tagged[rollNo] {
			result.Dropped = append(result.Dropped, rollNo)
			continue
		}
		if err = ctx.Err(); err != nil {
			return result, err
		}

		marks := attainment.ParseMarks(rec.Data)
		res := plan.Compute(marks)
		now := time.Now().UTC()
		m := StudentMark{
			ID:           uuid.New().String(),
			SubjectID:    s.ID,
			RollNo:       rollNo,
			InstructorID: id.UserID,
			EvalCriteria: evalCriteria,
			Data:         enrich(plan, rec.Data, marks, res),
			CLOMarks:     res.CLOMarks,
			CLOTotals:    res.CLOTotals,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if _, err = svc.repo.Upsert(ctx, m); err != nil {
			result.Errors = append(result.Errors, RecordError{RollNo: rollNo, Error: err.Error()})
			svc.logger.Error("saving student mark", errors.Wrapf(err, "saving marks of %s", rollNo), id)
			continue
		}
		result.Saved = append(result.Saved, rollNo)
	}

	if len(result.Dropped) > 0 || len(result.Errors) > 0 {
		svc.logger.Warn("incomplete marks submission", map[string]interface{}{
			"subject":  s.Code,
			"criteria": evalCriteria,
			"saved":    len(result.Saved),
			"dropped":  result.Dropped,
			"failed":   len(result.Errors),
		}, id)
	}
	return result, nil
}

// Preview computes the attainment of the records without storing anything.
// It yields exactly what Submit would store for the same records.
func (svc *Service) Preview(ctx context.Context, id core.Identity, subjectID, evalCriteria string, records []StudentRecord) ([]Attainment, error) {
	_, in, err := svc.instructorInput(ctx, id, subjectID, evalCriteria)
	if err != nil {
		return nil, err
	}

	rows := make([]map[string]string, 0, len(records))
	for _, rec := range records {
		rows = append(rows, rec.Data)
	}
	results, err := attainment.ComputeAll(ctx, in, rows, svc.workers)
	if err != nil {
		return nil, errors.Wrap(err, "computing attainment")
	}

	previews := make([]Attainment, 0, len(records))
	for i, rec := range records {
		previews = append(previews, Attainment{RollNo: core.CleanString(rec.RollNo), Data: rec.Data, Result: results[i]})
	}
	return previews, nil
}

// InstructorMarks returns the marks the caller submitted for the subject.
func (svc *Service) InstructorMarks(ctx context.Context, id core.Identity, subjectID string) (subject.Subject, []StudentMark, error) {
	s, err := svc.subjects.GetByID(ctx, subjectID)
	if err != nil {
		return subject.Subject{}, nil, err
	}
	if !s.HasInstructor(id.UserID) {
		return subject.Subject{}, nil, ErrNotInstructor
	}
	marks, err := svc.repo.QueryMarks(ctx, QueryFilter{SubjectID: s.ID, InstructorID: id.UserID})
	if err != nil {
		return subject.Subject{}, nil, errors.Wrap(err, "querying instructor marks")
	}
	return s, marks, nil
}

// coordinatorSubject loads a subject the caller coordinates (or administers).
func (svc *Service) coordinatorSubject(ctx context.Context, id core.Identity, subjectID string) (subject.Subject, error) {
	s, err := svc.subjects.GetByID(ctx, subjectID)
	if err != nil {
		return subject.Subject{}, err
	}
	if !(s.IsCoordinator(id.UserID) || id.IsAdmin()) {
		return subject.Subject{}, ErrNotCoordinator
	}
	return s, nil
}

// Submissions reports, for every instructor of the subject, whether they submitted marks for the criterion.
func (svc *Service) Submissions(ctx context.Context, id core.Identity, subjectID, evalCriteria string) ([]SubmissionStatus, error) {
	s, err := svc.coordinatorSubject(ctx, id, subjectID)
	if err != nil {
		return nil, err
	}

	ids := s.InstructorIDs()
	names, err := svc.users.Names(ctx, ids...)
	if err != nil {
		return nil, errors.Wrap(err, "fetching instructor names")
	}
	marks, err := svc.repo.QueryMarks(ctx, QueryFilter{SubjectID: s.ID, EvalCriteria: evalCriteria})
	if err != nil {
		return nil, errors.Wrap(err, "querying marks")
	}
	counts := make(map[string]int, len(ids))
	for _, m := range marks {
		counts[m.InstructorID]++
	}

	statuses := make([]SubmissionStatus, 0, len(ids))
	for _, iid := range ids {
		statuses = append(statuses, SubmissionStatus{
			InstructorID:   iid,
			InstructorName: names[iid],
			HasSubmitted:   counts[iid] > 0,
			Count:          counts[iid],
		})
	}
	return statuses, nil
}

// projector renders stored marks as rows of the standard sheet. Values are never recomputed.
type projector struct {
	units    []string
	weighted []string
	clos     []string
	names    map[string]batch.StudentInfo
}

func (svc *Service) newProjector(ctx context.Context, s subject.Subject, evalCriteria string) (projector, error) {
	ec, ok := s.Criterion(evalCriteria)
	if !ok {
		return projector{}, unknownCriteria(evalCriteria)
	}
	dir, err := svc.batches.Directory(ctx)
	if err != nil {
		return projector{}, errors.Wrap(err, "loading students directory")
	}

	p := projector{names: dir}
	for _, u := range attainment.Units(evalCriteria, ec) {
		p.units = append(p.units, u.Key.String())
		p.weighted = append(p.weighted, attainment.WeightedColumn(u.Key.String()))
	}
	for _, clo := range s.CLOs {
		p.clos = append(p.clos, attainment.CLOKey(clo.CLONumber))
	}
	return p, nil
}

func (p projector) header(scaled bool) []string {
	h := []string{attainment.ColRollNo, attainment.ColStudentName}
	h = append(h, p.units...)
	h = append(h, p.weighted...)
	h = append(h, attainment.ColTotalMarks, attainment.ColTotalMarksWeighted)
	h = append(h, p.clos...)
	if scaled {
		for _, clo := range p.clos {
			h = append(h, attainment.ScaledColumn(clo))
		}
	}
	return h
}

func (p projector) row(m StudentMark, scaled bool) []string {
	name := m.Data[attainment.ColStudentName]
	if name == "" {
		name = p.names[m.RollNo].Name
	}
	row := []string{m.RollNo, name}
	for _, col := range p.units {
		row = append(row, m.Data[col])
	}
	for _, col := range p.weighted {
		row = append(row, m.Data[col])
	}
	row = append(row, m.Data[attainment.ColTotalMarks], m.Data[attainment.ColTotalMarksWeighted])
	for _, clo := range p.clos {
		v, ok := m.Data[clo]
		if !ok || v == "" {
			v = "0"
		}
		row = append(row, v)
	}
	if scaled {
		for _, clo := range p.clos {
			row = append(row, formatFloat(m.CLOMarks[clo]))
		}
	}
	return row
}

// ViewSubmission renders the marks an instructor submitted for the criterion,
// along with the stored CLO marks as scaled columns.
func (svc *Service) ViewSubmission(ctx context.Context, id core.Identity, subjectID, instructorID, evalCriteria string) (Table, error) {
	s, err := svc.coordinatorSubject(ctx, id, subjectID)
	if err != nil {
		return Table{}, err
	}
	p, err := svc.newProjector(ctx, s, evalCriteria)
	if err != nil {
		return Table{}, err
	}

	marks, err := svc.repo.QueryMarks(ctx, QueryFilter{SubjectID: s.ID, InstructorID: instructorID, EvalCriteria: evalCriteria})
	if err != nil {
		return Table{}, errors.Wrap(err, "querying instructor marks")
	}
	if len(marks) == 0 {
		return Table{}, ErrNoSubmission
	}

	t := Table{Header: p.header(true), Rows: make([][]string, 0, len(marks))}
	for _, m := range marks {
		t.Rows = append(t.Rows, p.row(m, true))
	}
	return t, nil
}

// Aggregate merges the marks every instructor submitted for the criterion into a single sheet.
// Students with marks from several instructors are reported as conflicts instead of being merged.
func (svc *Service) Aggregate(ctx context.Context, id core.Identity, subjectID, evalCriteria string) (Aggregation, error) {
	s, err := svc.coordinatorSubject(ctx, id, subjectID)
	if err != nil {
		return Aggregation{}, err
	}
	p, err := svc.newProjector(ctx, s, evalCriteria)
	if err != nil {
		return Aggregation{}, err
	}

	marks, err := svc.repo.QueryMarks(ctx, QueryFilter{SubjectID: s.ID, EvalCriteria: evalCriteria})
	if err != nil {
		return Aggregation{}, errors.Wrap(err, "querying marks")
	}
	if len(marks) == 0 {
		return Aggregation{}, ErrNoSubmissions
	}

	agg := Aggregation{
		SubjectID:    s.ID,
		EvalCriteria: evalCriteria,
		Header:       p.header(false),
		Entries:      resolve(marks, func(m StudentMark) []string { return p.row(m, false) }),
	}
	if conflicts := agg.Conflicts(); len(conflicts) > 0 {
		svc.logger.Warn("conflicting submissions", map[string]interface{}{
			"subject":   s.Code,
			"criteria":  evalCriteria,
			"conflicts": len(conflicts),
		}, id)
	}
	return agg, nil
}

// Template returns a blank marks sheet listing the caller's students.
func (svc *Service) Template(ctx context.Context, id core.Identity, subjectID, evalCriteria string) (Table, error) {
	s, err := svc.subjects.GetByID(ctx, subjectID)
	if err != nil {
		return Table{}, err
	}
	if !(s.HasInstructor(id.UserID) || s.IsCoordinator(id.UserID)) {
		return Table{}, ErrNotInstructor
	}
	ec, ok := s.Criterion(evalCriteria)
	if !ok {
		return Table{}, unknownCriteria(evalCriteria)
	}
	dir, err := svc.batches.Directory(ctx)
	if err != nil {
		return Table{}, errors.Wrap(err, "loading students directory")
	}

	t := Table{Header: attainment.Columns(evalCriteria, ec, s.CLOs)}
	ia, _ := s.Instructor(id.UserID)
	t.Rows = make([][]string, 0, len(ia.Students))
	for _, r := range ia.Students {
		name := "Unknown"
		if info, ok := dir[r]; ok {
			name = info.Name
		}
		row := make([]string, len(t.Header))
		row[0], row[1] = r, name
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}
