package pgdb

import (
	"context"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/clotrack/core/mark"
	"github.com/trezcool/clotrack/core/subject"
)

type markRow struct {
	ID           string    `db:"id"`
	SubjectID    string    `db:"subject_id"`
	RollNo       string    `db:"roll_no"`
	InstructorID string    `db:"instructor_id"`
	EvalCriteria string    `db:"eval_criteria"`
	Data         null.JSON `db:"data"`
	CLOMarks     null.JSON `db:"clo_marks"`
	CLOTotals    null.JSON `db:"clo_totals"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func toMarkRow(m mark.StudentMark) (markRow, error) {
	row := markRow{
		ID:           m.ID,
		SubjectID:    m.SubjectID,
		RollNo:       m.RollNo,
		InstructorID: m.InstructorID,
		EvalCriteria: m.EvalCriteria,
		CreatedAt:    m.CreatedAt.UTC(),
		UpdatedAt:    m.UpdatedAt.UTC(),
	}
	if m.Data == nil {
		m.Data = map[string]string{}
	}
	if err := row.Data.Marshal(m.Data); err != nil {
		return markRow{}, errors.Wrap(err, "encoding data")
	}
	if err := row.CLOMarks.Marshal(nonNil(m.CLOMarks)); err != nil {
		return markRow{}, errors.Wrap(err, "encoding CLO marks")
	}
	if err := row.CLOTotals.Marshal(nonNil(m.CLOTotals)); err != nil {
		return markRow{}, errors.Wrap(err, "encoding CLO totals")
	}
	return row, nil
}

func nonNil(m map[string]float64) map[string]float64 {
	if m == nil {
		return map[string]float64{}
	}
	return m
}

func (row markRow) mark() (mark.StudentMark, error) {
	m := mark.StudentMark{
		ID:           row.ID,
		SubjectID:    row.SubjectID,
		RollNo:       row.RollNo,
		InstructorID: row.InstructorID,
		EvalCriteria: row.EvalCriteria,
		CreatedAt:    row.CreatedAt.UTC(),
		UpdatedAt:    row.UpdatedAt.UTC(),
	}
	if err := row.Data.Unmarshal(&m.Data); err != nil {
		return mark.StudentMark{}, errors.Wrap(err, "decoding data")
	}
	if err := row.CLOMarks.Unmarshal(&m.CLOMarks); err != nil {
		return mark.StudentMark{}, errors.Wrap(err, "decoding CLO marks")
	}
	if err := row.CLOTotals.Unmarshal(&m.CLOTotals); err != nil {
		return mark.StudentMark{}, errors.Wrap(err, "decoding CLO totals")
	}
	return m, nil
}

type markRepository struct {
	db *sqlx.DB
}

var (
	_ mark.Repository   = (*markRepository)(nil)
	_ subject.MarkStore = (*markRepository)(nil)
)

func NewMarkRepository(db *sqlx.DB) mark.Repository {
	return &markRepository{db: db}
}

const upsertMark = `
INSERT INTO student_marks (id, subject_id, roll_no, instructor_id, eval_criteria,
                           data, clo_marks, clo_totals, created_at, updated_at)
VALUES (:id, :subject_id, :roll_no, :instructor_id, :eval_criteria,
        :data, :clo_marks, :clo_totals, :created_at, :updated_at)
ON CONFLICT (subject_id, roll_no, instructor_id, eval_criteria) DO UPDATE
SET data = EXCLUDED.data, clo_marks = EXCLUDED.clo_marks, clo_totals = EXCLUDED.clo_totals,
    updated_at = EXCLUDED.updated_at
RETURNING *`

func (repo *markRepository) Upsert(ctx context.Context, m mark.StudentMark) (mark.StudentMark, error) {
	row, err := toMarkRow(m)
	if err != nil {
		return mark.StudentMark{}, err
	}

	q, args, err := repo.db.BindNamed(upsertMark, row)
	if err != nil {
		return mark.StudentMark{}, errors.Wrap(err, "binding query")
	}
	var stored markRow
	if err = repo.db.GetContext(ctx, &stored, q, args...); err != nil {
		return mark.StudentMark{}, errors.Wrapf(err, "upserting marks of %s", m.RollNo)
	}
	return stored.mark()
}

func (repo *markRepository) QueryMarks(ctx context.Context, filter mark.QueryFilter) ([]mark.StudentMark, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.SubjectID != "" {
		where = append(where, `subject_id = ?`)
		args = append(args, filter.SubjectID)
	}
	if filter.InstructorID != "" {
		where = append(where, `instructor_id = ?`)
		args = append(args, filter.InstructorID)
	}
	if filter.EvalCriteria != "" {
		where = append(where, `eval_criteria = ?`)
		args = append(args, filter.EvalCriteria)
	}
	q := `SELECT * FROM student_marks`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, ` AND `)
	}
	q += ` ORDER BY roll_no, instructor_id`

	var rows []markRow
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying marks")
	}
	marks := make([]mark.StudentMark, 0, len(rows))
	for _, row := range rows {
		m, err := row.mark()
		if err != nil {
			return nil, err
		}
		marks = append(marks, m)
	}
	return marks, nil
}

func (repo *markRepository) SubjectCriteria(ctx context.Context, subjectID string) ([]string, error) {
	criteria := make([]string, 0)
	err := repo.db.SelectContext(ctx, &criteria,
		`SELECT DISTINCT eval_criteria FROM student_marks WHERE subject_id = $1 ORDER BY eval_criteria`, subjectID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "listing marked criteria")
	}
	return criteria, nil
}

func (repo *markRepository) DeleteSubjectMarks(ctx context.Context, subjectID string) error {
	_, err := repo.db.ExecContext(ctx, `DELETE FROM student_marks WHERE subject_id = $1`, subjectID)
	return errors.Wrap(err, "deleting subject marks")
}
