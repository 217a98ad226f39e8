package pgdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/clotrack/core/subject"
)

type subjectRow struct {
	ID               string      `db:"id"`
	Code             string      `db:"code"`
	Name             string      `db:"name"`
	Department       string      `db:"department"`
	EvaluationSchema null.JSON   `db:"evaluation_schema"`
	CLOs             null.JSON   `db:"clos"`
	CLOMappings      null.JSON   `db:"clo_mappings"`
	Instructors      null.JSON   `db:"instructors"`
	CoordinatorID    null.String `db:"coordinator_id"`
	CreatedAt        time.Time   `db:"created_at"`
	UpdatedAt        time.Time   `db:"updated_at"`
}

func toSubjectRow(s subject.Subject) (subjectRow, error) {
	row := subjectRow{
		ID:            s.ID,
		Code:          s.Code,
		Name:          s.Name,
		Department:    s.Department,
		CoordinatorID: null.NewString(s.CoordinatorID, s.CoordinatorID != ""),
		CreatedAt:     s.CreatedAt.UTC(),
		UpdatedAt:     s.UpdatedAt.UTC(),
	}
	if s.EvaluationSchema == nil {
		s.EvaluationSchema = map[string]subject.EvaluationCriterion{}
	}
	if s.CLOs == nil {
		s.CLOs = []subject.CLO{}
	}
	if s.CLOMappings == nil {
		s.CLOMappings = []subject.CLOMapping{}
	}
	if s.Instructors == nil {
		s.Instructors = []subject.InstructorAssignment{}
	}
	cols := []struct {
		col *null.JSON
		v   interface{}
	}{
		{&row.EvaluationSchema, s.EvaluationSchema},
		{&row.CLOs, s.CLOs},
		{&row.CLOMappings, s.CLOMappings},
		{&row.Instructors, s.Instructors},
	}
	for _, c := range cols {
		if err := c.col.Marshal(c.v); err != nil {
			return subjectRow{}, errors.Wrap(err, "encoding subject")
		}
	}
	return row, nil
}

func (row subjectRow) subject() (subject.Subject, error) {
	s := subject.Subject{
		ID:            row.ID,
		Code:          row.Code,
		Name:          row.Name,
		Department:    row.Department,
		CoordinatorID: row.CoordinatorID.String,
		CreatedAt:     row.CreatedAt.UTC(),
		UpdatedAt:     row.UpdatedAt.UTC(),
	}
	cols := []struct {
		col  null.JSON
		dest interface{}
	}{
		{row.EvaluationSchema, &s.EvaluationSchema},
		{row.CLOs, &s.CLOs},
		{row.CLOMappings, &s.CLOMappings},
		{row.Instructors, &s.Instructors},
	}
	for _, c := range cols {
		if !c.col.Valid {
			continue
		}
		if err := c.col.Unmarshal(c.dest); err != nil {
			return subject.Subject{}, errors.Wrap(err, "decoding subject")
		}
	}
	return s, nil
}

type subjectRepository struct {
	db *sqlx.DB
}

var _ subject.Repository = (*subjectRepository)(nil)

func NewSubjectRepository(db *sqlx.DB) subject.Repository {
	return &subjectRepository{db: db}
}

const insertSubject = `
INSERT INTO subjects (id, code, name, department, evaluation_schema, clos, clo_mappings,
                      instructors, coordinator_id, created_at, updated_at)
VALUES (:id, :code, :name, :department, :evaluation_schema, :clos, :clo_mappings,
        :instructors, :coordinator_id, :created_at, :updated_at)`

func (repo *subjectRepository) CreateSubject(ctx context.Context, s subject.Subject) (subject.Subject, error) {
	row, err := toSubjectRow(s)
	if err != nil {
		return subject.Subject{}, err
	}
	if _, err = repo.db.NamedExecContext(ctx, insertSubject, row); err != nil {
		if isUniqueViolation(err) {
			return subject.Subject{}, subject.ErrCodeExists
		}
		return subject.Subject{}, errors.Wrap(err, "inserting subject")
	}
	return s, nil
}

func (repo *subjectRepository) GetSubject(ctx context.Context, filter subject.GetFilter) (subject.Subject, error) {
	var (
		q   string
		arg string
	)
	switch {
	case filter.ID != "":
		q, arg = `SELECT * FROM subjects WHERE id = $1`, filter.ID
	case filter.Code != "":
		q, arg = `SELECT * FROM subjects WHERE code = $1`, filter.Code
	default:
		return subject.Subject{}, subject.ErrNotFound
	}

	var row subjectRow
	if err := repo.db.GetContext(ctx, &row, q, arg); err != nil {
		if err == sql.ErrNoRows {
			return subject.Subject{}, subject.ErrNotFound
		}
		return subject.Subject{}, errors.Wrap(err, "finding subject")
	}
	return row.subject()
}

// subjectQuery builds the query of QuerySubjects, with `?` placeholders.
func subjectQuery(filter subject.QueryFilter) (string, []interface{}, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.Code != "" {
		where = append(where, `code = ?`)
		args = append(args, filter.Code)
	}
	if filter.Department != "" {
		where = append(where, `department = ?`)
		args = append(args, filter.Department)
	}
	if filter.InstructorID != "" {
		probe, err := json.Marshal([]map[string]string{{"instructor_id": filter.InstructorID}})
		if err != nil {
			return "", nil, err
		}
		where = append(where, `(coordinator_id = ? OR instructors @> ?::jsonb)`)
		args = append(args, filter.InstructorID, string(probe))
	}

	q := `SELECT * FROM subjects`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, ` AND `)
	}
	return q + ` ORDER BY code`, args, nil
}

func (repo *subjectRepository) QuerySubjects(ctx context.Context, filter subject.QueryFilter) ([]subject.Subject, error) {
	q, args, err := subjectQuery(filter)
	if err != nil {
		return nil, errors.Wrap(err, "building query")
	}

	var rows []subjectRow
	if err = repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying subjects")
	}
	subjects := make([]subject.Subject, 0, len(rows))
	for _, row := range rows {
		s, err := row.subject()
		if err != nil {
			return nil, err
		}
		subjects = append(subjects, s)
	}
	return subjects, nil
}

const updateSubject = `
UPDATE subjects
SET code = :code, name = :name, department = :department, evaluation_schema = :evaluation_schema,
    clos = :clos, clo_mappings = :clo_mappings, instructors = :instructors,
    coordinator_id = :coordinator_id, updated_at = :updated_at
WHERE id = :id`

func (repo *subjectRepository) UpdateSubject(ctx context.Context, s subject.Subject) (subject.Subject, error) {
	row, err := toSubjectRow(s)
	if err != nil {
		return subject.Subject{}, err
	}
	res, err := repo.db.NamedExecContext(ctx, updateSubject, row)
	if err != nil {
		return subject.Subject{}, errors.Wrap(err, "updating subject")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return subject.Subject{}, subject.ErrNotFound
	}
	return s, nil
}

func (repo *subjectRepository) DeleteSubject(ctx context.Context, id string) error {
	_, err := repo.db.ExecContext(ctx, `DELETE FROM subjects WHERE id = $1`, id)
	return errors.Wrap(err, "deleting subject")
}
