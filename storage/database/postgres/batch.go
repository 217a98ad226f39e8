package pgdb

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/clotrack/core"
	"github.com/trezcool/clotrack/core/batch"
)

type batchRow struct {
	ID         string    `db:"id"`
	Department string    `db:"department"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

type studentRow struct {
	batch.Student
	BatchID  string `db:"batch_id"`
	Position int    `db:"position"`
}

type batchRepository struct {
	db *sqlx.DB
}

var _ batch.Repository = (*batchRepository)(nil)

func NewBatchRepository(db *sqlx.DB) batch.Repository {
	return &batchRepository{db: db}
}

func (repo *batchRepository) CreateBatch(ctx context.Context, b batch.Batch) (batch.Batch, error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return batch.Batch{}, errors.Wrap(err, "beginning transaction")
	}
	defer func() { _ = tx.Rollback() }()

	row := batchRow{ID: b.ID, Department: b.Department, CreatedAt: b.CreatedAt.UTC(), UpdatedAt: b.UpdatedAt.UTC()}
	if _, err = tx.NamedExecContext(ctx, `
		INSERT INTO batches (id, department, created_at, updated_at)
		VALUES (:id, :department, :created_at, :updated_at)`, row,
	); err != nil {
		return batch.Batch{}, repo.insertErr(err)
	}
	for i, s := range b.Students {
		if _, err = tx.NamedExecContext(ctx, `
			INSERT INTO students (roll_no, batch_id, position, name, department)
			VALUES (:roll_no, :batch_id, :position, :name, :department)`,
			studentRow{Student: s, BatchID: b.ID, Position: i},
		); err != nil {
			return batch.Batch{}, repo.insertErr(err)
		}
	}

	if err = tx.Commit(); err != nil {
		return batch.Batch{}, errors.Wrap(err, "committing batch")
	}
	return b, nil
}

func (repo *batchRepository) insertErr(err error) error {
	if isUniqueViolation(err) {
		return core.NewValidationError(errors.New("batch or roll number already exists"))
	}
	return errors.Wrap(err, "inserting batch")
}

func (repo *batchRepository) students(ctx context.Context, batchIDs ...string) (map[string][]batch.Student, error) {
	q, args, err := sqlx.In(`SELECT * FROM students WHERE batch_id IN (?) ORDER BY batch_id, position`, batchIDs)
	if err != nil {
		return nil, errors.Wrap(err, "building query")
	}
	var rows []studentRow
	if err = repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying students")
	}
	students := make(map[string][]batch.Student, len(batchIDs))
	for _, row := range rows {
		students[row.BatchID] = append(students[row.BatchID], row.Student)
	}
	return students, nil
}

func (repo *batchRepository) batches(ctx context.Context, rows []batchRow) ([]batch.Batch, error) {
	batches := make([]batch.Batch, 0, len(rows))
	if len(rows) == 0 {
		return batches, nil
	}
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	students, err := repo.students(ctx, ids...)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		b := batch.Batch{
			ID:         row.ID,
			Department: row.Department,
			Students:   students[row.ID],
			CreatedAt:  row.CreatedAt.UTC(),
			UpdatedAt:  row.UpdatedAt.UTC(),
		}
		if b.Students == nil {
			b.Students = []batch.Student{}
		}
		batches = append(batches, b)
	}
	return batches, nil
}

func (repo *batchRepository) GetBatch(ctx context.Context, id string) (batch.Batch, error) {
	var row batchRow
	if err := repo.db.GetContext(ctx, &row, `SELECT * FROM batches WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return batch.Batch{}, batch.ErrNotFound
		}
		return batch.Batch{}, errors.Wrap(err, "finding batch")
	}
	batches, err := repo.batches(ctx, []batchRow{row})
	if err != nil {
		return batch.Batch{}, err
	}
	return batches[0], nil
}

func (repo *batchRepository) QueryBatches(ctx context.Context) ([]batch.Batch, error) {
	var rows []batchRow
	if err := repo.db.SelectContext(ctx, &rows, `SELECT * FROM batches ORDER BY id`); err != nil {
		return nil, errors.Wrap(err, "querying batches")
	}
	return repo.batches(ctx, rows)
}

func (repo *batchRepository) FindStudent(ctx context.Context, rollNo string) (batch.Batch, error) {
	var batchID string
	if err := repo.db.GetContext(ctx, &batchID, `SELECT batch_id FROM students WHERE roll_no = $1`, rollNo); err != nil {
		if err == sql.ErrNoRows {
			return batch.Batch{}, batch.ErrStudentNotFound
		}
		return batch.Batch{}, errors.Wrap(err, "finding student")
	}
	return repo.GetBatch(ctx, batchID)
}

func (repo *batchRepository) DeleteBatch(ctx context.Context, id string) error {
	res, err := repo.db.ExecContext(ctx, `DELETE FROM batches WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting batch")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return batch.ErrNotFound
	}
	return nil
}
