package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/clotrack/core"
)

var (
	// errors
	ErrNotFound        = core.NewNotFoundError("batch not found")
	ErrStudentNotFound = core.NewNotFoundError("student not found in any batch")
)

type (
	Repository interface {
		CreateBatch(ctx context.Context, b Batch) (Batch, error)
		GetBatch(ctx context.Context, id string) (Batch, error)
		QueryBatches(ctx context.Context) ([]Batch, error)
		// FindStudent returns the Batch holding the student with the given roll number.
		FindStudent(ctx context.Context, rollNo string) (Batch, error)
		DeleteBatch(ctx context.Context, id string) error
	}

	Service struct {
		repo   Repository
		logger core.Logger
	}
)

func NewService(repo Repository, logger core.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

func (svc *Service) checkUniqueness(nb NewBatch) error {
	ctx := context.Background()
	if _, err := svc.repo.GetBatch(ctx, nb.ID); err == nil {
		msg := fmt.Sprintf("batch %s already exists", nb.ID)
		return core.NewValidationError(nil, core.FieldError{Field: "batch_id", Error: msg})
	} else if !core.IsNotFound(err) {
		return errors.Wrap(err, "checking batch uniqueness")
	}

	seen := make(map[string]bool, len(nb.Students))
	var flds []core.FieldError
	for i, s := range nb.Students {
		fld := fmt.Sprintf("students[%d].roll_no", i)
		if seen[s.RollNo] {
			flds = append(flds, core.FieldError{Field: fld, Error: "duplicate roll number " + s.RollNo})
			continue
		}
		seen[s.RollNo] = true
		if b, err := svc.repo.FindStudent(ctx, s.RollNo); err == nil {
			flds = append(flds, core.FieldError{Field: fld, Error: fmt.Sprintf("student %s already in batch %s", s.RollNo, b.ID)})
		} else if !core.IsNotFound(err) {
			return errors.Wrap(err, "checking student uniqueness")
		}
	}
	if len(flds) > 0 {
		return core.NewValidationError(nil, flds...)
	}
	return nil
}

func (svc *Service) Create(ctx context.Context, nb NewBatch) (Batch, error) {
	now := time.Now().UTC()
	b := Batch{
		ID:         nb.ID,
		Department: nb.Department,
		Students:   nb.Students,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if b.Students == nil {
		b.Students = []Student{}
	}
	return svc.repo.CreateBatch(ctx, b)
}

func (svc *Service) Get(ctx context.Context, id string) (Batch, error) {
	return svc.repo.GetBatch(ctx, id)
}

func (svc *Service) List(ctx context.Context) ([]Batch, error) {
	return svc.repo.QueryBatches(ctx)
}

// Students lists every student of every batch.
func (svc *Service) Students(ctx context.Context) ([]StudentInfo, error) {
	batches, err := svc.repo.QueryBatches(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "querying batches")
	}
	students := make([]StudentInfo, 0)
	for _, b := range batches {
		for _, s := range b.Students {
			students = append(students, StudentInfo{Student: s, BatchID: b.ID})
		}
	}
	return students, nil
}

// Directory maps every known roll number to its StudentInfo.
func (svc *Service) Directory(ctx context.Context) (map[string]StudentInfo, error) {
	students, err := svc.Students(ctx)
	if err != nil {
		return nil, err
	}
	dir := make(map[string]StudentInfo, len(students))
	for _, s := range students {
		dir[s.RollNo] = s
	}
	return dir, nil
}

func (svc *Service) FindStudent(ctx context.Context, rollNo string) (StudentInfo, error) {
	rollNo = core.CleanString(rollNo)
	b, err := svc.repo.FindStudent(ctx, rollNo)
	if err != nil {
		return StudentInfo{}, err
	}
	for _, s := range b.Students {
		if s.RollNo == rollNo {
			return StudentInfo{Student: s, BatchID: b.ID}, nil
		}
	}
	return StudentInfo{}, ErrStudentNotFound
}

func (svc *Service) Delete(ctx context.Context, id string) error {
	return svc.repo.DeleteBatch(ctx, id)
}
