package batch

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/clotrack/core"
)

// Student is a member of a Batch. RollNo is unique across all batches.
type Student struct {
	RollNo     string `json:"roll_no" bson:"rollNo" db:"roll_no" csv:"RollNo" validate:"required"`
	Name       string `json:"name" bson:"name" db:"name" csv:"Name"`
	Department string `json:"department" bson:"department" db:"department" csv:"Department"`
}

type Batch struct {
	ID         string    `json:"batch_id" bson:"_id" db:"id"` // e.g. "b1"
	Department string    `json:"department" bson:"department" db:"department"`
	Students   []Student `json:"students" bson:"students"`
	CreatedAt  time.Time `json:"created_at" bson:"createdAt" db:"created_at"` // UTC
	UpdatedAt  time.Time `json:"updated_at" bson:"updatedAt" db:"updated_at"` // UTC
}

// RollNos returns the roll numbers of the Batch students, in order.
func (b Batch) RollNos() []string {
	rolls := make([]string, 0, len(b.Students))
	for _, s := range b.Students {
		rolls = append(rolls, s.RollNo)
	}
	return rolls
}

// StudentInfo is a Student along with the ID of its Batch.
type StudentInfo struct {
	Student
	BatchID string `json:"batch_id"`
}

type NewBatch struct {
	ID         string    `json:"batch_id" validate:"required,alphanum_"`
	Department string    `json:"department"`
	Students   []Student `json:"students" validate:"dive"`
}

func (nb *NewBatch) Validate(validate *validator.Validate, svc *Service) error {
	nb.ID = core.CleanString(nb.ID)
	nb.Department = core.CleanString(nb.Department)
	for i := range nb.Students {
		nb.Students[i].RollNo = core.CleanString(nb.Students[i].RollNo)
		nb.Students[i].Name = core.CleanString(nb.Students[i].Name)
		if dept := core.CleanString(nb.Students[i].Department); dept != "" {
			nb.Students[i].Department = dept
		} else {
			nb.Students[i].Department = nb.Department
		}
	}

	if err := validate.Struct(nb); err != nil {
		return err
	}
	return svc.checkUniqueness(*nb)
}
