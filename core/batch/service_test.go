package batch_test

import (
	"context"
	"testing"

	"github.com/trezcool/clotrack/core"
	"github.com/trezcool/clotrack/core/batch"
	"github.com/trezcool/clotrack/tests"
)

func TestNewBatch_Validate(t *testing.T) {
	env := testutil.NewEnv()
	testutil.CreateBatch(t, env.BatchSvc, "b1", "R1", "R2")

	tests := []struct {
		name      string
		nb        batch.NewBatch
		wantField string
	}{
		{
			name: "valid",
			nb: batch.NewBatch{ID: " b2 ", Department: "ECE", Students: []batch.Student{
				{RollNo: " R3 ", Name: "Three"},
				{RollNo: "R4", Name: "Four", Department: "CSE"},
			}},
		},
		{name: "invalid id", nb: batch.NewBatch{ID: "b 2"}, wantField: "batch_id"},
		{name: "existing batch", nb: batch.NewBatch{ID: "b1"}, wantField: "batch_id"},
		{
			name:      "missing roll number",
			nb:        batch.NewBatch{ID: "b3", Students: []batch.Student{{Name: "Nobody"}}},
			wantField: "roll_no",
		},
		{
			name:      "duplicate roll number",
			nb:        batch.NewBatch{ID: "b3", Students: []batch.Student{{RollNo: "R5"}, {RollNo: "R5"}}},
			wantField: "students[1].roll_no",
		},
		{
			name:      "student of another batch",
			nb:        batch.NewBatch{ID: "b3", Students: []batch.Student{{RollNo: "R2"}}},
			wantField: "students[0].roll_no",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.nb.Validate(env.Validate, env.BatchSvc)
			if tc.wantField == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v; want nil", err)
				}
				if tc.nb.ID != "b2" || tc.nb.Students[0].RollNo != "R3" || tc.nb.Students[0].Department != "ECE" {
					t.Errorf("Validate() did not clean the batch: %+v", tc.nb)
				}
				return
			}
			if err == nil {
				t.Fatal("Validate() error = nil")
			}
			if vErr, ok := err.(*core.ValidationError); ok {
				if vErr.Fields[0].Field != tc.wantField {
					t.Errorf("field = %s; want %s", vErr.Fields[0].Field, tc.wantField)
				}
			}
		})
	}
}

func TestService_Students(t *testing.T) {
	env := testutil.NewEnv()
	ctx := context.Background()
	testutil.CreateBatch(t, env.BatchSvc, "b1", "R1", "R2")
	testutil.CreateBatch(t, env.BatchSvc, "b2", "R3")

	dir, err := env.BatchSvc.Directory(ctx)
	if err != nil {
		t.Fatalf("Directory() error = %v", err)
	}
	if len(dir) != 3 || dir["R3"].BatchID != "b2" || dir["R1"].Name != "Student R1" {
		t.Errorf("Directory() = %+v", dir)
	}

	info, err := env.BatchSvc.FindStudent(ctx, " R2 ")
	if err != nil {
		t.Fatalf("FindStudent() error = %v", err)
	}
	if info.BatchID != "b1" {
		t.Errorf("BatchID = %s; want b1", info.BatchID)
	}
	if _, err = env.BatchSvc.FindStudent(ctx, "R9"); !core.IsNotFound(err) {
		t.Errorf("FindStudent() error = %v; want not found", err)
	}

	if err = env.BatchSvc.Delete(ctx, "b1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err = env.BatchSvc.Get(ctx, "b1"); !core.IsNotFound(err) {
		t.Errorf("Get() error = %v; want not found", err)
	}
	if _, err = env.BatchSvc.FindStudent(ctx, "R1"); !core.IsNotFound(err) {
		t.Errorf("FindStudent() error = %v; want not found", err)
	}
}
