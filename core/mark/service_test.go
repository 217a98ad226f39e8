package mark_test

import (
	"context"
	"math"
	"reflect"
	"testing"

	"github.com/trezcool/clotrack/core"
	"github.com/trezcool/clotrack/core/mark"
	"github.com/trezcool/clotrack/core/subject"
	"github.com/trezcool/clotrack/core/user"
	"github.com/trezcool/clotrack/tests"
)

type fixture struct {
	env        *testutil.Env
	subject    subject.Subject
	cc, t1, t2 user.User
	outsider   user.User
}

func setup(t *testing.T) fixture {
	env := testutil.NewEnv()
	f := fixture{env: env}
	f.cc = testutil.CreateUser(t, env.UserRepo, "Coordinator", "cc@test.edu", "", core.RoleInstructor)
	f.t1 = testutil.CreateUser(t, env.UserRepo, "Teacher One", "t1@test.edu", "", core.RoleInstructor)
	f.t2 = testutil.CreateUser(t, env.UserRepo, "Teacher Two", "t2@test.edu", "", core.RoleInstructor)
	f.outsider = testutil.CreateUser(t, env.UserRepo, "Outsider", "out@test.edu", "", core.RoleInstructor)
	testutil.CreateBatch(t, env.BatchSvc, "b1", "R1", "R2", "R3", "R4")

	s := testutil.CreateSubject(t, env.SubjectSvc, "Algorithms", "CS101")
	s = testutil.AssignInstructor(t, env.SubjectSvc, s, f.cc, true)
	s = testutil.AssignInstructor(t, env.SubjectSvc, s, f.t1, false, "R1", "R2")
	s = testutil.AssignInstructor(t, env.SubjectSvc, s, f.t2, false, "R3")
	f.subject = testutil.SetSettings(t, env.SubjectSvc, s, testutil.MSTSettings())
	return f
}

func record(rollNo, p1, p2, q2 string) mark.StudentRecord {
	return mark.StudentRecord{RollNo: rollNo, Data: map[string]string{
		"RollNo":       rollNo,
		"Student Name": "Student " + rollNo,
		"MST_Q1_P1":    p1,
		"MST_Q1_P2":    p2,
		"MST_Q2":       q2,
	}}
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestService_Submit(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	svc := f.env.MarkSvc

	t.Run("errors", func(t *testing.T) {
		_, err := svc.Submit(ctx, f.t1.Identity(), f.subject.ID, "EST", []mark.StudentRecord{record("R1", "1", "1", "1")})
		if vErr, ok := err.(*core.ValidationError); !ok || vErr.Fields[0].Field != "eval_criteria" {
			t.Errorf("Submit() error = %v; want eval_criteria validation error", err)
		}
		_, err = svc.Submit(ctx, f.outsider.Identity(), f.subject.ID, "MST", nil)
		if err != mark.ErrNotInstructor {
			t.Errorf("Submit() error = %v; want %v", err, mark.ErrNotInstructor)
		}
		_, err = svc.Submit(ctx, f.t1.Identity(), "nope", "MST", nil)
		if !core.IsNotFound(err) {
			t.Errorf("Submit() error = %v; want not found", err)
		}
	})

	t.Run("untagged students are dropped", func(t *testing.T) {
		records := []mark.StudentRecord{
			record("R1", "4", "3", "8"),
			record(" R2 ", "5", "abc", ""),
			record("R3", "1", "1", "1"),
			record("R9", "1", "1", "1"),
		}
		res, err := svc.Submit(ctx, f.t1.Identity(), f.subject.ID, "MST", records)
		if err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
		if !reflect.DeepEqual(res.Saved, []string{"R1", "R2"}) {
			t.Errorf("Saved = %v; want [R1 R2]", res.Saved)
		}
		if !reflect.DeepEqual(res.Dropped, []string{"R3", "R9"}) {
			t.Errorf("Dropped = %v; want [R3 R9]", res.Dropped)
		}
		if len(res.Errors) != 0 {
			t.Errorf("Errors = %v; want none", res.Errors)
		}
	})

	t.Run("stored attainment", func(t *testing.T) {
		_, marks, err := svc.InstructorMarks(ctx, f.t1.Identity(), f.subject.ID)
		if err != nil {
			t.Fatalf("InstructorMarks() error = %v", err)
		}
		if len(marks) != 2 {
			t.Fatalf("len(marks) = %d; want 2", len(marks))
		}

		r1 := marks[0]
		want := map[string]float64{"CLO1": 3.6, "CLO2": 3.3}
		for clo, v := range want {
			if !approx(r1.CLOMarks[clo], v) {
				t.Errorf("CLOMarks[%s] = %v; want %v", clo, r1.CLOMarks[clo], v)
			}
			if !approx(r1.CLOTotals[clo], 4.5) {
				t.Errorf("CLOTotals[%s] = %v; want 4.5", clo, r1.CLOTotals[clo])
			}
		}
		if r1.Data["TotalMarks"] != "15" {
			t.Errorf("Data[TotalMarks] = %q; want 15", r1.Data["TotalMarks"])
		}
		if r1.Data["MST_Q2"] != "8" {
			t.Errorf("raw cell MST_Q2 = %q; want it kept", r1.Data["MST_Q2"])
		}
		if _, ok := r1.Data["MST_Q2_Weightage"]; !ok {
			t.Error("derived column MST_Q2_Weightage missing")
		}

		r2 := marks[1]
		if r2.RollNo != "R2" || !approx(r2.CLOMarks["CLO1"], 1.5) || r2.CLOMarks["CLO2"] != 0 {
			t.Errorf("R2 = %+v; want invalid & empty cells to count as 0", r2)
		}
	})

	t.Run("resubmission replaces", func(t *testing.T) {
		_, before, _ := svc.InstructorMarks(ctx, f.t1.Identity(), f.subject.ID)
		if _, err := svc.Submit(ctx, f.t1.Identity(), f.subject.ID, "MST", []mark.StudentRecord{record("R1", "5", "5", "10")}); err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
		_, after, err := svc.InstructorMarks(ctx, f.t1.Identity(), f.subject.ID)
		if err != nil {
			t.Fatalf("InstructorMarks() error = %v", err)
		}
		if len(after) != 2 {
			t.Fatalf("len(marks) = %d; want 2", len(after))
		}
		if after[0].ID != before[0].ID || !after[0].CreatedAt.Equal(before[0].CreatedAt) {
			t.Error("resubmission did not keep the mark identity")
		}
		if !approx(after[0].CLOMarks["CLO1"], 4.5) {
			t.Errorf("CLOMarks[CLO1] = %v; want 4.5", after[0].CLOMarks["CLO1"])
		}
	})
}

func TestService_Preview(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	svc := f.env.MarkSvc

	records := []mark.StudentRecord{record("R1", "4", "3", "8"), record("R2", "2.5", "", "10")}
	previews, err := svc.Preview(ctx, f.t1.Identity(), f.subject.ID, "MST", records)
	if err != nil {
		t.Fatalf("Preview() error = %v", err)
	}
	if _, marks, _ := svc.InstructorMarks(ctx, f.t1.Identity(), f.subject.ID); len(marks) != 0 {
		t.Fatalf("Preview() stored %d marks", len(marks))
	}

	if _, err = svc.Submit(ctx, f.t1.Identity(), f.subject.ID, "MST", records); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	_, marks, err := svc.InstructorMarks(ctx, f.t1.Identity(), f.subject.ID)
	if err != nil {
		t.Fatalf("InstructorMarks() error = %v", err)
	}
	for i, p := range previews {
		if p.RollNo != marks[i].RollNo {
			t.Fatalf("preview %d is %s; want %s", i, p.RollNo, marks[i].RollNo)
		}
		if !reflect.DeepEqual(p.CLOMarks, marks[i].CLOMarks) || !reflect.DeepEqual(p.CLOTotals, marks[i].CLOTotals) {
			t.Errorf("preview of %s = %+v; want %+v", p.RollNo, p.Result, marks[i])
		}
	}
}

func TestService_Submissions(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	svc := f.env.MarkSvc

	if _, err := svc.Submit(ctx, f.t1.Identity(), f.subject.ID, "MST", []mark.StudentRecord{record("R1", "1", "1", "1"), record("R2", "1", "1", "1")}); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	got, err := svc.Submissions(ctx, f.cc.Identity(), f.subject.ID, "MST")
	if err != nil {
		t.Fatalf("Submissions() error = %v", err)
	}
	want := []mark.SubmissionStatus{
		{InstructorID: f.cc.ID, InstructorName: "Coordinator"},
		{InstructorID: f.t1.ID, InstructorName: "Teacher One", HasSubmitted: true, Count: 2},
		{InstructorID: f.t2.ID, InstructorName: "Teacher Two"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Submissions() = %+v; want %+v", got, want)
	}

	if _, err = svc.Submissions(ctx, f.t1.Identity(), f.subject.ID, "MST"); err != mark.ErrNotCoordinator {
		t.Errorf("Submissions() error = %v; want %v", err, mark.ErrNotCoordinator)
	}
	admin := core.Identity{UserID: "admin", Role: core.RoleAdmin}
	if _, err = svc.Submissions(ctx, admin, f.subject.ID, "MST"); err != nil {
		t.Errorf("Submissions() error = %v; want nil for admins", err)
	}
}

func TestService_ViewSubmission(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	svc := f.env.MarkSvc

	if _, err := svc.ViewSubmission(ctx, f.cc.Identity(), f.subject.ID, f.t1.ID, "MST"); err != mark.ErrNoSubmission {
		t.Fatalf("ViewSubmission() error = %v; want %v", err, mark.ErrNoSubmission)
	}
	rec := record("R1", "4", "3", "8")
	delete(rec.Data, "Student Name")
	if _, err := svc.Submit(ctx, f.t1.Identity(), f.subject.ID, "MST", []mark.StudentRecord{rec}); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	tbl, err := svc.ViewSubmission(ctx, f.cc.Identity(), f.subject.ID, f.t1.ID, "MST")
	if err != nil {
		t.Fatalf("ViewSubmission() error = %v", err)
	}
	wantHeader := []string{
		"RollNo", "Student Name", "MST_Q1_P1", "MST_Q1_P2", "MST_Q2",
		"MST_Q1_P1_Weightage", "MST_Q1_P2_Weightage", "MST_Q2_Weightage",
		"TotalMarks", "TotalMarks_Weightage", "CLO1", "CLO2", "CLO1_scaled", "CLO2_scaled",
	}
	if !reflect.DeepEqual(tbl.Header, wantHeader) {
		t.Errorf("Header = %v; want %v", tbl.Header, wantHeader)
	}
	if len(tbl.Rows) != 1 {
		t.Fatalf("len(Rows) = %d; want 1", len(tbl.Rows))
	}
	row := tbl.Records()[0]
	if row["Student Name"] != "Student R1" {
		t.Errorf("Student Name = %q; want the batch name", row["Student Name"])
	}
	if row["MST_Q1_P1"] != "4" || row["TotalMarks"] != "15" {
		t.Errorf("row = %v", row)
	}
	if row["CLO1_scaled"] != row["CLO1"] {
		t.Errorf("CLO1_scaled = %q; want %q", row["CLO1_scaled"], row["CLO1"])
	}

	if _, err = svc.ViewSubmission(ctx, f.t1.Identity(), f.subject.ID, f.t1.ID, "MST"); err != mark.ErrNotCoordinator {
		t.Errorf("ViewSubmission() error = %v; want %v", err, mark.ErrNotCoordinator)
	}
}

func TestService_Aggregate(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	svc := f.env.MarkSvc

	if _, err := svc.Aggregate(ctx, f.cc.Identity(), f.subject.ID, "MST"); err != mark.ErrNoSubmissions {
		t.Fatalf("Aggregate() error = %v; want %v", err, mark.ErrNoSubmissions)
	}

	submit := func(usr user.User, records ...mark.StudentRecord) {
		t.Helper()
		if _, err := svc.Submit(ctx, usr.Identity(), f.subject.ID, "MST", records); err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
	}
	submit(f.t1, record("R2", "1", "1", "1"), record("R1", "4", "3", "8"))
	submit(f.t2, record("R3", "2", "2", "2"))

	t.Run("no conflicts", func(t *testing.T) {
		agg, err := svc.Aggregate(ctx, f.cc.Identity(), f.subject.ID, "MST")
		if err != nil {
			t.Fatalf("Aggregate() error = %v", err)
		}
		if len(agg.Conflicts()) != 0 {
			t.Errorf("Conflicts() = %v; want none", agg.Conflicts())
		}
		tbl := agg.Table()
		var rolls []string
		for _, row := range tbl.Rows {
			rolls = append(rolls, row[0])
		}
		if !reflect.DeepEqual(rolls, []string{"R1", "R2", "R3"}) {
			t.Errorf("rows = %v; want [R1 R2 R3]", rolls)
		}
		if tbl.Header[len(tbl.Header)-1] != "CLO2" {
			t.Errorf("Header = %v; want no scaled columns", tbl.Header)
		}
	})

	t.Run("student marked by two instructors", func(t *testing.T) {
		if _, err := f.env.SubjectSvc.RemoveStudent(ctx, subject.TagStudent{RollNo: "R1", SubjectCode: "CS101", InstructorID: f.t1.ID}); err != nil {
			t.Fatalf("RemoveStudent() error = %v", err)
		}
		if _, err := f.env.SubjectSvc.AssignStudent(ctx, subject.TagStudent{RollNo: "R1", SubjectCode: "CS101", InstructorID: f.t2.ID}); err != nil {
			t.Fatalf("AssignStudent() error = %v", err)
		}
		submit(f.t2, record("R1", "5", "5", "10"))

		agg, err := svc.Aggregate(ctx, f.cc.Identity(), f.subject.ID, "MST")
		if err != nil {
			t.Fatalf("Aggregate() error = %v", err)
		}
		ids := []string{f.t1.ID, f.t2.ID}
		if ids[0] > ids[1] {
			ids[0], ids[1] = ids[1], ids[0]
		}
		want := []mark.Conflict{{Roll: "R1", InstructorIDs: ids}}
		if got := agg.Conflicts(); !reflect.DeepEqual(got, want) {
			t.Errorf("Conflicts() = %v; want %v", got, want)
		}
		if rows := agg.Table().Rows; len(rows) != 2 || rows[0][0] != "R2" || rows[1][0] != "R3" {
			t.Errorf("rows = %v; want R2 & R3 only", rows)
		}
	})

	if _, err := svc.Aggregate(ctx, f.t1.Identity(), f.subject.ID, "MST"); err != mark.ErrNotCoordinator {
		t.Errorf("Aggregate() error = %v; want %v", err, mark.ErrNotCoordinator)
	}
}

func TestService_Template(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	tbl, err := f.env.MarkSvc.Template(ctx, f.t1.Identity(), f.subject.ID, "MST")
	if err != nil {
		t.Fatalf("Template() error = %v", err)
	}
	if len(tbl.Header) != 12 {
		t.Errorf("len(Header) = %d; want 12", len(tbl.Header))
	}
	want := [][]string{
		{"R1", "Student R1", "", "", "", "", "", "", "", "", "", ""},
		{"R2", "Student R2", "", "", "", "", "", "", "", "", "", ""},
	}
	if !reflect.DeepEqual(tbl.Rows, want) {
		t.Errorf("Rows = %v; want %v", tbl.Rows, want)
	}

	if _, err = f.env.MarkSvc.Template(ctx, f.outsider.Identity(), f.subject.ID, "MST"); err != mark.ErrNotInstructor {
		t.Errorf("Template() error = %v; want %v", err, mark.ErrNotInstructor)
	}
	if _, err = f.env.MarkSvc.Template(ctx, f.t1.Identity(), f.subject.ID, "Quiz"); err == nil {
		t.Error("Template() error = nil; want unknown criterion")
	}
}
