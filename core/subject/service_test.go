package subject_test

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/go-playground/validator/v10"

	"github.com/trezcool/clotrack/core"
	"github.com/trezcool/clotrack/core/mark"
	"github.com/trezcool/clotrack/core/subject"
	"github.com/trezcool/clotrack/tests"
)

func TestEvaluationSettings_Validate(t *testing.T) {
	env := testutil.NewEnv()

	valid := testutil.MSTSettings()
	negative := func() subject.EvaluationSettings {
		schema := map[string]subject.EvaluationCriterion{
			"MST": {TotalMarks: -1, Questions: []subject.Question{{QuestionNo: 1, MaxMarks: 5}}},
		}
		return subject.EvaluationSettings{EvaluationSchema: &schema}
	}
	badWeightage := func() subject.EvaluationSettings {
		schema := map[string]subject.EvaluationCriterion{
			"MST": {TotalMarks: 5, Weightage: testutil.Weightage(120), Questions: []subject.Question{{QuestionNo: 1, MaxMarks: 5}}},
		}
		return subject.EvaluationSettings{EvaluationSchema: &schema}
	}
	zeroQuestion := func() subject.EvaluationSettings {
		schema := map[string]subject.EvaluationCriterion{
			"MST": {TotalMarks: 5, Questions: []subject.Question{{QuestionNo: 0, MaxMarks: 5}}},
		}
		return subject.EvaluationSettings{EvaluationSchema: &schema}
	}
	dupQuestion := func() subject.EvaluationSettings {
		schema := map[string]subject.EvaluationCriterion{
			"MST": {TotalMarks: 10, Questions: []subject.Question{{QuestionNo: 1, MaxMarks: 5}, {QuestionNo: 1, MaxMarks: 5}}},
		}
		return subject.EvaluationSettings{EvaluationSchema: &schema}
	}
	dupPart := func() subject.EvaluationSettings {
		schema := map[string]subject.EvaluationCriterion{
			"MST": {TotalMarks: 10, Questions: []subject.Question{{
				QuestionNo: 1, MaxMarks: 10, Parts: []subject.Part{{PartNo: 2, MaxMarks: 5}, {PartNo: 2, MaxMarks: 5}},
			}}},
		}
		return subject.EvaluationSettings{EvaluationSchema: &schema}
	}
	badName := func() subject.EvaluationSettings {
		schema := map[string]subject.EvaluationCriterion{
			"MST 1": {TotalMarks: 5, Questions: []subject.Question{{QuestionNo: 1, MaxMarks: 5}}},
		}
		return subject.EvaluationSettings{EvaluationSchema: &schema}
	}
	dupCLO := func() subject.EvaluationSettings {
		clos := []subject.CLO{{CLONumber: 1, Statement: "a"}, {CLONumber: 1, Statement: "b"}}
		return subject.EvaluationSettings{CLOs: &clos}
	}
	blankStatement := func() subject.EvaluationSettings {
		clos := []subject.CLO{{CLONumber: 1, Statement: "   "}}
		return subject.EvaluationSettings{CLOs: &clos}
	}
	badPartMapping := func() subject.EvaluationSettings {
		mappings := []subject.CLOMapping{{CLONumber: 1, Mappings: []subject.MapEntry{{Criteria: "MST", QuestionNo: 1, PartNo: testutil.PartNo(0)}}}}
		return subject.EvaluationSettings{CLOMappings: &mappings}
	}

	tests := []struct {
		name    string
		es      subject.EvaluationSettings
		wantTag string
	}{
		{name: "valid", es: valid},
		{name: "empty", es: subject.EvaluationSettings{}},
		{name: "negative total marks", es: negative(), wantTag: "min"},
		{name: "weightage out of range", es: badWeightage(), wantTag: "max"},
		{name: "zero question number", es: zeroQuestion(), wantTag: "min"},
		{name: "duplicate question", es: dupQuestion(), wantTag: "dupquestion"},
		{name: "duplicate part", es: dupPart(), wantTag: "duppart"},
		{name: "invalid criterion name", es: badName(), wantTag: "alphanum_"},
		{name: "duplicate CLO", es: dupCLO(), wantTag: "dupclo"},
		{name: "blank CLO statement", es: blankStatement(), wantTag: "required"},
		{name: "zero part number mapping", es: badPartMapping(), wantTag: "min"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.es.Validate(env.Validate)
			if tc.wantTag == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v; want nil", err)
				}
				return
			}
			vErrs, ok := err.(validator.ValidationErrors)
			if !ok {
				t.Fatalf("Validate() error = %v; want validator.ValidationErrors", err)
			}
			if vErrs[0].Tag() != tc.wantTag {
				t.Errorf("Validate() tag = %s; want %s", vErrs[0].Tag(), tc.wantTag)
			}
			if msg := vErrs[0].Translate(env.Translator); msg == "" {
				t.Error("Translate() = empty")
			}
		})
	}
}

func TestService_SetEvaluationSettings(t *testing.T) {
	env := testutil.NewEnv()
	ctx := context.Background()

	cc := testutil.CreateUser(t, env.UserRepo, "Coordinator", "cc@test.edu", "", core.RoleInstructor)
	teacher := testutil.CreateUser(t, env.UserRepo, "Teacher", "teacher@test.edu", "", core.RoleInstructor)
	testutil.CreateBatch(t, env.BatchSvc, "b1", "R1", "R2")
	s := testutil.CreateSubject(t, env.SubjectSvc, "Algorithms", "CS101")
	s = testutil.AssignInstructor(t, env.SubjectSvc, s, cc, true)
	s = testutil.AssignInstructor(t, env.SubjectSvc, s, teacher, false, "R1")

	t.Run("not the coordinator", func(t *testing.T) {
		_, _, err := env.SubjectSvc.SetEvaluationSettings(ctx, teacher.Identity(), s.ID, testutil.MSTSettings())
		if err != subject.ErrNotCoordinator {
			t.Errorf("SetEvaluationSettings() error = %v; want %v", err, subject.ErrNotCoordinator)
		}
	})

	t.Run("unknown subject", func(t *testing.T) {
		_, _, err := env.SubjectSvc.SetEvaluationSettings(ctx, cc.Identity(), "nope", testutil.MSTSettings())
		if !core.IsNotFound(err) {
			t.Errorf("SetEvaluationSettings() error = %v; want not found", err)
		}
	})

	t.Run("unvalidated settings", func(t *testing.T) {
		es := testutil.MSTSettings()
		(*es.CLOs)[1].CLONumber = 1
		(*es.EvaluationSchema)["MST"].Questions[0].Parts[0].MaxMarks = -5
		_, _, err := env.SubjectSvc.SetEvaluationSettings(ctx, cc.Identity(), s.ID, es)
		verrs, ok := err.(validator.ValidationErrors)
		if !ok {
			t.Fatalf("SetEvaluationSettings() error = %v; want validation errors", err)
		}
		if len(verrs) != 2 {
			t.Errorf("len(errors) = %d; want 2: %v", len(verrs), verrs)
		}
		if got, _ := env.SubjectSvc.GetByID(ctx, s.ID); len(got.CLOs) != 0 {
			t.Errorf("CLOs = %v; want none stored", got.CLOs)
		}
	})

	t.Run("replace settings", func(t *testing.T) {
		es := testutil.MSTSettings()
		got, warnings, err := env.SubjectSvc.SetEvaluationSettings(ctx, cc.Identity(), s.ID, es)
		if err != nil {
			t.Fatalf("SetEvaluationSettings() error = %v", err)
		}
		if len(warnings) != 0 {
			t.Errorf("warnings = %v; want none", warnings)
		}
		if !reflect.DeepEqual(got.CLOs, *es.CLOs) {
			t.Errorf("CLOs = %v; want %v", got.CLOs, *es.CLOs)
		}
		if _, ok := got.Criterion("MST"); !ok {
			t.Error("MST criterion missing")
		}
	})

	t.Run("nil fields are kept", func(t *testing.T) {
		clos := []subject.CLO{{CLONumber: 1, Statement: "Analyse"}, {CLONumber: 2, Statement: "Design"}, {CLONumber: 3, Statement: "Build"}}
		got, _, err := env.SubjectSvc.SetEvaluationSettings(ctx, cc.Identity(), s.ID, subject.EvaluationSettings{CLOs: &clos})
		if err != nil {
			t.Fatalf("SetEvaluationSettings() error = %v", err)
		}
		if len(got.CLOs) != 3 {
			t.Errorf("len(CLOs) = %d; want 3", len(got.CLOs))
		}
		if len(got.CLOMappings) != 2 || len(got.EvaluationSchema) != 1 {
			t.Errorf("settings were not kept: %+v", got)
		}
	})

	t.Run("soft warnings", func(t *testing.T) {
		schema := map[string]subject.EvaluationCriterion{
			"MST": (*testutil.MSTSettings().EvaluationSchema)["MST"],
			"EST": {TotalMarks: 50, Questions: []subject.Question{
				{QuestionNo: 1, MaxMarks: 10, Parts: []subject.Part{{PartNo: 1, MaxMarks: 4}}},
			}},
		}
		_, warnings, err := env.SubjectSvc.SetEvaluationSettings(ctx, cc.Identity(), s.ID, subject.EvaluationSettings{EvaluationSchema: &schema})
		if err != nil {
			t.Fatalf("SetEvaluationSettings() error = %v", err)
		}
		if len(warnings) != 2 {
			t.Errorf("warnings = %v; want 2", warnings)
		}
	})

	t.Run("marked criteria cannot change", func(t *testing.T) {
		_, err := env.MarkRepo.Upsert(ctx, mark.StudentMark{
			ID: "m1", SubjectID: s.ID, RollNo: "R1", InstructorID: teacher.ID, EvalCriteria: "MST",
		})
		if err != nil {
			t.Fatalf("Upsert() error = %v", err)
		}

		changed := map[string]subject.EvaluationCriterion{
			"MST": {TotalMarks: 20, Questions: []subject.Question{{QuestionNo: 1, MaxMarks: 20}}},
		}
		_, _, err = env.SubjectSvc.SetEvaluationSettings(ctx, cc.Identity(), s.ID, subject.EvaluationSettings{EvaluationSchema: &changed})
		if vErr, ok := err.(*core.ValidationError); !ok || vErr.Fields[0].Field != "evaluation_schema.MST" {
			t.Errorf("SetEvaluationSettings() error = %v; want evaluation_schema.MST validation error", err)
		}

		removed := map[string]subject.EvaluationCriterion{
			"EST": {TotalMarks: 10, Questions: []subject.Question{{QuestionNo: 1, MaxMarks: 10}}},
		}
		_, _, err = env.SubjectSvc.SetEvaluationSettings(ctx, cc.Identity(), s.ID, subject.EvaluationSettings{EvaluationSchema: &removed})
		if _, ok := err.(*core.ValidationError); !ok {
			t.Errorf("SetEvaluationSettings() error = %v; want validation error", err)
		}

		kept := map[string]subject.EvaluationCriterion{
			"MST":  (*testutil.MSTSettings().EvaluationSchema)["MST"],
			"Quiz": {TotalMarks: 5, Questions: []subject.Question{{QuestionNo: 1, MaxMarks: 5}}},
		}
		if _, _, err = env.SubjectSvc.SetEvaluationSettings(ctx, cc.Identity(), s.ID, subject.EvaluationSettings{EvaluationSchema: &kept}); err != nil {
			t.Errorf("SetEvaluationSettings() error = %v; want nil", err)
		}
	})
}

func TestService_Tagging(t *testing.T) {
	env := testutil.NewEnv()
	ctx := context.Background()

	t1 := testutil.CreateUser(t, env.UserRepo, "Teacher One", "t1@test.edu", "", core.RoleInstructor)
	t2 := testutil.CreateUser(t, env.UserRepo, "Teacher Two", "t2@test.edu", "", core.RoleInstructor)
	outsider := testutil.CreateUser(t, env.UserRepo, "Outsider", "out@test.edu", "", core.RoleInstructor)
	admin := testutil.CreateUser(t, env.UserRepo, "Admin", "admin@test.edu", "", core.RoleAdmin)
	testutil.CreateBatch(t, env.BatchSvc, "b1", "R1", "R2", "R3")
	testutil.CreateBatch(t, env.BatchSvc, "b2", "R4", "R5")
	s := testutil.CreateSubject(t, env.SubjectSvc, "Algorithms", "CS101")
	s = testutil.AssignInstructor(t, env.SubjectSvc, s, t1, false)
	s = testutil.AssignInstructor(t, env.SubjectSvc, s, t2, false)

	t.Run("assign student", func(t *testing.T) {
		got, err := env.SubjectSvc.AssignStudent(ctx, subject.TagStudent{RollNo: "R1", SubjectCode: "CS101", InstructorID: t1.ID})
		if err != nil {
			t.Fatalf("AssignStudent() error = %v", err)
		}
		if id, _ := got.TaggedInstructor("R1"); id != t1.ID {
			t.Errorf("TaggedInstructor(R1) = %s; want %s", id, t1.ID)
		}

		_, err = env.SubjectSvc.AssignStudent(ctx, subject.TagStudent{RollNo: "R1", SubjectCode: "CS101", InstructorID: t2.ID})
		if _, ok := err.(*core.ValidationError); !ok {
			t.Errorf("AssignStudent() error = %v; want validation error", err)
		}

		_, err = env.SubjectSvc.AssignStudent(ctx, subject.TagStudent{RollNo: "R2", SubjectCode: "CS101", InstructorID: outsider.ID})
		if !core.IsPermissionError(err) {
			t.Errorf("AssignStudent() error = %v; want permission error", err)
		}
	})

	t.Run("upload tagging", func(t *testing.T) {
		rows := []subject.TagStudent{
			{RollNo: "R2", SubjectCode: "CS101", InstructorID: t1.ID},
			{RollNo: "R9", SubjectCode: "CS101", InstructorID: t1.ID},
			{RollNo: "R3", SubjectCode: "XX000", InstructorID: t1.ID},
			{RollNo: "R3", SubjectCode: "CS101", InstructorID: admin.ID},
			{RollNo: "R3", SubjectCode: "CS101"},
			{RollNo: "R1", SubjectCode: "CS101", InstructorID: t2.ID},
			{RollNo: " R3 ", SubjectCode: "CS101", InstructorID: t2.ID},
		}
		rowErrs, err := env.SubjectSvc.UploadTagging(ctx, rows)
		if err != nil {
			t.Fatalf("UploadTagging() error = %v", err)
		}
		want := []string{
			"Row 2: Student R9 not found",
			"Row 3: Subject XX000 not found",
			"Row 4: Instructor " + admin.ID + " not found or invalid",
			"Row 5: missing required fields (RollNo, SubjectCode, InstructorId)",
			"Row 6: Student R1 already assigned to another instructor for CS101",
		}
		got := make([]string, 0, len(rowErrs))
		for _, re := range rowErrs {
			got = append(got, re.Error())
		}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("UploadTagging() = %v; want %v", got, want)
		}

		s, err = env.SubjectSvc.GetByID(ctx, s.ID)
		if err != nil {
			t.Fatalf("GetByID() error = %v", err)
		}
		for roll, wantID := range map[string]string{"R1": t1.ID, "R2": t1.ID, "R3": t2.ID} {
			if id, _ := s.TaggedInstructor(roll); id != wantID {
				t.Errorf("TaggedInstructor(%s) = %s; want %s", roll, id, wantID)
			}
		}
	})

	t.Run("assign batch skips students of other instructors", func(t *testing.T) {
		_, skipped, err := env.SubjectSvc.AssignBatch(ctx, subject.AssignBatch{BatchID: "b1", SubjectCode: "CS101", InstructorID: t2.ID})
		if err != nil {
			t.Fatalf("AssignBatch() error = %v", err)
		}
		if !reflect.DeepEqual(skipped, []string{"R1", "R2"}) {
			t.Errorf("skipped = %v; want [R1 R2]", skipped)
		}
		if _, _, err = env.SubjectSvc.AssignBatch(ctx, subject.AssignBatch{BatchID: "b9", SubjectCode: "CS101", InstructorID: t2.ID}); !core.IsNotFound(err) {
			t.Errorf("AssignBatch() error = %v; want not found", err)
		}
	})

	t.Run("students", func(t *testing.T) {
		own, err := env.SubjectSvc.Students(ctx, t1.Identity(), s.ID)
		if err != nil {
			t.Fatalf("Students() error = %v", err)
		}
		if len(own) != 2 || own[0].Name != "Student R1" || own[0].BatchID != "b1" {
			t.Errorf("Students() = %+v; want R1 & R2", own)
		}

		all, err := env.SubjectSvc.Students(ctx, admin.Identity(), s.ID)
		if err != nil {
			t.Fatalf("Students() error = %v", err)
		}
		if len(all) != 3 {
			t.Errorf("len(Students()) = %d; want 3", len(all))
		}

		if _, err = env.SubjectSvc.Students(ctx, outsider.Identity(), s.ID); err != subject.ErrForbidden {
			t.Errorf("Students() error = %v; want %v", err, subject.ErrForbidden)
		}
	})

	t.Run("remove student", func(t *testing.T) {
		got, err := env.SubjectSvc.RemoveStudent(ctx, subject.TagStudent{RollNo: "R2", SubjectCode: "CS101", InstructorID: t1.ID})
		if err != nil {
			t.Fatalf("RemoveStudent() error = %v", err)
		}
		if _, ok := got.TaggedInstructor("R2"); ok {
			t.Error("R2 still tagged")
		}
		_, err = env.SubjectSvc.RemoveStudent(ctx, subject.TagStudent{RollNo: "R2", SubjectCode: "CS101", InstructorID: t1.ID})
		if !core.IsNotFound(err) {
			t.Errorf("RemoveStudent() error = %v; want not found", err)
		}
	})
}

func TestService_AssignInstructor(t *testing.T) {
	env := testutil.NewEnv()
	ctx := context.Background()

	t1 := testutil.CreateUser(t, env.UserRepo, "Teacher One", "t1@test.edu", "", core.RoleInstructor)
	t2 := testutil.CreateUser(t, env.UserRepo, "Teacher Two", "t2@test.edu", "", core.RoleInstructor)
	s := testutil.CreateSubject(t, env.SubjectSvc, "Algorithms", "CS101")

	s = testutil.AssignInstructor(t, env.SubjectSvc, s, t1, true)
	if s.CoordinatorID != t1.ID {
		t.Fatalf("CoordinatorID = %s; want %s", s.CoordinatorID, t1.ID)
	}
	s = testutil.AssignInstructor(t, env.SubjectSvc, s, t2, true)
	if s.CoordinatorID != t2.ID || len(s.Instructors) != 2 {
		t.Fatalf("subject = %+v; want t2 as coordinator of 2 instructors", s)
	}

	prev, err := env.UserSvc.GetByID(ctx, t1.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if prev.CoordinatorFor != "" || !prev.TeachesSubject("CS101") {
		t.Errorf("previous coordinator = %+v; want demoted instructor of CS101", prev)
	}

	if _, err = env.SubjectSvc.AssignInstructor(ctx, subject.AssignInstructor{TeacherID: "nope", SubjectCode: "CS101"}); !core.IsNotFound(err) {
		t.Errorf("AssignInstructor() error = %v; want not found", err)
	}
	if _, err = env.SubjectSvc.AssignInstructor(ctx, subject.AssignInstructor{TeacherID: t1.ID, SubjectCode: "XX"}); !core.IsNotFound(err) {
		t.Errorf("AssignInstructor() error = %v; want not found", err)
	}
}

func TestService_Delete(t *testing.T) {
	env := testutil.NewEnv()
	ctx := context.Background()

	cc := testutil.CreateUser(t, env.UserRepo, "Coordinator", "cc@test.edu", "", core.RoleInstructor)
	s := testutil.CreateSubject(t, env.SubjectSvc, "Algorithms", "CS101")
	s = testutil.AssignInstructor(t, env.SubjectSvc, s, cc, true)
	if _, err := env.MarkRepo.Upsert(ctx, mark.StudentMark{ID: "m1", SubjectID: s.ID, RollNo: "R1", InstructorID: cc.ID, EvalCriteria: "MST"}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	if err := env.SubjectSvc.Delete(ctx, s.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := env.SubjectSvc.GetByID(ctx, s.ID); !core.IsNotFound(err) {
		t.Errorf("GetByID() error = %v; want not found", err)
	}
	marks, err := env.MarkRepo.QueryMarks(ctx, mark.QueryFilter{SubjectID: s.ID})
	if err != nil || len(marks) != 0 {
		t.Errorf("QueryMarks() = %v, %v; want no marks", marks, err)
	}
	usr, err := env.UserSvc.GetByID(ctx, cc.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if usr.CoordinatorFor != "" || usr.TeachesSubject("CS101") {
		t.Errorf("user = %+v; want no reference to CS101", usr)
	}
	if err = env.SubjectSvc.Delete(ctx, s.ID); !core.IsNotFound(err) {
		t.Errorf("Delete() error = %v; want not found", err)
	}
}

type failingDeleteRepo struct {
	subject.Repository
}

func (failingDeleteRepo) DeleteSubject(context.Context, string) error {
	return errors.New("connection reset")
}

func TestService_Delete_KeepsMarksOnFailure(t *testing.T) {
	env := testutil.NewEnv()
	ctx := context.Background()

	cc := testutil.CreateUser(t, env.UserRepo, "Coordinator", "cc@test.edu", "", core.RoleInstructor)
	s := testutil.CreateSubject(t, env.SubjectSvc, "Algorithms", "CS101")
	s = testutil.AssignInstructor(t, env.SubjectSvc, s, cc, true)
	if _, err := env.MarkRepo.Upsert(ctx, mark.StudentMark{ID: "m1", SubjectID: s.ID, RollNo: "R1", InstructorID: cc.ID, EvalCriteria: "MST"}); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	svc := subject.NewService(failingDeleteRepo{env.SubjectRepo}, env.MarkRepo, env.UserSvc, env.BatchSvc, env.Logger)
	if err := svc.Delete(ctx, s.ID); err == nil {
		t.Fatal("Delete() error = nil; want repository error")
	}
	if _, err := env.SubjectSvc.GetByID(ctx, s.ID); err != nil {
		t.Errorf("GetByID() error = %v; want subject kept", err)
	}
	marks, err := env.MarkRepo.QueryMarks(ctx, mark.QueryFilter{SubjectID: s.ID})
	if err != nil || len(marks) != 1 {
		t.Errorf("QueryMarks() = %v, %v; want the mark kept", marks, err)
	}
	usr, err := env.UserSvc.GetByID(ctx, cc.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if usr.CoordinatorFor != "CS101" {
		t.Errorf("CoordinatorFor = %q; want CS101", usr.CoordinatorFor)
	}
}

func TestNewSubject_Validate(t *testing.T) {
	env := testutil.NewEnv()
	testutil.CreateSubject(t, env.SubjectSvc, "Algorithms", "CS101")

	tests := []struct {
		name    string
		ns      subject.NewSubject
		wantErr bool
	}{
		{name: "valid", ns: subject.NewSubject{Name: " Data ", Code: "CS102", Department: "CSE"}},
		{name: "missing name", ns: subject.NewSubject{Code: "CS103", Department: "CSE"}, wantErr: true},
		{name: "invalid code", ns: subject.NewSubject{Name: "X", Code: "CS 1", Department: "CSE"}, wantErr: true},
		{name: "duplicate code", ns: subject.NewSubject{Name: "X", Code: "CS101", Department: "CSE"}, wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.ns.Validate(env.Validate, env.SubjectSvc); (err != nil) != tc.wantErr {
				t.Errorf("Validate() error = %v; wantErr %v", err, tc.wantErr)
			}
		})
	}
}
