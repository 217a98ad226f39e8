package testutil

import (
	"context"
	"testing"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/trezcool/clotrack/core"
	"github.com/trezcool/clotrack/core/batch"
	"github.com/trezcool/clotrack/core/mark"
	"github.com/trezcool/clotrack/core/subject"
	"github.com/trezcool/clotrack/core/user"
	logsvc "github.com/trezcool/clotrack/services/logger"
	inmemdb "github.com/trezcool/clotrack/storage/database/inmem"
)

// Env wires the services on top of a fresh in-memory database.
type Env struct {
	Conf       *core.Config
	Logger     core.Logger
	Validate   *validator.Validate
	Translator ut.Translator

	UserRepo    user.Repository
	BatchRepo   batch.Repository
	SubjectRepo subject.Repository
	MarkRepo    mark.Repository

	UserSvc    *user.Service
	BatchSvc   *batch.Service
	SubjectSvc *subject.Service
	MarkSvc    *mark.Service
}

func NewEnv() *Env {
	conf := core.NewTestConfig()
	logger := logsvc.NewSilentLogger(conf)

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	subject.InitValidators(validate, translator)

	db := inmemdb.Open()
	env := &Env{
		Conf:        conf,
		Logger:      logger,
		Validate:    validate,
		Translator:  translator,
		UserRepo:    inmemdb.NewUserRepository(db),
		BatchRepo:   inmemdb.NewBatchRepository(db),
		SubjectRepo: inmemdb.NewSubjectRepository(db),
		MarkRepo:    inmemdb.NewMarkRepository(db),
	}
	env.UserSvc = user.NewService(env.UserRepo, logger)
	env.BatchSvc = batch.NewService(env.BatchRepo, logger)
	env.SubjectSvc = subject.NewService(env.SubjectRepo, env.MarkRepo, env.UserSvc, env.BatchSvc, logger)
	env.MarkSvc = mark.NewService(env.MarkRepo, env.SubjectSvc, env.UserSvc, env.BatchSvc, logger, conf.Compute.Workers)
	return env
}

func Weightage(w float64) *float64 { return &w }
func PartNo(n int) *int            { return &n }

func CreateUser(t *testing.T, repo user.Repository, name, email, pwd, role string, createdAt ...time.Time) user.User {
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		ID:        uuid.New().String(),
		Name:      name,
		Email:     email,
		Role:      role,
		IsActive:  true,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser(): %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser(): %v", err)
	}
	return usr
}

// CreateBatch creates a batch of students named after their roll numbers.
func CreateBatch(t *testing.T, svc *batch.Service, id string, rollNos ...string) batch.Batch {
	nb := batch.NewBatch{ID: id, Department: "CSE"}
	for _, r := range rollNos {
		nb.Students = append(nb.Students, batch.Student{RollNo: r, Name: "Student " + r, Department: "CSE"})
	}
	b, err := svc.Create(context.Background(), nb)
	if err != nil {
		t.Fatalf("CreateBatch(): %v", err)
	}
	return b
}

func CreateSubject(t *testing.T, svc *subject.Service, name, code string) subject.Subject {
	s, err := svc.Create(context.Background(), subject.NewSubject{Name: name, Code: code, Department: "CSE"})
	if err != nil {
		t.Fatalf("CreateSubject(): %v", err)
	}
	return s
}

// AssignInstructor assigns the teacher to the subject, as coordinator if asked to, and tags the students to them.
func AssignInstructor(t *testing.T, svc *subject.Service, s subject.Subject, teacher user.User, coordinator bool, rollNos ...string) subject.Subject {
	ctx := context.Background()
	ai := subject.AssignInstructor{TeacherID: teacher.ID, SubjectCode: s.Code}
	if coordinator {
		ai.IsCoordinator = &coordinator
	}
	s, err := svc.AssignInstructor(ctx, ai)
	if err != nil {
		t.Fatalf("AssignInstructor(): %v", err)
	}
	if len(rollNos) > 0 {
		ia, _ := s.Instructor(teacher.ID)
		s, err = svc.AssignStudents(ctx, s.ID, subject.AssignStudents{
			InstructorID: teacher.ID,
			RollNos:      append(ia.Students, rollNos...),
		})
		if err != nil {
			t.Fatalf("AssignInstructor(): %v", err)
		}
	}
	return s
}

// SetSettings sets the evaluation settings of the subject as its coordinator.
func SetSettings(t *testing.T, svc *subject.Service, s subject.Subject, es subject.EvaluationSettings) subject.Subject {
	s, _, err := svc.SetEvaluationSettings(context.Background(), core.Identity{UserID: s.CoordinatorID}, s.ID, es)
	if err != nil {
		t.Fatalf("SetSettings(): %v", err)
	}
	return s
}

// MSTSettings returns settings with a 30% weighted MST criterion of two questions, the first one in two parts:
// CLO1 is fed by Q1 part 1 and Q2, CLO2 by Q1 part 2 and Q2.
func MSTSettings() subject.EvaluationSettings {
	schema := map[string]subject.EvaluationCriterion{
		"MST": {
			TotalMarks: 20,
			Weightage:  Weightage(30),
			Questions: []subject.Question{
				{QuestionNo: 1, MaxMarks: 10, Parts: []subject.Part{{PartNo: 1, MaxMarks: 5}, {PartNo: 2, MaxMarks: 5}}},
				{QuestionNo: 2, MaxMarks: 10},
			},
		},
	}
	clos := []subject.CLO{{CLONumber: 1, Statement: "Analyse"}, {CLONumber: 2, Statement: "Design"}}
	mappings := []subject.CLOMapping{
		{CLONumber: 1, Mappings: []subject.MapEntry{
			{Criteria: "MST", QuestionNo: 1, PartNo: PartNo(1)},
			{Criteria: "MST", QuestionNo: 2},
		}},
		{CLONumber: 2, Mappings: []subject.MapEntry{
			{Criteria: "MST", QuestionNo: 1, PartNo: PartNo(2)},
			{Criteria: "MST", QuestionNo: 2},
		}},
	}
	return subject.EvaluationSettings{CLOs: &clos, EvaluationSchema: &schema, CLOMappings: &mappings}
}
